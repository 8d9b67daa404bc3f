package summarize

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"tubedigest/model"
)

const defaultPrompt = `You are a helpful assistant that summarizes video transcripts.
Summarize the opinions, arguments and conclusions of the speakers in a few concise points, and include the interesting details of the discussion.
You will not add introductory sentences like "This text is about", or "Summary of...".`

// PromptRegistry maps channel ids to custom system prompts. Channels without
// an entry get the default prompt.
type PromptRegistry struct {
	prompts map[string]string
}

func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{prompts: map[string]string{}}
}

// LoadPrompts reads a YAML file of channel id to prompt text.
func LoadPrompts(path string) (*PromptRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	prompts := map[string]string{}
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file: %w", err)
	}

	registry := NewPromptRegistry()
	for channel, prompt := range prompts {
		registry.Register(channel, prompt)
	}

	return registry, nil
}

func (r *PromptRegistry) Register(channel, prompt string) {
	r.prompts[strings.ToLower(channel)] = prompt
}

func (r *PromptRegistry) Get(channelID model.ChannelID) string {
	if prompt, ok := r.prompts[strings.ToLower(string(channelID))]; ok {
		return prompt
	}

	return defaultPrompt
}
