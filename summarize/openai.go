package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"tubedigest/model"
)

// maxPromptChars keeps the transcript within the model's context window.
const maxPromptChars = 127000

const digestPrompt = `You are a helpful assistant that compiles a roundup of video summaries.
Start with two or three sentences about the main topics and overall conclusions. Then list the interesting details, naming the video each one came from.`

type OpenAI struct {
	client  *openai.Client
	model   string
	prompts *PromptRegistry
}

func NewOpenAI(apiKey, model string, prompts *PromptRegistry) *OpenAI {
	return &OpenAI{
		client:  openai.NewClient(apiKey),
		model:   model,
		prompts: prompts,
	}
}

func (o *OpenAI) Summarize(ctx context.Context, channelID model.ChannelID, text string, maxWords, minWords int) (string, error) {
	return o.complete(ctx, buildInstruction(o.prompts.Get(channelID), maxWords, minWords), truncate(text))
}

func (o *OpenAI) Digest(ctx context.Context, entries []string, maxWords int) (string, error) {
	return o.complete(ctx, buildInstruction(digestPrompt, maxWords, 0), truncate(strings.Join(entries, "\n")))
}

func (o *OpenAI) complete(ctx context.Context, instruction, text string) (string, error) {
	resp, err := o.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: o.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: instruction,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: text,
				},
			},
		})
	if err != nil {
		return "", fmt.Errorf("failed to fetch summary: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}

	return strings.TrimSpace(resp.Choices[len(resp.Choices)-1].Message.Content), nil
}

func buildInstruction(prompt string, maxWords, minWords int) string {
	bounds := fmt.Sprintf("Keep the summary under %d words.", maxWords)
	if minWords > 0 {
		bounds = fmt.Sprintf("Keep the summary between %d and %d words.", minWords, maxWords)
	}

	return fmt.Sprintf("%s\n%s", prompt, bounds)
}

func truncate(text string) string {
	if len(text) <= maxPromptChars {
		return text
	}

	return text[:maxPromptChars]
}
