package notify

import (
	"fmt"
	"strings"

	"tubedigest/model"
)

var markdownReplacer = strings.NewReplacer(
	"*", "\\*",
	"_", "\\_",
	"`", "\\`",
	"[", "\\[",
)

// EscapeMarkdown neutralizes characters that Telegram's markdown parser
// would otherwise treat as formatting.
func EscapeMarkdown(text string) string {
	return markdownReplacer.Replace(text)
}

// FormatVideoMessage renders a summary as a Telegram markdown message: bold
// title, summary text, canonical watch link.
func FormatVideoMessage(summary model.Summary) string {
	return fmt.Sprintf("*%s*\n\n%s\n%s", EscapeMarkdown(summary.Video.Title), summary.Text, summary.Video.URL())
}

func FormatDigestMessage(text string) string {
	return fmt.Sprintf("*Digest*\n\n%s", text)
}
