package classify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const advisorPrompt = `You label spreadsheet columns of a conference program.
Reply with exactly one word from this list: date, time, topic, hall, session, name, email, phone, role, unknown.

Column header: %q
Sample values:
%s`

// OpenAIAdvisor asks a chat completion model to label a column.
type OpenAIAdvisor struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIAdvisor creates an advisor. baseURL may point at any
// OpenAI-compatible endpoint; empty uses the default.
func NewOpenAIAdvisor(apiKey, model, baseURL string) *OpenAIAdvisor {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIAdvisor{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// WithTimeout bounds each suggestion request.
func (a *OpenAIAdvisor) WithTimeout(d time.Duration) *OpenAIAdvisor {
	a.timeout = d
	return a
}

// Suggest returns the model's label, or TypeUnknown when the reply is not a
// known type.
func (a *OpenAIAdvisor) Suggest(ctx context.Context, header string, samples []string) (ColumnType, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var b strings.Builder
	for _, s := range samples {
		fmt.Fprintf(&b, "- %s\n", s)
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(advisorPrompt, header, b.String()),
			},
		},
	})
	if err != nil {
		return TypeUnknown, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return TypeUnknown, fmt.Errorf("no response choices")
	}

	answer := strings.Trim(strings.TrimSpace(resp.Choices[0].Message.Content), ".\"'`")
	t, _ := ParseColumnType(answer)
	return t, nil
}
