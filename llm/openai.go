package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"conductor/common"
)

// OpenAIClient implements CompletionClient against any OpenAI-compatible
// chat-completion endpoint.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
}

func NewOpenAIClient(cfg common.CompletionConfig) *OpenAIClient {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	temperature := c.temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		return CompletionResponse{}, classifyProviderError(err)
	}

	if len(resp.Choices) == 0 {
		return CompletionResponse{}, &Error{Transient: true, Err: errors.New("empty completion response")}
	}

	return CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
	}, nil
}

// classifyProviderError maps provider errors onto the transient/permanent
// taxonomy: rate limits, capacity and server-side errors are transient; other
// HTTP client errors (bad request, auth) are permanent. Network-level
// failures without a status are transient.
func classifyProviderError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		transient := apiErr.HTTPStatusCode == http.StatusTooManyRequests ||
			apiErr.HTTPStatusCode == http.StatusRequestTimeout ||
			apiErr.HTTPStatusCode >= http.StatusInternalServerError
		return &Error{StatusCode: apiErr.HTTPStatusCode, Transient: transient, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Transient: true, Err: fmt.Errorf("completion timed out: %w", err)}
	}
	return &Error{Transient: true, Err: err}
}
