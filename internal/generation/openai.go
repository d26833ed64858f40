package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Settings configures the OpenAI-backed client.
type Settings struct {
	Model          string
	APIKey         string
	BaseURL        string
	RequestTimeout time.Duration
}

// OpenAIClient implements Client using the official openai-go SDK
// (chat completions).
type OpenAIClient struct {
	model   string
	timeout time.Duration
	client  openai.Client
}

// NewOpenAIClient builds a client from settings.
func NewOpenAIClient(cfg Settings) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("generation api key missing")
	}
	if cfg.Model == "" {
		return nil, errors.New("generation model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &OpenAIClient{
		model:   cfg.Model,
		timeout: timeout,
		client:  openai.NewClient(opts...),
	}, nil
}

// Invoke sends one chat completion request with a bounded deadline and
// maps SDK failures onto the package's typed errors.
func (c *OpenAIClient) Invoke(ctx context.Context, p Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.System),
			openai.UserMessage(p.User),
		},
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrServiceUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

// classify converts SDK errors into the package's taxonomy so the retry
// predicate upstream can branch on them.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrServiceTimeout, err)
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %v", &StatusError{Code: apiErr.StatusCode}, err)
	}
	return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
}
