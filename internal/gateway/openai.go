package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIInvoker executes prompts through the OpenAI chat completions API.
type OpenAIInvoker struct {
	client openai.Client
}

// NewOpenAIInvoker creates an invoker. baseURL is optional and supports
// OpenAI-compatible endpoints.
func NewOpenAIInvoker(apiKey, baseURL string, timeout time.Duration) *OpenAIInvoker {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &OpenAIInvoker{client: openai.NewClient(opts...)}
}

// Invoke sends the prompt as a single user message and returns the first
// choice's content.
func (o *OpenAIInvoker) Invoke(ctx context.Context, prompt, model string, params map[string]interface{}) (string, error) {
	req := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if t, ok := floatParam(params, "temperature"); ok {
		req.Temperature = openai.Float(t)
	}
	if n, ok := intParam(params, "max_tokens"); ok {
		req.MaxTokens = openai.Int(n)
	}

	resp, err := o.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion: empty choices for model %s", model)
	}
	return resp.Choices[0].Message.Content, nil
}

func floatParam(params map[string]interface{}, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

func intParam(params map[string]interface{}, key string) (int64, bool) {
	switch v := params[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}
