package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	olla "github.com/ollama/ollama/api"
)

// OllamaInvoker executes prompts against a local Ollama daemon.
type OllamaInvoker struct {
	client *olla.Client
}

// NewOllamaInvoker creates an invoker for the daemon at baseURL (default
// http://localhost:11434). The timeout bounds each generate call.
func NewOllamaInvoker(baseURL string, timeout time.Duration) (*OllamaInvoker, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base URL: %w", err)
	}
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	hc := &http.Client{Timeout: timeout}
	return &OllamaInvoker{client: olla.NewClient(parsed, hc)}, nil
}

// Invoke runs a non-streaming generation and returns the full response text.
func (o *OllamaInvoker) Invoke(ctx context.Context, prompt, model string, params map[string]interface{}) (string, error) {
	stream := false
	req := &olla.GenerateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: &stream,
	}
	if len(params) > 0 {
		// Ollama takes sampling knobs (temperature, num_predict, ...) as
		// free-form options.
		opts := make(map[string]interface{}, len(params))
		for k, v := range params {
			opts[k] = v
		}
		req.Options = opts
	}

	var out string
	err := o.client.Generate(ctx, req, func(resp olla.GenerateResponse) error {
		out += resp.Response
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return out, nil
}
