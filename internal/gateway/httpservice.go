package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPInvoker posts completion requests to a generic LLM service exposing
// POST {base}/completions with a JSON body. It serves provider families that
// sit behind an internal inference gateway rather than a vendor SDK.
type HTTPInvoker struct {
	baseURL string
	http    *http.Client
}

// NewHTTPInvoker creates an invoker for the service at baseURL.
func NewHTTPInvoker(baseURL string, timeout time.Duration) *HTTPInvoker {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPInvoker{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type completionRequest struct {
	Model      string                 `json:"model"`
	Prompt     string                 `json:"prompt"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

type completionResponse struct {
	Text      string `json:"text"`
	ModelUsed string `json:"model_used,omitempty"`
}

// Invoke posts the prompt and decodes the completion text.
func (h *HTTPInvoker) Invoke(ctx context.Context, prompt, model string, params map[string]interface{}) (string, error) {
	payload := completionRequest{Model: model, Prompt: prompt, Parameters: params}
	buf, _ := json.Marshal(payload)

	url := fmt.Sprintf("%s/completions", h.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("completion http status %d: %s", resp.StatusCode, string(body))
	}

	var cr completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	return cr.Text, nil
}
