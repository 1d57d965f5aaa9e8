package models

import "strings"

// DetectProvider infers the provider tag from a model name using naming
// conventions. Configured provider mappings take precedence over this; it is
// the fallback for models absent from the catalog.
func DetectProvider(model string) string {
	if model == "" {
		return "unknown"
	}
	ml := strings.ToLower(model)

	// Ollama-style "name:tag" identifiers (gemma3:4b, qwen3:1.7b).
	if strings.Contains(ml, ":") {
		return "ollama"
	}

	if strings.Contains(ml, "gpt-") || strings.Contains(ml, "davinci") ||
		strings.Contains(ml, "o1") || strings.Contains(ml, "o3") {
		return "openai"
	}
	if strings.Contains(ml, "claude") || strings.Contains(ml, "opus") ||
		strings.Contains(ml, "sonnet") || strings.Contains(ml, "haiku") {
		return "anthropic"
	}
	if strings.Contains(ml, "gemini") || strings.Contains(ml, "gemma") {
		return "google"
	}
	// Local-first models served by an Ollama daemon.
	if strings.Contains(ml, "deepseek") || strings.Contains(ml, "qwen") ||
		strings.Contains(ml, "llama") || strings.Contains(ml, "mistral") ||
		strings.Contains(ml, "mixtral") || strings.Contains(ml, "phi") {
		return "ollama"
	}
	return "unknown"
}
