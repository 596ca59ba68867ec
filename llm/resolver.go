package llm

import (
	"fmt"
	"strings"

	"chatrelay/common"
)

// ResolvedModel is a provider's concrete allow-listed model id plus the
// runtime parameters to call it with.
type ResolvedModel struct {
	Provider    string
	Model       string
	Temperature float32
	MaxTokens   int
}

// ResolveModel maps an optional requested model name to an allow-listed
// concrete model for the provider. An absent model resolves to the provider's
// default; a present one must case-insensitively match the default or the
// fallback and resolves to its canonical casing. Anything else fails
// UNSUPPORTED_MODEL with the full set of valid choices. Pure lookup, no I/O.
func ResolveModel(provider string, config common.ProviderConfig, requestedModel string) (ResolvedModel, error) {
	resolved := ResolvedModel{
		Provider:    provider,
		Model:       config.Default,
		Temperature: config.Temperature,
		MaxTokens:   config.MaxTokens,
	}

	if requestedModel == "" {
		return resolved, nil
	}

	for _, allowed := range config.AllowedModels() {
		if strings.EqualFold(requestedModel, allowed) {
			resolved.Model = allowed
			return resolved, nil
		}
	}

	return ResolvedModel{}, &ProviderError{
		Code: CodeUnsupportedModel,
		Message: fmt.Sprintf("model %q is not valid for %s; valid models are: %s",
			requestedModel, provider, strings.Join(config.AllowedModels(), ", ")),
	}
}
