package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"chatrelay/chat"
	"chatrelay/common"
	"chatrelay/secrets"
)

// Error codes surfaced verbatim to clients.
const (
	CodeUnsupportedModel    = "UNSUPPORTED_MODEL"
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
)

// ProviderError carries a stable error code for resolution and provider
// construction failures.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Delta is one incremental fragment of generated text. Empty or
// whitespace-only fragments pass through unfiltered; filtering is the
// orchestrator's concern.
type Delta struct {
	Content string
}

// Request carries a validated conversation and a resolved model to a Provider.
type Request struct {
	Messages []chat.ChatMessage
	Model    ResolvedModel
}

// Provider is the capability interface each language-model backend implements.
//
// Stream sends fragments on deltaChan as they are produced. The channel is
// owned by the caller and MUST NOT be closed by the provider; sends are
// demand-driven (the channel is unbuffered in practice) and must select on ctx
// so an abandoned stream unblocks. Stream returns after the provider's final
// fragment, or with the first error encountered.
//
// Invoke runs the same exchange non-streaming and returns the final text.
type Provider interface {
	Stream(ctx context.Context, request Request, deltaChan chan<- Delta) error
	Invoke(ctx context.Context, request Request) (string, error)
}

// NewProvider constructs the adapter for a named provider. It fails with
// PROVIDER_UNAVAILABLE when the provider's credential is absent, before any
// network call is made.
func NewProvider(name string, secretManager secrets.SecretManager) (Provider, error) {
	switch name {
	case common.ProviderGPT:
		key, err := secretManager.GetSecret(openaiApiKeySecretName)
		if err != nil {
			return nil, unavailable(name, err)
		}
		return &OpenAIProvider{apiKey: key}, nil
	case common.ProviderClaude:
		key, err := secretManager.GetSecret(anthropicApiKeySecretName)
		if err != nil {
			return nil, unavailable(name, err)
		}
		return &AnthropicProvider{apiKey: key}, nil
	case common.ProviderGemini:
		key, err := secretManager.GetSecret(geminiApiKeySecretName)
		if err != nil {
			// Google publishes both names; accept either.
			key, err = secretManager.GetSecret(googleApiKeySecretName)
			if err != nil {
				return nil, unavailable(name, err)
			}
		}
		return &GoogleProvider{apiKey: key}, nil
	default:
		return nil, &ProviderError{
			Code:    CodeProviderUnavailable,
			Message: fmt.Sprintf("unknown provider: %s", name),
		}
	}
}

// unavailable logs the cause (an operator problem, usually a missing
// credential) but surfaces only a generic failure.
func unavailable(name string, err error) error {
	log.Error().Err(err).Str("provider", name).Msg("provider unavailable")
	return &ProviderError{
		Code:    CodeProviderUnavailable,
		Message: fmt.Sprintf("provider %s is not available", name),
	}
}

// sendDelta pushes one fragment, unblocking if the consumer abandons the
// stream.
func sendDelta(ctx context.Context, deltaChan chan<- Delta, content string) error {
	select {
	case deltaChan <- Delta{Content: content}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func invalidRole(role chat.Role) error {
	return &chat.ValidationError{
		Code:    chat.CodeInvalidRole,
		Message: fmt.Sprintf("cannot map message role %q to a provider turn", role),
	}
}
