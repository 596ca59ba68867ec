package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"chatrelay/chat"
)

const anthropicApiKeySecretName = "ANTHROPIC_API_KEY"

// AnthropicProvider adapts the Anthropic messages API.
type AnthropicProvider struct {
	apiKey string
}

func (p *AnthropicProvider) client() anthropic.Client {
	httpClient := &http.Client{Timeout: 10 * time.Minute}
	return anthropic.NewClient(
		option.WithAPIKey(p.apiKey),
		option.WithHTTPClient(httpClient),
	)
}

func (p *AnthropicProvider) params(request Request) (anthropic.MessageNewParams, error) {
	messages, system, err := messagesToAnthropicParams(request.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(request.Model.Model),
		MaxTokens:   int64(request.Model.MaxTokens),
		Messages:    messages,
		Temperature: anthropic.Float(float64(request.Model.Temperature)),
	}
	if len(system) > 0 {
		params.System = system
	}
	return params, nil
}

func (p *AnthropicProvider) Stream(ctx context.Context, request Request, deltaChan chan<- Delta) error {
	params, err := p.params(request)
	if err != nil {
		return err
	}

	client := p.client()
	stream := client.Messages.NewStreaming(ctx, params)

	for stream.Next() {
		event := stream.Current()
		switch evt := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if err := sendDelta(ctx, deltaChan, delta.Text); err != nil {
					return err
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("anthropic stream failed: %w", err)
	}
	return nil
}

func (p *AnthropicProvider) Invoke(ctx context.Context, request Request) (string, error) {
	params, err := p.params(request)
	if err != nil {
		return "", err
	}

	client := p.client()
	message, err := client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic completion failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	return sb.String(), nil
}

// messagesToAnthropicParams splits a conversation into alternating turns and
// system instruction blocks; the messages API takes system prompts out of
// band.
func messagesToAnthropicParams(messages []chat.ChatMessage) ([]anthropic.MessageParam, []anthropic.TextBlockParam, error) {
	params := make([]anthropic.MessageParam, 0, len(messages))
	var system []anthropic.TextBlockParam

	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case chat.RoleAssistant:
			params = append(params, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		case chat.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		default:
			return nil, nil, invalidRole(msg.Role)
		}
	}
	return params, system, nil
}
