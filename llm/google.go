package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"chatrelay/chat"
)

const (
	googleApiKeySecretName = "GOOGLE_API_KEY"
	geminiApiKeySecretName = "GEMINI_API_KEY"
)

// GoogleProvider adapts the Gemini API via the genai SDK.
type GoogleProvider struct {
	apiKey string
}

func (p *GoogleProvider) client(ctx context.Context) (*genai.Client, error) {
	httpClient := &http.Client{Timeout: 10 * time.Minute}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     p.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return client, nil
}

func (p *GoogleProvider) contents(request Request) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	contents, system, err := messagesToGoogleContents(request.Messages)
	if err != nil {
		return nil, nil, err
	}

	temperature := request.Model.Temperature
	config := &genai.GenerateContentConfig{
		Temperature:       &temperature,
		SystemInstruction: system,
	}
	if request.Model.MaxTokens > 0 {
		config.MaxOutputTokens = int32(request.Model.MaxTokens)
	}
	return contents, config, nil
}

func (p *GoogleProvider) Stream(ctx context.Context, request Request, deltaChan chan<- Delta) error {
	contents, config, err := p.contents(request)
	if err != nil {
		return err
	}

	client, err := p.client(ctx)
	if err != nil {
		return err
	}

	stream := client.Models.GenerateContentStream(ctx, request.Model.Model, contents, config)
	for result, err := range stream {
		if err != nil {
			return fmt.Errorf("gemini stream failed: %w", err)
		}
		if err := sendDelta(ctx, deltaChan, result.Text()); err != nil {
			return err
		}
	}
	return nil
}

func (p *GoogleProvider) Invoke(ctx context.Context, request Request) (string, error) {
	contents, config, err := p.contents(request)
	if err != nil {
		return "", err
	}

	client, err := p.client(ctx)
	if err != nil {
		return "", err
	}

	result, err := client.Models.GenerateContent(ctx, request.Model.Model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini completion failed: %w", err)
	}
	return result.Text(), nil
}

// messagesToGoogleContents maps chat turns to gemini contents. The gemini API
// has no system role in the turn sequence; system messages become the
// system instruction.
func messagesToGoogleContents(messages []chat.ChatMessage) ([]*genai.Content, *genai.Content, error) {
	contents := make([]*genai.Content, 0, len(messages))
	var system *genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case chat.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		case chat.RoleSystem:
			if system == nil {
				system = genai.NewContentFromText(msg.Content, "")
			} else {
				system.Parts = append(system.Parts, genai.NewPartFromText(msg.Content))
			}
		default:
			return nil, nil, invalidRole(msg.Role)
		}
	}
	return contents, system, nil
}
