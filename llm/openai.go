package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"

	"chatrelay/chat"
)

const openaiApiKeySecretName = "OPENAI_API_KEY"

// OpenAIProvider adapts the OpenAI chat completions API.
type OpenAIProvider struct {
	apiKey  string
	BaseURL string
}

func (p *OpenAIProvider) client() openai.Client {
	httpClient := &http.Client{Timeout: 10 * time.Minute}
	clientOptions := []option.RequestOption{
		option.WithAPIKey(p.apiKey),
		option.WithHTTPClient(httpClient),
	}
	if p.BaseURL != "" {
		clientOptions = append(clientOptions, option.WithBaseURL(p.BaseURL))
	}
	return openai.NewClient(clientOptions...)
}

func (p *OpenAIProvider) params(request Request) (openai.ChatCompletionNewParams, error) {
	messages, err := messagesToOpenaiParams(request.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	params := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       shared.ChatModel(request.Model.Model),
		Temperature: openai.Float(float64(request.Model.Temperature)),
	}
	if request.Model.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(request.Model.MaxTokens))
	}
	return params, nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, request Request, deltaChan chan<- Delta) error {
	params, err := p.params(request)
	if err != nil {
		return err
	}

	client := p.client()
	stream := client.Chat.Completions.NewStreaming(ctx, params)

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if err := sendDelta(ctx, deltaChan, chunk.Choices[0].Delta.Content); err != nil {
			return err
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai stream failed: %w", err)
	}
	return nil
}

func (p *OpenAIProvider) Invoke(ctx context.Context, request Request) (string, error) {
	params, err := p.params(request)
	if err != nil {
		return "", err
	}

	client := p.client()
	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", nil
	}
	return completion.Choices[0].Message.Content, nil
}

func messagesToOpenaiParams(messages []chat.ChatMessage) ([]openai.ChatCompletionMessageParamUnion, error) {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			params = append(params, openai.UserMessage(msg.Content))
		case chat.RoleAssistant:
			params = append(params, openai.AssistantMessage(msg.Content))
		case chat.RoleSystem:
			params = append(params, openai.SystemMessage(msg.Content))
		default:
			return nil, invalidRole(msg.Role)
		}
	}
	return params, nil
}
