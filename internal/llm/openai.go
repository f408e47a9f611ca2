package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

func init() {
	RegisterFactory("openai", func(config map[string]any) (Provider, error) {
		apiKey := configString(config, "api_key")
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}
		return NewOpenAIProvider(apiKey, configString(config, "base_url")), nil
	})
}

// OpenAIProvider implements Provider on the OpenAI chat completions API.
// Also covers OpenAI-compatible endpoints via a custom base URL.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates an OpenAI provider.
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(config)}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// GenerateText runs a single chat completion. Images travel as base64
// data URLs in a multi-content user message.
func (p *OpenAIProvider) GenerateText(ctx context.Context, req GenerateRequest) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
	}

	if req.Image != nil {
		dataURL := fmt.Sprintf("data:%s;base64,%s",
			req.Image.MIMEType, base64.StdEncoding.EncodeToString(req.Image.Data))
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURL,
					Detail: openai.ImageURLDetailAuto,
				}},
			},
		})
	} else {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserText,
		})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = int(req.MaxTokens)
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", p.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", NewProviderError("openai", ErrorCodeUnknown, "no choices in response", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

// Close implements Provider.
func (p *OpenAIProvider) Close() error {
	return nil
}

func (p *OpenAIProvider) wrapError(err error) error {
	code := ErrorCodeUnknown

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			code = ErrorCodeAuthentication
		case 429:
			code = ErrorCodeRateLimit
		case 400, 404:
			code = ErrorCodeInvalidRequest
		default:
			if apiErr.HTTPStatusCode >= 500 {
				code = ErrorCodeServerError
			}
		}
	} else if strings.Contains(strings.ToLower(err.Error()), "deadline") ||
		strings.Contains(strings.ToLower(err.Error()), "timeout") {
		code = ErrorCodeTimeout
	}

	return NewProviderError("openai", code, err.Error(), err)
}
