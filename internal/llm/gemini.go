package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"
)

const geminiClientTimeout = 30 * time.Second

func init() {
	RegisterFactory("gemini", func(config map[string]any) (Provider, error) {
		apiKey := configString(config, "api_key")
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY not set")
		}
		return NewGeminiProvider(apiKey)
	})
}

// GeminiProvider implements Provider on the Gemini API via the Gen AI SDK.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a Gemini provider authenticated by API key.
func NewGeminiProvider(apiKey string) (*GeminiProvider, error) {
	ctx, cancel := context.WithTimeout(context.Background(), geminiClientTimeout)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{client: client}, nil
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// GenerateText runs a single generation. Text requests carry the system
// prompt as a primed user/model exchange; vision requests attach the
// image inline next to the prompt.
func (p *GeminiProvider) GenerateText(ctx context.Context, req GenerateRequest) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = req.MaxTokens
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}

	var contents []*genai.Content
	if req.Image != nil {
		contents = []*genai.Content{{
			Role: "user",
			Parts: []*genai.Part{
				{Text: req.SystemPrompt},
				{InlineData: &genai.Blob{MIMEType: req.Image.MIMEType, Data: req.Image.Data}},
			},
		}}
	} else {
		contents = []*genai.Content{
			{Role: "user", Parts: []*genai.Part{{Text: req.SystemPrompt}}},
			{Role: "model", Parts: []*genai.Part{{Text: "OK"}}},
			{Role: "user", Parts: []*genai.Part{{Text: req.UserText}}},
		}
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return "", p.wrapError(err)
	}

	text := responseText(resp)
	if text == "" {
		return "", NewProviderError("gemini", ErrorCodeUnknown, "no text in response", nil)
	}
	return text, nil
}

// Close implements Provider. The genai client manages its own transport.
func (p *GeminiProvider) Close() error {
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

func (p *GeminiProvider) wrapError(err error) error {
	code := ErrorCodeUnknown
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "api key") || strings.Contains(msg, "credential"):
		code = ErrorCodeAuthentication
	case strings.Contains(msg, "429") || strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit"):
		code = ErrorCodeRateLimit
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid"):
		code = ErrorCodeInvalidRequest
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		code = ErrorCodeTimeout
	case strings.Contains(msg, "500") || strings.Contains(msg, "503") ||
		strings.Contains(msg, "server"):
		code = ErrorCodeServerError
	}
	return NewProviderError("gemini", code, err.Error(), err)
}
