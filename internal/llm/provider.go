// Package llm wraps the language model behind the conversation: question
// generation, transcript extraction, wait messages, and allergy report
// vision analysis. A Provider is a thin text-in/text-out adapter over one
// vendor SDK; the Client on top owns prompts, models, and time budgets.
package llm

import (
	"context"
	"fmt"
	"sync"
)

// GenerateRequest is a single model invocation.
type GenerateRequest struct {
	// Model is the vendor model name.
	Model string
	// SystemPrompt frames the task.
	SystemPrompt string
	// UserText is the context payload (transcript, patient JSON).
	UserText string
	// Image, when set, is attached inline for vision analysis.
	Image *ImageData
	// JSON forces a JSON-object response where the vendor supports it.
	JSON bool
	// Temperature is the sampling temperature.
	Temperature float32
	// MaxTokens caps the response length. Zero means provider default.
	MaxTokens int32
}

// ImageData is a fetched image ready to attach to a request.
type ImageData struct {
	MIMEType string
	Data     []byte
}

// Provider is one vendor backend.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// GenerateText runs a single generation and returns the response
	// text. The context deadline is the call's time budget.
	GenerateText(ctx context.Context, req GenerateRequest) (string, error)

	// Close releases provider resources.
	Close() error
}

// ErrorCode classifies provider failures.
type ErrorCode string

const (
	ErrorCodeAuthentication ErrorCode = "authentication"
	ErrorCodeRateLimit      ErrorCode = "rate_limit"
	ErrorCodeInvalidRequest ErrorCode = "invalid_request"
	ErrorCodeTimeout        ErrorCode = "timeout"
	ErrorCodeServerError    ErrorCode = "server_error"
	ErrorCodeUnknown        ErrorCode = "unknown"
)

// ProviderError wraps a vendor error with a classification.
type ProviderError struct {
	Provider      string
	Code          ErrorCode
	Message       string
	OriginalError error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error (%s): %s", e.Provider, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.OriginalError
}

// NewProviderError creates a classified provider error.
func NewProviderError(provider string, code ErrorCode, message string, original error) *ProviderError {
	return &ProviderError{
		Provider:      provider,
		Code:          code,
		Message:       message,
		OriginalError: original,
	}
}

// Factory builds a provider from its configuration map.
type Factory func(config map[string]any) (Provider, error)

var (
	factoryMu sync.RWMutex
	factories = make(map[string]Factory)
)

// RegisterFactory registers a provider factory under a name.
func RegisterFactory(name string, factory Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[name] = factory
}

// NewProvider builds the named provider.
func NewProvider(name string, config map[string]any) (Provider, error) {
	factoryMu.RLock()
	factory, ok := factories[name]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider '%s' not found", name)
	}
	return factory(config)
}

// Providers lists the registered provider names.
func Providers() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}

func configString(config map[string]any, key string) string {
	if v, ok := config[key].(string); ok {
		return v
	}
	return ""
}
