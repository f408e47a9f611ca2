package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/drlike/asthmabot/internal/report"
	"github.com/drlike/asthmabot/internal/schema"
	"github.com/drlike/asthmabot/pkg/observability"
)

// DefaultWaitMessage is the fallback when wait message generation fails
// or exceeds its budget.
const DefaultWaitMessage = "네, 말씀해주신 내용을 분석하고 있어요. 잠시만 기다려주세요! 🤖"

// Models names the model per operation.
type Models struct {
	Question   string
	Extraction string
	Wait       string
	Vision     string
}

// DefaultModels returns the production model assignment.
func DefaultModels() Models {
	return Models{
		Question:   "gemini-2.5-flash-lite",
		Extraction: "gemini-2.5-flash",
		Wait:       "gemini-2.5-flash-lite",
		Vision:     "gemini-2.5-flash",
	}
}

// Timeouts caps each operation. The wait message budget is tight: Kakao
// expects the synchronous ack within about five seconds.
type Timeouts struct {
	Question   time.Duration
	Extraction time.Duration
	Wait       time.Duration
	Vision     time.Duration
}

// DefaultTimeouts returns the production time budgets.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Question:   25 * time.Second,
		Extraction: 25 * time.Second,
		Wait:       3800 * time.Millisecond,
		Vision:     60 * time.Second,
	}
}

// Client implements the conversation's LLM operations on a Provider.
type Client struct {
	provider   Provider
	models     Models
	timeouts   Timeouts
	httpClient *http.Client
}

// NewClient creates a client over the given provider.
func NewClient(provider Provider, models Models, timeouts Timeouts) *Client {
	return &Client{
		provider:   provider,
		models:     models,
		timeouts:   timeouts,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// generate runs one provider call with a span and call metrics around
// it.
func (c *Client) generate(ctx context.Context, operation string, req GenerateRequest) (string, error) {
	ctx, span := observability.StartSpan(ctx, "llm."+operation)
	defer span.End()

	start := time.Now()
	text, err := c.provider.GenerateText(ctx, req)

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
	}
	observability.RecordLLMCall(c.provider.Name(), operation, status, time.Since(start))
	return text, err
}

// GenerateNextQuestion produces the next conversational question from
// the transcript and the known patient fields.
func (c *Client) GenerateNextQuestion(ctx context.Context, history []string, extracted schema.ExtractedData) (string, error) {
	patientJSON, err := json.MarshalIndent(extracted, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal patient data: %w", err)
	}
	userText := fmt.Sprintf("---대화 기록 시작---\n%s\n---대화 기록 끝---\n\n[현재까지 분석된 환자 정보]\n%s",
		strings.Join(history, "\n"), patientJSON)

	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Question)
	defer cancel()

	text, err := c.generate(ctx, "question", GenerateRequest{
		Model:        c.models.Question,
		SystemPrompt: systemPromptGenerateQuestion,
		UserText:     userText,
		Temperature:  0.7,
		MaxTokens:    8192,
	})
	if err != nil {
		return "", fmt.Errorf("generate question: %w", err)
	}
	return strings.TrimSpace(stripCodeFence(text)), nil
}

// AnalyzeConversation extracts the full symptom map from a transcript.
// Every vocabulary field is present in the result; unknown keys from the
// model are dropped, missing fields read as null.
func (c *Client) AnalyzeConversation(ctx context.Context, history []string) (schema.ExtractedData, error) {
	userText := fmt.Sprintf("다음은 분석할 대화록입니다:\n\n%s", strings.Join(history, "\n"))

	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Extraction)
	defer cancel()

	text, err := c.generate(ctx, "extraction", GenerateRequest{
		Model:        c.models.Extraction,
		SystemPrompt: systemPromptAnalyzeComprehensive,
		UserText:     userText,
		JSON:         true,
		Temperature:  0.7,
		MaxTokens:    8192,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze conversation: %w", err)
	}

	var raw map[string]any
	if err := unmarshalSalvaged(text, &raw); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}

	extracted := schema.NewExtractedData()
	for k, v := range raw {
		if schema.IsField(k) {
			extracted[k] = v
		}
	}
	return extracted, nil
}

// GenerateWaitMessage produces the short ack shown while analysis runs.
// Never fails: any error falls back to the default message.
func (c *Client) GenerateWaitMessage(ctx context.Context, history []string) string {
	userText := fmt.Sprintf("---대화 기록---\n%s", strings.Join(history, "\n"))

	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Wait)
	defer cancel()

	text, err := c.generate(ctx, "wait", GenerateRequest{
		Model:        c.models.Wait,
		SystemPrompt: systemPromptWaitMessage,
		UserText:     userText,
		JSON:         true,
		Temperature:  0.7,
		MaxTokens:    8192,
	})
	if err != nil {
		log.Printf("[Wait Message] generation failed, using default: %v", err)
		return DefaultWaitMessage
	}

	var parsed struct {
		WaitText string `json:"wait_text"`
	}
	if err := unmarshalSalvaged(text, &parsed); err != nil || parsed.WaitText == "" {
		log.Printf("[Wait Message] unparseable response, using default")
		return DefaultWaitMessage
	}
	return parsed.WaitText
}

// AnalyzeAllergyImage reads an allergy test report image into a
// structured detail record.
func (c *Client) AnalyzeAllergyImage(ctx context.Context, imageURL string) (*report.AllergyTestDetail, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.timeouts.Vision)
	defer cancel()

	image, err := fetchImage(fetchCtx, c.httpClient, imageURL)
	if err != nil {
		return nil, err
	}

	log.Printf("[Vision] Requesting allergy report analysis")
	text, err := c.generate(fetchCtx, "vision", GenerateRequest{
		Model:        c.models.Vision,
		SystemPrompt: systemPromptAnalyzeAllergyImage,
		Image:        image,
		JSON:         true,
		Temperature:  0.2,
		MaxTokens:    2048,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze allergy image: %w", err)
	}

	var detail report.AllergyTestDetail
	if err := unmarshalSalvaged(text, &detail); err != nil {
		return nil, fmt.Errorf("parse vision response: %w", err)
	}
	return &detail, nil
}

// Close releases the underlying provider.
func (c *Client) Close() error {
	return c.provider.Close()
}

// unmarshalSalvaged decodes JSON, retrying on the outermost brace pair
// when the model wrapped the object in prose or a code fence.
func unmarshalSalvaged(text string, v any) error {
	text = stripCodeFence(text)
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in response")
	}
	return json.Unmarshal([]byte(text[start:end+1]), v)
}

func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
