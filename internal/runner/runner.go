package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"siecore/apps/console/internal/domain"
	"siecore/apps/console/internal/provider"
)

const (
	ErrorCodeProviderNotConfigured = "provider_not_configured"
	ErrorCodeProviderNotSupported  = "provider_not_supported"
	ErrorCodeProviderRequestFailed = "provider_request_failed"
	ErrorCodeProviderInvalidReply  = "provider_invalid_reply"

	maxResponseBytes = 2 * 1024 * 1024
)

var ErrProviderNotSupported = errors.New(ErrorCodeProviderNotSupported)

type RunnerError struct {
	Code    string
	Message string
	Err     error
}

func (e *RunnerError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func (e *RunnerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *RunnerError) Is(target error) bool {
	return e != nil && target == ErrProviderNotSupported && e.Code == ErrorCodeProviderNotSupported
}

// Prompt is one stateless request: a fixed system instruction plus the user turn.
type Prompt struct {
	System string
	User   string
}

// Driver calls one provider with one credential and returns the raw reply text.
type Driver interface {
	Generate(ctx context.Context, cred domain.Credential, prompt Prompt) (string, error)
}

// GeminiModels is the slice of the genai client the runner needs.
type GeminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type GeminiFactory func(ctx context.Context, apiKey string) (GeminiModels, error)

type Options struct {
	HTTPClient    *http.Client
	GeminiFactory GeminiFactory
	Overrides     provider.Overrides
}

type Runner struct {
	httpClient    *http.Client
	geminiFactory GeminiFactory
	overrides     provider.Overrides
}

func New(opts Options) *Runner {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.GeminiFactory == nil {
		opts.GeminiFactory = newGeminiModels
	}
	return &Runner{
		httpClient:    opts.HTTPClient,
		geminiFactory: opts.GeminiFactory,
		overrides:     opts.Overrides,
	}
}

func newGeminiModels(ctx context.Context, apiKey string) (GeminiModels, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return client.Models, nil
}

func (r *Runner) Generate(ctx context.Context, cred domain.Credential, prompt Prompt) (string, error) {
	apiKey := strings.TrimSpace(cred.KeyValue)
	if apiKey == "" {
		return "", &RunnerError{Code: ErrorCodeProviderNotConfigured, Message: "credential key is empty"}
	}
	spec := provider.ResolveProvider(cred.Provider)
	switch spec.Adapter {
	case provider.AdapterGemini:
		return r.generateGemini(ctx, spec, apiKey, prompt)
	case provider.AdapterOpenAICompatible:
		return r.generateOpenAICompatible(ctx, spec, apiKey, prompt)
	default:
		return "", &RunnerError{
			Code:    ErrorCodeProviderNotSupported,
			Message: fmt.Sprintf("provider %q is not supported", spec.ID),
		}
	}
}

func (r *Runner) generateGemini(ctx context.Context, spec provider.ProviderSpec, apiKey string, prompt Prompt) (string, error) {
	models, err := r.geminiFactory(ctx, apiKey)
	if err != nil {
		return "", &RunnerError{Code: ErrorCodeProviderRequestFailed, Message: "failed to create gemini client", Err: err}
	}
	config := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	if system := strings.TrimSpace(prompt.System); system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	model := provider.ResolveModel(spec.ID, r.overrides)
	resp, err := models.GenerateContent(ctx, model, genai.Text(prompt.User), config)
	if err != nil {
		return "", &RunnerError{Code: ErrorCodeProviderRequestFailed, Message: "gemini request failed: " + truncateText(err.Error(), 300), Err: err}
	}
	if resp == nil {
		return "", &RunnerError{Code: ErrorCodeProviderInvalidReply, Message: "provider response is empty"}
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &RunnerError{Code: ErrorCodeProviderInvalidReply, Message: "provider response has empty content"}
	}
	return text, nil
}

func (r *Runner) generateOpenAICompatible(ctx context.Context, spec provider.ProviderSpec, apiKey string, prompt Prompt) (string, error) {
	baseURL := provider.ResolveBaseURL(spec.ID, r.overrides)
	if baseURL == "" {
		return "", &RunnerError{Code: ErrorCodeProviderNotConfigured, Message: "provider base_url is required"}
	}
	messages := make([]openAIMessage, 0, 2)
	if system := strings.TrimSpace(prompt.System); system != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: system})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: prompt.User})
	payload := openAIChatRequest{
		Model:          provider.ResolveModel(spec.ID, r.overrides),
		Messages:       messages,
		ResponseFormat: &openAIResponseFormat{Type: "json_object"},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &RunnerError{Code: ErrorCodeProviderRequestFailed, Message: "failed to encode provider request", Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &RunnerError{Code: ErrorCodeProviderRequestFailed, Message: "failed to create provider request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return "", &RunnerError{Code: ErrorCodeProviderRequestFailed, Message: "provider request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &RunnerError{Code: ErrorCodeProviderRequestFailed, Message: "failed to read provider response", Err: err}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", &RunnerError{
			Code:    ErrorCodeProviderRequestFailed,
			Message: fmt.Sprintf("provider returned status %d: %s", resp.StatusCode, truncateText(strings.TrimSpace(string(respBody)), 300)),
		}
	}

	var completion openAIChatResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return "", &RunnerError{Code: ErrorCodeProviderInvalidReply, Message: "provider response is not valid json", Err: err}
	}
	if len(completion.Choices) == 0 {
		return "", &RunnerError{Code: ErrorCodeProviderInvalidReply, Message: "provider response has no choices"}
	}
	text := strings.TrimSpace(extractOpenAIContent(completion.Choices[0].Message.Content))
	if text == "" {
		return "", &RunnerError{Code: ErrorCodeProviderInvalidReply, Message: "provider response has empty content"}
	}
	return text, nil
}

type openAIChatRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	ID      string `json:"id,omitempty"`
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func extractOpenAIContent(raw json.RawMessage) string {
	var direct string
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct
	}
	var arr []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &arr); err == nil {
		parts := make([]string, 0, len(arr))
		for _, item := range arr {
			if item.Type != "text" {
				continue
			}
			text := strings.TrimSpace(item.Text)
			if text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

func truncateText(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "...(truncated)"
}
