package runner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"

	"siecore/apps/console/internal/domain"
	"siecore/apps/console/internal/provider"
)

type fakeGeminiModels struct {
	model  string
	config *genai.GenerateContentConfig
	reply  string
	err    error
}

func (f *fakeGeminiModels) GenerateContent(_ context.Context, model string, _ []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.reply}}},
		}},
	}, nil
}

func TestGenerateOpenAICompatibleSuccess(t *testing.T) {
	t.Parallel()
	var auth string
	var model string
	var roles []string

	mock := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req openAIChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		model = req.Model
		for _, msg := range req.Messages {
			roles = append(roles, msg.Role)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"actionType\":\"EXPLAIN\"}"}}]}`))
	}))
	defer mock.Close()

	r := New(Options{
		HTTPClient: mock.Client(),
		Overrides: provider.Overrides{
			BaseURL: map[domain.Provider]string{domain.ProviderDeepSeek: mock.URL},
		},
	})
	got, err := r.Generate(context.Background(), domain.Credential{Provider: domain.ProviderDeepSeek, KeyValue: "sk-test"}, Prompt{System: "sys", User: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"actionType":"EXPLAIN"}` {
		t.Fatalf("unexpected reply: %s", got)
	}
	if auth != "Bearer sk-test" {
		t.Fatalf("authorization=%q", auth)
	}
	if model != "deepseek-chat" {
		t.Fatalf("model=%q want=deepseek-chat", model)
	}
	if strings.Join(roles, ",") != "system,user" {
		t.Fatalf("roles=%v", roles)
	}
}

func TestGenerateOpenAICompatibleNon2xx(t *testing.T) {
	t.Parallel()
	mock := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"quota"}`))
	}))
	defer mock.Close()

	r := New(Options{
		HTTPClient: mock.Client(),
		Overrides: provider.Overrides{
			BaseURL: map[domain.Provider]string{domain.ProviderOpenRouter: mock.URL},
		},
	})
	_, err := r.Generate(context.Background(), domain.Credential{Provider: domain.ProviderOpenRouter, KeyValue: "k"}, Prompt{User: "hi"})
	var runnerErr *RunnerError
	if !errors.As(err, &runnerErr) {
		t.Fatalf("expected RunnerError, got=%v", err)
	}
	if runnerErr.Code != ErrorCodeProviderRequestFailed {
		t.Fatalf("code=%q", runnerErr.Code)
	}
	if !strings.Contains(runnerErr.Message, "429") {
		t.Fatalf("message=%q", runnerErr.Message)
	}
}

func TestGenerateOpenAICompatibleEmptyChoices(t *testing.T) {
	t.Parallel()
	mock := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer mock.Close()

	r := New(Options{
		HTTPClient: mock.Client(),
		Overrides: provider.Overrides{
			BaseURL: map[domain.Provider]string{domain.ProviderDeepSeek: mock.URL},
		},
	})
	_, err := r.Generate(context.Background(), domain.Credential{Provider: domain.ProviderDeepSeek, KeyValue: "k"}, Prompt{User: "hi"})
	var runnerErr *RunnerError
	if !errors.As(err, &runnerErr) || runnerErr.Code != ErrorCodeProviderInvalidReply {
		t.Fatalf("expected invalid reply error, got=%v", err)
	}
}

func TestGenerateGeminiUsesJSONResponse(t *testing.T) {
	t.Parallel()
	fake := &fakeGeminiModels{reply: `{"actionType":"EXPLAIN","message":"ok"}`}
	var gotKey string
	r := New(Options{GeminiFactory: func(_ context.Context, apiKey string) (GeminiModels, error) {
		gotKey = apiKey
		return fake, nil
	}})

	got, err := r.Generate(context.Background(), domain.Credential{Provider: domain.ProviderGemini, KeyValue: " AIza-key "}, Prompt{System: "sys", User: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != fake.reply {
		t.Fatalf("reply=%q", got)
	}
	if gotKey != "AIza-key" {
		t.Fatalf("api key=%q", gotKey)
	}
	if fake.model != "gemini-2.5-flash" {
		t.Fatalf("model=%q", fake.model)
	}
	if fake.config == nil || fake.config.ResponseMIMEType != "application/json" {
		t.Fatalf("expected json response mime type, got=%+v", fake.config)
	}
	if fake.config.SystemInstruction == nil {
		t.Fatalf("expected system instruction")
	}
}

func TestGenerateGeminiError(t *testing.T) {
	t.Parallel()
	fake := &fakeGeminiModels{err: errors.New("quota exceeded")}
	r := New(Options{GeminiFactory: func(context.Context, string) (GeminiModels, error) { return fake, nil }})

	_, err := r.Generate(context.Background(), domain.Credential{Provider: domain.ProviderGemini, KeyValue: "k"}, Prompt{User: "hi"})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected wrapped gemini error, got=%v", err)
	}
}

func TestGenerateUnsupportedProvider(t *testing.T) {
	t.Parallel()
	r := New(Options{})
	for _, id := range []domain.Provider{domain.ProviderHuggingFace, domain.ProviderOther, "MISTRAL"} {
		_, err := r.Generate(context.Background(), domain.Credential{Provider: id, KeyValue: "k"}, Prompt{User: "hi"})
		if !errors.Is(err, ErrProviderNotSupported) {
			t.Fatalf("provider=%s err=%v want=%v", id, err, ErrProviderNotSupported)
		}
	}
}

func TestGenerateRequiresKey(t *testing.T) {
	t.Parallel()
	r := New(Options{})
	_, err := r.Generate(context.Background(), domain.Credential{Provider: domain.ProviderGemini}, Prompt{User: "hi"})
	var runnerErr *RunnerError
	if !errors.As(err, &runnerErr) || runnerErr.Code != ErrorCodeProviderNotConfigured {
		t.Fatalf("expected not configured error, got=%v", err)
	}
}

func TestExtractOpenAIContentArray(t *testing.T) {
	t.Parallel()
	raw := json.RawMessage(`[{"type":"text","text":"a"},{"type":"image","text":"x"},{"type":"text","text":"b"}]`)
	if got := extractOpenAIContent(raw); got != "a\nb" {
		t.Fatalf("content=%q", got)
	}
}
