package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"siecore/apps/console/internal/credential"
	"siecore/apps/console/internal/domain"
	"siecore/apps/console/internal/repo"
	"siecore/apps/console/internal/runner"
)

func newTestRegistry(t *testing.T) *credential.Registry {
	t.Helper()
	store, err := repo.Open(":memory:")
	if err != nil {
		t.Fatalf("open store failed: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return credential.NewRegistry(credential.Dependencies{Store: store})
}

func seedCandidates(t *testing.T, reg *credential.Registry, providers ...string) []domain.Credential {
	t.Helper()
	ctx := context.Background()
	for i, p := range providers {
		if _, err := reg.Add(ctx, credential.AddInput{Provider: p, KeyValue: fmt.Sprintf("key-%d", i), Priority: i + 1}); err != nil {
			t.Fatalf("add credential failed: %v", err)
		}
	}
	candidates, err := reg.ActiveOrderedByPriority(ctx)
	if err != nil {
		t.Fatalf("list candidates failed: %v", err)
	}
	return candidates
}

func TestExecuteCascadesUntilSuccess(t *testing.T) {
	reg := newTestRegistry(t)
	candidates := seedCandidates(t, reg, "GEMINI", "OPENROUTER", "DEEPSEEK")
	exec := NewExecutor(reg, time.Second)

	var tried []int64
	got, err := Execute(context.Background(), exec, candidates, func(_ context.Context, cred domain.Credential) (string, error) {
		tried = append(tried, cred.ID)
		if cred.Provider == domain.ProviderDeepSeek {
			return "ok", nil
		}
		return "", fmt.Errorf("quota exceeded for %s", cred.Provider)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Fatalf("result=%q want=ok", got)
	}
	if len(tried) != 3 {
		t.Fatalf("attempts=%d want=3", len(tried))
	}

	ctx := context.Background()
	wantErrors := map[domain.Provider]int64{
		domain.ProviderGemini:     1,
		domain.ProviderOpenRouter: 1,
		domain.ProviderDeepSeek:   0,
	}
	all, err := reg.List(ctx, false)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	for _, cred := range all {
		if cred.ErrorCount != wantErrors[cred.Provider] {
			t.Fatalf("provider=%s error_count=%d want=%d", cred.Provider, cred.ErrorCount, wantErrors[cred.Provider])
		}
		if cred.UsageCount != 1 {
			t.Fatalf("provider=%s usage_count=%d want=1", cred.Provider, cred.UsageCount)
		}
	}
}

func TestExecuteStopsAtFirstSuccess(t *testing.T) {
	reg := newTestRegistry(t)
	candidates := seedCandidates(t, reg, "GEMINI", "OPENROUTER")
	exec := NewExecutor(reg, 0)

	calls := 0
	_, err := Execute(context.Background(), exec, candidates, func(context.Context, domain.Credential) (int, error) {
		calls++
		return 7, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls=%d want=1", calls)
	}
}

func TestExecuteExhaustedKeepsLastError(t *testing.T) {
	reg := newTestRegistry(t)
	candidates := seedCandidates(t, reg, "GEMINI", "OPENROUTER")
	exec := NewExecutor(reg, time.Second)

	_, err := Execute(context.Background(), exec, candidates, func(_ context.Context, cred domain.Credential) (string, error) {
		return "", fmt.Errorf("failure from %s", cred.Provider)
	})
	if !errors.Is(err, ErrCredentialExhausted) {
		t.Fatalf("err=%v want=%v", err, ErrCredentialExhausted)
	}
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got=%T", err)
	}
	if exhausted.Attempts != 2 {
		t.Fatalf("attempts=%d want=2", exhausted.Attempts)
	}
	if !strings.Contains(exhausted.LastErr.Error(), "OPENROUTER") {
		t.Fatalf("last err=%v", exhausted.LastErr)
	}
}

func TestExecuteEmptyCandidates(t *testing.T) {
	reg := newTestRegistry(t)
	exec := NewExecutor(reg, time.Second)

	calls := 0
	_, err := Execute(context.Background(), exec, nil, func(context.Context, domain.Credential) (string, error) {
		calls++
		return "", nil
	})
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) || !errors.Is(err, ErrCredentialExhausted) {
		t.Fatalf("err=%v want exhausted", err)
	}
	if exhausted.Attempts != 0 || calls != 0 {
		t.Fatalf("attempts=%d calls=%d want=0", exhausted.Attempts, calls)
	}
}

func TestExecuteUnsupportedProviderFallsThrough(t *testing.T) {
	reg := newTestRegistry(t)
	candidates := seedCandidates(t, reg, "HUGGINGFACE", "GEMINI")
	exec := NewExecutor(reg, time.Second)

	got, err := Execute(context.Background(), exec, candidates, func(_ context.Context, cred domain.Credential) (string, error) {
		if cred.Provider == domain.ProviderHuggingFace {
			return "", &runner.RunnerError{Code: runner.ErrorCodeProviderNotSupported}
		}
		return "gemini", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "gemini" {
		t.Fatalf("result=%q", got)
	}
}

func TestExecuteAttemptTimeout(t *testing.T) {
	reg := newTestRegistry(t)
	candidates := seedCandidates(t, reg, "GEMINI", "OPENROUTER")
	exec := NewExecutor(reg, 20*time.Millisecond)

	got, err := Execute(context.Background(), exec, candidates, func(ctx context.Context, cred domain.Credential) (string, error) {
		if cred.Provider == domain.ProviderGemini {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "second", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "second" {
		t.Fatalf("result=%q want=second", got)
	}
}

func TestExecuteParentCancellationStops(t *testing.T) {
	reg := newTestRegistry(t)
	candidates := seedCandidates(t, reg, "GEMINI", "OPENROUTER")
	exec := NewExecutor(reg, 0)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := Execute(ctx, exec, candidates, func(context.Context, domain.Credential) (string, error) {
		calls++
		cancel()
		return "", errors.New("interrupted")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want=%v", err, context.Canceled)
	}
	if calls != 1 {
		t.Fatalf("calls=%d want=1", calls)
	}
}
