package credential

import (
	"context"
	"errors"
	"sync"
	"testing"

	"siecore/apps/console/internal/domain"
	"siecore/apps/console/internal/repo"
)

func newTestRegistry(t *testing.T, threshold int) *Registry {
	t.Helper()
	store, err := repo.Open(":memory:")
	if err != nil {
		t.Fatalf("open store failed: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return NewRegistry(Dependencies{Store: store, DeactivationThreshold: threshold})
}

func mustAdd(t *testing.T, reg *Registry, provider string, priority int) domain.Credential {
	t.Helper()
	cred, err := reg.Add(context.Background(), AddInput{Provider: provider, KeyValue: "secret-" + provider, Priority: priority})
	if err != nil {
		t.Fatalf("add credential failed: %v", err)
	}
	return cred
}

func TestAddNormalizesInput(t *testing.T) {
	reg := newTestRegistry(t, 0)
	cred, err := reg.Add(context.Background(), AddInput{Provider: " gemini ", KeyValue: " k1 ", Label: " main "})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if cred.Provider != domain.ProviderGemini {
		t.Fatalf("provider=%q want=%q", cred.Provider, domain.ProviderGemini)
	}
	if cred.KeyValue != "k1" || cred.Label != "main" {
		t.Fatalf("unexpected credential: %+v", cred)
	}
	if cred.Priority != 1 || !cred.IsActive {
		t.Fatalf("defaults not applied: %+v", cred)
	}
	if reg.Threshold() != domain.DefaultDeactivationThreshold {
		t.Fatalf("threshold=%d want=%d", reg.Threshold(), domain.DefaultDeactivationThreshold)
	}
}

func TestAddRejectsEmptyKey(t *testing.T) {
	reg := newTestRegistry(t, 0)
	if _, err := reg.Add(context.Background(), AddInput{Provider: "GEMINI", KeyValue: "  "}); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("err=%v want=%v", err, ErrInvalidCredential)
	}
}

func TestActiveOrderedByPriority(t *testing.T) {
	reg := newTestRegistry(t, 0)
	ctx := context.Background()
	low := mustAdd(t, reg, "GEMINI", 3)
	high := mustAdd(t, reg, "OPENROUTER", 1)
	mid := mustAdd(t, reg, "DEEPSEEK", 2)
	off := mustAdd(t, reg, "GEMINI", 1)
	if _, err := reg.SetActive(ctx, off.ID, false); err != nil {
		t.Fatalf("disable failed: %v", err)
	}

	got, err := reg.ActiveOrderedByPriority(ctx)
	if err != nil {
		t.Fatalf("active list failed: %v", err)
	}
	want := []int64{high.ID, mid.ID, low.ID}
	if len(got) != len(want) {
		t.Fatalf("len=%d want=%d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("position %d id=%d want=%d", i, got[i].ID, want[i])
		}
	}
}

func TestRecordFailureDeactivatesAfterThreshold(t *testing.T) {
	reg := newTestRegistry(t, 10)
	ctx := context.Background()
	cred := mustAdd(t, reg, "GEMINI", 1)

	for i := 1; i <= 10; i++ {
		got, err := reg.RecordFailure(ctx, cred.ID)
		if err != nil {
			t.Fatalf("record failure %d: %v", i, err)
		}
		if !got.IsActive {
			t.Fatalf("deactivated at error_count=%d", got.ErrorCount)
		}
	}
	got, err := reg.RecordFailure(ctx, cred.ID)
	if err != nil {
		t.Fatalf("record failure 11: %v", err)
	}
	if got.IsActive || got.ErrorCount != 11 {
		t.Fatalf("expected inactive with 11 errors, got %+v", got)
	}
	active, err := reg.ActiveOrderedByPriority(ctx)
	if err != nil {
		t.Fatalf("active list failed: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("deactivated credential still listed: %+v", active)
	}
}

func TestRecordFailureConcurrent(t *testing.T) {
	reg := newTestRegistry(t, 5)
	ctx := context.Background()
	cred := mustAdd(t, reg, "GEMINI", 1)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := reg.RecordFailure(ctx, cred.ID); err != nil {
				t.Errorf("record failure: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := reg.Get(ctx, cred.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.ErrorCount != 20 {
		t.Fatalf("error_count=%d want=20", got.ErrorCount)
	}
	if got.IsActive {
		t.Fatalf("expected credential to be inactive")
	}
}

func TestRecordUsageAndRemove(t *testing.T) {
	reg := newTestRegistry(t, 0)
	ctx := context.Background()
	cred := mustAdd(t, reg, "GEMINI", 1)
	if err := reg.RecordUsage(ctx, cred.ID); err != nil {
		t.Fatalf("record usage: %v", err)
	}
	got, err := reg.Get(ctx, cred.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.UsageCount != 1 {
		t.Fatalf("usage_count=%d want=1", got.UsageCount)
	}
	if err := reg.Remove(ctx, cred.ID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, err := reg.Get(ctx, cred.ID); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("err=%v want=%v", err, ErrCredentialNotFound)
	}
}

func TestUpdateRejectsNonPositivePriority(t *testing.T) {
	reg := newTestRegistry(t, 0)
	cred := mustAdd(t, reg, "GEMINI", 1)
	zero := 0
	if _, err := reg.Update(context.Background(), cred.ID, domain.CredentialPatch{Priority: &zero}); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("err=%v want=%v", err, ErrInvalidCredential)
	}
}
