package credential

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"siecore/apps/console/internal/domain"
	"siecore/apps/console/internal/repo"
	"siecore/apps/console/internal/service/ports"
)

var (
	ErrCredentialNotFound = repo.ErrCredentialNotFound
	ErrInvalidCredential  = errors.New("invalid_credential")
)

type Dependencies struct {
	Store                 ports.CredentialStore
	DeactivationThreshold int
}

// Registry owns the credential pool. Mutations are serialized so counter
// updates and the deactivation check never interleave.
type Registry struct {
	deps Dependencies
	mu   sync.Mutex
}

type AddInput struct {
	Provider string
	KeyValue string
	Label    string
	Priority int
}

func NewRegistry(deps Dependencies) *Registry {
	if deps.DeactivationThreshold <= 0 {
		deps.DeactivationThreshold = domain.DefaultDeactivationThreshold
	}
	return &Registry{deps: deps}
}

func (r *Registry) Threshold() int {
	return r.deps.DeactivationThreshold
}

func (r *Registry) Add(ctx context.Context, in AddInput) (domain.Credential, error) {
	providerID := domain.NormalizeProvider(in.Provider)
	key := strings.TrimSpace(in.KeyValue)
	if providerID == "" || key == "" {
		return domain.Credential{}, ErrInvalidCredential
	}
	priority := in.Priority
	if priority <= 0 {
		priority = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, err := r.deps.Store.CreateCredential(ctx, domain.Credential{
		Provider: providerID,
		KeyValue: key,
		Label:    strings.TrimSpace(in.Label),
		Priority: priority,
		IsActive: true,
	})
	if err != nil {
		return domain.Credential{}, err
	}
	log.Printf("credential added id=%d provider=%s priority=%d", cred.ID, cred.Provider, cred.Priority)
	return cred, nil
}

func (r *Registry) List(ctx context.Context, activeOnly bool) ([]domain.Credential, error) {
	return r.deps.Store.ListCredentials(ctx, activeOnly)
}

// ActiveOrderedByPriority returns active credentials, priority ascending, id ascending.
func (r *Registry) ActiveOrderedByPriority(ctx context.Context) ([]domain.Credential, error) {
	return r.deps.Store.ListCredentials(ctx, true)
}

func (r *Registry) Get(ctx context.Context, id int64) (domain.Credential, error) {
	return r.deps.Store.GetCredential(ctx, id)
}

func (r *Registry) Update(ctx context.Context, id int64, patch domain.CredentialPatch) (domain.Credential, error) {
	if patch.KeyValue != nil {
		key := strings.TrimSpace(*patch.KeyValue)
		if key == "" {
			return domain.Credential{}, ErrInvalidCredential
		}
		patch.KeyValue = &key
	}
	if patch.Label != nil {
		label := strings.TrimSpace(*patch.Label)
		patch.Label = &label
	}
	if patch.Priority != nil && *patch.Priority <= 0 {
		return domain.Credential{}, ErrInvalidCredential
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deps.Store.UpdateCredential(ctx, id, patch)
}

func (r *Registry) SetActive(ctx context.Context, id int64, active bool) (domain.Credential, error) {
	return r.Update(ctx, id, domain.CredentialPatch{IsActive: &active})
}

func (r *Registry) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.deps.Store.DeleteCredential(ctx, id); err != nil {
		return err
	}
	log.Printf("credential removed id=%d", id)
	return nil
}

func (r *Registry) RecordUsage(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deps.Store.IncrementUsage(ctx, id)
}

// RecordFailure increments the error counter; once it exceeds the threshold
// the credential is deactivated and drops out of ActiveOrderedByPriority.
func (r *Registry) RecordFailure(ctx context.Context, id int64) (domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, err := r.deps.Store.IncrementErrors(ctx, id, r.deps.DeactivationThreshold)
	if err != nil {
		return domain.Credential{}, err
	}
	if !cred.IsActive && cred.ErrorCount == int64(r.deps.DeactivationThreshold)+1 {
		log.Printf("credential deactivated id=%d provider=%s error_count=%d", cred.ID, cred.Provider, cred.ErrorCount)
	}
	return cred, nil
}

func (r *Registry) CountActive(ctx context.Context) (int, error) {
	return r.deps.Store.CountActive(ctx)
}
