package ports

import (
	"context"

	"siecore/apps/console/internal/domain"
)

type CredentialStore interface {
	CreateCredential(ctx context.Context, cred domain.Credential) (domain.Credential, error)
	GetCredential(ctx context.Context, id int64) (domain.Credential, error)
	ListCredentials(ctx context.Context, activeOnly bool) ([]domain.Credential, error)
	UpdateCredential(ctx context.Context, id int64, patch domain.CredentialPatch) (domain.Credential, error)
	DeleteCredential(ctx context.Context, id int64) error
	IncrementUsage(ctx context.Context, id int64) error
	IncrementErrors(ctx context.Context, id int64, threshold int) (domain.Credential, error)
	CountActive(ctx context.Context) (int, error)
}

type HealthProbe interface {
	Ping(ctx context.Context) error
	Name() string
}
