package fallback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"siecore/apps/console/internal/domain"
)

const DefaultAttemptTimeout = 90 * time.Second

var ErrCredentialExhausted = errors.New("credential_exhausted")

// ExhaustedError reports that every candidate failed, or that there were none.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	if e == nil {
		return ""
	}
	if e.LastErr == nil {
		return "no active credentials available"
	}
	return fmt.Sprintf("all %d credential attempts failed: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrCredentialExhausted
}

func (e *ExhaustedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.LastErr
}

// Reporter receives per-attempt outcomes. The credential registry implements it.
type Reporter interface {
	RecordUsage(ctx context.Context, id int64) error
	RecordFailure(ctx context.Context, id int64) (domain.Credential, error)
}

type Executor struct {
	reporter       Reporter
	attemptTimeout time.Duration
}

// NewExecutor builds an executor. attemptTimeout <= 0 disables the per-attempt deadline.
func NewExecutor(reporter Reporter, attemptTimeout time.Duration) *Executor {
	return &Executor{reporter: reporter, attemptTimeout: attemptTimeout}
}

// Execute tries candidates in order, one at a time, and returns the first
// success. Every attempt counts as usage and every failure is reported.
func Execute[T any](ctx context.Context, e *Executor, candidates []domain.Credential, work func(ctx context.Context, cred domain.Credential) (T, error)) (T, error) {
	var zero T
	if len(candidates) == 0 {
		return zero, &ExhaustedError{}
	}

	var lastErr error
	attempts := 0
	for _, cred := range candidates {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		attempts++
		if err := e.reporter.RecordUsage(ctx, cred.ID); err != nil {
			log.Printf("fallback usage record failed id=%d err=%v", cred.ID, err)
		}

		result, err := runAttempt(ctx, e.attemptTimeout, cred, work)
		if err == nil {
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			// Caller gave up; the credential is not at fault.
			return zero, ctxErr
		}
		lastErr = err
		log.Printf("fallback attempt failed provider=%s id=%d priority=%d err=%v", cred.Provider, cred.ID, cred.Priority, err)
		if _, reportErr := e.reporter.RecordFailure(ctx, cred.ID); reportErr != nil {
			log.Printf("fallback failure record failed id=%d err=%v", cred.ID, reportErr)
		}
	}
	return zero, &ExhaustedError{Attempts: attempts, LastErr: lastErr}
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, cred domain.Credential, work func(ctx context.Context, cred domain.Credential) (T, error)) (T, error) {
	attemptCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()
	return work(attemptCtx, cred)
}
