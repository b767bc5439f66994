package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"siecore/apps/console/internal/domain"
)

var ErrCredentialNotFound = errors.New("credential_not_found")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS api_keys (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	provider TEXT NOT NULL,
	key_value TEXT NOT NULL,
	label TEXT NOT NULL DEFAULT '',
	priority INTEGER NOT NULL DEFAULT 1,
	is_active INTEGER NOT NULL DEFAULT 1,
	usage_count INTEGER NOT NULL DEFAULT 0,
	error_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_api_keys_active_priority ON api_keys (is_active, priority, id);
`

const selectColumns = "id, provider, key_value, label, priority, is_active, usage_count, error_count, created_at, updated_at"

// Store persists credentials in SQLite.
type Store struct {
	db  *sql.DB
	dsn string
}

// Open opens (and migrates) the database at dsn. ":memory:" is accepted for tests.
func Open(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty database path")
	}
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db, dsn: dsn}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Name() string {
	return filepath.Base(s.dsn)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) CreateCredential(ctx context.Context, cred domain.Credential) (domain.Credential, error) {
	now := nowString()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO api_keys (provider, key_value, label, priority, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		string(cred.Provider), cred.KeyValue, cred.Label, cred.Priority, boolToInt(cred.IsActive), now, now,
	)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("failed to create credential: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Credential{}, fmt.Errorf("failed to read credential id: %w", err)
	}
	return s.GetCredential(ctx, id)
}

func (s *Store) GetCredential(ctx context.Context, id int64) (domain.Credential, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM api_keys WHERE id = ?", id)
	cred, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Credential{}, ErrCredentialNotFound
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("failed to get credential: %w", err)
	}
	return cred, nil
}

// ListCredentials returns credentials ordered by priority then id.
func (s *Store) ListCredentials(ctx context.Context, activeOnly bool) ([]domain.Credential, error) {
	query := "SELECT " + selectColumns + " FROM api_keys"
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY priority ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	out := []domain.Credential{}
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		out = append(out, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate credentials: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateCredential(ctx context.Context, id int64, patch domain.CredentialPatch) (domain.Credential, error) {
	sets := []string{}
	args := []interface{}{}
	if patch.KeyValue != nil {
		sets = append(sets, "key_value = ?")
		args = append(args, *patch.KeyValue)
	}
	if patch.Label != nil {
		sets = append(sets, "label = ?")
		args = append(args, *patch.Label)
	}
	if patch.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *patch.Priority)
	}
	if patch.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, boolToInt(*patch.IsActive))
	}
	if len(sets) == 0 {
		return s.GetCredential(ctx, id)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, nowString(), id)

	res, err := s.db.ExecContext(ctx, "UPDATE api_keys SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("failed to update credential: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return domain.Credential{}, err
	}
	return s.GetCredential(ctx, id)
}

func (s *Store) DeleteCredential(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM api_keys WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) IncrementUsage(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET usage_count = usage_count + 1, updated_at = ? WHERE id = ?",
		nowString(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return requireAffected(res)
}

// IncrementErrors bumps the error counter and, in the same transaction,
// deactivates the credential once the counter exceeds threshold.
func (s *Store) IncrementErrors(ctx context.Context, id int64, threshold int) (domain.Credential, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := nowString()
	res, err := tx.ExecContext(ctx,
		"UPDATE api_keys SET error_count = error_count + 1, updated_at = ? WHERE id = ?",
		now, id,
	)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("failed to record failure: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return domain.Credential{}, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE api_keys SET is_active = 0, updated_at = ? WHERE id = ? AND error_count > ?",
		now, id, threshold,
	); err != nil {
		return domain.Credential{}, fmt.Errorf("failed to deactivate credential: %w", err)
	}
	cred, err := scanCredential(tx.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM api_keys WHERE id = ?", id))
	if err != nil {
		return domain.Credential{}, fmt.Errorf("failed to reload credential: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Credential{}, fmt.Errorf("failed to commit failure: %w", err)
	}
	return cred, nil
}

func (s *Store) CountActive(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM api_keys WHERE is_active = 1").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active credentials: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCredential(row rowScanner) (domain.Credential, error) {
	var (
		cred     domain.Credential
		provider string
		active   int
	)
	if err := row.Scan(
		&cred.ID, &provider, &cred.KeyValue, &cred.Label, &cred.Priority, &active,
		&cred.UsageCount, &cred.ErrorCount, &cred.CreatedAt, &cred.UpdatedAt,
	); err != nil {
		return domain.Credential{}, err
	}
	cred.Provider = domain.Provider(provider)
	cred.IsActive = active != 0
	return cred, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
