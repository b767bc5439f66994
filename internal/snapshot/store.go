package snapshot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"siecore/apps/console/internal/domain"
)

const (
	manifestFile     = "manifest.jsonl"
	capturedAtLayout = "2006-01-02T15:04:05.000Z07:00"
)

var (
	ErrSnapshotNotFound = errors.New("snapshot_not_found")
	ErrInvalidName      = errors.New("snapshot_invalid_name")
)

// Store copies files into a flat backup directory before they are
// overwritten. Backups are named <basename>.<unix-millis>.bak and never
// removed; a manifest records which source path each backup came from.
type Store struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

func New(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) EnsureDir() error {
	return os.MkdirAll(s.dir, 0o755)
}

// Capture backs up sourceAbs. A missing source is not an error: it returns
// (nil, nil) because there is nothing to preserve.
func (s *Store) Capture(sourceAbs, sourceRel string) (*domain.Snapshot, error) {
	info, err := os.Stat(sourceAbs)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat snapshot source: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("snapshot source %s is a directory", sourceRel)
	}
	raw, err := os.ReadFile(sourceAbs)
	if err != nil {
		return nil, fmt.Errorf("read snapshot source: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.EnsureDir(); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	base := filepath.Base(sourceAbs)
	millis := s.now().UnixMilli()
	var name, backupPath string
	for {
		name = base + "." + strconv.FormatInt(millis, 10) + ".bak"
		backupPath = filepath.Join(s.dir, name)
		if _, err := os.Stat(backupPath); errors.Is(err, os.ErrNotExist) {
			break
		}
		millis++
	}
	if err := os.WriteFile(backupPath, raw, 0o644); err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}

	snap := domain.Snapshot{
		Name:       name,
		SourcePath: sourceRel,
		BackupPath: backupPath,
		CapturedAt: time.UnixMilli(millis).UTC().Format(capturedAtLayout),
	}
	if err := s.appendManifest(snap); err != nil {
		return &snap, err
	}
	return &snap, nil
}

func (s *Store) appendManifest(snap domain.Snapshot) error {
	f, err := os.OpenFile(filepath.Join(s.dir, manifestFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open snapshot manifest: %w", err)
	}
	defer f.Close()
	line, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write snapshot manifest: %w", err)
	}
	return nil
}

// List returns backups taken from sourceRel, oldest first.
func (s *Store) List(sourceRel string) ([]domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(filepath.Join(s.dir, manifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return []domain.Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open snapshot manifest: %w", err)
	}
	defer f.Close()

	out := []domain.Snapshot{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var snap domain.Snapshot
		if err := json.Unmarshal(scanner.Bytes(), &snap); err != nil {
			continue
		}
		if snap.SourcePath != sourceRel {
			continue
		}
		snap.BackupPath = filepath.Join(s.dir, snap.Name)
		out = append(out, snap)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read snapshot manifest: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CapturedAt < out[j].CapturedAt
	})
	return out, nil
}

// Read returns the bytes of a named backup.
func (s *Store) Read(name string) ([]byte, error) {
	name = strings.TrimSpace(name)
	if name == "" || name != filepath.Base(name) || name == manifestFile || !strings.HasSuffix(name, ".bak") {
		return nil, ErrInvalidName
	}
	raw, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return raw, nil
}
