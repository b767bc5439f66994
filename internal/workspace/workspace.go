package workspace

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"siecore/apps/console/internal/domain"
	"siecore/apps/console/internal/sandbox"
	"siecore/apps/console/internal/snapshot"
)

const maxReadBytes = 4 * 1024 * 1024

var (
	ErrNotFound     = errors.New("file_not_found")
	ErrInvalidPath  = errors.New("invalid_path")
	ErrIsDirectory  = errors.New("path_is_directory")
	ErrNotDirectory = errors.New("path_not_directory")
	ErrFileTooLarge = errors.New("file_too_large")
)

// BootstrapDirs are created under the project root at startup.
var BootstrapDirs = []string{"src/staging_builds", "src/active_modules"}

type WriteResult struct {
	Path     string           `json:"path"`
	Snapshot *domain.Snapshot `json:"snapshot,omitempty"`
}

// Workspace is the only way the console touches project files: every path
// goes through the sandbox, and every overwrite is preceded by a snapshot.
type Workspace struct {
	box      *sandbox.Sandbox
	snaps    *snapshot.Store
	reserved []string
}

// New builds a workspace whose backup directory is off limits to file
// operations. Further paths, such as the database directory, are fenced off
// with Reserve.
func New(box *sandbox.Sandbox, snaps *snapshot.Store) *Workspace {
	w := &Workspace{box: box, snaps: snaps}
	w.Reserve(snaps.Dir())
	return w
}

// Reserve denies every file operation on path and anything beneath it. The
// project root itself cannot be reserved.
func (w *Workspace) Reserve(paths ...string) {
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			log.Printf("workspace reserve skipped path=%s err=%v", path, err)
			continue
		}
		if abs == w.box.Root() {
			log.Printf("workspace reserve skipped path=%s reason=project_root", path)
			continue
		}
		w.reserved = append(w.reserved, abs)
	}
}

func (w *Workspace) isReserved(abs string) bool {
	for _, dir := range w.reserved {
		if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Workspace) Root() string {
	return w.box.Root()
}

// Resolve maps path into the sandbox, refusing reserved locations.
func (w *Workspace) Resolve(path string) (sandbox.Target, error) {
	target, err := w.box.Resolve(path)
	if err != nil {
		return sandbox.Target{}, err
	}
	if w.isReserved(target.Absolute) {
		return sandbox.Target{}, sandbox.ErrAccessDenied
	}
	return target, nil
}

func (w *Workspace) IsProtected(rel string) bool {
	return w.box.IsProtected(rel)
}

func (w *Workspace) Bootstrap() error {
	if err := w.snaps.EnsureDir(); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	for _, dir := range BootstrapDirs {
		if err := os.MkdirAll(filepath.Join(w.box.Root(), filepath.FromSlash(dir)), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// List returns the entries of a directory, directories first, then by name.
func (w *Workspace) List(path string) ([]domain.FileNode, error) {
	target, err := w.Resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(target.Absolute)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, ErrNotDirectory
	}
	entries, err := os.ReadDir(target.Absolute)
	if err != nil {
		return nil, err
	}

	out := make([]domain.FileNode, 0, len(entries))
	for _, entry := range entries {
		if w.isReserved(filepath.Join(target.Absolute, entry.Name())) {
			continue
		}
		rel := entry.Name()
		if !target.IsRoot() {
			rel = target.Relative + "/" + entry.Name()
		}
		nodeType := domain.FileTypeFile
		if entry.IsDir() {
			nodeType = domain.FileTypeDirectory
		}
		out = append(out, domain.FileNode{
			Name:        entry.Name(),
			Path:        rel,
			Type:        nodeType,
			IsProtected: w.box.IsProtected(rel),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type == domain.FileTypeDirectory
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func (w *Workspace) Read(path string) (string, error) {
	target, err := w.resolveFile(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(target.Absolute)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", ErrIsDirectory
	}
	if info.Size() > maxReadBytes {
		return "", ErrFileTooLarge
	}
	raw, err := os.ReadFile(target.Absolute)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Write snapshots the current file (if any), creates parent directories and
// replaces the content. Snapshot failures are logged, never fatal.
func (w *Workspace) Write(path, content string) (WriteResult, error) {
	target, err := w.resolveFile(path)
	if err != nil {
		return WriteResult{}, err
	}
	if info, statErr := os.Stat(target.Absolute); statErr == nil && info.IsDir() {
		return WriteResult{}, ErrIsDirectory
	}
	snap := w.capture(target)
	if err := os.MkdirAll(filepath.Dir(target.Absolute), 0o755); err != nil {
		return WriteResult{}, fmt.Errorf("create parent dir: %w", err)
	}
	if err := os.WriteFile(target.Absolute, []byte(content), 0o644); err != nil {
		return WriteResult{}, fmt.Errorf("write file: %w", err)
	}
	log.Printf("workspace write path=%s bytes=%d snapshot=%s", target.Relative, len(content), snapshotName(snap))
	return WriteResult{Path: target.Relative, Snapshot: snap}, nil
}

// Delete snapshots then removes a single file.
func (w *Workspace) Delete(path string) (WriteResult, error) {
	target, err := w.resolveFile(path)
	if err != nil {
		return WriteResult{}, err
	}
	info, err := os.Stat(target.Absolute)
	if errors.Is(err, os.ErrNotExist) {
		return WriteResult{}, ErrNotFound
	}
	if err != nil {
		return WriteResult{}, err
	}
	if info.IsDir() {
		return WriteResult{}, ErrIsDirectory
	}
	snap := w.capture(target)
	if err := os.Remove(target.Absolute); err != nil {
		return WriteResult{}, fmt.Errorf("remove file: %w", err)
	}
	log.Printf("workspace delete path=%s snapshot=%s", target.Relative, snapshotName(snap))
	return WriteResult{Path: target.Relative, Snapshot: snap}, nil
}

func (w *Workspace) Snapshots(path string) ([]domain.Snapshot, error) {
	target, err := w.resolveFile(path)
	if err != nil {
		return nil, err
	}
	return w.snaps.List(target.Relative)
}

// SnapshotContent returns the bytes of a backup taken from path.
func (w *Workspace) SnapshotContent(path, name string) (string, error) {
	target, err := w.resolveFile(path)
	if err != nil {
		return "", err
	}
	list, err := w.snaps.List(target.Relative)
	if err != nil {
		return "", err
	}
	for _, item := range list {
		if item.Name == name {
			raw, err := w.snaps.Read(name)
			if err != nil {
				return "", err
			}
			return string(raw), nil
		}
	}
	return "", snapshot.ErrSnapshotNotFound
}

// Restore writes a backup of path back through Write, so the content being
// replaced is itself snapshotted first.
func (w *Workspace) Restore(path, name string) (WriteResult, error) {
	content, err := w.SnapshotContent(path, name)
	if err != nil {
		return WriteResult{}, err
	}
	return w.Write(path, content)
}

func (w *Workspace) resolveFile(path string) (sandbox.Target, error) {
	if strings.TrimSpace(path) == "" {
		return sandbox.Target{}, ErrInvalidPath
	}
	target, err := w.Resolve(path)
	if err != nil {
		return sandbox.Target{}, err
	}
	if target.IsRoot() {
		return sandbox.Target{}, ErrInvalidPath
	}
	return target, nil
}

func (w *Workspace) capture(target sandbox.Target) *domain.Snapshot {
	snap, err := w.snaps.Capture(target.Absolute, target.Relative)
	if err != nil {
		log.Printf("workspace snapshot failed path=%s err=%v", target.Relative, err)
	}
	return snap
}

func snapshotName(snap *domain.Snapshot) string {
	if snap == nil {
		return "-"
	}
	return snap.Name
}
