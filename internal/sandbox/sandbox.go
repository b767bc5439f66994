package sandbox

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrAccessDenied = errors.New("access_denied")
	ErrInvalidRoot  = errors.New("sandbox_invalid_root")
)

// Target is a resolved path: Absolute on disk, Relative slash-separated from
// the root ("" for the root itself).
type Target struct {
	Absolute string
	Relative string
}

func (t Target) IsRoot() bool {
	return t.Relative == ""
}

// Resolve maps requested onto root and rejects anything that lands outside
// it. Relative inputs are joined to root; absolute inputs must already lie
// inside it.
func Resolve(root, requested string) (Target, error) {
	rootAbs, err := filepath.Abs(strings.TrimSpace(root))
	if err != nil || strings.TrimSpace(root) == "" {
		return Target{}, ErrInvalidRoot
	}
	rootAbs = filepath.Clean(rootAbs)

	raw := strings.TrimSpace(requested)
	if strings.ContainsRune(raw, 0) {
		return Target{}, ErrAccessDenied
	}
	var candidate string
	if filepath.IsAbs(raw) {
		candidate = filepath.Clean(raw)
	} else {
		candidate = filepath.Join(rootAbs, filepath.FromSlash(raw))
	}

	rel, err := filepath.Rel(rootAbs, candidate)
	if err != nil {
		return Target{}, ErrAccessDenied
	}
	if escapes(rel) {
		return Target{}, ErrAccessDenied
	}
	if err := checkSymlinks(rootAbs, candidate); err != nil {
		return Target{}, err
	}

	relative := filepath.ToSlash(rel)
	if relative == "." {
		relative = ""
	}
	return Target{Absolute: candidate, Relative: relative}, nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// checkSymlinks resolves the deepest existing ancestor of candidate and makes
// sure links do not point out of the root.
func checkSymlinks(rootAbs, candidate string) error {
	realRoot, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		// Root does not exist yet; nothing on disk can redirect.
		return nil
	}
	existing := candidate
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return nil
		}
		existing = parent
	}
	realExisting, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return ErrAccessDenied
	}
	rel, err := filepath.Rel(realRoot, realExisting)
	if err != nil || escapes(rel) {
		return ErrAccessDenied
	}
	return nil
}

// Sandbox binds Resolve to one root and carries the protected-path policy.
type Sandbox struct {
	root      string
	protected []string
}

func New(root string, protected []string) (*Sandbox, error) {
	if strings.TrimSpace(root) == "" {
		return nil, ErrInvalidRoot
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, ErrInvalidRoot
	}
	patterns := make([]string, 0, len(protected))
	for _, item := range protected {
		p := strings.Trim(filepath.ToSlash(strings.TrimSpace(item)), "/")
		if p != "" {
			patterns = append(patterns, p)
		}
	}
	return &Sandbox{root: filepath.Clean(abs), protected: patterns}, nil
}

func (s *Sandbox) Root() string {
	return s.root
}

func (s *Sandbox) Resolve(requested string) (Target, error) {
	return Resolve(s.root, requested)
}

// IsProtected reports whether rel lies under a reserved subtree. Plain
// patterns name a subtree by prefix; patterns with glob characters are
// matched against each path segment.
func (s *Sandbox) IsProtected(rel string) bool {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" {
		return false
	}
	segments := strings.Split(rel, "/")
	for _, pattern := range s.protected {
		if strings.ContainsAny(pattern, "*?[") {
			for _, seg := range segments {
				if ok, _ := path.Match(pattern, seg); ok {
					return true
				}
			}
			continue
		}
		if rel == pattern || strings.HasPrefix(rel, pattern+"/") {
			return true
		}
	}
	return false
}
