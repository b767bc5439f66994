package review

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"siecore/apps/console/internal/domain"
	"siecore/apps/console/internal/sandbox"
	"siecore/apps/console/internal/workspace"
)

// Files is the slice of the workspace the gate writes through.
type Files interface {
	Resolve(path string) (sandbox.Target, error)
	IsProtected(rel string) bool
	Read(path string) (string, error)
	Write(path, content string) (workspace.WriteResult, error)
	Delete(path string) (workspace.WriteResult, error)
}

type Dependencies struct {
	Files Files
	Now   func() time.Time
	NewID func() string
}

type Review struct {
	ID          string               `json:"id"`
	SessionID   string               `json:"session_id"`
	State       State                `json:"state"`
	Action      domain.ActionKind    `json:"action"`
	Message     string               `json:"message,omitempty"`
	Path        string               `json:"path,omitempty"`
	Delete      bool                 `json:"delete,omitempty"`
	Protected   bool                 `json:"protected"`
	Baseline    string               `json:"baseline"`
	Staged      string               `json:"staged"`
	UnifiedDiff string               `json:"unified_diff,omitempty"`
	Stats       DiffStats            `json:"stats"`
	Findings    []Finding            `json:"findings,omitempty"`
	LocalRisk   domain.RiskLevel     `json:"local_risk,omitempty"`
	Summary     string               `json:"summary,omitempty"`
	Risk        *domain.RiskAnalysis `json:"risk_analysis,omitempty"`
	ConfirmHash string               `json:"confirm_hash,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`

	baseHash string
}

type SkippedEdit struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

type RouteResult struct {
	Review  Review                  `json:"review"`
	Writes  []workspace.WriteResult `json:"writes"`
	Skipped []SkippedEdit           `json:"skipped,omitempty"`
}

type OpenResult struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Protected bool   `json:"protected"`
}

type ConfirmResult struct {
	Review Review                `json:"review"`
	Write  workspace.WriteResult `json:"write"`
}

type session struct {
	openPath string
	baseline string
	current  *Review
}

// Gate holds at most one live review per session. Every operation runs under
// one mutex, including its file reads and writes, so a confirm can never
// interleave with a new proposal for the same session.
type Gate struct {
	deps     Dependencies
	mu       sync.Mutex
	sessions map[string]*session
}

func NewGate(deps Dependencies) *Gate {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	return &Gate{deps: deps, sessions: map[string]*session{}}
}

// Open records path as the session's open file and its current content as
// the baseline. A live review in the session is discarded.
func (g *Gate) Open(sessionID, path string) (OpenResult, error) {
	sessionID, err := normalizeSessionID(sessionID)
	if err != nil {
		return OpenResult{}, err
	}
	target, err := g.deps.Files.Resolve(path)
	if err != nil {
		return OpenResult{}, err
	}
	content, err := g.deps.Files.Read(target.Relative)
	if err != nil {
		return OpenResult{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	sess := g.sessionLocked(sessionID)
	g.supersedeLocked(sess)
	sess.openPath = target.Relative
	sess.baseline = content
	return OpenResult{
		Path:      target.Relative,
		Content:   content,
		Protected: g.deps.Files.IsProtected(target.Relative),
	}, nil
}

// Route drafts a review for proposal. An edit whose path equals openPath is
// staged for review; any other CREATE/UPDATE edit is written directly. DELETE
// edits are always staged.
func (g *Gate) Route(sessionID string, proposal domain.Proposal, openPath string) (RouteResult, error) {
	sessionID, err := normalizeSessionID(sessionID)
	if err != nil {
		return RouteResult{}, err
	}
	openRel := ""
	if strings.TrimSpace(openPath) != "" {
		target, err := g.deps.Files.Resolve(openPath)
		if err != nil {
			return RouteResult{}, err
		}
		openRel = target.Relative
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	sess := g.sessionLocked(sessionID)
	g.supersedeLocked(sess)

	now := g.deps.Now().UTC()
	draft := &Review{
		ID:        g.deps.NewID(),
		SessionID: sessionID,
		State:     StateDrafted,
		Action:    proposal.Kind(),
		Message:   proposal.Message,
		Risk:      proposal.Risk,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sess.current = draft

	r := &router{gate: g, session: sess, proposal: proposal, openRel: openRel, review: draft}
	action := proposal.Action
	if action == nil {
		action = domain.ExplainAction{}
	}
	if err := action.Accept(r); err != nil {
		return RouteResult{}, err
	}

	switch {
	case r.staged:
		draft.State, _ = nextState(draft.State, EventStage)
	case len(r.result.Writes) > 0:
		draft.State, _ = nextState(draft.State, EventBypass)
	}
	if openRel != "" {
		sess.openPath = openRel
	}
	if r.staged {
		sess.baseline = draft.Baseline
	}
	log.Printf("review routed session=%s review=%s action=%s state=%s path=%s writes=%d skipped=%d",
		sessionID, draft.ID, draft.Action, draft.State, draft.Path, len(r.result.Writes), len(r.result.Skipped))

	r.result.Review = draft.clone()
	return r.result, nil
}

// Confirm applies a pending review. confirmHash must be the hash returned
// with the review; protected paths also need confirmProtected.
func (g *Gate) Confirm(sessionID, reviewID, confirmHash string, confirmProtected bool) (ConfirmResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sess, current, err := g.lookupLocked(sessionID, reviewID)
	if err != nil {
		return ConfirmResult{}, err
	}
	next, err := nextState(current.State, EventConfirm)
	if err != nil {
		return ConfirmResult{}, err
	}
	if strings.TrimSpace(confirmHash) != current.ConfirmHash {
		return ConfirmResult{}, &Error{
			Code:    CodeHashMismatch,
			Message: "confirm_hash does not match the pending review",
			Details: map[string]interface{}{"review_id": current.ID},
		}
	}
	if current.Protected && !confirmProtected {
		return ConfirmResult{}, &Error{
			Code:    CodeProtectedConfirmationMissing,
			Message: "path is protected; confirm_protected must be true",
			Details: map[string]interface{}{"path": current.Path},
		}
	}
	_, onDisk, err := g.readCurrent(current.Path)
	if err != nil {
		return ConfirmResult{}, err
	}
	if onDisk != current.baseHash {
		return ConfirmResult{}, &Error{
			Code:    CodeApplyConflict,
			Message: "file changed on disk after the review was staged",
			Details: map[string]interface{}{"path": current.Path},
		}
	}

	var write workspace.WriteResult
	if current.Delete {
		write, err = g.deps.Files.Delete(current.Path)
	} else {
		write, err = g.deps.Files.Write(current.Path, current.Staged)
	}
	if err != nil {
		return ConfirmResult{}, err
	}

	current.State = next
	current.UpdatedAt = g.deps.Now().UTC()
	sess.openPath = current.Path
	sess.baseline = current.Staged
	log.Printf("review applied session=%s review=%s path=%s delete=%t snapshot=%t",
		current.SessionID, current.ID, current.Path, current.Delete, write.Snapshot != nil)
	return ConfirmResult{Review: current.clone(), Write: write}, nil
}

// Cancel discards a pending review. The file on disk is not touched.
func (g *Gate) Cancel(sessionID, reviewID string) (Review, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, current, err := g.lookupLocked(sessionID, reviewID)
	if err != nil {
		return Review{}, err
	}
	next, err := nextState(current.State, EventCancel)
	if err != nil {
		return Review{}, err
	}
	current.State = next
	current.Staged = current.Baseline
	current.UpdatedAt = g.deps.Now().UTC()
	log.Printf("review discarded session=%s review=%s path=%s", current.SessionID, current.ID, current.Path)
	return current.clone(), nil
}

func (g *Gate) Current(sessionID string) (Review, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sess, ok := g.sessions[strings.TrimSpace(sessionID)]
	if !ok || sess.current == nil {
		return Review{}, false
	}
	return sess.current.clone(), true
}

// OpenFile returns the path most recently opened or applied in the session
// and the baseline content held for it.
func (g *Gate) OpenFile(sessionID string) (string, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if sess, ok := g.sessions[strings.TrimSpace(sessionID)]; ok {
		return sess.openPath, sess.baseline
	}
	return "", ""
}

func (g *Gate) sessionLocked(id string) *session {
	sess, ok := g.sessions[id]
	if !ok {
		sess = &session{}
		g.sessions[id] = sess
	}
	return sess
}

func (g *Gate) supersedeLocked(sess *session) {
	if sess.current == nil || !sess.current.State.Open() {
		return
	}
	next, err := nextState(sess.current.State, EventSupersede)
	if err != nil {
		return
	}
	sess.current.State = next
	sess.current.UpdatedAt = g.deps.Now().UTC()
	log.Printf("review superseded session=%s review=%s", sess.current.SessionID, sess.current.ID)
}

func (g *Gate) lookupLocked(sessionID, reviewID string) (*session, *Review, error) {
	sessionID = strings.TrimSpace(sessionID)
	reviewID = strings.TrimSpace(reviewID)
	sess, ok := g.sessions[sessionID]
	if !ok || sess.current == nil || sess.current.ID != reviewID {
		return nil, nil, notFound(sessionID, reviewID)
	}
	return sess, sess.current, nil
}

// readCurrent returns the file content and a hash that also distinguishes a
// missing file from an empty one.
func (g *Gate) readCurrent(rel string) (string, string, error) {
	content, err := g.deps.Files.Read(rel)
	if errors.Is(err, workspace.ErrNotFound) {
		return "", contentHash("", false), nil
	}
	if err != nil {
		return "", "", err
	}
	return content, contentHash(content, true), nil
}

// stage fills the draft with the diff between disk and the proposed content.
func (g *Gate) stage(draft *Review, rel, proposed string, remove bool) error {
	current, baseHash, err := g.readCurrent(rel)
	if err != nil {
		return err
	}
	if remove && baseHash == contentHash("", false) {
		return workspace.ErrNotFound
	}

	draft.Path = rel
	draft.Delete = remove
	draft.Protected = g.deps.Files.IsProtected(rel)
	draft.Baseline = current
	draft.Staged = proposed
	draft.baseHash = baseHash

	oldName, newName := "a/"+rel, "b/"+rel
	if baseHash == contentHash("", false) {
		oldName = devNull
	}
	if remove {
		newName = devNull
		draft.Staged = ""
	}
	draft.UnifiedDiff = buildUnifiedDiff(oldName, newName, draft.Baseline, draft.Staged)
	files, err := parseDiff(draft.UnifiedDiff)
	if err != nil {
		log.Printf("review diff parse failed path=%s err=%v", rel, err)
	}
	draft.Stats = diffStats(files)
	draft.Findings = scanAddedLines(files)
	draft.LocalRisk = highestLevel(draft.Findings)
	draft.Summary = summarizeFindings(draft.Findings)
	draft.ConfirmHash = buildConfirmHash(draft)
	return nil
}

func (r Review) clone() Review {
	out := r
	out.Findings = append([]Finding(nil), r.Findings...)
	if r.Risk != nil {
		risk := *r.Risk
		out.Risk = &risk
	}
	return out
}

func buildConfirmHash(r *Review) string {
	payload := map[string]interface{}{
		"review_id":   r.ID,
		"session_id":  r.SessionID,
		"path":        r.Path,
		"delete":      r.Delete,
		"protected":   r.Protected,
		"base_hash":   r.baseHash,
		"staged_hash": hashString(r.Staged),
	}
	return hashString(stableJSON(payload))
}

func contentHash(content string, exists bool) string {
	if !exists {
		return "absent"
	}
	return hashString(content)
}

func hashString(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func stableJSON(value interface{}) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(data)
}

func normalizeSessionID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", &Error{Code: CodeInvalidRequest, Message: "session_id is required"}
	}
	return id, nil
}
