package review

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"siecore/apps/console/internal/domain"
	"siecore/apps/console/internal/sandbox"
	"siecore/apps/console/internal/snapshot"
	"siecore/apps/console/internal/workspace"
)

func newTestGate(t *testing.T) (*Gate, string) {
	t.Helper()
	root := t.TempDir()
	box, err := sandbox.New(root, []string{"server", "*AICore*"})
	if err != nil {
		t.Fatalf("new sandbox: %v", err)
	}
	ws := workspace.New(box, snapshot.New(filepath.Join(root, ".backups")))
	seq := 0
	gate := NewGate(Dependencies{
		Files: ws,
		Now:   func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
		NewID: func() string {
			seq++
			return fmt.Sprintf("review-%d", seq)
		},
	})
	return gate, root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(raw)
}

func updateProposal(path, content string) domain.Proposal {
	return domain.Proposal{
		Action:  domain.UpdateAction{},
		Message: "edit",
		Files:   []domain.FileEdit{{Path: path, Content: content}},
	}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var reviewErr *Error
	if !errors.As(err, &reviewErr) || reviewErr.Code != code {
		t.Fatalf("err=%v want code=%s", err, code)
	}
}

func TestConfirmAppliesAndUpdatesBaseline(t *testing.T) {
	gate, root := newTestGate(t)
	writeFile(t, root, "src/app.js", "a\nb\nc\n")

	opened, err := gate.Open("s1", "src/app.js")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened.Content != "a\nb\nc\n" || opened.Protected {
		t.Fatalf("opened=%+v", opened)
	}

	routed, err := gate.Route("s1", updateProposal("src/app.js", "a\nB\nc\n"), "src/app.js")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	pending := routed.Review
	if pending.State != StatePendingReview {
		t.Fatalf("state=%s want=%s", pending.State, StatePendingReview)
	}
	if pending.Baseline != "a\nb\nc\n" || pending.Staged != "a\nB\nc\n" {
		t.Fatalf("baseline=%q staged=%q", pending.Baseline, pending.Staged)
	}
	if pending.Stats.Added != 1 || pending.Stats.Deleted != 1 || pending.UnifiedDiff == "" {
		t.Fatalf("stats=%+v diff=%q", pending.Stats, pending.UnifiedDiff)
	}
	if len(routed.Writes) != 0 {
		t.Fatalf("open file must not be written before confirm: %+v", routed.Writes)
	}
	if got := readFile(t, root, "src/app.js"); got != "a\nb\nc\n" {
		t.Fatalf("file changed before confirm: %q", got)
	}

	applied, err := gate.Confirm("s1", pending.ID, pending.ConfirmHash, false)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if applied.Review.State != StateApplied {
		t.Fatalf("state=%s want=%s", applied.Review.State, StateApplied)
	}
	if applied.Write.Snapshot == nil {
		t.Fatalf("expected snapshot of previous content")
	}
	if got := readFile(t, root, "src/app.js"); got != "a\nB\nc\n" {
		t.Fatalf("content=%q", got)
	}
	path, baseline := gate.OpenFile("s1")
	if path != "src/app.js" || baseline != "a\nB\nc\n" {
		t.Fatalf("open file=%s baseline=%q", path, baseline)
	}

	_, err = gate.Confirm("s1", pending.ID, pending.ConfirmHash, false)
	assertCode(t, err, CodeInvalidTransition)
}

func TestCancelDiscardsWithoutTouchingDisk(t *testing.T) {
	gate, root := newTestGate(t)
	writeFile(t, root, "src/app.js", "v1")

	routed, err := gate.Route("s1", updateProposal("src/app.js", "v2"), "src/app.js")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	cancelled, err := gate.Cancel("s1", routed.Review.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.State != StateDiscarded {
		t.Fatalf("state=%s want=%s", cancelled.State, StateDiscarded)
	}
	if cancelled.Staged != "v1" {
		t.Fatalf("staged should revert to baseline, got %q", cancelled.Staged)
	}
	if got := readFile(t, root, "src/app.js"); got != "v1" {
		t.Fatalf("content=%q want=v1", got)
	}
	entries, _ := os.ReadDir(filepath.Join(root, ".backups"))
	if len(entries) != 0 {
		t.Fatalf("cancel must not snapshot, found %d entries", len(entries))
	}

	_, err = gate.Confirm("s1", routed.Review.ID, routed.Review.ConfirmHash, false)
	assertCode(t, err, CodeInvalidTransition)
}

func TestRouteBypassesFilesThatAreNotOpen(t *testing.T) {
	gate, root := newTestGate(t)
	writeFile(t, root, "src/app.js", "v1")

	proposal := domain.Proposal{
		Action: domain.CreateAction{},
		Files: []domain.FileEdit{
			{Path: "src/staging_builds/new.js", Content: "export {}"},
			{Path: "../outside.js", Content: "x"},
		},
	}
	routed, err := gate.Route("s1", proposal, "src/app.js")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if routed.Review.State != StateApplied {
		t.Fatalf("state=%s want=%s", routed.Review.State, StateApplied)
	}
	if len(routed.Writes) != 1 || routed.Writes[0].Path != "src/staging_builds/new.js" {
		t.Fatalf("writes=%+v", routed.Writes)
	}
	if len(routed.Skipped) != 1 || routed.Skipped[0].Reason != sandbox.ErrAccessDenied.Error() {
		t.Fatalf("skipped=%+v", routed.Skipped)
	}
	if got := readFile(t, root, "src/staging_builds/new.js"); got != "export {}" {
		t.Fatalf("content=%q", got)
	}
}

func TestRouteWithoutEditsStaysDrafted(t *testing.T) {
	gate, _ := newTestGate(t)
	routed, err := gate.Route("s1", domain.Proposal{Action: domain.ExplainAction{}, Message: "hello"}, "")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if routed.Review.State != StateDrafted {
		t.Fatalf("state=%s want=%s", routed.Review.State, StateDrafted)
	}
	_, err = gate.Cancel("s1", routed.Review.ID)
	assertCode(t, err, CodeInvalidTransition)
}

func TestProtectedPathNeedsExtraConfirmation(t *testing.T) {
	gate, root := newTestGate(t)
	writeFile(t, root, "server/index.js", "old")

	routed, err := gate.Route("s1", updateProposal("server/index.js", "new"), "server/index.js")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if !routed.Review.Protected {
		t.Fatalf("review should be protected")
	}
	_, err = gate.Confirm("s1", routed.Review.ID, routed.Review.ConfirmHash, false)
	assertCode(t, err, CodeProtectedConfirmationMissing)
	if got := readFile(t, root, "server/index.js"); got != "old" {
		t.Fatalf("content=%q want=old", got)
	}

	if _, err := gate.Confirm("s1", routed.Review.ID, routed.Review.ConfirmHash, true); err != nil {
		t.Fatalf("confirm protected: %v", err)
	}
	if got := readFile(t, root, "server/index.js"); got != "new" {
		t.Fatalf("content=%q want=new", got)
	}
}

func TestConfirmDetectsConflictAndHashMismatch(t *testing.T) {
	gate, root := newTestGate(t)
	writeFile(t, root, "src/app.js", "v1")

	routed, err := gate.Route("s1", updateProposal("src/app.js", "v2"), "src/app.js")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	_, err = gate.Confirm("s1", routed.Review.ID, "bogus", false)
	assertCode(t, err, CodeHashMismatch)

	writeFile(t, root, "src/app.js", "edited elsewhere")
	_, err = gate.Confirm("s1", routed.Review.ID, routed.Review.ConfirmHash, false)
	assertCode(t, err, CodeApplyConflict)
	if !errors.Is(err, &Error{Code: CodeApplyConflict}) {
		t.Fatalf("errors.Is should match by code")
	}
	if got := readFile(t, root, "src/app.js"); got != "edited elsewhere" {
		t.Fatalf("content=%q", got)
	}
}

func TestNewProposalSupersedesPendingReview(t *testing.T) {
	gate, root := newTestGate(t)
	writeFile(t, root, "src/app.js", "v1")

	first, err := gate.Route("s1", updateProposal("src/app.js", "v2"), "src/app.js")
	if err != nil {
		t.Fatalf("first route: %v", err)
	}
	second, err := gate.Route("s1", updateProposal("src/app.js", "v3"), "src/app.js")
	if err != nil {
		t.Fatalf("second route: %v", err)
	}
	if second.Review.ID == first.Review.ID {
		t.Fatalf("expected a fresh review id")
	}
	_, err = gate.Confirm("s1", first.Review.ID, first.Review.ConfirmHash, false)
	assertCode(t, err, CodeNotFound)

	current, ok := gate.Current("s1")
	if !ok || current.ID != second.Review.ID || current.State != StatePendingReview {
		t.Fatalf("current=%+v ok=%t", current, ok)
	}

	if _, err := gate.Open("s1", "src/app.js"); err != nil {
		t.Fatalf("open: %v", err)
	}
	current, _ = gate.Current("s1")
	if current.State != StateDiscarded {
		t.Fatalf("open should discard the pending review, state=%s", current.State)
	}
}

func TestDeleteAlwaysGoesToReview(t *testing.T) {
	gate, root := newTestGate(t)
	writeFile(t, root, "src/old.js", "legacy\n")
	writeFile(t, root, "src/other.js", "keep\n")

	proposal := domain.Proposal{
		Action: domain.DeleteAction{},
		Files:  []domain.FileEdit{{Path: "src/old.js"}, {Path: "src/other.js"}},
	}
	routed, err := gate.Route("s1", proposal, "")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if routed.Review.State != StatePendingReview || !routed.Review.Delete || routed.Review.Path != "src/old.js" {
		t.Fatalf("review=%+v", routed.Review)
	}
	if routed.Review.Stats.Deleted != 1 || routed.Review.Stats.Added != 0 {
		t.Fatalf("stats=%+v", routed.Review.Stats)
	}
	if len(routed.Skipped) != 1 || routed.Skipped[0].Path != "src/other.js" {
		t.Fatalf("skipped=%+v", routed.Skipped)
	}
	if _, err := os.Stat(filepath.Join(root, "src", "old.js")); err != nil {
		t.Fatalf("file removed before confirm: %v", err)
	}

	applied, err := gate.Confirm("s1", routed.Review.ID, routed.Review.ConfirmHash, false)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if applied.Write.Snapshot == nil {
		t.Fatalf("delete should snapshot first")
	}
	if _, err := os.Stat(filepath.Join(root, "src", "old.js")); !os.IsNotExist(err) {
		t.Fatalf("file still exists: %v", err)
	}
}

func TestRouteReportsLocalRiskFindings(t *testing.T) {
	gate, root := newTestGate(t)
	writeFile(t, root, "src/run.js", "module.exports = {}\n")

	routed, err := gate.Route("s1", updateProposal("src/run.js", "const cp = require('child_process')\nmodule.exports = {}\n"), "src/run.js")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(routed.Review.Findings) != 1 || routed.Review.LocalRisk != domain.RiskHigh {
		t.Fatalf("findings=%+v risk=%s", routed.Review.Findings, routed.Review.LocalRisk)
	}
}

func TestSessionIDRequired(t *testing.T) {
	gate, _ := newTestGate(t)
	_, err := gate.Route(" ", domain.Proposal{}, "")
	assertCode(t, err, CodeInvalidRequest)
}
