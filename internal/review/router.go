package review

import (
	"log"

	"siecore/apps/console/internal/domain"
)

// router applies one proposal's file edits. It is the only place that
// decides between staging an edit and writing it directly.
type router struct {
	gate     *Gate
	session  *session
	proposal domain.Proposal
	openRel  string
	review   *Review
	staged   bool
	result   RouteResult
}

var _ domain.ActionVisitor = (*router)(nil)

func (r *router) VisitCreate(domain.CreateAction) error { return r.routeEdits() }
func (r *router) VisitUpdate(domain.UpdateAction) error { return r.routeEdits() }

func (r *router) VisitDelete(domain.DeleteAction) error { return r.routeDeletes() }

// The remaining kinds carry no file edits; their review stays DRAFTED.
func (r *router) VisitExplain(domain.ExplainAction) error           { return nil }
func (r *router) VisitShell(domain.ShellAction) error               { return nil }
func (r *router) VisitQuery(domain.QueryAction) error               { return nil }
func (r *router) VisitRiskAnalysis(domain.RiskAnalysisAction) error { return nil }

func (r *router) routeEdits() error {
	for _, edit := range r.proposal.Files {
		target, err := r.gate.deps.Files.Resolve(edit.Path)
		if err != nil {
			r.skip(edit.Path, err)
			continue
		}
		if r.openRel != "" && target.Relative == r.openRel {
			// A later edit of the open file replaces an earlier one.
			if err := r.gate.stage(r.review, target.Relative, edit.Content, false); err != nil {
				r.skip(edit.Path, err)
				continue
			}
			r.staged = true
			continue
		}
		write, err := r.gate.deps.Files.Write(target.Relative, edit.Content)
		if err != nil {
			r.skip(edit.Path, err)
			continue
		}
		r.result.Writes = append(r.result.Writes, write)
	}
	return nil
}

// routeDeletes stages a single deletion, preferring the open file. A review
// holds one file, so further deletions in the same proposal are refused.
func (r *router) routeDeletes() error {
	chosen := -1
	for idx, edit := range r.proposal.Files {
		target, err := r.gate.deps.Files.Resolve(edit.Path)
		if err != nil {
			continue
		}
		if chosen < 0 || target.Relative == r.openRel {
			chosen = idx
			if target.Relative == r.openRel {
				break
			}
		}
	}
	for idx, edit := range r.proposal.Files {
		if idx != chosen {
			target, err := r.gate.deps.Files.Resolve(edit.Path)
			if err != nil {
				r.skip(edit.Path, err)
			} else {
				r.result.Skipped = append(r.result.Skipped, SkippedEdit{Path: target.Relative, Reason: "only one deletion can be reviewed at a time"})
			}
			continue
		}
		target, _ := r.gate.deps.Files.Resolve(edit.Path)
		if err := r.gate.stage(r.review, target.Relative, "", true); err != nil {
			r.skip(edit.Path, err)
			continue
		}
		r.staged = true
	}
	return nil
}

func (r *router) skip(path string, err error) {
	log.Printf("review edit skipped session=%s review=%s path=%s err=%v", r.review.SessionID, r.review.ID, path, err)
	r.result.Skipped = append(r.result.Skipped, SkippedEdit{Path: path, Reason: err.Error()})
}
