package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

type ActionKind string

const (
	ActionCreate       ActionKind = "CREATE"
	ActionUpdate       ActionKind = "UPDATE"
	ActionDelete       ActionKind = "DELETE"
	ActionExplain      ActionKind = "EXPLAIN"
	ActionShell        ActionKind = "SHELL"
	ActionQuery        ActionKind = "SQL_QUERY"
	ActionRiskAnalysis ActionKind = "ANALYZE_RISK"
)

// Action is the closed set of proposal kinds. Only the variants in this file
// implement it; handlers dispatch through ActionVisitor, so adding a variant
// breaks every visitor at compile time until it is handled.
type Action interface {
	Kind() ActionKind
	Accept(v ActionVisitor) error
	sealed()
}

type ActionVisitor interface {
	VisitCreate(CreateAction) error
	VisitUpdate(UpdateAction) error
	VisitDelete(DeleteAction) error
	VisitExplain(ExplainAction) error
	VisitShell(ShellAction) error
	VisitQuery(QueryAction) error
	VisitRiskAnalysis(RiskAnalysisAction) error
}

type (
	CreateAction       struct{}
	UpdateAction       struct{}
	DeleteAction       struct{}
	ExplainAction      struct{}
	ShellAction        struct{}
	QueryAction        struct{}
	RiskAnalysisAction struct{}
)

func (CreateAction) Kind() ActionKind       { return ActionCreate }
func (UpdateAction) Kind() ActionKind       { return ActionUpdate }
func (DeleteAction) Kind() ActionKind       { return ActionDelete }
func (ExplainAction) Kind() ActionKind      { return ActionExplain }
func (ShellAction) Kind() ActionKind        { return ActionShell }
func (QueryAction) Kind() ActionKind        { return ActionQuery }
func (RiskAnalysisAction) Kind() ActionKind { return ActionRiskAnalysis }

func (a CreateAction) Accept(v ActionVisitor) error       { return v.VisitCreate(a) }
func (a UpdateAction) Accept(v ActionVisitor) error       { return v.VisitUpdate(a) }
func (a DeleteAction) Accept(v ActionVisitor) error       { return v.VisitDelete(a) }
func (a ExplainAction) Accept(v ActionVisitor) error      { return v.VisitExplain(a) }
func (a ShellAction) Accept(v ActionVisitor) error        { return v.VisitShell(a) }
func (a QueryAction) Accept(v ActionVisitor) error        { return v.VisitQuery(a) }
func (a RiskAnalysisAction) Accept(v ActionVisitor) error { return v.VisitRiskAnalysis(a) }

func (CreateAction) sealed()       {}
func (UpdateAction) sealed()       {}
func (DeleteAction) sealed()       {}
func (ExplainAction) sealed()      {}
func (ShellAction) sealed()        {}
func (QueryAction) sealed()        {}
func (RiskAnalysisAction) sealed() {}

// ParseAction maps a wire action name onto its variant. QUERY and
// RISK_ANALYSIS are accepted as aliases of SQL_QUERY and ANALYZE_RISK.
func ParseAction(raw string) (Action, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(ActionCreate):
		return CreateAction{}, nil
	case string(ActionUpdate):
		return UpdateAction{}, nil
	case string(ActionDelete):
		return DeleteAction{}, nil
	case string(ActionExplain):
		return ExplainAction{}, nil
	case string(ActionShell):
		return ShellAction{}, nil
	case string(ActionQuery), "QUERY":
		return QueryAction{}, nil
	case string(ActionRiskAnalysis), "RISK_ANALYSIS":
		return RiskAnalysisAction{}, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", raw)
	}
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

func (l RiskLevel) Severity() int {
	switch l {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	default:
		return 0
	}
}

func ParseRiskLevel(raw string) (RiskLevel, bool) {
	level := RiskLevel(strings.ToUpper(strings.TrimSpace(raw)))
	if level.Severity() == 0 {
		return "", false
	}
	return level, true
}

type RiskAnalysis struct {
	SecurityScore    int       `json:"securityScore"`
	PerformanceScore int       `json:"performanceScore"`
	IntegrityScore   int       `json:"integrityScore"`
	Level            RiskLevel `json:"riskLevel"`
	Analysis         string    `json:"analysis"`
}

// DeriveRiskLevel buckets the weakest of the three scores.
func DeriveRiskLevel(security, performance, integrity int) RiskLevel {
	lowest := clampScore(security)
	for _, score := range []int{performance, integrity} {
		if s := clampScore(score); s < lowest {
			lowest = s
		}
	}
	switch {
	case lowest >= 80:
		return RiskLow
	case lowest >= 60:
		return RiskMedium
	case lowest >= 40:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// Normalize clamps scores into 0..100 and settles the level: the more severe
// of the stated level and the level derived from the scores.
func (r *RiskAnalysis) Normalize() {
	if r == nil {
		return
	}
	r.SecurityScore = clampScore(r.SecurityScore)
	r.PerformanceScore = clampScore(r.PerformanceScore)
	r.IntegrityScore = clampScore(r.IntegrityScore)
	derived := DeriveRiskLevel(r.SecurityScore, r.PerformanceScore, r.IntegrityScore)
	stated, ok := ParseRiskLevel(string(r.Level))
	if !ok || derived.Severity() > stated.Severity() {
		r.Level = derived
		return
	}
	r.Level = stated
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

type Proposal struct {
	Action       Action
	Message      string
	Files        []FileEdit
	ShellCommand string
	Query        string
	Risk         *RiskAnalysis
}

func (p Proposal) Kind() ActionKind {
	if p.Action == nil {
		return ActionExplain
	}
	return p.Action.Kind()
}

type proposalWire struct {
	ActionType   ActionKind    `json:"actionType"`
	Message      string        `json:"message"`
	Files        []FileEdit    `json:"files,omitempty"`
	ShellCommand string        `json:"shellCommand,omitempty"`
	SQLQuery     string        `json:"sqlQuery,omitempty"`
	RiskAnalysis *RiskAnalysis `json:"riskAnalysis,omitempty"`
}

func (p Proposal) MarshalJSON() ([]byte, error) {
	return json.Marshal(proposalWire{
		ActionType:   p.Kind(),
		Message:      p.Message,
		Files:        p.Files,
		ShellCommand: p.ShellCommand,
		SQLQuery:     p.Query,
		RiskAnalysis: p.Risk,
	})
}

func (p *Proposal) UnmarshalJSON(data []byte) error {
	var wire struct {
		ActionType   string        `json:"actionType"`
		Message      string        `json:"message"`
		Files        []FileEdit    `json:"files"`
		ShellCommand string        `json:"shellCommand"`
		SQLQuery     string        `json:"sqlQuery"`
		RiskAnalysis *RiskAnalysis `json:"riskAnalysis"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	action, err := ParseAction(wire.ActionType)
	if err != nil {
		return err
	}
	files := make([]FileEdit, 0, len(wire.Files))
	for _, item := range wire.Files {
		path := strings.TrimSpace(item.Path)
		if path == "" {
			continue
		}
		files = append(files, FileEdit{Path: path, Content: item.Content})
	}
	wire.RiskAnalysis.Normalize()
	*p = Proposal{
		Action:       action,
		Message:      strings.TrimSpace(wire.Message),
		Files:        files,
		ShellCommand: strings.TrimSpace(wire.ShellCommand),
		Query:        strings.TrimSpace(wire.SQLQuery),
		Risk:         wire.RiskAnalysis,
	}
	return nil
}
