package review

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	"siecore/apps/console/internal/domain"
)

// Finding is one added line that touches a sensitive surface. Findings are
// shown next to the diff; they never block a confirm.
type Finding struct {
	Category string           `json:"category"`
	Line     int              `json:"line"`
	Text     string           `json:"text"`
	Level    domain.RiskLevel `json:"level"`
}

var riskPatterns = []struct {
	category string
	level    domain.RiskLevel
	patterns []*regexp.Regexp
}{
	{
		category: "hardcoded secret",
		level:    domain.RiskCritical,
		patterns: compilePatterns(
			`(?i)(api.?key|secret|password|passwd|token)\s*[:=]\s*["'][^"'\s]{8,}["']`,
			`AKIA[0-9A-Z]{16}`,
			`-----BEGIN [A-Z ]*PRIVATE KEY-----`,
		),
	},
	{
		category: "subprocess/exec",
		level:    domain.RiskHigh,
		patterns: compilePatterns(
			`(?i)(exec\.Command|os\.system|subprocess|child_process|shell_exec|execSync|spawnSync)`,
			`\beval\(`,
		),
	},
	{
		category: "destructive SQL",
		level:    domain.RiskHigh,
		patterns: compilePatterns(
			`(?i)\b(DROP|TRUNCATE)\s+(TABLE|DATABASE)\b`,
			`(?i)\bDELETE\s+FROM\s+\w+\s*;?\s*$`,
		),
	},
	{
		category: "file system",
		level:    domain.RiskMedium,
		patterns: compilePatterns(
			`(?i)(os\.Remove|os\.RemoveAll|fs\.rm|rmSync|unlinkSync|rmdir|chmod|chown)`,
			`\.\./\.\./`,
		),
	},
	{
		category: "transport security",
		level:    domain.RiskMedium,
		patterns: compilePatterns(
			`(?i)(InsecureSkipVerify\s*:\s*true|rejectUnauthorized\s*:\s*false|NODE_TLS_REJECT_UNAUTHORIZED)`,
			`(?i)Access-Control-Allow-Origin["']?\s*[,:]\s*["']\*`,
		),
	},
	{
		category: "unbounded loop",
		level:    domain.RiskLow,
		patterns: compilePatterns(
			`while\s*\(\s*true\s*\)`,
			`for\s*\(\s*;\s*;\s*\)`,
		),
	},
}

func compilePatterns(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// scanAddedLines reports at most one finding per category per added line.
// Comment-only lines are skipped.
func scanAddedLines(files []*gitdiff.File) []Finding {
	var findings []Finding
	for _, file := range files {
		for _, frag := range file.TextFragments {
			lineNum := int(frag.NewPosition)
			for _, line := range frag.Lines {
				if line.Op == gitdiff.OpAdd && !isCommentLine(line.Line) {
					findings = append(findings, matchLine(lineNum, line.Line)...)
				}
				if line.Op != gitdiff.OpDelete {
					lineNum++
				}
			}
		}
	}
	return findings
}

func matchLine(lineNum int, text string) []Finding {
	var out []Finding
	trimmed := strings.TrimSpace(text)
	for _, group := range riskPatterns {
		for _, re := range group.patterns {
			if !re.MatchString(text) {
				continue
			}
			out = append(out, Finding{
				Category: group.category,
				Line:     lineNum,
				Text:     truncateFinding(trimmed),
				Level:    group.level,
			})
			break
		}
	}
	return out
}

func isCommentLine(text string) bool {
	trimmed := strings.TrimSpace(text)
	for _, prefix := range []string{"//", "#", "/*", "*"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

func truncateFinding(text string) string {
	const limit = 160
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

// highestLevel is LOW when there are no findings.
func highestLevel(findings []Finding) domain.RiskLevel {
	level := domain.RiskLow
	for _, f := range findings {
		if f.Level.Severity() > level.Severity() {
			level = f.Level
		}
	}
	return level
}

func summarizeFindings(findings []Finding) string {
	if len(findings) == 0 {
		return "no sensitive lines added"
	}
	return fmt.Sprintf("%d sensitive line(s) added, highest level %s", len(findings), highestLevel(findings))
}
