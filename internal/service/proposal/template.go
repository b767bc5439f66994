package proposal

import (
	"fmt"
	"strings"
)

const noFileOpen = "No file open."

const maxContextRunes = 120000

const systemInstruction = `You are the AI core of a production service, running on its host with file system and database access.

### Development lifecycle
1. New modules must be created under 'src/staging_builds/'.
2. Active modules live in 'src/components/' or 'src/active_modules/'.
3. Promotion from staging to active is done by the operator, never by you.

### Risk analysis (required for every UPDATE)
Whenever you change code, assess:
1. Security: credential exposure, injection.
2. Performance: unbounded loops, heavy queries.
3. Integrity: broken imports and dependencies.
Score each from 0 to 100, where 100 means no risk.

### Output
Reply with a single JSON object and nothing else:
{
  "actionType": "CREATE" | "UPDATE" | "DELETE" | "EXPLAIN" | "SHELL" | "SQL_QUERY" | "ANALYZE_RISK",
  "message": "short explanation",
  "files": [ { "path": "src/staging_builds/...", "content": "full file content" } ],
  "shellCommand": "npm install ...",
  "sqlQuery": "...",
  "riskAnalysis": {
    "securityScore": 90,
    "performanceScore": 85,
    "integrityScore": 100,
    "riskLevel": "LOW",
    "analysis": "what could go wrong"
  }
}
Paths are relative to the project root. File content is always the complete new file, never a patch.`

// FileContext is the file the operator has open, if any.
type FileContext struct {
	Path    string
	Content string
}

func (f FileContext) Empty() bool {
	return strings.TrimSpace(f.Path) == ""
}

func buildUserPrompt(request string, file FileContext) string {
	var b strings.Builder
	b.WriteString("TECHNICAL CONTEXT (current file): ")
	if file.Empty() {
		b.WriteString(noFileOpen)
	} else {
		fmt.Fprintf(&b, "%s\n```\n%s\n```", file.Path, truncateRunes(file.Content, maxContextRunes))
	}
	fmt.Fprintf(&b, "\nOPERATOR REQUEST: %q", strings.TrimSpace(request))
	return b.String()
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "\n...(truncated)"
}
