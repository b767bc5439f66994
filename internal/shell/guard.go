package shell

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// AllowAll disables the allow-list when present in it. The deny-list still applies.
const AllowAll = "*"

type denyRule struct {
	name    string
	pattern *regexp.Regexp
}

var denyRules = []denyRule{
	{name: "recursive delete of root or home", pattern: regexp.MustCompile(`\brm\s+(-[a-zA-Z-]+\s+)+(/|/\*|~|~/)(\s|;|&|\||$)`)},
	{name: "filesystem format", pattern: regexp.MustCompile(`\bmkfs(\.[a-z0-9]+)?\b`)},
	{name: "fork bomb", pattern: regexp.MustCompile(`:\s*\(\s*\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;?\s*:`)},
	{name: "raw disk copy", pattern: regexp.MustCompile(`\bdd\s+if=`)},
}

// Power commands are matched on the program a segment runs, so the words
// themselves stay usable as arguments (grep -rn shutdown).
var (
	powerCommands   = map[string]struct{}{"shutdown": {}, "reboot": {}, "halt": {}, "poweroff": {}}
	commandWrappers = map[string]struct{}{"sudo": {}, "doas": {}, "nohup": {}, "exec": {}, "command": {}, "nice": {}}
)

var (
	segmentSplitter = regexp.MustCompile(`&&|\|\||[;|&\n]`)
	redirectAmp     = regexp.MustCompile(`[<>]&|&>`)
)

// Guard decides whether a command may run.
type Guard struct {
	allowAll bool
	allowed  map[string]struct{}
}

func NewGuard(allowlist []string) *Guard {
	g := &Guard{allowed: map[string]struct{}{}}
	for _, item := range allowlist {
		name := strings.TrimSpace(item)
		if name == "" {
			continue
		}
		if name == AllowAll {
			g.allowAll = true
			continue
		}
		g.allowed[name] = struct{}{}
	}
	return g
}

// Check returns a non-empty reason when command must not run. Deny rules are
// matched on the whole command, host power commands on the program of each
// segment, and the allow-list on every segment of a compound command.
func (g *Guard) Check(command string) string {
	for _, rule := range denyRules {
		if rule.pattern.MatchString(command) {
			return "blocked: " + rule.name
		}
	}
	segments := segmentSplitter.Split(redirectAmp.ReplaceAllString(command, ">"), -1)
	for _, segment := range segments {
		if powersOffHost(segment) {
			return "blocked: host shutdown"
		}
	}
	if g.allowAll {
		return ""
	}
	if strings.Contains(command, "$(") || strings.Contains(command, "`") {
		return "blocked: command substitution is not allowed"
	}
	for _, segment := range segments {
		head := commandHead(segment)
		if head == "" {
			continue
		}
		if _, ok := g.allowed[head]; !ok {
			return fmt.Sprintf("blocked: %q is not in the shell allow-list", head)
		}
	}
	return ""
}

// commandHead returns the program name of one segment, skipping leading
// environment assignments and subshell parentheses.
func commandHead(segment string) string {
	fields := commandFields(segment)
	if len(fields) == 0 {
		return ""
	}
	return filepath.Base(fields[0])
}

// commandFields returns the words of a segment starting at its program.
func commandFields(segment string) []string {
	fields := strings.Fields(segment)
	for idx, field := range fields {
		field = strings.TrimLeft(field, "({")
		if field == "" {
			continue
		}
		if strings.Contains(field, "=") && !strings.HasPrefix(field, "=") && !strings.ContainsAny(field[:strings.Index(field, "=")], "/.") {
			continue
		}
		return append([]string{field}, fields[idx+1:]...)
	}
	return nil
}

// powersOffHost looks through privilege and process wrappers (sudo, nohup)
// for a power command, including systemctl's power verbs.
func powersOffHost(segment string) bool {
	fields := commandFields(segment)
	for len(fields) > 0 {
		name := filepath.Base(fields[0])
		if _, ok := powerCommands[name]; ok {
			return true
		}
		if name == "systemctl" {
			for _, arg := range fields[1:] {
				if _, ok := powerCommands[arg]; ok {
					return true
				}
			}
			return false
		}
		if _, ok := commandWrappers[name]; !ok {
			return false
		}
		fields = fields[1:]
		for len(fields) > 0 && strings.HasPrefix(fields[0], "-") {
			fields = fields[1:]
		}
	}
	return false
}
