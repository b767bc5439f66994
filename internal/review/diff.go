package review

import (
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

const (
	diffContextLines = 3
	// Above this many LCS cells the changed block is rendered as a plain
	// replacement instead.
	maxLCSCells = 4_000_000
	devNull     = "/dev/null"
	noEOLMarker = "\\ No newline at end of file"
)

type DiffStats struct {
	Added   int `json:"added"`
	Deleted int `json:"deleted"`
	Hunks   int `json:"hunks"`
}

type lineOp struct {
	kind byte
	text string
}

// UnifiedDiff compares two versions of path with a/ and b/ prefixes.
func UnifiedDiff(path, before, after string) string {
	return buildUnifiedDiff("a/"+path, "b/"+path, before, after)
}

// buildUnifiedDiff renders a unified diff between two versions of one file.
// An empty result means the contents are line-for-line identical.
func buildUnifiedDiff(oldName, newName, before, after string) string {
	if before == after {
		return ""
	}
	ops := diffLines(splitLines(before), splitLines(after))
	hunks := formatHunks(ops, diffContextLines)
	if hunks == "" {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("--- " + oldName + "\n")
	builder.WriteString("+++ " + newName + "\n")
	builder.WriteString(hunks)
	return builder.String()
}

// splitLines breaks content into lines. An unterminated last line carries
// the no-newline marker, so it differs from the same text with a newline and
// renders the marker wherever it appears in a hunk.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if last := len(lines) - 1; lines[last] == "" {
		lines = lines[:last]
	} else {
		lines[last] += "\n" + noEOLMarker
	}
	return lines
}

func diffLines(before, after []string) []lineOp {
	prefix := 0
	for prefix < len(before) && prefix < len(after) && before[prefix] == after[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(before)-prefix && suffix < len(after)-prefix &&
		before[len(before)-1-suffix] == after[len(after)-1-suffix] {
		suffix++
	}

	ops := make([]lineOp, 0, len(before)+len(after))
	for _, line := range before[:prefix] {
		ops = append(ops, lineOp{kind: ' ', text: line})
	}
	ops = append(ops, diffMiddle(before[prefix:len(before)-suffix], after[prefix:len(after)-suffix])...)
	for _, line := range before[len(before)-suffix:] {
		ops = append(ops, lineOp{kind: ' ', text: line})
	}
	return ops
}

func diffMiddle(a, b []string) []lineOp {
	ops := make([]lineOp, 0, len(a)+len(b))
	if len(a)*len(b) > maxLCSCells {
		for _, line := range a {
			ops = append(ops, lineOp{kind: '-', text: line})
		}
		for _, line := range b {
			ops = append(ops, lineOp{kind: '+', text: line})
		}
		return ops
	}

	n, m := len(a), len(b)
	// lcs[i][j] is the longest common subsequence of a[i:] and b[j:].
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			switch {
			case a[i] == b[j]:
				lcs[i][j] = lcs[i+1][j+1] + 1
			case lcs[i+1][j] >= lcs[i][j+1]:
				lcs[i][j] = lcs[i+1][j]
			default:
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			ops = append(ops, lineOp{kind: ' ', text: a[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			ops = append(ops, lineOp{kind: '-', text: a[i]})
			i++
		default:
			ops = append(ops, lineOp{kind: '+', text: b[j]})
			j++
		}
	}
	for ; i < n; i++ {
		ops = append(ops, lineOp{kind: '-', text: a[i]})
	}
	for ; j < m; j++ {
		ops = append(ops, lineOp{kind: '+', text: b[j]})
	}
	return ops
}

func formatHunks(ops []lineOp, context int) string {
	var ranges [][2]int
	for idx, op := range ops {
		if op.kind == ' ' {
			continue
		}
		start := max(0, idx-context)
		end := min(len(ops), idx+context+1)
		if last := len(ranges) - 1; last >= 0 && start <= ranges[last][1] {
			ranges[last][1] = max(ranges[last][1], end)
			continue
		}
		ranges = append(ranges, [2]int{start, end})
	}
	if len(ranges) == 0 {
		return ""
	}

	oldBefore := make([]int, len(ops)+1)
	newBefore := make([]int, len(ops)+1)
	for idx, op := range ops {
		oldBefore[idx+1] = oldBefore[idx]
		newBefore[idx+1] = newBefore[idx]
		if op.kind != '+' {
			oldBefore[idx+1]++
		}
		if op.kind != '-' {
			newBefore[idx+1]++
		}
	}

	var builder strings.Builder
	for _, r := range ranges {
		oldCount := oldBefore[r[1]] - oldBefore[r[0]]
		newCount := newBefore[r[1]] - newBefore[r[0]]
		builder.WriteString(fmt.Sprintf("@@ -%d,%d +%d,%d @@\n",
			hunkStart(oldBefore[r[0]], oldCount), oldCount,
			hunkStart(newBefore[r[0]], newCount), newCount))
		for _, op := range ops[r[0]:r[1]] {
			builder.WriteByte(op.kind)
			builder.WriteString(op.text)
			builder.WriteByte('\n')
		}
	}
	return builder.String()
}

// hunkStart follows the unified format: an empty range names the line
// before it.
func hunkStart(linesBefore, count int) int {
	if count == 0 {
		return linesBefore
	}
	return linesBefore + 1
}

func parseDiff(raw string) ([]*gitdiff.File, error) {
	if raw == "" {
		return nil, nil
	}
	files, _, err := gitdiff.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse diff: %w", err)
	}
	return files, nil
}

func diffStats(files []*gitdiff.File) DiffStats {
	var stats DiffStats
	for _, file := range files {
		for _, frag := range file.TextFragments {
			stats.Hunks++
			for _, line := range frag.Lines {
				switch line.Op {
				case gitdiff.OpAdd:
					stats.Added++
				case gitdiff.OpDelete:
					stats.Deleted++
				}
			}
		}
	}
	return stats
}
