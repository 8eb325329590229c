package assessment

import (
	"regexp"
	"strings"
)

// MaxImprovements caps the improvement list.
const MaxImprovements = 10

var (
	sentenceBreak = regexp.MustCompile(`[.!?]+(?:\s+|$)|\n+`)
	superiority   = regexp.MustCompile(`(?i)\b(winner|best|superior|outperform\w*|wins|recommended|strongest)\b`)
	listItem      = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s+(.+)$`)
	sectionHead   = regexp.MustCompile(`(?i)\b(improvements?|recommendations?|next steps)\b`)
	actionWord    = regexp.MustCompile(`(?i)\b(improve\w*|add|refactor\w*|fix|increase|reduce|implement|consider|should|optimi[sz]e\w*)\b`)
)

// ExtractWinner picks the winner from free text. Only sentences carrying a
// superiority claim count; if together they name exactly one of ids, that id
// wins. Otherwise the first id is returned with defaulted set. The result is
// always an element of ids unless ids is empty.
func ExtractWinner(text string, ids []string) (winner string, defaulted bool) {
	if len(ids) == 0 {
		return "", true
	}

	named := make(map[string]bool)
	for _, s := range sentences(text) {
		if !superiority.MatchString(s) {
			continue
		}
		for _, id := range ids {
			if mentions(s, id) {
				named[id] = true
			}
		}
	}
	if len(named) == 1 {
		for id := range named {
			return id, false
		}
	}
	return ids[0], true
}

// ExtractImprovements returns at most MaxImprovements list items. Items under
// an improvements heading are preferred; otherwise any list item phrased as
// an action is taken.
func ExtractImprovements(text string) []string {
	var section, loose []string
	inSection := false

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		m := listItem.FindStringSubmatch(line)
		if m == nil {
			if isHeading(trimmed) || sectionHead.MatchString(trimmed) {
				inSection = sectionHead.MatchString(trimmed)
			}
			continue
		}

		item := cleanItem(m[1])
		if item == "" {
			continue
		}
		if inSection {
			section = append(section, item)
		} else if actionWord.MatchString(item) {
			loose = append(loose, item)
		}
	}

	items := section
	if len(items) == 0 {
		items = loose
	}
	return dedupe(items, MaxImprovements)
}

func sentences(text string) []string {
	var out []string
	for _, s := range sentenceBreak.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// mentions reports whether s names id as a whole token. "worker-1" also
// matches "Worker 1" but never "worker-10".
func mentions(s, id string) bool {
	if id == "" {
		return false
	}
	s = strings.ToLower(s)
	for _, form := range []string{strings.ToLower(id), strings.ReplaceAll(strings.ToLower(id), "-", " ")} {
		for from := 0; ; {
			i := strings.Index(s[from:], form)
			if i < 0 {
				break
			}
			start, end := from+i, from+i+len(form)
			if boundary(s, start-1) && boundary(s, end) {
				return true
			}
			from = start + 1
		}
	}
	return false
}

func boundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' || c == '_')
}

func isHeading(line string) bool {
	return strings.HasPrefix(line, "#") || strings.HasSuffix(line, ":")
}

func cleanItem(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	return strings.TrimSpace(strings.TrimRight(s, " ."))
}

func dedupe(items []string, limit int) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, min(len(items), limit))
	for _, it := range items {
		key := strings.ToLower(it)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
		if len(out) == limit {
			break
		}
	}
	return out
}
