package decompose

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"yqhp/arena/pkg/types"
)

// ErrUnusableResponse is returned by Parse for blank answers.
var ErrUnusableResponse = errors.New("unusable decomposition response")

const maxSubtasks = 8

var (
	highComplexityKeywords = []string{
		"distributed", "microservice", "real-time", "realtime", "scalable",
		"enterprise", "machine learning", "authentication", "high complexity",
	}
	lowComplexityKeywords = []string{
		"simple", "basic", "static", "hello world", "prototype", "low complexity",
	}

	baseTestSpecs = []string{
		"unit: core logic behaves as described",
		"integration: components work together",
		"e2e: primary user flow completes",
	}

	keywordTestSpecs = []struct {
		keywords []string
		spec     string
	}{
		{[]string{"api", "endpoint", "rest"}, "api contract: endpoints return valid JSON with correct status codes"},
		{[]string{"ui", "frontend", "page", "form"}, "accessibility: pages expose labels, alt text and a document language"},
		{[]string{"performance", "fast", "latency", "load"}, "load: p95 latency stays under 500ms"},
		{[]string{"auth", "login", "password"}, "security: protected routes reject anonymous access"},
	}

	scaffolding = map[string][]string{
		"react":      {"vite react template", "src/components directory", "vitest + testing-library"},
		"vue":        {"vite vue template", "src/components directory", "vitest"},
		"node":       {"express server in server.js", "npm test script", "GET /health endpoint"},
		"python":     {"fastapi app in main.py", "pytest suite in tests/", "GET /health endpoint"},
		"go":         {"cmd/server/main.go", "net/http handlers", "go test ./..."},
		"html":       {"index.html with viewport meta", "styles.css", "README with run instructions"},
		"javascript": {"main.js as ES module", "package.json test script"},
	}
	defaultScaffolding = []string{"README with run instructions", "HTTP server on $PORT", "GET /health endpoint"}

	evaluationCriteria = []string{
		"correctness", "code quality", "performance", "accessibility", "API design",
	}

	listItem = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s+(.+)$`)
)

// Parse reads a free-text decomposition. It is deliberately lossy: only
// list items, keyword hits and canned tables are used. Fields it cannot
// recover are filled from the same defaults as Fallback.
func Parse(response string, task types.Task, roster []string) (*types.Decomposition, error) {
	if strings.TrimSpace(response) == "" {
		return nil, ErrUnusableResponse
	}

	techs := technologies(task)
	tests := TestSpecs(response + "\n" + task.Prompt)
	hints := ScaffoldingHints(techs)

	var subtasks []types.Subtask
	for _, desc := range ExtractSubtasks(response) {
		subtasks = append(subtasks, types.Subtask{
			ID:                 subtaskID(len(subtasks)),
			Description:        desc,
			TestSpecs:          tests,
			AssignedWorkers:    append([]string(nil), roster...),
			Scaffolding:        hints,
			EvaluationCriteria: append([]string(nil), evaluationCriteria...),
		})
	}
	if len(subtasks) == 0 {
		subtasks = []types.Subtask{{
			ID:                 subtaskID(0),
			Description:        mainTask(task),
			TestSpecs:          tests,
			AssignedWorkers:    append([]string(nil), roster...),
			Scaffolding:        hints,
			EvaluationCriteria: append([]string(nil), evaluationCriteria...),
		}}
	}

	return &types.Decomposition{
		MainTask:     mainTask(task),
		Technologies: techs,
		Subtasks:     subtasks,
		PortMap:      PortMap(roster),
		Complexity:   EstimateComplexity(response + "\n" + task.Prompt),
		Source:       types.DecompositionFromReasoning,
		Raw:          response,
	}, nil
}

// EstimateComplexity labels text by keyword presence. High wins over low.
func EstimateComplexity(text string) types.Complexity {
	lower := strings.ToLower(text)
	for _, kw := range highComplexityKeywords {
		if strings.Contains(lower, kw) {
			return types.ComplexityHigh
		}
	}
	for _, kw := range lowComplexityKeywords {
		if strings.Contains(lower, kw) {
			return types.ComplexityLow
		}
	}
	return types.ComplexityMedium
}

// ExtractSubtasks returns the first numbered or bulleted lines of text.
func ExtractSubtasks(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		m := listItem.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		item := strings.Trim(strings.TrimSpace(m[1]), "*_`")
		if len(item) < 4 {
			continue
		}
		out = append(out, item)
		if len(out) == maxSubtasks {
			break
		}
	}
	return out
}

// TestSpecs returns the canned categories plus keyword-triggered ones.
func TestSpecs(text string) []string {
	lower := strings.ToLower(text)
	specs := append([]string(nil), baseTestSpecs...)
	for _, kt := range keywordTestSpecs {
		for _, kw := range kt.keywords {
			if containsWord(lower, kw) {
				specs = append(specs, kt.spec)
				break
			}
		}
	}
	return specs
}

// ScaffoldingHints returns canned hints for each technology, never empty.
func ScaffoldingHints(techs []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tech := range techs {
		for _, h := range scaffolding[strings.ToLower(strings.TrimSpace(tech))] {
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			out = append(out, h)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultScaffolding...)
	}
	return out
}

func containsWord(text, word string) bool {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
	return re.MatchString(text)
}

func subtaskID(i int) string {
	return "subtask-" + strconv.Itoa(i+1)
}
