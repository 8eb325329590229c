package validation

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dop251/goja"

	"yqhp/arena/pkg/types"
)

// Quality thresholds.
const (
	MaxFileLines     = 600
	MaxTodoPer100    = 1.0
	maxSyntaxPenalty = 45
	maxSizePenalty   = 15
)

var (
	sourceExt = map[string]bool{
		".js": true, ".jsx": true, ".mjs": true, ".cjs": true, ".ts": true, ".tsx": true,
		".py": true, ".go": true, ".vue": true, ".html": true, ".css": true,
	}
	scriptExt = map[string]bool{".js": true, ".mjs": true, ".cjs": true}
	skipDirs  = map[string]bool{"node_modules": true, ".git": true, "dist": true, "build": true, "vendor": true, "__pycache__": true}

	todoPattern   = regexp.MustCompile(`\b(TODO|FIXME|XXX)\b`)
	modulePattern = regexp.MustCompile(`(?m)^\s*(import|export)\b`)
)

// QualityCheck statically analyzes a worker's workspace.
type QualityCheck struct{}

// NewQualityCheck creates the built-in quality check.
func NewQualityCheck() *QualityCheck { return &QualityCheck{} }

// Category implements Check.
func (*QualityCheck) Category() string { return types.CategoryQuality }

type sourceStats struct {
	files      int
	lines      int
	todos      int
	tests      int
	readme     bool
	oversized  []string
	syntaxErrs []string
	unchecked  int
}

// Run implements Check.
func (q *QualityCheck) Run(ctx context.Context, t Target) Result {
	var r Result
	if t.Workspace == "" {
		r.addf("no workspace")
		return r
	}

	st, err := scan(ctx, t.Workspace)
	if err != nil {
		r.addf("workspace unreadable: %v", err)
		return r
	}
	if st.files == 0 {
		r.addf("no source files in workspace")
		return r
	}

	score := 100.0
	r.addf("%d source files, %d lines", st.files, st.lines)
	if st.tests == 0 {
		score -= 20
		r.addf("no test files")
	} else {
		r.addf("%d test files", st.tests)
	}
	if !st.readme {
		score -= 10
		r.addf("no README")
	}

	penalty := 0.0
	for _, e := range st.syntaxErrs {
		penalty += 15
		r.addf("syntax error: %s", e)
	}
	score -= min(penalty, maxSyntaxPenalty)
	if st.unchecked > 0 {
		r.addf("%d module files not syntax-checked", st.unchecked)
	}

	if density := float64(st.todos) * 100 / float64(max(st.lines, 1)); density > MaxTodoPer100 {
		score -= 10
		r.addf("%d TODO/FIXME markers (%.1f per 100 lines)", st.todos, density)
	}

	penalty = 0
	for _, f := range st.oversized {
		penalty += 5
		r.addf("oversized file: %s", f)
	}
	score -= min(penalty, maxSizePenalty)

	r.Score = types.ClampScore(score)
	return r
}

func scan(ctx context.Context, root string) (*sourceStats, error) {
	st := &sourceStats{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && skipDirs[name] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(strings.ToLower(name), "readme") {
			st.readme = true
			return nil
		}
		ext := strings.ToLower(filepath.Ext(name))
		if !sourceExt[ext] {
			return nil
		}

		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		lines := bytes.Count(src, []byte{'\n'}) + 1

		st.files++
		st.lines += lines
		st.todos += len(todoPattern.FindAll(src, -1))
		if isTestFile(rel) {
			st.tests++
		}
		if lines > MaxFileLines {
			st.oversized = append(st.oversized, rel)
		}
		if scriptExt[ext] {
			if modulePattern.Match(src) {
				st.unchecked++
			} else if err := checkSyntax(rel, string(src)); err != nil {
				st.syntaxErrs = append(st.syntaxErrs, err.Error())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// checkSyntax compiles a classic script without running it.
func checkSyntax(name, src string) error {
	_, err := goja.Compile(name, src, false)
	return err
}

func isTestFile(rel string) bool {
	name := strings.ToLower(filepath.Base(rel))
	if strings.Contains(name, ".test.") || strings.Contains(name, ".spec.") ||
		strings.Contains(name, "_test.") || strings.HasPrefix(name, "test_") {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
		switch part {
		case "test", "tests", "__tests__", "spec":
			return true
		}
	}
	return false
}
