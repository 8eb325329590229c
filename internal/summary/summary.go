// Package summary renders the human-readable report printed after a run.
package summary

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"yqhp/arena/internal/deploy"
	"yqhp/arena/pkg/types"
)

// Input is everything the summary shows.
type Input struct {
	Run       *types.RunContext
	Result    *types.RunResult
	Endpoints []deploy.Endpoint
	// Artifacts maps a label to a path, e.g. "report" to report.json.
	Artifacts map[string]string
	Err       error
}

// Theme holds the summary styles.
type Theme struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Header  lipgloss.Style
	Cell    lipgloss.Style
	Border  lipgloss.Style
}

// DefaultTheme returns the default terminal styles.
func DefaultTheme() Theme {
	return Theme{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Label:   lipgloss.NewStyle().Bold(true),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Header:  lipgloss.NewStyle().Bold(true).Padding(0, 1),
		Cell:    lipgloss.NewStyle().Padding(0, 1),
		Border:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// Render renders in with the default theme.
func Render(in Input) string {
	return DefaultTheme().Render(in)
}

// Render renders the run summary: header, worker table, verdict, endpoints,
// degradation notes and artifact paths. It never fails; missing parts are
// shown as such.
func (th Theme) Render(in Input) string {
	rc := in.Run
	if rc == nil {
		return th.Error.Render("no run")
	}

	sections := []string{th.header(in)}
	sections = append(sections, th.workers(in))
	if v := th.verdict(rc); v != "" {
		sections = append(sections, v)
	}
	if e := th.endpoints(in.Endpoints); e != "" {
		sections = append(sections, e)
	}
	if len(rc.Notes) > 0 {
		lines := []string{th.Label.Render("Notes")}
		for _, n := range rc.Notes {
			lines = append(lines, th.Warning.Render("  ! "+n))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}
	if a := th.artifacts(in.Artifacts); a != "" {
		sections = append(sections, a)
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func (th Theme) header(in Input) string {
	rc := in.Run
	lines := []string{
		th.Title.Render(fmt.Sprintf("Arena run %s", rc.RunID)),
		fmt.Sprintf("%s %s", th.Label.Render("Task:"), rc.Task.Prompt),
		fmt.Sprintf("%s %s, %d workers", th.Label.Render("Tier:"), rc.Task.Tier, len(rc.Roster)),
	}
	if rc.Decomposition != nil {
		lines = append(lines, fmt.Sprintf("%s %s complexity, %d subtasks (%s)",
			th.Label.Render("Plan:"), rc.Decomposition.Complexity, len(rc.Decomposition.Subtasks), rc.Decomposition.Source))
	}

	status := th.Success.Render("completed")
	switch {
	case in.Err != nil:
		status = th.Error.Render("failed: " + in.Err.Error())
	case in.Result.Failed():
		status = th.Error.Render("failed: " + in.Result.ErrorMessage())
	}
	lines = append(lines, fmt.Sprintf("%s %s", th.Label.Render("Status:"), status))
	if in.Result != nil {
		lines = append(lines, fmt.Sprintf("%s %s", th.Label.Render("Elapsed:"), in.Result.Elapsed.Round(time.Second)))
	}
	return strings.Join(lines, "\n")
}

func (th Theme) workers(in Input) string {
	rc := in.Run
	ids := rc.WorkerIDs()
	if len(ids) == 0 {
		return th.Muted.Render("No workers were provisioned.")
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(th.Border).
		Headers("Worker", "Capability", "Status", "Phase", "Lines", "Tests", "Quality", "Perf", "Browser", "API", "Overall").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return th.Header
			}
			return th.Cell
		})

	for _, id := range ids {
		w := rc.Workers[id]
		status := "not deployed"
		phase, lines, tests := "-", "-", "-"
		if in.Result != nil {
			if c, ok := in.Result.Containers[id]; ok {
				status = string(c.Status)
				phase = string(c.Phase)
				lines = fmt.Sprintf("+%d/-%d", c.Metrics.LinesAdded, c.Metrics.LinesDeleted)
				tests = fmt.Sprintf("%d/%d", c.Metrics.TestsPassed, c.Metrics.TestsPassed+c.Metrics.TestsFailed)
			}
		}
		capability := w.Capability
		if w.Specialization != "" {
			capability += " (" + w.Specialization + ")"
		}

		row := []string{id, capability, status, phase, lines, tests}
		if r := rc.Reports[id]; r != nil {
			row = append(row, score(r.Scores.Quality), score(r.Scores.Performance),
				score(r.Scores.Browser), score(r.Scores.API), strconv.FormatFloat(r.Overall, 'f', 1, 64))
		} else {
			row = append(row, "-", "-", "-", "-", "-")
		}
		t.Row(row...)
	}
	return t.Render()
}

func (th Theme) verdict(rc *types.RunContext) string {
	syn := rc.Synthesis
	if syn == nil {
		return ""
	}
	winner := th.Success.Render(syn.Winner)
	if syn.WinnerDefaulted {
		winner += th.Muted.Render(" (default, no clear winner in the synthesis)")
	}
	lines := []string{fmt.Sprintf("%s %s", th.Label.Render("Winner:"), winner)}
	if len(syn.Improvements) > 0 {
		lines = append(lines, th.Label.Render("Improvements:"))
		for i, imp := range syn.Improvements {
			lines = append(lines, fmt.Sprintf("  %d. %s", i+1, imp))
		}
	}
	return strings.Join(lines, "\n")
}

func (th Theme) endpoints(eps []deploy.Endpoint) string {
	if len(eps) == 0 {
		return ""
	}
	lines := []string{th.Label.Render("Endpoints:")}
	for _, e := range eps {
		name := e.Role
		if e.WorkerID != "" {
			name += " " + e.WorkerID
		}
		if e.Published() {
			lines = append(lines, fmt.Sprintf("  %-18s %s", name, e.URL))
		} else {
			lines = append(lines, fmt.Sprintf("  %-18s %s", name, th.Error.Render("unavailable: "+e.Error)))
		}
	}
	return strings.Join(lines, "\n")
}

// artifactOrder fixes the display order of well-known artifacts.
var artifactOrder = []string{"workspace", "descriptor", "decomposition", "report", "logs", "history"}

func (th Theme) artifacts(paths map[string]string) string {
	if len(paths) == 0 {
		return ""
	}
	lines := []string{th.Label.Render("Artifacts:")}
	shown := make(map[string]bool, len(paths))
	for _, k := range artifactOrder {
		if p, ok := paths[k]; ok {
			lines = append(lines, fmt.Sprintf("  %-14s %s", k, p))
			shown[k] = true
		}
	}
	rest := make([]string, 0, len(paths))
	for k := range paths {
		if !shown[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		lines = append(lines, fmt.Sprintf("  %-14s %s", k, paths[k]))
	}
	return strings.Join(lines, "\n")
}

func score(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64)
}
