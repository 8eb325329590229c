package deploy

import (
	"bytes"
	"html/template"

	"github.com/gofiber/fiber/v2"

	"yqhp/arena/pkg/types"
)

// Comparison is the data behind the discussion view.
type Comparison struct {
	RunID           string       `json:"run_id"`
	Task            string       `json:"task"`
	Tier            string       `json:"tier"`
	Winner          string       `json:"winner"`
	WinnerDefaulted bool         `json:"winner_defaulted"`
	Improvements    []string     `json:"improvements"`
	Workers         []Contestant `json:"workers"`
	Endpoints       []Endpoint   `json:"endpoints"`
}

// Contestant is one worker row of the comparison.
type Contestant struct {
	ID             string               `json:"id"`
	Capability     string               `json:"capability"`
	Specialization string               `json:"specialization"`
	Status         types.WorkerStatus   `json:"status"`
	Phase          types.WorkerPhase    `json:"phase"`
	Port           int                  `json:"port"`
	Metrics        types.WorkerMetrics  `json:"metrics"`
	Scores         types.CategoryScores `json:"scores"`
	Overall        float64              `json:"overall"`
	Weighted       float64              `json:"weighted"`
}

// NewComparison collects the comparison data of a finished run, workers in
// roster order.
func NewComparison(rc *types.RunContext) Comparison {
	cmp := Comparison{
		RunID: rc.RunID,
		Task:  rc.Task.Prompt,
		Tier:  rc.Task.Tier,
	}
	if rc.Synthesis != nil {
		cmp.Winner = rc.Synthesis.Winner
		cmp.WinnerDefaulted = rc.Synthesis.WinnerDefaulted
		cmp.Improvements = rc.Synthesis.Improvements
	}
	for _, id := range rc.WorkerIDs() {
		w := rc.Workers[id]
		c := Contestant{
			ID:             id,
			Capability:     w.Capability,
			Specialization: w.Specialization,
			Status:         w.Status,
			Phase:          w.Phase,
			Port:           w.Port,
			Metrics:        w.Metrics,
		}
		if r := rc.Reports[id]; r != nil {
			c.Scores = r.Scores
			c.Overall = r.Overall
			c.Weighted = r.Weighted
		}
		cmp.Workers = append(cmp.Workers, c)
	}
	return cmp
}

var comparisonPage = template.Must(template.New("comparison").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Arena {{.RunID}}</title>
<style>
body{font-family:system-ui,sans-serif;margin:2rem;color:#222}
table{border-collapse:collapse;width:100%}
th,td{border-bottom:1px solid #ddd;padding:.4rem .6rem;text-align:left}
tr.winner{background:#eef9ee}
.err{color:#b00}
</style>
</head>
<body>
<h1>Arena comparison</h1>
<p>{{.Task}}</p>
<p>Tier <strong>{{.Tier}}</strong>. Winner <strong>{{.Winner}}</strong>{{if .WinnerDefaulted}} (default){{end}}.</p>
<table>
<thead><tr><th>Worker</th><th>Capability</th><th>Status</th><th>Quality</th><th>Performance</th><th>Browser</th><th>API</th><th>Overall</th><th>Weighted</th></tr></thead>
<tbody>
{{- range .Workers}}
<tr{{if eq .ID $.Winner}} class="winner"{{end}}><td>{{.ID}}</td><td>{{.Capability}}</td><td>{{.Status}}</td><td>{{printf "%.0f" .Scores.Quality}}</td><td>{{printf "%.0f" .Scores.Performance}}</td><td>{{printf "%.0f" .Scores.Browser}}</td><td>{{printf "%.0f" .Scores.API}}</td><td>{{printf "%.1f" .Overall}}</td><td>{{printf "%.1f" .Weighted}}</td></tr>
{{- end}}
</tbody>
</table>
{{- if .Improvements}}
<h2>Improvements</h2>
<ol>{{range .Improvements}}<li>{{.}}</li>{{end}}</ol>
{{- end}}
<h2>Endpoints</h2>
<ul>
{{- range .Endpoints}}
<li>{{.Role}} {{.WorkerID}}: {{if .Error}}<span class="err">{{.Error}}</span>{{else}}<a href="{{.URL}}">{{.URL}}</a>{{end}}</li>
{{- end}}
</ul>
</body>
</html>
`))

// RenderComparison renders the HTML comparison view.
func RenderComparison(cmp Comparison) ([]byte, error) {
	var buf bytes.Buffer
	if err := comparisonPage.Execute(&buf, cmp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NewDiscussionApp serves the comparison as HTML on / and as JSON on
// /api/comparison.
func NewDiscussionApp(cmp Comparison) *fiber.App {
	app := fiber.New(fiber.Config{AppName: "arena discussion", DisableStartupMessage: true})

	app.Get("/", func(c *fiber.Ctx) error {
		page, err := RenderComparison(cmp)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.Send(page)
	})
	app.Get("/api/comparison", func(c *fiber.Ctx) error {
		return c.JSON(cmp)
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	return app
}
