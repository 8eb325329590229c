package validation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"yqhp/arena/internal/health"
	"yqhp/arena/pkg/types"
)

var statusPath = jp.MustParseString("$.status")

// APICheck exercises the worker's HTTP endpoints.
type APICheck struct {
	paths   []string
	timeout time.Duration
}

// NewAPICheck creates an API check over paths.
func NewAPICheck(paths []string, timeout time.Duration) *APICheck {
	return &APICheck{paths: paths, timeout: timeout}
}

// Category implements Check.
func (*APICheck) Category() string { return types.CategoryAPI }

// Run implements Check. Every path earns a point for a 2xx answer and one for
// a JSON body; the health path earns a third for a $.status field.
func (a *APICheck) Run(ctx context.Context, t Target) Result {
	var r Result
	if len(a.paths) == 0 {
		r.addf("no API paths configured")
		return r
	}

	client := newClient(a.timeout, 1)
	var earned, possible int
	for _, path := range a.paths {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		wantStatus := path == health.DefaultPath
		possible += 2
		if wantStatus {
			possible++
		}

		resp, err := get(ctx, client, "http://"+t.Addr+path, a.timeout)
		if err != nil {
			r.addf("%s unreachable: %v", path, err)
			continue
		}
		if !resp.ok() {
			r.addf("%s returned %d", path, resp.status)
			continue
		}
		earned++

		data, err := oj.Parse(resp.body)
		if err != nil {
			r.addf("%s body is not JSON", path)
			continue
		}
		earned++

		if wantStatus {
			if got := statusPath.Get(data); len(got) > 0 {
				earned++
				r.addf("%s status %v", path, got[0])
			} else {
				r.addf("%s has no $.status", path)
			}
		}
	}

	r.Score = float64(earned) * 100 / float64(possible)
	r.Findings = append(r.Findings, fmt.Sprintf("%d/%d endpoint checks passed", earned, possible))
	return r
}
