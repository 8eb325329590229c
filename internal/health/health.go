// Package health queries the self-reported health surface of a worker.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"yqhp/arena/pkg/types"
)

// DefaultPath is the endpoint every worker serves.
const DefaultPath = "/health"

// ErrBadStatus is returned for non-2xx health responses.
var ErrBadStatus = errors.New("unexpected health status code")

// Payload is the JSON document a worker reports.
type Payload struct {
	Status    string              `json:"status"`
	Phase     string              `json:"phase"`
	Metrics   types.WorkerMetrics `json:"metrics"`
	Timestamp json.RawMessage     `json:"timestamp,omitempty"`
}

// WorkerStatus maps the reported status onto the worker state machine.
func (p *Payload) WorkerStatus() types.WorkerStatus {
	return types.ParseWorkerStatus(p.Status)
}

// WorkerPhase returns the reported phase, or the empty phase if unknown.
func (p *Payload) WorkerPhase() types.WorkerPhase {
	switch ph := types.WorkerPhase(p.Phase); ph {
	case types.PhaseAnalysis, types.PhaseCoding, types.PhaseTesting, types.PhaseAssessment:
		return ph
	}
	return ""
}

// ReportedAt parses the timestamp as unix seconds, unix milliseconds or RFC 3339.
func (p *Payload) ReportedAt() (time.Time, bool) {
	raw := string(p.Timestamp)
	if raw == "" || raw == "null" {
		return time.Time{}, false
	}
	if s, err := strconv.Unquote(raw); err == nil {
		raw = s
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, true
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		if f > 1e12 {
			return time.UnixMilli(int64(f)), true
		}
		return time.Unix(int64(f), 0), true
	}
	return time.Time{}, false
}

// Prober fetches a worker's health payload.
type Prober interface {
	Probe(ctx context.Context, addr string) (*Payload, error)
}

// Client probes workers over HTTP with fasthttp.
type Client struct {
	client  *fasthttp.Client
	path    string
	timeout time.Duration
}

// NewClient creates a client whose calls never exceed timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		client: &fasthttp.Client{
			MaxConnsPerHost:     64,
			MaxIdleConnDuration: 30 * time.Second,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
		},
		path:    DefaultPath,
		timeout: timeout,
	}
}

// Probe implements Prober. The deadline is the earlier of ctx's and the
// client timeout.
func (c *Client) Probe(ctx context.Context, addr string) (*Payload, error) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://" + addr + c.path)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("probe %s: %w", addr, err)
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return nil, fmt.Errorf("%w: %d from %s", ErrBadStatus, code, addr)
	}

	var p Payload
	if err := json.Unmarshal(resp.Body(), &p); err != nil {
		return nil, fmt.Errorf("decode health from %s: %w", addr, err)
	}
	return &p, nil
}
