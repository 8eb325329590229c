package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

type response struct {
	status      int
	contentType string
	body        []byte
	latency     time.Duration
}

func (r *response) ok() bool { return r.status >= 200 && r.status < 300 }

func newClient(timeout time.Duration, conns int) *fasthttp.Client {
	return &fasthttp.Client{
		MaxConnsPerHost:          max(conns, 1),
		ReadTimeout:              timeout,
		WriteTimeout:             timeout,
		NoDefaultUserAgentHeader: true,
	}
}

// get issues one GET bounded by the earlier of ctx's deadline and timeout.
func get(ctx context.Context, c *fasthttp.Client, url string, timeout time.Duration) (*response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("User-Agent", "arena-validation")

	start := time.Now()
	if err := c.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	return &response{
		status:      resp.StatusCode(),
		contentType: string(resp.Header.ContentType()),
		body:        append([]byte(nil), resp.Body()...),
		latency:     time.Since(start),
	}, nil
}
