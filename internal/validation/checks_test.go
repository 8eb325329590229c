package validation

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

const goodPage = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Todo</title>
</head>
<body>
  <h1>Todo</h1>
  <img src="logo.png" alt="logo">
  <label for="item">Item</label><input id="item" type="text">
  <label>Done <input type="checkbox"></label>
  <input type="hidden" name="csrf">
  <input type="text" aria-label="search">
  <button type="submit">Add</button>
</body>
</html>`

func serve(t *testing.T, h fasthttp.RequestHandler) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &fasthttp.Server{Handler: h}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	return ln.Addr().String()
}

func workerApp(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/":
		ctx.SetContentType("text/html; charset=utf-8")
		ctx.SetBodyString(goodPage)
	case "/health":
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"status":"completed","phase":"testing"}`)
	case "/api":
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"items":[]}`)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func TestAuditHTMLFullMarks(t *testing.T) {
	r := AuditHTML([]byte(goodPage))
	assert.Equal(t, 100.0, r.Score)
	assert.Empty(t, r.Findings)
}

func TestAuditHTMLFindings(t *testing.T) {
	r := AuditHTML([]byte(`<html><body><img src="a.png"><input type="text"></body></html>`))
	assert.Zero(t, r.Score)
	assert.Contains(t, r.Findings, "missing <title>")
	assert.Contains(t, r.Findings, "missing viewport meta")
	assert.Contains(t, r.Findings, "1 of 1 images lack alt")
	assert.Contains(t, r.Findings, "1 of 1 inputs unlabeled")
}

func TestBrowserCheck(t *testing.T) {
	addr := serve(t, workerApp)
	r := NewBrowserCheck(time.Second).Run(context.Background(), Target{Addr: addr})
	assert.Equal(t, 100.0, r.Score)

	r = NewBrowserCheck(200*time.Millisecond).Run(context.Background(), Target{Addr: "127.0.0.1:1"})
	assert.Zero(t, r.Score)
	require.NotEmpty(t, r.Findings)
	assert.Contains(t, r.Findings[0], "page unreachable")
}

func TestAPICheck(t *testing.T) {
	addr := serve(t, workerApp)
	r := NewAPICheck([]string{"/health", "api"}, time.Second).Run(context.Background(), Target{Addr: addr})
	assert.Equal(t, 100.0, r.Score)
	assert.Contains(t, r.Findings, "/health status completed")

	r = NewAPICheck([]string{"/health", "/missing"}, time.Second).Run(context.Background(), Target{Addr: addr})
	// 3 of 5: /health earns all, /missing none
	assert.InDelta(t, 60.0, r.Score, 0.001)
	assert.Contains(t, r.Findings, "/missing returned 404")
}

func TestAPICheckRequiresStatusField(t *testing.T) {
	addr := serve(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"ok":true}`)
	})
	r := NewAPICheck([]string{"/health"}, time.Second).Run(context.Background(), Target{Addr: addr})
	assert.InDelta(t, 66.666, r.Score, 0.01)
	assert.Contains(t, r.Findings, "/health has no $.status")
}

func TestPerformanceCheck(t *testing.T) {
	var hits atomic.Int32
	addr := serve(t, func(ctx *fasthttp.RequestCtx) {
		hits.Add(1)
		ctx.SetBodyString("ok")
	})

	r := NewPerformanceCheck(40, 4, time.Second).Run(context.Background(), Target{Addr: addr})
	assert.EqualValues(t, 40, hits.Load())
	assert.Greater(t, r.Score, 50.0)
	assert.Contains(t, r.Findings, "40 requests, 0.0% errors")
}

func TestPerformanceCheckAllFailing(t *testing.T) {
	addr := serve(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	})
	r := NewPerformanceCheck(10, 2, time.Second).Run(context.Background(), Target{Addr: addr})
	assert.Zero(t, r.Score)
}

func TestLatencyScore(t *testing.T) {
	assert.Equal(t, 100.0, LatencyScore(50*time.Millisecond))
	assert.Equal(t, 0.0, LatencyScore(3*time.Second))
	mid := FastP95 + (SlowP95-FastP95)/2
	assert.InDelta(t, 50.0, LatencyScore(mid), 0.001)
}
