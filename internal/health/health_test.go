package health

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"yqhp/arena/pkg/types"
)

func serve(t *testing.T, h fasthttp.RequestHandler) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &fasthttp.Server{Handler: h}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	return ln.Addr().String()
}

func TestProbeDecodesPayload(t *testing.T) {
	addr := serve(t, func(ctx *fasthttp.RequestCtx) {
		assert.Equal(t, DefaultPath, string(ctx.Path()))
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"status":"completed","phase":"testing","metrics":{"lines_added":120,"tests_passed":9,"partial_assessments":2},"timestamp":1700000000}`)
	})

	p, err := NewClient(time.Second).Probe(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, types.WorkerCompleted, p.WorkerStatus())
	assert.Equal(t, types.PhaseTesting, p.WorkerPhase())
	assert.Equal(t, 120, p.Metrics.LinesAdded)
	assert.Equal(t, 2, p.Metrics.PartialAssessments)
	ts, ok := p.ReportedAt()
	require.True(t, ok)
	assert.Equal(t, int64(1700000000), ts.Unix())
}

func TestProbeRejectsBadStatus(t *testing.T) {
	addr := serve(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	})

	_, err := NewClient(time.Second).Probe(context.Background(), addr)
	assert.ErrorIs(t, err, ErrBadStatus)
}

func TestProbeIsBoundedByTimeout(t *testing.T) {
	addr := serve(t, func(ctx *fasthttp.RequestCtx) {
		time.Sleep(2 * time.Second)
		ctx.SetBodyString(`{}`)
	})

	start := time.Now()
	_, err := NewClient(100*time.Millisecond).Probe(context.Background(), addr)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestReportedAtFormats(t *testing.T) {
	p := &Payload{Timestamp: []byte(`"2024-05-01T10:00:00Z"`)}
	ts, ok := p.ReportedAt()
	require.True(t, ok)
	assert.Equal(t, 2024, ts.Year())

	p = &Payload{Timestamp: []byte(`1700000000123`)}
	ts, ok = p.ReportedAt()
	require.True(t, ok)
	assert.Equal(t, int64(1700000000123), ts.UnixMilli())

	_, ok = (&Payload{}).ReportedAt()
	assert.False(t, ok)
}
