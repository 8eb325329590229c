package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSignal(t *testing.T) {
	s := parseSignal("worker-1", map[string]string{"status": "completed", "phase": "assessment", "updated_at": "1700000000"})
	assert.Equal(t, "completed", s.Status)
	assert.Equal(t, "assessment", s.Phase)
	assert.Equal(t, time.Unix(1700000000, 0), s.UpdatedAt)

	s = parseSignal("worker-2", map[string]string{"updated_at": "2024-05-01T10:00:00Z"})
	assert.Equal(t, 2024, s.UpdatedAt.Year())
	assert.Empty(t, s.Status)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "arena:worker:worker-1", Key("worker-1"))
}

func TestNoopReader(t *testing.T) {
	var r Reader = Noop{}
	sig, err := r.Signals(context.Background(), []string{"worker-1"})
	require.NoError(t, err)
	assert.Empty(t, sig)
	assert.NoError(t, r.Close())
}

func TestRedisReaderUnreachable(t *testing.T) {
	r := NewRedisReader(Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.Error(t, r.Ping(ctx))
	_, err := r.Signals(ctx, []string{"worker-1"})
	assert.Error(t, err)
}
