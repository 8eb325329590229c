package reasoning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"yqhp/arena/internal/config"
)

func TestUnavailableAlwaysFails(t *testing.T) {
	_, err := Unavailable{}.Reason(context.Background(), "p", "c")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = Unavailable{Cause: "offline"}.Reason(context.Background(), "p", "c")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "offline")
}

func TestWithTimeoutBoundsSlowCalls(t *testing.T) {
	slow := Func(func(ctx context.Context, _, _ string) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
			return "late", nil
		}
	})

	start := time.Now()
	_, err := WithTimeout(slow, 20*time.Millisecond).Reason(context.Background(), "p", "c")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWithTimeoutRejectsEmpty(t *testing.T) {
	blank := Func(func(context.Context, string, string) (string, error) { return "  \n", nil })
	_, err := WithTimeout(blank, time.Second).Reason(context.Background(), "p", "c")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestModelResolver(t *testing.T) {
	r := ModelResolver{Default: "gpt-4o-mini", Models: map[string]string{"claude-haiku": "claude-haiku-4-5"}}

	assert.Equal(t, "claude-haiku-4-5", r.Resolve("claude-haiku"))
	assert.Equal(t, "gpt-4o-mini", r.Resolve(BaselineAlias))
	assert.Equal(t, "gpt-4o-mini", r.Resolve(""))
	assert.Equal(t, "gpt-4o", r.Resolve("gpt-4o"))
}

func TestNewDegradesWithoutCredentials(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	for _, provider := range []string{"openai", "anthropic", "none"} {
		cfg := config.DefaultConfig().Reasoning
		cfg.Provider = provider
		cfg.APIKey = ""

		svc := New(cfg, zap.NewNop())
		_, err := svc.Reason(context.Background(), "p", "")
		assert.ErrorIs(t, err, ErrUnavailable, provider)
	}
}
