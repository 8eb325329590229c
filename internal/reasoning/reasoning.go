// Package reasoning abstracts the external reasoning service that produces
// decompositions and assessment narratives. Its output is free text; callers
// parse it defensively.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"yqhp/arena/internal/config"
	"yqhp/arena/pkg/logger"
)

var (
	// ErrUnavailable is returned by the no-op service.
	ErrUnavailable = errors.New("reasoning service unavailable")

	// ErrEmptyResponse is returned when a backend answers with no text.
	ErrEmptyResponse = errors.New("reasoning service returned an empty response")
)

// Service turns a prompt into free-form text using the requested capability.
type Service interface {
	Reason(ctx context.Context, prompt, capability string) (string, error)
}

// Func adapts a function to Service.
type Func func(ctx context.Context, prompt, capability string) (string, error)

// Reason implements Service.
func (f Func) Reason(ctx context.Context, prompt, capability string) (string, error) {
	return f(ctx, prompt, capability)
}

// Unavailable satisfies Service where no backend is configured. Every call fails.
type Unavailable struct {
	Cause string
}

// Reason implements Service.
func (u Unavailable) Reason(context.Context, string, string) (string, error) {
	if u.Cause == "" {
		return "", ErrUnavailable
	}
	return "", fmt.Errorf("%w: %s", ErrUnavailable, u.Cause)
}

type timeoutService struct {
	next    Service
	timeout time.Duration
}

// WithTimeout bounds every call of next by d, independently of the caller's
// deadline. Empty responses are reported as ErrEmptyResponse.
func WithTimeout(next Service, d time.Duration) Service {
	return &timeoutService{next: next, timeout: d}
}

func (s *timeoutService) Reason(ctx context.Context, prompt, capability string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	out, err := s.next.Reason(ctx, prompt, capability)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

// ModelResolver maps capability ids to backend model names.
type ModelResolver struct {
	Default string
	Models  map[string]string
}

// Resolve returns the model for capability. Unknown capabilities are passed
// through as model names; an empty capability uses the default.
func (r ModelResolver) Resolve(capability string) string {
	if m, ok := r.Models[capability]; ok && m != "" {
		return m
	}
	if capability == "" || capability == BaselineAlias {
		return r.Default
	}
	return capability
}

// BaselineAlias is the capability id that always maps to the default model.
const BaselineAlias = "baseline-coder"

// New builds the configured backend wrapped with the per-call timeout. A
// missing API key or the "none" provider yields Unavailable instead of an error.
func New(cfg config.ReasoningConfig, log *zap.Logger) Service {
	log = logger.Or(log, "reasoning")
	resolver := ModelResolver{Default: cfg.DefaultModel, Models: cfg.Models}

	var svc Service
	switch cfg.Provider {
	case "openai":
		if cfg.APIKey == "" {
			log.Warn("no API key for openai provider, reasoning disabled")
			svc = Unavailable{Cause: "missing API key"}
			break
		}
		svc = NewEinoService(EinoConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			MaxTokens: cfg.MaxTokens,
			Resolver:  resolver,
		})
	case "anthropic":
		s, err := NewAnthropicService(AnthropicConfig{
			APIKey:    cfg.APIKey,
			MaxTokens: cfg.MaxTokens,
			Resolver:  resolver,
		})
		if err != nil {
			log.Warn("anthropic provider unavailable", zap.Error(err))
			svc = Unavailable{Cause: err.Error()}
			break
		}
		svc = s
	default:
		svc = Unavailable{Cause: "provider disabled"}
	}

	log.Debug("reasoning service ready", zap.String("provider", cfg.Provider), zap.Duration("call_timeout", cfg.CallTimeout))
	return WithTimeout(svc, cfg.CallTimeout)
}
