// Package workspace owns the run-scoped directory tree: stale artifact
// cleanup before a run and guaranteed teardown after it.
package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"yqhp/arena/pkg/logger"
)

// File names inside the run root.
const (
	ComposeFileName       = "docker-compose.yml"
	DecompositionFileName = "decomposition.json"
	ReportFileName        = "report.json"
	MonitorLogName        = "monitor.jsonl"
)

// Layout resolves paths under a run root.
type Layout struct {
	Root string
}

func (l Layout) WorkersDir() string { return filepath.Join(l.Root, "workers") }
func (l Layout) WorkerDir(id string) string { return filepath.Join(l.WorkersDir(), id) }
func (l Layout) ResultsDir() string { return filepath.Join(l.Root, "results") }
func (l Layout) LogsDir() string { return filepath.Join(l.ResultsDir(), "logs") }
func (l Layout) ReportsDir() string { return filepath.Join(l.ResultsDir(), "reports") }
func (l Layout) ComposeFile() string { return filepath.Join(l.Root, ComposeFileName) }
func (l Layout) DecompositionFile() string { return filepath.Join(l.Root, DecompositionFileName) }
func (l Layout) ReportFile() string { return filepath.Join(l.ReportsDir(), ReportFileName) }
func (l Layout) LogFile(name string) string { return filepath.Join(l.LogsDir(), name) }

// Teardowner stops everything a run started.
type Teardowner interface {
	Teardown(ctx context.Context) error
}

// Manager owns the lifecycle of one run root.
type Manager struct {
	layout Layout
	log    *zap.Logger
}

// NewManager creates a manager rooted at root. A relative root is resolved
// against the working directory, so every layout path is absolute: compose
// resolves the descriptor and its volume sources from the descriptor's own
// directory.
func NewManager(root string, log *zap.Logger) *Manager {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Manager{layout: Layout{Root: root}, log: logger.Or(log, "workspace")}
}

// Layout returns the path layout.
func (m *Manager) Layout() Layout {
	return m.layout
}

// Reset deletes artifacts of a previous run and creates the directory tree
// for workerIDs. Missing paths are not an error.
func (m *Manager) Reset(workerIDs []string) error {
	stale := []string{
		m.layout.WorkersDir(),
		m.layout.ResultsDir(),
		m.layout.ComposeFile(),
		m.layout.DecompositionFile(),
	}
	for _, p := range stale {
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}

	if err := m.Ensure(workerIDs); err != nil {
		return err
	}

	m.log.Debug("workspace reset", zap.String("root", m.layout.Root), zap.Int("workers", len(workerIDs)))
	return nil
}

// Ensure creates any missing directory of the tree without deleting anything.
func (m *Manager) Ensure(workerIDs []string) error {
	dirs := []string{m.layout.LogsDir(), m.layout.ReportsDir()}
	for _, id := range workerIDs {
		dirs = append(dirs, m.layout.WorkerDir(id))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

// Teardown runs t with its own timeout. Failures are logged and swallowed:
// teardown runs on cleanup paths that must not fail the run.
func (m *Manager) Teardown(ctx context.Context, t Teardowner, timeout time.Duration) {
	if t == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := t.Teardown(ctx); err != nil {
		m.log.Warn("teardown failed", zap.Error(err))
		return
	}
	m.log.Info("teardown complete")
}

// WriteJSON writes v as indented JSON to path, creating parent directories.
func (m *Manager) WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// OpenLog opens an append-only log file under results/logs.
func (m *Manager) OpenLog(name string) (io.WriteCloser, error) {
	if err := os.MkdirAll(m.layout.LogsDir(), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(m.layout.LogFile(name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
