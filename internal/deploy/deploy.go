// Package deploy publishes candidate workspaces, the winner and a comparison
// view as long-running HTTP services.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"yqhp/arena/internal/workspace"
	"yqhp/arena/pkg/logger"
	"yqhp/arena/pkg/types"
)

// Endpoint roles.
const (
	RoleWorker     = "worker"
	RoleWinner     = "winner"
	RoleDiscussion = "discussion"
)

// ErrNoContent is recorded for a candidate whose workspace is empty or missing.
var ErrNoContent = errors.New("workspace has no publishable content")

// Config holds the publisher configuration.
type Config struct {
	// Host is the bind address, also used in endpoint URLs.
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the default publisher configuration.
func DefaultConfig() Config {
	return Config{Host: "127.0.0.1", ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second}
}

// Endpoint is one published service.
type Endpoint struct {
	Role     string `json:"role"`
	WorkerID string `json:"worker_id,omitempty"`
	Port     int    `json:"port"`
	URL      string `json:"url"`
	Error    string `json:"error,omitempty"`
}

// Published reports whether the endpoint is serving.
func (e Endpoint) Published() bool { return e.Error == "" }

// Input describes what to publish.
type Input struct {
	Layout     workspace.Layout
	Hosting    types.HostingPlan
	Comparison Comparison
}

// Publication is the set of services started by Publish.
type Publication struct {
	Endpoints []Endpoint

	mu   sync.Mutex
	apps []*fiber.App
	log  *zap.Logger
}

// Failed returns the endpoints that could not be published.
func (p *Publication) Failed() []Endpoint {
	var out []Endpoint
	for _, e := range p.Endpoints {
		if !e.Published() {
			out = append(out, e)
		}
	}
	return out
}

// Shutdown stops every service. It is safe to call more than once.
func (p *Publication) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	apps := p.apps
	p.apps = nil
	p.mu.Unlock()

	var errs []error
	for _, app := range apps {
		if err := app.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		p.log.Warn("publication shutdown incomplete", zap.Errors("errors", errs))
	}
	return errors.Join(errs...)
}

// Publisher starts fiber apps for a run.
type Publisher struct {
	cfg Config
	log *zap.Logger
}

// NewPublisher creates a publisher.
func NewPublisher(cfg Config, log *zap.Logger) *Publisher {
	def := DefaultConfig()
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &Publisher{cfg: cfg, log: logger.Or(log, "deploy")}
}

// Publish serves every worker workspace on its port, the winner again on the
// winner port and the comparison view on the discussion port. Each endpoint
// is independent: a failure is recorded on its Endpoint and the rest are
// still published.
func (p *Publisher) Publish(ctx context.Context, in Input) *Publication {
	pub := &Publication{log: p.log}

	ids := make([]string, 0, len(in.Hosting.Workers))
	for id := range in.Hosting.Workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		dir := in.Layout.WorkerDir(id)
		pub.add(p.serve(RoleWorker, id, in.Hosting.Workers[id], func() (*fiber.App, error) {
			return p.staticApp(id, dir)
		}))
	}

	if winner := in.Comparison.Winner; winner != "" && in.Hosting.WinnerPort > 0 {
		dir := in.Layout.WorkerDir(winner)
		pub.add(p.serve(RoleWinner, winner, in.Hosting.WinnerPort, func() (*fiber.App, error) {
			return p.staticApp(winner, dir)
		}))
	}

	if in.Hosting.DiscussionPort > 0 {
		cmp := in.Comparison
		cmp.Endpoints = pub.Endpoints
		pub.add(p.serve(RoleDiscussion, "", in.Hosting.DiscussionPort, func() (*fiber.App, error) {
			return NewDiscussionApp(cmp), nil
		}))
	}

	p.log.Info("publication finished",
		zap.Int("endpoints", len(pub.Endpoints)),
		zap.Int("failed", len(pub.Failed())))
	return pub
}

func (pub *Publication) add(e Endpoint, app *fiber.App) {
	pub.mu.Lock()
	defer pub.mu.Unlock()
	pub.Endpoints = append(pub.Endpoints, e)
	if app != nil {
		pub.apps = append(pub.apps, app)
	}
}

// serve binds the port before returning so conflicts are reported on the
// endpoint instead of in a background goroutine.
func (p *Publisher) serve(role, workerID string, port int, build func() (*fiber.App, error)) (Endpoint, *fiber.App) {
	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(port))
	e := Endpoint{Role: role, WorkerID: workerID, Port: port, URL: "http://" + addr}

	app, err := build()
	if err != nil {
		e.Error = err.Error()
		p.log.Warn("endpoint not published", zap.String("role", role), zap.String("worker", workerID), zap.Error(err))
		return e, nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		e.Error = fmt.Sprintf("listen %s: %v", addr, err)
		p.log.Warn("endpoint not published", zap.String("role", role), zap.String("worker", workerID), zap.Error(err))
		return e, nil
	}
	go func() {
		if err := app.Listener(ln); err != nil {
			p.log.Warn("endpoint stopped", zap.String("url", e.URL), zap.Error(err))
		}
	}()

	p.log.Info("endpoint published", zap.String("role", role), zap.String("worker", workerID), zap.String("url", e.URL))
	return e, app
}

func (p *Publisher) newApp(name string) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               name,
		DisableStartupMessage: true,
		ReadTimeout:           p.cfg.ReadTimeout,
		WriteTimeout:          p.cfg.WriteTimeout,
	})
}

func (p *Publisher) staticApp(id, dir string) (*fiber.App, error) {
	root, err := ServableRoot(dir)
	if err != nil {
		return nil, err
	}
	app := p.newApp("arena " + id)
	app.Get("/_arena", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"worker_id": id, "root": root})
	})
	app.Static("/", root, fiber.Static{Index: "index.html", Browse: false})
	return app, nil
}

// servableDirs are checked in order for an index.html.
var servableDirs = []string{"dist", "build", "public", "out", "."}

// ServableRoot picks the directory of dir to serve: the first build output
// holding an index.html, else dir itself if it has any entries.
func ServableRoot(dir string) (string, error) {
	for _, sub := range servableDirs {
		candidate := filepath.Join(dir, sub)
		if _, err := os.Stat(filepath.Join(candidate, "index.html")); err == nil {
			return candidate, nil
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoContent, dir)
	}
	return dir, nil
}
