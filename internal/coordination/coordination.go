// Package coordination reads worker signals from the shared coordination
// store. Workers own every key; this package never writes.
package coordination

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces worker signal hashes. Each worker owns the hash
// arena:worker:<id> with the fields status, phase and updated_at.
const KeyPrefix = "arena:worker:"

// Signal is what a worker last published about itself.
type Signal struct {
	WorkerID  string
	Status    string
	Phase     string
	UpdatedAt time.Time
}

// Reader returns the latest signals of the given workers. Workers without a
// signal are absent from the result.
type Reader interface {
	Signals(ctx context.Context, workerIDs []string) (map[string]Signal, error)
	Close() error
}

// Key returns the hash key of a worker.
func Key(workerID string) string {
	return KeyPrefix + workerID
}

// Options configures RedisReader.
type Options struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// RedisReader reads signals from Redis hashes.
type RedisReader struct {
	client *redis.Client
}

// NewRedisReader creates a reader. The connection is established lazily.
func NewRedisReader(opts Options) *RedisReader {
	dial := opts.DialTimeout
	if dial <= 0 {
		dial = 2 * time.Second
	}
	return &RedisReader{client: redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: dial,
		ReadTimeout: dial,
		MaxRetries:  -1,
	})}
}

// Ping checks connectivity.
func (r *RedisReader) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Signals implements Reader with one pipelined HGETALL per worker.
func (r *RedisReader) Signals(ctx context.Context, workerIDs []string) (map[string]Signal, error) {
	pipe := r.client.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(workerIDs))
	for _, id := range workerIDs {
		cmds[id] = pipe.HGetAll(ctx, Key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("read coordination signals: %w", err)
	}

	out := make(map[string]Signal, len(workerIDs))
	for id, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		out[id] = parseSignal(id, fields)
	}
	return out, nil
}

// Close releases the client.
func (r *RedisReader) Close() error {
	return r.client.Close()
}

func parseSignal(id string, fields map[string]string) Signal {
	s := Signal{WorkerID: id, Status: fields["status"], Phase: fields["phase"]}
	if v, ok := fields["updated_at"]; ok {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			s.UpdatedAt = time.Unix(ts, 0)
		} else if t, err := time.Parse(time.RFC3339, v); err == nil {
			s.UpdatedAt = t
		}
	}
	return s
}

// Noop is a Reader with no store behind it.
type Noop struct{}

// Signals implements Reader.
func (Noop) Signals(context.Context, []string) (map[string]Signal, error) {
	return map[string]Signal{}, nil
}

// Close implements Reader.
func (Noop) Close() error { return nil }
