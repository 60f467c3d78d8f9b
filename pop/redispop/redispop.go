// Package redispop publishes population snapshots to Redis for live
// monitoring: each column becomes a list under
// <prefix><iteration>:<agent>:<variable>, and <prefix>latest tracks
// the newest completed iteration. The prefix is used as given; the
// default "flock:" supplies the separating colon.
package redispop

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/flocksim/flock/mem"
	"github.com/flocksim/flock/pop"
)

// Writer is the Redis snapshot writer
type Writer struct {
	client *redis.Client
	prefix string

	mu        sync.Mutex
	iteration int
	open      bool
	columns   []pop.Column
}

// Options configures the Redis connection
type Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix for all snapshot keys, default "flock:"
	Prefix string
}

// NewWriter creates a Redis snapshot writer
func NewWriter(opts Options) *Writer {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "flock:"
	}
	return &Writer{client: client, prefix: prefix}
}

// Close releases the Redis connection
func (w *Writer) Close() error {
	return w.client.Close()
}

func (w *Writer) columnKey(iteration int, agent, varName string) string {
	return fmt.Sprintf("%s%d:%s:%s", w.prefix, iteration, agent, varName)
}

// InitWrite opens the snapshot for an iteration
func (w *Writer) InitWrite(iteration int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.open {
		return fmt.Errorf("snapshot %d still open: %w", w.iteration, pop.ErrIO)
	}
	w.iteration = iteration
	w.open = true
	w.columns = w.columns[:0]
	return nil
}

// WriteColumn buffers one variable column for the open snapshot
func (w *Writer) WriteColumn(col pop.Column) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return fmt.Errorf("write_column before init_write: %w", pop.ErrIO)
	}
	w.columns = append(w.columns, col)
	return nil
}

// FinalizeWrite pushes every buffered column, one concurrent pipeline
// per column, then advances the latest-iteration marker.
func (w *Writer) FinalizeWrite() error {
	w.mu.Lock()
	if !w.open {
		w.mu.Unlock()
		return fmt.Errorf("finalize_write before init_write: %w", pop.ErrIO)
	}
	w.open = false
	iteration := w.iteration
	columns := append([]pop.Column(nil), w.columns...)
	w.mu.Unlock()

	ctx := context.Background()
	var g errgroup.Group
	for _, col := range columns {
		col := col
		g.Go(func() error {
			key := w.columnKey(iteration, col.Agent, col.Var)
			pipe := w.client.Pipeline()
			pipe.Del(ctx, key)
			if col.Tag == mem.TypeInt {
				for _, v := range col.Ints {
					pipe.RPush(ctx, key, v)
				}
			} else {
				for _, v := range col.Doubles {
					pipe.RPush(ctx, key, v)
				}
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("snapshot key %q: %v: %w", key, err, pop.ErrIO)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := w.client.Set(ctx, w.prefix+"latest", iteration, 0).Err(); err != nil {
		return fmt.Errorf("snapshot marker: %v: %w", err, pop.ErrIO)
	}
	return nil
}
