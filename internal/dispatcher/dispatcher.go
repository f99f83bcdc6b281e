// Package dispatcher runs item extraction for one listing page on a bounded
// worker pool and applies the results to the record store.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/grocery-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/queue/memory"
)

// ExtractFunc turns one item node into a record.
type ExtractFunc func(ctx context.Context, item crawler.Node) (crawler.ProductRecord, error)

// RecordWriter receives the records of a page. Only the dispatching goroutine
// calls Put.
type RecordWriter interface {
	Put(key int64, record crawler.ProductRecord)
}

// Config sizes the worker pool.
type Config struct {
	Concurrency int
	// QueueDepth bounds the task queue; 0 sizes it to the page.
	QueueDepth int
}

// PageStats summarizes one DispatchPage call.
type PageStats struct {
	Items   int
	Stored  int
	Failed  int // extraction errors, panics, and records without a key
	Unkeyed int
	Skipped int // never run because the context ended
}

// Dispatcher fans page items out to a pool of workers.
type Dispatcher struct {
	cfg    Config
	logger *zap.Logger
}

type task struct {
	index int
	item  crawler.Node
}

type result struct {
	index  int
	record crawler.ProductRecord
	err    error
}

var errUnkeyed = errors.New("record has no key")

// New creates a Dispatcher.
func New(cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{cfg: cfg, logger: logger}
}

// DispatchPage extracts every item and returns once all of them finished.
// Workers never touch the store: results come back over a channel and are
// applied here after the join, in completion order, so a later duplicate key
// replaces the earlier record.
func (d *Dispatcher) DispatchPage(
	ctx context.Context,
	items []crawler.Node,
	extract ExtractFunc,
	key crawler.KeyField,
	store RecordWriter,
) PageStats {
	stats := PageStats{Items: len(items)}
	if len(items) == 0 {
		return stats
	}

	depth := d.cfg.QueueDepth
	if depth <= 0 || depth > len(items) {
		depth = len(items)
	}
	queue := memory.NewQueue[task](depth)
	results := make(chan result, len(items))

	workers := min(d.cfg.Concurrency, len(items))
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				t, err := queue.Dequeue(ctx)
				if err != nil {
					return
				}
				results <- runTask(ctx, extract, t)
			}
		}()
	}

	for i, item := range items {
		if err := queue.Enqueue(ctx, task{index: i, item: item}); err != nil {
			break
		}
	}
	queue.Close()
	wg.Wait()
	close(results)

	ran := 0
	for r := range results {
		ran++
		if r.err == nil {
			k, ok := r.record.Key(key)
			if ok {
				store.Put(k, r.record)
				stats.Stored++
				continue
			}
			r.err = fmt.Errorf("%w: %s", errUnkeyed, key)
			stats.Unkeyed++
		}
		stats.Failed++
		d.logger.Debug("item failed", zap.Int("index", r.index), zap.Error(r.err))
	}
	stats.Skipped = stats.Items - ran
	return stats
}

func runTask(ctx context.Context, extract ExtractFunc, t task) (res result) {
	res.index = t.index
	defer func() {
		if p := recover(); p != nil {
			res.err = fmt.Errorf("extract panicked: %v", p)
		}
	}()
	res.record, res.err = extract(ctx, t.item)
	return res
}
