// Package engine walks a site's frontier category by category and page by page,
// handing each page to the dispatcher and reporting progress as it goes.
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/grocery-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/dispatcher"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/progress"
)

// RecordStore is the subset of the record store the engine needs.
type RecordStore interface {
	dispatcher.RecordWriter
	Len() int
}

// PageDispatcher runs extraction for one page of items.
type PageDispatcher interface {
	DispatchPage(
		ctx context.Context,
		items []crawler.Node,
		extract dispatcher.ExtractFunc,
		key crawler.KeyField,
		store dispatcher.RecordWriter,
	) dispatcher.PageStats
}

// Engine crawls one site into a record store.
type Engine struct {
	site       crawler.Site
	store      RecordStore
	dispatcher PageDispatcher
	emitter    progress.Emitter
	clock      crawler.Clock
	ids        crawler.IDGenerator
	logger     *zap.Logger
}

// New constructs an Engine. A nil emitter discards progress.
func New(
	site crawler.Site,
	store RecordStore,
	disp PageDispatcher,
	emitter progress.Emitter,
	clock crawler.Clock,
	ids crawler.IDGenerator,
	logger *zap.Logger,
) *Engine {
	if emitter == nil {
		emitter = progress.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		site:       site,
		store:      store,
		dispatcher: disp,
		emitter:    emitter,
		clock:      clock,
		ids:        ids,
		logger:     logger.With(zap.String("site", site.Name())),
	}
}

// run carries the per-run state threaded through the loop.
type run struct {
	id      [16]byte
	summary crawler.RunSummary
}

// Run crawls the whole frontier. Category and page failures are absorbed and
// counted; only a frontier failure or cancellation is returned, always together
// with the summary accumulated so far.
func (e *Engine) Run(ctx context.Context) (crawler.RunSummary, error) {
	runID, err := e.ids.NewID()
	if err != nil {
		return crawler.RunSummary{}, fmt.Errorf("generate run id: %w", err)
	}
	rawID, err := progress.ParseRunID(runID)
	if err != nil {
		return crawler.RunSummary{}, err
	}
	r := &run{
		id: rawID,
		summary: crawler.RunSummary{
			RunID:     runID,
			Site:      e.site.Name(),
			KeyField:  e.site.KeyField(),
			StartedAt: e.clock.Now(),
		},
	}
	e.emit(r, progress.Event{Stage: progress.StageRunStart})
	e.logger.Info("crawl started", zap.String("run_id", runID), zap.String("key", string(r.summary.KeyField)))

	runErr := e.crawl(ctx, r)

	r.summary.Records = e.store.Len()
	r.summary.FinishedAt = e.clock.Now()
	e.emit(r, progress.Event{
		Stage:  progress.StageRunDone,
		Items:  r.summary.Items,
		Stored: r.summary.Stored,
		Failed: r.summary.Failed,
		Dur:    max(r.summary.Elapsed(), 0),
	})
	e.logger.Info("crawl finished",
		zap.String("run_id", runID),
		zap.Int("categories", r.summary.Categories),
		zap.Int("categories_skipped", r.summary.CategoriesSkipped),
		zap.Int("pages", r.summary.Pages),
		zap.Int("records", r.summary.Records),
		zap.Int("failed", r.summary.Failed),
		zap.Duration("elapsed", r.summary.Elapsed()),
	)
	return r.summary, runErr
}

func (e *Engine) crawl(ctx context.Context, r *run) error {
	categories, err := e.site.Frontier(ctx)
	if err != nil {
		return fmt.Errorf("build frontier: %w", err)
	}
	r.summary.Categories = len(categories)
	e.logger.Info("frontier built", zap.Int("categories", len(categories)))

	for _, cat := range categories {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("crawl %s: %w", e.site.Name(), err)
		}
		e.crawlCategory(ctx, r, cat)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("crawl %s: %w", e.site.Name(), err)
	}
	return nil
}

func (e *Engine) crawlCategory(ctx context.Context, r *run, cat crawler.Category) {
	pages, err := e.site.PageCount(ctx, cat)
	if err != nil {
		e.skipCategory(ctx, r, cat, err)
		return
	}
	e.emit(r, progress.Event{
		Stage:    progress.StageCategoryStart,
		Category: categoryLabel(cat),
		URL:      cat.URL,
		Pages:    pages,
	})

	extract := func(ctx context.Context, item crawler.Node) (crawler.ProductRecord, error) {
		return e.site.Extract(ctx, cat, item)
	}
	for page := 1; page <= pages; page++ {
		if ctx.Err() != nil {
			return
		}
		start := e.clock.Now()
		items, err := e.site.Items(ctx, cat, page)
		if err != nil {
			if page == 1 {
				// Nothing of this category can be read without its first page.
				e.skipCategory(ctx, r, cat, err)
				return
			}
			if ctx.Err() != nil {
				return
			}
			r.summary.PagesFailed++
			e.logger.Warn("page skipped",
				zap.String("category", categoryLabel(cat)),
				zap.Int("page", page),
				zap.Int("pages", pages),
				zap.Error(err),
			)
			e.emit(r, progress.Event{
				Stage:    progress.StagePageFailed,
				Category: categoryLabel(cat),
				URL:      cat.URL,
				Page:     page,
				Pages:    pages,
				Note:     err.Error(),
			})
			continue
		}

		stats := e.dispatcher.DispatchPage(ctx, items, extract, e.site.KeyField(), e.store)
		r.summary.Pages++
		r.summary.Items += stats.Items
		r.summary.Stored += stats.Stored
		r.summary.Failed += stats.Failed + stats.Skipped
		if stats.Unkeyed > 0 {
			e.logger.Debug("items without key",
				zap.String("key", string(e.site.KeyField())),
				zap.Int("count", stats.Unkeyed),
			)
		}
		e.emit(r, progress.Event{
			Stage:    progress.StagePageDone,
			Category: categoryLabel(cat),
			URL:      cat.URL,
			Page:     page,
			Pages:    pages,
			Items:    stats.Items,
			Stored:   stats.Stored,
			Failed:   stats.Failed + stats.Skipped,
			Dur:      max(e.clock.Now().Sub(start), 0),
		})
	}
}

func (e *Engine) skipCategory(ctx context.Context, r *run, cat crawler.Category, cause error) {
	if ctx.Err() != nil && errors.Is(cause, ctx.Err()) {
		return
	}
	r.summary.CategoriesSkipped++
	e.logger.Warn("category skipped",
		zap.String("category", categoryLabel(cat)),
		zap.String("url", cat.URL),
		zap.Error(cause),
	)
	e.emit(r, progress.Event{
		Stage:    progress.StageCategorySkipped,
		Category: categoryLabel(cat),
		URL:      cat.URL,
		Note:     cause.Error(),
	})
}

func (e *Engine) emit(r *run, evt progress.Event) {
	evt.RunID = r.id
	evt.TS = e.clock.Now()
	evt.Site = r.summary.Site
	e.emitter.Emit(evt)
}

func categoryLabel(cat crawler.Category) string {
	if cat.Subcategory == "" {
		return cat.Name
	}
	return cat.Name + "/" + cat.Subcategory
}
