package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/grocery-catalog-crawler/internal/clock/system"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/dispatcher"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/id/uuid"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/progress"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/storage/memory"
)

func TestRunStoresEveryPage(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.add("https://shop.test/a", [][]string{{"1", "2"}, {"3"}})
	site.add("https://shop.test/b", [][]string{{"4"}})

	store := memory.NewRecordStore()
	emitter := &recordingEmitter{}
	eng := newEngine(site, store, emitter)

	summary, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fake", summary.Site)
	assert.Equal(t, crawler.KeyRef, summary.KeyField)
	assert.Equal(t, 2, summary.Categories)
	assert.Equal(t, 3, summary.Pages)
	assert.Equal(t, 4, summary.Items)
	assert.Equal(t, 4, summary.Stored)
	assert.Equal(t, 4, summary.Records)
	assert.Zero(t, summary.Failed)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 4, store.Len())

	stages := emitter.stages()
	assert.Equal(t, progress.StageRunStart, stages[0])
	assert.Equal(t, progress.StageRunDone, stages[len(stages)-1])
	assert.Equal(t, 3, emitter.count(progress.StagePageDone))
	for _, evt := range emitter.all() {
		require.NoError(t, evt.Validate())
	}
}

func TestRunSkipsCategoryWhenFirstPageUnreachable(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.add("https://shop.test/a", [][]string{{"1"}, {"2"}})
	site.itemErr["https://shop.test/a#1"] = crawler.ErrTimeout
	site.add("https://shop.test/b", [][]string{{"3"}})

	store := memory.NewRecordStore()
	emitter := &recordingEmitter{}
	summary, err := newEngine(site, store, emitter).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.CategoriesSkipped)
	assert.Equal(t, 1, summary.Records)
	_, ok := store.Get(2)
	assert.False(t, ok, "later pages of a skipped category are never visited")
	assert.Equal(t, 1, emitter.count(progress.StageCategorySkipped))
}

func TestRunSkipsCategoryWhenPageCountFails(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.add("https://shop.test/a", [][]string{{"1"}})
	site.countErr["https://shop.test/a"] = errors.New("navigate: connection refused")

	summary, err := newEngine(site, memory.NewRecordStore(), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CategoriesSkipped)
	assert.Zero(t, summary.Pages)
}

func TestRunSkipsOnlyFailedLaterPage(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.add("https://shop.test/a", [][]string{{"1"}, {"2"}, {"3"}})
	site.itemErr["https://shop.test/a#2"] = crawler.ErrNotFound

	store := memory.NewRecordStore()
	summary, err := newEngine(site, store, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Pages)
	assert.Equal(t, 1, summary.PagesFailed)
	assert.Equal(t, 2, store.Len())
}

func TestRunCountsFailedAndUnkeyedItems(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	// "x" fails extraction, "none" yields a record without a key.
	site.add("https://shop.test/a", [][]string{{"1", "x", "none", "1"}})

	store := memory.NewRecordStore()
	summary, err := newEngine(site, store, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Items)
	assert.Equal(t, 2, summary.Stored)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 1, summary.Records, "duplicate refs collapse to one record")
}

func TestRunFrontierError(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.frontierErr = errors.New("boom")
	emitter := &recordingEmitter{}
	summary, err := newEngine(site, memory.NewRecordStore(), emitter).Run(context.Background())
	require.Error(t, err)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 1, emitter.count(progress.StageRunDone))
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.add("https://shop.test/a", [][]string{{"1"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := newEngine(site, memory.NewRecordStore(), nil).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.Pages)
	assert.Zero(t, summary.CategoriesSkipped)
}

func newEngine(site crawler.Site, store RecordStore, emitter progress.Emitter) *Engine {
	disp := dispatcher.New(dispatcher.Config{Concurrency: 4}, nil)
	clock := system.Fixed(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return New(site, store, disp, emitter, clock, uuid.New(), nil)
}

type fakeSite struct {
	categories  []crawler.Category
	pages       map[string][][]crawler.Node
	countErr    map[string]error
	itemErr     map[string]error
	frontierErr error
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		pages:    map[string][][]crawler.Node{},
		countErr: map[string]error{},
		itemErr:  map[string]error{},
	}
}

// add registers a category whose pages hold items carrying the given refs.
func (s *fakeSite) add(url string, pages [][]string) {
	s.categories = append(s.categories, crawler.Category{Site: "fake", URL: url, Name: url[strings.LastIndex(url, "/")+1:]})
	for _, refs := range pages {
		var b strings.Builder
		for _, ref := range refs {
			fmt.Fprintf(&b, `<div class="item" data-ref=%q></div>`, ref)
		}
		doc, err := crawler.ParseDocument(strings.NewReader(b.String()), url)
		if err != nil {
			panic(err)
		}
		s.pages[url] = append(s.pages[url], doc.Find("div.item"))
	}
}

func (s *fakeSite) Name() string               { return "fake" }
func (s *fakeSite) KeyField() crawler.KeyField { return crawler.KeyRef }

func (s *fakeSite) Frontier(context.Context) ([]crawler.Category, error) {
	if s.frontierErr != nil {
		return nil, s.frontierErr
	}
	return s.categories, nil
}

func (s *fakeSite) PageCount(_ context.Context, cat crawler.Category) (int, error) {
	if err := s.countErr[cat.URL]; err != nil {
		return 0, err
	}
	return len(s.pages[cat.URL]), nil
}

func (s *fakeSite) Items(_ context.Context, cat crawler.Category, page int) ([]crawler.Node, error) {
	if err := s.itemErr[fmt.Sprintf("%s#%d", cat.URL, page)]; err != nil {
		return nil, err
	}
	return s.pages[cat.URL][page-1], nil
}

func (s *fakeSite) Extract(_ context.Context, cat crawler.Category, item crawler.Node) (crawler.ProductRecord, error) {
	raw, _ := item.Attr("data-ref")
	rec := crawler.ProductRecord{Name: "item " + raw, Site: "fake", Category: cat.Name}
	if raw == "none" {
		return rec, nil
	}
	ref, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return crawler.ProductRecord{}, fmt.Errorf("%w: ref", crawler.ErrMissingField)
	}
	rec.Ref = crawler.Some(ref)
	return rec, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) all() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

func (r *recordingEmitter) stages() []progress.Stage {
	var out []progress.Stage
	for _, evt := range r.all() {
		out = append(out, evt.Stage)
	}
	return out
}

func (r *recordingEmitter) count(stage progress.Stage) int {
	n := 0
	for _, evt := range r.all() {
		if evt.Stage == stage {
			n++
		}
	}
	return n
}
