package sinks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/grocery-catalog-crawler/internal/progress"
)

// Run states reported by Tracker.
const (
	StateRunning = "running"
	StateDone    = "done"
)

// SiteProgress is the live view of the latest run for one site.
type SiteProgress struct {
	RunID             string    `json:"run_id"`
	Site              string    `json:"site"`
	State             string    `json:"state"`
	StartedAt         time.Time `json:"started_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	Category          string    `json:"category,omitempty"`
	Page              int       `json:"page,omitempty"`
	Pages             int       `json:"pages,omitempty"`
	Categories        int       `json:"categories"`
	CategoriesSkipped int       `json:"categories_skipped"`
	PagesDone         int       `json:"pages_done"`
	PagesFailed       int       `json:"pages_failed"`
	Items             int       `json:"items"`
	Stored            int       `json:"stored"`
	Failed            int       `json:"failed"`
}

// Tracker folds progress events into per-site snapshots.
type Tracker struct {
	mu    sync.RWMutex
	sites map[string]*SiteProgress
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{sites: make(map[string]*SiteProgress)}
}

// Consume implements progress.Sink.
func (t *Tracker) Consume(_ context.Context, batch []progress.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, evt := range batch {
		t.apply(evt)
	}
	return nil
}

func (t *Tracker) apply(evt progress.Event) {
	runID := evt.RunUUID().String()
	cur, ok := t.sites[evt.Site]
	if evt.Stage == progress.StageRunStart || !ok || cur.RunID != runID {
		// A new run replaces whatever the site reported before.
		cur = &SiteProgress{RunID: runID, Site: evt.Site, State: StateRunning, StartedAt: evt.TS}
		t.sites[evt.Site] = cur
	}
	cur.UpdatedAt = evt.TS

	switch evt.Stage {
	case progress.StageCategoryStart:
		cur.Categories++
		cur.Category = evt.Category
		cur.Page = 0
		cur.Pages = evt.Pages
	case progress.StageCategorySkipped:
		cur.Categories++
		cur.CategoriesSkipped++
	case progress.StagePageDone:
		cur.Category = evt.Category
		cur.Page = evt.Page
		cur.Pages = evt.Pages
		cur.PagesDone++
		cur.Items += evt.Items
		cur.Stored += evt.Stored
		cur.Failed += evt.Failed
	case progress.StagePageFailed:
		cur.Page = evt.Page
		cur.Pages = evt.Pages
		cur.PagesFailed++
	case progress.StageRunDone:
		cur.State = StateDone
		cur.Category = ""
		cur.Page = 0
		cur.Pages = 0
	}
}

// Snapshot returns a copy of every site's progress ordered by site name.
func (t *Tracker) Snapshot() []SiteProgress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]SiteProgress, 0, len(t.sites))
	for _, sp := range t.sites {
		out = append(out, *sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Site < out[j].Site })
	return out
}

// Site returns the progress of one site.
func (t *Tracker) Site(name string) (SiteProgress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sp, ok := t.sites[name]
	if !ok {
		return SiteProgress{}, false
	}
	return *sp, true
}

// Close implements progress.Sink.
func (t *Tracker) Close(context.Context) error {
	return nil
}
