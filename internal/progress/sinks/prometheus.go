package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/grocery-catalog-crawler/internal/progress"
)

// PrometheusSink exports crawl progress as Prometheus collectors.
type PrometheusSink struct {
	runsStarted       *prometheus.CounterVec
	runsCompleted     *prometheus.CounterVec
	runsRunning       prometheus.Gauge
	runDuration       *prometheus.HistogramVec
	pages             *prometheus.CounterVec
	items             *prometheus.CounterVec
	categoriesSkipped *prometheus.CounterVec
	pageDuration      *prometheus.HistogramVec

	mu      sync.Mutex
	running map[[16]byte]struct{}
}

// NewPrometheusSink registers the collectors against reg, falling back to the
// default registerer.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_runs_started_total",
			Help: "Crawl runs started per site.",
		}, []string{"site"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_runs_completed_total",
			Help: "Crawl runs finished per site.",
		}, []string{"site"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_runs_running",
			Help: "Crawl runs currently in progress.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalog_run_duration_seconds",
			Help:    "Wall time per finished crawl run.",
			Buckets: []float64{30, 60, 300, 600, 1200, 1800, 3600, 7200},
		}, []string{"site"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_pages_total",
			Help: "Listing pages processed partitioned by result.",
		}, []string{"site", "result"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_items_total",
			Help: "Listing items processed partitioned by result.",
		}, []string{"site", "result"}),
		categoriesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_categories_skipped_total",
			Help: "Categories abandoned because their first page could not be read.",
		}, []string{"site"}),
		pageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalog_page_duration_seconds",
			Help:    "Time to load and extract one listing page.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"site"}),
		running: make(map[[16]byte]struct{}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.pages,
		s.items,
		s.categoriesSkipped,
		s.pageDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			if s.track(evt.RunID, true) {
				s.runsStarted.WithLabelValues(evt.Site).Inc()
				s.runsRunning.Inc()
			}
		case progress.StageRunDone:
			if s.track(evt.RunID, false) {
				s.runsRunning.Dec()
			}
			s.runsCompleted.WithLabelValues(evt.Site).Inc()
			s.runDuration.WithLabelValues(evt.Site).Observe(evt.Dur.Seconds())
		case progress.StageCategorySkipped:
			s.categoriesSkipped.WithLabelValues(evt.Site).Inc()
		case progress.StagePageDone:
			s.pages.WithLabelValues(evt.Site, "ok").Inc()
			s.items.WithLabelValues(evt.Site, "stored").Add(float64(evt.Stored))
			s.items.WithLabelValues(evt.Site, "failed").Add(float64(evt.Failed))
			s.pageDuration.WithLabelValues(evt.Site).Observe(evt.Dur.Seconds())
		case progress.StagePageFailed:
			s.pages.WithLabelValues(evt.Site, "failed").Inc()
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// track records a run as running (start=true) or finished and reports whether
// the state changed.
func (s *PrometheusSink) track(id [16]byte, start bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	if start {
		if ok {
			return false
		}
		s.running[id] = struct{}{}
		return true
	}
	if !ok {
		return false
	}
	delete(s.running, id)
	return true
}
