// Package app builds the crawler's long-lived collaborators from configuration,
// runs each enabled site to completion, and releases everything on Close.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/grocery-catalog-crawler/internal/api"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/clock/system"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/config"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/dispatcher"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/engine"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/export"
	collyfetcher "github.com/JakeFAU/grocery-catalog-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/hash/sha256"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/id/uuid"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/metrics"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/normalize"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/progress"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/grocery-catalog-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/sites/dalben"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/sites/paguemenos"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/storage/gcs"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/storage/local"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/storage/memory"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/storage/postgres"
)

const (
	exportTimeout   = 2 * time.Minute
	shutdownTimeout = 10 * time.Second
)

// Outcome is the result of crawling and exporting one site.
type Outcome struct {
	Summary crawler.RunSummary
	Export  export.Result
}

// App owns every collaborator of a crawl.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	clock    crawler.Clock
	ids      crawler.IDGenerator

	hub     *progress.Hub
	tracker *sinks.Tracker

	session   *headless.Session
	sites     []crawler.Site
	stores    map[string]*memory.RecordStore
	dispatch  *dispatcher.Dispatcher
	pipeline  *export.Pipeline
	snapshots *postgres.SnapshotStore
	publisher *pubsubpublisher.Publisher
	gcsClient *storage.Client

	server   *http.Server
	listener net.Listener
}

// New builds the App. Any failure releases what was already acquired.
// A nil registry gets a fresh one.
func New(ctx context.Context, cfg config.Config, registry *prometheus.Registry, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		clock:    system.New(),
		ids:      uuid.New(),
		stores:   make(map[string]*memory.RecordStore),
	}
	defer func() {
		if err != nil {
			if closeErr := a.Close(context.Background()); closeErr != nil {
				logger.Warn("release after failed init", zap.Error(closeErr))
			}
		}
	}()

	if err := a.initProgress(); err != nil {
		return nil, err
	}
	if err := a.initSites(); err != nil {
		return nil, err
	}
	if err := a.initExport(ctx); err != nil {
		return nil, err
	}
	a.dispatch = dispatcher.New(dispatcher.Config{
		Concurrency: cfg.Crawler.Concurrency,
		QueueDepth:  cfg.Crawler.QueueDepth,
	}, logger.Named("dispatcher"))
	if err := a.initServer(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) initProgress() error {
	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("init progress metrics: %w", err)
	}
	a.tracker = sinks.NewTracker()
	a.hub = progress.NewHub(progress.Config{Logger: a.logger.Named("progress")},
		sinks.NewLogSink(a.logger.Named("progress")),
		promSink,
		a.tracker,
	)
	return nil
}

func (a *App) initSites() error {
	normalizer := normalize.NewPortuguese()
	for _, name := range a.cfg.Sites.Enabled {
		switch name {
		case dalben.Name:
			session, err := headless.NewSession(headless.Config{
				UserAgent:         a.cfg.Crawler.UserAgent,
				NavigationTimeout: a.cfg.Headless.NavTimeout,
				ExecPath:          a.cfg.Headless.ExecPath,
				Headful:           a.cfg.Headless.Headful,
			}, a.logger.Named("headless"))
			if err != nil {
				return fmt.Errorf("start browser session: %w", err)
			}
			a.session = session
			a.sites = append(a.sites, dalben.New(dalben.Config{
				Seeds:          a.cfg.Sites.Dalben.Seeds,
				WaitTimeout:    a.cfg.Headless.WaitTimeout,
				PageTokenIndex: a.cfg.Sites.Dalben.PageTokenIndex,
				MaxPages:       a.cfg.Crawler.MaxPages,
				RefSegment:     a.cfg.Sites.Dalben.RefSegment,
			}, session, normalizer, a.logger))
		case paguemenos.Name:
			fetcher := collyfetcher.New(collyfetcher.Config{
				UserAgent: a.cfg.Crawler.UserAgent,
				Timeout:   a.cfg.Crawler.RequestTimeout,
			})
			site, err := paguemenos.New(paguemenos.Config{
				Seeds:          a.cfg.Sites.PagueMenos.Seeds,
				DeepScrape:     a.cfg.Sites.PagueMenos.DeepScrape,
				Key:            crawler.KeyField(a.cfg.Sites.PagueMenos.Key),
				PageTokenIndex: a.cfg.Sites.PagueMenos.PageTokenIndex,
				MaxPages:       a.cfg.Crawler.MaxPages,
			}, fetcher, normalizer, a.logger)
			if err != nil {
				return fmt.Errorf("configure %s: %w", name, err)
			}
			a.sites = append(a.sites, site)
		default:
			return fmt.Errorf("unknown site %q", name)
		}
		a.stores[name] = memory.NewRecordStore()
	}
	return nil
}

func (a *App) initExport(ctx context.Context) error {
	var blobs crawler.BlobStore
	if a.cfg.Export.GCSBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create gcs client: %w", err)
		}
		a.gcsClient = client
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Export.GCSBucket})
		if err != nil {
			return fmt.Errorf("init gcs blob store: %w", err)
		}
		blobs = store
	} else {
		store, err := local.New(local.Config{BaseDir: a.cfg.Export.OutputDir})
		if err != nil {
			return fmt.Errorf("init local blob store: %w", err)
		}
		blobs = store
	}

	var snapshots export.SnapshotWriter
	if a.cfg.DB.DSN != "" {
		store, err := postgres.NewSnapshotStore(ctx, postgres.Config{
			DSN:       a.cfg.DB.DSN,
			Table:     a.cfg.DB.Table,
			RunsTable: a.cfg.DB.RunsTable,
			MaxConns:  a.cfg.DB.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("init snapshot store: %w", err)
		}
		a.snapshots = store
		snapshots = store
	}

	var publisher crawler.Publisher
	if a.cfg.PubSub.Topic != "" {
		pub, err := pubsubpublisher.NewFromProject(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("init publisher: %w", err)
		}
		a.publisher = pub
		publisher = pub
	}

	pipeline, err := export.NewPipeline(export.Config{
		Prefix: a.cfg.Export.Prefix,
		Topic:  a.cfg.PubSub.Topic,
	}, blobs, snapshots, publisher, sha256.New(), a.clock, a.logger)
	if err != nil {
		return fmt.Errorf("init export pipeline: %w", err)
	}
	a.pipeline = pipeline
	return nil
}

func (a *App) initServer() error {
	if a.cfg.Server.Listen == "" {
		return nil
	}
	records := make(map[string]api.RecordSource, len(a.stores))
	for name, store := range a.stores {
		records[name] = store
	}
	httpMetrics, err := metrics.NewHTTP(a.registry)
	if err != nil {
		return err
	}
	handler := api.NewServer(
		records,
		api.NewProgressHandler(a.tracker, a.logger.Named("api")),
		a.registry,
		httpMetrics,
		a.logger.Named("api"),
	).Handler()

	ln, err := net.Listen("tcp", a.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Server.Listen, err)
	}
	a.listener = ln
	a.server = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr is the address the operator server listens on, or "" when disabled.
func (a *App) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Run crawls every enabled site in order and exports each one's records. A
// cancelled run still exports what it collected. Errors from individual
// sites are joined; the outcomes of sites that ran are always returned.
func (a *App) Run(ctx context.Context) ([]Outcome, error) {
	var (
		outcomes []Outcome
		errs     []error
	)
	for _, site := range a.sites {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("skip %s: %w", site.Name(), ctx.Err()))
			continue
		}
		outcome, err := a.runSite(ctx, site)
		if outcome.Summary.RunID != "" {
			outcomes = append(outcomes, outcome)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return outcomes, errors.Join(errs...)
}

func (a *App) runSite(ctx context.Context, site crawler.Site) (Outcome, error) {
	store := a.stores[site.Name()]
	eng := engine.New(site, store, a.dispatch, a.hub, a.clock, a.ids, a.logger.Named("engine"))
	summary, runErr := eng.Run(ctx)
	out := Outcome{Summary: summary}
	if summary.RunID == "" {
		return out, runErr
	}

	exportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exportTimeout)
	defer cancel()
	res, exportErr := a.pipeline.Export(exportCtx, summary, store.Snapshot())
	out.Export = res
	if exportErr != nil {
		exportErr = fmt.Errorf("export %s: %w", site.Name(), exportErr)
	}
	return out, errors.Join(runErr, exportErr)
}

// Close stops the server, flushes progress and releases the browser session
// and client pools. It is safe to call on a partially built App.
func (a *App) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var errs []error
	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
		}
		cancel()
		a.server = nil
	} else if a.listener != nil {
		_ = a.listener.Close()
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.session != nil {
		a.session.Close()
		a.session = nil
	}
	if a.snapshots != nil {
		a.snapshots.Close()
		a.snapshots = nil
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
		a.publisher = nil
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gcs client: %w", err))
		}
		a.gcsClient = nil
	}
	return errors.Join(errs...)
}
