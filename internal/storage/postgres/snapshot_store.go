// Package postgres persists record-store snapshots for later analysis.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/grocery-catalog-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for snapshot rows.
type Config struct {
	DSN             string
	Table           string
	RunsTable       string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// SnapshotStore writes one row per stored record, keyed by run, site and
// record key.
type SnapshotStore struct {
	pool      pool
	table     string
	runsTable string
}

// NewSnapshotStore connects to Postgres using cfg.
func NewSnapshotStore(ctx context.Context, cfg Config) (*SnapshotStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewSnapshotStoreWithPool(p, cfg.Table, cfg.RunsTable)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewSnapshotStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewSnapshotStoreWithPool(p pool, table, runsTable string) (*SnapshotStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "product_snapshots"
	}
	if runsTable == "" {
		runsTable = "crawl_runs"
	}
	for _, name := range []string{table, runsTable} {
		if !validTableName.MatchString(name) {
			return nil, fmt.Errorf("invalid table name %q", name)
		}
	}
	return &SnapshotStore{pool: p, table: table, runsTable: runsTable}, nil
}

// Close releases the underlying pool resources.
func (s *SnapshotStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// WriteSnapshot upserts every record in one transaction. Re-running an export
// for the same run replaces its rows.
func (s *SnapshotStore) WriteSnapshot(
	ctx context.Context,
	runID string,
	site string,
	records []crawler.KeyedRecord,
) (err error) {
	if s == nil || s.pool == nil {
		return fmt.Errorf("snapshot store is not configured")
	}
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	site,
	record_key,
	ref,
	sku,
	name,
	price,
	brand,
	discount,
	loyalty,
	category,
	subcategory,
	url
) VALUES (
	$1,$2,$3,$4,$5,$6,$7::text::numeric,$8,$9,$10,$11,$12,$13
)
ON CONFLICT (run_id, site, record_key) DO UPDATE SET
	ref = EXCLUDED.ref,
	sku = EXCLUDED.sku,
	name = EXCLUDED.name,
	price = EXCLUDED.price,
	brand = EXCLUDED.brand,
	discount = EXCLUDED.discount,
	loyalty = EXCLUDED.loyalty,
	category = EXCLUDED.category,
	subcategory = EXCLUDED.subcategory,
	url = EXCLUDED.url`, s.table)

	for _, kr := range records {
		if _, err = tx.Exec(ctx, query, snapshotArgs(runID, site, kr)...); err != nil {
			return fmt.Errorf("upsert record %d: %w", kr.Key, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// RecordRun stores the run summary row along with where its export landed.
func (s *SnapshotStore) RecordRun(ctx context.Context, run crawler.RunSummary, objectURI string) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("snapshot store is not configured")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	site,
	key_field,
	started_at,
	finished_at,
	categories,
	pages,
	records,
	failed,
	object_uri
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (run_id, site) DO UPDATE SET
	finished_at = EXCLUDED.finished_at,
	categories = EXCLUDED.categories,
	pages = EXCLUDED.pages,
	records = EXCLUDED.records,
	failed = EXCLUDED.failed,
	object_uri = EXCLUDED.object_uri`, s.runsTable)

	_, err := s.pool.Exec(ctx, query,
		run.RunID,
		run.Site,
		string(run.KeyField),
		run.StartedAt,
		run.FinishedAt,
		run.Categories,
		run.Pages,
		run.Records,
		run.Failed,
		objectURI,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func snapshotArgs(runID, site string, kr crawler.KeyedRecord) []any {
	rec := kr.Record
	return []any{
		runID,
		site,
		kr.Key,
		nullable(rec.Ref),
		nullable(rec.SKU),
		rec.Name,
		nullablePrice(rec),
		nullable(rec.Brand),
		rec.Discount,
		rec.Loyalty,
		rec.Category,
		rec.Subcategory,
		rec.URL,
	}
}

func nullable[T any](o crawler.Optional[T]) any {
	v, ok := o.Get()
	if !ok {
		return nil
	}
	return v
}

func nullablePrice(rec crawler.ProductRecord) any {
	p, ok := rec.Price.Get()
	if !ok {
		return nil
	}
	return p.String()
}
