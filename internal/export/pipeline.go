package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/grocery-catalog-crawler/internal/crawler"
)

const contentType = "text/csv; charset=utf-8"

// SnapshotWriter persists rows and the run summary to a database.
type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, runID, site string, records []crawler.KeyedRecord) error
	RecordRun(ctx context.Context, run crawler.RunSummary, objectURI string) error
}

// Config controls where exports land.
type Config struct {
	// Prefix is the object path prefix, e.g. "exports".
	Prefix string
	// Topic receives a Notice per export when a publisher is configured.
	Topic string
}

// Notice announces a finished export.
type Notice struct {
	RunID      string           `json:"run_id"`
	Site       string           `json:"site"`
	KeyField   crawler.KeyField `json:"key_field"`
	URI        string           `json:"uri"`
	SHA256     string           `json:"sha256"`
	Records    int              `json:"records"`
	ExportedAt time.Time        `json:"exported_at"`
}

// Attributes exposes routing fields as Pub/Sub message attributes.
func (n Notice) Attributes() map[string]string {
	return map[string]string{"run_id": n.RunID, "site": n.Site}
}

// Result describes one export.
type Result struct {
	Path      string
	URI       string
	SHA256    string
	Bytes     int
	Records   int
	MessageID string
}

// Pipeline writes the CSV snapshot, then the optional database copy and
// notification.
type Pipeline struct {
	cfg       Config
	blobs     crawler.BlobStore
	snapshots SnapshotWriter
	publisher crawler.Publisher
	hasher    crawler.Hasher
	clock     crawler.Clock
	logger    *zap.Logger
}

// NewPipeline wires the exporter. snapshots and publisher may be nil.
func NewPipeline(
	cfg Config,
	blobs crawler.BlobStore,
	snapshots SnapshotWriter,
	publisher crawler.Publisher,
	hasher crawler.Hasher,
	clock crawler.Clock,
	logger *zap.Logger,
) (*Pipeline, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if hasher == nil || clock == nil {
		return nil, fmt.Errorf("hasher and clock are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:       cfg,
		blobs:     blobs,
		snapshots: snapshots,
		publisher: publisher,
		hasher:    hasher,
		clock:     clock,
		logger:    logger.Named("export"),
	}, nil
}

// ObjectPath returns <prefix>/<site>/<date>/<run_id>.csv.
func (p *Pipeline) ObjectPath(run crawler.RunSummary, at time.Time) string {
	return path.Join(p.cfg.Prefix, run.Site, at.UTC().Format(time.DateOnly), run.RunID+".csv")
}

// Export writes records for run. The CSV upload must succeed; database and
// notification failures are reported together after both were attempted.
func (p *Pipeline) Export(ctx context.Context, run crawler.RunSummary, records []crawler.KeyedRecord) (Result, error) {
	if run.RunID == "" || run.Site == "" {
		return Result{}, fmt.Errorf("run id and site are required")
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, run.KeyField, records); err != nil {
		return Result{}, err
	}
	digest, err := p.hasher.Hash(buf.Bytes())
	if err != nil {
		return Result{}, fmt.Errorf("hash export: %w", err)
	}

	now := p.clock.Now()
	res := Result{
		Path:    p.ObjectPath(run, now),
		SHA256:  digest,
		Bytes:   buf.Len(),
		Records: len(records),
	}
	res.URI, err = p.blobs.PutObject(ctx, res.Path, contentType, &buf)
	if err != nil {
		return res, fmt.Errorf("put object %s: %w", res.Path, err)
	}
	p.logger.Info("snapshot exported",
		zap.String("site", run.Site),
		zap.String("run_id", run.RunID),
		zap.String("uri", res.URI),
		zap.Int("records", res.Records),
	)

	var errs []error
	if p.snapshots != nil {
		if err := p.snapshots.WriteSnapshot(ctx, run.RunID, run.Site, records); err != nil {
			errs = append(errs, fmt.Errorf("write db snapshot: %w", err))
		} else if err := p.snapshots.RecordRun(ctx, run, res.URI); err != nil {
			errs = append(errs, fmt.Errorf("record run: %w", err))
		}
	}
	if p.publisher != nil && p.cfg.Topic != "" {
		notice := Notice{
			RunID:      run.RunID,
			Site:       run.Site,
			KeyField:   run.KeyField,
			URI:        res.URI,
			SHA256:     digest,
			Records:    res.Records,
			ExportedAt: now,
		}
		id, err := p.publisher.Publish(ctx, p.cfg.Topic, notice)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish notice: %w", err))
		}
		res.MessageID = id
	}
	return res, errors.Join(errs...)
}
