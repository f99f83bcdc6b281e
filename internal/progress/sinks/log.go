package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/grocery-catalog-crawler/internal/progress"
)

// LogSink turns progress events into human-followable log lines.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("site", evt.Site),
		}
		level := zapcore.InfoLevel
		var msg string
		switch evt.Stage {
		case progress.StageRunStart:
			msg = "crawl started"
		case progress.StageCategoryStart:
			msg = "category started"
			fields = append(fields,
				zap.String("category", evt.Category),
				zap.String("url", evt.URL),
				zap.Int("pages", evt.Pages),
			)
		case progress.StageCategorySkipped:
			msg = "category skipped"
			level = zapcore.WarnLevel
			fields = append(fields,
				zap.String("category", evt.Category),
				zap.String("url", evt.URL),
				zap.String("reason", evt.Note),
			)
		case progress.StagePageDone:
			msg = "page done"
			fields = append(fields,
				zap.String("category", evt.Category),
				zap.Int("page", evt.Page),
				zap.Int("pages", evt.Pages),
				zap.Int("items", evt.Items),
				zap.Int("stored", evt.Stored),
				zap.Int("failed", evt.Failed),
				zap.Duration("dur", evt.Dur),
			)
		case progress.StagePageFailed:
			msg = "page failed"
			level = zapcore.WarnLevel
			fields = append(fields,
				zap.String("category", evt.Category),
				zap.String("url", evt.URL),
				zap.Int("page", evt.Page),
				zap.Int("pages", evt.Pages),
				zap.String("reason", evt.Note),
			)
		case progress.StageRunDone:
			msg = "crawl finished"
			fields = append(fields,
				zap.Int("items", evt.Items),
				zap.Int("stored", evt.Stored),
				zap.Int("failed", evt.Failed),
				zap.Duration("elapsed", evt.Dur),
			)
		default:
			msg = "progress event"
			fields = append(fields, zap.String("stage", string(evt.Stage)))
		}
		if ce := s.logger.Check(level, msg); ce != nil {
			ce.Write(fields...)
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
