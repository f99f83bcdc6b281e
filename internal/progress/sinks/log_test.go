package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/grocery-catalog-crawler/internal/progress"
)

func TestLogSinkWritesProgressLines(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))
	runID := progress.UUIDToBytes(uuid.New())
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StagePageDone, Site: "dalben", Category: "mercearia", Page: 2, Pages: 5, Stored: 12},
		{RunID: runID, TS: time.Now(), Stage: progress.StageCategorySkipped, Site: "dalben", URL: "u", Note: "timeout"},
	}))

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "page done", entries[0].Message)
	ctx := entries[0].ContextMap()
	assert.Equal(t, int64(2), ctx["page"])
	assert.Equal(t, int64(5), ctx["pages"])
	assert.Equal(t, int64(12), ctx["stored"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "timeout", entries[1].ContextMap()["reason"])
}
