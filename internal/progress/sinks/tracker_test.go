package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/grocery-catalog-crawler/internal/progress"
)

func TestTrackerFoldsEvents(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	runID := progress.UUIDToBytes(uuid.New())
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	batch := []progress.Event{
		{RunID: runID, TS: ts, Stage: progress.StageRunStart, Site: "paguemenos"},
		{RunID: runID, TS: ts, Stage: progress.StageCategoryStart, Site: "paguemenos", Category: "bebidas", URL: "u", Pages: 3},
		{RunID: runID, TS: ts, Stage: progress.StagePageDone, Site: "paguemenos", Category: "bebidas", Page: 1, Pages: 3, Items: 5, Stored: 4, Failed: 1},
		{RunID: runID, TS: ts, Stage: progress.StagePageFailed, Site: "paguemenos", Category: "bebidas", Page: 2, Pages: 3},
		{RunID: runID, TS: ts, Stage: progress.StageCategorySkipped, Site: "paguemenos", URL: "v"},
	}
	require.NoError(t, tr.Consume(context.Background(), batch))

	sp, ok := tr.Site("paguemenos")
	require.True(t, ok)
	assert.Equal(t, uuid.UUID(runID).String(), sp.RunID)
	assert.Equal(t, StateRunning, sp.State)
	assert.Equal(t, 2, sp.Categories)
	assert.Equal(t, 1, sp.CategoriesSkipped)
	assert.Equal(t, 1, sp.PagesDone)
	assert.Equal(t, 1, sp.PagesFailed)
	assert.Equal(t, 5, sp.Items)
	assert.Equal(t, 4, sp.Stored)
	assert.Equal(t, 1, sp.Failed)
	assert.Equal(t, "bebidas", sp.Category)

	done := progress.Event{RunID: runID, TS: ts.Add(time.Minute), Stage: progress.StageRunDone, Site: "paguemenos"}
	require.NoError(t, tr.Consume(context.Background(), []progress.Event{done}))
	sp, _ = tr.Site("paguemenos")
	assert.Equal(t, StateDone, sp.State)
	assert.Equal(t, 4, sp.Stored)
	assert.Equal(t, ts.Add(time.Minute), sp.UpdatedAt)
}

func TestTrackerNewRunResets(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	first := progress.UUIDToBytes(uuid.New())
	second := progress.UUIDToBytes(uuid.New())
	ts := time.Now()
	require.NoError(t, tr.Consume(context.Background(), []progress.Event{
		{RunID: first, TS: ts, Stage: progress.StagePageDone, Site: "dalben", Page: 1, Pages: 1, Stored: 7},
		{RunID: second, TS: ts, Stage: progress.StageRunStart, Site: "dalben"},
		{RunID: first, TS: ts, Stage: progress.StageRunStart, Site: "alpha"},
	}))

	snap := tr.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "alpha", snap[0].Site)
	assert.Equal(t, "dalben", snap[1].Site)
	assert.Zero(t, snap[1].Stored)

	_, ok := tr.Site("missing")
	assert.False(t, ok)
}
