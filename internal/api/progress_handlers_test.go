package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/grocery-catalog-crawler/internal/progress"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/progress/sinks"
)

func TestProgressHandlerListSites(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(t), "/v1/progress")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sites []sinks.SiteProgress `json:"sites"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sites, 1)
	assert.Equal(t, "dalben", body.Sites[0].Site)
	assert.Equal(t, 8, body.Sites[0].Stored)
}

func TestProgressHandlerGetSite(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	rec := serve(t, server, "/v1/progress/dalben")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Site sinks.SiteProgress `json:"site"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Site.Page)
	assert.Equal(t, 4, body.Site.Pages)

	require.Equal(t, http.StatusNotFound, serve(t, server, "/v1/progress/paguemenos").Code)
}

func newTestTracker(t *testing.T) *sinks.Tracker {
	t.Helper()

	tracker := sinks.NewTracker()
	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	require.NoError(t, tracker.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Site: "dalben"},
		{RunID: runID, TS: now, Stage: progress.StagePageDone, Site: "dalben", Category: "mercearia", Page: 1, Pages: 4, Items: 5, Stored: 5},
		{RunID: runID, TS: now, Stage: progress.StagePageDone, Site: "dalben", Category: "mercearia", Page: 2, Pages: 4, Items: 4, Stored: 3, Failed: 1},
	}))
	return tracker
}
