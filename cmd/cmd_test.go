package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/grocery-catalog-crawler/internal/app"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/config"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/export"
)

type fakeApp struct {
	cfg      config.Config
	outcomes []app.Outcome
	err      error
	closed   bool
}

func (f *fakeApp) Run(context.Context) ([]app.Outcome, error) { return f.outcomes, f.err }

func (f *fakeApp) Close(context.Context) error {
	f.closed = true
	return nil
}

func withFakeApp(t *testing.T, fake *fakeApp) {
	t.Helper()
	orig := newApp
	newApp = func(_ context.Context, cfg config.Config, _ *zap.Logger) (crawlApp, error) {
		fake.cfg = cfg
		return fake, nil
	}
	t.Cleanup(func() { newApp = orig })
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCrawlCommandBindsFlagsAndPrintsSummary(t *testing.T) {
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	fake := &fakeApp{outcomes: []app.Outcome{{
		Summary: crawler.RunSummary{
			Site: "paguemenos", KeyField: crawler.KeyRef, Categories: 9, CategoriesSkipped: 1,
			Pages: 40, Records: 812, Failed: 3, StartedAt: start, FinishedAt: start.Add(90 * time.Second),
		},
		Export: export.Result{URI: "file:///tmp/out.csv"},
	}}}
	withFakeApp(t, fake)

	out, err := runRoot(t, "crawl", "--site", "paguemenos", "--deep-scrape", "--output-dir", t.TempDir(), "--max-pages", "5")
	require.NoError(t, err)
	assert.True(t, fake.closed)
	assert.Equal(t, []string{"paguemenos"}, fake.cfg.Sites.Enabled)
	assert.True(t, fake.cfg.Sites.PagueMenos.DeepScrape)
	assert.Equal(t, 5, fake.cfg.Crawler.MaxPages)
	assert.Contains(t, out, "paguemenos")
	assert.Contains(t, out, "812")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "file:///tmp/out.csv")
}

func TestCrawlCommandRejectsInvalidConfig(t *testing.T) {
	withFakeApp(t, &fakeApp{})
	_, err := runRoot(t, "crawl", "--site", "elsewhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown site")
}

func TestCrawlCommandInterruptIsNotAFailure(t *testing.T) {
	fake := &fakeApp{err: context.Canceled}
	withFakeApp(t, fake)
	_, err := runRoot(t, "crawl", "--site", "paguemenos")
	require.NoError(t, err)
	assert.True(t, fake.closed)
}

func TestCrawlCommandReportsRunErrors(t *testing.T) {
	fake := &fakeApp{err: errors.New("export paguemenos: put object: disk full")}
	withFakeApp(t, fake)
	_, err := runRoot(t, "crawl", "--site", "paguemenos")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
