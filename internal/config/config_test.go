package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.Concurrency != 8 {
		t.Fatalf("expected default concurrency 8, got %d", cfg.Crawler.Concurrency)
	}
	if cfg.Headless.WaitTimeout != 5*time.Second {
		t.Fatalf("expected 5s wait timeout, got %v", cfg.Headless.WaitTimeout)
	}
	if !cfg.SiteEnabled("dalben") || !cfg.SiteEnabled("paguemenos") {
		t.Fatalf("expected both sites enabled, got %v", cfg.Sites.Enabled)
	}
	if len(cfg.Sites.Dalben.Seeds) != len(DefaultDalbenSeeds) {
		t.Fatalf("expected %d dalben seeds, got %d", len(DefaultDalbenSeeds), len(cfg.Sites.Dalben.Seeds))
	}
	if len(cfg.Sites.PagueMenos.Seeds) != len(DefaultPagueMenosSeeds) {
		t.Fatalf("expected %d paguemenos seeds, got %d", len(DefaultPagueMenosSeeds), len(cfg.Sites.PagueMenos.Seeds))
	}
	if cfg.Sites.Dalben.PageTokenIndex != 3 || cfg.Sites.PagueMenos.PageTokenIndex != -1 {
		t.Fatalf("unexpected page token defaults: %+v", cfg.Sites)
	}
	if cfg.Server.Listen != "" {
		t.Fatalf("expected server disabled by default")
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
logging:
  development: false
crawler:
  concurrency: 3
  request_timeout: 45s
  max_pages: 40
headless:
  wait_timeout: 8s
sites:
  enabled: [paguemenos]
  paguemenos:
    deep_scrape: true
    key: ref
    seeds:
      - "https://shop.test/10-bebidas/?p={}"
export:
  output_dir: /tmp/out
  prefix: weekly
pubsub:
  project_id: proj
  topic: exports
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected production logging")
	}
	if cfg.Crawler.Concurrency != 3 || cfg.Crawler.RequestTimeout != 45*time.Second || cfg.Crawler.MaxPages != 40 {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if cfg.Headless.WaitTimeout != 8*time.Second {
		t.Fatalf("expected wait timeout override, got %v", cfg.Headless.WaitTimeout)
	}
	if cfg.SiteEnabled("dalben") || !cfg.SiteEnabled("paguemenos") {
		t.Fatalf("expected only paguemenos enabled, got %v", cfg.Sites.Enabled)
	}
	pm := cfg.Sites.PagueMenos
	if !pm.DeepScrape || pm.Key != "ref" || len(pm.Seeds) != 1 {
		t.Fatalf("expected paguemenos overrides: %+v", pm)
	}
	if cfg.Export.Prefix != "weekly" || cfg.PubSub.Topic != "exports" {
		t.Fatalf("expected export and pubsub overrides: %+v %+v", cfg.Export, cfg.PubSub)
	}
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  listen: \":9000\"\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringSlice("site", nil, "")
	flags.Bool("deep-scrape", false, "")
	flags.String("listen", "", "")
	flags.String("output-dir", "", "")
	if err := flags.Parse([]string{"--site", "paguemenos", "--deep-scrape", "--listen", ":8081"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Listen != ":8081" {
		t.Fatalf("expected flag to win over file, got %q", cfg.Server.Listen)
	}
	if !cfg.Sites.PagueMenos.DeepScrape {
		t.Fatalf("expected deep scrape from flag")
	}
	if len(cfg.Sites.Enabled) != 1 || cfg.Sites.Enabled[0] != "paguemenos" {
		t.Fatalf("expected site flag to apply, got %v", cfg.Sites.Enabled)
	}
	if cfg.Export.OutputDir != "exports" {
		t.Fatalf("unchanged flag must not clobber the default, got %q", cfg.Export.OutputDir)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CATALOG_CRAWLER_CONCURRENCY", "12")
	t.Setenv("CATALOG_SITES_ENABLED", "dalben")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.Concurrency != 12 {
		t.Fatalf("expected env concurrency 12, got %d", cfg.Crawler.Concurrency)
	}
	if len(cfg.Sites.Enabled) != 1 || cfg.Sites.Enabled[0] != "dalben" {
		t.Fatalf("expected env site list, got %v", cfg.Sites.Enabled)
	}
}

func TestValidate(t *testing.T) {
	base, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"concurrency", func(c *Config) { c.Crawler.Concurrency = 0 }, "crawler.concurrency"},
		{"request timeout", func(c *Config) { c.Crawler.RequestTimeout = 0 }, "crawler.request_timeout"},
		{"max pages", func(c *Config) { c.Crawler.MaxPages = -1 }, "crawler.max_pages"},
		{"no sites", func(c *Config) { c.Sites.Enabled = nil }, "at least one site"},
		{"unknown site", func(c *Config) { c.Sites.Enabled = []string{"other"} }, "unknown site"},
		{"duplicate site", func(c *Config) { c.Sites.Enabled = []string{"dalben", "dalben"} }, "listed twice"},
		{"wait timeout", func(c *Config) { c.Headless.WaitTimeout = 0 }, "headless"},
		{"dalben seeds", func(c *Config) { c.Sites.Dalben.Seeds = nil }, "sites.dalben.seeds"},
		{"placeholder", func(c *Config) { c.Sites.PagueMenos.Seeds = []string{"https://x/"} }, "placeholder"},
		{"bad key", func(c *Config) { c.Sites.PagueMenos.Key = "ean" }, "unknown key"},
		{"ref without deep scrape", func(c *Config) { c.Sites.PagueMenos.Key = "ref" }, "requires deep_scrape"},
		{"no export target", func(c *Config) { c.Export.OutputDir = "" }, "export"},
		{"topic without project", func(c *Config) { c.PubSub.Topic = "t" }, "pubsub.project_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			cfg.Sites.Enabled = append([]string(nil), base.Sites.Enabled...)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tc.want)
			}
		})
	}

	// Headless limits only matter when the rendered site runs.
	cfg := base
	cfg.Sites.Enabled = []string{"paguemenos"}
	cfg.Headless.WaitTimeout = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected headless settings ignored without dalben: %v", err)
	}
}
