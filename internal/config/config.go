// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/grocery-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/sites/dalben"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/sites/paguemenos"
)

// EnvPrefix namespaces environment overrides, e.g. CATALOG_CRAWLER_CONCURRENCY.
const EnvPrefix = "CATALOG"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Sites    SitesConfig    `mapstructure:"sites"`
	Export   ExportConfig   `mapstructure:"export"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Server   ServerConfig   `mapstructure:"server"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CrawlerConfig governs the dispatcher and the fetch layer.
type CrawlerConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	QueueDepth     int           `mapstructure:"queue_depth"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// MaxPages clamps every category's page count; 0 leaves it unbounded.
	MaxPages int `mapstructure:"max_pages"`
}

// HeadlessConfig configures the browser session used by rendered sites.
type HeadlessConfig struct {
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
	ExecPath    string        `mapstructure:"exec_path"`
	Headful     bool          `mapstructure:"headful"`
}

// SitesConfig selects and tunes the catalog variants.
type SitesConfig struct {
	Enabled    []string         `mapstructure:"enabled"`
	Dalben     DalbenConfig     `mapstructure:"dalben"`
	PagueMenos PagueMenosConfig `mapstructure:"paguemenos"`
}

// DalbenConfig tunes the rendered catalog.
type DalbenConfig struct {
	Seeds          []string `mapstructure:"seeds"`
	PageTokenIndex int      `mapstructure:"page_token_index"`
	RefSegment     int      `mapstructure:"ref_segment"`
}

// PagueMenosConfig tunes the server-rendered catalog.
type PagueMenosConfig struct {
	Seeds          []string `mapstructure:"seeds"`
	DeepScrape     bool     `mapstructure:"deep_scrape"`
	Key            string   `mapstructure:"key"`
	PageTokenIndex int      `mapstructure:"page_token_index"`
}

// ExportConfig sets where finished record tables are written.
type ExportConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	Prefix    string `mapstructure:"prefix"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// DBConfig controls the optional snapshot database.
type DBConfig struct {
	DSN       string `mapstructure:"dsn"`
	Table     string `mapstructure:"table"`
	RunsTable string `mapstructure:"runs_table"`
	MaxConns  int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds the optional export notification target.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the operator HTTP server. An empty Listen disables it.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// searchPaths are tried in order for catalog.yaml when no file is given.
var searchPaths = []string{".", "$HOME/.catalog-crawler", "/etc/catalog-crawler"}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"site":        "sites.enabled",
	"deep-scrape": "sites.paguemenos.deep_scrape",
	"listen":      "server.listen",
	"output-dir":  "export.output_dir",
	"max-pages":   "crawler.max_pages",
	"dev":         "logging.development",
}

// DefaultDalbenSeeds are the department pages crawled by default.
var DefaultDalbenSeeds = []string{
	"https://www.dalbendelivery.com.br/produtos/departamento/bebidas",
	"https://www.dalbendelivery.com.br/produtos/departamento/mercearia",
	"https://www.dalbendelivery.com.br/produtos/departamento/saudaveis",
	"https://www.dalbendelivery.com.br/produtos/departamento/hortifruti",
	"https://www.dalbendelivery.com.br/produtos/departamento/padaria-e-pizzaria",
	"https://www.dalbendelivery.com.br/produtos/departamento/acougue",
	"https://www.dalbendelivery.com.br/produtos/departamento/peixaria",
	"https://www.dalbendelivery.com.br/produtos/departamento/frios",
	"https://www.dalbendelivery.com.br/produtos/departamento/laticinios-e-conservas",
	"https://www.dalbendelivery.com.br/produtos/departamento/congelados",
	"https://www.dalbendelivery.com.br/produtos/departamento/limpezas",
	"https://www.dalbendelivery.com.br/produtos/departamento/bazar",
	"https://www.dalbendelivery.com.br/produtos/departamento/pet-e-jardim",
	"https://www.dalbendelivery.com.br/produtos/departamento/beleza-e-cuidados",
}

// DefaultPagueMenosSeeds are the listing patterns crawled by default.
var DefaultPagueMenosSeeds = []string{
	"https://www.superpaguemenos.com.br/6929-congelados/?p={}",
	"https://www.superpaguemenos.com.br/8510-cafe-da-manha/?p={}",
	"https://www.superpaguemenos.com.br/6932-higiene-e-beleza/?p={}",
	"https://www.superpaguemenos.com.br/6933-feira/?p={}",
	"https://www.superpaguemenos.com.br/8519-frios-e-laticinios/?p={}",
	"https://www.superpaguemenos.com.br/6935-limpeza/?p={}",
	"https://www.superpaguemenos.com.br/9616-utilidades-domesticas/?p={}",
	"https://www.superpaguemenos.com.br/8295-mercearia/?p={}",
	"https://www.superpaguemenos.com.br/8382-bebidas/?p={}",
}

// Load builds a Config from defaults, the config file, the environment and any
// bound flags, in increasing precedence. Without an explicit path, catalog.yaml
// is looked up in searchPaths and is optional.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("catalog")
		v.SetConfigType("yaml")
		for _, dir := range searchPaths {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Sites.Enabled = splitList(cfg.Sites.Enabled)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("crawler.concurrency", 8)
	v.SetDefault("crawler.queue_depth", 0)
	v.SetDefault("crawler.user_agent", "grocery-catalog-crawler/0.1")
	v.SetDefault("crawler.request_timeout", 20*time.Second)
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("headless.nav_timeout", 45*time.Second)
	v.SetDefault("headless.wait_timeout", 5*time.Second)
	v.SetDefault("headless.headful", false)
	v.SetDefault("sites.enabled", []string{dalben.Name, paguemenos.Name})
	v.SetDefault("sites.dalben.seeds", DefaultDalbenSeeds)
	v.SetDefault("sites.dalben.page_token_index", 3)
	v.SetDefault("sites.dalben.ref_segment", -1)
	v.SetDefault("sites.paguemenos.seeds", DefaultPagueMenosSeeds)
	v.SetDefault("sites.paguemenos.deep_scrape", false)
	v.SetDefault("sites.paguemenos.key", "")
	v.SetDefault("sites.paguemenos.page_token_index", -1)
	v.SetDefault("export.output_dir", "exports")
	v.SetDefault("export.prefix", "catalog")
	v.SetDefault("db.table", "product_snapshots")
	v.SetDefault("db.runs_table", "crawl_runs")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("server.listen", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.Concurrency <= 0 {
		return errors.New("crawler.concurrency must be > 0")
	}
	if c.Crawler.QueueDepth < 0 {
		return errors.New("crawler.queue_depth must be >= 0")
	}
	if c.Crawler.RequestTimeout <= 0 {
		return errors.New("crawler.request_timeout must be > 0")
	}
	if c.Crawler.MaxPages < 0 {
		return errors.New("crawler.max_pages must be >= 0")
	}
	if len(c.Sites.Enabled) == 0 {
		return errors.New("sites.enabled must name at least one site")
	}
	seen := make(map[string]struct{}, len(c.Sites.Enabled))
	for _, name := range c.Sites.Enabled {
		if name != dalben.Name && name != paguemenos.Name {
			return fmt.Errorf("sites.enabled: unknown site %q", name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("sites.enabled: %q listed twice", name)
		}
		seen[name] = struct{}{}
	}
	if c.SiteEnabled(dalben.Name) {
		if c.Headless.NavTimeout <= 0 || c.Headless.WaitTimeout <= 0 {
			return errors.New("headless.nav_timeout and headless.wait_timeout must be > 0")
		}
		if len(c.Sites.Dalben.Seeds) == 0 {
			return errors.New("sites.dalben.seeds must not be empty")
		}
	}
	if c.SiteEnabled(paguemenos.Name) {
		if err := c.Sites.PagueMenos.validate(); err != nil {
			return err
		}
	}
	if c.Export.OutputDir == "" && c.Export.GCSBucket == "" {
		return errors.New("export.output_dir or export.gcs_bucket is required")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return errors.New("pubsub.project_id is required when pubsub.topic is set")
	}
	return nil
}

func (p PagueMenosConfig) validate() error {
	if len(p.Seeds) == 0 {
		return errors.New("sites.paguemenos.seeds must not be empty")
	}
	for _, seed := range p.Seeds {
		if !strings.Contains(seed, paguemenos.PagePlaceholder) {
			return fmt.Errorf("sites.paguemenos.seeds: %q lacks the %s page placeholder", seed, paguemenos.PagePlaceholder)
		}
	}
	key := crawler.KeyField(p.Key)
	if key != "" && !key.Valid() {
		return fmt.Errorf("sites.paguemenos.key: unknown key %q", p.Key)
	}
	if key == crawler.KeyRef && !p.DeepScrape {
		return errors.New("sites.paguemenos.key=ref requires deep_scrape")
	}
	return nil
}

// SiteEnabled reports whether name is in sites.enabled.
func (c Config) SiteEnabled(name string) bool {
	return slices.Contains(c.Sites.Enabled, name)
}

// splitList flattens comma-joined entries, which is how env overrides arrive.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
