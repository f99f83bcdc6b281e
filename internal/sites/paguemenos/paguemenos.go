// Package paguemenos crawls the Pague Menos catalog. Listings are server
// rendered and fetched directly; the category list is static.
package paguemenos

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JakeFAU/grocery-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/extract"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/pagination"
)

// Name identifies the site in records, config, and metrics.
const Name = "paguemenos"

// PagePlaceholder marks where the page number goes in a seed pattern.
const PagePlaceholder = "{}"

const (
	paginationSelector = "li.info"
	itemSelector       = "div.item-product"
	nameSelector       = "span[itemprop=name]"
	priceSelector      = "strong.price"
	discountSelector   = "span.descont_percentage strong"
	loyaltySelector    = "span.selo_clube"
	detailSelector     = "meta[content]"
	refSelector        = "span[itemprop=sku]"
	brandSelector      = "a[itemprop=brand]"
)

var categoryPrefix = regexp.MustCompile(`^\d+-`)

// Config tunes the Pague Menos crawler.
type Config struct {
	// Seeds are listing URL patterns with PagePlaceholder standing in for
	// the page number.
	Seeds []string
	// DeepScrape fetches each product's detail page for its ref and brand.
	DeepScrape bool
	// Key is the store key; it must be sku unless DeepScrape is set.
	Key            crawler.KeyField
	PageTokenIndex int
	MaxPages       int
}

// Site implements crawler.Site for Pague Menos.
type Site struct {
	cfg        Config
	fetcher    crawler.DocumentFetcher
	normalizer crawler.Normalizer
	logger     *zap.Logger
	rule       pagination.Rule

	mu    sync.Mutex
	first map[string]*crawler.Document // page 1 fetched by PageCount, keyed by pattern
}

// New builds the site around an injected fetcher.
func New(cfg Config, fetcher crawler.DocumentFetcher, normalizer crawler.Normalizer, logger *zap.Logger) (*Site, error) {
	if cfg.Key == "" {
		cfg.Key = crawler.KeySKU
		if cfg.DeepScrape {
			cfg.Key = crawler.KeyRef
		}
	}
	if !cfg.Key.Valid() {
		return nil, fmt.Errorf("unknown key field %q", cfg.Key)
	}
	if cfg.Key == crawler.KeyRef && !cfg.DeepScrape {
		return nil, fmt.Errorf("key %q requires deep scrape", cfg.Key)
	}
	for _, seed := range cfg.Seeds {
		if !strings.Contains(seed, PagePlaceholder) {
			return nil, fmt.Errorf("seed %q has no %s page placeholder", seed, PagePlaceholder)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Site{
		cfg:        cfg,
		fetcher:    fetcher,
		normalizer: normalizer,
		logger:     logger.Named(Name),
		rule:       pagination.Rule{TokenIndex: cfg.PageTokenIndex, MaxPages: cfg.MaxPages},
		first:      make(map[string]*crawler.Document),
	}, nil
}

// Name implements crawler.Site.
func (s *Site) Name() string { return Name }

// KeyField implements crawler.Site.
func (s *Site) KeyField() crawler.KeyField { return s.cfg.Key }

// Frontier returns the configured categories in order.
func (s *Site) Frontier(context.Context) ([]crawler.Category, error) {
	out := make([]crawler.Category, 0, len(s.cfg.Seeds))
	for _, seed := range s.cfg.Seeds {
		out = append(out, crawler.Category{Site: Name, URL: seed, Name: CategoryName(seed)})
	}
	return out, nil
}

// PageCount fetches page 1 and reads the last token of its pagination
// indicator. Only a failed fetch is an error.
func (s *Site) PageCount(ctx context.Context, cat crawler.Category) (int, error) {
	target := PageURL(cat.URL, 1)
	doc, err := s.fetcher.FetchDocument(ctx, target)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", target, err)
	}
	s.mu.Lock()
	s.first[cat.URL] = doc
	s.mu.Unlock()

	var (
		text      string
		lookupErr error
	)
	if n, ok := doc.First(paginationSelector); ok {
		text = n.Text()
	} else {
		lookupErr = crawler.ErrNotFound
	}
	res := s.rule.Resolve(text, lookupErr)
	switch {
	case res.Defaulted:
		s.logger.Debug("pagination indicator unavailable", zap.String("url", target), zap.Error(res.Cause))
	case res.Clamped:
		s.logger.Warn("page count clamped", zap.String("url", target), zap.Int("pages", res.Pages))
	}
	return res.Pages, nil
}

// Items returns the product nodes of one listing page.
func (s *Site) Items(ctx context.Context, cat crawler.Category, page int) ([]crawler.Node, error) {
	doc := s.takeFirst(cat, page)
	if doc == nil {
		target := PageURL(cat.URL, page)
		var err error
		doc, err = s.fetcher.FetchDocument(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", target, err)
		}
	}
	return doc.Find(itemSelector), nil
}

func (s *Site) takeFirst(cat crawler.Category, page int) *crawler.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.first[cat.URL]
	delete(s.first, cat.URL)
	if page != 1 {
		return nil
	}
	return doc
}

// Extract reads one product tile, plus its detail page in deep-scrape mode.
// SKU and name are required, and so is ref when deep scraping.
func (s *Site) Extract(ctx context.Context, cat crawler.Category, item crawler.Node) (crawler.ProductRecord, error) {
	rawSKU, _ := item.Attr("data-sku")
	sku, err := extract.ParseInt(rawSKU)
	if err != nil {
		return crawler.ProductRecord{}, fmt.Errorf("%w: sku: %w", crawler.ErrMissingField, err)
	}
	nameNode, ok := item.First(nameSelector)
	if !ok {
		return crawler.ProductRecord{}, fmt.Errorf("%w: name for sku %d", crawler.ErrMissingField, sku)
	}
	name := s.normalizer.Normalize(nameNode.Text())
	if name == "" {
		return crawler.ProductRecord{}, fmt.Errorf("%w: name for sku %d", crawler.ErrMissingField, sku)
	}

	rec := crawler.ProductRecord{
		SKU:      crawler.Some(sku),
		Name:     name,
		Price:    price(item),
		Discount: s.discount(item, sku),
		Loyalty:  item.Has(loyaltySelector),
		Category: cat.Name,
		Site:     Name,
		URL:      detailURL(item),
	}
	if !s.cfg.DeepScrape {
		return rec, nil
	}

	if rec.URL == "" {
		return crawler.ProductRecord{}, fmt.Errorf("%w: detail link for sku %d", crawler.ErrMissingField, sku)
	}
	detail, err := s.fetcher.FetchDocument(ctx, rec.URL)
	if err != nil {
		return crawler.ProductRecord{}, fmt.Errorf("fetch detail for sku %d: %w", sku, err)
	}
	refNode, ok := detail.First(refSelector)
	if !ok {
		return crawler.ProductRecord{}, fmt.Errorf("%w: ref for sku %d", crawler.ErrMissingField, sku)
	}
	ref, err := extract.ParseInt(refNode.Text())
	if err != nil {
		return crawler.ProductRecord{}, fmt.Errorf("%w: ref for sku %d: %w", crawler.ErrMissingField, sku, err)
	}
	rec.Ref = crawler.Some(ref)
	if b, ok := detail.First(brandSelector); ok {
		if brand := strings.TrimSpace(b.Text()); brand != "" {
			rec.Brand = crawler.Some(brand)
		}
	}
	return rec, nil
}

func price(item crawler.Node) crawler.Optional[decimal.Decimal] {
	tag, ok := item.First(priceSelector)
	if !ok {
		return crawler.None[decimal.Decimal]()
	}
	p, err := extract.ParsePrice(tag.OwnText(), tag.Text())
	if err != nil {
		return crawler.None[decimal.Decimal]()
	}
	return crawler.Some(p)
}

func (s *Site) discount(item crawler.Node, sku int64) int {
	badge, ok := item.First(discountSelector)
	if !ok {
		return 0
	}
	d, err := extract.ParseDiscount(badge.Text())
	if err != nil {
		s.logger.Debug("unreadable discount badge", zap.Int64("sku", sku), zap.Error(err))
		return 0
	}
	return d
}

func detailURL(item crawler.Node) string {
	meta, ok := item.First(detailSelector)
	if !ok {
		return ""
	}
	content, _ := meta.Attr("content")
	return item.AbsoluteURL(content)
}

// PageURL fills the page placeholder of a seed pattern.
func PageURL(pattern string, page int) string {
	return strings.ReplaceAll(pattern, PagePlaceholder, strconv.Itoa(page))
}

// CategoryName derives a readable category from a seed such as
// https://host/6929-congelados/?p={}.
func CategoryName(pattern string) string {
	u, err := url.Parse(PageURL(pattern, 1))
	if err != nil {
		return ""
	}
	seg := strings.Trim(u.Path, "/")
	if i := strings.Index(seg, "/"); i >= 0 {
		seg = seg[:i]
	}
	return categoryPrefix.ReplaceAllString(seg, "")
}
