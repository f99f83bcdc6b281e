// Package dalben crawls the Dalben delivery catalog. Its listings are built
// client side, so every page goes through a browser session.
package dalben

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JakeFAU/grocery-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/extract"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/pagination"
)

// Name identifies the site in records, config, and metrics.
const Name = "dalben"

const (
	frontierSelector   = `div.row.vip-categories p > a[href^="/produtos/departamento/"]`
	paginationSelector = "app-paginacao > nav > div"
	itemSelector       = "div.product"
	anchorSelector     = "p > a[title]"
	priceSelector      = "div.drill-price > div.info-price"
)

// Config tunes the Dalben crawler.
type Config struct {
	// Seeds are department pages whose subcategory links form the frontier.
	Seeds       []string
	WaitTimeout time.Duration
	// PageTokenIndex selects the page total in "Página 1 de 12".
	PageTokenIndex int
	MaxPages       int
	// RefSegment is the path segment of a product link holding its ref.
	// Negative picks the first numeric segment.
	RefSegment int
}

// Site implements crawler.Site for Dalben.
type Site struct {
	cfg        Config
	renderer   crawler.Renderer
	normalizer crawler.Normalizer
	logger     *zap.Logger
	rule       pagination.Rule

	mu     sync.Mutex
	loaded string // URL currently shown in the tab
}

// New builds the site around an injected renderer.
func New(cfg Config, renderer crawler.Renderer, normalizer crawler.Normalizer, logger *zap.Logger) *Site {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Site{
		cfg:        cfg,
		renderer:   renderer,
		normalizer: normalizer,
		logger:     logger.Named(Name),
		rule:       pagination.Rule{TokenIndex: cfg.PageTokenIndex, MaxPages: cfg.MaxPages},
	}
}

// Name implements crawler.Site.
func (s *Site) Name() string { return Name }

// KeyField implements crawler.Site. Every Dalben product link carries a ref.
func (s *Site) KeyField() crawler.KeyField { return crawler.KeyRef }

// Frontier visits each seed and collects its leaf category links. A seed
// that fails to load or shows no links contributes nothing.
func (s *Site) Frontier(ctx context.Context) ([]crawler.Category, error) {
	var (
		out  []crawler.Category
		seen = make(map[string]struct{})
	)
	for _, seed := range s.cfg.Seeds {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("build frontier: %w", err)
		}
		links, err := s.subcategoryLinks(ctx, seed)
		if err != nil {
			s.logger.Debug("seed skipped", zap.String("url", seed), zap.Error(err))
			continue
		}
		for _, link := range links {
			key, err := crawler.CanonicalURL(link)
			if err != nil {
				s.logger.Debug("frontier link skipped", zap.String("url", link), zap.Error(err))
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			name, sub := extract.CategoryFromURL(link)
			out = append(out, crawler.Category{Site: Name, URL: link, Name: name, Subcategory: sub})
		}
	}
	return out, nil
}

func (s *Site) subcategoryLinks(ctx context.Context, seed string) ([]string, error) {
	if err := s.navigate(ctx, seed); err != nil {
		return nil, err
	}
	nodes, err := s.renderer.WaitForElements(ctx, frontierSelector, s.cfg.WaitTimeout)
	if err != nil {
		return nil, err
	}
	links := make([]string, 0, len(nodes))
	for _, n := range nodes {
		href, ok := n.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			continue
		}
		links = append(links, n.AbsoluteURL(href))
	}
	return links, nil
}

// PageCount loads the category's first page and reads its pagination
// indicator. Only a failed navigation is an error.
func (s *Site) PageCount(ctx context.Context, cat crawler.Category) (int, error) {
	if err := s.navigate(ctx, cat.URL); err != nil {
		return 0, fmt.Errorf("load %s: %w", cat.URL, err)
	}
	var text string
	nodes, err := s.renderer.WaitForElements(ctx, paginationSelector, s.cfg.WaitTimeout)
	if err == nil {
		text = nodes[0].Text()
	}
	res := s.rule.Resolve(text, err)
	switch {
	case res.Defaulted:
		s.logger.Debug("pagination indicator unavailable", zap.String("url", cat.URL), zap.Error(res.Cause))
	case res.Clamped:
		s.logger.Warn("page count clamped", zap.String("url", cat.URL), zap.Int("pages", res.Pages))
	}
	return res.Pages, nil
}

// Items returns the product nodes of one listing page. Page 1 reuses the
// page PageCount already loaded.
func (s *Site) Items(ctx context.Context, cat crawler.Category, page int) ([]crawler.Node, error) {
	target := PageURL(cat.URL, page)
	if !s.isLoaded(target) {
		if err := s.navigate(ctx, target); err != nil {
			return nil, fmt.Errorf("load %s: %w", target, err)
		}
	}
	nodes, err := s.renderer.WaitForElements(ctx, itemSelector, s.cfg.WaitTimeout)
	if err != nil {
		return nil, fmt.Errorf("list items on %s: %w", target, err)
	}
	return nodes, nil
}

// Extract reads one product tile. Ref and name are required; a missing or
// unreadable price is recorded as absent.
func (s *Site) Extract(_ context.Context, cat crawler.Category, item crawler.Node) (crawler.ProductRecord, error) {
	anchor, ok := item.First(anchorSelector)
	if !ok {
		return crawler.ProductRecord{}, fmt.Errorf("%w: product link", crawler.ErrMissingField)
	}
	href, _ := anchor.Attr("href")
	ref, err := extract.RefFromHref(href, s.cfg.RefSegment)
	if err != nil {
		return crawler.ProductRecord{}, fmt.Errorf("%w: ref: %w", crawler.ErrMissingField, err)
	}
	title, _ := anchor.Attr("title")
	name := s.normalizer.Normalize(title)
	if name == "" {
		return crawler.ProductRecord{}, fmt.Errorf("%w: name for ref %d", crawler.ErrMissingField, ref)
	}

	return crawler.ProductRecord{
		Ref:         crawler.Some(ref),
		Name:        name,
		Price:       s.price(item),
		Category:    cat.Name,
		Subcategory: cat.Subcategory,
		Site:        Name,
		URL:         anchor.AbsoluteURL(href),
	}, nil
}

func (s *Site) price(item crawler.Node) crawler.Optional[decimal.Decimal] {
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

func (s *Site) navigate(ctx context.Context, target string) error {
	s.mu.Lock()
	s.loaded = ""
	s.mu.Unlock()
	if err := s.renderer.Navigate(ctx, target); err != nil {
		return err
	}
	s.mu.Lock()
	s.loaded = target
	s.mu.Unlock()
	return nil
}

func (s *Site) isLoaded(target string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded == target
}

// PageURL returns the listing URL for page n of a category. Page 1 is the
// category URL itself.
func PageURL(categoryURL string, page int) string {
	if page <= 1 {
		return categoryURL
	}
	u, err := url.Parse(categoryURL)
	if err != nil {
		return categoryURL + "?page=" + strconv.Itoa(page)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}
