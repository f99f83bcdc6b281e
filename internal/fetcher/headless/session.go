// Package headless drives a Chrome tab for catalogs that render listings with
// JavaScript.
package headless

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/grocery-catalog-crawler/internal/crawler"
)

// Config controls the browser session.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// ExecPath overrides Chrome discovery.
	ExecPath string
	// Headful shows the browser window, for debugging selectors.
	Headful bool
}

// Session is one browser tab shared by the crawl. Calls are serialized: a
// Navigate followed by WaitForElements always observes the same page.
type Session struct {
	cfg    Config
	logger *zap.Logger

	mu              sync.Mutex
	allocatorCancel context.CancelFunc
	browserCancel   context.CancelFunc
	tabCtx          context.Context
}

// NewSession launches Chrome and opens the tab. A launch failure is fatal for
// the crawl, so it is returned rather than deferred to the first navigation.
func NewSession(cfg Config, logger *zap.Logger) (*Session, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !cfg.Headful),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	warmup := chromedp.Tasks{network.Enable()}
	if cfg.UserAgent != "" {
		warmup = append(warmup, emulation.SetUserAgentOverride(cfg.UserAgent))
	}
	if err := chromedp.Run(browserCtx, warmup); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	logger.Debug("browser session started", zap.Bool("headful", cfg.Headful))

	return &Session{
		cfg:             cfg,
		logger:          logger,
		allocatorCancel: allocatorCancel,
		browserCancel:   browserCancel,
		tabCtx:          browserCtx,
	}, nil
}

// Close shuts the tab and the browser process.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.browserCancel()
	s.allocatorCancel()
	s.logger.Debug("browser session closed")
}

// Navigate loads url in the tab and waits for the document body.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	taskCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.NavigationTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	err := chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return classifyWaitErr(ctx, taskCtx, fmt.Errorf("navigate %s: %w", url, err))
	}
	return nil
}

// WaitForElements waits up to timeout for selector to appear in the current
// page, then returns a snapshot of every match. The snapshot is detached from
// the live DOM, so nodes can be read concurrently after the call returns.
func (s *Session) WaitForElements(ctx context.Context, selector string, timeout time.Duration) ([]crawler.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	taskCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	var html, location string
	err := chromedp.Run(taskCtx,
		chromedp.WaitReady(selector, chromedp.ByQuery),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, classifyWaitErr(ctx, taskCtx, fmt.Errorf("wait for %q: %w", selector, err))
	}
	return snapshotNodes(html, location, selector)
}

func snapshotNodes(html, location, selector string) ([]crawler.Node, error) {
	doc, err := crawler.ParseDocument(strings.NewReader(html), location)
	if err != nil {
		return nil, err
	}
	nodes := doc.Find(selector)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", crawler.ErrNotFound, selector)
	}
	return nodes, nil
}

// classifyWaitErr maps an elapsed bounded wait to crawler.ErrTimeout. Caller
// cancellation is reported as-is.
func classifyWaitErr(parent, task context.Context, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("%w: %w", parent.Err(), err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(task.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", crawler.ErrTimeout, err)
	}
	return err
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
