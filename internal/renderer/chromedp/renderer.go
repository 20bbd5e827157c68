// Package chromedprenderer renders script-heavy pages with headless Chrome.
package chromedprenderer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"github.com/booktrail/release-crawler/internal/release"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultSettleDelay       = 3 * time.Second

	viewportWidth  = 1280
	viewportHeight = 720
)

// markerScript collects elements that carry explicit release markers after
// page scripts have settled.
const markerScript = `(() => {
	const selectors = [
		'[data-book]', '[data-release]', '[data-announcement]',
		'.book-item', '.release-item', '.announcement-item',
		'.js-book', '.js-release', '.js-content'
	];
	const elements = document.querySelectorAll(selectors.join(', '));
	return Array.from(elements).map(el => ({
		text: (el.textContent || '').trim(),
		html: el.innerHTML,
		class: el.className,
		tag: el.tagName
	}));
})()`

// Config controls renderer behavior.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
}

// Renderer implements release.Renderer using chromedp. The browser starts
// on the first Render call; Close shuts it down and a later Render starts
// a fresh one.
type Renderer struct {
	cfg Config

	mu          sync.Mutex
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New builds a Renderer.
func New(cfg Config) *Renderer {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	return &Renderer{cfg: cfg}
}

// Render navigates to the URL, waits for the body plus a settle delay, and
// returns the rendered DOM together with any marker nodes.
func (r *Renderer) Render(ctx context.Context, url string) (release.RenderedPage, error) {
	taskCtx, taskCancel := chromedp.NewContext(r.ensureAllocator())
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, r.cfg.NavigationTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			taskCancel()
		case <-done:
		}
	}()
	defer close(done)

	var (
		html    string
		title   string
		markers []release.MarkerNode
	)
	actions := []chromedp.Action{
		r.setupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(r.cfg.SettleDelay),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Evaluate(markerScript, &markers),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return release.RenderedPage{}, fmt.Errorf("render %s: %w", url, err)
	}

	return release.RenderedPage{
		HTML:    html,
		Title:   title,
		Markers: markers,
	}, nil
}

// Close shuts the browser down. Safe to call more than once.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.allocCancel != nil {
		r.allocCancel()
		r.allocator = nil
		r.allocCancel = nil
	}
	return nil
}

func (r *Renderer) ensureAllocator() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.allocator == nil {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", "new"),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("hide-scrollbars", true),
			chromedp.Flag("no-sandbox", true),
		)
		r.allocator, r.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}
	return r.allocator
}

func (r *Renderer) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := emulation.SetDeviceMetricsOverride(viewportWidth, viewportHeight, 1, false).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		if r.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}
