package marketplace

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserFetcher renders pages in headless Chrome for marketplaces whose
// search results are built client-side.
type BrowserFetcher struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	renderWait  time.Duration
	timeout     time.Duration
	closeOnce   sync.Once
}

// BrowserOptions configures a BrowserFetcher.
type BrowserOptions struct {
	ChromeBin  string
	UserAgent  string
	RenderWait time.Duration
	Timeout    time.Duration
}

// NewBrowserFetcher starts a Chrome allocator. Tabs are opened per Fetch.
func NewBrowserFetcher(opts BrowserOptions) *BrowserFetcher {
	if opts.RenderWait <= 0 {
		opts.RenderWait = 2 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgents[0]
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent(opts.UserAgent),
	)
	if bin := findChromeBinary(opts.ChromeBin); bin != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(bin))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	return &BrowserFetcher{
		allocCtx:    allocCtx,
		cancelAlloc: cancel,
		renderWait:  opts.RenderWait,
		timeout:     opts.Timeout,
	}
}

func (b *BrowserFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	tabCtx, cancelTab := chromedp.NewContext(b.allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelTab()

	// The tab descends from the allocator, so tie it to the caller's ctx too.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(b.renderWait),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("render %s: %w", url, err)
	}
	return []byte(html), nil
}

// Close shuts the browser down.
func (b *BrowserFetcher) Close() {
	b.closeOnce.Do(b.cancelAlloc)
}

func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
