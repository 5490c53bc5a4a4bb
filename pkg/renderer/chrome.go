package renderer

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/fangwatch/fangwatch/internal/logger"
)

// ChromeConfig holds settings for the chromedp renderer.
type ChromeConfig struct {
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
	Width          int
	Height         int
}

// DefaultChromeConfig returns the request profile used against
// fangdi.com.cn: a desktop Chrome UA and a zh-CN language preference.
func DefaultChromeConfig() ChromeConfig {
	return ChromeConfig{
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
			"AppleWebKit/537.36 (KHTML, like Gecko) " +
			"Chrome/122.0.0.0 Safari/537.36",
		AcceptLanguage: "zh-CN,zh;q=0.9",
		Timeout:        30 * time.Second,
		Width:          1280,
		Height:         900,
	}
}

// Chrome renders pages with a headless Chrome instance via chromedp.
// Each Render call runs in a fresh browser context on a shared allocator.
type Chrome struct {
	config    ChromeConfig
	allocCtx  context.Context
	cancelCtx context.CancelFunc
}

// NewChrome creates a renderer backed by a headless Chrome allocator.
func NewChrome(cfg ChromeConfig) (*Chrome, error) {
	def := DefaultChromeConfig()
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = def.AcceptLanguage
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(cfg.Width, cfg.Height),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if chromePath := findChromePath(); chromePath != "" {
		opts = append(opts, chromedp.ExecPath(chromePath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)

	logger.Debug("chrome renderer created",
		"timeout", cfg.Timeout,
		"viewport", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height))

	return &Chrome{
		config:    cfg,
		allocCtx:  allocCtx,
		cancelCtx: cancelAlloc,
	}, nil
}

// Render navigates to the URL, waits for it to settle, and captures a
// full-page screenshot plus the visible text.
func (r *Chrome) Render(ctx context.Context, targetURL string, opts Options) (Content, error) {
	result := Content{
		URL:        targetURL,
		RenderedAt: time.Now(),
	}

	browserCtx, cancelBrowser := chromedp.NewContext(r.allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			logger.Debug("chromedp", "msg", fmt.Sprintf(format, args...))
		}),
	)
	defer cancelBrowser()

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = r.config.Timeout
	}
	timeoutCtx, cancelTimeout := context.WithTimeout(browserCtx, timeout)
	defer cancelTimeout()

	var html string
	var title string
	var screenshot []byte

	headers := network.Headers{
		"Accept-Language": r.config.AcceptLanguage,
	}

	actions := []chromedp.Action{
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body"),
	}
	if opts.WaitDuration > 0 {
		actions = append(actions, chromedp.Sleep(opts.WaitDuration))
	}
	actions = append(actions,
		chromedp.FullScreenshot(&screenshot, 90),
		chromedp.OuterHTML("html", &html),
		chromedp.Title(&title),
	)

	logger.Debug("rendering page",
		"url", targetURL,
		"timeout", timeout,
		"wait", opts.WaitDuration)

	if err := chromedp.Run(timeoutCtx, actions...); err != nil {
		if ctx.Err() != nil || timeoutCtx.Err() != nil || strings.Contains(err.Error(), "deadline exceeded") {
			return result, fmt.Errorf("%w: %v", ErrRenderTimeout, err)
		}
		return result, fmt.Errorf("browser automation failed: %w", err)
	}

	result.Image = screenshot
	result.Title = title
	result.Text = extractVisibleText(html)

	logger.Debug("render complete",
		"url", targetURL,
		"title", title,
		"image_bytes", len(result.Image),
		"text_size", len(result.Text))

	return result, nil
}

// Close releases the browser allocator.
func (r *Chrome) Close() error {
	if r.cancelCtx != nil {
		r.cancelCtx()
	}
	return nil
}

// extractVisibleText strips non-content elements and normalizes whitespace.
func extractVisibleText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, noscript, iframe, svg").Remove()

	var parts []string
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		if text := cleanText(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n")
}

// cleanText collapses runs of whitespace into single spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}

// Common Chrome/Chromium binary names across different systems.
var chromeBinaryNames = []string{
	"google-chrome-stable",
	"google-chrome",
	"chromium",
	"chromium-browser",
	"chrome",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
	"/usr/bin/google-chrome-stable",
	"/usr/bin/google-chrome",
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
	"/snap/bin/chromium",
}

// findChromePath searches for a Chrome/Chromium binary: PATH lookup first,
// then common installation locations. Returns empty if none is found, in
// which case chromedp falls back to its own discovery.
func findChromePath() string {
	for _, name := range chromeBinaryNames {
		if path, err := exec.LookPath(name); err == nil {
			logger.Debug("found Chrome binary", "name", name, "path", path)
			return path
		}
	}
	logger.Warn("no Chrome binary found - page rendering may not work")
	return ""
}
