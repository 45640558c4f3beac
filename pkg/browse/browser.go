// Package browse provides a headless browser session for pages that need
// JavaScript rendering before their content can be extracted.
package browse

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/lancerhq/lancer/pkg/domain"
	"github.com/lancerhq/lancer/pkg/observability"
)

const (
	defaultNavTimeout = 30 * time.Second
	maxLinks          = 50
)

// RodBrowser drives a headless Chromium instance. One RodBrowser owns one
// page; it is not safe for concurrent use.
type RodBrowser struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	maxChars int
	logger   *observability.StructuredLogger
}

// New launches a headless browser. remoteURL, when non-empty, connects to
// an already running instance instead of launching one.
func New(remoteURL string, maxChars int) (*RodBrowser, error) {
	b := &RodBrowser{
		maxChars: maxChars,
		logger:   observability.NewStructuredLogger("browse"),
	}

	var controlURL string
	if remoteURL != "" {
		controlURL = remoteURL
	} else {
		b.launcher = launcher.New().Headless(true).NoSandbox(true)
		u, err := b.launcher.Launch()
		if err != nil {
			return nil, fmt.Errorf("browse: failed to launch browser: %w", err)
		}
		controlURL = u
	}

	b.browser = rod.New().ControlURL(controlURL)
	if err := b.browser.Connect(); err != nil {
		b.cleanup()
		return nil, fmt.Errorf("browse: failed to connect: %w", err)
	}

	// The stealth page evades the most common headless detection checks.
	page, err := stealth.Page(b.browser)
	if err != nil {
		b.cleanup()
		return nil, fmt.Errorf("browse: failed to create page: %w", err)
	}
	b.page = page

	return b, nil
}

// Navigate implements domain.Browser.
func (b *RodBrowser) Navigate(ctx context.Context, url string) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultNavTimeout)
		defer cancel()
	}

	page := b.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("browse: navigation to %s failed: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("browse: page load for %s failed: %w", url, err)
	}
	return nil
}

// Page implements domain.Browser. Content is the rendered body text,
// truncated to the configured cap.
func (b *RodBrowser) Page(ctx context.Context) (*domain.Page, error) {
	page := b.page.Context(ctx)

	info, err := page.Info()
	if err != nil {
		return nil, fmt.Errorf("browse: failed to read page info: %w", err)
	}

	textObj, err := page.Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return nil, fmt.Errorf("browse: failed to extract text: %w", err)
	}
	content := textObj.Value.Str()
	if b.maxChars > 0 && len(content) > b.maxChars {
		content = content[:b.maxChars]
	}

	links, err := b.extractLinks(page)
	if err != nil {
		// Links are best-effort; a failed extraction doesn't fail the page.
		b.logger.Debug(ctx, "link extraction failed", map[string]interface{}{
			"url":   info.URL,
			"error": err.Error(),
		})
	}

	return &domain.Page{
		URL:     info.URL,
		Title:   info.Title,
		Content: content,
		Links:   links,
	}, nil
}

func (b *RodBrowser) extractLinks(page *rod.Page) ([]string, error) {
	obj, err := page.Eval(`() =>
		Array.from(document.querySelectorAll("a[href]"))
			.map(a => a.href)
			.filter(h => h.startsWith("http"))`)
	if err != nil {
		return nil, err
	}

	var links []string
	for _, v := range obj.Value.Arr() {
		links = append(links, v.Str())
		if len(links) >= maxLinks {
			break
		}
	}
	return links, nil
}

// Screenshot implements domain.Browser.
func (b *RodBrowser) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := b.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browse: screenshot failed: %w", err)
	}
	return data, nil
}

// Close implements domain.Browser.
func (b *RodBrowser) Close() error {
	var firstErr error
	if b.page != nil {
		if err := b.page.Close(); err != nil {
			firstErr = err
		}
	}
	b.cleanup()
	return firstErr
}

func (b *RodBrowser) cleanup() {
	if b.browser != nil {
		_ = b.browser.Close()
	}
	if b.launcher != nil {
		b.launcher.Cleanup()
	}
}
