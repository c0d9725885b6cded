package fetcher

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdpfetch "github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	scrapeerrors "github.com/okarpenko/autoria-scraper/internal/errors"
	"github.com/okarpenko/autoria-scraper/internal/logger"
	"github.com/okarpenko/autoria-scraper/internal/types"
)

// Desktop user agents rotated per fetch.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// HeadlessOptions configures the headless Chrome fetcher.
type HeadlessOptions struct {
	PageLoadTimeout time.Duration
	NoSandbox       bool
}

// Headless fetches pages through a headless Chrome instance. Each fetch runs
// in a fresh browser with its own temporary profile so concurrent fetches do
// not fight over the singleton profile lock.
type Headless struct {
	opts    HeadlessOptions
	proxies *ProxyPool
	log     *logger.Logger
}

// NewHeadless creates the headless fetcher. proxies may be nil for direct
// connections.
func NewHeadless(opts HeadlessOptions, proxies *ProxyPool, log *logger.Logger) *Headless {
	if opts.PageLoadTimeout <= 0 {
		opts.PageLoadTimeout = 60 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Headless{
		opts:    opts,
		proxies: proxies,
		log:     log.ForComponent("headless"),
	}
}

// Fetch navigates to url and returns the fully rendered markup.
func (h *Headless) Fetch(ctx context.Context, url string, kind types.PageKind) (string, error) {
	if ctx.Err() != nil {
		return "", scrapeerrors.NewFetch(url, "context canceled before fetch", ctx.Err())
	}

	taskCtx, taskCancel := context.WithTimeout(ctx, h.opts.PageLoadTimeout)
	defer taskCancel()

	// Unique profile per fetch prevents SingletonLock errors under concurrency.
	profileDir, err := os.MkdirTemp("", "chrome-profile-*")
	if err != nil {
		return "", scrapeerrors.NewFetch(url, "failed to create temp profile directory", err)
	}
	defer os.RemoveAll(profileDir)

	ua := userAgents[rand.Intn(len(userAgents))]

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("user-data-dir", profileDir),
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("window-size", "1920,1080"),
		chromedp.Flag("lang", "uk-UA"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.UserAgent(ua),
	)
	if h.opts.NoSandbox {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-setuid-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}

	var proxy *Proxy
	if h.proxies != nil {
		if proxy = h.proxies.Next(); proxy != nil {
			opts = append(opts, chromedp.ProxyServer(proxy.Addr))
			h.log.Debug().Str("proxy", proxy.Addr).Str("url", url).Msg("fetching via proxy")
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(taskCtx, opts...)
	defer allocCancel()

	chromeCtx, chromeCancel := chromedp.NewContext(allocCtx)
	defer chromeCancel()

	if proxy != nil {
		if user, pass, ok := h.proxies.Credentials(); ok {
			if err := enableProxyAuth(chromeCtx, user, pass); err != nil {
				h.proxies.MarkFailure(proxy)
				return "", scrapeerrors.NewFetch(url, "failed to enable proxy authentication", err)
			}
		}
	}

	html, err := h.renderPage(chromeCtx, url, kind)
	if proxy != nil {
		if err != nil {
			h.proxies.MarkFailure(proxy)
		} else {
			h.proxies.MarkSuccess(proxy)
		}
	}
	if err != nil {
		return "", err
	}
	return html, nil
}

func (h *Headless) renderPage(ctx context.Context, url string, kind types.PageKind) (string, error) {
	headers := network.Headers{
		"Accept-Language": "uk-UA,uk;q=0.9,ru;q=0.8,en;q=0.7",
	}

	// Raw CDP navigation respects only our own timeout; chromedp.Navigate
	// carries an internal page-load timeout separate from the context.
	err := chromedp.Run(ctx,
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, errorText, _, err := page.Navigate(url).Do(ctx)
			if err != nil {
				return err
			}
			if errorText != "" {
				return fmt.Errorf("navigation error: %s", errorText)
			}
			return nil
		}),
	)
	if err != nil {
		return "", scrapeerrors.NewFetch(url, "headless navigation failed", err)
	}

	if err := chromedp.Run(ctx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return "", scrapeerrors.NewFetch(url, "headless wait for body failed", err)
	}

	if err := chromedp.Run(ctx, chromedp.Sleep(settleDelay())); err != nil {
		return "", scrapeerrors.NewFetch(url, "headless settle wait failed", err)
	}

	// Listing pages lazy-load cards below the fold; scroll them in. One pass
	// is enough for detail pages.
	scrolls := 1
	if kind == types.PageIndex {
		scrolls = 4
	}
	err = chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for i := 0; i < scrolls; i++ {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			_ = chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight);`, nil).Do(ctx)
			time.Sleep(scrollDelay())
		}
		return nil
	}))
	if err != nil {
		return "", scrapeerrors.NewFetch(url, "headless scroll loop failed", err)
	}

	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", scrapeerrors.NewFetch(url, "headless HTML extraction failed", err)
	}

	h.log.Debug().Str("url", url).Int("bytes", len(html)).Msg("page rendered")
	return html, nil
}

// enableProxyAuth intercepts requests through the Fetch domain and answers
// the proxy's 407 challenge with the pool's credentials. chromedp.ProxyServer
// alone carries no credentials, so authenticated proxies fail every
// navigation without this.
func enableProxyAuth(ctx context.Context, username, password string) error {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *cdpfetch.EventAuthRequired:
			go func() {
				c := chromedp.FromContext(ctx)
				execCtx := cdp.WithExecutor(ctx, c.Target)
				resp := &cdpfetch.AuthChallengeResponse{
					Response: cdpfetch.AuthChallengeResponseResponseProvideCredentials,
					Username: username,
					Password: password,
				}
				_ = cdpfetch.ContinueWithAuth(ev.RequestID, resp).Do(execCtx)
			}()
		case *cdpfetch.EventRequestPaused:
			go func() {
				c := chromedp.FromContext(ctx)
				execCtx := cdp.WithExecutor(ctx, c.Target)
				_ = cdpfetch.ContinueRequest(ev.RequestID).Do(execCtx)
			}()
		}
	})
	return chromedp.Run(ctx, cdpfetch.Enable().WithHandleAuthRequests(true))
}

// settleDelay gives client-side rendering a human-looking pause to finish.
func settleDelay() time.Duration {
	return 500*time.Millisecond + time.Duration(rand.Int63n(int64(1500*time.Millisecond)))
}

func scrollDelay() time.Duration {
	return 200*time.Millisecond + time.Duration(rand.Int63n(int64(300*time.Millisecond)))
}
