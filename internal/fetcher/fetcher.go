package fetcher

import (
	"context"
	"math/rand"
	"strings"
	"time"

	scrapeerrors "github.com/okarpenko/autoria-scraper/internal/errors"
	"github.com/okarpenko/autoria-scraper/internal/logger"
	"github.com/okarpenko/autoria-scraper/internal/metrics"
	"github.com/okarpenko/autoria-scraper/internal/types"
)

// Fetcher retrieves the rendered HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string, kind types.PageKind) (string, error)
}

// Options tunes the throttled fetcher.
type Options struct {
	MaxConcurrent int
	RequestDelay  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// Throttled wraps a Fetcher with the politeness and resilience policy:
// a global in-flight ceiling, a per-request delay with jitter, retry with
// linear backoff for transient failures, blocked-page detection, and raw-HTML
// debug dumps.
type Throttled struct {
	inner   Fetcher
	opts    Options
	limiter chan struct{}
	sink    DebugSink
	metrics *metrics.PipelineMetrics
	log     *logger.Logger

	// stubbed in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewThrottled builds the policy wrapper around inner. sink and m may be nil.
func NewThrottled(inner Fetcher, opts Options, sink DebugSink, m *metrics.PipelineMetrics, log *logger.Logger) *Throttled {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 1
	}
	if sink == nil {
		sink = NopSink{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Throttled{
		inner:   inner,
		opts:    opts,
		limiter: make(chan struct{}, opts.MaxConcurrent),
		sink:    sink,
		metrics: m,
		log:     log.ForComponent("fetcher"),
		sleep:   sleepCtx,
	}
}

// Fetch applies the policy and delegates to the wrapped fetcher.
func (t *Throttled) Fetch(ctx context.Context, url string, kind types.PageKind) (string, error) {
	select {
	case t.limiter <- struct{}{}:
		defer func() { <-t.limiter }()
	case <-ctx.Done():
		return "", scrapeerrors.NewFetch(url, "canceled waiting for fetch slot", ctx.Err())
	}

	if t.metrics != nil {
		t.metrics.FetchStarted(string(kind))
	}
	start := time.Now()
	defer func() {
		if t.metrics != nil {
			t.metrics.FetchFinished(string(kind), time.Since(start))
		}
	}()

	var lastErr error
	for attempt := 1; attempt <= t.opts.RetryAttempts; attempt++ {
		if err := t.sleep(ctx, withJitter(t.opts.RequestDelay)); err != nil {
			return "", scrapeerrors.NewFetch(url, "canceled during request delay", err)
		}

		html, err := t.inner.Fetch(ctx, url, kind)
		if err == nil && isBlockedContent(html) {
			err = scrapeerrors.NewBlocked(url, "anti-bot challenge page detected")
		}
		if err == nil {
			t.sink.Save(url, html)
			return html, nil
		}

		lastErr = err
		if ctx.Err() != nil || !isRetryable(err) {
			break
		}
		if attempt < t.opts.RetryAttempts {
			if t.metrics != nil {
				t.metrics.RecordFetchRetry()
			}
			backoff := t.opts.RetryDelay * time.Duration(attempt)
			t.log.Warn().
				Str("url", url).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Err(err).
				Msg("fetch failed, retrying")
			if err := t.sleep(ctx, backoff); err != nil {
				return "", scrapeerrors.NewFetch(url, "canceled during retry backoff", err)
			}
		}
	}

	if t.metrics != nil {
		t.metrics.RecordFetchFailure(string(kind), errorType(lastErr))
	}
	return "", lastErr
}

func isRetryable(err error) bool {
	se, ok := err.(*scrapeerrors.ScrapeError)
	if !ok {
		return true
	}
	return se.IsRetryable()
}

func errorType(err error) string {
	if se, ok := err.(*scrapeerrors.ScrapeError); ok {
		return string(se.Type)
	}
	return "unknown"
}

// withJitter stretches d by up to 50% so request timing does not form a
// detectable rhythm.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Challenge-page markers seen on the site when it decides a client is a bot.
var blockedMarkers = []string{
	"captcha",
	"recaptcha",
	"hcaptcha",
	"access denied",
	"доступ обмежено",
	"подтвердите, что вы не робот",
	"підтвердіть, що ви не робот",
}

func isBlockedContent(html string) bool {
	if len(html) > 4096 {
		html = html[:4096]
	}
	lower := strings.ToLower(html)
	for _, marker := range blockedMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
