package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scrapeerrors "github.com/okarpenko/autoria-scraper/internal/errors"
	"github.com/okarpenko/autoria-scraper/internal/logger"
	"github.com/okarpenko/autoria-scraper/internal/types"
)

// fakeFetcher returns queued responses in order.
type fakeFetcher struct {
	mu        sync.Mutex
	responses []fakeResponse
	calls     int32
	inFlight  int32
	maxSeen   int32
}

type fakeResponse struct {
	html string
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, kind types.PageKind) (string, error) {
	cur := atomic.AddInt32(&f.inFlight, 1)
	for {
		max := atomic.LoadInt32(&f.maxSeen)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxSeen, max, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	defer atomic.AddInt32(&f.inFlight, -1)

	n := atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.responses) == 0 {
		return "<html><body>ok</body></html>", nil
	}
	idx := int(n) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	r := f.responses[idx]
	return r.html, r.err
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func newThrottled(inner Fetcher, opts Options) *Throttled {
	t := NewThrottled(inner, opts, nil, nil, logger.Nop())
	t.sleep = noSleep
	return t
}

func TestThrottledRetriesTransientFailure(t *testing.T) {
	inner := &fakeFetcher{responses: []fakeResponse{
		{err: scrapeerrors.NewFetch("u", "timeout", context.DeadlineExceeded)},
		{err: scrapeerrors.NewFetch("u", "timeout", context.DeadlineExceeded)},
		{html: "<html><body>finally</body></html>"},
	}}
	f := newThrottled(inner, Options{RetryAttempts: 3})

	html, err := f.Fetch(context.Background(), "https://auto.ria.com/uk/car/used/", types.PageIndex)
	require.NoError(t, err)
	assert.Contains(t, html, "finally")
	assert.Equal(t, int32(3), atomic.LoadInt32(&inner.calls))
}

func TestThrottledExhaustsRetries(t *testing.T) {
	inner := &fakeFetcher{responses: []fakeResponse{
		{err: scrapeerrors.NewFetch("u", "timeout", context.DeadlineExceeded)},
	}}
	f := newThrottled(inner, Options{RetryAttempts: 3})

	_, err := f.Fetch(context.Background(), "https://auto.ria.com/x", types.PageDetail)
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&inner.calls))
}

func TestThrottledDoesNotRetryNonTransient(t *testing.T) {
	inner := &fakeFetcher{responses: []fakeResponse{
		{err: scrapeerrors.NewValidation("u", "invalid url")},
	}}
	f := newThrottled(inner, Options{RetryAttempts: 3})

	_, err := f.Fetch(context.Background(), "not-a-url", types.PageDetail)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.calls))
}

func TestThrottledDetectsBlockedPage(t *testing.T) {
	inner := &fakeFetcher{responses: []fakeResponse{
		{html: "<html><head><title>Captcha</title></head><body>подтвердите, что вы не робот</body></html>"},
		{html: "<html><body><h1 class='head'>Real page</h1></body></html>"},
	}}
	f := newThrottled(inner, Options{RetryAttempts: 3})

	html, err := f.Fetch(context.Background(), "https://auto.ria.com/x", types.PageDetail)
	require.NoError(t, err)
	assert.Contains(t, html, "Real page")
	assert.Equal(t, int32(2), atomic.LoadInt32(&inner.calls))
}

func TestThrottledLimitsConcurrency(t *testing.T) {
	inner := &fakeFetcher{}
	f := newThrottled(inner, Options{MaxConcurrent: 2, RetryAttempts: 1})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Fetch(context.Background(), "https://auto.ria.com/x", types.PageDetail)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&inner.maxSeen), int32(2),
		"more than MaxConcurrent fetches ran at once")
}

func TestThrottledHonorsCancellation(t *testing.T) {
	inner := &fakeFetcher{}
	f := newThrottled(inner, Options{RetryAttempts: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Fetch(ctx, "https://auto.ria.com/x", types.PageDetail)
	require.Error(t, err)
}

func TestWithJitterBounds(t *testing.T) {
	base := 2 * time.Second
	for i := 0; i < 100; i++ {
		d := withJitter(base)
		assert.GreaterOrEqual(t, d, base)
		assert.LessOrEqual(t, d, base+base/2)
	}
	assert.Equal(t, time.Duration(0), withJitter(0))
}

func TestIsBlockedContent(t *testing.T) {
	assert.True(t, isBlockedContent("<title>Доступ обмежено</title>"))
	assert.True(t, isBlockedContent("please solve this reCAPTCHA challenge"))
	assert.False(t, isBlockedContent("<html><body><h1>BMW X5 2022</h1></body></html>"))
}

func TestProxyPoolRoundRobin(t *testing.T) {
	pool := NewProxyPool([]string{"http://a:8080", "http://b:8080", "http://c:8080"}, "", "", time.Minute)
	require.NotNil(t, pool)
	assert.Equal(t, 3, pool.Size())

	seen := []string{pool.Next().Addr, pool.Next().Addr, pool.Next().Addr, pool.Next().Addr}
	assert.Equal(t, []string{"http://a:8080", "http://b:8080", "http://c:8080", "http://a:8080"}, seen)
}

func TestProxyPoolSkipsRecentFailures(t *testing.T) {
	pool := NewProxyPool([]string{"http://a:8080", "http://b:8080"}, "", "", time.Minute)

	a := pool.Next()
	require.Equal(t, "http://a:8080", a.Addr)
	pool.MarkFailure(a)

	// a is cooling down; both upcoming picks land on b.
	assert.Equal(t, "http://b:8080", pool.Next().Addr)
	assert.Equal(t, "http://b:8080", pool.Next().Addr)

	// After recovery a rejoins the rotation.
	pool.MarkSuccess(a)
	addrs := map[string]bool{pool.Next().Addr: true, pool.Next().Addr: true}
	assert.True(t, addrs["http://a:8080"])
}

func TestProxyPoolAllCoolingDownStillServes(t *testing.T) {
	pool := NewProxyPool([]string{"http://a:8080", "http://b:8080"}, "", "", time.Minute)
	pool.MarkFailure(pool.Next())
	pool.MarkFailure(pool.Next())

	assert.NotNil(t, pool.Next(), "pool must not stall when every proxy failed recently")
}

func TestNewProxyPoolEmpty(t *testing.T) {
	assert.Nil(t, NewProxyPool(nil, "", "", time.Minute))
}

func TestProxyPoolCredentials(t *testing.T) {
	pool := NewProxyPool([]string{"http://a:8080"}, "scraper", "s3cret", time.Minute)
	user, pass, ok := pool.Credentials()
	require.True(t, ok)
	assert.Equal(t, "scraper", user)
	assert.Equal(t, "s3cret", pass)

	open := NewProxyPool([]string{"http://a:8080"}, "", "", time.Minute)
	_, _, ok = open.Credentials()
	assert.False(t, ok)
}

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	listing := filepath.Join(dir, "listing.html")
	detail := filepath.Join(dir, "detail.html")
	require.NoError(t, os.WriteFile(listing, []byte("<html>listing</html>"), 0o644))
	require.NoError(t, os.WriteFile(detail, []byte("<html>detail</html>"), 0o644))

	f := NewFile(listing, detail)

	html, err := f.Fetch(context.Background(), "https://auto.ria.com/uk/car/used/", types.PageIndex)
	require.NoError(t, err)
	assert.Contains(t, html, "listing")

	html, err = f.Fetch(context.Background(), "https://auto.ria.com/uk/auto_x_1.html", types.PageDetail)
	require.NoError(t, err)
	assert.Contains(t, html, "detail")
}

func TestFileFetcherMissingFile(t *testing.T) {
	f := NewFile("/nonexistent/listing.html", "/nonexistent/detail.html")
	_, err := f.Fetch(context.Background(), "u", types.PageIndex)
	require.Error(t, err)
}

func TestFileSinkWritesAndSwallowsErrors(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, logger.Nop())
	require.NoError(t, err)

	sink.Save("https://auto.ria.com/uk/auto_x_1.html", "<html>dump</html>")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "<html>dump</html>", string(data))
}
