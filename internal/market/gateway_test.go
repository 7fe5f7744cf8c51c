package market

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/twquant/twse-agents/pkg/apperrors"
	"github.com/twquant/twse-agents/pkg/logger"
	"github.com/twquant/twse-agents/pkg/models"
)

func TestMain(m *testing.M) {
	logger.Init("error", "")
	os.Exit(m.Run())
}

type fakeUpstream struct {
	calls   int
	payload any
	err     error
}

func (f *fakeUpstream) Fetch(ctx context.Context, symbol string, kind models.RequestKind) (any, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.payload != nil {
		return f.payload, nil
	}
	return map[string]string{"symbol": symbol}, nil
}

func testOptions() Options {
	return Options{
		PerSymbolInterval: 30 * time.Second,
		MaxPerMinute:      20,
		MaxPerSecond:      2,
		CacheTTL:          30 * time.Second,
		CacheMaxEntries:   1000,
		CacheMaxBytes:     200 << 20,
	}
}

// clock is a controllable time source for window tests
type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGateway(up Upstream, opts Options) (*Gateway, *clock) {
	g := NewGateway(up, opts)
	c := &clock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	g.now = c.now
	return g, c
}

func TestGateway_CacheWithinTTL(t *testing.T) {
	up := &fakeUpstream{}
	g, c := newTestGateway(up, testOptions())
	ctx := context.Background()

	res, err := g.Fetch(ctx, "2330", models.KindQuote, false)
	if err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	if res.Freshness != models.FreshnessFresh {
		t.Errorf("expected fresh, got %s", res.Freshness)
	}

	c.advance(5 * time.Second)
	res, err = g.Fetch(ctx, "2330", models.KindQuote, false)
	if err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}
	if res.Freshness != models.FreshnessCachedFresh {
		t.Errorf("expected cached_fresh, got %s", res.Freshness)
	}
	if up.calls != 1 {
		t.Errorf("expected exactly one upstream call, got %d", up.calls)
	}
}

func TestGateway_StaleFallbackUnderSymbolWindow(t *testing.T) {
	opts := testOptions()
	opts.CacheTTL = time.Minute
	up := &fakeUpstream{}
	g, c := newTestGateway(up, opts)
	ctx := context.Background()

	if _, err := g.Fetch(ctx, "2330", models.KindQuote, false); err != nil {
		t.Fatalf("prime fetch failed: %v", err)
	}

	// Cache is 10s old; per-symbol window (30s) still blocks a refresh.
	c.advance(10 * time.Second)
	res, err := g.Fetch(ctx, "2330", models.KindQuote, true)
	if err != nil {
		t.Fatalf("throttled fetch failed: %v", err)
	}
	if res.Freshness != models.FreshnessCachedStale {
		t.Errorf("expected cached_stale_due_to_limit, got %s", res.Freshness)
	}
	if up.calls != 1 {
		t.Errorf("no upstream call expected while throttled, got %d", up.calls)
	}

	snap := g.Snapshot()
	if snap.RateLimited != 1 {
		t.Errorf("expected rate_limited counter 1, got %d", snap.RateLimited)
	}
}

func TestGateway_DeniedWithoutCache(t *testing.T) {
	up := &fakeUpstream{}
	g, c := newTestGateway(up, testOptions())
	ctx := context.Background()

	if _, err := g.Fetch(ctx, "2330", models.KindQuote, false); err != nil {
		t.Fatalf("prime fetch failed: %v", err)
	}

	// Drop the cache so the blocked request has nothing to fall back on.
	g.Invalidate("2330", models.KindQuote)

	c.advance(10 * time.Second)
	res, err := g.Fetch(ctx, "2330", models.KindQuote, false)
	if err != nil {
		t.Fatalf("denied fetch errored: %v", err)
	}
	if res.Freshness != models.FreshnessAbsent {
		t.Fatalf("expected absent, got %s", res.Freshness)
	}
	if res.DeniedBy != "per_symbol" {
		t.Errorf("expected per_symbol denial, got %q", res.DeniedBy)
	}
	if res.WaitHint != 20*time.Second {
		t.Errorf("expected 20s wait hint, got %s", res.WaitHint)
	}
}

func TestGateway_PerSecondWindow(t *testing.T) {
	up := &fakeUpstream{}
	g, c := newTestGateway(up, testOptions())
	ctx := context.Background()

	symbols := []string{"2330", "2317", "2454"}
	for i, sym := range symbols {
		res, err := g.Fetch(ctx, sym, models.KindQuote, false)
		if err != nil {
			t.Fatalf("fetch %s failed: %v", sym, err)
		}
		if i < 2 && res.Freshness != models.FreshnessFresh {
			t.Errorf("fetch %d: expected fresh, got %s", i, res.Freshness)
		}
		if i == 2 {
			if res.Freshness != models.FreshnessAbsent {
				t.Fatalf("third call in one second should be denied, got %s", res.Freshness)
			}
			if res.DeniedBy != "per_second" {
				t.Errorf("expected per_second denial, got %q", res.DeniedBy)
			}
		}
	}

	// A slot opens strictly after the oldest call ages out.
	c.advance(1001 * time.Millisecond)
	res, err := g.Fetch(ctx, "2454", models.KindQuote, false)
	if err != nil {
		t.Fatalf("fetch after window failed: %v", err)
	}
	if res.Freshness != models.FreshnessFresh {
		t.Errorf("expected fresh after window aged out, got %s", res.Freshness)
	}
}

func TestGateway_PerMinuteWindow(t *testing.T) {
	opts := testOptions()
	opts.MaxPerSecond = 100
	up := &fakeUpstream{}
	g, c := newTestGateway(up, opts)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		sym := string(rune('A' + i))
		if _, err := g.Fetch(ctx, sym, models.KindQuote, false); err != nil {
			t.Fatalf("fetch %d failed: %v", i, err)
		}
		c.advance(100 * time.Millisecond)
	}

	res, err := g.Fetch(ctx, "ZZ", models.KindQuote, false)
	if err != nil {
		t.Fatalf("21st fetch errored: %v", err)
	}
	if res.Freshness != models.FreshnessAbsent {
		t.Fatalf("21st call within a minute should be denied, got %s", res.Freshness)
	}
	if res.DeniedBy != "per_minute" {
		t.Errorf("expected per_minute denial, got %q", res.DeniedBy)
	}
}

func TestGateway_UpstreamFailureRollsBackAdmission(t *testing.T) {
	up := &fakeUpstream{err: errors.New("boom")}
	g, _ := newTestGateway(up, testOptions())
	ctx := context.Background()

	_, err := g.Fetch(ctx, "2330", models.KindQuote, false)
	if err == nil {
		t.Fatal("expected upstream error")
	}
	if apperrors.KindOf(err) != apperrors.KindUpstreamUnavailable {
		t.Errorf("expected upstream_unavailable, got %s", apperrors.KindOf(err))
	}

	// The failed call must not consume the symbol window.
	up.err = nil
	res, err := g.Fetch(ctx, "2330", models.KindQuote, false)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if res.Freshness != models.FreshnessFresh {
		t.Errorf("retry should hit upstream, got %s", res.Freshness)
	}
}

func TestGateway_TTLExpiryRecomputes(t *testing.T) {
	opts := testOptions()
	opts.PerSymbolInterval = time.Second
	up := &fakeUpstream{}
	g, c := newTestGateway(up, opts)
	ctx := context.Background()

	if _, err := g.Fetch(ctx, "2330", models.KindQuote, false); err != nil {
		t.Fatalf("prime failed: %v", err)
	}

	// Just before expiry: served from cache.
	c.advance(opts.CacheTTL - time.Millisecond)
	res, _ := g.Fetch(ctx, "2330", models.KindQuote, false)
	if res.Freshness != models.FreshnessCachedFresh {
		t.Errorf("just before TTL: expected cached_fresh, got %s", res.Freshness)
	}

	// One tick after: recomputed.
	c.advance(2 * time.Millisecond)
	res, _ = g.Fetch(ctx, "2330", models.KindQuote, false)
	if res.Freshness != models.FreshnessFresh {
		t.Errorf("after TTL: expected fresh, got %s", res.Freshness)
	}
	if up.calls != 2 {
		t.Errorf("expected 2 upstream calls, got %d", up.calls)
	}
}

func TestGateway_LRUEviction(t *testing.T) {
	opts := testOptions()
	opts.CacheMaxEntries = 2
	opts.PerSymbolInterval = 0
	opts.MaxPerSecond = 100
	up := &fakeUpstream{}
	g, c := newTestGateway(up, opts)
	ctx := context.Background()

	g.Fetch(ctx, "A", models.KindQuote, false)
	c.advance(time.Millisecond)
	g.Fetch(ctx, "B", models.KindQuote, false)
	c.advance(time.Millisecond)

	// Touch A so B becomes the LRU entry.
	g.Fetch(ctx, "A", models.KindQuote, false)
	c.advance(time.Millisecond)

	g.Fetch(ctx, "C", models.KindQuote, false)
	c.advance(time.Millisecond)

	res, _ := g.Fetch(ctx, "A", models.KindQuote, false)
	if res.Freshness != models.FreshnessCachedFresh {
		t.Errorf("A should have survived eviction, got %s", res.Freshness)
	}
	res, _ = g.Fetch(ctx, "B", models.KindQuote, false)
	if res.Freshness != models.FreshnessFresh {
		t.Errorf("B should have been evicted, got %s", res.Freshness)
	}
}

func TestGateway_EmptySymbol(t *testing.T) {
	g, _ := newTestGateway(&fakeUpstream{}, testOptions())

	_, err := g.Fetch(context.Background(), "", models.KindQuote, false)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if apperrors.KindOf(err) != apperrors.KindValidation {
		t.Errorf("expected validation, got %s", apperrors.KindOf(err))
	}
}
