package market

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/twquant/twse-agents/pkg/apperrors"
	"github.com/twquant/twse-agents/pkg/logger"
	"github.com/twquant/twse-agents/pkg/models"
)

// Upstream is the injected market-data provider behind the gateway.
// The gateway assumes nothing about it except that it is rate-limited.
type Upstream interface {
	Fetch(ctx context.Context, symbol string, kind models.RequestKind) (any, error)
}

// Options configures the admission windows and the cache
type Options struct {
	PerSymbolInterval time.Duration // at most one upstream call per symbol per interval
	MaxPerMinute      int           // trailing 60s global budget
	MaxPerSecond      int           // trailing 1s global budget
	CacheTTL          time.Duration
	CacheMaxEntries   int
	CacheMaxBytes     int64
	RequestTimeout    time.Duration
}

// DefaultOptions returns the documented upstream limits
func DefaultOptions() Options {
	return Options{
		PerSymbolInterval: 30 * time.Second,
		MaxPerMinute:      20,
		MaxPerSecond:      2,
		CacheTTL:          30 * time.Second,
		CacheMaxEntries:   1000,
		CacheMaxBytes:     200 << 20,
		RequestTimeout:    10 * time.Second,
	}
}

// Result is what a gateway fetch returns. Payload is nil only when
// Freshness is absent.
type Result struct {
	Payload   any
	Freshness models.Freshness
	DeniedBy  string        // blocking window name when Freshness is absent
	WaitHint  time.Duration // time until a retry can be admitted
}

type cacheKey struct {
	symbol string
	kind   models.RequestKind
}

type cacheEntry struct {
	payload      any
	size         int64
	cachedAt     time.Time
	lastAccessed time.Time
}

// Gateway mediates every upstream market-data call: three sliding admission
// windows, a TTL cache with LRU eviction, and stale-cache fallback when
// throttled. Safe for concurrent use.
type Gateway struct {
	mu         sync.Mutex
	upstream   Upstream
	opts       Options
	lastBySym  map[string]time.Time
	minute     []time.Time
	second     []time.Time
	cache      map[cacheKey]*cacheEntry
	cacheBytes int64
	stats      stats
	now        func() time.Time
}

// NewGateway creates a gateway over the given upstream
func NewGateway(upstream Upstream, opts Options) *Gateway {
	return &Gateway{
		upstream:  upstream,
		opts:      opts,
		lastBySym: make(map[string]time.Time),
		cache:     make(map[cacheKey]*cacheEntry),
		now:       time.Now,
	}
}

// Fetch mediates one market-data request. forceRefresh bypasses the fresh
// cache but never the admission windows.
func (g *Gateway) Fetch(ctx context.Context, symbol string, kind models.RequestKind, forceRefresh bool) (*Result, error) {
	if symbol == "" {
		return nil, apperrors.Validationf("empty_symbol", "symbol is required").WithField("symbol")
	}

	g.mu.Lock()
	now := g.now()
	g.purgeWindows(now)
	g.stats.total++
	g.stats.bySymbol[symbol] = g.stats.perSymbol(symbol) + 1

	key := cacheKey{symbol: symbol, kind: kind}

	admitted, deniedBy, wait := g.admit(symbol, now)
	if !admitted {
		if entry := g.lookup(key, now); entry != nil {
			g.stats.rateLimited++
			g.stats.cached++
			payload := entry.payload
			g.mu.Unlock()
			logger.Debug("gateway throttled, serving stale cache",
				zap.String("symbol", symbol),
				zap.String("kind", string(kind)),
				zap.String("window", deniedBy),
			)
			return &Result{Payload: payload, Freshness: models.FreshnessCachedStale}, nil
		}
		g.stats.rateLimited++
		g.mu.Unlock()
		return &Result{Freshness: models.FreshnessAbsent, DeniedBy: deniedBy, WaitHint: wait}, nil
	}

	if !forceRefresh {
		if entry := g.lookup(key, now); entry != nil {
			g.stats.cached++
			payload := entry.payload
			g.mu.Unlock()
			return &Result{Payload: payload, Freshness: models.FreshnessCachedFresh}, nil
		}
	}

	// Reserve admission slots before releasing the lock so concurrent
	// callers cannot overshoot the windows. Rolled back on upstream failure.
	prevSym, hadSym := g.lastBySym[symbol]
	g.lastBySym[symbol] = now
	g.minute = append(g.minute, now)
	g.second = append(g.second, now)
	g.mu.Unlock()

	fetchCtx := ctx
	if g.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, g.opts.RequestTimeout)
		defer cancel()
	}

	payload, err := g.upstream.Fetch(fetchCtx, symbol, kind)

	g.mu.Lock()
	defer g.mu.Unlock()

	if err != nil {
		// Transient upstream errors are neither cached nor counted
		// against admission.
		g.rollback(symbol, now, prevSym, hadSym)
		g.stats.failed++
		if apperrors.KindOf(err) == apperrors.KindCancelled {
			return nil, err
		}
		return nil, apperrors.Upstreamf("upstream_failed", "upstream fetch for %s failed", symbol).WithCause(err)
	}

	g.stats.successful++
	g.insert(key, payload, g.now())

	return &Result{Payload: payload, Freshness: models.FreshnessFresh}, nil
}

// Invalidate drops a single cache entry
func (g *Gateway) Invalidate(symbol string, kind models.RequestKind) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := cacheKey{symbol: symbol, kind: kind}
	if entry, ok := g.cache[key]; ok {
		g.cacheBytes -= entry.size
		delete(g.cache, key)
	}
}

// Clear drops the whole cache
func (g *Gateway) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cache = make(map[cacheKey]*cacheEntry)
	g.cacheBytes = 0
}

// admit checks the three sliding windows. Must hold g.mu.
// Returns the most restrictive blocking window and the soonest retry time.
func (g *Gateway) admit(symbol string, now time.Time) (bool, string, time.Duration) {
	type blocked struct {
		name string
		wait time.Duration
	}
	var blocks []blocked

	if last, ok := g.lastBySym[symbol]; ok {
		if until := g.opts.PerSymbolInterval - now.Sub(last); until > 0 {
			blocks = append(blocks, blocked{name: "per_symbol", wait: until})
		}
	}
	if len(g.minute) >= g.opts.MaxPerMinute {
		until := time.Minute - now.Sub(g.minute[0])
		if until <= 0 {
			until = time.Millisecond
		}
		blocks = append(blocks, blocked{name: "per_minute", wait: until})
	}
	if len(g.second) >= g.opts.MaxPerSecond {
		until := time.Second - now.Sub(g.second[0])
		if until <= 0 {
			until = time.Millisecond
		}
		blocks = append(blocks, blocked{name: "per_second", wait: until})
	}

	if len(blocks) == 0 {
		return true, "", 0
	}

	worst := blocks[0]
	hint := blocks[0].wait
	for _, b := range blocks[1:] {
		if b.wait > worst.wait {
			worst = b
		}
		if b.wait < hint {
			hint = b.wait
		}
	}
	return false, worst.name, hint
}

// purgeWindows drops timestamps outside the trailing windows. Must hold g.mu.
func (g *Gateway) purgeWindows(now time.Time) {
	cutMinute := now.Add(-time.Minute)
	for len(g.minute) > 0 && !g.minute[0].After(cutMinute) {
		g.minute = g.minute[1:]
	}
	cutSecond := now.Add(-time.Second)
	for len(g.second) > 0 && !g.second[0].After(cutSecond) {
		g.second = g.second[1:]
	}
}

// rollback undoes an admission reservation after upstream failure.
// Must hold g.mu.
func (g *Gateway) rollback(symbol string, reserved time.Time, prevSym time.Time, hadSym bool) {
	if hadSym {
		g.lastBySym[symbol] = prevSym
	} else if last, ok := g.lastBySym[symbol]; ok && last.Equal(reserved) {
		delete(g.lastBySym, symbol)
	}
	for i := len(g.minute) - 1; i >= 0; i-- {
		if g.minute[i].Equal(reserved) {
			g.minute = append(g.minute[:i], g.minute[i+1:]...)
			break
		}
	}
	for i := len(g.second) - 1; i >= 0; i-- {
		if g.second[i].Equal(reserved) {
			g.second = append(g.second[:i], g.second[i+1:]...)
			break
		}
	}
}

// lookup returns a non-expired entry and bumps its recency. Must hold g.mu.
func (g *Gateway) lookup(key cacheKey, now time.Time) *cacheEntry {
	entry, ok := g.cache[key]
	if !ok {
		return nil
	}
	if now.Sub(entry.cachedAt) >= g.opts.CacheTTL {
		g.cacheBytes -= entry.size
		delete(g.cache, key)
		return nil
	}
	entry.lastAccessed = now
	return entry
}

// insert write-throughs an upstream payload. Must hold g.mu.
func (g *Gateway) insert(key cacheKey, payload any, now time.Time) {
	g.sweepExpired(now)

	size := estimateSize(payload)

	// Over the memory ceiling new entries are dropped: hit rate degrades,
	// correctness does not.
	if g.opts.CacheMaxBytes > 0 && g.cacheBytes+size > g.opts.CacheMaxBytes {
		logger.Warn("gateway cache memory ceiling reached, dropping entry",
			zap.String("symbol", key.symbol),
			zap.Int64("cache_bytes", g.cacheBytes),
		)
		return
	}

	if old, ok := g.cache[key]; ok {
		g.cacheBytes -= old.size
	} else if g.opts.CacheMaxEntries > 0 && len(g.cache) >= g.opts.CacheMaxEntries {
		g.evictLRU()
	}

	g.cache[key] = &cacheEntry{
		payload:      payload,
		size:         size,
		cachedAt:     now,
		lastAccessed: now,
	}
	g.cacheBytes += size
}

// sweepExpired removes expired entries. Must hold g.mu.
func (g *Gateway) sweepExpired(now time.Time) {
	for key, entry := range g.cache {
		if now.Sub(entry.cachedAt) >= g.opts.CacheTTL {
			g.cacheBytes -= entry.size
			delete(g.cache, key)
		}
	}
}

// evictLRU removes the least recently accessed entry. Must hold g.mu.
func (g *Gateway) evictLRU() {
	var oldestKey cacheKey
	var oldest time.Time
	first := true
	for key, entry := range g.cache {
		if first || entry.lastAccessed.Before(oldest) {
			oldestKey = key
			oldest = entry.lastAccessed
			first = false
		}
	}
	if !first {
		g.cacheBytes -= g.cache[oldestKey].size
		delete(g.cache, oldestKey)
	}
}

// estimateSize approximates the in-memory footprint of a payload
func estimateSize(payload any) int64 {
	data, err := json.Marshal(payload)
	if err != nil {
		return 512
	}
	return int64(len(data))
}
