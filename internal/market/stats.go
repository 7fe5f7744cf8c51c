package market

// stats tracks gateway counters. Observability only; no correctness role.
type stats struct {
	total       int64
	successful  int64
	failed      int64
	cached      int64
	rateLimited int64
	bySymbol    map[string]int64
}

func (s *stats) perSymbol(symbol string) int64 {
	if s.bySymbol == nil {
		s.bySymbol = make(map[string]int64)
	}
	return s.bySymbol[symbol]
}

// Stats is a point-in-time snapshot of gateway counters
type Stats struct {
	Total             int64            `json:"total"`
	Successful        int64            `json:"successful"`
	Failed            int64            `json:"failed"`
	Cached            int64            `json:"cached"`
	RateLimited       int64            `json:"rate_limited"`
	BySymbol          map[string]int64 `json:"by_symbol"`
	CacheEntries      int              `json:"cache_entries"`
	CacheBytes        int64            `json:"cache_bytes"`
	HitRate           float64          `json:"hit_rate"`
	MinuteUtilization float64          `json:"minute_utilization"`
	SecondUtilization float64          `json:"second_utilization"`
}

// Snapshot returns current counters and rolling window utilization
func (g *Gateway) Snapshot() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.purgeWindows(g.now())

	bySymbol := make(map[string]int64, len(g.stats.bySymbol))
	for sym, n := range g.stats.bySymbol {
		bySymbol[sym] = n
	}

	snap := Stats{
		Total:        g.stats.total,
		Successful:   g.stats.successful,
		Failed:       g.stats.failed,
		Cached:       g.stats.cached,
		RateLimited:  g.stats.rateLimited,
		BySymbol:     bySymbol,
		CacheEntries: len(g.cache),
		CacheBytes:   g.cacheBytes,
	}
	if g.stats.total > 0 {
		snap.HitRate = float64(g.stats.cached) / float64(g.stats.total)
	}
	if g.opts.MaxPerMinute > 0 {
		snap.MinuteUtilization = float64(len(g.minute)) / float64(g.opts.MaxPerMinute)
	}
	if g.opts.MaxPerSecond > 0 {
		snap.SecondUtilization = float64(len(g.second)) / float64(g.opts.MaxPerSecond)
	}
	return snap
}
