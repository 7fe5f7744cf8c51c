package toolkit

import (
	"context"
	"time"

	"github.com/twquant/twse-agents/pkg/apperrors"
	"github.com/twquant/twse-agents/pkg/models"
)

// MarketResponse wraps gateway payloads so the reasoner can see how fresh
// the data is
type MarketResponse struct {
	Data      any              `json:"data"`
	Freshness models.Freshness `json:"freshness"`
}

// fetchMarket goes through the gateway and normalizes denial into a
// rate_limited error carrying the wait hint
func (t *Toolkit) fetchMarket(ctx context.Context, symbol string, kind models.RequestKind, forceRefresh bool) (*MarketResponse, error) {
	result, err := t.gateway.Fetch(ctx, symbol, kind, forceRefresh)
	if err != nil {
		return nil, err
	}
	if result.Freshness == models.FreshnessAbsent {
		return nil, apperrors.RateLimited("gateway_denied", "market data request throttled, retry later", result.WaitHint).
			WithDetail("denied_by", result.DeniedBy)
	}
	return &MarketResponse{Data: result.Payload, Freshness: result.Freshness}, nil
}

// GetStockPrice returns the current quote for one symbol
func (t *Toolkit) GetStockPrice(ctx context.Context, symbol string) (*MarketResponse, error) {
	return t.fetchMarket(ctx, symbol, models.KindQuote, false)
}

// GetCompanyProfile returns basic issuer information
func (t *Toolkit) GetCompanyProfile(ctx context.Context, symbol string) (*MarketResponse, error) {
	return t.fetchMarket(ctx, symbol, models.KindCompanyProfile, false)
}

// GetIncomeStatement returns the reported income statement. Year and
// season of zero mean the latest report.
func (t *Toolkit) GetIncomeStatement(ctx context.Context, symbol string, year, season int) (*MarketResponse, error) {
	return t.fetchStatement(ctx, symbol, models.KindIncome, year, season)
}

// GetBalanceSheet returns the reported balance sheet. Year and season of
// zero mean the latest report.
func (t *Toolkit) GetBalanceSheet(ctx context.Context, symbol string, year, season int) (*MarketResponse, error) {
	return t.fetchStatement(ctx, symbol, models.KindBalanceSheet, year, season)
}

// fetchStatement fetches a financial statement and checks any requested
// reporting period against it. The upstream feed only carries the most
// recent report, so an older period maps to not_found.
func (t *Toolkit) fetchStatement(ctx context.Context, symbol string, kind models.RequestKind, year, season int) (*MarketResponse, error) {
	if season < 0 || season > 4 {
		return nil, apperrors.Validationf("bad_season", "season must be 1-4, got %d", season).WithField("season")
	}

	resp, err := t.fetchMarket(ctx, symbol, kind, false)
	if err != nil {
		return nil, err
	}
	if year == 0 && season == 0 {
		return resp, nil
	}
	stmt, ok := resp.Data.(*models.FinancialStatement)
	if !ok {
		return resp, nil
	}
	if (year != 0 && stmt.Year != year) || (season != 0 && stmt.Season != season) {
		return nil, apperrors.NotFoundf("report_unavailable",
			"no report for %s year %d season %d; latest is year %d season %d",
			symbol, year, season, stmt.Year, stmt.Season)
	}
	return resp, nil
}

// GetDailyTrading returns a daily OHLCV bar and remembers it for the
// indicator tools. An empty date means the latest session; the feed only
// carries that session, so an earlier date maps to not_found.
func (t *Toolkit) GetDailyTrading(ctx context.Context, symbol, date string) (*MarketResponse, error) {
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return nil, apperrors.Validationf("bad_date", "date must be YYYY-MM-DD, got %q", date).WithField("date")
		}
	}

	resp, err := t.fetchMarket(ctx, symbol, models.KindDailyTrading, false)
	if err != nil {
		return nil, err
	}
	if bar, ok := resp.Data.(*models.DailyTrading); ok {
		t.rememberBar(bar)
		if date != "" && bar.Date != date {
			return nil, apperrors.NotFoundf("bar_unavailable",
				"no bar for %s on %s; latest session is %s", symbol, date, bar.Date)
		}
	}
	return resp, nil
}

// CheckTradingDay classifies a date against weekends and the TWSE holiday
// table. An empty date means today in Asia/Taipei.
func (t *Toolkit) CheckTradingDay(ctx context.Context, date string) (*models.TradingDayInfo, error) {
	return t.calendar.Check(date)
}
