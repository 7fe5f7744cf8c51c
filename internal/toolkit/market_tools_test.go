package toolkit

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/twquant/twse-agents/internal/adapters/config"
	"github.com/twquant/twse-agents/internal/market"
	"github.com/twquant/twse-agents/pkg/apperrors"
	"github.com/twquant/twse-agents/pkg/models"
)

// fakeUpstream serves one canned payload per request kind
type fakeUpstream struct {
	payloads map[models.RequestKind]any
}

func (u *fakeUpstream) Fetch(ctx context.Context, symbol string, kind models.RequestKind) (any, error) {
	return u.payloads[kind], nil
}

func marketToolkit() *Toolkit {
	upstream := &fakeUpstream{payloads: map[models.RequestKind]any{
		models.KindIncome: &models.FinancialStatement{
			Symbol: "2330",
			Year:   113,
			Season: 2,
			Kind:   models.KindIncome,
			Items:  map[string]decimal.Decimal{"Revenue": decimal.NewFromInt(673_510_000)},
		},
		models.KindBalanceSheet: &models.FinancialStatement{
			Symbol: "2330",
			Year:   113,
			Season: 2,
			Kind:   models.KindBalanceSheet,
		},
		models.KindDailyTrading: &models.DailyTrading{
			Symbol: "2330",
			Date:   "2026-08-21",
			Close:  decimal.NewFromInt(1050),
		},
	}}
	gateway := market.NewGateway(upstream, market.Options{
		MaxPerMinute:    1000,
		MaxPerSecond:    1000,
		CacheTTL:        time.Minute,
		CacheMaxEntries: 100,
	})
	return NewToolkit(gateway, nil, nil, nil, nil, nil, nil, nil, config.TradingConfig{})
}

func TestToolkit_StatementPeriodSelection(t *testing.T) {
	kit := marketToolkit()

	t.Run("latest by default", func(t *testing.T) {
		resp, err := kit.GetIncomeStatement(context.Background(), "2330", 0, 0)
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		stmt := resp.Data.(*models.FinancialStatement)
		if stmt.Year != 113 || stmt.Season != 2 {
			t.Errorf("got year %d season %d", stmt.Year, stmt.Season)
		}
	})

	t.Run("matching period", func(t *testing.T) {
		if _, err := kit.GetBalanceSheet(context.Background(), "2330", 113, 2); err != nil {
			t.Fatalf("matching period must succeed: %v", err)
		}
	})

	t.Run("older period unavailable", func(t *testing.T) {
		_, err := kit.GetIncomeStatement(context.Background(), "2330", 112, 4)
		if apperrors.KindOf(err) != apperrors.KindNotFound {
			t.Fatalf("expected not_found, got %v", err)
		}
		if apperrors.AsError(err).Code != "report_unavailable" {
			t.Errorf("code = %s", apperrors.AsError(err).Code)
		}
	})

	t.Run("bad season rejected", func(t *testing.T) {
		_, err := kit.GetIncomeStatement(context.Background(), "2330", 113, 5)
		if apperrors.KindOf(err) != apperrors.KindValidation {
			t.Fatalf("expected validation error, got %v", err)
		}
		if apperrors.AsError(err).Field != "season" {
			t.Errorf("field = %q, want season", apperrors.AsError(err).Field)
		}
	})
}

func TestToolkit_DailyTradingDateSelection(t *testing.T) {
	kit := marketToolkit()

	t.Run("latest by default", func(t *testing.T) {
		resp, err := kit.GetDailyTrading(context.Background(), "2330", "")
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		if bar := resp.Data.(*models.DailyTrading); bar.Date != "2026-08-21" {
			t.Errorf("date = %s", bar.Date)
		}
	})

	t.Run("matching date", func(t *testing.T) {
		if _, err := kit.GetDailyTrading(context.Background(), "2330", "2026-08-21"); err != nil {
			t.Fatalf("matching date must succeed: %v", err)
		}
	})

	t.Run("other date unavailable", func(t *testing.T) {
		_, err := kit.GetDailyTrading(context.Background(), "2330", "2026-08-20")
		if apperrors.KindOf(err) != apperrors.KindNotFound {
			t.Fatalf("expected not_found, got %v", err)
		}
	})

	t.Run("malformed date rejected", func(t *testing.T) {
		_, err := kit.GetDailyTrading(context.Background(), "2330", "21/08/2026")
		if apperrors.KindOf(err) != apperrors.KindValidation {
			t.Fatalf("expected validation error, got %v", err)
		}
		if apperrors.AsError(err).Field != "date" {
			t.Errorf("field = %q, want date", apperrors.AsError(err).Field)
		}
	})
}
