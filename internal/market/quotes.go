package market

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/twquant/twse-agents/pkg/apperrors"
	"github.com/twquant/twse-agents/pkg/models"
)

// PriceSource adapts the gateway to callers that only need a current
// price, like the fill engine
type PriceSource struct {
	gateway *Gateway
}

// NewPriceSource creates a price source over the gateway
func NewPriceSource(gateway *Gateway) *PriceSource {
	return &PriceSource{gateway: gateway}
}

// CurrentPrice returns the latest quoted price for a symbol. Cached and
// stale quotes are acceptable; only a full gateway denial fails.
func (p *PriceSource) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	result, err := p.gateway.Fetch(ctx, symbol, models.KindQuote, false)
	if err != nil {
		return decimal.Zero, err
	}
	if result.Freshness == models.FreshnessAbsent {
		return decimal.Zero, apperrors.RateLimited("gateway_denied", "quote request throttled, retry later", result.WaitHint).
			WithDetail("denied_by", result.DeniedBy)
	}
	quote, ok := result.Payload.(*models.StockQuote)
	if !ok {
		return decimal.Zero, apperrors.Internalf("bad_payload", "unexpected quote payload type for %s", symbol)
	}
	return quote.Price, nil
}
