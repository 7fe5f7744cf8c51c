package twse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/twquant/twse-agents/pkg/apperrors"
	"github.com/twquant/twse-agents/pkg/models"
)

// Client talks to a TWSE-style open-data quote API. It implements the
// gateway's Upstream contract; all throttling and caching live in the
// gateway, never here.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new upstream client
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Fetch dispatches one upstream request by kind
func (c *Client) Fetch(ctx context.Context, symbol string, kind models.RequestKind) (any, error) {
	switch kind {
	case models.KindQuote:
		return c.fetchQuote(ctx, symbol)
	case models.KindCompanyProfile:
		return c.fetchProfile(ctx, symbol)
	case models.KindIncome:
		return c.fetchStatement(ctx, symbol, models.KindIncome)
	case models.KindBalanceSheet:
		return c.fetchStatement(ctx, symbol, models.KindBalanceSheet)
	case models.KindDailyTrading:
		return c.fetchDaily(ctx, symbol)
	default:
		return nil, apperrors.Validationf("bad_kind", "unknown request kind %q", kind).WithField("kind")
	}
}

type quoteRow struct {
	Code         string `json:"Code"`
	Name         string `json:"Name"`
	ClosingPrice string `json:"ClosingPrice"`
	OpeningPrice string `json:"OpeningPrice"`
	HighestPrice string `json:"HighestPrice"`
	LowestPrice  string `json:"LowestPrice"`
	Change       string `json:"Change"`
	TradeVolume  string `json:"TradeVolume"`
}

func (c *Client) fetchQuote(ctx context.Context, symbol string) (*models.StockQuote, error) {
	var rows []quoteRow
	if err := c.getJSON(ctx, "/exchangeReport/STOCK_DAY_AVG_ALL", url.Values{"stockNo": {symbol}}, &rows); err != nil {
		return nil, err
	}

	for _, row := range rows {
		if row.Code != symbol {
			continue
		}
		price := parseDecimal(row.ClosingPrice)
		change := parseDecimal(row.Change)
		prev := price.Sub(change)

		quote := &models.StockQuote{
			Symbol:    symbol,
			Name:      row.Name,
			Price:     price,
			Open:      parseDecimal(row.OpeningPrice),
			High:      parseDecimal(row.HighestPrice),
			Low:       parseDecimal(row.LowestPrice),
			PrevClose: prev,
			Volume:    parseInt(row.TradeVolume),
			AsOf:      time.Now().UTC(),
		}
		if !prev.IsZero() {
			quote.ChangePct = models.ToFloat64(change.Div(prev).Mul(decimal.NewFromInt(100)))
		}
		return quote, nil
	}

	return nil, apperrors.NotFoundf("symbol_not_found", "no quote for symbol %s", symbol)
}

type profileRow struct {
	Code     string `json:"公司代號"`
	Name     string `json:"公司名稱"`
	Industry string `json:"產業別"`
	Chairman string `json:"董事長"`
	Capital  string `json:"實收資本額"`
}

func (c *Client) fetchProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error) {
	var rows []profileRow
	if err := c.getJSON(ctx, "/opendata/t187ap03_L", url.Values{"stockNo": {symbol}}, &rows); err != nil {
		return nil, err
	}

	for _, row := range rows {
		if row.Code != symbol {
			continue
		}
		return &models.CompanyProfile{
			Symbol:   symbol,
			Name:     row.Name,
			Industry: row.Industry,
			Chairman: row.Chairman,
			Capital:  row.Capital,
		}, nil
	}

	return nil, apperrors.NotFoundf("symbol_not_found", "no company profile for %s", symbol)
}

func (c *Client) fetchStatement(ctx context.Context, symbol string, kind models.RequestKind) (*models.FinancialStatement, error) {
	endpoint := "/opendata/t187ap06_L_ci"
	if kind == models.KindBalanceSheet {
		endpoint = "/opendata/t187ap07_L_ci"
	}

	var rows []map[string]string
	if err := c.getJSON(ctx, endpoint, url.Values{"stockNo": {symbol}}, &rows); err != nil {
		return nil, err
	}

	for _, row := range rows {
		if row["公司代號"] != symbol {
			continue
		}
		stmt := &models.FinancialStatement{
			Symbol: symbol,
			Kind:   kind,
			Items:  make(map[string]decimal.Decimal),
		}
		stmt.Year = int(parseInt(row["年度"]))
		stmt.Season = int(parseInt(row["季別"]))
		for field, raw := range row {
			if field == "公司代號" || field == "公司名稱" || field == "年度" || field == "季別" || field == "出表日期" {
				continue
			}
			if val, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", "")); err == nil {
				stmt.Items[field] = val
			}
		}
		return stmt, nil
	}

	return nil, apperrors.NotFoundf("symbol_not_found", "no %s for %s", kind, symbol)
}

type dailyRow struct {
	Code         string `json:"Code"`
	Date         string `json:"Date"`
	OpeningPrice string `json:"OpeningPrice"`
	HighestPrice string `json:"HighestPrice"`
	LowestPrice  string `json:"LowestPrice"`
	ClosingPrice string `json:"ClosingPrice"`
	TradeVolume  string `json:"TradeVolume"`
}

func (c *Client) fetchDaily(ctx context.Context, symbol string) (*models.DailyTrading, error) {
	var rows []dailyRow
	if err := c.getJSON(ctx, "/exchangeReport/STOCK_DAY_ALL", url.Values{"stockNo": {symbol}}, &rows); err != nil {
		return nil, err
	}

	for _, row := range rows {
		if row.Code != symbol {
			continue
		}
		return &models.DailyTrading{
			Symbol: symbol,
			Date:   row.Date,
			Open:   parseDecimal(row.OpeningPrice),
			High:   parseDecimal(row.HighestPrice),
			Low:    parseDecimal(row.LowestPrice),
			Close:  parseDecimal(row.ClosingPrice),
			Volume: parseInt(row.TradeVolume),
		}, nil
	}

	return nil, apperrors.NotFoundf("symbol_not_found", "no daily trading data for %s", symbol)
}

// getJSON issues one GET and decodes the JSON body
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func parseDecimal(raw string) decimal.Decimal {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" || cleaned == "--" {
		return decimal.Zero
	}
	val, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return val
}

func parseInt(raw string) int64 {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" {
		return 0
	}
	val, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0
	}
	return val
}
