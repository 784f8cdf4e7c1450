package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Tonic56/stock-trading-simulator/internal/models"
	"github.com/Tonic56/stock-trading-simulator/lib/errs"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const alphaVantageDefaultBaseURL = "https://www.alphavantage.co"

type AlphaVantage struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

type globalQuoteResponse struct {
	GlobalQuote struct {
		Symbol string `json:"01. symbol"`
		Price  string `json:"05. price"`
	} `json:"Global Quote"`
	Note        string `json:"Note"`
	Information string `json:"Information"`
}

type symbolSearchResponse struct {
	BestMatches []struct {
		Symbol string `json:"1. symbol"`
		Name   string `json:"2. name"`
	} `json:"bestMatches"`
}

// NewAlphaVantage builds a provider that allows at most ratePerMin upstream
// requests per minute. A non-positive rate disables throttling.
func NewAlphaVantage(baseURL, apiKey string, ratePerMin int, log *slog.Logger) *AlphaVantage {
	resolvedBaseURL := strings.TrimRight(baseURL, "/")
	if resolvedBaseURL == "" {
		resolvedBaseURL = alphaVantageDefaultBaseURL
	}

	limit := rate.Inf
	if ratePerMin > 0 {
		limit = rate.Limit(float64(ratePerMin) / 60)
	}

	return &AlphaVantage{
		baseURL: resolvedBaseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}
}

func (p *AlphaVantage) Lookup(ctx context.Context, symbol string) (*models.Quote, error) {
	const op = "quote.AlphaVantage.Lookup"

	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, errs.ErrInvalidSymbol
	}

	var quoteResp globalQuoteResponse
	if err := p.get(ctx, url.Values{"function": {"GLOBAL_QUOTE"}, "symbol": {symbol}}, &quoteResp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if quoteResp.Note != "" || quoteResp.Information != "" {
		p.log.Warn("alpha vantage refused request", "symbol", symbol, "note", quoteResp.Note+quoteResp.Information)
		return nil, fmt.Errorf("%s: %w", op, errs.ErrQuoteUnavailable)
	}

	if quoteResp.GlobalQuote.Price == "" {
		return nil, errs.ErrInvalidSymbol
	}

	price, err := decimal.NewFromString(quoteResp.GlobalQuote.Price)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid price %q: %w", op, quoteResp.GlobalQuote.Price, errs.ErrQuoteUnavailable)
	}

	return &models.Quote{
		Symbol: symbol,
		Name:   p.lookupName(ctx, symbol),
		Price:  price,
	}, nil
}

// lookupName resolves the company name, falling back to the symbol itself.
func (p *AlphaVantage) lookupName(ctx context.Context, symbol string) string {
	var searchResp symbolSearchResponse
	if err := p.get(ctx, url.Values{"function": {"SYMBOL_SEARCH"}, "keywords": {symbol}}, &searchResp); err != nil {
		p.log.Debug("symbol search failed, using symbol as name", "symbol", symbol, "error", err)
		return symbol
	}

	for _, match := range searchResp.BestMatches {
		if strings.EqualFold(match.Symbol, symbol) && match.Name != "" {
			return match.Name
		}
	}

	return symbol
}

func (p *AlphaVantage) get(ctx context.Context, params url.Values, out any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %v: %w", err, errs.ErrQuoteUnavailable)
	}

	params.Set("apikey", p.apiKey)
	endpoint := p.baseURL + "/query?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("request failed: %v: %w", err, errs.ErrQuoteUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s: %w", resp.Status, errs.ErrQuoteUnavailable)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %v: %w", err, errs.ErrQuoteUnavailable)
	}

	return nil
}
