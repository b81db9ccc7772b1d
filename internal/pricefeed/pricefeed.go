package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lavoex/exchange-api/internal/types"
	"github.com/rs/zerolog/log"
)

// Feed supplies instantaneous quotes for trading pairs. Market orders use a
// single quote for the whole fill; the feed is never consulted twice for one
// order.
type Feed interface {
	Quote(ctx context.Context, pair string) (float64, error)
}

// DefaultBaseURL points at the Binance public ticker endpoint.
const DefaultBaseURL = "https://api.binance.com"

// HTTPFeed fetches spot prices from a Binance-compatible ticker endpoint.
type HTTPFeed struct {
	baseURL string
	client  *http.Client
}

func NewHTTPFeed(baseURL string) *HTTPFeed {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &HTTPFeed{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (f *HTTPFeed) Quote(ctx context.Context, pair string) (float64, error) {
	symbol := strings.ReplaceAll(pair, "-", "")
	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", f.baseURL, symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrFeedUnavailable, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		log.Warn().
			Str("service", "pricefeed").
			Str("pair", pair).
			Err(err).
			Msg("ticker request failed")
		return 0, fmt.Errorf("%w: %v", types.ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: ticker returned status %d", types.ErrFeedUnavailable, resp.StatusCode)
	}

	var ticker struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrFeedUnavailable, err)
	}

	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("%w: malformed price %q", types.ErrFeedUnavailable, ticker.Price)
	}
	return price, nil
}

// StaticFeed serves fixed prices; used by the simulation and tests.
type StaticFeed struct {
	Prices map[string]float64
}

func (f *StaticFeed) Quote(_ context.Context, pair string) (float64, error) {
	price, ok := f.Prices[pair]
	if !ok {
		return 0, fmt.Errorf("%w: no price for %s", types.ErrFeedUnavailable, pair)
	}
	return price, nil
}
