package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"shortscout/internal/model"
)

const defaultBybitURL = "https://api.bybit.com"

// BybitConfig configures the REST candle source.
type BybitConfig struct {
	BaseURL  string        // empty = production API
	Category string        // "linear" for USDT perpetuals
	Timeout  time.Duration // per-request timeout
}

// Bybit fetches kline data from the Bybit v5 market API.
type Bybit struct {
	baseURL  string
	category string
	client   *http.Client
}

// NewBybit creates a Bybit candle source.
func NewBybit(cfg BybitConfig) *Bybit {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBybitURL
	}
	category := cfg.Category
	if category == "" {
		category = "linear"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Bybit{
		baseURL:  baseURL,
		category: category,
		client:   &http.Client{Timeout: timeout},
	}
}

// klineResponse is the envelope of GET /v5/market/kline. The list rows are
// [startMs, open, high, low, close, volume, turnover] as strings, newest
// bar first.
type klineResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Symbol string     `json:"symbol"`
		List   [][]string `json:"list"`
	} `json:"result"`
}

// Fetch retrieves up to limit bars for symbol on the given timeframe.
// limit <= 0 uses the timeframe's declared FetchLimit. The series is
// returned ascending; the final bar is the in-progress bucket.
func (b *Bybit) Fetch(ctx context.Context, symbol, timeframe string, limit int) (model.Series, error) {
	spec, err := Spec(timeframe)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = spec.FetchLimit
	}

	q := url.Values{}
	q.Set("category", b.category)
	q.Set("symbol", symbol)
	q.Set("interval", spec.Code)
	q.Set("limit", strconv.Itoa(limit))

	reqURL := b.baseURL + "/v5/market/kline?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("bybit: create request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrDataUnavailable, symbol, timeframe, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s %s: status %d", ErrDataUnavailable, symbol, timeframe, resp.StatusCode)
	}

	var body klineResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %s %s: decode: %v", ErrDataUnavailable, symbol, timeframe, err)
	}
	if body.RetCode != 0 {
		return nil, fmt.Errorf("%w: %s %s: retCode %d (%s)", ErrDataUnavailable, symbol, timeframe, body.RetCode, body.RetMsg)
	}

	series, err := parseKlines(body.Result.List)
	if err != nil {
		return nil, fmt.Errorf("bybit: %s %s: %w", symbol, timeframe, err)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: %s %s: empty response", ErrDataUnavailable, symbol, timeframe)
	}
	return series, nil
}

// parseKlines converts newest-first kline rows into an ascending Series.
func parseKlines(rows [][]string) (model.Series, error) {
	series := make(model.Series, 0, len(rows))
	// Reverse while parsing: the API returns newest first.
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if len(row) < 6 {
			return nil, fmt.Errorf("kline row has %d fields, want >= 6", len(row))
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("kline start %q: %w", row[0], err)
		}
		vals := make([]float64, 5)
		for j := 1; j <= 5; j++ {
			v, err := strconv.ParseFloat(row[j], 64)
			if err != nil {
				return nil, fmt.Errorf("kline field %d %q: %w", j, row[j], err)
			}
			vals[j-1] = v
		}
		series = append(series, model.Bar{
			TS:     time.UnixMilli(ms).UTC(),
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}
	if err := series.Validate(); err != nil {
		return nil, err
	}
	return series, nil
}
