// Package source fetches OHLCV candle series from the exchange, over REST
// and over a live kline WebSocket feed.
package source

import (
	"context"
	"errors"
	"fmt"

	"shortscout/internal/model"
)

// ErrDataUnavailable marks a fetch that failed or returned no usable bars.
// The symbol is skipped for the cycle; the cycle itself continues.
var ErrDataUnavailable = errors.New("candle data unavailable")

// Source fetches a candle series for one symbol+timeframe. limit is
// advisory: the exchange may return fewer or more bars. Returned series are
// ascending by timestamp with the final bar still forming.
type Source interface {
	Fetch(ctx context.Context, symbol, timeframe string, limit int) (model.Series, error)
}

// TimeframeSpec declares the per-timeframe fetch parameters. Callers look
// up the spec instead of special-casing timeframe strings.
type TimeframeSpec struct {
	Name       string // canonical name, e.g. "5m"
	Code       string // exchange interval code, e.g. "5", "240", "D"
	Minutes    int
	FetchLimit int // default bar count per fetch
}

var timeframes = map[string]TimeframeSpec{
	"1m":  {Name: "1m", Code: "1", Minutes: 1, FetchLimit: 500},
	"3m":  {Name: "3m", Code: "3", Minutes: 3, FetchLimit: 500},
	"5m":  {Name: "5m", Code: "5", Minutes: 5, FetchLimit: 500},
	"15m": {Name: "15m", Code: "15", Minutes: 15, FetchLimit: 500},
	"30m": {Name: "30m", Code: "30", Minutes: 30, FetchLimit: 500},
	"1h":  {Name: "1h", Code: "60", Minutes: 60, FetchLimit: 200},
	"2h":  {Name: "2h", Code: "120", Minutes: 120, FetchLimit: 200},
	"4h":  {Name: "4h", Code: "240", Minutes: 240, FetchLimit: 300},
	"6h":  {Name: "6h", Code: "360", Minutes: 360, FetchLimit: 200},
	"12h": {Name: "12h", Code: "720", Minutes: 720, FetchLimit: 200},
	"1d":  {Name: "1d", Code: "D", Minutes: 1440, FetchLimit: 200},
}

// Spec returns the fetch parameters declared for a timeframe.
func Spec(timeframe string) (TimeframeSpec, error) {
	spec, ok := timeframes[timeframe]
	if !ok {
		return TimeframeSpec{}, fmt.Errorf("source: unknown timeframe %q", timeframe)
	}
	return spec, nil
}
