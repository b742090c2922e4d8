package scanner

import (
	"context"
	"fmt"
	"math"
	"time"

	"shortscout/config"
	"shortscout/internal/align"
	"shortscout/internal/evaluator"
	"shortscout/internal/indicator"
	"shortscout/internal/metrics"
	"shortscout/internal/model"
	"shortscout/internal/source"
)

// Frame column names.
const (
	colClose      = "close"
	colBoomAgo    = "close_boom_ago"
	colSlowAgo    = "close_slowdown_ago"
	colEMAFast    = "ema_fast"
	colEMASlow    = "ema_slow"
	colRSI        = "rsi"
	colADX        = "adx"
	colATR        = "atr"
	colStructural = "structural_close"
)

// Pipeline turns raw candle fetches for one symbol into the aligned
// multi-timeframe row the evaluator inspects. It is stateless across
// symbols and safe for concurrent use.
type Pipeline struct {
	src   source.Source
	feed  *source.Feed // optional warm path for the base timeframe
	strat config.StrategyConfig
	prom  *metrics.Metrics // nil disables instrumentation

	baseSpec    source.TimeframeSpec
	barsPerHour int
	baseLimit   int
}

// NewPipeline validates the timeframe configuration and precomputes the
// base fetch depth needed to cover the boom lookback.
func NewPipeline(src source.Source, feed *source.Feed, baseTimeframe string, strat config.StrategyConfig, prom *metrics.Metrics) (*Pipeline, error) {
	spec, err := source.Spec(baseTimeframe)
	if err != nil {
		return nil, err
	}
	bph, err := align.BarsPerHour(spec.Minutes)
	if err != nil {
		return nil, err
	}

	// The boom lookback plus the forming bar plus one closed bar.
	limit := spec.FetchLimit
	if need := strat.BoomPeriodHours*bph + 2; need > limit {
		limit = need
	}

	return &Pipeline{
		src:         src,
		feed:        feed,
		strat:       strat,
		prom:        prom,
		baseSpec:    spec,
		barsPerHour: bph,
		baseLimit:   limit,
	}, nil
}

// BuildRow fetches candles on every configured timeframe for one symbol,
// computes indicators, aligns them onto the base index, and returns the
// row for the most recently closed base bar.
func (p *Pipeline) BuildRow(ctx context.Context, symbol string, now time.Time) (evaluator.Row, error) {
	base, err := p.fetchBase(ctx, symbol, now)
	if err != nil {
		return evaluator.Row{}, err
	}
	if len(base) < 2 {
		return evaluator.Row{}, fmt.Errorf("%w: %s has %d base bars, need at least 2",
			source.ErrDataUnavailable, symbol, len(base))
	}

	frame := align.NewFrame(base.Timestamps())
	closes := base.Closes()
	if err := frame.Set(colClose, closes); err != nil {
		return evaluator.Row{}, err
	}
	if err := frame.Set(colBoomAgo, align.Shift(closes, p.strat.BoomPeriodHours*p.barsPerHour)); err != nil {
		return evaluator.Row{}, err
	}
	if err := frame.Set(colSlowAgo, align.Shift(closes, p.strat.SlowdownPeriodHours*p.barsPerHour)); err != nil {
		return evaluator.Row{}, err
	}

	// Coarser timeframes are fetched once each; the forming final bar is
	// trimmed so only closed candles feed the indicators.
	fetched := make(map[string]model.Series)
	closed := func(tf string) (model.Series, error) {
		if s, ok := fetched[tf]; ok {
			return s, nil
		}
		s, err := p.fetchClosed(ctx, symbol, tf)
		if err != nil {
			return nil, err
		}
		fetched[tf] = s
		return s, nil
	}

	emaSeries, err := closed(p.strat.EMATimeframe)
	if err != nil {
		return evaluator.Row{}, err
	}
	frame.SetAligned(colEMAFast, emaSeries.Timestamps(), indicator.EMA(emaSeries.Closes(), p.strat.EMAFast))
	frame.SetAligned(colEMASlow, emaSeries.Timestamps(), indicator.EMA(emaSeries.Closes(), p.strat.EMASlow))

	rsiSeries, err := closed(p.strat.RSITimeframe)
	if err != nil {
		return evaluator.Row{}, err
	}
	frame.SetAligned(colRSI, rsiSeries.Timestamps(), indicator.RSI(rsiSeries.Closes(), p.strat.RSIPeriod))

	adxSeries, err := closed(p.strat.ADXTimeframe)
	if err != nil {
		return evaluator.Row{}, err
	}
	frame.SetAligned(colADX, adxSeries.Timestamps(), indicator.ADX(adxSeries, p.strat.ADXPeriod))

	atrSeries, err := closed(p.strat.ATRTimeframe)
	if err != nil {
		return evaluator.Row{}, err
	}
	frame.SetAligned(colATR, atrSeries.Timestamps(), indicator.ATR(atrSeries, p.strat.ATRPeriod))

	// The daily structural column is optional: a failed fetch leaves it
	// all-undefined and only inactivates the structural filter.
	if daily, err := closed("1d"); err == nil {
		frame.SetAligned(colStructural, daily.Timestamps(),
			align.Shift(daily.Closes(), p.strat.StructuralTrendDays))
	} else {
		frame.SetAligned(colStructural, nil, nil)
	}

	idx := frame.Len() - 2
	return evaluator.Row{
		TS:                 frame.TS[idx],
		Close:              at(frame, colClose, idx),
		CloseBoomAgo:       at(frame, colBoomAgo, idx),
		CloseSlowdownAgo:   at(frame, colSlowAgo, idx),
		EMAFast:            at(frame, colEMAFast, idx),
		EMASlow:            at(frame, colEMASlow, idx),
		RSI:                at(frame, colRSI, idx),
		ADX:                at(frame, colADX, idx),
		ATR:                at(frame, colATR, idx),
		StructuralCloseAgo: at(frame, colStructural, idx),
	}, nil
}

// MarketState computes the shared BTC trend snapshot for a cycle. Fetch
// failures degrade the corresponding filter to "no data" instead of
// failing the cycle.
func (p *Pipeline) MarketState(ctx context.Context, now time.Time) evaluator.MarketState {
	var mkt evaluator.MarketState

	if fast, err := p.fetchClosed(ctx, p.strat.BTCSymbol, p.strat.BTCFastTimeframe); err == nil {
		mkt.FastDefined, mkt.FastUptrend = trendVsEMA(fast, p.strat.BTCFastEMAPeriod)
	}
	if slow, err := p.fetchClosed(ctx, p.strat.BTCSymbol, p.strat.BTCSlowTimeframe); err == nil {
		mkt.SlowDefined, mkt.SlowUptrend = trendVsEMA(slow, p.strat.BTCSlowEMAPeriod)
	}
	return mkt
}

// trendVsEMA reports whether the last close sits above its EMA.
func trendVsEMA(s model.Series, period int) (defined, uptrend bool) {
	if len(s) == 0 {
		return false, false
	}
	ema := indicator.EMA(s.Closes(), period)
	last := len(s) - 1
	if !indicator.Defined(ema[last]) {
		return false, false
	}
	return true, s[last].Close > ema[last]
}

// fetch wraps the REST source with latency and per-timeframe error
// instrumentation.
func (p *Pipeline) fetch(ctx context.Context, symbol, timeframe string, limit int) (model.Series, error) {
	start := time.Now()
	s, err := p.src.Fetch(ctx, symbol, timeframe, limit)
	if p.prom != nil {
		p.prom.FetchDur.Observe(time.Since(start).Seconds())
		if err != nil {
			p.prom.FetchErrors.WithLabelValues(timeframe).Inc()
		}
	}
	return s, err
}

// fetchBase prefers the live feed when it is warm and falls back to REST.
func (p *Pipeline) fetchBase(ctx context.Context, symbol string, now time.Time) (model.Series, error) {
	if p.feed != nil {
		if s, ok := p.feed.Series(symbol, p.baseLimit, now); ok {
			return s, nil
		}
		if p.prom != nil {
			p.prom.StaleFeeds.Inc()
		}
	}
	return p.fetch(ctx, symbol, p.baseSpec.Name, p.baseLimit)
}

// fetchClosed fetches a coarser series and drops the in-progress final bar.
func (p *Pipeline) fetchClosed(ctx context.Context, symbol, timeframe string) (model.Series, error) {
	spec, err := source.Spec(timeframe)
	if err != nil {
		return nil, err
	}
	s, err := p.fetch(ctx, symbol, timeframe, spec.FetchLimit)
	if err != nil {
		return nil, err
	}
	if len(s) > 0 {
		s = s[:len(s)-1]
	}
	return s, nil
}

func at(f *align.Frame, col string, i int) float64 {
	v, ok := f.Value(col, i)
	if !ok {
		return math.NaN()
	}
	return v
}
