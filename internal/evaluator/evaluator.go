// Package evaluator holds the pure signal-decision logic: it combines the
// aligned multi-timeframe row for the last closed bar into a per-symbol
// Decision. No I/O, no clock, no logging; formatting and delivery are the
// caller's job.
package evaluator

import (
	"math"
	"time"

	"shortscout/internal/model"
)

// Filter names as they appear on the decision's champion checklist.
const (
	FilterEMATrend   = "ema_trend_down"
	FilterRSIBand    = "rsi_band"
	FilterADXFloor   = "adx_floor"
	FilterStructural = "structural_trend"
	FilterBTCFast    = "btc_fast_trend"
	FilterBTCSlow    = "btc_slow_trend"
)

// Params are the strategy thresholds, fixed for a whole cycle.
type Params struct {
	BoomThreshold     float64 // e.g. 0.10 = +10% over the boom lookback
	SlowdownThreshold float64 // e.g. 0.01 = <=+1% over the slowdown lookback

	RSIEntryMin float64
	RSIEntryMax float64

	ADXFilterEnabled bool // hard gate when true
	ADXMinLevel      float64

	StructuralRetPct float64 // e.g. -0.20: 30d return at or below this passes

	BTCFastFilterEnabled bool // hard gate when true
	BTCSlowFilterEnabled bool // hard gate when true

	SLATRMult        float64
	TPATRMult        float64
	PartialTPATRMult float64
	TrailATRMult     float64
	MinStopDistPct   float64
}

// Row is the aligned view of one symbol at the most recently closed
// base-timeframe bar. Any field may be NaN when the underlying indicator
// had insufficient history; consumers treat NaN as "inapplicable".
type Row struct {
	TS    time.Time
	Close float64

	CloseBoomAgo     float64
	CloseSlowdownAgo float64

	EMAFast float64 // higher-timeframe trend EMAs
	EMASlow float64
	RSI     float64
	ADX     float64
	ATR     float64

	StructuralCloseAgo float64 // daily close ~N days back, optional
}

// MarketState is the broader-market (BTC) trend snapshot computed once per
// cycle and shared read-only across all symbols.
type MarketState struct {
	FastDefined bool
	FastUptrend bool // BTC close above its fast EMA
	SlowDefined bool
	SlowUptrend bool
}

func defined(v float64) bool { return !math.IsNaN(v) }

// Evaluate runs the decision state machine for one symbol:
// SKIPPED_COOLDOWN → EVALUATED → {NO_SIGNAL, SIGNAL_RAISED}.
//
// Only the boom+slowdown pair gates the signal. Champion filters are
// advisory context on the decision; a filter configured as a hard gate
// that is defined and violated degrades the decision to informational
// (Actionable=false) instead of suppressing it.
func Evaluate(symbol string, row Row, mkt MarketState, p Params, coolingDown bool) model.Decision {
	dec := model.Decision{
		Symbol:      symbol,
		EvaluatedAt: row.TS,
		RSI:         row.RSI,
		ADX:         row.ADX,
		ATR:         row.ATR,
	}

	if coolingDown {
		dec.Outcome = model.OutcomeSkippedCooldown
		return dec
	}

	// Core gate: boom then slowdown, both on defined lookback closes.
	if !defined(row.Close) || !defined(row.CloseBoomAgo) || !defined(row.CloseSlowdownAgo) {
		dec.Outcome = model.OutcomeNoSignal
		dec.BoomReturn = math.NaN()
		dec.SlowdownReturn = math.NaN()
		return dec
	}

	dec.BoomReturn = row.Close/row.CloseBoomAgo - 1
	dec.SlowdownReturn = row.Close/row.CloseSlowdownAgo - 1

	coreBoom := dec.BoomReturn >= p.BoomThreshold
	coreSlowdown := dec.SlowdownReturn <= p.SlowdownThreshold
	dec.CoreSignal = coreBoom && coreSlowdown

	if !dec.CoreSignal {
		dec.Outcome = model.OutcomeNoSignal
		return dec
	}

	dec.Outcome = model.OutcomeSignalRaised
	dec.Filters = championFilters(row, mkt, p)
	dec.Actionable = hardGatesPass(dec.Filters, p)
	dec.Trade = tradeParams(row, p)
	return dec
}

// championFilters computes every advisory filter independently. Undefined
// inputs yield Defined=false results rather than failures.
func championFilters(row Row, mkt MarketState, p Params) []model.FilterResult {
	filters := make([]model.FilterResult, 0, 6)

	emaOK := defined(row.EMAFast) && defined(row.EMASlow)
	filters = append(filters, model.FilterResult{
		Name:    FilterEMATrend,
		Defined: emaOK,
		Pass:    emaOK && row.EMAFast < row.EMASlow,
	})

	filters = append(filters, model.FilterResult{
		Name:    FilterRSIBand,
		Defined: defined(row.RSI),
		Pass:    defined(row.RSI) && row.RSI >= p.RSIEntryMin && row.RSI <= p.RSIEntryMax,
		Value:   row.RSI,
	})

	filters = append(filters, model.FilterResult{
		Name:    FilterADXFloor,
		Defined: defined(row.ADX),
		Pass:    defined(row.ADX) && row.ADX > p.ADXMinLevel,
		Value:   row.ADX,
	})

	structOK := defined(row.StructuralCloseAgo) && defined(row.Close) && row.StructuralCloseAgo > 0
	var structRet float64 = math.NaN()
	if structOK {
		structRet = row.Close/row.StructuralCloseAgo - 1
	}
	filters = append(filters, model.FilterResult{
		Name:    FilterStructural,
		Defined: structOK,
		Pass:    structOK && structRet <= p.StructuralRetPct,
		Value:   structRet,
	})

	// Macro filters pass when BTC is NOT in an uptrend on that horizon.
	filters = append(filters, model.FilterResult{
		Name:    FilterBTCFast,
		Defined: mkt.FastDefined,
		Pass:    mkt.FastDefined && !mkt.FastUptrend,
	})
	filters = append(filters, model.FilterResult{
		Name:    FilterBTCSlow,
		Defined: mkt.SlowDefined,
		Pass:    mkt.SlowDefined && !mkt.SlowUptrend,
	})

	return filters
}

// hardGatesPass reports whether every filter configured as a hard gate is
// satisfied. A gate whose inputs were undefined is inapplicable, never a
// violation.
func hardGatesPass(filters []model.FilterResult, p Params) bool {
	gated := map[string]bool{
		FilterADXFloor: p.ADXFilterEnabled,
		FilterBTCFast:  p.BTCFastFilterEnabled,
		FilterBTCSlow:  p.BTCSlowFilterEnabled,
	}
	for _, f := range filters {
		if gated[f.Name] && f.Defined && !f.Pass {
			return false
		}
	}
	return true
}

// tradeParams derives short-side levels from the closed bar's ATR. When ATR
// is undefined the decision carries no trade parameters at all; levels are
// never fabricated from NaN.
func tradeParams(row Row, p Params) *model.TradeParams {
	if !defined(row.ATR) {
		return nil
	}

	entry := row.Close
	stop := entry + p.SLATRMult*row.ATR
	// Micro-stop guard: widen stops tighter than the configured floor.
	if minStop := entry * (1 + p.MinStopDistPct); stop < minStop {
		stop = minStop
	}

	return &model.TradeParams{
		Entry:         entry,
		StopLoss:      stop,
		PartialTP:     entry - p.PartialTPATRMult*row.ATR,
		FinalTP:       entry - p.TPATRMult*row.ATR,
		TrailDistance: p.TrailATRMult * row.ATR,
	}
}
