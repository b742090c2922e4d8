package model

import "time"

// Outcome is the terminal state of one symbol's evaluation in a cycle.
type Outcome string

const (
	// OutcomeSkippedCooldown means the symbol was not evaluated because a
	// prior signal's cooldown has not expired yet.
	OutcomeSkippedCooldown Outcome = "SKIPPED_COOLDOWN"
	// OutcomeNoSignal means the symbol was evaluated and the core
	// boom+slowdown gate did not fire.
	OutcomeNoSignal Outcome = "NO_SIGNAL"
	// OutcomeSignalRaised means the core gate fired and an alert was produced.
	OutcomeSignalRaised Outcome = "SIGNAL_RAISED"
)

// FilterResult is one champion filter's verdict. Filters are advisory
// context for the alert message; only filters configured as hard gates
// affect whether a raised signal is actionable.
type FilterResult struct {
	Name    string  `json:"name"`
	Defined bool    `json:"defined"` // false when the underlying indicator had insufficient history
	Pass    bool    `json:"pass"`
	Value   float64 `json:"value,omitempty"`
}

// TradeParams are the short-side trade levels derived from ATR at signal
// time. Absent (nil on the decision) when ATR was undefined.
type TradeParams struct {
	Entry         float64 `json:"entry"`
	StopLoss      float64 `json:"stop_loss"` // above entry: short-side stop
	PartialTP     float64 `json:"partial_tp"`
	FinalTP       float64 `json:"final_tp"`
	TrailDistance float64 `json:"trail_distance"`
}

// Decision is the immutable result of evaluating one symbol against the
// most recently closed base-timeframe bar. Created once per symbol per
// cycle and never mutated afterwards.
type Decision struct {
	Symbol      string    `json:"symbol"`
	EvaluatedAt time.Time `json:"evaluated_at"` // timestamp of the closed bar that was inspected

	Outcome    Outcome `json:"outcome"`
	CoreSignal bool    `json:"core_signal"`
	// Actionable is false when a hard-gated filter failed: the signal is
	// still raised (and cooled down) but flagged as informational.
	Actionable bool `json:"actionable"`

	BoomReturn     float64 `json:"boom_return"`
	SlowdownReturn float64 `json:"slowdown_return"`

	Filters []FilterResult `json:"filters,omitempty"`
	Trade   *TradeParams   `json:"trade,omitempty"`

	// Indicator readouts for the alert message.
	RSI float64 `json:"rsi"`
	ADX float64 `json:"adx"`
	ATR float64 `json:"atr"`
}
