package notification

import (
	"fmt"
	"strings"

	"shortscout/internal/evaluator"
	"shortscout/internal/model"
)

// ReportMeta carries the display context for alert cards: which timeframe
// each readout came from, the ATR multipliers behind the levels, and which
// champion filters the operator wants to see.
type ReportMeta struct {
	ATRTimeframe string
	RSITimeframe string
	ADXTimeframe string

	SLATRMult        float64
	TPATRMult        float64
	PartialTPATRMult float64

	ShowEMATrend   bool
	ShowRSI        bool
	ShowADX        bool
	ShowStructural bool
	ShowBTCFast    bool
	ShowBTCSlow    bool
}

// filterLabels maps checklist names to the human-readable lines on the card.
var filterLabels = map[string]string{
	evaluator.FilterEMATrend:   "4h EMA trend down",
	evaluator.FilterRSIBand:    "RSI in entry band",
	evaluator.FilterADXFloor:   "ADX above floor",
	evaluator.FilterStructural: "30d structural downtrend",
	evaluator.FilterBTCFast:    "BTC not in fast uptrend",
	evaluator.FilterBTCSlow:    "BTC not in slow uptrend",
}

// BuildSignalAlert formats a raised decision into a Telegram-Markdown alert
// card. Call it only for OutcomeSignalRaised decisions.
func BuildSignalAlert(dec model.Decision, meta ReportMeta) Alert {
	var b strings.Builder

	if !dec.Actionable {
		b.WriteString("ℹ️ _Informational only: a hard-gated filter failed._\n\n")
	}

	if dec.Trade != nil {
		fmt.Fprintf(&b, "*Entry Price:* `%.4f`\n", dec.Trade.Entry)
		fmt.Fprintf(&b, "*Stop Loss:*  `%.4f` (Entry + %.1f × ATR)\n", dec.Trade.StopLoss, meta.SLATRMult)
		fmt.Fprintf(&b, "*Partial TP:* `%.4f` (Entry − %.1f × ATR)\n", dec.Trade.PartialTP, meta.PartialTPATRMult)
		fmt.Fprintf(&b, "*Final TP:*   `%.4f` (Entry − %.1f × ATR)\n", dec.Trade.FinalTP, meta.TPATRMult)
		fmt.Fprintf(&b, "*Trail:*      `%.4f`\n", dec.Trade.TrailDistance)
	} else {
		b.WriteString("_Trade parameters withheld: ATR unavailable._\n")
	}

	b.WriteString("\n*Signal Details:*\n")
	fmt.Fprintf(&b, "- Time: `%s`\n", dec.EvaluatedAt.UTC().Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "- Boom: `%+.2f%%`, Slowdown: `%+.2f%%`\n", dec.BoomReturn*100, dec.SlowdownReturn*100)
	if meta.ShowRSI {
		fmt.Fprintf(&b, "- RSI (%s): `%.2f`\n", meta.RSITimeframe, dec.RSI)
	}
	if meta.ShowADX {
		fmt.Fprintf(&b, "- ADX (%s): `%.2f`\n", meta.ADXTimeframe, dec.ADX)
	}
	fmt.Fprintf(&b, "- ATR (%s): `%.5f`\n", meta.ATRTimeframe, dec.ATR)

	if checklist := buildChecklist(dec.Filters, meta); checklist != "" {
		b.WriteString("\n*Filter Checklist:*\n")
		b.WriteString(checklist)
	}

	level := AlertSignal
	if !dec.Actionable {
		level = AlertInfo
	}
	return Alert{
		Level:   level,
		Title:   fmt.Sprintf("🚨 New Short Signal: $%s", dec.Symbol),
		Message: b.String(),
	}
}

func buildChecklist(filters []model.FilterResult, meta ReportMeta) string {
	show := map[string]bool{
		evaluator.FilterEMATrend:   meta.ShowEMATrend,
		evaluator.FilterRSIBand:    meta.ShowRSI,
		evaluator.FilterADXFloor:   meta.ShowADX,
		evaluator.FilterStructural: meta.ShowStructural,
		evaluator.FilterBTCFast:    meta.ShowBTCFast,
		evaluator.FilterBTCSlow:    meta.ShowBTCSlow,
	}

	var b strings.Builder
	for _, f := range filters {
		if !show[f.Name] {
			continue
		}
		label, ok := filterLabels[f.Name]
		if !ok {
			label = f.Name
		}
		switch {
		case !f.Defined:
			fmt.Fprintf(&b, "- ⚪ %s (no data)\n", label)
		case f.Pass:
			fmt.Fprintf(&b, "- ✅ %s\n", label)
		default:
			fmt.Fprintf(&b, "- ❌ %s\n", label)
		}
	}
	return b.String()
}
