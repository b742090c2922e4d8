// Package scanner runs the periodic scan loop: fetch, align, evaluate, and
// alert across the whole symbol universe.
package scanner

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"shortscout/config"
	"shortscout/internal/cooldown"
	"shortscout/internal/evaluator"
	"shortscout/internal/logger"
	"shortscout/internal/metrics"
	"shortscout/internal/model"
	"shortscout/internal/notification"
	"shortscout/internal/source"
)

// Service is the top-level orchestrator for the scanner. It wires all
// dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg Config

	pipeline  *Pipeline
	store     cooldown.Store
	notifiers []notification.Notifier
	prom      *metrics.Metrics
	health    *metrics.HealthStatus
}

// Config is everything the scan loop needs beyond its collaborators.
type Config struct {
	Symbols     []string
	Interval    time.Duration
	MaxWorkers  int
	DebugSymbol string

	CooldownDuration time.Duration
	Params           evaluator.Params
	ReportMeta       notification.ReportMeta
}

// New assembles a Service. All collaborators must already be connected.
func New(cfg Config, pipeline *Pipeline, store cooldown.Store, notifiers []notification.Notifier, prom *metrics.Metrics, health *metrics.HealthStatus) *Service {
	return &Service{
		cfg:       cfg,
		pipeline:  pipeline,
		store:     store,
		notifiers: notifiers,
		prom:      prom,
		health:    health,
	}
}

// ParamsFromConfig maps the strategy configuration onto evaluator
// thresholds.
func ParamsFromConfig(s config.StrategyConfig) evaluator.Params {
	return evaluator.Params{
		BoomThreshold:     s.BoomPct,
		SlowdownThreshold: s.SlowdownPct,

		RSIEntryMin: s.RSIEntryMin,
		RSIEntryMax: s.RSIEntryMax,

		ADXFilterEnabled: s.ADXFilterEnabled,
		ADXMinLevel:      s.ADXMinLevel,

		StructuralRetPct: s.StructuralTrendRetPct,

		BTCFastFilterEnabled: s.BTCFastFilterEnabled,
		BTCSlowFilterEnabled: s.BTCSlowFilterEnabled,

		SLATRMult:        s.SLATRMult,
		TPATRMult:        s.TPATRMult,
		PartialTPATRMult: s.PartialTPATRMult,
		TrailATRMult:     s.TrailATRMult,
		MinStopDistPct:   s.MinStopDistPct,
	}
}

// ReportMetaFromConfig maps strategy and report configuration onto the
// alert card context.
func ReportMetaFromConfig(s config.StrategyConfig, r config.ReportConfig) notification.ReportMeta {
	return notification.ReportMeta{
		ATRTimeframe: s.ATRTimeframe,
		RSITimeframe: s.RSITimeframe,
		ADXTimeframe: s.ADXTimeframe,

		SLATRMult:        s.SLATRMult,
		TPATRMult:        s.TPATRMult,
		PartialTPATRMult: s.PartialTPATRMult,

		ShowEMATrend:   r.ShowEMATrend,
		ShowRSI:        r.ShowRSI,
		ShowADX:        r.ShowADX,
		ShowStructural: r.ShowStructural,
		ShowBTCFast:    r.ShowBTCFast,
		ShowBTCSlow:    r.ShowBTCSlow,
	}
}

// Run executes scan cycles on the configured interval until ctx is
// cancelled. Cycles never overlap: a tick that arrives while a cycle is
// still running is dropped.
func (svc *Service) Run(ctx context.Context) error {
	log.Printf("[scanner] starting: %d symbols, every %s, %d workers",
		len(svc.cfg.Symbols), svc.cfg.Interval, svc.cfg.MaxWorkers)
	if svc.health != nil {
		svc.health.SetSymbolCount(len(svc.cfg.Symbols))
	}
	if svc.prom != nil {
		svc.prom.WatchedSyms.Set(float64(len(svc.cfg.Symbols)))
	}

	// First cycle immediately, then on the ticker.
	svc.RunCycle(ctx)

	ticker := time.NewTicker(svc.cfg.Interval)
	defer ticker.Stop()

	running := false
	var mu sync.Mutex
	done := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			mu.Lock()
			running = false
			mu.Unlock()
		case <-ticker.C:
			mu.Lock()
			if running {
				mu.Unlock()
				if svc.prom != nil {
					svc.prom.CycleOverruns.Inc()
				}
				log.Printf("[scanner] previous cycle still running, skipping tick")
				continue
			}
			running = true
			mu.Unlock()
			go func() {
				svc.RunCycle(ctx)
				done <- struct{}{}
			}()
		}
	}
}

// RunCycle scans every symbol once: load cooldowns, snapshot BTC trend,
// evaluate symbols on a bounded worker pool, persist new cooldowns, and
// deliver alerts.
func (svc *Service) RunCycle(ctx context.Context) {
	start := time.Now()
	now := start.UTC()
	ctx = logger.WithCycleID(ctx, logger.GenerateCycleID(start))

	cooldowns := svc.store.Load(ctx)
	mkt := svc.pipeline.MarketState(ctx, now)

	var (
		mu      sync.Mutex // guards cooldowns and raised
		raised  []model.Decision
		skipped int
	)

	sem := make(chan struct{}, svc.cfg.MaxWorkers)
	var wg sync.WaitGroup
	for _, symbol := range svc.cfg.Symbols {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()

			mu.Lock()
			coolingDown := cooldown.IsCoolingDown(cooldowns, symbol, now)
			mu.Unlock()

			dec, err := svc.evaluateSymbol(ctx, symbol, now, mkt, coolingDown)
			if err != nil {
				return
			}

			svc.observeOutcome(dec)
			switch dec.Outcome {
			case model.OutcomeSkippedCooldown:
				mu.Lock()
				skipped++
				mu.Unlock()
			case model.OutcomeSignalRaised:
				mu.Lock()
				cooldown.PlaceOnCooldown(cooldowns, symbol, now, svc.cfg.CooldownDuration)
				raised = append(raised, dec)
				mu.Unlock()
			}
		}(symbol)
	}
	wg.Wait()

	// Persist before notifying: a lost alert beats a duplicate one.
	if len(raised) > 0 {
		saveStart := time.Now()
		if err := svc.store.Save(ctx, cooldowns); err != nil {
			slog.Error("cooldown save failed",
				append([]any{slog.Any("err", err)}, logger.LogWithCycle(ctx)...)...)
		}
		if svc.prom != nil {
			svc.prom.CooldownSaveDur.Observe(time.Since(saveStart).Seconds())
		}
		for _, dec := range raised {
			svc.notify(ctx, notification.BuildSignalAlert(dec, svc.cfg.ReportMeta))
		}
	}

	elapsed := time.Since(start)
	slog.Info("cycle complete",
		append([]any{
			slog.Duration("elapsed", elapsed.Round(time.Millisecond)),
			slog.Int("symbols", len(svc.cfg.Symbols)),
			slog.Int("cooldown_skips", skipped),
			slog.Int("signals", len(raised)),
		}, logger.LogWithCycle(ctx)...)...)

	if svc.prom != nil {
		svc.prom.CyclesTotal.Inc()
		svc.prom.CycleDur.Observe(elapsed.Seconds())
		svc.prom.LastCycleUnix.Set(float64(time.Now().Unix()))
	}
	if svc.health != nil {
		svc.health.SetLastCycleTime(time.Now())
	}
}

// evaluateSymbol builds the aligned row for one symbol and runs the
// decision logic. Data gaps skip the symbol for this cycle only.
func (svc *Service) evaluateSymbol(ctx context.Context, symbol string, now time.Time, mkt evaluator.MarketState, coolingDown bool) (model.Decision, error) {
	row, err := svc.pipeline.BuildRow(ctx, symbol, now)
	if err != nil {
		if errors.Is(err, source.ErrDataUnavailable) {
			log.Printf("[scanner] %s: data unavailable, skipping: %v", symbol, err)
		} else {
			log.Printf("[scanner] %s: pipeline error: %v", symbol, err)
		}
		return model.Decision{}, err
	}

	dec := evaluator.Evaluate(symbol, row, mkt, svc.cfg.Params, coolingDown)

	if symbol == svc.cfg.DebugSymbol {
		log.Printf("[scanner] DEBUG %s: outcome=%s boom=%.4f slowdown=%.4f rsi=%.2f adx=%.2f atr=%.5f",
			symbol, dec.Outcome, dec.BoomReturn, dec.SlowdownReturn, row.RSI, row.ADX, row.ATR)
	}
	return dec, nil
}

func (svc *Service) observeOutcome(dec model.Decision) {
	if svc.prom == nil {
		return
	}
	svc.prom.SymbolsEvaluated.WithLabelValues(string(dec.Outcome)).Inc()
	switch dec.Outcome {
	case model.OutcomeSkippedCooldown:
		svc.prom.CooldownSkips.Inc()
	case model.OutcomeSignalRaised:
		svc.prom.SignalsRaised.WithLabelValues(strconv.FormatBool(dec.Actionable)).Inc()
	}
}

// notify fans one alert out to every configured backend. Failures are
// logged and counted but never propagate: the cooldown is already saved.
func (svc *Service) notify(ctx context.Context, alert notification.Alert) {
	for _, n := range svc.notifiers {
		if err := n.Send(ctx, alert); err != nil {
			log.Printf("[scanner] WARNING: alert delivery failed: %v", err)
			if svc.prom != nil {
				svc.prom.NotifyFailures.Inc()
			}
		}
	}
}
