package scanner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"shortscout/config"
	"shortscout/internal/logger"
	"shortscout/internal/metrics"
	"shortscout/internal/model"
	"shortscout/internal/notification"
	"shortscout/internal/source"
)

var t0 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

// fakeSource serves canned series per timeframe and can fail per symbol or
// per timeframe.
type fakeSource struct {
	byTimeframe    map[string]model.Series
	baseBySym      map[string]model.Series
	failSymbols    map[string]bool
	failTimeframes map[string]bool
}

func (f *fakeSource) Fetch(_ context.Context, symbol, timeframe string, _ int) (model.Series, error) {
	if f.failSymbols[symbol] {
		return nil, fmt.Errorf("fake outage for %s", symbol)
	}
	if f.failTimeframes[timeframe] {
		return nil, fmt.Errorf("fake outage on %s", timeframe)
	}
	if timeframe == "5m" {
		if s, ok := f.baseBySym[symbol]; ok {
			return s, nil
		}
	}
	if s, ok := f.byTimeframe[timeframe]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("no canned data for %s", timeframe)
}

// fakeStore is an in-memory cooldown store tracking save calls and the
// cycle ID it observed on Load.
type fakeStore struct {
	mu         sync.Mutex
	state      map[string]time.Time
	saves      int
	gotCycleID string
}

func newFakeStore() *fakeStore {
	return &fakeStore{state: make(map[string]time.Time)}
}

func (f *fakeStore) Load(ctx context.Context) map[string]time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotCycleID = logger.CycleID(ctx)
	out := make(map[string]time.Time, len(f.state))
	for k, v := range f.state {
		out[k] = v
	}
	return out
}

func (f *fakeStore) Save(_ context.Context, cooldowns map[string]time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = make(map[string]time.Time, len(cooldowns))
	for k, v := range cooldowns {
		f.state[k] = v
	}
	f.saves++
	return nil
}

func (f *fakeStore) Close() error { return nil }

// fakeNotifier records every alert it is handed.
type fakeNotifier struct {
	mu     sync.Mutex
	alerts []notification.Alert
}

func (f *fakeNotifier) Send(_ context.Context, alert notification.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

func seriesAt(start time.Time, step time.Duration, closes []float64) model.Series {
	s := make(model.Series, len(closes))
	for i, c := range closes {
		s[i] = model.Bar{
			TS:     start.Add(time.Duration(i) * step),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		}
	}
	return s
}

// boomedBase builds a 5m series whose closed bar shows a +13% move over the
// 2h boom lookback and +0.44% over the 1h slowdown lookback.
func boomedBase() model.Series {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100
	}
	closes[26] = 112.5 // slowdown reference, 12 bars before the closed bar
	closes[38] = 113   // the closed bar
	closes[39] = 113.2 // forming, never evaluated
	return seriesAt(t0, 5*time.Minute, closes)
}

func flatBase() model.Series {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100
	}
	return seriesAt(t0, 5*time.Minute, closes)
}

func coarseFixtures() map[string]model.Series {
	rising := func(n int) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = 100 + float64(i)
		}
		return out
	}
	return map[string]model.Series{
		"4h": seriesAt(t0.Add(-40*time.Hour), 4*time.Hour, rising(11)),
		"1h": seriesAt(t0.Add(-9*time.Hour), time.Hour, rising(12)),
		"1d": seriesAt(t0.Add(-5*24*time.Hour), 24*time.Hour, rising(6)),
	}
}

func testStrategy() config.StrategyConfig {
	return config.StrategyConfig{
		BoomPeriodHours:     2,
		BoomPct:             0.10,
		SlowdownPeriodHours: 1,
		SlowdownPct:         0.01,

		EMATimeframe: "4h",
		EMAFast:      3,
		EMASlow:      5,
		RSITimeframe: "4h",
		RSIPeriod:    5,
		RSIEntryMin:  40,
		RSIEntryMax:  65,
		ADXTimeframe: "4h",
		ADXPeriod:    3,
		ADXMinLevel:  20,
		ATRTimeframe: "1h",
		ATRPeriod:    3,

		StructuralTrendDays:   30,
		StructuralTrendRetPct: -0.20,

		BTCSymbol:        "BTCUSDT",
		BTCFastTimeframe: "4h",
		BTCFastEMAPeriod: 3,
		BTCSlowTimeframe: "1d",
		BTCSlowEMAPeriod: 3,

		SLATRMult:        3,
		TPATRMult:        3,
		PartialTPATRMult: 1,
		TrailATRMult:     1.5,
		MinStopDistPct:   0.001,
	}
}

func newTestService(t *testing.T, src *fakeSource, store *fakeStore, notifier *fakeNotifier, symbols []string) *Service {
	t.Helper()
	strat := testStrategy()
	pipeline, err := NewPipeline(src, nil, "5m", strat, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	cfg := Config{
		Symbols:          symbols,
		Interval:         time.Minute,
		MaxWorkers:       4,
		CooldownDuration: 30 * time.Minute,
		Params:           ParamsFromConfig(strat),
		ReportMeta: ReportMetaFromConfig(strat, config.ReportConfig{
			ShowEMATrend: true, ShowRSI: true, ShowADX: true,
		}),
	}
	return New(cfg, pipeline, store, []notification.Notifier{notifier}, nil, nil)
}

func TestRunCycle_SignalRaisesAlertAndCooldown(t *testing.T) {
	src := &fakeSource{
		byTimeframe: coarseFixtures(),
		baseBySym:   map[string]model.Series{"HUSDT": boomedBase()},
	}
	store := newFakeStore()
	notifier := &fakeNotifier{}
	svc := newTestService(t, src, store, notifier, []string{"HUSDT"})

	svc.RunCycle(context.Background())

	if notifier.count() != 1 {
		t.Fatalf("alerts = %d, want 1", notifier.count())
	}
	if !strings.Contains(notifier.alerts[0].Title, "$HUSDT") {
		t.Errorf("alert title = %q, want symbol in it", notifier.alerts[0].Title)
	}
	if store.saves != 1 {
		t.Errorf("store saves = %d, want 1", store.saves)
	}
	expiry, ok := store.state["HUSDT"]
	if !ok {
		t.Fatal("no cooldown recorded for HUSDT")
	}
	if !expiry.After(time.Now()) {
		t.Errorf("cooldown expiry %s not in the future", expiry)
	}
}

func TestRunCycle_SecondCycleSkipsCooledSymbol(t *testing.T) {
	src := &fakeSource{
		byTimeframe: coarseFixtures(),
		baseBySym:   map[string]model.Series{"HUSDT": boomedBase()},
	}
	store := newFakeStore()
	notifier := &fakeNotifier{}
	svc := newTestService(t, src, store, notifier, []string{"HUSDT"})

	svc.RunCycle(context.Background())
	svc.RunCycle(context.Background())

	if notifier.count() != 1 {
		t.Fatalf("alerts after two cycles = %d, want 1", notifier.count())
	}
	if store.saves != 1 {
		t.Errorf("store saves = %d, want 1 (no new signal, no save)", store.saves)
	}
}

func TestRunCycle_QuietMarketSendsNothing(t *testing.T) {
	src := &fakeSource{
		byTimeframe: coarseFixtures(),
		baseBySym:   map[string]model.Series{"ETHUSDT": flatBase()},
	}
	store := newFakeStore()
	notifier := &fakeNotifier{}
	svc := newTestService(t, src, store, notifier, []string{"ETHUSDT"})

	svc.RunCycle(context.Background())

	if notifier.count() != 0 {
		t.Fatalf("alerts = %d, want 0", notifier.count())
	}
	if store.saves != 0 {
		t.Errorf("store saves = %d, want 0", store.saves)
	}
}

func TestRunCycle_FetchFailureSkipsOnlyThatSymbol(t *testing.T) {
	src := &fakeSource{
		byTimeframe: coarseFixtures(),
		baseBySym: map[string]model.Series{
			"HUSDT": boomedBase(),
		},
		failSymbols: map[string]bool{"BADUSDT": true},
	}
	store := newFakeStore()
	notifier := &fakeNotifier{}
	svc := newTestService(t, src, store, notifier, []string{"BADUSDT", "HUSDT"})

	svc.RunCycle(context.Background())

	if notifier.count() != 1 {
		t.Fatalf("alerts = %d, want 1 (healthy symbol still scanned)", notifier.count())
	}
	if _, ok := store.state["BADUSDT"]; ok {
		t.Error("failed symbol must not be cooled down")
	}
}

func TestBuildRow_ClosedBarOnly(t *testing.T) {
	src := &fakeSource{
		byTimeframe: coarseFixtures(),
		baseBySym:   map[string]model.Series{"HUSDT": boomedBase()},
	}
	pipeline, err := NewPipeline(src, nil, "5m", testStrategy(), nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	row, err := pipeline.BuildRow(context.Background(), "HUSDT", t0.Add(200*time.Minute))
	if err != nil {
		t.Fatalf("BuildRow: %v", err)
	}
	if row.Close != 113 {
		t.Errorf("row.Close = %v, want 113 (the closed bar, not the forming 113.2)", row.Close)
	}
	if got := row.TS; !got.Equal(t0.Add(38 * 5 * time.Minute)) {
		t.Errorf("row.TS = %s, want the second-to-last bar", got)
	}
	if row.CloseBoomAgo != 100 {
		t.Errorf("CloseBoomAgo = %v, want 100", row.CloseBoomAgo)
	}
	if row.CloseSlowdownAgo != 112.5 {
		t.Errorf("CloseSlowdownAgo = %v, want 112.5", row.CloseSlowdownAgo)
	}
}

func TestBuildRow_RejectsIndivisibleBaseInterval(t *testing.T) {
	if _, err := NewPipeline(&fakeSource{}, nil, "7m", testStrategy(), nil); err == nil {
		t.Fatal("expected error for unknown base timeframe")
	}
}

func TestRunCycle_ThreadsCycleID(t *testing.T) {
	src := &fakeSource{
		byTimeframe: coarseFixtures(),
		baseBySym:   map[string]model.Series{"HUSDT": boomedBase()},
	}
	store := newFakeStore()
	svc := newTestService(t, src, store, &fakeNotifier{}, []string{"HUSDT"})

	svc.RunCycle(context.Background())

	if store.gotCycleID == "" {
		t.Fatal("store.Load saw no cycle id in context")
	}
	if !strings.HasPrefix(store.gotCycleID, "cycle-") {
		t.Errorf("cycle id = %q, want cycle- prefix", store.gotCycleID)
	}
}

// unregisteredMetrics builds metric instances outside the default registry
// so tests can inspect them without registration collisions.
func unregisteredMetrics() *metrics.Metrics {
	return &metrics.Metrics{
		FetchDur:   prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_fetch_duration_seconds"}),
		StaleFeeds: prometheus.NewCounter(prometheus.CounterOpts{Name: "test_stale_feeds_total"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_fetch_errors_total",
		}, []string{"timeframe"}),
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	pb := &dto.Metric{}
	if err := c.Write(pb); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return pb.GetCounter().GetValue()
}

func histogramSamples(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	pb := &dto.Metric{}
	if err := h.Write(pb); err != nil {
		t.Fatalf("read histogram: %v", err)
	}
	return pb.GetHistogram().GetSampleCount()
}

func TestBuildRow_ObservesEveryFetch(t *testing.T) {
	src := &fakeSource{
		byTimeframe: coarseFixtures(),
		baseBySym:   map[string]model.Series{"HUSDT": boomedBase()},
	}
	prom := unregisteredMetrics()
	pipeline, err := NewPipeline(src, nil, "5m", testStrategy(), prom)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	if _, err := pipeline.BuildRow(context.Background(), "HUSDT", t0.Add(200*time.Minute)); err != nil {
		t.Fatalf("BuildRow: %v", err)
	}

	// One REST fetch per distinct timeframe: 5m base, 4h (shared by
	// EMA/RSI/ADX), 1h ATR, 1d structural.
	if got := histogramSamples(t, prom.FetchDur); got != 4 {
		t.Errorf("fetch duration samples = %d, want 4", got)
	}
	if got := counterValue(t, prom.StaleFeeds); got != 0 {
		t.Errorf("stale feed fallbacks = %v, want 0 without a feed", got)
	}
}

func TestBuildRow_FetchErrorCarriesFailingTimeframe(t *testing.T) {
	src := &fakeSource{
		byTimeframe:    coarseFixtures(),
		baseBySym:      map[string]model.Series{"HUSDT": boomedBase()},
		failTimeframes: map[string]bool{"4h": true},
	}
	prom := unregisteredMetrics()
	pipeline, err := NewPipeline(src, nil, "5m", testStrategy(), prom)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	if _, err := pipeline.BuildRow(context.Background(), "HUSDT", t0.Add(200*time.Minute)); err == nil {
		t.Fatal("expected error when the 4h fetch fails")
	}

	if got := counterValue(t, prom.FetchErrors.WithLabelValues("4h")); got != 1 {
		t.Errorf("fetch errors labeled 4h = %v, want 1", got)
	}
	if got := counterValue(t, prom.FetchErrors.WithLabelValues("5m")); got != 0 {
		t.Errorf("fetch errors labeled 5m = %v, want 0", got)
	}
}

func TestFetchBase_ColdFeedFallsBackToRest(t *testing.T) {
	src := &fakeSource{
		byTimeframe: coarseFixtures(),
		baseBySym:   map[string]model.Series{"HUSDT": boomedBase()},
	}
	// A feed that never connected has no bars, so every read misses.
	feed, err := source.NewFeed(source.FeedConfig{Timeframe: "5m", Symbols: []string{"HUSDT"}})
	if err != nil {
		t.Fatalf("NewFeed: %v", err)
	}
	prom := unregisteredMetrics()
	pipeline, err := NewPipeline(src, feed, "5m", testStrategy(), prom)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	row, err := pipeline.BuildRow(context.Background(), "HUSDT", t0.Add(200*time.Minute))
	if err != nil {
		t.Fatalf("BuildRow: %v", err)
	}
	if row.Close != 113 {
		t.Errorf("row.Close = %v, want the REST series", row.Close)
	}
	if got := counterValue(t, prom.StaleFeeds); got != 1 {
		t.Errorf("stale feed fallbacks = %v, want 1", got)
	}
}
