package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the scanner.
type Metrics struct {
	CyclesTotal   prometheus.Counter
	CycleDur      prometheus.Histogram
	CycleOverruns prometheus.Counter

	SymbolsEvaluated *prometheus.CounterVec // labels: outcome
	SignalsRaised    *prometheus.CounterVec // labels: actionable
	CooldownSkips    prometheus.Counter

	FetchErrors  *prometheus.CounterVec // labels: timeframe
	FetchDur     prometheus.Histogram
	StaleFeeds   prometheus.Counter
	WSReconnects prometheus.Counter

	CooldownSaveDur prometheus.Histogram
	NotifyFailures  prometheus.Counter

	LastCycleUnix prometheus.Gauge
	WatchedSyms   prometheus.Gauge
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scout_cycles_total",
			Help: "Total scan cycles completed",
		}),
		CycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scout_cycle_duration_seconds",
			Help:    "Scan cycle wall time",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		CycleOverruns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scout_cycle_overruns_total",
			Help: "Cycles skipped because the previous cycle was still running",
		}),

		SymbolsEvaluated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scout_symbols_evaluated_total",
			Help: "Symbol evaluations by outcome",
		}, []string{"outcome"}),
		SignalsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scout_signals_raised_total",
			Help: "Short signals raised (actionable=true|false)",
		}, []string{"actionable"}),
		CooldownSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scout_cooldown_skips_total",
			Help: "Symbols skipped because a cooldown was active",
		}),

		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scout_fetch_errors_total",
			Help: "Candle fetch failures by timeframe",
		}, []string{"timeframe"}),
		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scout_fetch_duration_seconds",
			Help:    "Candle fetch latency per request",
			Buckets: prometheus.DefBuckets,
		}),
		StaleFeeds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scout_stale_feeds_total",
			Help: "Live feed reads rejected as stale, falling back to REST",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scout_ws_reconnects_total",
			Help: "Total kline WebSocket reconnection attempts",
		}),

		CooldownSaveDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scout_cooldown_save_duration_seconds",
			Help:    "Cooldown store save latency",
			Buckets: prometheus.DefBuckets,
		}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scout_notify_failures_total",
			Help: "Alert deliveries that returned an error",
		}),

		LastCycleUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scout_last_cycle_timestamp_seconds",
			Help: "Unix time the last cycle finished",
		}),
		WatchedSyms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scout_watched_symbols",
			Help: "Number of symbols in the scan universe",
		}),
	}

	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleDur,
		m.CycleOverruns,
		m.SymbolsEvaluated,
		m.SignalsRaised,
		m.CooldownSkips,
		m.FetchErrors,
		m.FetchDur,
		m.StaleFeeds,
		m.WSReconnects,
		m.CooldownSaveDur,
		m.NotifyFailures,
		m.LastCycleUnix,
		m.WatchedSyms,
	)

	return m
}

// HealthStatus represents the scanner's health.
type HealthStatus struct {
	mu sync.RWMutex

	LastCycleTime time.Time `json:"last_cycle_time"`
	StoreOK       bool      `json:"store_ok"`
	FeedConnected bool      `json:"feed_connected"`
	SymbolCount   int       `json:"symbol_count"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetLastCycleTime(t time.Time) {
	h.mu.Lock()
	h.LastCycleTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetStoreOK(v bool) {
	h.mu.Lock()
	h.StoreOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSymbolCount(n int) {
	h.mu.Lock()
	h.SymbolCount = n
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.StoreOK = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.StoreOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic cooldown store checks. Only the
// backend actually in use is probed; pass nil for the other.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.StoreOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	// A scanner that has not completed a cycle in a long while is stuck.
	cycleAge := ""
	if !h.LastCycleTime.IsZero() {
		age := time.Since(h.LastCycleTime)
		cycleAge = age.Round(time.Second).String()
		if age > time.Hour {
			overallStatus = "unhealthy"
			httpCode = http.StatusServiceUnavailable
		}
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		LastCycleTime   string  `json:"last_cycle_time"`
		CycleAge        string  `json:"cycle_age"`
		StoreOK         bool    `json:"store_ok"`
		FeedConnected   bool    `json:"feed_connected"`
		SymbolCount     int     `json:"symbol_count"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		LastCycleTime:   h.LastCycleTime.Format(time.RFC3339),
		CycleAge:        cycleAge,
		StoreOK:         h.StoreOK,
		FeedConnected:   h.FeedConnected,
		SymbolCount:     h.SymbolCount,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
