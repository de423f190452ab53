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

// Metrics holds all Prometheus metrics for the signal pipeline.
type Metrics struct {
	TicksAccepted   prometheus.Counter
	TicksRejected   *prometheus.CounterVec // labels: kind
	SourceReconnect prometheus.Counter

	CandlesClosed *prometheus.CounterVec // labels: tf
	CandleGaps    *prometheus.CounterVec // labels: tf
	TickProcessDur prometheus.Histogram

	// Kalman Bank metrics
	FilterResets    *prometheus.CounterVec // labels: tf
	FilterConfidence *prometheus.GaugeVec  // labels: tf
	FilterVelocity  *prometheus.GaugeVec   // labels: tf
	BankCoherence   prometheus.Gauge

	// Fusion Engine metrics
	FusedConfidence prometheus.Gauge
	FusedMagnitude  prometheus.Gauge
	TriggersTotal   *prometheus.CounterVec // labels: action

	// Ring store
	RingEvictions prometheus.Counter

	// Publisher / broadcast backpressure
	PublisherDropped     *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec    // labels: channel_name

	// Publisher circuit breaker (Redis Streams)
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites     prometheus.Counter
	RedisWriteDur           prometheus.Histogram

	// Replay (SQLite) commit latency
	SQLiteCommitDur prometheus.Histogram

	// Order sink outcomes
	SinkErrorsTotal *prometheus.CounterVec // labels: kind (transient|permanent)

	// End-to-end observability: tick ingest to trigger emit
	E2ELatency prometheus.Histogram
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcore_ticks_accepted_total",
			Help: "Total ticks accepted by the tick validator",
		}),
		TicksRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalcore_ticks_rejected_total",
			Help: "Total ticks rejected by the tick validator, by reason",
		}, []string{"kind"}),
		SourceReconnect: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcore_source_reconnects_total",
			Help: "Total TickSource WebSocket reconnection attempts",
		}),

		CandlesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalcore_candles_closed_total",
			Help: "Total finalised candles, by timeframe",
		}, []string{"tf"}),
		CandleGaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalcore_candle_gaps_total",
			Help: "Total detected boundary gaps, by timeframe",
		}, []string{"tf"}),
		TickProcessDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalcore_tick_process_duration_seconds",
			Help:    "Wall-clock duration of one ProcessTick call",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),

		FilterResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalcore_filter_resets_total",
			Help: "Total Kalman filter reinitialisations, by timeframe",
		}, []string{"tf"}),
		FilterConfidence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalcore_filter_confidence",
			Help: "Most recent Kalman filter confidence, by timeframe",
		}, []string{"tf"}),
		FilterVelocity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalcore_filter_velocity",
			Help: "Most recent Kalman filter velocity estimate, by timeframe",
		}, []string{"tf"}),
		BankCoherence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalcore_bank_coherence",
			Help: "Most recent cross-timeframe directional coherence",
		}),

		FusedConfidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalcore_fused_confidence",
			Help: "Most recent fused decision confidence",
		}),
		FusedMagnitude: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalcore_fused_magnitude",
			Help: "Most recent fused decision magnitude",
		}),
		TriggersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalcore_triggers_total",
			Help: "Total triggers emitted, by action",
		}, []string{"action"}),

		RingEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcore_ring_evictions_total",
			Help: "Total oldest-candle evictions across all timeframe ring stores",
		}),

		PublisherDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalcore_publisher_dropped_total",
			Help: "Emissions dropped by a saturated subscriber, by subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalcore_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalcore_redis_circuit_breaker_state",
			Help: "Publisher circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcore_redis_circuit_breaker_trips_total",
			Help: "Times the publisher's Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcore_redis_buffered_writes_total",
			Help: "Emissions buffered locally while the Redis circuit breaker is open",
		}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalcore_redis_write_duration_seconds",
			Help:    "Redis Streams XADD latency",
			Buckets: prometheus.DefBuckets,
		}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalcore_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency for the replay store",
			Buckets: prometheus.DefBuckets,
		}),

		SinkErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalcore_sink_errors_total",
			Help: "Total OrderSink errors, by classification",
		}, []string{"kind"}),

		E2ELatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalcore_e2e_latency_seconds",
			Help:    "End-to-end latency from tick ingest to trigger emission",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
	}

	prometheus.MustRegister(
		m.TicksAccepted,
		m.TicksRejected,
		m.SourceReconnect,
		m.CandlesClosed,
		m.CandleGaps,
		m.TickProcessDur,
		m.FilterResets,
		m.FilterConfidence,
		m.FilterVelocity,
		m.BankCoherence,
		m.FusedConfidence,
		m.FusedMagnitude,
		m.TriggersTotal,
		m.RingEvictions,
		m.PublisherDropped,
		m.ChannelSaturationPct,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.SinkErrorsTotal,
		m.E2ELatency,
	)

	return m
}

// HealthStatus represents liveness of the pipeline and its collaborators.
type HealthStatus struct {
	mu sync.RWMutex

	SourceConnected bool      `json:"source_connected"`
	LastTickTime    time.Time `json:"last_tick_time"`
	RedisConnected  bool      `json:"redis_connected"`
	SQLiteOK        bool      `json:"sqlite_ok"`
	SinkConnected   bool      `json:"sink_connected"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetSourceConnected(v bool) {
	h.mu.Lock()
	h.SourceConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetSinkConnected(v bool) {
	h.mu.Lock()
	h.SinkConnected = v
	h.mu.Unlock()
}

// CheckRedis pings the publisher's Redis client and records latency.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query against the replay store and records
// latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks in the background.
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

	if !h.SourceConnected {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		SourceConnected bool    `json:"source_connected"`
		TickAge         string  `json:"tick_age"`
		SinkConnected   bool    `json:"sink_connected"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		SourceConnected: h.SourceConnected,
		TickAge:         tickAge,
		SinkConnected:   h.SinkConnected,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
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
