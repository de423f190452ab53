// cmd/pipeline runs the live signal pipeline: a wsfeed trade stream drives
// the pipeline's critical path, emissions go out to Redis Streams via
// internal/publisher, and delivered ticks are journaled to SQLite via
// internal/replay.Store so cmd/backtest can replay this run later (a tick
// is left out of the journal when the recording channel is full).
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"signalcore/internal/api"
	"signalcore/internal/config"
	"signalcore/internal/logger"
	"signalcore/internal/metrics"
	"signalcore/internal/model"
	"signalcore/internal/pipeline"
	"signalcore/internal/publisher"
	"signalcore/internal/replay"
	"signalcore/internal/ring"
	"signalcore/internal/signalsource"
	"signalcore/internal/wsfeed"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	configPath := flag.String("config", "config.yaml", "path to pipeline config")
	wsURL := flag.String("ws-url", "", "trade WebSocket URL (overrides config if set)")
	httpAddr := flag.String("http-addr", ":8090", "operational HTTP API address (health/reload/trades)")
	flag.Parse()

	slogLogger := logger.Init("pipeline", slog.LevelInfo)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[pipeline] config load failed: %v", err)
	}

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Redis publisher ----
	writer, err := publisher.New(publisher.WriterConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		Instrument: cfg.Instrument,
	})
	if err != nil {
		log.Fatalf("[pipeline] redis publisher init failed: %v", err)
	}
	pub := publisher.NewPublisher(ctx, writer, 5, 30*time.Second, 10000, prom)
	defer pub.Close()
	health.SetSinkConnected(true)

	// ---- SQLite tick journal, for cmd/backtest to replay later ----
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		log.Fatalf("[pipeline] sqlite dir create failed: %v", err)
	}
	store, err := replay.NewStore(replay.StoreConfig{DBPath: cfg.SQLitePath, Instrument: cfg.Instrument}, prom)
	if err != nil {
		log.Fatalf("[pipeline] sqlite store init failed: %v", err)
	}
	defer store.Close()

	tickRecordCh := make(chan model.Tick, 4096)
	go store.Run(ctx, tickRecordCh)

	// ---- Signal sources ----
	// ringStore is shared with the pipeline itself: TechnicalSource reads
	// its SMA windows straight out of the same closed-candle history the
	// pipeline's critical path is writing, instead of keeping its own copy.
	ringStore := ring.New(cfg.RingCapacity)
	sources := []model.SignalSource{
		signalsource.NewKalmanDirectionalSource(1.0),
		signalsource.NewTechnicalSource(ringStore, 9, 21, true, 14),
	}

	p, err := pipeline.New(cfg, ringStore, sources, pub, nil, slogLogger)
	if err != nil {
		log.Fatalf("[pipeline] construction failed: %v", err)
	}
	p = p.WithMetrics(prom)

	// ---- Trade feed ----
	wsfeedURL := cfg.WSFeedURL
	if *wsURL != "" {
		wsfeedURL = *wsURL
	}
	var subscribeMsg any
	if cfg.WSFeedSession != nil {
		session, err := wsfeed.Login(*cfg.WSFeedSession)
		if err != nil {
			log.Fatalf("[pipeline] venue login failed: %v", err)
		}
		subscribeMsg = map[string]string{"auth_token": session.AuthToken, "feed_token": session.FeedToken}
	}

	feed := wsfeed.New(wsfeed.Config{URL: wsfeedURL, Parser: wsfeed.DefaultJSONParser, SubscribeMessage: subscribeMsg}, prom)
	defer feed.Close()
	go feed.Run(ctx)
	src := &recordingSource{inner: feed, record: tickRecordCh}

	// ---- Operational HTTP API ----
	timeframes := make([]string, len(cfg.Timeframes))
	for i, tf := range cfg.Timeframes {
		timeframes[i] = tf.Label
	}
	router := api.NewRouter(nil, nil, p, timeframes)
	httpSrv := &http.Server{Addr: *httpAddr, Handler: router}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[pipeline] http server error: %v", err)
		}
	}()

	health.SetSourceConnected(true)
	go health.StartLivenessChecker(ctx, writer.Client(), store.DB(), 10*time.Second)

	log.Println("[pipeline] running")

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, src) }()

	select {
	case <-sigCh:
		log.Println("[pipeline] shutdown signal received")
	case err := <-done:
		if err != nil {
			log.Printf("[pipeline] run error: %v", err)
		}
	}

	cancel()
	close(tickRecordCh)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	httpSrv.Shutdown(shutdownCtx)

	log.Println("[pipeline] shutdown complete.")
}

// recordingSource wraps a TickSource and copies each delivered tick into
// record for the SQLite journal with a non-blocking send: when record is
// full the tick is not journaled. The pipeline's own single-consumer read
// of the underlying source is unaffected either way.
type recordingSource struct {
	inner  model.TickSource
	record chan<- model.Tick
}

func (r *recordingSource) Next(ctx context.Context) (model.Tick, error) {
	t, err := r.inner.Next(ctx)
	if err != nil {
		return t, err
	}
	select {
	case r.record <- t:
	default:
	}
	return t, nil
}

func (r *recordingSource) Close() error { return r.inner.Close() }
