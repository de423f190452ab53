// cmd/backtest replays a prior SQLite tick recording (internal/replay.Store)
// back through the full pipeline at an accelerated pace, to validate signal
// sources and fusion tuning without live market data.
//
// Usage:
//
//	go run ./cmd/backtest --config=config.yaml --speed=100 --from=0
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"signalcore/internal/config"
	"signalcore/internal/logger"
	"signalcore/internal/model"
	"signalcore/internal/pipeline"
	"signalcore/internal/replay"
	"signalcore/internal/ring"
	"signalcore/internal/signalsource"
)

// countingEmitter tallies emissions by kind instead of publishing anywhere;
// a backtest run has no live dashboard or Redis sink to serve.
type countingEmitter struct {
	counts map[model.Kind]int
}

func (c *countingEmitter) Emit(e model.Event) {
	if c.counts == nil {
		c.counts = make(map[model.Kind]int)
	}
	c.counts[e.Kind]++
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	configPath := flag.String("config", "config.yaml", "path to pipeline config")
	speed := flag.Float64("speed", 0, "playback speed multiplier (0 = as fast as possible)")
	fromTS := flag.Int64("from", 0, "unix ms timestamp to start replay from (0 = all)")
	dbPath := flag.String("db", "", "path to the recorded tick SQLite database (overrides config's sqlite_path)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[backtest] config load failed: %v", err)
	}
	slogLogger := logger.Init("backtest", slog.LevelWarn)

	sqlitePath := cfg.SQLitePath
	if *dbPath != "" {
		sqlitePath = *dbPath
	}

	store, err := replay.NewStore(replay.StoreConfig{DBPath: sqlitePath, Instrument: cfg.Instrument}, nil)
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer store.Close()

	replaySpeed := *speed
	if replaySpeed == 0 {
		replaySpeed = 1e9 // effectively unpaced
	}
	replayer, err := replay.NewReplayer(store, *fromTS, replaySpeed)
	if err != nil {
		log.Fatalf("[backtest] replayer init failed: %v", err)
	}
	defer replayer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	ringStore := ring.New(cfg.RingCapacity)
	sources := []model.SignalSource{
		signalsource.NewKalmanDirectionalSource(1.0),
		signalsource.NewTechnicalSource(ringStore, 9, 21, true, 14),
	}
	emitter := &countingEmitter{}

	p, err := pipeline.New(cfg, ringStore, sources, emitter, nil, slogLogger)
	if err != nil {
		log.Fatalf("[backtest] pipeline construction failed: %v", err)
	}

	remaining := replayer.Remaining()
	log.Printf("[backtest] replaying %d recorded ticks at speed=%.1f", remaining, replaySpeed)

	if err := p.Run(ctx, replayer); err != nil {
		log.Printf("[backtest] run error: %v", err)
	}

	fmt.Println()
	fmt.Println("backtest complete")
	fmt.Printf("  ticks replayed:    %d\n", remaining-replayer.Remaining())
	for _, kind := range []model.Kind{
		model.KindCandleClosed, model.KindCandleGap, model.KindFilterReset,
		model.KindFusedDecision, model.KindTrigger,
	} {
		fmt.Printf("  %-16s %d\n", kind, emitter.counts[kind])
	}
}
