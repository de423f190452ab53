// cmd/broadcast is a satellite process: it tails internal/publisher's Redis
// Streams and re-serves every emission over WebSocket to dashboard clients
// via internal/broadcast.Hub.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/go-redis/redis/v8"

	"signalcore/internal/broadcast"
	"signalcore/internal/config"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	configPath := flag.String("config", "config.yaml", "path to pipeline config")
	addr := flag.String("addr", "", "WS listen address (overrides config's broadcast_addr if set)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[broadcast] config load failed: %v", err)
	}
	listenAddr := cfg.BroadcastAddr
	if *addr != "" {
		listenAddr = *addr
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
	defer rdb.Close()

	timeframes := make([]string, len(cfg.Timeframes))
	for i, tf := range cfg.Timeframes {
		timeframes[i] = tf.Label
	}

	hub := broadcast.NewHub()
	sub := broadcast.NewSubscriber(rdb, hub, cfg.Instrument, timeframes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := sub.Run(ctx); err != nil {
			log.Printf("[broadcast] subscriber stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: listenAddr, Handler: mux}

	go func() {
		log.Printf("[broadcast] WS dashboard hub on %s (/ws)", listenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[broadcast] http server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[broadcast] shutdown signal received")
	cancel()
	srv.Close()
	log.Println("[broadcast] shutdown complete.")
}
