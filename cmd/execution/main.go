// cmd/execution is a satellite process: it tails internal/publisher's
// trigger stream and runs every Trigger through a PaperExecutor, journaling
// fills to SQLite. Kept out of cmd/pipeline's process so a broker-backed
// executor can replace PaperExecutor later without touching the critical
// path.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"signalcore/internal/execution"
	"signalcore/internal/model"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	redisAddr := flag.String("redis-addr", "localhost:6379", "redis address")
	redisPassword := flag.String("redis-password", "", "redis password")
	instrument := flag.String("instrument", "", "instrument whose trigger stream to consume")
	journalPath := flag.String("journal", "data/trades.db", "sqlite trade journal path")
	slippageBps := flag.Float64("slippage-bps", 5, "simulated fill slippage in basis points")
	flag.Parse()

	if *instrument == "" {
		log.Fatal("[execution] -instrument is required")
	}

	journal, err := execution.NewJournal(*journalPath)
	if err != nil {
		log.Fatalf("[execution] journal init failed: %v", err)
	}
	defer journal.Close()

	executor := execution.NewPaperExecutor(*slippageBps, journal)

	rdb := goredis.NewClient(&goredis.Options{Addr: *redisAddr, Password: *redisPassword})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	stream := "signalcore:trigger:" + *instrument
	log.Printf("[execution] tailing %s", stream)
	lastID := "$"

	for ctx.Err() == nil {
		res, err := rdb.XRead(ctx, &goredis.XReadArgs{
			Streams: []string{stream, lastID},
			Block:   2 * time.Second,
			Count:   100,
		}).Result()
		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			log.Printf("[execution] xread error: %v", err)
			time.Sleep(time.Second)
			continue
		}

		for _, streamResult := range res {
			for _, msg := range streamResult.Messages {
				lastID = msg.ID
				raw, ok := msg.Values["data"].(string)
				if !ok {
					continue
				}
				var trig model.Trigger
				if err := json.Unmarshal([]byte(raw), &trig); err != nil {
					log.Printf("[execution] skipping malformed trigger: %v", err)
					continue
				}
				if err := executor.Submit(ctx, trig); err != nil {
					log.Printf("[execution] submit failed: %v", err)
				}
			}
		}
	}

	log.Println("[execution] shutdown complete.")
}
