// Package replay provides a SQLite-backed tick store used both to record
// a live run and to replay it later as a model.TickSource for backtesting
// (cmd/backtest), grounded on the teacher's internal/store/sqlite writer
// (batched transactional inserts) and internal/marketdata/replay.Replayer
// (paced playback).
package replay

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"signalcore/internal/metrics"
	"signalcore/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// StoreConfig configures the SQLite-backed tick store.
type StoreConfig struct {
	DBPath     string
	Instrument string
}

// Store is a single-writer SQLite recorder of ticks. cmd/pipeline feeds it
// ticks as the feed delivers them, before validation.
type Store struct {
	db         *sql.DB
	instrument string
	m          *metrics.Metrics
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// NewStore opens (creating if absent) the SQLite database at cfg.DBPath in
// WAL mode and ensures the tick schema exists.
func NewStore(cfg StoreConfig, m *metrics.Metrics) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[replay] opened tick store at %s", cfg.DBPath)
	return &Store{db: db, instrument: cfg.Instrument, m: m}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ticks (
			instrument TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			price      REAL    NOT NULL,
			volume     REAL    NOT NULL,
			PRIMARY KEY (instrument, ts)
		);
	`)
	return err
}

// Run drains tickCh, batching inserts every defaultBatchSize ticks or
// defaultFlushDelay, whichever comes first. Blocks until ctx is cancelled
// or tickCh is closed.
func (s *Store) Run(ctx context.Context, tickCh <-chan model.Tick) {
	batch := make([]model.Tick, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := s.insertBatch(batch); err != nil {
			log.Printf("[replay] batch insert error: %v", err)
		} else if s.m != nil {
			s.m.SQLiteCommitDur.Observe(time.Since(start).Seconds())
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case t, ok := <-tickCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, t)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

func (s *Store) insertBatch(ticks []model.Tick) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO ticks (instrument, ts, price, volume) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, t := range ticks {
		if _, err := stmt.Exec(s.instrument, t.TS, t.Price, t.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// ReadAll returns every stored tick for the store's instrument at or after
// fromTS (0 = all), ordered ascending by timestamp.
func (s *Store) ReadAll(fromTS int64) ([]model.Tick, error) {
	rows, err := s.db.Query(
		`SELECT ts, price, volume FROM ticks WHERE instrument = ? AND ts >= ? ORDER BY ts ASC`,
		s.instrument, fromTS,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Tick
	for rows.Next() {
		var t model.Tick
		if err := rows.Scan(&t.TS, &t.Price, &t.Volume); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
