package execution

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Journal persists trade fills to SQLite for analysis and audit.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id    TEXT NOT NULL,
		action      TEXT NOT NULL,
		price_ref   REAL NOT NULL,
		fill_price  REAL NOT NULL,
		stop_level  REAL,
		target_level REAL,
		size_frac   REAL NOT NULL,
		slippage    REAL DEFAULT 0,
		trigger_ts  INTEGER NOT NULL,
		filled_at   DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_action ON trades(action);
	CREATE INDEX IF NOT EXISTS idx_trades_filled_at ON trades(filled_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// RecordFill persists a fill to the journal.
func (j *Journal) RecordFill(fill Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO trades (order_id, action, price_ref, fill_price, stop_level, target_level, size_frac, slippage, trigger_ts, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fill.OrderID,
		string(fill.Trigger.Action),
		fill.Trigger.PriceRef,
		fill.FillPrice,
		fill.Trigger.StopLevel,
		fill.Trigger.TargetLevel,
		fill.Trigger.SizeFrac,
		fill.Slippage,
		fill.Trigger.TS,
		fill.FilledAt.Format(time.RFC3339),
	)
	return err
}

// TradeRecord represents a row from the trades table.
type TradeRecord struct {
	ID          int64   `json:"id"`
	OrderID     string  `json:"order_id"`
	Action      string  `json:"action"`
	PriceRef    float64 `json:"price_ref"`
	FillPrice   float64 `json:"fill_price"`
	StopLevel   float64 `json:"stop_level"`
	TargetLevel float64 `json:"target_level"`
	SizeFrac    float64 `json:"size_frac"`
	Slippage    float64 `json:"slippage"`
	TriggerTS   int64   `json:"trigger_ts"`
	FilledAt    string  `json:"filled_at"`
}

// GetTrades returns the last N trades, newest first.
func (j *Journal) GetTrades(limit int) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, order_id, action, price_ref, fill_price, stop_level, target_level, size_frac, slippage, trigger_ts, filled_at
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Action, &t.PriceRef, &t.FillPrice,
			&t.StopLevel, &t.TargetLevel, &t.SizeFrac, &t.Slippage, &t.TriggerTS, &t.FilledAt); err != nil {
			continue
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
