package execution

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"signalcore/internal/model"
)

// Fill is a simulated execution of one Trigger.
type Fill struct {
	OrderID   string        `json:"order_id"`
	Trigger   model.Trigger `json:"trigger"`
	FillPrice float64       `json:"fill_price"`
	FilledAt  time.Time     `json:"filled_at"`
	Slippage  float64       `json:"slippage"`
}

// PaperExecutor implements model.OrderSink without placing any real order.
// Every Trigger is filled synchronously at PriceRef adjusted by simulated
// slippage; ActionHold is ignored (no fill, nothing recorded).
type PaperExecutor struct {
	mu          sync.RWMutex
	fills       []Fill
	orderSeq    int64
	slippageBps float64
	journal     *Journal
}

// NewPaperExecutor creates a paper trading sink. journal may be nil, in
// which case fills are kept in memory only. slippageBps is basis points of
// simulated slippage applied against PriceRef (e.g. 5 = 0.05%).
func NewPaperExecutor(slippageBps float64, journal *Journal) *PaperExecutor {
	return &PaperExecutor{
		fills:       make([]Fill, 0, 1024),
		slippageBps: slippageBps,
		journal:     journal,
	}
}

// Submit implements model.OrderSink.
func (p *PaperExecutor) Submit(ctx context.Context, t model.Trigger) error {
	if t.Action == model.ActionHold {
		return nil
	}

	p.mu.Lock()
	p.orderSeq++
	orderID := fmt.Sprintf("PAPER-%d", p.orderSeq)

	slippage := 0.0
	fillPrice := t.PriceRef
	if fillPrice > 0 && p.slippageBps > 0 {
		slippage = fillPrice * p.slippageBps / 10000
		if t.Action == model.ActionEnterLong {
			fillPrice += slippage
		} else {
			fillPrice -= slippage
		}
	}

	fill := Fill{
		OrderID:   orderID,
		Trigger:   t,
		FillPrice: fillPrice,
		FilledAt:  time.Now().UTC(),
		Slippage:  slippage,
	}
	p.fills = append(p.fills, fill)
	p.mu.Unlock()

	log.Printf("[execution] %s filled order=%s price=%.4f slip=%.4f size_frac=%.4f",
		t.Action, orderID, fillPrice, slippage, t.SizeFrac)

	if p.journal != nil {
		if err := p.journal.RecordFill(fill); err != nil {
			return &model.SinkError{Kind: model.SinkTransient, Err: fmt.Errorf("journal write: %w", err)}
		}
	}
	return nil
}

// Close implements model.OrderSink.
func (p *PaperExecutor) Close() error {
	if p.journal != nil {
		return p.journal.Close()
	}
	return nil
}

// Fills returns a snapshot of every fill recorded so far.
func (p *PaperExecutor) Fills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}
