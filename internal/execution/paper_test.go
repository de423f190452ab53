package execution

import (
	"context"
	"testing"

	"signalcore/internal/model"
)

func TestPaperExecutor_FillsEnterLongWithPositiveSlippage(t *testing.T) {
	p := NewPaperExecutor(10, nil) // 10bps
	trigger := model.Trigger{Action: model.ActionEnterLong, PriceRef: 100.0, SizeFrac: 0.5, TS: 1}

	if err := p.Submit(context.Background(), trigger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fills := p.Fills()
	if len(fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(fills))
	}
	if fills[0].FillPrice <= trigger.PriceRef {
		t.Errorf("enter_long fill price should be above reference price with slippage: got %f", fills[0].FillPrice)
	}
}

func TestPaperExecutor_FillsExitWithNegativeSlippage(t *testing.T) {
	p := NewPaperExecutor(10, nil)
	trigger := model.Trigger{Action: model.ActionExit, PriceRef: 100.0, TS: 1}

	if err := p.Submit(context.Background(), trigger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fills := p.Fills()
	if fills[0].FillPrice >= trigger.PriceRef {
		t.Errorf("exit fill price should be below reference price with slippage: got %f", fills[0].FillPrice)
	}
}

func TestPaperExecutor_HoldProducesNoFill(t *testing.T) {
	p := NewPaperExecutor(10, nil)
	if err := p.Submit(context.Background(), model.Trigger{Action: model.ActionHold}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Fills()) != 0 {
		t.Fatalf("expected no fill for a hold trigger")
	}
}

func TestPaperExecutor_OrderIDsAreSequential(t *testing.T) {
	p := NewPaperExecutor(0, nil)
	for i := 0; i < 3; i++ {
		if err := p.Submit(context.Background(), model.Trigger{Action: model.ActionEnterLong, PriceRef: 50}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	fills := p.Fills()
	if len(fills) != 3 {
		t.Fatalf("expected 3 fills, got %d", len(fills))
	}
	want := []string{"PAPER-1", "PAPER-2", "PAPER-3"}
	for i, f := range fills {
		if f.OrderID != want[i] {
			t.Errorf("fill %d: got order id %q, want %q", i, f.OrderID, want[i])
		}
	}
}
