package replay

import (
	"context"
	"testing"

	"signalcore/internal/model"
)

func TestReplayer_DeliversTicksInOrder(t *testing.T) {
	r := &Replayer{
		ticks: []model.Tick{
			{TS: 1000, Price: 10, Volume: 1},
			{TS: 2000, Price: 11, Volume: 1},
			{TS: 3000, Price: 12, Volume: 1},
		},
		speed: 0, // as fast as possible, no simulated gaps
	}

	ctx := context.Background()
	for i, want := range r.ticks {
		got, err := r.Next(ctx)
		if err != nil {
			t.Fatalf("tick %d: unexpected error %v", i, err)
		}
		if got != want {
			t.Fatalf("tick %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestReplayer_ReturnsErrSourceClosedWhenExhausted(t *testing.T) {
	r := &Replayer{ticks: []model.Tick{{TS: 1000, Price: 10, Volume: 1}}}
	ctx := context.Background()

	if _, err := r.Next(ctx); err != nil {
		t.Fatalf("unexpected error on first tick: %v", err)
	}
	if _, err := r.Next(ctx); err != model.ErrSourceClosed {
		t.Fatalf("expected ErrSourceClosed, got %v", err)
	}
}

func TestReplayer_RespectsContextCancellationDuringPacedWait(t *testing.T) {
	r := &Replayer{
		ticks: []model.Tick{
			{TS: 0, Price: 10, Volume: 1},
			{TS: 60000, Price: 11, Volume: 1}, // 60s gap
		},
		speed: 1.0,
	}

	ctx := context.Background()
	if _, err := r.Next(ctx); err != nil {
		t.Fatalf("unexpected error on first tick: %v", err)
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Next(cancelCtx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestReplayer_RemainingCounts(t *testing.T) {
	r := &Replayer{ticks: make([]model.Tick, 5)}
	if got := r.Remaining(); got != 5 {
		t.Fatalf("expected 5 remaining, got %d", got)
	}
	r.Next(context.Background())
	if got := r.Remaining(); got != 4 {
		t.Fatalf("expected 4 remaining after one Next, got %d", got)
	}
}
