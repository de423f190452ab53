package ring

import (
	"testing"

	"signalcore/internal/model"
)

func candle(ts int64, close float64) model.Candle {
	return model.Candle{OpenTS: ts, Open: close, High: close, Low: close, Close: close, Closed: true}
}

func TestStore_SnapshotReturnsChronologicalOrder(t *testing.T) {
	s := New(3)
	s.PushClosed("1m", candle(0, 1))
	s.PushClosed("1m", candle(60_000, 2))
	s.PushClosed("1m", candle(120_000, 3))

	got := s.Snapshot("1m", 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(got))
	}
	for i, want := range []float64{1, 2, 3} {
		if got[i].Close != want {
			t.Fatalf("index %d: expected close %v, got %v", i, want, got[i].Close)
		}
	}
}

func TestStore_EvictsOldestWhenFull(t *testing.T) {
	s := New(2)
	s.PushClosed("1m", candle(0, 1))
	s.PushClosed("1m", candle(60_000, 2))
	s.PushClosed("1m", candle(120_000, 3)) // evicts ts=0

	if got := s.Len("1m"); got != 2 {
		t.Fatalf("expected capacity-bounded length 2, got %d", got)
	}
	got := s.Snapshot("1m", 2)
	if got[0].OpenTS != 60_000 || got[1].OpenTS != 120_000 {
		t.Fatalf("expected oldest evicted, got %+v", got)
	}
}

func TestStore_SnapshotWindowSmallerThanHistory(t *testing.T) {
	s := New(5)
	for i := int64(0); i < 5; i++ {
		s.PushClosed("1m", candle(i*60_000, float64(i)))
	}
	got := s.Snapshot("1m", 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(got))
	}
	if got[0].Close != 3 || got[1].Close != 4 {
		t.Fatalf("expected most recent 2 in order, got %+v", got)
	}
}

func TestStore_SnapshotWindowLargerThanHistoryReturnsAll(t *testing.T) {
	s := New(5)
	s.PushClosed("1m", candle(0, 1))
	got := s.Snapshot("1m", 10)
	if len(got) != 1 {
		t.Fatalf("expected 1 candle when history smaller than window, got %d", len(got))
	}
}

func TestStore_PartialIndependentPerTimeframe(t *testing.T) {
	s := New(5)
	s.SetPartial("1m", candle(0, 1))
	s.SetPartial("5m", candle(0, 2))

	p1, ok1 := s.Partial("1m")
	p5, ok5 := s.Partial("5m")
	if !ok1 || !ok5 || p1.Close == p5.Close {
		t.Fatalf("expected independent partials, got %+v %+v", p1, p5)
	}
}

func TestStore_EmptySnapshotForUnknownTimeframe(t *testing.T) {
	s := New(5)
	if got := s.Snapshot("1m", 10); got != nil {
		t.Fatalf("expected nil snapshot for unseen timeframe, got %v", got)
	}
}
