package wsfeed

import "testing"

func TestMaintenanceCalendar_CoversWindow(t *testing.T) {
	c := NewMaintenanceCalendar([]Window{
		{StartMs: 1000, EndMs: 2000, Reason: "scheduled upgrade"},
	})

	if reason, ok := c.Covers(1500); !ok || reason != "scheduled upgrade" {
		t.Fatalf("expected covered with reason, got %q, %v", reason, ok)
	}
	if _, ok := c.Covers(2000); ok {
		t.Fatalf("end boundary should be exclusive")
	}
	if _, ok := c.Covers(500); ok {
		t.Fatalf("timestamp before any window should not be covered")
	}
}

func TestDefaultJSONParser_ExtractsTrade(t *testing.T) {
	raw := []byte(`{"type":"trade","ts_ms":1000,"price":42.5,"volume":1.2}`)
	tick, ok, err := DefaultJSONParser(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true for a trade message")
	}
	if tick.TS != 1000 || tick.Price != 42.5 || tick.Volume != 1.2 {
		t.Fatalf("unexpected tick: %+v", tick)
	}
}

func TestDefaultJSONParser_SkipsNonTradeMessages(t *testing.T) {
	raw := []byte(`{"type":"heartbeat"}`)
	_, ok, err := DefaultJSONParser(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for a non-trade message")
	}
}

func TestDefaultJSONParser_RejectsMalformedJSON(t *testing.T) {
	if _, _, err := DefaultJSONParser([]byte(`not json`)); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}
