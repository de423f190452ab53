package broadcast

import (
	"encoding/json"
	"testing"

	"signalcore/internal/model"
)

func TestParseKindFilter_Empty(t *testing.T) {
	if f := parseKindFilter(""); f != nil {
		t.Fatalf("expected nil filter for empty string, got %v", f)
	}
}

func TestParseKindFilter_SplitsOnComma(t *testing.T) {
	f := parseKindFilter("trigger,fused_decision")
	if len(f) != 2 || !f[model.KindTrigger] || !f[model.KindFusedDecision] {
		t.Fatalf("unexpected filter: %v", f)
	}
}

func TestParseKindFilter_IgnoresTrailingComma(t *testing.T) {
	f := parseKindFilter("trigger,")
	if len(f) != 1 || !f[model.KindTrigger] {
		t.Fatalf("unexpected filter: %v", f)
	}
}

func TestHub_EmitRecordsLatestPerKind(t *testing.T) {
	h := NewHub()
	evt := model.Event{Kind: model.KindTrigger, Trigger: &model.Trigger{Action: model.ActionEnterLong}}
	h.Emit(evt)

	h.mu.RLock()
	entry, ok := h.latest[model.KindTrigger]
	h.mu.RUnlock()
	if !ok {
		t.Fatal("expected trigger kind recorded in latest map")
	}

	var decoded model.Trigger
	if err := json.Unmarshal(entry.data, &decoded); err != nil {
		t.Fatalf("latest entry isn't valid JSON for the event's payload: %v", err)
	}
	if decoded.Action != model.ActionEnterLong {
		t.Fatalf("action: got %v, want %v", decoded.Action, model.ActionEnterLong)
	}
}

func TestHub_EmitDeliversToSubscribedClientOnly(t *testing.T) {
	h := NewHub()

	subscribed := &client{send: make(chan []byte, 4), kinds: map[model.Kind]bool{model.KindTrigger: true}}
	unsubscribed := &client{send: make(chan []byte, 4), kinds: map[model.Kind]bool{model.KindCandleGap: true}}
	catchAll := &client{send: make(chan []byte, 4)}

	h.clients[subscribed] = true
	h.clients[unsubscribed] = true
	h.clients[catchAll] = true

	h.Emit(model.Event{Kind: model.KindTrigger, Trigger: &model.Trigger{Action: model.ActionExit}})

	if len(subscribed.send) != 1 {
		t.Errorf("subscribed client: got %d queued messages, want 1", len(subscribed.send))
	}
	if len(unsubscribed.send) != 0 {
		t.Errorf("unsubscribed client: got %d queued messages, want 0", len(unsubscribed.send))
	}
	if len(catchAll.send) != 1 {
		t.Errorf("catch-all client: got %d queued messages, want 1", len(catchAll.send))
	}
}

func TestHub_EmitDropsAndCountsOnFullClientBuffer(t *testing.T) {
	h := NewHub()
	dropped := 0
	h.OnDrop(func() { dropped++ })

	c := &client{send: make(chan []byte, 1)}
	h.clients[c] = true

	h.Emit(model.Event{Kind: model.KindTrigger, Trigger: &model.Trigger{Action: model.ActionHold}})
	h.Emit(model.Event{Kind: model.KindTrigger, Trigger: &model.Trigger{Action: model.ActionHold}})

	if dropped != 1 {
		t.Fatalf("expected exactly one dropped message, got %d", dropped)
	}
}

func TestHub_ClientCount(t *testing.T) {
	h := NewHub()
	if h.ClientCount() != 0 {
		t.Fatalf("expected 0 clients on a fresh hub")
	}
	h.clients[&client{send: make(chan []byte, 1)}] = true
	if h.ClientCount() != 1 {
		t.Fatalf("expected 1 client after registering one")
	}
}
