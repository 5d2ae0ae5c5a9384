package events

import "testing"

type captureEmitter struct {
	got []*Event
}

func (c *captureEmitter) Emit(evt *Event) { c.got = append(c.got, evt) }

func TestFanoutBroadcastsInOrder(t *testing.T) {
	first := &captureEmitter{}
	second := &captureEmitter{}
	fanout := Fanout{first, nil, second}

	evt := &Event{Type: "escrow.trade.created", Attributes: map[string]string{"tradeId": "1"}}
	fanout.Emit(evt)
	fanout.Emit(nil)

	if len(first.got) != 1 || len(second.got) != 1 {
		t.Fatalf("expected one delivery per emitter, got %d/%d", len(first.got), len(second.got))
	}
	if first.got[0] != evt || second.got[0] != evt {
		t.Fatalf("fanout must pass the same event through")
	}
}

func TestNoopEmitterDiscards(t *testing.T) {
	var emitter Emitter = NoopEmitter{}
	emitter.Emit(&Event{Type: "escrow.trade.created"})
	emitter.Emit(nil)
}
