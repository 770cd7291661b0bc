package events

import (
	"testing"
	"time"

	"binary-core/internal/session"
)

func TestPublisherReachesSubscriber(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(All, 4)
	defer unsub()

	pub := Publisher{Bus: bus}
	pub.OnTrade(session.TradeRecord{SessionID: "s1", Profit: 0.88})
	pub.OnRelease(session.Release{SessionID: "s1", Reason: "timeout"})

	want := []Event{EventTradeSettled, EventContractRelease}
	for _, w := range want {
		select {
		case env := <-ch:
			if env.Type != w || env.SessionID != "s1" {
				t.Fatalf("envelope=%+v, expected %s for s1", env, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("no envelope for %s", w)
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	bus := NewBus()
	_, unsub := bus.Subscribe([]Event{EventTradeSettled}, 1)
	bus.Publish(EventTradeSettled, "s1", nil)
	bus.Publish(EventTradeSettled, "s1", nil)
	if got := bus.Dropped(); got != 1 {
		t.Fatalf("Dropped=%d, expected 1", got)
	}

	unsub()
	unsub()
	bus.Publish(EventTradeSettled, "s1", nil)
	if got := bus.Dropped(); got != 1 {
		t.Fatalf("Dropped=%d after unsubscribe, expected 1", got)
	}
}
