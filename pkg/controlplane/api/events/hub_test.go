package events

import (
	"testing"
	"time"

	"github.com/fmuellner/telepathy-mission-control/pkg/dispatchop"
	"github.com/fmuellner/telepathy-mission-control/pkg/registry"
)

func newTestCDO(t *testing.T) *dispatchop.CDO {
	t.Helper()
	reg := registry.New("org.example.DispatchClient")
	counter := dispatchop.NewCounter()
	ch := dispatchop.NewChannel("/org/example/Channel/1", "im", dispatchop.DirectionIncoming, nil, "/conn/1", "/org/example/Account/1", nil)
	op, err := dispatchop.New(counter, "/org/example/DispatchOperation/", []*dispatchop.Channel{ch}, false, false, []string{"org.example.DispatchClient.Handler"}, reg, nil, nil, dispatchop.NopSignalSink{}, noopExecutor{}, 0)
	if err != nil {
		t.Fatalf("failed to construct test CDO: %v", err)
	}
	return op
}

type noopExecutor struct{}

func (noopExecutor) Submit(fn func()) { fn() }

func TestHub_SubscribeReceivesChannelLost(t *testing.T) {
	hub := NewHub()
	op := newTestCDO(t)

	sub := hub.Subscribe(4)
	defer hub.Unsubscribe(sub)

	hub.ChannelLost(op, "/org/example/Channel/1", "disconnected", "connection reset")

	select {
	case e := <-sub:
		if e.Kind != KindChannelLost {
			t.Errorf("expected KindChannelLost, got %v", e.Kind)
		}
		if e.UniqueName != op.UniqueName {
			t.Errorf("expected unique name %q, got %q", op.UniqueName, e.UniqueName)
		}
		if e.ChannelPath != "/org/example/Channel/1" {
			t.Errorf("unexpected channel path %q", e.ChannelPath)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestHub_SubscribeReceivesFinished(t *testing.T) {
	hub := NewHub()
	op := newTestCDO(t)

	sub := hub.Subscribe(4)
	defer hub.Unsubscribe(sub)

	hub.Finished(op, dispatchop.FinishReason{Kind: dispatchop.FinishByHandler, HandlerName: "Handler"})

	select {
	case e := <-sub:
		if e.Kind != KindFinished {
			t.Errorf("expected KindFinished, got %v", e.Kind)
		}
		if e.HandlerName != "Handler" {
			t.Errorf("unexpected handler name %q", e.HandlerName)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	op := newTestCDO(t)

	sub := hub.Subscribe(4)
	hub.Unsubscribe(sub)

	hub.Finished(op, dispatchop.FinishReason{Kind: dispatchop.FinishNoHandlers})

	if _, ok := <-sub; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
}

func TestHub_SlowSubscriberDropsRatherThanBlocks(t *testing.T) {
	hub := NewHub()
	op := newTestCDO(t)

	sub := hub.Subscribe(1)
	defer hub.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		hub.ChannelLost(op, "/a", "e1", "m1")
		hub.ChannelLost(op, "/b", "e2", "m2")
		hub.ChannelLost(op, "/c", "e3", "m3")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber channel")
	}
}

func TestHub_MultipleSubscribersAllReceive(t *testing.T) {
	hub := NewHub()
	op := newTestCDO(t)

	sub1 := hub.Subscribe(4)
	sub2 := hub.Subscribe(4)
	defer hub.Unsubscribe(sub1)
	defer hub.Unsubscribe(sub2)

	hub.Finished(op, dispatchop.FinishReason{Kind: dispatchop.FinishNoHandlers})

	for _, sub := range []<-chan Event{sub1, sub2} {
		select {
		case e := <-sub:
			if e.Kind != KindFinished {
				t.Errorf("expected KindFinished, got %v", e.Kind)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}
