// Package events provides the dispatchop.SignalSink implementation the
// control-plane API subscribes SSE clients against.
package events

import (
	"sync"
	"time"

	"github.com/fmuellner/telepathy-mission-control/pkg/dispatchop"
)

// Kind distinguishes the two signals a dispatch operation emits over its
// lifetime (dispatchop.SignalSink).
type Kind string

const (
	KindChannelLost Kind = "channel_lost"
	KindFinished    Kind = "finished"
)

// Event is one occurrence of a dispatch operation signal, scoped to the
// operation that emitted it so subscribers can filter by UniqueName.
type Event struct {
	Timestamp  time.Time `json:"ts"`
	UniqueName string    `json:"unique_name"`
	Kind       Kind      `json:"kind"`

	// Populated for KindChannelLost.
	ChannelPath  string `json:"channel_path,omitempty"`
	ErrorName    string `json:"error_name,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	// Populated for KindFinished.
	FinishReason string `json:"finish_reason,omitempty"`
	HandlerName  string `json:"handler_name,omitempty"`
}

// Hub is a non-blocking broadcast bus implementing dispatchop.SignalSink.
// Every CDO constructed by the dispatcher is wired to publish through the
// same Hub instance; SSE handlers subscribe and filter by UniqueName.
// Subscribers receive events on buffered channels; a slow subscriber
// misses events rather than blocking CDO finish processing.
type Hub struct {
	mu         sync.RWMutex
	subs       map[chan Event]struct{}
	recvToSend map[<-chan Event]chan Event
}

// NewHub creates a Hub ready for use.
func NewHub() *Hub {
	return &Hub{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Subscribe returns a channel receiving every event published from this
// point on. The caller must call Unsubscribe once done to avoid leaking
// the channel and its goroutine-side buffer.
func (h *Hub) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[ch] = struct{}{}
	h.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel. Safe to
// call with an already-unsubscribed channel.
func (h *Hub) Unsubscribe(ch <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sendCh, ok := h.recvToSend[ch]
	if !ok {
		return
	}
	delete(h.subs, sendCh)
	delete(h.recvToSend, ch)
	close(sendCh)
}

func (h *Hub) publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// ChannelLost implements dispatchop.SignalSink.
func (h *Hub) ChannelLost(op *dispatchop.CDO, channelPath, errorName, errorMessage string) {
	h.publish(Event{
		Timestamp:    time.Now().UTC(),
		UniqueName:   op.UniqueName,
		Kind:         KindChannelLost,
		ChannelPath:  channelPath,
		ErrorName:    errorName,
		ErrorMessage: errorMessage,
	})
}

// Finished implements dispatchop.SignalSink.
func (h *Hub) Finished(op *dispatchop.CDO, reason dispatchop.FinishReason) {
	h.publish(Event{
		Timestamp:    time.Now().UTC(),
		UniqueName:   op.UniqueName,
		Kind:         KindFinished,
		FinishReason: reason.Kind.String(),
		HandlerName:  reason.HandlerName,
	})
}
