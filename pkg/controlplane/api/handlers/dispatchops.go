package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fmuellner/telepathy-mission-control/internal/logger"
	"github.com/fmuellner/telepathy-mission-control/pkg/controlplane/api/events"
	"github.com/fmuellner/telepathy-mission-control/pkg/dispatcher"
	"github.com/fmuellner/telepathy-mission-control/pkg/dispatchop"
	"github.com/fmuellner/telepathy-mission-control/pkg/handlermap"
)

// requestTimeout bounds every dispatch-operation API call that must round
// trip through the dispatcher's event loop.
const requestTimeout = 10 * time.Second

// DispatchOpHandler handles the control-plane API's dispatch-operation
// surface (SPEC_FULL.md §6.1): lookup, listing, handle-with, claim, and
// the SSE event stream.
type DispatchOpHandler struct {
	dispatcher *dispatcher.Dispatcher
	hub        *events.Hub
}

// NewDispatchOpHandler creates a dispatch-operation handler. hub is the
// SignalSink every CDO constructed by dispatcher was wired to publish
// through; SSE subscribers filter its broadcast stream by UniqueName.
func NewDispatchOpHandler(d *dispatcher.Dispatcher, hub *events.Hub) *DispatchOpHandler {
	return &DispatchOpHandler{dispatcher: d, hub: hub}
}

// channelView is the wire representation of a single channel within a
// dispatch operation (spec.md §3).
type channelView struct {
	ObjectPath        string         `json:"object_path"`
	ChannelType       string         `json:"channel_type"`
	Direction         string         `json:"direction"`
	Properties        map[string]any `json:"properties,omitempty"`
	Status            string         `json:"status"`
	SatisfiedRequests []string       `json:"satisfied_requests,omitempty"`
}

// dispatchOpView is the lazily-computed wire representation of a CDO
// (spec.md §3, §6.1: Interfaces/Connection/Account/Channels/PossibleHandlers
// are recomputed on every fetch rather than cached).
type dispatchOpView struct {
	UniqueName       string        `json:"unique_name"`
	ObjectPath       string        `json:"object_path"`
	Interfaces       []string      `json:"interfaces"`
	Connection       string        `json:"connection"`
	Account          string        `json:"account"`
	Channels         []channelView `json:"channels"`
	PossibleHandlers []string      `json:"possible_handlers"`
	NeedsApproval    bool          `json:"needs_approval"`
	Finished         bool          `json:"finished"`
}

// dispatchOpInterfaces lists the CDO-family interfaces every dispatch
// operation implements (spec.md §4.1). There is exactly one concrete CDO
// type in this implementation, so the list is constant.
var dispatchOpInterfaces = []string{
	"org.example.ChannelDispatchOperation",
}

func newDispatchOpView(op *dispatchop.CDO) dispatchOpView {
	channels := op.Channels()
	views := make([]channelView, 0, len(channels))
	for _, ch := range channels {
		views = append(views, channelView{
			ObjectPath:        ch.ObjectPath,
			ChannelType:       ch.ChannelType,
			Direction:         string(ch.Direction),
			Properties:        ch.Properties,
			Status:            ch.Status.String(),
			SatisfiedRequests: ch.SatisfiedRequests,
		})
	}

	return dispatchOpView{
		UniqueName:       op.UniqueName,
		ObjectPath:       op.ObjectPath,
		Interfaces:       dispatchOpInterfaces,
		Connection:       op.Connection(),
		Account:          op.Account(),
		Channels:         views,
		PossibleHandlers: op.PossibleHandlers(),
		NeedsApproval:    op.NeedsApproval(),
		Finished:         op.IsFinished(),
	}
}

type createChannelRequest struct {
	ObjectPath        string         `json:"object_path"`
	ChannelType       string         `json:"channel_type"`
	Direction         string         `json:"direction"`
	Properties        map[string]any `json:"properties,omitempty"`
	Connection        string         `json:"connection,omitempty"`
	Account           string         `json:"account,omitempty"`
	SatisfiedRequests []string       `json:"satisfied_requests,omitempty"`
}

type createDispatchOpRequest struct {
	Channels      []createChannelRequest `json:"channels"`
	NeedsApproval bool                   `json:"needs_approval"`
	ObserveOnly   bool                   `json:"observe_only"`
}

// Create handles POST /api/v1/dispatch-operations: a connection manager
// (or, in this realization, whatever inbound transport stands in for
// one) hands the dispatcher a freshly arrived batch of channels. The
// dispatcher's admission pipeline decides what survives; surviving
// channels are wrapped in a new CDO published through the same hub the
// SSE endpoint streams from.
func (h *DispatchOpHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDispatchOpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "malformed request body: "+err.Error())
		return
	}
	if len(req.Channels) == 0 {
		BadRequest(w, "channels must be a non-empty list")
		return
	}

	channels := make([]*dispatchop.Channel, 0, len(req.Channels))
	for _, c := range req.Channels {
		if c.ObjectPath == "" || c.ChannelType == "" {
			BadRequest(w, "each channel requires object_path and channel_type")
			return
		}
		direction := dispatchop.DirectionIncoming
		if c.Direction == string(dispatchop.DirectionOutgoing) {
			direction = dispatchop.DirectionOutgoing
		}
		channels = append(channels, dispatchop.NewChannel(
			c.ObjectPath, c.ChannelType, direction, c.Properties,
			c.Connection, c.Account, c.SatisfiedRequests,
		))
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	op, err := h.dispatcher.Dispatch(ctx, channels, req.NeedsApproval, req.ObserveOnly, h.hub)
	if err != nil {
		if errors.Is(err, dispatcher.ErrNoCapability) {
			BadRequest(w, err.Error())
			return
		}
		InternalServerError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, healthyResponse(newDispatchOpView(op)))
}

// List handles GET /api/v1/dispatch-operations.
func (h *DispatchOpHandler) List(w http.ResponseWriter, r *http.Request) {
	ops := h.dispatcher.List()
	views := make([]dispatchOpView, 0, len(ops))
	for _, op := range ops {
		views = append(views, newDispatchOpView(op))
	}
	writeJSON(w, http.StatusOK, healthyResponse(views))
}

// Get handles GET /api/v1/dispatch-operations/{id}.
func (h *DispatchOpHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	op, ok := h.dispatcher.CDO(id)
	if !ok {
		NotFound(w, fmt.Sprintf("no dispatch operation named %q", id))
		return
	}
	writeJSON(w, http.StatusOK, healthyResponse(newDispatchOpView(op)))
}

type handleWithRequest struct {
	Handler string `json:"handler"`
}

// HandleWith handles POST /api/v1/dispatch-operations/{id}/handle-with.
func (h *DispatchOpHandler) HandleWith(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	op, ok := h.dispatcher.CDO(id)
	if !ok {
		NotFound(w, fmt.Sprintf("no dispatch operation named %q", id))
		return
	}

	var req handleWithRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "malformed request body: "+err.Error())
		return
	}
	if req.Handler == "" {
		BadRequest(w, "handler must be set")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	h.dispatcher.Submit(func() {
		errCh <- op.HandleWith(req.Handler)
	})

	select {
	case err := <-errCh:
		if err != nil {
			writeHandleWithError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, healthyResponse(nil))
	case <-ctx.Done():
		InternalServerError(w, "timed out waiting for the dispatch operation to accept handle-with")
	}
}

func writeHandleWithError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatchop.ErrNotYours):
		Conflict(w, err.Error())
	case errors.Is(err, dispatchop.ErrInvalidArgument):
		BadRequest(w, err.Error())
	default:
		InternalServerError(w, err.Error())
	}
}

// Claim handles POST /api/v1/dispatch-operations/{id}/claim. The HTTP
// reply is held open until the dispatch operation actually finishes
// (spec.md §4.6: claim's reply is deferred to the finish step), bounded
// by the request's context deadline.
func (h *DispatchOpHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	op, ok := h.dispatcher.CDO(id)
	if !ok {
		NotFound(w, fmt.Sprintf("no dispatch operation named %q", id))
		return
	}

	var req struct {
		Caller string `json:"caller"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "malformed request body: "+err.Error())
		return
	}
	if req.Caller == "" {
		BadRequest(w, "caller must be set")
		return
	}
	claimant := req.Caller

	type result struct {
		entries []handlerEntryView
		err     error
	}
	resCh := make(chan result, 1)

	h.dispatcher.Submit(func() {
		op.Claim(claimant, func(entries []handlermap.Entry, err error) {
			resCh <- result{entriesToView(entries), err}
		})
	})

	select {
	case res := <-resCh:
		if res.err != nil {
			writeHandleWithError(w, res.err)
			return
		}
		writeJSON(w, http.StatusOK, healthyResponse(res.entries))
	case <-r.Context().Done():
		InternalServerError(w, "claim request cancelled before the dispatch operation finished")
	}
}

// handlerEntryView is the wire representation of one handlermap.Entry
// returned to a successful claimer.
type handlerEntryView struct {
	ChannelPath string `json:"channel_path"`
	HandlerName string `json:"handler_name"`
	AccountPath string `json:"account_path,omitempty"`
}

func entriesToView(entries []handlermap.Entry) []handlerEntryView {
	views := make([]handlerEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, handlerEntryView{
			ChannelPath: e.ChannelPath,
			HandlerName: e.HandlerName,
			AccountPath: e.AccountPath,
		})
	}
	return views
}

// Events handles GET /api/v1/dispatch-operations/{id}/events, streaming
// ChannelLost/Finished signals for one dispatch operation as
// Server-Sent Events. The stream closes once Finished has been sent
// (spec.md §5, §8: Finished is always the last signal).
func (h *DispatchOpHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.dispatcher.CDO(id); !ok {
		NotFound(w, fmt.Sprintf("no dispatch operation named %q", id))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		InternalServerError(w, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.hub.Subscribe(32)
	defer h.hub.Unsubscribe(sub)

	ctx := r.Context()
	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if ev.UniqueName != id {
				continue
			}
			if err := writeSSEEvent(w, ev); err != nil {
				logger.Warn("failed to write SSE event", "error", err, "unique_name", id)
				return
			}
			flusher.Flush()
			if ev.Kind == events.KindFinished {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload)
	return err
}
