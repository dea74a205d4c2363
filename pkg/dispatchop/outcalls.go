package dispatchop

import (
	"context"

	"github.com/fmuellner/telepathy-mission-control/pkg/registry"
)

// ChannelSnapshot is the wire-shape of one channel passed to a client
// out-call: object path plus its immutable property map.
type ChannelSnapshot struct {
	ObjectPath  string
	ChannelType string
	Direction   Direction
	Properties  map[string]any
}

func snapshotChannels(channels []*Channel) []ChannelSnapshot {
	out := make([]ChannelSnapshot, 0, len(channels))
	for _, ch := range channels {
		out = append(out, ChannelSnapshot{
			ObjectPath:  ch.ObjectPath,
			ChannelType: ch.ChannelType,
			Direction:   ch.Direction,
			Properties:  ch.Properties,
		})
	}
	return out
}

// ObserveChannelsRequest mirrors spec.md §6's ObserveChannels parameter
// list.
type ObserveChannelsRequest struct {
	Account           string
	Connection        string
	Channels          []ChannelSnapshot
	DispatchOpPath    string // "/" when the CDO does not need approval
	SatisfiedRequests []string
	Info              map[string]any
}

// AddDispatchOperationRequest mirrors spec.md §6's AddDispatchOperation
// parameter list.
type AddDispatchOperationRequest struct {
	Channels   []ChannelSnapshot
	CDOPath    string
	Properties map[string]any
}

// HandleChannelsRequest mirrors spec.md §6's HandleChannels parameter
// list.
type HandleChannelsRequest struct {
	Account        string
	Channels       []ChannelSnapshot
	HandleWithTime float64
	Info           map[string]any
}

// ClientProxy issues the three out-calls a CDO makes to registered
// endpoints (spec.md §6 "CDO -> client out-calls"). A concrete HTTP
// implementation lives in pkg/clientproxy; tests substitute a fake.
type ClientProxy interface {
	ObserveChannels(ctx context.Context, ep *registry.Endpoint, req ObserveChannelsRequest) error
	AddDispatchOperation(ctx context.Context, ep *registry.Endpoint, req AddDispatchOperationRequest) error
	HandleChannels(ctx context.Context, ep *registry.Endpoint, req HandleChannelsRequest) error
}

// Executor serializes every CDO mutation onto a single logical thread of
// control, the language-neutral equivalent of spec.md §5's "single
// event loop" (see pkg/dispatcher for the concrete chan-func()-based
// implementation).
type Executor interface {
	Submit(fn func())
}

// InlineExecutor runs submitted closures synchronously on the calling
// goroutine. Used by tests that want deterministic, single-goroutine
// execution without spinning up a real dispatcher event loop.
type InlineExecutor struct{}

func (InlineExecutor) Submit(fn func()) { fn() }
