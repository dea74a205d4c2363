package dispatcher

import (
	"context"
	"fmt"

	"github.com/fmuellner/telepathy-mission-control/internal/logger"
	"github.com/fmuellner/telepathy-mission-control/pkg/dispatchop"
	"github.com/fmuellner/telepathy-mission-control/pkg/filterchain"
)

// Dispatch runs the admission pipeline (SPEC_FULL.md §4.8) over a freshly
// arrived batch of channels and, if at least one survives, constructs and
// starts a CDO over them. possibleHandlers is recomputed from the registry
// at call time.
//
// Dispatch may be called from any goroutine; the admission check and CDO
// construction themselves run on the event loop.
func (d *Dispatcher) Dispatch(ctx context.Context, channels []*dispatchop.Channel, needsApproval, observeOnly bool, sink dispatchop.SignalSink) (*dispatchop.CDO, error) {
	return d.dispatch(ctx, channels, needsApproval, observeOnly, nil, sink)
}

// Redispatch implements SPEC_FULL.md §4.8 step 2: a Handler that owned ch
// (per the Handler Map) has vanished from the bus before the channel
// itself closed. A new CDO is constructed over the orphaned channel with
// needs_approval=false, observe_only=false, skipping observers and
// approvers a second time, and possible_handlers recomputed minus the
// vanished handler.
func (d *Dispatcher) Redispatch(ctx context.Context, ch *dispatchop.Channel) (*dispatchop.CDO, error) {
	entry, _ := d.hmap.Lookup(ch.ObjectPath)
	d.hmap.Remove(ch.ObjectPath)

	exclude := entry.HandlerName
	possible := d.registry.PossibleHandlers(exclude)
	if len(possible) == 0 {
		return nil, fmt.Errorf("dispatcher: no possible handlers left to redispatch %s", ch.ObjectPath)
	}

	logger.Info("redispatching orphaned channel", logger.KeyChannel, ch.ObjectPath, logger.KeyFailedHandler, exclude)
	return d.dispatch(ctx, []*dispatchop.Channel{ch}, false, false, possible, d.getDefaultSink())
}

func (d *Dispatcher) dispatch(ctx context.Context, channels []*dispatchop.Channel, needsApproval, observeOnly bool, possibleHandlers []string, sink dispatchop.SignalSink) (*dispatchop.CDO, error) {
	type result struct {
		op  *dispatchop.CDO
		err error
	}
	resCh := make(chan result, 1)

	d.Submit(func() {
		op, err := d.admitAndConstruct(ctx, channels, needsApproval, observeOnly, possibleHandlers, sink)
		resCh <- result{op, err}
	})

	select {
	case r := <-resCh:
		return r.op, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.stopped:
		return nil, ErrStopped
	}
}

// admitAndConstruct runs on the event loop. It applies the capability
// check and the filter chain to each candidate channel, then constructs a
// CDO over whatever survives.
func (d *Dispatcher) admitAndConstruct(ctx context.Context, channels []*dispatchop.Channel, needsApproval, observeOnly bool, possibleHandlers []string, sink dispatchop.SignalSink) (*dispatchop.CDO, error) {
	admitted := make([]*dispatchop.Channel, 0, len(channels))
	for _, ch := range channels {
		if !d.hasCapability(ch) {
			logger.Warn("rejecting channel with no capability", logger.KeyChannel, ch.ObjectPath, logger.KeyChannelType, ch.ChannelType)
			ch.Abort(ErrNoCapability)
			continue
		}
		if !d.chain.Run(ch.ChannelType, filterDirection(ch.Direction), ch.Properties) {
			logger.Info("channel rejected by filter chain", logger.KeyChannel, ch.ObjectPath, logger.KeyChannelType, ch.ChannelType)
			ch.Abort(fmt.Errorf("dispatcher: rejected by filter chain"))
			continue
		}
		admitted = append(admitted, ch)
	}

	if len(admitted) == 0 {
		return nil, fmt.Errorf("dispatcher: no admissible channels in this batch")
	}

	if possibleHandlers == nil && !observeOnly {
		possibleHandlers = d.registry.PossibleHandlers()
	}

	op, err := dispatchop.New(d.counter, d.pathBase, admitted, needsApproval, observeOnly, possibleHandlers, d.registry, d.hmap, d.proxy, &trackingSink{inner: sink, dispatcher: d}, d, d.callTimeout)
	if err != nil {
		return nil, err
	}

	d.track(op)
	op.Run(ctx)
	return op, nil
}

// hasCapability implements SPEC_FULL.md §4.8 step 1: a channel type is
// supported if either some live handler's filter accepts it, or the
// filter chain carries at least one entry for its (type, direction).
func (d *Dispatcher) hasCapability(ch *dispatchop.Channel) bool {
	for _, name := range d.registry.PossibleHandlers() {
		ep, ok := d.registry.Lookup(name)
		if ok && ch.MatchesFilter(ep.Filter) {
			return true
		}
	}
	return d.chain.HasEntries(ch.ChannelType, filterDirection(ch.Direction))
}

func filterDirection(dir dispatchop.Direction) filterchain.Direction {
	if dir == dispatchop.DirectionOutgoing {
		return filterchain.DirectionOutgoing
	}
	return filterchain.DirectionIncoming
}

// trackingSink wraps a caller-supplied signal sink so the Dispatcher can
// stop tracking a CDO once it reports Finished, without requiring every
// caller to remember to do so.
type trackingSink struct {
	inner      dispatchop.SignalSink
	dispatcher *Dispatcher
}

func (s *trackingSink) ChannelLost(op *dispatchop.CDO, channelPath, errorName, errorMessage string) {
	s.inner.ChannelLost(op, channelPath, errorName, errorMessage)
}

func (s *trackingSink) Finished(op *dispatchop.CDO, reason dispatchop.FinishReason) {
	s.dispatcher.untrack(op.UniqueName)
	s.inner.Finished(op, reason)
}
