package dispatchop

import (
	"context"

	"github.com/fmuellner/telepathy-mission-control/internal/logger"
)

// ErrHandlerUnavailable is the generic error recorded against every
// channel when the possible-handlers list is exhausted (spec.md §4.5
// step 4, §7 "Fatal dispatch failure").
const ErrHandlerUnavailable = "Handler no longer available"

// attemptHandlerSelection implements spec.md §4.5. Preconditions
// (observe_only false, invoked_early_clients, both counters zero,
// approved) are established by the caller (checkLocksAndProceed).
func (op *CDO) attemptHandlerSelection() {
	candidate := ""

	if op.chosenHandler != "" {
		if !op.failedHandlers[op.chosenHandler] && op.registry.IsLiveHandler(op.chosenHandler) {
			candidate = op.chosenHandler
		}
		// else: fall through to possible_handlers, a recovery path for
		// an approver that named a vanished handler.
	}

	if candidate == "" {
		for _, name := range op.possibleHandlers {
			if op.failedHandlers[name] {
				continue
			}
			if op.registry.IsLiveHandler(name) {
				candidate = name
				break
			}
		}
	}

	if candidate == "" {
		op.exhaustHandlers()
		return
	}

	op.invokeHandler(context.Background(), candidate)
}

// invokeHandler implements spec.md §4.5 step 3.
func (op *CDO) invokeHandler(ctx context.Context, name string) {
	ep, ok := op.registry.Lookup(name)
	if !ok {
		// Registered a moment ago, now gone: treat exactly as a failed
		// invocation and restart selection.
		op.failedHandlers[name] = true
		op.attemptHandlerSelection()
		return
	}

	for _, ch := range op.channels {
		ch.Status = StatusHandlerInvoked
	}

	req := HandleChannelsRequest{
		Account:        op.account,
		Channels:       snapshotChannels(op.channels),
		HandleWithTime: op.handleWithTime,
	}

	go func() {
		callCtx, cancel := context.WithTimeout(ctx, op.callTimeout)
		defer cancel()
		err := op.proxy.HandleChannels(callCtx, ep, req)
		op.exec.Submit(func() { op.onHandlerInvocationComplete(name, err) })
	}()
}

func (op *CDO) onHandlerInvocationComplete(name string, err error) {
	if err != nil {
		logger.Warn("handler invocation failed", logger.KeyDispatchOp, op.UniqueName, logger.KeyFailedHandler, name, logger.KeyError, err.Error())
		op.failedHandlers[name] = true
		op.attemptHandlerSelection()
		return
	}

	// Edge case (spec.md §4.5): a handler reporting success but whose
	// unique bus name cannot be resolved is treated as a leak risk, not
	// a silent success. Our registry only ever records live endpoints by
	// well-known name, so this reduces to: if the endpoint vanished
	// between invocation and reply, the channel is closed rather than
	// marked dispatched.
	if !op.registry.IsLiveHandler(name) {
		logger.Warn("handler vanished after accepting channels", logger.KeyDispatchOp, op.UniqueName, logger.KeyHandler, name)
		for _, ch := range op.channels {
			ch.Abort(errHandlerUnavailable{})
		}
		return
	}

	for _, ch := range op.channels {
		op.hmap.Set(ch.ObjectPath, name, op.account)
		ch.Status = StatusDispatched
	}

	op.finishReason = FinishReason{Kind: FinishByHandler, HandlerName: name}
	op.channelsHandled = true
	logger.Info("handler invoked channels", logger.KeyDispatchOp, op.UniqueName, logger.KeyHandler, name)

	op._finish()
}

// exhaustHandlers implements spec.md §4.5 step 4: every channel is marked
// undispatchable with a generic error and released.
func (op *CDO) exhaustHandlers() {
	logger.Warn("all possible handlers vanished", logger.KeyDispatchOp, op.UniqueName)

	for _, ch := range append([]*Channel(nil), op.channels...) {
		ch.Abort(errHandlerUnavailable{})
	}
}

// errHandlerUnavailable is distinct from cancelledError: exhausting the
// possible-handlers list is a fatal dispatch failure, not a user
// cancellation, and must not latch CDO.cancelled.
type errHandlerUnavailable struct{}

func (errHandlerUnavailable) Error() string { return ErrHandlerUnavailable }
