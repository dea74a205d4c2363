package dispatchop

import "github.com/fmuellner/telepathy-mission-control/internal/logger"

// incObservers increments the observers_pending client lock. Each
// increment must be matched by exactly one decObservers call, whether the
// out-call it guards succeeds or fails (spec.md §3 invariant 6).
func (op *CDO) incObservers() {
	op.observersPending++
}

// decObservers decrements observers_pending and re-checks whether the
// CDO may proceed (spec.md §4.2: "checked on every counter decrement").
func (op *CDO) decObservers() {
	op.observersPending--
	op.checkLocksAndProceed()
}

// incApprovers mirrors incObservers for the approvers_pending counter.
func (op *CDO) incApprovers() {
	op.approversPending++
}

// decApprovers mirrors decObservers for the approvers_pending counter. In
// addition, once the counter reaches zero without any approver having
// accepted, it applies the default-allow policy (spec.md §4.4).
func (op *CDO) decApprovers() {
	op.approversPending--
	if op.approversPending == 0 && op.needsApproval && !op.approved && !op.awaitingApproval {
		op.approved = true
		logger.Debug("no approver accepted, default-allow", logger.KeyDispatchOp, op.UniqueName)
	}
	op.checkLocksAndProceed()
}

// readyForHandlerSelection implements spec.md §4.2's four conditions.
func (op *CDO) readyForHandlerSelection() bool {
	return op.invokedEarlyClients &&
		op.observersPending == 0 &&
		op.approversPending == 0 &&
		(op.approved || !op.needsApproval)
}

// checkLocksAndProceed is the central re-entry point invoked on every
// counter decrement, on approval, and once after the initial client
// fan-out (spec.md §4.2). It drains any lost-channel backlog once the
// locks allow it, enters handler selection exactly once when ready, and
// advances a pending finish once the locks allow that too.
func (op *CDO) checkLocksAndProceed() {
	if !op.mayFinish() {
		return
	}

	op.drainLostChannels()

	if !op.channelsHandled && !op.observeOnly && op.readyForHandlerSelection() {
		op.attemptHandlerSelection()
	}

	if op.wantsToFinish {
		op.runFinishStep()
	}
}

// pushLostChannel records a channel that aborted while the CDO was still
// deferring notifications (spec.md §4.3). Entries are prepended so the
// slice reads newest-first ("reverse-chronological", per spec.md §3);
// drainLostChannels walks it back-to-front to emit in chronological
// order.
func (op *CDO) pushLostChannel(ch *Channel, err error) {
	op.lostChannels = append([]lostChannelEntry{{channel: ch, err: err}}, op.lostChannels...)
}

// drainLostChannels emits one ChannelLost per deferred entry, in
// chronological order, then clears the backlog (spec.md §4.3).
func (op *CDO) drainLostChannels() {
	for i := len(op.lostChannels) - 1; i >= 0; i-- {
		entry := op.lostChannels[i]
		op.emitChannelLost(entry.channel, entry.err)
	}
	op.lostChannels = nil
}

func (op *CDO) emitChannelLost(ch *Channel, err error) {
	errorName, errorMessage := classifyAbortError(err)
	logger.Info("channel lost", logger.KeyDispatchOp, op.UniqueName, logger.KeyChannel, ch.ObjectPath, logger.KeyError, errorMessage)
	op.sink.ChannelLost(op, ch.ObjectPath, errorName, errorMessage)
}

// onChannelAborted implements spec.md §4.3. Invoked on the owning
// executor (Channel.Abort's listener hops there before calling in).
func (op *CDO) onChannelAborted(ch *Channel, err error) {
	if isCancelledError(err) {
		op.cancelled = true
	}

	if !op.containsChannel(ch) {
		return // not in this CDO (or already removed); idempotent
	}

	op.removeChannel(ch)

	if op.mayFinish() {
		op.emitChannelLost(ch, err)
	} else {
		op.pushLostChannel(ch, err)
	}

	if len(op.channels) == 0 {
		op._finish()
	}
}

func (op *CDO) containsChannel(ch *Channel) bool {
	for _, c := range op.channels {
		if c == ch {
			return true
		}
	}
	return false
}

func (op *CDO) removeChannel(ch *Channel) {
	for i, c := range op.channels {
		if c == ch {
			op.channels = append(op.channels[:i], op.channels[i+1:]...)
			return
		}
	}
}

// classifyAbortError splits an abort error into a (name, message) pair
// for the ChannelLost signal. Errors with no further structure are
// reported under a generic name.
func classifyAbortError(err error) (name, message string) {
	if err == nil {
		return "Channel.Aborted", ""
	}
	if isCancelledError(err) {
		return "Channel.Cancelled", err.Error()
	}
	return "Channel.Error", err.Error()
}

// cancelledError is the sentinel used to mark a channel abort as
// originating from user/request cancellation (spec.md §4.3 step 1,
// §5 "Cancellation and timeout").
type cancelledError struct{ msg string }

func (e *cancelledError) Error() string { return e.msg }

// ErrCancelled constructs an abort error recognized by isCancelledError.
func ErrCancelled(msg string) error {
	if msg == "" {
		msg = "cancelled"
	}
	return &cancelledError{msg: msg}
}

func isCancelledError(err error) bool {
	_, ok := err.(*cancelledError)
	return ok
}
