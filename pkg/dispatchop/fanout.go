package dispatchop

import (
	"context"

	"github.com/fmuellner/telepathy-mission-control/internal/logger"
	"github.com/fmuellner/telepathy-mission-control/pkg/registry"
)

// runClients implements spec.md §4.4: observers are invited first, then
// (unless bypassed or not required) approvers, then invoked_early_clients
// latches and the ready-check runs once more for the case where no
// out-calls were issued at all.
func (op *CDO) runClients(ctx context.Context) {
	op.runObservers(ctx)

	if op.needsApproval {
		op.checkBypassApproval()
		if !op.approved {
			op.runApprovers(ctx)
		}
	}

	op.invokedEarlyClients = true
	op.checkLocksAndProceed()
}

// checkBypassApproval implements spec.md §4.4's "Early bypass": if the
// best still-registered handler in possible_handlers advertises
// bypass-approval, approved latches true and the approver fan-out never
// runs.
func (op *CDO) checkBypassApproval() {
	for _, name := range op.possibleHandlers {
		if !op.registry.IsLiveHandler(name) {
			continue
		}
		if op.registry.BypassesApproval(name) {
			op.approved = true
			logger.Debug("handler bypasses approval", logger.KeyDispatchOp, op.UniqueName, logger.KeyHandler, name)
		}
		return
	}
}

func (op *CDO) satisfiedRequests() []string {
	seen := make(map[string]bool)
	var out []string
	for _, ch := range op.channels {
		for _, req := range ch.SatisfiedRequests {
			if !seen[req] {
				seen[req] = true
				out = append(out, req)
			}
		}
	}
	return out
}

func (op *CDO) channelsMatching(ep *registry.Endpoint) []*Channel {
	var subset []*Channel
	for _, ch := range op.channels {
		if ch.MatchesFilter(ep.Filter) {
			subset = append(subset, ch)
		}
	}
	return subset
}

// runObservers implements the Observers half of spec.md §4.4.
func (op *CDO) runObservers(ctx context.Context) {
	dispatchOpPath := "/"
	if op.needsApproval {
		dispatchOpPath = op.ObjectPath
	}

	for _, ep := range op.registry.MatchingObservers() {
		subset := op.channelsMatching(ep)
		if len(subset) == 0 {
			continue
		}

		op.incObservers()
		req := ObserveChannelsRequest{
			Account:           op.account,
			Connection:        op.connection,
			Channels:          snapshotChannels(subset),
			DispatchOpPath:    dispatchOpPath,
			SatisfiedRequests: op.satisfiedRequests(),
		}

		ep := ep
		go func() {
			callCtx, cancel := context.WithTimeout(ctx, op.callTimeout)
			defer cancel()
			err := op.proxy.ObserveChannels(callCtx, ep, req)
			op.exec.Submit(func() {
				if err != nil {
					logger.Warn("observer call failed", logger.KeyDispatchOp, op.UniqueName, logger.KeyEndpoint, ep.Name, logger.KeyError, err.Error())
				}
				op.decObservers()
			})
		}()
	}
}

// runApprovers implements the Approvers half of spec.md §4.4, including
// the temporary "+1" over-increment that prevents the counter reaching
// zero mid-fan-out.
func (op *CDO) runApprovers(ctx context.Context) {
	op.incApprovers() // temporary +1 for the duration of the loop

	for _, ep := range op.registry.MatchingApprovers() {
		subset := op.channelsMatching(ep)
		if len(subset) == 0 {
			continue
		}

		op.incApprovers()
		req := AddDispatchOperationRequest{
			Channels: snapshotChannels(subset),
			CDOPath:  op.ObjectPath,
		}

		ep := ep
		go func() {
			callCtx, cancel := context.WithTimeout(ctx, op.callTimeout)
			defer cancel()
			err := op.proxy.AddDispatchOperation(callCtx, ep, req)
			op.exec.Submit(func() {
				if err != nil {
					logger.Warn("approver call failed", logger.KeyDispatchOp, op.UniqueName, logger.KeyEndpoint, ep.Name, logger.KeyError, err.Error())
				} else {
					op.awaitingApproval = true
				}
				op.decApprovers()
			})
		}()
	}

	op.decApprovers() // release the temporary +1
}
