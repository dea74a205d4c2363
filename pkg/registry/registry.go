// Package registry implements the process-wide Client Registry: the index
// of currently-registered client endpoints (Observer/Approver/Handler
// roles), their filter predicates, and well-known-name bookkeeping.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fmuellner/telepathy-mission-control/internal/logger"
)

// Role is a capability bitset. Observer/Approver/Handler are not
// subtypes; a single endpoint may advertise any combination.
type Role uint8

const (
	RoleObserver Role = 1 << iota
	RoleApprover
	RoleHandler
)

func (r Role) Has(flag Role) bool { return r&flag != 0 }

func (r Role) String() string {
	var parts []string
	if r.Has(RoleObserver) {
		parts = append(parts, "observer")
	}
	if r.Has(RoleApprover) {
		parts = append(parts, "approver")
	}
	if r.Has(RoleHandler) {
		parts = append(parts, "handler")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Filter decides whether an endpoint is interested in a channel, given its
// immutable property map.
type Filter func(properties map[string]any) bool

// MatchAny returns a Filter that accepts every channel.
func MatchAny() Filter {
	return func(map[string]any) bool { return true }
}

// Endpoint is one registered client: a well-known bus name, the roles it
// advertises, the filter gating which channels it is invited for, and
// whether it requests bypass-approval treatment when selected as a
// handler.
type Endpoint struct {
	Name             string // well-known name, reserved-namespace-stripped
	Roles            Role
	Filter           Filter
	BypassApproval   bool
	CallbackBaseURL  string // base URL for out-calls, see pkg/clientproxy
	RegisteredAt     time.Time
	lastSeenAt       time.Time
	deregistered     bool
}

// Registry is the process-wide, read-mostly index of registered
// endpoints. Safe for concurrent use.
type Registry struct {
	namespace string // e.g. "org.example.DispatchClient"

	mu        sync.RWMutex
	endpoints map[string]*Endpoint
}

// New creates a Registry whose well-known names are expected to live
// under the given reserved namespace prefix (e.g.
// "org.example.DispatchClient").
func New(namespace string) *Registry {
	return &Registry{
		namespace: namespace,
		endpoints: make(map[string]*Endpoint),
	}
}

// ValidateWellKnownName checks that name is either empty or has the form
// "<namespace>.Client.<Suffix>" (SPEC_FULL.md §6.3), and returns the bare
// Suffix with the reserved-namespace prefix stripped, matching the key
// space endpoints are registered under. An empty input is returned
// unchanged.
func (r *Registry) ValidateWellKnownName(name string) (string, error) {
	if name == "" {
		return "", nil
	}
	prefix := r.namespace + ".Client."
	if !strings.HasPrefix(name, prefix) {
		return "", fmt.Errorf("well-known name %q lacks reserved namespace prefix %q", name, prefix)
	}
	suffix := strings.TrimPrefix(name, prefix)
	if suffix == "" {
		return "", fmt.Errorf("well-known name %q has empty suffix", name)
	}
	return suffix, nil
}

// Register adds or replaces an endpoint under the given name.
func (r *Registry) Register(ep *Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ep.RegisteredAt.IsZero() {
		ep.RegisteredAt = time.Now()
	}
	ep.lastSeenAt = time.Now()
	ep.deregistered = false
	r.endpoints[ep.Name] = ep

	logger.Info("endpoint registered", logger.KeyEndpoint, ep.Name, logger.KeyRole, ep.Roles.String())
}

// Deregister marks the endpoint gone. Lookups will no longer surface it as
// a candidate, though existing Handler Map entries are untouched (they
// survive independently, per spec.md §6 "Handler map entry").
func (r *Registry) Deregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ep, ok := r.endpoints[name]; ok {
		ep.deregistered = true
		logger.Info("endpoint deregistered", logger.KeyEndpoint, name)
	}
}

// Lookup returns the live endpoint registered under name, or false if it
// is absent or has been deregistered.
func (r *Registry) Lookup(name string) (*Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ep, ok := r.endpoints[name]
	if !ok || ep.deregistered {
		return nil, false
	}
	return ep, true
}

// MatchingObservers returns every live endpoint advertising the Observer
// role, in registration order, regardless of filter — callers subset by
// channel themselves (spec.md §4.4 requires a per-channel-set filter
// evaluation, not a registry-wide one).
func (r *Registry) MatchingObservers() []*Endpoint {
	return r.withRole(RoleObserver)
}

// MatchingApprovers returns every live endpoint advertising the Approver
// role, in registration order.
func (r *Registry) MatchingApprovers() []*Endpoint {
	return r.withRole(RoleApprover)
}

func (r *Registry) withRole(role Role) []*Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Endpoint
	for _, ep := range r.endpoints {
		if ep.deregistered || !ep.Roles.Has(role) {
			continue
		}
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.Before(out[j].RegisteredAt) })
	return out
}

// BypassesApproval reports whether the named handler is currently
// registered and advertises bypass-approval.
func (r *Registry) BypassesApproval(name string) bool {
	ep, ok := r.Lookup(name)
	return ok && ep.Roles.Has(RoleHandler) && ep.BypassApproval
}

// IsLiveHandler reports whether name is currently registered with the
// Handler role.
func (r *Registry) IsLiveHandler(name string) bool {
	ep, ok := r.Lookup(name)
	return ok && ep.Roles.Has(RoleHandler)
}

// PossibleHandlers recomputes a best-first ordered list of live handler
// names, bypass-approval endpoints first (registration order within each
// group). Used both at CDO construction and by the Dispatcher's
// redispatch path (SPEC_FULL.md §4.8) to recompute the list minus a
// vanished handler.
func (r *Registry) PossibleHandlers(exclude ...string) []string {
	excluded := make(map[string]bool, len(exclude))
	for _, n := range exclude {
		excluded[n] = true
	}

	handlers := r.withRole(RoleHandler)

	var bypass, normal []string
	for _, ep := range handlers {
		if excluded[ep.Name] {
			continue
		}
		if ep.BypassApproval {
			bypass = append(bypass, ep.Name)
		} else {
			normal = append(normal, ep.Name)
		}
	}
	return append(bypass, normal...)
}
