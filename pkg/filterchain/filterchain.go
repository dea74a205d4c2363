// Package filterchain implements the ordered, in-process predicate/mutator
// chain run before a Channel Dispatch Operation is constructed, grouped by
// channel type and direction (spec.md §2, §4.10).
package filterchain

import (
	"sync"
)

// Direction of a channel, mirroring pkg/dispatchop.Direction without
// importing it (filterchain is a lower-level dependency of dispatcher,
// which in turn depends on dispatchop; both sides use the same string
// values by convention to avoid an import cycle).
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Filter is one chain entry. It inspects (and may reject) a candidate
// channel before a CDO is ever constructed over it. Returning false stops
// the chain and the channel is not dispatched.
type Filter func(properties map[string]any) bool

type key struct {
	channelType string
	direction   Direction
}

// Chain is the ordered, per-(channel-type, direction) filter registry.
// Safe for concurrent use; reads vastly outnumber writes (new filters are
// typically only added at startup or via a hot-reload event from
// pkg/filterplugin).
type Chain struct {
	mu     sync.RWMutex
	chains map[key][]namedFilter
}

type namedFilter struct {
	name   string
	filter Filter
}

// New creates an empty Chain.
func New() *Chain {
	return &Chain{chains: make(map[key][]namedFilter)}
}

// Add appends a named filter to the chain for (channelType, direction).
// Filters run in the order they were added.
func (c *Chain) Add(channelType string, direction Direction, name string, f Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{channelType, direction}
	c.chains[k] = append(c.chains[k], namedFilter{name, f})
}

// Remove deletes a previously-added filter by name, used when a
// hot-loaded filter file is removed (pkg/filterplugin).
func (c *Chain) Remove(channelType string, direction Direction, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{channelType, direction}
	filtered := c.chains[k][:0]
	for _, nf := range c.chains[k] {
		if nf.name != name {
			filtered = append(filtered, nf)
		}
	}
	c.chains[k] = filtered
}

// Run evaluates every filter registered for (channelType, direction)
// against properties, in order, short-circuiting on the first rejection.
// A channel type/direction with no registered filters passes
// unconditionally.
func (c *Chain) Run(channelType string, direction Direction, properties map[string]any) bool {
	c.mu.RLock()
	filters := append([]namedFilter(nil), c.chains[key{channelType, direction}]...)
	c.mu.RUnlock()

	for _, nf := range filters {
		if !nf.filter(properties) {
			return false
		}
	}
	return true
}

// HasEntries reports whether any filter is registered for
// (channelType, direction). The Dispatcher's admission pipeline
// (SPEC_FULL.md §4.8) uses this, together with a registry lookup, to
// decide whether a channel type is supported at all.
func (c *Chain) HasEntries(channelType string, direction Direction) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.chains[key{channelType, direction}]) > 0
}
