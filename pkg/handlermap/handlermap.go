// Package handlermap implements the process-wide Handler Map: the record
// of which endpoint currently owns which channel. It survives the
// lifetime of any single CDO and is destroyed when the owning channel
// itself aborts, or when the Dispatcher redispatches a channel whose
// handler has vanished.
package handlermap

import "sync"

// Entry is one handler-map record: a channel path, the unique bus name of
// the handler (or claimer) that owns it, and the optional account path
// the channel belongs to.
type Entry struct {
	ChannelPath string
	HandlerName string
	AccountPath string
}

// Map is a concurrency-safe channel-path -> Entry index.
type Map struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New creates an empty Map.
func New() *Map {
	return &Map{entries: make(map[string]Entry)}
}

// Set records that channelPath is now owned by handlerName.
func (m *Map) Set(channelPath, handlerName, accountPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[channelPath] = Entry{
		ChannelPath: channelPath,
		HandlerName: handlerName,
		AccountPath: accountPath,
	}
}

// Lookup returns the owning entry for a channel path, if any.
func (m *Map) Lookup(channelPath string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[channelPath]
	return e, ok
}

// Remove deletes the entry for a channel path. Called when the channel
// aborts, and by the Dispatcher's Redispatch before it re-dispatches an
// orphaned channel.
func (m *Map) Remove(channelPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, channelPath)
}

// ByHandler returns every channel path currently owned by handlerName, in
// no particular order, e.g. the channels left orphaned when that handler
// vanishes. The Dispatcher's Redispatch takes a single channel and does
// not call it.
func (m *Map) ByHandler(handlerName string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for path, e := range m.entries {
		if e.HandlerName == handlerName {
			out = append(out, path)
		}
	}
	return out
}

// Len reports the number of entries currently tracked.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
