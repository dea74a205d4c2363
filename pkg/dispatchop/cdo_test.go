package dispatchop_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmuellner/telepathy-mission-control/pkg/dispatchop"
	"github.com/fmuellner/telepathy-mission-control/pkg/handlermap"
	"github.com/fmuellner/telepathy-mission-control/pkg/registry"
)

// syncExecutor serializes every submitted closure behind a mutex (the
// test-only equivalent of the Dispatcher's real event-loop channel) and
// signals a buffered channel once each closure has run, so tests can wait
// deterministically for an async out-call's completion to land.
type syncExecutor struct {
	mu       sync.Mutex
	executed chan struct{}
}

func newSyncExecutor() *syncExecutor {
	return &syncExecutor{executed: make(chan struct{}, 256)}
}

func (e *syncExecutor) Submit(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
	e.executed <- struct{}{}
}

func (e *syncExecutor) waitOne(t *testing.T) {
	t.Helper()
	select {
	case <-e.executed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a submitted closure to execute")
	}
}

// fakeCall records one out-call and blocks until the test supplies its
// result over resultCh.
type fakeCall struct {
	kind     string // "observe", "approve", "handle"
	endpoint string
	resultCh chan error
}

type fakeProxy struct {
	mu    sync.Mutex
	calls []*fakeCall
}

func newFakeProxy() *fakeProxy { return &fakeProxy{} }

func (p *fakeProxy) record(kind, endpoint string) *fakeCall {
	c := &fakeCall{kind: kind, endpoint: endpoint, resultCh: make(chan error, 1)}
	p.mu.Lock()
	p.calls = append(p.calls, c)
	p.mu.Unlock()
	return c
}

func (p *fakeProxy) countOf(kind, endpoint string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c.kind == kind && c.endpoint == endpoint {
			n++
		}
	}
	return n
}

func (p *fakeProxy) ObserveChannels(ctx context.Context, ep *registry.Endpoint, req dispatchop.ObserveChannelsRequest) error {
	c := p.record("observe", ep.Name)
	return <-c.resultCh
}

func (p *fakeProxy) AddDispatchOperation(ctx context.Context, ep *registry.Endpoint, req dispatchop.AddDispatchOperationRequest) error {
	c := p.record("approve", ep.Name)
	return <-c.resultCh
}

func (p *fakeProxy) HandleChannels(ctx context.Context, ep *registry.Endpoint, req dispatchop.HandleChannelsRequest) error {
	c := p.record("handle", ep.Name)
	return <-c.resultCh
}

// lastCallOf returns the most recent recorded call of kind for endpoint,
// used by tests to resolve its result deterministically.
func (p *fakeProxy) lastCallOf(t *testing.T, kind, endpoint string) *fakeCall {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.calls) - 1; i >= 0; i-- {
		if p.calls[i].kind == kind && p.calls[i].endpoint == endpoint {
			return p.calls[i]
		}
	}
	t.Fatalf("no %s call recorded for %s", kind, endpoint)
	return nil
}

type fakeSink struct {
	mu            sync.Mutex
	channelLost   []string
	finishedCount int
	finishReason  dispatchop.FinishReason
}

func (s *fakeSink) ChannelLost(op *dispatchop.CDO, path, errorName, errorMessage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelLost = append(s.channelLost, path)
}

func (s *fakeSink) Finished(op *dispatchop.CDO, reason dispatchop.FinishReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishedCount++
	s.finishReason = reason
}

func newTestRegistry() *registry.Registry {
	return registry.New("org.example.DispatchClient")
}

func registerHandler(reg *registry.Registry, name string, bypass bool) {
	reg.Register(&registry.Endpoint{Name: name, Roles: registry.RoleHandler, Filter: registry.MatchAny(), BypassApproval: bypass})
}

func registerObserver(reg *registry.Registry, name string) {
	reg.Register(&registry.Endpoint{Name: name, Roles: registry.RoleObserver, Filter: registry.MatchAny()})
}

func registerApprover(reg *registry.Registry, name string) {
	reg.Register(&registry.Endpoint{Name: name, Roles: registry.RoleApprover, Filter: registry.MatchAny()})
}

// Scenario 1: happy path, approval required.
func TestHappyPathApprovalRequired(t *testing.T) {
	exec := newSyncExecutor()
	proxy := newFakeProxy()
	sink := &fakeSink{}
	reg := newTestRegistry()
	registerObserver(reg, "O1")
	registerApprover(reg, "A1")
	registerHandler(reg, "H1", false)
	registerHandler(reg, "H2", false)

	hmap := handlermap.New()
	ch1 := dispatchop.NewChannel("/ch1", "org.example.Call", dispatchop.DirectionIncoming, nil, "/conn1", "/acct1", nil)
	counter := dispatchop.NewCounter()

	op, err := dispatchop.New(counter, "/do/", []*dispatchop.Channel{ch1}, true, false, []string{"H1", "H2"}, reg, hmap, proxy, sink, exec, time.Second)
	require.NoError(t, err)

	op.Run(context.Background())

	assert.Equal(t, 1, proxy.countOf("observe", "O1"))
	assert.Equal(t, 1, proxy.countOf("approve", "A1"))
	assert.Equal(t, 0, proxy.countOf("handle", "H1"))

	// O1 replies success.
	proxy.lastCallOf(t, "observe", "O1").resultCh <- nil
	exec.waitOne(t)

	// A1 replies success (accepts).
	proxy.lastCallOf(t, "approve", "A1").resultCh <- nil
	exec.waitOne(t)

	require.NoError(t, op.HandleWith("org.example.DispatchClient.Client.H1"))

	proxy.lastCallOf(t, "handle", "H1").resultCh <- nil
	exec.waitOne(t)

	assert.Equal(t, 1, proxy.countOf("handle", "H1"))
	assert.Equal(t, 0, proxy.countOf("handle", "H2"))

	entry, ok := hmap.Lookup("/ch1")
	require.True(t, ok)
	assert.Equal(t, "H1", entry.HandlerName)

	assert.Equal(t, 1, sink.finishedCount)
	assert.Empty(t, sink.channelLost)
	assert.Equal(t, dispatchop.FinishByHandler, sink.finishReason.Kind)
}

// Scenario 2: bypass approval.
func TestBypassApproval(t *testing.T) {
	exec := newSyncExecutor()
	proxy := newFakeProxy()
	sink := &fakeSink{}
	reg := newTestRegistry()
	registerHandler(reg, "H1", true)

	hmap := handlermap.New()
	ch1 := dispatchop.NewChannel("/ch1", "org.example.Call", dispatchop.DirectionIncoming, nil, "/conn1", "/acct1", nil)
	counter := dispatchop.NewCounter()

	op, err := dispatchop.New(counter, "/do/", []*dispatchop.Channel{ch1}, true, false, []string{"H1"}, reg, hmap, proxy, sink, exec, time.Second)
	require.NoError(t, err)

	op.Run(context.Background())

	assert.Equal(t, 0, proxy.countOf("approve", "A1"))

	proxy.lastCallOf(t, "handle", "H1").resultCh <- nil
	exec.waitOne(t)

	assert.Equal(t, 1, proxy.countOf("handle", "H1"))
	assert.Equal(t, 1, sink.finishedCount)
}

// Scenario 3: no approver accepts.
func TestNoApproverAccepts(t *testing.T) {
	exec := newSyncExecutor()
	proxy := newFakeProxy()
	sink := &fakeSink{}
	reg := newTestRegistry()
	registerApprover(reg, "A1")
	registerApprover(reg, "A2")
	registerHandler(reg, "H1", false)

	hmap := handlermap.New()
	ch1 := dispatchop.NewChannel("/ch1", "org.example.Call", dispatchop.DirectionIncoming, nil, "/conn1", "/acct1", nil)
	counter := dispatchop.NewCounter()

	op, err := dispatchop.New(counter, "/do/", []*dispatchop.Channel{ch1}, true, false, []string{"H1"}, reg, hmap, proxy, sink, exec, time.Second)
	require.NoError(t, err)

	op.Run(context.Background())

	proxy.lastCallOf(t, "approve", "A1").resultCh <- assertError("A1 declines")
	exec.waitOne(t)
	proxy.lastCallOf(t, "approve", "A2").resultCh <- assertError("A2 declines")
	exec.waitOne(t)

	proxy.lastCallOf(t, "handle", "H1").resultCh <- nil
	exec.waitOne(t)

	assert.Equal(t, 1, proxy.countOf("handle", "H1"))
	assert.Equal(t, 1, sink.finishedCount)
}

// Scenario 4: claim wins the race.
func TestClaimWinsTheRace(t *testing.T) {
	exec := newSyncExecutor()
	proxy := newFakeProxy()
	sink := &fakeSink{}
	reg := newTestRegistry()
	registerApprover(reg, "A1")
	registerHandler(reg, "H1", false)

	hmap := handlermap.New()
	ch1 := dispatchop.NewChannel("/ch1", "org.example.Call", dispatchop.DirectionIncoming, nil, "/conn1", "/acct1", nil)
	counter := dispatchop.NewCounter()

	op, err := dispatchop.New(counter, "/do/", []*dispatchop.Channel{ch1}, true, false, []string{"H1"}, reg, hmap, proxy, sink, exec, time.Second)
	require.NoError(t, err)

	op.Run(context.Background())

	var claimErr error
	var claimEntries []handlermap.Entry
	done := make(chan struct{})
	op.Claim("org.example.DispatchClient.Client.X", func(entries []handlermap.Entry, err error) {
		claimEntries = entries
		claimErr = err
		close(done)
	})

	proxy.lastCallOf(t, "approve", "A1").resultCh <- nil
	exec.waitOne(t)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("claim reply never arrived")
	}

	require.NoError(t, claimErr)
	require.Len(t, claimEntries, 1)
	assert.Equal(t, "X", claimEntries[0].HandlerName)
	assert.Equal(t, 0, proxy.countOf("handle", "H1"))

	entry, ok := hmap.Lookup("/ch1")
	require.True(t, ok)
	assert.Equal(t, "X", entry.HandlerName)
	assert.Equal(t, 1, sink.finishedCount)
	assert.Equal(t, dispatchop.FinishByClaim, sink.finishReason.Kind)
}

// Scenario 5: channel lost mid-dispatch, others continue.
func TestChannelLostMidDispatch(t *testing.T) {
	exec := newSyncExecutor()
	proxy := newFakeProxy()
	sink := &fakeSink{}
	reg := newTestRegistry()
	registerObserver(reg, "O1")
	registerHandler(reg, "H1", false)

	hmap := handlermap.New()
	ch1 := dispatchop.NewChannel("/ch1", "org.example.Call", dispatchop.DirectionIncoming, nil, "/conn1", "/acct1", nil)
	ch2 := dispatchop.NewChannel("/ch2", "org.example.Call", dispatchop.DirectionIncoming, nil, "/conn1", "/acct1", nil)
	counter := dispatchop.NewCounter()

	op, err := dispatchop.New(counter, "/do/", []*dispatchop.Channel{ch1, ch2}, false, false, []string{"H1"}, reg, hmap, proxy, sink, exec, time.Second)
	require.NoError(t, err)

	op.Run(context.Background())

	ch1.Abort(dispatchop.ErrCancelled(""))
	exec.waitOne(t)

	assert.Empty(t, sink.channelLost, "ChannelLost must be deferred while the observer is still pending")

	proxy.lastCallOf(t, "observe", "O1").resultCh <- nil
	exec.waitOne(t)

	assert.Equal(t, []string{"/ch1"}, sink.channelLost)

	proxy.lastCallOf(t, "handle", "H1").resultCh <- nil
	exec.waitOne(t)

	assert.Equal(t, 1, proxy.countOf("handle", "H1"))
	require.Len(t, op.Channels(), 1, "ch2 is handled, not removed, so it remains on the CDO")
	assert.Equal(t, "/ch2", op.Channels()[0].ObjectPath)
	assert.Equal(t, 1, sink.finishedCount)
}

// Scenario 6: all handlers vanished.
func TestAllHandlersVanished(t *testing.T) {
	exec := newSyncExecutor()
	proxy := newFakeProxy()
	sink := &fakeSink{}
	reg := newTestRegistry() // no handlers registered at all

	hmap := handlermap.New()
	ch1 := dispatchop.NewChannel("/ch1", "org.example.Call", dispatchop.DirectionIncoming, nil, "/conn1", "/acct1", nil)
	counter := dispatchop.NewCounter()

	op, err := dispatchop.New(counter, "/do/", []*dispatchop.Channel{ch1}, false, false, []string{"H1"}, reg, hmap, proxy, sink, exec, time.Second)
	require.NoError(t, err)

	op.Run(context.Background())
	exec.waitOne(t) // ch1's synthetic abort, submitted (and run) inline during Run

	_, ok := hmap.Lookup("/ch1")
	assert.False(t, ok)
	assert.Equal(t, 1, sink.finishedCount)
	assert.Equal(t, dispatchop.FinishNoHandlers, sink.finishReason.Kind)
}

// TestFinishedEmittedAtMostOnce is a property-style check of the
// "Finished is emitted at most once" invariant from spec.md §8: a
// bypass-approval handler finishes the CDO, and a Claim arriving after
// that is rejected without a second Finished.
func TestFinishedEmittedAtMostOnce(t *testing.T) {
	exec := newSyncExecutor()
	proxy := newFakeProxy()
	sink := &fakeSink{}
	reg := newTestRegistry()
	registerHandler(reg, "H1", true)

	hmap := handlermap.New()
	ch1 := dispatchop.NewChannel("/ch1", "org.example.Call", dispatchop.DirectionIncoming, nil, "/conn1", "/acct1", nil)
	counter := dispatchop.NewCounter()

	op, err := dispatchop.New(counter, "/do/", []*dispatchop.Channel{ch1}, true, false, []string{"H1"}, reg, hmap, proxy, sink, exec, time.Second)
	require.NoError(t, err)

	op.Run(context.Background())

	proxy.lastCallOf(t, "handle", "H1").resultCh <- nil
	exec.waitOne(t)

	assert.Equal(t, 1, sink.finishedCount)

	// A second Claim arriving after finish must be rejected, not double-finish.
	err2 := make(chan error, 1)
	op.Claim("org.example.DispatchClient.Client.Y", func(entries []handlermap.Entry, err error) { err2 <- err })
	assert.Equal(t, dispatchop.ErrNotYours, <-err2)
	assert.Equal(t, 1, sink.finishedCount)
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

func assertError(msg string) error { return simpleError(msg) }
