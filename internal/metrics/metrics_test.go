package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNew_CreatesAllMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	if m == nil {
		t.Fatal("New returned nil")
	}

	if m.cdoConstructedTotal == nil {
		t.Error("cdoConstructedTotal not initialized")
	}
	if m.cdoActiveGauge == nil {
		t.Error("cdoActiveGauge not initialized")
	}
	if m.cdoFinishedTotal == nil {
		t.Error("cdoFinishedTotal not initialized")
	}
	if m.cdoLifetimeDuration == nil {
		t.Error("cdoLifetimeDuration not initialized")
	}
	if m.observeOutcallTotal == nil {
		t.Error("observeOutcallTotal not initialized")
	}
	if m.approveOutcallTotal == nil {
		t.Error("approveOutcallTotal not initialized")
	}
	if m.handleOutcallTotal == nil {
		t.Error("handleOutcallTotal not initialized")
	}
	if m.redispatchTotal == nil {
		t.Error("redispatchTotal not initialized")
	}
	if m.outcallDuration == nil {
		t.Error("outcallDuration not initialized")
	}
	if m.endpointsActiveGauge == nil {
		t.Error("endpointsActiveGauge not initialized")
	}
	if m.httpRequestsTotal == nil {
		t.Error("httpRequestsTotal not initialized")
	}
	if m.httpRequestDuration == nil {
		t.Error("httpRequestDuration not initialized")
	}
	if !m.registered {
		t.Error("expected registered to be true when a registry is supplied")
	}
}

func TestNew_NilRegistry_DoesNotRegister(t *testing.T) {
	m := New(nil)

	if m == nil {
		t.Fatal("New returned nil")
	}
	if m.registered {
		t.Error("expected registered to be false when registry is nil")
	}

	// Recording on a non-registered Metrics must not panic.
	m.ObserveConstructed("org.example.Call")
}

func TestNilMetrics_MethodsAreNoOps(t *testing.T) {
	var m *Metrics

	m.ObserveConstructed("org.example.Call")
	m.SetActiveCDOs("org.example.Call", 3)
	m.ObserveFinished("org.example.Call", ReasonHandled, 1.5)
	m.ObserveOutcall("observe", true)
	m.ObserveRedispatch("org.example.Call")
	m.ObserveOutcallDuration("org.example.DispatchClient.H1", "POST", 0.2)
	m.SetActiveEndpoints("handler", 2)
	m.ObserveHTTPRequest("GET", "/dispatch-operations", StatusSuccess, 0.01)
}

func TestMetrics_ObserveConstructed_IncrementsCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveConstructed("org.example.Call")
	m.ObserveConstructed("org.example.Call")
	m.ObserveConstructed("org.example.Message")

	mfs, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range mfs {
		if mf.GetName() == "dispatchd_cdo_constructed_total" {
			found = true
		}
	}
	if !found {
		t.Error("expected dispatchd_cdo_constructed_total metric")
	}
}

func TestMetrics_ObserveFinished_RecordsCounterAndHistogram(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveFinished("org.example.Call", ReasonHandled, 0.25)
	m.ObserveFinished("org.example.Call", ReasonNoHandler, 30.0)

	mfs, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	wantNames := map[string]bool{
		"dispatchd_cdo_finished_total":  false,
		"dispatchd_cdo_lifetime_seconds": false,
	}
	for _, mf := range mfs {
		if _, ok := wantNames[mf.GetName()]; ok {
			wantNames[mf.GetName()] = true
		}
	}
	for name, seen := range wantNames {
		if !seen {
			t.Errorf("expected %s metric to be registered", name)
		}
	}
}

func TestMetrics_ObserveOutcall_DispatchesToCorrectCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveOutcall("observe", true)
	m.ObserveOutcall("approve", false)
	m.ObserveOutcall("handle", true)
	m.ObserveOutcall("unknown-phase", true) // must not panic, must not register

	mfs, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	if len(mfs) == 0 {
		t.Error("expected at least one metric family after recording out-calls")
	}
}

func TestMetrics_ObserveHTTPRequest_RecordsCounterAndHistogram(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveHTTPRequest("GET", "/dispatch-operations/{id}", StatusSuccess, 0.05)
	m.ObserveHTTPRequest("POST", "/dispatch-operations/{id}/claim", StatusError, 1.2)

	mfs, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	wantNames := map[string]bool{
		"dispatchd_http_requests_total":           false,
		"dispatchd_http_request_duration_seconds": false,
	}
	for _, mf := range mfs {
		if _, ok := wantNames[mf.GetName()]; ok {
			wantNames[mf.GetName()] = true
		}
	}
	for name, seen := range wantNames {
		if !seen {
			t.Errorf("expected %s metric to be registered", name)
		}
	}
}
