package prometheus_observer_test

import (
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jdelaire/botpoll/adapters/prometheus_observer"
	"github.com/jdelaire/botpoll/core"
)

func newMetrics(t *testing.T) (*prometheus_observer.Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := prometheus_observer.New("botpoll", reg)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	return m, reg
}

func TestObserveDispatch(t *testing.T) {
	m, reg := newMetrics(t)
	msg := core.Update{ID: 1, Message: &core.Message{Text: "hi"}}

	var failures *multierror.Error
	failures = multierror.Append(failures, errors.New("a"), errors.New("b"))

	m.ObserveDispatch(core.DispatchResult{Update: msg, HandledBy: "echo"})
	m.ObserveDispatch(core.DispatchResult{Update: msg, HandledBy: "echo", Err: failures})
	m.ObserveDispatch(core.DispatchResult{Update: msg})

	count, err := testutil.GatherAndCount(reg, "botpoll_dispatcher_updates_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 2 {
		t.Errorf("label series = %d, want 2 (echo and none)", count)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		switch mf.GetName() {
		case "botpoll_dispatcher_handler_failures_total":
			if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 2 {
				t.Errorf("handler failures = %v, want 2", got)
			}
		case "botpoll_dispatcher_updates_total":
			for _, metric := range mf.GetMetric() {
				for _, lp := range metric.GetLabel() {
					if lp.GetName() == "handler" && lp.GetValue() == "echo" {
						if got := metric.GetCounter().GetValue(); got != 2 {
							t.Errorf("echo dispatches = %v, want 2", got)
						}
					}
				}
			}
		}
	}
}

func TestPollerCallbacks(t *testing.T) {
	m, reg := newMetrics(t)

	m.ObserveBatch(3)
	m.ObserveBatch(0)
	m.RequestError(&core.RequestError{Code: 401})
	m.RequestError(&core.RequestError{Code: 401})
	m.GeneralError(errors.New("reset"))

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	want := map[string]float64{
		"botpoll_poller_updates_fetched_total": 3,
		"botpoll_poller_polls_total":           2,
		"botpoll_poller_request_errors_total":  2,
		"botpoll_poller_general_errors_total":  1,
	}
	for _, mf := range mfs {
		expected, ok := want[mf.GetName()]
		if !ok {
			continue
		}
		if got := mf.GetMetric()[0].GetCounter().GetValue(); got != expected {
			t.Errorf("%s = %v, want %v", mf.GetName(), got, expected)
		}
		delete(want, mf.GetName())
	}
	for name := range want {
		t.Errorf("metric %s not gathered", name)
	}
}

func TestDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := prometheus_observer.New("botpoll", reg); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := prometheus_observer.New("botpoll", reg); err == nil {
		t.Error("expected error registering the same metrics twice")
	}
}
