package prometheus_observer

import (
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jdelaire/botpoll/core"
)

const unhandled = "none"

// Metrics records poll and dispatch activity as Prometheus metrics. It
// implements core.Observer and provides callbacks for the poller options.
type Metrics struct {
	dispatched      *prometheus.CounterVec
	handlerFailures prometheus.Counter
	latency         *prometheus.HistogramVec
	fetched         prometheus.Counter
	polls           prometheus.Counter
	requestErrors   *prometheus.CounterVec
	generalErrors   prometheus.Counter
}

var _ core.Observer = (*Metrics)(nil)

// New creates the metrics under namespace and registers them with reg.
func New(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "updates_total",
			Help:      "Updates that left the handler chain, by kind and claiming handler.",
		}, []string{"kind", "handler"}),
		handlerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "handler_failures_total",
			Help:      "Handler steps that failed and were skipped.",
		}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent running an update through the handler chain.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler"}),
		fetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "updates_fetched_total",
			Help:      "Updates returned by getUpdates.",
		}),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "polls_total",
			Help:      "Successful getUpdates calls.",
		}),
		requestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "request_errors_total",
			Help:      "getUpdates calls rejected by the API, by error code.",
		}, []string{"code"}),
		generalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "general_errors_total",
			Help:      "getUpdates calls that failed for any other reason.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.dispatched, m.handlerFailures, m.latency, m.fetched, m.polls, m.requestErrors, m.generalErrors,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveDispatch implements core.Observer.
func (m *Metrics) ObserveDispatch(r core.DispatchResult) {
	handler := string(r.HandledBy)
	if handler == "" {
		handler = unhandled
	}
	m.dispatched.WithLabelValues(string(r.Update.Kind()), handler).Inc()
	m.latency.WithLabelValues(handler).Observe(r.Duration.Seconds())

	if r.Err == nil {
		return
	}
	if merr, ok := r.Err.(*multierror.Error); ok {
		m.handlerFailures.Add(float64(len(merr.Errors)))
		return
	}
	m.handlerFailures.Inc()
}

// ObserveBatch counts one successful fetch of n updates.
func (m *Metrics) ObserveBatch(n int) {
	m.polls.Inc()
	m.fetched.Add(float64(n))
}

// RequestError counts an API rejection.
func (m *Metrics) RequestError(err *core.RequestError) {
	m.requestErrors.WithLabelValues(strconv.Itoa(err.Code)).Inc()
}

// GeneralError counts any other fetch failure.
func (m *Metrics) GeneralError(error) {
	m.generalErrors.Inc()
}
