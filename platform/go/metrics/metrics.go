package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rentflow"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route pattern, method and status code.",
	}, []string{"route", "method", "code"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "latency_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets: []float64{
			0.001, 0.005, 0.01, 0.025, 0.05,
			0.1, 0.25, 0.5, 1, 2.5, 5,
		},
	}, []string{"route", "method"})

	applicationTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "applications",
		Name:      "transitions_total",
		Help:      "Application transitions by operation and result (applied or refused).",
	}, []string{"operation", "result"})

	inviteConsumptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "invites",
		Name:      "consumptions_total",
		Help:      "Invite token consumption attempts by result.",
	}, []string{"result"})

	leadTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "leads",
		Name:      "transitions_total",
		Help:      "Lead funnel updates by target status and result.",
	}, []string{"status", "result"})

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Domain events dispatched on the in-process bus by event name and result.",
	}, []string{"event", "result"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "triggers_total",
		Help:      "Status changes that would trigger an outbound notification, by target status.",
	}, []string{"status"})
)

func result(ok bool) string {
	if ok {
		return "applied"
	}
	return "refused"
}

// ObserveTransition counts one application transition attempt.
func ObserveTransition(operation string, applied bool) {
	applicationTransitions.WithLabelValues(operation, result(applied)).Inc()
}

// ObserveConsumption counts one invite token consumption attempt. outcome is "consumed" or a
// denial reason.
func ObserveConsumption(outcome string) {
	inviteConsumptions.WithLabelValues(outcome).Inc()
}

func ObserveLeadTransition(status string, applied bool) {
	leadTransitions.WithLabelValues(status, result(applied)).Inc()
}

func ObserveEvent(name string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	eventsPublished.WithLabelValues(name, outcome).Inc()
}

func ObserveNotification(status string) {
	notifications.WithLabelValues(status).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HTTP records request counts and latency keyed by the chi route pattern, so path parameters
// do not explode label cardinality.
func HTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		httpLatency.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
