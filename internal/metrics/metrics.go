// Package metrics exposes Prometheus counters for the daemon's
// event-to-action pipeline, served over HTTP alongside the daemon
// loop.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "udevd_events_received_total",
		Help: "Hot-plug events received from the kernel netlink socket.",
	})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "udevd_events_dropped_total",
		Help: "Events dropped before rule matching, by reason.",
	}, []string{"reason"})

	RulesMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "udevd_rules_matched_total",
		Help: "Events for which a rule matched and its actions ran.",
	})

	RulesUnmatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "udevd_rules_unmatched_total",
		Help: "Events for which no rule matched.",
	})

	RuleReloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "udevd_rule_reloads_total",
		Help: "Times the rule list was successfully reparsed and swapped in.",
	})
)

// Serve starts a Prometheus /metrics HTTP server on addr. It returns
// immediately; the server runs until ctx is cancelled.
func Serve(ctx context.Context, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		_ = srv.ListenAndServe()
	}()

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	return srv
}
