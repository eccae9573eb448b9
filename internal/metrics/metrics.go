// Package metrics exposes Prometheus counters for chat events, dialog
// transitions, button actions and digests.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	// Inbound events by kind, command and outcome
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planday_events_total",
			Help: "Total number of handled chat events",
		},
		[]string{"kind", "command", "outcome"},
	)

	eventDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "planday_event_duration_seconds",
			Help:    "Duration of chat event handling in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.3, 1, 3},
		},
		[]string{"kind"},
	)

	inFlightEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "planday_in_flight_events",
			Help: "Current number of chat events being handled",
		},
	)

	flowTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planday_flow_transitions_total",
			Help: "Dialog state changes by flow",
		},
		[]string{"flow", "from", "to"},
	)

	buttonActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planday_button_actions_total",
			Help: "Button presses by decoded action",
		},
		[]string{"action"},
	)

	digestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planday_digests_total",
			Help: "Scheduled daily digests by delivery outcome",
		},
		[]string{"outcome"},
	)
)

// TrackEvent marks an event as in flight. The returned func records its
// duration and outcome.
func TrackEvent(kind, command string) func(err error) {
	inFlightEvents.Inc()
	start := time.Now()
	return func(err error) {
		inFlightEvents.Dec()
		eventsTotal.WithLabelValues(kind, command, outcome(err)).Inc()
		eventDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}
}

// ObserveTransition counts a dialog state change
func ObserveTransition(flow, from, to string) {
	flowTransitions.WithLabelValues(flow, from, to).Inc()
}

// ObserveAction counts a decoded button action
func ObserveAction(action string) {
	buttonActions.WithLabelValues(action).Inc()
}

// ObserveDigest counts a scheduled digest delivery
func ObserveDigest(err error) {
	digestsTotal.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// Handler returns the HTTP handler for /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is cancelled
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
