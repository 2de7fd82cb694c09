// Package metrics exposes Prometheus instrumentation for the ticketing
// engine.
package metrics

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_operations_total",
			Help: "Ledger operations by name and outcome",
		},
		[]string{"operation", "outcome"},
	)

	offersGranted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_offers_granted_total",
			Help: "Offers granted by the queue processor",
		},
	)

	offersExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_offers_expired_total",
			Help: "Offers that ended without a purchase, by cause",
		},
		[]string{"cause"},
	)

	ticketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_tickets_issued_total",
			Help: "Tickets issued by approved transactions",
		},
	)

	ticketsRefunded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_tickets_refunded_total",
			Help: "Tickets refunded by event cancellation",
		},
	)

	sweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ticketing_sweep_duration_seconds",
			Help:    "Duration of periodic sweeps",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"sweep"},
	)

	notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_notifications_total",
			Help: "Notifications handed to the sender, by outcome",
		},
		[]string{"kind", "outcome"},
	)
)

// Outcome classifies err for the operation counter.
type Outcome func(err error) string

// Observe records one operation.  classify maps domain errors to a
// short label; nil errors are always "ok".
func Observe(operation string, err error, classify Outcome) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if classify != nil {
			outcome = classify(err)
		}
	}
	operations.WithLabelValues(operation, outcome).Inc()
}

func OffersGranted(n int) {
	if n > 0 {
		offersGranted.Add(float64(n))
	}
}

// OfferExpired counts an offer ending without purchase.  cause is one of
// timer, sweep, released, rejected, transaction_expired.
func OfferExpired(cause string, n int) {
	if n > 0 {
		offersExpired.WithLabelValues(cause).Add(float64(n))
	}
}

func TicketIssued() { ticketsIssued.Inc() }

func TicketsRefunded(n int) {
	if n > 0 {
		ticketsRefunded.Add(float64(n))
	}
}

// ObserveSweep records how long a sweep took.
func ObserveSweep(sweep string, started time.Time) {
	sweepDuration.WithLabelValues(sweep).Observe(time.Since(started).Seconds())
}

func Notification(kind string, err error) {
	outcome := "sent"
	if err != nil {
		outcome = "failed"
		if errors.Is(err, ErrSkipped) {
			outcome = "skipped"
		}
	}
	notifications.WithLabelValues(kind, outcome).Inc()
}

// ErrSkipped marks a notification that was not sent on purpose, for
// example because no recipient address is known.
var ErrSkipped = errors.New("notification skipped")

// Handler serves the default registry.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
