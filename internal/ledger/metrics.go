package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("funnelstat/ledger")

var (
	eventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funnelstat_ledger_events_recorded_total",
		Help: "Events committed to the ledger",
	}, []string{"type"})

	eventsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funnelstat_ledger_events_rejected_total",
		Help: "Events that failed validation",
	})

	subscriberFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funnelstat_ledger_subscriber_failures_total",
		Help: "Subscriber handlers that returned an error or panicked",
	})

	aggregateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "funnelstat_ledger_aggregate_seconds",
		Help:    "Time to compute a test aggregate",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1},
	})
)

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
