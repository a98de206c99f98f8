package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tailserver"

var (
	linesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lines_total",
		Help:      "Total number of complete lines read from the followed file.",
	})
	bytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bytes_total",
		Help:      "Total number of bytes read from the followed file.",
	})
	rotationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rotations_total",
		Help:      "Total number of detected rotations, by reason (replaced, truncated).",
	}, []string{"reason"})
	unreadableTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unreadable_total",
		Help:      "Total number of polls where the followed path could not be inspected.",
	})
	reopenFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reopen_failures_total",
		Help:      "Total number of failed attempts to open the followed path.",
	})
	clientsConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "clients_connected",
		Help:      "Current number of connected clients.",
	})
	clientsAcceptedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "clients_accepted_total",
		Help:      "Total number of accepted client connections.",
	})
	clientsDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "clients_dropped_total",
		Help:      "Total number of removed clients, by reason.",
	}, []string{"reason"})
	linesDeliveredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lines_delivered_total",
		Help:      "Total number of lines queued to clients (one per line per client).",
	})
	clientFlushLines = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "client",
		Name:      "flush_lines",
		Help:      "Number of lines written to a client socket per flush.",
		Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
)

// Register registers all tailserver metrics to the provided Prometheus registerer.
// It is safe to call multiple times; AlreadyRegisteredError will be ignored.
func Register(r prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		linesTotal, bytesTotal, rotationsTotal, unreadableTotal, reopenFailuresTotal,
		clientsConnected, clientsAcceptedTotal, clientsDroppedTotal, linesDeliveredTotal,
		clientFlushLines,
	}
	for _, c := range collectors {
		if err := r.Register(c); err != nil {
			var alreadyRegisteredError prometheus.AlreadyRegisteredError
			if errors.As(err, &alreadyRegisteredError) {
				continue
			}
			return err
		}
	}
	return nil
}

// IncLines increments the read lines counter by n.
func IncLines(n int) {
	if n > 0 {
		linesTotal.Add(float64(n))
	}
}

// AddBytes adds n to the bytes counter.
func AddBytes(n int) {
	if n > 0 {
		bytesTotal.Add(float64(n))
	}
}

// IncRotations counts one rotation with the given reason.
func IncRotations(reason string) { rotationsTotal.WithLabelValues(reason).Inc() }

func IncUnreadable() { unreadableTotal.Inc() }

func IncReopenFailures() { reopenFailuresTotal.Inc() }

// ClientConnected tracks a newly registered client.
func ClientConnected() {
	clientsAcceptedTotal.Inc()
	clientsConnected.Inc()
}

// ClientDropped tracks the removal of a client.
func ClientDropped(reason string) {
	clientsConnected.Dec()
	clientsDroppedTotal.WithLabelValues(reason).Inc()
}

// AddDelivered adds n to the delivered lines counter.
func AddDelivered(n int) {
	if n > 0 {
		linesDeliveredTotal.Add(float64(n))
	}
}

// ObserveFlush records how many lines one client flush carried.
func ObserveFlush(lines int) {
	if lines > 0 {
		clientFlushLines.Observe(float64(lines))
	}
}
