package docstore

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the prometheus collectors of an engine
type Metrics struct {
	DocumentsWritten   prometheus.Counter
	WriteErrors        *prometheus.CounterVec
	CompactedRevisions prometheus.Counter
	ChangesSubscribers prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		DocumentsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docstore",
			Name:      "documents_written_total",
			Help:      "Number of document revisions written or acknowledged by BulkDocs.",
		}),
		WriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docstore",
			Name:      "write_errors_total",
			Help:      "Number of failed BulkDocs entries by error name.",
		}, []string{"error"}),
		CompactedRevisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docstore",
			Name:      "compacted_revisions_total",
			Help:      "Number of revisions whose bodies were removed by compaction.",
		}),
		ChangesSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "docstore",
			Name:      "changes_subscribers",
			Help:      "Number of active continuous changes subscriptions.",
		}),
	}
}

// NewMetrics creates metrics and registers them with registerer.
// A nil registerer leaves them unregistered.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	metrics := newMetrics()

	if registerer == nil {
		return metrics, nil
	}

	for _, collector := range []prometheus.Collector{
		metrics.DocumentsWritten,
		metrics.WriteErrors,
		metrics.CompactedRevisions,
		metrics.ChangesSubscribers,
	} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}

	return metrics, nil
}

func (metrics *Metrics) documentWritten() {
	metrics.DocumentsWritten.Inc()
}

func (metrics *Metrics) writeError(err error) {
	name := "unknown"

	var docErr *Error

	if errors.As(err, &docErr) {
		name = docErr.Name
	} else if errors.Is(err, ErrClosed) {
		name = "closed"
	}

	metrics.WriteErrors.WithLabelValues(name).Inc()
}
