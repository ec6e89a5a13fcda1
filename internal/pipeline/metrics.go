package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"aboproducts/internal/listing"
)

const (
	reasonExtension    = "extension"
	reasonMissingImage = "missing_image"
)

// Metrics counts one run's outcomes on a private registry so it can be
// written out as a node-exporter textfile when the run ends.
type Metrics struct {
	registry *prometheus.Registry

	listed       prometheus.Counter
	processed    prometheus.Counter
	written      prometheus.Counter
	skipped      *prometheus.CounterVec
	failed       *prometheus.CounterVec
	duration     prometheus.Gauge
	lastComplete prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	m := &Metrics{
		registry: reg,
		listed: factory.NewCounter(prometheus.CounterOpts{
			Name: "abo_extract_files_listed_total",
			Help: "Directory entries seen in the metadata dir.",
		}),
		processed: factory.NewCounter(prometheus.CounterOpts{
			Name: "abo_extract_documents_processed_total",
			Help: "Metadata documents opened for extraction.",
		}),
		written: factory.NewCounter(prometheus.CounterOpts{
			Name: "abo_extract_records_written_total",
			Help: "Records emitted to the output table.",
		}),
		skipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "abo_extract_skipped_total",
			Help: "Entries excluded without error, by reason.",
		}, []string{"reason"}),
		failed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "abo_extract_document_failures_total",
			Help: "Documents that failed to process, by error kind.",
		}, []string{"kind"}),
		duration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "abo_extract_run_duration_seconds",
			Help: "Wall time of the last completed run.",
		}),
		lastComplete: factory.NewGauge(prometheus.GaugeOpts{
			Name: "abo_extract_last_completion_timestamp_seconds",
			Help: "Unix time the last run completed.",
		}),
	}
	for _, reason := range []string{reasonExtension, reasonMissingImage} {
		m.skipped.WithLabelValues(reason)
	}
	for _, kind := range []listing.Kind{listing.ParseError, listing.FieldError, listing.FilesystemError} {
		m.failed.WithLabelValues(kind.String())
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile atomically writes the current values in the text exposition
// format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) observeListed() {
	if m != nil {
		m.listed.Inc()
	}
}

func (m *Metrics) observeProcessed() {
	if m != nil {
		m.processed.Inc()
	}
}

func (m *Metrics) observeWritten() {
	if m != nil {
		m.written.Inc()
	}
}

func (m *Metrics) observeSkipped(reason string) {
	if m != nil {
		m.skipped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) observeFailure(kind listing.Kind) {
	if m != nil {
		m.failed.WithLabelValues(kind.String()).Inc()
	}
}

func (m *Metrics) observeRun(s Summary) {
	if m == nil {
		return
	}
	m.duration.Set(s.Duration.Seconds())
	m.lastComplete.SetToCurrentTime()
}
