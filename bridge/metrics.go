package bridge

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wippyai/xml-bridge/pin"
	"github.com/wippyai/xml-bridge/vm"
)

const namespace = "xmlbridge"

// Parse entry points and results used as metric labels.
const (
	entryBytes = "bytes"
	entryFile  = "file"

	resultOK      = "ok"
	resultForeign = "foreign_exception"
	resultInvalid = "invalid_input"
)

// Unpin causes.
const (
	releaseClose   = "close"
	releaseCleanup = "cleanup"
)

// Metrics are the bridge's prometheus collectors.
type Metrics struct {
	Parses      *prometheus.CounterVec
	Unpins      *prometheus.CounterVec
	Pinned      prometheus.Gauge
	HeapUsed    prometheus.Gauge
	HeapSize    prometheus.Gauge
	LiveObjects prometheus.Gauge
	Collections prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		Parses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parses_total",
			Help:      "Parse calls by entry point and result.",
		}, []string{"entry", "result"}),
		Unpins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unpins_total",
			Help:      "Documents released, by what released them.",
		}, []string{"how"}),
		Pinned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pinned_documents",
			Help:      "Documents currently anchored for host handles.",
		}),
		HeapUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "heap",
			Name:      "used_bytes",
			Help:      "Bytes in live blocks of the foreign heap.",
		}),
		HeapSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "heap",
			Name:      "size_bytes",
			Help:      "Size of the foreign heap memory.",
		}),
		LiveObjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vm",
			Name:      "live_objects",
			Help:      "Objects in the foreign runtime, reachable or not yet collected.",
		}),
		Collections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vm",
			Name:      "collections",
			Help:      "Collections run by the foreign runtime.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Parses, m.Unpins, m.Pinned,
		m.HeapUsed, m.HeapSize, m.LiveObjects, m.Collections,
	}
}

func (m *Metrics) register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	for _, entry := range []string{entryBytes, entryFile} {
		for _, result := range []string{resultOK, resultForeign, resultInvalid} {
			m.Parses.WithLabelValues(entry, result).Add(0)
		}
	}
	m.Unpins.WithLabelValues(releaseClose).Add(0)
	m.Unpins.WithLabelValues(releaseCleanup).Add(0)
	return nil
}

func (m *Metrics) parsed(entry, result string) {
	m.Parses.WithLabelValues(entry, result).Inc()
}

func (m *Metrics) released(how string) {
	m.Unpins.WithLabelValues(how).Inc()
}

func (m *Metrics) observe(st vm.Stats) {
	m.HeapUsed.Set(float64(st.Heap.Used))
	m.HeapSize.Set(float64(st.Heap.Size))
	m.LiveObjects.Set(float64(st.Objects))
	m.Collections.Set(float64(st.Collections))
}

// OnPinEvent keeps the pinned gauge in step with the pin table.
func (m *Metrics) OnPinEvent(e pin.Event) {
	m.Pinned.Set(float64(e.Count))
}

var _ pin.Observer = (*Metrics)(nil)
