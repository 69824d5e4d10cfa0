// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Datapath statistics rebuilt on prometheus.CounterVec/GaugeVec in
// place of the teacher's hand-rolled map[string]any, labeled per
// interface/queue so a single process-wide registry serves every bound
// socket. GetSnapshot still returns a plain map for GET_SOCKOPT.

package control

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// MetricsRegistry holds the XSK datapath counters spec.md §6/§8 name:
// rx_dropped, rx_invalid_descriptors, rx_truncated,
// tx_invalid_descriptors, and the outstanding_frames gauge.
type MetricsRegistry struct {
	reg *prometheus.Registry

	rxDropped    *prometheus.CounterVec
	rxInvalid    *prometheus.CounterVec
	rxTruncated  *prometheus.CounterVec
	txInvalid    *prometheus.CounterVec
	outstanding  *prometheus.GaugeVec
}

// NewMetricsRegistry creates a standalone prometheus registry scoped
// to this process's XSK sockets.
func NewMetricsRegistry() *MetricsRegistry {
	mr := &MetricsRegistry{reg: prometheus.NewRegistry()}

	labels := []string{"if_index", "queue_id"}
	mr.rxDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xsk_rx_dropped_total",
		Help: "Frames dropped on RX due to insufficient fill/RX ring capacity.",
	}, labels)
	mr.rxInvalid = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xsk_rx_invalid_descriptors_total",
		Help: "Fill descriptors rejected for an out-of-bounds chunk address.",
	}, labels)
	mr.rxTruncated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xsk_rx_truncated_total",
		Help: "RX frames truncated to fit the destination chunk.",
	}, labels)
	mr.txInvalid = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xsk_tx_invalid_descriptors_total",
		Help: "TX descriptors rejected by validation.",
	}, labels)
	mr.outstanding = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "xsk_tx_outstanding_frames",
		Help: "TX frames submitted to the interface awaiting completion.",
	}, labels)

	mr.reg.MustRegister(mr.rxDropped, mr.rxInvalid, mr.rxTruncated, mr.txInvalid, mr.outstanding)
	return mr
}

// Registry exposes the underlying prometheus registry, e.g. for an
// HTTP /metrics handler in cmd/xsksim.
func (mr *MetricsRegistry) Registry() *prometheus.Registry { return mr.reg }

// Observe records one socket's current statistics snapshot. Counters
// are monotonic by construction (xsk.Statistics never decreases), so
// Observe sets each counter to the observed total via Add of the
// delta against its last-known value.
func (mr *MetricsRegistry) Observe(ifIndex, queueID string, rxDropped, rxInvalid, rxTruncated, txInvalid int64, outstandingFrames int32) {
	labels := prometheus.Labels{"if_index": ifIndex, "queue_id": queueID}
	setCounter(mr.rxDropped.With(labels), float64(rxDropped))
	setCounter(mr.rxInvalid.With(labels), float64(rxInvalid))
	setCounter(mr.rxTruncated.With(labels), float64(rxTruncated))
	setCounter(mr.txInvalid.With(labels), float64(txInvalid))
	mr.outstanding.With(labels).Set(float64(outstandingFrames))
}

// setCounter advances a counter to an absolute value, since the
// datapath already maintains the running total; Add only accepts a
// non-negative delta against prometheus's own last-written value.
func setCounter(c prometheus.Counter, total float64) {
	current := readCounter(c)
	if delta := total - current; delta > 0 {
		c.Add(delta)
	}
}

func readCounter(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil || m.Counter == nil {
		return 0
	}
	return m.Counter.GetValue()
}

// GetSnapshot returns one socket's counters as a plain map, for the
// teacher-style GET_SOCKOPT statistics surface.
func (mr *MetricsRegistry) GetSnapshot(ifIndex, queueID string) map[string]any {
	labels := prometheus.Labels{"if_index": ifIndex, "queue_id": queueID}
	return map[string]any{
		"rx_dropped":             readCounter(mr.rxDropped.With(labels)),
		"rx_invalid_descriptors": readCounter(mr.rxInvalid.With(labels)),
		"rx_truncated":           readCounter(mr.rxTruncated.With(labels)),
		"tx_invalid_descriptors": readCounter(mr.txInvalid.With(labels)),
	}
}
