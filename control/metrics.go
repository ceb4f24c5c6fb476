// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus metrics for the netmap data path. Metrics implements
// stream.Observer so streams report into it inline.

package control

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/momentics/hioload-netmap/api"
	"github.com/momentics/hioload-netmap/stream"
)

// Metrics owns a private registry with the netmap collectors.
type Metrics struct {
	reg *prometheus.Registry

	packets    *prometheus.CounterVec
	syncs      *prometheus.CounterVec
	syncErrors *prometheus.CounterVec
	suspends   *prometheus.CounterVec
	reclaims   *prometheus.CounterVec
	available  *prometheus.GaugeVec
}

var _ stream.Observer = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	ringLabels := []string{"iface", "dir", "ring"}
	dirLabels := []string{"iface", "dir"}
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netmap_packets_total",
			Help: "Slots claimed from a ring.",
		}, ringLabels),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netmap_syncs_total",
			Help: "Kernel sync calls issued.",
		}, dirLabels),
		syncErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netmap_sync_errors_total",
			Help: "Kernel sync calls that failed.",
		}, dirLabels),
		suspends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netmap_suspends_total",
			Help: "Polls that found the ring empty after a sync.",
		}, ringLabels),
		reclaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netmap_reclaims_total",
			Help: "Packet releases returning slots to the kernel.",
		}, ringLabels),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netmap_ring_available",
			Help: "Slots between cur and tail after the last sync.",
		}, ringLabels),
	}
	m.reg.MustRegister(
		m.packets, m.syncs, m.syncErrors, m.suspends, m.reclaims, m.available,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func ringValues(iface string, id api.RingID) []string {
	return []string{iface, id.Dir.String(), strconv.FormatUint(uint64(id.Index), 10)}
}

func (m *Metrics) Delivered(iface string, id api.RingID) {
	m.packets.WithLabelValues(ringValues(iface, id)...).Inc()
}

func (m *Metrics) Synced(iface string, dir api.Direction, err error) {
	m.syncs.WithLabelValues(iface, dir.String()).Inc()
	if err != nil {
		m.syncErrors.WithLabelValues(iface, dir.String()).Inc()
	}
}

func (m *Metrics) Suspended(iface string, id api.RingID) {
	m.suspends.WithLabelValues(ringValues(iface, id)...).Inc()
}

func (m *Metrics) Reclaimed(iface string, id api.RingID) {
	m.reclaims.WithLabelValues(ringValues(iface, id)...).Inc()
}

func (m *Metrics) Available(iface string, id api.RingID, n uint32) {
	m.available.WithLabelValues(ringValues(iface, id)...).Set(float64(n))
}
