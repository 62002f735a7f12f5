// Package metrics implements the C12 process-internal counters and their
// Prometheus text exposition, the observational counterpart of the teacher
// stack's own eth/metrics-style instrumentation, built directly on
// prometheus/client_golang rather than go-ethereum's home-grown
// rcrowley/go-metrics since this proxy has no existing metrics registry to
// stay compatible with.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lacrosse-labs/mcproxy/internal/proto"
)

// Registry holds every counter the proxy exposes. It is safe for
// concurrent use even though the pump itself is single-threaded, since the
// HTTP scrape handler runs from a different accept than the pump loop.
type Registry struct {
	reg *prometheus.Registry

	framesRelayed   *prometheus.CounterVec
	bytesRelayed    *prometheus.CounterVec
	bytesSaved      prometheus.Counter
	handshakeOK     prometheus.Counter
	handshakeFailed prometheus.Counter
	sessionsStarted prometheus.Counter
	sessionsEnded   prometheus.Counter
}

// New constructs a Registry with all counters registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		framesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcproxy",
			Name:      "frames_relayed_total",
			Help:      "Frames relayed, by direction.",
		}, []string{"direction"}),
		bytesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcproxy",
			Name:      "bytes_relayed_total",
			Help:      "Bytes relayed, by direction.",
		}, []string{"direction"}),
		bytesSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mcproxy",
			Name:      "compression_bytes_saved_total",
			Help:      "Bytes saved by zlib compression across all frames.",
		}),
		handshakeOK: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mcproxy",
			Name:      "handshakes_succeeded_total",
			Help:      "Dual handshakes completed successfully.",
		}),
		handshakeFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mcproxy",
			Name:      "handshakes_failed_total",
			Help:      "Dual handshakes aborted (token mismatch, decode error, etc).",
		}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mcproxy",
			Name:      "sessions_started_total",
			Help:      "Sessions accepted.",
		}),
		sessionsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mcproxy",
			Name:      "sessions_ended_total",
			Help:      "Sessions torn down.",
		}),
	}
	reg.MustRegister(r.framesRelayed, r.bytesRelayed, r.bytesSaved, r.handshakeOK, r.handshakeFailed, r.sessionsStarted, r.sessionsEnded)
	return r
}

// Handler returns the /metrics HTTP handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// FrameRelayed records one relayed frame of length n in direction dir.
func (r *Registry) FrameRelayed(dir proto.Direction, n int) {
	label := directionLabel(dir)
	r.framesRelayed.WithLabelValues(label).Inc()
	r.bytesRelayed.WithLabelValues(label).Add(float64(n))
}

// CompressionSaved records bytesSaved additional bytes avoided by sending a
// compressed frame instead of the raw one.
func (r *Registry) CompressionSaved(bytesSaved int) {
	if bytesSaved > 0 {
		r.bytesSaved.Add(float64(bytesSaved))
	}
}

// HandshakeSucceeded increments the handshake success counter.
func (r *Registry) HandshakeSucceeded() { r.handshakeOK.Inc() }

// HandshakeFailed increments the handshake failure counter.
func (r *Registry) HandshakeFailed() { r.handshakeFailed.Inc() }

// SessionStarted increments the sessions-started counter.
func (r *Registry) SessionStarted() { r.sessionsStarted.Inc() }

// SessionEnded increments the sessions-ended counter.
func (r *Registry) SessionEnded() { r.sessionsEnded.Inc() }

func directionLabel(dir proto.Direction) string {
	if dir == proto.ClientToServer {
		return "client_to_server"
	}
	return "server_to_client"
}
