package telemetry

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
)

// PrometheusExporter exports metrics in Prometheus text format.
type PrometheusExporter struct {
	collector *Collector
	namespace string
}

// NewPrometheusExporter creates a Prometheus exporter for the given
// collector. The namespace is prepended to all metric names (e.g. "qsp").
func NewPrometheusExporter(c *Collector, namespace string) *PrometheusExporter {
	return &PrometheusExporter{
		collector: c,
		namespace: namespace,
	}
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (e *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		e.WriteMetrics(w)
	})
}

// WriteMetrics writes all metrics in Prometheus text format to the writer.
func (e *PrometheusExporter) WriteMetrics(w io.Writer) {
	snap := e.collector.Snapshot()
	labels := e.formatLabels(snap.Labels)

	e.writeHelp(w, "handshakes_started_total", "Total handshakes started")
	e.writeType(w, "handshakes_started_total", "counter")
	e.writeMetric(w, "handshakes_started_total", labels, float64(snap.HandshakesStarted))

	e.writeHelp(w, "handshakes_completed_total", "Total handshakes completed")
	e.writeType(w, "handshakes_completed_total", "counter")
	e.writeMetric(w, "handshakes_completed_total", labels, float64(snap.HandshakesCompleted))

	e.writeHelp(w, "handshakes_failed_total", "Total handshakes that failed")
	e.writeType(w, "handshakes_failed_total", "counter")
	e.writeMetric(w, "handshakes_failed_total", labels, float64(snap.HandshakesFailed))

	e.writeHelp(w, "messages_encrypted_total", "Total messages encrypted")
	e.writeType(w, "messages_encrypted_total", "counter")
	e.writeMetric(w, "messages_encrypted_total", labels, float64(snap.MessagesEncrypted))

	e.writeHelp(w, "messages_decrypted_total", "Total messages decrypted")
	e.writeType(w, "messages_decrypted_total", "counter")
	e.writeMetric(w, "messages_decrypted_total", labels, float64(snap.MessagesDecrypted))

	e.writeHelp(w, "dh_ratchet_steps_total", "Total DH ratchet steps taken")
	e.writeType(w, "dh_ratchet_steps_total", "counter")
	e.writeMetric(w, "dh_ratchet_steps_total", labels, float64(snap.DHRatchetSteps))

	e.writeHelp(w, "skipped_keys_parked", "Current out-of-order message keys held in cache")
	e.writeType(w, "skipped_keys_parked", "gauge")
	e.writeMetric(w, "skipped_keys_parked", labels, float64(snap.SkippedKeysParked))

	e.writeHelp(w, "decrypt_auth_failures_total", "Total AEAD open failures")
	e.writeType(w, "decrypt_auth_failures_total", "counter")
	e.writeMetric(w, "decrypt_auth_failures_total", labels, float64(snap.DecryptAuthFailures))

	e.writeHelp(w, "replay_rejections_total", "Total messages rejected as replays")
	e.writeType(w, "replay_rejections_total", "counter")
	e.writeMetric(w, "replay_rejections_total", labels, float64(snap.ReplayRejections))

	e.writeHelp(w, "rollback_detections_total", "Total restores rejected for rolling back a durable record")
	e.writeType(w, "rollback_detections_total", "counter")
	e.writeMetric(w, "rollback_detections_total", labels, float64(snap.RollbackDetections))

	e.writeHelp(w, "suite2_reseeds_initiated_total", "Total Suite-2 boundary targets minted")
	e.writeType(w, "suite2_reseeds_initiated_total", "counter")
	e.writeMetric(w, "suite2_reseeds_initiated_total", labels, float64(snap.Suite2ReseedsInitiated))

	e.writeHelp(w, "suite2_reseeds_completed_total", "Total Suite-2 boundary messages accepted")
	e.writeType(w, "suite2_reseeds_completed_total", "counter")
	e.writeMetric(w, "suite2_reseeds_completed_total", labels, float64(snap.Suite2ReseedsCompleted))

	e.writeHelp(w, "suite2_reseeds_rejected_total", "Total Suite-2 boundary messages rejected")
	e.writeType(w, "suite2_reseeds_rejected_total", "counter")
	e.writeMetric(w, "suite2_reseeds_rejected_total", labels, float64(snap.Suite2ReseedsRejected))

	e.writeHelp(w, "uptime_seconds", "Time since the collector was created")
	e.writeType(w, "uptime_seconds", "gauge")
	e.writeMetric(w, "uptime_seconds", labels, snap.Uptime.Seconds())

	e.writeHistogram(w, "handshake_duration_milliseconds", "Handshake duration in milliseconds", labels, snap.HandshakeLatency)
	e.writeHistogram(w, "encrypt_duration_microseconds", "Encrypt operation duration in microseconds", labels, snap.EncryptLatency)
	e.writeHistogram(w, "decrypt_duration_microseconds", "Decrypt operation duration in microseconds", labels, snap.DecryptLatency)
}

func (e *PrometheusExporter) writeHelp(w io.Writer, name, help string) {
	fmt.Fprintf(w, "# HELP %s_%s %s\n", e.namespace, name, help)
}

func (e *PrometheusExporter) writeType(w io.Writer, name, typ string) {
	fmt.Fprintf(w, "# TYPE %s_%s %s\n", e.namespace, name, typ)
}

func (e *PrometheusExporter) writeMetric(w io.Writer, name, labels string, value float64) {
	if labels != "" {
		fmt.Fprintf(w, "%s_%s{%s} %g\n", e.namespace, name, labels, value)
	} else {
		fmt.Fprintf(w, "%s_%s %g\n", e.namespace, name, value)
	}
}

func (e *PrometheusExporter) writeHistogram(w io.Writer, name, help, labels string, h HistogramSummary) {
	e.writeHelp(w, name, help)
	e.writeType(w, name, "histogram")

	fullName := e.namespace + "_" + name

	for _, b := range h.Buckets {
		le := fmt.Sprintf("%g", b.UpperBound)
		if math.IsInf(b.UpperBound, 1) {
			le = "+Inf"
		}
		if labels != "" {
			fmt.Fprintf(w, "%s_bucket{%s,le=\"%s\"} %d\n", fullName, labels, le, b.Count)
		} else {
			fmt.Fprintf(w, "%s_bucket{le=\"%s\"} %d\n", fullName, le, b.Count)
		}
	}

	if labels != "" {
		fmt.Fprintf(w, "%s_sum{%s} %g\n", fullName, labels, h.Sum)
		fmt.Fprintf(w, "%s_count{%s} %d\n", fullName, labels, h.Count)
	} else {
		fmt.Fprintf(w, "%s_sum %g\n", fullName, h.Sum)
		fmt.Fprintf(w, "%s_count %d\n", fullName, h.Count)
	}
}

func (e *PrometheusExporter) formatLabels(labels Labels) string {
	if len(labels) == 0 {
		return ""
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := escapePromValue(labels[k])
		parts = append(parts, fmt.Sprintf("%s=\"%s\"", k, v))
	}

	return strings.Join(parts, ",")
}

func escapePromValue(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// ServePrometheus starts an HTTP server serving Prometheus metrics. A
// convenience function for simple use cases; production hosts should wire
// the exporter's Handler into their own mux instead.
func ServePrometheus(addr string, c *Collector, namespace string) error {
	exp := NewPrometheusExporter(c, namespace)
	mux := http.NewServeMux()
	mux.Handle("/metrics", exp.Handler())
	return newHTTPServer(addr, mux).ListenAndServe()
}
