// Package telemetry provides observability primitives for the messaging core.
//
// # Overview
//
// The telemetry package offers:
//   - Metrics collection (counters, histograms) for handshakes, ratchet
//     encrypt/decrypt, and Suite-2 reseeds
//   - Prometheus-compatible metrics export
//   - Distributed tracing support (OpenTelemetry-compatible interface)
//   - Structured logging with levels
//   - Health check endpoints
//
// # Quick Start
//
//	import "github.com/qsproto/qsp-core/pkg/telemetry"
//
//	telemetry.Global().HandshakeStarted()
//	telemetry.Global().RecordHandshakeLatency(150 * time.Millisecond)
//	telemetry.Global().RecordMessageEncrypted()
//
//	go telemetry.ServePrometheus(":9090", telemetry.Global(), "qsp")
//
// # Metrics Collection
//
//	collector := telemetry.NewCollector(telemetry.Labels{
//		"instance": "relay-1",
//	})
//	collector.HandshakeStarted()
//	collector.HandshakeCompleted()
//	collector.RecordHandshakeLatency(d)
//	collector.RecordMessageEncrypted()
//	collector.RecordMessageDecrypted()
//	collector.RecordSuite2ReseedCompleted()
//	snap := collector.Snapshot()
//
// # Prometheus Export
//
//	exporter := telemetry.NewPrometheusExporter(collector, "qsp")
//	http.Handle("/metrics", exporter.Handler())
//
// # Tracing
//
//	tracer := telemetry.NewSimpleTracer()
//	telemetry.SetTracer(tracer)
//
//	// Build with -tags otel to get a real OpenTelemetry adapter:
//	telemetry.SetTracer(telemetry.NewOTelTracer("qsp-core"))
//
//	ctx, end := telemetry.StartSpan(ctx, telemetry.SpanHandshakeInit)
//	defer end(nil) // or end(err) on failure
//
// # Structured Logging
//
//	logger := telemetry.NewLogger(
//		telemetry.WithLevel(telemetry.LevelInfo),
//		telemetry.WithFormat(telemetry.FormatJSON),
//		telemetry.WithFields(telemetry.Fields{"service": "qsp-core"}),
//	)
//	logger.Info("session established", telemetry.Fields{"session_id": sid})
//
// # Health Checks
//
//	health := telemetry.NewHealthCheck(collector, "1.0.0")
//	health.AddCheck("crypto_selftest", telemetry.SelfTestCheck)
//	http.Handle("/health", health.Handler())
//	http.Handle("/healthz", health.LivenessHandler())
//	http.Handle("/readyz", health.ReadinessHandler())
//
// # Observability Server
//
//	server := telemetry.NewServer(telemetry.ServerConfig{
//		Collector:        collector,
//		Version:          "1.0.0",
//		Namespace:        "qsp",
//		EnablePrometheus: true,
//		EnableHealth:     true,
//	})
//	go server.ListenAndServe(":9090")
package telemetry
