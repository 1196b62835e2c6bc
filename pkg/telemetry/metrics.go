package telemetry

import (
	"sync"
	"sync/atomic"
	"time"
)

// Labels are constant key/value pairs attached to every exported metric.
type Labels map[string]string

// Collector aggregates metrics from handshakes, ratchet sessions, and
// Suite-2 reseeds.
type Collector struct {
	// Handshake metrics
	handshakesStarted   atomic.Uint64
	handshakesCompleted atomic.Uint64
	handshakesFailed    atomic.Uint64
	handshakeLatency    *Histogram

	// Message metrics
	messagesEncrypted atomic.Uint64
	messagesDecrypted atomic.Uint64
	dhRatchetSteps    atomic.Uint64
	skippedKeysParked atomic.Uint64

	// Security metrics
	decryptAuthFailures  atomic.Uint64
	replayRejections     atomic.Uint64
	rollbackDetections   atomic.Uint64

	// Suite-2 reseed metrics
	suite2ReseedsInitiated atomic.Uint64
	suite2ReseedsCompleted atomic.Uint64
	suite2ReseedsRejected  atomic.Uint64

	// Performance histograms
	encryptLatency *Histogram
	decryptLatency *Histogram

	createdAt time.Time
	labels    Labels
}

// NewCollector creates a new metrics collector.
func NewCollector(labels Labels) *Collector {
	if labels == nil {
		labels = make(Labels)
	}

	return &Collector{
		handshakeLatency: NewHistogram(HandshakeLatencyBuckets),
		encryptLatency:   NewHistogram(LatencyBuckets),
		decryptLatency:   NewHistogram(LatencyBuckets),
		createdAt:        time.Now(),
		labels:           labels,
	}
}

// Default bucket configurations for histograms.
var (
	// HandshakeLatencyBuckets for handshake duration (milliseconds).
	HandshakeLatencyBuckets = []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

	// LatencyBuckets for encrypt/decrypt operations (microseconds).
	LatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000}
)

// --- Handshake Metrics ---

// HandshakeStarted increments the started-handshake counter.
func (c *Collector) HandshakeStarted() {
	c.handshakesStarted.Add(1)
}

// HandshakeCompleted increments the completed-handshake counter.
func (c *Collector) HandshakeCompleted() {
	c.handshakesCompleted.Add(1)
}

// HandshakeFailed records a failed handshake (bad signature, stale bundle,
// key-transparency rejection).
func (c *Collector) HandshakeFailed() {
	c.handshakesFailed.Add(1)
}

// RecordHandshakeLatency records the wall-clock duration of a completed
// handshake (HS1 send through HS2 processed, or HS1 receive through HS2
// sent).
func (c *Collector) RecordHandshakeLatency(d time.Duration) {
	c.handshakeLatency.Observe(float64(d.Milliseconds()))
}

// --- Message Metrics ---

// RecordMessageEncrypted increments the encrypted-message counter.
func (c *Collector) RecordMessageEncrypted() {
	c.messagesEncrypted.Add(1)
}

// RecordMessageDecrypted increments the decrypted-message counter.
func (c *Collector) RecordMessageDecrypted() {
	c.messagesDecrypted.Add(1)
}

// RecordDHRatchetStep increments the DH-ratchet-step counter, recorded each
// time a new DH public key arrives and the receive chain turns over.
func (c *Collector) RecordDHRatchetStep() {
	c.dhRatchetSteps.Add(1)
}

// SetSkippedKeysParked records the current size of a session's
// out-of-order message-key cache. A gauge, not a counter: callers should
// pass the live count, not a delta.
func (c *Collector) SetSkippedKeysParked(n uint64) {
	c.skippedKeysParked.Store(n)
}

// --- Security Metrics ---

// RecordDecryptAuthFailure increments the counter for an AEAD open that
// failed its authentication tag check.
func (c *Collector) RecordDecryptAuthFailure() {
	c.decryptAuthFailures.Add(1)
}

// RecordReplayRejection increments the counter for a message rejected as a
// replay (header nonce or counter already seen).
func (c *Collector) RecordReplayRejection() {
	c.replayRejections.Add(1)
}

// RecordRollbackDetection increments the counter for a restored session
// state rejected because it rolled back behind an already-durable
// Suite-2 record.
func (c *Collector) RecordRollbackDetection() {
	c.rollbackDetections.Add(1)
}

// --- Suite-2 Reseed Metrics ---

// RecordSuite2ReseedInitiated increments the counter for a minted boundary
// target.
func (c *Collector) RecordSuite2ReseedInitiated() {
	c.suite2ReseedsInitiated.Add(1)
}

// RecordSuite2ReseedCompleted increments the counter for an accepted
// boundary message that advanced both hybrid chains.
func (c *Collector) RecordSuite2ReseedCompleted() {
	c.suite2ReseedsCompleted.Add(1)
}

// RecordSuite2ReseedRejected increments the counter for a boundary message
// rejected under spec §4.5.5 (unknown, stale, non-monotonic, or
// already-consumed target).
func (c *Collector) RecordSuite2ReseedRejected() {
	c.suite2ReseedsRejected.Add(1)
}

// --- Performance Metrics ---

// RecordEncryptLatency records encrypt operation latency.
func (c *Collector) RecordEncryptLatency(d time.Duration) {
	c.encryptLatency.Observe(float64(d.Microseconds()))
}

// RecordDecryptLatency records decrypt operation latency.
func (c *Collector) RecordDecryptLatency(d time.Duration) {
	c.decryptLatency.Observe(float64(d.Microseconds()))
}

// --- Snapshot ---

// Snapshot returns a point-in-time snapshot of all metrics.
type Snapshot struct {
	Timestamp time.Time
	Uptime    time.Duration

	HandshakesStarted   uint64
	HandshakesCompleted uint64
	HandshakesFailed    uint64

	MessagesEncrypted uint64
	MessagesDecrypted uint64
	DHRatchetSteps    uint64
	SkippedKeysParked uint64

	DecryptAuthFailures uint64
	ReplayRejections    uint64
	RollbackDetections  uint64

	Suite2ReseedsInitiated uint64
	Suite2ReseedsCompleted uint64
	Suite2ReseedsRejected  uint64

	HandshakeLatency HistogramSummary
	EncryptLatency   HistogramSummary
	DecryptLatency   HistogramSummary

	Labels Labels
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Timestamp:              time.Now(),
		Uptime:                 time.Since(c.createdAt),
		HandshakesStarted:      c.handshakesStarted.Load(),
		HandshakesCompleted:    c.handshakesCompleted.Load(),
		HandshakesFailed:       c.handshakesFailed.Load(),
		MessagesEncrypted:      c.messagesEncrypted.Load(),
		MessagesDecrypted:      c.messagesDecrypted.Load(),
		DHRatchetSteps:         c.dhRatchetSteps.Load(),
		SkippedKeysParked:      c.skippedKeysParked.Load(),
		DecryptAuthFailures:    c.decryptAuthFailures.Load(),
		ReplayRejections:       c.replayRejections.Load(),
		RollbackDetections:     c.rollbackDetections.Load(),
		Suite2ReseedsInitiated: c.suite2ReseedsInitiated.Load(),
		Suite2ReseedsCompleted: c.suite2ReseedsCompleted.Load(),
		Suite2ReseedsRejected:  c.suite2ReseedsRejected.Load(),
		HandshakeLatency:       c.handshakeLatency.Summary(),
		EncryptLatency:         c.encryptLatency.Summary(),
		DecryptLatency:         c.decryptLatency.Summary(),
		Labels:                 c.labels,
	}
}

// Reset clears all metrics (useful for testing).
func (c *Collector) Reset() {
	c.handshakesStarted.Store(0)
	c.handshakesCompleted.Store(0)
	c.handshakesFailed.Store(0)
	c.messagesEncrypted.Store(0)
	c.messagesDecrypted.Store(0)
	c.dhRatchetSteps.Store(0)
	c.skippedKeysParked.Store(0)
	c.decryptAuthFailures.Store(0)
	c.replayRejections.Store(0)
	c.rollbackDetections.Store(0)
	c.suite2ReseedsInitiated.Store(0)
	c.suite2ReseedsCompleted.Store(0)
	c.suite2ReseedsRejected.Store(0)
	c.handshakeLatency.Reset()
	c.encryptLatency.Reset()
	c.decryptLatency.Reset()
	c.createdAt = time.Now()
}

// --- Global Collector ---

var (
	globalCollector     *Collector
	globalCollectorOnce sync.Once
)

// Global returns the global metrics collector, creating one with default
// settings on first use.
func Global() *Collector {
	globalCollectorOnce.Do(func() {
		globalCollector = NewCollector(Labels{"instance": "default"})
	})
	return globalCollector
}

// SetGlobal sets the global metrics collector. Call during initialization,
// before any metrics are recorded.
func SetGlobal(c *Collector) {
	globalCollectorOnce.Do(func() {})
	globalCollector = c
}
