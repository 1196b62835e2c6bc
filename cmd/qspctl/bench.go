package main

import (
	"fmt"
	"time"

	"github.com/qsproto/qsp-core/internal/ratchet"
	"github.com/qsproto/qsp-core/pkg/session"
	"github.com/qsproto/qsp-core/pkg/telemetry"
)

func runBench(handshakes, messages int) {
	collector := telemetry.NewCollector(telemetry.Labels{"run": "bench"})

	fmt.Printf("Benchmarking %d handshakes...\n", handshakes)
	for i := 0; i < handshakes; i++ {
		collector.HandshakeStarted()
		start := time.Now()

		_, _, err := establishSession()

		collector.RecordHandshakeLatency(time.Since(start))
		if err != nil {
			collector.HandshakeFailed()
			fail(err)
		}
		collector.HandshakeCompleted()
	}

	fmt.Printf("Benchmarking %d message round trips...\n", messages)
	aliceSession, bobSession, err := establishSession()
	fail(err)

	payload := []byte("benchmark payload, sixty-four bytes of filler text to mix-------")
	for i := 0; i < messages; i++ {
		start := time.Now()
		wireMsg, err := aliceSession.Encrypt(payload, ratchet.EncryptOptions{})
		fail(err)
		collector.RecordMessageEncrypted()
		collector.RecordEncryptLatency(time.Since(start))

		start = time.Now()
		_, err = bobSession.Decrypt(wireMsg)
		fail(err)
		collector.RecordMessageDecrypted()
		collector.RecordDecryptLatency(time.Since(start))
	}

	snap := collector.Snapshot()
	fmt.Println("\n--- results ---")
	fmt.Printf("handshakes:    completed=%d failed=%d  mean=%.2fms p99=%.2fms\n",
		snap.HandshakesCompleted, snap.HandshakesFailed,
		snap.HandshakeLatency.Mean, percentile(snap.HandshakeLatency, 0.99))
	fmt.Printf("encrypt:       count=%d  mean=%.2fus p99=%.2fus\n",
		snap.EncryptLatency.Count, snap.EncryptLatency.Mean, percentile(snap.EncryptLatency, 0.99))
	fmt.Printf("decrypt:       count=%d  mean=%.2fus p99=%.2fus\n",
		snap.DecryptLatency.Count, snap.DecryptLatency.Mean, percentile(snap.DecryptLatency, 0.99))
}

// establishSession runs one full handshake between a fresh initiator and a
// fresh responder identity and returns both sides' ready sessions.
func establishSession() (*session.Session, *session.Session, error) {
	bob, err := newResponder("bob@example.com", 1)
	if err != nil {
		return nil, nil, err
	}
	alice, err := session.GenerateIdentity()
	if err != nil {
		return nil, nil, err
	}
	sessionID, err := randomSessionID()
	if err != nil {
		return nil, nil, err
	}

	hs1, pending, err := session.HandshakeInit(alice, []byte("alice@example.com"), 7, bob.bundle, nil, sessionID, nil)
	if err != nil {
		return nil, nil, err
	}
	hs2, bobSession, err := session.HandshakeRespond(bob.identity, bob.prekeys, hs1, nil)
	if err != nil {
		return nil, nil, err
	}
	aliceSession, err := session.HandshakeFinalize(pending, hs2)
	if err != nil {
		return nil, nil, err
	}
	return aliceSession, bobSession, nil
}

func percentile(h telemetry.HistogramSummary, p float64) float64 {
	if v, ok := h.Percentiles[p]; ok {
		return v
	}
	return 0
}
