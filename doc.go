// Package qspcore provides a post-quantum-hardened secure messaging core:
// a hybrid X3DH-style handshake and a header-encrypting double ratchet,
// with an optional Suite-2 upgrade that folds a supplemental chain key
// advance into every message so a single compromised chain key no longer
// breaks forward secrecy on its own.
//
// Every classical primitive is paired with a post-quantum counterpart:
// X25519 with ML-KEM-768 (NIST FIPS 203) for key agreement, Ed25519 with
// ML-DSA-65 (NIST FIPS 204) for signatures. Both legs must be broken for
// an attacker to recover a session.
//
// # Quick Start
//
// The public entry point is pkg/session, which wraps the lower-level
// handshake/ratchet/SCKA engines into six operations:
//
//	import "github.com/qsproto/qsp-core/pkg/session"
//
//	bob, _ := session.GenerateIdentity()
//	// ... publish a PrekeyBundle for bob, retain its ResponderPrekeys ...
//
//	alice, _ := session.GenerateIdentity()
//	hs1, pending, _ := session.HandshakeInit(alice, []byte("alice"), 1, bundle, nil, sessionID, nil)
//	hs2, bobSession, _ := session.HandshakeRespond(bob, prekeys, hs1, nil)
//	aliceSession, _ := session.HandshakeFinalize(pending, hs2)
//
//	wireMsg, _ := aliceSession.Encrypt([]byte("hello"), ratchet.EncryptOptions{})
//	plaintext, _ := bobSession.Decrypt(wireMsg)
//
// # Package Structure
//
//   - pkg/session: public facade over handshake, ratchet, and SCKA
//   - pkg/telemetry: structured logging, metrics, tracing, and health checks
//   - pkg/version: build version metadata
//   - internal/qcrypto: X25519, ML-KEM-768, Ed25519, ML-DSA-65, KDF, AEAD
//   - internal/wire: canonical wire encoding for bundles and messages
//   - internal/handshake: hybrid handshake (build/process/finalize)
//   - internal/ratchet: header-encrypting double ratchet (Suite-1)
//   - internal/scka: Suite-2 supplemental chain key advance
//   - internal/selftest: power-on self-test and pairwise consistency checks
//   - internal/constants: protocol parameters and domain separation labels
//   - internal/errors: error types shared across the core
//
// # Security Properties
//
//   - Post-quantum key agreement: ML-KEM-768 (NIST Category 3)
//   - Classical key agreement: X25519 ECDH
//   - Hybrid guarantee: secure if either algorithm's hardness assumption holds
//   - Forward secrecy: per-message chain-key ratcheting and periodic DH ratchets
//   - Post-compromise security: Suite-2 boundary reseeds rotate the PQ leg independently
//   - Header encryption: message headers are encrypted, not just authenticated
//   - Key-committing AEAD: rules out multi-key decryption ambiguity
//
// # Testing
//
//	go test ./...                                      # All tests
//	go test -fuzz=FuzzDecodeHandshakeInit ./test/fuzz/ # Fuzz tests
//	go test -bench=. ./test/benchmark                  # Benchmarks
//
// # References
//
//   - NIST FIPS 203: Module-Lattice-Based Key-Encapsulation Mechanism Standard
//   - NIST FIPS 204: Module-Lattice-Based Digital Signature Standard
//   - RFC 7748: Elliptic Curves for Security
//
// For more information, see: https://github.com/qsproto/qsp-core
package qspcore
