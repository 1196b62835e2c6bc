// Package session is the public facade over the messaging core: the six
// host operations of handshake init/respond/finalize, encrypt/decrypt, and
// snapshot/restore, mirroring the reference VPN's pkg/chkem facade over its
// lower-level pkg/crypto package. Nothing outside this package and the
// public types it re-exports is part of the core's contract; a host
// (relay, CLI, vault, contacts store) only ever imports pkg/session.
package session

import (
	"github.com/qsproto/qsp-core/internal/handshake"
	"github.com/qsproto/qsp-core/internal/qcrypto"
	"github.com/qsproto/qsp-core/internal/ratchet"
	"github.com/qsproto/qsp-core/internal/scka"
	"github.com/qsproto/qsp-core/internal/selftest"
	"github.com/qsproto/qsp-core/internal/wire"
)

func init() {
	selftest.Run()
}

// IdentityKeyPair is a long-term hybrid (Ed25519 + ML-DSA-65) signing
// identity.
type IdentityKeyPair = handshake.IdentityKeyPair

// PrekeyBundle is the published, signed bundle a responder advertises.
type PrekeyBundle = wire.PrekeyBundle

// ResponderPrekeys holds the private halves of a responder's own published
// bundle.
type ResponderPrekeys = handshake.ResponderPrekeys

// KTVerifier is the injectable key-transparency verification policy. A nil
// KTVerifier passed to HandshakeInit defaults to DefaultKTVerifier.
type KTVerifier = handshake.KTVerifier

// DefaultKTVerifier accepts only the empty-proof bundle shape.
type DefaultKTVerifier = handshake.DefaultKTVerifier

// NonceSource produces per-message header nonces. A nil NonceSource passed
// to HandshakeInit/HandshakeRespond defaults to the OS CSPRNG
// (qcrypto.SystemNonceSource).
type NonceSource = qcrypto.NonceSource

// GenerateIdentity mints a fresh hybrid signing identity for an actor.
func GenerateIdentity() (*IdentityKeyPair, error) {
	return handshake.GenerateIdentityKeyPair()
}

func defaultNonceSource(ns NonceSource) NonceSource {
	if ns == nil {
		return qcrypto.SystemNonceSource{}
	}
	return ns
}

func defaultKTVerifier(kt KTVerifier) KTVerifier {
	if kt == nil {
		return DefaultKTVerifier{}
	}
	return kt
}

// Pending carries everything an initiator's HandshakeInit computed through
// to its later HandshakeFinalize call. Opaque to the host: it only ever
// flows from one call into the other.
type Pending struct {
	draft *handshake.InitiatorDraft
}

// HandshakeInit runs the initiator side of the handshake, producing the
// wire bytes for HS1 and a Pending value to thread through to
// HandshakeFinalize once HS2 arrives.
func HandshakeInit(
	identity *IdentityKeyPair,
	userID []byte,
	deviceID uint32,
	bundleB *PrekeyBundle,
	kt KTVerifier,
	sessionID []byte,
	nonceSource NonceSource,
) (hs1 []byte, pending *Pending, err error) {
	hs1, draft, err := handshake.Build(
		identity, userID, deviceID, bundleB,
		defaultKTVerifier(kt), sessionID, defaultNonceSource(nonceSource),
	)
	if err != nil {
		return nil, nil, err
	}
	return hs1, &Pending{draft: draft}, nil
}

// HandshakeRespond runs the responder side of the handshake against an
// incoming HS1, producing the wire bytes for HS2 and a ready Session.
func HandshakeRespond(
	identity *IdentityKeyPair,
	prekeys *ResponderPrekeys,
	hs1 []byte,
	nonceSource NonceSource,
) (hs2 []byte, sess *Session, err error) {
	hs2, st, err := handshake.Process(identity, prekeys, hs1, defaultNonceSource(nonceSource))
	if err != nil {
		return nil, nil, err
	}
	return hs2, &Session{state: st}, nil
}

// HandshakeFinalize completes the initiator side of the handshake against
// an incoming HS2, producing a ready Session.
func HandshakeFinalize(pending *Pending, hs2 []byte) (*Session, error) {
	st, err := handshake.Finalize(pending.draft, hs2)
	if err != nil {
		return nil, err
	}
	return &Session{state: st}, nil
}

// Session wraps a Suite-1 double-ratchet session: directional header
// encryption, DH ratchet, and optional per-message PQ mixing.
type Session struct {
	state *ratchet.SessionState
}

// Encrypt seals plaintext as the next outbound Suite-1 message.
func (s *Session) Encrypt(plaintext []byte, opts ratchet.EncryptOptions) ([]byte, error) {
	return ratchet.Encrypt(s.state, plaintext, opts)
}

// Decrypt opens an inbound Suite-1 wire message, handling out-of-order
// delivery and DH-ratchet rollover transparently.
func (s *Session) Decrypt(wireBytes []byte) ([]byte, error) {
	return ratchet.Decrypt(s.state, wireBytes)
}

// Snapshot serializes the session's full state for durable storage.
func (s *Session) Snapshot() ([]byte, error) {
	return ratchet.Snapshot(s.state)
}

// RestoreSession reconstructs a Session from a snapshot produced by
// Session.Snapshot.
func RestoreSession(data []byte) (*Session, error) {
	st, err := ratchet.Restore(data)
	if err != nil {
		return nil, err
	}
	return &Session{state: st}, nil
}

// UpgradeSuite2 promotes this session into a PQ-reseed-capable Suite-2
// session, seeded with the initial hybrid chain keys both sides already
// agree on out of band (spec §4.5).
func (s *Session) UpgradeSuite2(initialCKEcSend, initialCKPqSend, initialCKEcRecv, initialCKPqRecv []byte) (*Suite2Session, error) {
	st, err := scka.NewSuite2SessionState(s.state, initialCKEcSend, initialCKPqSend, initialCKEcRecv, initialCKPqRecv)
	if err != nil {
		return nil, err
	}
	return &Suite2Session{state: st}, nil
}

// Suite2Session wraps a Supplemental Chain Key Advance session layered over
// a Suite-1 session's root key and DH identity.
type Suite2Session struct {
	state *scka.Suite2SessionState
}

// Encrypt seals plaintext as the next outbound Suite-2 message.
func (s *Suite2Session) Encrypt(plaintext []byte, opts scka.EncryptOptions) ([]byte, error) {
	return scka.Encrypt(s.state, plaintext, opts)
}

// Decrypt opens an inbound Suite-2 wire message against the peer's claimed
// advertisement id.
func (s *Suite2Session) Decrypt(wireBytes []byte, peerAdvID uint32) ([]byte, error) {
	return scka.Decrypt(s.state, wireBytes, peerAdvID)
}

// MintTarget publishes a new PQ target id and keypair for the peer to
// reseed against on a future boundary message.
func (s *Suite2Session) MintTarget() (id uint32, kp *qcrypto.MLKEMKeyPair, err error) {
	return s.state.MintTarget()
}

// RegisterKnownTarget records a target id learned out of band (e.g. from
// the peer's own advertisement channel) as usable for a boundary message.
func (s *Suite2Session) RegisterKnownTarget(id uint32) {
	s.state.RegisterKnownTarget(id)
}

// Snapshot serializes the Suite-2 session's full state for durable storage.
func (s *Suite2Session) Snapshot() ([]byte, error) {
	return scka.Snapshot(s.state)
}

// RestoreSuite2Session reconstructs a Suite2Session from a snapshot
// produced by Suite2Session.Snapshot.
func RestoreSuite2Session(data []byte) (*Suite2Session, error) {
	st, err := scka.Restore(data)
	if err != nil {
		return nil, err
	}
	return &Suite2Session{state: st}, nil
}
