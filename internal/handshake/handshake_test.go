package handshake_test

import (
	"bytes"
	"testing"

	"github.com/qsproto/qsp-core/internal/constants"
	"github.com/qsproto/qsp-core/internal/handshake"
	"github.com/qsproto/qsp-core/internal/qcrypto"
	"github.com/qsproto/qsp-core/internal/wire"
)

// testResponder bundles everything needed to act as a responder: its
// identity, its published bundle (with real signatures), and the private
// halves of its prekeys.
type testResponder struct {
	identity *handshake.IdentityKeyPair
	bundle   *wire.PrekeyBundle
	prekeys  *handshake.ResponderPrekeys
}

func newTestResponder(t *testing.T, withOneTime bool) *testResponder {
	t.Helper()

	identity, err := handshake.GenerateIdentityKeyPair()
	if err != nil {
		t.Fatalf("GenerateIdentityKeyPair: %v", err)
	}
	spkDH, err := qcrypto.GenerateX25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateX25519KeyPair: %v", err)
	}
	spkPQ, err := qcrypto.GenerateMLKEMKeyPair()
	if err != nil {
		t.Fatalf("GenerateMLKEMKeyPair: %v", err)
	}
	pqRcv, err := qcrypto.GenerateMLKEMKeyPair()
	if err != nil {
		t.Fatalf("GenerateMLKEMKeyPair (pq_rcv): %v", err)
	}

	bundle := &wire.PrekeyBundle{
		UserID:     []byte("bob@example.com"),
		DeviceID:   1,
		ValidFrom:  1000,
		ValidTo:    9000,
		IKSigECPub: identity.EC.PublicKey,
		IKSigPQPub: qcrypto.PublicKeyBytes(identity.PQ.PublicKey),
		SPKDHPub:   spkDH.PublicKeyBytes(),
		SPKPQPub:   spkPQ.PublicKeyBytes(),
		PQRcvID:    42,
		PQRcvPub:   pqRcv.PublicKeyBytes(),
	}

	prekeys := &handshake.ResponderPrekeys{SPKDH: spkDH, SPKPQ: spkPQ}

	var otpDH *qcrypto.X25519KeyPair
	var otpPQ *qcrypto.MLKEMKeyPair
	if withOneTime {
		otpDH, err = qcrypto.GenerateX25519KeyPair()
		if err != nil {
			t.Fatalf("GenerateX25519KeyPair (otp): %v", err)
		}
		otpPQ, err = qcrypto.GenerateMLKEMKeyPair()
		if err != nil {
			t.Fatalf("GenerateMLKEMKeyPair (otp): %v", err)
		}
		bundle.OTPDH = &wire.OneTimePrekey{ID: 5, Pub: otpDH.PublicKeyBytes()}
		bundle.OTPPQ = &wire.OneTimePrekey{ID: 6, Pub: otpPQ.PublicKeyBytes()}
		prekeys.OTPDH = otpDH
		prekeys.OTPPQ = otpPQ
	}

	signed := qcrypto.H([]byte(constants.DomBundle), bundle.EncodeWithoutSigs())
	bundle.SigEC = qcrypto.Ed25519Sign(identity.EC.PrivateKey, signed)
	bundle.SigPQ = qcrypto.MLDSASign(identity.PQ.PrivateKey, signed)

	return &testResponder{identity: identity, bundle: bundle, prekeys: prekeys}
}

func sessionIDFor(b byte) []byte {
	return bytes.Repeat([]byte{b}, 16)
}

func runHandshake(t *testing.T, withOneTime bool) (*handshake.InitiatorDraft, []byte, []byte, *testResponder) {
	t.Helper()

	responder := newTestResponder(t, withOneTime)
	initiatorIdentity, err := handshake.GenerateIdentityKeyPair()
	if err != nil {
		t.Fatalf("GenerateIdentityKeyPair: %v", err)
	}

	sessionID := sessionIDFor(0xAA)
	initNonces := qcrypto.NewDeterministicNonceSource("initiator", sessionID, "test")
	respNonces := qcrypto.NewDeterministicNonceSource("responder", sessionID, "test")

	hs1, draft, err := handshake.Build(initiatorIdentity, []byte("alice@example.com"), 7, responder.bundle, handshake.DefaultKTVerifier{}, sessionID, initNonces)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	hs2, _, err := handshake.Process(responder.identity, responder.prekeys, hs1, respNonces)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	return draft, hs1, hs2, responder
}

func TestHandshakeRoundTripWithoutOneTimePrekeys(t *testing.T) {
	draft, _, _, responder := runHandshake(t, false)

	// Process mints fresh responder keys on every call, so finalize against
	// the HS2 of this same call rather than the one runHandshake produced.
	respNonces := qcrypto.NewDeterministicNonceSource("responder", draft.SessionID, "test")
	hs2, respState, err := handshake.Process(responder.identity, responder.prekeys, draft.HS1Full, respNonces)
	if err != nil {
		t.Fatalf("Process (replay for state): %v", err)
	}

	initState, err := handshake.Finalize(draft, hs2)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if !bytes.Equal(initState.RK, respState.RK) {
		t.Fatalf("root keys diverge: initiator=%x responder=%x", initState.RK, respState.RK)
	}
	if !bytes.Equal(initState.DHSelf.PublicKeyBytes(), respState.DHPeer) {
		t.Fatal("initiator's dh_self does not match responder's dh_peer")
	}
	if !bytes.Equal(respState.DHSelf.PublicKeyBytes(), initState.DHPeer) {
		t.Fatal("responder's dh_self does not match initiator's dh_peer")
	}
	if initState.Ns != 0 || initState.Nr != 0 || respState.Ns != 0 || respState.Nr != 0 {
		t.Fatal("fresh sessions must start at ns=nr=0")
	}
	if !initState.PQPeerPresent {
		t.Fatal("initiator should record the responder's per-session PQ receive key")
	}
	if respState.PQPeerPresent {
		t.Fatal("responder should not record a symmetric PQPeer from the handshake")
	}
	if !bytes.Equal(initState.HKs, respState.HKr) || !bytes.Equal(initState.HKr, respState.HKs) {
		t.Fatal("directional header keys must cross-match between initiator and responder")
	}
}

func TestHandshakeRoundTripWithOneTimePrekeys(t *testing.T) {
	draft, _, hs2, _ := runHandshake(t, true)

	initState, err := handshake.Finalize(draft, hs2)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if initState.RK == nil {
		t.Fatal("expected a derived root key")
	}
}

func TestFinalizeRejectsTamperedConfirmation(t *testing.T) {
	draft, _, hs2, _ := runHandshake(t, false)

	tampered := append([]byte{}, hs2...)
	// First byte of conf_b: pv(2) + sid(2) + session_id(16) + dh0_b(32) +
	// pq_rcv_b_id(4) + pq_rcv_b_pub(1184) + ct3(1088).
	tampered[2328] ^= 0xFF

	if _, err := handshake.Finalize(draft, tampered); err == nil {
		t.Fatal("expected Finalize to reject a corrupted HS2")
	}
}

func TestFinalizeRejectsSessionIDMismatch(t *testing.T) {
	draftA, _, _, responderB := newDraftAndResponder(t)

	// Build a second, unrelated handshake so its HS2 carries a different
	// session id, then try to finalize draftA against it.
	otherIdentity, err := handshake.GenerateIdentityKeyPair()
	if err != nil {
		t.Fatalf("GenerateIdentityKeyPair: %v", err)
	}
	otherSessionID := sessionIDFor(0xBB)
	otherNonces := qcrypto.NewDeterministicNonceSource("initiator2", otherSessionID, "test")
	hs1Other, _, err := handshake.Build(otherIdentity, []byte("carol@example.com"), 2, responderB.bundle, handshake.DefaultKTVerifier{}, otherSessionID, otherNonces)
	if err != nil {
		t.Fatalf("Build (other): %v", err)
	}
	respNonces := qcrypto.NewDeterministicNonceSource("responder2", otherSessionID, "test")
	hs2Other, _, err := handshake.Process(responderB.identity, responderB.prekeys, hs1Other, respNonces)
	if err != nil {
		t.Fatalf("Process (other): %v", err)
	}

	if _, err := handshake.Finalize(draftA, hs2Other); err == nil {
		t.Fatal("expected Finalize to reject a HS2 with a mismatched session id")
	}
}

func newDraftAndResponder(t *testing.T) (*handshake.InitiatorDraft, []byte, []byte, *testResponder) {
	t.Helper()
	return runHandshake(t, false)
}

func TestProcessRejectsTamperedInitiatorSignature(t *testing.T) {
	responder := newTestResponder(t, false)
	initiatorIdentity, err := handshake.GenerateIdentityKeyPair()
	if err != nil {
		t.Fatalf("GenerateIdentityKeyPair: %v", err)
	}
	sessionID := sessionIDFor(0xCC)
	nonces := qcrypto.NewDeterministicNonceSource("initiator", sessionID, "test")

	hs1, _, err := handshake.Build(initiatorIdentity, []byte("alice@example.com"), 7, responder.bundle, handshake.DefaultKTVerifier{}, sessionID, nonces)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	tampered := append([]byte{}, hs1...)
	tampered[len(tampered)-1] ^= 0xFF

	respNonces := qcrypto.NewDeterministicNonceSource("responder", sessionID, "test")
	if _, _, err := handshake.Process(responder.identity, responder.prekeys, tampered, respNonces); err == nil {
		t.Fatal("expected Process to reject a corrupted HS1")
	}
}

type rejectingKT struct{}

func (rejectingKT) Verify(*wire.PrekeyBundle) error { return errAlwaysReject }

var errAlwaysReject = errTest("rejected by policy")

type errTest string

func (e errTest) Error() string { return string(e) }

func TestBuildRejectsUntrustedKT(t *testing.T) {
	responder := newTestResponder(t, false)
	initiatorIdentity, err := handshake.GenerateIdentityKeyPair()
	if err != nil {
		t.Fatalf("GenerateIdentityKeyPair: %v", err)
	}
	sessionID := sessionIDFor(0xDD)
	nonces := qcrypto.NewDeterministicNonceSource("initiator", sessionID, "test")

	if _, _, err := handshake.Build(initiatorIdentity, []byte("alice@example.com"), 7, responder.bundle, rejectingKT{}, sessionID, nonces); err == nil {
		t.Fatal("expected Build to reject a bundle its KTVerifier refuses")
	}
}
