package handshake

import (
	"github.com/qsproto/qsp-core/internal/constants"
	qerrors "github.com/qsproto/qsp-core/internal/errors"
	"github.com/qsproto/qsp-core/internal/qcrypto"
	"github.com/qsproto/qsp-core/internal/ratchet"
	"github.com/qsproto/qsp-core/internal/wire"
)

// ResponderPrekeys bundles the private halves of a responder's own
// published PrekeyBundle: the signed prekeys and, optionally, the
// one-time prekey pair the initiator consumed.
type ResponderPrekeys struct {
	SPKDH *qcrypto.X25519KeyPair
	SPKPQ *qcrypto.MLKEMKeyPair
	OTPDH *qcrypto.X25519KeyPair
	OTPPQ *qcrypto.MLKEMKeyPair
}

// InitiatorDraft carries everything build() computed that finalize() needs:
// the root key derived from the classical/PQ shared secrets, the fully
// signed HS1 encoding (part of T2's input), and the initiator's own
// ephemeral/PQ-receive material.
type InitiatorDraft struct {
	SessionID []byte
	Identity  *IdentityKeyPair
	Bundle    *wire.PrekeyBundle

	EKDHA    *qcrypto.X25519KeyPair
	PQRcvA   *qcrypto.MLKEMKeyPair
	PQRcvAID uint32

	RK0     []byte
	HS1Full []byte

	NonceSource qcrypto.NonceSource
}

func verifyBundle(bundle *wire.PrekeyBundle, kt KTVerifier) error {
	if err := bundle.Validate(); err != nil {
		return err
	}
	signed := qcrypto.H([]byte(constants.DomBundle), bundle.EncodeWithoutSigs())
	if !qcrypto.Ed25519Verify(bundle.IKSigECPub, signed, bundle.SigEC) {
		return qerrors.ErrSignatureInvalid
	}
	pqPub, err := qcrypto.ParseMLDSAPublicKey(bundle.IKSigPQPub)
	if err != nil {
		return err
	}
	if !qcrypto.MLDSAVerify(pqPub, signed, bundle.SigPQ) {
		return qerrors.ErrSignatureInvalid
	}
	if kt == nil {
		kt = DefaultKTVerifier{}
	}
	return kt.Verify(bundle)
}

func deriveMaster(ss1, ss2, dh1, dh2 []byte) []byte {
	parts := [][]byte{[]byte(constants.DomMaster), ss1}
	if ss2 != nil {
		parts = append(parts, ss2)
	}
	parts = append(parts, dh1)
	if dh2 != nil {
		parts = append(parts, dh2)
	}
	return qcrypto.H(parts...)
}

// Build implements the initiator's build(bundle_B) -> (HS1, InitiatorDraft)
// operation, spec §4.2.
func Build(identity *IdentityKeyPair, userID []byte, deviceID uint32, bundleB *wire.PrekeyBundle, kt KTVerifier, sessionID []byte, nonceSource qcrypto.NonceSource) ([]byte, *InitiatorDraft, error) {
	if err := verifyBundle(bundleB, kt); err != nil {
		return nil, nil, err
	}

	ekA, err := qcrypto.GenerateX25519KeyPair()
	if err != nil {
		return nil, nil, err
	}

	spkPQPub, err := qcrypto.ParseMLKEMPublicKey(bundleB.SPKPQPub)
	if err != nil {
		return nil, nil, err
	}
	ct1, ss1, err := qcrypto.MLKEMEncapsulate(spkPQPub)
	if err != nil {
		return nil, nil, err
	}

	spkDHPub, err := qcrypto.ParseX25519PublicKey(bundleB.SPKDHPub)
	if err != nil {
		return nil, nil, err
	}
	dh1, err := qcrypto.X25519(ekA.PrivateKey, spkDHPub)
	if err != nil {
		return nil, nil, err
	}

	var ct2, ss2, dh2 []byte
	opkUsed := bundleB.OTPDH != nil && bundleB.OTPPQ != nil
	if opkUsed {
		otpPQPub, err := qcrypto.ParseMLKEMPublicKey(bundleB.OTPPQ.Pub)
		if err != nil {
			return nil, nil, err
		}
		ct2, ss2, err = qcrypto.MLKEMEncapsulate(otpPQPub)
		if err != nil {
			return nil, nil, err
		}
		otpDHPub, err := qcrypto.ParseX25519PublicKey(bundleB.OTPDH.Pub)
		if err != nil {
			return nil, nil, err
		}
		dh2, err = qcrypto.X25519(ekA.PrivateKey, otpDHPub)
		if err != nil {
			return nil, nil, err
		}
	}

	master := deriveMaster(ss1, ss2, dh1, dh2)
	rk0, err := qcrypto.K(master, constants.DomRK0, sessionID, constants.RootKeySize)
	if err != nil {
		return nil, nil, err
	}

	pqRcvA, err := qcrypto.GenerateMLKEMKeyPair()
	if err != nil {
		return nil, nil, err
	}
	pqRcvAID, err := randomID()
	if err != nil {
		return nil, nil, err
	}

	hs1 := &wire.HandshakeInit{
		SessionID:   sessionID,
		UserID:      userID,
		DeviceID:    deviceID,
		EKDHA:       ekA.PublicKeyBytes(),
		CT1:         ct1,
		PQRcvAID:    pqRcvAID,
		PQRcvAPub:   pqRcvA.PublicKeyBytes(),
		IKSigECAPub: identity.EC.PublicKey,
		IKSigPQAPub: qcrypto.PublicKeyBytes(identity.PQ.PublicKey),
	}
	if opkUsed {
		hs1.OPKUsed = 1
		hs1.CT2 = ct2
		hs1.OPKDHID = bundleB.OTPDH.ID
		hs1.OPKPQID = bundleB.OTPPQ.ID
	}

	t1 := qcrypto.H([]byte(constants.DomHS1), hs1.TranscriptBytesZeroed())
	hs1.SigECA = qcrypto.Ed25519Sign(identity.EC.PrivateKey, t1)
	hs1.SigPQA = qcrypto.MLDSASign(identity.PQ.PrivateKey, t1)

	hs1Full := hs1.Encode()

	draft := &InitiatorDraft{
		SessionID:   append([]byte{}, sessionID...),
		Identity:    identity,
		Bundle:      bundleB,
		EKDHA:       ekA,
		PQRcvA:      pqRcvA,
		PQRcvAID:    pqRcvAID,
		RK0:         rk0,
		HS1Full:     hs1Full,
		NonceSource: nonceSource,
	}
	return hs1Full, draft, nil
}

// Process implements the responder's process(HS1) -> (HS2, SessionState)
// operation, spec §4.2.
func Process(identity *IdentityKeyPair, prekeys *ResponderPrekeys, hs1Bytes []byte, nonceSource qcrypto.NonceSource) ([]byte, *ratchet.SessionState, error) {
	hs1, err := wire.DecodeHandshakeInit(hs1Bytes)
	if err != nil {
		return nil, nil, err
	}

	t1 := qcrypto.H([]byte(constants.DomHS1), hs1.TranscriptBytesZeroed())
	if !qcrypto.Ed25519Verify(hs1.IKSigECAPub, t1, hs1.SigECA) {
		return nil, nil, qerrors.ErrSignatureInvalid
	}
	aPQPub, err := qcrypto.ParseMLDSAPublicKey(hs1.IKSigPQAPub)
	if err != nil {
		return nil, nil, err
	}
	if !qcrypto.MLDSAVerify(aPQPub, t1, hs1.SigPQA) {
		return nil, nil, qerrors.ErrSignatureInvalid
	}

	ss1, err := qcrypto.MLKEMDecapsulate(prekeys.SPKPQ.DecapsulationKey, hs1.CT1)
	if err != nil {
		return nil, nil, err
	}
	ekAPub, err := qcrypto.ParseX25519PublicKey(hs1.EKDHA)
	if err != nil {
		return nil, nil, err
	}
	dh1, err := qcrypto.X25519(prekeys.SPKDH.PrivateKey, ekAPub)
	if err != nil {
		return nil, nil, err
	}

	var ss2, dh2 []byte
	if hs1.OPKUsed != 0 {
		if prekeys.OTPPQ == nil || prekeys.OTPDH == nil {
			return nil, nil, qerrors.ErrMissingRequiredField
		}
		ss2, err = qcrypto.MLKEMDecapsulate(prekeys.OTPPQ.DecapsulationKey, hs1.CT2)
		if err != nil {
			return nil, nil, err
		}
		dh2, err = qcrypto.X25519(prekeys.OTPDH.PrivateKey, ekAPub)
		if err != nil {
			return nil, nil, err
		}
	}

	master := deriveMaster(ss1, ss2, dh1, dh2)
	rk0, err := qcrypto.K(master, constants.DomRK0, hs1.SessionID, constants.RootKeySize)
	if err != nil {
		return nil, nil, err
	}

	dh0B, err := qcrypto.GenerateX25519KeyPair()
	if err != nil {
		return nil, nil, err
	}
	pqRcvB, err := qcrypto.GenerateMLKEMKeyPair()
	if err != nil {
		return nil, nil, err
	}
	pqRcvBID, err := randomID()
	if err != nil {
		return nil, nil, err
	}

	aPQRcvPub, err := qcrypto.ParseMLKEMPublicKey(hs1.PQRcvAPub)
	if err != nil {
		return nil, nil, err
	}
	ct3, ss3, err := qcrypto.MLKEMEncapsulate(aPQRcvPub)
	if err != nil {
		return nil, nil, err
	}
	// The handshake-time PQ exchange against the initiator's advertised
	// receive key is mixed into the root key immediately, the same way an
	// in-ratchet FLAG_PQ_CTXT message would, so the session's very first
	// root key is already post-quantum bound rather than purely classical.
	rk1, err := qcrypto.K(rk0, constants.DomRKPQ, ss3, constants.RootKeySize)
	if err != nil {
		return nil, nil, err
	}

	hs2 := &wire.HandshakeResp{
		SessionID:   hs1.SessionID,
		DH0BPub:     dh0B.PublicKeyBytes(),
		PQRcvBID:    pqRcvBID,
		PQRcvBPub:   pqRcvB.PublicKeyBytes(),
		CT3:         ct3,
		IKSigECBPub: identity.EC.PublicKey,
		IKSigPQBPub: qcrypto.PublicKeyBytes(identity.PQ.PublicKey),
	}
	t2 := qcrypto.H([]byte(constants.DomHS2), hs1Bytes, hs2.TranscriptBytesZeroed())
	hs2.ConfB, err = qcrypto.K(rk0, constants.DomConf, t2, constants.RootKeySize)
	if err != nil {
		return nil, nil, err
	}
	hs2.SigECB = qcrypto.Ed25519Sign(identity.EC.PrivateKey, t2)
	hs2.SigPQB = qcrypto.MLDSASign(identity.PQ.PrivateKey, t2)

	st := &ratchet.SessionState{
		Role:            ratchet.RoleResponder,
		SessionID:       append([]byte{}, hs1.SessionID...),
		RK:              rk1,
		DHSelf:          dh0B,
		DHPeer:          append([]byte{}, hs1.EKDHA...),
		MkSkipped:       ratchet.NewMkSkippedStore(),
		HkSkipped:       ratchet.NewHkSkippedStore(),
		PQSelf:          []ratchet.PQSelfEntry{{ID: pqRcvBID, Pub: pqRcvB.PublicKeyBytes(), Kp: pqRcvB}},
		NonceSource:     nonceSource,
		ProtocolVersion: constants.ProtocolVersionSuite1,
		SuiteID:         constants.SuiteIDSuite1,
	}
	if err := ratchet.ApplyHeaderKeys(st, st.RK); err != nil {
		return nil, nil, err
	}

	return hs2.Encode(), st, nil
}

// Finalize implements the initiator's finalize(draft, HS2) -> SessionState
// operation, spec §4.2.
func Finalize(draft *InitiatorDraft, hs2Bytes []byte) (*ratchet.SessionState, error) {
	hs2, err := wire.DecodeHandshakeResp(hs2Bytes)
	if err != nil {
		return nil, err
	}
	if !qcrypto.ConstantTimeCompare(hs2.SessionID, draft.SessionID) {
		return nil, qerrors.NewProtocolError("Finalize", qerrors.ErrBadLength)
	}
	// The responder's identity must match the one published in the bundle
	// this handshake was built against; otherwise HS2 could be substituted
	// by an attacker holding a different, unrelated identity.
	if !qcrypto.ConstantTimeCompare(hs2.IKSigECBPub, draft.Bundle.IKSigECPub) ||
		!qcrypto.ConstantTimeCompare(hs2.IKSigPQBPub, draft.Bundle.IKSigPQPub) {
		return nil, qerrors.ErrSignatureInvalid
	}

	t2 := qcrypto.H([]byte(constants.DomHS2), draft.HS1Full, hs2.TranscriptBytesZeroed())
	if !qcrypto.Ed25519Verify(hs2.IKSigECBPub, t2, hs2.SigECB) {
		return nil, qerrors.ErrSignatureInvalid
	}
	bPQPub, err := qcrypto.ParseMLDSAPublicKey(hs2.IKSigPQBPub)
	if err != nil {
		return nil, err
	}
	if !qcrypto.MLDSAVerify(bPQPub, t2, hs2.SigPQB) {
		return nil, qerrors.ErrSignatureInvalid
	}

	wantConf, err := qcrypto.K(draft.RK0, constants.DomConf, t2, constants.RootKeySize)
	if err != nil {
		return nil, err
	}
	if !qcrypto.ConstantTimeCompare(hs2.ConfB, wantConf) {
		return nil, qerrors.NewProtocolError("Finalize", qerrors.ErrAuthenticationFailed)
	}

	ss3, err := qcrypto.MLKEMDecapsulate(draft.PQRcvA.DecapsulationKey, hs2.CT3)
	if err != nil {
		return nil, err
	}
	rk1, err := qcrypto.K(draft.RK0, constants.DomRKPQ, ss3, constants.RootKeySize)
	if err != nil {
		return nil, err
	}

	st := &ratchet.SessionState{
		Role:            ratchet.RoleInitiator,
		SessionID:       append([]byte{}, draft.SessionID...),
		RK:              rk1,
		DHSelf:          draft.EKDHA,
		DHPeer:          append([]byte{}, hs2.DH0BPub...),
		MkSkipped:       ratchet.NewMkSkippedStore(),
		HkSkipped:       ratchet.NewHkSkippedStore(),
		PQSelf:          []ratchet.PQSelfEntry{{ID: draft.PQRcvAID, Pub: draft.PQRcvA.PublicKeyBytes(), Kp: draft.PQRcvA}},
		PQPeerPresent:   true,
		PQPeerID:        hs2.PQRcvBID,
		PQPeerPub:       append([]byte{}, hs2.PQRcvBPub...),
		NonceSource:     draft.NonceSource,
		ProtocolVersion: constants.ProtocolVersionSuite1,
		SuiteID:         constants.SuiteIDSuite1,
	}
	if err := ratchet.ApplyHeaderKeys(st, st.RK); err != nil {
		return nil, err
	}
	return st, nil
}

func randomID() (uint32, error) {
	b, err := qcrypto.SecureRandomBytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}
