package main

import (
	"crypto/rand"

	"github.com/qsproto/qsp-core/internal/constants"
	"github.com/qsproto/qsp-core/internal/qcrypto"
	"github.com/qsproto/qsp-core/pkg/session"
)

// responder bundles together a fresh responder identity, its published
// signed prekey bundle, and the private prekey halves needed to answer a
// handshake against that bundle — standing in for whatever a relay or
// directory service would publish and retain in a real deployment.
type responder struct {
	identity *session.IdentityKeyPair
	bundle   *session.PrekeyBundle
	prekeys  *session.ResponderPrekeys
}

func newResponder(userID string, deviceID uint32) (*responder, error) {
	identity, err := session.GenerateIdentity()
	if err != nil {
		return nil, err
	}
	spkDH, err := qcrypto.GenerateX25519KeyPair()
	if err != nil {
		return nil, err
	}
	spkPQ, err := qcrypto.GenerateMLKEMKeyPair()
	if err != nil {
		return nil, err
	}
	pqRcv, err := qcrypto.GenerateMLKEMKeyPair()
	if err != nil {
		return nil, err
	}

	bundle := &session.PrekeyBundle{
		UserID:     []byte(userID),
		DeviceID:   deviceID,
		ValidFrom:  0,
		ValidTo:    ^uint32(0),
		IKSigECPub: identity.EC.PublicKey,
		IKSigPQPub: qcrypto.PublicKeyBytes(identity.PQ.PublicKey),
		SPKDHPub:   spkDH.PublicKeyBytes(),
		SPKPQPub:   spkPQ.PublicKeyBytes(),
		PQRcvID:    1,
		PQRcvPub:   pqRcv.PublicKeyBytes(),
	}
	signed := qcrypto.H([]byte(constants.DomBundle), bundle.EncodeWithoutSigs())
	bundle.SigEC = qcrypto.Ed25519Sign(identity.EC.PrivateKey, signed)
	bundle.SigPQ = qcrypto.MLDSASign(identity.PQ.PrivateKey, signed)

	return &responder{
		identity: identity,
		bundle:   bundle,
		prekeys:  &session.ResponderPrekeys{SPKDH: spkDH, SPKPQ: spkPQ},
	}, nil
}

func randomSessionID() ([]byte, error) {
	id := make([]byte, 16)
	_, err := rand.Read(id)
	return id, err
}
