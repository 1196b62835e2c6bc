// Package handshake implements the hybrid X3DH-style agreement (C3):
// bundle verification, the three-message build/process/finalize exchange,
// transcript hashing, RK0 derivation, and confirmation-MAC checking
// described in spec §4.2.
package handshake

import (
	"github.com/qsproto/qsp-core/internal/qcrypto"
	"github.com/qsproto/qsp-core/internal/wire"
)

// IdentityKeyPair holds one actor's long-term classical and post-quantum
// signing identities (Ed25519 + ML-DSA-65).
type IdentityKeyPair struct {
	EC *qcrypto.Ed25519KeyPair
	PQ *qcrypto.MLDSAKeyPair
}

// GenerateIdentityKeyPair mints a fresh hybrid identity.
func GenerateIdentityKeyPair() (*IdentityKeyPair, error) {
	ec, err := qcrypto.GenerateEd25519KeyPair()
	if err != nil {
		return nil, err
	}
	pq, err := qcrypto.GenerateMLDSAKeyPair()
	if err != nil {
		return nil, err
	}
	return &IdentityKeyPair{EC: ec, PQ: pq}, nil
}

// KTVerifier is the single injectable policy point inside the core (spec
// §4.6, §9 "KT verifier as capability"): it either accepts a bundle's
// key-transparency material or rejects the bundle as a whole.
type KTVerifier interface {
	Verify(bundle *wire.PrekeyBundle) error
}

// DefaultKTVerifier accepts only the empty-proof shape: no log id, no
// proof blobs. Richer verifiers plug in by implementing the same
// contract.
type DefaultKTVerifier struct{}

// Verify implements KTVerifier.
func (DefaultKTVerifier) Verify(bundle *wire.PrekeyBundle) error {
	if bundle.KT == nil {
		return nil
	}
	if len(bundle.KT.LogID) == 0 && len(bundle.KT.Proof1) == 0 &&
		len(bundle.KT.Proof2) == 0 && len(bundle.KT.Proof3) == 0 {
		return nil
	}
	return errUntrustedKT
}
