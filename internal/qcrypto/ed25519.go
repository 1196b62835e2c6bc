// ed25519.go implements the classical half of the dual identity/signed-prekey
// signature scheme (spec §3.2, §4.2): every signed field carries both an
// Ed25519 signature and an ML-DSA-65 signature so the bundle and transcript
// remain authentic if either scheme's hardness assumption holds.
package qcrypto

import (
	"crypto/ed25519"

	"github.com/qsproto/qsp-core/internal/constants"
	qerrors "github.com/qsproto/qsp-core/internal/errors"
)

// Ed25519KeyPair holds a classical identity signing key pair.
type Ed25519KeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateEd25519KeyPair generates a fresh Ed25519 signing key pair.
func GenerateEd25519KeyPair() (*Ed25519KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(Reader)
	if err != nil {
		return nil, qerrors.NewCryptoError("Ed25519KeyPair.Generate", err)
	}
	return &Ed25519KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// Ed25519Sign produces a detached 64-byte signature over message.
func Ed25519Sign(priv ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(priv, message)
}

// Ed25519Verify reports whether sig is a valid Ed25519 signature over
// message under pub.
func Ed25519Verify(pub ed25519.PublicKey, message, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != constants.Ed25519SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}

// ParseEd25519PublicKey parses a 32-byte Ed25519 public key.
func ParseEd25519PublicKey(data []byte) (ed25519.PublicKey, error) {
	if len(data) != constants.Ed25519PublicSize {
		return nil, qerrors.ErrInvalidPublicKey
	}
	return ed25519.PublicKey(append([]byte{}, data...)), nil
}

// Zeroize erases the private key bytes in place.
func (kp *Ed25519KeyPair) Zeroize() {
	if kp == nil {
		return
	}
	Zeroize(kp.PrivateKey)
	kp.PrivateKey = nil
}
