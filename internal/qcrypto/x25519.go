// x25519.go implements the classical X25519 Diffie-Hellman half of the
// hybrid handshake and DH ratchet, grounded on crypto/ecdh the same way the
// reference VPN's x25519.go wraps that package.
package qcrypto

import (
	"crypto/ecdh"

	"github.com/qsproto/qsp-core/internal/constants"
	qerrors "github.com/qsproto/qsp-core/internal/errors"
)

// X25519KeyPair holds a classical Diffie-Hellman key pair.
type X25519KeyPair struct {
	PublicKey  *ecdh.PublicKey
	PrivateKey *ecdh.PrivateKey
}

// GenerateX25519KeyPair generates a fresh X25519 key pair from the OS CSPRNG.
func GenerateX25519KeyPair() (*X25519KeyPair, error) {
	priv, err := ecdh.X25519().GenerateKey(Reader)
	if err != nil {
		return nil, qerrors.NewCryptoError("X25519KeyPair.Generate", err)
	}
	return &X25519KeyPair{PublicKey: priv.PublicKey(), PrivateKey: priv}, nil
}

// NewX25519KeyPairFromBytes reconstructs a key pair from a 32-byte scalar.
func NewX25519KeyPairFromBytes(privateKeyBytes []byte) (*X25519KeyPair, error) {
	if len(privateKeyBytes) != constants.X25519KeySize {
		return nil, qerrors.ErrInvalidKeySize
	}
	priv, err := ecdh.X25519().NewPrivateKey(privateKeyBytes)
	if err != nil {
		return nil, qerrors.NewCryptoError("X25519KeyPair.FromBytes", err)
	}
	return &X25519KeyPair{PublicKey: priv.PublicKey(), PrivateKey: priv}, nil
}

// X25519 computes the shared secret DH(privateKey, peerPublic).
func X25519(privateKey *ecdh.PrivateKey, peerPublic *ecdh.PublicKey) ([]byte, error) {
	if privateKey == nil || peerPublic == nil {
		return nil, qerrors.ErrInvalidPublicKey
	}
	secret, err := privateKey.ECDH(peerPublic)
	if err != nil {
		return nil, qerrors.NewCryptoError("X25519", err)
	}
	return secret, nil
}

// PublicKeyBytes returns the raw 32-byte encoding of kp's public key.
func (kp *X25519KeyPair) PublicKeyBytes() []byte {
	if kp == nil || kp.PublicKey == nil {
		return nil
	}
	return kp.PublicKey.Bytes()
}

// PrivateKeyBytes returns the raw 32-byte scalar of kp's private key.
func (kp *X25519KeyPair) PrivateKeyBytes() []byte {
	if kp == nil || kp.PrivateKey == nil {
		return nil
	}
	return kp.PrivateKey.Bytes()
}

// ParseX25519PublicKey parses a 32-byte X25519 public key.
func ParseX25519PublicKey(data []byte) (*ecdh.PublicKey, error) {
	if len(data) != constants.X25519KeySize {
		return nil, qerrors.ErrInvalidPublicKey
	}
	pub, err := ecdh.X25519().NewPublicKey(data)
	if err != nil {
		return nil, qerrors.NewCryptoError("ParseX25519PublicKey", err)
	}
	return pub, nil
}

// Clone returns a shallow copy. crypto/ecdh keys are immutable values, so
// sharing the underlying PublicKey/PrivateKey pointers across a draft
// clone is safe; nothing in this package ever mutates them in place.
func (kp *X25519KeyPair) Clone() *X25519KeyPair {
	if kp == nil {
		return nil
	}
	return &X25519KeyPair{PublicKey: kp.PublicKey, PrivateKey: kp.PrivateKey}
}

// Zeroize drops kp's reference to its private scalar. crypto/ecdh keys are
// immutable values, so this only clears the wrapper's pointer; it matches
// the zeroization discipline the rest of the corpus applies for keys whose
// underlying library does not expose in-place erasure.
func (kp *X25519KeyPair) Zeroize() {
	if kp == nil {
		return
	}
	kp.PrivateKey = nil
}
