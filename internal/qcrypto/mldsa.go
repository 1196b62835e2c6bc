// mldsa.go implements the ML-DSA-65 post-quantum signature wrapper (NIST
// FIPS 204, NIST Category 3), the second signature leg on every identity
// key and bundle signature (spec §3.2, §4.2). Wraps circl's mldsa65
// implementation the way mlkem.go wraps circl's mlkem768; the key-pair and
// Sign/Verify method shape is cross-checked against the from-scratch
// ML-DSA-65 reference surveyed from the corpus (KarpelesLab/mldsa) for API
// naming conventions, not for its internal polynomial arithmetic.
package qcrypto

import (
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"

	"github.com/qsproto/qsp-core/internal/constants"
	qerrors "github.com/qsproto/qsp-core/internal/errors"
)

// MLDSAKeyPair is an ML-DSA-65 signing key pair.
type MLDSAKeyPair struct {
	PublicKey  *mldsa65.PublicKey
	PrivateKey *mldsa65.PrivateKey
}

// GenerateMLDSAKeyPair generates a fresh ML-DSA-65 key pair from the OS
// CSPRNG, used to mint the PQ identity key (spec §3.2 `ik_sig_pq_pub`).
func GenerateMLDSAKeyPair() (*MLDSAKeyPair, error) {
	pub, priv, err := mldsa65.GenerateKey(Reader)
	if err != nil {
		return nil, qerrors.NewCryptoError("MLDSAKeyPair.Generate", err)
	}
	return &MLDSAKeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// MLDSASign produces a detached ML-DSA-65 signature over message.
func MLDSASign(priv *mldsa65.PrivateKey, message []byte) []byte {
	sig := make([]byte, mldsa65.SignatureSize)
	mldsa65.SignTo(priv, message, nil, false, sig)
	return sig
}

// MLDSAVerify reports whether sig is a valid ML-DSA-65 signature over
// message under pub.
func MLDSAVerify(pub *mldsa65.PublicKey, message, sig []byte) bool {
	if len(sig) != constants.MLDSA65SignatureSize {
		return false
	}
	return mldsa65.Verify(pub, message, nil, sig)
}

// ParseMLDSAPublicKey parses an ML-DSA-65 public key from its packed form.
func ParseMLDSAPublicKey(data []byte) (*mldsa65.PublicKey, error) {
	if len(data) != constants.MLDSA65PublicKeySize {
		return nil, qerrors.ErrInvalidPublicKey
	}
	pub := new(mldsa65.PublicKey)
	if err := pub.UnmarshalBinary(data); err != nil {
		return nil, qerrors.NewCryptoError("ParseMLDSAPublicKey", err)
	}
	return pub, nil
}

// PublicKeyBytes returns the packed encoding of pub.
func PublicKeyBytes(pub *mldsa65.PublicKey) []byte {
	data, _ := pub.MarshalBinary()
	return data
}

// Zeroize clears kp's reference to its private key.
func (kp *MLDSAKeyPair) Zeroize() {
	if kp == nil {
		return
	}
	kp.PrivateKey = nil
}
