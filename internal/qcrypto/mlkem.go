// mlkem.go implements the ML-KEM-768 key encapsulation mechanism wrapper
// (NIST FIPS 203, NIST Category 3), the post-quantum KEM primitive used for
// both the Suite-1 handshake (spec §4.2) and the Suite-2 per-boundary PQ
// reseed (spec §4.5.4). Structured after the reference VPN's ML-KEM-1024
// wrapper (mlkem.go), resized to the -768 parameter set this protocol
// negotiates.
package qcrypto

import (
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"

	"github.com/qsproto/qsp-core/internal/constants"
	qerrors "github.com/qsproto/qsp-core/internal/errors"
)

// MLKEMPublicKey wraps an ML-KEM-768 encapsulation key.
type MLKEMPublicKey struct {
	key *mlkem768.PublicKey
}

// MLKEMPrivateKey wraps an ML-KEM-768 decapsulation key.
type MLKEMPrivateKey struct {
	key *mlkem768.PrivateKey
}

// MLKEMKeyPair is an ML-KEM-768 key pair.
type MLKEMKeyPair struct {
	EncapsulationKey *MLKEMPublicKey
	DecapsulationKey *MLKEMPrivateKey
}

// GenerateMLKEMKeyPair generates a fresh ML-KEM-768 key pair from the OS
// CSPRNG. Used to mint signed prekeys, one-time PQ prekeys, and per-session
// PQ receive keys (spec §3.2, §4.2).
func GenerateMLKEMKeyPair() (*MLKEMKeyPair, error) {
	pk, sk, err := mlkem768.GenerateKeyPair(Reader)
	if err != nil {
		return nil, qerrors.NewCryptoError("MLKEMKeyPair.Generate", err)
	}
	return &MLKEMKeyPair{
		EncapsulationKey: &MLKEMPublicKey{key: pk},
		DecapsulationKey: &MLKEMPrivateKey{key: sk},
	}, nil
}

// MLKEMEncapsulate performs key encapsulation against ek, returning the
// ciphertext (1088 bytes) and shared secret (32 bytes).
func MLKEMEncapsulate(ek *MLKEMPublicKey) (ciphertext, sharedSecret []byte, err error) {
	if ek == nil || ek.key == nil {
		return nil, nil, qerrors.ErrInvalidPublicKey
	}

	ct := make([]byte, mlkem768.CiphertextSize)
	ss := make([]byte, mlkem768.SharedKeySize)

	seed := make([]byte, mlkem768.EncapsulationSeedSize)
	if err := SecureRandom(seed); err != nil {
		return nil, nil, qerrors.NewCryptoError("MLKEMEncapsulate", err)
	}

	ek.key.EncapsulateTo(ct, ss, seed)
	return ct, ss, nil
}

// MLKEMDecapsulate decapsulates ciphertext under dk, returning the 32-byte
// shared secret. circl's implementation provides implicit rejection
// (Fujisaki-Okamoto): a malformed ciphertext still yields a pseudorandom
// secret rather than an error, so decapsulation failure is detected
// downstream by AEAD/MAC mismatch, not by this call returning an error.
func MLKEMDecapsulate(dk *MLKEMPrivateKey, ciphertext []byte) ([]byte, error) {
	if dk == nil || dk.key == nil {
		return nil, qerrors.ErrInvalidPrivateKey
	}
	if len(ciphertext) != constants.MLKEM768CiphertextSize {
		return nil, qerrors.ErrInvalidCiphertext
	}

	ss := make([]byte, mlkem768.SharedKeySize)
	dk.key.DecapsulateTo(ss, ciphertext)
	return ss, nil
}

// Bytes returns the packed encoding of the public key.
func (pk *MLKEMPublicKey) Bytes() []byte {
	if pk == nil || pk.key == nil {
		return nil
	}
	buf := make([]byte, mlkem768.PublicKeySize)
	pk.key.Pack(buf)
	return buf
}

// PublicKeyBytes returns the packed encapsulation key of the pair.
func (kp *MLKEMKeyPair) PublicKeyBytes() []byte {
	return kp.EncapsulationKey.Bytes()
}

// ParseMLKEMPublicKey parses an ML-KEM-768 public key from its packed form.
func ParseMLKEMPublicKey(data []byte) (*MLKEMPublicKey, error) {
	if len(data) != constants.MLKEM768PublicKeySize {
		return nil, qerrors.ErrInvalidPublicKey
	}
	pk := new(mlkem768.PublicKey)
	if err := pk.Unpack(data); err != nil {
		return nil, qerrors.NewCryptoError("ParseMLKEMPublicKey", err)
	}
	return &MLKEMPublicKey{key: pk}, nil
}

// PrivateKeyBytes returns the packed encoding of the decapsulation key, used
// to persist a PQ receive keypair across a snapshot/restore cycle.
func (dk *MLKEMPrivateKey) PrivateKeyBytes() []byte {
	if dk == nil || dk.key == nil {
		return nil
	}
	buf := make([]byte, constants.MLKEM768PrivateKeySize)
	dk.key.Pack(buf)
	return buf
}

// DecapsulationKeyBytes returns the packed decapsulation key of the pair.
func (kp *MLKEMKeyPair) DecapsulationKeyBytes() []byte {
	return kp.DecapsulationKey.PrivateKeyBytes()
}

// ParseMLKEMPrivateKey parses an ML-KEM-768 decapsulation key from its
// packed form.
func ParseMLKEMPrivateKey(data []byte) (*MLKEMPrivateKey, error) {
	if len(data) != constants.MLKEM768PrivateKeySize {
		return nil, qerrors.ErrInvalidPrivateKey
	}
	sk := new(mlkem768.PrivateKey)
	if err := sk.Unpack(data); err != nil {
		return nil, qerrors.NewCryptoError("ParseMLKEMPrivateKey", err)
	}
	return &MLKEMPrivateKey{key: sk}, nil
}

// NewMLKEMKeyPairFromParts reassembles a key pair from its packed
// encapsulation and decapsulation keys, used to restore a PQ receive
// keypair from a snapshot (both halves are persisted there independently
// rather than relying on any packed-key-specific public-key recovery).
func NewMLKEMKeyPairFromParts(pubData, privData []byte) (*MLKEMKeyPair, error) {
	pk, err := ParseMLKEMPublicKey(pubData)
	if err != nil {
		return nil, err
	}
	sk, err := ParseMLKEMPrivateKey(privData)
	if err != nil {
		return nil, err
	}
	return &MLKEMKeyPair{EncapsulationKey: pk, DecapsulationKey: sk}, nil
}

// Zeroize clears kp's reference to its decapsulation key.
func (kp *MLKEMKeyPair) Zeroize() {
	if kp == nil {
		return
	}
	kp.DecapsulationKey = nil
	kp.EncapsulationKey = nil
}
