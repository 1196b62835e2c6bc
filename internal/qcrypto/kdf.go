// kdf.go implements the two derivation primitives the handshake, ratchet,
// and SCKA components build on: H, the SHA-512 transcript/master-secret
// hash, and K, a KMAC-256 construction per NIST SP 800-185 built atop
// cSHAKE256 (FIPS 202). Every label passed as domain or key context comes
// from internal/constants and is reproduced on the wire bit-exactly so two
// independent implementations derive identical keys from identical
// transcripts.
package qcrypto

import (
	"crypto/sha512"
	"encoding/binary"

	"golang.org/x/crypto/sha3"

	qerrors "github.com/qsproto/qsp-core/internal/errors"
)

// H computes SHA-512 over the concatenation of its components, used for
// the handshake master-secret and transcript hashes (spec §4.2).
func H(components ...[]byte) []byte {
	h := sha512.New()
	for _, c := range components {
		h.Write(c)
	}
	return h.Sum(nil)
}

// HashSHA3_256 computes SHA3-256, used where the spec calls for a 32-byte
// digest rather than SHA-512 (e.g. pq_bind, digest-store entries).
func HashSHA3_256(components ...[]byte) []byte {
	h := sha3.New256()
	for _, c := range components {
		h.Write(c)
	}
	return h.Sum(nil)
}

// K implements KMAC-256(key, label, data, outputLen) per NIST SP 800-185,
// using "label" as the customization string S and "data" as message X. No
// additional key-derivation key K' prefixing is needed because the chain,
// root, and header keys passed in as `key` are already uniformly random
// 32-byte secrets.
func K(key []byte, label string, data []byte, outputLen int) ([]byte, error) {
	if outputLen <= 0 || outputLen > 1<<16 {
		return nil, qerrors.NewCryptoError("K", qerrors.ErrInvalidKeySize)
	}

	h := newKMAC256(key, []byte(label))
	h.Write(data)
	// KMAC's final right_encode(L) suffix is appended by kmacState.Read
	// below, matching SP 800-185 §4.
	out := make([]byte, outputLen)
	h.Read(out)
	return out, nil
}

// kmacState wraps a cSHAKE256 instance configured for KMAC per SP 800-185.
type kmacState struct {
	shake sha3.ShakeHash
}

// newKMAC256 constructs KMAC256(K, S) = cSHAKE256(bytepad(encode_string(K), 136) || X ..., L, "KMAC", S).
func newKMAC256(key, customization []byte) *kmacState {
	cs := sha3.NewCShake256([]byte("KMAC"), customization)
	cs.Write(bytepad(encodeString(key), 136))
	return &kmacState{shake: cs}
}

func (k *kmacState) Write(p []byte) { k.shake.Write(p) }

// Read squeezes outputLen bytes, first appending KMAC's mandatory
// right_encode(L) suffix (L expressed in bits) before extracting output.
func (k *kmacState) Read(out []byte) {
	k.shake.Write(rightEncode(uint64(len(out)) * 8))
	_, _ = k.shake.Read(out)
}

// encodeString implements NIST SP 800-185's encode_string: left_encode(len(X) in bits) || X.
func encodeString(x []byte) []byte {
	return append(leftEncode(uint64(len(x))*8), x...)
}

// bytepad prepends left_encode(w) to X and right-pads the result with zero
// bytes to a multiple of w, per SP 800-185 §2.3.3.
func bytepad(x []byte, w int) []byte {
	prefix := leftEncode(uint64(w))
	buf := append(prefix, x...)
	if rem := len(buf) % w; rem != 0 {
		buf = append(buf, make([]byte, w-rem)...)
	}
	return buf
}

// leftEncode encodes an integer as SP 800-185 left_encode: a length byte
// followed by the big-endian minimal encoding of the integer.
func leftEncode(value uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], value)
	i := 0
	for i < 7 && buf[i] == 0 {
		i++
	}
	n := 8 - i
	out := make([]byte, n+1)
	out[0] = byte(n)
	copy(out[1:], buf[i:])
	return out
}

// rightEncode encodes an integer as SP 800-185 right_encode: the big-endian
// minimal encoding of the integer followed by a length byte.
func rightEncode(value uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], value)
	i := 0
	for i < 7 && buf[i] == 0 {
		i++
	}
	n := 8 - i
	out := make([]byte, n+1)
	copy(out, buf[i:])
	out[n] = byte(n)
	return out
}

// Split64 splits a 64-byte KDF output into two 32-byte halves, used by
// split_64(K(rk, "QSP4.3/RKDH", dh_out, 64)) in the DH ratchet (spec §4.4.1).
func Split64(material []byte) (first, second []byte, err error) {
	if len(material) != 64 {
		return nil, nil, qerrors.NewCryptoError("Split64", qerrors.ErrInvalidKeySize)
	}
	return material[:32], material[32:], nil
}

// First12 truncates a hash output to the first 12 bytes, used to derive
// nonce_body (spec §4.4.2).
func First12(material []byte) []byte {
	if len(material) < 12 {
		return append(append([]byte{}, material...), make([]byte, 12-len(material))...)
	}
	return material[:12]
}

// First32 truncates a hash output to the first 32 bytes, used to derive
// pq_bind (spec §4.5.2).
func First32(material []byte) []byte {
	if len(material) < 32 {
		return append(append([]byte{}, material...), make([]byte, 32-len(material))...)
	}
	return material[:32]
}
