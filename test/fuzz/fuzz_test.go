// Package fuzz provides fuzz tests for security-critical parsing functions.
//
// Run fuzz tests with:
//
//	go test -fuzz=FuzzParseX25519PublicKey -fuzztime=30s ./test/fuzz/
//	go test -fuzz=FuzzParseMLKEMPublicKey -fuzztime=30s ./test/fuzz/
//	go test -fuzz=FuzzDecodePrekeyBundle -fuzztime=30s ./test/fuzz/
//	go test -fuzz=FuzzDecodeHandshakeInit -fuzztime=30s ./test/fuzz/
//	go test -fuzz=FuzzAEADOpen -fuzztime=30s ./test/fuzz/
//
// Run all fuzz tests sequentially:
//
//	go test -fuzz=Fuzz -fuzztime=10s ./test/fuzz/
package fuzz

import (
	"testing"

	"github.com/qsproto/qsp-core/internal/constants"
	"github.com/qsproto/qsp-core/internal/qcrypto"
	"github.com/qsproto/qsp-core/internal/wire"
)

// FuzzParseX25519PublicKey fuzzes the classical DH public key parser. This
// is security-critical as it processes untrusted input carried in bundles
// and handshake messages.
func FuzzParseX25519PublicKey(f *testing.F) {
	kp, _ := qcrypto.GenerateX25519KeyPair()
	f.Add(kp.PublicKeyBytes())
	f.Add([]byte{})
	f.Add(make([]byte, constants.X25519KeySize-1))
	f.Add(make([]byte, constants.X25519KeySize+1))
	f.Add(make([]byte, constants.X25519KeySize))

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = qcrypto.ParseX25519PublicKey(data)
	})
}

// FuzzParseMLKEMPublicKey fuzzes the ML-KEM-768 encapsulation key parser.
func FuzzParseMLKEMPublicKey(f *testing.F) {
	kp, _ := qcrypto.GenerateMLKEMKeyPair()
	f.Add(kp.PublicKeyBytes())
	f.Add([]byte{})
	f.Add(make([]byte, constants.MLKEM768PublicKeySize-1))
	f.Add(make([]byte, constants.MLKEM768PublicKeySize+1))

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = qcrypto.ParseMLKEMPublicKey(data)
	})
}

// FuzzParseEd25519PublicKey fuzzes the classical identity key parser.
func FuzzParseEd25519PublicKey(f *testing.F) {
	kp, _ := qcrypto.GenerateEd25519KeyPair()
	f.Add([]byte(kp.PublicKey))
	f.Add([]byte{})
	f.Add(make([]byte, 31))
	f.Add(make([]byte, 33))

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = qcrypto.ParseEd25519PublicKey(data)
	})
}

// FuzzParseMLDSAPublicKey fuzzes the PQ identity signature key parser.
func FuzzParseMLDSAPublicKey(f *testing.F) {
	kp, _ := qcrypto.GenerateMLDSAKeyPair()
	f.Add(qcrypto.PublicKeyBytes(kp.PublicKey))
	f.Add([]byte{})
	f.Add(make([]byte, 10))

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = qcrypto.ParseMLDSAPublicKey(data)
	})
}

// FuzzDecodePrekeyBundle fuzzes the published-bundle wire decoder. Bundles
// arrive from a directory service an attacker may control; decoding must
// never panic regardless of input.
func FuzzDecodePrekeyBundle(f *testing.F) {
	f.Add([]byte{})
	f.Add(make([]byte, 4))
	f.Add(make([]byte, 256))

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = wire.DecodePrekeyBundle(data)
	})
}

// FuzzDecodeHandshakeInit fuzzes the initiator handshake message decoder.
func FuzzDecodeHandshakeInit(f *testing.F) {
	f.Add([]byte{})
	f.Add(make([]byte, 4))
	f.Add(make([]byte, 512))

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = wire.DecodeHandshakeInit(data)
	})
}

// FuzzDecodeHandshakeResp fuzzes the responder handshake message decoder.
func FuzzDecodeHandshakeResp(f *testing.F) {
	f.Add([]byte{})
	f.Add(make([]byte, 4))
	f.Add(make([]byte, 512))

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = wire.DecodeHandshakeResp(data)
	})
}

// FuzzDecodeProtocolMessage fuzzes the per-message ratchet wire decoder,
// the format carrying every ciphertext exchanged once a session is live.
func FuzzDecodeProtocolMessage(f *testing.F) {
	f.Add([]byte{})
	f.Add(make([]byte, 2))
	f.Add(make([]byte, 128))

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = wire.DecodeProtocolMessage(data)
	})
}

// FuzzDecodeSuite2Frame fuzzes the Suite-2 SCKA wire decoder.
func FuzzDecodeSuite2Frame(f *testing.F) {
	f.Add([]byte{})
	f.Add(make([]byte, 2))
	f.Add(make([]byte, 128))

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = wire.DecodeSuite2Frame(data)
	})
}

// FuzzAEADOpen fuzzes the key-committing AEAD's Open path (AES-256-GCM).
// An attacker who controls the ciphertext must never be able to trigger a
// panic, only a clean authentication failure.
func FuzzAEADOpen(f *testing.F) {
	key := make([]byte, constants.ChainKeySize)
	aead, _ := qcrypto.NewAEAD(constants.AEADSuiteAES256GCM, key)
	nonce := make([]byte, 12)
	ct, _ := aead.Seal(nonce, []byte("seed plaintext"), nil)
	f.Add(ct)
	f.Add([]byte{})
	f.Add(make([]byte, 16))

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = aead.Open(nonce, data, nil)
	})
}

// FuzzAEADOpenChaCha20 is the ChaCha20-Poly1305 analogue of FuzzAEADOpen.
func FuzzAEADOpenChaCha20(f *testing.F) {
	key := make([]byte, constants.ChainKeySize)
	aead, _ := qcrypto.NewAEAD(constants.AEADSuiteChaCha20Poly1305, key)
	nonce := make([]byte, 12)
	ct, _ := aead.Seal(nonce, []byte("seed plaintext"), nil)
	f.Add(ct)
	f.Add([]byte{})
	f.Add(make([]byte, 16))

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = aead.Open(nonce, data, nil)
	})
}

// FuzzMLKEMDecapsulate exercises circl's implicit-rejection guarantee: a
// malformed ciphertext of the right length must decapsulate to some
// pseudorandom secret, never panic or return an error.
func FuzzMLKEMDecapsulate(f *testing.F) {
	kp, _ := qcrypto.GenerateMLKEMKeyPair()
	valid, _, _ := qcrypto.MLKEMEncapsulate(kp.EncapsulationKey)
	f.Add(valid)
	f.Add(make([]byte, constants.MLKEM768CiphertextSize))

	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) != constants.MLKEM768CiphertextSize {
			t.Skip()
		}
		if _, err := qcrypto.MLKEMDecapsulate(kp.DecapsulationKey, data); err != nil {
			t.Fatalf("decapsulate returned error instead of implicit rejection: %v", err)
		}
	})
}

// FuzzKDF fuzzes the KMAC-based derivation function with arbitrary label
// and input material, confirming it never panics and always produces
// deterministic output for the same inputs.
func FuzzKDF(f *testing.F) {
	f.Add([]byte("some key material padded to length........"), "label", []byte("data"))
	f.Add([]byte{}, "", []byte{})

	f.Fuzz(func(t *testing.T, key []byte, label string, data []byte) {
		if len(key) == 0 {
			t.Skip()
		}
		out1, err1 := qcrypto.K(key, label, data, 32)
		out2, err2 := qcrypto.K(key, label, data, 32)
		if (err1 == nil) != (err2 == nil) {
			t.Fatalf("K non-deterministic error: %v vs %v", err1, err2)
		}
		if err1 == nil && string(out1) != string(out2) {
			t.Fatalf("K non-deterministic output")
		}
	})
}
