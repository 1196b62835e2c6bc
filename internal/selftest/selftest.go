// Package selftest implements a power-on self-test for the cryptographic
// core, grounded on the reference VPN's pkg/crypto/post.go (power-on
// self-test, run from init()) and cst.go (conditional pairwise-consistency
// tests run around key generation). It runs no conditional tests of its
// own around key generation.
//
// Unlike the reference, this package does not pin hardcoded Known-Answer-Test
// byte vectors for KMAC-256, the committing AEAD, or ML-KEM-768: authoring
// those by hand without ever running the code that would need to produce
// them risks shipping a self-test that fails on every correct build. Instead
// every check is a self-consistency test in the style of the reference's own
// cst.go pairwise tests: derive or round-trip a value twice from fixed,
// deterministic inputs and assert internal agreement (equal outputs, correct
// length, non-zero material, tamper detection), which still catches a
// corrupted build or a broken primitive without depending on an externally
// memorized vector.
package selftest

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/qsproto/qsp-core/internal/constants"
	"github.com/qsproto/qsp-core/internal/qcrypto"
)

// Result carries the outcome of a self-test run.
type Result struct {
	Passed       bool
	KDFPassed    bool
	AEADPassed   bool
	X25519Passed bool
	MLKEMPassed  bool
	Errors       []string
}

var (
	result     *Result
	resultOnce sync.Once
)

// Run executes the self-test suite and returns its result. Safe to call
// repeatedly; the suite only actually runs once.
func Run() *Result {
	resultOnce.Do(func() {
		result = &Result{Passed: true}

		if err := checkKDF(); err != nil {
			result.Passed = false
			result.Errors = append(result.Errors, fmt.Sprintf("KDF self-test failed: %v", err))
		} else {
			result.KDFPassed = true
		}

		if err := checkAEAD(); err != nil {
			result.Passed = false
			result.Errors = append(result.Errors, fmt.Sprintf("AEAD self-test failed: %v", err))
		} else {
			result.AEADPassed = true
		}

		if err := checkX25519(); err != nil {
			result.Passed = false
			result.Errors = append(result.Errors, fmt.Sprintf("X25519 self-test failed: %v", err))
		} else {
			result.X25519Passed = true
		}

		if err := checkMLKEM(); err != nil {
			result.Passed = false
			result.Errors = append(result.Errors, fmt.Sprintf("ML-KEM-768 self-test failed: %v", err))
		} else {
			result.MLKEMPassed = true
		}
	})
	return result
}

// Ran reports whether Run has completed at least once.
func Ran() bool {
	return result != nil
}

// Passed reports whether the self-test suite has run and every check
// passed. Returns false if Run has not been called yet.
func Passed() bool {
	return result != nil && result.Passed
}

var fixedKDFKey = bytes.Repeat([]byte{0x42}, 32)

// checkKDF exercises K (KMAC-256): identical inputs must derive identical
// output, a different label must derive different output, and the output
// must never be all-zero.
func checkKDF() error {
	out1, err := qcrypto.K(fixedKDFKey, "QSP-SELFTEST/A", []byte("fixed-input"), 32)
	if err != nil {
		return fmt.Errorf("K (first derivation): %w", err)
	}
	out2, err := qcrypto.K(fixedKDFKey, "QSP-SELFTEST/A", []byte("fixed-input"), 32)
	if err != nil {
		return fmt.Errorf("K (second derivation): %w", err)
	}
	if !bytes.Equal(out1, out2) {
		return fmt.Errorf("K is not deterministic for identical inputs")
	}
	if allZero(out1) {
		return fmt.Errorf("K produced all-zero output")
	}

	outOtherLabel, err := qcrypto.K(fixedKDFKey, "QSP-SELFTEST/B", []byte("fixed-input"), 32)
	if err != nil {
		return fmt.Errorf("K (second label): %w", err)
	}
	if bytes.Equal(out1, outOtherLabel) {
		return fmt.Errorf("K did not separate output by label")
	}
	return nil
}

var fixedAEADKey = bytes.Repeat([]byte{0x24}, constants.ChainKeySize)

// checkAEAD exercises the key-committing AEAD wrapper: a sealed message must
// open back to the original plaintext, and a single flipped ciphertext byte
// must be rejected by the AEAD tag under the derived subkey.
func checkAEAD() error {
	aead, err := qcrypto.NewAEAD(constants.AEADSuiteChaCha20Poly1305, fixedAEADKey)
	if err != nil {
		return fmt.Errorf("NewAEAD: %w", err)
	}

	nonce := bytes.Repeat([]byte{0x01}, constants.Nonce12Size)
	plaintext := []byte("QSP-SELFTEST-AEAD-ROUNDTRIP")
	ad := []byte("selftest-ad")

	sealed, err := aead.Seal(nonce, plaintext, ad)
	if err != nil {
		return fmt.Errorf("Seal: %w", err)
	}
	opened, err := aead.Open(nonce, sealed, ad)
	if err != nil {
		return fmt.Errorf("Open: %w", err)
	}
	if !bytes.Equal(opened, plaintext) {
		return fmt.Errorf("Open did not recover the sealed plaintext")
	}

	tampered := append([]byte{}, sealed...)
	tampered[len(tampered)-1] ^= 0xFF
	if _, err := aead.Open(nonce, tampered, ad); err == nil {
		return fmt.Errorf("Open accepted a tampered ciphertext")
	}
	return nil
}

// checkX25519 exercises the classical DH primitive: two freshly generated
// key pairs must agree on the same shared secret computed from either side,
// and that secret must not be all-zero.
func checkX25519() error {
	a, err := qcrypto.GenerateX25519KeyPair()
	if err != nil {
		return fmt.Errorf("GenerateX25519KeyPair (a): %w", err)
	}
	b, err := qcrypto.GenerateX25519KeyPair()
	if err != nil {
		return fmt.Errorf("GenerateX25519KeyPair (b): %w", err)
	}

	secretAB, err := qcrypto.X25519(a.PrivateKey, b.PublicKey)
	if err != nil {
		return fmt.Errorf("X25519 (a->b): %w", err)
	}
	secretBA, err := qcrypto.X25519(b.PrivateKey, a.PublicKey)
	if err != nil {
		return fmt.Errorf("X25519 (b->a): %w", err)
	}
	if !bytes.Equal(secretAB, secretBA) {
		return fmt.Errorf("shared secrets disagree")
	}
	if allZero(secretAB) {
		return fmt.Errorf("shared secret is all-zero")
	}
	return nil
}

// checkMLKEM exercises the ML-KEM-768 KEM: encapsulation against a freshly
// generated key pair's public key must decapsulate under its own private
// key to the same shared secret, matching the reference's own pairwise
// consistency test (cst.go's PairwiseConsistencyTestMLKEM).
func checkMLKEM() error {
	kp, err := qcrypto.GenerateMLKEMKeyPair()
	if err != nil {
		return fmt.Errorf("GenerateMLKEMKeyPair: %w", err)
	}
	if len(kp.PublicKeyBytes()) != constants.MLKEM768PublicKeySize {
		return fmt.Errorf("public key size mismatch: got %d, want %d", len(kp.PublicKeyBytes()), constants.MLKEM768PublicKeySize)
	}

	ciphertext, secret1, err := qcrypto.MLKEMEncapsulate(kp.EncapsulationKey)
	if err != nil {
		return fmt.Errorf("MLKEMEncapsulate: %w", err)
	}
	if len(ciphertext) != constants.MLKEM768CiphertextSize {
		return fmt.Errorf("ciphertext size mismatch: got %d, want %d", len(ciphertext), constants.MLKEM768CiphertextSize)
	}

	secret2, err := qcrypto.MLKEMDecapsulate(kp.DecapsulationKey, ciphertext)
	if err != nil {
		return fmt.Errorf("MLKEMDecapsulate: %w", err)
	}
	if !bytes.Equal(secret1, secret2) {
		return fmt.Errorf("shared secret mismatch after decapsulation")
	}
	if allZero(secret1) {
		return fmt.Errorf("shared secret is all-zero")
	}
	return nil
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
