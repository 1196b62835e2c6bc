// Package errors implements the closed, fail-closed error taxonomy the
// messaging core surfaces to its host: Codec, Crypto, Invalid, Reject, and
// Internal. Every exported core operation returns one of these kinds; none
// of them carry secret material in their message text.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the Codec kind: short buffer, bad length, unknown
// flag bit, version/suite mismatch.
var (
	ErrShortBuffer     = errors.New("codec: buffer too short")
	ErrBadLength       = errors.New("codec: length prefix out of range")
	ErrUnknownFlagBit  = errors.New("codec: unknown flag bit set")
	ErrTrailingBytes   = errors.New("codec: trailing bytes after structure")
	ErrVersionMismatch = errors.New("codec: protocol version mismatch")
	ErrSuiteMismatch   = errors.New("codec: suite id mismatch")
)

// Sentinel errors for the Crypto kind: AEAD auth failure, decapsulation
// failure, signature invalid.
var (
	ErrAuthenticationFailed = errors.New("crypto: aead authentication failed")
	ErrDecapsulationFailed  = errors.New("crypto: kem decapsulation failed")
	ErrSignatureInvalid     = errors.New("crypto: signature verification failed")
	ErrInvalidKeySize       = errors.New("crypto: invalid key size")
	ErrInvalidPublicKey     = errors.New("crypto: invalid public key")
	ErrInvalidPrivateKey    = errors.New("crypto: invalid private key")
	ErrInvalidCiphertext    = errors.New("crypto: invalid ciphertext")
)

// Sentinel errors for the Invalid kind: bounded-resource and counter
// violations that are local policy, not peer misbehaviour.
var (
	ErrMaxSkipExceeded      = errors.New("invalid: max_skip exceeded")
	ErrMkSkippedFull        = errors.New("invalid: mk_skipped at capacity")
	ErrDuplicateSkippedKey  = errors.New("invalid: duplicate skipped key")
	ErrCounterOverflow      = errors.New("invalid: counter overflow")
	ErrMissingRequiredField = errors.New("invalid: required field missing under flag")
)

// Sentinel errors for the Internal kind: snapshot integrity and durability
// I/O failures.
var (
	ErrSnapshotCorrupt  = errors.New("internal: snapshot integrity check failed")
	ErrDurabilityIOFail = errors.New("internal: durable record write failed")
)

// CryptoError wraps a Crypto-kind error with the operation that failed.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *CryptoError) Unwrap() error { return e.Err }

// NewCryptoError creates a new CryptoError.
func NewCryptoError(op string, err error) *CryptoError {
	return &CryptoError{Op: op, Err: err}
}

// ProtocolError wraps a Codec, Invalid or Crypto-kind error with the phase in which
// it was detected (e.g. "handshake", "ratchet-encrypt", "ratchet-decrypt").
type ProtocolError struct {
	Phase string
	Err   error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("protocol %s: %v", e.Phase, e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }

// NewProtocolError creates a new ProtocolError.
func NewProtocolError(phase string, err error) *ProtocolError {
	return &ProtocolError{Phase: phase, Err: err}
}

// RejectError carries one of the closed Suite-2 reason codes from spec §7,
// plus the plaintext header counters when they were learned before the
// reject fired (both zero if decryption never got that far).
type RejectError struct {
	Code string
	Err  error
	PN   uint32
	N    uint32
}

func (e *RejectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}
func (e *RejectError) Unwrap() error { return e.Err }

// NewRejectError creates a RejectError with no learned header counters.
func NewRejectError(code string, err error) *RejectError {
	return &RejectError{Code: code, Err: err}
}

// NewRejectErrorWithHeader creates a RejectError annotated with the
// plaintext (pn, n) learned from a successfully trial-decrypted header
// before the reject fired.
func NewRejectErrorWithHeader(code string, err error, pn, n uint32) *RejectError {
	return &RejectError{Code: code, Err: err, PN: pn, N: n}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool { return errors.As(err, target) }
