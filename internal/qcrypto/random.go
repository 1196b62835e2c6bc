// random.go provides the core's only configurable entropy point: an
// injected 12-byte nonce source (spec §5). Production hosts use
// SystemNonceSource (OS CSPRNG); CI and fuzz/snapshot tests use
// NewDeterministicNonceSource, a counter-based generator seeded from a
// domain-separated hash over (actor_name, session_id, seed_label) so that
// encrypt() is bit-exactly reproducible across runs (spec §8 property 3).
package qcrypto

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync"

	qerrors "github.com/qsproto/qsp-core/internal/errors"
)

// NonceSource produces fresh 12-byte header nonces for outbound messages.
// Its state is part of a session's snapshot so restore() resumes at the
// exact same point, preventing AEAD nonce reuse across a restart.
type NonceSource interface {
	NextHeaderNonce() [12]byte
	// State returns opaque bytes sufficient to reconstruct this source via
	// RestoreState, included verbatim in session snapshots.
	State() []byte
	RestoreState(state []byte) error
}

// SystemNonceSource draws header nonces directly from the OS CSPRNG. It is
// stateless: State()/RestoreState() are no-ops since crypto/rand carries no
// session-visible state.
type SystemNonceSource struct{}

func (SystemNonceSource) NextHeaderNonce() [12]byte {
	var n [12]byte
	MustSecureRandom(n[:])
	return n
}

func (SystemNonceSource) State() []byte { return nil }

func (SystemNonceSource) RestoreState(state []byte) error { return nil }

// DeterministicNonceSource is a counter-based generator for CI and
// reproducibility tests. Each nonce is H(seed || counter)[:12], so two
// instances constructed with the same seed produce the same nonce sequence.
type DeterministicNonceSource struct {
	mu      sync.Mutex
	seed    []byte
	counter uint64
}

// NewDeterministicNonceSource derives the generator's seed from a
// domain-separated hash over (actorName, sessionID, seedLabel), matching
// spec §5's CI nonce-source construction.
func NewDeterministicNonceSource(actorName string, sessionID []byte, seedLabel string) *DeterministicNonceSource {
	seed := H([]byte("QSP-CI-NONCE-SEED"), []byte(actorName), sessionID, []byte(seedLabel))
	return &DeterministicNonceSource{seed: seed}
}

func (d *DeterministicNonceSource) NextHeaderNonce() [12]byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	var ctrBuf [8]byte
	binary.BigEndian.PutUint64(ctrBuf[:], d.counter)
	d.counter++

	digest := H(d.seed, ctrBuf[:])
	var n [12]byte
	copy(n[:], digest[:12])
	return n
}

// State returns seed || counter so the generator resumes deterministically.
func (d *DeterministicNonceSource) State() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]byte, len(d.seed)+8)
	copy(out, d.seed)
	binary.BigEndian.PutUint64(out[len(d.seed):], d.counter)
	return out
}

func (d *DeterministicNonceSource) RestoreState(state []byte) error {
	if len(state) < 8 {
		return qerrors.NewCryptoError("DeterministicNonceSource.RestoreState", qerrors.ErrInvalidKeySize)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	seedLen := len(state) - 8
	d.seed = append([]byte{}, state[:seedLen]...)
	d.counter = binary.BigEndian.Uint64(state[seedLen:])
	return nil
}

// SecureRandom reads cryptographically secure random bytes into b.
func SecureRandom(b []byte) error {
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return qerrors.NewCryptoError("SecureRandom", err)
	}
	return nil
}

// SecureRandomBytes returns n cryptographically secure random bytes.
func SecureRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if err := SecureRandom(b); err != nil {
		return nil, err
	}
	return b, nil
}

// MustSecureRandom panics if the system's CSPRNG fails; callers use it only
// where CSPRNG failure is an unrecoverable condition (session/key minting).
func MustSecureRandom(b []byte) {
	if err := SecureRandom(b); err != nil {
		panic("qcrypto: failed to read from CSPRNG: " + err.Error())
	}
}

// Reader is an io.Reader sourcing OS CSPRNG bytes, used by primitives that
// take a reader (ML-KEM/ML-DSA key generation, Ed25519).
var Reader = rand.Reader

// ConstantTimeCompare reports whether a and b are equal without leaking
// timing information proportional to the position of the first mismatch.
func ConstantTimeCompare(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var result byte
	for i := range a {
		result |= a[i] ^ b[i]
	}
	return result == 0
}

// Zeroize overwrites b with zeros. Best-effort: the Go compiler may still
// elide the write in some contexts, but this matches the erasure discipline
// the rest of the corpus applies to key material.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ZeroizeMultiple zeroizes every slice passed to it.
func ZeroizeMultiple(slices ...[]byte) {
	for _, s := range slices {
		Zeroize(s)
	}
}
