// Package ratchet implements the double-ratchet engine (C4): the chain
// KDFs, header-key derivation, send/receive message processing, header
// trial decryption, and the DH receive ratchet described in spec §4.3-§4.4.
// Every fallible operation is performed on a cloned draft and published
// only on success, so a failed call always leaves SessionState untouched.
package ratchet

import (
	"github.com/qsproto/qsp-core/internal/qcrypto"
)

// Role distinguishes the two peers in a session; header-key derivation is
// a pure function of role (spec §4.3, §9 "no inheritance").
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

// PQSelfEntry is one self-held PQ receive keypair, cached by id so a peer
// can target it with a PQ_CTXT ciphertext (spec §3.3).
type PQSelfEntry struct {
	ID  uint32
	Pub []byte
	Kp  *qcrypto.MLKEMKeyPair
}

// SessionState is the mutable per-peer session the ratchet owns, spec §3.3.
type SessionState struct {
	Role Role

	SessionID []byte // 16 bytes
	RK        []byte // 32 bytes

	DHSelf *qcrypto.X25519KeyPair
	DHPeer []byte // 32 bytes, peer's current X25519 public key

	CKs []byte // sending chain key, nil when unset
	CKr []byte // receiving chain key, nil when unset

	HKs, HKr, NHKs, NHKr []byte // 32 bytes each

	Ns, Nr, Pn uint32

	BoundaryPending bool
	BoundaryHK      []byte

	MkSkipped *MkSkippedStore
	HkSkipped *HkSkippedStore

	PQPeerPresent bool
	PQPeerID      uint32
	PQPeerPub     []byte

	PQSelf []PQSelfEntry

	NonceSource qcrypto.NonceSource

	ProtocolVersion uint16
	SuiteID         uint16
}

// Clone returns a deep, independent copy so a fallible operation can
// mutate a draft and only publish it on success (spec §9, §5).
func (s *SessionState) Clone() *SessionState {
	out := &SessionState{
		Role:            s.Role,
		SessionID:       append([]byte{}, s.SessionID...),
		RK:              append([]byte{}, s.RK...),
		DHPeer:          append([]byte{}, s.DHPeer...),
		Ns:              s.Ns,
		Nr:              s.Nr,
		Pn:              s.Pn,
		BoundaryPending: s.BoundaryPending,
		PQPeerPresent:   s.PQPeerPresent,
		PQPeerID:        s.PQPeerID,
		ProtocolVersion: s.ProtocolVersion,
		SuiteID:         s.SuiteID,
		NonceSource:     s.NonceSource,
	}
	if s.DHSelf != nil {
		out.DHSelf = s.DHSelf.Clone()
	}
	out.CKs = cloneOptional(s.CKs)
	out.CKr = cloneOptional(s.CKr)
	out.HKs = cloneOptional(s.HKs)
	out.HKr = cloneOptional(s.HKr)
	out.NHKs = cloneOptional(s.NHKs)
	out.NHKr = cloneOptional(s.NHKr)
	out.BoundaryHK = cloneOptional(s.BoundaryHK)
	out.PQPeerPub = cloneOptional(s.PQPeerPub)

	if s.MkSkipped != nil {
		out.MkSkipped = s.MkSkipped.Clone()
	} else {
		out.MkSkipped = NewMkSkippedStore()
	}
	if s.HkSkipped != nil {
		out.HkSkipped = s.HkSkipped.Clone()
	} else {
		out.HkSkipped = NewHkSkippedStore()
	}

	out.PQSelf = make([]PQSelfEntry, len(s.PQSelf))
	for i, e := range s.PQSelf {
		out.PQSelf[i] = PQSelfEntry{ID: e.ID, Pub: append([]byte{}, e.Pub...), Kp: e.Kp}
	}
	return out
}

func cloneOptional(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

// adopt replaces the receiver's contents with draft's, completing a
// draft-before-commit publish (spec §5: "published only after all
// fallible steps succeed").
func (s *SessionState) adopt(draft *SessionState) {
	*s = *draft
}

// dhPubArray returns the fixed-size form of DHPeer used as a skipped-cache
// map key.
func dhPubArray(b []byte) [32]byte {
	var out [32]byte
	copy(out[:], b)
	return out
}
