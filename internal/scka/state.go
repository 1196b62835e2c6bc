// Package scka implements the Suite-2 Supplemental Chain Key Advance
// (C5): a hybrid EC+PQ chain that mixes a fresh KEM shared secret into
// both directions at sender-chosen boundary points, tracked by a
// sender-chosen pq_target_id and a monotonically increasing
// advertisement counter with tombstone-backed replay resistance.
package scka

import (
	"github.com/qsproto/qsp-core/internal/constants"
	"github.com/qsproto/qsp-core/internal/qcrypto"
	"github.com/qsproto/qsp-core/internal/ratchet"
)

// targetState is where a pq_target_id sits in the
// unknown -> known -> consumed -> tombstoned state machine (spec §9,
// "three sets are logically a single state machine per id").
type targetState uint8

const (
	targetUnknown targetState = iota
	targetKnown
	targetConsumed
	targetTombstoned
)

// Suite2SendState is the sender-side half of a Suite-2 session: the two
// chain keys that both advance on every send, and the send counter.
type Suite2SendState struct {
	CKEc []byte // 32 bytes
	CKPq []byte // 32 bytes
	N    uint32
}

// Suite2RecvWireState is the receiver-side half: its own chain keys and
// counter, plus the full monotonic-advertisement bookkeeping (spec
// §4.5.5) and the skipped-message-key cache.
//
// Target ids are tracked as a single map to state rather than three
// separate sets; this is the "single id->state map" alternative spec §9
// explicitly allows, and it makes the unknown->known->consumed->
// tombstoned transitions a single lookup instead of three set
// memberships to keep consistent.
type Suite2RecvWireState struct {
	CKEc []byte
	CKPq []byte
	N    uint32

	PeerMaxAdvIDSeen uint32
	LocalNextAdvID   uint32

	Targets map[uint32]targetState

	MkSkipped *ratchet.MkSkippedStore
}

// Suite2SessionState is a Suite-2 SCKA session: a hybrid EC/PQ double
// chain layered over the same long-term root key and DH identity a
// Suite-1 handshake already established, reusing the handshake's rk to
// derive fresh per-boundary seeds instead of running a parallel DH
// ratchet (spec §4.5.4).
type Suite2SessionState struct {
	Role      ratchet.Role
	SessionID []byte

	RK     []byte // stable long-term root key, read-only input to PQ reseed
	DHSelf []byte // fixed for the session's lifetime; carried in AD and on the wire
	DHPeer []byte

	HKs, HKr []byte

	Send Suite2SendState
	Recv Suite2RecvWireState

	// LocalTargets holds the decapsulation keys this side has minted and
	// published out of band (spec §9 open question: the wire format does
	// not describe how a peer learns a new target id; the core exposes
	// MintTarget/RegisterKnownTarget for the host to plumb that exchange
	// through its own channel).
	LocalTargets map[uint32]*qcrypto.MLKEMKeyPair

	NonceSource qcrypto.NonceSource

	ProtocolVersion uint16
	SuiteID         uint16
}

// NewSuite2SessionState upgrades a completed Suite-1 SessionState into a
// Suite-2 session: it reuses the handshake's root key, DH identity, and
// header keys, and seeds the target-id bookkeeping from whatever PQ
// receive material the handshake already established, so a peer that was
// reachable for a one-off FLAG_PQ_CTXT message is also a valid boundary
// target under Suite-2 from the very first message.
func NewSuite2SessionState(base *ratchet.SessionState, initialCKEcSend, initialCKPqSend, initialCKEcRecv, initialCKPqRecv []byte) (*Suite2SessionState, error) {
	st := &Suite2SessionState{
		Role:      base.Role,
		SessionID: append([]byte{}, base.SessionID...),
		RK:        append([]byte{}, base.RK...),
		DHSelf:    base.DHSelf.PublicKeyBytes(),
		DHPeer:    append([]byte{}, base.DHPeer...),
		HKs:       append([]byte{}, base.HKs...),
		HKr:       append([]byte{}, base.HKr...),
		Send: Suite2SendState{
			CKEc: append([]byte{}, initialCKEcSend...),
			CKPq: append([]byte{}, initialCKPqSend...),
		},
		Recv: Suite2RecvWireState{
			CKEc:      append([]byte{}, initialCKEcRecv...),
			CKPq:      append([]byte{}, initialCKPqRecv...),
			Targets:   make(map[uint32]targetState),
			MkSkipped: ratchet.NewMkSkippedStore(),
		},
		LocalTargets:    make(map[uint32]*qcrypto.MLKEMKeyPair),
		NonceSource:     base.NonceSource,
		ProtocolVersion: constants.ProtocolVersionSuite2,
		SuiteID:         constants.SuiteIDSuite2,
	}

	for _, entry := range base.PQSelf {
		st.LocalTargets[entry.ID] = entry.Kp
		if entry.ID >= st.Recv.LocalNextAdvID {
			st.Recv.LocalNextAdvID = entry.ID + 1
		}
	}
	if base.PQPeerPresent {
		st.Recv.Targets[base.PQPeerID] = targetKnown
	}
	return st, nil
}

// Clone returns a deep, independent copy so a fallible Suite-2 operation
// can mutate a draft and only publish it on success, mirroring the
// ratchet's own draft-before-commit discipline (spec §5, §9).
func (s *Suite2SessionState) Clone() *Suite2SessionState {
	targets := make(map[uint32]targetState, len(s.Recv.Targets))
	for id, st := range s.Recv.Targets {
		targets[id] = st
	}
	localTargets := make(map[uint32]*qcrypto.MLKEMKeyPair, len(s.LocalTargets))
	for id, kp := range s.LocalTargets {
		localTargets[id] = kp
	}
	return &Suite2SessionState{
		Role:      s.Role,
		SessionID: append([]byte{}, s.SessionID...),
		RK:        append([]byte{}, s.RK...),
		DHSelf:    append([]byte{}, s.DHSelf...),
		DHPeer:    append([]byte{}, s.DHPeer...),
		HKs:       append([]byte{}, s.HKs...),
		HKr:       append([]byte{}, s.HKr...),
		Send: Suite2SendState{
			CKEc: append([]byte{}, s.Send.CKEc...),
			CKPq: append([]byte{}, s.Send.CKPq...),
			N:    s.Send.N,
		},
		Recv: Suite2RecvWireState{
			CKEc:             append([]byte{}, s.Recv.CKEc...),
			CKPq:             append([]byte{}, s.Recv.CKPq...),
			N:                s.Recv.N,
			PeerMaxAdvIDSeen: s.Recv.PeerMaxAdvIDSeen,
			LocalNextAdvID:   s.Recv.LocalNextAdvID,
			Targets:          targets,
			MkSkipped:        s.Recv.MkSkipped.Clone(),
		},
		LocalTargets:    localTargets,
		NonceSource:     s.NonceSource,
		ProtocolVersion: s.ProtocolVersion,
		SuiteID:         s.SuiteID,
	}
}

func (s *Suite2SessionState) adopt(draft *Suite2SessionState) { *s = *draft }

// MintTarget generates a fresh ML-KEM-768 key pair this side can later
// decapsulate a boundary ciphertext against, assigns it the next local
// advertisement id, and records it locally. The caller is responsible for
// publishing (id, public key) to the peer through its own channel; the
// peer only learns of it via RegisterKnownTarget.
func (s *Suite2SessionState) MintTarget() (id uint32, kp *qcrypto.MLKEMKeyPair, err error) {
	kp, err = qcrypto.GenerateMLKEMKeyPair()
	if err != nil {
		return 0, nil, err
	}
	id = s.Recv.LocalNextAdvID
	s.Recv.LocalNextAdvID++
	s.LocalTargets[id] = kp
	return id, kp, nil
}

// RegisterKnownTarget marks a peer-published target id as known, making
// it eligible for a future boundary receive. It is a no-op if the id has
// already progressed past "known" (consumed or tombstoned), since a
// retired id must never become acceptable again.
func (s *Suite2SessionState) RegisterKnownTarget(id uint32) {
	if _, exists := s.Recv.Targets[id]; exists {
		return
	}
	s.Recv.Targets[id] = targetKnown
}
