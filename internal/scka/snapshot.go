// snapshot.go implements Snapshot/Restore for Suite2SessionState (spec
// §6.3): magic "QS2S", version 1, the same fixed-scalar-then-sorted-
// container discipline as the Suite-1 snapshot, plus the three target-id
// sets encoded in ascending order and the full mkskipped vector. Restore
// is total and fail-closed, capping every id-set/mkskipped count at the
// 1,000/10,000 restore-time sanity bounds before trusting it enough to
// loop over untrusted input.
package scka

import (
	"sort"

	"github.com/qsproto/qsp-core/internal/constants"
	"github.com/qsproto/qsp-core/internal/qcrypto"
	"github.com/qsproto/qsp-core/internal/ratchet"
	"github.com/qsproto/qsp-core/internal/wire"

	qerrors "github.com/qsproto/qsp-core/internal/errors"
)

const (
	nonceSourceSystemS2        byte = 0
	nonceSourceDeterministicS2 byte = 1
)

// Snapshot encodes st in the canonical Suite-2 format.
func Snapshot(st *Suite2SessionState) ([]byte, error) {
	if st.NonceSource == nil {
		return nil, qerrors.NewProtocolError("scka.Snapshot", qerrors.ErrMissingRequiredField)
	}

	w := wire.NewWriter(1024)
	w.PutFixed([]byte(constants.SnapshotMagicSuite2))
	w.PutFixed([]byte{constants.SnapshotVersion})

	w.PutFixed([]byte{byte(st.Role)})
	w.PutBytes16(st.SessionID)
	w.PutBytes16(st.RK)
	w.PutBytes16(st.DHSelf)
	w.PutBytes16(st.DHPeer)
	w.PutBytes16(st.HKs)
	w.PutBytes16(st.HKr)

	w.PutBytes16(st.Send.CKEc)
	w.PutBytes16(st.Send.CKPq)
	w.PutUint32(st.Send.N)

	w.PutBytes16(st.Recv.CKEc)
	w.PutBytes16(st.Recv.CKPq)
	w.PutUint32(st.Recv.N)
	w.PutUint32(st.Recv.PeerMaxAdvIDSeen)
	w.PutUint32(st.Recv.LocalNextAdvID)

	known, consumed, tombstoned := splitTargets(st.Recv.Targets)
	putSortedIDs(w, known)
	putSortedIDs(w, consumed)
	putSortedIDs(w, tombstoned)

	mkSorted := st.Recv.MkSkipped.SortedKeys()
	w.PutUint32(uint32(len(mkSorted)))
	for _, key := range mkSorted {
		mk, ok := st.Recv.MkSkipped.Get(key)
		if !ok {
			return nil, qerrors.NewProtocolError("scka.Snapshot", qerrors.ErrSnapshotCorrupt)
		}
		w.PutFixed(key.DHPub[:])
		w.PutUint32(key.N)
		w.PutBytes16(mk)
	}

	localIDs := make([]uint32, 0, len(st.LocalTargets))
	for id := range st.LocalTargets {
		localIDs = append(localIDs, id)
	}
	sort.Slice(localIDs, func(i, j int) bool { return localIDs[i] < localIDs[j] })
	w.PutUint32(uint32(len(localIDs)))
	for _, id := range localIDs {
		kp := st.LocalTargets[id]
		w.PutUint32(id)
		w.PutBytes16(kp.PublicKeyBytes())
		w.PutBytes16(kp.DecapsulationKeyBytes())
	}

	switch ns := st.NonceSource.(type) {
	case *qcrypto.DeterministicNonceSource:
		w.PutFixed([]byte{nonceSourceDeterministicS2})
		w.PutBytes16(ns.State())
	case qcrypto.SystemNonceSource:
		w.PutFixed([]byte{nonceSourceSystemS2})
		w.PutBytes16(nil)
	default:
		return nil, qerrors.NewProtocolError("scka.Snapshot", qerrors.ErrMissingRequiredField)
	}

	w.PutUint16(st.ProtocolVersion)
	w.PutUint16(st.SuiteID)

	return w.Bytes(), nil
}

// Restore decodes a Suite-2 snapshot produced by Snapshot.
func Restore(data []byte) (*Suite2SessionState, error) {
	r := wire.NewReader(data)

	magic, err := r.Fixed(4)
	if err != nil {
		return nil, err
	}
	if string(magic) != constants.SnapshotMagicSuite2 {
		return nil, qerrors.NewProtocolError("scka.Restore", qerrors.ErrSnapshotCorrupt)
	}
	version, err := r.Fixed(1)
	if err != nil {
		return nil, err
	}
	if version[0] != constants.SnapshotVersion {
		return nil, qerrors.NewProtocolError("scka.Restore", qerrors.ErrSnapshotCorrupt)
	}

	roleByte, err := r.Fixed(1)
	if err != nil {
		return nil, err
	}
	st := &Suite2SessionState{Role: ratchet.Role(roleByte[0])}

	if st.SessionID, err = r.Bytes16(); err != nil {
		return nil, err
	}
	if st.RK, err = r.Bytes16(); err != nil {
		return nil, err
	}
	if st.DHSelf, err = r.Bytes16(); err != nil {
		return nil, err
	}
	if st.DHPeer, err = r.Bytes16(); err != nil {
		return nil, err
	}
	if st.HKs, err = r.Bytes16(); err != nil {
		return nil, err
	}
	if st.HKr, err = r.Bytes16(); err != nil {
		return nil, err
	}

	if st.Send.CKEc, err = r.Bytes16(); err != nil {
		return nil, err
	}
	if st.Send.CKPq, err = r.Bytes16(); err != nil {
		return nil, err
	}
	if st.Send.N, err = r.Uint32(); err != nil {
		return nil, err
	}

	if st.Recv.CKEc, err = r.Bytes16(); err != nil {
		return nil, err
	}
	if st.Recv.CKPq, err = r.Bytes16(); err != nil {
		return nil, err
	}
	if st.Recv.N, err = r.Uint32(); err != nil {
		return nil, err
	}
	if st.Recv.PeerMaxAdvIDSeen, err = r.Uint32(); err != nil {
		return nil, err
	}
	if st.Recv.LocalNextAdvID, err = r.Uint32(); err != nil {
		return nil, err
	}

	st.Recv.Targets = make(map[uint32]targetState)
	known, err := getSortedIDs(r)
	if err != nil {
		return nil, err
	}
	for _, id := range known {
		st.Recv.Targets[id] = targetKnown
	}
	consumed, err := getSortedIDs(r)
	if err != nil {
		return nil, err
	}
	for _, id := range consumed {
		st.Recv.Targets[id] = targetConsumed
	}
	tombstoned, err := getSortedIDs(r)
	if err != nil {
		return nil, err
	}
	for _, id := range tombstoned {
		st.Recv.Targets[id] = targetTombstoned
	}

	mkCount, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	if mkCount > constants.RestoreMaxMkSkipped {
		return nil, qerrors.NewProtocolError("scka.Restore", qerrors.ErrSnapshotCorrupt)
	}
	st.Recv.MkSkipped = ratchet.NewMkSkippedStore()
	for i := uint32(0); i < mkCount; i++ {
		dhPub, err := r.Fixed(32)
		if err != nil {
			return nil, err
		}
		n, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		mk, err := r.Bytes16()
		if err != nil {
			return nil, err
		}
		var key ratchet.MkSkippedKey
		copy(key.DHPub[:], dhPub)
		key.N = n
		if err := st.Recv.MkSkipped.Put(key, mk); err != nil {
			return nil, qerrors.NewProtocolError("scka.Restore", qerrors.ErrSnapshotCorrupt)
		}
	}

	localCount, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	if localCount > constants.RestoreMaxTargetIDSets {
		return nil, qerrors.NewProtocolError("scka.Restore", qerrors.ErrSnapshotCorrupt)
	}
	st.LocalTargets = make(map[uint32]*qcrypto.MLKEMKeyPair, localCount)
	for i := uint32(0); i < localCount; i++ {
		id, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		pub, err := r.Bytes16()
		if err != nil {
			return nil, err
		}
		priv, err := r.Bytes16()
		if err != nil {
			return nil, err
		}
		kp, err := qcrypto.NewMLKEMKeyPairFromParts(pub, priv)
		if err != nil {
			return nil, err
		}
		st.LocalTargets[id] = kp
	}

	nsKind, err := r.Fixed(1)
	if err != nil {
		return nil, err
	}
	nsState, err := r.Bytes16()
	if err != nil {
		return nil, err
	}
	switch nsKind[0] {
	case nonceSourceSystemS2:
		st.NonceSource = qcrypto.SystemNonceSource{}
	case nonceSourceDeterministicS2:
		det := &qcrypto.DeterministicNonceSource{}
		if err := det.RestoreState(nsState); err != nil {
			return nil, err
		}
		st.NonceSource = det
	default:
		return nil, qerrors.NewProtocolError("scka.Restore", qerrors.ErrSnapshotCorrupt)
	}

	if st.ProtocolVersion, err = r.Uint16(); err != nil {
		return nil, err
	}
	if st.SuiteID, err = r.Uint16(); err != nil {
		return nil, err
	}

	if err := r.Done(); err != nil {
		return nil, err
	}
	return st, nil
}

// splitTargets partitions the single id->state map back into the three
// sets the wire format persists, each to be written in ascending order.
func splitTargets(targets map[uint32]targetState) (known, consumed, tombstoned []uint32) {
	for id, state := range targets {
		switch state {
		case targetKnown:
			known = append(known, id)
		case targetConsumed:
			consumed = append(consumed, id)
		case targetTombstoned:
			tombstoned = append(tombstoned, id)
		}
	}
	sort.Slice(known, func(i, j int) bool { return known[i] < known[j] })
	sort.Slice(consumed, func(i, j int) bool { return consumed[i] < consumed[j] })
	sort.Slice(tombstoned, func(i, j int) bool { return tombstoned[i] < tombstoned[j] })
	return known, consumed, tombstoned
}

func putSortedIDs(w *wire.Writer, ids []uint32) {
	w.PutUint32(uint32(len(ids)))
	for _, id := range ids {
		w.PutUint32(id)
	}
}

func getSortedIDs(r *wire.Reader) ([]uint32, error) {
	count, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	if count > constants.RestoreMaxTargetIDSets {
		return nil, qerrors.NewProtocolError("scka.Restore", qerrors.ErrSnapshotCorrupt)
	}
	ids := make([]uint32, count)
	for i := range ids {
		if ids[i], err = r.Uint32(); err != nil {
			return nil, err
		}
	}
	return ids, nil
}
