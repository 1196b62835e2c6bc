// snapshot.go implements Snapshot/Restore for SessionState (spec §6.3):
// magic "QSSN", version 1, a fixed scalar/array layout followed by the
// skipped-key caches in their canonical sorted order. Restore is total and
// fail-closed: every length prefix is validated, trailing bytes are
// rejected, and mk_skipped is capped at a restore-time maximum well above
// the runtime cap so a corrupt count field fails fast instead of driving an
// enormous allocation.
package ratchet

import (
	"github.com/qsproto/qsp-core/internal/constants"
	"github.com/qsproto/qsp-core/internal/qcrypto"
	"github.com/qsproto/qsp-core/internal/wire"

	qerrors "github.com/qsproto/qsp-core/internal/errors"
)

// Nonce-source kind tags, carried so Restore knows which concrete
// qcrypto.NonceSource to reconstruct before handing it its saved state.
const (
	nonceSourceSystem        byte = 0
	nonceSourceDeterministic byte = 1
)

// Snapshot encodes st in the canonical Suite-1 format.
func Snapshot(st *SessionState) ([]byte, error) {
	if st.DHSelf == nil || st.NonceSource == nil {
		return nil, qerrors.NewProtocolError("Snapshot", qerrors.ErrMissingRequiredField)
	}

	w := wire.NewWriter(1024)
	w.PutFixed([]byte(constants.SnapshotMagicSuite1))
	w.PutFixed([]byte{constants.SnapshotVersion})

	w.PutFixed([]byte{byte(st.Role)})
	w.PutBytes16(st.SessionID)
	w.PutBytes16(st.RK)

	w.PutBytes16(st.DHSelf.PrivateKeyBytes())
	w.PutBytes16(st.DHPeer)

	putOptionalField(w, st.CKs)
	putOptionalField(w, st.CKr)
	putOptionalField(w, st.HKs)
	putOptionalField(w, st.HKr)
	putOptionalField(w, st.NHKs)
	putOptionalField(w, st.NHKr)

	w.PutUint32(st.Ns)
	w.PutUint32(st.Nr)
	w.PutUint32(st.Pn)

	if st.BoundaryPending {
		w.PutFixed([]byte{1})
	} else {
		w.PutFixed([]byte{0})
	}
	putOptionalField(w, st.BoundaryHK)

	mkSorted := st.MkSkipped.SortedKeys()
	w.PutUint32(uint32(len(mkSorted)))
	for _, key := range mkSorted {
		mk, ok := st.MkSkipped.Get(key)
		if !ok {
			return nil, qerrors.NewProtocolError("Snapshot", qerrors.ErrSnapshotCorrupt)
		}
		w.PutFixed(key.DHPub[:])
		w.PutUint32(key.N)
		w.PutBytes16(mk)
	}

	hkSorted := st.HkSkipped.SortedByDHPub()
	w.PutUint32(uint32(len(hkSorted)))
	for _, e := range hkSorted {
		w.PutFixed(e.DHPub[:])
		w.PutBytes16(e.HKOld)
		w.PutBytes16(e.NHKOld)
	}

	if st.PQPeerPresent {
		w.PutFixed([]byte{1})
		w.PutUint32(st.PQPeerID)
		w.PutBytes16(st.PQPeerPub)
	} else {
		w.PutFixed([]byte{0})
	}

	w.PutUint32(uint32(len(st.PQSelf)))
	for _, e := range st.PQSelf {
		w.PutUint32(e.ID)
		w.PutBytes16(e.Pub)
		w.PutBytes16(e.Kp.DecapsulationKeyBytes())
	}

	switch ns := st.NonceSource.(type) {
	case *qcrypto.DeterministicNonceSource:
		w.PutFixed([]byte{nonceSourceDeterministic})
		w.PutBytes16(ns.State())
	case qcrypto.SystemNonceSource:
		w.PutFixed([]byte{nonceSourceSystem})
		w.PutBytes16(nil)
	default:
		return nil, qerrors.NewProtocolError("Snapshot", qerrors.ErrMissingRequiredField)
	}

	w.PutUint16(st.ProtocolVersion)
	w.PutUint16(st.SuiteID)

	return w.Bytes(), nil
}

// Restore decodes a Suite-1 snapshot produced by Snapshot, rejecting any
// input that fails a length check, carries trailing bytes, or reports a
// skipped-key count beyond the restore-time sanity bound.
func Restore(data []byte) (*SessionState, error) {
	r := wire.NewReader(data)

	magic, err := r.Fixed(4)
	if err != nil {
		return nil, err
	}
	if string(magic) != constants.SnapshotMagicSuite1 {
		return nil, qerrors.NewProtocolError("Restore", qerrors.ErrSnapshotCorrupt)
	}
	version, err := r.Fixed(1)
	if err != nil {
		return nil, err
	}
	if version[0] != constants.SnapshotVersion {
		return nil, qerrors.NewProtocolError("Restore", qerrors.ErrSnapshotCorrupt)
	}

	roleByte, err := r.Fixed(1)
	if err != nil {
		return nil, err
	}
	st := &SessionState{Role: Role(roleByte[0])}

	if st.SessionID, err = r.Bytes16(); err != nil {
		return nil, err
	}
	if st.RK, err = r.Bytes16(); err != nil {
		return nil, err
	}

	dhSelfPriv, err := r.Bytes16()
	if err != nil {
		return nil, err
	}
	if st.DHSelf, err = qcrypto.NewX25519KeyPairFromBytes(dhSelfPriv); err != nil {
		return nil, err
	}
	if st.DHPeer, err = r.Bytes16(); err != nil {
		return nil, err
	}

	if st.CKs, err = getOptionalField(r); err != nil {
		return nil, err
	}
	if st.CKr, err = getOptionalField(r); err != nil {
		return nil, err
	}
	if st.HKs, err = getOptionalField(r); err != nil {
		return nil, err
	}
	if st.HKr, err = getOptionalField(r); err != nil {
		return nil, err
	}
	if st.NHKs, err = getOptionalField(r); err != nil {
		return nil, err
	}
	if st.NHKr, err = getOptionalField(r); err != nil {
		return nil, err
	}

	if st.Ns, err = r.Uint32(); err != nil {
		return nil, err
	}
	if st.Nr, err = r.Uint32(); err != nil {
		return nil, err
	}
	if st.Pn, err = r.Uint32(); err != nil {
		return nil, err
	}

	boundaryByte, err := r.Fixed(1)
	if err != nil {
		return nil, err
	}
	st.BoundaryPending = boundaryByte[0] != 0
	if st.BoundaryHK, err = getOptionalField(r); err != nil {
		return nil, err
	}

	mkCount, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	if mkCount > constants.RestoreMaxMkSkipped {
		return nil, qerrors.NewProtocolError("Restore", qerrors.ErrSnapshotCorrupt)
	}
	st.MkSkipped = NewMkSkippedStore()
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
		var key MkSkippedKey
		copy(key.DHPub[:], dhPub)
		key.N = n
		if err := st.MkSkipped.Put(key, mk); err != nil {
			return nil, qerrors.NewProtocolError("Restore", qerrors.ErrSnapshotCorrupt)
		}
	}

	hkCount, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	if hkCount > constants.MaxHkSkipped {
		return nil, qerrors.NewProtocolError("Restore", qerrors.ErrSnapshotCorrupt)
	}
	st.HkSkipped = NewHkSkippedStore()
	for i := uint32(0); i < hkCount; i++ {
		dhPub, err := r.Fixed(32)
		if err != nil {
			return nil, err
		}
		hkOld, err := r.Bytes16()
		if err != nil {
			return nil, err
		}
		nhkOld, err := r.Bytes16()
		if err != nil {
			return nil, err
		}
		var dhPubArr [32]byte
		copy(dhPubArr[:], dhPub)
		st.HkSkipped.Put(dhPubArr, hkOld, nhkOld)
	}

	pqPeerByte, err := r.Fixed(1)
	if err != nil {
		return nil, err
	}
	if pqPeerByte[0] != 0 {
		st.PQPeerPresent = true
		if st.PQPeerID, err = r.Uint32(); err != nil {
			return nil, err
		}
		if st.PQPeerPub, err = r.Bytes16(); err != nil {
			return nil, err
		}
	}

	pqSelfCount, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	if pqSelfCount > constants.RestoreMaxTargetIDSets {
		return nil, qerrors.NewProtocolError("Restore", qerrors.ErrSnapshotCorrupt)
	}
	st.PQSelf = make([]PQSelfEntry, 0, pqSelfCount)
	for i := uint32(0); i < pqSelfCount; i++ {
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
		st.PQSelf = append(st.PQSelf, PQSelfEntry{ID: id, Pub: pub, Kp: kp})
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
	case nonceSourceSystem:
		st.NonceSource = qcrypto.SystemNonceSource{}
	case nonceSourceDeterministic:
		det := &qcrypto.DeterministicNonceSource{}
		if err := det.RestoreState(nsState); err != nil {
			return nil, err
		}
		st.NonceSource = det
	default:
		return nil, qerrors.NewProtocolError("Restore", qerrors.ErrSnapshotCorrupt)
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

// putOptionalField writes a presence byte followed by a length-prefixed
// field, used for the handful of SessionState fields that may be nil
// before a session's first chain/header-key derivation completes.
func putOptionalField(w *wire.Writer, b []byte) {
	if b == nil {
		w.PutFixed([]byte{0})
		w.PutBytes16(nil)
		return
	}
	w.PutFixed([]byte{1})
	w.PutBytes16(b)
}

func getOptionalField(r *wire.Reader) ([]byte, error) {
	presence, err := r.Fixed(1)
	if err != nil {
		return nil, err
	}
	b, err := r.Bytes16()
	if err != nil {
		return nil, err
	}
	if presence[0] == 0 {
		return nil, nil
	}
	return b, nil
}
