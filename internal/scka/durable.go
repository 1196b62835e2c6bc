// durable.go implements the per-session durable monotonic record and
// replay digest store described in spec §4.5.8 and §5: the record is
// written with a temp-file-then-rename sequence so a concurrent reader of
// an older generation never observes a partial write, the replay store
// appends each digest and syncs the file, and both are safe to
// read while another writer is mid-update to a *different* session
// (writers are serialized per session by the caller, per spec §5).
package scka

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/qsproto/qsp-core/internal/constants"
	qerrors "github.com/qsproto/qsp-core/internal/errors"
	"github.com/qsproto/qsp-core/internal/qcrypto"
)

// DurableRecord is the rollback-resistance anchor of spec §4.5.8: the
// highest peer advertisement counter and target-retirement state this
// session has ever durably observed, independent of whatever the
// in-memory SessionState currently holds.
type DurableRecord struct {
	Version          uint32
	PeerMaxAdvIDSeen uint32
	LocalNextAdvID   uint32
	Tombstones       []uint32
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return qerrors.NewProtocolError("scka.writeAtomic", err)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return qerrors.ErrDurabilityIOFail
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return qerrors.ErrDurabilityIOFail
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return qerrors.ErrDurabilityIOFail
	}
	if err := f.Close(); err != nil {
		return qerrors.ErrDurabilityIOFail
	}
	if err := os.Rename(tmp, path); err != nil {
		return qerrors.ErrDurabilityIOFail
	}
	return nil
}

// encode serializes the record deterministically: version, two counters,
// then the tombstone set in ascending order (spec §6.3's "deterministic
// serialization" discipline applied to the durable record as well).
func (r *DurableRecord) encode() []byte {
	sorted := append([]uint32{}, r.Tombstones...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	buf := make([]byte, 0, 16+4*len(sorted))
	buf = binary.BigEndian.AppendUint32(buf, r.Version)
	buf = binary.BigEndian.AppendUint32(buf, r.PeerMaxAdvIDSeen)
	buf = binary.BigEndian.AppendUint32(buf, r.LocalNextAdvID)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(sorted)))
	for _, id := range sorted {
		buf = binary.BigEndian.AppendUint32(buf, id)
	}
	return buf
}

func decodeDurableRecord(data []byte) (*DurableRecord, error) {
	if len(data) < 16 {
		return nil, qerrors.ErrShortBuffer
	}
	r := &DurableRecord{
		Version:          binary.BigEndian.Uint32(data[0:4]),
		PeerMaxAdvIDSeen: binary.BigEndian.Uint32(data[4:8]),
		LocalNextAdvID:   binary.BigEndian.Uint32(data[8:12]),
	}
	count := binary.BigEndian.Uint32(data[12:16])
	if count > constants.RestoreMaxTargetIDSets {
		return nil, qerrors.NewProtocolError("scka.decodeDurableRecord", qerrors.ErrBadLength)
	}
	data = data[16:]
	if len(data) != int(count)*4 {
		return nil, qerrors.ErrTrailingBytes
	}
	r.Tombstones = make([]uint32, count)
	for i := range r.Tombstones {
		r.Tombstones[i] = binary.BigEndian.Uint32(data[i*4 : i*4+4])
	}
	return r, nil
}

// LoadDurableRecord reads a durable record from path, returning a fresh
// zero-value record if the file does not yet exist (first run).
func LoadDurableRecord(path string) (*DurableRecord, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &DurableRecord{Version: constants.SnapshotVersion}, nil
	}
	if err != nil {
		return nil, qerrors.ErrDurabilityIOFail
	}
	return decodeDurableRecord(data)
}

// Save persists the record atomically.
func (r *DurableRecord) Save(path string) error {
	return writeAtomic(path, r.encode())
}

// Merge folds an in-memory session's observed state into the durable
// record by element-wise max of the counters and set-union of
// tombstones, per spec §4.5.8.
func (r *DurableRecord) Merge(st *Suite2SessionState) {
	if st.Recv.PeerMaxAdvIDSeen > r.PeerMaxAdvIDSeen {
		r.PeerMaxAdvIDSeen = st.Recv.PeerMaxAdvIDSeen
	}
	if st.Recv.LocalNextAdvID > r.LocalNextAdvID {
		r.LocalNextAdvID = st.Recv.LocalNextAdvID
	}
	seen := make(map[uint32]bool, len(r.Tombstones))
	for _, id := range r.Tombstones {
		seen[id] = true
	}
	for id, state := range st.Recv.Targets {
		if state == targetTombstoned && !seen[id] {
			r.Tombstones = append(r.Tombstones, id)
			seen[id] = true
		}
	}
}

// CheckRollback implements the three rollback conditions of spec §4.5.8:
// a restored session is rejected if it knows less than the durable
// record already attests to.
func CheckRollback(st *Suite2SessionState, record *DurableRecord) error {
	if st.Recv.PeerMaxAdvIDSeen < record.PeerMaxAdvIDSeen {
		return qerrors.NewRejectError(constants.RejectSCKARollbackDetected, nil)
	}
	maxKnownOrTombstoned := uint32(0)
	any := false
	for id, state := range st.Recv.Targets {
		if state == targetKnown || state == targetTombstoned {
			any = true
			if id+1 > maxKnownOrTombstoned {
				maxKnownOrTombstoned = id + 1
			}
		}
	}
	if !any {
		maxKnownOrTombstoned = 0
	}
	if maxKnownOrTombstoned < record.LocalNextAdvID {
		return qerrors.NewRejectError(constants.RejectSCKARollbackDetected, nil)
	}
	have := make(map[uint32]bool, len(st.Recv.Targets))
	for id, state := range st.Recv.Targets {
		if state == targetTombstoned {
			have[id] = true
		}
	}
	for _, id := range record.Tombstones {
		if !have[id] {
			return qerrors.NewRejectError(constants.RejectSCKARollbackDetected, nil)
		}
	}
	return nil
}

// ReplayStore is the append-only digest log of spec §4.5.8: one
// sha3-256(wire) hex digest per line, scoped to a single session (spec
// §9's open question is resolved session-scoped, matching the spec's own
// stated default).
type ReplayStore struct {
	path string
	seen map[string]bool
}

// OpenReplayStore loads an existing digest log, or starts a fresh one.
func OpenReplayStore(path string) (*ReplayStore, error) {
	rs := &ReplayStore{path: path, seen: make(map[string]bool)}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return rs, nil
	}
	if err != nil {
		return nil, qerrors.ErrDurabilityIOFail
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		rs.seen[scanner.Text()] = true
	}
	return rs, nil
}

func digestHex(wireBytes []byte) string {
	return hex.EncodeToString(qcrypto.HashSHA3_256(wireBytes))
}

// CheckAndRecord reports whether wireBytes has already been accepted, and
// if not, appends its digest to the durable log.
func (rs *ReplayStore) CheckAndRecord(wireBytes []byte) (replay bool, err error) {
	digest := digestHex(wireBytes)
	if rs.seen[digest] {
		return true, nil
	}
	f, err := os.OpenFile(rs.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return false, qerrors.ErrDurabilityIOFail
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, digest); err != nil {
		return false, qerrors.ErrDurabilityIOFail
	}
	if err := f.Sync(); err != nil {
		return false, qerrors.ErrDurabilityIOFail
	}
	rs.seen[digest] = true
	return false, nil
}
