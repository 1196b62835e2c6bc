package scka

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/qsproto/qsp-core/internal/qcrypto"
)

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	a, b := testPair(t)

	targetKp, err := qcrypto.GenerateMLKEMKeyPair()
	if err != nil {
		t.Fatalf("GenerateMLKEMKeyPair: %v", err)
	}
	const targetID = uint32(4)
	b.LocalTargets[targetID] = targetKp
	b.RegisterKnownTarget(targetID)

	// One plain message, then a boundary reseed, so the snapshot carries a
	// non-zero receive counter and a consumed target.
	plain, err := Encrypt(a, []byte("hello"), EncryptOptions{})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := Decrypt(b, plain, 0); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}

	boundary, err := Encrypt(a, []byte("reseed"), EncryptOptions{
		Boundary:  true,
		TargetID:  targetID,
		TargetPub: targetKp.PublicKeyBytes(),
	})
	if err != nil {
		t.Fatalf("Encrypt (boundary): %v", err)
	}
	if _, err := Decrypt(b, boundary, 1); err != nil {
		t.Fatalf("Decrypt (boundary): %v", err)
	}

	snap, err := Snapshot(b)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	restored, err := Restore(snap)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if !bytes.Equal(restored.SessionID, b.SessionID) {
		t.Fatal("session id mismatch after restore")
	}
	if !bytes.Equal(restored.RK, b.RK) {
		t.Fatal("root key mismatch after restore")
	}
	if restored.Recv.N != b.Recv.N || restored.Send.N != b.Send.N {
		t.Fatalf("counters mismatch: got (send=%d,recv=%d), want (send=%d,recv=%d)",
			restored.Send.N, restored.Recv.N, b.Send.N, b.Recv.N)
	}
	if restored.Recv.PeerMaxAdvIDSeen != b.Recv.PeerMaxAdvIDSeen {
		t.Fatalf("peer_max_adv_id_seen mismatch: got %d, want %d", restored.Recv.PeerMaxAdvIDSeen, b.Recv.PeerMaxAdvIDSeen)
	}
	if restored.Recv.Targets[targetID] != targetConsumed {
		t.Fatal("target state not preserved across restore")
	}
	if _, ok := restored.LocalTargets[targetID]; !ok {
		t.Fatal("local target keypair not preserved across restore")
	}

	// The restored session must still be able to carry the conversation
	// forward exactly like the original would have.
	next, err := Encrypt(a, []byte("after restore"), EncryptOptions{})
	if err != nil {
		t.Fatalf("Encrypt (post-restore): %v", err)
	}
	pt, err := Decrypt(restored, next, 1)
	if err != nil {
		t.Fatalf("Decrypt (post-restore): %v", err)
	}
	if string(pt) != "after restore" {
		t.Fatalf("got %q", pt)
	}
}

func TestRestoreRejectsBadMagic(t *testing.T) {
	a, _ := testPair(t)
	snap, err := Snapshot(a)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	corrupt := append([]byte{}, snap...)
	corrupt[0] ^= 0xFF
	if _, err := Restore(corrupt); err == nil {
		t.Fatal("expected Restore to reject a bad magic")
	}
}

func TestRestoreRejectsTrailingBytes(t *testing.T) {
	a, _ := testPair(t)
	snap, err := Snapshot(a)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	corrupt := append(append([]byte{}, snap...), 0x00)
	if _, err := Restore(corrupt); err == nil {
		t.Fatal("expected Restore to reject trailing bytes")
	}
}

// TestSnapshotRestoreRollback exercises scenario E5: snapshot a session
// immediately after accepting a boundary at peer_adv_id=1, then let the
// live session accept a second boundary at peer_adv_id=2 (merging that
// into the durable record). Restoring from the older snapshot must be
// rejected by CheckRollback once it's checked against the now-advanced
// durable record.
func TestSnapshotRestoreRollback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scka.durable")

	a, b := testPair(t)

	target1Kp, err := qcrypto.GenerateMLKEMKeyPair()
	if err != nil {
		t.Fatalf("GenerateMLKEMKeyPair: %v", err)
	}
	const target1 = uint32(7)
	b.LocalTargets[target1] = target1Kp
	b.RegisterKnownTarget(target1)

	boundary1, err := Encrypt(a, []byte("first boundary"), EncryptOptions{
		Boundary:  true,
		TargetID:  target1,
		TargetPub: target1Kp.PublicKeyBytes(),
	})
	if err != nil {
		t.Fatalf("Encrypt (boundary 1): %v", err)
	}
	if _, err := Decrypt(b, boundary1, 1); err != nil {
		t.Fatalf("Decrypt (boundary 1): %v", err)
	}

	record, err := LoadDurableRecord(path)
	if err != nil {
		t.Fatalf("LoadDurableRecord: %v", err)
	}
	record.Merge(b)
	if err := record.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	snapS, err := Snapshot(b)
	if err != nil {
		t.Fatalf("Snapshot(S): %v", err)
	}

	target2Kp, err := qcrypto.GenerateMLKEMKeyPair()
	if err != nil {
		t.Fatalf("GenerateMLKEMKeyPair: %v", err)
	}
	const target2 = uint32(8)
	b.LocalTargets[target2] = target2Kp
	b.RegisterKnownTarget(target2)

	boundary2, err := Encrypt(a, []byte("second boundary"), EncryptOptions{
		Boundary:  true,
		TargetID:  target2,
		TargetPub: target2Kp.PublicKeyBytes(),
	})
	if err != nil {
		t.Fatalf("Encrypt (boundary 2): %v", err)
	}
	if _, err := Decrypt(b, boundary2, 2); err != nil {
		t.Fatalf("Decrypt (boundary 2): %v", err)
	}

	record.Merge(b)
	if err := record.Save(path); err != nil {
		t.Fatalf("Save (2): %v", err)
	}

	reloaded, err := LoadDurableRecord(path)
	if err != nil {
		t.Fatalf("LoadDurableRecord (reload): %v", err)
	}

	restoredS, err := Restore(snapS)
	if err != nil {
		t.Fatalf("Restore(S): %v", err)
	}
	if err := CheckRollback(restoredS, reloaded); err == nil {
		t.Fatal("expected CheckRollback to detect a restore from a stale snapshot")
	}
}
