// Package integration provides end-to-end integration tests for the
// hybrid handshake, double-ratchet, and Suite-2 SCKA core.
//
// These tests verify the complete flow from handshake through encrypted
// message exchange, out-of-order delivery, and snapshot/restore, without
// any transport layer: everything here runs entirely in process.
package integration

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/qsproto/qsp-core/internal/constants"
	"github.com/qsproto/qsp-core/internal/qcrypto"
	"github.com/qsproto/qsp-core/internal/ratchet"
	"github.com/qsproto/qsp-core/internal/scka"
	"github.com/qsproto/qsp-core/internal/wire"
	"github.com/qsproto/qsp-core/pkg/session"
)

func newResponderBundle(t *testing.T) (*session.IdentityKeyPair, *session.PrekeyBundle, *session.ResponderPrekeys) {
	t.Helper()

	identity, err := session.GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	spkDH, err := qcrypto.GenerateX25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateX25519KeyPair: %v", err)
	}
	spkPQ, err := qcrypto.GenerateMLKEMKeyPair()
	if err != nil {
		t.Fatalf("GenerateMLKEMKeyPair: %v", err)
	}
	pqRcv, err := qcrypto.GenerateMLKEMKeyPair()
	if err != nil {
		t.Fatalf("GenerateMLKEMKeyPair (pq_rcv): %v", err)
	}

	bundle := &wire.PrekeyBundle{
		UserID:     []byte("bob@example.com"),
		DeviceID:   1,
		ValidFrom:  1000,
		ValidTo:    9000,
		IKSigECPub: identity.EC.PublicKey,
		IKSigPQPub: qcrypto.PublicKeyBytes(identity.PQ.PublicKey),
		SPKDHPub:   spkDH.PublicKeyBytes(),
		SPKPQPub:   spkPQ.PublicKeyBytes(),
		PQRcvID:    42,
		PQRcvPub:   pqRcv.PublicKeyBytes(),
	}
	signed := qcrypto.H([]byte(constants.DomBundle), bundle.EncodeWithoutSigs())
	bundle.SigEC = qcrypto.Ed25519Sign(identity.EC.PrivateKey, signed)
	bundle.SigPQ = qcrypto.MLDSASign(identity.PQ.PrivateKey, signed)

	return identity, bundle, &session.ResponderPrekeys{SPKDH: spkDH, SPKPQ: spkPQ}
}

func establishedSessions(t *testing.T) (*session.Session, *session.Session) {
	t.Helper()

	respIdentity, bundle, prekeys := newResponderBundle(t)
	initIdentity, err := session.GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity (initiator): %v", err)
	}

	sessionID := bytes.Repeat([]byte{0xCD}, 16)
	hs1, pending, err := session.HandshakeInit(initIdentity, []byte("alice@example.com"), 7, bundle, nil, sessionID, nil)
	if err != nil {
		t.Fatalf("HandshakeInit: %v", err)
	}
	hs2, respSess, err := session.HandshakeRespond(respIdentity, prekeys, hs1, nil)
	if err != nil {
		t.Fatalf("HandshakeRespond: %v", err)
	}
	initSess, err := session.HandshakeFinalize(pending, hs2)
	if err != nil {
		t.Fatalf("HandshakeFinalize: %v", err)
	}
	return initSess, respSess
}

// TestFullHandshakeAndDataTransfer verifies a complete handshake followed
// by a single encrypted round trip.
func TestFullHandshakeAndDataTransfer(t *testing.T) {
	alice, bob := establishedSessions(t)

	plaintext := []byte("the eagle has landed")
	wireMsg, err := alice.Encrypt(plaintext, ratchet.EncryptOptions{})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, err := bob.Decrypt(wireMsg)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("got %q, want %q", got, plaintext)
	}
}

// TestBidirectionalDataTransfer exercises both directions interleaved,
// confirming each side's send/receive chains ratchet independently.
func TestBidirectionalDataTransfer(t *testing.T) {
	alice, bob := establishedSessions(t)

	exchanges := []struct {
		from, to *session.Session
		msg      string
	}{
		{alice, bob, "hello from alice"},
		{bob, alice, "hello back from bob"},
		{alice, bob, "alice again"},
		{bob, alice, "bob again"},
		{alice, bob, "one more from alice"},
	}

	for i, ex := range exchanges {
		wireMsg, err := ex.from.Encrypt([]byte(ex.msg), ratchet.EncryptOptions{})
		if err != nil {
			t.Fatalf("exchange %d Encrypt: %v", i, err)
		}
		pt, err := ex.to.Decrypt(wireMsg)
		if err != nil {
			t.Fatalf("exchange %d Decrypt: %v", i, err)
		}
		if string(pt) != ex.msg {
			t.Fatalf("exchange %d got %q, want %q", i, pt, ex.msg)
		}
	}
}

// TestLargeDataTransfer verifies large payloads (multi-megabyte) survive a
// round trip intact.
func TestLargeDataTransfer(t *testing.T) {
	alice, bob := establishedSessions(t)

	sizes := []int{64 * 1024, 1024 * 1024, 4 * 1024 * 1024}
	for _, size := range sizes {
		t.Run(fmt.Sprintf("%dB", size), func(t *testing.T) {
			payload := bytes.Repeat([]byte{0x5A}, size)
			wireMsg, err := alice.Encrypt(payload, ratchet.EncryptOptions{})
			if err != nil {
				t.Fatalf("Encrypt: %v", err)
			}
			got, err := bob.Decrypt(wireMsg)
			if err != nil {
				t.Fatalf("Decrypt: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Fatalf("payload mismatch at size %d", size)
			}
		})
	}
}

// TestOutOfOrderDelivery sends several messages on one chain but delivers
// them to the peer out of order, requiring the skipped-message-key cache
// (spec §4.4.4) to recover the earlier keys.
func TestOutOfOrderDelivery(t *testing.T) {
	alice, bob := establishedSessions(t)

	var wireMsgs [][]byte
	for i := 0; i < 5; i++ {
		msg, err := alice.Encrypt([]byte(fmt.Sprintf("message %d", i)), ratchet.EncryptOptions{})
		if err != nil {
			t.Fatalf("Encrypt %d: %v", i, err)
		}
		wireMsgs = append(wireMsgs, msg)
	}

	order := []int{2, 0, 4, 1, 3}
	for _, idx := range order {
		pt, err := bob.Decrypt(wireMsgs[idx])
		if err != nil {
			t.Fatalf("Decrypt out-of-order message %d: %v", idx, err)
		}
		want := fmt.Sprintf("message %d", idx)
		if string(pt) != want {
			t.Fatalf("message %d: got %q, want %q", idx, pt, want)
		}
	}
}

// TestConcurrentTransfers runs several independent handshake+exchange
// flows concurrently, confirming session state is not shared across
// sessions in a way that would corrupt one under concurrent use of another.
func TestConcurrentTransfers(t *testing.T) {
	const workers = 8

	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			bobIdentity, bundle, prekeys := newResponder(i)
			aliceIdentity, err := session.GenerateIdentity()
			if err != nil {
				errs <- err
				return
			}
			sessionID := bytes.Repeat([]byte{byte(i)}, 16)

			hs1, pending, err := session.HandshakeInit(aliceIdentity, []byte("alice"), uint32(i), bundle, nil, sessionID, nil)
			if err != nil {
				errs <- err
				return
			}
			hs2, bobSess, err := session.HandshakeRespond(bobIdentity, prekeys, hs1, nil)
			if err != nil {
				errs <- err
				return
			}
			aliceSess, err := session.HandshakeFinalize(pending, hs2)
			if err != nil {
				errs <- err
				return
			}

			payload := []byte(fmt.Sprintf("payload from worker %d", i))
			wireMsg, err := aliceSess.Encrypt(payload, ratchet.EncryptOptions{})
			if err != nil {
				errs <- err
				return
			}
			pt, err := bobSess.Decrypt(wireMsg)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(pt, payload) {
				errs <- fmt.Errorf("worker %d: payload mismatch", i)
				return
			}
			errs <- nil
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
}

func newResponder(salt int) (*session.IdentityKeyPair, *session.PrekeyBundle, *session.ResponderPrekeys) {
	identity, err := session.GenerateIdentity()
	if err != nil {
		panic(err)
	}
	spkDH, err := qcrypto.GenerateX25519KeyPair()
	if err != nil {
		panic(err)
	}
	spkPQ, err := qcrypto.GenerateMLKEMKeyPair()
	if err != nil {
		panic(err)
	}
	pqRcv, err := qcrypto.GenerateMLKEMKeyPair()
	if err != nil {
		panic(err)
	}
	bundle := &wire.PrekeyBundle{
		UserID:     []byte(fmt.Sprintf("bob-%d@example.com", salt)),
		DeviceID:   uint32(salt),
		ValidFrom:  0,
		ValidTo:    ^uint32(0),
		IKSigECPub: identity.EC.PublicKey,
		IKSigPQPub: qcrypto.PublicKeyBytes(identity.PQ.PublicKey),
		SPKDHPub:   spkDH.PublicKeyBytes(),
		SPKPQPub:   spkPQ.PublicKeyBytes(),
		PQRcvID:    uint32(salt + 1),
		PQRcvPub:   pqRcv.PublicKeyBytes(),
	}
	signed := qcrypto.H([]byte(constants.DomBundle), bundle.EncodeWithoutSigs())
	bundle.SigEC = qcrypto.Ed25519Sign(identity.EC.PrivateKey, signed)
	bundle.SigPQ = qcrypto.MLDSASign(identity.PQ.PrivateKey, signed)
	return identity, bundle, &session.ResponderPrekeys{SPKDH: spkDH, SPKPQ: spkPQ}
}

// TestPQMixedExchange verifies that a message sent with PQ advertisement
// and a reply sent with PQ mixing both round-trip.
func TestPQMixedExchange(t *testing.T) {
	alice, bob := establishedSessions(t)

	wireMsg, err := alice.Encrypt([]byte("pq mixed"), ratchet.EncryptOptions{AdvertisePQ: true})
	if err != nil {
		t.Fatalf("Encrypt (AdvertisePQ): %v", err)
	}
	pt, err := bob.Decrypt(wireMsg)
	if err != nil {
		t.Fatalf("Decrypt (AdvertisePQ): %v", err)
	}
	if string(pt) != "pq mixed" {
		t.Fatalf("got %q", pt)
	}

	reply, err := bob.Encrypt([]byte("mixing in"), ratchet.EncryptOptions{MixPQ: true})
	if err != nil {
		t.Fatalf("Encrypt (MixPQ): %v", err)
	}
	pt2, err := alice.Decrypt(reply)
	if err != nil {
		t.Fatalf("Decrypt (MixPQ): %v", err)
	}
	if string(pt2) != "mixing in" {
		t.Fatalf("got %q", pt2)
	}
}

// TestSnapshotRestoreAcrossExchange verifies that snapshotting mid-exchange
// and restoring into a fresh process preserves the ability to both send
// and receive further messages.
func TestSnapshotRestoreAcrossExchange(t *testing.T) {
	alice, bob := establishedSessions(t)

	for i := 0; i < 3; i++ {
		msg, err := alice.Encrypt([]byte(fmt.Sprintf("pre-snapshot %d", i)), ratchet.EncryptOptions{})
		if err != nil {
			t.Fatalf("Encrypt %d: %v", i, err)
		}
		if _, err := bob.Decrypt(msg); err != nil {
			t.Fatalf("Decrypt %d: %v", i, err)
		}
	}

	aliceSnap, err := alice.Snapshot()
	if err != nil {
		t.Fatalf("alice.Snapshot: %v", err)
	}
	bobSnap, err := bob.Snapshot()
	if err != nil {
		t.Fatalf("bob.Snapshot: %v", err)
	}

	aliceRestored, err := session.RestoreSession(aliceSnap)
	if err != nil {
		t.Fatalf("RestoreSession (alice): %v", err)
	}
	bobRestored, err := session.RestoreSession(bobSnap)
	if err != nil {
		t.Fatalf("RestoreSession (bob): %v", err)
	}

	wireMsg, err := aliceRestored.Encrypt([]byte("post-restore"), ratchet.EncryptOptions{})
	if err != nil {
		t.Fatalf("Encrypt (post-restore): %v", err)
	}
	pt, err := bobRestored.Decrypt(wireMsg)
	if err != nil {
		t.Fatalf("Decrypt (post-restore): %v", err)
	}
	if string(pt) != "post-restore" {
		t.Fatalf("got %q", pt)
	}
}

// TestSuite2BoundaryReseedExchange upgrades an established session to
// Suite-2 and exercises a full boundary-reseed cycle end to end.
func TestSuite2BoundaryReseedExchange(t *testing.T) {
	alice, bob := establishedSessions(t)

	ckEc := bytes.Repeat([]byte{0x11}, constants.ChainKeySize)
	ckPq := bytes.Repeat([]byte{0x22}, constants.ChainKeySize)

	aliceS2, err := alice.UpgradeSuite2(ckEc, ckPq, ckEc, ckPq)
	if err != nil {
		t.Fatalf("UpgradeSuite2 (alice): %v", err)
	}
	bobS2, err := bob.UpgradeSuite2(ckEc, ckPq, ckEc, ckPq)
	if err != nil {
		t.Fatalf("UpgradeSuite2 (bob): %v", err)
	}

	plain, err := aliceS2.Encrypt([]byte("suite-2 before reseed"), scka.EncryptOptions{})
	if err != nil {
		t.Fatalf("Encrypt (pre-reseed): %v", err)
	}
	if pt, err := bobS2.Decrypt(plain, 0); err != nil || string(pt) != "suite-2 before reseed" {
		t.Fatalf("Decrypt (pre-reseed): pt=%q err=%v", pt, err)
	}

	targetID, targetKP, err := bobS2.MintTarget()
	if err != nil {
		t.Fatalf("MintTarget: %v", err)
	}
	aliceS2.RegisterKnownTarget(targetID)

	boundaryMsg, err := bobS2.Encrypt([]byte("reseeding now"), scka.EncryptOptions{
		Boundary:  true,
		TargetID:  targetID,
		TargetPub: targetKP.PublicKeyBytes(),
	})
	if err != nil {
		t.Fatalf("Encrypt (boundary): %v", err)
	}
	pt, err := aliceS2.Decrypt(boundaryMsg, 1)
	if err != nil {
		t.Fatalf("Decrypt (boundary): %v", err)
	}
	if string(pt) != "reseeding now" {
		t.Fatalf("got %q", pt)
	}

	after, err := aliceS2.Encrypt([]byte("after reseed"), scka.EncryptOptions{})
	if err != nil {
		t.Fatalf("Encrypt (post-reseed): %v", err)
	}
	if pt, err := bobS2.Decrypt(after, 1); err != nil || string(pt) != "after reseed" {
		t.Fatalf("Decrypt (post-reseed): pt=%q err=%v", pt, err)
	}
}

// TestDecryptRejectsTamperedMessage confirms a bit-flipped wire message
// fails authentication rather than decrypting to garbage.
func TestDecryptRejectsTamperedMessage(t *testing.T) {
	alice, bob := establishedSessions(t)

	wireMsg, err := alice.Encrypt([]byte("do not tamper"), ratchet.EncryptOptions{})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	tampered := append([]byte(nil), wireMsg...)
	tampered[len(tampered)-1] ^= 0xFF

	if _, err := bob.Decrypt(tampered); err == nil {
		t.Fatal("expected Decrypt to reject tampered message, got nil error")
	}
}
