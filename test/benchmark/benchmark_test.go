// Package benchmark provides performance benchmarks for the hybrid
// handshake, double-ratchet, and Suite-2 SCKA core.
//
// Run benchmarks with:
//
//	go test -bench=. -benchmem ./test/benchmark/
//
// For profiling:
//
//	go test -bench=. -cpuprofile=cpu.prof -memprofile=mem.prof ./test/benchmark/
package benchmark

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/qsproto/qsp-core/internal/constants"
	"github.com/qsproto/qsp-core/internal/qcrypto"
	"github.com/qsproto/qsp-core/internal/ratchet"
	"github.com/qsproto/qsp-core/internal/scka"
	"github.com/qsproto/qsp-core/internal/wire"
	"github.com/qsproto/qsp-core/pkg/session"
)

// --- Cryptographic Primitive Benchmarks ---

func BenchmarkSecureRandom32(b *testing.B) {
	buf := make([]byte, 32)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		qcrypto.SecureRandom(buf)
	}
}

func BenchmarkSecureRandom64(b *testing.B) {
	buf := make([]byte, 64)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		qcrypto.SecureRandom(buf)
	}
}

func BenchmarkX25519KeyGen(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := qcrypto.GenerateX25519KeyPair(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkX25519SharedSecret(b *testing.B) {
	alice, err := qcrypto.GenerateX25519KeyPair()
	if err != nil {
		b.Fatal(err)
	}
	bob, err := qcrypto.GenerateX25519KeyPair()
	if err != nil {
		b.Fatal(err)
	}
	bobPub, err := qcrypto.ParseX25519PublicKey(bob.PublicKeyBytes())
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := qcrypto.X25519(alice.PrivateKey, bobPub); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMLKEMKeyGen(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := qcrypto.GenerateMLKEMKeyPair(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMLKEMEncapsulate(b *testing.B) {
	kp, err := qcrypto.GenerateMLKEMKeyPair()
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := qcrypto.MLKEMEncapsulate(kp.EncapsulationKey); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMLKEMDecapsulate(b *testing.B) {
	kp, err := qcrypto.GenerateMLKEMKeyPair()
	if err != nil {
		b.Fatal(err)
	}
	ct, _, err := qcrypto.MLKEMEncapsulate(kp.EncapsulationKey)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := qcrypto.MLKEMDecapsulate(kp.DecapsulationKey, ct); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEd25519Sign(b *testing.B) {
	kp, err := qcrypto.GenerateEd25519KeyPair()
	if err != nil {
		b.Fatal(err)
	}
	msg := make([]byte, 64)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		qcrypto.Ed25519Sign(kp.PrivateKey, msg)
	}
}

func BenchmarkMLDSASign(b *testing.B) {
	kp, err := qcrypto.GenerateMLDSAKeyPair()
	if err != nil {
		b.Fatal(err)
	}
	msg := make([]byte, 64)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		qcrypto.MLDSASign(kp.PrivateKey, msg)
	}
}

func BenchmarkMLDSAVerify(b *testing.B) {
	kp, err := qcrypto.GenerateMLDSAKeyPair()
	if err != nil {
		b.Fatal(err)
	}
	msg := make([]byte, 64)
	sig := qcrypto.MLDSASign(kp.PrivateKey, msg)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !qcrypto.MLDSAVerify(kp.PublicKey, msg, sig) {
			b.Fatal("verify failed")
		}
	}
}

func BenchmarkKDF(b *testing.B) {
	key := make([]byte, 32)
	rand.Read(key)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := qcrypto.K(key, "bench-label", nil, 32); err != nil {
			b.Fatal(err)
		}
	}
}

// --- AEAD benchmarks across payload sizes and suites ---

func benchmarkSeal(b *testing.B, suite constants.AEADSuite, size int) {
	key := make([]byte, constants.ChainKeySize)
	rand.Read(key)
	aead, err := qcrypto.NewAEAD(suite, key)
	if err != nil {
		b.Fatal(err)
	}
	nonce := make([]byte, 12)
	plaintext := make([]byte, size)
	rand.Read(plaintext)
	b.SetBytes(int64(size))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := aead.Seal(nonce, plaintext, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkOpen(b *testing.B, suite constants.AEADSuite, size int) {
	key := make([]byte, constants.ChainKeySize)
	rand.Read(key)
	aead, err := qcrypto.NewAEAD(suite, key)
	if err != nil {
		b.Fatal(err)
	}
	nonce := make([]byte, 12)
	plaintext := make([]byte, size)
	rand.Read(plaintext)
	ct, err := aead.Seal(nonce, plaintext, nil)
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(size))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := aead.Open(nonce, ct, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAES256GCMSeal64(b *testing.B)    { benchmarkSeal(b, constants.AEADSuiteAES256GCM, 64) }
func BenchmarkAES256GCMSeal1KB(b *testing.B)   { benchmarkSeal(b, constants.AEADSuiteAES256GCM, 1024) }
func BenchmarkAES256GCMSeal8KB(b *testing.B)   { benchmarkSeal(b, constants.AEADSuiteAES256GCM, 8*1024) }
func BenchmarkAES256GCMSeal64KB(b *testing.B)  { benchmarkSeal(b, constants.AEADSuiteAES256GCM, 64*1024) }
func BenchmarkAES256GCMOpen64(b *testing.B)    { benchmarkOpen(b, constants.AEADSuiteAES256GCM, 64) }
func BenchmarkAES256GCMOpen1KB(b *testing.B)   { benchmarkOpen(b, constants.AEADSuiteAES256GCM, 1024) }
func BenchmarkAES256GCMOpen8KB(b *testing.B)   { benchmarkOpen(b, constants.AEADSuiteAES256GCM, 8*1024) }
func BenchmarkAES256GCMOpen64KB(b *testing.B)  { benchmarkOpen(b, constants.AEADSuiteAES256GCM, 64*1024) }

func BenchmarkChaCha20Poly1305Seal64(b *testing.B) {
	benchmarkSeal(b, constants.AEADSuiteChaCha20Poly1305, 64)
}
func BenchmarkChaCha20Poly1305Seal1KB(b *testing.B) {
	benchmarkSeal(b, constants.AEADSuiteChaCha20Poly1305, 1024)
}
func BenchmarkChaCha20Poly1305Seal8KB(b *testing.B) {
	benchmarkSeal(b, constants.AEADSuiteChaCha20Poly1305, 8*1024)
}
func BenchmarkChaCha20Poly1305Open64(b *testing.B) {
	benchmarkOpen(b, constants.AEADSuiteChaCha20Poly1305, 64)
}
func BenchmarkChaCha20Poly1305Open1KB(b *testing.B) {
	benchmarkOpen(b, constants.AEADSuiteChaCha20Poly1305, 1024)
}

// --- Handshake and session benchmarks ---

func newResponder(b *testing.B) (*session.IdentityKeyPair, *session.PrekeyBundle, *session.ResponderPrekeys) {
	b.Helper()
	identity, err := session.GenerateIdentity()
	if err != nil {
		b.Fatal(err)
	}
	spkDH, err := qcrypto.GenerateX25519KeyPair()
	if err != nil {
		b.Fatal(err)
	}
	spkPQ, err := qcrypto.GenerateMLKEMKeyPair()
	if err != nil {
		b.Fatal(err)
	}
	pqRcv, err := qcrypto.GenerateMLKEMKeyPair()
	if err != nil {
		b.Fatal(err)
	}
	bundle := &wire.PrekeyBundle{
		UserID:     []byte("bob@example.com"),
		DeviceID:   1,
		ValidFrom:  0,
		ValidTo:    ^uint32(0),
		IKSigECPub: identity.EC.PublicKey,
		IKSigPQPub: qcrypto.PublicKeyBytes(identity.PQ.PublicKey),
		SPKDHPub:   spkDH.PublicKeyBytes(),
		SPKPQPub:   spkPQ.PublicKeyBytes(),
		PQRcvID:    1,
		PQRcvPub:   pqRcv.PublicKeyBytes(),
	}
	signed := qcrypto.H([]byte(constants.DomBundle), bundle.EncodeWithoutSigs())
	bundle.SigEC = qcrypto.Ed25519Sign(identity.EC.PrivateKey, signed)
	bundle.SigPQ = qcrypto.MLDSASign(identity.PQ.PrivateKey, signed)
	return identity, bundle, &session.ResponderPrekeys{SPKDH: spkDH, SPKPQ: spkPQ}
}

func establishSessions(b *testing.B) (*session.Session, *session.Session) {
	b.Helper()
	bobIdentity, bundle, prekeys := newResponder(b)
	alice, err := session.GenerateIdentity()
	if err != nil {
		b.Fatal(err)
	}
	sessionID := make([]byte, 16)
	rand.Read(sessionID)

	hs1, pending, err := session.HandshakeInit(alice, []byte("alice@example.com"), 7, bundle, nil, sessionID, nil)
	if err != nil {
		b.Fatal(err)
	}
	hs2, bobSession, err := session.HandshakeRespond(bobIdentity, prekeys, hs1, nil)
	if err != nil {
		b.Fatal(err)
	}
	aliceSession, err := session.HandshakeFinalize(pending, hs2)
	if err != nil {
		b.Fatal(err)
	}
	return aliceSession, bobSession
}

func BenchmarkHandshake(b *testing.B) {
	for i := 0; i < b.N; i++ {
		establishSessions(b)
	}
}

func BenchmarkHandshakeParallel(b *testing.B) {
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			establishSessions(b)
		}
	})
}

func benchmarkSessionEncrypt(b *testing.B, size int) {
	aliceSession, _ := establishSessions(b)
	plaintext := make([]byte, size)
	rand.Read(plaintext)
	b.SetBytes(int64(size))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := aliceSession.Encrypt(plaintext, ratchet.EncryptOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSessionEncrypt64(b *testing.B)  { benchmarkSessionEncrypt(b, 64) }
func BenchmarkSessionEncrypt1KB(b *testing.B) { benchmarkSessionEncrypt(b, 1024) }
func BenchmarkSessionEncrypt8KB(b *testing.B) { benchmarkSessionEncrypt(b, 8*1024) }

func BenchmarkSessionDecrypt(b *testing.B) {
	aliceSession, bobSession := establishSessions(b)
	plaintext := bytes.Repeat([]byte{0x42}, 1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wireMsg, err := aliceSession.Encrypt(plaintext, ratchet.EncryptOptions{})
		if err != nil {
			b.Fatal(err)
		}
		b.StartTimer()
		if _, err := bobSession.Decrypt(wireMsg); err != nil {
			b.Fatal(err)
		}
		b.StopTimer()
	}
}

func BenchmarkSessionEncryptParallel(b *testing.B) {
	aliceSession, _ := establishSessions(b)
	plaintext := bytes.Repeat([]byte{0x42}, 1024)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := aliceSession.Encrypt(plaintext, ratchet.EncryptOptions{}); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// --- Suite-2 SCKA benchmarks ---

func establishSuite2Sessions(b *testing.B) (*session.Suite2Session, *session.Suite2Session) {
	b.Helper()
	aliceSession, bobSession := establishSessions(b)
	ckEc := bytes.Repeat([]byte{0x01}, 32)
	ckPq := bytes.Repeat([]byte{0x02}, 32)
	aliceS2, err := aliceSession.UpgradeSuite2(ckEc, ckPq, ckEc, ckPq)
	if err != nil {
		b.Fatal(err)
	}
	bobS2, err := bobSession.UpgradeSuite2(ckEc, ckPq, ckEc, ckPq)
	if err != nil {
		b.Fatal(err)
	}
	return aliceS2, bobS2
}

func BenchmarkSuite2Encrypt(b *testing.B) {
	aliceS2, _ := establishSuite2Sessions(b)
	plaintext := bytes.Repeat([]byte{0x42}, 1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := aliceS2.Encrypt(plaintext, scka.EncryptOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSuite2BoundaryReseed(b *testing.B) {
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		aliceS2, bobS2 := establishSuite2Sessions(b)
		targetID, targetKP, err := bobS2.MintTarget()
		if err != nil {
			b.Fatal(err)
		}
		aliceS2.RegisterKnownTarget(targetID)
		b.StartTimer()

		msg, err := bobS2.Encrypt([]byte("rekeying now"), scka.EncryptOptions{
			Boundary:  true,
			TargetID:  targetID,
			TargetPub: targetKP.PublicKeyBytes(),
		})
		if err != nil {
			b.Fatal(err)
		}
		if _, err := aliceS2.Decrypt(msg, 1); err != nil {
			b.Fatal(err)
		}
	}
}

// --- Allocation benchmarks ---

func BenchmarkAllocSnapshot(b *testing.B) {
	aliceSession, _ := establishSessions(b)
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := aliceSession.Snapshot(); err != nil {
			b.Fatal(err)
		}
	}
}
