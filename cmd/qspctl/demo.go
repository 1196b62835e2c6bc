package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/qsproto/qsp-core/internal/ratchet"
	"github.com/qsproto/qsp-core/internal/scka"
	"github.com/qsproto/qsp-core/pkg/session"
	"github.com/qsproto/qsp-core/pkg/telemetry"
)

func runDemo(verbose, suite2 bool, logLevel, logFormat string) {
	format := telemetry.FormatText
	if logFormat == "json" {
		format = telemetry.FormatJSON
	}
	logger := telemetry.NewLogger(
		telemetry.WithLevel(telemetry.ParseLevel(logLevel)),
		telemetry.WithFormat(format),
		telemetry.WithName("demo"),
	)

	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║      qsp-core demo: hybrid handshake + double ratchet       ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")

	bob, err := newResponder("bob@example.com", 1)
	fail(err)
	alice, err := session.GenerateIdentity()
	fail(err)
	sessionID, err := randomSessionID()
	fail(err)

	logger.Info("minted responder bundle", telemetry.Fields{"user": "bob@example.com"})

	hs1, pending, err := session.HandshakeInit(alice, []byte("alice@example.com"), 7, bob.bundle, nil, sessionID, nil)
	fail(err)
	if verbose {
		fmt.Printf("  -> HS1 sent (%d bytes)\n", len(hs1))
	}

	hs2, bobSession, err := session.HandshakeRespond(bob.identity, bob.prekeys, hs1, nil)
	fail(err)
	if verbose {
		fmt.Printf("  <- HS2 sent (%d bytes)\n", len(hs2))
	}

	aliceSession, err := session.HandshakeFinalize(pending, hs2)
	fail(err)
	logger.Info("handshake complete", nil)

	exchange := []struct {
		from, to *session.Session
		who, msg string
	}{
		{aliceSession, bobSession, "alice", "hello bob, can you hear me?"},
		{bobSession, aliceSession, "bob", "loud and clear"},
		{aliceSession, bobSession, "alice", "good, sending the report now"},
	}

	for _, step := range exchange {
		wireMsg, err := step.from.Encrypt([]byte(step.msg), ratchet.EncryptOptions{})
		fail(err)
		pt, err := step.to.Decrypt(wireMsg)
		fail(err)
		if !bytes.Equal(pt, []byte(step.msg)) {
			fmt.Fprintln(os.Stderr, "Error: round trip mismatch")
			os.Exit(1)
		}
		if verbose {
			fmt.Printf("  %s: %q (%d wire bytes)\n", step.who, step.msg, len(wireMsg))
		}
	}

	snap, err := aliceSession.Snapshot()
	fail(err)
	restored, err := session.RestoreSession(snap)
	fail(err)
	wireMsg, err := restored.Encrypt([]byte("still me, after a restart"), ratchet.EncryptOptions{})
	fail(err)
	pt, err := bobSession.Decrypt(wireMsg)
	fail(err)
	fmt.Printf("  alice (after snapshot/restore): %q\n", pt)

	if suite2 {
		runSuite2Demo(aliceSession, bobSession, verbose, logger)
	}

	fmt.Println("demo complete")
}

func runSuite2Demo(aliceSession, bobSession *session.Session, verbose bool, logger *telemetry.Logger) {
	fmt.Println("\n--- Suite-2 upgrade and boundary reseed ---")

	ckEc := bytes.Repeat([]byte{0x01}, 32)
	ckPq := bytes.Repeat([]byte{0x02}, 32)

	aliceS2, err := aliceSession.UpgradeSuite2(ckEc, ckPq, ckEc, ckPq)
	fail(err)
	bobS2, err := bobSession.UpgradeSuite2(ckEc, ckPq, ckEc, ckPq)
	fail(err)
	logger.Info("both sides upgraded to suite-2", nil)

	targetID, targetKP, err := bobS2.MintTarget()
	fail(err)
	aliceS2.RegisterKnownTarget(targetID)
	if verbose {
		fmt.Printf("  bob minted boundary target %d\n", targetID)
	}

	boundaryMsg, err := bobS2.Encrypt([]byte("rekeying now"), scka.EncryptOptions{
		Boundary:  true,
		TargetID:  targetID,
		TargetPub: targetKP.PublicKeyBytes(),
	})
	fail(err)

	pt, err := aliceS2.Decrypt(boundaryMsg, 1)
	fail(err)
	fmt.Printf("  alice (post-reseed): %q\n", pt)
}

func fail(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
