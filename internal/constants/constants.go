// Package constants defines wire sizes, domain-separation labels, and
// bounded limits for the post-quantum-hardened messaging core.
package constants

// Protocol and suite identifiers carried on the wire.
const (
	// ProtocolVersionSuite1 is the negotiated pv for Suite-1/1B sessions.
	ProtocolVersionSuite1 uint16 = 0x0403
	// SuiteIDSuite1 identifies the hybrid X3DH + double-ratchet suite.
	SuiteIDSuite1 uint16 = 0x0001

	// ProtocolVersionSuite2 is the negotiated pv for Suite-2 SCKA sessions.
	ProtocolVersionSuite2 uint16 = 0x0500
	// SuiteIDSuite2 identifies the supplemental chain key advance suite.
	SuiteIDSuite2 uint16 = 0x0002
)

// Classical primitive sizes.
const (
	X25519KeySize      = 32
	Ed25519PublicSize  = 32
	Ed25519SignatureSize = 64
)

// ML-KEM-768 sizes (NIST FIPS 203).
const (
	MLKEM768PublicKeySize  = 1184
	MLKEM768PrivateKeySize = 2400
	MLKEM768CiphertextSize = 1088
	MLKEM768SharedKeySize  = 32
)

// ML-DSA-65 sizes (NIST FIPS 204).
const (
	MLDSA65PublicKeySize  = 1952
	MLDSA65SignatureSize  = 3309
)

// Symmetric secrets, all 32 bytes per spec §3.1.
const (
	ChainKeySize  = 32
	RootKeySize   = 32
	HeaderKeySize = 32
	MessageKeySize = 32

	SessionIDSize = 16
	Nonce12Size   = 12
)

// Header framing. hdr_ct_len is constant per spec §3.4: 8-byte plaintext
// (pn, n) plus a 16-byte AEAD tag.
const (
	HeaderPlaintextSize  = 8
	HeaderCiphertextSize = HeaderPlaintextSize + AEADTagSize
	AEADTagSize          = 16
	BodyMinCiphertextSize = AEADTagSize
)

// Wire flag bits, spec §3.4 and §4.5.1.
const (
	FlagPQAdv    uint16 = 0x1
	FlagPQCtxt   uint16 = 0x2
	FlagBoundary uint16 = 0x4
	FlagsMask    uint16 = FlagPQAdv | FlagPQCtxt | FlagBoundary
)

// Bounded resource limits, spec §3.3 and §8.
const (
	MaxSkip           = 1000
	MaxMkSkipped      = 1000
	MaxHkSkipped      = 64
	MaxHeaderAttempts = 100

	// Restore-time caps, spec §6.3.
	RestoreMaxMkSkipped    = 10000
	RestoreMaxTargetIDSets = 1000
)

// Domain-separation labels, spec §4.2-§4.5, reproduced verbatim.
const (
	DomBundle   = "QSP4.3/BUNDLE"
	DomMaster   = "QSP4.3/MS"
	DomRK0      = "QSP4.3/RK0"
	DomHS1      = "QSP4.3/HS1"
	DomHS2      = "QSP4.3/HS2"
	DomConf     = "QSP4.3/CONF"

	DomHKAtoB  = "QSP4.3/HK/A->B"
	DomHKBtoA  = "QSP4.3/HK/B->A"
	DomNHKAtoB = "QSP4.3/NHK/A->B"
	DomNHKBtoA = "QSP4.3/NHK/B->A"

	DomCK   = "QSP4.3/CK"
	DomMK   = "QSP4.3/MK"
	DomRKDH = "QSP4.3/RKDH"
	DomRKPQ = "QSP4.3/RKPQ"

	DomBodyNonce = "QSP4.3/BODY-NONCE"

	DomPQBind   = "QSP5.0/PQBIND"
	DomS2CK     = "QSP5.0/CK"
	DomS2MK     = "QSP5.0/MK"
	DomS2PQCK   = "QSP5.0/PQCK"
	DomS2PQMK   = "QSP5.0/PQMK"
	DomS2Hybrid = "QSP5.0/HYBRID"

	DomPQSeedAtoB  = "QSP5.0/PQSEED/A->B"
	DomPQSeedBtoA  = "QSP5.0/PQSEED/B->A"
	DomSCKACtxt    = "QSP5.0/SCKA/CTXT"

	// DomS2Nonce derives the single per-message nonce Suite-2 uses for
	// both header and body encryption. The wire frame carries no nonce
	// field (unlike Suite-1's nonce_hdr), so both AEAD calls draw a
	// nonce deterministically from the message counter; reusing one
	// nonce value under two different keys (hk, mk) is not a nonce-reuse
	// violation.
	DomS2Nonce = "QSP5.0/NONCE"
)

// Snapshot format magics, spec §6.3.
const (
	SnapshotMagicSuite1 = "QSSN"
	SnapshotMagicSuite2 = "QS2S"
	SnapshotVersion     = 1
)

// Reject reason codes, spec §7 and §4.5.5/§4.5.6.
const (
	RejectSCKAAdvNonmonotonic   = "REJECT_SCKA_ADV_NONMONOTONIC"
	RejectSCKATargetUnknown     = "REJECT_SCKA_TARGET_UNKNOWN"
	RejectSCKATargetTombstoned = "REJECT_SCKA_TARGET_TOMBSTONED"
	RejectSCKATargetConsumed   = "REJECT_SCKA_TARGET_CONSUMED"
	RejectSCKARollbackDetected = "REJECT_SCKA_ROLLBACK_DETECTED"
	RejectS2BoundaryNotInOrder = "REJECT_S2_BOUNDARY_NOT_IN_ORDER"
	RejectS2HdrAuthFail        = "REJECT_S2_HDR_AUTH_FAIL"
	RejectS2BodyAuthFail       = "REJECT_S2_BODY_AUTH_FAIL"
	RejectReplay               = "REJECT_REPLAY"
	RejectOOOBounds            = "REJECT_OOO_BOUNDS"
	RejectPQPrefixParse        = "REJECT_PQPREFIX_PARSE"
	RejectLocalUnsupported     = "REJECT_LOCAL_UNSUPPORTED"
	RejectDowngrade            = "REJECT_DOWNGRADE"
	RejectSuiteMismatch        = "REJECT_SUITE_MISMATCH"
	RejectADMismatch           = "REJECT_AD_MISMATCH"
	RejectPeerUnsupported      = "REJECT_PEER_UNSUPPORTED"
	RejectUnauthenticated      = "REJECT_UNAUTHENTICATED"
)

// AEAD suite selection for the committing-AEAD wrapper (C1). Mirrors the
// cipher-suite style of the reference VPN's CipherSuite type.
type AEADSuite uint16

const (
	AEADSuiteAES256GCM        AEADSuite = 0x0001
	AEADSuiteChaCha20Poly1305 AEADSuite = 0x0002
)

func (s AEADSuite) String() string {
	switch s {
	case AEADSuiteAES256GCM:
		return "AES-256-GCM"
	case AEADSuiteChaCha20Poly1305:
		return "ChaCha20-Poly1305"
	default:
		return "Unknown"
	}
}

func (s AEADSuite) IsSupported() bool {
	return s == AEADSuiteAES256GCM || s == AEADSuiteChaCha20Poly1305
}
