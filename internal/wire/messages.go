// messages.go defines the canonical wire shapes of spec §3.2, §3.4, and
// §6.1: PrekeyBundle, HandshakeInit, HandshakeResp, the Suite-1
// ProtocolMessage, and the Suite-2 wire frame. Each type's Encode/Decode
// pair is total and fail-closed per C2's contract (codec.go).
package wire

import (
	"github.com/qsproto/qsp-core/internal/constants"
	qerrors "github.com/qsproto/qsp-core/internal/errors"
)

// OneTimePrekey is a single-use DH or PQ prekey entry in a PrekeyBundle.
type OneTimePrekey struct {
	ID  uint32
	Pub []byte // 32 bytes (DH) or 1184 bytes (PQ), per the field it's attached to
}

// KTMaterial is the optional key-transparency proof attached to a bundle.
// The default KtVerifier (spec §4.6) only accepts the all-empty shape.
type KTMaterial struct {
	LogID  []byte // 32 bytes when present, empty otherwise
	Proof1 []byte
	Proof2 []byte
	Proof3 []byte
}

func (k *KTMaterial) isEmpty() bool {
	return k == nil || (len(k.LogID) == 0 && len(k.Proof1) == 0 && len(k.Proof2) == 0 && len(k.Proof3) == 0)
}

// PrekeyBundle is the long-lived publication described in spec §3.2.
type PrekeyBundle struct {
	UserID    []byte
	DeviceID  uint32
	ValidFrom uint32
	ValidTo   uint32

	IKSigECPub []byte // Ed25519 identity public key, 32 bytes
	IKSigPQPub []byte // ML-DSA-65 identity public key, 1952 bytes

	SPKDHPub []byte // signed prekey DH public, 32 bytes
	SPKPQPub []byte // signed prekey KEM public, 1184 bytes

	PQRcvID  uint32
	PQRcvPub []byte // 1184 bytes

	OTPDH *OneTimePrekey // optional, 32-byte pub
	OTPPQ *OneTimePrekey // optional, 1184-byte pub

	KT *KTMaterial // optional

	SigEC []byte // 64 bytes
	SigPQ []byte // 3309 bytes
}

// Validate checks the reference implementation's basic sanity rule before
// any cryptographic verification runs: a bundle whose validity window is
// inverted is rejected outright (see SPEC_FULL.md §4, supplemental feature
// drawn from original_source/qsp/types.rs).
func (b *PrekeyBundle) Validate() error {
	if b.ValidTo < b.ValidFrom {
		return qerrors.NewProtocolError("PrekeyBundle.Validate", qerrors.ErrBadLength)
	}
	if len(b.IKSigECPub) != constants.Ed25519PublicSize {
		return qerrors.NewProtocolError("PrekeyBundle.Validate", qerrors.ErrInvalidPublicKey)
	}
	if len(b.IKSigPQPub) != constants.MLDSA65PublicKeySize {
		return qerrors.NewProtocolError("PrekeyBundle.Validate", qerrors.ErrInvalidPublicKey)
	}
	if len(b.SPKDHPub) != constants.X25519KeySize {
		return qerrors.NewProtocolError("PrekeyBundle.Validate", qerrors.ErrInvalidPublicKey)
	}
	if len(b.SPKPQPub) != constants.MLKEM768PublicKeySize {
		return qerrors.NewProtocolError("PrekeyBundle.Validate", qerrors.ErrInvalidPublicKey)
	}
	if len(b.PQRcvPub) != constants.MLKEM768PublicKeySize {
		return qerrors.NewProtocolError("PrekeyBundle.Validate", qerrors.ErrInvalidPublicKey)
	}
	if len(b.SigEC) != constants.Ed25519SignatureSize {
		return qerrors.NewProtocolError("PrekeyBundle.Validate", qerrors.ErrSignatureInvalid)
	}
	if len(b.SigPQ) != constants.MLDSA65SignatureSize {
		return qerrors.NewProtocolError("PrekeyBundle.Validate", qerrors.ErrSignatureInvalid)
	}
	return nil
}

// otpFlags packs presence bits for the two optional one-time prekeys.
const (
	flagOTPDH byte = 0x1
	flagOTPPQ byte = 0x2
	flagKT    byte = 0x4
)

// encodeCore writes every field except SigEC/SigPQ, in canonical order.
// This is the exact byte string both bundle signatures sign over (prefixed
// with the BUNDLE domain label), per spec §3.2.
func (b *PrekeyBundle) encodeCore() []byte {
	w := NewWriter(256)
	w.PutBytes16(b.UserID)
	w.PutUint32(b.DeviceID)
	w.PutUint32(b.ValidFrom)
	w.PutUint32(b.ValidTo)
	w.PutFixed(b.IKSigECPub)
	w.PutFixed(b.IKSigPQPub)
	w.PutFixed(b.SPKDHPub)
	w.PutFixed(b.SPKPQPub)
	w.PutUint32(b.PQRcvID)
	w.PutFixed(b.PQRcvPub)

	var flags byte
	if b.OTPDH != nil {
		flags |= flagOTPDH
	}
	if b.OTPPQ != nil {
		flags |= flagOTPPQ
	}
	if !b.KT.isEmpty() {
		flags |= flagKT
	}
	w.PutFixed([]byte{flags})

	if b.OTPDH != nil {
		w.PutUint32(b.OTPDH.ID)
		w.PutFixed(b.OTPDH.Pub)
	}
	if b.OTPPQ != nil {
		w.PutUint32(b.OTPPQ.ID)
		w.PutFixed(b.OTPPQ.Pub)
	}
	if flags&flagKT != 0 {
		w.PutBytes16(b.KT.LogID)
		w.PutBytes32(b.KT.Proof1)
		w.PutBytes32(b.KT.Proof2)
		w.PutBytes32(b.KT.Proof3)
	}
	return w.Bytes()
}

// EncodeWithoutSigs returns the canonical encoding over which both bundle
// signatures are computed: SHA-512(DomBundle ‖ encodeCore()).
func (b *PrekeyBundle) EncodeWithoutSigs() []byte {
	return b.encodeCore()
}

// Encode returns the full canonical encoding, signatures included.
func (b *PrekeyBundle) Encode() []byte {
	w := NewWriter(512)
	w.PutFixed(b.encodeCore())
	w.PutFixed(b.SigEC)
	w.PutFixed(b.SigPQ)
	return w.Bytes()
}

// DecodePrekeyBundle parses and validates a canonical bundle encoding.
func DecodePrekeyBundle(data []byte) (*PrekeyBundle, error) {
	r := NewReader(data)
	b := &PrekeyBundle{}

	var err error
	if b.UserID, err = r.Bytes16(); err != nil {
		return nil, err
	}
	if b.DeviceID, err = r.Uint32(); err != nil {
		return nil, err
	}
	if b.ValidFrom, err = r.Uint32(); err != nil {
		return nil, err
	}
	if b.ValidTo, err = r.Uint32(); err != nil {
		return nil, err
	}
	if b.IKSigECPub, err = r.Fixed(constants.Ed25519PublicSize); err != nil {
		return nil, err
	}
	if b.IKSigPQPub, err = r.Fixed(constants.MLDSA65PublicKeySize); err != nil {
		return nil, err
	}
	if b.SPKDHPub, err = r.Fixed(constants.X25519KeySize); err != nil {
		return nil, err
	}
	if b.SPKPQPub, err = r.Fixed(constants.MLKEM768PublicKeySize); err != nil {
		return nil, err
	}
	if b.PQRcvID, err = r.Uint32(); err != nil {
		return nil, err
	}
	if b.PQRcvPub, err = r.Fixed(constants.MLKEM768PublicKeySize); err != nil {
		return nil, err
	}

	flagByte, err := r.Fixed(1)
	if err != nil {
		return nil, err
	}
	flags := flagByte[0]
	if flags&^(flagOTPDH|flagOTPPQ|flagKT) != 0 {
		return nil, qerrors.ErrUnknownFlagBit
	}

	if flags&flagOTPDH != 0 {
		id, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		pub, err := r.Fixed(constants.X25519KeySize)
		if err != nil {
			return nil, err
		}
		b.OTPDH = &OneTimePrekey{ID: id, Pub: pub}
	}
	if flags&flagOTPPQ != 0 {
		id, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		pub, err := r.Fixed(constants.MLKEM768PublicKeySize)
		if err != nil {
			return nil, err
		}
		b.OTPPQ = &OneTimePrekey{ID: id, Pub: pub}
	}
	if flags&flagKT != 0 {
		kt := &KTMaterial{}
		if kt.LogID, err = r.Bytes16(); err != nil {
			return nil, err
		}
		if kt.Proof1, err = r.Bytes32(); err != nil {
			return nil, err
		}
		if kt.Proof2, err = r.Bytes32(); err != nil {
			return nil, err
		}
		if kt.Proof3, err = r.Bytes32(); err != nil {
			return nil, err
		}
		b.KT = kt
	}

	if b.SigEC, err = r.Fixed(constants.Ed25519SignatureSize); err != nil {
		return nil, err
	}
	if b.SigPQ, err = r.Fixed(constants.MLDSA65SignatureSize); err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return b, b.Validate()
}

// HandshakeInit is the initiator's first handshake message (spec §6.1).
type HandshakeInit struct {
	SessionID []byte // 16 bytes
	UserID    []byte
	DeviceID  uint32
	EKDHA     []byte // 32 bytes, initiator's ephemeral X25519 public key
	CT1       []byte // 1088 bytes, KEM ciphertext against responder's signed PQ prekey

	OPKUsed  uint16 // 0 if no optional prekey pair was used
	CT2      []byte // 1088 bytes, present iff OPKUsed != 0
	OPKDHID  uint32
	OPKPQID  uint32

	PQRcvAID  uint32
	PQRcvAPub []byte // 1184 bytes

	IKSigECAPub []byte // 32 bytes
	IKSigPQAPub []byte // 1952 bytes
	SigECA      []byte // 64 bytes
	SigPQA      []byte // 3309 bytes
}

// encodeWithZeroedSigs writes HS1 with IKSig*/Sig* fields treated as zero
// for the purpose of computing the initial transcript hash T1 (spec §4.2:
// "Build HS1 with signature fields zeroed").
func (h *HandshakeInit) encodeWithZeroedSigs() []byte {
	w := NewWriter(512)
	w.PutUint16(constants.ProtocolVersionSuite1)
	w.PutUint16(constants.SuiteIDSuite1)
	w.PutFixed(h.SessionID)
	w.PutBytes16(h.UserID)
	w.PutUint32(h.DeviceID)
	w.PutFixed(h.EKDHA)
	w.PutFixed(h.CT1)
	w.PutUint16(h.OPKUsed)
	if h.OPKUsed != 0 {
		w.PutFixed(h.CT2)
		w.PutUint32(h.OPKDHID)
		w.PutUint32(h.OPKPQID)
	}
	w.PutUint32(h.PQRcvAID)
	w.PutFixed(h.PQRcvAPub)
	w.PutFixed(make([]byte, constants.Ed25519PublicSize))
	w.PutFixed(make([]byte, constants.MLDSA65PublicKeySize))
	w.PutFixed(make([]byte, constants.Ed25519SignatureSize))
	w.PutFixed(make([]byte, constants.MLDSA65SignatureSize))
	return w.Bytes()
}

// TranscriptBytesZeroed returns the HS1 encoding used to compute T1.
func (h *HandshakeInit) TranscriptBytesZeroed() []byte { return h.encodeWithZeroedSigs() }

// Encode returns the full bit-exact HandshakeInit wire encoding.
func (h *HandshakeInit) Encode() []byte {
	w := NewWriter(512)
	w.PutUint16(constants.ProtocolVersionSuite1)
	w.PutUint16(constants.SuiteIDSuite1)
	w.PutFixed(h.SessionID)
	w.PutBytes16(h.UserID)
	w.PutUint32(h.DeviceID)
	w.PutFixed(h.EKDHA)
	w.PutFixed(h.CT1)
	w.PutUint16(h.OPKUsed)
	if h.OPKUsed != 0 {
		w.PutFixed(h.CT2)
		w.PutUint32(h.OPKDHID)
		w.PutUint32(h.OPKPQID)
	}
	w.PutUint32(h.PQRcvAID)
	w.PutFixed(h.PQRcvAPub)
	w.PutFixed(h.IKSigECAPub)
	w.PutFixed(h.IKSigPQAPub)
	w.PutFixed(h.SigECA)
	w.PutFixed(h.SigPQA)
	return w.Bytes()
}

// DecodeHandshakeInit parses a HandshakeInit, enforcing exact version/suite
// match (spec §3.4 invariant, applied analogously to handshake messages).
func DecodeHandshakeInit(data []byte) (*HandshakeInit, error) {
	r := NewReader(data)

	pv, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	if pv != constants.ProtocolVersionSuite1 {
		return nil, qerrors.ErrVersionMismatch
	}
	sid, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	if sid != constants.SuiteIDSuite1 {
		return nil, qerrors.ErrSuiteMismatch
	}

	h := &HandshakeInit{}
	if h.SessionID, err = r.Fixed(constants.SessionIDSize); err != nil {
		return nil, err
	}
	if h.UserID, err = r.Bytes16(); err != nil {
		return nil, err
	}
	if h.DeviceID, err = r.Uint32(); err != nil {
		return nil, err
	}
	if h.EKDHA, err = r.Fixed(constants.X25519KeySize); err != nil {
		return nil, err
	}
	if h.CT1, err = r.Fixed(constants.MLKEM768CiphertextSize); err != nil {
		return nil, err
	}
	if h.OPKUsed, err = r.Uint16(); err != nil {
		return nil, err
	}
	if h.OPKUsed != 0 {
		if h.CT2, err = r.Fixed(constants.MLKEM768CiphertextSize); err != nil {
			return nil, err
		}
		if h.OPKDHID, err = r.Uint32(); err != nil {
			return nil, err
		}
		if h.OPKPQID, err = r.Uint32(); err != nil {
			return nil, err
		}
	}
	if h.PQRcvAID, err = r.Uint32(); err != nil {
		return nil, err
	}
	if h.PQRcvAPub, err = r.Fixed(constants.MLKEM768PublicKeySize); err != nil {
		return nil, err
	}
	if h.IKSigECAPub, err = r.Fixed(constants.Ed25519PublicSize); err != nil {
		return nil, err
	}
	if h.IKSigPQAPub, err = r.Fixed(constants.MLDSA65PublicKeySize); err != nil {
		return nil, err
	}
	if h.SigECA, err = r.Fixed(constants.Ed25519SignatureSize); err != nil {
		return nil, err
	}
	if h.SigPQA, err = r.Fixed(constants.MLDSA65SignatureSize); err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return h, nil
}

// HandshakeResp is the responder's reply (spec §6.1).
type HandshakeResp struct {
	SessionID []byte // 16 bytes
	DH0BPub   []byte // 32 bytes
	PQRcvBID  uint32
	PQRcvBPub []byte // 1184 bytes
	CT3       []byte // 1088 bytes
	ConfB     []byte // 32 bytes

	IKSigECBPub []byte // 32 bytes
	IKSigPQBPub []byte // 1952 bytes
	SigECB      []byte // 64 bytes
	SigPQB      []byte // 3309 bytes
}

func (h *HandshakeResp) encodeWithZeroed() []byte {
	w := NewWriter(256)
	w.PutUint16(constants.ProtocolVersionSuite1)
	w.PutUint16(constants.SuiteIDSuite1)
	w.PutFixed(h.SessionID)
	w.PutFixed(h.DH0BPub)
	w.PutUint32(h.PQRcvBID)
	w.PutFixed(h.PQRcvBPub)
	w.PutFixed(h.CT3)
	w.PutFixed(make([]byte, constants.RootKeySize)) // conf_b zeroed
	w.PutFixed(make([]byte, constants.Ed25519PublicSize))
	w.PutFixed(make([]byte, constants.MLDSA65PublicKeySize))
	w.PutFixed(make([]byte, constants.Ed25519SignatureSize))
	w.PutFixed(make([]byte, constants.MLDSA65SignatureSize))
	return w.Bytes()
}

// TranscriptBytesZeroed returns the HS2 encoding (conf and sig fields
// zeroed) used, together with HS1's encoding, to compute T2.
func (h *HandshakeResp) TranscriptBytesZeroed() []byte { return h.encodeWithZeroed() }

// Encode returns the full bit-exact HandshakeResp wire encoding.
func (h *HandshakeResp) Encode() []byte {
	w := NewWriter(256)
	w.PutUint16(constants.ProtocolVersionSuite1)
	w.PutUint16(constants.SuiteIDSuite1)
	w.PutFixed(h.SessionID)
	w.PutFixed(h.DH0BPub)
	w.PutUint32(h.PQRcvBID)
	w.PutFixed(h.PQRcvBPub)
	w.PutFixed(h.CT3)
	w.PutFixed(h.ConfB)
	w.PutFixed(h.IKSigECBPub)
	w.PutFixed(h.IKSigPQBPub)
	w.PutFixed(h.SigECB)
	w.PutFixed(h.SigPQB)
	return w.Bytes()
}

// DecodeHandshakeResp parses a HandshakeResp, enforcing exact version/suite
// match.
func DecodeHandshakeResp(data []byte) (*HandshakeResp, error) {
	r := NewReader(data)

	pv, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	if pv != constants.ProtocolVersionSuite1 {
		return nil, qerrors.ErrVersionMismatch
	}
	sid, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	if sid != constants.SuiteIDSuite1 {
		return nil, qerrors.ErrSuiteMismatch
	}

	h := &HandshakeResp{}
	if h.SessionID, err = r.Fixed(constants.SessionIDSize); err != nil {
		return nil, err
	}
	if h.DH0BPub, err = r.Fixed(constants.X25519KeySize); err != nil {
		return nil, err
	}
	if h.PQRcvBID, err = r.Uint32(); err != nil {
		return nil, err
	}
	if h.PQRcvBPub, err = r.Fixed(constants.MLKEM768PublicKeySize); err != nil {
		return nil, err
	}
	if h.CT3, err = r.Fixed(constants.MLKEM768CiphertextSize); err != nil {
		return nil, err
	}
	if h.ConfB, err = r.Fixed(constants.RootKeySize); err != nil {
		return nil, err
	}
	if h.IKSigECBPub, err = r.Fixed(constants.Ed25519PublicSize); err != nil {
		return nil, err
	}
	if h.IKSigPQBPub, err = r.Fixed(constants.MLDSA65PublicKeySize); err != nil {
		return nil, err
	}
	if h.SigECB, err = r.Fixed(constants.Ed25519SignatureSize); err != nil {
		return nil, err
	}
	if h.SigPQB, err = r.Fixed(constants.MLDSA65SignatureSize); err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return h, nil
}

// ProtocolMessage is the Suite-1 ratchet wire frame (spec §3.4, §6.1).
type ProtocolMessage struct {
	SessionID []byte // 16 bytes
	DHPub     []byte // 32 bytes
	Flags     uint16
	NonceHdr  []byte // 12 bytes

	PQAdvID  uint32 // present iff FlagPQAdv
	PQAdvPub []byte // 1184 bytes

	PQTargetID uint32 // present iff FlagPQCtxt
	PQCt       []byte // 1088 bytes

	HdrCt  []byte // must be exactly 24 bytes
	BodyCt []byte // must be >= 16 bytes
}

// Encode returns the bit-exact ProtocolMessage wire encoding.
func (m *ProtocolMessage) Encode() ([]byte, error) {
	if m.Flags&^constants.FlagsMask != 0 {
		return nil, qerrors.ErrUnknownFlagBit
	}
	if len(m.HdrCt) != constants.HeaderCiphertextSize {
		return nil, qerrors.ErrBadLength
	}
	if len(m.BodyCt) < constants.BodyMinCiphertextSize {
		return nil, qerrors.ErrBadLength
	}

	w := NewWriter(128 + len(m.BodyCt))
	w.PutUint16(constants.ProtocolVersionSuite1)
	w.PutUint16(constants.SuiteIDSuite1)
	w.PutFixed(m.SessionID)
	w.PutFixed(m.DHPub)
	w.PutUint16(m.Flags)
	w.PutFixed(m.NonceHdr)

	if m.Flags&constants.FlagPQAdv != 0 {
		w.PutUint32(m.PQAdvID)
		w.PutFixed(m.PQAdvPub)
	}
	if m.Flags&constants.FlagPQCtxt != 0 {
		w.PutUint32(m.PQTargetID)
		w.PutFixed(m.PQCt)
	}

	w.PutUint16(uint16(len(m.HdrCt)))
	w.PutFixed(m.HdrCt)
	w.PutUint32(uint32(len(m.BodyCt)))
	w.PutFixed(m.BodyCt)
	return w.Bytes(), nil
}

// DecodeProtocolMessage parses a Suite-1 ProtocolMessage, enforcing §3.4's
// invariants: exact version/suite match, only the three defined flag bits,
// hdr_ct_len constant at 24, body_ct_len >= 16.
func DecodeProtocolMessage(data []byte) (*ProtocolMessage, error) {
	r := NewReader(data)

	pv, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	if pv != constants.ProtocolVersionSuite1 {
		return nil, qerrors.ErrVersionMismatch
	}
	sid, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	if sid != constants.SuiteIDSuite1 {
		return nil, qerrors.ErrSuiteMismatch
	}

	m := &ProtocolMessage{}
	if m.SessionID, err = r.Fixed(constants.SessionIDSize); err != nil {
		return nil, err
	}
	if m.DHPub, err = r.Fixed(constants.X25519KeySize); err != nil {
		return nil, err
	}
	if m.Flags, err = r.Uint16(); err != nil {
		return nil, err
	}
	if m.Flags&^constants.FlagsMask != 0 {
		return nil, qerrors.ErrUnknownFlagBit
	}
	if m.NonceHdr, err = r.Fixed(constants.Nonce12Size); err != nil {
		return nil, err
	}

	if m.Flags&constants.FlagPQAdv != 0 {
		if m.PQAdvID, err = r.Uint32(); err != nil {
			return nil, err
		}
		if m.PQAdvPub, err = r.Fixed(constants.MLKEM768PublicKeySize); err != nil {
			return nil, err
		}
	}
	if m.Flags&constants.FlagPQCtxt != 0 {
		if m.PQTargetID, err = r.Uint32(); err != nil {
			return nil, err
		}
		if m.PQCt, err = r.Fixed(constants.MLKEM768CiphertextSize); err != nil {
			return nil, err
		}
	}

	hdrCtLen, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	if hdrCtLen != constants.HeaderCiphertextSize {
		return nil, qerrors.ErrBadLength
	}
	if m.HdrCt, err = r.Fixed(int(hdrCtLen)); err != nil {
		return nil, err
	}

	bodyCtLen, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	if bodyCtLen < constants.BodyMinCiphertextSize {
		return nil, qerrors.ErrBadLength
	}
	if m.BodyCt, err = r.Fixed(int(bodyCtLen)); err != nil {
		return nil, err
	}

	if err := r.Done(); err != nil {
		return nil, err
	}
	return m, nil
}

// Suite2Frame is the Suite-2 SCKA wire frame (spec §6.1). Boundary messages
// carry a pq_prefix (pq_target_id ‖ pq_ct) inside the header block.
type Suite2Frame struct {
	MsgType uint8 // always 0x02
	DHPub   []byte
	Flags   uint16
	HdrCt   []byte

	PQTargetID uint32 // present iff FlagBoundary
	PQCt       []byte // present iff FlagBoundary, 1088 bytes

	BodyCt []byte
}

const suite2MsgType = 0x02

// headerBlock returns the encoded { dh_pub ‖ flags ‖ [pq_prefix] ‖ hdr_ct }
// region whose length is carried as header_len.
func (f *Suite2Frame) headerBlock() ([]byte, error) {
	if f.Flags&^constants.FlagsMask != 0 {
		return nil, qerrors.ErrUnknownFlagBit
	}
	w := NewWriter(64 + len(f.HdrCt))
	w.PutFixed(f.DHPub)
	w.PutUint16(f.Flags)
	if f.Flags&constants.FlagBoundary != 0 {
		if len(f.PQCt) != constants.MLKEM768CiphertextSize {
			return nil, qerrors.ErrMissingRequiredField
		}
		w.PutUint32(f.PQTargetID)
		w.PutFixed(f.PQCt)
	}
	w.PutFixed(f.HdrCt)
	return w.Bytes(), nil
}

// Encode returns the bit-exact Suite-2 wire frame encoding.
func (f *Suite2Frame) Encode() ([]byte, error) {
	header, err := f.headerBlock()
	if err != nil {
		return nil, err
	}
	if len(header) > 1<<16-1 || len(f.BodyCt) > 1<<16-1 {
		return nil, qerrors.ErrBadLength
	}

	w := NewWriter(16 + len(header) + len(f.BodyCt))
	w.PutUint16(constants.ProtocolVersionSuite2)
	w.PutUint16(constants.SuiteIDSuite2)
	w.PutFixed([]byte{suite2MsgType, 0x00})
	w.PutUint16(uint16(len(header)))
	w.PutUint16(uint16(len(f.BodyCt)))
	w.PutFixed(header)
	w.PutFixed(f.BodyCt)
	return w.Bytes(), nil
}

// DecodeSuite2Frame parses a Suite-2 wire frame, enforcing exact
// version/suite match and the PQ-prefix-only-on-boundary rule (§4.5.1).
func DecodeSuite2Frame(data []byte) (*Suite2Frame, error) {
	r := NewReader(data)

	pv, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	if pv != constants.ProtocolVersionSuite2 {
		return nil, qerrors.ErrVersionMismatch
	}
	sid, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	if sid != constants.SuiteIDSuite2 {
		return nil, qerrors.ErrSuiteMismatch
	}

	typeAndReserved, err := r.Fixed(2)
	if err != nil {
		return nil, err
	}
	if typeAndReserved[0] != suite2MsgType || typeAndReserved[1] != 0x00 {
		return nil, qerrors.NewProtocolError("DecodeSuite2Frame", qerrors.ErrBadLength)
	}

	headerLen, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	bodyLen, err := r.Uint16()
	if err != nil {
		return nil, err
	}

	headerBytes, err := r.Fixed(int(headerLen))
	if err != nil {
		return nil, err
	}
	bodyCt, err := r.Fixed(int(bodyLen))
	if err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}

	f := &Suite2Frame{BodyCt: bodyCt}
	hr := NewReader(headerBytes)
	if f.DHPub, err = hr.Fixed(constants.X25519KeySize); err != nil {
		return nil, err
	}
	if f.Flags, err = hr.Uint16(); err != nil {
		return nil, err
	}
	if f.Flags&^constants.FlagsMask != 0 {
		return nil, qerrors.ErrUnknownFlagBit
	}
	if f.Flags&constants.FlagPQAdv != 0 {
		// Suite-2 reserves FLAG_PQ_ADV; currently rejected (spec §4.5.1).
		return nil, qerrors.NewRejectError(constantsRejectLocalUnsupported(), qerrors.ErrUnknownFlagBit)
	}
	if f.Flags&constants.FlagBoundary != 0 {
		if f.PQTargetID, err = hr.Uint32(); err != nil {
			return nil, qerrors.NewRejectError(constantsRejectPQPrefixParse(), err)
		}
		if f.PQCt, err = hr.Fixed(constants.MLKEM768CiphertextSize); err != nil {
			return nil, qerrors.NewRejectError(constantsRejectPQPrefixParse(), err)
		}
	}
	// Remaining bytes in the header block are hdr_ct.
	rest := headerBytes[hr.pos:]
	f.HdrCt = rest
	f.MsgType = suite2MsgType

	return f, nil
}

func constantsRejectLocalUnsupported() string { return constants.RejectLocalUnsupported }
func constantsRejectPQPrefixParse() string    { return constants.RejectPQPrefixParse }
