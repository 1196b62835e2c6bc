// ratchet.go implements Send (§4.4.3), header trial decryption (§4.4.4),
// Receive (§4.4.5), and the DH receive ratchet (§4.4.6). Every public
// entry point works on a cloned draft and publishes it only once every
// fallible step has already succeeded.
package ratchet

import (
	"github.com/qsproto/qsp-core/internal/constants"
	"github.com/qsproto/qsp-core/internal/qcrypto"
	"github.com/qsproto/qsp-core/internal/wire"

	qerrors "github.com/qsproto/qsp-core/internal/errors"
)

// EncryptOptions lets a caller request PQ mixing/advertisement on the
// outbound message (spec §4.4.3 steps 4-5).
type EncryptOptions struct {
	AdvertisePQ bool // attach the lowest-id entry from pq_self as FLAG_PQ_ADV
	MixPQ       bool // encapsulate to pq_peer_pub and mix the result into rk
}

// Encrypt implements ratchet_encrypt: spec §4.4.3.
func Encrypt(st *SessionState, plaintext []byte, opts EncryptOptions) ([]byte, error) {
	draft := st.Clone()

	if draft.CKs == nil {
		if err := dhSendRatchet(draft); err != nil {
			return nil, err
		}
	}

	if draft.Ns == ^uint32(0) {
		return nil, qerrors.ErrCounterOverflow
	}
	ckNext, mk, err := stepChain(draft.CKs)
	if err != nil {
		return nil, err
	}
	draft.CKs = ckNext
	n := draft.Ns
	draft.Ns++

	var flags uint16
	var hkHdr []byte
	if draft.BoundaryPending {
		flags |= constants.FlagBoundary
		hkHdr = draft.BoundaryHK
		draft.BoundaryPending = false
		draft.BoundaryHK = nil
	} else {
		hkHdr = draft.HKs
	}

	var pqCtxtID uint32
	var pqCt []byte
	if opts.MixPQ && draft.PQPeerPresent {
		pub, perr := qcrypto.ParseMLKEMPublicKey(draft.PQPeerPub)
		if perr != nil {
			return nil, perr
		}
		ct, ss, eerr := qcrypto.MLKEMEncapsulate(pub)
		if eerr != nil {
			return nil, eerr
		}
		flags |= constants.FlagPQCtxt
		pqCtxtID = draft.PQPeerID
		pqCt = ct

		draft.RK, err = deriveRKPQ(draft.RK, ss)
		if err != nil {
			return nil, err
		}
		if err := ApplyHeaderKeys(draft, draft.RK); err != nil {
			return nil, err
		}
		// hkHdr was already captured above from the pre-mix header keys
		// (draft.BoundaryHK for a boundary message, the old draft.HKs
		// otherwise) and must not be re-read here: the receiver's header
		// trial-decryption for this message runs against the header keys
		// it already has cached, before it knows this message carries a
		// PQ mix. ApplyHeaderKeys only takes effect for messages sent
		// after this one.
	}

	var pqAdvID uint32
	var pqAdvPub []byte
	if opts.AdvertisePQ && len(draft.PQSelf) > 0 {
		lowest := draft.PQSelf[0]
		for _, e := range draft.PQSelf[1:] {
			if e.ID < lowest.ID {
				lowest = e
			}
		}
		flags |= constants.FlagPQAdv
		pqAdvID = lowest.ID
		pqAdvPub = lowest.Pub
	}

	dhPub := draft.DHSelf.PublicKeyBytes()
	nonceHdr := draft.NonceSource.NextHeaderNonce()

	hdrAEAD, err := qcrypto.NewAEAD(constants.AEADSuiteAES256GCM, hkHdr)
	if err != nil {
		return nil, err
	}
	hdrAD := adHeader(draft.SessionID, draft.ProtocolVersion, draft.SuiteID, dhPub, flags)
	hdrCt, err := hdrAEAD.Seal(nonceHdr[:], encodeHeaderPlaintext(draft.Pn, n), hdrAD)
	if err != nil || len(hdrCt) == 0 {
		return nil, qerrors.ErrAuthenticationFailed
	}

	bodyAEAD, err := qcrypto.NewAEAD(constants.AEADSuiteAES256GCM, mk)
	if err != nil {
		return nil, err
	}
	bodyNonce := nonceBody(draft.SessionID, dhPub, n)
	bodyAD := adBody(draft.SessionID, draft.ProtocolVersion, draft.SuiteID)
	bodyCt, err := bodyAEAD.Seal(bodyNonce, plaintext, bodyAD)
	if err != nil || len(bodyCt) == 0 {
		return nil, qerrors.ErrAuthenticationFailed
	}

	msg := &wire.ProtocolMessage{
		SessionID:  draft.SessionID,
		DHPub:      dhPub,
		Flags:      flags,
		NonceHdr:   nonceHdr[:],
		PQAdvID:    pqAdvID,
		PQAdvPub:   pqAdvPub,
		PQTargetID: pqCtxtID,
		PQCt:       pqCt,
		HdrCt:      hdrCt,
		BodyCt:     bodyCt,
	}
	out, err := msg.Encode()
	if err != nil {
		return nil, err
	}

	st.adopt(draft)
	return out, nil
}

// dhSendRatchet performs the DH send ratchet: spec §4.4.3 step 1.
func dhSendRatchet(draft *SessionState) error {
	if draft.Ns == ^uint32(0) {
		return qerrors.ErrCounterOverflow
	}
	draft.BoundaryPending = true
	draft.BoundaryHK = append([]byte{}, draft.NHKs...)
	draft.Pn = draft.Ns
	draft.Ns = 0

	fresh, err := qcrypto.GenerateX25519KeyPair()
	if err != nil {
		return err
	}
	draft.DHSelf = fresh

	peerPub, err := qcrypto.ParseX25519PublicKey(draft.DHPeer)
	if err != nil {
		return err
	}
	dhOut, err := qcrypto.X25519(draft.DHSelf.PrivateKey, peerPub)
	if err != nil {
		return err
	}
	rkNext, ck, err := deriveRKDH(draft.RK, dhOut)
	if err != nil {
		return err
	}
	draft.RK = rkNext
	draft.CKs = ck
	return ApplyHeaderKeys(draft, draft.RK)
}

// headerMatch identifies which candidate key matched during trial
// decryption (spec §4.4.4).
type headerMatch int

const (
	matchNone headerMatch = iota
	matchCurrentHK
	matchCurrentNHK
	matchSkippedHK
	matchSkippedNHK
)

// tryHeader attempts to open hdrCt against every candidate key in the
// fixed order the spec requires, trying all of them even after a match
// (a deliberate constant-work behaviour, spec §4.4.4/§8.4).
func tryHeader(draft *SessionState, dhPub []byte, flags uint16, nonceHdr, hdrCt []byte) (pn, n uint32, src headerMatch, matched bool, attempts int) {
	ad := adHeader(draft.SessionID, draft.ProtocolVersion, draft.SuiteID, dhPub, flags)

	type candidate struct {
		key []byte
		src headerMatch
	}
	candidates := []candidate{
		{draft.HKr, matchCurrentHK},
		{draft.NHKr, matchCurrentNHK},
	}
	if hkOld, nhkOld, ok := draft.HkSkipped.Get(dhPubArray(dhPub)); ok {
		candidates = append(candidates,
			candidate{hkOld, matchSkippedHK},
			candidate{nhkOld, matchSkippedNHK},
		)
	}

	for _, c := range candidates {
		if attempts >= constants.MaxHeaderAttempts {
			break
		}
		attempts++
		if c.key == nil {
			continue
		}
		aead, err := qcrypto.NewAEAD(constants.AEADSuiteAES256GCM, c.key)
		if err != nil {
			continue
		}
		pt, err := aead.Open(nonceHdr, hdrCt, ad)
		if err != nil || len(pt) != constants.HeaderPlaintextSize {
			continue
		}
		if !matched {
			pn, n = decodeHeaderPlaintext(pt)
			src = c.src
			matched = true
		}
	}
	return pn, n, src, matched, attempts
}

// Decrypt implements ratchet_decrypt: spec §4.4.5.
func Decrypt(st *SessionState, wireBytes []byte) ([]byte, error) {
	// DecodeProtocolMessage already enforces the fixed Suite-1
	// protocol_version/suite_id pair (spec §4.4.5 step 1).
	msg, err := wire.DecodeProtocolMessage(wireBytes)
	if err != nil {
		return nil, err
	}

	draft := st.Clone()

	pn, n, src, matched, _ := tryHeader(draft, msg.DHPub, msg.Flags, msg.NonceHdr, msg.HdrCt)
	if !matched {
		return nil, qerrors.ErrAuthenticationFailed
	}

	sameEpoch := equalBytes(msg.DHPub, draft.DHPeer)
	if !sameEpoch {
		_, knownOld := draft.HkSkipped.Get(dhPubArray(msg.DHPub))
		delayedOld := knownOld || src == matchSkippedHK || src == matchSkippedNHK
		if !delayedOld {
			if src != matchCurrentNHK {
				return nil, qerrors.ErrAuthenticationFailed
			}
			if err := dhReceiveRatchet(draft, msg.DHPub, pn); err != nil {
				return nil, err
			}
			sameEpoch = true
		}
	}

	key := MkSkippedKey{DHPub: dhPubArray(msg.DHPub), N: n}
	if mk, ok := draft.MkSkipped.Take(key); ok {
		plaintext, err := openBody(draft, msg, mk, n)
		if err != nil {
			return nil, err
		}
		st.adopt(draft)
		return plaintext, nil
	}
	if !sameEpoch {
		return nil, qerrors.ErrAuthenticationFailed
	}

	if n < draft.Nr {
		return nil, qerrors.ErrAuthenticationFailed
	}
	if n-draft.Nr > constants.MaxSkip {
		return nil, qerrors.ErrMaxSkipExceeded
	}

	for i := draft.Nr; i < n; i++ {
		ckNext, mkI, err := stepChain(draft.CKr)
		if err != nil {
			return nil, err
		}
		draft.CKr = ckNext
		if err := draft.MkSkipped.Put(MkSkippedKey{DHPub: dhPubArray(msg.DHPub), N: i}, mkI); err != nil {
			return nil, err
		}
		if draft.Nr == ^uint32(0) {
			return nil, qerrors.ErrCounterOverflow
		}
		draft.Nr++
	}

	ckNext, mkN, err := stepChain(draft.CKr)
	if err != nil {
		return nil, err
	}
	draft.CKr = ckNext
	if draft.Nr == ^uint32(0) {
		return nil, qerrors.ErrCounterOverflow
	}
	draft.Nr++

	plaintext, err := openBody(draft, msg, mkN, n)
	if err != nil {
		return nil, err
	}

	if msg.Flags&constants.FlagPQCtxt != 0 {
		self := findPQSelf(draft.PQSelf, msg.PQTargetID)
		if self == nil {
			return nil, qerrors.ErrDecapsulationFailed
		}
		ss, err := qcrypto.MLKEMDecapsulate(self.Kp.DecapsulationKey, msg.PQCt)
		if err != nil {
			return nil, err
		}
		draft.RK, err = deriveRKPQ(draft.RK, ss)
		if err != nil {
			return nil, err
		}
		if err := ApplyHeaderKeys(draft, draft.RK); err != nil {
			return nil, err
		}
	}
	if msg.Flags&constants.FlagPQAdv != 0 {
		draft.PQPeerPresent = true
		draft.PQPeerID = msg.PQAdvID
		draft.PQPeerPub = append([]byte{}, msg.PQAdvPub...)
	}

	st.adopt(draft)
	return plaintext, nil
}

func openBody(draft *SessionState, msg *wire.ProtocolMessage, mk []byte, n uint32) ([]byte, error) {
	aead, err := qcrypto.NewAEAD(constants.AEADSuiteAES256GCM, mk)
	if err != nil {
		return nil, err
	}
	nonce := nonceBody(draft.SessionID, msg.DHPub, n)
	ad := adBody(draft.SessionID, draft.ProtocolVersion, draft.SuiteID)
	pt, err := aead.Open(nonce, msg.BodyCt, ad)
	if err != nil {
		return nil, qerrors.ErrAuthenticationFailed
	}
	return pt, nil
}

// dhReceiveRatchet performs the DH receive ratchet: spec §4.4.6.
func dhReceiveRatchet(draft *SessionState, newDHPub []byte, pn uint32) error {
	if pn > draft.Nr && pn-draft.Nr > constants.MaxSkip {
		return qerrors.ErrMaxSkipExceeded
	}
	oldDHPub := dhPubArray(draft.DHPeer)
	if draft.CKr != nil {
		for draft.Nr < pn {
			ckNext, mkI, err := stepChain(draft.CKr)
			if err != nil {
				return err
			}
			draft.CKr = ckNext
			if err := draft.MkSkipped.Put(MkSkippedKey{DHPub: oldDHPub, N: draft.Nr}, mkI); err != nil {
				return err
			}
			draft.Nr++
		}
	}

	draft.HkSkipped.Put(oldDHPub, draft.HKr, draft.NHKr)

	draft.Pn = draft.Ns
	draft.Ns = 0
	draft.DHPeer = append([]byte{}, newDHPub...)

	peerPub, err := qcrypto.ParseX25519PublicKey(draft.DHPeer)
	if err != nil {
		return err
	}
	dhIn, err := qcrypto.X25519(draft.DHSelf.PrivateKey, peerPub)
	if err != nil {
		return err
	}
	rkNext, ck, err := deriveRKDH(draft.RK, dhIn)
	if err != nil {
		return err
	}
	draft.RK = rkNext
	draft.CKr = ck
	draft.CKs = nil
	return ApplyHeaderKeys(draft, draft.RK)
}

func findPQSelf(entries []PQSelfEntry, id uint32) *PQSelfEntry {
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i]
		}
	}
	return nil
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
