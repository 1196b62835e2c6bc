// scka.go implements Suite-2 Encrypt/Decrypt: the hybrid chain step
// (§4.5.3), non-boundary and boundary message framing (§4.5.1-§4.5.2),
// PQ reseed (§4.5.4), and the monotonic advertisement/tombstone state
// machine that guards a boundary receive (§4.5.5, §4.5.6).
package scka

import (
	"github.com/qsproto/qsp-core/internal/constants"
	qerrors "github.com/qsproto/qsp-core/internal/errors"
	"github.com/qsproto/qsp-core/internal/qcrypto"
	"github.com/qsproto/qsp-core/internal/ratchet"
	"github.com/qsproto/qsp-core/internal/wire"
)

// EncryptOptions requests a boundary reseed on this send, targeting a
// pq_target_id the peer has already been told about out of band (spec
// §9 open question on advertisement plumbing; see DESIGN.md).
type EncryptOptions struct {
	Boundary bool
	TargetID uint32
	TargetPub []byte // the peer's published ML-KEM-768 public key for TargetID
}

// Encrypt implements the Suite-2 send path.
func Encrypt(st *Suite2SessionState, plaintext []byte, opts EncryptOptions) ([]byte, error) {
	draft := st.Clone()

	ckEcNext, ckPqNext, mk, err := stepHybridChain(draft.Send.CKEc, draft.Send.CKPq)
	if err != nil {
		return nil, err
	}

	var flags uint16
	var prefix []byte
	if opts.Boundary {
		flags |= constants.FlagBoundary
		pub, perr := qcrypto.ParseMLKEMPublicKey(opts.TargetPub)
		if perr != nil {
			return nil, perr
		}
		ct, ss, eerr := qcrypto.MLKEMEncapsulate(pub)
		if eerr != nil {
			return nil, eerr
		}
		prefix = pqPrefix(true, opts.TargetID, ct)

		seedAtoB, seedBtoA, serr := deriveReseedSeeds(draft.RK, opts.TargetID, ct, ss)
		if serr != nil {
			return nil, serr
		}
		if draft.Role == ratchet.RoleInitiator {
			ckPqNext = seedAtoB
		} else {
			ckPqNext = seedBtoA
		}
	}

	draft.Send.CKEc = ckEcNext
	draft.Send.CKPq = ckPqNext
	n := draft.Send.N
	draft.Send.N++

	bind := pqBind(flags, prefix)
	hdrAD := adHeaderPrime(draft.SessionID, draft.ProtocolVersion, draft.SuiteID, draft.DHSelf, flags, bind)
	bodyAD := adBodyPrime(draft.SessionID, draft.ProtocolVersion, draft.SuiteID, bind)
	nonce := messageNonce(draft.SessionID, draft.DHSelf, n)

	hdrAEAD, err := qcrypto.NewAEAD(constants.AEADSuiteAES256GCM, draft.HKs)
	if err != nil {
		return nil, err
	}
	hdrCt, err := hdrAEAD.Seal(nonce, encodeHeaderPlaintext(0, n), hdrAD)
	if err != nil || len(hdrCt) == 0 {
		return nil, qerrors.ErrAuthenticationFailed
	}

	bodyAEAD, err := qcrypto.NewAEAD(constants.AEADSuiteAES256GCM, mk)
	if err != nil {
		return nil, err
	}
	bodyCt, err := bodyAEAD.Seal(nonce, plaintext, bodyAD)
	if err != nil || len(bodyCt) == 0 {
		return nil, qerrors.ErrAuthenticationFailed
	}

	frame := &wire.Suite2Frame{
		DHPub:  draft.DHSelf,
		Flags:  flags,
		HdrCt:  hdrCt,
		BodyCt: bodyCt,
	}
	if opts.Boundary {
		frame.PQTargetID = opts.TargetID
		frame.PQCt = prefix[4:] // pqPrefix prepends a 4-byte target id we already track separately
	}
	out, err := frame.Encode()
	if err != nil {
		return nil, err
	}

	st.adopt(draft)
	return out, nil
}

// Decrypt implements the Suite-2 receive path: strict in-order boundary
// delivery (spec §4.5.6), skipped-key caching for out-of-order
// non-boundary delivery within MAX_SKIP (same section), monotonic
// advertisement checking (§4.5.5), and the hybrid chain step shared with
// Encrypt.
func Decrypt(st *Suite2SessionState, wireBytes []byte, peerAdvID uint32) ([]byte, error) {
	frame, err := wire.DecodeSuite2Frame(wireBytes)
	if err != nil {
		return nil, err
	}

	draft := st.Clone()

	boundary := frame.Flags&constants.FlagBoundary != 0
	var prefix []byte
	if boundary {
		prefix = pqPrefix(true, frame.PQTargetID, frame.PQCt)
	}
	bind := pqBind(frame.Flags, prefix)
	hdrAD := adHeaderPrime(draft.SessionID, draft.ProtocolVersion, draft.SuiteID, frame.DHPub, frame.Flags, bind)
	bodyAD := adBodyPrime(draft.SessionID, draft.ProtocolVersion, draft.SuiteID, bind)

	hdrAEAD, err := qcrypto.NewAEAD(constants.AEADSuiteAES256GCM, draft.HKr)
	if err != nil {
		return nil, err
	}

	expected := draft.Recv.N
	var gotN uint32
	var nonce []byte

	if boundary {
		// A boundary reseed only advances the hybrid chain to a state
		// the expected counter can open: there is nothing to search, and
		// arriving early or late means the reseed can never be recovered.
		nonce = messageNonce(draft.SessionID, frame.DHPub, expected)
		hdrPlain, herr := hdrAEAD.Open(nonce, frame.HdrCt, hdrAD)
		if herr != nil {
			return nil, qerrors.NewRejectError(constants.RejectS2HdrAuthFail, herr)
		}
		_, gotN = decodeHeaderPlaintext(hdrPlain)
		if gotN != expected {
			return nil, qerrors.NewRejectError(constants.RejectS2BoundaryNotInOrder, nil)
		}
	} else {
		// Non-boundary messages may arrive out of order within MAX_SKIP
		// (spec §4.5.6). The frame carries no explicit nonce, so the only
		// way to learn which counter was used is to try every candidate
		// nonce in the allowed window until one both opens the header and
		// decodes to the counter it was tried under.
		found := false
		for cand := uint64(expected); cand <= uint64(expected)+uint64(constants.MaxSkip); cand++ {
			candN := uint32(cand)
			candNonce := messageNonce(draft.SessionID, frame.DHPub, candN)
			hdrPlain, herr := hdrAEAD.Open(candNonce, frame.HdrCt, hdrAD)
			if herr != nil {
				continue
			}
			_, decN := decodeHeaderPlaintext(hdrPlain)
			if decN != candN {
				continue
			}
			gotN, nonce, found = decN, candNonce, true
			break
		}
		if !found {
			return nil, qerrors.NewRejectError(constants.RejectS2HdrAuthFail, nil)
		}
	}

	if boundary {
		if err := checkBoundaryAdvertisement(draft, peerAdvID, frame.PQTargetID); err != nil {
			return nil, err
		}
	}

	skipKey := ratchet.MkSkippedKey{DHPub: dhPubArray(frame.DHPub), N: gotN}
	var mk []byte
	if cached, ok := draft.Recv.MkSkipped.Take(skipKey); ok && !boundary {
		mk = cached
	} else {
		if gotN < draft.Recv.N {
			return nil, qerrors.NewRejectError(constants.RejectS2HdrAuthFail, nil)
		}
		for i := draft.Recv.N; i < gotN; i++ {
			ckEcNext, ckPqNext, mkI, serr := stepHybridChain(draft.Recv.CKEc, draft.Recv.CKPq)
			if serr != nil {
				return nil, serr
			}
			draft.Recv.CKEc = ckEcNext
			draft.Recv.CKPq = ckPqNext
			if err := draft.Recv.MkSkipped.Put(ratchet.MkSkippedKey{DHPub: dhPubArray(frame.DHPub), N: i}, mkI); err != nil {
				return nil, err
			}
			draft.Recv.N++
		}

		ckEcNext, ckPqNext, mkN, serr := stepHybridChain(draft.Recv.CKEc, draft.Recv.CKPq)
		if serr != nil {
			return nil, serr
		}
		draft.Recv.CKEc = ckEcNext
		draft.Recv.CKPq = ckPqNext
		draft.Recv.N++

		if boundary {
			kp, ok := draft.LocalTargets[frame.PQTargetID]
			if !ok {
				return nil, qerrors.NewRejectError(constants.RejectSCKATargetUnknown, nil)
			}
			ss, derr := qcrypto.MLKEMDecapsulate(kp.DecapsulationKey, frame.PQCt)
			if derr != nil {
				return nil, qerrors.NewRejectError(constants.RejectPQPrefixParse, derr)
			}
			seedAtoB, seedBtoA, serr := deriveReseedSeeds(draft.RK, frame.PQTargetID, frame.PQCt, ss)
			if serr != nil {
				return nil, serr
			}
			if draft.Role == ratchet.RoleInitiator {
				draft.Recv.CKPq = seedBtoA
			} else {
				draft.Recv.CKPq = seedAtoB
			}
			commitBoundaryAdvertisement(draft, peerAdvID, frame.PQTargetID)
		}

		mk = mkN
	}

	bodyAEAD, err := qcrypto.NewAEAD(constants.AEADSuiteAES256GCM, mk)
	if err != nil {
		return nil, err
	}
	plaintext, err := bodyAEAD.Open(nonce, frame.BodyCt, bodyAD)
	if err != nil {
		return nil, qerrors.NewRejectErrorWithHeader(constants.RejectS2BodyAuthFail, err, 0, gotN)
	}

	st.adopt(draft)
	return plaintext, nil
}

// dhPubArray returns the fixed-size form of a Suite-2 dh_pub used as a
// skipped-key cache map key, mirroring internal/ratchet's own cache keys.
func dhPubArray(b []byte) [32]byte {
	var out [32]byte
	copy(out[:], b)
	return out
}

// checkBoundaryAdvertisement verifies the four acceptance conditions of
// spec §4.5.5 without mutating state; commitBoundaryAdvertisement applies
// the resulting transition once every other fallible step has succeeded.
func checkBoundaryAdvertisement(draft *Suite2SessionState, peerAdvID, target uint32) error {
	if peerAdvID <= draft.Recv.PeerMaxAdvIDSeen {
		return qerrors.NewRejectError(constants.RejectSCKAAdvNonmonotonic, nil)
	}
	switch draft.Recv.Targets[target] {
	case targetKnown:
	case targetTombstoned:
		return qerrors.NewRejectError(constants.RejectSCKATargetTombstoned, nil)
	case targetConsumed:
		return qerrors.NewRejectError(constants.RejectSCKATargetConsumed, nil)
	default:
		return qerrors.NewRejectError(constants.RejectSCKATargetUnknown, nil)
	}
	return nil
}

// commitBoundaryAdvertisement applies the target-id transition and
// updates peer_max_adv_id_seen. Tombstoning every lower-numbered known
// target on each consumption is this implementation's policy choice
// (spec §9 leaves it to implementer discretion, provided the tombstone
// set only grows).
func commitBoundaryAdvertisement(draft *Suite2SessionState, peerAdvID, target uint32) {
	draft.Recv.Targets[target] = targetConsumed
	for id, state := range draft.Recv.Targets {
		if id < target && state == targetKnown {
			draft.Recv.Targets[id] = targetTombstoned
		}
	}
	if peerAdvID > draft.Recv.PeerMaxAdvIDSeen {
		draft.Recv.PeerMaxAdvIDSeen = peerAdvID
	}
}
