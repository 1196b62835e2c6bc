// chainkdf.go implements the chain KDFs (§4.4.1) and directional header-key
// derivation (§4.3). Role selection for header keys is a pure function of
// Role with no inheritance, per spec §9.
package ratchet

import (
	"github.com/qsproto/qsp-core/internal/constants"
	"github.com/qsproto/qsp-core/internal/qcrypto"
)

// stepChain advances a chain key one step, returning the next chain key
// and the message key derived from the current one (spec §4.4.1).
func stepChain(ck []byte) (ckNext, mk []byte, err error) {
	ckNext, err = qcrypto.K(ck, constants.DomCK, []byte{0x01}, constants.ChainKeySize)
	if err != nil {
		return nil, nil, err
	}
	mk, err = qcrypto.K(ck, constants.DomMK, []byte{0x02}, constants.MessageKeySize)
	if err != nil {
		return nil, nil, err
	}
	return ckNext, mk, nil
}

// deriveRKDH performs the DH-ratchet root-key split: (rk', ck) =
// split_64(K(rk, "QSP4.3/RKDH", dh_out, 64)).
func deriveRKDH(rk, dhOut []byte) (rkNext, ck []byte, err error) {
	material, err := qcrypto.K(rk, constants.DomRKDH, dhOut, 64)
	if err != nil {
		return nil, nil, err
	}
	return qcrypto.Split64(material)
}

// deriveRKPQ mixes a freshly decapsulated PQ shared secret into the root
// key: rk' = K(rk, "QSP4.3/RKPQ", pq_ss, 32).
func deriveRKPQ(rk, pqSS []byte) ([]byte, error) {
	return qcrypto.K(rk, constants.DomRKPQ, pqSS, constants.RootKeySize)
}

// headerKeys holds the four directional header keys derived from a root
// key (spec §4.3).
type headerKeys struct {
	hkAtoB, hkBtoA, nhkAtoB, nhkBtoA []byte
}

func deriveAllHeaderKeys(rk []byte) (headerKeys, error) {
	var hk headerKeys
	var err error
	if hk.hkAtoB, err = qcrypto.K(rk, constants.DomHKAtoB, []byte{0x01}, constants.HeaderKeySize); err != nil {
		return hk, err
	}
	if hk.hkBtoA, err = qcrypto.K(rk, constants.DomHKBtoA, []byte{0x01}, constants.HeaderKeySize); err != nil {
		return hk, err
	}
	if hk.nhkAtoB, err = qcrypto.K(rk, constants.DomNHKAtoB, []byte{0x01}, constants.HeaderKeySize); err != nil {
		return hk, err
	}
	if hk.nhkBtoA, err = qcrypto.K(rk, constants.DomNHKBtoA, []byte{0x01}, constants.HeaderKeySize); err != nil {
		return hk, err
	}
	return hk, nil
}

// ApplyHeaderKeys assigns the four keys to draft.{HKs,HKr,NHKs,NHKr}
// according to role: the initiator sends on A->B and receives on B->A;
// the responder is reversed.
func ApplyHeaderKeys(draft *SessionState, rk []byte) error {
	hk, err := deriveAllHeaderKeys(rk)
	if err != nil {
		return err
	}
	switch draft.Role {
	case RoleInitiator:
		draft.HKs, draft.HKr = hk.hkAtoB, hk.hkBtoA
		draft.NHKs, draft.NHKr = hk.nhkAtoB, hk.nhkBtoA
	case RoleResponder:
		draft.HKs, draft.HKr = hk.hkBtoA, hk.hkAtoB
		draft.NHKs, draft.NHKr = hk.nhkBtoA, hk.nhkAtoB
	}
	return nil
}
