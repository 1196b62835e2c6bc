package scka

import (
	"github.com/qsproto/qsp-core/internal/constants"
	"github.com/qsproto/qsp-core/internal/qcrypto"
)

// stepHybridChain advances both the EC and PQ chains one step and
// combines their message keys into a single hybrid message key (spec
// §4.5.3). Both chains step on every message, boundary or not.
func stepHybridChain(ckEc, ckPq []byte) (ckEcNext, ckPqNext, mk []byte, err error) {
	ckEcNext, err = qcrypto.K(ckEc, constants.DomS2CK, []byte{0x01}, constants.ChainKeySize)
	if err != nil {
		return nil, nil, nil, err
	}
	ecMK, err := qcrypto.K(ckEc, constants.DomS2MK, []byte{0x02}, constants.MessageKeySize)
	if err != nil {
		return nil, nil, nil, err
	}
	ckPqNext, err = qcrypto.K(ckPq, constants.DomS2PQCK, []byte{0x01}, constants.ChainKeySize)
	if err != nil {
		return nil, nil, nil, err
	}
	pqMK, err := qcrypto.K(ckPq, constants.DomS2PQMK, []byte{0x02}, constants.MessageKeySize)
	if err != nil {
		return nil, nil, nil, err
	}
	mk, err = qcrypto.K(ecMK, constants.DomS2Hybrid, append(append([]byte{}, pqMK...), 0x01), constants.MessageKeySize)
	if err != nil {
		return nil, nil, nil, err
	}
	return ckEcNext, ckPqNext, mk, nil
}

// deriveReseedSeeds computes the per-direction chain seeds a boundary
// reseed mixes in (spec §4.5.4): ctx binds the target id, a digest of the
// KEM ciphertext, and the freshly decapsulated shared secret, so the two
// seeds are bound to exactly this boundary exchange and cannot be
// replayed against a different target or ciphertext.
func deriveReseedSeeds(rk []byte, target uint32, pqCt, pqEpochSS []byte) (seedAtoB, seedBtoA []byte, err error) {
	ctx := make([]byte, 0, len(constants.DomSCKACtxt)+4+32+len(pqEpochSS))
	ctx = append(ctx, []byte(constants.DomSCKACtxt)...)
	ctx = appendUint32(ctx, target)
	ctx = append(ctx, qcrypto.First32(qcrypto.H(pqCt))...)
	ctx = append(ctx, pqEpochSS...)

	seedAtoB, err = qcrypto.K(rk, constants.DomPQSeedAtoB, ctx, constants.RootKeySize)
	if err != nil {
		return nil, nil, err
	}
	seedBtoA, err = qcrypto.K(rk, constants.DomPQSeedBtoA, ctx, constants.RootKeySize)
	if err != nil {
		return nil, nil, err
	}
	return seedAtoB, seedBtoA, nil
}

func appendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
