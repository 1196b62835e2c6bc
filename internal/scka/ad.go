package scka

import (
	"github.com/qsproto/qsp-core/internal/constants"
	"github.com/qsproto/qsp-core/internal/qcrypto"
)

func putUint16(b []byte, v uint16) []byte { return append(b, byte(v>>8), byte(v)) }
func putUint32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// pqPrefix encodes pq_target_id ‖ pq_ct, or nil for a non-boundary message.
func pqPrefix(boundary bool, target uint32, pqCt []byte) []byte {
	if !boundary {
		return nil
	}
	out := make([]byte, 0, 4+len(pqCt))
	out = putUint32(out, target)
	out = append(out, pqCt...)
	return out
}

// pqBind computes pq_bind = first_32(H("QSP5.0/PQBIND" ‖ flags ‖ pq_prefix))
// (spec §4.5.2), with flags and the (explicitly length-encoded) pq_prefix
// folded into a single hashed input.
func pqBind(flags uint16, prefix []byte) []byte {
	in := make([]byte, 0, len(constants.DomPQBind)+2+4+len(prefix))
	in = append(in, []byte(constants.DomPQBind)...)
	in = putUint16(in, flags)
	in = putUint32(in, uint32(len(prefix)))
	in = append(in, prefix...)
	return qcrypto.First32(qcrypto.H(in))
}

// adHeader' builds AD_hdr' = session_id ‖ pv ‖ sid ‖ dh_pub ‖ flags ‖ pq_bind.
func adHeaderPrime(sessionID []byte, pv, sid uint16, dhPub []byte, flags uint16, bind []byte) []byte {
	out := make([]byte, 0, len(sessionID)+4+len(dhPub)+2+len(bind))
	out = append(out, sessionID...)
	out = putUint16(out, pv)
	out = putUint16(out, sid)
	out = append(out, dhPub...)
	out = putUint16(out, flags)
	out = append(out, bind...)
	return out
}

// adBody' builds AD_body' = session_id ‖ pv ‖ sid ‖ pq_bind.
func adBodyPrime(sessionID []byte, pv, sid uint16, bind []byte) []byte {
	out := make([]byte, 0, len(sessionID)+4+len(bind))
	out = append(out, sessionID...)
	out = putUint16(out, pv)
	out = putUint16(out, sid)
	out = append(out, bind...)
	return out
}

// messageNonce derives the single nonce a Suite-2 message's header and
// body AEAD calls both draw from (see constants.DomS2Nonce).
func messageNonce(sessionID, dhPub []byte, n uint32) []byte {
	in := make([]byte, 0, len(constants.DomS2Nonce)+len(sessionID)+len(dhPub)+4)
	in = append(in, []byte(constants.DomS2Nonce)...)
	in = append(in, sessionID...)
	in = append(in, dhPub...)
	in = putUint32(in, n)
	return qcrypto.First12(qcrypto.H(in))
}

func encodeHeaderPlaintext(pn, n uint32) []byte {
	out := make([]byte, 0, 8)
	out = putUint32(out, pn)
	out = putUint32(out, n)
	return out
}

func decodeHeaderPlaintext(b []byte) (pn, n uint32) {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]),
		uint32(b[4])<<24 | uint32(b[5])<<16 | uint32(b[6])<<8 | uint32(b[7])
}
