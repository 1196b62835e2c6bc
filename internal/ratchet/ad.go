// ad.go builds the associated-data strings and nonce derivation of §4.4.2.
package ratchet

import (
	"encoding/binary"

	"github.com/qsproto/qsp-core/internal/constants"
	"github.com/qsproto/qsp-core/internal/qcrypto"
)

// adHeader returns AD_hdr = session_id || protocol_version || suite_id ||
// dh_pub || flags.
func adHeader(sessionID []byte, pv, sid uint16, dhPub []byte, flags uint16) []byte {
	out := make([]byte, 0, len(sessionID)+2+2+len(dhPub)+2)
	out = append(out, sessionID...)
	out = appendUint16(out, pv)
	out = appendUint16(out, sid)
	out = append(out, dhPub...)
	out = appendUint16(out, flags)
	return out
}

// adBody returns AD_body = session_id || protocol_version || suite_id.
func adBody(sessionID []byte, pv, sid uint16) []byte {
	out := make([]byte, 0, len(sessionID)+4)
	out = append(out, sessionID...)
	out = appendUint16(out, pv)
	out = appendUint16(out, sid)
	return out
}

// nonceBody derives nonce_body = first_12(H("QSP4.3/BODY-NONCE" || session_id
// || dh_pub || n)).
func nonceBody(sessionID, dhPub []byte, n uint32) []byte {
	var nb [4]byte
	binary.BigEndian.PutUint32(nb[:], n)
	material := qcrypto.H([]byte(constants.DomBodyNonce), sessionID, dhPub, nb[:])
	return qcrypto.First12(material)
}

func appendUint16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

// encodeHeaderPlaintext packs (pn, n) into the 8-byte header plaintext.
func encodeHeaderPlaintext(pn, n uint32) []byte {
	out := make([]byte, constants.HeaderPlaintextSize)
	binary.BigEndian.PutUint32(out[0:4], pn)
	binary.BigEndian.PutUint32(out[4:8], n)
	return out
}

// decodeHeaderPlaintext unpacks the 8-byte header plaintext into (pn, n).
func decodeHeaderPlaintext(b []byte) (pn, n uint32) {
	return binary.BigEndian.Uint32(b[0:4]), binary.BigEndian.Uint32(b[4:8])
}
