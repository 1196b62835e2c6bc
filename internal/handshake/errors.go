package handshake

import qerrors "github.com/qsproto/qsp-core/internal/errors"

var errUntrustedKT = qerrors.NewProtocolError("KTVerifier.Verify", qerrors.ErrSignatureInvalid)
