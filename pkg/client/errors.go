package client

import (
	"errors"
	"fmt"

	"github.com/mash-protocol/logrelay/pkg/wire"
)

// Session errors.
var (
	// ErrNoTransport is returned when the session has no Dialer.
	ErrNoTransport = errors.New("session has no transport")

	// ErrRejected is wrapped by every handshake rejection.
	ErrRejected = errors.New("handshake rejected")

	// ErrUnauthorized means the relay refused the channel claim.
	ErrUnauthorized = fmt.Errorf("%w: %s", ErrRejected, wire.RejectUnauthorized)

	// ErrInternal means the relay failed while authorizing.
	ErrInternal = fmt.Errorf("%w: %s", ErrRejected, wire.RejectInternal)

	// ErrUnexpectedFrame is returned when the handshake reply is neither
	// welcome nor reject.
	ErrUnexpectedFrame = errors.New("unexpected frame during handshake")
)

// rejectError maps a reject reason to its sentinel.
func rejectError(reason wire.RejectReason) error {
	switch reason {
	case wire.RejectUnauthorized:
		return ErrUnauthorized
	case wire.RejectInternal:
		return ErrInternal
	default:
		return fmt.Errorf("%w: reason %d", ErrRejected, reason)
	}
}
