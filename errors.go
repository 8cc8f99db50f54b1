package deltatrail

import (
	"errors"
	"fmt"
)

// Phases reported by Error.Op.
const (
	OpFlatten = "flatten"
	OpEncode  = "encode"
	OpDecode  = "decode"
	OpBlob    = "blob"
	OpLock    = "lock"
)

// ErrInvalidOperation is returned by ParseOperation for an unknown kind.
var ErrInvalidOperation = errors.New("deltatrail: invalid operation")

// Error identifies the phase in which a Tracker call failed. The cause is
// one of *delta.KeyCollisionError, *auditlog.DecodeError,
// *blob.UnavailableError or a lock error, reachable with errors.As.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("deltatrail: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
