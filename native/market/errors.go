package market

import (
	"errors"
	"fmt"
)

// Error wraps a marketplace failure with the stable numeric code surfaced to
// callers. Every error aborts the enclosing invocation; the surrounding
// harness discards all buffered state writes when an operation returns one.
type Error struct {
	Code uint16
	msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("market: %s (code %d)", e.msg, e.Code) }

func newError(code uint16, msg string) *Error { return &Error{Code: code, msg: msg} }

var (
	// Accounting errors.
	ErrInsufficientBalance   = newError(0, "insufficient balance")
	ErrInsufficientAllowance = newError(1, "insufficient allowance")

	// Authorization and validation errors.
	ErrPermissionDenied = newError(41, "permission denied")
	ErrNotApproved      = newError(42, "marketplace not approved as spender")
	ErrNotOwner         = newError(43, "marketplace did not receive token custody")
	ErrNotOrderMaker    = newError(44, "caller is not the order maker")
	ErrNotValidAmount   = newError(45, "amount does not match order price")
	ErrBidExist         = newError(46, "identical bid already exists")
	ErrOrderExist       = newError(47, "active order already exists for token")
	ErrOrderNotExist    = newError(48, "no active order for token")
	ErrOfferNotExist    = newError(49, "no offer for token")

	// Contract integrity errors.
	ErrInvalidContext   = newError(90, "invalid caller context")
	ErrKeyAlreadyExists = newError(91, "storage key already exists")
	ErrKeyMismatch      = newError(92, "storage key mismatch")
	ErrOverflow         = newError(93, "arithmetic overflow")
)

// ErrorCode extracts the numeric marketplace code from err, reporting ok=false
// for errors that did not originate in this package.
func ErrorCode(err error) (uint16, bool) {
	var me *Error
	if errors.As(err, &me) {
		return me.Code, true
	}
	return 0, false
}
