package table

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error wraps a return code and a message. Two errors match under errors.Is
// when their codes are equal, so callers can test against the sentinels below.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("TableError (code %s): %s", e.Code, e.Msg)
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess       RetCode = iota // 0: Operation succeeded.
	RetCConfiguration                // 1: Operation not allowed in the table's configuration or lifecycle state.
	RetCExists                       // 2: Key is already present.
	RetCNotFound                     // 3: Key is not present.
	RetCBusy                         // 4: Table still holds live entries.
	RetCNoMemory                     // 5: The allocator refused the request.
	RetCNoSection                    // 6: Release without a matching open read section.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCConfiguration:
		return "Configuration"
	case RetCExists:
		return "Exists"
	case RetCNotFound:
		return "NotFound"
	case RetCBusy:
		return "Busy"
	case RetCNoMemory:
		return "NoMemory"
	case RetCNoSection:
		return "NoSection"
	default:
		return "Unknown"
	}
}

// Sentinels for errors.Is. ErrPurging and ErrDestroyed share RetCConfiguration
// and therefore match each other.
var (
	ErrExists    = NewError(RetCExists, "key already exists")
	ErrNotFound  = NewError(RetCNotFound, "key not found")
	ErrBusy      = NewError(RetCBusy, "entries still present")
	ErrPurging   = NewError(RetCConfiguration, "table is being destroyed")
	ErrDestroyed = NewError(RetCConfiguration, "table is destroyed")
	ErrNoMemory  = NewError(RetCNoMemory, "allocation failed")
	ErrNoSection = NewError(RetCNoSection, "no open read section")
)
