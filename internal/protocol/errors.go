package protocol

import "errors"

// ParseError is a rejected command line. Code is the ERR_* response sent to
// the operator.
type ParseError struct {
	Code string
	msg  string
}

func (e *ParseError) Error() string { return e.msg }

var (
	ErrUnknownCommand   = &ParseError{Code: "ERR_UNKNOWN_COMMAND", msg: "unknown command"}
	ErrMissingParameter = &ParseError{Code: "ERR_MISSING_PARAMETER", msg: "missing parameter"}
	ErrBadParameter     = &ParseError{Code: "ERR_BAD_PARAMETER", msg: "malformed parameter"}
	ErrLineTooLong      = &ParseError{Code: "ERR_LINE_TOO_LONG", msg: "command line too long"}
)

// Response returns the ERR_* code for err, or ERR_UNKNOWN_COMMAND when err
// is not a ParseError.
func Response(err error) string {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrUnknownCommand.Code
}
