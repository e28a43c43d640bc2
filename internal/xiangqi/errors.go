package xiangqi

import "fmt"

type staticErr string

func (e staticErr) Error() string { return string(e) }

var (
	ErrIllegalMove  error = staticErr("illegal move")
	ErrHistoryEmpty error = staticErr("move history is empty")
	ErrBadNotation  error = staticErr("malformed move notation")
	ErrBadFEN       error = staticErr("malformed FEN")
)

// IllegalMoveError explains why a move was rejected. The board is left untouched.
type IllegalMoveError struct {
	Move   Move
	Reason string
}

func (e *IllegalMoveError) Error() string {
	return fmt.Sprintf("illegal move %s: %s", e.Move, e.Reason)
}

func (e *IllegalMoveError) Unwrap() error { return ErrIllegalMove }

func illegal(mv Move, format string, args ...any) error {
	return &IllegalMoveError{Move: mv, Reason: fmt.Sprintf(format, args...)}
}
