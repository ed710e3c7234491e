package checked

import (
	"errors"
	"fmt"

	"github.com/raymyers/ralph-cil/pkg/cil"
)

var (
	// ErrUnsupportedOperation indicates there is no lowering for an
	// (operation, type) pair.
	ErrUnsupportedOperation = errors.New("unsupported checked operation")

	// ErrTypeMismatch indicates the two operands resolved to different types.
	ErrTypeMismatch = errors.New("checked operand type mismatch")
)

// UnsupportedError names the operation and type that have no lowering.
type UnsupportedError struct {
	Op   BinOp
	Type cil.Type
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("checked %s on %v is not yet supported", e.Op, e.Type)
}

func (e *UnsupportedError) Unwrap() error { return ErrUnsupportedOperation }

// MismatchError reports the operand types of a mismatched operation.
type MismatchError struct {
	Op          BinOp
	Left, Right cil.Type
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("checked %s: operands have types %v and %v", e.Op, e.Left, e.Right)
}

func (e *MismatchError) Unwrap() error { return ErrTypeMismatch }
