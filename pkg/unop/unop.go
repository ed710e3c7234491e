// Package unop lowers unary negation and complement.
package unop

import (
	"fmt"

	"github.com/raymyers/ralph-cil/pkg/checked"
	"github.com/raymyers/ralph-cil/pkg/cil"
	"github.com/raymyers/ralph-cil/pkg/wideint"
)

// Op is a unary operation
type Op int

const (
	Neg Op = iota
	Not
)

func (op Op) String() string {
	if op == Neg {
		return "neg"
	}
	return "not"
}

// UnsupportedError names a unary operation with no lowering. It matches
// checked.ErrUnsupportedOperation.
type UnsupportedError struct {
	Op   Op
	Type cil.Type
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s on %v is not supported", e.Op, e.Type)
}

func (e *UnsupportedError) Unwrap() error { return checked.ErrUnsupportedOperation }

// Lower emits a and then op applied to it. a.Type is the logical type: 128-bit
// integers are Tint{Size: I128} even though their storage is the
// provider's value type.
func Lower(op Op, a checked.Operand, wide wideint.Provider) (cil.Fragment, error) {
	f, err := Emit(op, a.Type, wide)
	if err != nil {
		return cil.Fragment{}, err
	}
	return cil.Concat(a.Code, f), nil
}

// Emit returns the fragment applying op to the value of type t on top of
// the stack.
func Emit(op Op, t cil.Type, wide wideint.Provider) (cil.Fragment, error) {
	switch tt := t.(type) {
	case cil.Tbool:
		if op == Not {
			// No boolean negate instruction: compare with zero.
			return cil.NewFragment(cil.LdcI32{Value: 0}, cil.Ceq{}), nil
		}
	case cil.Tint:
		if tt.IsNative() {
			return native(op, tt), nil
		}
		if op == Neg && tt.Sign == cil.Unsigned {
			break
		}
		if wide == nil {
			return cil.Fragment{}, fmt.Errorf("%s on %v: %w: no 128-bit integer provider", op, t, wideint.ErrUnsupportedTargetFeature)
		}
		if op == Neg {
			return wide.Neg(tt.Sign), nil
		}
		return wide.Not(tt.Sign), nil
	}
	return cil.Fragment{}, &UnsupportedError{Op: op, Type: t}
}

func native(op Op, t cil.Tint) cil.Fragment {
	var in cil.Instr = cil.Not{}
	if op == Neg {
		in = cil.Neg{}
	}
	if t.Size < cil.I32 {
		return cil.NewFragment(in, cil.Conv{To: t})
	}
	return cil.NewFragment(in)
}
