// Package checked lowers overflow-checked integer arithmetic to the stack
// machine. Every operation leaves a (value, overflow) pair on the stack,
// built from unchecked instructions and temporary slots.
package checked

import (
	"fmt"

	"github.com/raymyers/ralph-cil/pkg/cil"
	"github.com/raymyers/ralph-cil/pkg/slots"
	"github.com/raymyers/ralph-cil/pkg/wideint"
)

// BinOp is a checked binary operation
type BinOp int

const (
	Add BinOp = iota
	Sub
	Mul
	numOps
)

func (op BinOp) String() string {
	names := []string{"add", "sub", "mul"}
	if op >= 0 && int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// Strategy identifies how an operation is lowered.
type Strategy int

const (
	Unsupported Strategy = iota
	// Promote computes in the native type of twice the width and compares
	// against the operand type's range.
	Promote
	// MaskUnsigned detects carry with sum < (a | b).
	MaskUnsigned
	// MaskSigned detects overflow from the sign bits of the operands and
	// the sum.
	MaskSigned
	// Wide promotes through the 128-bit provider.
	Wide
)

func (s Strategy) String() string {
	names := []string{"unsupported", "promote", "mask-unsigned", "mask-signed", "wide"}
	if s >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "?"
}

// Entry describes the lowering of one (operation, type) pair.
type Entry struct {
	Strategy Strategy
	Promoted cil.Tint // only for Promote
}

// promote widens an operand of the given size and sign to the next size.
func promote(size cil.IntSize, sign cil.Signedness) Entry {
	wider, _ := cil.Tint{Size: size, Sign: sign}.Double()
	return Entry{Strategy: Promote, Promoted: wider}
}

var (
	maskUnsigned = Entry{Strategy: MaskUnsigned}
	maskSigned   = Entry{Strategy: MaskSigned}
	wide         = Entry{Strategy: Wide}
)

// Table columns, ordered by size then signedness.
const (
	colI8 = iota
	colU8
	colI16
	colU16
	colI32
	colU32
	colI64
	colU64
	numTypes
)

// typeIndex positions a native integer in the dispatch table.
func typeIndex(t cil.Tint) int {
	i := int(t.Size) * 2
	if t.Sign == cil.Unsigned {
		i++
	}
	return i
}

// table lists every lowering. Cells left empty are unsupported: multiply
// above 8 bits has no lowering yet.
var table = [numOps][numTypes]Entry{
	Add: {
		colI8:  maskSigned,
		colU8:  maskUnsigned,
		colI16: promote(cil.I16, cil.Signed),
		colU16: maskUnsigned,
		colI32: promote(cil.I32, cil.Signed),
		colU32: maskUnsigned,
		colI64: wide,
		colU64: maskUnsigned,
	},
	Sub: {
		colI8:  promote(cil.I8, cil.Signed),
		colU8:  promote(cil.I8, cil.Unsigned),
		colI16: promote(cil.I16, cil.Signed),
		colU16: promote(cil.I16, cil.Unsigned),
		colI32: promote(cil.I32, cil.Signed),
		colU32: promote(cil.I32, cil.Unsigned),
		colI64: wide,
		colU64: wide,
	},
	Mul: {
		colI8: promote(cil.I8, cil.Signed),
		colU8: promote(cil.I8, cil.Unsigned),
	},
}

// Lookup returns the table entry for op on t.
func Lookup(op BinOp, t cil.Type) (Entry, error) {
	it, ok := t.(cil.Tint)
	if !ok || !it.IsNative() || op < 0 || op >= numOps {
		return Entry{}, &UnsupportedError{Op: op, Type: t}
	}
	e := table[op][typeIndex(it)]
	if e.Strategy == Unsupported {
		return Entry{}, &UnsupportedError{Op: op, Type: t}
	}
	return e, nil
}

// Operand is an operand already lowered by the caller.
type Operand struct {
	Code cil.Fragment
	Type cil.Type
}

// Lowerer emits checked operations. The zero value lowers everything
// except operations that need 128-bit integers.
type Lowerer struct {
	Wide wideint.Provider
}

// NewLowerer creates a lowerer using wide for the 64-bit escape path. wide
// may be nil when the target has no 128-bit integers.
func NewLowerer(wide wideint.Provider) *Lowerer {
	return &Lowerer{Wide: wide}
}

// Lower emits a, then b, then the checked operation. The result leaves one
// (value, overflow) pair on the stack and no live temporaries.
func (l *Lowerer) Lower(op BinOp, a, b Operand) (cil.Fragment, error) {
	if !cil.Equal(a.Type, b.Type) {
		return cil.Fragment{}, &MismatchError{Op: op, Left: a.Type, Right: b.Type}
	}
	f, err := l.Emit(op, a.Type)
	if err != nil {
		return cil.Fragment{}, err
	}
	return cil.Concat(a.Code, b.Code, f), nil
}

// Emit returns the fragment that consumes two values of type t from the
// stack and pushes their checked result pair.
func (l *Lowerer) Emit(op BinOp, t cil.Type) (cil.Fragment, error) {
	e, err := Lookup(op, t)
	if err != nil {
		return cil.Fragment{}, err
	}
	it := t.(cil.Tint)

	switch e.Strategy {
	case Promote:
		return Promoted(op, it, e.Promoted)
	case MaskUnsigned:
		return UnsignedMaskAdd(it)
	case MaskSigned:
		return SignedMaskAdd(it)
	case Wide:
		if l.Wide == nil {
			return cil.Fragment{}, fmt.Errorf("checked %s on %v: %w: no 128-bit integer provider", op, t, wideint.ErrUnsupportedTargetFeature)
		}
		return WidePromoted(l.Wide, op, it)
	}
	return cil.Fragment{}, &UnsupportedError{Op: op, Type: t}
}

// nativeOp returns the unchecked instruction for op.
func nativeOp(op BinOp) cil.Instr {
	switch op {
	case Add:
		return cil.Add{}
	case Sub:
		return cil.Sub{}
	}
	return cil.Mul{}
}

// finish returns the fragment built on s.
func finish(s *slots.Stack) (cil.Fragment, error) {
	f, err := s.Fragment()
	if err != nil {
		return cil.Fragment{}, fmt.Errorf("checked lowering: %w", err)
	}
	return f, nil
}
