// Package mir defines the mid-level input IR: functions made of
// assignments whose right-hand sides are operands, checked binary
// operations or unary operations. Local _0 conventionally holds the
// return value.
package mir

import (
	"strconv"
	"strings"
)

// Ty is the interface for MIR types
type Ty interface {
	implTy()
	String() string
}

// TInt is an integer type of 8, 16, 32, 64 or 128 bits.
type TInt struct {
	Bits   int
	Signed bool
}

// TBool is the boolean type.
type TBool struct{}

// TTuple is an anonymous tuple, used for checked operation results.
type TTuple struct {
	Elems []Ty
}

func (TInt) implTy()   {}
func (TBool) implTy()  {}
func (TTuple) implTy() {}

func (t TInt) String() string {
	if t.Signed {
		return "i" + strconv.Itoa(t.Bits)
	}
	return "u" + strconv.Itoa(t.Bits)
}

func (TBool) String() string { return "bool" }

func (t TTuple) String() string {
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// TyEqual checks if two types are equal
func TyEqual(a, b Ty) bool {
	switch ta := a.(type) {
	case TInt:
		tb, ok := b.(TInt)
		return ok && ta == tb
	case TBool:
		_, ok := b.(TBool)
		return ok
	case TTuple:
		tb, ok := b.(TTuple)
		if !ok || len(ta.Elems) != len(tb.Elems) {
			return false
		}
		for i := range ta.Elems {
			if !TyEqual(ta.Elems[i], tb.Elems[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// --- Operands ---

// Operand is the interface for values read by an rvalue
type Operand interface {
	implOperand()
	String() string
}

// Copy reads local _Local.
type Copy struct {
	Local int
}

// Arg reads parameter argIndex.
type Arg struct {
	Index int
}

// Const is a literal. Value holds the bit pattern; unsigned 64-bit values
// above MaxInt64 are stored wrapped.
type Const struct {
	Ty    Ty
	Value int64
}

func (Copy) implOperand()  {}
func (Arg) implOperand()   {}
func (Const) implOperand() {}

func (o Copy) String() string { return "_" + strconv.Itoa(o.Local) }
func (o Arg) String() string  { return "arg" + strconv.Itoa(o.Index) }

func (o Const) String() string {
	switch t := o.Ty.(type) {
	case TBool:
		return strconv.FormatBool(o.Value != 0)
	case TInt:
		if t.Signed {
			return strconv.FormatInt(o.Value, 10) + "_" + t.String()
		}
		return strconv.FormatUint(uint64(o.Value), 10) + "_" + t.String()
	}
	return "?"
}

// --- Rvalues ---

// Rvalue is the interface for the right-hand side of an assignment
type Rvalue interface {
	implRvalue()
}

// BinOp is a checked binary operator
type BinOp int

const (
	Add BinOp = iota
	Sub
	Mul
)

func (op BinOp) String() string {
	names := []string{"add", "sub", "mul"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// UnOp is a unary operator
type UnOp int

const (
	Neg UnOp = iota
	Not
)

func (op UnOp) String() string {
	if op == Neg {
		return "neg"
	}
	return "not"
}

// Use copies an operand.
type Use struct {
	Arg Operand
}

// CheckedBinary computes Left Op Right and yields (result, overflowed).
type CheckedBinary struct {
	Op          BinOp
	Left, Right Operand
}

// Unary applies Op to Arg.
type Unary struct {
	Op  UnOp
	Arg Operand
}

func (Use) implRvalue()           {}
func (CheckedBinary) implRvalue() {}
func (Unary) implRvalue()         {}

// Assign stores Value into local _Dest.
type Assign struct {
	Dest  int
	Value Rvalue
}

// Function is a straight-line MIR function.
type Function struct {
	Name   string
	Params []Ty
	Locals []Ty // indexed by local number
	Body   []Assign
	Result int // local returned at the end
}

// ReturnType is the type of the returned local.
func (f *Function) ReturnType() Ty {
	if f.Result < 0 || f.Result >= len(f.Locals) {
		return nil
	}
	return f.Locals[f.Result]
}

// Module is a compilation unit.
type Module struct {
	Functions []*Function
}

// Function finds a function by name.
func (m *Module) Function(name string) (*Function, bool) {
	for _, f := range m.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}
