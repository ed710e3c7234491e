// Package cil defines the target stack machine: its types, instructions and
// instruction fragments. The instruction set mirrors ECMA-335 CIL closely
// enough to be assembled by ilasm once temporaries are realized.
package cil

import (
	"strconv"
	"strings"
)

// Type is the interface for all target types
type Type interface {
	implType()
	String() string
}

// Signedness represents signed/unsigned for integer types
type Signedness int

const (
	Signed Signedness = iota
	Unsigned
)

func (s Signedness) String() string {
	if s == Signed {
		return "signed"
	}
	return "unsigned"
}

// IntSize represents the width of integer types
type IntSize int

const (
	I8 IntSize = iota
	I16
	I32
	I64
	I128
)

func (s IntSize) String() string {
	names := []string{"8", "16", "32", "64", "128"}
	if s >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "?"
}

// Bits returns the width in bits.
func (s IntSize) Bits() int {
	return 8 << uint(s)
}

// Tint is an integer type. I8 through I64 are native to the machine; I128
// is only a logical type and has no arithmetic instructions.
type Tint struct {
	Size IntSize
	Sign Signedness
}

// Tbool is the boolean type. On the evaluation stack it is an int32 0 or 1.
type Tbool struct{}

// Tstruct is a value type (or class) referenced by name.
type Tstruct struct {
	Ref *TypeRef
}

// Tgeneric refers to the generic parameter of the enclosing type, as used by
// field descriptors of generic instances (!0, !1, ...).
type Tgeneric struct {
	Index int
}

// TypeRef names a type defined outside the method being emitted.
type TypeRef struct {
	Assembly  string // empty for the current module
	Name      string // namespace-qualified name, with arity suffix for generics
	Generics  []Type
	ValueType bool
}

// Marker methods for Type interface
func (Tint) implType()     {}
func (Tbool) implType()    {}
func (Tstruct) implType()  {}
func (Tgeneric) implType() {}

func (t Tint) String() string {
	prefix := "i"
	if t.Sign == Unsigned {
		prefix = "u"
	}
	return prefix + t.Size.String()
}

func (Tbool) String() string { return "bool" }

func (t Tstruct) String() string {
	if t.Ref == nil {
		return "valuetype ?"
	}
	return t.Ref.String()
}

func (t Tgeneric) String() string {
	return "!" + strconv.Itoa(t.Index)
}

func (r *TypeRef) String() string {
	var sb strings.Builder
	if r.ValueType {
		sb.WriteString("valuetype ")
	} else {
		sb.WriteString("class ")
	}
	if r.Assembly != "" {
		sb.WriteString("[" + r.Assembly + "]")
	}
	sb.WriteString(r.Name)
	if len(r.Generics) > 0 {
		sb.WriteString("<")
		for i, g := range r.Generics {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(g.String())
		}
		sb.WriteString(">")
	}
	return sb.String()
}

// Common type constructors

func Int8() Type   { return Tint{Size: I8, Sign: Signed} }
func UInt8() Type  { return Tint{Size: I8, Sign: Unsigned} }
func Int16() Type  { return Tint{Size: I16, Sign: Signed} }
func UInt16() Type { return Tint{Size: I16, Sign: Unsigned} }
func Int32() Type  { return Tint{Size: I32, Sign: Signed} }
func UInt32() Type { return Tint{Size: I32, Sign: Unsigned} }
func Int64() Type  { return Tint{Size: I64, Sign: Signed} }
func UInt64() Type { return Tint{Size: I64, Sign: Unsigned} }
func Bool() Type   { return Tbool{} }

// NativeInts lists the eight integer types the machine computes on directly.
var NativeInts = []Tint{
	{I8, Signed}, {I8, Unsigned},
	{I16, Signed}, {I16, Unsigned},
	{I32, Signed}, {I32, Unsigned},
	{I64, Signed}, {I64, Unsigned},
}

// IsNative reports whether t has arithmetic instructions on the machine.
func (t Tint) IsNative() bool {
	return t.Size <= I64
}

// Double returns the integer type of twice the width and same signedness.
// ok is false for I128.
func (t Tint) Double() (Tint, bool) {
	if t.Size >= I128 {
		return t, false
	}
	return Tint{Size: t.Size + 1, Sign: t.Sign}, true
}

// StackWide reports whether values of t occupy an int64 stack entry.
func (t Tint) StackWide() bool {
	return t.Size == I64
}

// MaxValue returns the largest value representable in t, as raw 64-bit
// pattern. Only valid for native widths.
func MaxValue(t Tint) uint64 {
	bits := t.Size.Bits()
	if t.Sign == Unsigned {
		if bits == 64 {
			return ^uint64(0)
		}
		return 1<<uint(bits) - 1
	}
	return 1<<uint(bits-1) - 1
}

// MinValue returns the smallest value representable in t.
// Only valid for native widths.
func MinValue(t Tint) int64 {
	if t.Sign == Unsigned {
		return 0
	}
	return -1 << uint(t.Size.Bits()-1)
}

// SignMask returns the mask selecting the sign bit of t, as raw pattern.
func SignMask(t Tint) uint64 {
	return 1 << uint(t.Size.Bits()-1)
}

// System types used by the backend.
var (
	Int128Ref  = &TypeRef{Assembly: "System.Runtime", Name: "System.Int128", ValueType: true}
	UInt128Ref = &TypeRef{Assembly: "System.Runtime", Name: "System.UInt128", ValueType: true}
)

// ValueTupleName is the metadata name of the two element value tuple.
const ValueTupleName = "System.ValueTuple`2"

// Tuple returns the System.ValueTuple instance with the given elements.
func Tuple(elems ...Type) Type {
	return Tstruct{Ref: &TypeRef{
		Assembly:  "System.Runtime",
		Name:      "System.ValueTuple`" + strconv.Itoa(len(elems)),
		Generics:  elems,
		ValueType: true,
	}}
}

// Equal checks if two types are equal
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	switch ta := a.(type) {
	case Tint:
		tb, ok := b.(Tint)
		return ok && ta == tb
	case Tbool:
		_, ok := b.(Tbool)
		return ok
	case Tgeneric:
		tb, ok := b.(Tgeneric)
		return ok && ta.Index == tb.Index
	case Tstruct:
		tb, ok := b.(Tstruct)
		if !ok {
			return false
		}
		return refEqual(ta.Ref, tb.Ref)
	}
	return false
}

func refEqual(a, b *TypeRef) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Assembly != b.Assembly || a.Name != b.Name || a.ValueType != b.ValueType {
		return false
	}
	if len(a.Generics) != len(b.Generics) {
		return false
	}
	for i := range a.Generics {
		if !Equal(a.Generics[i], b.Generics[i]) {
			return false
		}
	}
	return true
}
