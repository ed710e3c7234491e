package cilvm

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/cznic/mathutil"
	"github.com/raymyers/ralph-cil/pkg/cil"
)

// Kind is the evaluation stack type of a value.
type Kind int

const (
	KindInt32 Kind = iota
	KindInt64
	KindStruct
	KindAddr
)

func (k Kind) String() string {
	names := []string{"int32", "int64", "struct", "addr"}
	if k >= 0 && int(k) < len(names) {
		return names[k]
	}
	return "?"
}

// Value is an evaluation stack entry or the content of a storage cell.
// int32 entries hold their bits sign-extended in Bits.
type Value struct {
	Kind Kind
	Bits int64
	Obj  *Object
	Ref  *Value
}

// Object is the payload of a value type instance. 128-bit integers keep
// their bits in Wide; other structs use Fields.
type Object struct {
	Type   cil.Type
	Fields map[string]Value
	Wide   mathutil.Int128
}

func I32(v int32) Value { return Value{Kind: KindInt32, Bits: int64(v)} }
func I64(v int64) Value { return Value{Kind: KindInt64, Bits: v} }

// Bool returns the stack form of b.
func Bool(b bool) Value {
	if b {
		return I32(1)
	}
	return I32(0)
}

// Int returns x truncated to t in its stack form.
func Int(t cil.Tint, x int64) Value {
	switch t.Size {
	case cil.I8:
		if t.Sign == cil.Signed {
			return I32(int32(int8(x)))
		}
		return I32(int32(uint8(x)))
	case cil.I16:
		if t.Sign == cil.Signed {
			return I32(int32(int16(x)))
		}
		return I32(int32(uint16(x)))
	case cil.I32:
		return I32(int32(x))
	}
	return I64(x)
}

// Wide returns an instance of the 128-bit type t.
func Wide(t cil.Type, x mathutil.Int128) Value {
	return Value{Kind: KindStruct, Obj: &Object{Type: t, Wide: x}}
}

// Uint returns the bits of v as an unsigned integer of type t.
func Uint(t cil.Tint, v Value) uint64 {
	if t.Size >= cil.I64 {
		return uint64(v.Bits)
	}
	return uint64(v.Bits) & (1<<uint(t.Size.Bits()) - 1)
}

// Field returns the named field of a struct value.
func (v Value) Field(name string) Value {
	if v.Obj == nil {
		return Value{}
	}
	return v.Obj.Fields[name]
}

// Truth reports whether an int32 value is non-zero.
func (v Value) Truth() bool {
	return v.Bits != 0
}

func (v Value) copy() Value {
	if v.Kind != KindStruct || v.Obj == nil {
		return v
	}
	o := &Object{Type: v.Obj.Type, Wide: v.Obj.Wide}
	if v.Obj.Fields != nil {
		o.Fields = make(map[string]Value, len(v.Obj.Fields))
		for k, f := range v.Obj.Fields {
			o.Fields[k] = f.copy()
		}
	}
	return Value{Kind: KindStruct, Obj: o}
}

// Zero returns the default value of t.
func Zero(t cil.Type) Value {
	switch tt := t.(type) {
	case cil.Tint:
		if tt.StackWide() {
			return I64(0)
		}
		return I32(0)
	case cil.Tbool:
		return I32(0)
	case cil.Tstruct:
		o := &Object{Type: t, Fields: map[string]Value{}}
		if tt.Ref != nil {
			for i, g := range tt.Ref.Generics {
				o.Fields["Item"+strconv.Itoa(i+1)] = Zero(g)
			}
		}
		return Value{Kind: KindStruct, Obj: o}
	}
	return Value{}
}

// coerce converts v to the storage form of t, truncating narrow integers.
func coerce(t cil.Type, v Value) (Value, error) {
	switch tt := t.(type) {
	case cil.Tint:
		if v.Kind != KindInt32 && v.Kind != KindInt64 {
			return Value{}, fmt.Errorf("cannot store %s as %s", v.Kind, t)
		}
		if tt.StackWide() != (v.Kind == KindInt64) {
			return Value{}, fmt.Errorf("cannot store %s as %s", v.Kind, t)
		}
		return Int(tt, v.Bits), nil
	case cil.Tbool:
		if v.Kind != KindInt32 {
			return Value{}, fmt.Errorf("cannot store %s as bool", v.Kind)
		}
		return I32(int32(uint8(v.Bits))), nil
	case cil.Tstruct:
		if v.Kind != KindStruct || !cil.Equal(v.Obj.Type, t) {
			return Value{}, fmt.Errorf("cannot store %s as %s", describe(v), t)
		}
		return v.copy(), nil
	}
	return Value{}, fmt.Errorf("cannot store into %v", t)
}

func describe(v Value) string {
	if v.Kind == KindStruct && v.Obj != nil {
		return v.Obj.Type.String()
	}
	return v.Kind.String()
}

// Format renders v as a value of type t.
func Format(t cil.Type, v Value) string {
	switch tt := t.(type) {
	case cil.Tint:
		if tt.Sign == cil.Unsigned {
			return strconv.FormatUint(Uint(tt, v), 10)
		}
		return strconv.FormatInt(v.Bits, 10)
	case cil.Tbool:
		return strconv.FormatBool(v.Truth())
	case cil.Tstruct:
		if v.Obj == nil {
			return "<nil>"
		}
		if sign, ok := wideSign(tt); ok {
			return formatWide(v.Obj.Wide, sign)
		}
		if tt.Ref == nil || len(tt.Ref.Generics) == 0 {
			return tt.String()
		}
		parts := make([]string, len(tt.Ref.Generics))
		for i, g := range tt.Ref.Generics {
			parts[i] = Format(g, v.Field("Item"+strconv.Itoa(i+1)))
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
	return "?"
}

func formatWide(x mathutil.Int128, sign cil.Signedness) string {
	n := x.BigInt()
	if sign == cil.Unsigned && n.Sign() < 0 {
		n.Add(n, two128)
	}
	return n.String()
}

// Parse reads a literal of integer or bool type t. 128-bit integers are
// accepted in the storage form of either provider.
func Parse(t cil.Type, s string) (Value, error) {
	switch tt := t.(type) {
	case cil.Tint:
		if !tt.IsNative() {
			break
		}
		bits := tt.Size.Bits()
		if tt.Sign == cil.Unsigned {
			u, err := strconv.ParseUint(s, 0, bits)
			if err != nil {
				return Value{}, fmt.Errorf("parse %s: %w", t, err)
			}
			return Int(tt, int64(u)), nil
		}
		n, err := strconv.ParseInt(s, 0, bits)
		if err != nil {
			return Value{}, fmt.Errorf("parse %s: %w", t, err)
		}
		return Int(tt, n), nil
	case cil.Tbool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Value{}, fmt.Errorf("parse bool: %w", err)
		}
		return Bool(b), nil
	case cil.Tstruct:
		sign, ok := wideSign(tt)
		if !ok {
			break
		}
		x, err := parseWide(s, sign)
		if err != nil {
			return Value{}, fmt.Errorf("parse %s: %w", t, err)
		}
		return Wide(t, x), nil
	}
	return Value{}, fmt.Errorf("cannot parse a literal of type %v", t)
}

var (
	two128  = new(big.Int).Lsh(big.NewInt(1), 128)
	mask64  = new(big.Int).SetUint64(^uint64(0))
	wideMin = map[cil.Signedness]*big.Int{
		cil.Signed:   new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127)),
		cil.Unsigned: new(big.Int),
	}
	wideMax = map[cil.Signedness]*big.Int{
		cil.Signed:   new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1)),
		cil.Unsigned: new(big.Int).Sub(two128, big.NewInt(1)),
	}
)

// parseWide reads a 128-bit integer literal and returns its two's
// complement bits.
func parseWide(s string, sign cil.Signedness) (mathutil.Int128, error) {
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return mathutil.Int128{}, fmt.Errorf("invalid syntax %q", s)
	}
	if n.Cmp(wideMin[sign]) < 0 || n.Cmp(wideMax[sign]) > 0 {
		return mathutil.Int128{}, fmt.Errorf("value out of range %q", s)
	}
	if n.Sign() < 0 {
		n.Add(n, two128)
	}
	lo := new(big.Int).And(n, mask64).Uint64()
	hi := new(big.Int).Rsh(n, 64).Uint64()
	return mathutil.Int128{Lo: int64(lo), Hi: int64(hi)}, nil
}
