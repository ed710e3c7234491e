// Package wideint provides 128-bit integer operations to the lowering.
// The machine has no 128-bit arithmetic, so every operation is a call into
// a value type supplied either by the runtime (System.Int128) or by the
// support library shipped with the compiler.
package wideint

import (
	"errors"
	"fmt"

	"github.com/raymyers/ralph-cil/pkg/cil"
	"github.com/raymyers/ralph-cil/pkg/target"
)

// ErrUnsupportedTargetFeature is returned when a lowering needs 128-bit
// integers and the target cannot provide them.
var ErrUnsupportedTargetFeature = errors.New("unsupported target feature")

// Provider emits the operations of a 128-bit integer value type. Each
// method returns a fragment with the stack effect of the corresponding
// operator; sign selects the signed or unsigned variant.
type Provider interface {
	// Name identifies the provider in diagnostics.
	Name() string
	// Type is the value type holding a 128-bit integer of the given sign.
	Type(sign cil.Signedness) cil.Type
	// Widen converts a native integer on the stack (i64/u64) to 128 bits.
	Widen(from cil.Tint) cil.Fragment
	// Narrow truncates a 128-bit value to a native integer.
	Narrow(to cil.Tint) cil.Fragment
	Add(sign cil.Signedness) cil.Fragment
	Sub(sign cil.Signedness) cil.Fragment
	Neg(sign cil.Signedness) cil.Fragment
	Not(sign cil.Signedness) cil.Fragment
	// Greater and Less push a bool.
	Greater(sign cil.Signedness) cil.Fragment
	Less(sign cil.Signedness) cil.Fragment
}

// Operator method names, shared by the runtime types and the helpers.
const (
	OpImplicit       = "op_Implicit"
	OpExplicit       = "op_Explicit"
	OpAddition       = "op_Addition"
	OpSubtraction    = "op_Subtraction"
	OpUnaryNegation  = "op_UnaryNegation"
	OpOnesComplement = "op_OnesComplement"
	OpGreaterThan    = "op_GreaterThan"
	OpLessThan       = "op_LessThan"
)

// operators emits static operator calls on a pair of value types.
type operators struct {
	name   string
	signed *cil.TypeRef
	unsign *cil.TypeRef
}

func (o operators) Name() string { return o.name }

func (o operators) ref(sign cil.Signedness) *cil.TypeRef {
	if sign == cil.Unsigned {
		return o.unsign
	}
	return o.signed
}

func (o operators) Type(sign cil.Signedness) cil.Type {
	return cil.Tstruct{Ref: o.ref(sign)}
}

func (o operators) call(sign cil.Signedness, name string, inputs []cil.Type, output cil.Type) cil.Fragment {
	site := cil.NewCallSite(o.ref(sign), name, cil.NewFnSig(inputs, output), true)
	return cil.NewFragment(cil.Call{Site: site})
}

func (o operators) Widen(from cil.Tint) cil.Fragment {
	return o.call(from.Sign, OpImplicit, []cil.Type{from}, o.Type(from.Sign))
}

func (o operators) Narrow(to cil.Tint) cil.Fragment {
	return o.call(to.Sign, OpExplicit, []cil.Type{o.Type(to.Sign)}, to)
}

func (o operators) binary(sign cil.Signedness, name string, out cil.Type) cil.Fragment {
	w := o.Type(sign)
	return o.call(sign, name, []cil.Type{w, w}, out)
}

func (o operators) unary(sign cil.Signedness, name string) cil.Fragment {
	w := o.Type(sign)
	return o.call(sign, name, []cil.Type{w}, w)
}

func (o operators) Add(sign cil.Signedness) cil.Fragment {
	return o.binary(sign, OpAddition, o.Type(sign))
}

func (o operators) Sub(sign cil.Signedness) cil.Fragment {
	return o.binary(sign, OpSubtraction, o.Type(sign))
}

func (o operators) Neg(sign cil.Signedness) cil.Fragment {
	return o.unary(sign, OpUnaryNegation)
}

func (o operators) Not(sign cil.Signedness) cil.Fragment {
	return o.unary(sign, OpOnesComplement)
}

func (o operators) Greater(sign cil.Signedness) cil.Fragment {
	return o.binary(sign, OpGreaterThan, cil.Bool())
}

func (o operators) Less(sign cil.Signedness) cil.Fragment {
	return o.binary(sign, OpLessThan, cil.Bool())
}

// SupportAssembly is the assembly holding the software helpers.
const SupportAssembly = "RalphCil.Support"

// Software helper types. They expose the same operator set as the runtime
// types, implemented with two 64-bit halves.
var (
	SoftInt128Ref  = &cil.TypeRef{Assembly: SupportAssembly, Name: "RalphCil.Support.SoftInt128", ValueType: true}
	SoftUInt128Ref = &cil.TypeRef{Assembly: SupportAssembly, Name: "RalphCil.Support.SoftUInt128", ValueType: true}
)

// Runtime returns the provider backed by System.Int128 and System.UInt128.
// It requires a runtime of version 7 or later.
func Runtime() Provider {
	return operators{name: "runtime", signed: cil.Int128Ref, unsign: cil.UInt128Ref}
}

// Soft returns the provider backed by the compiler's support library. It
// works on any runtime.
func Soft() Provider {
	return operators{name: "soft", signed: SoftInt128Ref, unsign: SoftUInt128Ref}
}

// Select picks the provider for a target. It fails with
// ErrUnsupportedTargetFeature when the target disables 128-bit integers or
// requires the runtime type on a runtime that lacks it.
func Select(t target.Target) (Provider, error) {
	switch t.Int128 {
	case target.Int128None:
		return nil, fmt.Errorf("%w: target %s has no 128-bit integer type", ErrUnsupportedTargetFeature, t.Name)
	case target.Int128Soft:
		return Soft(), nil
	}

	native, err := t.NativeInt128()
	if err != nil {
		return nil, err
	}
	if native {
		return Runtime(), nil
	}
	if t.Int128 == target.Int128Runtime {
		return nil, fmt.Errorf("%w: target %s runtime %q has no System.Int128", ErrUnsupportedTargetFeature, t.Name, t.Runtime)
	}
	return Soft(), nil
}
