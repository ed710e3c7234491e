package cil

import "strings"

// Instr is the interface for all machine instructions
type Instr interface {
	implInstr()
}

// --- Constants ---

// LdcI32 pushes a 32-bit constant.
type LdcI32 struct {
	Value int32
}

// LdcI64 pushes a 64-bit constant.
type LdcI64 struct {
	Value int64
}

// --- Arithmetic and logic ---
// Binary instructions pop two values of the same stack type and push one.
// Integer arithmetic wraps; there are no overflow-checked forms.

type Add struct{}
type Sub struct{}
type Mul struct{}
type And struct{}
type Or struct{}
type Xor struct{}

// Not is the bitwise complement.
type Not struct{}

// Neg is the two's complement negation.
type Neg struct{}

// --- Comparison ---
// Comparisons pop two values and push int32 1 or 0.

type Ceq struct{}
type Cgt struct{}
type CgtUn struct{}
type Clt struct{}
type CltUn struct{}

// Conv converts the value on top of the stack to a native integer type.
// Narrowing truncates; widening sign- or zero-extends according to To.
type Conv struct {
	To Tint
}

// --- Stack manipulation ---

type Dup struct{}
type Pop struct{}
type Nop struct{}

// --- Calls ---

// Call invokes a method described by Site.
type Call struct {
	Site *CallSite
}

// --- Arguments, locals and fields ---

type Ldarg struct {
	Index int
}

type Ldloc struct {
	Index int
}

type Stloc struct {
	Index int
}

// Ldloca pushes the address of a local.
type Ldloca struct {
	Index int
}

// StField pops a value and an address and stores the value into the field.
type StField struct {
	Field *FieldDescriptor
}

type Ret struct{}

// --- Temporary slots ---
// Temporary slots form a stack local to one lowering. They are addressed by
// depth: 0 is the most recently allocated live slot. RealizeTemps in cilgen
// rewrites them to concrete locals before serialization.

// TmpNew allocates a fresh slot of Type on top of the temporary stack.
type TmpNew struct {
	Type Type
}

// TmpStore pops a value into the slot Depth below the top.
type TmpStore struct {
	Depth int
}

// TmpLoad pushes the value of the slot Depth below the top.
type TmpLoad struct {
	Depth int
}

// TmpLoadAddr pushes the address of the slot Depth below the top.
type TmpLoadAddr struct {
	Depth int
}

// TmpFree releases the top slot.
type TmpFree struct{}

// Marker methods for Instr interface
func (LdcI32) implInstr()      {}
func (LdcI64) implInstr()      {}
func (Add) implInstr()         {}
func (Sub) implInstr()         {}
func (Mul) implInstr()         {}
func (And) implInstr()         {}
func (Or) implInstr()          {}
func (Xor) implInstr()         {}
func (Not) implInstr()         {}
func (Neg) implInstr()         {}
func (Ceq) implInstr()         {}
func (Cgt) implInstr()         {}
func (CgtUn) implInstr()       {}
func (Clt) implInstr()         {}
func (CltUn) implInstr()       {}
func (Conv) implInstr()        {}
func (Dup) implInstr()         {}
func (Pop) implInstr()         {}
func (Nop) implInstr()         {}
func (Call) implInstr()        {}
func (Ldarg) implInstr()       {}
func (Ldloc) implInstr()       {}
func (Stloc) implInstr()       {}
func (Ldloca) implInstr()      {}
func (StField) implInstr()     {}
func (Ret) implInstr()         {}
func (TmpNew) implInstr()      {}
func (TmpStore) implInstr()    {}
func (TmpLoad) implInstr()     {}
func (TmpLoadAddr) implInstr() {}
func (TmpFree) implInstr()     {}

// FnSig is a method signature.
type FnSig struct {
	Inputs []Type
	Output Type // nil for void
}

// NewFnSig creates a signature.
func NewFnSig(inputs []Type, output Type) FnSig {
	in := make([]Type, len(inputs))
	copy(in, inputs)
	return FnSig{Inputs: in, Output: output}
}

// CallSite describes a call target.
type CallSite struct {
	Class  *TypeRef // nil for a method of the current module
	Name   string
	Sig    FnSig
	Static bool
}

// NewCallSite creates a call site.
func NewCallSite(class *TypeRef, name string, sig FnSig, static bool) *CallSite {
	return &CallSite{Class: class, Name: name, Sig: sig, Static: static}
}

// Key identifies the call target: class, name and signature.
func (c *CallSite) Key() string {
	var sb strings.Builder
	if c.Class != nil {
		sb.WriteString(c.Class.Name)
		sb.WriteString("::")
	}
	sb.WriteString(c.Name)
	sb.WriteString("(")
	for i, in := range c.Sig.Inputs {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(in.String())
	}
	sb.WriteString(")")
	if c.Sig.Output != nil {
		sb.WriteString(c.Sig.Output.String())
	}
	return sb.String()
}

// FieldDescriptor names a field of a type.
type FieldDescriptor struct {
	Owner Type
	Type  Type // declared type, generic parameters unsubstituted
	Name  string
}

// Fragment is an ordered, immutable sequence of instructions.
// The zero value is the empty fragment.
type Fragment struct {
	code []Instr
}

// NewFragment builds a fragment from instructions.
func NewFragment(code ...Instr) Fragment {
	c := make([]Instr, len(code))
	copy(c, code)
	return Fragment{code: c}
}

// Len returns the number of instructions.
func (f Fragment) Len() int {
	return len(f.code)
}

// At returns the i-th instruction.
func (f Fragment) At(i int) Instr {
	return f.code[i]
}

// Instrs returns a copy of the instructions.
func (f Fragment) Instrs() []Instr {
	c := make([]Instr, len(f.code))
	copy(c, f.code)
	return c
}

// Append returns a new fragment with code added at the end.
func (f Fragment) Append(code ...Instr) Fragment {
	c := make([]Instr, 0, len(f.code)+len(code))
	c = append(c, f.code...)
	c = append(c, code...)
	return Fragment{code: c}
}

// Concat joins fragments in order.
func Concat(frags ...Fragment) Fragment {
	n := 0
	for _, f := range frags {
		n += len(f.code)
	}
	c := make([]Instr, 0, n)
	for _, f := range frags {
		c = append(c, f.code...)
	}
	return Fragment{code: c}
}

// Method is a method body ready for realization or execution.
type Method struct {
	Name   string
	Sig    FnSig
	Locals []Type
	Body   Fragment
}
