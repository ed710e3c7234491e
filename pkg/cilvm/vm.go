// Package cilvm is a reference interpreter for the stack machine. It
// executes methods and bare fragments, including temporary slot
// pseudo-instructions, with the machine's stack typing rules: narrow
// integers live as int32, stores to narrow storage truncate and 64-bit
// values occupy int64 entries.
package cilvm

import (
	"errors"
	"fmt"

	"github.com/raymyers/ralph-cil/pkg/cil"
)

// ErrFault is returned (wrapped in a *Fault) when execution hits an
// ill-typed or unbalanced instruction.
var ErrFault = errors.New("execution fault")

// Fault reports the faulting instruction.
type Fault struct {
	Method string
	Index  int
	Instr  cil.Instr
	Err    error
}

func (f *Fault) Error() string {
	where := f.Method
	if where == "" {
		where = "fragment"
	}
	if f.Instr == nil {
		return fmt.Sprintf("%s: %v", where, f.Err)
	}
	return fmt.Sprintf("%s: #%d %s: %v", where, f.Index, cil.InstrString(f.Instr), f.Err)
}

func (f *Fault) Unwrap() error { return ErrFault }

const maxCallDepth = 256

// Machine executes code against a runtime.
type Machine struct {
	runtime *Runtime
	methods map[string]cil.Method
	depth   int
}

// New creates a machine using rt for external calls. A nil rt means
// DefaultRuntime.
func New(rt *Runtime) *Machine {
	if rt == nil {
		rt = DefaultRuntime()
	}
	return &Machine{runtime: rt, methods: make(map[string]cil.Method)}
}

// Define makes methods callable by name from other methods.
func (m *Machine) Define(methods ...cil.Method) {
	for _, meth := range methods {
		m.methods[meth.Name] = meth
	}
}

// Call runs a defined method.
func (m *Machine) Call(name string, args ...Value) (Value, error) {
	meth, ok := m.methods[name]
	if !ok {
		return Value{}, fmt.Errorf("%w: no method %q", ErrFault, name)
	}
	return m.Run(meth, args...)
}

// Run executes meth with args and returns its result, or the zero Value
// for void methods.
func (m *Machine) Run(meth cil.Method, args ...Value) (Value, error) {
	if len(args) != len(meth.Sig.Inputs) {
		return Value{}, &Fault{Method: meth.Name, Err: fmt.Errorf("got %d arguments, want %d", len(args), len(meth.Sig.Inputs))}
	}
	if m.depth >= maxCallDepth {
		return Value{}, &Fault{Method: meth.Name, Err: errors.New("call depth exceeded")}
	}
	m.depth++
	defer func() { m.depth-- }()

	fr := &frame{m: m, name: meth.Name, localTypes: meth.Locals}
	fr.args = make([]Value, len(args))
	for i, a := range args {
		v, err := coerce(meth.Sig.Inputs[i], a)
		if err != nil {
			return Value{}, &Fault{Method: meth.Name, Err: fmt.Errorf("argument %d: %w", i, err)}
		}
		fr.args[i] = v
	}
	fr.locals = make([]Value, len(meth.Locals))
	for i, t := range meth.Locals {
		fr.locals[i] = Zero(t)
	}

	if err := fr.exec(meth.Body); err != nil {
		return Value{}, err
	}
	if meth.Sig.Output == nil {
		return Value{}, nil
	}
	if len(fr.stack) != 1 {
		return Value{}, &Fault{Method: meth.Name, Err: fmt.Errorf("%d values on stack at return", len(fr.stack))}
	}
	v, err := coerce(meth.Sig.Output, fr.stack[0])
	if err != nil {
		return Value{}, &Fault{Method: meth.Name, Err: fmt.Errorf("return value: %w", err)}
	}
	return v, nil
}

// Exec runs a bare fragment on the given evaluation stack and returns the
// stack left behind. The fragment has no arguments or locals and must free
// every temporary it allocates.
func (m *Machine) Exec(f cil.Fragment, stack ...Value) ([]Value, error) {
	fr := &frame{m: m, stack: append([]Value(nil), stack...)}
	if err := fr.exec(f); err != nil {
		return nil, err
	}
	return fr.stack, nil
}

type temp struct {
	typ  cil.Type
	cell *Value
}

type frame struct {
	m          *Machine
	name       string
	args       []Value
	locals     []Value
	localTypes []cil.Type
	temps      []temp
	stack      []Value
	returned   bool
}

func (fr *frame) exec(f cil.Fragment) error {
	for i := 0; i < f.Len() && !fr.returned; i++ {
		in := f.At(i)
		if err := fr.step(in); err != nil {
			return &Fault{Method: fr.name, Index: i, Instr: in, Err: err}
		}
	}
	if len(fr.temps) != 0 {
		return &Fault{Method: fr.name, Index: f.Len(), Err: fmt.Errorf("%d temporaries live at end", len(fr.temps))}
	}
	return nil
}

func (fr *frame) push(v Value) {
	fr.stack = append(fr.stack, v)
}

func (fr *frame) pop() (Value, error) {
	if len(fr.stack) == 0 {
		return Value{}, errors.New("evaluation stack underflow")
	}
	v := fr.stack[len(fr.stack)-1]
	fr.stack = fr.stack[:len(fr.stack)-1]
	return v, nil
}

func (fr *frame) pop2() (Value, Value, error) {
	b, err := fr.pop()
	if err != nil {
		return Value{}, Value{}, err
	}
	a, err := fr.pop()
	if err != nil {
		return Value{}, Value{}, err
	}
	return a, b, nil
}

func (fr *frame) temp(depth int) (temp, error) {
	if depth < 0 || depth >= len(fr.temps) {
		return temp{}, fmt.Errorf("temporary depth %d with %d live", depth, len(fr.temps))
	}
	return fr.temps[len(fr.temps)-1-depth], nil
}

func (fr *frame) step(in cil.Instr) error {
	switch in := in.(type) {
	case cil.LdcI32:
		fr.push(I32(in.Value))
	case cil.LdcI64:
		fr.push(I64(in.Value))
	case cil.Nop:
	case cil.Dup:
		v, err := fr.pop()
		if err != nil {
			return err
		}
		fr.push(v)
		fr.push(v.copy())
	case cil.Pop:
		_, err := fr.pop()
		return err

	case cil.Add, cil.Sub, cil.Mul, cil.And, cil.Or, cil.Xor:
		a, b, err := fr.pop2()
		if err != nil {
			return err
		}
		r, err := arith(in, a, b)
		if err != nil {
			return err
		}
		fr.push(r)
	case cil.Ceq, cil.Cgt, cil.CgtUn, cil.Clt, cil.CltUn:
		a, b, err := fr.pop2()
		if err != nil {
			return err
		}
		r, err := compare(in, a, b)
		if err != nil {
			return err
		}
		fr.push(Bool(r))
	case cil.Not, cil.Neg:
		a, err := fr.pop()
		if err != nil {
			return err
		}
		r, err := unary(in, a)
		if err != nil {
			return err
		}
		fr.push(r)
	case cil.Conv:
		a, err := fr.pop()
		if err != nil {
			return err
		}
		r, err := convert(in.To, a)
		if err != nil {
			return err
		}
		fr.push(r)

	case cil.Ldarg:
		if in.Index < 0 || in.Index >= len(fr.args) {
			return fmt.Errorf("no argument %d", in.Index)
		}
		fr.push(fr.args[in.Index].copy())
	case cil.Ldloc:
		if in.Index < 0 || in.Index >= len(fr.locals) {
			return fmt.Errorf("no local %d", in.Index)
		}
		fr.push(fr.locals[in.Index].copy())
	case cil.Stloc:
		if in.Index < 0 || in.Index >= len(fr.locals) {
			return fmt.Errorf("no local %d", in.Index)
		}
		v, err := fr.pop()
		if err != nil {
			return err
		}
		v, err = coerce(fr.localTypes[in.Index], v)
		if err != nil {
			return err
		}
		fr.locals[in.Index] = v
	case cil.Ldloca:
		if in.Index < 0 || in.Index >= len(fr.locals) {
			return fmt.Errorf("no local %d", in.Index)
		}
		fr.push(Value{Kind: KindAddr, Ref: &fr.locals[in.Index]})
	case cil.StField:
		return fr.storeField(in.Field)

	case cil.TmpNew:
		cell := Zero(in.Type)
		fr.temps = append(fr.temps, temp{typ: in.Type, cell: &cell})
	case cil.TmpStore:
		tmp, err := fr.temp(in.Depth)
		if err != nil {
			return err
		}
		v, err := fr.pop()
		if err != nil {
			return err
		}
		v, err = coerce(tmp.typ, v)
		if err != nil {
			return err
		}
		*tmp.cell = v
	case cil.TmpLoad:
		tmp, err := fr.temp(in.Depth)
		if err != nil {
			return err
		}
		fr.push(tmp.cell.copy())
	case cil.TmpLoadAddr:
		tmp, err := fr.temp(in.Depth)
		if err != nil {
			return err
		}
		fr.push(Value{Kind: KindAddr, Ref: tmp.cell})
	case cil.TmpFree:
		if len(fr.temps) == 0 {
			return errors.New("free with no live temporaries")
		}
		fr.temps = fr.temps[:len(fr.temps)-1]

	case cil.Call:
		return fr.call(in.Site)
	case cil.Ret:
		fr.returned = true
	default:
		return fmt.Errorf("unknown instruction %T", in)
	}
	return nil
}

func (fr *frame) storeField(f *cil.FieldDescriptor) error {
	v, err := fr.pop()
	if err != nil {
		return err
	}
	addr, err := fr.pop()
	if err != nil {
		return err
	}
	if addr.Kind != KindAddr || addr.Ref == nil {
		return fmt.Errorf("stfld target is %s, not an address", addr.Kind)
	}
	target := addr.Ref
	if target.Kind != KindStruct || target.Obj == nil || target.Obj.Fields == nil {
		return fmt.Errorf("stfld %s into non-struct", f.Name)
	}
	if !cil.Equal(target.Obj.Type, f.Owner) {
		return fmt.Errorf("stfld %s: field of %s, storage is %s", f.Name, f.Owner, target.Obj.Type)
	}
	ft := fieldType(f)
	if ft == nil {
		return fmt.Errorf("stfld %s: cannot resolve field type", f.Name)
	}
	v, err = coerce(ft, v)
	if err != nil {
		return fmt.Errorf("stfld %s: %w", f.Name, err)
	}
	target.Obj.Fields[f.Name] = v
	return nil
}

// fieldType substitutes generic parameters of the owner into the declared
// field type.
func fieldType(f *cil.FieldDescriptor) cil.Type {
	g, ok := f.Type.(cil.Tgeneric)
	if !ok {
		return f.Type
	}
	st, ok := f.Owner.(cil.Tstruct)
	if !ok || st.Ref == nil || g.Index >= len(st.Ref.Generics) {
		return nil
	}
	return st.Ref.Generics[g.Index]
}

func (fr *frame) call(site *cil.CallSite) error {
	n := len(site.Sig.Inputs)
	if !site.Static {
		return fmt.Errorf("instance call %s is not supported", site.Key())
	}
	if len(fr.stack) < n {
		return errors.New("evaluation stack underflow")
	}
	args := make([]Value, n)
	copy(args, fr.stack[len(fr.stack)-n:])
	fr.stack = fr.stack[:len(fr.stack)-n]
	for i, t := range site.Sig.Inputs {
		v, err := coerce(t, args[i])
		if err != nil {
			return fmt.Errorf("call %s argument %d: %w", site.Name, i, err)
		}
		args[i] = v
	}

	var (
		r   Value
		err error
	)
	if site.Class == nil {
		r, err = fr.m.Call(site.Name, args...)
	} else {
		fn, ok := fr.m.runtime.Lookup(site)
		if !ok {
			return fmt.Errorf("unresolved external %s", site.Key())
		}
		r, err = fn(args)
	}
	if err != nil {
		return err
	}
	if site.Sig.Output != nil {
		r, err = coerce(site.Sig.Output, r)
		if err != nil {
			return fmt.Errorf("call %s result: %w", site.Name, err)
		}
		fr.push(r)
	}
	return nil
}

func ints(a, b Value) error {
	if a.Kind != b.Kind || (a.Kind != KindInt32 && a.Kind != KindInt64) {
		return fmt.Errorf("operands %s and %s", describe(a), describe(b))
	}
	return nil
}

func arith(in cil.Instr, a, b Value) (Value, error) {
	if err := ints(a, b); err != nil {
		return Value{}, err
	}
	var r int64
	switch in.(type) {
	case cil.Add:
		r = a.Bits + b.Bits
	case cil.Sub:
		r = a.Bits - b.Bits
	case cil.Mul:
		r = a.Bits * b.Bits
	case cil.And:
		r = a.Bits & b.Bits
	case cil.Or:
		r = a.Bits | b.Bits
	case cil.Xor:
		r = a.Bits ^ b.Bits
	}
	if a.Kind == KindInt32 {
		return I32(int32(r)), nil
	}
	return I64(r), nil
}

func compare(in cil.Instr, a, b Value) (bool, error) {
	if err := ints(a, b); err != nil {
		return false, err
	}
	ua, ub := uint64(a.Bits), uint64(b.Bits)
	if a.Kind == KindInt32 {
		ua, ub = uint64(uint32(a.Bits)), uint64(uint32(b.Bits))
	}
	switch in.(type) {
	case cil.Ceq:
		return a.Bits == b.Bits, nil
	case cil.Cgt:
		return a.Bits > b.Bits, nil
	case cil.CgtUn:
		return ua > ub, nil
	case cil.Clt:
		return a.Bits < b.Bits, nil
	}
	return ua < ub, nil
}

func unary(in cil.Instr, a Value) (Value, error) {
	if a.Kind != KindInt32 && a.Kind != KindInt64 {
		return Value{}, fmt.Errorf("operand %s", describe(a))
	}
	r := ^a.Bits
	if _, ok := in.(cil.Neg); ok {
		r = -a.Bits
	}
	if a.Kind == KindInt32 {
		return I32(int32(r)), nil
	}
	return I64(r), nil
}

// convert implements conv.*: int32 sources are sign-extended for signed
// targets and zero-extended for unsigned ones.
func convert(to cil.Tint, a Value) (Value, error) {
	if a.Kind != KindInt32 && a.Kind != KindInt64 {
		return Value{}, fmt.Errorf("conv of %s", describe(a))
	}
	if !to.IsNative() {
		return Value{}, fmt.Errorf("conv to %s", to)
	}
	x := a.Bits
	if a.Kind == KindInt32 && to.Sign == cil.Unsigned {
		x = int64(uint32(x))
	}
	return Int(to, x), nil
}
