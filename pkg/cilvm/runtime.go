package cilvm

import (
	"fmt"

	"github.com/cznic/mathutil"
	"github.com/raymyers/ralph-cil/pkg/cil"
	"github.com/raymyers/ralph-cil/pkg/wideint"
)

// Extern implements an external method. Arguments arrive in storage form.
type Extern func(args []Value) (Value, error)

// Runtime resolves external call sites.
type Runtime struct {
	externs map[string]Extern
}

// NewRuntime creates an empty runtime.
func NewRuntime() *Runtime {
	return &Runtime{externs: make(map[string]Extern)}
}

// Register binds site to fn, replacing any earlier binding.
func (r *Runtime) Register(site *cil.CallSite, fn Extern) {
	r.externs[site.Key()] = fn
}

// Lookup returns the implementation of site.
func (r *Runtime) Lookup(site *cil.CallSite) (Extern, bool) {
	fn, ok := r.externs[site.Key()]
	return fn, ok
}

// Len returns the number of registered externs.
func (r *Runtime) Len() int {
	return len(r.externs)
}

// DefaultRuntime returns a runtime implementing the operators of both
// 128-bit providers.
func DefaultRuntime() *Runtime {
	r := NewRuntime()
	registerWide(r, wideint.Runtime())
	registerWide(r, wideint.Soft())
	return r
}

// wideSign reports whether t is one of the 128-bit types and its sign.
func wideSign(t cil.Tstruct) (cil.Signedness, bool) {
	if t.Ref == nil {
		return 0, false
	}
	for _, ref := range []*cil.TypeRef{cil.Int128Ref, wideint.SoftInt128Ref} {
		if cil.Equal(t, cil.Tstruct{Ref: ref}) {
			return cil.Signed, true
		}
	}
	for _, ref := range []*cil.TypeRef{cil.UInt128Ref, wideint.SoftUInt128Ref} {
		if cil.Equal(t, cil.Tstruct{Ref: ref}) {
			return cil.Unsigned, true
		}
	}
	return 0, false
}

// site extracts the call emitted by a provider operation.
func site(f cil.Fragment) *cil.CallSite {
	for i := f.Len() - 1; i >= 0; i-- {
		if c, ok := f.At(i).(cil.Call); ok {
			return c.Site
		}
	}
	panic("cilvm: provider fragment without a call")
}

func wideArg(v Value) (mathutil.Int128, error) {
	if v.Kind != KindStruct || v.Obj == nil {
		return mathutil.Int128{}, fmt.Errorf("expected a 128-bit value, got %s", describe(v))
	}
	return v.Obj.Wide, nil
}

func wide2(args []Value) (mathutil.Int128, mathutil.Int128, error) {
	x, err := wideArg(args[0])
	if err != nil {
		return x, x, err
	}
	y, err := wideArg(args[1])
	return x, y, err
}

// ucmp compares x and y as unsigned 128-bit integers.
func ucmp(x, y mathutil.Int128) int {
	xh, yh := uint64(x.Hi), uint64(y.Hi)
	if xh != yh {
		if xh > yh {
			return 1
		}
		return -1
	}
	xl, yl := uint64(x.Lo), uint64(y.Lo)
	switch {
	case xl > yl:
		return 1
	case xl < yl:
		return -1
	}
	return 0
}

func registerWide(r *Runtime, p wideint.Provider) {
	for _, sign := range []cil.Signedness{cil.Signed, cil.Unsigned} {
		sign := sign
		wt := p.Type(sign)
		cmp := func(x, y mathutil.Int128) int { return x.Cmp(y) }
		if sign == cil.Unsigned {
			cmp = ucmp
		}

		for _, t := range cil.NativeInts {
			if t.Sign != sign {
				continue
			}
			t := t
			r.Register(site(p.Widen(t)), func(args []Value) (Value, error) {
				var x mathutil.Int128
				if sign == cil.Signed {
					x.SetInt64(args[0].Bits)
				} else {
					x.SetUint64(Uint(t, args[0]))
				}
				return Wide(wt, x), nil
			})
			r.Register(site(p.Narrow(t)), func(args []Value) (Value, error) {
				x, err := wideArg(args[0])
				if err != nil {
					return Value{}, err
				}
				return Int(t, x.Lo), nil
			})
		}

		r.Register(site(p.Add(sign)), func(args []Value) (Value, error) {
			x, y, err := wide2(args)
			if err != nil {
				return Value{}, err
			}
			sum, _ := x.Add(y)
			return Wide(wt, sum), nil
		})
		r.Register(site(p.Sub(sign)), func(args []Value) (Value, error) {
			x, y, err := wide2(args)
			if err != nil {
				return Value{}, err
			}
			// Negating the minimum wraps to itself, which is what
			// modular subtraction needs.
			ny, _ := y.Neg()
			diff, _ := x.Add(ny)
			return Wide(wt, diff), nil
		})
		r.Register(site(p.Neg(sign)), func(args []Value) (Value, error) {
			x, err := wideArg(args[0])
			if err != nil {
				return Value{}, err
			}
			n, _ := x.Neg()
			return Wide(wt, n), nil
		})
		r.Register(site(p.Not(sign)), func(args []Value) (Value, error) {
			x, err := wideArg(args[0])
			if err != nil {
				return Value{}, err
			}
			return Wide(wt, mathutil.Int128{Lo: ^x.Lo, Hi: ^x.Hi}), nil
		})
		r.Register(site(p.Greater(sign)), func(args []Value) (Value, error) {
			x, y, err := wide2(args)
			if err != nil {
				return Value{}, err
			}
			return Bool(cmp(x, y) > 0), nil
		})
		r.Register(site(p.Less(sign)), func(args []Value) (Value, error) {
			x, y, err := wide2(args)
			if err != nil {
				return Value{}, err
			}
			return Bool(cmp(x, y) < 0), nil
		})
	}
}
