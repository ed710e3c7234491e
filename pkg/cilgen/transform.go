// Package cilgen translates MIR functions into stack machine methods.
// Checked arithmetic is lowered by package checked and unary operations
// by package unop; this pass handles operands, locals and the method
// frame.
package cilgen

import (
	"errors"
	"fmt"

	"github.com/raymyers/ralph-cil/pkg/checked"
	"github.com/raymyers/ralph-cil/pkg/cil"
	"github.com/raymyers/ralph-cil/pkg/mir"
	"github.com/raymyers/ralph-cil/pkg/unop"
	"github.com/raymyers/ralph-cil/pkg/wideint"
)

// TranslateError locates a failure inside a function.
type TranslateError struct {
	Func string
	Stmt int // -1 for the signature
	Err  error
}

func (e *TranslateError) Error() string {
	if e.Stmt < 0 {
		return fmt.Sprintf("%s: %v", e.Func, e.Err)
	}
	return fmt.Sprintf("%s: statement %d: %v", e.Func, e.Stmt, e.Err)
}

func (e *TranslateError) Unwrap() error { return e.Err }

type translator struct {
	params []cil.Type // logical types
	locals []cil.Type
	wide   wideint.Provider
	lower  *checked.Lowerer
}

// TranslateFunction lowers fn into a method whose body still uses
// temporary slot pseudo-instructions. The body stores each statement's
// result into its local and returns the result local.
func TranslateFunction(fn *mir.Function, opts Options) (cil.Method, error) {
	tr := &translator{wide: opts.Wide, lower: checked.NewLowerer(opts.Wide)}
	sigErr := func(err error) (cil.Method, error) {
		return cil.Method{}, &TranslateError{Func: fn.Name, Stmt: -1, Err: err}
	}

	var err error
	if tr.params, err = resolveAll(fn.Params); err != nil {
		return sigErr(err)
	}
	if tr.locals, err = resolveAll(fn.Locals); err != nil {
		return sigErr(err)
	}
	if fn.Result < 0 || fn.Result >= len(tr.locals) {
		return sigErr(fmt.Errorf("result _%d is not declared", fn.Result))
	}

	inputs, err := storageAll(tr.params, tr.wide)
	if err != nil {
		return sigErr(err)
	}
	locals, err := storageAll(tr.locals, tr.wide)
	if err != nil {
		return sigErr(err)
	}

	var body []cil.Fragment
	for i, a := range fn.Body {
		f, err := tr.assign(a)
		if err != nil {
			return cil.Method{}, &TranslateError{Func: fn.Name, Stmt: i, Err: err}
		}
		body = append(body, f)
	}
	body = append(body, cil.NewFragment(cil.Ldloc{Index: fn.Result}, cil.Ret{}))

	return cil.Method{
		Name:   fn.Name,
		Sig:    cil.NewFnSig(inputs, locals[fn.Result]),
		Locals: locals,
		Body:   cil.Concat(body...),
	}, nil
}

func resolveAll(tys []mir.Ty) ([]cil.Type, error) {
	out := make([]cil.Type, len(tys))
	for i, t := range tys {
		r, err := ResolveType(t)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func storageAll(tys []cil.Type, wide wideint.Provider) ([]cil.Type, error) {
	out := make([]cil.Type, len(tys))
	for i, t := range tys {
		s, err := StorageType(t, wide)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// assign lowers one statement: the rvalue followed by a store.
func (tr *translator) assign(a mir.Assign) (cil.Fragment, error) {
	dest := tr.locals[a.Dest]

	var (
		code cil.Fragment
		ty   cil.Type
	)
	switch rv := a.Value.(type) {
	case mir.Use:
		op, err := tr.lowerOperand(rv.Arg)
		if err != nil {
			return cil.Fragment{}, err
		}
		code, ty = op.Code, op.Type
	case mir.CheckedBinary:
		left, err := tr.lowerOperand(rv.Left)
		if err != nil {
			return cil.Fragment{}, err
		}
		right, err := tr.lowerOperand(rv.Right)
		if err != nil {
			return cil.Fragment{}, err
		}
		code, err = tr.lower.Lower(binOp(rv.Op), left, right)
		if err != nil {
			return cil.Fragment{}, err
		}
		ty = checked.PairType(left.Type)
	case mir.Unary:
		arg, err := tr.lowerOperand(rv.Arg)
		if err != nil {
			return cil.Fragment{}, err
		}
		op := unop.Neg
		if rv.Op == mir.Not {
			op = unop.Not
		}
		code, err = unop.Lower(op, arg, tr.wide)
		if err != nil {
			return cil.Fragment{}, err
		}
		ty = arg.Type
	default:
		return cil.Fragment{}, fmt.Errorf("unsupported rvalue %T", a.Value)
	}

	if !cil.Equal(ty, dest) {
		return cil.Fragment{}, fmt.Errorf("%w: cannot assign %s to _%d of type %s", checked.ErrTypeMismatch, ty, a.Dest, dest)
	}
	return code.Append(cil.Stloc{Index: a.Dest}), nil
}

// lowerOperand pushes an operand and reports its logical type.
func (tr *translator) lowerOperand(op mir.Operand) (checked.Operand, error) {
	switch o := op.(type) {
	case mir.Copy:
		return checked.Operand{Code: cil.NewFragment(cil.Ldloc{Index: o.Local}), Type: tr.locals[o.Local]}, nil
	case mir.Arg:
		return checked.Operand{Code: cil.NewFragment(cil.Ldarg{Index: o.Index}), Type: tr.params[o.Index]}, nil
	case mir.Const:
		ty, err := ResolveType(o.Ty)
		if err != nil {
			return checked.Operand{}, err
		}
		code, err := tr.constant(ty, o.Value)
		if err != nil {
			return checked.Operand{}, err
		}
		return checked.Operand{Code: code, Type: ty}, nil
	}
	return checked.Operand{}, fmt.Errorf("unsupported operand %v", op)
}

func (tr *translator) constant(t cil.Type, v int64) (cil.Fragment, error) {
	it, ok := t.(cil.Tint)
	if !ok {
		// bool
		return cil.NewFragment(cil.LdcI32{Value: int32(v)}), nil
	}
	switch {
	case it.StackWide():
		return cil.NewFragment(cil.LdcI64{Value: v}), nil
	case it.IsNative():
		return cil.NewFragment(cil.LdcI32{Value: int32(v)}), nil
	}
	if tr.wide == nil {
		return cil.Fragment{}, fmt.Errorf("%w: constant of type %s", wideint.ErrUnsupportedTargetFeature, t)
	}
	return cil.Concat(
		cil.NewFragment(cil.LdcI64{Value: v}),
		tr.wide.Widen(cil.Tint{Size: cil.I64, Sign: it.Sign}),
	), nil
}

// IsUnsupported reports whether err came from an operation or target
// feature the backend cannot lower, as opposed to malformed input.
func IsUnsupported(err error) bool {
	return errors.Is(err, checked.ErrUnsupportedOperation) || errors.Is(err, wideint.ErrUnsupportedTargetFeature)
}
