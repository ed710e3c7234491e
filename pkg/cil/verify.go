package cil

import (
	"errors"
	"fmt"
)

// ErrInvalidFragment is returned (wrapped in a *VerifyError) when a fragment
// breaks evaluation stack or temporary slot discipline.
var ErrInvalidFragment = errors.New("invalid fragment")

// VerifyError reports the first offending instruction.
type VerifyError struct {
	Index int
	Instr Instr
	Msg   string
}

func (e *VerifyError) Error() string {
	if e.Instr == nil {
		return fmt.Sprintf("invalid fragment: %s", e.Msg)
	}
	return fmt.Sprintf("invalid fragment: #%d %s: %s", e.Index, InstrString(e.Instr), e.Msg)
}

func (e *VerifyError) Unwrap() error { return ErrInvalidFragment }

// VerifyOptions describes the context a fragment runs in.
type VerifyOptions struct {
	Stack int // evaluation stack depth on entry
	Want  int // required depth on exit
}

// Stats summarizes a verified fragment.
type Stats struct {
	MaxStack int // deepest evaluation stack
	MaxTemps int // most temporaries live at once
	Allocs   int // TmpNew count
	Frees    int // TmpFree count
}

// Verify checks that f never underflows the evaluation stack, never
// addresses a temporary slot that is not live, frees exactly what it
// allocates, and leaves opts.Want values on the stack.
func Verify(f Fragment, opts VerifyOptions) (Stats, error) {
	v := &verifier{stack: opts.Stack}
	v.stats.MaxStack = opts.Stack
	for i, in := range f.code {
		if err := v.step(in); err != nil {
			return v.stats, &VerifyError{Index: i, Instr: in, Msg: err.Error()}
		}
	}
	if v.temps != 0 {
		return v.stats, &VerifyError{Index: len(f.code), Msg: fmt.Sprintf("%d temporaries still live", v.temps)}
	}
	if v.stack != opts.Want {
		return v.stats, &VerifyError{Index: len(f.code), Msg: fmt.Sprintf("stack depth %d on exit, want %d", v.stack, opts.Want)}
	}
	return v.stats, nil
}

type verifier struct {
	stack int
	temps int
	stats Stats
}

func (v *verifier) pop(n int) error {
	if v.stack < n {
		return fmt.Errorf("evaluation stack underflow")
	}
	v.stack -= n
	return nil
}

func (v *verifier) push(n int) {
	v.stack += n
	if v.stack > v.stats.MaxStack {
		v.stats.MaxStack = v.stack
	}
}

func (v *verifier) live(depth int) error {
	if depth < 0 || depth >= v.temps {
		return fmt.Errorf("temporary depth %d out of range (%d live)", depth, v.temps)
	}
	return nil
}

func (v *verifier) step(in Instr) error {
	switch i := in.(type) {
	case LdcI32, LdcI64, Ldarg, Ldloc, Ldloca:
		v.push(1)
	case Dup:
		if err := v.pop(1); err != nil {
			return err
		}
		v.push(2)
	case Add, Sub, Mul, And, Or, Xor, Ceq, Cgt, CgtUn, Clt, CltUn:
		if err := v.pop(2); err != nil {
			return err
		}
		v.push(1)
	case Not, Neg, Conv:
		if err := v.pop(1); err != nil {
			return err
		}
		v.push(1)
	case Pop, Stloc:
		return v.pop(1)
	case StField:
		return v.pop(2)
	case Nop:
	case Ret:
		if v.stack > 1 {
			return fmt.Errorf("%d values on stack at return", v.stack)
		}
		v.stack = 0
	case Call:
		if i.Site == nil {
			return fmt.Errorf("call without site")
		}
		n := len(i.Site.Sig.Inputs)
		if !i.Site.Static {
			n++
		}
		if err := v.pop(n); err != nil {
			return err
		}
		if i.Site.Sig.Output != nil {
			v.push(1)
		}
	case TmpNew:
		v.temps++
		v.stats.Allocs++
		if v.temps > v.stats.MaxTemps {
			v.stats.MaxTemps = v.temps
		}
	case TmpFree:
		if v.temps == 0 {
			return fmt.Errorf("free with no live temporaries")
		}
		v.temps--
		v.stats.Frees++
	case TmpStore:
		if err := v.live(i.Depth); err != nil {
			return err
		}
		return v.pop(1)
	case TmpLoad:
		if err := v.live(i.Depth); err != nil {
			return err
		}
		v.push(1)
	case TmpLoadAddr:
		if err := v.live(i.Depth); err != nil {
			return err
		}
		v.push(1)
	default:
		return fmt.Errorf("unknown instruction %T", in)
	}
	return nil
}
