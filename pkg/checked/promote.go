package checked

import (
	"github.com/raymyers/ralph-cil/pkg/cil"
	"github.com/raymyers/ralph-cil/pkg/slots"
)

// widening is the set of operations needed to compute in a wider type and
// range check the result. Native promotion and the 128-bit path differ only
// in how these are emitted.
type widening struct {
	wide     cil.Type
	extend   cil.Fragment // operand type to wide
	op       cil.Fragment
	greater  cil.Fragment
	less     cil.Fragment
	literal  func(v int64) cil.Fragment // constant in the wide type
	truncate cil.Fragment               // wide to operand type
}

// emitPromoted consumes a and b of type t and pushes their checked pair.
//
// The overflow flag is result > max(t) for unsigned t, and
// (result > max(t)) | (result < min(t)) for signed t.
func emitPromoted(s *slots.Stack, t cil.Tint, w widening) {
	b := s.Spill(t)
	a := s.Spill(t)

	s.Load(a)
	s.Append(w.extend)
	s.Load(b)
	s.Append(w.extend)
	s.Append(w.op)
	result := s.Spill(w.wide)

	s.Load(result)
	s.Append(w.literal(int64(cil.MaxValue(t))))
	s.Append(w.greater)
	if t.Sign == cil.Signed {
		s.Load(result)
		s.Append(w.literal(cil.MinValue(t)))
		s.Append(w.less)
		s.Emit(cil.Or{})
	}
	flag := s.Spill(cil.Bool())

	buildPair(s, t, flag, func() {
		s.Load(result)
		s.Append(w.truncate)
	})
}

// Promoted lowers op on t by computing in the native type wide. wide must
// have the same signedness as t and be strictly wider; the caller is
// responsible for wide having room for every result of op.
func Promoted(op BinOp, t, wide cil.Tint) (cil.Fragment, error) {
	if !t.IsNative() || !wide.IsNative() || wide.Sign != t.Sign || wide.Size <= t.Size || op < 0 || op >= numOps {
		return cil.Fragment{}, &UnsupportedError{Op: op, Type: t}
	}

	greater := cil.Instr(cil.Cgt{})
	if t.Sign == cil.Unsigned {
		greater = cil.CgtUn{}
	}
	w := widening{
		wide:     wide,
		extend:   cil.NewFragment(cil.Conv{To: wide}),
		op:       cil.NewFragment(nativeOp(op)),
		greater:  cil.NewFragment(greater),
		less:     cil.NewFragment(cil.Clt{}),
		literal:  func(v int64) cil.Fragment { return cil.NewFragment(literal(wide, v)) },
		truncate: cil.NewFragment(cil.Conv{To: t}),
	}

	s := slots.New()
	emitPromoted(s, t, w)
	return finish(s)
}

// literal pushes v as a constant of native type t.
func literal(t cil.Tint, v int64) cil.Instr {
	if t.StackWide() {
		return cil.LdcI64{Value: v}
	}
	return cil.LdcI32{Value: int32(v)}
}
