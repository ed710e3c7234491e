package checked

import (
	"github.com/raymyers/ralph-cil/pkg/cil"
	"github.com/raymyers/ralph-cil/pkg/slots"
)

// narrow emits the truncation of a stack value to t. Types of 32 bits and
// more already wrap on the stack.
func narrow(s *slots.Stack, t cil.Tint) {
	if t.Size < cil.I32 {
		s.Emit(cil.Conv{To: t})
	}
}

// UnsignedMaskAdd lowers checked addition on an unsigned type without
// widening: a carry happened iff the wrapped sum is below a | b.
func UnsignedMaskAdd(t cil.Tint) (cil.Fragment, error) {
	if !t.IsNative() || t.Sign != cil.Unsigned {
		return cil.Fragment{}, &UnsupportedError{Op: Add, Type: t}
	}

	s := slots.New()
	b := s.Spill(t)
	a := s.Spill(t)

	s.Load(a)
	s.Load(b)
	s.Emit(cil.Add{})
	narrow(s, t)
	sum := s.Spill(t)

	s.Load(sum)
	s.Load(a)
	s.Load(b)
	s.Emit(cil.Or{}, cil.CltUn{})
	flag := s.Spill(cil.Bool())

	buildPair(s, t, flag, func() { s.Load(sum) })
	return finish(s)
}

// SignedMaskAdd lowers checked addition on a signed type without
// widening. Overflow happened iff both operands have the same sign bit and
// the wrapped sum's sign bit differs from it:
//
//	((a & m) == (b & m)) & !((sum & m) == (a & m))
func SignedMaskAdd(t cil.Tint) (cil.Fragment, error) {
	if !t.IsNative() || t.Sign != cil.Signed {
		return cil.Fragment{}, &UnsupportedError{Op: Add, Type: t}
	}
	mask := literal(t, int64(cil.SignMask(t)))

	s := slots.New()
	b := s.Spill(t)
	a := s.Spill(t)

	s.Load(a)
	s.Load(b)
	s.Emit(cil.Add{})
	narrow(s, t)
	sum := s.Spill(t)

	s.Load(a)
	s.Emit(mask, cil.And{})
	s.Load(b)
	s.Emit(mask, cil.And{}, cil.Ceq{})

	s.Load(sum)
	s.Emit(mask, cil.And{})
	s.Load(a)
	s.Emit(mask, cil.And{}, cil.Ceq{})
	s.Emit(cil.LdcI32{Value: 0}, cil.Ceq{})

	s.Emit(cil.And{})
	flag := s.Spill(cil.Bool())

	buildPair(s, t, flag, func() { s.Load(sum) })
	return finish(s)
}
