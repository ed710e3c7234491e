package checked

import (
	"github.com/raymyers/ralph-cil/pkg/cil"
	"github.com/raymyers/ralph-cil/pkg/slots"
	"github.com/raymyers/ralph-cil/pkg/wideint"
)

// WidePromoted lowers op on t by computing in the provider's 128-bit type.
// Range thresholds are pushed as 64-bit constants and widened.
func WidePromoted(p wideint.Provider, op BinOp, t cil.Tint) (cil.Fragment, error) {
	if !t.IsNative() {
		return cil.Fragment{}, &UnsupportedError{Op: op, Type: t}
	}

	var arith cil.Fragment
	switch op {
	case Add:
		arith = p.Add(t.Sign)
	case Sub:
		arith = p.Sub(t.Sign)
	default:
		return cil.Fragment{}, &UnsupportedError{Op: op, Type: t}
	}

	// The provider converts from and to 64-bit integers of the same sign.
	i64 := cil.Tint{Size: cil.I64, Sign: t.Sign}
	widen := p.Widen(i64)
	extend := widen
	truncate := p.Narrow(i64)
	if t.Size < cil.I64 {
		extend = cil.Concat(cil.NewFragment(cil.Conv{To: i64}), widen)
		truncate = truncate.Append(cil.Conv{To: t})
	}

	w := widening{
		wide:    p.Type(t.Sign),
		extend:  extend,
		op:      arith,
		greater: p.Greater(t.Sign),
		less:    p.Less(t.Sign),
		literal: func(v int64) cil.Fragment {
			return cil.Concat(cil.NewFragment(cil.LdcI64{Value: v}), widen)
		},
		truncate: truncate,
	}

	s := slots.New()
	emitPromoted(s, t, w)
	return finish(s)
}
