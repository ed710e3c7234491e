package cilgen

import (
	"fmt"

	"github.com/raymyers/ralph-cil/pkg/checked"
	"github.com/raymyers/ralph-cil/pkg/cil"
	"github.com/raymyers/ralph-cil/pkg/mir"
	"github.com/raymyers/ralph-cil/pkg/wideint"
)

// ResolveType maps a MIR type to its logical machine type. 128-bit
// integers stay Tint{Size: I128}; StorageType gives their value type.
func ResolveType(t mir.Ty) (cil.Type, error) {
	switch tt := t.(type) {
	case mir.TBool:
		return cil.Bool(), nil
	case mir.TInt:
		size, ok := intSizes[tt.Bits]
		if !ok {
			return nil, fmt.Errorf("no machine type for %s", t)
		}
		sign := cil.Unsigned
		if tt.Signed {
			sign = cil.Signed
		}
		return cil.Tint{Size: size, Sign: sign}, nil
	case mir.TTuple:
		elems := make([]cil.Type, len(tt.Elems))
		for i, e := range tt.Elems {
			r, err := ResolveType(e)
			if err != nil {
				return nil, err
			}
			elems[i] = r
		}
		return cil.Tuple(elems...), nil
	}
	return nil, fmt.Errorf("no machine type for %v", t)
}

var intSizes = map[int]cil.IntSize{8: cil.I8, 16: cil.I16, 32: cil.I32, 64: cil.I64, 128: cil.I128}

// StorageType maps a logical type to the type of locals, arguments and
// fields holding it.
func StorageType(t cil.Type, wide wideint.Provider) (cil.Type, error) {
	switch tt := t.(type) {
	case cil.Tint:
		if tt.IsNative() {
			return t, nil
		}
		if wide == nil {
			return nil, fmt.Errorf("%w: no storage for %s", wideint.ErrUnsupportedTargetFeature, t)
		}
		return wide.Type(tt.Sign), nil
	case cil.Tstruct:
		if tt.Ref == nil || len(tt.Ref.Generics) == 0 {
			return t, nil
		}
		ref := *tt.Ref
		ref.Generics = make([]cil.Type, len(tt.Ref.Generics))
		for i, g := range tt.Ref.Generics {
			s, err := StorageType(g, wide)
			if err != nil {
				return nil, err
			}
			ref.Generics[i] = s
		}
		return cil.Tstruct{Ref: &ref}, nil
	}
	return t, nil
}

func binOp(op mir.BinOp) checked.BinOp {
	switch op {
	case mir.Sub:
		return checked.Sub
	case mir.Mul:
		return checked.Mul
	}
	return checked.Add
}
