package wideint

import (
	"errors"
	"testing"

	"github.com/raymyers/ralph-cil/pkg/cil"
	"github.com/raymyers/ralph-cil/pkg/target"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		name    string
		target  target.Target
		want    string
		wantErr bool
	}{
		{"net8 auto", target.Target{Name: "net8", Runtime: "8.0.0"}, "runtime", false},
		{"net6 auto falls back", target.Target{Name: "net6", Runtime: "6.0.0"}, "soft", false},
		{"net8 forced soft", target.Target{Name: "net8", Runtime: "8.0.0", Int128: target.Int128Soft}, "soft", false},
		{"net6 forced runtime", target.Target{Name: "net6", Runtime: "6.0.0", Int128: target.Int128Runtime}, "", true},
		{"bare", target.Target{Name: "bare", Int128: target.Int128None}, "", true},
		{"no runtime auto", target.Target{Name: "x"}, "soft", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Select(tt.target)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedTargetFeature) {
					t.Fatalf("expected ErrUnsupportedTargetFeature, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Select: %v", err)
			}
			if p.Name() != tt.want {
				t.Errorf("provider = %s, want %s", p.Name(), tt.want)
			}
		})
	}
}

func TestRuntimeWidenSignature(t *testing.T) {
	f := Runtime().Widen(cil.Tint{Size: cil.I64, Sign: cil.Signed})
	if f.Len() != 1 {
		t.Fatalf("expected a single call, got %d instructions", f.Len())
	}
	call, ok := f.At(0).(cil.Call)
	if !ok {
		t.Fatalf("expected Call, got %T", f.At(0))
	}
	if call.Site.Name != OpImplicit || call.Site.Class != cil.Int128Ref {
		t.Errorf("unexpected call site %s", call.Site.Key())
	}
	if !call.Site.Static {
		t.Error("operators are static")
	}
	if !cil.Equal(call.Site.Sig.Output, cil.Tstruct{Ref: cil.Int128Ref}) {
		t.Errorf("output = %v", call.Site.Sig.Output)
	}
}

func TestProvidersAgreeOnStackEffects(t *testing.T) {
	for _, p := range []Provider{Runtime(), Soft()} {
		for _, sign := range []cil.Signedness{cil.Signed, cil.Unsigned} {
			native := cil.Tint{Size: cil.I64, Sign: sign}
			cases := []struct {
				name  string
				frag  cil.Fragment
				enter int
			}{
				{"widen", p.Widen(native), 1},
				{"narrow", p.Narrow(native), 1},
				{"add", p.Add(sign), 2},
				{"sub", p.Sub(sign), 2},
				{"neg", p.Neg(sign), 1},
				{"not", p.Not(sign), 1},
				{"gt", p.Greater(sign), 2},
				{"lt", p.Less(sign), 2},
			}
			for _, c := range cases {
				t.Run(p.Name()+"/"+sign.String()+"/"+c.name, func(t *testing.T) {
					if _, err := cil.Verify(c.frag, cil.VerifyOptions{Stack: c.enter, Want: 1}); err != nil {
						t.Error(err)
					}
				})
			}
		}
	}
}

func TestSoftUsesSupportAssembly(t *testing.T) {
	ty := Soft().Type(cil.Unsigned)
	st, ok := ty.(cil.Tstruct)
	if !ok {
		t.Fatalf("expected Tstruct, got %T", ty)
	}
	if st.Ref.Assembly != SupportAssembly {
		t.Errorf("assembly = %q", st.Ref.Assembly)
	}
}
