package cil

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestTintLimits(t *testing.T) {
	tests := []struct {
		ty   Tint
		max  uint64
		min  int64
		mask uint64
	}{
		{Tint{I8, Signed}, 127, -128, 0x80},
		{Tint{I8, Unsigned}, 255, 0, 0x80},
		{Tint{I16, Signed}, 32767, -32768, 0x8000},
		{Tint{I16, Unsigned}, 65535, 0, 0x8000},
		{Tint{I32, Signed}, 1<<31 - 1, -1 << 31, 1 << 31},
		{Tint{I32, Unsigned}, 1<<32 - 1, 0, 1 << 31},
		{Tint{I64, Signed}, 1<<63 - 1, -1 << 63, 1 << 63},
		{Tint{I64, Unsigned}, ^uint64(0), 0, 1 << 63},
	}

	for _, tt := range tests {
		t.Run(tt.ty.String(), func(t *testing.T) {
			if got := MaxValue(tt.ty); got != tt.max {
				t.Errorf("MaxValue = %d, want %d", got, tt.max)
			}
			if got := MinValue(tt.ty); got != tt.min {
				t.Errorf("MinValue = %d, want %d", got, tt.min)
			}
			if got := SignMask(tt.ty); got != tt.mask {
				t.Errorf("SignMask = %#x, want %#x", got, tt.mask)
			}
			if !tt.ty.IsNative() {
				t.Error("expected native")
			}
		})
	}
}

func TestTintDouble(t *testing.T) {
	d, ok := Tint{I16, Unsigned}.Double()
	if !ok || d != (Tint{I32, Unsigned}) {
		t.Errorf("Double(u16) = %v, %v", d, ok)
	}
	d, ok = Tint{I64, Signed}.Double()
	if !ok || d != (Tint{I128, Signed}) || d.IsNative() {
		t.Errorf("Double(i64) = %v, %v", d, ok)
	}
	if _, ok := (Tint{I128, Signed}).Double(); ok {
		t.Error("i128 has no double")
	}
}

func TestIntSizeStringOutOfRange(t *testing.T) {
	for _, s := range []IntSize{-1, I128 + 1} {
		if got := s.String(); got != "?" {
			t.Errorf("IntSize(%d).String() = %q, want ?", int(s), got)
		}
	}
}

func TestTypeEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Type
		want bool
	}{
		{"same int", Int32(), Int32(), true},
		{"sign differs", Int32(), UInt32(), false},
		{"bool", Bool(), Tbool{}, true},
		{"int vs bool", Int8(), Bool(), false},
		{"tuple", Tuple(UInt8(), Bool()), Tuple(UInt8(), Bool()), true},
		{"tuple element", Tuple(UInt8(), Bool()), Tuple(Int8(), Bool()), false},
		{"tuple arity", Tuple(UInt8(), Bool()), Tuple(UInt8()), false},
		{"struct", Tstruct{Ref: Int128Ref}, Tstruct{Ref: &TypeRef{Assembly: "System.Runtime", Name: "System.Int128", ValueType: true}}, true},
		{"struct name", Tstruct{Ref: Int128Ref}, Tstruct{Ref: UInt128Ref}, false},
		{"generic", Tgeneric{Index: 1}, Tgeneric{Index: 1}, true},
		{"nil", nil, Int8(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestTypeString(t *testing.T) {
	tests := []struct {
		ty   Type
		want string
	}{
		{UInt16(), "u16"},
		{Int64(), "i64"},
		{Tint{I128, Unsigned}, "u128"},
		{Tuple(Int32(), Bool()), "valuetype [System.Runtime]System.ValueTuple`2<i32, bool>"},
		{Tgeneric{Index: 0}, "!0"},
	}
	for _, tt := range tests {
		if got := tt.ty.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestFragment(t *testing.T) {
	a := NewFragment(LdcI32{Value: 1})
	b := a.Append(LdcI32{Value: 2})
	c := Concat(a, b, NewFragment(Add{}))

	if a.Len() != 1 || b.Len() != 2 || c.Len() != 4 {
		t.Fatalf("lengths %d %d %d", a.Len(), b.Len(), c.Len())
	}
	if _, ok := c.At(3).(Add); !ok {
		t.Errorf("At(3) = %T, want Add", c.At(3))
	}

	code := c.Instrs()
	code[0] = Nop{}
	if _, ok := c.At(0).(LdcI32); !ok {
		t.Error("Instrs must return a copy")
	}
	var zero Fragment
	if zero.Len() != 0 || Concat().Len() != 0 {
		t.Error("zero fragment should be empty")
	}
}

func TestCallSiteKey(t *testing.T) {
	site := NewCallSite(&TypeRef{Name: "Helpers"}, "Max", NewFnSig([]Type{Int32(), Int32()}, Int32()), true)
	if got := site.Key(); got != "Helpers::Max(i32,i32)i32" {
		t.Errorf("Key() = %q", got)
	}
	local := NewCallSite(nil, "f", NewFnSig(nil, nil), true)
	if got := local.Key(); got != "f()" {
		t.Errorf("Key() = %q", got)
	}
}

func TestInstrString(t *testing.T) {
	tests := []struct {
		in   Instr
		want string
	}{
		{LdcI32{Value: -5}, "ldc.i4 -5"},
		{LdcI64{Value: 1 << 40}, "ldc.i8 1099511627776"},
		{Conv{To: Tint{I8, Unsigned}}, "conv.u1"},
		{Conv{To: Tint{I64, Signed}}, "conv.i8"},
		{CltUn{}, "clt.un"},
		{CgtUn{}, "cgt.un"},
		{Ldloca{Index: 3}, "ldloca 3"},
		{TmpNew{Type: UInt8()}, "tmp.new unsigned int8"},
		{TmpLoadAddr{Depth: 2}, "tmp.loada 2"},
		{TmpFree{}, "tmp.free"},
		{
			Call{Site: NewCallSite(Int128Ref, "op_Addition", NewFnSig([]Type{Tstruct{Ref: Int128Ref}, Tstruct{Ref: Int128Ref}}, Tstruct{Ref: Int128Ref}), true)},
			"call valuetype [System.Runtime]System.Int128 [System.Runtime]System.Int128::op_Addition(valuetype [System.Runtime]System.Int128, valuetype [System.Runtime]System.Int128)",
		},
		{
			StField{Field: &FieldDescriptor{Owner: Tuple(Int8(), Bool()), Type: Tgeneric{Index: 1}, Name: "Item2"}},
			"stfld !1 valuetype [System.Runtime]System.ValueTuple`2<i8, bool>::Item2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := InstrString(tt.in); got != tt.want {
				t.Errorf("InstrString = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrintMethod(t *testing.T) {
	m := &Method{
		Name:   "add_u8",
		Sig:    NewFnSig([]Type{UInt8(), UInt8()}, Tuple(UInt8(), Bool())),
		Locals: []Type{Tuple(UInt8(), Bool())},
		Body:   NewFragment(Ldarg{Index: 0}, Ldarg{Index: 1}, Add{}, Pop{}, Ldloc{Index: 0}, Ret{}),
	}

	var buf bytes.Buffer
	NewPrinter(&buf).PrintMethods([]*Method{m, m})
	output := buf.String()

	if !strings.Contains(output, ".method public static valuetype [System.Runtime]System.ValueTuple`2<u8, bool> add_u8(unsigned int8, unsigned int8) {") {
		t.Errorf("expected method header, got:\n%s", output)
	}
	if !strings.Contains(output, "  .locals init ([0] valuetype") {
		t.Errorf("expected locals, got:\n%s", output)
	}
	if !strings.Contains(output, "  ldarg 1\n  add\n") {
		t.Errorf("expected body, got:\n%s", output)
	}
	if n := strings.Count(output, ".method"); n != 2 {
		t.Errorf("expected 2 methods, got %d", n)
	}
	if !strings.Contains(output, "}\n\n.method") {
		t.Errorf("expected blank line between methods, got:\n%s", output)
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		code    []Instr
		opts    VerifyOptions
		wantErr bool
		stats   Stats
	}{
		{
			name:  "binary op",
			code:  []Instr{Add{}},
			opts:  VerifyOptions{Stack: 2, Want: 1},
			stats: Stats{MaxStack: 2},
		},
		{
			name: "temporaries",
			code: []Instr{
				TmpNew{Type: Int32()}, TmpStore{Depth: 0},
				TmpNew{Type: Int32()}, TmpStore{Depth: 0},
				TmpLoad{Depth: 1}, TmpLoad{Depth: 0}, Sub{},
				TmpFree{}, TmpFree{},
			},
			opts:  VerifyOptions{Stack: 2, Want: 1},
			stats: Stats{MaxStack: 2, MaxTemps: 2, Allocs: 2, Frees: 2},
		},
		{
			name: "static call",
			code: []Instr{
				LdcI32{Value: 1}, LdcI32{Value: 2},
				Call{Site: NewCallSite(nil, "f", NewFnSig([]Type{Int32(), Int32()}, Int32()), true)},
				Ret{},
			},
			stats: Stats{MaxStack: 2},
		},
		{name: "underflow", code: []Instr{Add{}}, opts: VerifyOptions{Stack: 1}, wantErr: true},
		{name: "wrong exit depth", code: []Instr{Dup{}}, opts: VerifyOptions{Stack: 1, Want: 1}, wantErr: true},
		{name: "dead slot", code: []Instr{TmpLoad{Depth: 0}}, wantErr: true},
		{name: "leaked slot", code: []Instr{TmpNew{Type: Bool()}}, wantErr: true},
		{name: "double free", code: []Instr{TmpNew{Type: Bool()}, TmpFree{}, TmpFree{}}, wantErr: true},
		{name: "ret with two values", code: []Instr{Ret{}}, opts: VerifyOptions{Stack: 2}, wantErr: true},
		{name: "call without site", code: []Instr{Call{}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats, err := Verify(NewFragment(tt.code...), tt.opts)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFragment) {
					t.Fatalf("expected ErrInvalidFragment, got %v", err)
				}
				var ve *VerifyError
				if !errors.As(err, &ve) {
					t.Fatalf("expected *VerifyError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if stats != tt.stats {
				t.Errorf("stats = %+v, want %+v", stats, tt.stats)
			}
		})
	}
}
