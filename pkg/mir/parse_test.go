package mir

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sample = `
functions:
  - name: add_u8
    params: [u8, u8]
    locals: ["(u8, bool)"]
    body:
      - _0 = checked add(arg0, arg1)
  - name: negate
    params: [i32]
    locals: [i32, i32]
    body:
      - _1 = neg(arg0)
      - _0 = _1
  - name: consts
    locals: ["(u64, bool)", bool]
    result: _0
    body:
      - _0 = checked sub(18446744073709551615_u64, 1_000_u64)
      - _1 = not(true)
`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(m.Functions) != 3 {
		t.Fatalf("expected 3 functions, got %d", len(m.Functions))
	}

	add := m.Functions[0]
	if add.Name != "add_u8" || len(add.Params) != 2 {
		t.Errorf("unexpected function %+v", add)
	}
	cb, ok := add.Body[0].Value.(CheckedBinary)
	if !ok {
		t.Fatalf("expected CheckedBinary, got %T", add.Body[0].Value)
	}
	if cb.Op != Add || cb.Left != (Arg{Index: 0}) || cb.Right != (Arg{Index: 1}) {
		t.Errorf("unexpected rvalue %+v", cb)
	}
	want := TTuple{Elems: []Ty{TInt{Bits: 8}, TBool{}}}
	if !TyEqual(add.ReturnType(), want) {
		t.Errorf("return type = %s, want %s", add.ReturnType(), want)
	}

	consts, ok := m.Function("consts")
	if !ok {
		t.Fatal("consts not found")
	}
	sub := consts.Body[0].Value.(CheckedBinary)
	left := sub.Left.(Const)
	if uint64(left.Value) != 18446744073709551615 {
		t.Errorf("u64 max literal = %d", uint64(left.Value))
	}
	if sub.Right.(Const).Value != 1000 {
		t.Errorf("digit separators not stripped: %v", sub.Right)
	}
}

func TestParseTy(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"u8", "u8", false},
		{"i128", "i128", false},
		{"bool", "bool", false},
		{"(i32, bool)", "(i32, bool)", false},
		{"((u8, bool), u16)", "((u8, bool), u16)", false},
		{"u7", "", true},
		{"f32", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ty, err := ParseTy(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %s", ty)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if ty.String() != tt.want {
				t.Errorf("String() = %q, want %q", ty.String(), tt.want)
			}
		})
	}
}

func TestParseOperand(t *testing.T) {
	tests := []struct {
		input string
		want  Operand
	}{
		{"_3", Copy{Local: 3}},
		{"arg1", Arg{Index: 1}},
		{"200_u8", Const{Ty: TInt{Bits: 8}, Value: 200}},
		{"-5_i8", Const{Ty: TInt{Bits: 8, Signed: true}, Value: -5}},
		{"true", Const{Ty: TBool{}, Value: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseOperand(tt.input)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("parseOperand(%q) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"literal range", "functions:\n  - name: f\n    locals: [u8]\n    body: [\"_0 = 300_u8\"]\n", "out of range"},
		{"undeclared local", "functions:\n  - name: f\n    locals: [u8]\n    body: [\"_0 = _4\"]\n", "_4 is not declared"},
		{"undeclared arg", "functions:\n  - name: f\n    locals: [u8]\n    body: [\"_0 = arg0\"]\n", "arg0 is not declared"},
		{"unknown op", "functions:\n  - name: f\n    locals: [u8]\n    body: [\"_0 = checked div(_0, _0)\"]\n", "unknown checked operator"},
		{"no locals", "functions:\n  - name: f\n", "at least one local"},
		{"duplicate", "functions:\n  - name: f\n    locals: [u8]\n  - name: f\n    locals: [u8]\n", "duplicate function"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			if !errors.Is(err, ErrSyntax) {
				t.Fatalf("expected ErrSyntax, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("error %q does not mention %q", err, tt.msg)
			}
		})
	}
}

func TestParseCollectsAllErrors(t *testing.T) {
	src := "functions:\n  - name: f\n    locals: [u9]\n  - name: g\n    locals: [u8]\n    body: [\"_0 = _1\"]\n"
	_, err := Parse([]byte(src))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if len(pe.Errors()) != 2 {
		t.Errorf("expected 2 errors, got %v", pe.Errors())
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.yaml")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatal(err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.Functions) != 3 {
		t.Errorf("expected 3 functions, got %d", len(m.Functions))
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestPrintRoundTrip(t *testing.T) {
	m, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	NewPrinter(&buf).PrintModule(m)
	out := buf.String()

	for _, want := range []string{
		"fn add_u8(arg0: u8, arg1: u8) -> (u8, bool) {",
		"    let _0: (u8, bool);",
		"    _0 = checked add(arg0, arg1);",
		"    _1 = neg(arg0);",
		"    _0 = checked sub(18446744073709551615_u64, 1000_u64);",
		"    _1 = not(true);",
		"    return _0;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}
