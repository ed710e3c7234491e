package mir

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrSyntax is returned (wrapped in a *ParseError) for malformed modules.
var ErrSyntax = errors.New("mir syntax error")

// ParseError collects every problem found in a module.
type ParseError struct {
	errors []string
}

// Errors returns the list of parsing errors
func (e *ParseError) Errors() []string {
	return e.errors
}

func (e *ParseError) Error() string {
	if len(e.errors) == 1 {
		return e.errors[0]
	}
	return fmt.Sprintf("%s (and %d more errors)", e.errors[0], len(e.errors)-1)
}

func (e *ParseError) Unwrap() error { return ErrSyntax }

// File layout of a module:
//
//	functions:
//	  - name: add_u8
//	    params: [u8, u8]
//	    locals: ["(u8, bool)"]
//	    body:
//	      - _0 = checked add(arg0, arg1)
type yamlModule struct {
	Functions []yamlFunction `yaml:"functions"`
}

type yamlFunction struct {
	Name   string   `yaml:"name"`
	Params []string `yaml:"params"`
	Locals []string `yaml:"locals"`
	Body   []string `yaml:"body"`
	Result string   `yaml:"result"`
}

// Load reads a module from a yaml file.
func Load(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse reads a module from yaml.
func Parse(data []byte) (*Module, error) {
	var ym yamlModule
	if err := yaml.Unmarshal(data, &ym); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}

	p := &parser{}
	m := &Module{}
	seen := make(map[string]bool)
	for _, yf := range ym.Functions {
		if seen[yf.Name] {
			p.addError(yf.Name, "duplicate function")
			continue
		}
		seen[yf.Name] = true
		if f := p.function(yf); f != nil {
			m.Functions = append(m.Functions, f)
		}
	}
	if len(p.errors) > 0 {
		return nil, &ParseError{errors: p.errors}
	}
	return m, nil
}

type parser struct {
	errors []string
}

func (p *parser) addError(where, msg string) {
	p.errors = append(p.errors, fmt.Sprintf("%s: %s", where, msg))
}

func (p *parser) function(yf yamlFunction) *Function {
	if yf.Name == "" {
		p.addError("module", "function without a name")
		return nil
	}
	start := len(p.errors)
	f := &Function{Name: yf.Name}

	for i, s := range yf.Params {
		t, err := ParseTy(s)
		if err != nil {
			p.addError(fmt.Sprintf("%s: arg%d", yf.Name, i), err.Error())
			continue
		}
		f.Params = append(f.Params, t)
	}
	for i, s := range yf.Locals {
		t, err := ParseTy(s)
		if err != nil {
			p.addError(fmt.Sprintf("%s: _%d", yf.Name, i), err.Error())
			continue
		}
		f.Locals = append(f.Locals, t)
	}
	if len(f.Locals) == 0 && len(yf.Locals) == 0 {
		p.addError(yf.Name, "at least one local (the return value) is required")
	}

	if yf.Result != "" {
		op, err := parseOperand(yf.Result)
		c, ok := op.(Copy)
		if err != nil || !ok {
			p.addError(yf.Name, fmt.Sprintf("result must be a local, got %q", yf.Result))
		} else {
			f.Result = c.Local
		}
	}

	for i, s := range yf.Body {
		a, err := parseAssign(s)
		if err != nil {
			p.addError(fmt.Sprintf("%s: statement %d", yf.Name, i), err.Error())
			continue
		}
		f.Body = append(f.Body, a)
	}

	if len(p.errors) > start {
		return nil
	}
	for _, msg := range check(f) {
		p.addError(yf.Name, msg)
	}
	if len(p.errors) > start {
		return nil
	}
	return f
}

// check validates local and argument references.
func check(f *Function) []string {
	var msgs []string
	if f.Result < 0 || f.Result >= len(f.Locals) {
		msgs = append(msgs, fmt.Sprintf("result _%d is not declared", f.Result))
	}
	operand := func(i int, o Operand) {
		switch o := o.(type) {
		case Copy:
			if o.Local < 0 || o.Local >= len(f.Locals) {
				msgs = append(msgs, fmt.Sprintf("statement %d: _%d is not declared", i, o.Local))
			}
		case Arg:
			if o.Index < 0 || o.Index >= len(f.Params) {
				msgs = append(msgs, fmt.Sprintf("statement %d: arg%d is not declared", i, o.Index))
			}
		}
	}
	for i, a := range f.Body {
		if a.Dest < 0 || a.Dest >= len(f.Locals) {
			msgs = append(msgs, fmt.Sprintf("statement %d: _%d is not declared", i, a.Dest))
		}
		switch rv := a.Value.(type) {
		case Use:
			operand(i, rv.Arg)
		case CheckedBinary:
			operand(i, rv.Left)
			operand(i, rv.Right)
		case Unary:
			operand(i, rv.Arg)
		}
	}
	return msgs
}

// ParseTy parses a type: u8 ... u128, i8 ... i128, bool or a tuple such as
// (u8, bool).
func ParseTy(s string) (Ty, error) {
	s = strings.TrimSpace(s)
	if s == "bool" {
		return TBool{}, nil
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		inner := strings.TrimSpace(s[1 : len(s)-1])
		if inner == "" {
			return TTuple{}, nil
		}
		var elems []Ty
		for _, part := range splitTop(inner) {
			t, err := ParseTy(part)
			if err != nil {
				return nil, err
			}
			elems = append(elems, t)
		}
		return TTuple{Elems: elems}, nil
	}
	if len(s) > 1 && (s[0] == 'i' || s[0] == 'u') {
		bits, err := strconv.Atoi(s[1:])
		if err == nil {
			switch bits {
			case 8, 16, 32, 64, 128:
				return TInt{Bits: bits, Signed: s[0] == 'i'}, nil
			}
		}
	}
	return nil, fmt.Errorf("unknown type %q", s)
}

// splitTop splits on commas outside parentheses.
func splitTop(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// parseAssign parses "_N = rvalue".
func parseAssign(s string) (Assign, error) {
	lhs, rhs, ok := strings.Cut(s, "=")
	if !ok {
		return Assign{}, fmt.Errorf("expected assignment, got %q", s)
	}
	dest, err := parseOperand(lhs)
	if err != nil {
		return Assign{}, err
	}
	local, ok := dest.(Copy)
	if !ok {
		return Assign{}, fmt.Errorf("cannot assign to %s", dest)
	}
	rv, err := parseRvalue(strings.TrimSpace(rhs))
	if err != nil {
		return Assign{}, err
	}
	return Assign{Dest: local.Local, Value: rv}, nil
}

var binOps = map[string]BinOp{"add": Add, "sub": Sub, "mul": Mul}
var unOps = map[string]UnOp{"neg": Neg, "not": Not}

// parseRvalue parses "checked op(a, b)", "neg(a)", "not(a)" or an operand.
func parseRvalue(s string) (Rvalue, error) {
	name, args, isCall, err := splitCall(s)
	if err != nil {
		return nil, err
	}
	if !isCall {
		op, err := parseOperand(s)
		if err != nil {
			return nil, err
		}
		return Use{Arg: op}, nil
	}

	if rest, ok := strings.CutPrefix(name, "checked "); ok {
		op, ok := binOps[strings.TrimSpace(rest)]
		if !ok {
			return nil, fmt.Errorf("unknown checked operator %q", rest)
		}
		if len(args) != 2 {
			return nil, fmt.Errorf("checked %s takes 2 operands, got %d", op, len(args))
		}
		left, err := parseOperand(args[0])
		if err != nil {
			return nil, err
		}
		right, err := parseOperand(args[1])
		if err != nil {
			return nil, err
		}
		return CheckedBinary{Op: op, Left: left, Right: right}, nil
	}

	op, ok := unOps[name]
	if !ok {
		return nil, fmt.Errorf("unknown operator %q", name)
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("%s takes 1 operand, got %d", op, len(args))
	}
	arg, err := parseOperand(args[0])
	if err != nil {
		return nil, err
	}
	return Unary{Op: op, Arg: arg}, nil
}

func splitCall(s string) (name string, args []string, isCall bool, err error) {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return "", nil, false, nil
	}
	if !strings.HasSuffix(s, ")") {
		return "", nil, false, fmt.Errorf("missing ')' in %q", s)
	}
	name = strings.TrimSpace(s[:open])
	inner := strings.TrimSpace(s[open+1 : len(s)-1])
	if inner != "" {
		args = splitTop(inner)
	}
	return name, args, true, nil
}

// parseOperand parses _N, argN, true, false or a typed literal such as
// 200_u8 or -5_i32.
func parseOperand(s string) (Operand, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "true":
		return Const{Ty: TBool{}, Value: 1}, nil
	case "false":
		return Const{Ty: TBool{}, Value: 0}, nil
	}
	if rest, ok := strings.CutPrefix(s, "_"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("bad local %q", s)
		}
		return Copy{Local: n}, nil
	}
	if rest, ok := strings.CutPrefix(s, "arg"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("bad argument %q", s)
		}
		return Arg{Index: n}, nil
	}

	i := strings.LastIndexByte(s, '_')
	if i <= 0 {
		return nil, fmt.Errorf("bad operand %q", s)
	}
	ty, err := ParseTy(s[i+1:])
	if err != nil {
		return nil, fmt.Errorf("bad literal %q: %w", s, err)
	}
	it, ok := ty.(TInt)
	if !ok {
		return nil, fmt.Errorf("bad literal %q", s)
	}
	return parseLiteral(strings.ReplaceAll(s[:i], "_", ""), it)
}

// parseLiteral reads an integer literal of type t. 128-bit literals are
// limited to the 64-bit range of the same signedness.
func parseLiteral(digits string, t TInt) (Operand, error) {
	bits := t.Bits
	if bits > 64 {
		bits = 64
	}
	if t.Signed {
		v, err := strconv.ParseInt(digits, 10, bits)
		if err != nil {
			return nil, fmt.Errorf("literal %s_%s out of range", digits, t)
		}
		return Const{Ty: t, Value: v}, nil
	}
	v, err := strconv.ParseUint(digits, 10, bits)
	if err != nil {
		return nil, fmt.Errorf("literal %s_%s out of range", digits, t)
	}
	return Const{Ty: t, Value: int64(v)}, nil
}
