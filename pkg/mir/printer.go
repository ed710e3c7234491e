package mir

import (
	"fmt"
	"io"
)

// Printer outputs MIR in the same text syntax the loader reads
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new MIR printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintModule prints every function of m
func (p *Printer) PrintModule(m *Module) {
	for i, fn := range m.Functions {
		p.PrintFunction(fn)
		if i < len(m.Functions)-1 {
			fmt.Fprintln(p.w)
		}
	}
}

// PrintFunction prints a function
func (p *Printer) PrintFunction(fn *Function) {
	fmt.Fprintf(p.w, "fn %s(", fn.Name)
	for i, t := range fn.Params {
		if i > 0 {
			fmt.Fprint(p.w, ", ")
		}
		fmt.Fprintf(p.w, "arg%d: %s", i, t)
	}
	fmt.Fprint(p.w, ")")
	if rt := fn.ReturnType(); rt != nil {
		fmt.Fprintf(p.w, " -> %s", rt)
	}
	fmt.Fprintln(p.w, " {")

	for i, t := range fn.Locals {
		fmt.Fprintf(p.w, "    let _%d: %s;\n", i, t)
	}
	if len(fn.Locals) > 0 {
		fmt.Fprintln(p.w)
	}
	for _, a := range fn.Body {
		fmt.Fprintf(p.w, "    _%d = %s;\n", a.Dest, RvalueString(a.Value))
	}
	fmt.Fprintf(p.w, "    return _%d;\n", fn.Result)
	fmt.Fprintln(p.w, "}")
}

// RvalueString renders rv in loader syntax.
func RvalueString(rv Rvalue) string {
	switch rv := rv.(type) {
	case Use:
		return rv.Arg.String()
	case CheckedBinary:
		return fmt.Sprintf("checked %s(%s, %s)", rv.Op, rv.Left, rv.Right)
	case Unary:
		return fmt.Sprintf("%s(%s)", rv.Op, rv.Arg)
	}
	return "?"
}
