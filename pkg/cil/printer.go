// Package cil provides printing functionality for lowered code.
// Format follows ilasm syntax; temporary-slot pseudo-instructions are
// printed as tmp.* so unrealized fragments stay readable.
package cil

import (
	"fmt"
	"io"
)

// Printer outputs CIL in a readable format
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new CIL printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintMethods prints methods separated by blank lines
func (p *Printer) PrintMethods(methods []*Method) {
	for i, m := range methods {
		p.PrintMethod(m)
		if i < len(methods)-1 {
			fmt.Fprintln(p.w)
		}
	}
}

// PrintMethod prints a method header, its locals and its body
func (p *Printer) PrintMethod(m *Method) {
	out := "void"
	if m.Sig.Output != nil {
		out = typeName(m.Sig.Output)
	}
	fmt.Fprintf(p.w, ".method public static %s %s(", out, m.Name)
	for i, in := range m.Sig.Inputs {
		if i > 0 {
			fmt.Fprint(p.w, ", ")
		}
		fmt.Fprint(p.w, typeName(in))
	}
	fmt.Fprintln(p.w, ") {")

	if len(m.Locals) > 0 {
		fmt.Fprint(p.w, "  .locals init (")
		for i, l := range m.Locals {
			if i > 0 {
				fmt.Fprint(p.w, ", ")
			}
			fmt.Fprintf(p.w, "[%d] %s", i, typeName(l))
		}
		fmt.Fprintln(p.w, ")")
	}

	p.PrintFragment(m.Body)
	fmt.Fprintln(p.w, "}")
}

// PrintFragment prints one instruction per line
func (p *Printer) PrintFragment(f Fragment) {
	for _, in := range f.code {
		fmt.Fprintf(p.w, "  %s\n", InstrString(in))
	}
}

// InstrString renders a single instruction.
func InstrString(in Instr) string {
	switch i := in.(type) {
	case LdcI32:
		return fmt.Sprintf("ldc.i4 %d", i.Value)
	case LdcI64:
		return fmt.Sprintf("ldc.i8 %d", i.Value)
	case Add:
		return "add"
	case Sub:
		return "sub"
	case Mul:
		return "mul"
	case And:
		return "and"
	case Or:
		return "or"
	case Xor:
		return "xor"
	case Not:
		return "not"
	case Neg:
		return "neg"
	case Ceq:
		return "ceq"
	case Cgt:
		return "cgt"
	case CgtUn:
		return "cgt.un"
	case Clt:
		return "clt"
	case CltUn:
		return "clt.un"
	case Conv:
		return "conv." + convSuffix(i.To)
	case Dup:
		return "dup"
	case Pop:
		return "pop"
	case Nop:
		return "nop"
	case Call:
		return "call " + callString(i.Site)
	case Ldarg:
		return fmt.Sprintf("ldarg %d", i.Index)
	case Ldloc:
		return fmt.Sprintf("ldloc %d", i.Index)
	case Stloc:
		return fmt.Sprintf("stloc %d", i.Index)
	case Ldloca:
		return fmt.Sprintf("ldloca %d", i.Index)
	case StField:
		return "stfld " + fieldString(i.Field)
	case Ret:
		return "ret"
	case TmpNew:
		return "tmp.new " + typeName(i.Type)
	case TmpStore:
		return fmt.Sprintf("tmp.store %d", i.Depth)
	case TmpLoad:
		return fmt.Sprintf("tmp.load %d", i.Depth)
	case TmpLoadAddr:
		return fmt.Sprintf("tmp.loada %d", i.Depth)
	case TmpFree:
		return "tmp.free"
	}
	return fmt.Sprintf("<unknown %T>", in)
}

func convSuffix(t Tint) string {
	s := map[IntSize]string{I8: "1", I16: "2", I32: "4", I64: "8"}[t.Size]
	if t.Sign == Unsigned {
		return "u" + s
	}
	return "i" + s
}

// typeName renders a type the way ilasm spells it in signatures.
func typeName(t Type) string {
	switch ty := t.(type) {
	case Tint:
		if ty.Size == I128 {
			if ty.Sign == Unsigned {
				return UInt128Ref.String()
			}
			return Int128Ref.String()
		}
		names := map[IntSize]string{I8: "int8", I16: "int16", I32: "int32", I64: "int64"}
		if ty.Sign == Unsigned {
			return "unsigned " + names[ty.Size]
		}
		return names[ty.Size]
	case Tbool:
		return "bool"
	case nil:
		return "void"
	}
	return t.String()
}

func callString(c *CallSite) string {
	if c == nil {
		return "<nil>"
	}
	prefix := ""
	if !c.Static {
		prefix = "instance "
	}
	out := "void"
	if c.Sig.Output != nil {
		out = typeName(c.Sig.Output)
	}
	owner := ""
	if c.Class != nil {
		owner = ownerName(c.Class) + "::"
	}
	s := fmt.Sprintf("%s%s %s%s(", prefix, out, owner, c.Name)
	for i, in := range c.Sig.Inputs {
		if i > 0 {
			s += ", "
		}
		s += typeName(in)
	}
	return s + ")"
}

func fieldString(f *FieldDescriptor) string {
	if f == nil {
		return "<nil>"
	}
	owner := typeName(f.Owner)
	if st, ok := f.Owner.(Tstruct); ok && st.Ref != nil {
		owner = ownerName(st.Ref)
	}
	return fmt.Sprintf("%s %s::%s", typeName(f.Type), owner, f.Name)
}

// ownerName renders the owner of a member reference. Generic instances keep
// their valuetype/class keyword, plain types are written bare.
func ownerName(r *TypeRef) string {
	if len(r.Generics) > 0 {
		return r.String()
	}
	if r.Assembly != "" {
		return "[" + r.Assembly + "]" + r.Name
	}
	return r.Name
}
