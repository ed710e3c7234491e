package checked

import (
	"github.com/raymyers/ralph-cil/pkg/cil"
	"github.com/raymyers/ralph-cil/pkg/slots"
)

// Field names of System.ValueTuple`2.
const (
	ValueField    = "Item1"
	OverflowField = "Item2"
)

// PairType is the result type of a checked operation on t: a value tuple
// of the wrapped result and the overflow flag.
func PairType(t cil.Type) cil.Type {
	return cil.Tuple(t, cil.Bool())
}

// PairFields returns the value and overflow field descriptors of the pair
// for t.
func PairFields(t cil.Type) (value, overflow *cil.FieldDescriptor) {
	owner := PairType(t)
	value = &cil.FieldDescriptor{Owner: owner, Type: cil.Tgeneric{Index: 0}, Name: ValueField}
	overflow = &cil.FieldDescriptor{Owner: owner, Type: cil.Tgeneric{Index: 1}, Name: OverflowField}
	return value, overflow
}

// buildPair allocates the result pair, stores the flag held in flag and the
// value pushed by value, pushes the pair and frees every slot on s.
func buildPair(s *slots.Stack, t cil.Type, flag slots.Slot, value func()) {
	valueField, overflowField := PairFields(t)

	pair := s.Alloc(PairType(t))
	s.LoadAddr(pair)
	s.Load(flag)
	s.Emit(cil.StField{Field: overflowField})
	s.LoadAddr(pair)
	value()
	s.Emit(cil.StField{Field: valueField})
	s.Load(pair)
	s.FreeAll()
}
