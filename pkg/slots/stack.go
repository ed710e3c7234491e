// Temporary slot management for checked lowering.
// Slots live on an explicit stack owned by one lowering call. Each
// allocation is addressed by a handle; the depth used in the emitted
// instruction is computed from the stack length at the point of use.

package slots

import (
	"errors"
	"fmt"

	"github.com/raymyers/ralph-cil/pkg/cil"
)

// ErrUnbalanced is returned when a lowering leaves temporaries live or
// addresses a slot that was already freed.
var ErrUnbalanced = errors.New("unbalanced temporary slots")

// Slot is a handle to an allocated temporary.
type Slot struct {
	index int // position in the stack, 0 = bottom
	id    int // allocation serial, guards against stale handles
}

type entry struct {
	typ cil.Type
	id  int
}

// Stack builds one fragment while tracking its temporary slots.
// It is not safe for concurrent use; each lowering creates its own.
type Stack struct {
	code   []cil.Instr
	live   []entry
	nextID int
	err    error
}

// New creates an empty slot stack.
func New() *Stack {
	return &Stack{nextID: 1}
}

// Emit appends instructions to the fragment under construction.
func (s *Stack) Emit(code ...cil.Instr) {
	s.code = append(s.code, code...)
}

// Append appends an existing fragment.
func (s *Stack) Append(f cil.Fragment) {
	s.code = append(s.code, f.Instrs()...)
}

// Alloc allocates a fresh slot of type t on top of the stack.
func (s *Stack) Alloc(t cil.Type) Slot {
	sl := Slot{index: len(s.live), id: s.nextID}
	s.nextID++
	s.live = append(s.live, entry{typ: t, id: sl.id})
	s.Emit(cil.TmpNew{Type: t})
	return sl
}

// Spill allocates a slot of type t and stores the top of the evaluation
// stack into it.
func (s *Stack) Spill(t cil.Type) Slot {
	sl := s.Alloc(t)
	s.Store(sl)
	return sl
}

// Store pops the evaluation stack into sl.
func (s *Stack) Store(sl Slot) {
	if d, ok := s.depth(sl); ok {
		s.Emit(cil.TmpStore{Depth: d})
	}
}

// Load pushes the value held in sl.
func (s *Stack) Load(sl Slot) {
	if d, ok := s.depth(sl); ok {
		s.Emit(cil.TmpLoad{Depth: d})
	}
}

// LoadAddr pushes the address of sl.
func (s *Stack) LoadAddr(sl Slot) {
	if d, ok := s.depth(sl); ok {
		s.Emit(cil.TmpLoadAddr{Depth: d})
	}
}

// LoadAtDepth pushes the slot n allocations below the top without
// freeing anything.
func (s *Stack) LoadAtDepth(n int) {
	if n < 0 || n >= len(s.live) {
		s.fail(fmt.Errorf("%w: depth %d with %d live", ErrUnbalanced, n, len(s.live)))
		return
	}
	s.Emit(cil.TmpLoad{Depth: n})
}

// Type returns the type sl was allocated with.
func (s *Stack) Type(sl Slot) cil.Type {
	if _, ok := s.depth(sl); !ok {
		return nil
	}
	return s.live[sl.index].typ
}

// Free releases the most recently allocated slot.
func (s *Stack) Free() {
	if len(s.live) == 0 {
		s.fail(fmt.Errorf("%w: free with no live slots", ErrUnbalanced))
		return
	}
	s.live = s.live[:len(s.live)-1]
	s.Emit(cil.TmpFree{})
}

// FreeAll releases every live slot, most recent first.
func (s *Stack) FreeAll() {
	for len(s.live) > 0 {
		s.Free()
	}
}

// Len returns the number of live slots.
func (s *Stack) Len() int {
	return len(s.live)
}

// Fragment returns the emitted code. It fails if any slot is still live or
// a stale handle was used.
func (s *Stack) Fragment() (cil.Fragment, error) {
	if s.err != nil {
		return cil.Fragment{}, s.err
	}
	if len(s.live) != 0 {
		return cil.Fragment{}, fmt.Errorf("%w: %d slots live at end of fragment", ErrUnbalanced, len(s.live))
	}
	return cil.NewFragment(s.code...), nil
}

func (s *Stack) depth(sl Slot) (int, bool) {
	if sl.index < 0 || sl.index >= len(s.live) || s.live[sl.index].id != sl.id {
		s.fail(fmt.Errorf("%w: slot %d is not live", ErrUnbalanced, sl.id))
		return 0, false
	}
	return len(s.live) - 1 - sl.index, true
}

func (s *Stack) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}
