// Temporary slot realization.
// Rewrites the tmp.* pseudo-instructions of a method into ordinary local
// accesses. Freed locals go on a per-type free list and are reused by the
// next allocation of the same type, so a method needs at most as many
// extra locals per type as it has live temporaries of that type at once.

package cilgen

import (
	"fmt"

	"github.com/raymyers/ralph-cil/pkg/cil"
	"github.com/raymyers/ralph-cil/pkg/slots"
)

// TempInfo summarizes a realization.
type TempInfo struct {
	Allocs int // tmp.new instructions rewritten
	Added  int // locals appended to the method
}

// localPool hands out locals for temporaries.
type localPool struct {
	locals []cil.Type
	free   map[string][]int // type key -> freed local indices, most recent last
	live   []int            // local index of each live temporary, top last
	added  int
}

func newLocalPool(locals []cil.Type) *localPool {
	return &localPool{
		locals: append([]cil.Type(nil), locals...),
		free:   make(map[string][]int),
	}
}

func typeKey(t cil.Type) string {
	return t.String()
}

// alloc pushes a local of type t, reusing a freed one when possible.
func (p *localPool) alloc(t cil.Type) {
	key := typeKey(t)
	if list := p.free[key]; len(list) > 0 {
		idx := list[len(list)-1]
		p.free[key] = list[:len(list)-1]
		p.live = append(p.live, idx)
		return
	}
	p.locals = append(p.locals, t)
	p.added++
	p.live = append(p.live, len(p.locals)-1)
}

func (p *localPool) at(depth int) (int, error) {
	if depth < 0 || depth >= len(p.live) {
		return 0, fmt.Errorf("%w: depth %d with %d live", slots.ErrUnbalanced, depth, len(p.live))
	}
	return p.live[len(p.live)-1-depth], nil
}

func (p *localPool) release() error {
	if len(p.live) == 0 {
		return fmt.Errorf("%w: free with no live temporaries", slots.ErrUnbalanced)
	}
	idx := p.live[len(p.live)-1]
	p.live = p.live[:len(p.live)-1]
	key := typeKey(p.locals[idx])
	p.free[key] = append(p.free[key], idx)
	return nil
}

// RealizeTemps returns m with every temporary slot mapped to a local.
func RealizeTemps(m cil.Method) (cil.Method, TempInfo, error) {
	pool := newLocalPool(m.Locals)
	var info TempInfo
	code := make([]cil.Instr, 0, m.Body.Len())

	for i, in := range m.Body.Instrs() {
		var err error
		switch tmp := in.(type) {
		case cil.TmpNew:
			pool.alloc(tmp.Type)
			info.Allocs++
		case cil.TmpFree:
			err = pool.release()
		case cil.TmpStore:
			var idx int
			if idx, err = pool.at(tmp.Depth); err == nil {
				code = append(code, cil.Stloc{Index: idx})
			}
		case cil.TmpLoad:
			var idx int
			if idx, err = pool.at(tmp.Depth); err == nil {
				code = append(code, cil.Ldloc{Index: idx})
			}
		case cil.TmpLoadAddr:
			var idx int
			if idx, err = pool.at(tmp.Depth); err == nil {
				code = append(code, cil.Ldloca{Index: idx})
			}
		default:
			code = append(code, in)
		}
		if err != nil {
			return cil.Method{}, info, fmt.Errorf("%s: #%d %s: %w", m.Name, i, cil.InstrString(in), err)
		}
	}
	if len(pool.live) != 0 {
		return cil.Method{}, info, fmt.Errorf("%s: %w: %d temporaries live at end", m.Name, slots.ErrUnbalanced, len(pool.live))
	}

	info.Added = pool.added
	return cil.Method{
		Name:   m.Name,
		Sig:    m.Sig,
		Locals: pool.locals,
		Body:   cil.NewFragment(code...),
	}, info, nil
}
