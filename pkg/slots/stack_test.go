package slots

import (
	"errors"
	"testing"

	"github.com/raymyers/ralph-cil/pkg/cil"
)

func render(f cil.Fragment) []string {
	out := make([]string, f.Len())
	for i, in := range f.Instrs() {
		out[i] = cil.InstrString(in)
	}
	return out
}

func TestDepthIsRelativeToTop(t *testing.T) {
	s := New()
	a := s.Spill(cil.Int32())
	b := s.Spill(cil.Int64())
	s.Load(a)
	s.Load(b)
	c := s.Alloc(cil.Bool())
	s.LoadAddr(a)
	s.Store(c)
	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	if !cil.Equal(s.Type(b), cil.Int64()) {
		t.Errorf("Type(b) = %v", s.Type(b))
	}
	s.FreeAll()

	f, err := s.Fragment()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"tmp.new int32", "tmp.store 0",
		"tmp.new int64", "tmp.store 0",
		"tmp.load 1", "tmp.load 0",
		"tmp.new bool",
		"tmp.loada 2",
		"tmp.store 0",
		"tmp.free", "tmp.free", "tmp.free",
	}
	got := render(f)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("#%d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLoadAtDepth(t *testing.T) {
	s := New()
	s.Alloc(cil.Int32())
	s.Alloc(cil.Int32())
	s.LoadAtDepth(1)
	s.FreeAll()
	f, err := s.Fragment()
	if err != nil {
		t.Fatal(err)
	}
	if got := cil.InstrString(f.At(2)); got != "tmp.load 1" {
		t.Errorf("got %q, want tmp.load 1", got)
	}
}

func TestFragmentVerifies(t *testing.T) {
	s := New()
	b := s.Spill(cil.Int32())
	a := s.Spill(cil.Int32())
	s.Load(a)
	s.Load(b)
	s.Emit(cil.Add{})
	s.FreeAll()
	f, err := s.Fragment()
	if err != nil {
		t.Fatal(err)
	}
	stats, err := cil.Verify(f, cil.VerifyOptions{Stack: 2, Want: 1})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if stats.Allocs != 2 || stats.Frees != 2 || stats.MaxTemps != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestUnbalanced(t *testing.T) {
	tests := []struct {
		name  string
		build func(s *Stack)
	}{
		{"leaked slot", func(s *Stack) { s.Alloc(cil.Int32()) }},
		{"free on empty", func(s *Stack) { s.Free() }},
		{"stale handle", func(s *Stack) {
			sl := s.Alloc(cil.Int32())
			s.Free()
			s.Load(sl)
		}},
		{"reused position", func(s *Stack) {
			old := s.Alloc(cil.Int32())
			s.Free()
			s.Alloc(cil.Int32())
			s.Store(old)
			s.FreeAll()
		}},
		{"depth out of range", func(s *Stack) { s.LoadAtDepth(0) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			tt.build(s)
			if _, err := s.Fragment(); !errors.Is(err, ErrUnbalanced) {
				t.Errorf("expected ErrUnbalanced, got %v", err)
			}
		})
	}
}

func TestFirstErrorWins(t *testing.T) {
	s := New()
	s.Free()
	s.LoadAtDepth(4)
	_, err := s.Fragment()
	if err == nil || err.Error() != "unbalanced temporary slots: free with no live slots" {
		t.Errorf("unexpected error: %v", err)
	}
}
