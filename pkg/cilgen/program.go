package cilgen

import (
	"context"
	"io"
	"runtime"

	"github.com/charmbracelet/log"
	"github.com/raymyers/ralph-cil/pkg/cil"
	"github.com/raymyers/ralph-cil/pkg/mir"
	"github.com/raymyers/ralph-cil/pkg/wideint"
	"golang.org/x/sync/errgroup"
)

// Options configures translation.
type Options struct {
	// Wide provides 128-bit integers; nil when the target has none.
	Wide wideint.Provider
	// Jobs bounds the number of functions lowered at once; 0 means
	// GOMAXPROCS.
	Jobs int
	// Logger receives debug output; nil discards it.
	Logger *log.Logger
}

func (o Options) logger() *log.Logger {
	if o.Logger == nil {
		return log.New(io.Discard)
	}
	return o.Logger
}

// Program is a translated module.
type Program struct {
	Methods []cil.Method
}

// TranslateModule lowers every function of mod concurrently. Methods keep
// the order of mod.Functions. The first failure cancels the remaining
// work and is returned.
func TranslateModule(ctx context.Context, mod *mir.Module, opts Options) (*Program, error) {
	logger := opts.logger()
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	methods := make([]cil.Method, len(mod.Functions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	for i, fn := range mod.Functions {
		i, fn := i, fn
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := TranslateFunction(fn, opts)
			if err != nil {
				return err
			}
			stats, err := cil.Verify(m.Body, cil.VerifyOptions{})
			if err != nil {
				return &TranslateError{Func: fn.Name, Stmt: -1, Err: err}
			}
			logger.Debug("lowered function", "name", fn.Name, "ops", len(fn.Body), "instrs", m.Body.Len(), "temps", stats.MaxTemps)
			methods[i] = m
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Program{Methods: methods}, nil
}

// Realize maps the temporaries of every method to locals.
func (p *Program) Realize() (*Program, error) {
	out := &Program{Methods: make([]cil.Method, len(p.Methods))}
	for i, m := range p.Methods {
		r, _, err := RealizeTemps(m)
		if err != nil {
			return nil, err
		}
		out.Methods[i] = r
	}
	return out, nil
}

// Method finds a method by name.
func (p *Program) Method(name string) (cil.Method, bool) {
	for _, m := range p.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return cil.Method{}, false
}
