package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/raymyers/ralph-cil/pkg/cil"
	"github.com/raymyers/ralph-cil/pkg/cilgen"
	"github.com/raymyers/ralph-cil/pkg/cilvm"
	"github.com/raymyers/ralph-cil/pkg/mir"
	"github.com/raymyers/ralph-cil/pkg/target"
	"github.com/raymyers/ralph-cil/pkg/wideint"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var version = "0.1.0"

// Debug flags for dumping intermediate representations
var (
	dMIR    bool
	dCIL    bool
	dLocals bool
)

// Lowering and execution options
var (
	targetName string
	int128Mode target.Int128Mode
	jobs       int
	runFunc    string
	runArgs    []string
	watchInput bool
	logLevel   string
)

// Int128Mode doubles as the --int128 flag value.
var _ pflag.Value = (*target.Int128Mode)(nil)

// ErrNoSuchFunction is returned by --run for a name the module lacks.
var ErrNoSuchFunction = errors.New("no such function")

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	// Normalize single-dash dump flags to double-dash for pflag compatibility
	return execute(ctx, normalizeFlags(os.Args[1:]), os.Stdout, os.Stderr)
}

// execute runs the root command and maps its error to an exit status.
func execute(ctx context.Context, args []string, out, errOut io.Writer) int {
	rootCmd := newRootCmd(out, errOut)
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(errOut, "ralph-cil: %v\n", err)
		return 1
	}
	return 0
}

// dumpFlagNames lists the dump flags that also accept single-dash style
var dumpFlagNames = []string{"dmir", "dcil", "dlocals"}

// normalizeFlags converts single-dash dump flags like -dcil to --dcil
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = arg
		for _, flagName := range dumpFlagNames {
			if arg == "-"+flagName {
				result[i] = "--" + flagName
				break
			}
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ralph-cil [file]",
		Short: "ralph-cil lowers checked MIR arithmetic to CIL",
		Long: `ralph-cil reads a MIR module (yaml) and lowers its checked
arithmetic and unary operations to CIL stack code. Each intermediate
form can be dumped, and lowered functions can be run on the built-in
reference interpreter.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			filename := args[0]

			logger, err := newLogger(errOut)
			if err != nil {
				return err
			}
			opts, err := buildOptions(cmd, logger)
			if err != nil {
				return err
			}

			if watchInput {
				return watch(cmd.Context(), filename, logger, func() {
					if err := process(cmd.Context(), filename, opts, out, errOut); err != nil {
						fmt.Fprintf(errOut, "ralph-cil: %v\n", err)
					}
				})
			}
			return process(cmd.Context(), filename, opts, out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	// Add debug flags
	rootCmd.Flags().BoolVarP(&dMIR, "dmir", "", false, "Dump parsed MIR")
	rootCmd.Flags().BoolVarP(&dCIL, "dcil", "", false, "Dump CIL with temporary slots")
	rootCmd.Flags().BoolVarP(&dLocals, "dlocals", "", false, "Dump CIL after temporaries are mapped to locals")

	// Add lowering flags
	rootCmd.Flags().StringVar(&targetName, "target", target.DefaultName, "Target profile name or yaml file")
	int128Mode = target.Int128Auto
	rootCmd.Flags().Var(&int128Mode, "int128", "128-bit integer support: auto, runtime, soft or none (overrides the target)")
	rootCmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "Functions lowered in parallel (0 for one per CPU)")
	rootCmd.Flags().StringVar(&runFunc, "run", "", "Run the named function on the reference interpreter")
	rootCmd.Flags().StringSliceVar(&runArgs, "args", nil, "Arguments for --run, comma separated")
	rootCmd.Flags().BoolVarP(&watchInput, "watch", "w", false, "Lower again whenever the input file changes")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error")

	return rootCmd
}

// newLogger creates the stderr logger for --log-level.
func newLogger(w io.Writer) (*log.Logger, error) {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	return log.NewWithOptions(w, log.Options{Level: level, Prefix: "ralph-cil"}), nil
}

// buildOptions resolves the target profile and its 128-bit provider.
func buildOptions(cmd *cobra.Command, logger *log.Logger) (cilgen.Options, error) {
	t, err := target.Resolve(targetName)
	if err != nil {
		return cilgen.Options{}, err
	}
	if cmd.Flags().Changed("int128") {
		t.Int128 = int128Mode
	}

	wide, err := wideint.Select(t)
	switch {
	case errors.Is(err, wideint.ErrUnsupportedTargetFeature):
		// Lowering still works for everything that does not need 128 bits.
		logger.Warn("128-bit integers unavailable", "target", t.Name, "err", err)
	case err != nil:
		return cilgen.Options{}, err
	case t.Int128 == target.Int128Auto && wide.Name() == "soft":
		logger.Warn("runtime has no System.Int128, using software helpers", "target", t.Name, "runtime", t.Runtime)
	default:
		logger.Debug("selected int128 provider", "target", t.Name, "provider", wide.Name())
	}

	return cilgen.Options{Wide: wide, Jobs: jobs, Logger: logger}, nil
}

// process lowers one module and performs the requested dumps and run.
func process(ctx context.Context, filename string, opts cilgen.Options, out, errOut io.Writer) error {
	mod, err := mir.Load(filename)
	if err != nil {
		return err
	}
	if dMIR {
		mir.NewPrinter(out).PrintModule(mod)
	}

	prog, err := cilgen.TranslateModule(ctx, mod, opts)
	if err != nil {
		return err
	}
	if dCIL {
		printProgram(out, prog)
	}

	realized, err := prog.Realize()
	if err != nil {
		return err
	}
	if dLocals {
		printProgram(out, realized)
	}

	if runFunc != "" {
		return runMethod(out, realized, runFunc, runArgs)
	}
	if !dMIR && !dCIL && !dLocals {
		fmt.Fprintf(errOut, "ralph-cil: lowered %d functions from %s\n", len(realized.Methods), filename)
	}
	return nil
}

func printProgram(w io.Writer, p *cilgen.Program) {
	methods := make([]*cil.Method, len(p.Methods))
	for i := range p.Methods {
		methods[i] = &p.Methods[i]
	}
	cil.NewPrinter(w).PrintMethods(methods)
}

// runMethod executes name with textual arguments and prints its result.
func runMethod(w io.Writer, p *cilgen.Program, name string, args []string) error {
	m, ok := p.Method(name)
	if !ok {
		return fmt.Errorf("--run: %w %q", ErrNoSuchFunction, name)
	}
	if len(args) != len(m.Sig.Inputs) {
		return fmt.Errorf("--run: %s takes %d arguments, got %d", name, len(m.Sig.Inputs), len(args))
	}
	values := make([]cilvm.Value, len(args))
	for i, a := range args {
		v, err := cilvm.Parse(m.Sig.Inputs[i], a)
		if err != nil {
			return fmt.Errorf("--run: argument %d: %w", i, err)
		}
		values[i] = v
	}

	vm := cilvm.New(nil)
	vm.Define(p.Methods...)
	result, err := vm.Call(name, values...)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, cilvm.Format(m.Sig.Output, result))
	return nil
}
