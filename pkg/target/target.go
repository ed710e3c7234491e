// Package target describes the runtime the generated code will run on.
// Profiles are built in or loaded from yaml; runtime capabilities are
// decided by semantic version constraints.
package target

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// ErrUnknownTarget is returned for a profile name that is not built in.
var ErrUnknownTarget = errors.New("unknown target")

// Int128Mode selects how 128-bit integer operations are provided.
type Int128Mode int

const (
	// Int128Auto uses the runtime type when the runtime has one and the
	// software helpers otherwise.
	Int128Auto Int128Mode = iota
	// Int128Runtime requires System.Int128/System.UInt128.
	Int128Runtime
	// Int128Soft always calls the software helpers shipped with the compiler.
	Int128Soft
	// Int128None disables 128-bit lowering; operations needing it fail.
	Int128None
)

var int128ModeNames = []string{"auto", "runtime", "soft", "none"}

func (m Int128Mode) String() string {
	if m >= 0 && int(m) < len(int128ModeNames) {
		return int128ModeNames[m]
	}
	return "?"
}

// Set parses a mode name. Together with String and Type it makes
// *Int128Mode usable as a command line flag value.
func (m *Int128Mode) Set(s string) error {
	for i, n := range int128ModeNames {
		if strings.EqualFold(s, n) {
			*m = Int128Mode(i)
			return nil
		}
	}
	return fmt.Errorf("invalid int128 mode %q (want one of %s)", s, strings.Join(int128ModeNames, ", "))
}

// Type names the flag value type.
func (m *Int128Mode) Type() string { return "mode" }

// UnmarshalYAML reads a mode name.
func (m *Int128Mode) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return m.Set(s)
}

// MarshalYAML writes a mode name.
func (m Int128Mode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

// nativeInt128Constraint is the first runtime with System.Int128.
const nativeInt128Constraint = ">= 7.0.0"

// Target is a runtime profile.
type Target struct {
	Name    string     `yaml:"name"`
	Runtime string     `yaml:"runtime"` // semantic version, empty for none
	Int128  Int128Mode `yaml:"int128"`
}

var builtins = map[string]Target{
	"net8": {Name: "net8", Runtime: "8.0.0", Int128: Int128Auto},
	"net7": {Name: "net7", Runtime: "7.0.0", Int128: Int128Auto},
	"net6": {Name: "net6", Runtime: "6.0.0", Int128: Int128Auto},
	"bare": {Name: "bare", Runtime: "", Int128: Int128None},
}

// DefaultName is the profile used when none is given.
const DefaultName = "net8"

// Default returns the default profile.
func Default() Target {
	return builtins[DefaultName]
}

// Builtin returns the named built-in profile.
func Builtin(name string) (Target, error) {
	t, ok := builtins[name]
	if !ok {
		return Target{}, fmt.Errorf("%w %q (built in: %s)", ErrUnknownTarget, name, strings.Join(Names(), ", "))
	}
	return t, nil
}

// Names lists built-in profiles in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Parse reads a profile from yaml. Missing fields default to the default
// profile's values.
func Parse(data []byte) (Target, error) {
	t := Default()
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Target{}, fmt.Errorf("parsing target: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Target{}, err
	}
	return t, nil
}

// Load reads a profile file.
func Load(path string) (Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Target{}, err
	}
	return Parse(data)
}

// Resolve returns a built-in profile by name, or loads it when the
// argument names a yaml file.
func Resolve(nameOrPath string) (Target, error) {
	if nameOrPath == "" {
		return Default(), nil
	}
	if strings.HasSuffix(nameOrPath, ".yaml") || strings.HasSuffix(nameOrPath, ".yml") {
		return Load(nameOrPath)
	}
	return Builtin(nameOrPath)
}

// Validate checks the runtime version syntax.
func (t Target) Validate() error {
	if t.Runtime == "" {
		return nil
	}
	if _, err := semver.NewVersion(t.Runtime); err != nil {
		return fmt.Errorf("target %s: runtime version %q: %w", t.Name, t.Runtime, err)
	}
	return nil
}

// Supports reports whether the target runtime satisfies constraint. A
// target without a runtime supports nothing.
func (t Target) Supports(constraint string) (bool, error) {
	if t.Runtime == "" {
		return false, nil
	}
	v, err := semver.NewVersion(t.Runtime)
	if err != nil {
		return false, fmt.Errorf("target %s: runtime version %q: %w", t.Name, t.Runtime, err)
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, err
	}
	return c.Check(v), nil
}

// NativeInt128 reports whether the runtime provides System.Int128.
func (t Target) NativeInt128() (bool, error) {
	return t.Supports(nativeInt128Constraint)
}
