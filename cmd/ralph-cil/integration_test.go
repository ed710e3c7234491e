package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

const testdataDir = "../../testdata"

// E2ERunTestSpec is one case of e2e_run.yaml
type E2ERunTestSpec struct {
	Name   string   `yaml:"name"`
	Module string   `yaml:"module"`
	Flags  []string `yaml:"flags"`
	Func   string   `yaml:"func"`
	Args   []string `yaml:"args"`
	Want   string   `yaml:"want"`  // printed result
	Error  string   `yaml:"error"` // substring of the diagnostic
	Skip   string   `yaml:"skip,omitempty"`
}

// E2EDumpTestSpec is one case of e2e_dump.yaml
type E2EDumpTestSpec struct {
	Name        string   `yaml:"name"`
	Module      string   `yaml:"module"`
	Flags       []string `yaml:"flags"`
	Expect      []string `yaml:"expect"`       // Strings that must appear in output
	ExpectOrder []string `yaml:"expect_order"` // Strings that must appear in this order
	ExpectNot   []string `yaml:"expect_not"`   // Strings that must NOT appear in output
	Skip        string   `yaml:"skip,omitempty"`
}

func loadSpecs[T any](t *testing.T, name string) []T {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(testdataDir, name))
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	var file struct {
		Tests []T `yaml:"tests"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		t.Fatalf("failed to parse %s: %v", name, err)
	}
	if len(file.Tests) == 0 {
		t.Fatalf("%s has no tests", name)
	}
	return file.Tests
}

// fixtureArgs resolves yaml file arguments relative to testdata.
func fixtureArgs(flags []string) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		if strings.HasSuffix(f, ".yaml") {
			f = filepath.Join(testdataDir, f)
		}
		out[i] = f
	}
	return out
}

func TestE2ERun(t *testing.T) {
	for _, tc := range loadSpecs[E2ERunTestSpec](t, "e2e_run.yaml") {
		t.Run(tc.Name, func(t *testing.T) {
			if tc.Skip != "" {
				t.Skip(tc.Skip)
			}

			args := fixtureArgs(tc.Flags)
			args = append(args, "--run", tc.Func)
			if len(tc.Args) > 0 {
				args = append(args, "--args="+strings.Join(tc.Args, ","))
			}
			args = append(args, filepath.Join(testdataDir, tc.Module))

			var out, errOut bytes.Buffer
			code := execute(context.Background(), normalizeFlags(args), &out, &errOut)

			if tc.Error != "" {
				if code == 0 {
					t.Fatalf("expected failure containing %q, got output %q", tc.Error, out.String())
				}
				if !strings.Contains(errOut.String(), tc.Error) {
					t.Errorf("expected diagnostic containing %q, got %q", tc.Error, errOut.String())
				}
				return
			}
			if code != 0 {
				t.Fatalf("exit code %d, stderr:\n%s", code, errOut.String())
			}
			if got := strings.TrimSpace(out.String()); got != tc.Want {
				t.Errorf("%s(%s) = %s, want %s", tc.Func, strings.Join(tc.Args, ", "), got, tc.Want)
			}
		})
	}
}

func TestE2EDump(t *testing.T) {
	for _, tc := range loadSpecs[E2EDumpTestSpec](t, "e2e_dump.yaml") {
		t.Run(tc.Name, func(t *testing.T) {
			if tc.Skip != "" {
				t.Skip(tc.Skip)
			}

			args := append(fixtureArgs(tc.Flags), filepath.Join(testdataDir, tc.Module))
			var out, errOut bytes.Buffer
			if code := execute(context.Background(), normalizeFlags(args), &out, &errOut); code != 0 {
				t.Fatalf("exit code %d, stderr:\n%s", code, errOut.String())
			}
			output := out.String()

			for _, exp := range tc.Expect {
				if !strings.Contains(output, exp) {
					t.Errorf("expected output to contain %q\nGot:\n%s", exp, output)
				}
			}

			pos := 0
			for _, exp := range tc.ExpectOrder {
				idx := strings.Index(output[pos:], exp)
				if idx < 0 {
					t.Errorf("expected %q after offset %d\nGot:\n%s", exp, pos, output)
					break
				}
				pos += idx + len(exp)
			}

			for _, notExp := range tc.ExpectNot {
				if strings.Contains(output, notExp) {
					t.Errorf("expected output NOT to contain %q\nGot:\n%s", notExp, output)
				}
			}
		})
	}
}

// TestE2ECheckedModuleLowers runs every function of checked.yaml through
// each 128-bit provider to make sure the whole module lowers and realizes.
func TestE2ECheckedModuleLowers(t *testing.T) {
	for _, mode := range []string{"runtime", "soft"} {
		t.Run(mode, func(t *testing.T) {
			var out, errOut bytes.Buffer
			args := []string{"--int128", mode, "-dlocals", filepath.Join(testdataDir, "checked.yaml")}
			if code := execute(context.Background(), normalizeFlags(args), &out, &errOut); code != 0 {
				t.Fatalf("exit code %d, stderr:\n%s", code, errOut.String())
			}
			if n := strings.Count(out.String(), ".method public static"); n != 21 {
				t.Errorf("expected 21 methods, got %d", n)
			}
		})
	}
}
