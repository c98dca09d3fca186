// Package harness provides the scaffolding every user script runs inside:
// typed argument parsing, device selection and locking, tree loading, report
// generation, and script-result persistence.
package harness

import (
	"fmt"
	"strconv"
	"strings"
)

// ArgSpec is one declared script argument, parsed from the compact
// "--name:type:default" form. Supported types: str, int, float, bool.
type ArgSpec struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Default string `json:"default"`
}

// frameworkArgs are injected for every script unless the script already
// declares them.
var frameworkArgs = []string{"--host:str:", "--device:str:"}

// ParseArgSpec parses a single declaration like "--dns:str:google.com".
// The default part may be empty but the two colons are required.
func ParseArgSpec(decl string) (ArgSpec, error) {
	if !strings.HasPrefix(decl, "--") {
		return ArgSpec{}, fmt.Errorf("argument declaration %q must start with --", decl)
	}
	parts := strings.SplitN(strings.TrimPrefix(decl, "--"), ":", 3)
	if len(parts) != 3 {
		return ArgSpec{}, fmt.Errorf("argument declaration %q must be --name:type:default", decl)
	}
	spec := ArgSpec{Name: parts[0], Type: parts[1], Default: parts[2]}
	switch spec.Type {
	case "str", "int", "float", "bool":
	default:
		return ArgSpec{}, fmt.Errorf("argument %q has unknown type %q", spec.Name, spec.Type)
	}
	if spec.Name == "" {
		return ArgSpec{}, fmt.Errorf("argument declaration %q has empty name", decl)
	}
	return spec, nil
}

// Args holds the parsed command line of one script invocation.
type Args struct {
	Positional []string

	specs  map[string]ArgSpec
	values map[string]string
}

// ParseArgs parses argv against the script's declarations plus the
// framework-standard ones. Flags accept both "--name value" and
// "--name=value"; anything that is not a flag is positional.
func ParseArgs(decls []string, argv []string) (*Args, error) {
	a := &Args{
		specs:  make(map[string]ArgSpec),
		values: make(map[string]string),
	}

	for _, decl := range append(append([]string{}, decls...), frameworkArgs...) {
		spec, err := ParseArgSpec(decl)
		if err != nil {
			return nil, err
		}
		if _, seen := a.specs[spec.Name]; seen {
			continue
		}
		a.specs[spec.Name] = spec
		a.values[spec.Name] = spec.Default
	}

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		if !strings.HasPrefix(arg, "--") {
			a.Positional = append(a.Positional, arg)
			continue
		}

		name := strings.TrimPrefix(arg, "--")
		value := ""
		if eq := strings.Index(name, "="); eq >= 0 {
			value = name[eq+1:]
			name = name[:eq]
		} else if i+1 < len(argv) && !strings.HasPrefix(argv[i+1], "--") {
			i++
			value = argv[i]
		}

		spec, ok := a.specs[name]
		if !ok {
			return nil, fmt.Errorf("unknown argument --%s", name)
		}
		if spec.Type == "bool" && value == "" {
			value = "true"
		}
		if err := checkTypedValue(spec, value); err != nil {
			return nil, err
		}
		a.values[name] = value
	}

	return a, nil
}

func checkTypedValue(spec ArgSpec, value string) error {
	if value == "" {
		return nil
	}
	switch spec.Type {
	case "int":
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("argument --%s expects an int, got %q", spec.Name, value)
		}
	case "float":
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("argument --%s expects a float, got %q", spec.Name, value)
		}
	case "bool":
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("argument --%s expects a bool, got %q", spec.Name, value)
		}
	}
	return nil
}

// UserinterfaceName is the standard first positional argument.
func (a *Args) UserinterfaceName() string {
	if len(a.Positional) == 0 {
		return ""
	}
	return a.Positional[0]
}

// String returns the value of a declared string argument.
func (a *Args) String(name string) string { return a.values[name] }

// Int returns the value of a declared int argument; the declared default (or
// zero) when unset.
func (a *Args) Int(name string) int {
	n, _ := strconv.Atoi(a.values[name])
	return n
}

// Float returns the value of a declared float argument.
func (a *Args) Float(name string) float64 {
	f, _ := strconv.ParseFloat(a.values[name], 64)
	return f
}

// Bool returns the value of a declared bool argument.
func (a *Args) Bool(name string) bool {
	b, _ := strconv.ParseBool(a.values[name])
	return b
}
