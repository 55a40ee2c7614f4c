package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvVarPrefix marks process environment entries that carry variable
// overrides. TERRALITH_VAR_db_password=x overrides the variable
// "db_password".
const EnvVarPrefix = "TERRALITH_VAR_"

// Overrides maps variable names to supplied values. Later sources win:
// environment over file, command line over environment.
type Overrides map[string]any

// LoadOverridesFile reads variable overrides from a YAML file of
// name-to-value pairs.
func LoadOverridesFile(path string) (Overrides, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read overrides file %s: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("cannot parse overrides file %s: %w", path, err)
	}
	return Overrides(raw), nil
}

// OverridesFromEnv collects overrides from the process environment.
// Values are passed through as strings; the engine converts them to the
// variable's declared type.
func OverridesFromEnv(environ []string) Overrides {
	out := Overrides{}
	for _, entry := range environ {
		if !strings.HasPrefix(entry, EnvVarPrefix) {
			continue
		}
		rest := strings.TrimPrefix(entry, EnvVarPrefix)
		name, value, ok := strings.Cut(rest, "=")
		if !ok || name == "" {
			continue
		}
		out[name] = value
	}
	return out
}

// Merge layers override sets; later sets win on conflicting names.
func Merge(sets ...Overrides) Overrides {
	out := Overrides{}
	for _, set := range sets {
		for name, value := range set {
			out[name] = value
		}
	}
	return out
}
