// Package config loads declaration documents written in CUE and registers
// their variables, resources, and outputs with the engine. It also merges
// variable overrides from YAML files and the process environment.
package config
