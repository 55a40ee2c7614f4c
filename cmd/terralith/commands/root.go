package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/terralith/terralith/pkg/config"
	"github.com/terralith/terralith/pkg/engine"
)

var (
	// Global flags
	varFile  string
	varFlags []string
	verbose  bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "terralith",
		Short: "Terralith - Declarative Infrastructure Evaluation Engine",
		Long: `Terralith evaluates declarative infrastructure documents: it binds
variables, builds the reference graph between variables, resources, and
outputs, provisions resources in dependency order, and reports outputs
with sensitive values redacted.

Features:
  - Typed declarations via CUE
  - Template references between declarations
  - Parallel evaluation within dependency levels
  - Transitive sensitivity tracking and redaction
  - Policy enforcement (OPA/Rego)
  - Run history in SQLite`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.Logger = log.Logger.Level(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&varFile, "var-file", "", "YAML file with variable overrides")
	rootCmd.PersistentFlags().StringArrayVar(&varFlags, "var", nil, "variable override as name=value (repeatable)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newRunsCommand())

	return rootCmd
}

// loadDocument parses the given CUE files into a fresh declaration store
// and builds its validated reference graph.
func loadDocument(paths []string) (*engine.Store, *engine.Graph, error) {
	if len(paths) == 0 {
		paths = []string{"."}
	}
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot stat %s: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot read directory %s: %w", path, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".cue") {
				files = append(files, path+"/"+entry.Name())
			}
		}
	}
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("no .cue files found in %v", paths)
	}

	store := engine.NewStore()
	if err := config.NewLoader().Load(store, files...); err != nil {
		return nil, nil, err
	}
	graph, err := engine.NewGraphBuilder(store).Build()
	if err != nil {
		return nil, nil, err
	}
	return store, graph, nil
}

// gatherOverrides layers variable overrides: file, then environment, then
// command line flags.
func gatherOverrides() (config.Overrides, error) {
	var sets []config.Overrides

	if varFile != "" {
		fromFile, err := config.LoadOverridesFile(varFile)
		if err != nil {
			return nil, err
		}
		sets = append(sets, fromFile)
	}
	sets = append(sets, config.OverridesFromEnv(os.Environ()))

	fromFlags := config.Overrides{}
	for _, flag := range varFlags {
		name, value, ok := strings.Cut(flag, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q, want name=value", flag)
		}
		fromFlags[name] = value
	}
	sets = append(sets, fromFlags)

	return config.Merge(sets...), nil
}
