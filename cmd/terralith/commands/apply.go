package commands

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/terralith/terralith/pkg/engine"
	"github.com/terralith/terralith/pkg/policy"
	"github.com/terralith/terralith/pkg/stores"
	"github.com/terralith/terralith/pkg/telemetry"
)

func newApplyCommand() *cobra.Command {
	var (
		parallelism   int
		policyDir     string
		skipPolicy    bool
		historyPath   string
		metricsListen string
		traceExporter string
		traceEndpoint string
	)

	cmd := &cobra.Command{
		Use:   "apply [path...]",
		Short: "Evaluate declarations and provision resources",
		Long: `Evaluate the declaration documents end to end: bind variables, run the
policy gate, provision resources level by level, and print the resolved
outputs. Sensitive outputs are redacted.

Provisioning uses the built-in simulator; resources are echoed back with
a synthetic id rather than created against a cloud account.`,
		Example: `  # Apply the current directory with an override
  terralith apply --var db_password=s3cr3t

  # Record run history and cap parallelism
  terralith apply --history runs.db --parallelism 4 deploy.cue`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, graph, err := loadDocument(args)
			if err != nil {
				return err
			}
			overrides, err := gatherOverrides()
			if err != nil {
				return err
			}

			if !skipPolicy {
				pe := policy.NewEngine(log.Logger)
				if policyDir != "" {
					if err := pe.LoadDir(policyDir); err != nil {
						return err
					}
				}
				result, err := pe.Evaluate(ctx, policy.BuildInput(store, graph))
				if err != nil {
					return err
				}
				for _, v := range result.Violations {
					log.Warn().Str("policy", v.Policy).Str("node", v.Node).Msg(v.Message)
				}
				if !result.Allowed {
					return fmt.Errorf("apply refused: %d policy violations", len(result.Violations))
				}
			}

			metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{
				Enabled:   metricsListen != "",
				Namespace: "terralith",
			})
			if err != nil {
				return err
			}
			if metricsListen != "" {
				go func() {
					if err := http.ListenAndServe(metricsListen, metrics.Handler()); err != nil {
						log.Error().Err(err).Msg("metrics endpoint stopped")
					}
				}()
			}

			tracer, err := telemetry.NewTracer(telemetry.TracingConfig{
				Enabled:      traceExporter != "",
				Exporter:     traceExporter,
				Endpoint:     traceEndpoint,
				SamplingRate: 1.0,
			}, "terralith", cmd.Root().Version)
			if err != nil {
				return err
			}
			defer func() { _ = tracer.Shutdown(ctx) }()

			evaluator := engine.NewEvaluator(store, graph, engine.NewSimulator(), engine.Options{
				MaxParallel:      parallelism,
				Overrides:        overrides,
				Logger:           log.Logger,
				Tracer:           tracer.Tracer(),
				ObserveProvision: metrics.RecordProvision,
			})
			result := evaluator.Evaluate(ctx)

			status := stores.RunSucceeded
			if result.Err() != nil {
				status = stores.RunFailed
			}
			metrics.RecordEvaluation(string(status), result.Duration)
			for id, state := range result.States {
				kind, _ := store.Lookup(id)
				metrics.RecordNode(string(kind), string(state))
			}

			if historyPath != "" {
				if err := saveHistory(cmd, historyPath, result, status); err != nil {
					log.Error().Err(err).Msg("failed to record run history")
				}
			}

			printOutputs(result)
			for _, e := range result.Errors {
				fmt.Printf("error: %v\n", e)
			}
			if result.Err() != nil {
				return fmt.Errorf("evaluation failed: run %s", result.RunID)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&parallelism, "parallelism", 10, "max parallel resolutions per level")
	cmd.Flags().StringVar(&policyDir, "policy-dir", "", "directory with additional .rego policies")
	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "skip the policy gate")
	cmd.Flags().StringVar(&historyPath, "history", "", "SQLite file for run history")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "address to expose Prometheus metrics on")
	cmd.Flags().StringVar(&traceExporter, "trace-exporter", "", "trace exporter (otlp, stdout)")
	cmd.Flags().StringVar(&traceEndpoint, "trace-endpoint", "", "OTLP collector endpoint")

	return cmd
}

func saveHistory(cmd *cobra.Command, path string, result *engine.Result, status stores.RunStatus) error {
	ctx := cmd.Context()
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	record := &stores.RunRecord{
		ID:          result.RunID,
		Status:      status,
		StartedAt:   result.StartedAt,
		CompletedAt: result.CompletedAt,
		DurationMs:  result.Duration.Milliseconds(),
	}
	if err := result.Err(); err != nil {
		record.Error = err.Error()
	}
	for name, out := range result.Outputs {
		record.Outputs = append(record.Outputs, stores.OutputRecord{
			Name:      name,
			Sensitive: out.Sensitive,
		})
	}
	sort.Slice(record.Outputs, func(i, j int) bool {
		return record.Outputs[i].Name < record.Outputs[j].Name
	})
	return store.SaveRun(ctx, record)
}

func printOutputs(result *engine.Result) {
	if len(result.Outputs) == 0 {
		return
	}
	names := make([]string, 0, len(result.Outputs))
	for name := range result.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("outputs:")
	for _, name := range names {
		out := result.Outputs[name]
		if out.Sensitive {
			fmt.Printf("  %s = (sensitive)\n", name)
			continue
		}
		fmt.Printf("  %s = %s\n", name, formatValue(out.Value))
	}
}
