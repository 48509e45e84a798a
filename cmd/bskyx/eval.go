package main

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"

	internal "github.com/ZanzyTHEbar/bsky-explainer/bskyx"
	"github.com/ZanzyTHEbar/bsky-explainer/bskyx/eval"
	"github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness"
)

type evalOptions struct {
	cases       string
	models      []string
	concurrency int
	results     string
	report      string
	history     bool
}

func newEvalCommand(a *app) *cobra.Command {
	opts := &evalOptions{}
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Benchmark models on judged explanation cases",
		Long: `Runs the agent on every case for each model, scores the answers with an
LLM judge for factuality and utility, and writes a JSON results file and a
Markdown report.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, a, opts)
		},
	}

	cmd.Flags().StringVar(&opts.cases, "cases", "", "Path to the cases JSON file (default from config)")
	cmd.Flags().StringSliceVar(&opts.models, "models", nil, "Models to benchmark (default from config)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Cases evaluated at once per model")
	cmd.Flags().StringVar(&opts.results, "results", "", "Where to write the JSON results")
	cmd.Flags().StringVar(&opts.report, "report", "", "Where to write the Markdown report")
	cmd.Flags().BoolVar(&opts.history, "history", false, "Record the run in the history database")

	cmd.AddCommand(newEvalHistoryCommand(a))
	return cmd
}

func runEval(cmd *cobra.Command, a *app, opts *evalOptions) error {
	out := cmd.OutOrStdout()
	if err := a.cfg.Validate(); err != nil {
		fmt.Fprintf(out, "Error: %v.\n", err)
		return &exitError{code: 1}
	}

	evalCfg := a.cfg.Eval
	if opts.cases != "" {
		evalCfg.CasesPath = opts.cases
	}
	if len(opts.models) > 0 {
		evalCfg.Models = opts.models
	}
	if opts.concurrency > 0 {
		evalCfg.Concurrency = opts.concurrency
	}
	if opts.results != "" {
		evalCfg.ResultsPath = opts.results
	}
	if opts.report != "" {
		evalCfg.ReportPath = opts.report
	}
	if opts.history && evalCfg.HistoryDSN == "" {
		evalCfg.HistoryDSN = internal.DefaultHistoryDSN
	}

	cases, err := eval.LoadCases(evalCfg.CasesPath)
	if err != nil {
		return err
	}

	factory := harness.NewFactory(a.cfg, a.logger)
	registry, err := factory.CreateRegistry()
	if err != nil {
		return err
	}
	judge := eval.NewJudge(factory.CreateProvider(evalCfg.JudgeModel), evalCfg.JudgeModel, a.logger)
	newAgent := func(model string) (eval.Explainer, error) {
		return factory.CreateAgent(model, registry, nil), nil
	}

	runner := eval.NewHarness(cases, judge, newAgent, a.logger).WithConcurrency(evalCfg.Concurrency)
	if evalCfg.HistoryDSN != "" {
		store, err := eval.OpenHistory(cmd.Context(), evalCfg.HistoryDSN, a.logger)
		if err != nil {
			return err
		}
		defer store.Close()
		runner = runner.WithHistory(store)
	}

	bench, err := runner.RunBenchmark(cmd.Context(), evalCfg.Models)
	if bench == nil {
		return err
	}
	if err != nil {
		a.logger.Warn().Err(err).Msg("Benchmark finished with errors")
	}

	fmt.Fprint(out, "\n====== Final Component Benchmark Results ======\n")
	eval.WriteSummary(out, bench)

	if err := eval.WriteResults(evalCfg.ResultsPath, bench); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nDetailed results saved to %s\n", evalCfg.ResultsPath)
	if err := eval.WriteReport(evalCfg.ReportPath, bench); err != nil {
		return err
	}
	fmt.Fprintf(out, "Readable report saved to %s\n", evalCfg.ReportPath)
	return nil
}

func newEvalHistoryCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded benchmark runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := a.cfg.Eval.HistoryDSN
			if dsn == "" {
				dsn = internal.DefaultHistoryDSN
			}
			store, err := eval.OpenHistory(cmd.Context(), dsn, a.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No benchmark runs recorded.")
				return nil
			}
			for _, run := range runs {
				fmt.Fprintf(out, "%s  %s  judge=%s  (%s)\n", run.StartedAt.Local().Format(time.DateTime), run.ID,
					run.JudgeModel, run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
				for _, model := range slices.Sorted(maps.Keys(run.Models)) {
					sum := run.Models[model]
					fmt.Fprintf(out, "    %-15s factuality=%.2f utility=%.2f steps=%.2f exhausted=%d\n",
						model, sum.AvgFactuality, sum.AvgUtility, sum.AvgSteps, sum.Exhausted)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of runs to show")
	return cmd
}
