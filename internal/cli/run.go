package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pathforge/pathforge/core"
	"github.com/pathforge/pathforge/orchestration"
)

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <list-url>",
		Short: "Build a guided learning path from a curated resource list",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}

	addConfigFlags(cmd)
	cmd.Flags().StringP("output", "o", "", "Write the rendered path to file (default: stdout)")
	cmd.Flags().String("format", orchestration.FormatMarkdown, "Output format: markdown | json")
	cmd.Flags().Duration("timeout", 0, "Pipeline deadline (default: from config)")
	cmd.Flags().Bool("no-enrich", false, "Skip per-resource enrichment")
	cmd.Flags().Bool("no-summarize", false, "Skip the generated overview")
	cmd.Flags().Bool("trace", false, "Print the trace summary to stderr")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	outputPath, _ := cmd.Flags().GetString("output")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	noEnrich, _ := cmd.Flags().GetBool("no-enrich")
	noSummarize, _ := cmd.Flags().GetBool("no-summarize")
	showTrace, _ := cmd.Flags().GetBool("trace")

	var extra []core.Option
	if timeout > 0 {
		extra = append(extra, core.WithPipelineTimeout(timeout))
	}
	app, err := buildApp(cmd, extra...)
	if err != nil {
		return err
	}
	defer closeApp(app)

	pipeline := app.Config.Pipeline
	result, runErr := app.Orchestrator.Run(cmd.Context(), orchestration.Request{
		RequestID: uuid.NewString(),
		SourceURL: args[0],
		Enrich:    pipeline.Enrich && !noEnrich,
		Summarize: pipeline.Summarize && !noSummarize,
		Format:    format,
	})

	stderr := cmd.ErrOrStderr()
	if result != nil {
		printDiagnostics(stderr, result)
		if showTrace && result.Trace != nil {
			fmt.Fprintf(stderr, "trace %s: %s, %d spans, %s\n",
				result.Trace.RequestID, result.Trace.Status, result.Trace.SpanCount, result.Trace.TotalDuration)
		}
	}
	if runErr != nil {
		if !errors.Is(runErr, core.ErrParse) && core.IsInputError(runErr) {
			return exitError(exitConfig, "run failed: %v", runErr)
		}
		return exitError(exitFailed, "run failed: %v", runErr)
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, []byte(result.Output), 0o644); err != nil {
			return exitError(exitRuntime, "writing output: %v", err)
		}
		fmt.Fprintf(stderr, "Wrote %s (%s)\n", outputPath, result.Status)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), result.Output)
	return nil
}

func printDiagnostics(w io.Writer, result *orchestration.Result) {
	for _, d := range result.Diagnostics {
		if d.Target != "" {
			fmt.Fprintf(w, "warning: [%s] %s: %s\n", d.Stage, d.Target, d.Message)
			continue
		}
		fmt.Fprintf(w, "warning: [%s] %s\n", d.Stage, d.Message)
	}
}
