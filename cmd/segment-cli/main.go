// cmd/segment-cli/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"segment-research/internal/common/config"
	"segment-research/internal/common/logger"
	"segment-research/internal/common/openrouter"
	"segment-research/internal/models"
	"segment-research/internal/pipeline"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "segment-cli",
	Short: "Run the market segment research pipeline from a terminal",
	Long: `segment-cli drives the four research stages against the configured
completion provider:

  segments      - brainstorm segments for an industry
  enhanced      - expand them with pains and buying triggers
  sales_nav     - turn them into Sales Navigator targeting
  deep_segment  - research one chosen segment in depth`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every stage in order for one industry",
	Example: `  segment-cli run --industry "boutique law firms"
  segment-cli run --industry "dental clinics" --segment 2`,
	RunE: runPipeline,
}

var (
	industry     string
	segmentIndex int
	stopAfter    string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config YAML file (default: configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level for diagnostics on stderr")

	runCmd.Flags().StringVar(&industry, "industry", "", "industry or ideal customer profile to research")
	runCmd.Flags().IntVar(&segmentIndex, "segment", 1, "which Sales Navigator segment to research in depth (1-based)")
	runCmd.Flags().StringVar(&stopAfter, "stop-after", "", "stop after this stage (segments, enhanced, sales_nav)")
	_ = runCmd.MarkFlagRequired("industry")

	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var last pipeline.Stage
	if stopAfter != "" {
		st, ok := pipeline.ParseStage(stopAfter)
		if !ok || st == pipeline.StageIdle {
			return fmt.Errorf("unknown stage %q", stopAfter)
		}
		last = st
	}

	zapLog := logger.NewWithOptions(logger.Options{Level: logLevel, Format: "console", Output: "stderr"})
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider := openrouter.NewClient(cfg.Provider, log)
	executor := pipeline.NewExecutor(provider, pipeline.NewPromptBuilder(cfg.Provider.Prompts), cfg.Provider, log)
	orch := pipeline.NewOrchestrator(executor, log)

	return drive(ctx, cmd.OutOrStdout(), orch, industry, segmentIndex, last)
}

// drive advances orch through every stage, printing each result to out.
func drive(ctx context.Context, out io.Writer, orch *pipeline.Orchestrator, industry string, segment int, last pipeline.Stage) error {
	for _, stage := range pipeline.RunnableStages() {
		in := pipeline.StageInput{}
		var selected *models.Segment

		switch stage {
		case pipeline.StageSegments:
			in.Industry = industry
		case pipeline.StageDeepSegment:
			available := orch.Snapshot().StageOutputs[pipeline.StageSalesNav].Structured
			if len(available) == 0 {
				return fmt.Errorf("sales navigator stage returned no structured segments to research")
			}
			if segment < 1 || segment > len(available) {
				return fmt.Errorf("--segment %d out of range, %d segments available", segment, len(available))
			}
			selected = &available[segment-1]
		}

		fmt.Fprintf(out, "==> %s\n", stage)
		result, err := orch.Advance(ctx, stage, in, selected)
		if err != nil {
			return err
		}
		for _, w := range result.Warnings {
			fmt.Fprintf(out, "warning: %s\n", w)
		}
		if !result.Succeeded {
			msg := result.ErrorMessage
			if result.ErrorDetails != "" {
				msg += ": " + result.ErrorDetails
			}
			return fmt.Errorf("%s failed: %s", stage, msg)
		}
		fmt.Fprintln(out, strings.TrimRight(result.Text, "\n"))
		fmt.Fprintln(out)

		if stage == last {
			return nil
		}
	}
	return nil
}
