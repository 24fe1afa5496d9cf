package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vibhavm/logsage/internal/aiclient"
	"github.com/vibhavm/logsage/internal/config"
	"github.com/vibhavm/logsage/internal/export"
	"github.com/vibhavm/logsage/internal/ingest"
	"github.com/vibhavm/logsage/internal/pipeline"
	"github.com/vibhavm/logsage/internal/report"
	"github.com/vibhavm/logsage/internal/types"
)

var (
	flagConfig    string
	flagOutputDir string
	flagFormat    string
	flagAI        bool
	flagAIURL     string
	flagAIModel   string
)

var rootCmd = &cobra.Command{
	Use:   "logsage",
	Short: "LogSage analyzes log files for structure, errors and attack activity.",
	Long: `LogSage detects the format of a log file, parses it into structured
records, labels each record with a severity, category and attack signature,
flags anomalies, and scores per-IP risk. Results are printed as a terminal
report and exported to CSV, JSON or SQLite.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Analyze a log file (or stdin) and export the results",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAnalyze,
}

var watchCmd = &cobra.Command{
	Use:   "watch <file>",
	Short: "Follow a log file and re-run the analysis as it grows",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default .logsage.yaml)")
	rootCmd.PersistentFlags().StringVarP(&flagOutputDir, "output-dir", "o", "", "directory for exported results")
	rootCmd.PersistentFlags().StringVarP(&flagFormat, "format", "f", "", "export format: csv, json or sqlite")
	rootCmd.PersistentFlags().BoolVar(&flagAI, "ai", false, "consult the local AI endpoint for ambiguous records")
	rootCmd.PersistentFlags().StringVar(&flagAIURL, "ai-url", "", "AI endpoint base URL")
	rootCmd.PersistentFlags().StringVar(&flagAIModel, "ai-model", "", "AI model name")
	watchCmd.Flags().Bool("from-start", false, "process existing content before tailing")
	watchCmd.Flags().Duration("interval", 30*time.Second, "how often to re-run the analysis")
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads config, applies flag overrides and builds the shared pieces.
func setup() (config.Config, *zap.Logger, *pipeline.Pipeline, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	if flagOutputDir != "" {
		cfg.Output.Dir = flagOutputDir
	}
	if flagFormat != "" {
		cfg.Output.Format = flagFormat
	}
	if flagAI {
		cfg.AI.Enabled = true
	}
	if flagAIURL != "" {
		cfg.AI.BaseURL = flagAIURL
	}
	if flagAIModel != "" {
		cfg.AI.Model = flagAIModel
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, nil, err
	}

	var classifier aiclient.Classifier = aiclient.Disabled{}
	if cfg.AI.Enabled {
		aiCfg := cfg.AI.Config
		aiCfg.Timeout = cfg.AITimeout()
		classifier = aiclient.NewHTTPClassifier(aiCfg, logger)
	}

	return cfg, logger, pipeline.New(cfg.Pipeline, classifier, logger), nil
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	zapCfg.OutputPaths = []string{"stderr"}
	return zapCfg.Build()
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, logger, pipe, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	var lines []types.RawLine
	hint := "stdin"
	if len(args) > 0 {
		hint = args[0]
		lines, err = ingest.ReadFile(args[0])
	} else {
		lines, err = ingest.ReadAll(os.Stdin)
	}
	if err != nil {
		if errors.Is(err, ingest.ErrEmptyInput) {
			return fmt.Errorf("%s: no log content to analyze", hint)
		}
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	result := pipe.Run(ctx, lines, time.Now())
	fmt.Print(report.Render(result.Summary))

	path, err := exportResult(cfg, hint, result)
	if err != nil {
		return err
	}
	fmt.Printf("Results written to %s\n", path)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	_, logger, pipe, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	fromStart, _ := cmd.Flags().GetBool("from-start")
	interval, _ := cmd.Flags().GetDuration("interval")

	ctx, cancel := signalContext()
	defer cancel()

	follower := ingest.NewFollower(args[0], fromStart)
	lineCh, err := follower.Follow(ctx)
	if err != nil {
		return err
	}

	logger.Info("watching", zap.String("file", args[0]), zap.Duration("interval", interval))

	var lines []types.RawLine
	dirty := false
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lineCh:
			if !ok {
				return nil
			}
			lines = append(lines, line)
			dirty = true
		case <-ticker.C:
			if !dirty || len(lines) == 0 {
				continue
			}
			result := pipe.Run(ctx, lines, time.Now())
			fmt.Print("\n" + report.Render(result.Summary))
			dirty = false
		}
	}
}

func exportResult(cfg config.Config, hint string, result pipeline.Result) (string, error) {
	format, err := export.ParseFormat(cfg.Output.Format)
	if err != nil {
		return "", err
	}
	path := export.OutputPath(cfg.Output.Dir, hint, format)

	switch format {
	case export.FormatSQLite:
		err = export.WriteSQLite(path, result.Records, result.Summary)
	default:
		var f *os.File
		f, err = os.Create(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		if format == export.FormatCSV {
			err = export.WriteCSV(f, result.Records)
		} else {
			err = export.WriteJSON(f, result.Records, result.Summary)
		}
	}
	if err != nil {
		return "", fmt.Errorf("exporting results: %w", err)
	}
	return path, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
