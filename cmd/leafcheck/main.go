package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/leafcheck/internal/classifier"
	"github.com/example/leafcheck/internal/logging"
	"github.com/example/leafcheck/internal/predictclient"
	"github.com/example/leafcheck/internal/preview"
	"github.com/example/leafcheck/internal/workflow"
)

var errPredictionFailed = errors.New("prediction failed")

var (
	colorRed    = color.New(color.FgRed, color.Bold)
	colorGreen  = color.New(color.FgGreen, color.Bold)
	colorYellow = color.New(color.FgYellow)
	colorCyan   = color.New(color.FgCyan)
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errPredictionFailed) {
			colorRed.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

type options struct {
	url     string
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "leafcheck",
		Short:         "Submit leaf images for disease prediction",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log request details")

	predictCmd := &cobra.Command{
		Use:   "predict <image>",
		Short: "Send an image to the prediction service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.NewCLILogger(opts.verbose)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			return run(cmd.Context(), cmd.OutOrStdout(), predictclient.New(opts.url, nil, logger), args, logger)
		},
	}
	predictCmd.Flags().StringVar(&opts.url, "url", envOr("PREDICT_URL", predictclient.DefaultURL), "prediction endpoint")

	simulateCmd := &cobra.Command{
		Use:   "simulate [image]",
		Short: "Run the workflow against the built-in simulated result",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), classifier.Simulated{}, args, zap.NewNop())
		},
	}

	root.AddCommand(predictCmd, simulateCmd)
	return root
}

func run(ctx context.Context, out io.Writer, client classifier.Client, args []string, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	previews := preview.NewRegistry(preview.NewMemoryStore(), time.Minute, logger)
	wf := workflow.New(client, previews, logger)
	defer wf.Close(ctx)

	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		wf.SelectFile(ctx, filepath.Base(args[0]), data)
		colorCyan.Fprintf(out, "Selected %s (%d bytes)\n", filepath.Base(args[0]), len(data))
	}

	colorYellow.Fprintln(out, "Loading...")
	return render(out, wf.Submit(ctx))
}

func render(out io.Writer, state workflow.State) error {
	switch s := state.(type) {
	case workflow.Done:
		colorGreen.Fprintf(out, "Disease Name: %s\n", s.Result.Label)
		if s.Result.Accuracy != "" {
			colorGreen.Fprintf(out, "Prediction Accuracy: %s\n", s.Result.Accuracy)
		}
		return nil
	case workflow.Failed:
		colorRed.Fprintln(out, s.Message)
		return errPredictionFailed
	default:
		return fmt.Errorf("unexpected state %s", state.Kind())
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
