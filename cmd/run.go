package main

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/compintel-cli/internal/config"
	"github.com/sells-group/compintel-cli/internal/export"
	"github.com/sells-group/compintel-cli/internal/pipeline"
)

var (
	runCompetitorsFile string
	runPersist         bool
	runExportDir       string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the extraction pipeline for all configured competitors",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		competitorsFile := runCompetitorsFile
		if competitorsFile == "" {
			competitorsFile = cfg.Pipeline.CompetitorsFile
		}
		competitors, err := config.LoadCompetitors(competitorsFile)
		if err != nil {
			return err
		}

		fetcher, err := initFetcher()
		if err != nil {
			return err
		}
		svc, err := initInfer()
		if err != nil {
			return err
		}

		var opts []pipeline.Option
		if runPersist {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
			opts = append(opts, pipeline.WithStore(st))
		}

		p := pipeline.New(pipelineConfig(), fetcher, svc, opts...)

		result, runErr := p.Run(ctx, competitors)
		if runErr != nil && result == nil {
			return eris.Wrap(runErr, "pipeline run")
		}

		svc.LogCost("run")
		zap.L().Info("run complete",
			zap.String("run_id", result.RunID),
			zap.Int("products", len(result.Products)),
			zap.Int("promotions", len(result.Promotions)),
		)

		if runExportDir != "" {
			if _, err := export.WriteCSV(runExportDir, result.Products, result.Promotions, time.Now()); err != nil {
				return err
			}
		}

		return writeRunOutput(os.Stdout, result, runErr)
	},
}

// writeRunOutput prints the run stats and surfaces a persistence failure as
// the command error, so records lost to the store still fail the exit code.
func writeRunOutput(w io.Writer, result *pipeline.RunResult, runErr error) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result.Stats); err != nil {
		return eris.Wrap(err, "encode stats")
	}
	if runErr != nil {
		zap.L().Error("pipeline: persistence failed", zap.Error(runErr))
		return eris.Wrap(runErr, "persist run")
	}
	return nil
}

func runTimeout() time.Duration {
	return time.Duration(cfg.Pipeline.RunTimeoutMinutes) * time.Minute
}

func init() {
	runCmd.Flags().StringVar(&runCompetitorsFile, "competitors", "", "competitor definition file (default from config)")
	runCmd.Flags().BoolVar(&runPersist, "store", false, "persist run and records to the database")
	runCmd.Flags().StringVar(&runExportDir, "export", "", "write CSV exports to this directory")
	rootCmd.AddCommand(runCmd)
}
