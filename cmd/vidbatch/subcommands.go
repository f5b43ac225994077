package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vidbatch/vidbatch/internal/core"
	"github.com/vidbatch/vidbatch/internal/history"
	"github.com/vidbatch/vidbatch/internal/upload"
	"github.com/vidbatch/vidbatch/internal/videoapi"
	"github.com/vidbatch/vidbatch/pkg/api"
)

// loadBatch reads a batch file, applies environment defaults and validates.
func loadBatch(path string) (core.BatchConfig, core.EnvDefaults, error) {
	env, err := core.LoadEnvDefaults()
	if err != nil {
		return core.BatchConfig{}, env, err
	}
	cfg, err := core.LoadBatchFile(path)
	if err != nil {
		return cfg, env, err
	}
	cfg.Normalize(env)
	if err := cfg.Validate(); err != nil {
		return cfg, env, err
	}
	return cfg, env, nil
}

// Run a batch file
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <batch.yaml>",
		Short: "Run a batch of video jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputDir, _ := cmd.Flags().GetString("output-dir")
			allowAny, _ := cmd.Flags().GetBool("allow-any-path")
			asJSON, _ := cmd.Flags().GetBool("json")
			doUpload, _ := cmd.Flags().GetBool("upload")
			noHistory, _ := cmd.Flags().GetBool("no-history")

			cfg, env, err := loadBatch(args[0])
			if err != nil {
				return err
			}
			if outputDir != "" {
				cfg.OutputDir = outputDir
			}
			if allowAny {
				cfg.AllowAnyPath = true
			}
			if env.APIKey == "" {
				return errors.New("no API key: set VIDBATCH_API_KEY or OPENAI_API_KEY")
			}

			client := videoapi.New(env.BaseURL, env.APIKey, log.Logger)
			client.OrgID = env.OrgID
			client.ProjectID = env.ProjectID

			runner := core.NewRunner(cfg, client, core.OutputResolver{}, log.Logger)
			report, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}

			if !noHistory {
				if runID, err := recordHistory(cmd, env, report); err != nil {
					log.Warn().Err(err).Msg("could not record run history")
				} else {
					log.Info().Str("run_id", runID).Msg("run recorded")
				}
			}

			if doUpload && cfg.Archive != nil {
				if err := uploadOutputs(cmd, *cfg.Archive, report); err != nil {
					log.Warn().Err(err).Msg("archive upload incomplete")
				}
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				printReport(report)
			}

			if !report.OK() {
				return fmt.Errorf("batch finished with %d failed, %d cancelled", report.Failed, report.Cancelled)
			}
			return nil
		},
	}
	cmd.Flags().String("output-dir", "", "override the configured output directory")
	cmd.Flags().Bool("allow-any-path", false, "allow job output paths outside the output directory")
	cmd.Flags().Bool("json", false, "print the report as JSON")
	cmd.Flags().Bool("upload", false, "upload completed videos to the configured archive")
	cmd.Flags().Bool("no-history", false, "skip recording the run in the history store")
	return cmd
}

// Estimate batch cost without any network calls
func newEstimateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate <batch.yaml>",
		Short: "Estimate batch cost without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			cfg, _, err := loadBatch(args[0])
			if err != nil {
				return err
			}
			est := core.Estimate(cfg)
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(est)
			}
			printEstimate(est)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "print the estimate as JSON")
	return cmd
}

// Generate a single video without a batch file
func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a single video",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, _ := cmd.Flags().GetString("prompt")
			model, _ := cmd.Flags().GetString("model")
			seconds, _ := cmd.Flags().GetInt("duration")
			resolution, _ := cmd.Flags().GetString("resolution")
			aspect, _ := cmd.Flags().GetString("aspect-ratio")
			imagePath, _ := cmd.Flags().GetString("image")
			imageURL, _ := cmd.Flags().GetString("image-url")
			videoURL, _ := cmd.Flags().GetString("video-url")
			output, _ := cmd.Flags().GetString("output")
			outputDir, _ := cmd.Flags().GetString("output-dir")

			env, err := core.LoadEnvDefaults()
			if err != nil {
				return err
			}
			if env.APIKey == "" {
				return errors.New("no API key: set VIDBATCH_API_KEY or OPENAI_API_KEY")
			}

			cfg := core.BatchConfig{
				Jobs: []core.JobSpec{{
					Prompt:          prompt,
					Model:           model,
					DurationSeconds: seconds,
					Resolution:      resolution,
					AspectRatio:     aspect,
					ImagePath:       imagePath,
					ImageURL:        imageURL,
					VideoURL:        videoURL,
					Output:          output,
				}},
				OutputDir:     outputDir,
				MaxConcurrent: 1,
			}
			cfg.Normalize(env)
			if err := cfg.Validate(); err != nil {
				return err
			}

			client := videoapi.New(env.BaseURL, env.APIKey, log.Logger)
			client.OrgID = env.OrgID
			client.ProjectID = env.ProjectID

			runner := core.NewRunner(cfg, client, core.OutputResolver{}, log.Logger)
			report, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}
			printReport(report)
			if !report.OK() {
				return errors.New("generation failed")
			}
			return nil
		},
	}
	cmd.Flags().String("prompt", "", "generation prompt")
	cmd.Flags().String("model", "", "model name")
	cmd.Flags().Int("duration", 0, "clip duration in seconds (4, 8 or 12)")
	cmd.Flags().String("resolution", "", "output resolution, e.g. 1280x720")
	cmd.Flags().String("aspect-ratio", "", "aspect ratio, e.g. 16:9")
	cmd.Flags().String("image", "", "local reference image for image-to-video")
	cmd.Flags().String("image-url", "", "reference image URL for image-to-video")
	cmd.Flags().String("video-url", "", "source video URL for an edit job")
	cmd.Flags().String("output", "", "output file path")
	cmd.Flags().String("output-dir", "", "output directory")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

// List recent batch runs
func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent batch runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			env, err := core.LoadEnvDefaults()
			if err != nil {
				return err
			}
			store, err := history.NewStore(historyPath(env))
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("no runs recorded")
				return nil
			}
			for _, r := range runs {
				fmt.Printf("%s\t%s\t%d jobs\t%d ok\t%d failed\t%d cancelled\t%dms\n",
					r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Total, r.Succeeded, r.Failed, r.Cancelled, r.ElapsedMS)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "number of runs to show")
	return cmd
}

func recordHistory(cmd *cobra.Command, env core.EnvDefaults, report *api.BatchReport) (string, error) {
	store, err := history.NewStore(historyPath(env))
	if err != nil {
		return "", err
	}
	defer store.Close()
	return store.RecordRun(cmd.Context(), report)
}

func historyPath(env core.EnvDefaults) string {
	if env.HistoryDB != "" {
		return env.HistoryDB
	}
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "vidbatch", "history.db")
}

func uploadOutputs(cmd *cobra.Command, archive core.ArchiveConfig, report *api.BatchReport) error {
	up, err := upload.New(archive, log.Logger)
	if err != nil {
		return err
	}
	defer up.Close()

	var firstErr error
	for _, o := range report.Outcomes {
		if o.Status != api.JobCompleted || o.OutputPath == "" {
			continue
		}
		remote, err := up.Upload(cmd.Context(), o.OutputPath, filepath.Base(o.OutputPath))
		if err != nil {
			log.Error().Int("job", o.Index).Err(err).Msg("upload failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		log.Info().Int("job", o.Index).Str("remote", remote).Msg("uploaded")
	}
	return firstErr
}

func printReport(report *api.BatchReport) {
	fmt.Printf("batch: %d total, %d succeeded, %d failed, %d cancelled (%dms)\n",
		report.Total, report.Succeeded, report.Failed, report.Cancelled, report.ElapsedMS)
	for _, o := range report.Outcomes {
		switch o.Status {
		case api.JobCompleted:
			fmt.Printf("  %3d  completed  %s  (%d attempts, %dms)\n", o.Index, o.OutputPath, o.Attempts, o.DurationMS)
		case api.JobFailed:
			fmt.Printf("  %3d  failed     %s  (%d attempts, %dms)\n", o.Index, o.Message, o.Attempts, o.DurationMS)
		case api.JobCancelled:
			fmt.Printf("  %3d  cancelled  %s\n", o.Index, o.Message)
		}
	}
	fmt.Printf("estimated cost: $%.2f - $%.2f\n", report.Estimate.MinUSD, report.Estimate.MaxUSD)
}

func printEstimate(est api.CostEstimate) {
	fmt.Printf("jobs: %d, total seconds: %.0f\n", est.TotalJobs, est.TotalSeconds)
	for _, k := range est.ByKind {
		fmt.Printf("  %-15s %3d jobs  %6.0fs  $%.2f\n", k.Kind, k.Jobs, k.Seconds, k.CostUSD)
	}
	fmt.Printf("estimated cost: $%.2f - $%.2f\n", est.MinUSD, est.MaxUSD)
}
