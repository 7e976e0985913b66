// -----------------------------------------------------------------------
// Last Modified: Wednesday, 26th August 2026 08:15:47 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package main

import (
	"context"
	"flag"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/app"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/models"
)

// configPaths allows multiple -config flags; later files override earlier
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
	submitArg    = flag.String("submit", "", "Submit a file path or URL, wait for the job, then exit")
	projectID    = flag.String("project", "default", "Project for -submit/-stats")
	userID       = flag.String("user", "cli", "User for -submit/-stats")
	reactivate   = flag.Bool("reactivate", false, "Requeue stuck jobs and exit")
	showStats    = flag.Bool("stats", false, "Print job statistics and exit")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (repeatable, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	defer common.RecoverWithCrashFile()

	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Colligo version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Auto-discover config next to the working directory when none given
	if len(configFiles) == 0 {
		if _, err := os.Stat("colligo.toml"); err == nil {
			configFiles = append(configFiles, "colligo.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.InstallCrashHandler("")
	common.LoadVersionFromFile()
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Str("log_level", config.Logging.Level).
		Str("storage_path", config.Storage.Badger.Path).
		Msg("Configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Stop()

	ctx := context.Background()

	switch {
	case *showStats:
		runStats(ctx, application)
	case *reactivate:
		runReactivate(ctx, application, config)
	case *submitArg != "":
		runSubmit(ctx, application, logger, *submitArg)
	default:
		runDaemon(ctx, application, logger)
	}
}

// runDaemon starts workers and the scheduler, then blocks until a signal
func runDaemon(ctx context.Context, application *app.App, logger arbor.ILogger) {
	if err := application.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start application")
		os.Exit(1)
	}

	logger.Info().Msg("Colligo running - press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, shutting down")
}

// runSubmit submits one input, runs the pipeline until the job reaches a
// terminal state and reports the outcome.
func runSubmit(ctx context.Context, application *app.App, logger arbor.ILogger, input string) {
	var job *models.ProcessingJob
	var err error

	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		job, err = application.PipelineService.SubmitURL(ctx, *userID, *projectID, input, models.CrawlParams{
			MaxDepth: application.Config.Crawler.MaxDepth,
			MaxPages: application.Config.Crawler.MaxPages,
		})
	} else {
		var data []byte
		data, err = os.ReadFile(input)
		if err != nil {
			logger.Fatal().Err(err).Str("path", input).Msg("Failed to read input file")
			os.Exit(1)
		}
		fileName := filepath.Base(input)
		mimeType := mime.TypeByExtension(filepath.Ext(fileName))
		job, err = application.PipelineService.SubmitFile(ctx, *userID, *projectID, fileName, mimeType, data)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("Submission failed")
		os.Exit(1)
	}

	logger.Info().Str("job_id", job.ID).Msg("Job submitted, processing")

	if err := application.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start application")
		os.Exit(1)
	}

	final := waitForJob(ctx, application, job.ID, 10*time.Minute)
	if final == nil {
		logger.Error().Str("job_id", job.ID).Msg("Timed out waiting for job")
		os.Exit(1)
	}

	if final.Status == models.JobStatusFailed {
		logger.Error().
			Str("job_id", final.ID).
			Str("error", final.ErrorMessage).
			Msg("Job failed")
		os.Exit(1)
	}

	logger.Info().
		Str("job_id", final.ID).
		Int("indexed_documents", resultCount(final)).
		Int64("processing_time_ms", resultTime(final)).
		Msg("Job completed")
}

func waitForJob(ctx context.Context, application *app.App, jobID string, timeout time.Duration) *models.ProcessingJob {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job, err := application.StorageManager.JobStorage().GetJob(ctx, jobID)
		if err == nil && job != nil && job.Status.IsTerminal() {
			return job
		}
		time.Sleep(500 * time.Millisecond)
	}
	return nil
}

func resultCount(job *models.ProcessingJob) int {
	if job.Results == nil {
		return 0
	}
	return job.Results.IndexedDocuments
}

func resultTime(job *models.ProcessingJob) int64 {
	if job.Results == nil {
		return 0
	}
	return job.Results.ProcessingTimeMs
}

func runReactivate(ctx context.Context, application *app.App, config *common.Config) {
	count, err := application.PipelineService.ReactivateStuckJobs(ctx, config.Pipeline.StuckJobThreshold)
	if err != nil {
		application.Logger.Fatal().Err(err).Msg("Reactivation failed")
		os.Exit(1)
	}
	fmt.Printf("Reactivated %d stuck job(s)\n", count)
}

func runStats(ctx context.Context, application *app.App) {
	stats, err := application.StorageManager.JobStorage().GetJobStats(ctx, "", "")
	if err != nil {
		application.Logger.Fatal().Err(err).Msg("Failed to read job stats")
		os.Exit(1)
	}

	indexed, err := application.StorageManager.SearchIndex().Count(ctx, "")
	if err != nil {
		application.Logger.Fatal().Err(err).Msg("Failed to count indexed documents")
		os.Exit(1)
	}

	fmt.Printf("Jobs:       %d total\n", stats.Total)
	fmt.Printf("  queued:     %d\n", stats.Queued)
	fmt.Printf("  processing: %d\n", stats.Processing)
	fmt.Printf("  completed:  %d\n", stats.Completed)
	fmt.Printf("  failed:     %d\n", stats.Failed)
	fmt.Printf("Indexed documents: %d\n", indexed)
}
