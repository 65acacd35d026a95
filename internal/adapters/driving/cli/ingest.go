package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/archive/s3"
	redisadapter "github.com/custodia-labs/sercha-ingest/internal/adapters/driven/redis"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/storage"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driving/tui/styles"
	ingestview "github.com/custodia-labs/sercha-ingest/internal/adapters/driving/tui/views/ingest"
	"github.com/custodia-labs/sercha-ingest/internal/connectors/pdfdir"
	"github.com/custodia-labs/sercha-ingest/internal/connectors/web"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-ingest/internal/core/services"
	"github.com/custodia-labs/sercha-ingest/internal/extractors"
	"github.com/custodia-labs/sercha-ingest/internal/extractors/html"
	"github.com/custodia-labs/sercha-ingest/internal/logger"
	"github.com/custodia-labs/sercha-ingest/internal/postprocessors"
	"github.com/custodia-labs/sercha-ingest/internal/textnorm"
)

var (
	showProgress bool
	watchInputs  bool
	reportJSON   string
)

// serviceBuilder creates the ingest service and a cleanup function.
type serviceBuilder func(ctx context.Context, s domain.Settings, progress driving.ProgressFunc) (driving.IngestService, func(), error)

// buildService is replaced in tests.
var buildService serviceBuilder = newIngestService

// localCache keeps fingerprints across watch-mode reruns when no redis
// cache is configured.
var localCache = memory.NewDedupCache()

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest the configured URLs and PDFs",
	Long: `Loads the inputs selected by --mode, chunks and embeds their text and
writes the chunks to the vector store. Chunks already in the store are
skipped.

The exit code is 0 when the run completes, even if some documents or batches
failed; they are listed in the report. It is 1 for configuration errors.`,
	RunE: runIngest,
}

func init() {
	for _, cmd := range []*cobra.Command{rootCmd, ingestCmd} {
		cmd.Flags().BoolVar(&showProgress, "progress", false, "show a live progress view (terminal only)")
		cmd.Flags().BoolVar(&watchInputs, "watch", false, "re-run when the URL file or PDF directory changes")
		cmd.Flags().StringVar(&reportJSON, "report-json", "", "also write the run report as JSON to this file")
	}
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := ingestOnce(ctx, cmd, settings); err != nil {
		return err
	}
	if !watchInputs {
		return nil
	}

	w, err := newInputWatcher(settings, watchDebounce)
	if err != nil {
		return &domain.ConfigError{Field: "watch", Err: err}
	}
	defer w.Close()

	cmd.PrintErrln("Watching inputs for changes, press Ctrl+C to stop.")
	return w.Run(ctx, func() {
		if err := ingestOnce(ctx, cmd, settings); err != nil {
			logger.Error("%v", err)
		}
	})
}

// ingestOnce builds the service, runs it and prints the report.
func ingestOnce(ctx context.Context, cmd *cobra.Command, settings domain.Settings) error {
	useTUI := showProgress && isTerminal(cmd.OutOrStdout())

	var (
		report *domain.RunReport
		err    error
	)
	if useTUI {
		report, err = runWithProgressView(ctx, cmd, settings)
	} else {
		report, err = runPlain(ctx, settings)
	}
	if err != nil {
		return err
	}

	st := styles.PlainStyles()
	if isTerminal(cmd.OutOrStdout()) {
		st = styles.DefaultStyles()
	}
	renderReport(cmd.OutOrStdout(), report, st)

	if reportJSON != "" {
		if err := writeReportJSON(reportJSON, report); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	return nil
}

func runPlain(ctx context.Context, settings domain.Settings) (*domain.RunReport, error) {
	svc, cleanup, err := buildService(ctx, settings, nil)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return svc.Run(ctx)
}

// runWithProgressView runs the service behind the bubbletea progress view.
// Log output is held back until the view exits.
func runWithProgressView(ctx context.Context, cmd *cobra.Command, settings domain.Settings) (*domain.RunReport, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	view := ingestview.NewView(styles.DefaultStyles(), nil, cancel)
	p := tea.NewProgram(view, tea.WithOutput(cmd.OutOrStdout()))

	var logs bytes.Buffer
	logger.SetOutput(&logs)
	defer func() {
		logger.SetOutput(os.Stderr)
		_, _ = cmd.ErrOrStderr().Write(logs.Bytes())
	}()

	svc, cleanup, err := buildService(runCtx, settings, ingestview.Sender(p))
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var (
		report *domain.RunReport
		runErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		report, runErr = svc.Run(runCtx)
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return nil, fmt.Errorf("progress view: %w", err)
	}
	<-done
	return report, runErr
}

// newIngestService wires the adapters selected by settings into an orchestrator.
func newIngestService(
	ctx context.Context,
	s domain.Settings,
	progress driving.ProgressFunc,
) (driving.IngestService, func(), error) {
	var closers []func() error
	cleanup := func() {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			logger.Warn("close: %v", err)
		}
	}
	fail := func(err error) (driving.IngestService, func(), error) {
		cleanup()
		return nil, nil, err
	}

	var rules html.SiteRules
	if s.Fetch.SiteRulesFile != "" {
		r, err := html.LoadSiteRules(s.Fetch.SiteRulesFile)
		if err != nil {
			return fail(&domain.ConfigError{Field: "site_rules_file", Err: err})
		}
		rules = r
	}

	pipeline, err := postprocessors.NewDefaultPipeline(s.Chunking)
	if err != nil {
		return fail(&domain.ConfigError{Field: "chunking", Err: err})
	}

	// Inputs are checked before any store or provider is contacted.
	loaders := []driven.Loader{
		web.New(s.URLsFile, s.Fetch),
		pdfdir.New(s.PDFDir, pdfdir.WithRecursive(s.PDFRecursive)),
	}
	if _, _, err := services.SelectLoaders(ctx, s.Mode, loaders); err != nil {
		return fail(err)
	}

	store, err := storage.CreateVectorStore(ctx, s.Store)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, store.Close)

	var embedder driven.EmbeddingService
	if !s.DryRun {
		svc, err := ai.CreateAndValidateEmbeddingService(ctx, s.Embedding)
		if err != nil {
			if !errors.Is(err, domain.ErrConfiguration) {
				err = &domain.ConfigError{Field: "embedding", Err: err}
			}
			return fail(err)
		}
		closers = append(closers, svc.Close)
		embedder = svc
	}

	opts := []services.IngestOption{services.WithProgress(progress)}

	if s.RedisURL != "" {
		client, err := redisadapter.NewClient(ctx, s.RedisURL)
		if err != nil {
			return fail(&domain.ConfigError{Field: "redis_url", Err: err})
		}
		closers = append(closers, client.Close)
		opts = append(opts,
			services.WithDedupCache(redisadapter.NewDedupCache(client)),
			services.WithRunLock(redisadapter.NewLock(client), 0),
		)
	} else {
		opts = append(opts, services.WithDedupCache(localCache))
	}

	if s.Archive.Enabled() {
		archive, err := s3.New(ctx, s.Archive)
		if err != nil {
			return fail(&domain.ConfigError{Field: "archive_bucket", Err: err})
		}
		opts = append(opts, services.WithArchive(archive))
	}

	normaliser := textnorm.New(textnorm.Options{
		Lowercase:          s.Chunking.Lowercase,
		StripAcademicNoise: s.Chunking.StripAcademicNoise,
	})

	orchestrator := services.NewIngestOrchestrator(
		s,
		loaders,
		extractors.NewDefaultRegistry(rules),
		normaliser,
		pipeline,
		embedder,
		store,
		opts...,
	)
	return orchestrator, cleanup, nil
}
