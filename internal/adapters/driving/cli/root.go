// Package cli implements the sercha-ingest command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/config"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/config/env"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/logger"
)

// version is set at build time with -ldflags "-X ...cli.version=v1.2.3".
var version = "dev"

// Exit codes.
const (
	ExitOK          = 0
	ExitConfigError = 1
	ExitFailure     = 2
)

var (
	configPath string
	dotenvPath string

	// lookupEnv is replaced in tests.
	lookupEnv env.LookupFunc = os.LookupEnv
)

// settingFlags maps flag names to canonical configuration keys. Only flags
// set on the command line override lower layers.
var settingFlags = map[string]string{
	"mode":                 "mode",
	"urls-file":            "urls_file",
	"pdf-dir":              "pdf_dir",
	"pdf-recursive":        "pdf_recursive",
	"log-level":            "log_level",
	"collection":           "collection",
	"store":                "store.kind",
	"store-dir":            "store.dir",
	"provider":             "embedding.provider",
	"model":                "embedding.model",
	"chunk-size":           "chunking.size",
	"chunk-overlap":        "chunking.overlap",
	"lowercase":            "chunking.lowercase",
	"strip-academic-noise": "chunking.strip_academic_noise",
	"batch-size":           "batch_size",
	"concurrency":          "concurrency",
	"redis-url":            "redis_url",
	"dry-run":              "dry_run",
}

var rootCmd = &cobra.Command{
	Use:   "sercha-ingest",
	Short: "Load web pages and PDFs into a vector store",
	Long: `sercha-ingest fetches the URLs listed in a text file and the PDFs in a
directory, splits their text into overlapping chunks, embeds the chunks and
writes them to a vector store.

Every chunk is identified by a fingerprint of its source and text, so running
the same inputs again embeds and writes nothing new.

Configuration is layered: built-in defaults, then the TOML config file, then
.env and the environment, then flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runIngest,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default ~/.sercha/ingest.toml)")
	pf.StringVar(&dotenvPath, "env-file", ".env", "dotenv file, ignored when missing")

	pf.String("mode", "both", "inputs to ingest: urls, pdfs or both")
	pf.String("urls-file", "./documents_url.txt", "file with one URL per line")
	pf.String("pdf-dir", "./documents_pdf", "directory of PDF files")
	pf.Bool("pdf-recursive", false, "scan the PDF directory recursively")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.String("collection", "rice_study", "vector store collection")
	pf.String("store", "sqlite", "vector store: sqlite, postgres, qdrant or memory")
	pf.String("store-dir", "./vector_db", "sqlite data directory")
	pf.String("provider", "openai", "embedding provider: openai, ollama or gemini")
	pf.String("model", "", "embedding model (provider default when empty)")
	pf.Int("chunk-size", 1000, "maximum chunk length in characters")
	pf.Int("chunk-overlap", 200, "characters shared by consecutive chunks")
	pf.Bool("lowercase", false, "fold text to lower case before chunking")
	pf.Bool("strip-academic-noise", false, "remove captions, footnotes and back matter")
	pf.Int("batch-size", 32, "chunks per embedding and store batch")
	pf.Int("concurrency", 4, "batches in flight")
	pf.String("redis-url", "", "redis URL for the shared dedup cache and run lock")
	pf.Bool("dry-run", false, "load and chunk without embedding or writing")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &domain.ConfigError{Field: "flags", Err: err}
	})
	rootCmd.SetVersionTemplate("sercha-ingest version {{.Version}}\n")
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	rootCmd.Version = version
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
	return exitCode(err)
}

// exitCode maps a command error to an exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, domain.ErrConfiguration):
		return ExitConfigError
	default:
		return ExitFailure
	}
}

// loadSettings merges defaults, the config file, the environment and the
// flags set on cmd, validates the result and applies the log level.
func loadSettings(cmd *cobra.Command) (domain.Settings, error) {
	values, err := layeredValues(cmd)
	if err != nil {
		return domain.Settings{}, err
	}

	s := domain.DefaultSettings()
	if err := config.Apply(&s, values); err != nil {
		return domain.Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return domain.Settings{}, err
	}

	level, err := logger.ParseLevel(s.LogLevel)
	if err != nil {
		return domain.Settings{}, &domain.ConfigError{Field: "log_level", Err: err}
	}
	logger.SetLevel(level)
	logger.Debug("settings: %s", s.String())
	return s, nil
}

// defaultsWith applies values onto the defaults without validating. A
// malformed value stops the overlay at that key.
func defaultsWith(values map[string]string) domain.Settings {
	s := domain.DefaultSettings()
	_ = config.Apply(&s, values)
	return s
}

// layeredValues returns the configuration values of every layer, later
// layers overriding earlier ones.
func layeredValues(cmd *cobra.Command) (map[string]string, error) {
	store, err := file.NewConfigStore(configPath)
	if err != nil {
		return nil, err
	}
	values := store.Values()

	envValues, err := env.Values(dotenvPath, lookupEnv)
	if err != nil {
		return nil, &domain.ConfigError{Field: "env_file", Err: err}
	}
	for k, v := range envValues {
		values[k] = v
	}

	for name, key := range settingFlags {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		values[key] = f.Value.String()
	}
	return values, nil
}
