package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

var forceInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and initialise configuration",
	Long: `Shows the effective configuration after every layer is applied, or
writes it to the config file as a starting point.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective settings",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective settings to the config file",
	Long: `Writes the effective non-secret settings to the config file
(~/.sercha/ingest.toml unless --config is given). API keys are never written;
keep them in the environment or .env.`,
	RunE: runConfigInit,
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing config file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	store, err := file.NewConfigStore(configPath)
	if err != nil {
		return err
	}
	settings, validateErr := loadSettings(cmd)
	if validateErr != nil {
		// Show what the layers produce even when it does not validate.
		values, err := layeredValues(cmd)
		if err != nil {
			return err
		}
		settings = defaultsWith(values)
	}

	cmd.Println("Effective Settings")
	cmd.Println("==================")
	cmd.Println()
	cmd.Printf("Config file: %s", store.Path())
	if !store.Exists() {
		cmd.Print(" (not found)")
	}
	cmd.Println()
	cmd.Println()

	cmd.Println("[Inputs]")
	cmd.Printf("  Mode: %s\n", settings.Mode)
	cmd.Printf("  URL file: %s\n", settings.URLsFile)
	cmd.Printf("  PDF directory: %s (recursive: %t)\n", settings.PDFDir, settings.PDFRecursive)
	cmd.Println()

	cmd.Println("[Vector Store]")
	cmd.Printf("  Store: %s\n", settings.Store.Kind.Description())
	cmd.Printf("  Collection: %s\n", settings.Collection)
	switch {
	case settings.Store.Dir != "" && settings.Store.Kind == domain.StoreSQLite:
		cmd.Printf("  Directory: %s\n", settings.Store.Dir)
	case settings.Store.QdrantURL != "" && settings.Store.Kind == domain.StoreQdrant:
		cmd.Printf("  URL: %s\n", settings.Store.QdrantURL)
	case settings.Store.DatabaseURL != "" && settings.Store.Kind == domain.StorePostgres:
		cmd.Printf("  Database: %s\n", maskAPIKey(settings.Store.DatabaseURL))
	}
	cmd.Println()

	cmd.Println("[Embedding]")
	cmd.Printf("  Provider: %s\n", settings.Embedding.Provider)
	cmd.Printf("  Model: %s\n", settings.Embedding.Model)
	if settings.Embedding.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", settings.Embedding.BaseURL)
	}
	if settings.Embedding.Provider.RequiresAPIKey() {
		if settings.Embedding.APIKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(settings.Embedding.APIKey))
		} else {
			cmd.Printf("  API Key: (not set)\n")
		}
	}
	cmd.Printf("  Attempts: %d, timeout %s\n", settings.Embedding.Retry.MaxAttempts, settings.Embedding.Timeout)
	cmd.Println()

	cmd.Println("[Chunking]")
	cmd.Printf("  Size: %d, overlap %d\n", settings.Chunking.MaxSize, settings.Chunking.Overlap)
	cmd.Printf("  Batch size: %d, concurrency %d\n", settings.BatchSize, settings.Concurrency)
	cmd.Println()

	if settings.RedisURL != "" {
		cmd.Printf("Redis: %s\n", maskAPIKey(settings.RedisURL))
	}
	if settings.Archive.Enabled() {
		cmd.Printf("Archive: s3://%s/%s\n", settings.Archive.Bucket, settings.Archive.Prefix)
	}

	if validateErr != nil {
		cmd.Printf("Warning: %v\n", validateErr)
	} else {
		cmd.Println("Configuration is valid.")
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	store, err := file.NewConfigStore(configPath)
	if err != nil {
		return err
	}
	if store.Exists() && !forceInit {
		return fmt.Errorf("%s already exists, use --force to overwrite", store.Path())
	}

	values, err := layeredValues(cmd)
	if err != nil {
		return err
	}
	store.SetSettings(defaultsWith(values))
	if err := store.Save(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	cmd.Printf("Wrote %s\n", store.Path())
	return nil
}

// maskAPIKey hides all but the ends of a secret.
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
