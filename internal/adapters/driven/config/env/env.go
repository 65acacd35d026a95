// Package env reads configuration from a .env file and the process environment.
package env

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/config"
)

// DefaultDotenv is the .env file read from the working directory.
const DefaultDotenv = ".env"

// Variables maps environment variable names to canonical config keys.
// Names listed later in Aliases lose to these.
var Variables = map[string]string{
	"INGEST_MODE":               "mode",
	"DOCS_URL_FILE":             "urls_file",
	"PDF_DIR":                   "pdf_dir",
	"PDF_RECURSIVE":             "pdf_recursive",
	"LOG_LEVEL":                 "log_level",
	"COLLECTION":                "collection",
	"BATCH_SIZE":                "batch_size",
	"CONCURRENCY":               "concurrency",
	"REDIS_URL":                 "redis_url",
	"VECTOR_STORE":              "store.kind",
	"VECTOR_STORE_DIR":          "store.dir",
	"DATABASE_URL":              "store.database_url",
	"QDRANT_URL":                "store.qdrant_url",
	"QDRANT_API_KEY":            "store.qdrant_api_key",
	"EMBEDDING_PROVIDER":        "embedding.provider",
	"EMBEDDING_API_KEY":         "embedding.api_key",
	"EMBEDDING_BASE_URL":        "embedding.base_url",
	"EMBEDDING_MODEL":           "embedding.model",
	"EMBED_TIMEOUT":             "embedding.timeout",
	"EMBED_REQUESTS_PER_SECOND": "embedding.requests_per_second",
	"EMBED_MAX_ATTEMPTS":        "embedding.max_attempts",
	"EMBED_BASE_DELAY":          "embedding.base_delay",
	"EMBED_MAX_DELAY":           "embedding.max_delay",
	"OPENAI_API_KEY":            config.KeyOpenAIAPIKey,
	"OPENAI_API_BASE":           config.KeyOpenAIBaseURL,
	"GEMINI_API_KEY":            config.KeyGeminiAPIKey,
	"OLLAMA_BASE_URL":           config.KeyOllamaBaseURL,
	"CHUNK_SIZE":                "chunking.size",
	"CHUNK_OVERLAP":             "chunking.overlap",
	"LOWERCASE":                 "chunking.lowercase",
	"STRIP_ACADEMIC_NOISE":      "chunking.strip_academic_noise",
	"SHARED_SOURCE_NAMESPACE":   "chunking.shared_source_namespace",
	"FETCH_TIMEOUT":             "fetch.timeout",
	"FETCH_USER_AGENT":          "fetch.user_agent",
	"SITE_RULES_FILE":           "fetch.site_rules_file",
	"ARCHIVE_S3_BUCKET":         "archive.bucket",
	"ARCHIVE_S3_PREFIX":         "archive.prefix",
	"ARCHIVE_S3_ENDPOINT":       "archive.endpoint",
	"AWS_REGION":                "archive.region",
}

// Aliases are older variable names, used only when the primary name is unset.
var Aliases = map[string]string{
	"CHROMA_DIR":        "VECTOR_STORE_DIR",
	"CHROMA_COLLECTION": "COLLECTION",
}

// LookupFunc returns the value of an environment variable.
type LookupFunc func(name string) (string, bool)

// Values reads dotenvPath (a missing file is ignored) and the environment
// and returns the set values under canonical keys. Process environment wins
// over the file. An empty dotenvPath skips the file.
func Values(dotenvPath string, lookup LookupFunc) (map[string]string, error) {
	fileVars := map[string]string{}
	if dotenvPath != "" {
		vars, err := godotenv.Read(dotenvPath)
		switch {
		case err == nil:
			fileVars = vars
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read %s: %w", dotenvPath, err)
		}
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}

	get := func(name string) (string, bool) {
		if v, ok := lookup(name); ok && v != "" {
			return v, true
		}
		v, ok := fileVars[name]
		return v, ok && v != ""
	}

	out := make(map[string]string)
	for name, key := range Variables {
		if v, ok := get(name); ok {
			out[key] = v
		}
	}
	for alias, primary := range Aliases {
		key := Variables[primary]
		if _, set := out[key]; set {
			continue
		}
		if v, ok := get(alias); ok {
			out[key] = v
		}
	}
	return out, nil
}
