package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// Mode selects which inputs a run ingests.
type Mode string

// Available modes.
const (
	// ModeURLs ingests web pages from the URL list file.
	ModeURLs Mode = "urls"

	// ModePDFs ingests PDF files from the PDF directory.
	ModePDFs Mode = "pdfs"

	// ModeBoth ingests both inputs.
	ModeBoth Mode = "both"
)

// IsValid returns true if the mode is recognised.
func (m Mode) IsValid() bool {
	switch m {
	case ModeURLs, ModePDFs, ModeBoth:
		return true
	default:
		return false
	}
}

// Includes returns true if the mode ingests inputs of the given origin.
func (m Mode) Includes(o Origin) bool {
	switch m {
	case ModeURLs:
		return o == OriginURL
	case ModePDFs:
		return o == OriginPDF
	case ModeBoth:
		return o.IsValid()
	default:
		return false
	}
}

// String returns the string representation.
func (m Mode) String() string {
	return string(m)
}

// StoreKind identifies a vector store backend.
type StoreKind string

// Available vector stores.
const (
	StoreSQLite   StoreKind = "sqlite"
	StorePostgres StoreKind = "postgres"
	StoreQdrant   StoreKind = "qdrant"
	StoreMemory   StoreKind = "memory"
)

// IsValid returns true if the store kind is recognised.
func (k StoreKind) IsValid() bool {
	switch k {
	case StoreSQLite, StorePostgres, StoreQdrant, StoreMemory:
		return true
	default:
		return false
	}
}

// Description returns a human-readable description of the store.
func (k StoreKind) Description() string {
	switch k {
	case StoreSQLite:
		return "SQLite (local file)"
	case StorePostgres:
		return "PostgreSQL + pgvector"
	case StoreQdrant:
		return "Qdrant (REST)"
	case StoreMemory:
		return "In-memory (not persisted)"
	default:
		return unknownDescription
	}
}

// EmbeddingProvider identifies an embedding service provider.
type EmbeddingProvider string

// Available embedding providers.
const (
	// ProviderOpenAI is any OpenAI-compatible /embeddings endpoint.
	ProviderOpenAI EmbeddingProvider = "openai"

	// ProviderOllama is a local Ollama instance.
	ProviderOllama EmbeddingProvider = "ollama"

	// ProviderGemini is the Google Gemini API.
	ProviderGemini EmbeddingProvider = "gemini"
)

// IsValid returns true if the provider is recognised.
func (p EmbeddingProvider) IsValid() bool {
	switch p {
	case ProviderOpenAI, ProviderOllama, ProviderGemini:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p EmbeddingProvider) RequiresAPIKey() bool {
	return p == ProviderOpenAI || p == ProviderGemini
}

// RetryPolicy bounds the retries of one embedding batch.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration

	// Multiplier scales the delay after each attempt.
	Multiplier float64

	// MaxDelay caps a single wait.
	MaxDelay time.Duration

	// Jitter is the +/- fraction applied to each wait, in [0, 1).
	Jitter float64
}

// DefaultRetryPolicy returns the default embedding retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2.0,
		MaxDelay:    30 * time.Second,
		Jitter:      0.2,
	}
}

// Delay returns the un-jittered wait after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// StoreSettings configures the vector store.
type StoreSettings struct {
	Kind StoreKind

	// Dir is the SQLite data directory.
	Dir string

	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string

	// QdrantURL is the Qdrant REST base URL.
	QdrantURL string

	// QdrantAPIKey is sent as the api-key header when set.
	QdrantAPIKey string

	// PreloadIDs loads every stored id into the dedup cache at startup.
	PreloadIDs bool
}

// EmbeddingSettings configures the embedding provider.
type EmbeddingSettings struct {
	Provider EmbeddingProvider
	APIKey   string
	BaseURL  string
	Model    string

	// Timeout bounds a single provider request.
	Timeout time.Duration

	// RequestsPerSecond throttles provider requests. Zero disables throttling.
	RequestsPerSecond float64

	Retry RetryPolicy
}

// providerDefaults holds the base URL and model each provider starts with.
var providerDefaults = map[EmbeddingProvider]struct{ BaseURL, Model string }{
	ProviderOpenAI: {"https://mkp-api.fptcloud.com", "Vietnamese_Embedding"},
	ProviderOllama: {"http://localhost:11434", "nomic-embed-text"},
	ProviderGemini: {"", "gemini-embedding-001"},
}

// SetProvider switches provider. A base URL or model still at the previous
// provider's default is replaced by the new provider's default.
func (e *EmbeddingSettings) SetProvider(p EmbeddingProvider) {
	old, next := providerDefaults[e.Provider], providerDefaults[p]
	if e.BaseURL == old.BaseURL {
		e.BaseURL = next.BaseURL
	}
	if e.Model == old.Model {
		e.Model = next.Model
	}
	e.Provider = p
}

// ChunkSettings configures normalisation and chunking.
type ChunkSettings struct {
	// MaxSize is the maximum chunk length in runes.
	MaxSize int

	// Overlap is the number of runes shared by consecutive chunks.
	Overlap int

	// Lowercase folds case before fingerprinting.
	Lowercase bool

	// StripAcademicNoise removes captions, footnotes and back matter.
	StripAcademicNoise bool

	// SharedSourceNamespace lets URL and PDF sources with equal IDs share fingerprints.
	SharedSourceNamespace bool
}

// FetchSettings configures URL loading.
type FetchSettings struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxBodyBytes      int64
	UserAgent         string

	// SiteRulesFile is an optional YAML file of per-host CSS selectors.
	SiteRulesFile string
}

// ArchiveSettings configures the optional S3 archive of raw sources.
type ArchiveSettings struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string

	// AccessKeyID and SecretAccessKey override the default AWS credential chain.
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled returns true when a bucket is configured.
func (a ArchiveSettings) Enabled() bool {
	return a.Bucket != ""
}

// Settings is the complete configuration of a run. It is built once, then
// passed by value and never mutated.
type Settings struct {
	Mode         Mode
	URLsFile     string
	PDFDir       string
	PDFRecursive bool
	LogLevel     string

	// Collection names the vector store collection.
	Collection string

	Store     StoreSettings
	Embedding EmbeddingSettings
	Chunking  ChunkSettings
	Fetch     FetchSettings
	Archive   ArchiveSettings

	// BatchSize is the number of chunks per embedding and store batch.
	BatchSize int

	// Concurrency is the number of batches in flight.
	Concurrency int

	// RedisURL enables the shared dedup cache and the run lock.
	RedisURL string

	// DryRun loads, chunks and deduplicates without embedding or writing.
	DryRun bool
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		Mode:       ModeBoth,
		URLsFile:   "./documents_url.txt",
		PDFDir:     "./documents_pdf",
		LogLevel:   "info",
		Collection: "rice_study",
		Store: StoreSettings{
			Kind:       StoreSQLite,
			Dir:        "./vector_db",
			PreloadIDs: true,
		},
		Embedding: EmbeddingSettings{
			Provider: ProviderOpenAI,
			BaseURL:  providerDefaults[ProviderOpenAI].BaseURL,
			Model:    providerDefaults[ProviderOpenAI].Model,
			Timeout:  60 * time.Second,
			Retry:    DefaultRetryPolicy(),
		},
		Chunking: ChunkSettings{
			MaxSize: 1000,
			Overlap: 200,
		},
		Fetch: FetchSettings{
			Timeout:           10 * time.Second,
			RequestsPerSecond: 2,
			Burst:             4,
			MaxBodyBytes:      20 << 20,
			UserAgent:         "sercha-ingest/1.0",
		},
		BatchSize:   32,
		Concurrency: 4,
	}
}

// Validate checks values that do not need I/O. Input paths are checked by
// the loaders.
func (s *Settings) Validate() error {
	if !s.Mode.IsValid() {
		return NewConfigError("mode", "must be one of urls, pdfs, both (got %q)", s.Mode)
	}
	if s.Collection == "" {
		return NewConfigError("collection", "must not be empty")
	}
	if !s.Store.Kind.IsValid() {
		return NewConfigError("store", "unknown vector store %q", s.Store.Kind)
	}
	switch s.Store.Kind {
	case StorePostgres:
		if s.Store.DatabaseURL == "" {
			return NewConfigError("database_url", "required for the postgres store")
		}
	case StoreQdrant:
		if s.Store.QdrantURL == "" {
			return NewConfigError("qdrant_url", "required for the qdrant store")
		}
	case StoreSQLite:
		if s.Store.Dir == "" {
			return NewConfigError("store_dir", "required for the sqlite store")
		}
	}
	if err := s.Chunking.validate(); err != nil {
		return err
	}
	if s.BatchSize <= 0 {
		return NewConfigError("batch_size", "must be positive (got %d)", s.BatchSize)
	}
	if s.Concurrency <= 0 {
		return NewConfigError("concurrency", "must be positive (got %d)", s.Concurrency)
	}
	if s.Fetch.Timeout <= 0 {
		return NewConfigError("fetch_timeout", "must be positive")
	}
	if s.DryRun {
		return nil
	}
	return s.Embedding.validate()
}

func (c ChunkSettings) validate() error {
	if c.MaxSize <= 0 {
		return NewConfigError("chunk_size", "must be positive (got %d)", c.MaxSize)
	}
	if c.Overlap < 0 || c.Overlap >= c.MaxSize {
		return NewConfigError("chunk_overlap", "must satisfy 0 <= overlap < chunk_size (got %d, size %d)",
			c.Overlap, c.MaxSize)
	}
	return nil
}

func (e EmbeddingSettings) validate() error {
	if !e.Provider.IsValid() {
		return NewConfigError("embedding_provider", "unknown provider %q", e.Provider)
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return NewConfigError("api_key", "missing credentials for %s provider", e.Provider)
	}
	if e.Model == "" && e.Provider != ProviderGemini {
		return NewConfigError("embedding_model", "must not be empty")
	}
	if e.Timeout <= 0 {
		return NewConfigError("embed_timeout", "must be positive")
	}
	r := e.Retry
	if r.MaxAttempts < 1 {
		return NewConfigError("embed_max_attempts", "must be at least 1 (got %d)", r.MaxAttempts)
	}
	if r.BaseDelay < 0 || r.MaxDelay < 0 {
		return NewConfigError("embed_retry", "delays must not be negative")
	}
	if r.Multiplier < 1 {
		return NewConfigError("embed_retry", "multiplier must be >= 1 (got %v)", r.Multiplier)
	}
	if r.Jitter < 0 || r.Jitter >= 1 {
		return NewConfigError("embed_retry", "jitter must be in [0, 1) (got %v)", r.Jitter)
	}
	return nil
}

// SourceKeyFor returns the fingerprint source key for a source under these settings.
func (s *Settings) SourceKeyFor(origin Origin, sourceID string) string {
	return SourceKey(origin, sourceID, s.Chunking.SharedSourceNamespace)
}

// String summarises the settings for debug logs. Secrets are omitted.
func (s *Settings) String() string {
	return fmt.Sprintf("mode=%s collection=%s store=%s provider=%s model=%s chunk=%d/%d batch=%d concurrency=%d",
		s.Mode, s.Collection, s.Store.Kind, s.Embedding.Provider, s.Embedding.Model,
		s.Chunking.MaxSize, s.Chunking.Overlap, s.BatchSize, s.Concurrency)
}
