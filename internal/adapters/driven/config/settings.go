// Package config applies layered configuration values onto domain.Settings.
//
// Every layer (TOML file, environment) produces values under the same
// canonical dotted keys, e.g. "embedding.provider" or "chunking.size".
package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// Provider-scoped keys. They only apply when the matching provider is selected.
const (
	KeyOpenAIAPIKey  = "embedding.openai_api_key"
	KeyOpenAIBaseURL = "embedding.openai_base_url"
	KeyGeminiAPIKey  = "embedding.gemini_api_key"
	KeyOllamaBaseURL = "embedding.ollama_base_url"
)

type setter func(s *domain.Settings, v string) error

var setters = map[string]setter{
	"mode":          func(s *domain.Settings, v string) error { s.Mode = domain.Mode(strings.ToLower(v)); return nil },
	"urls_file":     func(s *domain.Settings, v string) error { s.URLsFile = v; return nil },
	"pdf_dir":       func(s *domain.Settings, v string) error { s.PDFDir = v; return nil },
	"log_level":     func(s *domain.Settings, v string) error { s.LogLevel = strings.ToLower(v); return nil },
	"collection":    func(s *domain.Settings, v string) error { s.Collection = v; return nil },
	"redis_url":     func(s *domain.Settings, v string) error { s.RedisURL = v; return nil },
	"pdf_recursive": boolSetter(func(s *domain.Settings, b bool) { s.PDFRecursive = b }),
	"dry_run":       boolSetter(func(s *domain.Settings, b bool) { s.DryRun = b }),
	"batch_size":    intSetter(func(s *domain.Settings, n int) { s.BatchSize = n }),
	"concurrency":   intSetter(func(s *domain.Settings, n int) { s.Concurrency = n }),

	"store.kind":           func(s *domain.Settings, v string) error { s.Store.Kind = domain.StoreKind(strings.ToLower(v)); return nil },
	"store.dir":            func(s *domain.Settings, v string) error { s.Store.Dir = v; return nil },
	"store.database_url":   func(s *domain.Settings, v string) error { s.Store.DatabaseURL = v; return nil },
	"store.qdrant_url":     func(s *domain.Settings, v string) error { s.Store.QdrantURL = v; return nil },
	"store.qdrant_api_key": func(s *domain.Settings, v string) error { s.Store.QdrantAPIKey = v; return nil },
	"store.preload_ids":    boolSetter(func(s *domain.Settings, b bool) { s.Store.PreloadIDs = b }),

	"embedding.api_key":  func(s *domain.Settings, v string) error { s.Embedding.APIKey = v; return nil },
	"embedding.base_url": func(s *domain.Settings, v string) error { s.Embedding.BaseURL = v; return nil },
	"embedding.model":    func(s *domain.Settings, v string) error { s.Embedding.Model = v; return nil },
	"embedding.timeout":  durationSetter(func(s *domain.Settings, d time.Duration) { s.Embedding.Timeout = d }),
	"embedding.requests_per_second": floatSetter(func(s *domain.Settings, f float64) {
		s.Embedding.RequestsPerSecond = f
	}),
	"embedding.max_attempts": intSetter(func(s *domain.Settings, n int) { s.Embedding.Retry.MaxAttempts = n }),
	"embedding.base_delay":   durationSetter(func(s *domain.Settings, d time.Duration) { s.Embedding.Retry.BaseDelay = d }),
	"embedding.max_delay":    durationSetter(func(s *domain.Settings, d time.Duration) { s.Embedding.Retry.MaxDelay = d }),
	"embedding.multiplier":   floatSetter(func(s *domain.Settings, f float64) { s.Embedding.Retry.Multiplier = f }),
	"embedding.jitter":       floatSetter(func(s *domain.Settings, f float64) { s.Embedding.Retry.Jitter = f }),

	"chunking.size":                    intSetter(func(s *domain.Settings, n int) { s.Chunking.MaxSize = n }),
	"chunking.overlap":                 intSetter(func(s *domain.Settings, n int) { s.Chunking.Overlap = n }),
	"chunking.lowercase":               boolSetter(func(s *domain.Settings, b bool) { s.Chunking.Lowercase = b }),
	"chunking.strip_academic_noise":    boolSetter(func(s *domain.Settings, b bool) { s.Chunking.StripAcademicNoise = b }),
	"chunking.shared_source_namespace": boolSetter(func(s *domain.Settings, b bool) { s.Chunking.SharedSourceNamespace = b }),

	"fetch.timeout":             durationSetter(func(s *domain.Settings, d time.Duration) { s.Fetch.Timeout = d }),
	"fetch.requests_per_second": floatSetter(func(s *domain.Settings, f float64) { s.Fetch.RequestsPerSecond = f }),
	"fetch.burst":               intSetter(func(s *domain.Settings, n int) { s.Fetch.Burst = n }),
	"fetch.max_body_bytes": func(s *domain.Settings, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		s.Fetch.MaxBodyBytes = n
		return nil
	},
	"fetch.user_agent":      func(s *domain.Settings, v string) error { s.Fetch.UserAgent = v; return nil },
	"fetch.site_rules_file": func(s *domain.Settings, v string) error { s.Fetch.SiteRulesFile = v; return nil },

	"archive.bucket":            func(s *domain.Settings, v string) error { s.Archive.Bucket = v; return nil },
	"archive.prefix":            func(s *domain.Settings, v string) error { s.Archive.Prefix = v; return nil },
	"archive.region":            func(s *domain.Settings, v string) error { s.Archive.Region = v; return nil },
	"archive.endpoint":          func(s *domain.Settings, v string) error { s.Archive.Endpoint = v; return nil },
	"archive.access_key_id":     func(s *domain.Settings, v string) error { s.Archive.AccessKeyID = v; return nil },
	"archive.secret_access_key": func(s *domain.Settings, v string) error { s.Archive.SecretAccessKey = v; return nil },
}

// Keys returns every canonical key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(setters)+5)
	for k := range setters {
		keys = append(keys, k)
	}
	keys = append(keys, "embedding.provider", KeyOpenAIAPIKey, KeyOpenAIBaseURL, KeyGeminiAPIKey, KeyOllamaBaseURL)
	sort.Strings(keys)
	return keys
}

// Apply overlays values onto s. The provider is applied first so that
// explicit base URL and model values win over provider defaults. Unknown
// keys are ignored. A malformed value is a ConfigError naming the key.
func Apply(s *domain.Settings, values map[string]string) error {
	if p, ok := values["embedding.provider"]; ok && p != "" {
		s.Embedding.SetProvider(domain.EmbeddingProvider(strings.ToLower(p)))
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		set, ok := setters[k]
		if !ok {
			continue
		}
		v := strings.TrimSpace(values[k])
		if err := set(s, v); err != nil {
			return domain.NewConfigError(k, "invalid value %q: %v", v, err)
		}
	}

	switch s.Embedding.Provider {
	case domain.ProviderOpenAI:
		applyIfSet(&s.Embedding.APIKey, values, KeyOpenAIAPIKey)
		applyIfSet(&s.Embedding.BaseURL, values, KeyOpenAIBaseURL)
	case domain.ProviderGemini:
		applyIfSet(&s.Embedding.APIKey, values, KeyGeminiAPIKey)
	case domain.ProviderOllama:
		applyIfSet(&s.Embedding.BaseURL, values, KeyOllamaBaseURL)
	}
	return nil
}

// applyIfSet copies a provider-scoped value unless the generic key already set the field.
func applyIfSet(dst *string, values map[string]string, key string) {
	v := strings.TrimSpace(values[key])
	if v == "" {
		return
	}
	generic := "embedding.api_key"
	if strings.HasSuffix(key, "base_url") {
		generic = "embedding.base_url"
	}
	if strings.TrimSpace(values[generic]) != "" {
		return
	}
	*dst = v
}

func boolSetter(f func(*domain.Settings, bool)) setter {
	return func(s *domain.Settings, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		f(s, b)
		return nil
	}
}

func intSetter(f func(*domain.Settings, int)) setter {
	return func(s *domain.Settings, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		f(s, n)
		return nil
	}
}

func floatSetter(f func(*domain.Settings, float64)) setter {
	return func(s *domain.Settings, v string) error {
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		f(s, x)
		return nil
	}
}

// durationSetter accepts Go durations ("500ms", "1m") or whole seconds ("60").
func durationSetter(f func(*domain.Settings, time.Duration)) setter {
	return func(s *domain.Settings, v string) error {
		d, err := ParseDuration(v)
		if err != nil {
			return err
		}
		f(s, d)
		return nil
	}
}

// ParseDuration parses a Go duration or a whole number of seconds.
func ParseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("not a duration")
	}
	return d, nil
}
