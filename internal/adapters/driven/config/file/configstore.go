package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// DefaultFileName is the configuration file name inside ~/.sercha.
const DefaultFileName = "ingest.toml"

// ConfigStore is a TOML configuration file held as flattened dotted keys.
type ConfigStore struct {
	mu       sync.RWMutex
	filePath string
	data     map[string]any
	loaded   bool
}

// DefaultPath returns ~/.sercha/ingest.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".sercha", DefaultFileName), nil
}

// NewConfigStore opens the TOML file at path. If path is empty, defaults to
// ~/.sercha/ingest.toml. A missing file yields an empty store.
func NewConfigStore(path string) (*ConfigStore, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	s := &ConfigStore{
		filePath: path,
		data:     make(map[string]any),
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get retrieves a configuration value by key.
func (s *ConfigStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.data[key]
	return val, ok
}

// GetString retrieves a string configuration value.
func (s *ConfigStore) GetString(key string) string {
	val, ok := s.Get(key)
	if !ok {
		return ""
	}
	str, ok := val.(string)
	if !ok {
		return ""
	}
	return str
}

// GetInt retrieves an integer configuration value.
func (s *ConfigStore) GetInt(key string) int {
	val, ok := s.Get(key)
	if !ok {
		return 0
	}

	// TOML integers are parsed as int64
	switch v := val.(type) {
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// GetBool retrieves a boolean configuration value.
func (s *ConfigStore) GetBool(key string) bool {
	val, ok := s.Get(key)
	if !ok {
		return false
	}
	b, ok := val.(bool)
	if !ok {
		return false
	}
	return b
}

// Values returns every scalar value formatted as a string, keyed by dotted key.
func (s *ConfigStore) Values() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.data))
	for k, v := range s.data {
		switch x := v.(type) {
		case string:
			out[k] = x
		case int64:
			out[k] = strconv.FormatInt(x, 10)
		case int:
			out[k] = strconv.Itoa(x)
		case float64:
			out[k] = strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(x)
		}
	}
	return out
}

// Set stores a configuration value in memory. Call Save to persist.
func (s *ConfigStore) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// SetSettings stores the non-secret fields of settings.
func (s *ConfigStore) SetSettings(st domain.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range map[string]any{
		"mode":                             string(st.Mode),
		"urls_file":                        st.URLsFile,
		"pdf_dir":                          st.PDFDir,
		"pdf_recursive":                    st.PDFRecursive,
		"log_level":                        st.LogLevel,
		"collection":                       st.Collection,
		"batch_size":                       int64(st.BatchSize),
		"concurrency":                      int64(st.Concurrency),
		"store.kind":                       string(st.Store.Kind),
		"store.dir":                        st.Store.Dir,
		"store.preload_ids":                st.Store.PreloadIDs,
		"embedding.provider":               string(st.Embedding.Provider),
		"embedding.base_url":               st.Embedding.BaseURL,
		"embedding.model":                  st.Embedding.Model,
		"embedding.timeout":                st.Embedding.Timeout.String(),
		"embedding.max_attempts":           int64(st.Embedding.Retry.MaxAttempts),
		"embedding.base_delay":             st.Embedding.Retry.BaseDelay.String(),
		"embedding.max_delay":              st.Embedding.Retry.MaxDelay.String(),
		"chunking.size":                    int64(st.Chunking.MaxSize),
		"chunking.overlap":                 int64(st.Chunking.Overlap),
		"chunking.lowercase":               st.Chunking.Lowercase,
		"chunking.strip_academic_noise":    st.Chunking.StripAcademicNoise,
		"chunking.shared_source_namespace": st.Chunking.SharedSourceNamespace,
		"fetch.timeout":                    st.Fetch.Timeout.String(),
		"fetch.requests_per_second":        st.Fetch.RequestsPerSecond,
		"fetch.burst":                      int64(st.Fetch.Burst),
		"fetch.user_agent":                 st.Fetch.UserAgent,
	} {
		s.data[k] = v
	}
}

// Save persists the current configuration to disk, creating the directory.
func (s *ConfigStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

// save writes configuration to the TOML file (caller must hold lock).
func (s *ConfigStore) save() error {
	data, err := toml.Marshal(unflattenMap(s.data))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0700); err != nil {
		return err
	}

	// Write with restricted permissions
	return os.WriteFile(s.filePath, data, 0600)
}

// Load reads configuration from the TOML file.
func (s *ConfigStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.data = make(map[string]any)
			s.loaded = false
			return nil
		}
		return err
	}

	var loaded map[string]any
	if err := toml.Unmarshal(data, &loaded); err != nil {
		return domain.NewConfigError("config", "%s: %v", s.filePath, err)
	}
	if loaded == nil {
		loaded = make(map[string]any)
	}

	s.data = flattenMap(loaded, "")
	s.loaded = true
	return nil
}

// Exists returns true if the file was present when last loaded.
func (s *ConfigStore) Exists() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Keys returns the stored keys, sorted.
func (s *ConfigStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// flattenMap converts nested maps to dot-notation keys.
// E.g., {"a": {"b": 1}} becomes {"a.b": 1}.
func flattenMap(m map[string]any, prefix string) map[string]any {
	result := make(map[string]any)

	for key, value := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nested, ok := value.(map[string]any); ok {
			for k, v := range flattenMap(nested, fullKey) {
				result[k] = v
			}
		} else {
			result[fullKey] = value
		}
	}

	return result
}

// unflattenMap is the inverse of flattenMap.
func unflattenMap(m map[string]any) map[string]any {
	result := make(map[string]any)
	for key, value := range m {
		parts := strings.Split(key, ".")
		cur := result
		for _, p := range parts[:len(parts)-1] {
			next, ok := cur[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				cur[p] = next
			}
			cur = next
		}
		cur[parts[len(parts)-1]] = value
	}
	return result
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}

// String describes the store for debug logs.
func (s *ConfigStore) String() string {
	return fmt.Sprintf("%s (%d keys)", s.filePath, len(s.Keys()))
}
