package postprocessors

import (
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/postprocessors/chunker"
	"github.com/custodia-labs/sercha-ingest/internal/postprocessors/fingerprint"
	"github.com/custodia-labs/sercha-ingest/internal/postprocessors/sections"
)

// DefaultPipeline is the processor order used for ingestion.
var DefaultPipeline = []string{"chunker", "sections", "fingerprint"}

// RegisterDefaults registers all built-in processors with the registry.
// Call this during application initialisation to enable standard processors.
func RegisterDefaults(r *Registry) {
	r.Register("chunker", buildChunker)
	r.Register("sections", buildSections)
	r.Register("fingerprint", buildFingerprint)
}

// NewDefaultPipeline builds the default pipeline from chunk settings.
func NewDefaultPipeline(cfg domain.ChunkSettings) (*Pipeline, error) {
	r := NewRegistry()
	RegisterDefaults(r)
	return r.BuildPipeline(DefaultPipeline, ConfigFromSettings(cfg))
}

// ConfigFromSettings converts chunk settings into generic processor config.
func ConfigFromSettings(cfg domain.ChunkSettings) map[string]any {
	return map[string]any{
		"chunk_size":              cfg.MaxSize,
		"overlap":                 cfg.Overlap,
		"shared_source_namespace": cfg.SharedSourceNamespace,
	}
}

// buildChunker creates a chunker processor from generic config.
// Supported config keys:
//   - chunk_size (int): Runes per chunk (default: 1000)
//   - overlap (int): Overlapping runes between chunks (default: 200)
func buildChunker(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []chunker.Option

	if size, ok := getIntFromConfig(cfg, "chunk_size"); ok && size > 0 {
		opts = append(opts, chunker.WithChunkSize(size))
	}
	if overlap, ok := getIntFromConfig(cfg, "overlap"); ok && overlap >= 0 {
		opts = append(opts, chunker.WithOverlap(overlap))
	}

	return chunker.New(opts...), nil
}

func buildSections(_ map[string]any) (driven.PostProcessor, error) {
	return sections.New(), nil
}

// buildFingerprint reads shared_source_namespace (bool, default false).
func buildFingerprint(cfg map[string]any) (driven.PostProcessor, error) {
	shared, _ := cfg["shared_source_namespace"].(bool)
	return fingerprint.New(fingerprint.WithSharedNamespace(shared)), nil
}

// getIntFromConfig extracts an int from a generic config map.
// Handles int, int64, and float64 types that may come from TOML/JSON parsing.
func getIntFromConfig(cfg map[string]any, key string) (int, bool) {
	val, ok := cfg[key]
	if !ok {
		return 0, false
	}

	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
