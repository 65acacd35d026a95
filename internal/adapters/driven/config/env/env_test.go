package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/config"
)

func lookupFrom(m map[string]string) LookupFunc {
	return func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	}
}

func writeDotenv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestValues_FromDotenv(t *testing.T) {
	path := writeDotenv(t, "OPENAI_API_KEY=sk-file\nCHUNK_SIZE=500\nCHROMA_DIR=./chroma\n# comment\n")

	values, err := Values(path, lookupFrom(nil))
	require.NoError(t, err)
	assert.Equal(t, "sk-file", values[config.KeyOpenAIAPIKey])
	assert.Equal(t, "500", values["chunking.size"])
	assert.Equal(t, "./chroma", values["store.dir"])
}

func TestValues_EnvironmentWins(t *testing.T) {
	path := writeDotenv(t, "OPENAI_API_KEY=sk-file\nCOLLECTION=from_file\n")

	values, err := Values(path, lookupFrom(map[string]string{
		"OPENAI_API_KEY": "sk-env",
		"COLLECTION":     "",
	}))
	require.NoError(t, err)
	assert.Equal(t, "sk-env", values[config.KeyOpenAIAPIKey])
	// an empty variable does not hide the file value
	assert.Equal(t, "from_file", values["collection"])
}

func TestValues_AliasesLoseToPrimary(t *testing.T) {
	values, err := Values("", lookupFrom(map[string]string{
		"CHROMA_COLLECTION": "old",
		"COLLECTION":        "new",
		"CHROMA_DIR":        "./chroma",
	}))
	require.NoError(t, err)
	assert.Equal(t, "new", values["collection"])
	assert.Equal(t, "./chroma", values["store.dir"])
}

func TestValues_MissingDotenvIgnored(t *testing.T) {
	values, err := Values(filepath.Join(t.TempDir(), "missing.env"), lookupFrom(nil))
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestValues_DotenvIsDirectory(t *testing.T) {
	_, err := Values(t.TempDir(), lookupFrom(nil))
	assert.Error(t, err)
}

func TestVariables_MapToKnownKeys(t *testing.T) {
	known := make(map[string]bool)
	for _, k := range config.Keys() {
		known[k] = true
	}
	for name, key := range Variables {
		assert.True(t, known[key], "%s maps to unknown key %s", name, key)
	}
	for alias, primary := range Aliases {
		_, ok := Variables[primary]
		assert.True(t, ok, "alias %s points at unknown variable %s", alias, primary)
	}
}
