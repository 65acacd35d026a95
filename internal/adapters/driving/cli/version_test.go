package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    string
	}{
		{"release build", "v0.4.1", "sercha-ingest version v0.4.1"},
		{"development build", "dev", "sercha-ingest version dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			orig := version
			version = tt.version
			defer func() { version = orig }()

			require.NoError(t, h.run("version"))
			assert.Contains(t, h.out.String(), tt.want)
			assert.Zero(t, h.service.runs)
		})
	}
}
