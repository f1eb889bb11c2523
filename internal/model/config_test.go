package model

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 77, cfg.Stage1.InputDim)
	assert.Equal(t, 9, cfg.Stage1.OutputDim)
	assert.Equal(t, []int{512, 512, 512, 512}, cfg.Stage1.HiddenDims)
	assert.Equal(t, 77+512, cfg.Stage2.InputDim)
	assert.Equal(t, 1, cfg.Stage2.OutputDim)
	assert.Len(t, cfg.Stage2.HiddenDims, 5)
	assert.True(t, cfg.Stage1.ZeroInit)
	assert.True(t, cfg.Stage2.ZeroInit)
	assert.InDelta(t, 0.05, cfg.Stage1.Dropout, 1e-9)
	assert.Equal(t, 1, cfg.NLayer)
}

func TestConfigYAMLRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	data, err := cfg.YAML()
	require.NoError(t, err)

	parsed, err := ParseConfig(data)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, parsed); diff != "" {
		t.Errorf("config round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseConfigOverlaysDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
d_model: 64
simplemlp1:
  hidden_dims: [32, 16]
simplemlp2:
  input_dim: 93
  hidden_dims: [8]
  dropout: 0
`))
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.DModel)
	assert.Equal(t, 77, cfg.Stage1.InputDim)
	assert.Equal(t, []int{32, 16}, cfg.Stage1.HiddenDims)
	assert.Equal(t, 93, cfg.Stage2.InputDim)
	assert.Equal(t, []int{8}, cfg.Stage2.HiddenDims)
	assert.Zero(t, cfg.Stage2.Dropout)
	assert.True(t, cfg.Stage2.ZeroInit)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty hidden", func(c *Config) { c.Stage1.HiddenDims = nil }},
		{"zero hidden", func(c *Config) { c.Stage2.HiddenDims[1] = 0 }},
		{"bad input", func(c *Config) { c.Stage1.InputDim = 0 }},
		{"bad output", func(c *Config) { c.Stage2.OutputDim = -1 }},
		{"dropout one", func(c *Config) { c.Stage1.Dropout = 1 }},
		{"negative model dropout", func(c *Config) { c.Dropout = -0.1 }},
		{"stage2 input", func(c *Config) { c.Stage2.InputDim = 77 }},
		{"negative layers", func(c *Config) { c.NLayer = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("n_layer: 3\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.NLayer)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("simplemlp1: [\n"), 0o600))
	_, err = LoadConfig(path)
	assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
}
