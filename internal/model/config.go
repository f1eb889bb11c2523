package model

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a configuration cannot describe a
// working network.
var ErrInvalidConfig = errors.New("invalid config")

// MLPConfig describes one SimpleMLP.
type MLPConfig struct {
	InputDim   int     `yaml:"input_dim"`
	OutputDim  int     `yaml:"output_dim"`
	HiddenDims []int   `yaml:"hidden_dims"`
	Dropout    float32 `yaml:"dropout"`
	ZeroInit   bool    `yaml:"zero_init"`
}

// HiddenDim returns the width of the last hidden block.
func (c MLPConfig) HiddenDim() int {
	if len(c.HiddenDims) == 0 {
		return 0
	}
	return c.HiddenDims[len(c.HiddenDims)-1]
}

// Validate checks dimensions and dropout range.
func (c MLPConfig) Validate() error {
	if c.InputDim <= 0 {
		return fmt.Errorf("%w: input_dim must be > 0, got %d", ErrInvalidConfig, c.InputDim)
	}
	if c.OutputDim <= 0 {
		return fmt.Errorf("%w: output_dim must be > 0, got %d", ErrInvalidConfig, c.OutputDim)
	}
	if len(c.HiddenDims) == 0 {
		return fmt.Errorf("%w: hidden_dims must not be empty", ErrInvalidConfig)
	}
	for i, d := range c.HiddenDims {
		if d <= 0 {
			return fmt.Errorf("%w: hidden_dims[%d] must be > 0, got %d", ErrInvalidConfig, i, d)
		}
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("%w: dropout must be in [0, 1), got %v", ErrInvalidConfig, c.Dropout)
	}
	return nil
}

// Config describes the two-stage network.
//
// DModel, NLayer and Dropout are carried for the surrounding pipeline; the
// wiring is fully determined by the two stage configs.
type Config struct {
	DModel  int       `yaml:"d_model"`
	NLayer  int       `yaml:"n_layer"`
	Dropout float32   `yaml:"dropout"`
	Stage1  MLPConfig `yaml:"simplemlp1"`
	Stage2  MLPConfig `yaml:"simplemlp2"`
}

// DefaultConfig returns the reference architecture: a 77-feature input,
// a 4x512 first stage predicting 9 values, and a 5x512 second stage that
// sees the input plus the first stage's last hidden layer and predicts one
// value.
func DefaultConfig() Config {
	return Config{
		DModel:  512,
		NLayer:  1,
		Dropout: 0,
		Stage1: MLPConfig{
			InputDim:   77,
			OutputDim:  9,
			HiddenDims: []int{512, 512, 512, 512},
			Dropout:    0.05,
			ZeroInit:   true,
		},
		Stage2: MLPConfig{
			InputDim:   77 + 512,
			OutputDim:  1,
			HiddenDims: []int{512, 512, 512, 512, 512},
			Dropout:    0.05,
			ZeroInit:   true,
		},
	}
}

// Validate checks both stages and that the second stage's input is the
// first stage's input concatenated with its last hidden layer.
func (c Config) Validate() error {
	if c.NLayer < 0 {
		return fmt.Errorf("%w: n_layer must be >= 0, got %d", ErrInvalidConfig, c.NLayer)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("%w: dropout must be in [0, 1), got %v", ErrInvalidConfig, c.Dropout)
	}
	if err := c.Stage1.Validate(); err != nil {
		return fmt.Errorf("simplemlp1: %w", err)
	}
	if err := c.Stage2.Validate(); err != nil {
		return fmt.Errorf("simplemlp2: %w", err)
	}
	if want := c.Stage1.InputDim + c.Stage1.HiddenDim(); c.Stage2.InputDim != want {
		return fmt.Errorf("%w: simplemlp2 input_dim must be %d (simplemlp1 input_dim + last hidden dim), got %d",
			ErrInvalidConfig, want, c.Stage2.InputDim)
	}
	return nil
}

// ParseConfig decodes YAML over DefaultConfig and validates the result.
// Fields absent from data keep their default values.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	//nolint:gosec // G304: config path comes from the user
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// YAML encodes the config.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
