package model

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/born-ml/chainmlp/internal/serialization"
	"github.com/born-ml/chainmlp/internal/tensor"
)

// Architecture is recorded in checkpoint metadata.
const Architecture = "chainmlp"

// Checkpoint metadata keys.
const (
	MetaFormat       = "format"
	MetaArchitecture = "architecture"
	MetaConfig       = "config"
	MetaCheckpointID = "checkpoint_id"
	MetaCreatedAt    = "created_at"
)

// ErrConfigMismatch is returned when a checkpoint was written for a
// different architecture config.
var ErrConfigMismatch = errors.New("checkpoint config does not match model")

// Save writes the model's parameters to a SafeTensors file, encoding them
// as dtype. The config is embedded in the metadata. Returns the
// checkpoint id written.
func (m *Model[B]) Save(path string, dtype serialization.DType) (string, error) {
	cfgYAML, err := m.cfg.YAML()
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	id := uuid.NewString()
	meta := map[string]string{
		MetaFormat:       "pt",
		MetaArchitecture: Architecture,
		MetaConfig:       string(cfgYAML),
		MetaCheckpointID: id,
		MetaCreatedAt:    time.Now().UTC().Format(time.RFC3339),
	}

	if err := serialization.WriteSafeTensors(path, m.StateDict(), meta, dtype); err != nil {
		return "", err
	}

	slog.Debug("saved model", "path", path, "params", m.NumParameters(), "checkpoint_id", id)
	return id, nil
}

// Load reads parameters from path into the model.
//
// Files ending in .safetensors are read as SafeTensors; if they carry a
// config in their metadata it must equal the model's config. Files ending
// in .pt, .pth or .bin are read as PyTorch state dicts.
func (m *Model[B]) Load(path string) error {
	stateDict, meta, err := ReadStateDict(path)
	if err != nil {
		return err
	}

	if cfgYAML, ok := meta[MetaConfig]; ok {
		fileCfg, err := ParseConfig([]byte(cfgYAML))
		if err != nil {
			return fmt.Errorf("%s: metadata: %w", path, err)
		}
		if diff := cmp.Diff(fileCfg, m.cfg); diff != "" {
			return fmt.Errorf("%s: %w (-file +model):\n%s", path, ErrConfigMismatch, diff)
		}
	}

	for k, raw := range stateDict {
		stateDict[k] = serialization.ToFloat32(raw)
	}

	if err := m.LoadStateDict(stateDict); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	slog.Debug("loaded model", "path", path, "tensors", len(stateDict))
	return nil
}

// ReadStateDict reads a weight file without a model, returning its tensors
// and (for SafeTensors) its metadata.
func ReadStateDict(path string) (map[string]*tensor.RawTensor, map[string]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".safetensors":
		r, err := serialization.OpenSafeTensors(path)
		if err != nil {
			return nil, nil, err
		}
		defer r.Close()

		if err := r.VerifyChecksum(); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		stateDict, err := r.LoadAll()
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		return stateDict, r.Metadata(), nil
	case ".pt", ".pth", ".bin":
		stateDict, err := serialization.LoadTorch(path)
		if err != nil {
			return nil, nil, err
		}
		return stateDict, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown weight file extension %q (want .safetensors, .pt, .pth or .bin)", filepath.Ext(path))
	}
}

// ReadConfig returns the config embedded in a SafeTensors checkpoint.
// ok is false when the file carries none.
func ReadConfig(path string) (cfg Config, ok bool, err error) {
	r, err := serialization.OpenSafeTensors(path)
	if err != nil {
		return Config{}, false, err
	}
	defer r.Close()

	cfgYAML, found := r.Metadata()[MetaConfig]
	if !found {
		return Config{}, false, nil
	}
	cfg, err = ParseConfig([]byte(cfgYAML))
	if err != nil {
		return Config{}, false, fmt.Errorf("%s: metadata: %w", path, err)
	}
	return cfg, true, nil
}
