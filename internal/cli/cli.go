// Package cli implements the chainmlp command line.
package cli

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/born-ml/chainmlp/internal/backend/cpu"
	"github.com/born-ml/chainmlp/internal/envconfig"
	"github.com/born-ml/chainmlp/internal/model"
)

// Version is the CLI version, overridden at build time with
// -ldflags "-X github.com/born-ml/chainmlp/internal/cli.Version=...".
var Version = "v0.1.0-dev"

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI builds the root command with all subcommands attached.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "chainmlp",
		Short:         "Two-stage MLP inference and weight tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: envconfig.LogLevel(),
			})))
		},
		Run: func(cmd *cobra.Command, _ []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				fmt.Fprintf(cmd.OutOrStdout(), "chainmlp version %s\n", Version)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	initCmd := newInitCmd()
	predictCmd := newPredictCmd()
	evalCmd := newEvalCmd()
	inspectCmd := newInspectCmd()

	envVars := envconfig.AsMap()
	for _, cmd := range []*cobra.Command{initCmd, predictCmd, evalCmd} {
		appendEnvDocs(cmd, []envconfig.EnvVar{
			envVars["CHAINMLP_DEBUG"],
			envVars["CHAINMLP_SEED"],
			envVars["CHAINMLP_NUM_THREADS"],
		})
	}
	appendEnvDocs(inspectCmd, []envconfig.EnvVar{envVars["CHAINMLP_DEBUG"]})

	rootCmd.AddCommand(initCmd, predictCmd, evalCmd, inspectCmd)

	return rootCmd
}

func newBackend() *cpu.CPUBackend {
	return cpu.NewWithWorkers(envconfig.NumThreads())
}

func newRNG() *rand.Rand {
	seed := envconfig.Seed()
	if seed == 0 {
		//nolint:gosec // G115: any bit pattern is a valid seed
		seed = uint64(time.Now().UnixNano())
	}
	slog.Debug("rng", "seed", seed)
	//nolint:gosec // G404: weight initialization does not need a CSPRNG
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// resolveConfig picks the architecture for a weight file: an explicit YAML
// file wins, then a config embedded in SafeTensors metadata, then the
// default architecture.
func resolveConfig(weights, configPath string) (model.Config, error) {
	if configPath != "" {
		return model.LoadConfig(configPath)
	}

	if strings.EqualFold(filepath.Ext(weights), ".safetensors") {
		cfg, ok, err := model.ReadConfig(weights)
		if err != nil {
			return model.Config{}, err
		}
		if ok {
			return cfg, nil
		}
	}

	slog.Debug("no config given, using default architecture", "weights", weights)
	return model.DefaultConfig(), nil
}

// loadModel builds a model for weights and switches it to eval mode.
func loadModel(weights, configPath string, backend *cpu.CPUBackend) (*model.Model[*cpu.CPUBackend], error) {
	cfg, err := resolveConfig(weights, configPath)
	if err != nil {
		return nil, err
	}

	m, err := model.New(cfg, newRNG(), backend)
	if err != nil {
		return nil, err
	}
	if err := m.Load(weights); err != nil {
		return nil, err
	}
	m.Eval()

	return m, nil
}
