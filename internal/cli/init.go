package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/born-ml/chainmlp/internal/model"
	"github.com/born-ml/chainmlp/internal/serialization"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create freshly initialized weights",
		Args:  cobra.NoArgs,
		RunE:  InitHandler,
	}

	cmd.Flags().String("config", "", "Architecture config (YAML); default architecture if empty")
	cmd.Flags().StringP("out", "o", "", "Output SafeTensors file")
	cmd.Flags().String("dtype", "f32", "Storage dtype: f32, f16 or bf16")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

// InitHandler initializes a model and writes its weights.
func InitHandler(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	out, _ := cmd.Flags().GetString("out")
	dtypeName, _ := cmd.Flags().GetString("dtype")

	dtype, err := serialization.ParseDType(dtypeName)
	if err != nil {
		return err
	}

	cfg := model.DefaultConfig()
	if configPath != "" {
		if cfg, err = model.LoadConfig(configPath); err != nil {
			return err
		}
	}

	m, err := model.New(cfg, newRNG(), newBackend())
	if err != nil {
		return err
	}

	id, err := m.Save(out, dtype)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d parameters, %s, checkpoint %s)\n", out, m.NumParameters(), dtype, id)
	return nil
}
