package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/born-ml/chainmlp/internal/backend/cpu"
	"github.com/born-ml/chainmlp/internal/nn"
	"github.com/born-ml/chainmlp/internal/tensor"
)

func newPredictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Run the model over CSV rows",
		Long: `Run the model in eval mode over a headerless CSV with one sample per row.

Each output row holds pred followed by the first stage's predictions.`,
		Args: cobra.NoArgs,
		RunE: PredictHandler,
	}

	cmd.Flags().StringP("weights", "w", "", "Weight file (.safetensors, .pt, .pth, .bin)")
	cmd.Flags().String("config", "", "Architecture config (YAML); read from the weight file if empty")
	cmd.Flags().StringP("input", "i", "", "Input CSV")
	cmd.Flags().StringP("output", "o", "", "Output CSV (default stdout)")
	_ = cmd.MarkFlagRequired("weights")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Report the mean squared error of pred over labelled CSV rows",
		Long: `Evaluate the model over a headerless CSV whose rows hold the input
features followed by the target values.`,
		Args: cobra.NoArgs,
		RunE: EvalHandler,
	}

	cmd.Flags().StringP("weights", "w", "", "Weight file (.safetensors, .pt, .pth, .bin)")
	cmd.Flags().String("config", "", "Architecture config (YAML); read from the weight file if empty")
	cmd.Flags().StringP("input", "i", "", "Labelled CSV")
	_ = cmd.MarkFlagRequired("weights")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func readCSVFile(path string, cols int) ([]float32, int, error) {
	//nolint:gosec // G304: input path comes from the user
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	values, rows, err := readRows(f, cols)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}
	return values, rows, nil
}

// PredictHandler writes pred and predAll for every input row.
func PredictHandler(cmd *cobra.Command, _ []string) error {
	weights, _ := cmd.Flags().GetString("weights")
	configPath, _ := cmd.Flags().GetString("config")
	input, _ := cmd.Flags().GetString("input")
	output, _ := cmd.Flags().GetString("output")

	backend := newBackend()
	m, err := loadModel(weights, configPath, backend)
	if err != nil {
		return err
	}

	inDim := m.Config().Stage1.InputDim
	values, rows, err := readCSVFile(input, inDim)
	if err != nil {
		return err
	}

	x, err := tensor.FromSlice(values, tensor.Shape{rows, inDim}, backend)
	if err != nil {
		return err
	}
	pred, predAll := m.Forward(x)
	slog.Debug("predicted", "rows", rows, "pred", pred.Shape(), "pred_all", predAll.Shape())

	if output == "" {
		if err := writeRows(cmd.OutOrStdout(), rows, pred.Data(), predAll.Data()); err != nil {
			return fmt.Errorf("failed to write predictions: %w", err)
		}
		return nil
	}

	//nolint:gosec // G304: output path comes from the user
	f, err := os.Create(output)
	if err != nil {
		return err
	}
	if err := writeRows(f, rows, pred.Data(), predAll.Data()); err != nil {
		f.Close()
		return fmt.Errorf("failed to write predictions: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", output, err)
	}
	return nil
}

// EvalHandler prints the MSE of pred against the trailing target columns.
func EvalHandler(cmd *cobra.Command, _ []string) error {
	weights, _ := cmd.Flags().GetString("weights")
	configPath, _ := cmd.Flags().GetString("config")
	input, _ := cmd.Flags().GetString("input")

	backend := newBackend()
	m, err := loadModel(weights, configPath, backend)
	if err != nil {
		return err
	}

	inDim := m.Config().Stage1.InputDim
	outDim := m.Config().Stage2.OutputDim
	values, rows, err := readCSVFile(input, inDim+outDim)
	if err != nil {
		return err
	}

	x, y := splitColumns(values, rows, inDim, outDim)
	xt, err := tensor.FromSlice(x, tensor.Shape{rows, inDim}, backend)
	if err != nil {
		return err
	}
	yt, err := tensor.FromSlice(y, tensor.Shape{rows, outDim}, backend)
	if err != nil {
		return err
	}

	pred, _ := m.Forward(xt)
	loss := nn.NewMSELoss[*cpu.CPUBackend](backend).Forward(pred, yt)

	fmt.Fprintf(cmd.OutOrStdout(), "rows: %d\nmse:  %g\n", rows, loss.Data()[0])
	return nil
}

// splitColumns separates each row of width inDim+outDim into features and
// targets.
func splitColumns(values []float32, rows, inDim, outDim int) (x, y []float32) {
	x = make([]float32, 0, rows*inDim)
	y = make([]float32, 0, rows*outDim)
	width := inDim + outDim
	for r := range rows {
		row := values[r*width : (r+1)*width]
		x = append(x, row[:inDim]...)
		y = append(y, row[inDim:]...)
	}
	return x, y
}
