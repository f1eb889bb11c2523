package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/chainmlp/internal/model"
	"github.com/born-ml/chainmlp/internal/serialization"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect WEIGHTS",
		Short: "List the tensors and metadata of a weight file",
		Args:  cobra.ExactArgs(1),
		RunE:  InspectHandler,
	}
}

type tensorRow struct {
	name  string
	dtype string
	shape []int
}

// InspectHandler prints a table of tensors followed by file metadata.
func InspectHandler(cmd *cobra.Command, args []string) error {
	path := args[0]

	var (
		rows []tensorRow
		meta map[string]string
	)

	if strings.EqualFold(filepath.Ext(path), ".safetensors") {
		r, err := serialization.OpenSafeTensors(path)
		if err != nil {
			return err
		}
		defer r.Close()

		for _, name := range r.TensorNames() {
			info, err := r.TensorInfo(name)
			if err != nil {
				return err
			}
			rows = append(rows, tensorRow{name, string(info.DType), info.Shape})
		}
		meta = r.Metadata()
	} else {
		stateDict, _, err := model.ReadStateDict(path)
		if err != nil {
			return err
		}
		for name, raw := range stateDict {
			rows = append(rows, tensorRow{name, raw.DType().String(), raw.Shape()})
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })
	}

	return showInspect(cmd.OutOrStdout(), rows, meta)
}

func showInspect(w io.Writer, rows []tensorRow, meta map[string]string) error {
	var data [][]string
	total := 0
	for _, r := range rows {
		n := 1
		dims := make([]string, len(r.shape))
		for i, d := range r.shape {
			n *= d
			dims[i] = strconv.Itoa(d)
		}
		total += n
		data = append(data, []string{r.name, r.dtype, "[" + strings.Join(dims, ", ") + "]", strconv.Itoa(n)})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"NAME", "DTYPE", "SHAPE", "PARAMS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	fmt.Fprintf(w, "\n%d tensors, %d parameters\n", len(rows), total)

	if len(meta) == 0 {
		return nil
	}

	keys := make([]string, 0, len(meta))
	for k := range meta {
		if k != model.MetaConfig {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	fmt.Fprintln(w)
	table = tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	for _, k := range keys {
		table.Append([]string{k, meta[k]})
	}
	table.Render()

	if cfg, ok := meta[model.MetaConfig]; ok {
		fmt.Fprintf(w, "\n%s:\n%s", model.MetaConfig, cfg)
	}
	return nil
}
