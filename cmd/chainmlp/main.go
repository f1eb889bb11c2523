// Command chainmlp initializes, inspects and runs two-stage MLP weights.
package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/born-ml/chainmlp/internal/cli"
)

func main() {
	cobra.CheckErr(cli.NewCLI().ExecuteContext(context.Background()))
}
