package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/oilsync/pkg/oilsync"
)

const modulePath = "github.com/mesh-intelligence/oilsync"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the oilsync version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "oilsync v%s\nmodule: %s\n", oilsync.Version, modulePath)
			return nil
		},
	}
}
