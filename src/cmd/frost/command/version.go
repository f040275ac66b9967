package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frostnetworks/frost/src/version"
)

// NewVersionCmd returns the command that prints the version.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Version)
		},
	}
}
