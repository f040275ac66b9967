package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frostnetworks/frost/src/crypto/keys"
	"github.com/frostnetworks/frost/src/peers"
)

// NewKeygenCmd returns the command that generates a node keypair.
func NewKeygenCmd() *cobra.Command {
	var outFile string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new node keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := keys.GenerateKeyPair()
			if err != nil {
				return err
			}
			if outFile != "" {
				if err := keys.WriteKeyfile(outFile, key); err != nil {
					return err
				}
				fmt.Printf("keyfile: %s\n", outFile)
			} else {
				fmt.Printf("seed: %s\n", key.SeedHex())
			}
			fmt.Printf("id: %s\n", peers.NewID(key.Public))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "Write the seed to a keyfile instead of stdout")
	return cmd
}
