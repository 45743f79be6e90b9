package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tunnelcore/tunnelcore/encryption"
)

var (
	keyCount int
	withPSK  bool

	keygenCmd = &cobra.Command{
		Use:   "keygen",
		Short: "generate keypairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if keyCount < 1 {
				return fmt.Errorf("--count must be at least 1")
			}

			for i := 1; i <= keyCount; i++ {
				priv, pub, err := encryption.GenerateKeyPair()
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "\n[Keypair %d]\n", i)
				fmt.Fprintf(cmd.OutOrStdout(), "PrivateKey = %q\n", priv)
				fmt.Fprintf(cmd.OutOrStdout(), "PublicKey = %q\n", pub)

				if withPSK {
					psk, err := encryption.GeneratePresharedKey()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "PresharedKey = %q\n", psk)
				}
			}
			return nil
		},
	}
)

func init() {
	keygenCmd.Flags().IntVarP(&keyCount, "count", "n", 1, "number of keypairs to generate")
	keygenCmd.Flags().BoolVar(&withPSK, "psk", false, "also generate a preshared key per keypair")
}
