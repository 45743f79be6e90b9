package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tunnelcore/tunnelcore/encryption"
	"github.com/tunnelcore/tunnelcore/server/config"
	"github.com/tunnelcore/tunnelcore/util"
)

var (
	outputPath     string
	forceOverwrite bool

	genConfigCmd = &cobra.Command{
		Use:   "gen-config",
		Short: "generate a server configuration template",
		Long:  "Writes a server configuration with a freshly generated private key and one placeholder peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if util.FileExists(outputPath) && !forceOverwrite {
				return fmt.Errorf("config already exists under path %s, use --force to overwrite", outputPath)
			}

			priv, pub, err := encryption.GenerateKeyPair()
			if err != nil {
				return err
			}

			content, err := config.GenerateServerTemplate(priv)
			if err != nil {
				return fmt.Errorf("render template: %w", err)
			}

			if err := util.WriteBytesWithRestrictedPermission(cmd.Context(), outputPath, content); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			log.Infof("configuration file generated: %s", outputPath)
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration file created at: %s\n", outputPath)
			fmt.Fprintf(cmd.OutOrStdout(), "Server public key: %s\n", pub)
			fmt.Fprintln(cmd.OutOrStdout(), "Please edit it and add your peer configurations.")
			return nil
		},
	}
)

func init() {
	genConfigCmd.Flags().StringVarP(&outputPath, "output", "o", defaultConfigPath, "output file path")
	genConfigCmd.Flags().BoolVar(&forceOverwrite, "force", false, "overwrite an existing file")
}
