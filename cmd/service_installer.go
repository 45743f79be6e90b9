package cmd

import (
	"fmt"
	"runtime"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

var (
	installCmd = &cobra.Command{
		Use:   "install",
		Short: "installs tunnelcore service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := serverFlags.Validate(); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}

			svcConfig := newSVCConfig()
			arguments, err := serviceArguments(configPath, *serverFlags)
			if err != nil {
				return err
			}
			svcConfig.Arguments = arguments

			if runtime.GOOS == "linux" {
				// Respected only by systemd systems
				svcConfig.Dependencies = []string{"After=network.target syslog.target"}
			}

			s, err := newSVC(newProgram(configPath, *serverFlags), svcConfig)
			if err != nil {
				return err
			}
			if err := s.Install(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "tunnelcore service has been installed")
			return nil
		},
	}

	uninstallCmd = &cobra.Command{
		Use:   "uninstall",
		Short: "uninstalls tunnelcore service from system",
		RunE: func(cmd *cobra.Command, args []string) error {
			return controlService(cmd, "uninstalled", service.Service.Uninstall)
		},
	}
)
