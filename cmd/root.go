package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tunnelcore/tunnelcore/util"
)

const (
	defaultConfigPath     = "server.toml"
	defaultManagementAddr = "127.0.0.1:7070"
)

var (
	configPath string
	logLevel   string
	logFile    string

	rootCmd = &cobra.Command{
		Use:           "tunnelcore",
		Short:         "tunnelcore tunnel server",
		Long:          "tunnelcore configures a tunnel interface for a set of peers and exposes their state",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		util.SetFlagsFromEnvVars(rootCmd)
		util.SetFlagsFromEnvVars(cmd)
		return util.InitLog(logLevel, logFile)
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "server configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (panic, fatal, error, warn, info, debug, trace)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", util.LogConsole, "comma separated log targets: console (stderr) and/or file paths")

	rootCmd.AddCommand(serverCmd, serviceCmd, keygenCmd, genConfigCmd, pubkeyCmd, addPeerCmd, statusCmd, versionCmd)
}

// Execute executes the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		rootCmd.PrintErrln("Error:", err)
		return err
	}
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
