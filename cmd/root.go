// Package cmd wires the reowatch command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reowatch/reowatch/cmd/check"
	"github.com/reowatch/reowatch/cmd/snapshot"
	"github.com/reowatch/reowatch/cmd/watch"
	"github.com/reowatch/reowatch/internal/conf"
	"github.com/reowatch/reowatch/internal/logger"
	"github.com/reowatch/reowatch/internal/telemetry"
)

// RootCommand creates and returns the root command. settings carries the
// build metadata and is filled from the config file before any subcommand runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "reowatch",
		Short:         "Reolink person detection recorder",
		Version:       settings.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: search standard locations)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		panic(fmt.Sprintf("error binding debug flag: %v", err))
	}

	rootCmd.AddCommand(
		watch.Command(settings),
		snapshot.Command(settings),
		check.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return initialize(settings, configFile)
	}

	return rootCmd
}

// initialize loads the configuration, installs the central logger and
// starts telemetry. It runs before every subcommand.
func initialize(settings *conf.Settings, configFile string) error {
	loaded, err := conf.Load(configFile)
	if err != nil {
		return err
	}
	loaded.Version = settings.Version
	loaded.BuildDate = settings.BuildDate
	*settings = *loaded

	central, err := logger.NewCentralLogger(settings.LoggingConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	if err := telemetry.InitSentry(settings); err != nil {
		// Telemetry is optional; carry on without it
		conf.GetLogger().Warn("sentry initialization failed", logger.Error(err))
	}

	return nil
}
