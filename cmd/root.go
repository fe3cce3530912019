package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	checkCmd "github.com/BrianLudlam/block-racer/pkg/cmd/check"
	migrateCmd "github.com/BrianLudlam/block-racer/pkg/cmd/migrate"
	replayCmd "github.com/BrianLudlam/block-racer/pkg/cmd/replay"
	serverCmd "github.com/BrianLudlam/block-racer/pkg/cmd/server"
	"github.com/BrianLudlam/block-racer/pkg/config"
	"github.com/BrianLudlam/block-racer/version"
)

const envPrefix = "BRC"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "blockracer",
	Short:   "Race lifecycle engine for block-value racing",
	Long:    ``,
	Version: version.FullVersion,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.blockracer.yml)")

	rootCmd.PersistentFlags().StringVar(&config.DB, "db",
		"",
		"connection string for the archive database (empty disables archiving)")
	rootCmd.PersistentFlags().StringVar(&config.NatsURL, "nats-url",
		"",
		"URL of the NATS server for event publishing (empty disables)")
	rootCmd.PersistentFlags().StringVar(&config.WaitForServices,
		"wait-for-services",
		"15s",
		"duration to wait for other services to be ready")

	// add commands here
	rootCmd.AddCommand(serverCmd.NewServerCmd())
	rootCmd.AddCommand(migrateCmd.NewMigrateCmd())
	rootCmd.AddCommand(replayCmd.NewReplayCmd())
	rootCmd.AddCommand(checkCmd.NewCheckCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".blockracer"
		// (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".blockracer")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	bindFlags(rootCmd, viper.GetViper())
	for _, cmd := range rootCmd.Commands() {
		bindFlags(cmd, viper.GetViper())
	}
}

// Bind each cobra flag to its associated viper configuration
// (config file and environment variable)
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// Environment variables can't have dashes in them, so bind them to their
		// equivalent keys with underscores, e.g. --block-interval to BRC_BLOCK_INTERVAL
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name,
				fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
				fmt.Fprintf(os.Stderr, "Could not bind env var %s: %v", f.Name, err)
			}
		}
		// Apply the viper config value to the flag when the flag is not set and viper
		// has a value
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				fmt.Fprintf(os.Stderr, "Could set flag value for %s: %v", f.Name, err)
			}
		}
	})
}
