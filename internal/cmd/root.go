package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	configcmd "github.com/Iron-Ham/autoproducer/internal/cmd/config"
	"github.com/Iron-Ham/autoproducer/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X .../internal/cmd.Version=...".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "autoproducer",
	Short: "Unattended daily content-production pipeline",
	Long: `autoproducer runs a fixed sequence of content generation stages once a
day. Each stage is bounded in time, missing collaborators are replaced by
no-op stubs, and failed runs are retried with a fixed backoff.

Run 'autoproducer start-scheduler' to start the daemon, then control it with
the pause, resume, trigger, status and stop-scheduler commands.`,
	Version:      Version,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/autoproducer/config.yaml)")
	flags.String("addr", "", "control API address of the daemon (default from control.addr)")
	flags.String("log-level", "", "log level: debug, info, warn or error (default from logging.level)")
	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("control.addr", flags.Lookup("addr"))
	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))

	configcmd.Register(rootCmd)
}

func initConfig() {
	config.SetDefaults()

	explicit := viper.GetString("config")
	if explicit != "" {
		viper.SetConfigFile(explicit)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	// AUTOPRODUCER_PIPELINE_MAX_ATTEMPTS overrides pipeline.max_attempts
	viper.SetEnvPrefix("AUTOPRODUCER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing default file is fine; a broken or missing explicit one is not.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "warning: reading config: %v\n", err)
		}
	}
}
