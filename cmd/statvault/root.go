package main

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nicktill/statvault/pkg/config"
	archerr "github.com/nicktill/statvault/pkg/errors"
)

// NewRootCmd creates the root statvault command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:           "statvault",
		Short:         "statvault compresses and archives game statistics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd, v)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to the badger data directory")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(v),
		newSweepCmd(v),
		newArchiveCmd(),
		newRestoreCmd(),
		newVersionCmd(),
	)
	return root
}

// initViper applies defaults, env bindings, the optional config file and
// flag bindings so precedence is flag > env > file > defaults.
func initViper(cmd *cobra.Command, v *viper.Viper) error {
	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return archerr.Wrap(err, archerr.CodeConfigLoadReadFailure, "reading config file")
		}
	} else {
		v.SetConfigName("statvault")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/statvault")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return archerr.Wrap(err, archerr.CodeConfigLoadReadFailure, "reading config")
			}
		}
	}

	flags := cmd.Root().PersistentFlags()
	if err := v.BindPFlag("storage.data_dir", flags.Lookup("data-dir")); err != nil {
		return err
	}
	return v.BindPFlag("logging.level", flags.Lookup("log-level"))
}
