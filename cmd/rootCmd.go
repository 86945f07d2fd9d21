package cmd

import (
	"fmt"

	"Pnode/pkg/config"
	"Pnode/pkg/util"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	cfg        *config.Config
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:               "pnode",
	Short:             "pnode Physical Node CLI",
	Long:              "A command-line tool that attaches this host to an emulated network topology.",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig(_ *cobra.Command, _ []string) error {
	c, err := config.NewConfigFromFile(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		level, ok := util.ParseLogLevel(logLevel)
		if !ok {
			return fmt.Errorf("invalid log level %q", logLevel)
		}
		c.LogLevel = level
	}
	util.InitializeLogger(c.LogLevel)
	cfg = c
	return nil
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&configPath, "config", "c", "", "Path to a yaml, json or toml configuration file")
	fs.StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn or error")
}

func init() {
	addGlobalFlags(rootCmd.PersistentFlags())
}
