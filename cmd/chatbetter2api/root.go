package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hzcy/chatbetter2api/pkg/cli"
	"github.com/hzcy/chatbetter2api/pkg/config"
	"github.com/hzcy/chatbetter2api/pkg/telemetry/logging"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configFile string
	envFile    string
	logLevel   string
	output     string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "chatbetter2api",
		Short: "OpenAI-compatible API in front of ChatBetter accounts",
		Long: `chatbetter2api exposes /v1/chat/completions and /v1/models and serves
them through a pool of ChatBetter accounts, refreshing their credentials in
the background.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "config.yaml", "config file path")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format (text, json, csv)")

	cmd.AddCommand(
		newVersionCmd(),
		newRunCmd(opts),
		newAccountsCmd(opts),
		newCacheCmd(opts),
		newModelsCmd(opts),
	)
	return cmd
}

// load reads the configuration and installs the logger. Commands call it
// first so that `version` and `help` work without a config.
func (o *rootOptions) load() (*config.Config, error) {
	if o.cfg != nil {
		return o.cfg, nil
	}

	if err := config.LoadDotEnv(o.envFile); err != nil {
		return nil, cli.NewConfigError("env-file", err.Error())
	}
	if err := config.ReloadConfig(o.configFile); err != nil {
		return nil, cli.NewConfigError(o.configFile, err.Error())
	}
	cfg := config.GetConfig()

	if o.logLevel != "" {
		cfg.Telemetry.Logging.Level = o.logLevel
	}
	if _, err := logging.Setup(cfg.Telemetry.Logging); err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}

	o.cfg = cfg
	return cfg, nil
}

// formatter returns the formatter selected by --output.
func (o *rootOptions) formatter() (cli.Formatter, error) {
	format, err := cli.ParseOutputFormat(o.output)
	if err != nil {
		return nil, err
	}
	return cli.NewFormatter(format), nil
}

// Execute runs the root command and exits with a code derived from the error.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
