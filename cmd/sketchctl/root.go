package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rickgao/sketchduel/internal/config"
	"github.com/rickgao/sketchduel/internal/version"
)

// options holds the persistent flags shared by every command.
type options struct {
	configPath string
	envFiles   []string
	name       string

	cfg    *config.ClientConfig
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "sketchctl",
		Short:         "Play sketchduel from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file (defaults apply when empty)")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files loaded before the config")

	root.AddCommand(
		newCreateCmd(opts),
		newJoinCmd(opts),
		newResumeCmd(opts),
		newProbeCmd(opts),
		newVersionCmd(),
	)
	return root
}

// load reads env files and config, then installs the configured logger.
func (o *options) load(cmd *cobra.Command) error {
	if err := config.LoadEnvFiles(o.envFiles...); err != nil {
		return err
	}

	var (
		cfg *config.ClientConfig
		err error
	)
	if o.configPath == "" {
		cfg = config.Default()
	} else if cfg, err = config.LoadAndValidate(o.configPath); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "failed to load config:", err)
		return err
	}
	o.cfg = cfg

	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	var handler slog.Handler
	if strings.EqualFold(cfg.Log.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	o.logger = slog.New(handler)
	slog.SetDefault(o.logger)

	o.logger.Debug("configuration loaded",
		"version", version.Version,
		"commit", version.Commit,
		"config", o.configPath,
		"server", cfg.Server.URL,
		"storage", cfg.Storage.Backend,
	)
	return nil
}

// playerName returns the --name flag or the configured default.
func (o *options) playerName() string {
	if o.name != "" {
		return o.name
	}
	return o.cfg.Player.Name
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "sketchctl", version.String())
		},
	}
}
