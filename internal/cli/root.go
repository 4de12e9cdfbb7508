package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errUsage = errors.New("a subcommand is required")

// buildRootCmd constructs the command tree bound to opts and io.
func buildRootCmd(opts *Options, std streams) *cobra.Command {
	root := &cobra.Command{
		Use:           "visionchat",
		Short:         "Talk with a vision-language model about an image",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return &exitError{code: 2, err: errUsage}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.ConfigPath, "config", "", "Config file (.yaml, .yml, .json or .toml)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "Log level: trace|debug|info|warn|error (overrides config)")
	pf.StringVar(&opts.Backend, "backend", "", "Inference backend: llamaserver|openai|llama")
	pf.StringVar(&opts.Model, "model", "", "Model id, hub name or .gguf path")
	pf.StringVar(&opts.BaseURL, "base-url", "", "Backend base URL")

	root.AddCommand(newChatCmd(opts, std), newServeCmd(opts, std), newSeedCmd(opts, std), newVersionCmd(std))
	return root
}

// Version is set at build time with -ldflags "-X visionchat/internal/cli.Version=...".
var Version = "dev"

func newVersionCmd(std streams) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(std.out, "visionchat", Version)
			return err
		},
	}
}
