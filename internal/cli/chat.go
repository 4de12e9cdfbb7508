package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"visionchat/internal/chat"
	"visionchat/internal/common/fsutil"
)

func newChatCmd(opts *Options, std streams) *cobra.Command {
	var image string
	var requireImage bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation about an image",
		Example: "  visionchat chat --image https://example.com/cat.jpg\n" +
			"  visionchat chat --require-image --backend openai --base-url http://localhost:8000/v1",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), opts, std, image, requireImage)
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "Image URL or local file to load before the first prompt")
	cmd.Flags().BoolVar(&requireImage, "require-image", false, "Exit with an error unless an image loads before the conversation")
	return cmd
}

func runChat(ctx context.Context, opts *Options, std streams, image string, requireImage bool) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	log := newLogger(cfg, std.err)

	m, err := openModel(cfg, log)
	if err != nil {
		return err
	}
	defer m.closer.Close()

	var in chat.LineReader
	if f, ok := std.in.(*os.File); ok {
		history := cfg.Chat.HistoryFile
		if history != "" {
			if history, err = fsutil.ExpandHome(history); err != nil {
				return fmt.Errorf("config: history file: %w", err)
			}
		}
		if in, err = chat.NewLineReader(f, std.out, history); err != nil {
			return err
		}
	} else {
		in = chat.NewScannerReader(std.in, std.out)
	}
	defer in.Close()

	sess := chat.NewSession(m.gen, newImageResolver(cfg), in, std.out, chat.Options{
		QuitCommand:  cfg.Chat.QuitCommand,
		ImageCommand: cfg.Chat.ImageCommand,
		TurnTimeout:  seconds(cfg.Chat.TurnTimeoutSeconds),
		FetchTimeout: seconds(cfg.Chat.FetchTimeoutSeconds),
		Logger:       log,
	})
	sess.Banner()

	switch {
	case image != "":
		if err := sess.LoadImage(ctx, image); err != nil && requireImage {
			return fmt.Errorf("required image: %w", err)
		}
	case requireImage:
		if err := sess.RequireImage(ctx); err != nil {
			return fmt.Errorf("required image: %w", err)
		}
	}
	return sess.Run(ctx)
}
