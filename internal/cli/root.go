// Package cli wires the chat session into cobra commands and an
// interactive prompt.
package cli

import (
	"io"
	"log/slog"

	"majlis-chat/internal/config"

	"github.com/spf13/cobra"
)

type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func NewRootCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	a := &app{cfg: cfg, logger: logger}

	root := &cobra.Command{
		Use:           "majlis-chat",
		Short:         "Terminal client for the Majlis real-time chat service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&cfg.APIURL, "api", cfg.APIURL, "chat REST base URL")
	flags.StringVar(&cfg.WSURL, "ws", cfg.WSURL, "chat socket endpoint")
	flags.StringVar(&cfg.Token, "token", cfg.Token, "bearer token")
	flags.Int64Var(&cfg.UserID, "user-id", cfg.UserID, "id of the signed-in user")
	flags.StringVar(&cfg.Username, "username", cfg.Username, "display name stamped on sent messages")

	root.AddCommand(
		a.roomsCmd(),
		a.joinCmd(),
		a.historyCmd(),
		a.sendCmd(),
		a.onlineCmd(),
		a.chatCmd(),
		a.stubServerCmd(),
		a.tapCmd(),
	)
	return root
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
