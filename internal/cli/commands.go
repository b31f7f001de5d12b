package cli

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"majlis-chat/internal/domain"

	"github.com/spf13/cobra"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func (a *app) roomsCmd() *cobra.Command {
	var (
		filter   domain.RoomFilter
		roomType string
	)
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List chat rooms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, cleanup := a.newSession(cmd.Context())
			defer cleanup()

			filter.Type = domain.RoomType(strings.ToUpper(roomType))
			rooms, err := sess.ListRooms(cmd.Context(), filter)
			if err != nil {
				return err
			}
			printRooms(out(cmd), rooms)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.Search, "search", "", "only rooms whose name contains this text")
	cmd.Flags().StringVar(&roomType, "type", "", "room type (GROUP or DIRECT)")
	cmd.Flags().Int64Var(&filter.GameID, "game", 0, "only rooms for this game id")
	cmd.Flags().IntVar(&filter.Page, "page", 0, "page number, starting at 0")
	cmd.Flags().IntVar(&filter.Size, "size", 20, "page size")
	return cmd
}

func (a *app) joinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <room-id>",
		Short: "Join a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID, err := parseID(args[0])
			if err != nil {
				return err
			}
			sess, cleanup := a.newSession(cmd.Context())
			defer cleanup()

			room, err := sess.JoinRoom(cmd.Context(), roomID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "joined %s (%d)\n", room.Name, room.ID)
			return nil
		},
	}
}

func (a *app) historyCmd() *cobra.Command {
	var page domain.MessagePage
	cmd := &cobra.Command{
		Use:   "history <room-id>",
		Short: "Show recent messages of a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID, err := parseID(args[0])
			if err != nil {
				return err
			}
			sess, cleanup := a.newSession(cmd.Context())
			defer cleanup()

			msgs, err := sess.GetMessages(cmd.Context(), roomID, page)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				fmt.Fprintln(out(cmd), formatMessage(m))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&page.Size, "size", 20, "number of messages")
	cmd.Flags().IntVar(&page.Page, "page", 0, "page number counting back from the newest")
	cmd.Flags().Int64Var(&page.Before, "before", 0, "only messages older than this id")
	return cmd
}

func (a *app) sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <room-id> <text...>",
		Short: "Send a message to a room",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID, err := parseID(args[0])
			if err != nil {
				return err
			}
			sess, cleanup := a.newSession(cmd.Context())
			defer cleanup()

			msg, err := sess.SendMessage(cmd.Context(), roomID, domain.SendMessageRequest{Content: strings.Join(args[1:], " ")})
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "sent message %d\n", msg.ID)
			return nil
		},
	}
}

func (a *app) onlineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "online",
		Short: "List online users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, cleanup := a.newSession(cmd.Context())
			defer cleanup()

			users, err := sess.GetOnlineUsers(cmd.Context())
			if err != nil {
				return err
			}
			printUsers(out(cmd), users)
			return nil
		},
	}
}

func (a *app) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [room-id]",
		Short: "Open an interactive chat session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, cleanup := a.newSession(ctx)
			defer cleanup()

			r := newREPL(sess, out(cmd))
			unsubscribe := sess.Subscribe(r.render)
			defer unsubscribe()
			sess.OnConnectionState(func(_, state domain.ConnectionState) {
				r.notice("connection " + strings.ToLower(state.String()))
			})

			if err := sess.Start(ctx); err != nil {
				r.notice("could not load rooms: " + err.Error())
			}
			defer func() {
				if err := sess.Disconnect(ctx); err != nil {
					a.logger.Warn("disconnect", slog.Any("error", err))
				}
			}()

			if len(args) == 1 {
				if _, err := r.handle(ctx, "/join "+args[0]); err != nil {
					return err
				}
			}
			return r.run(ctx, cmd.InOrStdin())
		},
	}
}
