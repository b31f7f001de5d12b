package cli

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"majlis-chat/internal/delivery"
	"majlis-chat/internal/domain"
	"majlis-chat/internal/infrastructure/kafka"

	"github.com/spf13/cobra"
)

var demoUsers = []string{"dev-alice:1:alice", "dev-bob:2:bob"}

// parseUserFlag reads token:id[:username].
func parseUserFlag(raw string) (string, domain.User, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) < 2 || parts[0] == "" {
		return "", domain.User{}, fmt.Errorf("invalid user %q, want token:id[:name]", raw)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return "", domain.User{}, fmt.Errorf("invalid user id in %q", raw)
	}
	u := domain.User{ID: id}
	if len(parts) == 3 {
		u.Username = parts[2]
	}
	return parts[0], u, nil
}

func (a *app) stubServerCmd() *cobra.Command {
	var users []string
	cmd := &cobra.Command{
		Use:   "stub-server",
		Short: "Run an in-memory chat server for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend := delivery.NewBackend()
			if a.cfg.Token != "" && a.cfg.UserID != 0 {
				backend.RegisterUser(a.cfg.Token, domain.User{ID: a.cfg.UserID, Username: a.cfg.Username})
			}
			for _, raw := range users {
				token, u, err := parseUserFlag(raw)
				if err != nil {
					return err
				}
				backend.RegisterUser(token, u)
			}

			srv := delivery.NewServer(a.cfg, backend, a.logger)
			errc := make(chan error, 1)
			go func() { errc <- srv.Start() }()

			select {
			case err := <-errc:
				return err
			case <-cmd.Context().Done():
				a.logger.Info("shutting down stub chat server")
				return srv.Shutdown()
			}
		},
	}
	cmd.Flags().StringArrayVar(&users, "user", demoUsers, "user as token:id[:name], repeatable")
	cmd.Flags().StringVar(&a.cfg.StubPort, "port", a.cfg.StubPort, "listen port")
	return cmd
}

// recordPrinter is called from one goroutine per topic.
type recordPrinter struct {
	mu  sync.Mutex
	cmd *cobra.Command
}

func (p *recordPrinter) HandleRecord(topic string, rec kafka.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(out(p.cmd), "%s\t%s\tuser=%d\tsession=%s\t%s\n",
		rec.ObservedAt.Format("15:04:05"), topic, rec.UserID, rec.SessionID, rec.Payload)
}

func (a *app) tapCmd() *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "tap",
		Short: "Print chat events republished to Kafka by running clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.KafkaEnabled() {
				return fmt.Errorf("KAFKA_BROKERS is not set")
			}
			consumer := kafka.NewKafkaConsumer(a.cfg.KafkaBrokers, group, kafka.Topics, &recordPrinter{cmd: cmd}, a.logger)
			defer func() {
				if err := consumer.Close(); err != nil {
					a.logger.Warn("closing tap consumer", slog.Any("error", err))
				}
			}()
			if err := consumer.Run(cmd.Context()); err != nil && cmd.Context().Err() == nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&group, "group", "majlis-chat-tap", "consumer group id")
	return cmd
}
