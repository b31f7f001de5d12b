// Package delivery is a self-contained chat server with in-memory state.
// It speaks the same REST and socket protocol the client consumes and is
// used for local development and integration tests.
package delivery

import (
	"log/slog"
	"net"

	"majlis-chat/internal/config"
	"majlis-chat/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
)

type Server struct {
	config  *config.Config
	backend *Backend
	ws      *WSManager
	logger  *slog.Logger
	app     *fiber.App
}

func NewServer(cfg *config.Config, backend *Backend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config:  cfg,
		backend: backend,
		ws:      NewWSManager(backend, logger),
		logger:  logger,
	}
	s.app = s.routes()
	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) routes() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Majlis Chat Stub Server",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	app.Use(func(c *fiber.Ctx) error {
		err := c.Next()
		s.logger.Debug("request",
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", c.Response().StatusCode()))
		return err
	})

	corsConfig := cors.Config{
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
		MaxAge:       86400,
	}
	if s.config.IsProduction() {
		corsConfig.AllowOrigins = s.config.GetCORSOrigins()
	} else {
		corsConfig.AllowOrigins = "*"
	}
	app.Use(cors.New(corsConfig))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "ok",
			"environment": s.config.Environment,
			"online":      len(s.ws.OnlineUsers()),
		})
	})

	api := app.Group("/api/chat", s.requireAuth)
	api.Post("/rooms", s.handleCreateRoom)
	api.Get("/rooms", s.handleListRooms)
	api.Post("/rooms/:id/join", s.handleJoinRoom)
	api.Post("/rooms/:id/leave", s.handleLeaveRoom)
	api.Get("/rooms/:id/messages", s.handleListMessages)
	api.Post("/rooms/:id/messages", s.handleSendMessage)
	api.Get("/rooms/:id/members", s.handleListMembers)
	api.Post("/rooms/:id/members", s.handleAddMember)
	api.Post("/rooms/:id/typing", s.handleTyping)
	api.Delete("/messages/:id", s.handleDeleteMessage)
	api.Post("/direct/:userId", s.handleDirectMessage)
	api.Get("/online-users", s.handleOnlineUsers)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		user, ok := s.backend.Authenticate(c.Query("token"))
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
		}
		c.Locals(userKey, user)
		return c.Next()
	})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		user, _ := c.Locals(userKey).(domain.User)
		s.ws.HandleConnection(c, user)
	}))

	return app
}

func (s *Server) Start() error {
	s.logger.Info("stub chat server starting", slog.String("port", s.config.StubPort))
	return s.app.Listen(":" + s.config.StubPort)
}

// Serve runs the server on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
