// Package web exposes the conversation controls over HTTP and streams
// conversation events to websocket clients.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/koscakluka/ema-referrals/core/conversations"
	"github.com/koscakluka/ema-referrals/core/events"
	"github.com/koscakluka/ema-referrals/core/texttospeech"
)

// Conversation is the part of the orchestrator the server drives.
type Conversation interface {
	State() conversations.State
	Mode() conversations.Mode
	SetMode(mode conversations.Mode)
	Transcript() string
	History() []conversations.Message
	ClearHistory()
	IsSupported() bool

	StartListening()
	StopListening()
	StopConversation()

	Voices() []texttospeech.Voice
	VoiceProfile() texttospeech.VoiceProfile
	SetVoiceProfile(profile texttospeech.VoiceProfile)
	TestVoice(ctx context.Context, text string, profile texttospeech.VoiceProfile) error

	Subscribe(handler func(events.Event)) (unsubscribe func())
}

// ProfileStore persists voice profiles changed through the API.
type ProfileStore interface {
	SaveVoiceProfile(profile texttospeech.VoiceProfile) error
}

type ServerOption func(*Server)

func WithProfileStore(store ProfileStore) ServerOption {
	return func(s *Server) {
		s.profiles = store
	}
}

// WithAllowedOrigins restricts cross origin requests. Defaults to any
// origin.
func WithAllowedOrigins(origins string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

type Server struct {
	app          *fiber.App
	conversation Conversation
	profiles     ProfileStore
	hub          *hub

	allowedOrigins string

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	closeOnce   sync.Once
}

func NewServer(conversation Conversation, opts ...ServerOption) (*Server, error) {
	if conversation == nil {
		return nil, errors.New("conversation is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		conversation:   conversation,
		hub:            newHub(),
		allowedOrigins: "*",
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "ema-referrals",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{AllowOrigins: s.allowedOrigins}))
	s.setupRoutes()

	go s.hub.Run(ctx)
	s.unsubscribe = conversation.Subscribe(func(event events.Event) {
		if err := s.hub.BroadcastJSON(newEventMessage(event)); err != nil {
			logger.Warn("failed to broadcast event", "kind", event.Kind(), "error", err)
		}
	})

	return s, nil
}

func (s *Server) setupRoutes() {
	api := s.app.Group("/api")
	api.Get("/state", s.handleGetState)
	api.Get("/history", s.handleGetHistory)
	api.Delete("/history", s.handleClearHistory)
	api.Post("/listening/start", s.handleStartListening)
	api.Post("/listening/stop", s.handleStopListening)
	api.Post("/conversation/stop", s.handleStopConversation)
	api.Put("/mode", s.handleSetMode)
	api.Get("/voices", s.handleGetVoices)
	api.Get("/voice-profile", s.handleGetVoiceProfile)
	api.Put("/voice-profile", s.handleSetVoiceProfile)
	api.Post("/voice-profile/test", s.handleTestVoice)

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws/events", websocket.New(func(conn *websocket.Conn) {
		newClient(s.hub, conn).serve(s.ctx)
	}))
}

// Listen blocks serving addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

func (s *Server) Serve(ln net.Listener) error {
	logger.Info("web api listening", "address", ln.Addr().String())
	if err := s.app.Listener(ln); err != nil {
		return fmt.Errorf("failed to serve web api: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.unsubscribe()
		s.cancel()
		if shutdownErr := s.app.ShutdownWithContext(ctx); shutdownErr != nil {
			err = fmt.Errorf("failed to shut down web api: %w", shutdownErr)
		}
	})
	return err
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}
	if code >= fiber.StatusInternalServerError {
		logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(errorResponse{Error: err.Error()})
}
