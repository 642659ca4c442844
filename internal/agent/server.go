package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/pion/webrtc/v3"

	"github.com/rbright/voxmcp/internal/transport"
)

// Offerer answers browser SDP offers.
type Offerer interface {
	Offer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
}

// Status is served at GET /status.
type Status struct {
	Transport string `json:"transport"`
	Preset    string `json:"preset"`
	Connected bool   `json:"connected"`
	PID       int    `json:"pid"`
}

type offerRequest struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// Server is the runner HTTP listener embedded in the worker.
type Server struct {
	app      *fiber.App
	listener net.Listener
	logger   *slog.Logger
	done     chan error
}

// NewServer binds addr and registers routes. Binding happens here so a busy
// port fails worker startup.
func NewServer(addr string, offerer Offerer, status func() Status, logger *slog.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	app := fiber.New(fiber.Config{
		AppName:               "voxmcp runner",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(status())
	})

	if offerer != nil {
		app.Get("/client", func(c *fiber.Ctx) error {
			c.Type("html", "utf-8")
			return c.Send(transport.ClientPage)
		})
		app.Post("/api/offer", func(c *fiber.Ctx) error {
			var req offerRequest
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid offer body")
			}
			if req.SDP == "" {
				return fiber.NewError(fiber.StatusBadRequest, "offer sdp is empty")
			}
			answer, err := offerer.Offer(c.UserContext(), webrtc.SessionDescription{
				Type: webrtc.NewSDPType(req.Type),
				SDP:  req.SDP,
			})
			if err != nil {
				logger.Error("answer webrtc offer", "error", err)
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
			return c.JSON(offerRequest{SDP: answer.SDP, Type: answer.Type.String()})
		})
	}

	return &Server{
		app:      app,
		listener: listener,
		logger:   logger,
		done:     make(chan error, 1),
	}, nil
}

// Addr is the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve runs the listener in the background.
func (s *Server) Serve() {
	go func() {
		err := s.app.Listener(s.listener)
		if err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Error("runner http server stopped", "error", err)
		}
		s.done <- err
	}()
}

// Done reports the listener's exit.
func (s *Server) Done() <-chan error {
	return s.done
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
