package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Server es el servidor Unix socket
type Server struct {
	socketPath string
	listener   net.Listener
	handlers   *Handlers
	logger     zerolog.Logger
	wg         sync.WaitGroup
}

// Request representa una petición al daemon
type Request struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// Response representa una respuesta del daemon
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// NewServer crea un nuevo servidor
func NewServer(socketPath string, handlers *Handlers, logger zerolog.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		handlers:   handlers,
		logger:     logger.With().Str("component", "server").Logger(),
	}
}

// Start inicia el servidor
func (s *Server) Start(ctx context.Context) error {
	// Crear directorio para socket
	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}

	// Limpiar socket anterior si existe
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	s.listener = listener

	// Permisos del socket
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.logger.Info().Str("socket", s.socketPath).Msg("server listening")

	s.wg.Add(1)
	go s.acceptLoop(ctx)

	return nil
}

// acceptLoop acepta conexiones entrantes
func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || isClosed(err) {
				return
			}
			s.logger.Warn().Err(err).Msg("accept error")
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

// handleConnection maneja una conexión individual
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.sendError(conn, fmt.Errorf("decode request: %w", err))
		return
	}

	s.logger.Debug().Str("action", req.Action).Msg("request received")

	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(s.Dispatch(ctx, &req)); err != nil {
		s.logger.Error().Err(err).Str("action", req.Action).Msg("failed to encode response")
	}
}

// Dispatch enruta una petición a su handler
func (s *Server) Dispatch(ctx context.Context, req *Request) Response {
	switch req.Action {
	case "save":
		return s.handlers.HandleSave(ctx, req.Payload)
	case "get":
		return s.handlers.HandleGet(ctx, req.Payload)
	case "list":
		return s.handlers.HandleList(ctx, req.Payload)
	case "history":
		return s.handlers.HandleHistory(ctx, req.Payload)
	case "stats":
		return s.handlers.HandleStats(ctx)
	case "sweep":
		return s.handlers.HandleSweep(ctx)
	case "uninstall":
		return s.handlers.HandleUninstall(ctx, req.Payload)
	case "ping":
		return Response{Success: true, Data: json.RawMessage(`{"message":"pong"}`)}
	default:
		return Response{Success: false, Error: fmt.Sprintf("unknown action: %s", req.Action)}
	}
}

// sendError envía una respuesta de error
func (s *Server) sendError(conn net.Conn, err error) {
	resp := Response{
		Success: false,
		Error:   err.Error(),
	}
	json.NewEncoder(conn).Encode(resp)
}

// Stop cierra el listener y espera las conexiones en curso
func (s *Server) Stop() error {
	s.logger.Info().Msg("server stopping")
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.wg.Wait()
	os.Remove(s.socketPath)
	return err
}

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
