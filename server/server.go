// Package server binds the listening socket and runs the serve loop.
package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"golang.org/x/net/netutil"

	"github.com/pelageech/pagesrv/config"
)

// Server accepts connections and hands each one to its own goroutine.
type Server struct {
	cfg    config.ServerConfig
	srv    *http.Server
	logger *log.Logger
	addr   net.Addr
}

// New creates a Server that will run handler with the timeouts of cfg.
func New(cfg config.ServerConfig, handler http.Handler, logger *log.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			ErrorLog:          logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}),
		},
	}
}

// Listen binds the configured host and port.
func (s *Server) Listen() (net.Listener, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.addr = ln.Addr()

	if s.cfg.MaxConns > 0 {
		s.logger.Debug("Limiting connections", "max", s.cfg.MaxConns)
		ln = netutil.LimitListener(ln, s.cfg.MaxConns)
	}
	return ln, nil
}

// URL is the address clients reach the server at. After Listen it
// carries the port actually bound, which matters for port 0.
func (s *Server) URL() string {
	port := s.cfg.Port
	if tcp, ok := s.addr.(*net.TCPAddr); ok {
		port = tcp.Port
	}
	return "http://" + net.JoinHostPort(s.cfg.Host, strconv.Itoa(port))
}

// Serve accepts connections on ln until the server is closed.
func (s *Server) Serve(ln net.Listener) error {
	err := s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close stops accepting and closes all connections.
func (s *Server) Close() error {
	return s.srv.Close()
}
