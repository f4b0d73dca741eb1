// Package server relays raw ESC/POS bytes received over TCP to a local
// printer adapter, so a USB printer can be reached as a network printer.
package server

import (
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/nixxel-company-limited/kot-dispatch/adapter"
)

// Server represents a TCP server that forwards data to a printer adapter
type Server struct {
	adapter  adapter.Adapter
	listener net.Listener
	address  string
	mu       sync.Mutex
	printMu  sync.Mutex // held by the connection whose job is printing
	running  bool
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// New creates a new server instance
func New(device adapter.Adapter, address string) *Server {
	return NewWithLogger(device, address, zap.NewNop())
}

// NewWithLogger creates a new server instance with a custom logger
func NewWithLogger(device adapter.Adapter, address string, logger *zap.Logger) *Server {
	return &Server{
		adapter: device,
		address: address,
		conns:   make(map[net.Conn]struct{}),
		logger:  logger.Named("relay").With(zap.String("address", address)),
	}
}

// Start starts the TCP server and blocks until Stop is called
func (s *Server) Start() error {
	if err := s.listen("blocking"); err != nil {
		return err
	}

	s.logger.Info("Ready to accept connections")
	s.acceptConnections()
	return nil
}

// StartAsync starts the TCP server in a goroutine (non-blocking)
func (s *Server) StartAsync() error {
	if err := s.listen("async"); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptConnections()
	}()
	s.logger.Info("Server started in background, ready to accept connections")
	return nil
}

func (s *Server) listen(mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Starting server", zap.String("mode", mode))

	if s.running {
		s.logger.Error("Server already running")
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		s.logger.Error("Failed to start server", zap.Error(err))
		return fmt.Errorf("failed to start server: %w", err)
	}

	// Open the adapter if not already open
	if !s.adapter.IsOpen() {
		s.logger.Debug("Opening printer adapter")
		if err := s.adapter.Open(); err != nil {
			listener.Close()
			s.logger.Error("Failed to open adapter", zap.Error(err))
			return fmt.Errorf("failed to open adapter: %w", err)
		}
		s.logger.Info("Printer adapter opened")
	}

	s.listener = listener
	s.running = true
	s.logger.Info("Server listening", zap.Stringer("listen", listener.Addr()))
	return nil
}

// acceptConnections handles incoming client connections
func (s *Server) acceptConnections() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.IsRunning() {
				s.logger.Debug("Server shutting down, stopping accept loop")
				return
			}
			s.logger.Warn("Error accepting connection", zap.Error(err))
			continue
		}

		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection handles a single client connection
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	client := conn.RemoteAddr().String()
	log := s.logger.With(zap.String("client", client))
	log.Info("Client connected")

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
		log.Info("Client disconnected")
	}()

	buf := make([]byte, 4096)
	total := 0
	printing := false
	defer func() {
		if printing {
			s.printMu.Unlock()
		}
	}()

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			// One job per connection; later clients wait for the printer.
			if !printing {
				s.printMu.Lock()
				printing = true
			}
			if writeErr := adapter.WriteAll(s.adapter, buf[:n]); writeErr != nil {
				log.Error("Error writing to adapter", zap.Error(writeErr))
				return
			}
			total += n
		}
		if err != nil {
			if err != io.EOF && s.IsRunning() {
				log.Warn("Error reading from client", zap.Error(err))
			}
			log.Debug("Relayed ticket", zap.Int("bytes", total))
			return
		}
	}
}

// Stop stops the TCP server
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}

	s.logger.Info("Stopping server")
	s.running = false
	listener := s.listener
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	if listener != nil {
		listener.Close()
	}

	s.wg.Wait()

	if s.adapter.IsOpen() {
		if err := s.adapter.Close(); err != nil {
			s.logger.Error("Error closing adapter", zap.Error(err))
			return err
		}
	}

	s.logger.Info("Server stopped")
	return nil
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Address returns the configured server address
func (s *Server) Address() string {
	return s.address
}

// Addr returns the bound listener address, or nil before the server starts.
// Useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// GetAdapter returns the underlying adapter
func (s *Server) GetAdapter() adapter.Adapter {
	return s.adapter
}
