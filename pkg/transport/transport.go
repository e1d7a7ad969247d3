// Package transport binds an rpcproto.Protocol to a byte stream: Unix
// domain and TCP client/server constructors, grounded on
// whizzer.client.SocketClient/ClientConnection (the Unix/TCP split and
// connection lifecycle) and the teacher module's panic-isolated
// per-connection accept loop. Both transports present identical
// byte-stream semantics to the protocol above them.
package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/fluxorio/relay/pkg/core"
	"github.com/fluxorio/relay/pkg/reactor"
	"github.com/fluxorio/relay/pkg/rpcproto"
)

const readBufferSize = 32 * 1024

// connWriter adapts a net.Conn to rpcproto.FrameWriter.
type connWriter struct {
	conn net.Conn
}

func (w *connWriter) Write(data []byte) error {
	_, err := w.conn.Write(data)
	return err
}

// serveConn marks the protocol's connection made, then reads from conn
// on its own goroutine for the lifetime of the connection, posting each
// chunk to the reactor rather than calling HandleData directly, so every
// inbound frame is decoded and dispatched on the reactor goroutine. The
// read goroutine recovers and logs a panic of its own; handlers run on
// the reactor goroutine, outside that recover.
func serveConn(conn net.Conn, proto *rpcproto.Protocol, r *reactor.Reactor, logger core.Logger) {
	proto.ConnectionMade(&connWriter{conn: conn})

	go func() {
		defer func() {
			if rec := recover(); rec != nil && logger != nil {
				logger.Errorf("transport: connection handler panic: %v", rec)
			}
		}()

		buf := make([]byte, readBufferSize)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if postErr := r.Post(func() { proto.HandleData(chunk) }); postErr != nil && logger != nil {
					logger.Warnf("transport: dropped %d bytes, reactor unavailable: %v", n, postErr)
				}
			}
			if err != nil {
				r.Post(func() { proto.ConnectionLost(err) })
				conn.Close()
				return
			}
		}
	}()
}

// Server accepts connections on a listener and builds one Protocol per
// connection via its Factory.
type Server struct {
	network string
	address string

	factory *rpcproto.Factory
	reactor *reactor.Reactor
	logger  core.Logger

	mu       sync.Mutex
	listener net.Listener
	stopped  bool
}

// NewUnixServer builds a Server listening on a Unix-domain socket path.
func NewUnixServer(path string, factory *rpcproto.Factory, r *reactor.Reactor, logger core.Logger) *Server {
	return &Server{network: "unix", address: path, factory: factory, reactor: r, logger: logger}
}

// NewTCPServer builds a Server listening on host:port over TCP.
func NewTCPServer(host string, port int, factory *rpcproto.Factory, r *reactor.Reactor, logger core.Logger) *Server {
	return &Server{network: "tcp", address: fmt.Sprintf("%s:%d", host, port), factory: factory, reactor: r, logger: logger}
}

// Start binds the listener and begins accepting connections on its own
// goroutine.
func (s *Server) Start() error {
	l, err := net.Listen(s.network, s.address)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	go s.acceptLoop(l)
	return nil
}

func (s *Server) acceptLoop(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()
			if stopped {
				return
			}
			if s.logger != nil {
				s.logger.Errorf("transport: accept error: %v", err)
			}
			return
		}

		proto := s.factory.Build()
		serveConn(conn, proto, s.reactor, s.logger)
	}
}

// Addr returns the listener's bound address. It is only valid after
// Start returns successfully.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting new connections. Already-accepted connections
// run to their own completion.
func (s *Server) Close() error {
	s.mu.Lock()
	s.stopped = true
	l := s.listener
	s.mu.Unlock()

	if l == nil {
		return nil
	}
	return l.Close()
}

// Client dials a single outbound connection and builds its Protocol via
// its Factory.
type Client struct {
	network string
	address string

	factory *rpcproto.Factory
	reactor *reactor.Reactor
	logger  core.Logger

	mu    sync.Mutex
	conn  net.Conn
	proto *rpcproto.Protocol
}

// NewUnixClient builds a Client that dials a Unix-domain socket path.
func NewUnixClient(path string, factory *rpcproto.Factory, r *reactor.Reactor, logger core.Logger) *Client {
	return &Client{network: "unix", address: path, factory: factory, reactor: r, logger: logger}
}

// NewTCPClient builds a Client that dials host:port over TCP.
func NewTCPClient(host string, port int, factory *rpcproto.Factory, r *reactor.Reactor, logger core.Logger) *Client {
	return &Client{network: "tcp", address: fmt.Sprintf("%s:%d", host, port), factory: factory, reactor: r, logger: logger}
}

// Connect dials out, builds the connection's Protocol, and starts its
// read loop. The returned Protocol's Proxy() Future resolves
// immediately since ConnectionMade runs before Connect returns.
func (c *Client) Connect() (*rpcproto.Protocol, error) {
	conn, err := net.Dial(c.network, c.address)
	if err != nil {
		return nil, err
	}

	proto := c.factory.Build()

	c.mu.Lock()
	c.conn = conn
	c.proto = proto
	c.mu.Unlock()

	serveConn(conn, proto, c.reactor, c.logger)
	return proto, nil
}

// Close tears down the client's connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}
