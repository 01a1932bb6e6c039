package hdc

import (
	"fmt"
	"log"
	"net"
	"net/url"
	"strings"
	"sync"
)

// SocketServerTransport is the device-side concrete Transport for a
// socket://host:port URL (spec.md section 6): it listens and accepts a
// single client connection, feeding inbound bytes through a Packetizer on a
// dedicated receiver goroutine exactly like SerialTransport does for a
// physical line.
type SocketServerTransport struct {
	rawURL   string
	listener net.Listener
	log      *logger

	writeMu sync.Mutex
	mu      sync.Mutex
	conn    net.Conn
	closed  bool

	packetizer *Packetizer
	closeOnce  sync.Once
}

// NewSocketServerTransport parses a socket://host:port URL and returns a
// transport ready to Connect (listen+accept).
func NewSocketServerTransport(rawURL string, customLogger *log.Logger) (*SocketServerTransport, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "socket" || u.Host == "" {
		return nil, fmt.Errorf("hdc: invalid socket URL %q, expected socket://host:port", rawURL)
	}
	return &SocketServerTransport{
		rawURL:     rawURL,
		log:        newLogger(fmt.Sprintf("socket-server-transport(%s)", rawURL), customLogger),
		packetizer: NewPacketizer(),
	}, nil
}

// Connect listens on the configured host:port and accepts exactly one
// client connection, then starts the receiver goroutine.
func (s *SocketServerTransport) Connect(onMessage func([]byte), onConnectionLost func(error)) error {
	addr := strings.TrimPrefix(s.rawURL, "socket://")
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln

	conn, err := ln.Accept()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.closed = false
	s.mu.Unlock()

	go s.receiveLoop(conn, onMessage, onConnectionLost)
	return nil
}

func (s *SocketServerTransport) receiveLoop(conn net.Conn, onMessage func([]byte), onConnectionLost func(error)) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			s.packetizer.Feed(buf[:n])
			for _, msg := range s.packetizer.DrainMessages() {
				onMessage(msg)
			}
		}
		if err != nil {
			s.packetizer.Feed(nil)
			for _, msg := range s.packetizer.DrainMessages() {
				onMessage(msg)
			}
			s.packetizer.Clear()
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				onConnectionLost(nil)
			} else {
				onConnectionLost(err)
			}
			return
		}
	}
}

// SendMessage packetizes msg and writes it atomically with respect to other
// sends on this transport.
func (s *SocketServerTransport) SendMessage(msg []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrConnectionLost
	}
	_, err := conn.Write(Packetize(msg))
	return err
}

func (s *SocketServerTransport) Flush() error { return nil }

// Close stops the receiver goroutine deterministically by closing the
// accepted connection and the listener. Idempotent.
func (s *SocketServerTransport) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		conn := s.conn
		ln := s.listener
		s.mu.Unlock()
		if conn != nil {
			err = conn.Close()
		}
		if ln != nil {
			_ = ln.Close()
		}
	})
	return err
}

func (s *SocketServerTransport) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && !s.closed
}

func (s *SocketServerTransport) URL() string { return s.rawURL }
