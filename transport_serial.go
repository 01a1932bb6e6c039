package hdc

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/goburrow/serial"
)

// defaultSerialReadTimeout is the read-timeout used to mark burst-end, per
// spec.md section 6: "Serial: 8-N-1, 115200 baud default, read-timeout 0.5s
// used to mark burst-end."
const defaultSerialReadTimeout = 500 * time.Millisecond

// SerialTransport is the concrete Transport for a USB virtual serial port,
// built the way elektrosoftlab/modbus opens its RTU line: a
// github.com/goburrow/serial config with baud/data/stop/parity settings and
// a read timeout, here repurposed to mark packetizer burst-end instead of
// bounding a single MBAP read.
type SerialTransport struct {
	address string
	config  serial.Config
	log     *logger

	writeMu sync.Mutex
	port    io.ReadWriteCloser

	packetizer *Packetizer

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// NewSerialTransport returns a SerialTransport for address (e.g.
// "/dev/ttyUSB0" or "COM3") using the HDC default line settings: 115200
// baud, 8 data bits, no parity, 1 stop bit, 0.5s read timeout.
func NewSerialTransport(address string, customLogger *log.Logger) *SerialTransport {
	return &SerialTransport{
		address: address,
		config: serial.Config{
			Address:  address,
			BaudRate: 115200,
			DataBits: 8,
			StopBits: 1,
			Parity:   "N",
			Timeout:  defaultSerialReadTimeout,
		},
		log:        newLogger(fmt.Sprintf("serial-transport(%s)", address), customLogger),
		packetizer: NewPacketizer(),
	}
}

// Connect opens the serial port and starts the receiver goroutine.
func (s *SerialTransport) Connect(onMessage func([]byte), onConnectionLost func(error)) error {
	port, err := serial.Open(&s.config)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.port = port
	s.closed = false
	s.mu.Unlock()

	go s.receiveLoop(port, onMessage, onConnectionLost)
	return nil
}

// receiveLoop is the dedicated receiver goroutine spec.md section 5
// requires: it owns the packetizer, feeds it inbound chunks, and invokes
// onMessage synchronously for each assembled message, in arrival order. A
// read that returns 0 bytes with no error (timeout elapsed, per the
// configured Timeout) is fed as an empty chunk to mark burst-end.
func (s *SerialTransport) receiveLoop(port io.ReadWriteCloser, onMessage func([]byte), onConnectionLost func(error)) {
	buf := make([]byte, 4096)
	for {
		n, err := port.Read(buf)
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if err == io.EOF || closed {
				err = nil
			}
			s.packetizer.Clear()
			onConnectionLost(err)
			return
		}
		if n == 0 {
			s.packetizer.Feed(nil)
		} else {
			s.packetizer.Feed(buf[:n])
		}
		for _, msg := range s.packetizer.DrainMessages() {
			onMessage(msg)
		}

		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			onConnectionLost(nil)
			return
		}
	}
}

// SendMessage packetizes msg and writes it atomically with respect to other
// sends on this transport (spec.md section 6), so a multi-packet message is
// never interleaved with another send.
func (s *SerialTransport) SendMessage(msg []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == nil {
		return ErrConnectionLost
	}
	_, err := port.Write(Packetize(msg))
	return err
}

// Flush is a no-op beyond what Write already guarantees: goburrow/serial's
// Write returns only once the bytes have been handed to the OS driver.
func (s *SerialTransport) Flush() error { return nil }

// Close stops the receiver goroutine deterministically by closing the
// underlying port, which unblocks its pending Read. Idempotent.
func (s *SerialTransport) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		port := s.port
		s.mu.Unlock()
		if port != nil {
			err = port.Close()
		}
	})
	return err
}

func (s *SerialTransport) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil && !s.closed
}

func (s *SerialTransport) URL() string { return "serial://" + s.address }
