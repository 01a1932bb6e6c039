package hdc

import (
	"fmt"
	"log"
)

// Tunnel is a Transport implementation whose messages are carried as custom-
// type messages of a parent router's transport (spec.md section 4.5): each
// outbound message is prefixed with tunnelID and sent through the parent;
// inbound, a custom-message handler installed on the parent strips the
// prefix and redelivers the remainder to the tunnel's own receiver.
//
// tunnelID must be a custom message type ID (0x00..0xEF) and unique among
// the parent's registered custom handlers. Closing a Tunnel disconnects it
// locally only; the parent transport keeps serving its other tunnels and
// any non-tunneled traffic.
type Tunnel struct {
	tunnelID    MessageTypeID
	parent      parentRouter
	parentSend  func([]byte) error
	parentFlush func() error
	url         string
	log         *logger

	onMessage        func([]byte)
	onConnectionLost func(error)
	connected        bool
}

// parentRouter is the minimal surface a Tunnel needs from whichever router
// (host or device) owns the underlying physical transport.
type parentRouter interface {
	RegisterCustomMessageHandler(mid MessageTypeID, fn func([]byte))
	UnregisterCustomMessageHandler(mid MessageTypeID)
	HasCustomMessageHandler(mid MessageTypeID) bool
}

// NewTunnel builds a Tunnel that will ride on top of parent's transport
// under the given custom message type ID. send is the parent's raw
// SendMessage (so the tunnel can prefix its own messages before handing
// them to the parent transport); flush delegates the tunnel's Flush to the
// parent's.
func NewTunnel(tunnelID MessageTypeID, parent parentRouter, send func([]byte) error, flush func() error, url string, customLogger *log.Logger) (*Tunnel, error) {
	if !tunnelID.IsCustom() {
		return nil, ErrTunnelIDInUse
	}
	return &Tunnel{
		tunnelID:    tunnelID,
		parent:      parent,
		parentSend:  send,
		parentFlush: flush,
		url:         url,
		log:         newLogger(fmt.Sprintf("tunnel(0x%02x)", byte(tunnelID)), customLogger),
	}, nil
}

// Connect registers the tunnel's custom-message handler on the parent and
// begins accepting messages. It satisfies the Transport interface. Returns
// ErrTunnelIDInUse if another handler is already registered for tunnelID on
// the parent (spec.md section 4.5: tunnel_id must be unique within the
// parent).
func (t *Tunnel) Connect(onMessage func(msg []byte), onConnectionLost func(err error)) error {
	if t.parent.HasCustomMessageHandler(t.tunnelID) {
		return ErrTunnelIDInUse
	}
	t.onMessage = onMessage
	t.onConnectionLost = onConnectionLost
	t.parent.RegisterCustomMessageHandler(t.tunnelID, t.onParentCustomMessage)
	t.connected = true
	return nil
}

// onParentCustomMessage is the handler installed on the parent: it strips
// the tunnel-ID prefix byte and redelivers the remainder as a message on
// this tunnel's own receiver.
func (t *Tunnel) onParentCustomMessage(msg []byte) {
	if len(msg) < 1 {
		return
	}
	inner := msg[1:]
	if t.onMessage != nil {
		t.onMessage(inner)
	}
}

// SendMessage prefixes msg with the tunnel ID and writes it through the
// parent transport.
func (t *Tunnel) SendMessage(msg []byte) error {
	framed := make([]byte, 0, len(msg)+1)
	framed = append(framed, byte(t.tunnelID))
	framed = append(framed, msg...)
	return t.parentSend(framed)
}

// Flush delegates to the parent transport.
func (t *Tunnel) Flush() error {
	if t.parentFlush == nil {
		return nil
	}
	return t.parentFlush()
}

// Close disconnects this tunnel only: it unregisters from the parent but
// does not touch the parent transport itself.
func (t *Tunnel) Close() error {
	if !t.connected {
		return nil
	}
	t.connected = false
	t.parent.UnregisterCustomMessageHandler(t.tunnelID)
	if t.onConnectionLost != nil {
		t.onConnectionLost(nil)
	}
	return nil
}

func (t *Tunnel) IsConnected() bool { return t.connected }
func (t *Tunnel) URL() string       { return t.url }
