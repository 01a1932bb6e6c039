package hdc

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the router and transport layers. Named after
// the taxonomy in spec.md section 7: protocol-sequence, transport/connection
// and timeout errors all surface as one of these at the API boundary.
var (
	// ErrRequestInFlight is returned by SendRequestAndGetReply when a
	// previous request on the same router is still outstanding.
	ErrRequestInFlight = errors.New("hdc: a request is already in flight")

	// ErrTimeout is returned when no reply arrives within the caller's
	// deadline. The request lock has already been released by the time
	// this error is returned.
	ErrTimeout = errors.New("hdc: request timed out")

	// ErrConnectionLost is returned to a waiting requester when the
	// transport reports connection loss while a request is outstanding.
	ErrConnectionLost = errors.New("hdc: connection lost")

	// ErrNoPendingRequest is returned by SendReplyForPendingRequest
	// when no request is currently pending on the device router.
	ErrNoPendingRequest = errors.New("hdc: no pending request to reply to")

	// ErrTunnelIDInUse is returned by NewTunnel when the requested message
	// type ID is outside the custom range 0x00..0xEF, and by Tunnel.Connect
	// when that ID is already registered on the parent router.
	ErrTunnelIDInUse = errors.New("hdc: tunnel id already in use or out of range")

	// ErrMessageTooLarge is logged by the device router when an incoming
	// message exceeds the configured MaxReqSize; the message is dropped
	// before it reaches the pending-request gate.
	ErrMessageTooLarge = errors.New("hdc: message exceeds max request size")
)

// HdcCmdException is the typed, tagged result a device-side command handler
// raises to signal application-level failure. The device router translates
// it into a [COMMAND, fid, cid, ExcID] reply carrying the UTF-8 message, per
// spec.md section 4.4 / section 7 kind 5. Any other error returned by a
// handler is wrapped as CommandFailed by the router instead.
type HdcCmdException struct {
	ExcID   ExceptionID
	Message string
}

func (e *HdcCmdException) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("hdc: command exception 0x%02x", byte(e.ExcID))
	}
	return fmt.Sprintf("hdc: command exception 0x%02x: %s", byte(e.ExcID), e.Message)
}

// NewCmdException builds an HdcCmdException with a user-defined ExcID
// (0x01..0xEF). Passing one of the reserved IDs still works, and the reply
// then carries the same ID the router uses for its own canonical replies.
func NewCmdException(id ExceptionID, message string) *HdcCmdException {
	return &HdcCmdException{ExcID: id, Message: message}
}

// asHdcCmdException extracts an *HdcCmdException from err, if it is one.
func asHdcCmdException(err error) (*HdcCmdException, bool) {
	var e *HdcCmdException
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
