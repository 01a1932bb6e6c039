package hdc

import (
	"fmt"
	"log"
	"sync"
)

// DeviceRouterConfig configures a DeviceRouter.
type DeviceRouterConfig struct {
	// MaxReqSize bounds the largest accepted request message, reported
	// verbatim via META.MAX_REQ and the Core.MaxReqMsgSize property.
	// Minimum 5, default 2048 (spec.md section 6).
	MaxReqSize uint32

	// IdlJSONGenerator produces the IDL JSON string returned by
	// META.IDL_JSON; if nil, an empty string is returned. The content of
	// the string is out of scope for this package (spec.md section 1).
	IdlJSONGenerator func() string

	Logger *log.Logger
}

const (
	defaultMaxReqSize = 2048
	minMaxReqSize     = 5
	hdcVersionString  = "HDC 1.0.0"
)

// DeviceRouter implements the device-role dispatch loop of spec.md section
// 4.4: a single-pending-request gate, command dispatch with exception-to-
// reply translation, inline meta handling, and event emission.
type DeviceRouter struct {
	transport Transport
	log       *logger

	maxReqSize       uint32
	idlJSONGenerator func() string

	mu       sync.Mutex
	features map[FeatureID]*Feature
	pending  []byte // nil when no request is pending

	customHandlersMu sync.Mutex
	customHandlers   map[MessageTypeID]func([]byte)
}

// NewDeviceRouter constructs a DeviceRouter bound to transport and installs
// the mandatory Core feature.
func NewDeviceRouter(transport Transport, cfg DeviceRouterConfig) *DeviceRouter {
	maxReq := cfg.MaxReqSize
	if maxReq == 0 {
		maxReq = defaultMaxReqSize
	}
	if maxReq < minMaxReqSize {
		maxReq = minMaxReqSize
	}
	r := &DeviceRouter{
		transport:        transport,
		log:              newLogger(fmt.Sprintf("device-router(%s)", transport.URL()), cfg.Logger),
		maxReqSize:       maxReq,
		idlJSONGenerator: cfg.IdlJSONGenerator,
		features:         map[FeatureID]*Feature{},
		customHandlers:   map[MessageTypeID]func([]byte){},
	}
	core := newCoreFeature(r)
	r.features[core.ID] = core
	core.router = r
	return r
}

// Connect begins reception on the underlying transport.
func (r *DeviceRouter) Connect() error {
	return r.transport.Connect(r.onMessage, r.onConnectionLost)
}

// Close shuts down the underlying transport.
func (r *DeviceRouter) Close() error { return r.transport.Close() }

// RegisterFeature attaches f to the router under its own FeatureID. Returns
// an error if the ID is already taken or f fails validation.
func (r *DeviceRouter) RegisterFeature(f *Feature) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.features[f.ID]; exists {
		return fmt.Errorf("hdc: feature id 0x%02x already registered", byte(f.ID))
	}
	for _, c := range f.commands {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	for _, e := range f.events {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	for _, p := range f.properties {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	f.router = r
	r.features[f.ID] = f
	return nil
}

// RegisterCustomMessageHandler installs fn for a custom message type ID.
// Custom messages never interact with the pending-request gate.
func (r *DeviceRouter) RegisterCustomMessageHandler(mid MessageTypeID, fn func([]byte)) {
	r.customHandlersMu.Lock()
	defer r.customHandlersMu.Unlock()
	if _, exists := r.customHandlers[mid]; exists {
		r.log.Warningf("replacing custom handler for message type 0x%02x", byte(mid))
	}
	r.customHandlers[mid] = fn
}

// UnregisterCustomMessageHandler removes a registration.
func (r *DeviceRouter) UnregisterCustomMessageHandler(mid MessageTypeID) {
	r.customHandlersMu.Lock()
	defer r.customHandlersMu.Unlock()
	delete(r.customHandlers, mid)
}

// HasCustomMessageHandler reports whether mid already has a registered
// custom handler, letting a Tunnel enforce that its ID is unique within the
// parent before it starts using it.
func (r *DeviceRouter) HasCustomMessageHandler(mid MessageTypeID) bool {
	r.customHandlersMu.Lock()
	defer r.customHandlersMu.Unlock()
	_, exists := r.customHandlers[mid]
	return exists
}

func (r *DeviceRouter) featureIDs() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]byte, 0, len(r.features))
	for id := range r.features {
		ids = append(ids, byte(id))
	}
	return ids
}

// onMessage is invoked by the transport's receiver goroutine for every
// assembled message, in arrival order.
func (r *DeviceRouter) onMessage(msg []byte) {
	if len(msg) == 0 {
		return
	}
	if uint32(len(msg)) > r.maxReqSize {
		r.log.Warningf("%v: got %d bytes, max %d", ErrMessageTooLarge, len(msg), r.maxReqSize)
		return
	}
	mtype := MessageTypeID(msg[0])

	if mtype.IsCustom() {
		r.dispatchCustom(mtype, msg)
		return
	}

	r.mu.Lock()
	if r.pending != nil {
		r.mu.Unlock()
		r.log.Warningf("dropping request: a previous request (type 0x%02x) is still pending", r.pending[0])
		return
	}
	r.pending = msg
	r.mu.Unlock()

	switch mtype {
	case MsgTypeMeta:
		r.handleMeta(msg)
	case MsgTypeEcho:
		r.replyPending(msg)
	case MsgTypeCommand:
		r.handleCommand(msg)
	default:
		r.log.Warningf("dropping request with unknown reserved message type 0x%02x", byte(mtype))
		r.clearPending(msg)
	}
}

func (r *DeviceRouter) dispatchCustom(mtype MessageTypeID, msg []byte) {
	r.customHandlersMu.Lock()
	fn := r.customHandlers[mtype]
	r.customHandlersMu.Unlock()
	if fn == nil {
		r.log.Debugf("dropping custom message type 0x%02x with no handler", byte(mtype))
		return
	}
	fn(msg)
}

func (r *DeviceRouter) handleMeta(msg []byte) {
	if len(msg) < 2 {
		r.log.Warningf("dropping malformed META request (too short)")
		r.clearPending(msg)
		return
	}
	switch MetaID(msg[1]) {
	case MetaHdcVersion:
		r.replyPending(append([]byte{byte(MsgTypeMeta), byte(MetaHdcVersion)}, []byte(hdcVersionString)...))
	case MetaMaxReq:
		b, _ := Encode(DTypeUint32, r.maxReqSize)
		r.replyPending(append([]byte{byte(MsgTypeMeta), byte(MetaMaxReq)}, b...))
	case MetaIdlJSON:
		var s string
		if r.idlJSONGenerator != nil {
			s = r.idlJSONGenerator()
		}
		r.replyPending(append([]byte{byte(MsgTypeMeta), byte(MetaIdlJSON)}, []byte(s)...))
	default:
		r.log.Warningf("dropping META request with unknown meta id 0x%02x", msg[1])
		r.clearPending(msg)
	}
}

func (r *DeviceRouter) handleCommand(msg []byte) {
	if len(msg) < 3 {
		r.log.Warningf("dropping malformed COMMAND request (too short)")
		r.clearPending(msg)
		return
	}
	fid, cid := FeatureID(msg[1]), CommandID(msg[2])

	r.mu.Lock()
	feature, featureOK := r.features[fid]
	var cmd *CommandDescriptor
	if featureOK {
		cmd = feature.commands[cid]
	}
	r.mu.Unlock()

	if !featureOK {
		r.replyCommandException(fid, cid, ExcUnknownFeature, "")
		return
	}
	if cmd == nil {
		r.replyCommandException(fid, cid, ExcUnknownCommand, "")
		return
	}

	r.dispatchCommand(feature, cmd, msg[3:])
}

// dispatchCommand parses arguments, invokes the handler, and serializes the
// reply, per spec.md section 4.4's "Command service" paragraph.
func (r *DeviceRouter) dispatchCommand(f *Feature, cmd *CommandDescriptor, argPayload []byte) {
	args, err := DecodePayload(argPayload, cmd.ArgTypes)
	if err != nil {
		r.replyCommandException(f.ID, cmd.ID, ExcInvalidArgs, err.Error())
		return
	}

	rets, err := cmd.Handler(args)
	if err != nil {
		if exc, ok := asHdcCmdException(err); ok {
			if !cmd.declaresException(exc.ExcID) && exc.ExcID < ReservedRangeStart {
				r.log.Warningf("command %q raised undeclared exception 0x%02x", cmd.Name, byte(exc.ExcID))
			}
			r.replyCommandException(f.ID, cmd.ID, exc.ExcID, exc.Message)
			return
		}
		r.replyCommandException(f.ID, cmd.ID, ExcCommandFailed, err.Error())
		return
	}

	retPayload, err := EncodePayload(cmd.RetTypes, rets)
	if err != nil {
		r.log.Errorf("command %q: failed to encode return payload: %v", cmd.Name, err)
		r.replyCommandException(f.ID, cmd.ID, ExcCommandFailed, "internal error encoding reply")
		return
	}
	reply := append([]byte{byte(MsgTypeCommand), byte(f.ID), byte(cmd.ID), 0x00}, retPayload...)
	r.replyPending(reply)
}

func (r *DeviceRouter) replyCommandException(fid FeatureID, cid CommandID, exc ExceptionID, text string) {
	reply := append([]byte{byte(MsgTypeCommand), byte(fid), byte(cid), byte(exc)}, []byte(text)...)
	r.replyPending(reply)
}

// replyPending sends reply and clears the pending-request gate. It is the
// internal counterpart of the public SendReplyForPendingRequest, used by
// meta/echo/command handling that replies synchronously within onMessage.
func (r *DeviceRouter) replyPending(reply []byte) {
	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()
	if err := r.transport.SendMessage(reply); err != nil {
		r.log.Errorf("failed to send reply: %v", err)
	}
}

func (r *DeviceRouter) clearPending(msg []byte) {
	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()
}

// SendReplyForPendingRequest sends reply for the currently pending request
// and clears the pending-request gate. Returns ErrNoPendingRequest if no
// request is currently pending. Command dispatch sends its own reply as soon
// as the CommandHandler returns, so a handler cannot leave its request
// pending and answer it later from another goroutine through this method.
func (r *DeviceRouter) SendReplyForPendingRequest(reply []byte) error {
	r.mu.Lock()
	if r.pending == nil {
		r.mu.Unlock()
		return ErrNoPendingRequest
	}
	r.pending = nil
	r.mu.Unlock()
	return r.transport.SendMessage(reply)
}

// emit serializes an event's arguments and sends it as an EVENT message.
// Bypasses the pending-request gate entirely, since events are not replies.
func (r *DeviceRouter) emit(fid FeatureID, eid EventID, args []interface{}) error {
	r.mu.Lock()
	f, ok := r.features[fid]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("hdc: emit: unknown feature 0x%02x", byte(fid))
	}
	ev, ok := f.events[eid]
	if !ok {
		return fmt.Errorf("hdc: emit: feature %q has no event 0x%02x", f.Name, byte(eid))
	}
	payload, err := EncodePayload(ev.ArgTypes, args)
	if err != nil {
		return err
	}
	msg := append([]byte{byte(MsgTypeEvent), byte(fid), byte(eid)}, payload...)
	return r.transport.SendMessage(msg)
}

func (r *DeviceRouter) onConnectionLost(err error) {
	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()
	if err != nil {
		r.log.Errorf("connection lost: %v", err)
	} else {
		r.log.Debugf("connection closed")
	}
}
