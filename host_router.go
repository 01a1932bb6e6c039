package hdc

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// eventKey identifies an event handler registration.
type eventKey struct {
	Feature FeatureID
	Event   EventID
}

// HostRouterConfig configures a HostRouter. The zero value is a usable
// default (non-strict events).
type HostRouterConfig struct {
	// StrictEvents, when true, makes an EVENT message with no registered
	// handler a logged error condition instead of a silent drop.
	StrictEvents bool

	// Logger, if non-nil, receives router diagnostics; otherwise the
	// package default logger is used.
	Logger *log.Logger
}

// HostRouter implements the host-role dispatch loop of spec.md section 4.3:
// a single-outstanding request lock, reply correlation via a one-slot
// signal, event demultiplexing, and custom-type pass-through for tunneling.
type HostRouter struct {
	transport Transport
	log       *logger
	strict    bool

	// requestMu enforces single-outstanding-request; held for the entire
	// duration of SendRequestAndGetReply.
	requestMu sync.Mutex

	// replyMu/replyCond/awaiting/lastReply implement the single-slot
	// reply signal: a requester parks on replyCond until either a reply
	// arrives or its deadline elapses.
	replyMu    sync.Mutex
	replyCond  *sync.Cond
	awaiting   bool
	lastReply  []byte
	connLost   error
	connClosed bool

	handlersMu     sync.Mutex
	eventHandlers  map[eventKey]func(msg []byte)
	customHandlers map[MessageTypeID]func(msg []byte)
}

// NewHostRouter constructs a HostRouter bound to transport. Call Connect to
// begin receiving.
func NewHostRouter(transport Transport, cfg HostRouterConfig) *HostRouter {
	r := &HostRouter{
		transport:      transport,
		log:            newLogger(fmt.Sprintf("host-router(%s)", transport.URL()), cfg.Logger),
		strict:         cfg.StrictEvents,
		eventHandlers:  map[eventKey]func(msg []byte){},
		customHandlers: map[MessageTypeID]func(msg []byte){},
	}
	r.replyCond = sync.NewCond(&r.replyMu)
	return r
}

// Connect begins reception on the underlying transport.
func (r *HostRouter) Connect() error {
	return r.transport.Connect(r.onMessage, r.onConnectionLost)
}

// Close shuts down the underlying transport.
func (r *HostRouter) Close() error { return r.transport.Close() }

// RegisterEventMessageHandler installs fn for (fid, eid), replacing and
// warning about any previous registration. fn runs on the receiver
// goroutine: it must be fast, non-blocking, and must never call
// SendRequestAndGetReply.
func (r *HostRouter) RegisterEventMessageHandler(fid FeatureID, eid EventID, fn func(msg []byte)) {
	key := eventKey{fid, eid}
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()
	if _, exists := r.eventHandlers[key]; exists {
		r.log.Warningf("replacing event handler for feature 0x%02x event 0x%02x", byte(fid), byte(eid))
	}
	r.eventHandlers[key] = fn
}

// RegisterCustomMessageHandler installs fn for a custom message type ID
// (0x00..0xEF), replacing and warning about any previous registration. Used
// by tunnels and other out-of-band custom-message consumers.
func (r *HostRouter) RegisterCustomMessageHandler(mid MessageTypeID, fn func(msg []byte)) {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()
	if _, exists := r.customHandlers[mid]; exists {
		r.log.Warningf("replacing custom handler for message type 0x%02x", byte(mid))
	}
	r.customHandlers[mid] = fn
}

// UnregisterCustomMessageHandler removes a registration installed by
// RegisterCustomMessageHandler.
func (r *HostRouter) UnregisterCustomMessageHandler(mid MessageTypeID) {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()
	delete(r.customHandlers, mid)
}

// HasCustomMessageHandler reports whether mid already has a registered
// custom handler, letting a Tunnel enforce that its ID is unique within the
// parent before it starts using it.
func (r *HostRouter) HasCustomMessageHandler(mid MessageTypeID) bool {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()
	_, exists := r.customHandlers[mid]
	return exists
}

// SendRequestAndGetReply sends req and blocks until a reply arrives, the
// transport reports connection loss, or timeout elapses. Only one request
// may be outstanding at a time per router; a concurrent call returns
// ErrRequestInFlight without touching the wire.
func (r *HostRouter) SendRequestAndGetReply(req []byte, timeout time.Duration) ([]byte, error) {
	if !r.requestMu.TryLock() {
		return nil, ErrRequestInFlight
	}
	defer r.requestMu.Unlock()

	r.replyMu.Lock()
	if r.connLost != nil {
		err := r.connLost
		r.replyMu.Unlock()
		return nil, err
	}
	r.awaiting = true
	r.lastReply = nil
	r.replyMu.Unlock()

	if err := r.transport.SendMessage(req); err != nil {
		r.replyMu.Lock()
		r.awaiting = false
		r.replyMu.Unlock()
		return nil, err
	}

	return r.waitForReply(timeout)
}

func (r *HostRouter) waitForReply(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)

	r.replyMu.Lock()
	defer r.replyMu.Unlock()

	for r.awaiting && r.lastReply == nil && r.connLost == nil {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			r.awaiting = false
			return nil, ErrTimeout
		}
		waitWithTimeout(r.replyCond, remaining)
	}

	if r.connLost != nil {
		r.awaiting = false
		return nil, r.connLost
	}

	reply := r.lastReply
	r.lastReply = nil
	r.awaiting = false
	return reply, nil
}

// waitWithTimeout blocks on cond for at most d, re-acquiring cond.L before
// returning (mirrors the signal+condvar pattern spec.md section 5 calls
// for; Go's sync.Cond has no native timeout so a helper goroutine performs
// the wakeup).
func waitWithTimeout(cond *sync.Cond, d time.Duration) {
	timer := time.AfterFunc(d, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	defer timer.Stop()
	cond.Wait()
}

// onMessage is invoked by the transport's receiver goroutine for every
// assembled message, in arrival order.
func (r *HostRouter) onMessage(msg []byte) {
	if len(msg) == 0 {
		return
	}
	mtype := MessageTypeID(msg[0])

	switch {
	case mtype.IsCustom():
		r.dispatchCustom(mtype, msg)
	case mtype == MsgTypeEvent:
		r.dispatchEvent(msg)
	default: // META, ECHO, COMMAND are all treated as replies
		r.dispatchReply(msg)
	}
}

func (r *HostRouter) dispatchReply(msg []byte) {
	r.replyMu.Lock()
	defer r.replyMu.Unlock()
	if !r.awaiting {
		r.log.Warningf("dropping unexpected reply: no request outstanding")
		return
	}
	r.lastReply = msg
	r.replyCond.Broadcast()
}

func (r *HostRouter) dispatchEvent(msg []byte) {
	if len(msg) < 3 {
		r.log.Warningf("dropping malformed EVENT message (too short)")
		return
	}
	key := eventKey{FeatureID(msg[1]), EventID(msg[2])}
	r.handlersMu.Lock()
	fn := r.eventHandlers[key]
	r.handlersMu.Unlock()
	if fn == nil {
		if r.strict {
			r.log.Errorf("no event handler for feature 0x%02x event 0x%02x (strict_events)", byte(key.Feature), byte(key.Event))
		} else {
			r.log.Debugf("dropping EVENT with no handler for feature 0x%02x event 0x%02x", byte(key.Feature), byte(key.Event))
		}
		return
	}
	fn(msg)
}

func (r *HostRouter) dispatchCustom(mtype MessageTypeID, msg []byte) {
	r.handlersMu.Lock()
	fn := r.customHandlers[mtype]
	r.handlersMu.Unlock()
	if fn == nil {
		r.log.Debugf("dropping custom message type 0x%02x with no handler", byte(mtype))
		return
	}
	fn(msg)
}

// onConnectionLost latches connLost permanently: this router has no
// reconnect path (spec.md's transport contract assumes one connection per
// router lifetime), so every SendRequestAndGetReply after the first loss
// fails fast with ErrConnectionLost instead of re-attempting the wire.
func (r *HostRouter) onConnectionLost(err error) {
	r.replyMu.Lock()
	defer r.replyMu.Unlock()
	r.connClosed = true
	if err != nil {
		r.log.Errorf("connection lost: %v", err)
		r.connLost = ErrConnectionLost
	} else {
		r.log.Debugf("connection closed")
		r.connLost = ErrConnectionLost
	}
	r.replyCond.Broadcast()
}
