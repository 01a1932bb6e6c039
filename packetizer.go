package hdc

import "sync"

// Terminator is the fixed byte that ends every packet.
const Terminator byte = 0x1E

// MaxPacketPayload is the largest payload a single packet may carry. Longer
// messages are fragmented across multiple packets, spec.md section 4.1.
const MaxPacketPayload = 255

// Checksum returns the 8-bit two's-complement checksum of payload: the value
// c such that (sum(payload) + c) mod 256 == 0.
func Checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	return byte(0x100 - int(sum)&0xFF)
}

// Packetize splits message into on-wire packets per spec.md section 4.1: a
// message of m bytes becomes ceil(m/255) packets, all but the last exactly
// 255 payload bytes; if m is a nonzero exact multiple of 255 an extra empty
// packet is appended to unambiguously mark end-of-message. An empty message
// encodes as a single empty packet. Packetize is total and never errors.
func Packetize(message []byte) []byte {
	if len(message) == 0 {
		return encodePacket(nil)
	}
	var out []byte
	for off := 0; off < len(message); off += MaxPacketPayload {
		end := off + MaxPacketPayload
		if end > len(message) {
			end = len(message)
		}
		out = append(out, encodePacket(message[off:end])...)
	}
	if len(message)%MaxPacketPayload == 0 {
		out = append(out, encodePacket(nil)...)
	}
	return out
}

func encodePacket(payload []byte) []byte {
	packet := make([]byte, 0, len(payload)+3)
	packet = append(packet, byte(len(payload)))
	packet = append(packet, payload...)
	packet = append(packet, Checksum(payload), Terminator)
	return packet
}

// Packetizer reconstructs messages from a byte stream, recovering from
// corruption by single-byte skipping. A Packetizer is single-threaded: it is
// meant to be driven only from one goroutine (typically a transport's
// receiver goroutine), per spec.md section 5.
type Packetizer struct {
	mu sync.Mutex

	incoming []byte // accumulator of not-yet-consumed bytes
	multi    []byte // inter-packet buffer for a message in progress
	inMulti  bool    // true while reassembling a multi-packet message
	rfeCount int

	messages [][]byte // assembled messages since the last Drain
}

// NewPacketizer returns an empty Packetizer.
func NewPacketizer() *Packetizer { return &Packetizer{} }

// Feed appends chunk to the accumulator and runs the reassembly state
// machine to completion. Feed never errors; malformed input increments the
// reading-frame-error counter instead. An empty chunk signals burst-end:
// insufficient buffered data is then treated as a reading-frame error rather
// than as "wait for more".
func (p *Packetizer) Feed(chunk []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.incoming = append(p.incoming, chunk...)
	burstEnd := len(chunk) == 0

	for {
		if len(p.incoming) == 0 {
			return
		}
		length := int(p.incoming[0])
		terminatorPos := length + 2
		if terminatorPos >= len(p.incoming) {
			if burstEnd {
				p.readingFrameError()
				continue
			}
			return // wait for more bytes
		}
		payload := p.incoming[1 : 1+length]
		checksumOK := Checksum(payload) == p.incoming[1+length]
		if p.incoming[terminatorPos] == Terminator && checksumOK {
			p.consumePacket(length, payload)
			continue
		}
		p.readingFrameError()
	}
}

// consumePacket handles one validated packet's payload, applying the
// multi-packet reassembly rule, and drops the packet's bytes from incoming.
func (p *Packetizer) consumePacket(length int, payload []byte) {
	frameLen := length + 3
	payloadCopy := make([]byte, length)
	copy(payloadCopy, payload)

	if p.inMulti || length == MaxPacketPayload {
		p.multi = append(p.multi, payloadCopy...)
		p.inMulti = true
		if length < MaxPacketPayload {
			p.messages = append(p.messages, p.multi)
			p.multi = nil
			p.inMulti = false
		}
	} else {
		p.messages = append(p.messages, payloadCopy)
	}

	p.incoming = p.incoming[frameLen:]
}

// readingFrameError drops the first buffered byte, bumps the counter, and
// aborts any multi-packet message currently in progress. A single-packet
// stream is otherwise unaffected.
func (p *Packetizer) readingFrameError() {
	p.rfeCount++
	p.multi = nil
	p.inMulti = false
	if len(p.incoming) > 0 {
		p.incoming = p.incoming[1:]
	}
}

// DrainMessages returns all messages assembled since the last call and
// clears that buffer.
func (p *Packetizer) DrainMessages() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.messages
	p.messages = nil
	return out
}

// ReadingFrameErrorCount returns the number of reading-frame errors observed
// so far.
func (p *Packetizer) ReadingFrameErrorCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rfeCount
}

// Clear resets all accumulation state (accumulator, in-progress multi-packet
// buffer, and drained-but-unread messages), but preserves the rfe counter.
// Called on transport close to discard any partially-received message.
func (p *Packetizer) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.incoming = nil
	p.multi = nil
	p.inMulti = false
	p.messages = nil
}
