package hdc

import (
	"bytes"
	"testing"
)

func TestChecksum(t *testing.T) {
	cases := []struct {
		payload []byte
		want    byte
	}{
		{nil, 0x00},
		{[]byte{0x01}, 0xFF},
		{[]byte{0xFF, 0xFF, 0xFF}, 0x03},
	}
	for _, c := range cases {
		if got := Checksum(c.payload); got != c.want {
			t.Errorf("Checksum(%v) = 0x%02x, want 0x%02x", c.payload, got, c.want)
		}
		if (sum(c.payload)+int(Checksum(c.payload)))%256 != 0 {
			t.Errorf("checksum law violated for %v", c.payload)
		}
	}
}

func sum(b []byte) int {
	s := 0
	for _, v := range b {
		s += int(v)
	}
	return s
}

func TestPacketizeFragmentation(t *testing.T) {
	msg400 := bytes.Repeat([]byte{0x42}, 400)
	packets := Packetize(msg400)
	// two packets expected, no trailing empty: ceil(400/255) == 2
	count := countPackets(t, packets)
	if count != 2 {
		t.Errorf("expected 2 packets for length 400, got %d", count)
	}

	msg255 := bytes.Repeat([]byte{0x07}, 255)
	packets = Packetize(msg255)
	count = countPackets(t, packets)
	if count != 2 {
		t.Errorf("expected 2 packets (255-byte payload + trailing empty packet), got %d", count)
	}

	empty := Packetize(nil)
	if !bytes.Equal(empty, []byte{0x00, 0x00, Terminator}) {
		t.Errorf("empty message should encode as a single empty packet, got %v", empty)
	}
}

// countPackets walks a packetized byte stream counting whole packets.
func countPackets(t *testing.T, b []byte) int {
	t.Helper()
	n := 0
	for len(b) > 0 {
		l := int(b[0])
		frameLen := l + 3
		if frameLen > len(b) {
			t.Fatalf("truncated packet stream")
		}
		b = b[frameLen:]
		n++
	}
	return n
}

func TestPacketizationRoundTrip(t *testing.T) {
	messages := [][]byte{
		{0xF1, 0x01, 0x02, 0x03},
		bytes.Repeat([]byte{0xAB}, 255),
		bytes.Repeat([]byte{0xCD}, 400),
		{},
		{0x00},
	}
	var stream []byte
	for _, m := range messages {
		stream = append(stream, Packetize(m)...)
	}

	p := NewPacketizer()
	p.Feed(stream)
	p.Feed(nil) // burst end

	got := p.DrainMessages()
	if len(got) != len(messages) {
		t.Fatalf("expected %d messages, got %d", len(messages), len(got))
	}
	for i := range messages {
		if !bytes.Equal(got[i], messages[i]) {
			t.Errorf("message %d: got %v, want %v", i, got[i], messages[i])
		}
	}
}

func TestPacketizationRoundTripChunked(t *testing.T) {
	messages := [][]byte{
		{0xF2, 0x00, 0xF0, 0xF0},
		bytes.Repeat([]byte{0x11}, 600),
	}
	var stream []byte
	for _, m := range messages {
		stream = append(stream, Packetize(m)...)
	}

	p := NewPacketizer()
	// feed one byte at a time to exercise the "wait for more" path
	for _, b := range stream {
		p.Feed([]byte{b})
	}
	p.Feed(nil)

	got := p.DrainMessages()
	if len(got) != len(messages) {
		t.Fatalf("expected %d messages, got %d", len(messages), len(got))
	}
	for i := range messages {
		if !bytes.Equal(got[i], messages[i]) {
			t.Errorf("message %d mismatch", i)
		}
	}
}

func TestReadingFrameRecovery(t *testing.T) {
	original := bytes.Repeat([]byte{0x5A}, 32)
	garbage := []byte{0x00, 0x00, 0x00, 0x00, 0x00}

	var stream []byte
	stream = append(stream, garbage...)
	stream = append(stream, Packetize(original)...)

	p := NewPacketizer()
	p.Feed(stream)
	p.Feed(nil)

	got := p.DrainMessages()
	if len(got) != 1 {
		t.Fatalf("expected exactly one message, got %d", len(got))
	}
	if !bytes.Equal(got[0], original) {
		t.Errorf("recovered message mismatch")
	}
	if p.ReadingFrameErrorCount() != len(garbage) {
		t.Errorf("expected rfe_counter == %d, got %d", len(garbage), p.ReadingFrameErrorCount())
	}
}

func TestPacketizerClearOnAbortedMultiPacket(t *testing.T) {
	p := NewPacketizer()
	longMsg := bytes.Repeat([]byte{0x01}, 300)
	packets := Packetize(longMsg)

	// feed only the first (full, 255-byte) packet, then corrupt the stream
	firstFrameLen := 255 + 3
	p.Feed(packets[:firstFrameLen])
	p.Feed([]byte{0xFF}) // corrupt, not a valid continuation frame
	p.Feed(nil)

	if p.ReadingFrameErrorCount() == 0 {
		t.Errorf("expected at least one reading-frame error after corrupting a multi-packet stream")
	}
	if got := p.DrainMessages(); len(got) != 0 {
		t.Errorf("aborted multi-packet message should not be emitted, got %v", got)
	}
}
