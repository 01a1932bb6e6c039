// Package hdc implements the core of the Host-Device Communication (HDC)
// protocol: a bidirectional, binary request/reply framing and routing layer
// for interconnecting a host application and an embedded device controller
// over a reliable byte stream (USB virtual serial port, TCP socket, or a
// tunnel carried inside another HDC link).
//
// The package is organized leaf-first, mirroring the protocol's own
// dependency order: Packetizer (bytes <-> messages), the payload codec
// (values <-> bytes for the closed dtype set), the identifier/message-type
// taxonomy, the Transport contract, and finally the host- and device-role
// routers built on top of it.
package hdc
