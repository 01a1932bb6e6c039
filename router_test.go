package hdc

import (
	"bytes"
	"math"
	"testing"
	"time"
)

func newLinkedRouters(t *testing.T) (*HostRouter, *DeviceRouter) {
	t.Helper()
	hostSide, deviceSide := NewLoopbackPair("host", "device")

	host := NewHostRouter(hostSide, HostRouterConfig{})
	device := NewDeviceRouter(deviceSide, DeviceRouterConfig{})

	if err := host.Connect(); err != nil {
		t.Fatalf("host connect: %v", err)
	}
	if err := device.Connect(); err != nil {
		t.Fatalf("device connect: %v", err)
	}
	return host, device
}

func TestEchoRoundTrip(t *testing.T) {
	host, device := newLinkedRouters(t)
	defer host.Close()
	defer device.Close()

	req := []byte{byte(MsgTypeEcho), 0x01, 0x02, 0x03}
	reply, err := host.SendRequestAndGetReply(req, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(reply, req) {
		t.Errorf("echo mismatch: got %v, want %v", reply, req)
	}
}

func TestGetPropertyValueLogEventThreshold(t *testing.T) {
	host, device := newLinkedRouters(t)
	defer host.Close()
	defer device.Close()
	_ = device

	req := []byte{byte(MsgTypeCommand), byte(FeatureIDCore), byte(CommandIDGetPropertyValue), byte(PropertyIDLogEventThreshold)}
	reply, err := host.SendRequestAndGetReply(req, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{byte(MsgTypeCommand), byte(FeatureIDCore), byte(CommandIDGetPropertyValue), 0x00, 30}
	if !bytes.Equal(reply, want) {
		t.Errorf("reply mismatch: got %v, want %v", reply, want)
	}
}

func TestUnknownFeature(t *testing.T) {
	host, device := newLinkedRouters(t)
	defer host.Close()
	defer device.Close()

	req := []byte{byte(MsgTypeCommand), 0x42, byte(CommandIDGetPropertyValue), 0xF0}
	reply, err := host.SendRequestAndGetReply(req, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{byte(MsgTypeCommand), 0x42, byte(CommandIDGetPropertyValue), byte(ExcUnknownFeature)}
	if !bytes.Equal(reply, want) {
		t.Errorf("reply mismatch: got %v, want %v", reply, want)
	}
}

func TestUnknownCommand(t *testing.T) {
	host, device := newLinkedRouters(t)
	defer host.Close()
	defer device.Close()

	req := []byte{byte(MsgTypeCommand), byte(FeatureIDCore), 0x55}
	reply, err := host.SendRequestAndGetReply(req, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{byte(MsgTypeCommand), byte(FeatureIDCore), 0x55, byte(ExcUnknownCommand)}
	if !bytes.Equal(reply, want) {
		t.Errorf("reply mismatch: got %v, want %v", reply, want)
	}
}

func TestMetaHdcVersionAndMaxReq(t *testing.T) {
	host, device := newLinkedRouters(t)
	defer host.Close()
	defer device.Close()
	_ = device

	reply, err := host.SendRequestAndGetReply([]byte{byte(MsgTypeMeta), byte(MetaMaxReq)}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(reply) != 2+4 {
		t.Fatalf("expected 6-byte MAX_REQ reply, got %d bytes", len(reply))
	}
	v, _ := Decode(DTypeUint32, reply[2:])
	if v.(uint32) != defaultMaxReqSize {
		t.Errorf("expected default max req size %d, got %v", defaultMaxReqSize, v)
	}

	reply, err = host.SendRequestAndGetReply([]byte{byte(MsgTypeMeta), byte(MetaHdcVersion)}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if string(reply[2:]) != hdcVersionString {
		t.Errorf("expected version string %q, got %q", hdcVersionString, string(reply[2:]))
	}
}

func TestSingleOutstandingRequest(t *testing.T) {
	host, device := newLinkedRouters(t)
	defer host.Close()
	defer device.Close()

	// Block the device from replying by registering a feature whose
	// command never calls back; instead, simulate "in flight" by holding
	// the request lock directly, since the loopback transport replies
	// synchronously and would otherwise make a genuine race hard to force.
	host.requestMu.Lock()
	_, err := host.SendRequestAndGetReply([]byte{byte(MsgTypeEcho)}, time.Second)
	host.requestMu.Unlock()
	if err != ErrRequestInFlight {
		t.Errorf("expected ErrRequestInFlight, got %v", err)
	}
}

func TestSendRequestTimeout(t *testing.T) {
	hostSide, deviceSide := NewLoopbackPair("host", "device")
	host := NewHostRouter(hostSide, HostRouterConfig{})
	if err := host.Connect(); err != nil {
		t.Fatal(err)
	}
	defer host.Close()

	// The peer accepts messages but never replies, so the request is
	// delivered and the wait runs out the deliberately short timeout.
	if err := deviceSide.Connect(func([]byte) {}, func(error) {}); err != nil {
		t.Fatal(err)
	}
	_, err := host.SendRequestAndGetReply([]byte{byte(MsgTypeEcho)}, 20*time.Millisecond)
	if err != ErrTimeout {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestEventDispatchAndLogThreshold(t *testing.T) {
	host, device := newLinkedRouters(t)
	defer host.Close()
	defer device.Close()

	temp := NewFeature(0x01, "Temperature", "reports ambient temperature")
	if err := device.RegisterFeature(temp); err != nil {
		t.Fatal(err)
	}

	received := make(chan []byte, 4)
	host.RegisterEventMessageHandler(0x01, EventIDLog, func(msg []byte) {
		received <- msg
	})

	if err := temp.Log(LogLevelDebug, "too quiet to report"); err != nil {
		t.Fatal(err)
	}
	if err := temp.Log(LogLevelError, "sensor fault"); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-received:
		vals, err := DecodePayload(msg[3:], []DType{DTypeUint8, DTypeUTF8})
		if err != nil {
			t.Fatal(err)
		}
		if vals[0].(uint8) != uint8(LogLevelError) || vals[1].(string) != "sensor fault" {
			t.Errorf("unexpected log event payload: %v", vals)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Log event")
	}

	select {
	case msg := <-received:
		t.Fatalf("unexpected second event delivered (threshold should have suppressed debug): %v", msg)
	case <-time.After(50 * time.Millisecond):
		// expected: debug level below default WARNING threshold, suppressed
	}
}

func TestApplicationCommandAndException(t *testing.T) {
	host, device := newLinkedRouters(t)
	defer host.Close()
	defer device.Close()

	adder := NewFeature(0x02, "Adder", "")
	err := adder.AddCommand(&CommandDescriptor{
		ID: 0x01, Name: "Add",
		ArgTypes: []DType{DTypeInt32, DTypeInt32},
		RetTypes: []DType{DTypeInt32},
		Exceptions: []ExceptionDescriptor{
			{ID: 0x01, Name: "Overflow"},
		},
		Handler: func(args []interface{}) ([]interface{}, error) {
			a, b := args[0].(int32), args[1].(int32)
			sum := int64(a) + int64(b)
			if sum > int64(math.MaxInt32) {
				return nil, NewCmdException(0x01, "would overflow")
			}
			return []interface{}{int32(sum)}, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := device.RegisterFeature(adder); err != nil {
		t.Fatal(err)
	}

	argPayload, _ := EncodePayload([]DType{DTypeInt32, DTypeInt32}, []interface{}{int32(2), int32(3)})
	req := append([]byte{byte(MsgTypeCommand), 0x02, 0x01}, argPayload...)
	reply, err := host.SendRequestAndGetReply(req, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if reply[3] != 0x00 {
		t.Fatalf("expected success, got exception 0x%02x", reply[3])
	}
	v, _ := Decode(DTypeInt32, reply[4:])
	if v.(int32) != 5 {
		t.Errorf("expected 5, got %v", v)
	}

	argPayload, _ = EncodePayload([]DType{DTypeInt32, DTypeInt32}, []interface{}{int32(2147483647), int32(1)})
	req = append([]byte{byte(MsgTypeCommand), 0x02, 0x01}, argPayload...)
	reply, err = host.SendRequestAndGetReply(req, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if reply[3] != 0x01 {
		t.Fatalf("expected exception id 0x01, got 0x%02x", reply[3])
	}
	if string(reply[4:]) != "would overflow" {
		t.Errorf("unexpected exception text: %q", reply[4:])
	}
}

func TestInvalidArgsOnMalformedPayload(t *testing.T) {
	host, device := newLinkedRouters(t)
	defer host.Close()
	defer device.Close()

	f := NewFeature(0x03, "F", "")
	_ = f.AddCommand(&CommandDescriptor{
		ID: 0x01, Name: "NeedsTwoBytes",
		ArgTypes: []DType{DTypeUint16},
		RetTypes: nil,
		Handler: func(args []interface{}) ([]interface{}, error) {
			return nil, nil
		},
	})
	if err := device.RegisterFeature(f); err != nil {
		t.Fatal(err)
	}

	req := []byte{byte(MsgTypeCommand), 0x03, 0x01, 0x00} // only 1 byte, need 2
	reply, err := host.SendRequestAndGetReply(req, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if reply[3] != byte(ExcInvalidArgs) {
		t.Errorf("expected InvalidArgs, got 0x%02x", reply[3])
	}
}

func TestOversizedRequestDropped(t *testing.T) {
	hostSide, deviceSide := NewLoopbackPair("host", "device")
	host := NewHostRouter(hostSide, HostRouterConfig{})
	device := NewDeviceRouter(deviceSide, DeviceRouterConfig{MaxReqSize: minMaxReqSize})
	if err := host.Connect(); err != nil {
		t.Fatal(err)
	}
	if err := device.Connect(); err != nil {
		t.Fatal(err)
	}
	defer host.Close()
	defer device.Close()

	req := []byte{byte(MsgTypeEcho), 0x01, 0x02, 0x03, 0x04, 0x05} // 6 bytes > MaxReqSize of 5
	_, err := host.SendRequestAndGetReply(req, 50*time.Millisecond)
	if err != ErrTimeout {
		t.Errorf("expected oversized request to be dropped and time out, got %v", err)
	}
}

func TestSetPropertyReadOnlyRejected(t *testing.T) {
	host, device := newLinkedRouters(t)
	defer host.Close()
	defer device.Close()
	_ = device

	payload, _ := EncodePayload([]DType{DTypeUint8, DTypeBlob}, []interface{}{byte(PropertyIDFeatureState), []byte{0x01}})
	req := append([]byte{byte(MsgTypeCommand), byte(FeatureIDCore), byte(CommandIDSetPropertyValue)}, payload...)
	reply, err := host.SendRequestAndGetReply(req, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if reply[3] != byte(ExcReadOnlyProperty) {
		t.Errorf("expected ReadOnlyProperty, got 0x%02x", reply[3])
	}
}
