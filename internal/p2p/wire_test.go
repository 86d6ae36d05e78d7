package p2p

import (
	"net"
	"testing"
	"time"
)

func sessionPair(t *testing.T, network string) (*Session, *Session) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return NewSession(a, network, 2*time.Second, 2*time.Second),
		NewSession(b, network, 2*time.Second, 2*time.Second)
}

func TestWriteReadFrameRoundtrip(t *testing.T) {
	client, server := sessionPair(t, "devnet")

	msg := GetBlocks{Count: 10, Step: 1}
	go func() {
		if err := client.WriteFrame(Frame{Kind: KindGetBlocks, Payload: msg.Encode()}); err != nil {
			t.Errorf("WriteFrame: %v", err)
		}
	}()

	got, ok, err := server.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !ok {
		t.Fatal("expected known kind")
	}
	if got.Kind != KindGetBlocks {
		t.Fatalf("got kind %v, want GetBlocks", got.Kind)
	}
	decoded, err := DecodeGetBlocks(got.Payload)
	if err != nil {
		t.Fatalf("DecodeGetBlocks: %v", err)
	}
	if decoded.Count != 10 || decoded.Step != 1 {
		t.Fatalf("got %+v, want Count=10 Step=1", decoded)
	}
}

func TestReadFrameUnknownKindNotFatal(t *testing.T) {
	client, server := sessionPair(t, "devnet")

	go func() {
		if err := client.WriteFrame(Frame{Kind: Kind(250), Payload: []byte("x")}); err != nil {
			t.Errorf("WriteFrame: %v", err)
		}
	}()

	_, ok, err := server.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame should not error on unknown kind: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for unknown kind")
	}
}

func TestReadFrameMismatchedNetworkRejected(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	client := NewSession(a, "devnet", time.Second, time.Second)
	server := NewSession(b, "testnet", time.Second, time.Second)

	go func() {
		client.WriteFrame(Frame{Kind: KindGetBlocks, Payload: nil})
	}()

	_, _, err := server.ReadFrame()
	if err == nil {
		t.Fatal("expected error for mismatched network magic")
	}
}
