package p2p

import (
	"net"
	"sync"
	"testing"
	"time"
)

func TestRouterDispatchesKnownKind(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	client := NewSession(a, "devnet", time.Second, time.Second)
	server := NewSession(b, "devnet", time.Second, time.Second)

	manager := NewManager(DefaultRuntimeConfig("devnet"))
	manager.AddPeer("peer-1", server)
	router := NewRouter(manager, nil)

	var mu sync.Mutex
	var gotCount uint32
	done := make(chan struct{})
	router.Handle(KindGetBlocks, func(peerAddr string, payload []byte) error {
		msg, err := DecodeGetBlocks(payload)
		if err != nil {
			return err
		}
		mu.Lock()
		gotCount = msg.Count
		mu.Unlock()
		close(done)
		return nil
	})

	go router.Serve("peer-1", server)

	if err := client.WriteFrame(Frame{Kind: KindGetBlocks, Payload: GetBlocks{Count: 5, Step: 1}.Encode()}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotCount != 5 {
		t.Fatalf("got Count=%d, want 5", gotCount)
	}
}

func TestManagerRejectsBeyondMaxPeers(t *testing.T) {
	cfg := DefaultRuntimeConfig("devnet")
	cfg.MaxPeers = 1
	manager := NewManager(cfg)

	if !manager.AddPeer("peer-1", nil) {
		t.Fatal("expected first AddPeer to succeed")
	}
	if manager.AddPeer("peer-2", nil) {
		t.Fatal("expected second AddPeer to be rejected at MaxPeers=1")
	}
	if manager.Count() != 1 {
		t.Fatalf("got %d peers, want 1", manager.Count())
	}
}

func TestManagerPenalizeReportsBanThreshold(t *testing.T) {
	cfg := DefaultRuntimeConfig("devnet")
	cfg.BanThreshold = 10
	manager := NewManager(cfg)
	manager.AddPeer("peer-1", nil)

	if manager.Penalize("peer-1", 5, "minor") {
		t.Fatal("should not be banned after 5 points with threshold 10")
	}
	if !manager.Penalize("peer-1", 5, "minor again") {
		t.Fatal("should be banned after crossing threshold")
	}
}
