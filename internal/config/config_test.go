package config

import "testing"

func TestDefaultValidates(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("Default() should validate cleanly: %v", err)
	}
}

func TestValidateRejectsBadParentBounds(t *testing.T) {
	cfg := Default()
	cfg.MinParents = 5
	cfg.MaxParents = 2
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for min_parents > max_parents")
	}
}

func TestValidateRejectsZeroChainID(t *testing.T) {
	cfg := Default()
	cfg.ChainID = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for chain_id == 0")
	}
}

func TestValidateRejectsBadBindAddr(t *testing.T) {
	cfg := Default()
	cfg.BindAddr = "not-an-addr"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for malformed bind_addr")
	}
}

func TestNormalizePeersDedupes(t *testing.T) {
	got := NormalizePeers("a:1,b:2", "b:2", " c:3 ")
	want := []string{"a:1", "b:2", "c:3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
