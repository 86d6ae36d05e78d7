package mempool

import (
	"testing"

	"lattice.dev/node/internal/primitives"
)

func signedTx(t *testing.T, secret [32]byte, nonce uint64, gasPrice uint64, txType primitives.TxType) primitives.Transaction {
	t.Helper()
	from := primitives.PublicKeyFromSecret(secret)
	tx := primitives.Transaction{
		Nonce:    nonce,
		From:     from,
		GasLimit: 21000,
		GasPrice: primitives.NewU256(gasPrice),
		TxType:   txType,
	}
	tx.Signature = primitives.SignTx(tx, secret)
	return tx
}

func zeroNonces([32]byte) uint64 { return 0 }

// TestPendingNonceCount is spec.md's S3 scenario: sender A has
// state-nonce 5; admitting nonces 5,6,7 should yield pending count 8.
func TestPendingNonceCount(t *testing.T) {
	var secret [32]byte
	secret[31] = 0x02
	from := primitives.PublicKeyFromSecret(secret)

	nonces := func([32]byte) uint64 { return 5 }
	p := New(Config{QuotaBytes: map[Class]uint64{ClassStandard: 1 << 20}}, nonces)

	for _, n := range []uint64{5, 6, 7} {
		tx := signedTx(t, secret, n, 100, primitives.TxTransfer)
		if err := p.Admit(tx); err != nil {
			t.Fatalf("Admit(nonce=%d): %v", n, err)
		}
	}

	if got := p.PendingNonceCount(from); got != 8 {
		t.Fatalf("expected pending nonce count 8, got %d", got)
	}
}

func TestAdmitRejectsBadSignature(t *testing.T) {
	var secret [32]byte
	secret[31] = 0x03
	tx := signedTx(t, secret, 0, 100, primitives.TxTransfer)
	tx.Nonce = 99 // invalidates the signature without re-signing

	p := New(Config{QuotaBytes: map[Class]uint64{ClassStandard: 1 << 20}}, zeroNonces)
	if err := p.Admit(tx); err == nil {
		t.Fatalf("expected bad-signature rejection")
	}
}

func TestAdmitRejectsStaleNonce(t *testing.T) {
	var secret [32]byte
	secret[31] = 0x04
	nonces := func([32]byte) uint64 { return 10 }
	p := New(Config{QuotaBytes: map[Class]uint64{ClassStandard: 1 << 20}}, nonces)

	tx := signedTx(t, secret, 5, 100, primitives.TxTransfer)
	if err := p.Admit(tx); err == nil {
		t.Fatalf("expected stale-nonce rejection")
	}
}

func TestAdmitRejectsNonceGapTooLarge(t *testing.T) {
	var secret [32]byte
	secret[31] = 0x09
	nonces := func([32]byte) uint64 { return 10 }
	p := New(Config{QuotaBytes: map[Class]uint64{ClassStandard: 1 << 20}, NonceGapLimit: 4}, nonces)

	tx := signedTx(t, secret, 15, 100, primitives.TxTransfer)
	if err := p.Admit(tx); err == nil {
		t.Fatalf("expected nonce-gap rejection")
	}
}

func TestAdmitAllowsNonceWithinGapLimit(t *testing.T) {
	var secret [32]byte
	secret[31] = 0x0a
	nonces := func([32]byte) uint64 { return 10 }
	p := New(Config{QuotaBytes: map[Class]uint64{ClassStandard: 1 << 20}, NonceGapLimit: 4}, nonces)

	tx := signedTx(t, secret, 14, 100, primitives.TxTransfer)
	if err := p.Admit(tx); err != nil {
		t.Fatalf("Admit: %v", err)
	}
}

func TestReplaceByFeeRequiresBump(t *testing.T) {
	var secret [32]byte
	secret[31] = 0x05
	p := New(Config{QuotaBytes: map[Class]uint64{ClassStandard: 1 << 20}}, zeroNonces)

	orig := signedTx(t, secret, 0, 100, primitives.TxTransfer)
	if err := p.Admit(orig); err != nil {
		t.Fatalf("Admit(orig): %v", err)
	}

	underpriced := signedTx(t, secret, 0, 105, primitives.TxTransfer) // +5%, below 1.1x
	if err := p.Admit(underpriced); err == nil {
		t.Fatalf("expected replacement to be rejected as underpriced")
	}

	repriced := signedTx(t, secret, 0, 110, primitives.TxTransfer) // exactly 1.1x
	if err := p.Admit(repriced); err != nil {
		t.Fatalf("expected replacement at 1.1x to succeed: %v", err)
	}
}

func TestGetTransactionsOrdersByFeeWithinSender(t *testing.T) {
	var secretA, secretB [32]byte
	secretA[31] = 0x06
	secretB[31] = 0x07

	p := New(Config{QuotaBytes: map[Class]uint64{ClassStandard: 1 << 20}}, zeroNonces)

	a0 := signedTx(t, secretA, 0, 50, primitives.TxTransfer)
	a1 := signedTx(t, secretA, 1, 50, primitives.TxTransfer)
	b0 := signedTx(t, secretB, 0, 200, primitives.TxTransfer)

	for _, tx := range []primitives.Transaction{a0, a1, b0} {
		if err := p.Admit(tx); err != nil {
			t.Fatalf("Admit: %v", err)
		}
	}

	got := p.GetTransactions(10)
	if len(got) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(got))
	}
	// b0 (higher fee) should be ordered ahead of a0 despite a0 arriving first,
	// and a1 must follow a0 since groups are nonce-ordered within a sender.
	if got[0].From != b0.From {
		t.Fatalf("expected highest-fee sender first")
	}
	if got[1].From != a0.From || got[1].Nonce != 0 || got[2].From != a1.From || got[2].Nonce != 1 {
		t.Fatalf("expected a0 then a1 after b0")
	}
}

func TestStatsReportsClassBreakdown(t *testing.T) {
	var secret [32]byte
	secret[31] = 0x08
	p := New(Config{QuotaBytes: map[Class]uint64{ClassStandard: 1 << 20}}, zeroNonces)

	tx := signedTx(t, secret, 0, 100, primitives.TxTransfer)
	if err := p.Admit(tx); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	stats := p.Stats()
	if stats.TotalTransactions != 1 {
		t.Fatalf("expected 1 transaction, got %d", stats.TotalTransactions)
	}
	if stats.ByClass[ClassStandard] == 0 {
		t.Fatalf("expected nonzero Standard class bytes")
	}
}
