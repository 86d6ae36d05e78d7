package primitives

import "testing"

func TestSignTxThenVerifyRoundTrip(t *testing.T) {
	var secret [32]byte
	secret[31] = 0x01
	from := PublicKeyFromSecret(secret)

	tx := Transaction{Nonce: 1, From: from, GasLimit: 21000, TxType: TxTransfer}
	tx.Signature = SignTx(tx, secret)

	if !VerifyTxSignature(tx) {
		t.Fatalf("expected signature to verify")
	}
}

func TestVerifyTxSignatureRejectsWrongSender(t *testing.T) {
	var secret [32]byte
	secret[31] = 0x01
	var other [32]byte
	other[0] = 0xAA

	tx := Transaction{Nonce: 1, From: other, GasLimit: 21000, TxType: TxTransfer}
	tx.Signature = SignTx(tx, secret)

	if VerifyTxSignature(tx) {
		t.Fatalf("expected signature to fail: From does not match signer")
	}
}

func TestVerifyTxSignatureRejectsTamperedNonce(t *testing.T) {
	var secret [32]byte
	secret[31] = 0x01
	from := PublicKeyFromSecret(secret)

	tx := Transaction{Nonce: 1, From: from, GasLimit: 21000, TxType: TxTransfer}
	tx.Signature = SignTx(tx, secret)
	tx.Nonce = 2 // mutate after signing

	if VerifyTxSignature(tx) {
		t.Fatalf("expected signature to fail on tampered nonce")
	}
}
