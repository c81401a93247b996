package crypto

import (
	"crypto/sha256"
	"testing"
)

func TestSignRecoverRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	digest := sha256.Sum256([]byte("transfer 100 to vlt1..."))

	sig, err := key.Sign(digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	recovered, err := RecoverAddress(digest[:], sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !recovered.Equal(key.PubKey().Address()) {
		t.Fatalf("recovered %s, want %s", recovered, key.PubKey().Address())
	}
}

func TestRecoverRejectsWrongDigest(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	digest := sha256.Sum256([]byte("original payload"))
	sig, err := key.Sign(digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tampered := sha256.Sum256([]byte("replayed payload"))
	recovered, err := RecoverAddress(tampered[:], sig)
	if err == nil && recovered.Equal(key.PubKey().Address()) {
		t.Fatalf("signature verified against a digest it did not sign")
	}
}

func TestRecoverRejectsTruncatedSignature(t *testing.T) {
	digest := sha256.Sum256([]byte("payload"))
	if _, err := RecoverAddress(digest[:], make([]byte, 64)); err == nil {
		t.Fatalf("expected length error for 64-byte signature")
	}
}

func TestPrivateKeyBytesRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore key: %v", err)
	}
	if !restored.PubKey().Address().Equal(key.PubKey().Address()) {
		t.Fatalf("restored key derives a different address")
	}
}
