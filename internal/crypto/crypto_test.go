package crypto

import (
	"strings"
	"testing"
)

func sealer(t *testing.T, secret string) *Sealer {
	t.Helper()
	s, err := NewSealer(secret)
	if err != nil {
		t.Fatalf("NewSealer error: %v", err)
	}
	return s
}

func TestSealOpen_Roundtrip(t *testing.T) {
	s := sealer(t, "test-secret")
	original := "AIzaSyA-gemini-key-123"
	sealed, err := s.Seal(original)
	if err != nil {
		t.Fatalf("Seal error: %v", err)
	}
	if !IsSealed(sealed) {
		t.Errorf("sealed value %q lacks prefix", sealed)
	}
	if strings.Contains(sealed, original) {
		t.Error("sealed output should not contain the plaintext")
	}

	opened, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if opened != original {
		t.Errorf("roundtrip failed: got %q, want %q", opened, original)
	}
}

func TestSealOpen_EmptyString(t *testing.T) {
	s := sealer(t, "x")
	sealed, err := s.Seal("")
	if err != nil || sealed != "" {
		t.Errorf("Seal(\"\") = %q, %v; want empty", sealed, err)
	}
	opened, err := s.Open("")
	if err != nil || opened != "" {
		t.Errorf("Open(\"\") = %q, %v; want empty", opened, err)
	}
}

func TestSeal_DifferentCiphertextEachTime(t *testing.T) {
	// AES-GCM uses a random nonce, so same plaintext -> different ciphertext
	s := sealer(t, "x")
	enc1, _ := s.Seal("sk-abc123")
	enc2, _ := s.Seal("sk-abc123")
	if enc1 == enc2 {
		t.Error("two seals of the same plaintext should differ")
	}
	dec1, _ := s.Open(enc1)
	dec2, _ := s.Open(enc2)
	if dec1 != "sk-abc123" || dec2 != "sk-abc123" {
		t.Errorf("decryption mismatch: dec1=%q, dec2=%q", dec1, dec2)
	}
}

func TestOpen_WrongSecret(t *testing.T) {
	sealed, _ := sealer(t, "one").Seal("sk-secret")
	if _, err := sealer(t, "two").Open(sealed); err == nil {
		t.Error("expected error opening with a different secret")
	}
}

func TestOpen_PlainValuePassesThrough(t *testing.T) {
	s := sealer(t, "x")
	got, err := s.Open("sk-typed-by-hand")
	if err != nil || got != "sk-typed-by-hand" {
		t.Errorf("Open(plain) = %q, %v", got, err)
	}
}

func TestOpen_Garbage(t *testing.T) {
	s := sealer(t, "x")
	if _, err := s.Open(sealedPrefix + "not-valid-base64!!!"); err == nil {
		t.Error("expected error for garbage input")
	}
	if _, err := s.Open(sealedPrefix + "aGVsbG8gd29ybGQ="); err == nil {
		t.Error("expected error for valid base64 that is not a ciphertext")
	}
}

func TestMachineKeyFallback(t *testing.T) {
	a := sealer(t, "")
	b := sealer(t, "")
	sealed, _ := a.Seal("k")
	if got, err := b.Open(sealed); err != nil || got != "k" {
		t.Errorf("machine key not stable: %q, %v", got, err)
	}
}

func TestMask(t *testing.T) {
	tests := map[string]string{
		"":                     "",
		"short":                "****",
		"sk-abcdefghijklmnop1": "****nop1",
	}
	for in, want := range tests {
		if got := Mask(in); got != want {
			t.Errorf("Mask(%q) = %q, want %q", in, got, want)
		}
	}
}
