package crypto

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"zkrent/internal/domain"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := GenerateRSAKey(2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := NewSigner(key)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return signer
}

func TestSigner_SignVerifyRoundTrip(t *testing.T) {
	signer := newTestSigner(t)
	payload := map[string]any{"subjectId": "renter-1", "value": 3500}

	sig, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	verifier := NewVerifier()
	if err := verifier.Verify(signer.PublicKeyPEM(), payload, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// key order must not matter
	reordered := []byte(`{"value":3500,"subjectId":"renter-1"}`)
	if err := verifier.Verify(signer.PublicKeyPEM(), reordered, sig); err != nil {
		t.Fatalf("verify reordered: %v", err)
	}
}

func TestSigner_TamperedPayloadRejected(t *testing.T) {
	signer := newTestSigner(t)
	sig, err := signer.Sign(map[string]any{"value": 3500})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	err = NewVerifier().Verify(signer.PublicKeyPEM(), map[string]any{"value": 3501}, sig)
	if !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("expected signature invalid, got %v", err)
	}
}

func TestSigner_WrongKeyRejected(t *testing.T) {
	signer := newTestSigner(t)
	other := newTestSigner(t)
	sig, err := signer.Sign("payload")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := NewVerifier().Verify(other.PublicKeyPEM(), "payload", sig); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("expected signature invalid, got %v", err)
	}
	if err := NewVerifier().Verify(signer.PublicKeyPEM(), "payload", "not base64!"); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("expected signature invalid for garbage, got %v", err)
	}
}

func TestNewSigner_RejectsSmallKeys(t *testing.T) {
	key, err := GenerateRSAKey(1024)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if _, err := NewSigner(key); err == nil {
		t.Fatal("expected error for 1024-bit key")
	}
}

func TestLoadRSAPrivateKey_FileAndInline(t *testing.T) {
	key, err := GenerateRSAKey(2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "issuer.pem")
	if err := WritePrivateKeyFile(path, key); err != nil {
		t.Fatalf("write key: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	fromFile, err := LoadRSAPrivateKey("", path)
	if err != nil {
		t.Fatalf("load from file: %v", err)
	}
	if fromFile.N.Cmp(key.N) != 0 {
		t.Fatal("loaded key differs from written key")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	inline, err := LoadRSAPrivateKey(string(data), "")
	if err != nil {
		t.Fatalf("load inline: %v", err)
	}
	if inline.N.Cmp(key.N) != 0 {
		t.Fatal("inline key differs from written key")
	}

	if _, err := LoadRSAPrivateKey("", ""); err == nil {
		t.Fatal("expected error when no key configured")
	}
}
