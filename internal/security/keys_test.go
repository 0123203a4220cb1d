package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParsePrivateKey_InlinePEM(t *testing.T) {
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	if signer == nil {
		t.Fatal("ParsePrivateKey returned nil signer")
	}
}

func TestParsePublicKey_InlinePEM(t *testing.T) {
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if pub == nil {
		t.Fatal("ParsePublicKey returned nil key")
	}
	if alg := KeyAlg(pub); alg != "RS256" {
		t.Errorf("KeyAlg = %q, want RS256", alg)
	}
}

func TestParsePrivateKey_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(path, []byte(testPrivateKeyPEM), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := ParsePrivateKey(path); err != nil {
		t.Fatalf("ParsePrivateKey from file: %v", err)
	}
}

func TestParseKeys_Invalid(t *testing.T) {
	if _, err := ParsePrivateKey(""); err == nil {
		t.Error("empty private key input should fail")
	}
	if _, err := ParsePrivateKey("-----BEGIN GARBAGE-----"); err == nil {
		t.Error("garbage PEM should fail")
	}
	if _, err := ParsePublicKey(testPrivateKeyPEM); err == nil {
		t.Error("private PEM passed as public key should fail")
	}
}
