package hub

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func writePEM(t *testing.T, dir, name, blockType string, der []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	buf := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestLoadPrivateIdentityRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	dir := t.TempDir()
	path := writePEM(t, dir, "private.pem", "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key))

	id, err := LoadPrivateIdentity(path)
	if err != nil {
		t.Fatalf("LoadPrivateIdentity: %v", err)
	}
	if id.Private.N.Cmp(key.N) != 0 {
		t.Fatal("loaded key does not match generated key")
	}
}

func TestLoadPublicKeyRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshaling public key: %v", err)
	}
	dir := t.TempDir()
	path := writePEM(t, dir, "42.pub", "PUBLIC KEY", der)

	pub, err := LoadPublicKey(path)
	if err != nil {
		t.Fatalf("LoadPublicKey: %v", err)
	}
	if pub.Key.N.Cmp(key.PublicKey.N) != 0 {
		t.Fatal("loaded public key does not match generated key")
	}

	id, ok := parseIDFromFilename(path)
	if !ok || id != 42 {
		t.Fatalf("parseIDFromFilename = %d, %v; want 42, true", id, ok)
	}
}

func TestParseIDFromFilenameRejectsNonNumeric(t *testing.T) {
	if _, ok := parseIDFromFilename("/etc/wanhive/server.pub"); ok {
		t.Fatal("expected non-numeric base name to fail to parse")
	}
}

func TestHandleReloadDispatchesPrivateKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	dir := t.TempDir()
	path := writePEM(t, dir, "private.pem", "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key))

	h := newTestHub(t, 0)
	h.SetReloadPaths(ReloadPaths{PrivateKey: path})

	h.handleReload(context.Background(), path)
	if h.identity == nil || h.identity.Private.N.Cmp(key.N) != 0 {
		t.Fatal("expected hub identity to be reloaded from disk")
	}
}

func TestHandleReloadIgnoresUnwatchedPath(t *testing.T) {
	h := newTestHub(t, 0)
	h.logger = zap.NewNop()
	// Should not panic or mutate anything for a path that matches nothing.
	h.handleReload(context.Background(), "/tmp/not-watched")
}
