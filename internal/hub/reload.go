package hub

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/wanhive/overlay-hub/internal/wcrypto"
)

// ReloadPaths names the on-disk resources the reactor watches for
// write-then-close events, keyed by the same logical name the options
// file uses under PATHS.*.
type ReloadPaths struct {
	Options     string // no live reload; restart required
	HostsDB     string // database DSN change; no file watch needed
	HostsFile   string
	PrivateKey  string
	PublicKey   string
	SSLCA       string // no live reload; restart required
	SSLCert     string
	SSLKey      string
}

// Watch registers every non-empty, reloadable path with the reactor.
// Options and SSLCA are intentionally excluded: both require a restart.
func (rp ReloadPaths) Watch(r interface{ Watch(string) error }) error {
	for _, p := range []string{rp.HostsFile, rp.PrivateKey, rp.PublicKey, rp.SSLCert, rp.SSLKey} {
		if p == "" {
			continue
		}
		if err := r.Watch(p); err != nil {
			return fmt.Errorf("reload: watching %s: %w", p, err)
		}
	}
	return nil
}

// handleReload dispatches a file-change event from the reactor to the
// resource it names. Unknown paths are logged and ignored: the watcher
// may fire for a sibling file in a directory also holding a watched one.
func (h *Hub) handleReload(ctx context.Context, path string) {
	switch path {
	case "":
		return
	case h.reloadPaths.Options:
		h.logger.Info("options file changed; restart required to apply", zap.String("path", path))
	case h.reloadPaths.SSLCA:
		h.logger.Info("SSL CA changed; restart required to apply", zap.String("path", path))
	case h.reloadPaths.HostsFile:
		h.reloadHosts(ctx, path)
	case h.reloadPaths.PrivateKey:
		h.reloadPrivateKey(path)
	case h.reloadPaths.PublicKey:
		h.reloadPeerPublicKey(path)
	case h.reloadPaths.SSLCert, h.reloadPaths.SSLKey:
		h.reloadTLSMaterial(path)
	default:
		h.logger.Debug("ignoring file-change event for unwatched path", zap.String("path", path))
	}
}

func (h *Hub) reloadHosts(ctx context.Context, path string) {
	if h.hosts == nil {
		return
	}
	if err := h.hosts.Reload(ctx); err != nil {
		h.logger.Warn("hosts directory reload failed", zap.String("path", path), zap.Error(err))
		return
	}
	h.logger.Info("hosts directory reloaded", zap.String("path", path))
}

func (h *Hub) reloadPrivateKey(path string) {
	id, err := LoadPrivateIdentity(path)
	if err != nil {
		h.logger.Warn("private key reload failed", zap.String("path", path), zap.Error(err))
		return
	}
	h.identity = id
	h.logger.Info("private key reloaded", zap.String("path", path))
}

// reloadPeerPublicKey re-reads a controller/bootstrap public key file.
// The filename's base, minus extension, is parsed as the owning
// identifier so RegisterPeerKey can target the right entry; an
// unparsable name just logs and is skipped, since PATHS.public_key may
// also name this hub's own public half (nothing to re-key there).
func (h *Hub) reloadPeerPublicKey(path string) {
	key, err := LoadPublicKey(path)
	if err != nil {
		h.logger.Warn("public key reload failed", zap.String("path", path), zap.Error(err))
		return
	}
	id, ok := parseIDFromFilename(path)
	if !ok {
		h.logger.Debug("public key file name does not carry an identifier; skipping re-key", zap.String("path", path))
		return
	}
	h.RegisterPeerKey(id, key)
	h.logger.Info("peer public key reloaded", zap.String("path", path), zap.Uint64("id", id))
}

// reloadTLSMaterial handles a change to the transport certificate/key
// files. It only logs that the change was observed: the files are not
// re-read or validated, and the hub's listener (plain TCP, see
// cmd/overlay-hub) does not use them.
func (h *Hub) reloadTLSMaterial(path string) {
	h.logger.Info("TLS material changed on disk; not applied to live connections", zap.String("path", path))
}

// LoadPrivateIdentity reads a PEM-encoded PKCS1 RSA private key from
// path, used both for the hub's initial identity at startup and for a
// hot reload of the same file.
func LoadPrivateIdentity(path string) (*wcrypto.Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing PKCS1 private key: %w", err)
	}
	return &wcrypto.Identity{Private: key}, nil
}

// LoadPublicKey reads a PEM-encoded PKIX RSA public key from path, used
// for bootstrap peer keys at startup and for a hot reload of the same
// file.
func LoadPublicKey(path string) (*wcrypto.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing PKIX public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%s does not hold an RSA public key", path)
	}
	return &wcrypto.PublicKey{Key: rsaPub}, nil
}

// parseIDFromFilename extracts a base-10 identifier from a key file's
// name, e.g. "42.pub" -> 42. Used only for hosts-directory-style peer
// key files; this hub's own key files are named by role, not id, and
// simply fail to parse here.
func parseIDFromFilename(path string) (uint64, bool) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	var id uint64
	if _, err := fmt.Sscanf(name, "%d", &id); err != nil {
		return 0, false
	}
	return id, true
}
