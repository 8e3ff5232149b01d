// Package wcrypto adapts the cryptographic primitives the hub consumes
// as an external collaborator: hash-of-bytes, sign-bytes, verify-bytes,
// RSA-encrypt, RSA-decrypt. Built on crypto/rsa and crypto/sha512 from
// the standard library — no third-party RSA wrapper in the retrieved
// pack does anything crypto/rsa doesn't already do, so wrapping it
// directly is the right call rather than inventing a dependency.
package wcrypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha512"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const cryptoHashSHA512 = crypto.SHA512

// HashBytes returns the SHA-512 digest of data.
func HashBytes(data []byte) []byte {
	sum := sha512.Sum512(data)
	return sum[:]
}

// Identity is the hub's long-term RSA keypair, used both to sign
// outbound frames (wire.Packet.Sign) and to verify inbound peer
// signatures (wire.Packet.Verify).
type Identity struct {
	Private *rsa.PrivateKey
}

// GenerateIdentity creates a fresh 2048-bit RSA identity, matching
// wire.SignatureSize.
func GenerateIdentity() (*Identity, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("wcrypto: generating RSA key: %w", err)
	}
	return &Identity{Private: key}, nil
}

// Sign implements the wire.signer interface consumed by Packet.Sign:
// PKCS#1 v1.5 over a SHA-512 digest of data.
func (id *Identity) Sign(data []byte) ([]byte, error) {
	digest := sha512.Sum512(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, id.Private, cryptoHashSHA512, digest[:])
	if err != nil {
		return nil, fmt.Errorf("wcrypto: sign: %w", err)
	}
	return sig, nil
}

// PublicKey wraps an *rsa.PublicKey for verification and encryption,
// exposed separately from Identity so peers can hold only the public
// half of a remote identity.
type PublicKey struct {
	Key *rsa.PublicKey
}

// Public returns this identity's public half.
func (id *Identity) Public() *PublicKey {
	return &PublicKey{Key: &id.Private.PublicKey}
}

// Verify implements the wire.verifier interface consumed by
// Packet.Verify.
func (pk *PublicKey) Verify(data, signature []byte) error {
	digest := sha512.Sum512(data)
	if err := rsa.VerifyPKCS1v15(pk.Key, cryptoHashSHA512, digest[:], signature); err != nil {
		return fmt.Errorf("wcrypto: verify: %w", err)
	}
	return nil
}

// Encrypt RSA-OAEP-encrypts data under this public key, used for the
// peer handshake's N1 envelope (§4.3).
func (pk *PublicKey) Encrypt(data []byte) ([]byte, error) {
	ct, err := rsa.EncryptOAEP(sha512.New(), rand.Reader, pk.Key, data, nil)
	if err != nil {
		return nil, fmt.Errorf("wcrypto: encrypt: %w", err)
	}
	return ct, nil
}

// Decrypt RSA-OAEP-decrypts data under this identity's private key.
func (id *Identity) Decrypt(ciphertext []byte) ([]byte, error) {
	pt, err := rsa.DecryptOAEP(sha512.New(), rand.Reader, id.Private, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("wcrypto: decrypt: %w", err)
	}
	return pt, nil
}

// ConfirmationKey derives fixed-length key confirmation material from an
// SRP session key K via HKDF-SHA512, so that K itself need not appear on
// the wire. No handshake step in this repository calls it.
func ConfirmationKey(sessionKey []byte, info string, size int) ([]byte, error) {
	r := hkdf.New(sha512.New, sessionKey, nil, []byte(info))
	out := make([]byte, size)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("wcrypto: hkdf expand: %w", err)
	}
	return out, nil
}
