package auth

import (
	"crypto/rand"
	"fmt"
)

// NonceSize is the width of the random challenge exchanged during the
// peer-to-peer RSA token handshake (basic/token, basic/register).
const NonceSize = 32

// TokenSigner is the minimal surface the host identity offers for the
// peer token handshake; satisfied by *wcrypto.Identity.
type TokenSigner interface {
	Sign(data []byte) ([]byte, error)
}

// TokenVerifier is the minimal surface a peer's public key offers;
// satisfied by *wcrypto.PublicKey.
type TokenVerifier interface {
	Verify(data, signature []byte) error
}

// NewNonce generates a fresh random challenge for a basic/token request.
func NewNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("auth: nonce: %w", err)
	}
	return nonce, nil
}

// SignToken signs a nonce with the host's private identity, producing
// the token a peer presents back during basic/register.
func SignToken(key TokenSigner, nonce []byte) ([]byte, error) {
	sig, err := key.Sign(nonce)
	if err != nil {
		return nil, fmt.Errorf("auth: sign token: %w", err)
	}
	return sig, nil
}

// VerifyToken checks a peer-presented token against the nonce the host
// issued and the peer's known public key.
func VerifyToken(key TokenVerifier, nonce, token []byte) error {
	if err := key.Verify(nonce, token); err != nil {
		return fmt.Errorf("auth: verify token: %w", err)
	}
	return nil
}
