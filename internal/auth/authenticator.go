// Package auth implements the SRP-6a host-side state machine driving the
// identify/authenticate/authorize sequence, plus the separate RSA-token
// peer-to-peer handshake. One Authenticator
// exists per connection, keyed by that connection's ephemeral
// identifier, and is discarded the moment it fails or succeeds.
package auth

import (
	"crypto/hmac"
	"crypto/sha512"
	"errors"
	"fmt"
	"math/big"

	"github.com/wanhive/overlay-hub/internal/srp"
)

// Stage tracks where a connection sits in the handshake so out-of-order
// requests can be rejected without mutating state.
type Stage int

const (
	StageNew Stage = iota
	StageIdentified
	StageAuthenticated
	StageFailed
)

// CredentialStore is the external credential store: identity -> salt,
// verifier, group. Lookup must be side-effect-free on failure.
type CredentialStore interface {
	Lookup(identity string) (salt, verifier *big.Int, group uint8, err error)
}

// ErrNotFound is returned by a CredentialStore when the identity is
// unknown; it is not itself a protocol error — the authenticator turns
// it into a deterministic fake response.
var ErrNotFound = errors.New("auth: identity not found")

// ErrOutOfOrder is returned when a request arrives before its
// predecessor in the identify -> authenticate -> authorize sequence.
var ErrOutOfOrder = errors.New("auth: out-of-order request")

// Authenticator is one connection's host-side SRP state, from the first
// identify request through authorization.
type Authenticator struct {
	group  srp.Group
	store  CredentialStore
	pepper []byte // server secret used to derive deterministic fake salts

	stage      Stage
	identity   string
	fake       bool
	salt       *big.Int
	verifier   *big.Int
	b          *big.Int
	bigA       *big.Int
	bigB       *big.Int
	sessionKey []byte
	hostGroup  uint8
}

// New creates an authenticator bound to a credential store and a server
// pepper used only for the fake-identity path.
func New(store CredentialStore, pepper []byte) *Authenticator {
	return &Authenticator{group: srp.RFC5054Group2048(), store: store, pepper: pepper}
}

// Stage returns the current handshake stage.
func (a *Authenticator) Stage() Stage { return a.stage }

// Identity returns the identity name once identify has succeeded (real
// or fake).
func (a *Authenticator) Identity() string { return a.identity }

// Group returns the identity's group tag, valid once authenticated.
func (a *Authenticator) Group() uint8 { return a.hostGroup }

// Unauthenticable reports whether this authenticator is on the
// fake-identity path (identity unknown to the credential store).
func (a *Authenticator) Unauthenticable() bool { return a.fake }

// Identify processes a null/identify request carrying the client's
// public ephemeral A. It must be the first call on a fresh
// Authenticator.
func (a *Authenticator) Identify(identity string, A *big.Int) (salt, B *big.Int, err error) {
	if a.stage != StageNew {
		return nil, nil, ErrOutOfOrder
	}
	a.identity = identity
	a.bigA = A

	salt, verifier, group, err := a.store.Lookup(identity)
	if err != nil {
		// Deterministic fake path: repeated probes for the same unknown
		// identity must return the same fake salt, so an attacker can't
		// enumerate valid identities by watching for salt variance.
		a.fake = true
		a.salt = a.fakeSalt(identity)
		a.verifier = a.fakeVerifier(identity, a.salt)
	} else {
		a.salt = salt
		a.verifier = verifier
		a.hostGroup = group
	}

	b, Bv, err := a.group.ServerEphemeral(a.verifier)
	if err != nil {
		return nil, nil, fmt.Errorf("auth: server ephemeral: %w", err)
	}
	a.b = b
	a.bigB = Bv
	a.stage = StageIdentified
	return a.salt, a.bigB, nil
}

// Authenticate processes a null/authenticate request carrying the
// client's proof M. On success it returns the host's confirmation proof
// H(A,M,K); on failure the authenticator must be discarded by the
// caller (the hub drops the map entry).
func (a *Authenticator) Authenticate(M []byte) (hostProof []byte, err error) {
	if a.stage != StageIdentified {
		return nil, ErrOutOfOrder
	}
	if a.fake {
		a.stage = StageFailed
		return nil, errors.New("auth: unknown identity")
	}

	u := a.group.ScramblingParam(a.bigA, a.bigB)
	S, err := a.group.ServerPremaster(a.bigA, a.verifier, u, a.b)
	if err != nil {
		a.stage = StageFailed
		return nil, fmt.Errorf("auth: premaster: %w", err)
	}
	K := a.group.SessionKey(S)
	expected := a.group.ClientProof(a.identity, a.salt, a.bigA, a.bigB, K)
	if !hmac.Equal(expected, M) {
		a.stage = StageFailed
		return nil, errors.New("auth: proof mismatch")
	}

	a.sessionKey = K
	a.stage = StageAuthenticated
	return a.group.HostProof(a.bigA, M, K), nil
}

// SessionKey returns the derived SRP session key K once authenticated.
func (a *Authenticator) SessionKey() []byte { return a.sessionKey }

// ReadyToAuthorize reports whether Authenticate has succeeded, i.e. an
// authorize (basic/register) request is now in-order.
func (a *Authenticator) ReadyToAuthorize() bool { return a.stage == StageAuthenticated }

func (a *Authenticator) fakeSalt(identity string) *big.Int {
	mac := hmac.New(sha512.New, a.pepper)
	mac.Write([]byte("salt:"))
	mac.Write([]byte(identity))
	return new(big.Int).SetBytes(mac.Sum(nil))
}

func (a *Authenticator) fakeVerifier(identity string, salt *big.Int) *big.Int {
	mac := hmac.New(sha512.New, a.pepper)
	mac.Write([]byte("verifier:"))
	mac.Write([]byte(identity))
	mac.Write(salt.Bytes())
	x := new(big.Int).SetBytes(mac.Sum(nil))
	return new(big.Int).Exp(a.group.G, x, a.group.N)
}
