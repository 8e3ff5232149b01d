package auth

import (
	"errors"
	"math/big"
	"testing"

	"github.com/wanhive/overlay-hub/internal/srp"
)

type memStore struct {
	salt, verifier *big.Int
	group          uint8
}

func (m *memStore) Lookup(identity string) (*big.Int, *big.Int, uint8, error) {
	if identity != "known" {
		return nil, nil, 0, ErrNotFound
	}
	return m.salt, m.verifier, m.group, nil
}

func provision(identity, password string) (*big.Int, *big.Int) {
	g := srp.RFC5054Group2048()
	salt := big.NewInt(0x1234)
	verifier := g.Verifier(salt, identity, password)
	return salt, verifier
}

func clientA(g srp.Group, a *big.Int) *big.Int {
	return new(big.Int).Exp(g.G, a, g.N)
}

func TestHandshakeKnownIdentity(t *testing.T) {
	g := srp.RFC5054Group2048()
	salt, verifier := provision("known", "secret")
	store := &memStore{salt: salt, verifier: verifier, group: 7}
	a := New(store, []byte("pepper"))

	clientSecret := big.NewInt(0xABCDEF)
	A := clientA(g, clientSecret)

	gotSalt, B, err := a.Identify("known", A)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if gotSalt.Cmp(salt) != 0 {
		t.Fatal("salt mismatch")
	}
	if a.Unauthenticable() {
		t.Fatal("known identity should not be marked unauthenticable")
	}

	u := g.ScramblingParam(A, B)
	x := g.PrivateKey(salt, "known", "secret")
	k := g.Multiplier()
	gx := new(big.Int).Exp(g.G, x, g.N)
	kgx := new(big.Int).Mod(new(big.Int).Mul(k, gx), g.N)
	base := new(big.Int).Mod(new(big.Int).Sub(B, kgx), g.N)
	exp := new(big.Int).Add(clientSecret, new(big.Int).Mul(u, x))
	S := new(big.Int).Exp(base, exp, g.N)
	K := g.SessionKey(S)
	M := g.ClientProof("known", salt, A, B, K)

	hostProof, err := a.Authenticate(M)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	want := g.HostProof(A, M, K)
	if string(hostProof) != string(want) {
		t.Fatal("host proof mismatch")
	}
	if !a.ReadyToAuthorize() {
		t.Fatal("expected ready to authorize after successful authenticate")
	}
	if a.Group() != 7 {
		t.Fatalf("group=%d, want 7", a.Group())
	}
}

func TestHandshakeUnknownIdentityIsDeterministic(t *testing.T) {
	store := &memStore{}
	pepper := []byte("pepper")
	a1 := New(store, pepper)
	a2 := New(store, pepper)

	A := big.NewInt(42)
	salt1, _, err := a1.Identify("ghost", A)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	salt2, _, err := a2.Identify("ghost", A)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if salt1.Cmp(salt2) != 0 {
		t.Fatal("fake salt must be deterministic across probes for the same identity")
	}
	if !a1.Unauthenticable() {
		t.Fatal("unknown identity should be marked unauthenticable")
	}
	if _, err := a1.Authenticate([]byte("anything")); err == nil {
		t.Fatal("expected authenticate to fail on fake path")
	}
}

func TestOutOfOrderRejected(t *testing.T) {
	store := &memStore{}
	a := New(store, []byte("pepper"))
	if _, err := a.Authenticate([]byte("x")); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("err=%v, want ErrOutOfOrder", err)
	}
}
