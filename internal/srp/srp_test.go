package srp

import (
	"bytes"
	"crypto/rand"
	"math/big"
	"testing"
)

// TestFullHandshake exercises both sides of SRP-6a end to end: a
// verifier is provisioned, the client computes its own ephemeral and
// premaster the RFC 5054 way, and the result must match the host's.
func TestFullHandshake(t *testing.T) {
	g := RFC5054Group2048()
	identity := "wanhive-client"
	password := "correct horse battery staple"

	saltBytes := make([]byte, 16)
	rand.Read(saltBytes)
	s := new(big.Int).SetBytes(saltBytes)

	v := g.Verifier(s, identity, password)

	// Client side (reference math, mirroring what a real client would do).
	x := g.h(s.Bytes(), []byte(identity), []byte(password))
	aBytes := make([]byte, 32)
	rand.Read(aBytes)
	a := new(big.Int).SetBytes(aBytes)
	A := new(big.Int).Exp(g.G, a, g.N)

	// Host side.
	b, B, err := g.ServerEphemeral(v)
	if err != nil {
		t.Fatalf("ServerEphemeral: %v", err)
	}
	u := g.ScramblingParam(A, B)

	hostPremaster, err := g.ServerPremaster(A, v, u, b)
	if err != nil {
		t.Fatalf("ServerPremaster: %v", err)
	}

	// Client premaster: S = (B - k*g^x)^(a + u*x) mod N
	k := g.k()
	gx := new(big.Int).Exp(g.G, x, g.N)
	kgx := new(big.Int).Mod(new(big.Int).Mul(k, gx), g.N)
	base := new(big.Int).Mod(new(big.Int).Sub(B, kgx), g.N)
	exp := new(big.Int).Add(a, new(big.Int).Mul(u, x))
	clientPremaster := new(big.Int).Exp(base, exp, g.N)

	if clientPremaster.Cmp(hostPremaster) != 0 {
		t.Fatalf("premaster mismatch:\nclient=%x\nhost=  %x", clientPremaster, hostPremaster)
	}

	hostK := g.SessionKey(hostPremaster)
	clientK := g.SessionKey(clientPremaster)
	if !bytes.Equal(hostK, clientK) {
		t.Fatal("session key mismatch")
	}

	M := g.ClientProof(identity, s, A, B, clientK)
	hostProof := g.HostProof(A, M, hostK)
	if len(hostProof) == 0 {
		t.Fatal("empty host proof")
	}
}

func TestServerEphemeralRejectsZeroA(t *testing.T) {
	g := RFC5054Group2048()
	v := big.NewInt(12345)
	_, B, err := g.ServerEphemeral(v)
	if err != nil {
		t.Fatalf("ServerEphemeral: %v", err)
	}
	u := g.ScramblingParam(big.NewInt(0), B)
	if _, err := g.ServerPremaster(big.NewInt(0), v, u, big.NewInt(1)); err == nil {
		t.Fatal("expected rejection of A=0 (all-zero client key attack)")
	}
}
