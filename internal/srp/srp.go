// Package srp implements the SRP-6a key exchange primitives the
// authenticator's host-side state machine needs: deriving B from a
// verifier, computing the shared premaster secret, and deriving the
// session key and proof values.
//
// No SRP implementation exists anywhere in the retrieved reference pack,
// so this is built directly on math/big and crypto/sha512 per RFC 5054 /
// RFC 2945, rather than adapting a third-party library that doesn't
// exist in the corpus.
package srp

import (
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"math/big"
)

// Group is the SRP prime/generator pair. Callers use the standard 2048-bit
// RFC 5054 group.
type Group struct {
	N *big.Int
	G *big.Int
}

// RFC5054Group2048 returns the standard 2048-bit SRP group.
func RFC5054Group2048() Group {
	n, _ := new(big.Int).SetString(
		"AC6BDB41324A9A9BF166DE5E1389582FAF72B6651987EE07FC3192943DB56050A37329CBB4A099ED8193E0757767A13DD52312AB4B03310DCD7F48A9DA04FD50E8083969EDB767B0CF6095179A163AB3661A05FBD5FAAAE82918A9962F0B93B855F97993EC975EEAA80D740ADBF4FF747359D041D5C33EA71D281E446B14773BCA97B43A23FB801676BD207A436C6481F1D2B9078717461A5B9D32E688F87748544523B524B0D57D5EA77A2775D2ECFA032CFBDBF52FB3786160279004E57AE6AF874E7303CE53299CCC041C7BC308D82A5698F3A8D0C38271AE35F8E9DBFBB694B5C803D89F7AE435DE236D525F54759B65E372FCD68EF20FA7111F9E4AFF73",
		16,
	)
	return Group{N: n, G: big.NewInt(2)}
}

func (g Group) h(parts ...[]byte) *big.Int {
	h := sha512.New()
	for _, p := range parts {
		h.Write(p)
	}
	return new(big.Int).SetBytes(h.Sum(nil))
}

func pad(x *big.Int, size int) []byte {
	b := x.Bytes()
	if len(b) >= size {
		return b
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}

// k = H(N, g) per RFC 5054.
func (g Group) k() *big.Int {
	size := (g.N.BitLen() + 7) / 8
	return new(big.Int).Mod(g.h(pad(g.N, size), pad(g.G, size)), g.N)
}

// ServerEphemeral derives b (random) and B = k*v + g^b mod N given the
// stored verifier v.
func (g Group) ServerEphemeral(v *big.Int) (b, B *big.Int, err error) {
	size := (g.N.BitLen() + 7) / 8
	bb := make([]byte, size)
	if _, err := rand.Read(bb); err != nil {
		return nil, nil, err
	}
	b = new(big.Int).Mod(new(big.Int).SetBytes(bb), g.N)
	if b.Sign() == 0 {
		b = big.NewInt(1)
	}
	k := g.k()
	term1 := new(big.Int).Mul(k, v)
	term2 := new(big.Int).Exp(g.G, b, g.N)
	B = new(big.Int).Mod(new(big.Int).Add(term1, term2), g.N)
	return b, B, nil
}

// ScramblingParam computes u = H(A, B).
func (g Group) ScramblingParam(A, B *big.Int) *big.Int {
	size := (g.N.BitLen() + 7) / 8
	return g.h(pad(A, size), pad(B, size))
}

// ServerPremaster computes S = (A * v^u)^b mod N on the host side.
func (g Group) ServerPremaster(A, v, u, b *big.Int) (*big.Int, error) {
	if A.Sign() <= 0 || new(big.Int).Mod(A, g.N).Sign() == 0 {
		return nil, errors.New("srp: invalid client ephemeral A")
	}
	vu := new(big.Int).Exp(v, u, g.N)
	base := new(big.Int).Mod(new(big.Int).Mul(A, vu), g.N)
	return new(big.Int).Exp(base, b, g.N), nil
}

// SessionKey derives K = H(S).
func (g Group) SessionKey(S *big.Int) []byte {
	return g.h(S.Bytes()).Bytes()
}

// ClientProof computes M = H(H(N) XOR H(g), H(I), s, A, B, K).
func (g Group) ClientProof(identity string, s, A, B *big.Int, K []byte) []byte {
	hn := g.h(g.N.Bytes())
	hg := g.h(g.G.Bytes())
	xored := new(big.Int).Xor(hn, hg)
	hi := g.h([]byte(identity))
	return g.h(xored.Bytes(), hi.Bytes(), s.Bytes(), A.Bytes(), B.Bytes(), K).Bytes()
}

// HostProof computes H(A, M, K), returned by the host after verifying M.
func (g Group) HostProof(A *big.Int, M, K []byte) []byte {
	return g.h(A.Bytes(), M, K).Bytes()
}

// Verifier computes v = g^x mod N given x = H(s, I, P), used only by the
// (out-of-scope) credential store when provisioning an identity; kept
// here because it shares the group math.
func (g Group) Verifier(s *big.Int, identity, password string) *big.Int {
	x := g.PrivateKey(s, identity, password)
	return new(big.Int).Exp(g.G, x, g.N)
}

// PrivateKey computes x = H(s, I, P), the client-side private exponent
// also needed to provision or verify a verifier.
func (g Group) PrivateKey(s *big.Int, identity, password string) *big.Int {
	return g.h(s.Bytes(), []byte(identity), []byte(password))
}

// Multiplier exposes k = H(N, g), needed by a client computing its own
// premaster secret from B.
func (g Group) Multiplier() *big.Int {
	return g.k()
}
