// Package token mints the short-lived signed JWTs the supervisor presents
// as the MQTT password on every (re)connect.
package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock, backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Minter produces compact signed JWTs from a private key, an audience, and
// a lifetime. It is stateless aside from its clock: it never caches a
// minted token, so every call to Mint produces a fresh one with a fresh
// issued-at time.
type Minter struct {
	key      crypto.Signer
	method   jwt.SigningMethod
	audience string
	lifetime time.Duration
	clock    Clock
}

// New constructs a Minter. key must be an *rsa.PrivateKey (signed RS256) or
// an *ecdsa.PrivateKey on the P-256 curve (signed ES256); any other type of
// key fails construction. lifetime must be positive. A nil clock defaults
// to SystemClock.
func New(key crypto.Signer, audience string, lifetime time.Duration, clock Clock) (*Minter, error) {
	if audience == "" {
		return nil, fmt.Errorf("token: audience must not be empty")
	}
	if lifetime <= 0 {
		return nil, fmt.Errorf("token: lifetime must be > 0, got %s", lifetime)
	}
	var method jwt.SigningMethod
	switch k := key.(type) {
	case *rsa.PrivateKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PrivateKey:
		if k.Curve.Params().Name != "P-256" {
			return nil, fmt.Errorf("token: ecdsa key must use curve P-256, got %s", k.Curve.Params().Name)
		}
		method = jwt.SigningMethodES256
	default:
		return nil, fmt.Errorf("token: unsupported private key type %T, want RSA or ECDSA", key)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Minter{key: key, method: method, audience: audience, lifetime: lifetime, clock: clock}, nil
}

// Mint produces a compact signed JWT. Header is {"typ":"JWT","alg":"RS256"}
// or {"typ":"JWT","alg":"ES256"} depending on the key algorithm; claims are
// {"aud": audience, "iat": now, "exp": now+lifetime}, both whole seconds
// since the Unix epoch.
func (m *Minter) Mint() (string, error) {
	now := m.clock.Now()
	claims := jwt.MapClaims{
		"aud": m.audience,
		"iat": now.Unix(),
		"exp": now.Add(m.lifetime).Unix(),
	}
	tok := jwt.NewWithClaims(m.method, claims)
	tok.Header["typ"] = "JWT"
	signed, err := tok.SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}
