package jwtutil

import (
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// clock skew tolerated between the session issuer and this service
const leeway = 30 * time.Second

// Verifier checks RS-signed session tokens. Tokens carrying a known "kid"
// are checked against that key; all others against the default key.
type Verifier struct {
	pubKeys  map[string]*rsa.PublicKey
	defPub   *rsa.PublicKey
	issuer   string
	audience string
}

func NewVerifier(def *rsa.PublicKey, issuer, audience string) *Verifier {
	return &Verifier{
		pubKeys:  map[string]*rsa.PublicKey{},
		defPub:   def,
		issuer:   issuer,
		audience: audience,
	}
}

// AddKey registers a rotated signing key. Call before serving traffic.
func (v *Verifier) AddKey(kid string, pub *rsa.PublicKey) {
	v.pubKeys[kid] = pub
}

func (v *Verifier) keyFor(t *jwt.Token) (any, error) {
	if kid, _ := t.Header["kid"].(string); kid != "" {
		if k, ok := v.pubKeys[kid]; ok {
			return k, nil
		}
	}
	if v.defPub == nil {
		return nil, ErrInvalidToken
	}
	return v.defPub, nil
}

func (v *Verifier) parser() *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	return jwt.NewParser(opts...)
}

// ParseAndValidate returns the claims of a valid token that names a user.
func (v *Verifier) ParseAndValidate(tokenStr string) (*Claims, error) {
	claims := new(Claims)
	token, err := v.parser().ParseWithClaims(tokenStr, claims, v.keyFor)
	if err != nil || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
