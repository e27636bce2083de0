package jwtutil

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of the session token the biometrics service reads.
// The subject is always carried in "uid".
type Claims struct {
	UserID   string `json:"uid"`
	Device   string `json:"device,omitempty"`
	Role     string `json:"role,omitempty"`
	UserType string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

type JWTConfig struct {
	PubPath  string
	Issuer   string
	Audience string
	// RotatedKeys maps a token "kid" header to a PEM public key path.
	RotatedKeys map[string]string
}
