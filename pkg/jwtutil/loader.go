package jwtutil

import "fmt"

// LoadAndBuild reads the session signing key from cfg.PubPath plus any
// rotated keys, and returns a Verifier bound to the configured issuer and
// audience.
func LoadAndBuild(cfg JWTConfig) (*Verifier, error) {
	pub, err := LoadRSAPublicKeyFromPEM(cfg.PubPath)
	if err != nil {
		return nil, fmt.Errorf("load jwt public key from %s: %w", cfg.PubPath, err)
	}
	rotated, err := LoadKeySet(cfg.RotatedKeys)
	if err != nil {
		return nil, err
	}

	v := NewVerifier(pub, cfg.Issuer, cfg.Audience)
	for kid, k := range rotated {
		v.AddKey(kid, k)
	}
	return v, nil
}
