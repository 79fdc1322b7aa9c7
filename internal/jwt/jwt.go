package jwt

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Principal is the authenticated portal or admin user behind a token.
type Principal struct {
	UserID   string
	Role     string
	TenantID string
}

// Validator verifies session tokens signed either with one of the configured
// certificates (RS/ES/EdDSA) or with a shared HMAC secret.
type Validator struct {
	keys     []*x509.Certificate
	secret   []byte
	iss, aud string
}

func NewValidator(pubPemPaths []string, hmacSecret, issuer, audience string) (*Validator, error) {
	var certs []*x509.Certificate
	for _, p := range pubPemPaths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		block, _ := pem.Decode(b)
		if block == nil {
			return nil, fmt.Errorf("%s: invalid pem", p)
		}
		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		certs = append(certs, c)
	}
	v := &Validator{keys: certs, iss: issuer, aud: audience}
	if hmacSecret != "" {
		v.secret = []byte(hmacSecret)
	}
	return v, nil
}

// Enabled reports whether any verification key is configured.
func (v *Validator) Enabled() bool {
	return len(v.keys) > 0 || len(v.secret) > 0
}

func (v *Validator) Verify(tokenStr string) (Principal, error) {
	if tokenStr == "" || !v.Enabled() {
		return Principal{}, ErrInvalidToken
	}
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.iss != "" {
		opts = append(opts, jwt.WithIssuer(v.iss))
	}
	if v.aud != "" {
		opts = append(opts, jwt.WithAudience(v.aud))
	}
	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, v.keyFor, opts...)
	if err != nil || !tok.Valid {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	p := Principal{
		UserID:   claimString(claims, "sub"),
		Role:     claimString(claims, "role"),
		TenantID: claimString(claims, "tenantId"),
	}
	if p.UserID == "" {
		p.UserID = claimString(claims, "id")
	}
	if p.UserID == "" {
		return Principal{}, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return p, nil
}

func (v *Validator) keyFor(t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(v.secret) == 0 {
			return nil, errors.New("hmac tokens not accepted")
		}
		return v.secret, nil
	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS, *jwt.SigningMethodECDSA, *jwt.SigningMethodEd25519:
		if len(v.keys) == 0 {
			return nil, errors.New("no public keys configured")
		}
		kid, _ := t.Header["kid"].(string)
		for _, c := range v.keys {
			if c.Subject.CommonName == kid {
				return c.PublicKey, nil
			}
		}
		return v.keys[0].PublicKey, nil
	default:
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
}

func claimString(c jwt.MapClaims, key string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}
