package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hmacToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":      "user-1",
		"role":     "ADMIN",
		"tenantId": "acme",
		"iss":      "nextaccounting",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
}

func TestVerify_HMAC(t *testing.T) {
	v, err := NewValidator(nil, "s3cret", "nextaccounting", "")
	require.NoError(t, err)

	p, err := v.Verify(hmacToken(t, "s3cret", validClaims()))
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "user-1", Role: "ADMIN", TenantID: "acme"}, p)
}

func TestVerify_NumericIDClaim(t *testing.T) {
	v, _ := NewValidator(nil, "s3cret", "", "")
	c := validClaims()
	delete(c, "sub")
	c["id"] = float64(42)

	p, err := v.Verify(hmacToken(t, "s3cret", c))
	require.NoError(t, err)
	assert.Equal(t, "42", p.UserID)
}

func TestVerify_Rejects(t *testing.T) {
	v, _ := NewValidator(nil, "s3cret", "nextaccounting", "portal")

	withAud := validClaims()
	withAud["aud"] = "portal"
	_, err := v.Verify(hmacToken(t, "s3cret", withAud))
	require.NoError(t, err)

	cases := map[string]func() string{
		"empty":        func() string { return "" },
		"garbage":      func() string { return "not.a.token" },
		"wrong secret": func() string { return hmacToken(t, "other", withAud) },
		"expired": func() string {
			c := validClaims()
			c["aud"] = "portal"
			c["exp"] = time.Now().Add(-time.Minute).Unix()
			return hmacToken(t, "s3cret", c)
		},
		"no exp": func() string {
			c := validClaims()
			c["aud"] = "portal"
			delete(c, "exp")
			return hmacToken(t, "s3cret", c)
		},
		"wrong issuer": func() string {
			c := validClaims()
			c["aud"] = "portal"
			c["iss"] = "someone-else"
			return hmacToken(t, "s3cret", c)
		},
		"wrong audience": func() string { return hmacToken(t, "s3cret", validClaims()) },
		"no subject": func() string {
			c := validClaims()
			c["aud"] = "portal"
			delete(c, "sub")
			return hmacToken(t, "s3cret", c)
		},
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(tok())
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerify_NoKeysConfigured(t *testing.T) {
	v, err := NewValidator(nil, "", "", "")
	require.NoError(t, err)
	assert.False(t, v.Enabled())
	_, err = v.Verify(hmacToken(t, "anything", validClaims()))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RSACertificate(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "portal-signer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "signer.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))

	v, err := NewValidator([]string{path}, "", "", "")
	require.NoError(t, err)

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims())
	tok.Header["kid"] = "portal-signer"
	signed, err := tok.SignedString(key)
	require.NoError(t, err)

	p, err := v.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.UserID)

	// HMAC is refused when only certificates are configured
	_, err = v.Verify(hmacToken(t, "s3cret", validClaims()))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewValidator_BadPEM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0o600))
	_, err := NewValidator([]string{path}, "", "", "")
	assert.Error(t, err)

	_, err = NewValidator([]string{filepath.Join(t.TempDir(), "missing.pem")}, "", "", "")
	assert.Error(t, err)
}
