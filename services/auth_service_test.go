package services

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/surfaceinspect/apierr"
	"github.com/camden-git/surfaceinspect/logger"
	"github.com/camden-git/surfaceinspect/models"
)

const (
	testProjectID = "inspect-test"
	testCertsURL  = "https://certs.test/x509"
)

func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

type signingKey struct {
	kid  string
	key  *rsa.PrivateKey
	cert string
}

func newSigningKey(t *testing.T, kid string) signingKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "securetoken.system.gserviceaccount.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return signingKey{
		kid:  kid,
		key:  key,
		cert: string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
	}
}

func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":       "https://securetoken.google.com/" + testProjectID,
		"aud":       testProjectID,
		"sub":       "user-1",
		"iat":       now.Add(-time.Minute).Unix(),
		"exp":       now.Add(time.Hour).Unix(),
		"auth_time": now.Add(-time.Minute).Unix(),
		"email":     "inspector@example.com",
		"name":      "Ada Inspector",
	}
}

func (k signingKey) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = k.kid
	signed, err := token.SignedString(k.key)
	require.NoError(t, err)
	return signed
}

func newTestCertVerifier(t *testing.T, keys ...signingKey) *CertVerifier {
	t.Helper()
	setupHTTPMock(t)

	body := map[string]string{}
	for _, k := range keys {
		body[k.kid] = k.cert
	}
	httpmock.RegisterResponder("GET", testCertsURL, func(req *http.Request) (*http.Response, error) {
		resp, err := httpmock.NewJsonResponse(200, body)
		if err != nil {
			return nil, err
		}
		resp.Header.Set("Cache-Control", "public, max-age=19302, must-revalidate, no-transform")
		return resp, nil
	})

	v, err := NewCertVerifier(testProjectID, nil, logger.Nop())
	require.NoError(t, err)
	v.certsURL = testCertsURL
	return v
}

func TestBearerToken(t *testing.T) {
	for _, header := range []string{"", "Bearer", "Bearer ", "Basic abc", "Token abc", "abc"} {
		_, err := BearerToken(header)
		assert.ErrorIs(t, err, apierr.ErrAuthMissing, header)
	}

	tok, err := BearerToken("Bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", tok)

	tok, err = BearerToken("bearer   abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}

func TestCertVerifier_ValidToken(t *testing.T) {
	key := newSigningKey(t, "kid-1")
	v := newTestCertVerifier(t, key)

	identity, err := v.VerifyToken(context.Background(), key.sign(t, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, models.Identity{UID: "user-1", Email: "inspector@example.com", DisplayName: "Ada Inspector"}, identity)

	// second verification is served from the certificate cache
	_, err = v.VerifyToken(context.Background(), key.sign(t, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestCertVerifier_Rejections(t *testing.T) {
	key := newSigningKey(t, "kid-1")
	stranger := newSigningKey(t, "kid-1")
	v := newTestCertVerifier(t, key)

	with := func(k string, val any) jwt.MapClaims {
		c := validClaims()
		if val == nil {
			delete(c, k)
		} else {
			c[k] = val
		}
		return c
	}

	hsToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("secret"))
	require.NoError(t, err)

	cases := map[string]string{
		"expired":          key.sign(t, with("exp", time.Now().Add(-time.Hour).Unix())),
		"no expiry":        key.sign(t, with("exp", nil)),
		"wrong audience":   key.sign(t, with("aud", "other-project")),
		"wrong issuer":     key.sign(t, with("iss", "https://securetoken.google.com/other-project")),
		"empty subject":    key.sign(t, with("sub", "")),
		"issued in future": key.sign(t, with("iat", time.Now().Add(time.Hour).Unix())),
		"auth in future":   key.sign(t, with("auth_time", time.Now().Add(time.Hour).Unix())),
		"unknown kid":      signingKey{kid: "kid-2", key: key.key}.sign(t, validClaims()),
		"foreign key":      stranger.sign(t, validClaims()),
		"hmac":             hsToken,
		"garbage":          "not-a-jwt",
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.VerifyToken(context.Background(), token)
			assert.ErrorIs(t, err, apierr.ErrAuthInvalid)
		})
	}
}

func TestCertVerifier_CertEndpointDown(t *testing.T) {
	key := newSigningKey(t, "kid-1")
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", testCertsURL, httpmock.NewStringResponder(503, "unavailable"))

	v, err := NewCertVerifier(testProjectID, nil, logger.Nop())
	require.NoError(t, err)
	v.certsURL = testCertsURL

	_, err = v.VerifyToken(context.Background(), key.sign(t, validClaims()))
	assert.ErrorIs(t, err, apierr.ErrAuthUnavailable)
	assert.NotErrorIs(t, err, apierr.ErrAuthInvalid)
	assert.Equal(t, "auth_unavailable", apierr.From(err).Code)

	_, err = NewAuthService(v, nil, logger.Nop()).Verify(context.Background(), "Bearer "+key.sign(t, validClaims()))
	assert.ErrorIs(t, err, apierr.ErrAuthUnavailable)
}

func TestCertVerifier_FetchIgnoresCallerCancellation(t *testing.T) {
	key := newSigningKey(t, "kid-1")
	v := newTestCertVerifier(t, key)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	identity, err := v.VerifyToken(ctx, key.sign(t, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.UID)
}

func TestNewCertVerifierRequiresProject(t *testing.T) {
	_, err := NewCertVerifier("", nil, logger.Nop())
	assert.Error(t, err)
}

func TestCacheTTL(t *testing.T) {
	assert.Equal(t, 19302*time.Second, cacheTTL("public, max-age=19302, must-revalidate"))
	assert.Equal(t, defaultCertsMaxAge, cacheTTL(""))
	assert.Equal(t, defaultCertsMaxAge, cacheTTL("max-age=0"))
}

type staticVerifier struct {
	identity models.Identity
	err      error
}

func (s staticVerifier) VerifyToken(ctx context.Context, token string) (models.Identity, error) {
	return s.identity, s.err
}

func TestAuthService_Verify(t *testing.T) {
	ok := NewAuthService(staticVerifier{identity: models.Identity{UID: "user-1"}}, nil, logger.Nop())

	_, err := ok.Verify(context.Background(), "")
	assert.ErrorIs(t, err, apierr.ErrAuthMissing)

	identity, err := ok.Verify(context.Background(), "Bearer tok")
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.UID)

	// verifier errors are always reported as invalid credentials
	failing := NewAuthService(staticVerifier{err: assert.AnError}, nil, logger.Nop())
	_, err = failing.Verify(context.Background(), "Bearer tok")
	assert.ErrorIs(t, err, apierr.ErrAuthInvalid)
}
