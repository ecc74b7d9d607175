package services

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/camden-git/surfaceinspect/apierr"
	"github.com/camden-git/surfaceinspect/logger"
	"github.com/camden-git/surfaceinspect/metrics"
	"github.com/camden-git/surfaceinspect/models"
)

// TokenVerifier checks an ID token issued by the identity provider and
// returns the identity it asserts.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (models.Identity, error)
}

// AuthService turns an Authorization header into a verified identity.
type AuthService struct {
	verifier TokenVerifier
	metrics  *metrics.Metrics
	log      *logger.Logger
}

func NewAuthService(verifier TokenVerifier, m *metrics.Metrics, log *logger.Logger) *AuthService {
	return &AuthService{verifier: verifier, metrics: m, log: log}
}

// BearerToken extracts the token from a "Bearer <token>" header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", apierr.ErrAuthMissing
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apierr.ErrAuthMissing
	}
	return token, nil
}

// Verify returns the identity for header. Failures are ErrAuthMissing,
// ErrAuthInvalid, or ErrAuthUnavailable when the verifier could not reach its
// key source; the reason is logged, never returned to the caller.
func (s *AuthService) Verify(ctx context.Context, header string) (models.Identity, error) {
	token, err := BearerToken(header)
	if err != nil {
		s.metrics.RecordAuthFailure("missing")
		return models.Identity{}, err
	}

	identity, err := s.verifier.VerifyToken(ctx, token)
	if errors.Is(err, apierr.ErrAuthUnavailable) {
		s.metrics.RecordAuthFailure("unavailable")
		s.log.Warn("auth: token verification unavailable", "error", err)
		return models.Identity{}, err
	}
	if err != nil {
		s.metrics.RecordAuthFailure("invalid")
		s.log.Debug("auth: token rejected", "error", err)
		if !errors.Is(err, apierr.ErrAuthInvalid) {
			err = fmt.Errorf("%w: %v", apierr.ErrAuthInvalid, err)
		}
		return models.Identity{}, err
	}
	return identity, nil
}

// GoogleSecureTokenCertsURL publishes the x509 certificates Firebase signs ID
// tokens with, keyed by kid.
const GoogleSecureTokenCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

const (
	certsCacheKey      = "securetoken-certs"
	defaultCertsMaxAge = time.Hour
	certsFetchTimeout  = 10 * time.Second
	maxUIDLength       = 128
	clockSkew          = 5 * time.Second
)

var maxAgePattern = regexp.MustCompile(`max-age=(\d+)`)

type firebaseClaims struct {
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	AuthTime int64  `json:"auth_time,omitempty"`
	jwt.RegisteredClaims
}

// CertVerifier verifies Firebase ID tokens locally against Google's published
// signing certificates. Certificates are cached for the max-age the endpoint
// advertises.
type CertVerifier struct {
	projectID string
	issuer    string
	certsURL  string
	client    *http.Client
	cache     *gocache.Cache
	fetch     singleflight.Group
	now       func() time.Time
	log       *logger.Logger
}

func NewCertVerifier(projectID string, client *http.Client, log *logger.Logger) (*CertVerifier, error) {
	if projectID == "" {
		return nil, errors.New("firebase project id is required to verify ID tokens")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &CertVerifier{
		projectID: projectID,
		issuer:    "https://securetoken.google.com/" + projectID,
		certsURL:  GoogleSecureTokenCertsURL,
		client:    client,
		cache:     gocache.New(defaultCertsMaxAge, 10*time.Minute),
		now:       time.Now,
		log:       log,
	}, nil
}

func (v *CertVerifier) VerifyToken(ctx context.Context, tokenString string) (models.Identity, error) {
	claims := &firebaseClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.projectID),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(v.now),
	)

	var keysErr error
	_, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}
		keys, err := v.publicKeys(ctx)
		if err != nil {
			keysErr = err
			return nil, err
		}
		key, ok := keys[kid]
		if !ok {
			return nil, fmt.Errorf("no certificate for kid %q", kid)
		}
		return key, nil
	})
	if keysErr != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", apierr.ErrAuthUnavailable, keysErr)
	}
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", apierr.ErrAuthInvalid, err)
	}

	if claims.Subject == "" || len(claims.Subject) > maxUIDLength {
		return models.Identity{}, fmt.Errorf("%w: invalid subject", apierr.ErrAuthInvalid)
	}
	if claims.AuthTime > v.now().Add(clockSkew).Unix() {
		return models.Identity{}, fmt.Errorf("%w: auth_time is in the future", apierr.ErrAuthInvalid)
	}

	return models.Identity{UID: claims.Subject, Email: claims.Email, DisplayName: claims.Name}, nil
}

// publicKeys returns the cached signing keys, fetching them once for all
// concurrent callers when the cache is empty. The fetch is shared, so it does
// not inherit the cancellation of whichever request started it.
func (v *CertVerifier) publicKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	if cached, ok := v.cache.Get(certsCacheKey); ok {
		return cached.(map[string]*rsa.PublicKey), nil
	}

	result, err, _ := v.fetch.Do(certsCacheKey, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), certsFetchTimeout)
		defer cancel()

		keys, ttl, err := v.fetchCerts(fetchCtx)
		if err != nil {
			return nil, err
		}
		v.cache.Set(certsCacheKey, keys, ttl)
		v.log.Debug("auth: refreshed signing certificates", "count", len(keys), "ttl", ttl.String())
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]*rsa.PublicKey), nil
}

func (v *CertVerifier) fetchCerts(ctx context.Context) (map[string]*rsa.PublicKey, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch signing certificates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("signing certificates endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read signing certificates: %w", err)
	}

	var pems map[string]string
	if err := json.Unmarshal(body, &pems); err != nil {
		return nil, 0, fmt.Errorf("failed to decode signing certificates: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(pems))
	for kid, pem := range pems {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			v.log.Warn("auth: skipping unparsable certificate", "kid", kid, "error", err)
			continue
		}
		keys[kid] = key
	}
	if len(keys) == 0 {
		return nil, 0, errors.New("signing certificates endpoint returned no usable keys")
	}

	return keys, cacheTTL(resp.Header.Get("Cache-Control")), nil
}

func cacheTTL(cacheControl string) time.Duration {
	m := maxAgePattern.FindStringSubmatch(cacheControl)
	if m == nil {
		return defaultCertsMaxAge
	}
	seconds, err := strconv.Atoi(m[1])
	if err != nil || seconds <= 0 {
		return defaultCertsMaxAge
	}
	return time.Duration(seconds) * time.Second
}
