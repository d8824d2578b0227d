package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/you-humble/meshbatch/api/internal/domain"
)

const defaultLeeway = 30 * time.Second

type identityKey struct{}

// Authenticator derives the caller identity from a request. With a secret
// configured, bearer tokens must be HS256 JWTs and the identity is their
// subject. Otherwise any credential is reduced to a SHA-256 fingerprint.
// X-API-Key must be one of apiKeys when that list is set; with a secret and
// no list, API keys are refused.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
	keys   map[string]struct{}
}

func NewAuthenticator(secret, issuer string, apiKeys []string) *Authenticator {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(defaultLeeway),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	a := &Authenticator{parser: jwt.NewParser(opts...)}
	if secret != "" {
		a.secret = []byte(secret)
	}
	for _, k := range apiKeys {
		if k = strings.TrimSpace(k); k != "" {
			if a.keys == nil {
				a.keys = make(map[string]struct{}, len(apiKeys))
			}
			a.keys[k] = struct{}{}
		}
	}
	return a
}

func (a *Authenticator) Identify(r *http.Request) (string, error) {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return a.apiKey(key)
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return "", domain.ErrUnauthenticated
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", domain.ErrUnauthenticated
	}

	if a.secret == nil {
		return Fingerprint(token), nil
	}
	return a.verify(token)
}

func (a *Authenticator) apiKey(key string) (string, error) {
	switch {
	case a.keys != nil:
		if _, ok := a.keys[key]; !ok {
			return "", fmt.Errorf("%w: unknown api key", domain.ErrUnauthenticated)
		}
	case a.secret != nil:
		return "", fmt.Errorf("%w: api keys are disabled, use a bearer token", domain.ErrUnauthenticated)
	}
	return Fingerprint(key), nil
}

func (a *Authenticator) verify(token string) (string, error) {
	parsed, err := a.parser.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("%w: token missing sub", domain.ErrUnauthenticated)
	}
	return claims.Subject, nil
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.Identify(r)
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

// Fingerprint hashes an opaque credential so it never reaches the stores.
func Fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "key:" + hex.EncodeToString(sum[:])
}

func identity(ctx context.Context) string {
	id, _ := ctx.Value(identityKey{}).(string)
	return id
}
