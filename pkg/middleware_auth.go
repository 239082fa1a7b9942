package pkg

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// AuthBasic checks an Authorization: Basic header against a configured
// username/credential table. Credential values are bcrypt hashes (produced by
// HashBasicCredential); a value without a bcrypt prefix is treated as a
// plaintext secret and compared constant-time, the same way security_impl.go
// compares CSRF tokens and cookie ciphertexts.
type AuthBasic struct {
	baseLayer
	realm string
	creds map[string]string // username -> bcrypt hash (or plaintext secret)
}

func NewAuthBasic(realm string, creds map[string]string) *AuthBasic {
	return &AuthBasic{realm: realm, creds: creds}
}

// HashBasicCredential bcrypt-hashes a password for storage in an AuthBasic
// credential table.
func HashBasicCredential(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash credential: %w", err)
	}
	return string(hash), nil
}

func (a *AuthBasic) Priority() MiddlewarePriority { return PriorityAuthBasic }

func (a *AuthBasic) Before(ctx Context) (bool, error) {
	req := ctx.Request()
	user, pass, ok := parseBasicAuth(req.Header.Get("Authorization"))
	if !ok || !a.validCreds(user, pass) {
		ctx.Response().SetHeader("WWW-Authenticate", `Basic realm="`+a.realm+`"`)
		return true, NewCoreError(KindInvalidInput, "basic auth required").WithStatus(http.StatusUnauthorized)
	}
	req.UserID = user
	return false, nil
}

func (a *AuthBasic) validCreds(user, pass string) bool {
	want, ok := a.creds[user]
	if !ok {
		return false
	}
	if isBcryptHash(want) {
		return bcrypt.CompareHashAndPassword([]byte(want), []byte(pass)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(pass)) == 1
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

func parseBasicAuth(header string) (user, pass string, ok bool) {
	const prefix = "Basic "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// AuthJwt validates a JWT pulled from a header (with an optional prefix to
// strip, "Bearer " on Authorization by default) or a query parameter, then runs
// it through a JWTVerifier: algorithm allow-list, multi-key signature
// verification, issuer/subject/audience sets, and exp/nbf leeway. Any failure
// is a 401 and the chain stops — nothing downstream ever sees a request with a
// bad token.
type AuthJwt struct {
	baseLayer
	verifier *JWTVerifier
	header   string
	prefix   string
	query    string
}

func NewAuthJwt(verifier *JWTVerifier, header, prefix, query string) *AuthJwt {
	if header == "" && query == "" {
		header = "Authorization"
	}
	if header == "Authorization" && prefix == "" {
		prefix = "Bearer "
	}
	return &AuthJwt{verifier: verifier, header: header, prefix: prefix, query: query}
}

func (a *AuthJwt) Priority() MiddlewarePriority { return PriorityAuthJwt }

func (a *AuthJwt) Before(ctx Context) (bool, error) {
	token := a.extractToken(ctx.Request())
	if token == "" {
		return true, NewAuthenticationError("missing JWT")
	}
	claims, err := a.verifier.Verify(token)
	if err != nil {
		return true, err
	}
	req := ctx.Request()
	if claims.UserID != "" {
		req.UserID = claims.UserID
	} else {
		req.UserID = claims.Subject
	}
	return false, nil
}

func (a *AuthJwt) extractToken(req *Request) string {
	if a.header != "" {
		v := req.Header.Get(a.header)
		if v != "" {
			if a.prefix != "" {
				if len(v) <= len(a.prefix) || !strings.EqualFold(v[:len(a.prefix)], a.prefix) {
					return ""
				}
				return v[len(a.prefix):]
			}
			return v
		}
	}
	if a.query != "" {
		return req.Query[a.query]
	}
	return ""
}

// AuthAPIKey validates a request against SecurityManager.AuthenticateAccessToken,
// looking the key up from a header or query parameter.
type AuthAPIKey struct {
	baseLayer
	security SecurityManager
	header   string
	query    string
}

func NewAuthAPIKey(security SecurityManager, header, query string) *AuthAPIKey {
	if header == "" {
		header = "X-API-Key"
	}
	return &AuthAPIKey{security: security, header: header, query: query}
}

func (a *AuthAPIKey) Priority() MiddlewarePriority { return PriorityAuthAPIKey }

func (a *AuthAPIKey) Before(ctx Context) (bool, error) {
	req := ctx.Request()
	key := req.Header.Get(a.header)
	if key == "" && a.query != "" {
		key = req.Query[a.query]
	}
	if key == "" {
		return true, NewCoreError(KindInvalidInput, "missing api key").WithStatus(http.StatusUnauthorized)
	}
	token, err := a.security.AuthenticateAccessToken(key)
	if err != nil || token == nil {
		return true, NewCoreError(KindInvalidInput, "invalid api key").WithStatus(http.StatusUnauthorized)
	}
	req.UserID = token.UserID
	req.AccessToken = token.Token
	return false, nil
}

// RateLimit enforces SecurityManager.CheckRateLimit against the matched route
// pattern as the resource name, so distinct routes get independent buckets.
// The underlying key scheme (ratelimit:{client}:{resource}:{minute-of-hour})
// lives in security_impl.go's CheckRateLimit/CheckGlobalRateLimit.
type RateLimit struct {
	baseLayer
	security SecurityManager
	resource string
	global   bool
}

func NewRateLimit(security SecurityManager, resource string, global bool) *RateLimit {
	return &RateLimit{security: security, resource: resource, global: global}
}

func (r *RateLimit) Priority() MiddlewarePriority { return PriorityRateLimit }

func (r *RateLimit) Before(ctx Context) (bool, error) {
	var err error
	if r.global {
		err = r.security.CheckGlobalRateLimit(ctx)
	} else {
		resource := r.resource
		if resource == "" {
			resource = ctx.Request().URL.Path
		}
		err = r.security.CheckRateLimit(ctx, resource)
	}
	if err != nil {
		if fe, ok := GetFrameworkError(err); ok && fe.StatusCode == http.StatusTooManyRequests {
			ctx.Response().SetHeader("Retry-After", strconv.Itoa(retryAfterSeconds()))
		}
		return true, err
	}
	return false, nil
}

// retryAfterSeconds derives Retry-After from the ratelimit key's bucket TTL:
// the key resets at the next minute boundary (§4.8's
// ratelimit:{client}:{resource}:{minute-of-hour} scheme), so the remaining
// window is at most 60s.
func retryAfterSeconds() int {
	now := time.Now()
	return 60 - now.Second()
}
