package pkg

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rsa"
	_ "crypto/sha256" // register SHA-256/224 for crypto.Hash.New
	_ "crypto/sha512" // register SHA-384/512 for crypto.Hash.New
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// JWTVerifier validates JWTs per the AuthJwt contract (§4.8): the token header
// names its algorithm, the algorithm must be one the verifier was configured
// with, every configured key for that algorithm is tried until one verifies,
// and the registered claims are checked against allowed issuer/subject/audience
// sets with a configurable leeway applied to exp/nbf.
//
// Supported algorithms: HS256/HS384/HS512 (HMAC), RS256/RS384/RS512
// (RSASSA-PKCS1-v1_5), ES256/ES384/ES512 (ECDSA with JOSE r||s signatures).
// All verification is stdlib crypto, the same primitives auth.go's HS256-only
// codec already used.
type JWTVerifier struct {
	hmacKeys  map[string][][]byte
	rsaKeys   map[string][]*rsa.PublicKey
	ecdsaKeys map[string][]*ecdsa.PublicKey

	issuers   map[string]struct{}
	subjects  map[string]struct{}
	audiences map[string]struct{}
	leeway    time.Duration
}

func NewJWTVerifier(leeway time.Duration) *JWTVerifier {
	return &JWTVerifier{
		hmacKeys:  make(map[string][][]byte),
		rsaKeys:   make(map[string][]*rsa.PublicKey),
		ecdsaKeys: make(map[string][]*ecdsa.PublicKey),
		issuers:   make(map[string]struct{}),
		subjects:  make(map[string]struct{}),
		audiences: make(map[string]struct{}),
		leeway:    leeway,
	}
}

func jwtHashFor(alg string) (crypto.Hash, error) {
	switch {
	case strings.HasSuffix(alg, "256"):
		return crypto.SHA256, nil
	case strings.HasSuffix(alg, "384"):
		return crypto.SHA384, nil
	case strings.HasSuffix(alg, "512"):
		return crypto.SHA512, nil
	default:
		return 0, fmt.Errorf("unsupported algorithm %q", alg)
	}
}

// AddHMACKey registers a shared secret for an HS* algorithm.
func (v *JWTVerifier) AddHMACKey(alg string, secret []byte) error {
	if !strings.HasPrefix(alg, "HS") {
		return NewCoreError(KindInvalidInput, fmt.Sprintf("%q is not an HMAC algorithm", alg))
	}
	if _, err := jwtHashFor(alg); err != nil {
		return NewCoreError(KindInvalidInput, err.Error())
	}
	v.hmacKeys[alg] = append(v.hmacKeys[alg], secret)
	return nil
}

// AddRSAKey registers a public key for an RS* algorithm.
func (v *JWTVerifier) AddRSAKey(alg string, key *rsa.PublicKey) error {
	if !strings.HasPrefix(alg, "RS") {
		return NewCoreError(KindInvalidInput, fmt.Sprintf("%q is not an RSA algorithm", alg))
	}
	if _, err := jwtHashFor(alg); err != nil {
		return NewCoreError(KindInvalidInput, err.Error())
	}
	v.rsaKeys[alg] = append(v.rsaKeys[alg], key)
	return nil
}

// AddECDSAKey registers a public key for an ES* algorithm.
func (v *JWTVerifier) AddECDSAKey(alg string, key *ecdsa.PublicKey) error {
	if !strings.HasPrefix(alg, "ES") {
		return NewCoreError(KindInvalidInput, fmt.Sprintf("%q is not an ECDSA algorithm", alg))
	}
	if _, err := jwtHashFor(alg); err != nil {
		return NewCoreError(KindInvalidInput, err.Error())
	}
	v.ecdsaKeys[alg] = append(v.ecdsaKeys[alg], key)
	return nil
}

// RequireIssuers restricts accepted "iss" claims; an empty set means any.
func (v *JWTVerifier) RequireIssuers(issuers ...string) {
	for _, i := range issuers {
		v.issuers[i] = struct{}{}
	}
}

// RequireSubjects restricts accepted "sub" claims; an empty set means any.
func (v *JWTVerifier) RequireSubjects(subjects ...string) {
	for _, s := range subjects {
		v.subjects[s] = struct{}{}
	}
}

// RequireAudiences restricts accepted "aud" claims (any overlap passes); an
// empty set means any.
func (v *JWTVerifier) RequireAudiences(audiences ...string) {
	for _, a := range audiences {
		v.audiences[a] = struct{}{}
	}
}

// VerifiedClaims is the registered-claim subset AuthJwt needs, plus the raw
// claim map for application code.
type VerifiedClaims struct {
	Issuer    string
	Subject   string
	Audience  []string
	UserID    string
	ExpiresAt int64
	NotBefore int64
	IssuedAt  int64
	Raw       map[string]interface{}
}

type jwtHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// Verify checks the token's structure, algorithm, signature, time bounds, and
// claim sets, returning the claims on success. Every failure path is a 401-kind
// authentication error; nothing partial escapes.
func (v *JWTVerifier) Verify(token string) (*VerifiedClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, NewAuthenticationError("malformed JWT")
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, NewAuthenticationError("malformed JWT header")
	}
	var header jwtHeader
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, NewAuthenticationError("malformed JWT header")
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, NewAuthenticationError("malformed JWT signature")
	}
	message := []byte(parts[0] + "." + parts[1])

	if !v.verifySignature(header.Alg, message, sig) {
		return nil, NewAuthenticationError("JWT signature verification failed")
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, NewAuthenticationError("malformed JWT payload")
	}
	claims, err := parseVerifiedClaims(payloadJSON)
	if err != nil {
		return nil, NewAuthenticationError("malformed JWT claims")
	}

	now := time.Now()
	if claims.ExpiresAt != 0 && now.After(time.Unix(claims.ExpiresAt, 0).Add(v.leeway)) {
		return nil, NewAuthenticationError("JWT has expired")
	}
	if claims.NotBefore != 0 && now.Before(time.Unix(claims.NotBefore, 0).Add(-v.leeway)) {
		return nil, NewAuthenticationError("JWT is not yet valid")
	}

	if len(v.issuers) > 0 {
		if _, ok := v.issuers[claims.Issuer]; !ok {
			return nil, NewAuthenticationError("JWT issuer is not allowed")
		}
	}
	if len(v.subjects) > 0 {
		if _, ok := v.subjects[claims.Subject]; !ok {
			return nil, NewAuthenticationError("JWT subject is not allowed")
		}
	}
	if len(v.audiences) > 0 {
		allowed := false
		for _, aud := range claims.Audience {
			if _, ok := v.audiences[aud]; ok {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, NewAuthenticationError("JWT audience is not allowed")
		}
	}

	return claims, nil
}

// verifySignature tries every configured key for the token's algorithm; an
// algorithm with no configured keys fails outright (the unknown-alg rejection
// §8 requires — a token can never select its own unverified algorithm).
func (v *JWTVerifier) verifySignature(alg string, message, sig []byte) bool {
	hash, err := jwtHashFor(alg)
	if err != nil {
		return false
	}

	switch {
	case strings.HasPrefix(alg, "HS"):
		for _, secret := range v.hmacKeys[alg] {
			mac := hmac.New(hash.New, secret)
			mac.Write(message)
			if hmac.Equal(sig, mac.Sum(nil)) {
				return true
			}
		}
	case strings.HasPrefix(alg, "RS"):
		h := hash.New()
		h.Write(message)
		digest := h.Sum(nil)
		for _, key := range v.rsaKeys[alg] {
			if rsa.VerifyPKCS1v15(key, hash, digest, sig) == nil {
				return true
			}
		}
	case strings.HasPrefix(alg, "ES"):
		if len(sig)%2 != 0 {
			return false
		}
		r := new(big.Int).SetBytes(sig[:len(sig)/2])
		s := new(big.Int).SetBytes(sig[len(sig)/2:])
		h := hash.New()
		h.Write(message)
		digest := h.Sum(nil)
		for _, key := range v.ecdsaKeys[alg] {
			if ecdsa.Verify(key, digest, r, s) {
				return true
			}
		}
	}
	return false
}

func parseVerifiedClaims(payload []byte) (*VerifiedClaims, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}

	claims := &VerifiedClaims{Raw: raw}
	claims.Issuer, _ = raw["iss"].(string)
	claims.Subject, _ = raw["sub"].(string)
	claims.UserID, _ = raw["user_id"].(string)
	claims.ExpiresAt = claimInt64(raw["exp"])
	claims.NotBefore = claimInt64(raw["nbf"])
	claims.IssuedAt = claimInt64(raw["iat"])

	switch aud := raw["aud"].(type) {
	case string:
		claims.Audience = []string{aud}
	case []interface{}:
		for _, a := range aud {
			if s, ok := a.(string); ok {
				claims.Audience = append(claims.Audience, s)
			}
		}
	}
	return claims, nil
}

func claimInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}
