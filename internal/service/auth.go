package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stayline/concierge/internal/config"
	"github.com/stayline/concierge/internal/domain"
)

const (
	tokenAudience = "concierge"
	tokenIssuer   = "concierge-core"
)

// Principal identifies an authenticated caller: the guest or staff
// subject and the tenant whose data they may touch.
type Principal struct {
	Subject  string   `json:"sub"`
	TenantID string   `json:"tenant_id"`
	Scopes   []string `json:"scopes,omitempty"`
}

// HasScope reports whether the principal carries the given scope.
func (p *Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// tokenClaims is the JWT payload carried by access tokens.
type tokenClaims struct {
	Subject  string   `json:"sub"`
	TenantID string   `json:"tenant_id"`
	Scopes   []string `json:"scopes,omitempty"`
	IssuedAt int64    `json:"iat"`
	Expiry   int64    `json:"exp"`
	JTI      string   `json:"jti"`
	Audience string   `json:"aud"`
	Issuer   string   `json:"iss"`
}

// AuthService signs and verifies bearer tokens. Tenants are minted
// tokens out of band; this service only validates them at the edge.
type AuthService struct {
	cfg    *config.Auth
	secret []byte
}

// NewAuthService creates a token verifier from auth configuration.
func NewAuthService(cfg *config.Auth) *AuthService {
	return &AuthService{cfg: cfg, secret: []byte(cfg.JWTSecret)}
}

// IssueToken signs a JWT for the given principal. Used by operator
// tooling and tests; production tokens come from the tenant IdP signed
// with the shared secret.
func (s *AuthService) IssueToken(p Principal) (string, error) {
	if p.Subject == "" || p.TenantID == "" {
		return "", fmt.Errorf("%w: subject and tenant_id are required", domain.ErrValidation)
	}

	now := time.Now()
	claims := tokenClaims{
		Subject:  p.Subject,
		TenantID: p.TenantID,
		Scopes:   p.Scopes,
		IssuedAt: now.Unix(),
		Expiry:   now.Add(s.cfg.AccessTokenExpiry).Unix(),
		JTI:      uuid.NewString(),
		Audience: tokenAudience,
		Issuer:   tokenIssuer,
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}

	signingInput := jwtHeader + "." + base64URLEncode(payload)
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(signingInput))
	sig := base64URLEncode(mac.Sum(nil))

	return signingInput + "." + sig, nil
}

// VerifyToken checks the HS256 signature, expiry, audience, and issuer
// of a bearer token and returns the caller's principal. All failures
// wrap domain.ErrUnauthorized.
func (s *AuthService) VerifyToken(tokenStr string) (*Principal, error) {
	parts := strings.SplitN(tokenStr, ".", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: malformed token", domain.ErrUnauthorized)
	}

	signingInput := parts[0] + "." + parts[1]
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(signingInput))
	expectedSig := base64URLEncode(mac.Sum(nil))

	if !hmac.Equal([]byte(parts[2]), []byte(expectedSig)) {
		return nil, fmt.Errorf("%w: invalid signature", domain.ErrUnauthorized)
	}

	payload, err := base64URLDecode(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: decode payload", domain.ErrUnauthorized)
	}

	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: unmarshal claims", domain.ErrUnauthorized)
	}

	if time.Now().Unix() > claims.Expiry {
		return nil, fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
	}
	if claims.Audience != tokenAudience {
		return nil, fmt.Errorf("%w: invalid token audience", domain.ErrUnauthorized)
	}
	if claims.Issuer != tokenIssuer {
		return nil, fmt.Errorf("%w: invalid token issuer", domain.ErrUnauthorized)
	}
	if claims.Subject == "" || claims.TenantID == "" {
		return nil, fmt.Errorf("%w: missing subject or tenant", domain.ErrUnauthorized)
	}

	return &Principal{
		Subject:  claims.Subject,
		TenantID: claims.TenantID,
		Scopes:   claims.Scopes,
	}, nil
}

// --- JWT implementation (HS256 with stdlib) ---

// jwtHeader is the fixed base64url-encoded header for HS256.
var jwtHeader = base64URLEncode([]byte(`{"alg":"HS256","typ":"JWT"}`))

func base64URLEncode(data []byte) string {
	return strings.TrimRight(base64.URLEncoding.EncodeToString(data), "=")
}

func base64URLDecode(s string) ([]byte, error) {
	switch len(s) % 4 {
	case 2:
		s += "=="
	case 3:
		s += "="
	case 1:
		return nil, errors.New("invalid base64url length")
	}
	return base64.URLEncoding.DecodeString(s)
}
