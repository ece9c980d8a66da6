package session

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer   = "cropadviser-api"
	defaultAudience = "cropadviser-web"
	defaultLeeway   = 30 * time.Second
	defaultTTL      = 15 * time.Minute
)

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrTokenRevoked = errors.New("session token revoked")
)

// Options tunes JWT claim validation.
type Options struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
	TTL      time.Duration
}

// AccessTokens issues and validates RS256 access tokens. Revocation is
// delegated to a Revoker keyed by jti, plus a per-user issued-before cutoff.
type AccessTokens struct {
	key      *rsa.PrivateKey
	revoker  Revoker
	issuer   string
	audience string
	leeway   time.Duration
	ttl      time.Duration
}

// NewAccessTokens loads an RSA private key from a PEM file.
func NewAccessTokens(privateKeyPath string, revoker Revoker, opts Options) (*AccessTokens, error) {
	key, err := loadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load jwt private key: %w", err)
	}
	return NewAccessTokensFromKey(key, revoker, opts), nil
}

// NewAccessTokensFromKey builds the store from an in-memory key (tests).
func NewAccessTokensFromKey(key *rsa.PrivateKey, revoker Revoker, opts Options) *AccessTokens {
	if strings.TrimSpace(opts.Issuer) == "" {
		opts.Issuer = defaultIssuer
	}
	if strings.TrimSpace(opts.Audience) == "" {
		opts.Audience = defaultAudience
	}
	if opts.Leeway <= 0 {
		opts.Leeway = defaultLeeway
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	return &AccessTokens{
		key:      key,
		revoker:  revoker,
		issuer:   opts.Issuer,
		audience: opts.Audience,
		leeway:   opts.Leeway,
		ttl:      opts.TTL,
	}
}

// Issue signs a new access token for the user.
func (s *AccessTokens) Issue(userID uint) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{s.audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
}

// Verify parses the token, checks signature and claims, and applies
// revocation. It returns the user ID from the subject claim.
func (s *AccessTokens) Verify(token string) (uint, error) {
	claims, err := s.parse(token)
	if err != nil {
		return 0, err
	}
	if s.revoker != nil {
		revoked, err := s.revoker.IsRevoked(claims.ID)
		if err != nil {
			return 0, err
		}
		if revoked {
			return 0, ErrTokenRevoked
		}
		cutoff, err := s.revoker.RevokedAfter(claims.Subject)
		if err != nil {
			return 0, err
		}
		if !cutoff.IsZero() && claims.IssuedAt != nil && !claims.IssuedAt.Time.UTC().After(cutoff) {
			return 0, ErrTokenRevoked
		}
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return uint(id), nil
}

// Revoke marks a single token invalid until its natural expiry.
func (s *AccessTokens) Revoke(token string) error {
	if s.revoker == nil {
		return nil
	}
	claims, err := s.parse(token)
	if err != nil {
		// Already unusable; nothing to revoke.
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	return s.revoker.Revoke(claims.ID, time.Until(claims.ExpiresAt.Time))
}

// RevokeUser invalidates every token for the user issued before since.
// IssuedAt claims carry second precision, so the cutoff is aligned to the
// previous full second; tokens issued in the same second as the revocation,
// such as a relogin right after a password change, stay valid.
func (s *AccessTokens) RevokeUser(userID uint, since time.Time) error {
	if s.revoker == nil {
		return nil
	}
	cutoff := since.UTC().Truncate(time.Second).Add(-time.Second)
	return s.revoker.RevokeUser(strconv.FormatUint(uint64(userID), 10), cutoff)
}

func (s *AccessTokens) parse(token string) (jwt.RegisteredClaims, error) {
	claims := jwt.RegisteredClaims{}
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return &s.key.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.leeway),
	)
	if err != nil || !parsed.Valid {
		return claims, ErrInvalidToken
	}
	if strings.TrimSpace(claims.ID) == "" || strings.TrimSpace(claims.Subject) == "" {
		return claims, ErrInvalidToken
	}
	return claims, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not rsa")
	}
	return key, nil
}
