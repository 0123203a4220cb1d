package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token is malformed, expired, or otherwise invalid.
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims holds JWT claims for the access token. Subject is the user id.
type AccessClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	UserType string `json:"user_type"`
}

// TokenProvider issues and validates JWT access tokens using RS256 or ES256
// (private/public key) and issues opaque refresh tokens.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
// issuer and audience are set on claims and validated on access-token checks.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
	}
}

// IssueAccess issues a signed access JWT for the given user.
// Returns the token string, its jti, and expiration time.
func (p *TokenProvider) IssueAccess(userID, username, userType string) (token string, jti string, expiresAt time.Time, err error) {
	jti, err = randomHex(16)
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username: username,
		UserType: userType,
	}
	token, err = p.sign(claims)
	return token, jti, expiresAt, err
}

// IssueRefresh returns a 256-bit opaque refresh token, hex-encoded. The token
// is not a JWT; the session store keeps only its SHA-256 hash and redemption
// is an exact-match lookup against that hash.
func (p *TokenProvider) IssueRefresh() (string, error) {
	return randomHex(32)
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// ValidateAccess parses and validates the access token (signature, exp, iss, aud)
// and returns its claims.
func (p *TokenProvider) ValidateAccess(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
			return p.publicKey, nil
		}
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); ok {
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != p.issuer {
		return nil, ErrInvalidToken
	}
	audOk := false
	for _, a := range claims.Audience {
		if a == p.audience {
			audOk = true
			break
		}
	}
	if !audOk {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Validate reports whether the access token is currently valid.
func (p *TokenProvider) Validate(tokenString string) bool {
	_, err := p.ValidateAccess(tokenString)
	return err == nil
}

// ExtractUserID returns the subject (user id) of a valid access token, or "" if invalid.
func (p *TokenProvider) ExtractUserID(tokenString string) string {
	claims, err := p.ValidateAccess(tokenString)
	if err != nil {
		return ""
	}
	return claims.Subject
}

// ExpiryOf returns the expiration time of a valid access token.
func (p *TokenProvider) ExpiryOf(tokenString string) (time.Time, error) {
	claims, err := p.ValidateAccess(tokenString)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrInvalidToken
	}
	return claims.ExpiresAt.Time, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
