// Package auth verifies bearer tokens presented at the handshake and on REST
// calls. Issuance lives elsewhere; Issue exists for tooling and tests.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingCredential = fmt.Errorf("%w: missing credential", domain.ErrAuthentication)
	ErrInvalidToken      = fmt.Errorf("%w: invalid token", domain.ErrAuthentication)
	ErrExpiredToken      = fmt.Errorf("%w: token has expired", domain.ErrAuthentication)
)

type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Claims carries the user identity. The subject mirrors UserID.
type Claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	config Config
	now    func() time.Time
}

func NewVerifier(config Config) *Verifier {
	return &Verifier{config: config, now: time.Now}
}

// Verify checks an HS256 token and returns the identity it names. Every
// failure wraps domain.ErrAuthentication.
func (v *Verifier) Verify(credential string) (*domain.User, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, ErrMissingCredential
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(credential, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(v.config.Secret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	uid := claims.UserID
	if uid == "" {
		uid = claims.Subject
	}
	user, err := domain.NewUser(domain.UserID(uid), claims.Username)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return user, nil
}

// Issue signs a token for the user, valid for the configured TTL.
func (v *Verifier) Issue(userID domain.UserID, username string) (string, error) {
	if _, err := domain.NewUser(userID, username); err != nil {
		return "", err
	}
	now := v.now()
	claims := Claims{
		UserID:   string(userID),
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.config.Issuer,
			Subject:   string(userID),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.config.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(v.config.Secret))
}
