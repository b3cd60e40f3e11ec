package catalog

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource yields the bearer token sent with every catalog request.
type TokenSource interface {
	Token(now time.Time) (string, error)
}

// Claims mirrors what the catalog expects in its bearer tokens.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// HMACTokenSource signs short-lived HS256 tokens and reuses one until it is
// close to expiry.
type HMACTokenSource struct {
	secret  []byte
	subject string
	roles   []string
	ttl     time.Duration

	mu     sync.Mutex
	cached string
	exp    time.Time
}

const tokenRefreshMargin = 30 * time.Second

func NewHMACTokenSource(secret, subject string, ttl time.Duration, roles ...string) (*HMACTokenSource, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= tokenRefreshMargin {
		ttl = 5 * time.Minute
	}
	return &HMACTokenSource{
		secret:  []byte(secret),
		subject: subject,
		roles:   roles,
		ttl:     ttl,
	}, nil
}

func (s *HMACTokenSource) Token(now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" && now.Add(tokenRefreshMargin).Before(s.exp) {
		return s.cached, nil
	}

	exp := now.Add(s.ttl)
	claims := Claims{
		Roles: s.roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign catalog token: %w", err)
	}
	s.cached, s.exp = tok, exp
	return tok, nil
}
