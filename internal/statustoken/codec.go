// Package statustoken signs and verifies the callback tokens handed to build
// jobs. A token carries everything needed to later update one commit status,
// so the service keeps no session state between dispatch and callback.
package statustoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/sevigo/extpr/internal/core"
)

const (
	// MinSecretLength is the shortest accepted signing secret, in bytes.
	MinSecretLength = 16
	// DefaultTTL is how long a build has to report back.
	DefaultTTL = 24 * time.Hour
)

// Payload is the state bound into a token.
type Payload struct {
	EventID        string              `json:"eventId"`
	InstallationID int64               `json:"instlId"`
	Template       core.StatusTemplate `json:"tpl"`
}

func (p Payload) validate() error {
	if p.EventID == "" {
		return errors.New("event ID is empty")
	}
	if p.InstallationID <= 0 {
		return fmt.Errorf("installation ID must be positive, got: %d", p.InstallationID)
	}
	return p.Template.Validate()
}

// Claims is the decoded content of a verified token.
type Claims struct {
	Payload
	jwt.RegisteredClaims
}

// Issued is a freshly signed token together with its identity.
type Issued struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// Codec signs and verifies status tokens with a single process-wide secret.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	newID  func() string
}

// Option configures a Codec.
type Option func(*Codec)

// WithTTL sets the token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces the clock used for issue and expiry times.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// WithIDGenerator replaces the token id generator.
func WithIDGenerator(newID func() string) Option {
	return func(c *Codec) { c.newID = newID }
}

// NewCodec creates a codec. A missing or too short secret is a configuration
// error and must stop the process before any event is handled.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}

	c := &Codec{
		secret: []byte(secret),
		ttl:    DefaultTTL,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Sign returns a signed token for the payload.
func (c *Codec) Sign(p Payload) (string, error) {
	issued, err := c.Issue(p)
	if err != nil {
		return "", err
	}
	return issued.Token, nil
}

// Issue signs the payload and returns the token with its id and expiry.
func (c *Codec) Issue(p Payload) (*Issued, error) {
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	now := c.now()
	expiresAt := now.Add(c.ttl)
	claims := Claims{
		Payload: canonical(p),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        c.newID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign status token: %w", err)
	}
	return &Issued{Token: token, ID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify checks the token's signature, algorithm and expiry and returns its claims.
// Every failure matches ErrInvalidToken; expiry also matches ErrTokenExpired.
func (c *Codec) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.ID == "" || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing id or expiry", ErrInvalidToken)
	}
	if err := claims.Payload.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}
