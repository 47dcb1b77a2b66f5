package containers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Record is the validated content of a download token: which artifact, for
// which order, until when.
type Record struct {
	Location  string
	OrderID   int64
	ExpiresAt time.Time
}

// Resolver answers whether a location is still resolvable in the content
// store. ContentStore satisfies it.
type Resolver interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// Codec mints and validates download tokens. Tokens are HS256-signed JWTs
// carrying {location, order id, expiry}; they are bearer capabilities, never
// persisted server-side, and stay valid for their whole lifetime.
type Codec struct {
	key      []byte
	resolver Resolver
	parser   *jwt.Parser
	now      func() time.Time
}

type downloadClaims struct {
	Location  string           `json:"loc,omitempty"`
	OrderID   int64            `json:"ord,omitempty"`
	ExpiresAt *jwt.NumericDate `json:"exp,omitempty"`
}

// Valid is a no-op: the codec applies its own validation order so that
// structural checks precede semantic ones (see Decode).
func (downloadClaims) Valid() error { return nil }

// NewCodec constructs a Codec. The resolver is optional; when present,
// Decode also verifies the referenced artifact still exists.
func NewCodec(key []byte, resolver Resolver) (*Codec, error) {
	if len(key) < 32 {
		return nil, fmt.Errorf("signing key must be at least 32 bytes, got %d", len(key))
	}
	return &Codec{
		key:      key,
		resolver: resolver,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
		now: time.Now,
	}, nil
}

// Encode produces a URL-safe opaque token granting download access to the
// container's artifact, scoped to orderID and the container's expiry.
func (c *Codec) Encode(container Container, orderID int64) (string, error) {
	if c == nil {
		return "", errors.New("nil codec")
	}
	claims := downloadClaims{
		Location:  container.Location,
		OrderID:   orderID,
		ExpiresAt: jwt.NewNumericDate(container.ExpiresAt),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

// MintURL builds the fully qualified download URL for a container, embedding
// the token and the order id as query parameters.
func (c *Codec) MintURL(base string, container Container, orderID int64) (string, error) {
	token, err := c.Encode(container, orderID)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	q := u.Query()
	q.Set("download", token)
	q.Set("order_id", strconv.FormatInt(orderID, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Decode validates a token against tamper, mismatch, and expiry, in strict
// order: structural checks, then the signature, then record completeness,
// order scope, expiry (inclusive at the boundary), and finally the content
// store round trip. Malformed input is rejected before any I/O.
func (c *Codec) Decode(ctx context.Context, token string, expectedOrderID int64) (Record, error) {
	if c == nil {
		return Record{}, errors.New("nil codec")
	}

	claims := &downloadClaims{}
	_, err := c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		var verr *jwt.ValidationError
		if errors.As(err, &verr) && verr.Errors&jwt.ValidationErrorMalformed != 0 {
			return Record{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if claims.Location == "" || claims.OrderID == 0 || claims.ExpiresAt == nil {
		return Record{}, ErrIncompleteToken
	}
	if claims.OrderID != expectedOrderID {
		return Record{}, ErrOrderMismatch
	}
	if !c.now().Before(claims.ExpiresAt.Time) {
		return Record{}, ErrTokenExpired
	}

	if c.resolver != nil {
		ok, err := c.resolver.Exists(ctx, claims.Location)
		if err != nil {
			// Fail closed: an unreachable store must not serve artifacts.
			return Record{}, fmt.Errorf("%w: %v", ErrArtifactMissing, err)
		}
		if !ok {
			return Record{}, fmt.Errorf("%w: %s", ErrArtifactMissing, claims.Location)
		}
	}

	return Record{
		Location:  claims.Location,
		OrderID:   claims.OrderID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
