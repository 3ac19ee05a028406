package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const downloadAudience = "export-download"

var (
	// ErrLinkInvalid is returned for malformed, tampered or foreign tokens.
	ErrLinkInvalid = errors.New("invalid download link")
	// ErrLinkExpired is returned when a genuine token is past its expiry.
	ErrLinkExpired = errors.New("download link expired")
)

// DownloadClaims is the payload of a download link. The subject is the export
// ID and Object is the stored file name.
type DownloadClaims struct {
	Object string `json:"obj"`
	jwt.RegisteredClaims
}

// LinkSigner issues short lived HS256 tokens that authorise one export
// download without a user session.
type LinkSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewLinkSigner returns a signer. A non-positive ttl means one hour.
func NewLinkSigner(secret string, ttl time.Duration) *LinkSigner {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &LinkSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a token for exportID pointing at object, and its expiry.
func (s *LinkSigner) Sign(exportID, object string) (string, time.Time, error) {
	if exportID == "" || object == "" {
		return "", time.Time{}, errors.New("export id and object are required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("link signing secret missing")
	}
	issued := s.now()
	expires := issued.Add(s.ttl)
	claims := DownloadClaims{
		Object: object,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   exportID,
			Audience:  jwt.ClaimStrings{downloadAudience},
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign download link: %w", err)
	}
	return token, expires, nil
}

// Verify checks token and returns its claims.
func (s *LinkSigner) Verify(token string) (*DownloadClaims, error) {
	claims := &DownloadClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(downloadAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrLinkExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrLinkInvalid, err)
	case claims.Subject == "" || claims.Object == "":
		return nil, ErrLinkInvalid
	}
	return claims, nil
}
