package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTokenMalformed = errors.New("invalid token format")
	ErrTokenSignature = errors.New("invalid token signature")
	ErrTokenExpired   = errors.New("token expired")
)

// SignedLink is a download token bound to one stored file.
type SignedLink struct {
	Token     string
	RunID     string
	Path      string
	ExpiresAt time.Time
}

// SignedURLSigner creates and validates HMAC-SHA256 download tokens of the form
// runID.expiryUnix.base64(path).signature.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL is how long generated links stay valid.
func (s *SignedURLSigner) TTL() time.Duration {
	return s.ttl
}

// Sign returns a token referencing the run and the stored file path.
func (s *SignedURLSigner) Sign(runID, relPath string) (SignedLink, error) {
	if runID == "" || relPath == "" {
		return SignedLink{}, fmt.Errorf("runID and relPath required")
	}
	if strings.Contains(runID, ".") {
		return SignedLink{}, fmt.Errorf("runID must not contain '.'")
	}
	if len(s.secret) == 0 {
		return SignedLink{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(relPath))
	token := strings.Join([]string{runID, ts, encodedPath, s.sign(runID, ts, encodedPath)}, ".")
	return SignedLink{Token: token, RunID: runID, Path: relPath, ExpiresAt: expiresAt}, nil
}

// Verify checks the signature and expiry of token.
func (s *SignedURLSigner) Verify(token string) (SignedLink, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return SignedLink{}, ErrTokenMalformed
	}
	runID, ts, encodedPath, signature := parts[0], parts[1], parts[2], parts[3]

	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return SignedLink{}, fmt.Errorf("%w: decode path: %v", ErrTokenMalformed, err)
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return SignedLink{}, fmt.Errorf("%w: invalid timestamp", ErrTokenMalformed)
	}

	expected := s.sign(runID, ts, encodedPath)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return SignedLink{}, ErrTokenSignature
	}
	expiresAt := time.Unix(expUnix, 0)
	if s.now().After(expiresAt) {
		return SignedLink{}, ErrTokenExpired
	}
	return SignedLink{Token: token, RunID: runID, Path: string(rawPath), ExpiresAt: expiresAt}, nil
}

func (s *SignedURLSigner) sign(runID, ts, encodedPath string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(runID + "|" + ts + "|" + encodedPath))
	return hex.EncodeToString(mac.Sum(nil))
}
