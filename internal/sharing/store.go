// Package sharing implements expiring share links: token generation, the
// token-to-path store, and the service that ties creation and resolution to
// the filesystem.
package sharing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrNotFound means the token is unknown (or already removed).
	ErrNotFound = errors.New("share not found")
	// ErrExpired means the token exists but its TTL has passed.
	ErrExpired = errors.New("share expired")
	// ErrFileGone means the shared file no longer exists or is no longer a
	// regular file under the root.
	ErrFileGone = errors.New("shared file no longer available")
	// ErrInvalidPath means the share target failed path resolution.
	ErrInvalidPath = errors.New("invalid share path")
	// ErrNotAFile means the share target is a directory or special file.
	ErrNotAFile = errors.New("share target is not a regular file")
	// ErrPasswordRequired means the share is password protected and no
	// password was supplied.
	ErrPasswordRequired = errors.New("share password required")
	// ErrInvalidPassword means the supplied share password did not match.
	ErrInvalidPassword = errors.New("invalid share password")
)

// Entry is one share link. Entries are immutable after creation: a re-share
// of the same path creates an independent Entry with a fresh token.
type Entry struct {
	Token        string    `json:"token"`
	TargetPath   string    `json:"path"` // relative to root, forward slashes
	OriginalName string    `json:"filename"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"` // zero = never expires
}

// Expires reports whether the entry has an expiration at all.
func (e *Entry) Expires() bool {
	return !e.ExpiresAt.IsZero()
}

// ExpiredAt reports whether the entry is expired as of now. Expiration is
// inclusive: an entry whose deadline equals now is already expired, matching
// the sweep's "at or before now" contract. Lookups must check this
// themselves: the sweep is periodic, so an expired entry may still be
// present in the store.
func (e *Entry) ExpiredAt(now time.Time) bool {
	return e.Expires() && !now.Before(e.ExpiresAt)
}

// Store is a concurrent map from share tokens to entries. Implementations
// must be safe for arbitrary concurrent callers; Insert is atomic from the
// perspective of any concurrent Lookup.
type Store interface {
	// Insert generates a fresh token, stores the entry under it, and
	// returns the token. Tokens are never reused: collisions (vanishingly
	// unlikely at 128 bits) are handled by regenerating.
	Insert(ctx context.Context, e *Entry) (string, error)
	// Lookup returns the entry for a token, or ErrNotFound. Read-only; it
	// never extends expiration.
	Lookup(ctx context.Context, token string) (*Entry, error)
	// Remove revokes a token. ErrNotFound when the token is unknown.
	Remove(ctx context.Context, token string) error
	// List returns all stored entries, including not-yet-swept expired ones.
	List(ctx context.Context) ([]*Entry, error)
	// SweepExpired removes entries whose expiration is at or before now and
	// returns how many were removed.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	Close() error
}

// generateToken returns a 128-bit random token in canonical hex form.
func generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
