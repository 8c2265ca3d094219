package sharing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/driftshare/drift/internal/browse"
	"github.com/driftshare/drift/internal/logging"
	"github.com/driftshare/drift/internal/metrics"
)

// ResolvedShare is what a valid token resolves to: everything the download
// path needs to stream the file.
type ResolvedShare struct {
	AbsPath     string
	Filename    string
	Size        int64
	Modified    time.Time
	ContentType string
	Entry       *Entry
}

// Service orchestrates share creation and resolution over an injected Store.
type Service struct {
	root       string
	store      Store
	baseURL    string
	defaultTTL time.Duration

	now func() time.Time // injectable for tests
}

// NewService creates a share service rooted at root. root must be canonical.
// defaultTTL applies when a creation request carries no TTL; zero means such
// shares never expire.
func NewService(root string, store Store, baseURL string, defaultTTL time.Duration) *Service {
	return &Service{
		root:       root,
		store:      store,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// CreateShare resolves requested under the root, verifies it is a regular
// file, and stores a new share entry. ttl == nil applies the service default;
// a non-positive TTL means the share never expires. password, when non-empty,
// gates future resolution of this one link.
func (s *Service) CreateShare(ctx context.Context, requested string, ttl *time.Duration, password string) (*Entry, error) {
	abs, err := browse.Resolve(s.root, requested)
	if err != nil {
		return nil, ErrInvalidPath
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, ErrInvalidPath
	}
	if !info.Mode().IsRegular() {
		return nil, ErrNotAFile
	}

	now := s.now()
	entry := &Entry{
		TargetPath:   browse.Rel(s.root, abs),
		OriginalName: filepath.Base(abs),
		CreatedAt:    now,
	}

	effective := s.defaultTTL
	if ttl != nil {
		effective = *ttl
	}
	if effective > 0 {
		entry.ExpiresAt = now.Add(effective)
	}

	if password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash share password: %w", err)
		}
		entry.PasswordHash = string(hashed)
	}

	token, err := s.store.Insert(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("store share: %w", err)
	}
	entry.Token = token

	metrics.RecordShareCreated()
	s.updateActiveCount(ctx)

	logging.Info("share created",
		zap.String("token", token),
		zap.String("path", entry.TargetPath),
		zap.Bool("expires", entry.Expires()))
	return entry, nil
}

// ResolveShare validates a token and re-resolves its target against the
// root. The stored path is never trusted from creation time: the file must
// still exist, still be a regular file, and still live under the root.
// Resolution is idempotent while the token and file stay valid.
func (s *Service) ResolveShare(ctx context.Context, token, password string) (*ResolvedShare, error) {
	entry, err := s.store.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	// The sweep is periodic, so an expired entry can still be present.
	if entry.ExpiredAt(s.now()) {
		return nil, ErrExpired
	}

	if entry.PasswordHash != "" {
		if password == "" {
			return nil, ErrPasswordRequired
		}
		if bcrypt.CompareHashAndPassword([]byte(entry.PasswordHash), []byte(password)) != nil {
			return nil, ErrInvalidPassword
		}
	}

	abs, err := browse.Resolve(s.root, entry.TargetPath)
	if err != nil {
		switch {
		case errors.Is(err, browse.ErrNotFound), errors.Is(err, browse.ErrTraversal):
			return nil, ErrFileGone
		default:
			return nil, fmt.Errorf("re-resolve share target: %w", err)
		}
	}

	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		return nil, ErrFileGone
	}

	return &ResolvedShare{
		AbsPath:     abs,
		Filename:    entry.OriginalName,
		Size:        info.Size(),
		Modified:    info.ModTime(),
		ContentType: browse.ContentType(abs),
		Entry:       entry,
	}, nil
}

// RevokeShare removes a token immediately.
func (s *Service) RevokeShare(ctx context.Context, token string) error {
	if err := s.store.Remove(ctx, token); err != nil {
		return err
	}
	s.updateActiveCount(ctx)
	logging.Info("share revoked", zap.String("token", token))
	return nil
}

// ListShares returns all live (non-expired) entries.
func (s *Service) ListShares(ctx context.Context) ([]*Entry, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	live := make([]*Entry, 0, len(all))
	for _, e := range all {
		if !e.ExpiredAt(now) {
			live = append(live, e)
		}
	}
	return live, nil
}

// ShareURL builds the shareable URL for a token. host is the request Host
// header, used when no base URL is configured.
func (s *Service) ShareURL(host, token string) string {
	base := s.baseURL
	if base == "" {
		base = "http://" + host
	}
	return base + "/share/" + token
}

// Sweep removes expired entries. Run from a periodic timer, decoupled from
// request handling.
func (s *Service) Sweep(ctx context.Context) {
	n, err := s.store.SweepExpired(ctx, s.now())
	if err != nil {
		logging.Error("share sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		metrics.RecordSharesSwept(n)
		s.updateActiveCount(ctx)
		logging.Info("share sweep completed", zap.Int("removed", n))
	}
}

func (s *Service) updateActiveCount(ctx context.Context) {
	live, err := s.ListShares(ctx)
	if err == nil {
		metrics.SetSharesActive(int64(len(live)))
	}
}
