package sharing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testService(t *testing.T, defaultTTL time.Duration) (*Service, string) {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("canonicalize temp root: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "docs"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "docs", "report.pdf"), []byte("pdf bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return NewService(root, NewMemoryStore(), "", defaultTTL), root
}

func TestShareRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t, 0)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := start
	svc.now = func() time.Time { return current }

	ttl := time.Hour
	entry, err := svc.CreateShare(ctx, "docs/report.pdf", &ttl, "")
	if err != nil {
		t.Fatalf("CreateShare: %v", err)
	}
	if entry.Token == "" {
		t.Fatal("share created without a token")
	}
	if !entry.ExpiresAt.Equal(start.Add(time.Hour)) {
		t.Errorf("expected expiry at %v, got %v", start.Add(time.Hour), entry.ExpiresAt)
	}

	resolved, err := svc.ResolveShare(ctx, entry.Token, "")
	if err != nil {
		t.Fatalf("ResolveShare: %v", err)
	}
	if resolved.Filename != "report.pdf" {
		t.Errorf("expected filename report.pdf, got %q", resolved.Filename)
	}
	if resolved.Size != int64(len("pdf bytes")) {
		t.Errorf("expected size %d, got %d", len("pdf bytes"), resolved.Size)
	}
	if resolved.ContentType != "application/pdf" {
		t.Errorf("expected application/pdf, got %q", resolved.ContentType)
	}

	// One minute before the deadline the link still works.
	current = start.Add(59 * time.Minute)
	if _, err := svc.ResolveShare(ctx, entry.Token, ""); err != nil {
		t.Errorf("share expired early: %v", err)
	}

	// Past the deadline it is gone, even before any sweep runs.
	current = start.Add(2 * time.Hour)
	if _, err := svc.ResolveShare(ctx, entry.Token, ""); !errors.Is(err, ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
}

func TestShareNeverExpires(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t, 0)

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return current }

	entry, err := svc.CreateShare(ctx, "docs/report.pdf", nil, "")
	if err != nil {
		t.Fatalf("CreateShare: %v", err)
	}
	if entry.Expires() {
		t.Fatal("share without TTL should not expire")
	}

	current = current.AddDate(10, 0, 0)
	if _, err := svc.ResolveShare(ctx, entry.Token, ""); err != nil {
		t.Errorf("permanent share stopped resolving: %v", err)
	}
}

func TestShareDefaultTTL(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t, 30*time.Minute)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }

	entry, err := svc.CreateShare(ctx, "docs/report.pdf", nil, "")
	if err != nil {
		t.Fatalf("CreateShare: %v", err)
	}
	if !entry.ExpiresAt.Equal(start.Add(30 * time.Minute)) {
		t.Errorf("expected default TTL expiry, got %v", entry.ExpiresAt)
	}
}

func TestCreateShareRejections(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t, 0)

	if _, err := svc.CreateShare(ctx, "docs", nil, ""); !errors.Is(err, ErrNotAFile) {
		t.Errorf("directory share: expected ErrNotAFile, got %v", err)
	}
	if _, err := svc.CreateShare(ctx, "missing.txt", nil, ""); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("missing file: expected ErrInvalidPath, got %v", err)
	}
	if _, err := svc.CreateShare(ctx, "../outside", nil, ""); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("traversal: expected ErrInvalidPath, got %v", err)
	}
}

func TestResolveAfterFileRemoved(t *testing.T) {
	ctx := context.Background()
	svc, root := testService(t, 0)

	entry, err := svc.CreateShare(ctx, "docs/report.pdf", nil, "")
	if err != nil {
		t.Fatalf("CreateShare: %v", err)
	}
	if err := os.Remove(filepath.Join(root, "docs", "report.pdf")); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ResolveShare(ctx, entry.Token, ""); !errors.Is(err, ErrFileGone) {
		t.Errorf("expected ErrFileGone, got %v", err)
	}
}

func TestSharePassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t, 0)

	entry, err := svc.CreateShare(ctx, "docs/report.pdf", nil, "hunter2")
	if err != nil {
		t.Fatalf("CreateShare: %v", err)
	}

	if _, err := svc.ResolveShare(ctx, entry.Token, ""); !errors.Is(err, ErrPasswordRequired) {
		t.Errorf("no password: expected ErrPasswordRequired, got %v", err)
	}
	if _, err := svc.ResolveShare(ctx, entry.Token, "wrong"); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("wrong password: expected ErrInvalidPassword, got %v", err)
	}
	if _, err := svc.ResolveShare(ctx, entry.Token, "hunter2"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
}

func TestRevokeShare(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t, 0)

	a, err := svc.CreateShare(ctx, "docs/report.pdf", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.CreateShare(ctx, "docs/report.pdf", nil, "")
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.RevokeShare(ctx, a.Token); err != nil {
		t.Fatalf("RevokeShare: %v", err)
	}
	if _, err := svc.ResolveShare(ctx, a.Token, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("revoked share still resolves: %v", err)
	}
	if _, err := svc.ResolveShare(ctx, b.Token, ""); err != nil {
		t.Errorf("revoking one share broke the other: %v", err)
	}
	if err := svc.RevokeShare(ctx, a.Token); !errors.Is(err, ErrNotFound) {
		t.Errorf("double revoke: expected ErrNotFound, got %v", err)
	}
}

func TestListSharesFiltersExpired(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t, 0)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := start
	svc.now = func() time.Time { return current }

	ttl := time.Minute
	expiring, err := svc.CreateShare(ctx, "docs/report.pdf", &ttl, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateShare(ctx, "docs/report.pdf", nil, ""); err != nil {
		t.Fatal(err)
	}

	current = start.Add(time.Hour)
	shares, err := svc.ListShares(ctx)
	if err != nil {
		t.Fatalf("ListShares: %v", err)
	}
	if len(shares) != 1 {
		t.Fatalf("expected 1 live share, got %d", len(shares))
	}
	if shares[0].Token == expiring.Token {
		t.Error("expired share still listed")
	}
}

func TestShareURL(t *testing.T) {
	svc, _ := testService(t, 0)

	if got := svc.ShareURL("files.local:8080", "abc123"); got != "http://files.local:8080/share/abc123" {
		t.Errorf("host-derived URL: got %q", got)
	}

	svc.baseURL = "https://files.example.com"
	if got := svc.ShareURL("ignored:9", "abc123"); !strings.HasPrefix(got, "https://files.example.com/share/") {
		t.Errorf("base URL ignored: got %q", got)
	}
}
