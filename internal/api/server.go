// Package api provides the HTTP server and handlers for drift.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"regexp"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/driftshare/drift/internal/browse"
	"github.com/driftshare/drift/internal/logging"
	"github.com/driftshare/drift/internal/metrics"
	"github.com/driftshare/drift/internal/quota"
	"github.com/driftshare/drift/internal/sharing"
)

// Server is the drift HTTP server. It is the only layer that speaks HTTP:
// the core packages return plain data and typed errors, and the handlers
// here map both onto the wire.
type Server struct {
	root     string
	shares   *sharing.Service
	limiter  *quota.RateLimiter
	shareRPM int
}

// NewServer creates a server browsing root. root must be canonical.
// shareRPM bounds share creations per client per minute; 0 is unlimited.
func NewServer(root string, shares *sharing.Service, limiter *quota.RateLimiter, shareRPM int) *Server {
	return &Server{
		root:     root,
		shares:   shares,
		limiter:  limiter,
		shareRPM: shareRPM,
	}
}

// Handler returns the HTTP handler with logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/v1/browse", s.handleBrowse)

	mux.HandleFunc("POST /api/v1/shares", s.handleCreateShare)
	mux.HandleFunc("GET /api/v1/shares", s.handleListShares)
	mux.HandleFunc("GET /api/v1/shares/{token}", s.handleShareInfo)
	mux.HandleFunc("DELETE /api/v1/shares/{token}", s.handleRevokeShare)

	mux.HandleFunc("GET /share/{token}", s.handleDownload)
	mux.HandleFunc("GET /share/{token}/qr", s.handleShareQR)

	return metrics.Middleware(logging.Middleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type browseResponse struct {
	Path    string         `json:"path"`
	Parent  *string        `json:"parent"` // null at the root
	Entries []browse.Entry `json:"entries"`
	Skipped int            `json:"skipped,omitempty"`
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	requested := r.URL.Query().Get("path")

	abs, err := browse.Resolve(s.root, requested)
	if err != nil {
		s.sendPathError(w, r, err)
		return
	}

	start := time.Now()
	listing, err := browse.List(s.root, abs)
	if err != nil {
		s.sendPathError(w, r, err)
		return
	}
	metrics.RecordListing(time.Since(start), listing.Skipped)

	rel := browse.Rel(s.root, abs)
	resp := browseResponse{
		Path:    rel,
		Entries: listing.Entries,
		Skipped: listing.Skipped,
	}
	if rel != "" {
		parent := path.Dir(rel)
		if parent == "." {
			parent = ""
		}
		resp.Parent = &parent
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type createShareRequest struct {
	Path       string `json:"path"`
	TTLSeconds *int64 `json:"ttl_seconds,omitempty"`
	Password   string `json:"password,omitempty"`
}

type shareResponse struct {
	Token     string     `json:"token"`
	URL       string     `json:"url"`
	Path      string     `json:"path"`
	Filename  string     `json:"filename"`
	Protected bool       `json:"protected"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (s *Server) shareResponse(r *http.Request, e *sharing.Entry) shareResponse {
	resp := shareResponse{
		Token:     e.Token,
		URL:       s.shares.ShareURL(r.Host, e.Token),
		Path:      e.TargetPath,
		Filename:  e.OriginalName,
		Protected: e.PasswordHash != "",
		CreatedAt: e.CreatedAt,
	}
	if e.Expires() {
		t := e.ExpiresAt
		resp.ExpiresAt = &t
	}
	return resp
}

func (s *Server) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	client := remoteIP(r)
	if !s.limiter.Allow(client, s.shareRPM) {
		w.Header().Set("Retry-After", strconv.Itoa(s.limiter.RetryAfter(client, s.shareRPM)))
		s.sendError(w, http.StatusTooManyRequests, "too many share requests")
		return
	}

	var req createShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var ttl *time.Duration
	if req.TTLSeconds != nil {
		d := time.Duration(*req.TTLSeconds) * time.Second
		ttl = &d
	}

	entry, err := s.shares.CreateShare(r.Context(), req.Path, ttl, req.Password)
	if err != nil {
		s.sendShareError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(s.shareResponse(r, entry))
}

func (s *Server) handleListShares(w http.ResponseWriter, r *http.Request) {
	entries, err := s.shares.ListShares(r.Context())
	if err != nil {
		s.sendShareError(w, r, err)
		return
	}

	resp := make([]shareResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, s.shareResponse(r, e))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type shareInfoResponse struct {
	shareResponse
	Size        int64     `json:"size"`
	SizeHuman   string    `json:"size_human"`
	Modified    time.Time `json:"modified"`
	ContentType string    `json:"content_type"`
}

// handleShareInfo serves the metadata behind a share landing page: filename,
// size, type. The renderer turns this into markup; the core never does.
func (s *Server) handleShareInfo(w http.ResponseWriter, r *http.Request) {
	resolved, err := s.shares.ResolveShare(r.Context(), r.PathValue("token"), sharePassword(r))
	if err != nil {
		s.sendShareError(w, r, err)
		return
	}

	resp := shareInfoResponse{
		shareResponse: s.shareResponse(r, resolved.Entry),
		Size:          resolved.Size,
		SizeHuman:     humanize.IBytes(uint64(resolved.Size)),
		Modified:      resolved.Modified,
		ContentType:   resolved.ContentType,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleRevokeShare(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if err := s.shares.RevokeShare(r.Context(), token); err != nil {
		s.sendShareError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token, "status": "revoked"})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	resolved, err := s.shares.ResolveShare(r.Context(), r.PathValue("token"), sharePassword(r))
	if err != nil {
		metrics.RecordDownload(0, false)
		s.sendShareError(w, r, err)
		return
	}

	offset, length, hasRange := parseRangeHeader(r.Header.Get("Range"), resolved.Size)
	if hasRange && offset >= resolved.Size {
		// Past EOF, or any range into a zero-byte file.
		metrics.RecordDownload(0, false)
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", resolved.Size))
		s.sendError(w, http.StatusRequestedRangeNotSatisfiable, "range not satisfiable")
		return
	}

	stream, err := browse.OpenStream(resolved.AbsPath, offset, length)
	if err != nil {
		metrics.RecordDownload(0, false)
		s.sendPathError(w, r, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", stream.ContentType)
	w.Header().Set("Content-Disposition", browse.ContentDisposition(resolved.Filename))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.FormatInt(stream.Size, 10))
	if hasRange {
		w.Header().Set("Content-Range",
			fmt.Sprintf("bytes %d-%d/%d", offset, offset+stream.Size-1, stream.TotalSize))
		w.WriteHeader(http.StatusPartialContent)
	}

	// Copy fails fast when the client disconnects; the deferred Close
	// releases the file handle either way.
	n, err := stream.Copy(w)
	if err != nil {
		metrics.RecordDownload(n, false)
		logging.WithContext(r.Context()).Debug("download aborted",
			zap.String("token", resolved.Entry.Token),
			zap.Int64("sent", n),
			zap.Error(err))
		return
	}
	metrics.RecordDownload(n, true)
}

func (s *Server) handleShareQR(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	// The QR only encodes the share URL, so a protected share still gets
	// one; the password gate stays on the download itself.
	_, err := s.shares.ResolveShare(r.Context(), token, "")
	if err != nil && !errors.Is(err, sharing.ErrPasswordRequired) {
		s.sendShareError(w, r, err)
		return
	}

	png, err := qrcode.Encode(s.shares.ShareURL(r.Host, token), qrcode.Medium, 256)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "failed to render QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Write(png)
}

// sharePassword extracts the share password from a request.
func sharePassword(r *http.Request) string {
	if p := r.Header.Get("X-Share-Password"); p != "" {
		return p
	}
	return r.URL.Query().Get("password")
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

var rangeRe = regexp.MustCompile(`bytes=(\d*)-(\d*)`)

func parseRangeHeader(rangeHeader string, totalSize int64) (offset, length int64, hasRange bool) {
	if rangeHeader == "" {
		return 0, 0, false
	}

	matches := rangeRe.FindStringSubmatch(rangeHeader)
	if matches == nil {
		return 0, 0, false
	}

	startStr, endStr := matches[1], matches[2]

	if startStr == "" && endStr != "" {
		suffix, _ := strconv.ParseInt(endStr, 10, 64)
		offset = totalSize - suffix
		if offset < 0 {
			offset = 0
		}
		return offset, totalSize - offset, true
	}

	if startStr != "" {
		offset, _ = strconv.ParseInt(startStr, 10, 64)
	}

	if endStr != "" {
		end, _ := strconv.ParseInt(endStr, 10, 64)
		length = end - offset + 1
	} else {
		length = totalSize - offset
	}

	// offset >= totalSize is returned as-is; the caller answers it with 416.
	if offset+length > totalSize {
		length = totalSize - offset
	}

	return offset, length, true
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorResponse{Error: message, Code: code})
}

// sendPathError maps browse errors to HTTP statuses. Malformed client paths
// are 400/404, never 500.
func (s *Server) sendPathError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, browse.ErrTraversal):
		s.sendError(w, http.StatusBadRequest, "invalid path")
	case errors.Is(err, browse.ErrNotFound):
		s.sendError(w, http.StatusNotFound, "path not found")
	case errors.Is(err, browse.ErrNotADirectory):
		s.sendError(w, http.StatusBadRequest, "not a directory")
	case errors.Is(err, browse.ErrNotAFile):
		s.sendError(w, http.StatusBadRequest, "not a regular file")
	case errors.Is(err, browse.ErrPermission):
		s.sendError(w, http.StatusForbidden, "access denied")
	default:
		logging.WithContext(r.Context()).Error("filesystem error", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "internal error")
	}
}

// sendShareError maps share errors to HTTP statuses. Unknown, expired, and
// gone all look alike to the client so token probing learns nothing.
func (s *Server) sendShareError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, sharing.ErrNotFound),
		errors.Is(err, sharing.ErrExpired),
		errors.Is(err, sharing.ErrFileGone):
		s.sendError(w, http.StatusNotFound, "invalid or expired share link")
	case errors.Is(err, sharing.ErrInvalidPath):
		s.sendError(w, http.StatusNotFound, "path not found")
	case errors.Is(err, sharing.ErrNotAFile):
		s.sendError(w, http.StatusBadRequest, "sharing is only supported for files")
	case errors.Is(err, sharing.ErrPasswordRequired),
		errors.Is(err, sharing.ErrInvalidPassword):
		s.sendError(w, http.StatusUnauthorized, "share password required")
	default:
		logging.WithContext(r.Context()).Error("share error", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "internal error")
	}
}
