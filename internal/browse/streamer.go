package browse

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// ChunkSize bounds the in-flight buffer of a download copy loop.
const ChunkSize = 64 * 1024

// Stream is an open, lazily-read byte stream over one file. The caller owns
// Close; closing releases the underlying file handle.
type Stream struct {
	io.ReadCloser

	// Size is the number of bytes this stream will yield.
	Size int64
	// TotalSize is the full file size, for Content-Range on partial reads.
	TotalSize int64
	// ContentType is sniffed from the file extension.
	ContentType string
}

// OpenStream opens path for reading. offset and length select a byte range;
// length <= 0 means "through end of file". The file content is never loaded
// into memory as a whole.
func OpenStream(path string, offset, length int64) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return nil, ErrNotFound
		case os.IsPermission(err):
			return nil, ErrPermission
		default:
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, ErrNotAFile
	}
	totalSize := info.Size()

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("seek %s: %w", path, err)
		}
	}

	stream := &Stream{
		TotalSize:   totalSize,
		ContentType: ContentType(path),
	}
	if length > 0 {
		stream.ReadCloser = &limitedReadCloser{
			Reader: io.LimitReader(f, length),
			Closer: f,
		}
		stream.Size = length
		return stream, nil
	}

	remaining := totalSize - offset
	if remaining < 0 {
		remaining = 0
	}
	stream.ReadCloser = f
	stream.Size = remaining
	return stream, nil
}

// Copy streams the remaining bytes to dst in bounded chunks. Backpressure
// comes from dst: the next chunk is only read once the previous write
// completed, and a failed write (client gone) ends the copy immediately.
func (s *Stream) Copy(dst io.Writer) (int64, error) {
	return io.CopyBuffer(dst, struct{ io.Reader }{s}, make([]byte, ChunkSize))
}

// ContentType returns the MIME type for a path by extension, falling back to
// a generic binary type.
func ContentType(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// ContentDisposition builds an attachment disposition for filename. ASCII
// names are quoted directly; anything else also carries the RFC 5987
// filename* form so non-ASCII names survive instead of being dropped.
func ContentDisposition(filename string) string {
	fallback := asciiFallback(filename)
	if fallback == filename {
		return fmt.Sprintf(`attachment; filename="%s"`, fallback)
	}
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`,
		fallback, rfc5987Encode(filename))
}

func asciiFallback(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// rfc5987Encode percent-encodes everything outside the attr-char set.
func rfc5987Encode(s string) string {
	const attrChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!#$&+-.^_`|~"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if strings.IndexByte(attrChars, c) >= 0 {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

// limitedReadCloser wraps a LimitReader with a separate Closer.
type limitedReadCloser struct {
	io.Reader
	io.Closer
}
