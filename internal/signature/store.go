package signature

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coopscan/receipts-api/internal/common"
	"github.com/coopscan/receipts-api/pkg/retry"
)

var (
	reDataURL  = regexp.MustCompile(`^data:image/png;base64,([A-Za-z0-9+/=\s]+)$`)
	reFilename = regexp.MustCompile(`^signature_\d+_[0-9a-f]{8}\.png$`)
)

// Store persists operator signatures as PNG files in the shared directory.
// All mutations are filename-scoped and idempotent-safe.
type Store struct {
	dir       string
	ioTimeout time.Duration
	logger    *slog.Logger
}

func NewStore(dir string, ioTimeout time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if ioTimeout <= 0 {
		ioTimeout = 10 * time.Second
	}
	return &Store{dir: dir, ioTimeout: ioTimeout, logger: logger}
}

// Decode validates the exact PNG data-URL shape and returns the image bytes.
// Anything else is rejected before storage is touched.
func Decode(dataURL string) ([]byte, error) {
	g := reDataURL.FindStringSubmatch(dataURL)
	if g == nil {
		return nil, common.NewAppError(common.CodeSignatureFormat, "signature must be a base64-encoded PNG data URL", nil)
	}
	payload := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' {
			return -1
		}
		return r
	}, g[1])
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, common.NewAppError(common.CodeSignatureFormat, "signature payload is not valid base64", err)
	}
	if len(raw) == 0 {
		return nil, common.NewAppError(common.CodeSignatureFormat, "signature payload is empty", nil)
	}
	return raw, nil
}

// ValidName reports whether name matches the generated filename shape. Used
// both to reject traversal-shaped fetches and to fence the sweeper off from
// unrelated files in the shared folder.
func ValidName(name string) bool {
	return reFilename.MatchString(name)
}

// Save decodes and writes the signature, returning the generated filename.
// Filenames are never derived from user input. Directory creation is
// idempotent; the write is retried once; both attempts failing aborts the
// whole submission upstream.
func (s *Store) Save(ctx context.Context, dataURL string) (string, error) {
	raw, err := Decode(dataURL)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("signature_%d_%s.png", time.Now().UnixNano(), uuid.NewString()[:8])
	path := filepath.Join(s.dir, name)

	err = retry.Do(ctx, func() error {
		return s.withTimeout(ctx, func() error {
			if err := os.MkdirAll(s.dir, 0o775); err != nil {
				return err
			}
			return os.WriteFile(path, raw, 0o664)
		})
	}, retry.WithMaxAttempts(2), retry.WithBaseDelay(200*time.Millisecond))
	if err != nil {
		s.logger.Error("signature save failed", "file", name, "error", err)
		return "", common.NewAppError(common.CodeSignatureSave, "failed to save signature to shared storage", err)
	}

	s.logger.Info("signature saved", "file", name, "bytes", len(raw))
	return name, nil
}

// Open returns the stored PNG for a generated filename.
func (s *Store) Open(name string) (*os.File, error) {
	if !ValidName(name) {
		return nil, common.NewAppError(common.CodeNotFound, "unknown signature file", nil)
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return nil, common.NewAppError(common.CodeNotFound, "signature file not found", err)
	}
	return f, err
}

// Delete removes a signature file. A missing file is success, so delete
// races (in-flight record deletion vs the sweep) stay benign.
func (s *Store) Delete(name string) error {
	if !ValidName(name) {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !os.IsNotExist(err) {
		s.logger.Error("signature delete failed", "file", name, "error", err)
		return err
	}
	return nil
}

// list returns generated-shape filenames currently in the shared directory.
func (s *Store) list() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && ValidName(e.Name()) {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// withTimeout bounds blocking file I/O, which is not context-aware on its
// own.
func (s *Store) withTimeout(ctx context.Context, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, s.ioTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
