package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// Recognizer is the narrow interface the rest of the application sees:
// image pixels in, recognized text out.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

type Config struct {
	Tesseract string // binary name or absolute path; if empty -> "tesseract"
	Lang      string // default "eng"
	WorkDir   string // scratch dir for preprocessed frames
}

// Service is the process-wide recognition engine: initialized once at
// startup, shared by all requests, torn down on shutdown. Its engine handle
// never leaks into business logic.
type Service struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewService(cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	return &Service{cfg: cfg, runner: execRunner{}, logger: logger}
}

// Start verifies the engine binary is runnable. Called once at startup.
func (s *Service) Start(ctx context.Context) error {
	if _, _, err := s.runner.Run(ctx, s.cfg.Tesseract, "--version"); err != nil {
		return fmt.Errorf("ocr engine unavailable: %w", err)
	}
	if err := os.MkdirAll(s.cfg.WorkDir, 0o775); err != nil {
		return fmt.Errorf("ocr work dir: %w", err)
	}
	s.logger.Info("ocr engine ready", "bin", s.cfg.Tesseract, "lang", s.cfg.Lang)
	return nil
}

// Shutdown releases engine resources. Scratch files are per-request and
// already removed; nothing global to tear down for an exec-backed engine.
func (s *Service) Shutdown(context.Context) error {
	s.logger.Info("ocr engine stopped")
	return nil
}

// Recognize preprocesses the image and runs the engine on it, returning
// normalized text.
func (s *Service) Recognize(ctx context.Context, image []byte) (string, error) {
	framePath, err := s.preprocess(image)
	if err != nil {
		return "", err
	}
	defer os.Remove(framePath)

	args := []string{framePath, "stdout", "-l", s.cfg.Lang, "--psm", "6"}
	out, errb, err := s.runner.Run(ctx, s.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w (%s)", err, truncate(string(errb), 512))
	}

	text := NormalizeText(string(out))
	s.logger.Debug("recognition done", "input_bytes", len(image), "text_bytes", len(text))
	return text, nil
}

// preprocess enhances the scan for recognition: grayscale, contrast boost,
// sharpen. Writes the frame to the work dir and returns its path.
func (s *Service) preprocess(image []byte) (string, error) {
	src, err := imaging.Decode(bytes.NewReader(image))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	img := imaging.Grayscale(src)
	img = imaging.AdjustContrast(img, 30)
	img = imaging.Sharpen(img, 1.5)

	path := filepath.Join(s.cfg.WorkDir, fmt.Sprintf("scan_%s.png", uuid.NewString()))
	if err := imaging.Save(img, path); err != nil {
		return "", fmt.Errorf("save preprocessed frame: %w", err)
	}
	return path, nil
}
