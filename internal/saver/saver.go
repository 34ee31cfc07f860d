package saver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/xmimu/manbo-tts/internal/config"
)

// Saver downloads audio from a URL and writes it to a user-chosen path.
// The dialog runs before any network activity: the dialog blocks on user
// input of unbounded duration, and deferring the download avoids holding a
// socket open across that wait and wastes no bandwidth on a cancel.
type Saver struct {
	dialog      Dialog
	httpClient  *http.Client
	atomicWrite bool
	logger      *slog.Logger
}

func New(cfg config.SaverConfig, dialog Dialog, log *slog.Logger) *Saver {
	return &Saver{
		dialog: dialog,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.DownloadTimeoutMS) * time.Millisecond,
		},
		atomicWrite: cfg.AtomicWrite,
		logger:      log.With(slog.String("component", "saver")),
	}
}

// DeriveFilename returns the final path segment of the URL. A URL without a
// slash is its own filename; an empty segment falls back to audio.mp3.
func DeriveFilename(rawURL string) string {
	segment := rawURL
	if idx := strings.LastIndex(rawURL, "/"); idx >= 0 {
		segment = rawURL[idx+1:]
	}
	if segment == "" {
		return "audio.mp3"
	}
	return segment
}

// Save runs the two-phase sequence: dialog first, then download and write.
// Cancellation returns nil with no network call and no write.
func (s *Saver) Save(ctx context.Context, rawURL string) error {
	filename := DeriveFilename(rawURL)

	path, ok, err := s.dialog.PickSavePath(ctx, filename)
	if err != nil {
		return fmt.Errorf("save dialog failed: %w", err)
	}
	if !ok {
		s.logger.Info("save cancelled by user")
		return nil
	}

	data, err := s.download(ctx, rawURL)
	if err != nil {
		return err
	}

	if err := s.write(path, data); err != nil {
		return err
	}

	s.logger.Info("audio saved",
		slog.String("path", path),
		slog.Int("bytes", len(data)))
	return nil
}

func (s *Saver) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}
	return data, nil
}

// write persists the bytes, overwriting any existing file. The default mode
// writes in place and may leave a truncated file on failure; atomic mode
// stages a sibling file and renames it over the target.
func (s *Saver) write(path string, data []byte) error {
	if !s.atomicWrite {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write file: %w", err)
		}
		return nil
	}

	tmp := path + ".partial"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
