package saver

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/xmimu/manbo-tts/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubDialog scripts the user's dialog response and records the suggestion.
type stubDialog struct {
	path      string
	cancelled bool
	suggested string
	calls     int
}

func (d *stubDialog) PickSavePath(ctx context.Context, suggested string) (string, bool, error) {
	d.calls++
	d.suggested = suggested
	if d.cancelled {
		return "", false, nil
	}
	return d.path, true, nil
}

func newSaver(dialog Dialog, atomicWrite bool) *Saver {
	cfg := config.SaverConfig{DownloadTimeoutMS: 2000, AtomicWrite: atomicWrite}
	return New(cfg, dialog, newLogger())
}

func TestDeriveFilename(t *testing.T) {
	cases := map[string]string{
		"https://x/y/audio.wav": "audio.wav",
		"https://x/clip.mp3":    "clip.mp3",
		"noslash.mp3":           "noslash.mp3",
		"":                      "audio.mp3",
		"https://x/y/":          "audio.mp3",
	}
	for input, want := range cases {
		if got := DeriveFilename(input); got != want {
			t.Errorf("DeriveFilename(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	target := filepath.Join(t.TempDir(), "out.mp3")
	dialog := &stubDialog{path: target}
	s := newSaver(dialog, false)

	if err := s.Save(context.Background(), server.URL+"/clip.mp3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dialog.suggested != "clip.mp3" {
		t.Fatalf("expected suggested filename clip.mp3, got %q", dialog.suggested)
	}

	written, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read written file: %v", err)
	}
	if !bytes.Equal(written, payload) {
		t.Fatalf("written bytes differ: got %v, want %v", written, payload)
	}
}

func TestSaveCancelledIsNoOp(t *testing.T) {
	var downloads int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&downloads, 1)
	}))
	defer server.Close()

	dir := t.TempDir()
	dialog := &stubDialog{cancelled: true}
	s := newSaver(dialog, false)

	if err := s.Save(context.Background(), server.URL+"/clip.mp3"); err != nil {
		t.Fatalf("cancel must not be an error, got %v", err)
	}
	if atomic.LoadInt32(&downloads) != 0 {
		t.Fatal("cancel must not trigger a download")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("cancel must not write files, found %d entries", len(entries))
	}
}

func TestSaveDialogBeforeDownload(t *testing.T) {
	var downloads int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&downloads, 1)
		w.Write([]byte("audio"))
	}))
	defer server.Close()

	target := filepath.Join(t.TempDir(), "a.mp3")
	dialog := &downloadCountingDialog{path: target, downloads: &downloads}
	s := newSaver(dialog, false)

	if err := s.Save(context.Background(), server.URL+"/a.mp3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dialog.noDownloadsAtPick {
		t.Fatal("download started before the dialog returned")
	}
}

type downloadCountingDialog struct {
	path              string
	downloads         *int32
	noDownloadsAtPick bool
}

func (d *downloadCountingDialog) PickSavePath(ctx context.Context, suggested string) (string, bool, error) {
	d.noDownloadsAtPick = atomic.LoadInt32(d.downloads) == 0
	return d.path, true, nil
}

func TestSaveOverwritesExistingFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("new"))
	}))
	defer server.Close()

	target := filepath.Join(t.TempDir(), "out.mp3")
	if err := os.WriteFile(target, []byte("old content"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	s := newSaver(&stubDialog{path: target}, false)
	if err := s.Save(context.Background(), server.URL+"/out.mp3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	written, _ := os.ReadFile(target)
	if string(written) != "new" {
		t.Fatalf("expected overwrite, got %q", written)
	}
}

func TestSaveDownloadFailure(t *testing.T) {
	target := filepath.Join(t.TempDir(), "out.mp3")
	s := newSaver(&stubDialog{path: target}, false)

	err := s.Save(context.Background(), "http://127.0.0.1:1/clip.mp3")
	if err == nil {
		t.Fatal("expected download error")
	}
	if !strings.Contains(err.Error(), "download failed") {
		t.Fatalf("expected download error, got %q", err)
	}
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Fatal("failed download must not create the target file")
	}
}

func TestSaveWriteFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("audio"))
	}))
	defer server.Close()

	target := filepath.Join(t.TempDir(), "missing", "out.mp3")
	s := newSaver(&stubDialog{path: target}, false)

	err := s.Save(context.Background(), server.URL+"/clip.mp3")
	if err == nil {
		t.Fatal("expected write error for nonexistent directory")
	}
	if !strings.Contains(err.Error(), "write") {
		t.Fatalf("expected write error, got %q", err)
	}
}

func TestSaveAtomicWrite(t *testing.T) {
	payload := []byte("atomic payload")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "out.mp3")
	s := newSaver(&stubDialog{path: target}, true)

	if err := s.Save(context.Background(), server.URL+"/out.mp3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	written, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if !bytes.Equal(written, payload) {
		t.Fatalf("written bytes differ")
	}
	if _, err := os.Stat(target + ".partial"); !os.IsNotExist(err) {
		t.Fatal("staging file must not survive a successful save")
	}
}

func TestMockDialogAlwaysCancels(t *testing.T) {
	dialog, err := NewDialog(config.SaverConfig{DialogMode: "mock"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, ok, err := dialog.PickSavePath(context.Background(), "a.mp3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("mock dialog must cancel")
	}
}

func TestNewDialogRejectsEmptyExecCommand(t *testing.T) {
	if _, err := NewDialog(config.SaverConfig{DialogMode: "exec", DialogCommand: ""}); err == nil {
		t.Fatal("expected error for empty exec command")
	}
}
