package saver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/mattn/go-shellwords"

	"github.com/xmimu/manbo-tts/internal/config"
)

// Dialog is the native save-file capability provided by the host environment.
type Dialog interface {
	// PickSavePath presents a save dialog pre-populated with the suggested
	// filename and blocks until the user responds. ok is false when the user
	// cancelled; cancellation is not an error.
	PickSavePath(ctx context.Context, suggested string) (path string, ok bool, err error)
}

// NewDialog builds the dialog adapter selected in config.
func NewDialog(cfg config.SaverConfig) (Dialog, error) {
	switch cfg.DialogMode {
	case "exec":
		return newExecDialog(cfg.DialogCommand)
	case "mock":
		return &mockDialog{}, nil
	default:
		return nil, fmt.Errorf("unknown dialog mode %q", cfg.DialogMode)
	}
}

// mockDialog cancels every request. It keeps headless runs safe: save_audio
// becomes a no-op instead of writing anywhere.
type mockDialog struct{}

func (m *mockDialog) PickSavePath(ctx context.Context, suggested string) (string, bool, error) {
	return "", false, nil
}

// execDialog shells out to a helper that owns the OS-native dialog. The
// helper reads one JSON request on stdin and writes one JSON response on
// stdout; it blocks for as long as the user keeps the dialog open.
type execDialog struct {
	cmd []string
}

type execDialogRequest struct {
	SuggestedFilename string `json:"suggested_filename"`
}

type execDialogResponse struct {
	Path      string `json:"path"`
	Cancelled bool   `json:"cancelled"`
}

func newExecDialog(command string) (Dialog, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse dialog command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("dialog command empty")
	}
	return &execDialog{cmd: args}, nil
}

func (e *execDialog) PickSavePath(ctx context.Context, suggested string) (string, bool, error) {
	payload, err := json.Marshal(execDialogRequest{SuggestedFilename: suggested})
	if err != nil {
		return "", false, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(payload)

	out, err := cmd.Output()
	if err != nil {
		return "", false, fmt.Errorf("dialog helper failed: %w", err)
	}

	var resp execDialogResponse
	if err := json.Unmarshal(bytes.TrimSpace(out), &resp); err != nil {
		return "", false, fmt.Errorf("decode dialog response: %w", err)
	}
	if resp.Cancelled || resp.Path == "" {
		return "", false, nil
	}
	return resp.Path, true, nil
}
