package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/xmimu/manbo-tts/internal/config"
)

// Request contains parameters to synthesize speech. APIKey is a bearer
// credential and must never appear in logs or error messages.
type Request struct {
	Text   string
	APIKey string
	Format string
}

// Client calls the remote synthesis API and returns the hosted audio URL.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg config.SynthesisConfig, log *slog.Logger) *Client {
	return &Client{
		endpoint: cfg.Endpoint,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
		},
		logger: log.With(slog.String("component", "synth")),
	}
}

// NormalizeFormat maps any requested format onto the two the upstream
// supports. Only the exact literal "wav" survives; everything else becomes
// "mp3".
func NormalizeFormat(format string) string {
	if format == "wav" {
		return "wav"
	}
	return "mp3"
}

// Synthesize issues a single GET to the synthesis endpoint and validates the
// JSON envelope. No retry on any failure.
func (c *Client) Synthesize(ctx context.Context, req Request) (string, error) {
	format := NormalizeFormat(req.Format)

	c.logger.Info("synthesizing speech",
		slog.Int("text_length", len(req.Text)),
		slog.String("format", format))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build synthesis request: %w", err)
	}
	query := url.Values{}
	query.Set("text", req.Text)
	query.Set("format", format)
	httpReq.URL.RawQuery = query.Encode()
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("network request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	audioURL, err := parseEnvelope(body, resp.StatusCode)
	if err != nil {
		return "", err
	}

	c.logger.Info("synthesis completed", slog.Int("text_length", len(req.Text)))

	return audioURL, nil
}

// parseEnvelope validates the {code, msg?, url?} response. Any single JSON
// value is accepted; only malformed JSON is a parse failure. The upstream is
// not strict about field types, so each field degrades independently: a
// missing or non-integer code counts as 0 (failure), a missing or non-string
// msg falls back to a generic message, and a missing or non-string url on a
// code==200 envelope is its own error.
func parseEnvelope(body []byte, httpStatus int) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var env any
	if err := dec.Decode(&env); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if dec.More() {
		return "", fmt.Errorf("failed to parse response: trailing data after JSON value")
	}

	// A non-object body has no fields: code stays 0 and the response is
	// reported as an api error with the fallback message.
	fields, _ := env.(map[string]any)

	var code int64
	if n, ok := fields["code"].(json.Number); ok {
		if v, err := n.Int64(); err == nil {
			code = v
		}
	}
	if code != 200 {
		msg, ok := fields["msg"].(string)
		if !ok {
			msg = "unknown error"
		}
		return "", fmt.Errorf("api error %d: %s", httpStatus, msg)
	}

	audioURL, ok := fields["url"].(string)
	if !ok {
		return "", fmt.Errorf("response missing url field")
	}
	return audioURL, nil
}
