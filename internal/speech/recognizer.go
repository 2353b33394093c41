package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnavailable marks any vendor, transport, or transcode failure. The
// pipeline degrades on it instead of surfacing an error to the user.
var ErrUnavailable = errors.New("speech service unavailable")

// Recognizer converts a recorded voice clip to text.
type Recognizer interface {
	// Transcribe returns the best-effort transcript. An empty string with a
	// nil error means the vendor understood the request but heard nothing
	// usable.
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// SpeechKitRecognizerConfig configures the SpeechKit short-audio endpoint.
type SpeechKitRecognizerConfig struct {
	URL      string
	APIKey   string
	FolderID string
	Language string
	Timeout  time.Duration
}

// SpeechKitRecognizer posts OggOpus voice bytes to the SpeechKit recognize
// endpoint.
type SpeechKitRecognizer struct {
	cfg    SpeechKitRecognizerConfig
	client *http.Client
}

func NewSpeechKitRecognizer(cfg SpeechKitRecognizerConfig) *SpeechKitRecognizer {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = "https://stt.api.cloud.yandex.net/speech/v1/stt:recognize"
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = "es-ES"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SpeechKitRecognizer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (r *SpeechKitRecognizer) Transcribe(ctx context.Context, audio []byte) (string, error) {
	u, err := url.Parse(r.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("%w: parse url: %v", ErrUnavailable, err)
	}
	q := u.Query()
	q.Set("folderId", r.cfg.FolderID)
	q.Set("lang", r.cfg.Language)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Authorization", "Api-Key "+r.cfg.APIKey)
	req.Header.Set("Content-Type", "audio/ogg;codecs=opus")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: post audio: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	var out struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return strings.TrimSpace(out.Result), nil
}
