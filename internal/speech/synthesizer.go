package speech

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Delamole/botesp/internal/audio"
)

// Synthesizer renders reply text as an OggOpus voice-note file. The caller
// owns cleanup of the returned path.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, lang string) (string, error)
}

// SpeechKitSynthesizerConfig configures the SpeechKit synthesize endpoint.
type SpeechKitSynthesizerConfig struct {
	URL      string
	APIKey   string
	FolderID string
	Voice    string
	// Format is the vendor output container: "oggopus" is delivered as-is,
	// "lpcm" is wrapped in WAV and transcoded to OggOpus locally.
	Format         string
	LPCMSampleRate int
	TmpDir         string
	Timeout        time.Duration
	Transcoder     Transcoder
}

type SpeechKitSynthesizer struct {
	cfg    SpeechKitSynthesizerConfig
	client *http.Client
}

func NewSpeechKitSynthesizer(cfg SpeechKitSynthesizerConfig) *SpeechKitSynthesizer {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = "https://tts.api.cloud.yandex.net/speech/v1/tts:synthesize"
	}
	if strings.TrimSpace(cfg.Voice) == "" {
		cfg.Voice = "madirus"
	}
	if strings.TrimSpace(cfg.Format) == "" {
		cfg.Format = "oggopus"
	}
	if cfg.LPCMSampleRate <= 0 {
		cfg.LPCMSampleRate = 48000
	}
	if strings.TrimSpace(cfg.TmpDir) == "" {
		cfg.TmpDir = os.TempDir()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Transcoder == nil {
		cfg.Transcoder = NewFFmpegTranscoder("")
	}
	return &SpeechKitSynthesizer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (s *SpeechKitSynthesizer) Synthesize(ctx context.Context, text, lang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty text", ErrUnavailable)
	}
	if strings.TrimSpace(lang) == "" {
		lang = "es-ES"
	}

	form := url.Values{}
	form.Set("ssml", ssmlFor(text, lang))
	form.Set("folderId", s.cfg.FolderID)
	form.Set("voice", s.cfg.Voice)
	form.Set("format", s.cfg.Format)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Authorization", "Api-Key "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: post synthesis: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read audio: %v", ErrUnavailable, err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: empty audio body", ErrUnavailable)
	}

	outPath := filepath.Join(s.cfg.TmpDir, "resp_"+uuid.NewString()+".ogg")

	if s.cfg.Format == "oggopus" {
		if err := os.WriteFile(outPath, raw, 0o644); err != nil {
			return "", fmt.Errorf("%w: write voice file: %v", ErrUnavailable, err)
		}
		return outPath, nil
	}

	// lpcm path: headerless PCM16LE, wrap as WAV and transcode. A transcode
	// failure is indistinguishable from a synthesis failure for callers.
	wavPath := filepath.Join(s.cfg.TmpDir, "synth_"+uuid.NewString()+".wav")
	if err := audio.WriteWAVFile(wavPath, raw, s.cfg.LPCMSampleRate); err != nil {
		return "", fmt.Errorf("%w: write wav: %v", ErrUnavailable, err)
	}
	defer os.Remove(wavPath)

	if err := s.cfg.Transcoder.ToOggOpus(ctx, wavPath, outPath); err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("%w: transcode: %v", ErrUnavailable, err)
	}
	return outPath, nil
}

// ssmlFor wraps the reply in an SSML lang element, escaping text so vendor
// parsing cannot be broken by user-influenced content.
func ssmlFor(text, lang string) string {
	var b strings.Builder
	b.WriteString(`<speak><lang xml:lang="`)
	b.WriteString(lang)
	b.WriteString(`">`)
	_ = xml.EscapeText(&b, []byte(text))
	b.WriteString(`</lang></speak>`)
	return b.String()
}
