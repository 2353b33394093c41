package speech

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Transcoder converts an intermediate audio container into the OggOpus
// voice-note container Telegram expects.
type Transcoder interface {
	ToOggOpus(ctx context.Context, inPath, outPath string) error
}

// FFmpegTranscoder shells out to ffmpeg for the WAV -> OggOpus step.
type FFmpegTranscoder struct {
	binary string
}

func NewFFmpegTranscoder(binary string) *FFmpegTranscoder {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &FFmpegTranscoder{binary: binary}
}

func (t *FFmpegTranscoder) ToOggOpus(ctx context.Context, inPath, outPath string) error {
	cmd := exec.CommandContext(ctx, t.binary,
		"-y",
		"-i", inPath,
		"-c:a", "libopus",
		"-b:a", "32k",
		"-ac", "1",
		outPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if len(detail) > 512 {
			detail = detail[len(detail)-512:]
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, detail)
	}
	return nil
}
