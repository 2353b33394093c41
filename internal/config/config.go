package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the tutor bot service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	BotToken           string
	TelegramAPIBaseURL string
	WebhookURL         string

	YandexAPIKey      string
	YandexFolderID    string
	YandexSTTURL      string
	YandexTTSURL      string
	YandexGPTURL      string
	YandexGPTModelURI string

	DatabaseURL   string
	HistoryWindow int

	VoiceReplies   bool
	TTSVoice       string
	TTSFormat      string
	SpeechLanguage string

	PendingReplyTTL      time.Duration
	PendingReplyCapacity int
	VendorTimeout        time.Duration
	TmpDir               string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:           envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:   envOrDefault("APP_METRICS_NAMESPACE", "botesp"),
		AllowAnyOrigin:     false,
		BotToken:           envTrimmed("BOT_TOKEN"),
		TelegramAPIBaseURL: envOrDefault("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
		WebhookURL:         envTrimmed("WEBHOOK_URL"),
		YandexAPIKey:       envTrimmed("YANDEX_API_KEY"),
		YandexFolderID:     envTrimmed("YANDEX_FOLDER_ID"),
		YandexSTTURL:       envOrDefault("YANDEX_STT_URL", "https://stt.api.cloud.yandex.net/speech/v1/stt:recognize"),
		YandexTTSURL:       envOrDefault("YANDEX_TTS_URL", "https://tts.api.cloud.yandex.net/speech/v1/tts:synthesize"),
		YandexGPTURL:       envOrDefault("YANDEX_GPT_URL", "https://llm.api.cloud.yandex.net/foundationModels/v1/completion"),
		YandexGPTModelURI:  envTrimmed("YANDEX_GPT_MODEL_URI"),
		DatabaseURL:        envTrimmed("DATABASE_URL"),
		HistoryWindow:      6,
		VoiceReplies:       true,
		// Default to a Spanish-capable SpeechKit voice.
		TTSVoice:             envOrDefault("TTS_VOICE", "madirus"),
		TTSFormat:            envOrDefault("TTS_FORMAT", "oggopus"),
		SpeechLanguage:       envOrDefault("SPEECH_LANGUAGE", "es-ES"),
		PendingReplyTTL:      30 * time.Minute,
		PendingReplyCapacity: 1024,
		VendorTimeout:        30 * time.Second,
		TmpDir:               envOrDefault("TMP_DIR", os.TempDir()),
		ShutdownTimeout:      15 * time.Second,
	}

	if cfg.YandexGPTModelURI == "" && cfg.YandexFolderID != "" {
		cfg.YandexGPTModelURI = fmt.Sprintf("gpt://%s/yandexgpt/latest", cfg.YandexFolderID)
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.VendorTimeout, err = durationFromEnv("VENDOR_TIMEOUT", cfg.VendorTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.PendingReplyTTL, err = durationFromEnv("PENDING_REPLY_TTL", cfg.PendingReplyTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.PendingReplyCapacity, err = intFromEnv("PENDING_REPLY_CAPACITY", cfg.PendingReplyCapacity)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryWindow, err = intFromEnv("HISTORY_WINDOW", cfg.HistoryWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.VoiceReplies, err = boolFromEnv("VOICE_REPLIES", cfg.VoiceReplies)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.BotToken == "" {
		return Config{}, fmt.Errorf("BOT_TOKEN is required")
	}
	if cfg.HistoryWindow < 1 {
		return Config{}, fmt.Errorf("HISTORY_WINDOW must be at least 1")
	}
	if cfg.VendorTimeout < time.Second {
		return Config{}, fmt.Errorf("VENDOR_TIMEOUT must be at least 1s")
	}
	if cfg.PendingReplyTTL < time.Minute {
		return Config{}, fmt.Errorf("PENDING_REPLY_TTL must be at least 1m")
	}
	if cfg.PendingReplyCapacity < 1 {
		return Config{}, fmt.Errorf("PENDING_REPLY_CAPACITY must be positive")
	}
	switch cfg.TTSFormat {
	case "oggopus", "lpcm":
	default:
		return Config{}, fmt.Errorf("invalid TTS_FORMAT: %q (expected oggopus|lpcm)", cfg.TTSFormat)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
