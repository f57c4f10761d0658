package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries every tunable the assistant reads from the environment.
// It is built once in main and handed to components; nothing reads env vars
// after boot.
type Config struct {
	OpenAIKey    string
	PorcupineKey string

	KeywordPath string  // custom .ppn file; empty = builtin "porcupine"
	Sensitivity float32 // wake-word sensitivity, 0..1

	WhisperModelPath string

	GoogleClientID     string
	GoogleClientSecret string
	CredentialsFile    string // fallback credentials.json
	TokenFile          string
	CalendarID         string

	Location *time.Location

	VoiceModelPath string // set => local synthesizer instead of hosted TTS
	TTSVoice       string

	AckCuePath       string
	UtteranceDumpDir string

	NaturalReplies bool
	DuckAudio      bool

	SocksProxy    string
	ControlSocket string
}

// FromEnv assembles a Config from the process environment, applying
// defaults. Call Validate before using it.
func FromEnv() (*Config, error) {
	cfg := &Config{
		OpenAIKey:          os.Getenv("OPENAI_API_KEY"),
		PorcupineKey:       os.Getenv("PORCUPINE_ACCESS_KEY"),
		KeywordPath:        os.Getenv("WAKEWORD_KEYWORD_PATH"),
		Sensitivity:        0.6,
		WhisperModelPath:   getenv("WHISPER_MODEL_PATH", "models/ggml-base.en.bin"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		CredentialsFile:    getenv("GOOGLE_CREDENTIALS_FILE", "credentials.json"),
		TokenFile:          getenv("GOOGLE_TOKEN_FILE", "token.json"),
		CalendarID:         getenv("CALENDAR_ID", "primary"),
		VoiceModelPath:     os.Getenv("VOICE_MODEL_PATH"),
		TTSVoice:           getenv("TTS_VOICE", "alloy"),
		AckCuePath:         os.Getenv("ACK_CUE_PATH"),
		UtteranceDumpDir:   os.Getenv("UTTERANCE_DUMP_DIR"),
		NaturalReplies:     boolenv("NATURAL_REPLIES"),
		DuckAudio:          boolenv("DUCK_AUDIO"),
		SocksProxy:         os.Getenv("SOCKS_PROXY"),
		ControlSocket:      getenv("CONTROL_SOCKET", "/tmp/ava.sock"),
	}

	if s := os.Getenv("WAKEWORD_SENSITIVITY"); s != "" {
		v, err := strconv.ParseFloat(s, 32)
		if err != nil || v < 0 || v > 1 {
			return nil, fmt.Errorf("WAKEWORD_SENSITIVITY %q: want a number in [0,1]", s)
		}
		cfg.Sensitivity = float32(v)
	}

	tz := os.Getenv("TIMEZONE")
	if tz == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
		}
		cfg.Location = loc
	}

	return cfg, nil
}

// Validate reports the first missing required setting.
func (c *Config) Validate() error {
	if c.OpenAIKey == "" {
		return errors.New("OPENAI_API_KEY not set")
	}
	if c.PorcupineKey == "" {
		return errors.New("PORCUPINE_ACCESS_KEY not set")
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func boolenv(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}
