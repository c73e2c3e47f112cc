// Package config assembles process configuration from the environment, an
// optional .env file and an optional YAML file of voice tuning.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/satriahrh/jumpgpt/internal/voice"
)

var validProviders = map[string][]string{
	"store": {"sqlite", "mongo", "memory"},
	"llm":   {"openai", "gemini", "mock"},
	"stt":   {"openai", "google", "mock"},
	"tts":   {"openai", "elevenlabs", "mock"},
}

// Config is the full process configuration
type Config struct {
	Port      string
	LogLevel  string
	JWTSecret string
	TimeZone  string

	Store      string
	SQLitePath string
	MongoURI   string
	MongoDB    string

	LLMProvider string
	STTProvider string
	TTSProvider string

	OpenAI     OpenAIConfig
	Gemini     GeminiConfig
	ElevenLabs ElevenLabsConfig

	CacheDir string
	Voice    voice.Config
	Audio    AudioConfig
}

type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	ChatModel string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type ElevenLabsConfig struct {
	APIKey  string
	VoiceID string
	ModelID string
}

// AudioConfig holds device settings
type AudioConfig struct {
	// SampleRate is the capture rate of recordings
	SampleRate int `yaml:"sample_rate"`
	// PlaybackSampleRate is the speaker mixing rate
	PlaybackSampleRate int    `yaml:"playback_sample_rate"`
	Language           string `yaml:"language"`
}

// tuningFile is the layout of the VOICE_CONFIG file
type tuningFile struct {
	Voice voice.Config `yaml:"voice"`
	Audio AudioConfig  `yaml:"audio"`
}

// Getenv is the environment lookup used by Load
type Getenv func(key string) string

// LoadDotEnv loads path into the process environment. A missing file is
// not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config: load %q: %w", path, err)
	}
	return nil
}

// Load builds a validated Config from getenv
func Load(getenv Getenv) (*Config, error) {
	home, _ := os.UserCacheDir()
	if home == "" {
		home = os.TempDir()
	}
	dataDir := filepath.Join(home, "jumpgpt")

	cfg := &Config{
		Port:        withDefault(getenv("PORT"), "8080"),
		LogLevel:    withDefault(getenv("LOG_LEVEL"), "info"),
		JWTSecret:   getenv("JWT_SECRET"),
		TimeZone:    getenv("TZ"),
		Store:       withDefault(getenv("STORE"), "sqlite"),
		SQLitePath:  withDefault(getenv("SQLITE_PATH"), filepath.Join(dataDir, "jumpgpt.db")),
		MongoURI:    getenv("MONGODB_URI"),
		MongoDB:     getenv("MONGODB_DATABASE"),
		LLMProvider: withDefault(getenv("LLM_PROVIDER"), "openai"),
		STTProvider: withDefault(getenv("STT_PROVIDER"), "openai"),
		TTSProvider: withDefault(getenv("TTS_PROVIDER"), "openai"),
		OpenAI: OpenAIConfig{
			APIKey:    getenv("OPENAI_API_KEY"),
			BaseURL:   getenv("OPENAI_BASE_URL"),
			ChatModel: getenv("OPENAI_MODEL"),
		},
		Gemini: GeminiConfig{
			APIKey: getenv("GEMINI_API_KEY"),
			Model:  getenv("GEMINI_MODEL"),
		},
		ElevenLabs: ElevenLabsConfig{
			APIKey:  getenv("ELEVEN_LABS_API_KEY"),
			VoiceID: getenv("ELEVEN_LABS_VOICE_ID"),
			ModelID: getenv("ELEVEN_LABS_MODEL_ID"),
		},
		CacheDir: withDefault(getenv("CACHE_DIR"), filepath.Join(dataDir, "speech")),
		Voice:    voice.DefaultConfig(),
		Audio: AudioConfig{
			SampleRate:         16000,
			PlaybackSampleRate: 44100,
			Language:           "en-US",
		},
	}

	if rate := getenv("AUDIO_SAMPLE_RATE"); rate != "" {
		n, err := strconv.Atoi(rate)
		if err != nil {
			return nil, fmt.Errorf("config: AUDIO_SAMPLE_RATE %q: %w", rate, err)
		}
		cfg.Audio.SampleRate = n
	}

	if path := getenv("VOICE_CONFIG"); path != "" {
		if err := cfg.loadTuning(path); err != nil {
			return nil, err
		}
	}

	// The environment wins over the tuning file for the recording location
	if dir := getenv("RECORDING_DIR"); dir != "" {
		cfg.Voice.RecordingDir = dir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadTuning(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	if err := c.DecodeTuning(f); err != nil {
		return fmt.Errorf("config: parse %q: %w", path, err)
	}
	return nil
}

// DecodeTuning overlays voice and audio settings read from r. Fields absent
// from the document keep their current values.
func (c *Config) DecodeTuning(r io.Reader) error {
	file := tuningFile{Voice: c.Voice, Audio: c.Audio}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode yaml: %w", err)
	}
	c.Voice = file.Voice
	c.Audio = file.Audio
	return nil
}

// Location returns the configured time zone, or the local zone when unset
func (c *Config) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.TimeZone)
}

// Validate returns a joined error listing every problem found
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, checkProvider("store", c.Store))
	errs = append(errs, checkProvider("llm", c.LLMProvider))
	errs = append(errs, checkProvider("stt", c.STTProvider))
	errs = append(errs, checkProvider("tts", c.TTSProvider))

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}

	needsOpenAI := c.LLMProvider == "openai" || c.STTProvider == "openai" || c.TTSProvider == "openai"
	if needsOpenAI && c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required by the openai provider"))
	}
	if c.LLMProvider == "gemini" && c.Gemini.APIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY is required by the gemini provider"))
	}
	if c.TTSProvider == "elevenlabs" && c.ElevenLabs.APIKey == "" {
		errs = append(errs, errors.New("ELEVEN_LABS_API_KEY is required by the elevenlabs provider"))
	}
	if c.Store == "sqlite" && c.SQLitePath == "" {
		errs = append(errs, errors.New("SQLITE_PATH is required by the sqlite store"))
	}
	if c.Store == "mongo" && c.MongoURI == "" {
		errs = append(errs, errors.New("MONGODB_URI is required by the mongo store"))
	}
	if c.CacheDir == "" {
		errs = append(errs, errors.New("CACHE_DIR is required"))
	}

	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate))
	}
	if c.Audio.PlaybackSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.playback_sample_rate must not be negative, got %d", c.Audio.PlaybackSampleRate))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("TZ %q: %w", c.TimeZone, err))
	}
	if err := c.Voice.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("voice: %w", err))
	}

	return errors.Join(errs...)
}

func checkProvider(kind, name string) error {
	if slices.Contains(validProviders[kind], name) {
		return nil
	}
	return fmt.Errorf("%s provider %q is invalid; valid values: %v", kind, name, validProviders[kind])
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
