// Package config loads runtime configuration from an optional YAML file,
// a .env file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/koscakluka/ema-referrals/core/conversations"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "EMA"
	configName     = "ema-referrals"
	appDirName     = "ema-referrals"
	preferencesDB  = "preferences.db"
	redactedSecret = "********"
)

const (
	LLMProviderGemini = "gemini"
	LLMProviderGroq   = "groq"
	LLMProviderOpenAI = "openai"
	LLMProviderNone   = "none"

	TTSProviderDeepgram = "deepgram"
	TTSProviderGoogle   = "google"

	AudioBackendMiniaudio = "miniaudio"
	AudioBackendPortaudio = "portaudio"
)

type Config struct {
	Mode            string        `mapstructure:"mode"`
	Language        string        `mapstructure:"language"`
	PreferencesPath string        `mapstructure:"preferences_path"`
	LLM             LLMConfig     `mapstructure:"llm"`
	Speech          SpeechConfig  `mapstructure:"speech"`
	Audio           AudioConfig   `mapstructure:"audio"`
	Web             WebConfig     `mapstructure:"web"`
	Timeouts        TimeoutConfig `mapstructure:"timeouts"`
}

type LLMConfig struct {
	Provider     string `mapstructure:"provider"`
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	GeminiModel  string `mapstructure:"gemini_model"`
	GroqAPIKey   string `mapstructure:"groq_api_key"`
	GroqModel    string `mapstructure:"groq_model"`
	OpenAIAPIKey string `mapstructure:"openai_api_key"`
	OpenAIModel  string `mapstructure:"openai_model"`
	// StructuredExtraction asks Groq for partners when the answer text has
	// none in the expected format. Needs a Groq key.
	StructuredExtraction bool `mapstructure:"structured_extraction"`
}

type SpeechConfig struct {
	DeepgramAPIKey     string `mapstructure:"deepgram_api_key"`
	ListenModel        string `mapstructure:"listen_model"`
	TTSProvider        string `mapstructure:"tts_provider"`
	Voice              string `mapstructure:"voice"`
	SpokenErrorMessage string `mapstructure:"spoken_error_message"`
}

type AudioConfig struct {
	Backend    string `mapstructure:"backend"`
	BufferSize int    `mapstructure:"buffer_size"`
}

type WebConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

type TimeoutConfig struct {
	Query  time.Duration `mapstructure:"query"`
	Speech time.Duration `mapstructure:"speech"`
	// Listen bounds push-to-talk sessions, zero disables it.
	Listen time.Duration `mapstructure:"listen"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", string(conversations.ModePushToTalk))
	v.SetDefault("language", "en-US")
	v.SetDefault("preferences_path", defaultPreferencesPath())

	v.SetDefault("llm.provider", LLMProviderGemini)
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.gemini_model", "")
	v.SetDefault("llm.groq_api_key", "")
	v.SetDefault("llm.groq_model", "")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.openai_model", "")
	v.SetDefault("llm.structured_extraction", false)

	v.SetDefault("speech.deepgram_api_key", "")
	v.SetDefault("speech.listen_model", "")
	v.SetDefault("speech.tts_provider", TTSProviderDeepgram)
	v.SetDefault("speech.voice", "")
	v.SetDefault("speech.spoken_error_message", "Sorry, I could not play the answer.")

	v.SetDefault("audio.backend", AudioBackendMiniaudio)
	v.SetDefault("audio.buffer_size", 512)

	v.SetDefault("web.enabled", false)
	v.SetDefault("web.address", "127.0.0.1:8080")

	v.SetDefault("timeouts.query", 30*time.Second)
	v.SetDefault("timeouts.speech", 2*time.Minute)
	v.SetDefault("timeouts.listen", 60*time.Second)
}

func defaultPreferencesPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, appDirName, preferencesDB)
}

// Load reads configuration. An empty configFile searches for
// ema-referrals.yaml in the working directory and the user config directory;
// a missing file is not an error unless configFile names it explicitly.
// envFiles default to .env, missing env files are ignored.
func Load(configFile string, envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Provider keys keep their conventional names.
	for key, env := range map[string]string{
		"llm.gemini_api_key":      "GEMINI_API_KEY",
		"llm.groq_api_key":        "GROQ_API_KEY",
		"llm.openai_api_key":      "OPENAI_API_KEY",
		"speech.deepgram_api_key": "DEEPGRAM_API_KEY",
	} {
		if err := v.BindEnv(key, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, appDirName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var ErrInvalidConfig = errors.New("invalid config")

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if _, ok := conversations.ParseMode(c.Mode); !ok {
		invalid("unknown mode %q", c.Mode)
	}
	switch c.LLM.Provider {
	case LLMProviderGemini, LLMProviderGroq, LLMProviderOpenAI, LLMProviderNone:
	default:
		invalid("unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.StructuredExtraction && c.LLM.GroqAPIKey == "" {
		invalid("structured extraction needs GROQ_API_KEY")
	}
	switch c.Speech.TTSProvider {
	case TTSProviderDeepgram, TTSProviderGoogle:
	default:
		invalid("unknown tts provider %q", c.Speech.TTSProvider)
	}
	switch c.Audio.Backend {
	case AudioBackendMiniaudio, AudioBackendPortaudio:
	default:
		invalid("unknown audio backend %q", c.Audio.Backend)
	}
	if c.Audio.BufferSize <= 0 {
		invalid("audio buffer size must be positive, got %d", c.Audio.BufferSize)
	}
	if c.Timeouts.Query <= 0 {
		invalid("query timeout must be positive, got %s", c.Timeouts.Query)
	}
	if c.Timeouts.Speech <= 0 {
		invalid("speech timeout must be positive, got %s", c.Timeouts.Speech)
	}
	if c.Timeouts.Listen < 0 {
		invalid("listen timeout must not be negative, got %s", c.Timeouts.Listen)
	}
	if c.Web.Enabled && c.Web.Address == "" {
		invalid("web address is required when the web api is enabled")
	}

	return errors.Join(errs...)
}

func (c *Config) ConversationMode() conversations.Mode {
	mode, ok := conversations.ParseMode(c.Mode)
	if !ok {
		return conversations.ModePushToTalk
	}
	return mode
}

// Redacted returns a copy safe to print, with API keys masked.
func (c Config) Redacted() Config {
	c.LLM.GeminiAPIKey = redact(c.LLM.GeminiAPIKey)
	c.LLM.GroqAPIKey = redact(c.LLM.GroqAPIKey)
	c.LLM.OpenAIAPIKey = redact(c.LLM.OpenAIAPIKey)
	c.Speech.DeepgramAPIKey = redact(c.Speech.DeepgramAPIKey)
	return c
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return redactedSecret
}
