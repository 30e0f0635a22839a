// Package config loads the ema-duplex configuration from an optional YAML
// file and EMA_DUPLEX_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const EnvPrefix = "EMA_DUPLEX_"

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config holds all application configuration. API keys are loaded from the
// environment only and never read from or written to the YAML file.
type Config struct {
	ListenAddr        string `yaml:"listen_addr"`
	SampleRate        int    `yaml:"sample_rate"`
	FrameSize         int    `yaml:"frame_size"`
	CaptureSampleRate int    `yaml:"capture_sample_rate"`

	Deepgram DeepgramConfig `yaml:"deepgram"`
	LLM      LLMConfig      `yaml:"llm"`
	Turn     TurnConfig     `yaml:"turn"`

	DeepgramAPIKey string `yaml:"-"`
	GeminiAPIKey   string `yaml:"-"`
	OpenAIAPIKey   string `yaml:"-"`
}

type DeepgramConfig struct {
	Model          string `yaml:"model"`
	Language       string `yaml:"language"`
	EndpointingMS  int    `yaml:"endpointing_ms"`
	UtteranceEndMS int    `yaml:"utterance_end_ms"`
}

type LLMConfig struct {
	Provider            string  `yaml:"provider"`
	EagerModel          string  `yaml:"eager_model"`
	ReplyModel          string  `yaml:"reply_model"`
	Temperature         float32 `yaml:"temperature"`
	ToolPassTemperature float32 `yaml:"tool_pass_temperature"`
	MaxToolSteps        int     `yaml:"max_tool_steps"`
}

type TurnConfig struct {
	MinimumDrain    string `yaml:"minimum_drain"`
	MSPerChar       int    `yaml:"ms_per_char"`
	EagerWait       string `yaml:"eager_wait"`
	ToolPassTimeout string `yaml:"tool_pass_timeout"`
	CarryOverWait   string `yaml:"carry_over_wait"`
	HistoryLimit    int    `yaml:"history_limit"`
}

func defaults() Config {
	return Config{
		ListenAddr:        ":8080",
		SampleRate:        16000,
		FrameSize:         2048,
		CaptureSampleRate: 48000,
		Deepgram: DeepgramConfig{
			Model:          "nova-2",
			Language:       "en",
			EndpointingMS:  300,
			UtteranceEndMS: 1000,
		},
		LLM: LLMConfig{
			Provider:            ProviderGemini,
			EagerModel:          "gemini-2.5-flash-lite",
			ReplyModel:          "gemini-2.0-flash",
			Temperature:         0.6,
			ToolPassTemperature: 0.3,
			MaxToolSteps:        5,
		},
		Turn: TurnConfig{
			MinimumDrain:    "500ms",
			MSPerChar:       80,
			EagerWait:       "3s",
			ToolPassTimeout: "20s",
			CarryOverWait:   "2s",
			HistoryLimit:    16,
		},
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// LLMAPIKey returns the key of the configured provider.
func (c *Config) LLMAPIKey() string {
	if c.LLM.Provider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

func (c *Config) ParsedMinimumDrain() time.Duration {
	return parseDuration(c.Turn.MinimumDrain, 500*time.Millisecond)
}

func (c *Config) PerCharacter() time.Duration {
	if c.Turn.MSPerChar <= 0 {
		return 80 * time.Millisecond
	}
	return time.Duration(c.Turn.MSPerChar) * time.Millisecond
}

func (c *Config) ParsedEagerWait() time.Duration {
	return parseDuration(c.Turn.EagerWait, 3*time.Second)
}

func (c *Config) ParsedToolPassTimeout() time.Duration {
	return parseDuration(c.Turn.ToolPassTimeout, 20*time.Second)
}

// ParsedCarryOverWait is how long speech buffered before a barge-in waits for
// the interrupting transcript before it is answered on its own.
func (c *Config) ParsedCarryOverWait() time.Duration {
	return parseDuration(c.Turn.CarryOverWait, 2*time.Second)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.ListenAddr, "LISTEN_ADDR")
	setInt(&cfg.SampleRate, "SAMPLE_RATE")
	setInt(&cfg.FrameSize, "FRAME_SIZE")
	setInt(&cfg.CaptureSampleRate, "CAPTURE_SAMPLE_RATE")

	setString(&cfg.Deepgram.Model, "DEEPGRAM_MODEL")
	setString(&cfg.Deepgram.Language, "DEEPGRAM_LANGUAGE")
	setInt(&cfg.Deepgram.EndpointingMS, "DEEPGRAM_ENDPOINTING_MS")
	setInt(&cfg.Deepgram.UtteranceEndMS, "DEEPGRAM_UTTERANCE_END_MS")

	setString(&cfg.LLM.Provider, "LLM_PROVIDER")
	setString(&cfg.LLM.EagerModel, "LLM_EAGER_MODEL")
	setString(&cfg.LLM.ReplyModel, "LLM_REPLY_MODEL")
	if v := os.Getenv(EnvPrefix + "LLM_TEMPERATURE"); v != "" {
		if t, err := strconv.ParseFloat(strings.TrimSpace(v), 32); err == nil {
			cfg.LLM.Temperature = float32(t)
		}
	}
	setInt(&cfg.LLM.MaxToolSteps, "LLM_MAX_TOOL_STEPS")

	setString(&cfg.Turn.MinimumDrain, "TURN_MINIMUM_DRAIN")
	setInt(&cfg.Turn.MSPerChar, "TURN_MS_PER_CHAR")
	setString(&cfg.Turn.EagerWait, "TURN_EAGER_WAIT")
	setString(&cfg.Turn.ToolPassTimeout, "TURN_TOOL_PASS_TIMEOUT")
	setString(&cfg.Turn.CarryOverWait, "TURN_CARRY_OVER_WAIT")
	setInt(&cfg.Turn.HistoryLimit, "TURN_HISTORY_LIMIT")
}

func setString(target *string, name string) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*target = v
	}
}

func setInt(target *int, name string) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			*target = n
		}
	}
}

func loadSecrets(cfg *Config) {
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.DeepgramAPIKey == "" {
		warnings = append(warnings, "Deepgram API key not configured, the voice pipeline is disabled. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
	}

	switch cfg.LLM.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown llm.provider %q, using %s.", cfg.LLM.Provider, ProviderGemini))
		cfg.LLM.Provider = ProviderGemini
	}
	if cfg.LLM.Provider == ProviderOpenAI {
		if strings.HasPrefix(cfg.LLM.EagerModel, "gemini") {
			cfg.LLM.EagerModel = "gpt-4o-mini"
		}
		if strings.HasPrefix(cfg.LLM.ReplyModel, "gemini") {
			cfg.LLM.ReplyModel = "gpt-4o"
		}
	}
	if cfg.LLMAPIKey() == "" {
		warnings = append(warnings, fmt.Sprintf("%s API key not configured, replies are disabled. Set %s%s_API_KEY.",
			cfg.LLM.Provider, EnvPrefix, strings.ToUpper(cfg.LLM.Provider)))
	}

	for name, value := range map[string]string{
		"turn.minimum_drain":     cfg.Turn.MinimumDrain,
		"turn.eager_wait":        cfg.Turn.EagerWait,
		"turn.tool_pass_timeout": cfg.Turn.ToolPassTimeout,
		"turn.carry_over_wait":   cfg.Turn.CarryOverWait,
	} {
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			warnings = append(warnings, fmt.Sprintf("Invalid %s %q, using the default.", name, value))
		}
	}

	if cfg.SampleRate <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid sample_rate %d, using 16000.", cfg.SampleRate))
		cfg.SampleRate = 16000
	}

	return warnings
}
