package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"bond/intent"
)

const EnvPrefix = "BOND"

type Discord struct {
	Token   string
	Guild   string
	Channel string
}

type Speechmatics struct {
	APIKey   string
	URL      string
	Language string
}

type Jira struct {
	BaseURL    string
	Email      string
	APIToken   string
	BoardID    string
	MaxResults int
}

type LLM struct {
	Provider    string
	OpenAIKey   string
	OpenAIModel string
	GeminiKey   string
	GeminiModel string
}

type Config struct {
	Discord      Discord
	Speechmatics Speechmatics
	Jira         Jira
	LLM          LLM

	Silence     time.Duration
	QueueURL    string
	HTTPPort    int
	StatusPort  int
	NonePolicy  intent.NonePolicy
	Interval    time.Duration
	DatabaseURL string
}

// SetDefaults registers every key so AutomaticEnv can resolve it.
func SetDefaults(v *viper.Viper) {
	defaults := map[string]any{
		"discord.token":           "",
		"discord.guild":           "",
		"discord.channel":         "",
		"speechmatics.api_key":    "",
		"speechmatics.url":        "wss://eu2.rt.speechmatics.com/v2",
		"speechmatics.language":   "en",
		"voice.silence":           time.Second,
		"queue.url":               "http://localhost:3000",
		"http.port":               3000,
		"status.port":             4000,
		"llm.provider":            "openai",
		"openai.api_key":          "",
		"openai.model":            "gpt-4o-mini",
		"gemini.api_key":          "",
		"gemini.model":            "gemini-1.5-flash",
		"jira.base_url":           "",
		"jira.email":              "",
		"jira.api_token":          "",
		"jira.board_id":           "",
		"jira.max_results":        200,
		"interpreter.none_policy": "fallback",
		"pipeline.interval":       2 * time.Second,
		"database.url":            "",
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Init points v at config.yaml and the BOND_ environment. A missing
// config file is not an error.
func Init(v *viper.Viper, file string) error {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Dir is $HOME/.config/bond.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "bond"), nil
}

func Load(v *viper.Viper) (*Config, error) {
	policy, err := intent.ParseNonePolicy(v.GetString("interpreter.none_policy"))
	if err != nil {
		return nil, err
	}

	provider := strings.ToLower(v.GetString("llm.provider"))
	switch provider {
	case "openai", "gemini", "none":
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}

	cfg := &Config{
		Discord: Discord{
			Token:   v.GetString("discord.token"),
			Guild:   v.GetString("discord.guild"),
			Channel: v.GetString("discord.channel"),
		},
		Speechmatics: Speechmatics{
			APIKey:   v.GetString("speechmatics.api_key"),
			URL:      v.GetString("speechmatics.url"),
			Language: v.GetString("speechmatics.language"),
		},
		Jira: Jira{
			BaseURL:    strings.TrimRight(v.GetString("jira.base_url"), "/"),
			Email:      v.GetString("jira.email"),
			APIToken:   v.GetString("jira.api_token"),
			BoardID:    v.GetString("jira.board_id"),
			MaxResults: v.GetInt("jira.max_results"),
		},
		LLM: LLM{
			Provider:    provider,
			OpenAIKey:   v.GetString("openai.api_key"),
			OpenAIModel: v.GetString("openai.model"),
			GeminiKey:   v.GetString("gemini.api_key"),
			GeminiModel: v.GetString("gemini.model"),
		},
		Silence:     v.GetDuration("voice.silence"),
		QueueURL:    strings.TrimRight(v.GetString("queue.url"), "/"),
		HTTPPort:    v.GetInt("http.port"),
		StatusPort:  v.GetInt("status.port"),
		NonePolicy:  policy,
		Interval:    v.GetDuration("pipeline.interval"),
		DatabaseURL: v.GetString("database.url"),
	}

	if cfg.Silence <= 0 {
		return nil, fmt.Errorf("voice.silence must be positive, got %s", cfg.Silence)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("pipeline.interval must be positive, got %s", cfg.Interval)
	}
	return cfg, nil
}

type field struct {
	key   string
	value string
}

func firstMissing(fields ...field) error {
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("missing required config key %s (env %s)", f.key, EnvName(f.key))
		}
	}
	return nil
}

// EnvName is the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func (c *Config) RequireListen() error {
	return firstMissing(
		field{"discord.token", c.Discord.Token},
		field{"discord.guild", c.Discord.Guild},
		field{"speechmatics.api_key", c.Speechmatics.APIKey},
		field{"queue.url", c.QueueURL},
	)
}

func (c *Config) RequireTracker() error {
	fields := []field{
		{"jira.base_url", c.Jira.BaseURL},
		{"jira.api_token", c.Jira.APIToken},
		{"jira.board_id", c.Jira.BoardID},
	}
	return firstMissing(fields...)
}

// RequireLLM checks the key for the selected provider. The "none"
// provider disables the semantic tier.
func (c *Config) RequireLLM() error {
	switch c.LLM.Provider {
	case "openai":
		return firstMissing(field{"openai.api_key", c.LLM.OpenAIKey})
	case "gemini":
		return firstMissing(field{"gemini.api_key", c.LLM.GeminiKey})
	}
	return nil
}

func (c *Config) RequireServe() error {
	if err := c.RequireTracker(); err != nil {
		return err
	}
	return c.RequireLLM()
}
