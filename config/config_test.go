package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"bond/intent"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := Load(v)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Silence != time.Second || cfg.Interval != 2*time.Second {
		t.Errorf("durations = %s, %s", cfg.Silence, cfg.Interval)
	}
	if cfg.HTTPPort != 3000 || cfg.StatusPort != 4000 {
		t.Errorf("ports = %d, %d", cfg.HTTPPort, cfg.StatusPort)
	}
	if cfg.NonePolicy != intent.NoneFallback {
		t.Errorf("none policy = %v", cfg.NonePolicy)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.OpenAIModel != "gpt-4o-mini" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Jira.MaxResults != 200 || cfg.Speechmatics.Language != "en" {
		t.Errorf("jira = %+v, speechmatics = %+v", cfg.Jira, cfg.Speechmatics)
	}
}

func TestInitReadsFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	yaml := "jira:\n  base_url: https://example.atlassian.net/\n  board_id: \"7\"\nvoice:\n  silence: 1500ms\n"
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOND_JIRA_API_TOKEN", "secret")
	t.Setenv("BOND_INTERPRETER_NONE_POLICY", "accept")

	v := viper.New()
	if err := Init(v, file); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Jira.BaseURL != "https://example.atlassian.net" {
		t.Errorf("base url = %q", cfg.Jira.BaseURL)
	}
	if cfg.Jira.APIToken != "secret" || cfg.Jira.BoardID != "7" {
		t.Errorf("jira = %+v", cfg.Jira)
	}
	if cfg.Silence != 1500*time.Millisecond {
		t.Errorf("silence = %s", cfg.Silence)
	}
	if cfg.NonePolicy != intent.NoneAccept {
		t.Errorf("none policy = %v", cfg.NonePolicy)
	}
	if err := cfg.RequireTracker(); err != nil {
		t.Errorf("RequireTracker() = %v", err)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"policy", "interpreter.none_policy", "sometimes"},
		{"provider", "llm.provider", "claude"},
		{"silence", "voice.silence", "0s"},
		{"interval", "pipeline.interval", "-1s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			v.Set(tt.key, tt.val)
			if _, err := Load(v); err == nil {
				t.Errorf("Load() accepted %s=%v", tt.key, tt.val)
			}
		})
	}
}

func TestRequireReportsFirstMissingKey(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("discord.token", "tok")
	cfg, err := Load(v)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		check func() error
		want  string
	}{
		{"listen", cfg.RequireListen, "discord.guild"},
		{"tracker", cfg.RequireTracker, "jira.base_url"},
		{"llm", cfg.RequireLLM, "openai.api_key"},
		{"serve", cfg.RequireServe, "jira.base_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.check()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}

	cfg.LLM.Provider = "none"
	if err := cfg.RequireLLM(); err != nil {
		t.Errorf("none provider: %v", err)
	}
}

func TestEnvName(t *testing.T) {
	if got := EnvName("speechmatics.api_key"); got != "BOND_SPEECHMATICS_API_KEY" {
		t.Errorf("EnvName() = %q", got)
	}
}
