package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bond/config"
	"bond/journal"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactively write the bond configuration file",
	Run: func(cmd *cobra.Command, args []string) {
		logs := createLoggers()
		if err := RunSetup(cmd.Context(), logs.main); err != nil {
			logs.main.Fatal("Error during setup", "error", err)
		}
	},
}

func RunSetup(ctx context.Context, l *log.Logger) error {
	l.Info("Starting bond setup...")

	var (
		discordToken    = viper.GetString("discord.token")
		discordGuild    = viper.GetString("discord.guild")
		speechmaticsKey = viper.GetString("speechmatics.api_key")
		provider        = viper.GetString("llm.provider")
		openaiKey       = viper.GetString("openai.api_key")
		geminiKey       = viper.GetString("gemini.api_key")
		jiraURL         = viper.GetString("jira.base_url")
		jiraEmail       = viper.GetString("jira.email")
		jiraToken       = viper.GetString("jira.api_token")
		jiraBoard       = viper.GetString("jira.board_id")
		databaseURL     = viper.GetString("database.url")
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Enter your Discord Bot Token").
				EchoMode(huh.EchoModePassword).
				Value(&discordToken),
			huh.NewInput().
				Title("Discord guild ID").
				Value(&discordGuild),
			huh.NewInput().
				Title("Enter your Speechmatics API Key").
				EchoMode(huh.EchoModePassword).
				Value(&speechmaticsKey),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Language model for interpreting commands").
				Options(huh.NewOptions("openai", "gemini", "none")...).
				Value(&provider),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Enter your OpenAI API Key").
				EchoMode(huh.EchoModePassword).
				Value(&openaiKey),
		).WithHideFunc(func() bool { return provider != "openai" }),
		huh.NewGroup(
			huh.NewInput().
				Title("Enter your Google Cloud (Gemini) API Key").
				EchoMode(huh.EchoModePassword).
				Value(&geminiKey),
		).WithHideFunc(func() bool { return provider != "gemini" }),
		huh.NewGroup(
			huh.NewInput().
				Title("Jira site URL").
				Placeholder("https://example.atlassian.net").
				Value(&jiraURL),
			huh.NewInput().
				Title("Jira account email (leave empty for a bearer token)").
				Value(&jiraEmail),
			huh.NewInput().
				Title("Jira API token").
				EchoMode(huh.EchoModePassword).
				Value(&jiraToken),
			huh.NewInput().
				Title("Jira board ID").
				Value(&jiraBoard),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Postgres URL for the activity journal (optional)").
				Value(&databaseURL),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	if databaseURL != "" {
		if err := checkDatabase(ctx, databaseURL, l); err != nil {
			return err
		}
	}

	values := map[string]string{
		"discord.token":        discordToken,
		"discord.guild":        discordGuild,
		"speechmatics.api_key": speechmaticsKey,
		"llm.provider":         provider,
		"openai.api_key":       openaiKey,
		"gemini.api_key":       geminiKey,
		"jira.base_url":        jiraURL,
		"jira.email":           jiraEmail,
		"jira.api_token":       jiraToken,
		"jira.board_id":        jiraBoard,
		"database.url":         databaseURL,
	}
	for k, v := range values {
		viper.Set(k, v)
	}

	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	l.Info("Setup completed successfully!", "config", path)
	return nil
}

// configPath prefers the file that was loaded, then ~/.config/bond.
func configPath() (string, error) {
	if used := viper.ConfigFileUsed(); used != "" {
		return used, nil
	}
	dir, err := config.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// checkDatabase connects once, which also creates the journal table.
func checkDatabase(ctx context.Context, url string, l *log.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pg, err := journal.OpenPostgres(ctx, url, l)
	if err != nil {
		return fmt.Errorf("database check failed: %w", err)
	}
	pg.Close()
	l.Info("Successfully connected to the database")
	return nil
}
