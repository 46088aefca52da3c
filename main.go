package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bond/config"
	"bond/intent"
	"bond/jira"
	"bond/journal"
	"bond/llm"
)

var (
	cfgFile string
	logger  *log.Logger
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "config file (default ./config.yaml or ~/.config/bond/config.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "Log at debug level")
	rootCmd.PersistentFlags().Int("http-port", 3000, "API server port")
	rootCmd.PersistentFlags().Int("status-port", 4000, "Bot status server port")
	rootCmd.PersistentFlags().String("queue-url", "", "Sentence queue base URL")
	rootCmd.PersistentFlags().String("jira-board", "", "Jira board ID")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("http.port", rootCmd.PersistentFlags().Lookup("http-port"))
	viper.BindPFlag(
		"status.port",
		rootCmd.PersistentFlags().Lookup("status-port"),
	)
	viper.BindPFlag("queue.url", rootCmd.PersistentFlags().Lookup("queue-url"))
	viper.BindPFlag(
		"jira.board_id",
		rootCmd.PersistentFlags().Lookup("jira-board"),
	)

	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(boardCmd)
	rootCmd.AddCommand(interpretCmd)
	rootCmd.AddCommand(setupCmd)
}

func initConfig() {
	logger = log.New(os.Stderr)
	if err := config.Init(viper.GetViper(), cfgFile); err != nil {
		logger.Warn("config not loaded", "error", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bond",
	Short: "bond turns spoken standup chatter into Jira board updates",
	Long: `bond listens to a Discord voice channel, transcribes each speaker,
interprets finished sentences as board commands and applies them to Jira
once a human confirms them.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

type loggers struct {
	main *log.Logger
	hear *log.Logger
	chat *log.Logger
	data *log.Logger
	http *log.Logger
	pipe *log.Logger
}

func createLoggers() loggers {
	logLevel := log.InfoLevel
	if viper.GetBool("debug") {
		logLevel = log.DebugLevel
	}

	logger.SetLevel(logLevel)
	logger.SetReportCaller(true)
	logger.SetCallerFormatter(
		func(file string, line int, funcName string) string {
			path, err := filepath.Rel(".", file)
			if err != nil {
				path = file
			}
			return fmt.Sprintf("%s:%d", path, line)
		},
	)

	styles := log.DefaultStyles()
	styles.Prefix = styles.Prefix.MarginTop(1).
		Bold(false).Transform(func(s string) string {
		return strings.TrimSuffix(s, ":")
	})
	styles.Levels[log.InfoLevel] = styles.Levels[log.InfoLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Levels[log.ErrorLevel] = styles.Levels[log.ErrorLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Message = styles.Message.Bold(true).Width(24)
	styles.Key = styles.Key.MarginLeft(1).
		Bold(false).
		Foreground(lipgloss.Color("#ff8800"))

	logger.SetStyles(styles)

	return loggers{
		main: logger.With().WithPrefix("main"),
		hear: logger.With().WithPrefix("hear"),
		chat: logger.With().WithPrefix("chat"),
		data: logger.With().WithPrefix("data"),
		http: logger.With().WithPrefix("http"),
		pipe: logger.With().WithPrefix("pipe"),
	}
}

// loadConfig exits when the configuration is unusable for the command.
func loadConfig(l *log.Logger, require ...func(*config.Config) error) *config.Config {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		l.Fatal("invalid configuration", "error", err)
	}
	for _, check := range require {
		if err := check(cfg); err != nil {
			l.Fatal("incomplete configuration", "error", err, "hint", "run bond setup")
		}
	}
	return cfg
}

func newTracker(cfg *config.Config, l *log.Logger) *jira.Client {
	return jira.NewClient(jira.Config{
		BaseURL:  cfg.Jira.BaseURL,
		Email:    cfg.Jira.Email,
		APIToken: cfg.Jira.APIToken,
		BoardID:  cfg.Jira.BoardID,
	}, l)
}

// newInterpreter wires the configured language model into the tiered
// interpreter. The returned func releases the model client.
func newInterpreter(
	ctx context.Context,
	cfg *config.Config,
	l *log.Logger,
) (*intent.Interpreter, func(), error) {
	var (
		model   llm.LanguageModel
		release = func() {}
	)

	switch cfg.LLM.Provider {
	case "openai":
		model = llm.NewOpenAILanguageModel(cfg.LLM.OpenAIKey, cfg.LLM.OpenAIModel, l)
	case "gemini":
		gemini, err := llm.NewGeminiLanguageModel(ctx, cfg.LLM.GeminiKey, cfg.LLM.GeminiModel, l)
		if err != nil {
			return nil, nil, err
		}
		model = gemini
		release = func() {
			if err := gemini.Close(); err != nil {
				l.Warn("failed to close Gemini client", "error", err)
			}
		}
	}

	var semantic *intent.SemanticResolver
	if model != nil {
		semantic = intent.NewSemanticResolver(model, l)
	} else {
		l.Warn("no language model configured, using pattern rules only")
	}
	return intent.NewInterpreter(semantic, cfg.NonePolicy, l), release, nil
}

// openJournal uses Postgres when database.url is set and an in-memory
// ring otherwise.
func openJournal(
	ctx context.Context,
	cfg *config.Config,
	l *log.Logger,
) (journal.Journal, func(), error) {
	if cfg.DatabaseURL == "" {
		l.Info("activity journal in memory")
		return journal.NewMemory(0), func() {}, nil
	}
	pg, err := journal.OpenPostgres(ctx, cfg.DatabaseURL, l)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}
