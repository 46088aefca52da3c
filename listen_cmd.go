package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"bond/config"
	"bond/metrics"
	"bond/queue"
	"bond/speechmatics"
	"bond/stt"
	"bond/voice"
	"bond/www"
)

const sentenceBacklog = 256

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Join the Discord voice channel and queue what people say",
	Run:   runListen,
}

func init() {
	listenCmd.Flags().String("guild", "", "Discord guild ID to join")
	listenCmd.Flags().String("channel", "", "Voice channel ID (default: the busiest one)")
}

func runListen(cmd *cobra.Command, args []string) {
	logs := createLoggers()
	cfg := loadConfig(logs.main, (*config.Config).RequireListen)
	if guild, _ := cmd.Flags().GetString("guild"); guild != "" {
		cfg.Discord.Guild = guild
	}
	if channel, _ := cmd.Flags().GetString("channel"); channel != "" {
		cfg.Discord.Channel = channel
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	producer := queue.NewClient(cfg.QueueURL)
	sentences := make(chan stt.Sentence, sentenceBacklog)

	client := speechmatics.NewClient(cfg.Speechmatics.APIKey, cfg.Speechmatics.URL, logs.hear)
	manager := voice.NewManager(voice.Config{
		Silence:     cfg.Silence,
		Language:    cfg.Speechmatics.Language,
		Recognition: stt.NewSpeechmaticsRecognition(client, logs.hear),
		Sink: func(s stt.Sentence) {
			select {
			case sentences <- s:
			default:
				logs.hear.Warn("sentence backlog full", "speaker", s.Speaker, "text", s.Text)
			}
		},
		OnSessionEnd: func(speaker string) {
			logs.hear.Debug("session ended", "speaker", speaker)
		},
		Observer: m,
	}, logs.hear)

	listener, err := voice.NewListener(
		cfg.Discord.Token,
		cfg.Discord.Guild,
		cfg.Discord.Channel,
		manager,
		logs.chat,
	)
	if err != nil {
		logs.main.Fatal("create listener", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listener.Run(ctx)
	})
	g.Go(func() error {
		forwardSentences(ctx, sentences, producer, logs.hear)
		return nil
	})
	g.Go(func() error {
		return www.Serve(ctx, cfg.StatusPort, www.NewStatusRouter(listener, m.Handler()), logs.http)
	})

	if err := g.Wait(); err != nil {
		logs.main.Fatal("listen", "error", err)
	}
}

// forwardSentences posts each final sentence to the queue in order. A
// failed post is logged and the sentence is lost.
func forwardSentences(
	ctx context.Context,
	sentences <-chan stt.Sentence,
	producer *queue.Client,
	l *log.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-sentences:
			if err := producer.Enqueue(ctx, s.Text); err != nil {
				l.Error("failed to queue sentence", "text", s.Text, "error", err)
				continue
			}
			l.Debug("queued", "speaker", s.Speaker, "text", s.Text)
		}
	}
}
