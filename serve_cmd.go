package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"bond/config"
	"bond/confirm"
	"bond/execute"
	"bond/metrics"
	"bond/pipeline"
	"bond/queue"
	"bond/www"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sentence queue, interpreter, confirmation API and status page",
	Run:   runServe,
}

func init() {
	serveCmd.Flags().
		Bool("remote-queue", false, "Drain the queue at queue.url instead of the local one")
}

func runServe(cmd *cobra.Command, args []string) {
	logs := createLoggers()
	cfg := loadConfig(logs.main, (*config.Config).RequireServe)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := newTracker(cfg, logs.data)

	interpreter, releaseModel, err := newInterpreter(ctx, cfg, logs.pipe)
	if err != nil {
		logs.main.Fatal("create interpreter", "error", err)
	}
	defer releaseModel()

	activity, closeJournal, err := openJournal(ctx, cfg, logs.data)
	if err != nil {
		logs.main.Fatal("open activity journal", "error", err)
	}
	defer closeJournal()

	m := metrics.New()
	local := queue.New()

	var source pipeline.Source = local
	if remote, _ := cmd.Flags().GetBool("remote-queue"); remote {
		logs.pipe.Info("draining remote queue", "url", cfg.QueueURL)
		source = queue.NewClient(cfg.QueueURL)
	}

	consumer := pipeline.New(pipeline.Options{
		Source:      source,
		Tracker:     tracker,
		MaxResults:  cfg.Jira.MaxResults,
		Interpreter: interpreter,
		Gate:        confirm.NewGate(),
		Executor:    execute.NewService(tracker, logs.pipe),
		Journal:     activity,
		Observer:    m,
		Interval:    cfg.Interval,
	}, logs.pipe)

	router := www.NewRouter(www.Options{
		Queue:         local,
		Pipeline:      consumer,
		Board:         tracker,
		MaxResults:    cfg.Jira.MaxResults,
		QueueObserver: m,
		Metrics:       m.Handler(),
	}, logs.http)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Run(ctx)
	})
	g.Go(func() error {
		return www.Serve(ctx, cfg.HTTPPort, router, logs.http)
	})

	if err := g.Wait(); err != nil {
		logs.main.Fatal("serve", "error", err)
	}
}
