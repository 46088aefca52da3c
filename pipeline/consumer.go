package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"bond/board"
	"bond/confirm"
	"bond/execute"
	"bond/intent"
	"bond/journal"
)

// Source hands over every pending sentence at once.
type Source interface {
	Drain(ctx context.Context) ([]string, error)
}

type Executor interface {
	Execute(ctx context.Context, cmd intent.Command) (execute.Result, error)
}

type Observer interface {
	Interpreted(tier, action string)
	SnapshotFailed()
	Confirmation(status string)
	Executed(action string, success bool, took time.Duration)
}

type nopObserver struct{}

func (nopObserver) Interpreted(string, string) {}
func (nopObserver) SnapshotFailed() {}
func (nopObserver) Confirmation(string) {}
func (nopObserver) Executed(string, bool, time.Duration) {}

type Options struct {
	Source      Source
	Tracker     board.Tracker
	MaxResults  int
	Interpreter *intent.Interpreter
	Gate        *confirm.Gate
	Executor    Executor
	Journal     journal.Journal
	Observer    Observer
	Interval    time.Duration
}

// Consumer drains the sentence queue, interprets each sentence against
// a fresh board snapshot and parks the result at the confirmation gate.
type Consumer struct {
	opts Options
	log  *log.Logger
}

func New(opts Options, logger *log.Logger) *Consumer {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 200
	}
	if opts.Journal == nil {
		opts.Journal = journal.NewMemory(0)
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Consumer{opts: opts, log: logger}
}

func (c *Consumer) Gate() *confirm.Gate {
	return c.opts.Gate
}

func (c *Consumer) Journal() journal.Journal {
	return c.opts.Journal
}

// Run polls the source until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Poll(ctx); err != nil {
				c.log.Error("poll failed", "error", err)
			}
		}
	}
}

// Poll runs one drain cycle. A sentence whose snapshot cannot be
// fetched is logged and dropped.
func (c *Consumer) Poll(ctx context.Context) error {
	sentences, err := c.opts.Source.Drain(ctx)
	if err != nil {
		return fmt.Errorf("failed to drain queue: %w", err)
	}

	for _, sentence := range sentences {
		if _, err := c.Handle(ctx, sentence); err != nil && !errors.Is(err, confirm.ErrNothingToConfirm) {
			c.log.Error("dropped sentence", "sentence", sentence, "error", err)
		}
	}
	return nil
}

// Interpret resolves a sentence against a freshly fetched snapshot.
func (c *Consumer) Interpret(ctx context.Context, sentence string) (intent.Interpretation, error) {
	snap, err := board.Fetch(ctx, c.opts.Tracker, c.opts.MaxResults)
	if err != nil {
		c.opts.Observer.SnapshotFailed()
		return intent.Interpretation{}, err
	}

	result := c.opts.Interpreter.Interpret(ctx, sentence, snap)
	c.opts.Observer.Interpreted(string(result.Tier), string(result.Command.Action))
	c.log.Info("interpreted", "sentence", sentence, "tier", result.Tier, "command", result.Command.Describe())
	return result, nil
}

// Handle interprets a sentence and submits anything actionable for
// confirmation.
func (c *Consumer) Handle(ctx context.Context, sentence string) (confirm.Request, error) {
	result, err := c.Interpret(ctx, sentence)
	if err != nil {
		return confirm.Request{}, err
	}

	req, err := c.opts.Gate.Submit(result.Command, sentence)
	if err != nil {
		return confirm.Request{}, err
	}
	c.opts.Observer.Confirmation(string(confirm.Pending))
	c.log.Info("awaiting confirmation", "id", req.ID, "label", req.Label)
	return req, nil
}

// Decide applies a human decision. Approval executes the command.
func (c *Consumer) Decide(ctx context.Context, id string, approve bool) (confirm.Request, *execute.Result, error) {
	if !approve {
		req, err := c.opts.Gate.Dismiss(id)
		if err != nil {
			return req, nil, err
		}
		c.opts.Observer.Confirmation(string(confirm.Dismissed))
		c.record(ctx, journal.Entry{
			Kind:      journal.KindDismissed,
			RequestID: req.ID,
			Label:     req.Label,
			Command:   req.Command,
		})
		return req, nil, nil
	}

	req, err := c.opts.Gate.Approve(id)
	if err != nil {
		return req, nil, err
	}
	c.opts.Observer.Confirmation(string(confirm.Approved))

	res, err := c.execute(ctx, req.ID, req.Label, req.Command)
	return req, &res, err
}

// Execute runs a command that was confirmed outside the gate.
func (c *Consumer) Execute(ctx context.Context, cmd intent.Command) (execute.Result, error) {
	return c.execute(ctx, "", cmd.Label(), cmd)
}

func (c *Consumer) execute(ctx context.Context, requestID, label string, cmd intent.Command) (execute.Result, error) {
	start := time.Now()
	res, err := c.opts.Executor.Execute(ctx, cmd)
	c.opts.Observer.Executed(string(cmd.Action), res.Success, time.Since(start))

	entry := journal.Entry{
		Kind:      journal.KindExecuted,
		RequestID: requestID,
		Label:     label,
		Command:   cmd,
		Success:   res.Success,
		Message:   res.Message,
		IssueKey:  res.IssueKey,
	}
	if !res.Success {
		entry.Kind = journal.KindFailed
		entry.Message = res.Error
	}
	c.record(context.WithoutCancel(ctx), entry)
	return res, err
}

func (c *Consumer) record(ctx context.Context, e journal.Entry) {
	if err := c.opts.Journal.Record(ctx, e); err != nil {
		c.log.Error("failed to record activity", "error", err)
	}
}
