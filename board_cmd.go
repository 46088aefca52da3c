package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"bond/board"
	"bond/config"
	"bond/intent"
	"bond/tui"
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Print the Jira board grouped by column",
	Run:   runBoard,
}

var interpretCmd = &cobra.Command{
	Use:   "interpret <sentence>",
	Short: "Interpret one sentence against the live board",
	Long:  `Fetch a fresh board snapshot, interpret the sentence and print the resulting command as JSON. Nothing is executed.`,
	Args:  cobra.MinimumNArgs(1),
	Run:   runInterpret,
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Approve or dismiss pending commands from the terminal",
	Run:   runConsole,
}

func init() {
	consoleCmd.Flags().String("api", "", "Base URL of bond serve (default queue.url)")
}

func runBoard(cmd *cobra.Command, args []string) {
	logs := createLoggers()
	cfg := loadConfig(logs.main, (*config.Config).RequireTracker)

	view, err := board.Load(cmd.Context(), newTracker(cfg, logs.data), cfg.Jira.MaxResults)
	if err != nil {
		logs.main.Fatal("load board", "error", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Column", "Key", "Summary", "Comments"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)

	appendCards := func(label string, cards []board.Card) {
		for _, c := range cards {
			table.Append([]string{label, c.Key, c.Summary, fmt.Sprintf("%d", c.Comments)})
		}
	}
	for _, lane := range view.Lanes {
		if len(lane.Cards) == 0 {
			table.Append([]string{lane.Label, "", "", ""})
			continue
		}
		appendCards(lane.Label, lane.Cards)
	}
	appendCards("(no column)", view.Unplaced)

	table.Render()
}

func runInterpret(cmd *cobra.Command, args []string) {
	logs := createLoggers()
	cfg := loadConfig(logs.main, (*config.Config).RequireTracker, (*config.Config).RequireLLM)
	ctx := cmd.Context()

	interpreter, release, err := newInterpreter(ctx, cfg, logs.pipe)
	if err != nil {
		logs.main.Fatal("create interpreter", "error", err)
	}
	defer release()

	snap, err := board.Fetch(ctx, newTracker(cfg, logs.data), cfg.Jira.MaxResults)
	if err != nil {
		logs.main.Fatal("fetch board", "error", err)
	}

	result := interpreter.Interpret(ctx, strings.Join(args, " "), snap)
	out := struct {
		intent.Interpretation
		Message string `json:"message"`
	}{result, result.Command.Describe()}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logs.main.Fatal("encode result", "error", err)
	}
}

func runConsole(cmd *cobra.Command, args []string) {
	logs := createLoggers()
	cfg := loadConfig(logs.main)

	api, _ := cmd.Flags().GetString("api")
	if api == "" {
		api = cfg.QueueURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tui.Run(ctx, tui.NewClient(api), cfg.Interval); err != nil {
		logs.main.Fatal("console", "error", err)
	}
}
