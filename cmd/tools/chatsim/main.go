package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ergochat/readline"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/courseai/courseai/backend/internal/analysis/intent"
	"github.com/courseai/courseai/backend/internal/config"
	"github.com/courseai/courseai/backend/internal/logging"
	"github.com/courseai/courseai/backend/internal/widget"
)

type options struct {
	delay   time.Duration
	policy  string
	rules   string
	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	_ = godotenv.Load()

	var opts options
	cmd := &cobra.Command{
		Use:          "chatsim",
		Short:        "Talk to the CourseAI assistant widget from a terminal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("delay") {
				opts.delay = cfg.Widget.ReplyDelay
			}
			if !cmd.Flags().Changed("policy") {
				opts.policy = cfg.Widget.BusyPolicy
			}
			if !cmd.Flags().Changed("rules") {
				opts.rules = cfg.Widget.RulesFile
			}
			return run(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&opts.delay, "delay", widget.DefaultReplyDelay, "simulated typing delay (default from REPLY_DELAY)")
	cmd.Flags().StringVar(&opts.policy, "policy", string(widget.PolicyReject), "busy policy: reject or queue (default from BUSY_POLICY)")
	cmd.Flags().StringVar(&opts.rules, "rules", "", "YAML rules file (default from RULES_FILE, built-in table if empty)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log controller activity to stderr")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, opts options, out io.Writer) error {
	policy, err := widget.ParseBusyPolicy(opts.policy)
	if err != nil {
		return err
	}

	table, err := intent.Load(opts.rules)
	if err != nil {
		return err
	}

	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	logger, err := logging.New(level, "console", os.Stderr)
	if err != nil {
		return err
	}

	wcfg := cfg.Widget.ControllerConfig()
	wcfg.ReplyDelay = opts.delay
	wcfg.Policy = policy
	wcfg.Logger = &logger
	ctrl, err := widget.New(table, wcfg)
	if err != nil {
		return err
	}

	for _, entry := range ctrl.Transcript() {
		fmt.Fprintln(out, formatEntry(entry))
	}
	unsubscribe := ctrl.Subscribe(printer(out, logger))
	defer unsubscribe()

	rl, err := readline.NewFromConfig(&readline.Config{
		Prompt:       "you> ",
		HistoryLimit: 100,
	})
	if err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(out, "Type a message, /clear to reset the conversation, /quit to exit.")
	for {
		line, err := rl.ReadLine()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		switch strings.TrimSpace(line) {
		case "/quit", "/exit":
			return drain(ctx, ctrl, opts.delay)
		case "/clear":
			ctrl.Clear()
			continue
		}

		if _, err := ctrl.Submit(line); err != nil {
			if errors.Is(err, widget.ErrEmptyInput) {
				continue
			}
			fmt.Fprintf(out, "! %v\n", err)
		}
	}

	return drain(ctx, ctrl, opts.delay)
}

// drain lets a reply that is still being typed land before exit.
func drain(ctx context.Context, ctrl *widget.Controller, delay time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, delay+drainGrace)
	defer cancel()
	if err := ctrl.Wait(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

const drainGrace = 2 * time.Second

func printer(out io.Writer, logger zerolog.Logger) widget.Listener {
	return func(ev widget.Event) {
		switch ev.Type {
		case widget.EventMessage:
			fmt.Fprintln(out, formatEntry(*ev.Entry))
		case widget.EventTypingShown:
			fmt.Fprintln(out, "  CourseAI is typing...")
		case widget.EventCleared:
			fmt.Fprintln(out, "-- conversation cleared --")
		case widget.EventTurnQueued:
			fmt.Fprintln(out, "  (queued until the current reply lands)")
		case widget.EventTurnRejected:
			logger.Debug().Str("text", ev.Text).Msg("submission rejected")
		}
	}
}
