package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/linnemanlabs/erqueue/internal/livequeue"
	"github.com/linnemanlabs/erqueue/internal/queue"
	"github.com/linnemanlabs/erqueue/internal/triage"
)

var labelColors = map[triage.Label]string{
	triage.LabelEmergency: "#E5484D",
	triage.LabelDelayed:   "#F5A524",
	triage.LabelMinor:     "#30A46C",
}

func newQueueCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Work the patient queue",
	}
	cmd.AddCommand(
		newQueueListCmd(opts),
		newQueueAddCmd(opts),
		newQueueCallCmd(opts),
		newQueueFollowCmd(opts),
	)
	return cmd
}

func newQueueListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the queue in treatment order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			entries, err := c.ListQueue(cmd.Context())
			if err != nil {
				return err
			}
			printQueue(cmd.OutOrStdout(), entries, 0)
			return nil
		},
	}
}

// printQueue writes one line per entry, marking ticket when it is queued.
// Colors follow the terminal's profile and degrade to plain text.
func printQueue(w io.Writer, entries []queue.Entry, ticket int) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "queue is empty")
		return
	}
	p := termenv.ColorProfile()
	for i, e := range entries {
		label := termenv.String(fmt.Sprintf("%-9s", e.AssignedLabel))
		if hex, ok := labelColors[e.AssignedLabel]; ok {
			label = label.Foreground(p.Color(hex))
		}
		mark := ""
		if ticket != 0 && e.Number == ticket {
			mark = "  <- you"
		}
		fmt.Fprintf(w, "%3d. #%-5d %s%s\n", i+1, e.Number, label, mark)
	}
}

func parseLabel(s string) (triage.Label, error) {
	for _, l := range triage.Labels {
		if strings.EqualFold(s, string(l)) {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q", queue.ErrInvalidLabel, s)
}

func parseNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid patient number %q", s)
	}
	return n, nil
}

func newQueueAddCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <Emergency|Delayed|Minor>",
		Short: "Queue a patient with the given label and print their ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			label, err := parseLabel(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			e, err := c.AppendPatient(cmd.Context(), label)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ticket #%d (%s)\n", e.Number, e.AssignedLabel)
			return nil
		},
	}
}

func newQueueCallCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "call <number>",
		Short: "Call a patient in and remove them from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseNumber(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.RemovePatient(cmd.Context(), n); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "called #%d\n", n)
			return nil
		},
	}
}

func newQueueFollowCmd(opts *rootOptions) *cobra.Command {
	var (
		ticket int
		exit   bool
	)
	cmd := &cobra.Command{
		Use:   "follow",
		Short: "Stream the queue as it changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			events, err := c.Events(ctx)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			var f *livequeue.Follower
			f = livequeue.New(c, ticket, livequeue.Hooks{
				OnChange: func(entries []queue.Entry) {
					t, _ := f.Ticket()
					fmt.Fprintln(w, "---")
					printQueue(w, entries, t)
				},
				OnTurn: func(n int) {
					fmt.Fprintf(w, "ticket #%d is being called\n", n)
					if exit {
						cancel()
					}
				},
				OnError: func(err error) {
					fmt.Fprintln(cmd.ErrOrStderr(), "refresh failed:", err)
				},
			}, nil)

			if err := f.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&ticket, "ticket", 0, "your ticket number; announces when it is called")
	cmd.Flags().BoolVar(&exit, "exit-on-call", false, "stop following once the ticket is called")
	return cmd
}
