package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/erqueue/internal/editor"
	"github.com/linnemanlabs/erqueue/internal/triage"
)

func newTreeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Work with the triage decision tree",
	}
	cmd.AddCommand(
		newTreeShowCmd(opts),
		newTreeValidateCmd(opts),
		newTreeWalkCmd(opts),
		newTreeResetCmd(opts),
		newTreePushCmd(opts),
	)
	return cmd
}

func newTreeShowCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the saved tree as json, yaml or a Mermaid diagram",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			dto, err := c.LoadTriage(cmd.Context())
			if err != nil {
				return err
			}
			return writeTree(cmd.OutOrStdout(), dto, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json, yaml or mermaid")
	return cmd
}

func writeTree(w io.Writer, dto triage.DTO, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(dto)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(dto); err != nil {
			return err
		}
		return enc.Close()
	case "mermaid":
		g, err := triage.Deserialize(dto)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, g.Mermaid())
		return err
	default:
		return fmt.Errorf("unknown format %q (want json, yaml or mermaid)", format)
	}
}

func newTreeValidateCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the saved tree, or a local file, for structural errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				dto triage.DTO
				err error
			)
			if file != "" {
				dto, err = readTreeFile(file)
			} else {
				c, cerr := opts.client()
				if cerr != nil {
					return cerr
				}
				dto, err = c.LoadTriage(cmd.Context())
			}
			if err != nil {
				return err
			}

			g, err := triage.Deserialize(dto)
			if err == nil {
				err = g.Validate()
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tree is valid (%d steps, %d options, %d edges)\n",
				len(dto.Nodes), len(dto.OptionNodes), len(dto.Edges))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "validate a local json or yaml file instead of the saved tree")
	return cmd
}

func newTreeWalkCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "walk [step-id]",
		Short: "Show one questionnaire screen, the root by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			var stepID string
			if len(args) == 1 {
				stepID = args[0]
			}
			view, err := c.DecisionTree(cmd.Context(), stepID)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, view.Step)
			for i, o := range view.Options {
				switch {
				case o.AssignedLabel != "":
					fmt.Fprintf(w, "  %d. %s => %s\n", i+1, o.Value, o.AssignedLabel)
				case o.NextStep != "":
					fmt.Fprintf(w, "  %d. %s -> %s\n", i+1, o.Value, o.NextStep)
				default:
					fmt.Fprintf(w, "  %d. %s (unconnected)\n", i+1, o.Value)
				}
			}
			return nil
		},
	}
}

func newTreeResetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the saved tree down to an empty root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			s, err := editor.Open(cmd.Context(), c)
			if err != nil {
				return err
			}
			defer s.Close()

			root, err := s.Reset()
			if err != nil {
				return err
			}
			if err := s.Flush(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tree reset, root %s\n", root)
			return nil
		},
	}
}

func newTreePushCmd(opts *rootOptions) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "push <file>",
		Short: "Replace the saved tree with a local json or yaml file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			push := func(ctx context.Context) error {
				dto, err := readTreeFile(args[0])
				if err != nil {
					return err
				}
				if err := c.SaveTriage(ctx, dto); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pushed %s (%d steps)\n", args[0], len(dto.Nodes))
				return nil
			}

			if err := push(cmd.Context()); err != nil && !watch {
				return err
			} else if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "push failed:", err)
			}
			if !watch {
				return nil
			}
			return watchFile(cmd.Context(), args[0], editor.DefaultDebounce/3, func() {
				if err := push(cmd.Context()); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "push failed:", err)
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep running and push again whenever the file changes")
	return cmd
}

// readTreeFile decodes a tree from json or yaml, chosen by extension.
func readTreeFile(path string) (triage.DTO, error) {
	b, err := os.ReadFile(path) //nolint:gosec // path is an operator argument
	if err != nil {
		return triage.DTO{}, err
	}
	var dto triage.DTO
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &dto)
	default:
		err = json.Unmarshal(b, &dto)
	}
	if err != nil {
		return triage.DTO{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return dto, nil
}

// watchFile calls fn after path is written, once writes have been quiet for
// settle. Editors that save by rename are handled by watching the directory.
func watchFile(ctx context.Context, path string, settle time.Duration, fn func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	var timer <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			timer = time.After(settle)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				timer = time.After(settle)
				continue
			}
			return fmt.Errorf("watch %s: %w", path, err)
		case <-timer:
			timer = nil
			fn()
		}
	}
}
