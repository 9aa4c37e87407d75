package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/linnemanlabs/erqueue/internal/client"
)

type rootOptions struct {
	server string
	token  string
}

func (o *rootOptions) client() (*client.Client, error) {
	return client.New(o.server, client.WithToken(o.token))
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "erctl",
		Short:         "Inspect and edit the ER triage tree and patient queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv("ERQUEUE_SERVER")
	if server == "" {
		server = "http://localhost:8080"
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", server, "erqueue API base URL (env ERQUEUE_SERVER)")
	cmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("ERQUEUE_STAFF_TOKEN"), "staff bearer token (env ERQUEUE_STAFF_TOKEN)")

	cmd.AddCommand(newTreeCmd(opts), newQueueCmd(opts))
	return cmd
}
