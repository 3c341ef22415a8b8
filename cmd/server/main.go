// Package main implements the duffel server: a document-database HTTP
// gateway whose CORS policy, storage backend, authentication and log
// sinks can be reconfigured while it runs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "duffel",
		Short: "Document-database HTTP gateway with live reconfiguration",
		Long: `Duffel serves a compact CouchDB-flavored document API and keeps its
CORS policy, storage location, storage backend and log sinks live-
reconfigurable through the /_config API and the config file, without
dropping in-flight requests.

Every flag can also be set through a DUFFEL_* environment variable
(for example DUFFEL_SERVER_PORT, DUFFEL_AUTH_PASSWORD).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApplication(cmd.Flags())
			if err != nil {
				return err
			}
			return app.run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.String("host", "127.0.0.1", "interface to listen on")
	flags.Int("port", 5984, "port to listen on")
	flags.String("dir", "", "database directory (defaults to the working directory)")
	flags.Bool("in-memory", false, "keep all databases in memory, discarded on exit")
	flags.String("backend", "", "storage driver: sqlite, memory, redis, postgres, mongo")
	flags.String("prefix", "", "remote backend address, e.g. redis://localhost:6379/0")
	flags.String("user", "", "admin username; mutations require credentials when set")
	flags.String("pass", "", "admin password, plain or -pbkdf2- hashed")
	flags.String("config", "config.json", "runtime configuration file")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-file", "", "rotating log file written beside stdout")
	return cmd
}
