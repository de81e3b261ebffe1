package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type options struct {
	server  string
	apiKey  string
	config  string
	envOnly bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "mfsctl",
		Short:         "Operator CLI for the signal resolver",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("MFS_SERVER", "http://localhost:8080"), "resolver base url")
	root.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("MFS_API_KEY"), "api key for write endpoints")
	root.PersistentFlags().StringVar(&opts.config, "config", envOr("MFS_CONFIG", "config/config.yaml"), "config file (migrate only)")
	root.PersistentFlags().BoolVar(&opts.envOnly, "env-only", false, "read config from environment only (migrate only)")

	root.AddCommand(
		signalCmd(opts),
		authorCmd(opts),
		jobsCmd(opts),
		stateCmd(opts),
		switchCmd(opts),
		eventsCmd(opts),
		migrateCmd(opts),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// printJSON writes raw as indented JSON, or as-is when it is not JSON.
func printJSON(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = fmt.Fprintln(w, string(raw))
		return err
	}
	_, err := fmt.Fprintln(w, buf.String())
	return err
}
