package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"memetic/internal/config"
	"memetic/internal/db"
	"memetic/internal/logger"
)

func getCmd(opts *options, use, short, path string, args cobra.PositionalArgs) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, argv []string) error {
			p := path
			for _, a := range argv {
				p = strings.Replace(p, "%s", a, 1)
			}
			body, err := newAPIClient(opts).call(cmd.Context(), http.MethodGet, p, nil, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
}

func signalCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "signal", Short: "Inspect signals"}
	cmd.AddCommand(getCmd(opts, "show <signal-id>", "Show a signal with its audit history", "/api/v1/signals/%s", numericArg))
	return cmd
}

func authorCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "author", Short: "Inspect authors"}
	cmd.AddCommand(
		getCmd(opts, "show <fid>", "Show an author's score, stats and profile", "/api/v1/authors/%s", numericArg),
		getCmd(opts, "signals <fid>", "List an author's signals", "/api/v1/authors/%s/signals", numericArg),
		getCmd(opts, "top", "Show the leaderboard", "/api/v1/authors/top", cobra.NoArgs),
	)
	return cmd
}

func stateCmd(opts *options) *cobra.Command {
	return getCmd(opts, "state", "Show aggregate system state", "/api/v1/system-state", cobra.NoArgs)
}

func jobsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "jobs", Short: "Manage resolution jobs"}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List parked resolution jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			query := map[string]string{}
			if status != "" {
				query["status"] = status
			}
			body, err := newAPIClient(opts).call(cmd.Context(), http.MethodGet, "/api/v1/jobs/failed", query, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
	list.Flags().StringVar(&status, "status", "parked", "parked or requeued (empty for all)")

	requeue := &cobra.Command{
		Use:   "requeue <job-id>",
		Short: "Put a parked job back on the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := newAPIClient(opts).call(cmd.Context(), http.MethodPost, "/api/v1/jobs/failed/"+args[0]+"/requeue", nil, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}

	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Enqueue expired ACTIVE signals that have no job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := newAPIClient(opts).call(cmd.Context(), http.MethodPost, "/api/v1/jobs/reconcile", nil, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}

	cmd.AddCommand(list, requeue, reconcile, getCmd(opts, "queue", "Show the queue depth", "/api/v1/jobs/queue", cobra.NoArgs))
	return cmd
}

func switchCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "switch", Short: "Read or flip feature switches"}
	set := &cobra.Command{
		Use:       "set <name> <on|off>",
		Short:     "Turn a feature switch on or off",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch strings.ToLower(args[1]) {
			case "on", "true", "1":
				enabled = true
			case "off", "false", "0":
			default:
				return fmt.Errorf("state must be on or off, got %q", args[1])
			}
			body, err := newAPIClient(opts).call(cmd.Context(), http.MethodPut,
				"/api/v1/system-settings/switches/"+args[0], nil, map[string]bool{"enabled": enabled})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
	cmd.AddCommand(set, getCmd(opts, "list", "List feature switches", "/api/v1/system-settings/switches", cobra.NoArgs))
	return cmd
}

func eventsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "events", Short: "Submit chain events"}
	push := &cobra.Command{
		Use:   "push <file.json>",
		Short: "POST a JSON batch of events (use - for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				raw []byte
				err error
			)
			if args[0] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			body, err := newAPIClient(opts).call(cmd.Context(), http.MethodPost, "/api/v1/events", nil, raw)
			if body != nil {
				_ = printJSON(cmd.OutOrStdout(), body)
			}
			return err
		},
	}
	cmd.AddCommand(push, getCmd(opts, "rejected", "List events the ledger refused", "/api/v1/events/rejected", cobra.NoArgs))
	return cmd
}

func migrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(".env"); err != nil {
				return err
			}
			cfg, err := config.Load(opts.config, opts.envOnly)
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.DB.DSN) == "" {
				return fmt.Errorf("db.dsn is required")
			}
			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer log.Sync()
			conn, err := db.Open(cfg.DB, log)
			if err != nil {
				return err
			}
			defer db.Close(conn)
			if err := db.AutoMigrate(conn); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func numericArg(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return err
	}
	if _, err := strconv.ParseUint(args[0], 10, 64); err != nil {
		return fmt.Errorf("%q is not a numeric id", args[0])
	}
	return nil
}
