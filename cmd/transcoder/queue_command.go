package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"ripqueue/internal/config"
)

// queueRow is a read-only projection of one queue_items row, used only
// by the ls/show operator commands — never by the worker.
type queueRow struct {
	id        int64
	createdTs string
	claimedTs sql.NullString
	payload   string
}

func newQueueCommand(envFile, logLevel *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the durable queue (sqlite backend only)",
	}
	cmd.AddCommand(newQueueListCommand(envFile))
	cmd.AddCommand(newQueueShowCommand(envFile))
	return cmd
}

func newQueueListCommand(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List queued jobs with claim status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.QueueBackend != config.QueueSQLite {
				return fmt.Errorf("queue ls requires QUEUE_BACKEND=sqlite, got %q", cfg.QueueBackend)
			}

			rows, err := readQueueRows(cfg.QueueDBPath)
			if err != nil {
				return err
			}
			printQueueTable(cmd, rows)
			return nil
		},
	}
}

func newQueueShowCommand(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show the raw envelope payload for one queued job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.QueueBackend != config.QueueSQLite {
				return fmt.Errorf("queue show requires QUEUE_BACKEND=sqlite, got %q", cfg.QueueBackend)
			}

			db, err := sql.Open("sqlite", cfg.QueueDBPath)
			if err != nil {
				return fmt.Errorf("open queue db: %w", err)
			}
			defer db.Close()

			var payload string
			err = db.QueryRowContext(cmd.Context(), "SELECT payload FROM queue_items WHERE id = ?", args[0]).Scan(&payload)
			if err != nil {
				return fmt.Errorf("job %s not found: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), payload)
			return nil
		},
	}
}

func readQueueRows(dbPath string) ([]queueRow, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}
	defer db.Close()

	rows, err := db.Query("SELECT id, created_ts, claimed_ts, payload FROM queue_items ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query queue_items: %w", err)
	}
	defer rows.Close()

	var out []queueRow
	for rows.Next() {
		var r queueRow
		if err := rows.Scan(&r.id, &r.createdTs, &r.claimedTs, &r.payload); err != nil {
			return nil, fmt.Errorf("scan queue_items row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func printQueueTable(cmd *cobra.Command, rows []queueRow) {
	if len(rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "queue is empty")
		return
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.AppendHeader(table.Row{"ID", "Created", "Claimed", "Status"})

	useColor := isatty.IsTerminal(os.Stdout.Fd())
	claimedColor := color.New(color.FgYellow)
	pendingColor := color.New(color.FgGreen)

	for _, r := range rows {
		status := "pending"
		claimed := "-"
		if r.claimedTs.Valid {
			status = "claimed"
			claimed = r.claimedTs.String
		}
		if useColor {
			if status == "claimed" {
				status = claimedColor.Sprint(status)
			} else {
				status = pendingColor.Sprint(status)
			}
		}
		tw.AppendRow(table.Row{r.id, r.createdTs, claimed, status})
	}
	tw.Render()
}
