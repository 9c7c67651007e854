package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ehr/rcm/internal/config"
	"github.com/ehr/rcm/internal/platform/db"
	"github.com/ehr/rcm/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rcm-server",
		Short: "Revenue cycle billing engine",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(submitCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the intake API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			embedded, _ := cmd.Flags().GetBool("with-worker")
			return runServer(embedded)
		},
	}
	cmd.Flags().Bool("with-worker", false, "Also consume jobs in this process (required with BLOB_BACKEND=memory)")
	return cmd
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume remittance and submission jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, closeFn, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, closeFn, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func openMigrator(ctx context.Context) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: 2, MinConns: 1})
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrations.FS), pool.Close, nil
}

// ingest runs one remittance file synchronously, bypassing the queue.
func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a remittance file in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			uploader, _ := cmd.Flags().GetString("uploader")
			if file == "" {
				return fmt.Errorf("--file is required")
			}

			ctx := context.Background()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			// Ingestion consumes its input; work on a copy.
			path, err := stageCopy(a.cfg.WorkDir, file)
			if err != nil {
				return err
			}
			defer os.RemoveAll(filepath.Dir(path))
			ictx, err := a.remittance.Ingest(ctx, uuid.New(), path, uploader)
			if err != nil {
				return err
			}

			fmt.Printf("Rows: %d  valid: %d  rejected: %d\n", ictx.Stats.Rows, ictx.Stats.ValidRows, ictx.Stats.RejectedRows)
			fmt.Printf("Payments created: %d  duplicates: %d  failed: %d\n",
				ictx.Stats.PaymentsCreated, ictx.Stats.PaymentsDuplicate, ictx.Stats.PersistenceFailures)
			fmt.Printf("Encounters confirmed: %d\n", ictx.Stats.EncountersConfirmed)
			for _, re := range ictx.Errors {
				fmt.Printf("  line %d: %s\n", re.Line, re.Err)
			}
			return nil
		},
	}
	cmd.Flags().String("file", "", "Path to the remittance file (.csv, .xlsx, .xls)")
	cmd.Flags().String("uploader", "", "Email that receives the error report")
	return cmd
}

func submitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit encounters to the clearinghouse in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgFlag, _ := cmd.Flags().GetString("organization")
			encFlags, _ := cmd.Flags().GetStringSlice("encounter")

			orgID, err := uuid.Parse(orgFlag)
			if err != nil {
				return fmt.Errorf("--organization: %w", err)
			}
			ids, err := parseIDs(encFlags)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return fmt.Errorf("at least one --encounter is required")
			}

			ctx := context.Background()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.submission.Run(ctx, orgID, ids)
			if err != nil {
				return err
			}
			fmt.Printf("Batch %s: %d submitted, %d failed\n", results.Filename, len(results.Successful), len(results.Failed))
			for _, f := range results.Failed {
				fmt.Printf("  %s: %s\n", f.EncounterID, f.Message)
			}
			return nil
		},
	}
	cmd.Flags().String("organization", "", "Organization id")
	cmd.Flags().StringSlice("encounter", nil, "Encounter id (repeatable or comma separated)")
	return cmd
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid encounter id %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
