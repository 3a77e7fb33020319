package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Veraticus/ledger-must-balance/internal/cli"
	"github.com/Veraticus/ledger-must-balance/internal/storage"
	"github.com/spf13/cobra"
)

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage database backups",
		Long: `Create, list, restore, and delete database backups.

Backups are file snapshots stored next to the database. One is taken
automatically before every OFX import.`,
		Example: `  ledger backup create --id before-cleanup
  ledger backup list
  ledger backup restore before-cleanup`,
	}

	cmd.AddCommand(backupCreateCmd())
	cmd.AddCommand(backupListCmd())
	cmd.AddCommand(backupRestoreCmd())
	cmd.AddCommand(backupDeleteCmd())

	return cmd
}

func openBackups(cmd *cobra.Command) (*env, *storage.BackupManager, error) {
	e, err := openEnv(cmd)
	if err != nil {
		return nil, nil, err
	}
	manager, err := storage.NewBackupManager(e.store)
	if err != nil {
		e.Close()
		return nil, nil, fmt.Errorf("failed to open backups: %w", err)
	}
	return e, manager, nil
}

func backupCreateCmd() *cobra.Command {
	var id, description string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Snapshot the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, manager, err := openBackups(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			info, err := manager.Create(cmd.Context(), id, description)
			if err != nil {
				return fmt.Errorf("failed to create backup: %w", err)
			}

			e.printf("%s\n", cli.FormatSuccess(fmt.Sprintf("Created backup %s (%s)", info.ID, formatFileSize(info.FileSize))))
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Backup id (timestamped if empty)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description")

	return cmd
}

func backupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, manager, err := openBackups(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			backups, err := manager.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list backups: %w", err)
			}
			if len(backups) == 0 {
				e.printf("%s\n", cli.SubtleStyle.Render("No backups found."))
				return nil
			}

			w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, strings.Join([]string{"ID", "CREATED", "SIZE", "TRANSACTIONS", "ACCOUNTS", "TYPE"}, "\t"))
			for _, b := range backups {
				kind := "manual"
				if b.IsAuto {
					kind = "auto"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					b.ID, b.CreatedAt.Format(time.DateTime), formatFileSize(b.FileSize),
					b.Transactions, b.Accounts, kind)
			}
			return w.Flush()
		},
	}
}

func backupRestoreCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Replace the database with a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			e, manager, err := openBackups(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if !force {
				e.printf("%s\n", cli.FormatWarning("This replaces the current database with backup "+args[0]+"."))
				ok, err := cli.NewPrompter(cmd.InOrStdin(), e.out).Confirm(ctx, "Continue?")
				if err != nil {
					return err
				}
				if !ok {
					e.printf("%s\n", cli.FormatInfo("Restore cancelled"))
					return nil
				}
			}

			if err := manager.Restore(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to restore backup: %w", err)
			}

			e.printf("%s\n", cli.FormatSuccess("Restored backup "+args[0]))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation")

	return cmd
}

func backupDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, manager, err := openBackups(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := manager.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to delete backup: %w", err)
			}

			e.printf("%s\n", cli.FormatSuccess("Deleted backup "+args[0]))
			return nil
		},
	}
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
