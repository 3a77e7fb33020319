package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Veraticus/ledger-must-balance/internal/cli"
	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/Veraticus/ledger-must-balance/internal/ofx"
	"github.com/Veraticus/ledger-must-balance/internal/storage"
	"github.com/spf13/cobra"
)

func importOFXCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-ofx [files...]",
		Short: "Import transactions from OFX/QFX files",
		Long: `Import pending transactions from OFX or QFX files exported from your bank.

An automatic backup is taken before anything is written. Imported rows that
look like duplicates of each other or of existing rows are reported.`,
		Example: `  # Import one statement into an account
  ledger import-ofx ~/Downloads/checking_jan.qfx --account <id>

  # Preview a batch of files
  ledger import-ofx ~/Downloads/*.qfx --dry-run`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImportOFX,
	}

	cmd.Flags().StringP("account", "a", "", "Account to link imported transactions to")
	cmd.Flags().StringP("category", "c", ofx.DefaultCategory, "Category for imported transactions")
	cmd.Flags().BoolP("dry-run", "d", false, "Preview import without saving")

	return cmd
}

// expandFiles resolves glob patterns, keeping literal paths that exist.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err == nil {
				files = append(files, pattern)
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
			continue
		}
		files = append(files, matches...)
	}
	return files, nil
}

func runImportOFX(cmd *cobra.Command, args []string) error {
	accountID, _ := cmd.Flags().GetString("account")
	category, _ := cmd.Flags().GetString("category")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	ctx := cmd.Context()

	files, err := expandFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to import")
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	opts := []ofx.Option{ofx.WithLocation(e.cfg.Location), ofx.WithCategory(category)}
	if accountID != "" {
		opts = append(opts, ofx.WithAccount(accountID))
	}
	parser := ofx.NewParser(e.user, opts...)

	var drafts []model.Transaction
	for _, path := range files {
		txns, err := parseOFXFile(cmd, parser, path)
		if err != nil {
			slog.Error("Failed to parse OFX file", "file", path, "error", err)
			continue
		}
		e.printf("  %s: %d transaction(s)\n", filepath.Base(path), len(txns))
		drafts = append(drafts, txns...)
	}

	if len(drafts) == 0 {
		e.printf("%s\n", cli.FormatWarning("No transactions found in any file"))
		return nil
	}

	if dryRun {
		names, err := e.accountNames(ctx)
		if err != nil {
			return err
		}
		e.printf("%s\n", cli.TransactionTable(drafts, names, nil))
		e.printf("%s\n", cli.FormatInfo(fmt.Sprintf("Dry run: %d transaction(s) would be imported", len(drafts))))
		return nil
	}

	backups, err := storage.NewBackupManager(e.store)
	if err != nil {
		slog.Warn("Skipping automatic backup", "error", err)
	} else if info, err := backups.Auto(ctx, "import-ofx"); err != nil {
		return err
	} else {
		slog.Info("Created automatic backup", "id", info.ID)
	}

	imported, duplicates, err := e.ledger.ImportTransactions(ctx, e.user, drafts)
	if err != nil {
		return explain(err)
	}

	e.printf("%s\n", cli.FormatSuccess(fmt.Sprintf("Imported %d transaction(s)", len(imported))))
	if n := duplicates.Count(); n > 0 {
		e.printf("%s\n", cli.FormatWarning(fmt.Sprintf("%d possible duplicate(s); review with `ledger tx duplicates`", n)))
	}
	return nil
}

func parseOFXFile(cmd *cobra.Command, parser *ofx.Parser, path string) ([]model.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return parser.ParseFile(cmd.Context(), f)
}
