package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/rebound-ai/rebound/pkg/catalog"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import exercises from a CSV file into a SQLite catalog",
	Long: `Reads exercises from a CSV file and inserts them into a SQLite
catalog database, creating the database if it does not exist.

Expected CSV columns:
  name, description, category, equipment_required, target_muscles,
  difficulty_level, instructions

List columns (equipment_required, target_muscles) use ';' as a separator.

Example:
  rebound import --file exercises.csv --db catalog.db`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringP("file", "f", "", "path to CSV file containing exercises (required)")
	_ = importCmd.MarkFlagRequired("file")

	importCmd.Flags().String("db", "catalog.db", "SQLite catalog database path")
	importCmd.Flags().Bool("dry-run", false, "parse and validate the CSV without writing")
}

func runImport(cmd *cobra.Command, args []string) error {
	filePath, _ := cmd.Flags().GetString("file")
	dbPath, _ := cmd.Flags().GetString("db")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted, cleaning up...")
		cancel()
	}()

	// Parse CSV
	fmt.Fprintf(os.Stderr, "Loading exercises from %s...\n", filePath)
	loadStart := time.Now()

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	exercises, err := catalog.ParseCSV(f)
	closeErr := f.Close()
	if err != nil {
		return fmt.Errorf("failed to parse CSV: %w", err)
	}
	if closeErr != nil {
		return closeErr
	}

	if len(exercises) == 0 {
		fmt.Println("No exercises found in file.")
		return nil
	}

	fmt.Fprintf(os.Stderr, "Loaded %d exercises in %v\n", len(exercises), time.Since(loadStart))

	if dryRun {
		fmt.Printf("Dry run: %d exercises parsed successfully, nothing written.\n", len(exercises))
		return nil
	}

	// Open the catalog database
	fmt.Fprintf(os.Stderr, "Opening catalog database %q...\n", dbPath)
	db, err := catalog.OpenSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open catalog database: %w", err)
	}
	defer func() { _ = db.Close() }()

	// Create progress bar
	bar := progressbar.NewOptions64(
		int64(len(exercises)),
		progressbar.OptionSetDescription("Importing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("exercises"),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)

	importStart := time.Now()
	var imported, failed int
	for _, ex := range exercises {
		if ctx.Err() != nil {
			break
		}
		if _, err := db.Insert(ctx, ex); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "\nfailed to insert %q: %v\n", ex.Name, err)
		} else {
			imported++
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	total, err := db.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count catalog: %w", err)
	}

	fmt.Println()
	fmt.Println("=== Import Complete ===")
	fmt.Printf("Imported:      %d exercises\n", imported)
	if failed > 0 {
		fmt.Printf("Failed:        %d exercises\n", failed)
	}
	fmt.Printf("Catalog total: %d exercises\n", total)
	fmt.Printf("Duration:      %v\n", time.Since(importStart).Round(time.Millisecond))

	if ctx.Err() != nil {
		return fmt.Errorf("import interrupted: %w", ctx.Err())
	}
	if failed > 0 {
		return fmt.Errorf("%d exercises failed to import", failed)
	}
	return nil
}
