// Package main provides the library assistant admin CLI.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/mvkaushik27/nalanda/internal/config"
	"github.com/mvkaushik27/nalanda/internal/embedding"
	"github.com/mvkaushik27/nalanda/internal/general"
	"github.com/mvkaushik27/nalanda/internal/indexer"
	"github.com/mvkaushik27/nalanda/internal/monitoring"
	"github.com/mvkaushik27/nalanda/internal/observability"
	"github.com/mvkaushik27/nalanda/internal/storage"
)

var (
	cfgFile string
	verbose bool

	cfg    *config.Config
	logger *observability.Logger
)

var rootCmd = &cobra.Command{
	Use:   "nalanda-admin",
	Short: "Admin CLI for the library assistant",
	Long: `nalanda-admin manages the library assistant's data and indexes.

Use this tool to:
- Import the catalogue from a CSV export
- Rebuild the catalogue and general-question vector indexes
- Inspect index and database status`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := cfg.Observability.LogLevel
		if !verbose {
			level = "warn"
		}
		logger = observability.NewLogger(observability.LogConfig{
			Level:       level,
			Format:      "console",
			ServiceName: "nalanda-admin",
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newImportCatalogueCmd())
	rootCmd.AddCommand(newRebuildIndexCmd())
	rootCmd.AddCommand(newStatusCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openDatabase(ctx context.Context) (*sql.DB, *storage.CatalogueRepository, error) {
	db, err := storage.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := storage.InitSchema(ctx, db, cfg.Database.Driver); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("init schema: %w", err)
	}
	return db, storage.NewCatalogueRepository(db, cfg.Database.Driver, logger), nil
}

func newEmbedder() (embedding.Embedder, error) {
	if cfg.Embedding.BaseURL == "" {
		color.Yellow("! No embedding service configured, using deterministic mock embeddings")
		return embedding.NewMockClient(cfg.Embedding.Dimension), nil
	}
	return embedding.NewClient(embedding.Config{
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		Dimension: cfg.Embedding.Dimension,
		Timeout:   cfg.Embedding.Timeout,
	})
}

func newImportCatalogueCmd() *cobra.Command {
	var csvPath string

	cmd := &cobra.Command{
		Use:   "import-catalogue",
		Short: "Import catalogue rows from a CSV export",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			db, repo, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			f, err := os.Open(csvPath)
			if err != nil {
				return fmt.Errorf("open csv: %w", err)
			}
			defer f.Close()

			s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			s.Suffix = " Importing catalogue..."
			s.Start()
			result, err := repo.ImportCSV(ctx, f)
			s.Stop()
			if err != nil {
				return fmt.Errorf("import catalogue: %w", err)
			}

			audit := monitoring.NewAuditLogger(logger, "", cfg.Audit.AdminLogPath)
			audit.LogAdmin("catalogue-import", fmt.Sprintf("%d rows inserted, %d skipped from %s", result.Inserted, result.Skipped, csvPath))

			color.Green("✓ Imported %d rows (%d skipped)", result.Inserted, result.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "catalogue.csv", "path to the catalogue CSV export")
	return cmd
}

func newRebuildIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "rebuild-index [catalogue|general]",
		Short:     "Rebuild a vector index from its source data",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"catalogue", "general"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()

			embedder, err := newEmbedder()
			if err != nil {
				return err
			}
			builder := indexer.NewBuilder(logger, embedder, cfg.Embedding.BatchSize)

			var bar *progressbar.ProgressBar
			builder.OnProgress = func(done, total int) {
				if bar == nil {
					bar = progressbar.Default(int64(total), "embedding")
				}
				_ = bar.Set(done)
			}

			start := time.Now()
			var indexed int
			switch args[0] {
			case "catalogue":
				db, repo, err := openDatabase(ctx)
				if err != nil {
					return err
				}
				defer db.Close()
				indexed, err = builder.BuildCatalogue(ctx, repo, cfg.Vector.CatalogueIndexPath)
				if err != nil {
					return fmt.Errorf("rebuild catalogue index: %w", err)
				}
			case "general":
				store, err := general.LoadStore(cfg.Vector.GeneralQueriesPath)
				if err != nil {
					return fmt.Errorf("load question store: %w", err)
				}
				indexed, err = builder.BuildGeneral(ctx, store, cfg.Vector.GeneralIndexPath)
				if err != nil {
					return fmt.Errorf("rebuild general index: %w", err)
				}
			}

			audit := monitoring.NewAuditLogger(logger, "", cfg.Audit.AdminLogPath)
			audit.LogAdmin("index-rebuild", fmt.Sprintf("%s index rebuilt with %d entries", args[0], indexed))

			color.Green("✓ Rebuilt %s index: %d entries in %s", args[0], indexed, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show database and index status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			bold := color.New(color.Bold)

			bold.Println("Database")
			db, repo, err := openDatabase(ctx)
			if err != nil {
				color.Red("✗ %v", err)
			} else {
				defer db.Close()
				stats, err := repo.Stats(ctx)
				if err != nil {
					color.Red("✗ stats: %v", err)
				} else {
					fmt.Printf("  titles:  %d\n  copies:  %d\n  authors: %d\n", stats.UniqueTitles, stats.TotalCopies, stats.UniqueAuthors)
				}
			}

			bold.Println("Indexes")
			printFileStatus("catalogue index", cfg.Vector.CatalogueIndexPath)
			printFileStatus("general index", cfg.Vector.GeneralIndexPath)
			printFileStatus("question store", cfg.Vector.GeneralQueriesPath)
			return nil
		},
	}
}

func printFileStatus(name, path string) {
	st, err := os.Stat(path)
	if err != nil {
		color.Red("  ✗ %s: missing (%s)", name, path)
		return
	}
	color.Green("  ✓ %s: %d bytes, modified %s", name, st.Size(), st.ModTime().Format(time.RFC3339))
}
