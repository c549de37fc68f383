package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ehr/riskadvisor/internal/config"
	"github.com/ehr/riskadvisor/internal/domain/patient"
	"github.com/ehr/riskadvisor/internal/domain/plancatalog"
	"github.com/ehr/riskadvisor/internal/domain/riskassessment"
	"github.com/ehr/riskadvisor/internal/domain/riskengine"
	"github.com/ehr/riskadvisor/internal/platform/auth"
	"github.com/ehr/riskadvisor/internal/platform/db"
	"github.com/ehr/riskadvisor/internal/platform/reporting"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if schema == "" {
				schema = cfg.DBSchema
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.EnsureSchema(ctx, pool, schema, ""); err != nil {
				return err
			}

			migrator := db.NewMigrator(pool, dir)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "", "Target schema for migrations (default DB_SCHEMA)")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if schema == "" {
				schema = cfg.DBSchema
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.Modified {
						status = "modified"
					}
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "", "Target schema for migrations (default DB_SCHEMA)")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the insurance plan catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a catalog file, or the configured catalog when no file is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := offlineCatalogSource(args)
			if err != nil {
				return err
			}
			cat, err := source.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("%s: %w", source.Name(), err)
			}
			return printCatalog(cmd.OutOrStdout(), source.Name(), cat)
		},
	})

	return cmd
}

// offlineCatalogSource resolves the catalog without touching the database:
// an explicit file argument, otherwise the configured source.
func offlineCatalogSource(args []string) (plancatalog.Source, error) {
	if len(args) == 1 {
		return plancatalog.FileSource{Path: args[0]}, nil
	}
	cfg, err := config.LoadOffline()
	if err != nil {
		return nil, err
	}
	return catalogSource(cfg), nil
}

func printCatalog(w io.Writer, name string, cat *riskengine.Catalog) error {
	fmt.Fprintf(w, "Catalog %s (version %q) is valid.\n", name, cat.Version)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIER\tRISK RANGE\tBASE PREMIUM\tMAX COVERAGE")
	for _, p := range cat.Plans {
		fmt.Fprintf(tw, "%s\t%s\t%d-%d\t%s\t%s\n",
			p.ID, p.Tier, p.RiskRange.Min, p.RiskRange.Max, p.BasePremium.StringFixed(2), p.MaxCoverage.StringFixed(2))
	}
	return tw.Flush()
}

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a health summary JSON file against the configured catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			catalogFile, _ := cmd.Flags().GetString("catalog")
			if file == "" {
				return fmt.Errorf("--file is required")
			}

			var catalogArgs []string
			if catalogFile != "" {
				catalogArgs = []string{catalogFile}
			}
			source, err := offlineCatalogSource(catalogArgs)
			if err != nil {
				return err
			}
			cat, err := source.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("%s: %w", source.Name(), err)
			}

			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			analysis, err := analyzeDocument(data, cat)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(analysis)
		},
	}
	cmd.Flags().String("file", "", "Path to a health summary JSON document")
	cmd.Flags().String("catalog", "", "Catalog YAML file (default: configured catalog)")
	return cmd
}

// analyzeDocument decodes, normalizes and validates one summary document and
// runs the engine on it.
func analyzeDocument(data []byte, cat *riskengine.Catalog) (*riskengine.RiskAnalysis, error) {
	var sum riskengine.HealthSummary
	if err := json.Unmarshal(data, &sum); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	patient.Normalize(&sum)
	if err := patient.NewValidator().Validate(&sum); err != nil {
		return nil, err
	}
	return riskengine.Analyze(&sum, cat)
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export stored analyses for one risk level to an XLSX workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			levelFlag, _ := cmd.Flags().GetString("risk-level")
			out, _ := cmd.Flags().GetString("out")

			level := riskengine.RiskLevel(levelFlag)
			if !level.Valid() {
				return fmt.Errorf("--risk-level must be one of Low, Moderate, High, Critical")
			}
			if out == "" {
				out = fmt.Sprintf("risk-analyses-%s.xlsx", level)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			catalogs, err := plancatalog.NewProvider(ctx, catalogSource(cfg), logger)
			if err != nil {
				return err
			}
			svc := riskassessment.NewService(patient.NewSummaryRepoPG(pool), catalogs, cfg.BatchConcurrency, logger)

			// Offline exports run with an operator identity.
			ctx = auth.WithIdentity(ctx, "cli-report", []string{auth.RoleAdmin}, "")
			analyses, err := reporting.Collect(ctx, svc, level)
			if err != nil {
				return err
			}
			data, err := reporting.BuildWorkbook(analyses, time.Now().UTC())
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %d analyses to %s\n", len(analyses), out)
			return nil
		},
	}
	cmd.Flags().String("risk-level", "", "Risk level to export (Low, Moderate, High, Critical)")
	cmd.Flags().String("out", "", "Output file (default risk-analyses-<level>.xlsx)")
	return cmd
}
