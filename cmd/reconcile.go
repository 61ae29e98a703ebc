package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"medallion/internal/config"
	"medallion/internal/pipeline"
	"medallion/internal/ui"
	"medallion/internal/warehouse"
	"medallion/pkg/errors"
	"medallion/pkg/models"
)

var (
	reconcileSource      string
	reconcileFile        string
	reconcileFromStaging bool
	reconcileFull        bool
	reconcileDryRun      bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Validate a batch and merge it into the unified fact table",
	Long: `Reconcile reads one batch for a configured source, validates and
deduplicates it, aligns it to the unified grain and upserts it into the fact
table. Rejected rows are written to the quarantine table. Re-running the same
batch is a no-op.`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVarP(&reconcileSource, "source", "s", "", "configured source name (required)")
	reconcileCmd.Flags().StringVarP(&reconcileFile, "file", "f", "", "CSV batch file to load")
	reconcileCmd.Flags().BoolVar(&reconcileFromStaging, "from-staging", false, "read the batch from the source's staging table")
	reconcileCmd.Flags().BoolVar(&reconcileFull, "full", false, "treat the batch as a full snapshot instead of an increment")
	reconcileCmd.Flags().BoolVar(&reconcileDryRun, "dry-run", false, "show what would change without committing")
	reconcileCmd.MarkFlagRequired("source")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	out := newUI()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	source, err := findSource(cfg, reconcileSource)
	if err != nil {
		return err
	}

	if reconcileFile == "" && !reconcileFromStaging {
		return errors.ConfigError("either --file or --from-staging is required", "file")
	}
	if reconcileFromStaging && source.StagingTable == "" {
		return errors.ConfigError(
			fmt.Sprintf("source %s has no staging_table configured", source.Name), "sources.staging_table")
	}

	engine, err := pipeline.NewEngine(pipeline.Policy{
		KeyFields:        cfg.Reconciliation.KeyFields,
		MonthlyAlignment: cfg.Reconciliation.MonthlyAlignment,
		Sentinels:        cfg.Reconciliation.Sentinels,
	})
	if err != nil {
		return err
	}

	mode := models.LoadModeIncremental
	if reconcileFull {
		mode = models.LoadModeFull
	}

	service, fact, quarantine, err := openWarehouse(cfg)
	if err != nil {
		return err
	}
	defer service.Close()

	ctx := context.Background()

	if err := service.EnsureTables(ctx, fact, quarantine); err != nil {
		return err
	}

	var batch models.Batch
	if reconcileFromStaging {
		staging := warehouse.TableRef{
			Database: cfg.Reconciliation.Database,
			Schema:   cfg.Reconciliation.Schema,
			Table:    source.StagingTable,
		}
		out.StartProgress(fmt.Sprintf("Reading staging table %s", staging.FQN()))
		batch, err = service.ReadStagingBatch(ctx, staging, source.Name, mode)
	} else {
		out.StartProgress(fmt.Sprintf("Reading %s", reconcileFile))
		batch, err = pipeline.ReadCSVBatch(reconcileFile, source.Name, mode)
	}
	if err != nil {
		out.StopProgress(false, "Batch unreadable")
		return err
	}
	out.StopProgress(true, fmt.Sprintf("Read %d records (batch %s)", len(batch.Records), batch.ID))

	out.StartProgress("Loading base dataset")
	base, err := service.LoadFacts(ctx, fact, source.Name)
	if err != nil {
		out.StopProgress(false, "Failed to load base dataset")
		return err
	}
	out.StopProgress(true, fmt.Sprintf("Loaded %d base records", len(base)))

	result, err := engine.Reconcile(ctx, fact.FQN(), base, batch, source)
	if err != nil {
		return err
	}

	if reconcileDryRun {
		builder := &warehouse.MergeBuilder{Target: fact, Staging: "<staged batch>"}
		ui.PrintSection("Dry run - no changes committed")
		out.Printf("%s\n\n", builder.Render())
		ui.RenderRunSummary(os.Stdout, result.Summary)
		return nil
	}

	out.StartProgress("Merging into fact table")
	if err := service.CommitRun(ctx, fact, quarantine, result.Base, result.Quarantined); err != nil {
		out.StopProgress(false, "Merge failed, transaction rolled back")
		return err
	}
	out.StopProgress(true, "Merge committed")

	ui.RenderRunSummary(os.Stdout, result.Summary)

	if result.Summary.Quarantined > 0 {
		out.Warning(fmt.Sprintf(
			"%d record(s) quarantined; inspect them with 'medallion quarantine --run %s'",
			result.Summary.Quarantined, result.Summary.RunID))
		if out.Verbose {
			ui.RenderQuarantine(os.Stdout, result.Quarantined)
		}
	}

	return nil
}

// loadConfig reads the configuration and applies defaults.
func loadConfig() (*models.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	config.ApplyDefaults(cfg)

	if cfg.Snowflake.Account == "" {
		return nil, errors.ConfigError("no Snowflake connection configured", "snowflake").
			WithSuggestions("Run 'medallion setup' first")
	}
	return cfg, nil
}

// findSource resolves a configured source by name.
func findSource(cfg *models.Config, name string) (models.Source, error) {
	for _, s := range cfg.Sources {
		if s.Name == name {
			return s, nil
		}
	}
	return models.Source{}, errors.New(errors.ErrCodeSourceUnknown,
		fmt.Sprintf("source %q is not configured", name)).
		WithContext("source", name).
		WithSuggestions("Run 'medallion setup' to add sources", "Check the source name for typos")
}

// openWarehouse connects to Snowflake and resolves the fact and quarantine
// table refs.
func openWarehouse(cfg *models.Config) (*warehouse.Service, warehouse.TableRef, warehouse.TableRef, error) {
	var fact, quarantine warehouse.TableRef

	timeout := 30 * time.Second
	if cfg.Snowflake.Timeout != "" {
		parsed, err := time.ParseDuration(cfg.Snowflake.Timeout)
		if err != nil {
			return nil, fact, quarantine, errors.ConfigError(
				fmt.Sprintf("invalid timeout %q", cfg.Snowflake.Timeout), "snowflake.timeout")
		}
		timeout = parsed
	}

	whConfig := warehouse.Config{
		Account:   cfg.Snowflake.Account,
		Username:  cfg.Snowflake.Username,
		Password:  cfg.Snowflake.Password,
		Database:  cfg.Snowflake.Database,
		Schema:    cfg.Snowflake.Schema,
		Warehouse: cfg.Snowflake.Warehouse,
		Role:      cfg.Snowflake.Role,
		Timeout:   timeout,
	}

	if err := warehouse.ValidateConfig(whConfig); err != nil {
		return nil, fact, quarantine, errors.ConfigError(err.Error(), "snowflake")
	}

	fact = warehouse.TableRef{
		Database: cfg.Reconciliation.Database,
		Schema:   cfg.Reconciliation.Schema,
		Table:    cfg.Reconciliation.FactTable,
	}
	quarantine = warehouse.TableRef{
		Database: cfg.Reconciliation.Database,
		Schema:   cfg.Reconciliation.Schema,
		Table:    cfg.Reconciliation.QuarantineTable,
	}

	service := warehouse.NewService(whConfig)
	if err := service.Connect(); err != nil {
		return nil, fact, quarantine, err
	}

	return service, fact, quarantine, nil
}
