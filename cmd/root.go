package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"medallion/internal/ui"
	"medallion/pkg/errors"
)

var (
	flagVerbose bool
	flagQuiet   bool

	rootCmd = &cobra.Command{
		Use:   "medallion",
		Short: "Reconcile multi-company sales feeds into a unified star schema",
		Long: `Medallion merges daily and monthly sales feeds from acquired companies
into a single fact table on Snowflake. Batches are validated, deduplicated,
aligned to a common grain and upserted idempotently; rejected rows land in a
quarantine table with machine-readable reasons.`,
	}
)

// Execute runs the root command.
func Execute() {
	defer errors.GetGlobalErrorHandler().Close()

	if err := rootCmd.Execute(); err != nil {
		ui.ShowError(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress non-essential output")

	// Accept snake_case spellings for flags like --dry_run.
	rootCmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	home, err := os.UserHomeDir()
	if err == nil {
		viper.AddConfigPath(home + "/.medallion")
	}

	viper.SetEnvPrefix("MEDALLION")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: could not read config: %v\n", err)
		}
	}
}

func newUI() *ui.UI {
	return ui.NewUI(flagVerbose, flagQuiet)
}
