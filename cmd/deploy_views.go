package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"medallion/internal/credentials"
	"medallion/internal/viewrepo"
	"medallion/pkg/errors"
)

var deployViewsRepo string

var deployViewsCmd = &cobra.Command{
	Use:   "deploy-views",
	Short: "Sync view repositories and deploy their SQL to the warehouse",
	Long: `Deploy-views clones or updates each configured git repository of view
definitions and executes its SQL files in name order against the configured
database and schema.`,
	RunE: runDeployViews,
}

func init() {
	rootCmd.AddCommand(deployViewsCmd)
	deployViewsCmd.Flags().StringVarP(&deployViewsRepo, "repo", "r", "", "deploy a single repository by name")
}

func runDeployViews(cmd *cobra.Command, args []string) error {
	out := newUI()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repos := cfg.ViewRepos
	if deployViewsRepo != "" {
		repos = nil
		for _, r := range cfg.ViewRepos {
			if r.Name == deployViewsRepo {
				repos = append(repos, r)
			}
		}
		if len(repos) == 0 {
			return errors.ConfigError(
				fmt.Sprintf("view repository %q is not configured", deployViewsRepo), "view_repos")
		}
	}
	if len(repos) == 0 {
		return errors.ConfigError("no view repositories configured", "view_repos").
			WithSuggestions("Run 'medallion setup' to add a view repository")
	}

	service, _, _, err := openWarehouse(cfg)
	if err != nil {
		return err
	}
	defer service.Close()

	ctx := context.Background()

	for _, repo := range repos {
		token := gitToken(repo.Name)
		sync := viewrepo.NewService(token)

		out.StartProgress(fmt.Sprintf("Syncing %s", repo.Name))
		if err := sync.Sync(ctx, repo); err != nil {
			out.StopProgress(false, fmt.Sprintf("Failed to sync %s", repo.Name))
			return err
		}
		out.StopProgress(true, fmt.Sprintf("Synced %s", repo.Name))

		dir, err := sync.SQLDirectory(repo)
		if err != nil {
			return err
		}

		database := repo.Database
		if database == "" {
			database = cfg.Reconciliation.Database
		}
		schema := repo.Schema
		if schema == "" {
			schema = cfg.Reconciliation.Schema
		}

		out.StartProgress(fmt.Sprintf("Deploying views from %s", repo.Name))
		if err := service.ExecuteDirectory(dir, database, schema, "*.sql"); err != nil {
			out.StopProgress(false, fmt.Sprintf("Deploy failed for %s", repo.Name))
			return err
		}
		out.StopProgress(true, fmt.Sprintf("Deployed views from %s to %s.%s", repo.Name, database, schema))
	}

	return nil
}

// gitToken looks up a stored token for a repository, falling back to none.
func gitToken(repoName string) string {
	manager, err := credentials.NewManager()
	if err != nil {
		return ""
	}
	cred, err := manager.Get("git-" + repoName)
	if err != nil {
		return ""
	}
	return cred.Value
}
