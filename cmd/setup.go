package cmd

import (
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"medallion/internal/config"
	"medallion/internal/credentials"
	"medallion/pkg/models"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive configuration setup",
	Run:   runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) {
	fmt.Println("Setting up medallion...")
	fmt.Println()

	if config.Exists() {
		var overwrite bool
		prompt := &survey.Confirm{
			Message: "Configuration already exists. Do you want to overwrite it?",
			Default: false,
		}
		survey.AskOne(prompt, &overwrite)
		if !overwrite {
			fmt.Println("Setup cancelled.")
			return
		}
	}

	cfg := &models.Config{}

	fmt.Println("Snowflake Connection")
	fmt.Println("--------------------")

	snowflakeQs := []*survey.Question{
		{
			Name: "account",
			Prompt: &survey.Input{
				Message: "Snowflake Account (e.g., xy12345.us-east-1):",
			},
			Validate: survey.Required,
		},
		{
			Name: "username",
			Prompt: &survey.Input{
				Message: "Username:",
			},
			Validate: survey.Required,
		},
		{
			Name: "password",
			Prompt: &survey.Password{
				Message: "Password:",
			},
			Validate: survey.Required,
		},
		{
			Name: "role",
			Prompt: &survey.Input{
				Message: "Role:",
				Default: "SYSADMIN",
			},
			Validate: survey.Required,
		},
		{
			Name: "warehouse",
			Prompt: &survey.Input{
				Message: "Warehouse:",
				Default: "COMPUTE_WH",
			},
			Validate: survey.Required,
		},
		{
			Name: "database",
			Prompt: &survey.Input{
				Message: "Database:",
				Default: "ANALYTICS",
			},
			Validate: survey.Required,
		},
		{
			Name: "schema",
			Prompt: &survey.Input{
				Message: "Schema:",
				Default: "GOLD",
			},
			Validate: survey.Required,
		},
	}

	if err := survey.Ask(snowflakeQs, &cfg.Snowflake); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("Sales Sources")
	fmt.Println("-------------")

	for {
		var addSource bool
		survey.AskOne(&survey.Confirm{
			Message: "Add a sales source?",
			Default: len(cfg.Sources) == 0,
		}, &addSource)
		if !addSource {
			break
		}

		source := models.Source{}
		sourceQs := []*survey.Question{
			{
				Name: "name",
				Prompt: &survey.Input{
					Message: "Source name (used in --source):",
				},
				Validate: survey.Required,
			},
			{
				Name: "company",
				Prompt: &survey.Input{
					Message: "Company name:",
				},
				Validate: survey.Required,
			},
			{
				Name: "granularity",
				Prompt: &survey.Select{
					Message: "Feed granularity:",
					Options: []string{"daily", "monthly"},
					Default: "daily",
				},
			},
			{
				Name: "align",
				Prompt: &survey.Select{
					Message: "Align records to:",
					Options: []string{"daily", "monthly"},
					Default: "daily",
				},
			},
		}

		if err := survey.Ask(sourceQs, &source); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		cfg.Sources = append(cfg.Sources, source)
	}

	fmt.Println()
	fmt.Println("View Repositories")
	fmt.Println("-----------------")

	var addRepo bool
	survey.AskOne(&survey.Confirm{
		Message: "Add a git repository holding view definitions?",
		Default: false,
	}, &addRepo)

	if addRepo {
		repo := models.ViewRepository{}
		repoQs := []*survey.Question{
			{
				Name: "name",
				Prompt: &survey.Input{
					Message: "Repository name:",
				},
				Validate: survey.Required,
			},
			{
				Name: "giturl",
				Prompt: &survey.Input{
					Message: "Git URL:",
				},
				Validate: survey.Required,
			},
			{
				Name: "branch",
				Prompt: &survey.Input{
					Message: "Branch:",
					Default: "main",
				},
			},
			{
				Name: "path",
				Prompt: &survey.Input{
					Message: "Path to SQL files within the repo (blank for root):",
				},
			},
		}

		if err := survey.Ask(repoQs, &repo); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		repo.Database = cfg.Snowflake.Database
		repo.Schema = cfg.Snowflake.Schema
		cfg.ViewRepos = append(cfg.ViewRepos, repo)

		var token string
		survey.AskOne(&survey.Password{
			Message: "Git token for HTTPS access (blank to use SSH or env vars):",
		}, &token)

		if token != "" {
			manager, err := credentials.NewManager()
			if err != nil {
				fmt.Printf("Warning: could not open credential store: %v\n", err)
			} else if err := manager.Store("git-"+repo.Name, credentials.KindGitToken, token, nil); err != nil {
				fmt.Printf("Warning: could not store git token: %v\n", err)
			}
		}
	}

	config.ApplyDefaults(cfg)

	if err := config.Save(cfg); err != nil {
		fmt.Printf("Error saving configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Printf("Configuration saved to %s\n", config.GetConfigFile())
	fmt.Println("Run 'medallion reconcile --source <name> --file <batch.csv>' to load a batch.")
}
