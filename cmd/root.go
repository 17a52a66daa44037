package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orgctl/orgctl/internal/client"
	"github.com/orgctl/orgctl/internal/config"
)

var (
	// Global flags
	orgURL       string
	accessToken  string
	orgName      string
	apiVersion   string
	outputFormat string

	rootCmd = &cobra.Command{
		Use:   "orgctl",
		Short: "Org Control - cross-org CRM data restore engine",
		Long: `orgctl restores CRM data backups into a different org than the one
they were captured from, resolving record IDs through portable keys and
remapping org-specific values along the way.

Configure your orgs in ~/.orgctl/orgctl.yaml or use environment variables:
  SF_INSTANCE_URL, SF_ACCESS_TOKEN

A restore reads a backup folder (CSV files plus manifest JSON), orders
objects by their lookup dependencies, and writes records in batches.
See 'orgctl [command] --help' for command-specific options.`,
		Version: "1.0.0",
	}
)

// Command group IDs
const (
	groupRestore  = "restore"
	groupAnalysis = "analysis"
	groupConfig   = "config"
)

func init() {
	cobra.OnInitialize(initConfig)

	// Define command groups
	rootCmd.AddGroup(
		&cobra.Group{ID: groupRestore, Title: "Restore Operations:"},
		&cobra.Group{ID: groupAnalysis, Title: "Analysis & Validation:"},
		&cobra.Group{ID: groupConfig, Title: "Configuration:"},
	)

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&orgURL, "url", "u", "", "Org instance URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&accessToken, "token", "", "Access token")
	rootCmd.PersistentFlags().StringVarP(&orgName, "org", "r", "", "Org name from config")
	rootCmd.PersistentFlags().StringVar(&apiVersion, "api-version", "", "Platform API version (e.g. 59.0)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json, yaml, plain")
}

func initConfig() {
	if err := config.LoadConfig(); err != nil {
		// Only warn for actual config errors, not missing config files
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetClient returns a configured platform client based on flags and config
func GetClient() (client.PlatformClient, error) {
	var url, token, version string

	// Priority: CLI flags > specific org from config > default org > env vars
	if orgURL != "" {
		url = orgURL
		token = accessToken
	} else if orgName != "" {
		org := config.GetOrg(orgName)
		if org == nil {
			return nil, fmt.Errorf("org '%s' not found in config", orgName)
		}
		url = org.URL
		token = org.AccessToken
		version = org.APIVersion
	} else {
		org := config.GetDefaultOrg()
		if org != nil {
			url = org.URL
			token = org.AccessToken
			version = org.APIVersion
		} else {
			url = os.Getenv("SF_INSTANCE_URL")
			token = os.Getenv("SF_ACCESS_TOKEN")
		}
	}

	// Override token from flag if provided
	if accessToken != "" {
		token = accessToken
	}

	if apiVersion != "" {
		version = apiVersion
	}
	if version == "" {
		version = config.AppConfig.APIVersion
	}
	if version == "" {
		version = config.DefaultAPIVersion
	}

	if url == "" {
		return nil, fmt.Errorf("no org URL configured. Use --url flag, set SF_INSTANCE_URL env var, or configure in ~/.orgctl/orgctl.yaml")
	}
	if token == "" {
		return nil, fmt.Errorf("no access token configured. Use --token flag, set SF_ACCESS_TOKEN env var, or configure in ~/.orgctl/orgctl.yaml")
	}

	return client.NewClient(url, token, version), nil
}

// targetName returns the display name of the org being written to.
func targetName() string {
	if orgName != "" {
		return orgName
	}
	if orgURL != "" {
		return orgURL
	}
	if org := config.GetDefaultOrg(); org != nil {
		return org.Name
	}
	return "default"
}
