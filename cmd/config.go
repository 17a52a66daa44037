package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orgctl/orgctl/internal/config"
	"github.com/orgctl/orgctl/internal/output"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage configured orgs",
	GroupID: groupConfig,
	Long: `List, add, and select the orgs orgctl can connect to.

Org connections live in ~/.orgctl/orgctl.yaml. One org can be marked as
the default; commands use it when neither --org nor --url is given.

Examples:
  # List configured orgs
  orgctl config

  # Add an org
  orgctl config --add staging --url https://staging.my.example.com --token 00D...

  # Make an org the default
  orgctl config --use staging`,
	RunE: runConfig,
}

var (
	configAddName string
	configUseName string
	configURL     string
	configToken   string
)

func init() {
	configCmd.Flags().StringVar(&configAddName, "add", "", "Add an org with this name (requires --url and --token)")
	configCmd.Flags().StringVar(&configUseName, "use", "", "Set the named org as the default")
	configCmd.Flags().StringVar(&configURL, "url", "", "Instance URL for --add")
	configCmd.Flags().StringVar(&configToken, "token", "", "Access token for --add")
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	if configAddName != "" {
		return addOrg(configAddName, configURL, configToken)
	}
	if configUseName != "" {
		return useOrg(configUseName)
	}
	return listOrgs()
}

func listOrgs() error {
	if len(config.AppConfig.Orgs) == 0 {
		output.Info("No orgs configured. Add one with 'orgctl config --add <name> --url <url> --token <token>'.")
		return nil
	}

	printer := output.NewPrinter(outputFormat)
	if outputFormat != "table" {
		return printer.Print(config.AppConfig.Orgs)
	}

	output.Header("Configured Orgs")
	var rows [][]string
	for _, org := range config.AppConfig.Orgs {
		def := ""
		if org.Default {
			def = "*"
		}
		version := org.APIVersion
		if version == "" {
			version = config.DefaultAPIVersion
		}
		rows = append(rows, []string{org.Name, org.URL, version, def})
	}
	output.PrintTable([]string{"Name", "URL", "API Version", "Default"}, rows)
	return nil
}

func addOrg(name, url, token string) error {
	if url == "" || token == "" {
		return fmt.Errorf("--add requires both --url and --token")
	}
	if config.GetOrg(name) != nil {
		return fmt.Errorf("org '%s' already exists", name)
	}

	org := config.Org{
		Name:        name,
		URL:         url,
		AccessToken: token,
		Default:     len(config.AppConfig.Orgs) == 0,
	}
	config.AppConfig.Orgs = append(config.AppConfig.Orgs, org)
	if err := config.SaveConfig(); err != nil {
		return err
	}
	output.Success("Org '%s' added", name)
	return nil
}

func useOrg(name string) error {
	if config.GetOrg(name) == nil {
		return fmt.Errorf("org '%s' not found in config", name)
	}
	for i := range config.AppConfig.Orgs {
		config.AppConfig.Orgs[i].Default = config.AppConfig.Orgs[i].Name == name
	}
	if err := config.SaveConfig(); err != nil {
		return err
	}
	output.Success("Default org set to '%s'", name)
	return nil
}
