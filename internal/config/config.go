package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Org represents a configured CRM org connection.
type Org struct {
	Name        string `mapstructure:"name"`
	URL         string `mapstructure:"url"`
	AccessToken string `mapstructure:"access_token"`
	APIVersion  string `mapstructure:"api_version"`
	Default     bool   `mapstructure:"default"`
}

// Config represents the application configuration
type Config struct {
	Orgs          []Org  `mapstructure:"orgs"`
	DefaultOutput string `mapstructure:"default_output"`
	APIVersion    string `mapstructure:"api_version"`
}

// Global configuration instance
var AppConfig Config

// DefaultAPIVersion is used when neither config nor flags set one.
const DefaultAPIVersion = "59.0"

// LoadConfig loads configuration from file and environment
func LoadConfig() error {
	// Pick up a local .env for credentials if present
	_ = godotenv.Load()

	// Set config file name and type
	viper.SetConfigName("orgctl")
	viper.SetConfigType("yaml")

	// Search paths for config file
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.orgctl")
	viper.AddConfigPath("/etc/orgctl")

	// Set defaults
	viper.SetDefault("default_output", "table")
	viper.SetDefault("api_version", DefaultAPIVersion)

	// Environment variable support
	viper.SetEnvPrefix("ORGCTL")
	viper.AutomaticEnv()

	// Support common platform environment variables
	if url := os.Getenv("SF_INSTANCE_URL"); url != "" {
		viper.SetDefault("orgs", []Org{
			{
				Name:        "default",
				URL:         url,
				AccessToken: os.Getenv("SF_ACCESS_TOKEN"),
				Default:     true,
			},
		})
	}

	// Read config file if exists (silently ignore if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is normal, use defaults/env
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	// Unmarshal to struct
	if err := viper.Unmarshal(&AppConfig); err != nil {
		return fmt.Errorf("unable to decode config: %w", err)
	}

	return nil
}

// GetDefaultOrg returns the default org configuration
func GetDefaultOrg() *Org {
	for i := range AppConfig.Orgs {
		if AppConfig.Orgs[i].Default {
			return &AppConfig.Orgs[i]
		}
	}
	// Return first org if no default is set
	if len(AppConfig.Orgs) > 0 {
		return &AppConfig.Orgs[0]
	}
	return nil
}

// GetOrg returns an org by name
func GetOrg(name string) *Org {
	for i := range AppConfig.Orgs {
		if AppConfig.Orgs[i].Name == name {
			return &AppConfig.Orgs[i]
		}
	}
	return nil
}

// SaveConfig saves the current configuration to file
func SaveConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".orgctl")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "orgctl.yaml")

	viper.Set("orgs", AppConfig.Orgs)
	viper.Set("default_output", AppConfig.DefaultOutput)
	viper.Set("api_version", AppConfig.APIVersion)

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// InitConfig creates an initial configuration file
func InitConfig(org Org) error {
	AppConfig.Orgs = append(AppConfig.Orgs, org)
	AppConfig.DefaultOutput = "table"
	return SaveConfig()
}
