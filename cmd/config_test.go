package cmd

import (
	"strings"
	"testing"

	"github.com/orgctl/orgctl/internal/config"
)

func TestListOrgs(t *testing.T) {
	saved := config.AppConfig
	defer func() { config.AppConfig = saved }()

	config.AppConfig = config.Config{}
	out := captureOutput(t, func() {
		if err := listOrgs(); err != nil {
			t.Errorf("listOrgs: %v", err)
		}
	})
	if !strings.Contains(out, "No orgs configured") {
		t.Errorf("expected empty-config hint, got %q", out)
	}

	config.AppConfig = config.Config{Orgs: []config.Org{
		{Name: "prod", URL: "https://prod.example.com", APIVersion: "60.0", Default: true},
		{Name: "staging", URL: "https://staging.example.com"},
	}}
	out = captureOutput(t, func() {
		if err := listOrgs(); err != nil {
			t.Errorf("listOrgs: %v", err)
		}
	})
	for _, want := range []string{"prod", "staging", "60.0", config.DefaultAPIVersion} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got %q", want, out)
		}
	}
}

func TestAddOrgValidation(t *testing.T) {
	if err := addOrg("broken", "", ""); err == nil {
		t.Error("expected error when --url and --token are missing")
	}

	saved := config.AppConfig
	defer func() { config.AppConfig = saved }()
	config.AppConfig = config.Config{Orgs: []config.Org{{Name: "prod"}}}
	if err := addOrg("prod", "https://prod.example.com", "token"); err == nil {
		t.Error("expected error for duplicate org name")
	}
}

func TestUseOrgUnknown(t *testing.T) {
	saved := config.AppConfig
	defer func() { config.AppConfig = saved }()
	config.AppConfig = config.Config{}

	if err := useOrg("nope"); err == nil {
		t.Error("expected error for unknown org")
	}
}
