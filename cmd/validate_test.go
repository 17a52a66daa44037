package cmd

import (
	"testing"

	"github.com/orgctl/orgctl/internal/csvio"
)

func TestValidateFolderCleanData(t *testing.T) {
	folder := newBackupFolder(t)
	mock := newTargetOrg()

	results, err := validateFolder(mock, folder, nil)
	if err != nil {
		t.Fatalf("validateFolder: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, entry := range results {
		if !entry.Result.Valid() {
			t.Errorf("%s: unexpected validation errors: %v", entry.ObjectName, entry.Result.Errors)
		}
	}
}

func TestValidateFolderFindsBadValues(t *testing.T) {
	folder := t.TempDir()
	writeCSV(t, folder, "Contact", []csvio.Row{
		rowWith("LastName", "Ward", "Email", "not-an-email"),
		rowWith("LastName", "Vance", "Email", "vance@example.com"),
	})

	results, err := validateFolder(newTargetOrg(), folder, nil)
	if err != nil {
		t.Fatalf("validateFolder: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Result.Valid() {
		t.Error("expected the malformed email to fail validation")
	}
	if len(results[0].Result.Errors) != 1 {
		t.Errorf("expected exactly 1 error, got %v", results[0].Result.Errors)
	}
}

func TestValidateFolderUnknownObject(t *testing.T) {
	folder := t.TempDir()
	writeCSV(t, folder, "Widget__c", []csvio.Row{rowWith("Name", "w1")})

	results, err := validateFolder(newTargetOrg(), folder, nil)
	if err != nil {
		t.Fatalf("validateFolder: %v", err)
	}
	if results[0].Result.Valid() {
		t.Error("expected unknown object to fail validation")
	}
}
