package cmd

import (
	"strings"
	"testing"

	"github.com/orgctl/orgctl/internal/audit"
	"github.com/orgctl/orgctl/internal/client"
	"github.com/orgctl/orgctl/internal/csvio"
	"github.com/orgctl/orgctl/internal/restore"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    restore.Mode
		wantErr bool
	}{
		{"insert", restore.ModeInsert, false},
		{"INSERT", restore.ModeInsert, false},
		{"Update", restore.ModeUpdate, false},
		{"upsert", restore.ModeUpsert, false},
		{"merge", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := parseMode(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseMode(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseMode(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFilterObjects(t *testing.T) {
	files := map[string]string{
		"Account": "/tmp/Account.csv",
		"Contact": "/tmp/Contact.csv",
		"Case":    "/tmp/Case.csv",
	}

	if got := filterObjects(files, nil); len(got) != 3 {
		t.Errorf("no filter should keep all files, got %d", len(got))
	}

	out := captureOutput(t, func() {
		got := filterObjects(files, []string{"Account", " Contact ", "Lead"})
		if len(got) != 2 {
			t.Errorf("expected 2 objects, got %d", len(got))
		}
		if _, ok := got["Contact"]; !ok {
			t.Error("expected whitespace-trimmed Contact to match")
		}
	})
	if !strings.Contains(out, "Lead not found") {
		t.Errorf("expected warning about missing Lead, got %q", out)
	}
}

func TestRunRestoreFolderEndToEnd(t *testing.T) {
	folder := t.TempDir()
	writeCSV(t, folder, "Account", []csvio.Row{
		rowWith("Id", "001000000000000001", "Name", "Acme"),
		rowWith("Id", "001000000000000002", "Name", "Globex"),
	})
	writeCSV(t, folder, "Contact", []csvio.Row{
		rowWith("Id", "003000000000000001", "LastName", "Ward",
			"AccountId", "001000000000000001", "_ref_AccountId_Name", "Acme"),
		rowWith("Id", "003000000000000002", "LastName", "Vance",
			"AccountId", "001000000000000002", "_ref_AccountId_Name", "Globex"),
	})

	mock := newTargetOrg()
	var events []audit.Event
	settings := restoreSettings{
		Mode:    restore.ModeInsert,
		Target:  "target-sandbox",
		publish: func(event audit.Event) { events = append(events, event) },
	}

	var results []*restore.Result
	var stats *restore.Stats
	captureOutput(t, func() {
		var err error
		results, stats, err = runRestoreFolder(mock, folder, settings)
		if err != nil {
			t.Fatalf("runRestoreFolder: %v", err)
		}
	})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ObjectName != "Account" || results[1].ObjectName != "Contact" {
		t.Errorf("expected Account before Contact, got %s then %s",
			results[0].ObjectName, results[1].ObjectName)
	}
	for _, result := range results {
		if result.FailureCount != 0 {
			t.Errorf("%s: unexpected failures: %v", result.ObjectName, result.Errors)
		}
	}

	// Contacts must point at the target-side account IDs, not source IDs.
	accountIDs := make(map[string]bool)
	for _, record := range mock.Records["Account"] {
		accountIDs[record["Id"]] = true
	}
	if len(accountIDs) != 2 {
		t.Fatalf("expected 2 accounts in target, got %d", len(accountIDs))
	}
	for _, record := range mock.Records["Contact"] {
		if !accountIDs[record["AccountId"]] {
			t.Errorf("contact %s has unresolved AccountId %q", record["LastName"], record["AccountId"])
		}
		if strings.HasPrefix(record["AccountId"], "001") {
			t.Errorf("contact %s kept source-org AccountId %q", record["LastName"], record["AccountId"])
		}
	}

	if stats.Snapshot().RecordsRestored != 4 {
		t.Errorf("expected 4 restored records in stats, got %d", stats.Snapshot().RecordsRestored)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 audit events, got %d", len(events))
	}
	if events[0].ObjectName != "Account" || events[0].SuccessCount != 2 {
		t.Errorf("unexpected first audit event: %+v", events[0])
	}
	if events[1].TargetOrg != "target-sandbox" || events[1].Mode != "INSERT" {
		t.Errorf("unexpected second audit event: %+v", events[1])
	}
}

func TestRunRestoreFolderDryRun(t *testing.T) {
	folder := newBackupFolder(t)
	mock := newTargetOrg()

	out := captureOutput(t, func() {
		results, stats, err := runRestoreFolder(mock, folder, restoreSettings{
			Mode:   restore.ModeInsert,
			DryRun: true,
		})
		if err != nil {
			t.Fatalf("runRestoreFolder: %v", err)
		}
		if results != nil || stats != nil {
			t.Error("dry run should not produce results")
		}
	})

	if mock.CallCount("CompositeCreate") != 0 || mock.CallCount("CreateIngestJob") != 0 {
		t.Error("dry run must not write anything")
	}
	if !strings.Contains(out, "Restore Plan") {
		t.Errorf("expected plan output, got %q", out)
	}
}

func TestRunRestoreFolderStopOnErrorValidation(t *testing.T) {
	folder := t.TempDir()
	writeCSV(t, folder, "Contact", []csvio.Row{
		rowWith("LastName", "Ward", "Email", "not-an-email"),
	})

	mock := client.NewMockClient()
	mock.AddDescribe(contactDescribe())

	captureOutput(t, func() {
		_, _, err := runRestoreFolder(mock, folder, restoreSettings{
			Mode:        restore.ModeInsert,
			StopOnError: true,
			SkipResolve: true,
		})
		if err == nil {
			t.Fatal("expected validation failure to stop the restore")
		}
		if !strings.Contains(err.Error(), "failed validation") {
			t.Errorf("unexpected error: %v", err)
		}
	})
	if mock.CallCount("CompositeCreate") != 0 {
		t.Error("nothing should be written after a validation stop")
	}
}

func TestPrintRestoreResults(t *testing.T) {
	ok := &restore.Result{ObjectName: "Account", TotalRecords: 2, SuccessCount: 2, Completed: true}
	bad := &restore.Result{ObjectName: "Contact", TotalRecords: 3, SuccessCount: 1, FailureCount: 2,
		Errors: []string{
			"REQUIRED_FIELD_MISSING:Required fields are missing: [LastName] [Id: 003000000000000009]",
			"REQUIRED_FIELD_MISSING:Required fields are missing: [LastName]",
		}}

	out := captureOutput(t, func() {
		if err := printRestoreResults([]*restore.Result{ok}); err != nil {
			t.Errorf("clean results should not error: %v", err)
		}
	})
	if !strings.Contains(out, "Restore complete") {
		t.Errorf("expected success summary, got %q", out)
	}

	out = captureOutput(t, func() {
		err := printRestoreResults([]*restore.Result{ok, bad})
		if err == nil {
			t.Error("expected error for failed records")
		}
	})
	if !strings.Contains(out, "Required field missing (2 records)") {
		t.Errorf("expected grouped error line, got %q", out)
	}
}
