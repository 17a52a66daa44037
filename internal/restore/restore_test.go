package restore

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/orgctl/orgctl/internal/client"
	"github.com/orgctl/orgctl/internal/csvio"
	"github.com/orgctl/orgctl/internal/metadata"
)

func contactDescribe() *client.ObjectDescribe {
	return &client.ObjectDescribe{
		Name: "Contact",
		Fields: []client.FieldDescribe{
			{Name: "Id", Type: "id", IDLookup: true},
			{Name: "LastName", Type: "string", Createable: true, Nillable: false},
			{Name: "Email", Type: "email", Createable: true, Nillable: true},
			{Name: "Legacy_Key__c", Type: "string", Createable: true, Nillable: true, ExternalID: true, IDLookup: true},
		},
	}
}

func contactRow(lastName string) csvio.Row {
	row := csvio.NewRow()
	row.Set("LastName", lastName)
	row.Set("Email", strings.ToLower(lastName)+"@example.com")
	return row
}

func newTestExecutor(mock *client.MockClient, opts Options) *Executor {
	exec := NewExecutor(mock, metadata.NewCache(mock), opts)
	exec.sleep = func(time.Duration) {}
	return exec
}

func TestRestoreRowsPartialFailure(t *testing.T) {
	mock := client.NewMockClient()
	mock.RequiredFields["Contact"] = []string{"LastName"}

	rows := []csvio.Row{
		contactRow("Adams"),
		contactRow(""),
		contactRow("Baker"),
	}
	exec := newTestExecutor(mock, DefaultOptions())

	result, err := exec.RestoreRows("Contact", rows, ModeInsert)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SuccessCount != 2 || result.FailureCount != 1 {
		t.Errorf("expected 2/1, got %d/%d", result.SuccessCount, result.FailureCount)
	}
	if len(result.CreatedIDs) != 2 {
		t.Errorf("expected 2 created IDs, got %v", result.CreatedIDs)
	}
	if !result.Completed {
		t.Error("expected restore marked completed")
	}
	found := false
	for _, message := range result.Errors {
		if strings.Contains(message, "REQUIRED_FIELD_MISSING") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a required-field error, got %v", result.Errors)
	}
}

func TestRestoreRowsStripsSystemAndEnrichmentFields(t *testing.T) {
	mock := client.NewMockClient()
	row := contactRow("Adams")
	row.Set("Id", "003OLD")
	row.Set("CreatedDate", "2024-01-01T00:00:00Z")
	row.Set("SystemModstamp", "2024-01-01T00:00:00Z")
	row.Set("_ref_AccountId_Name", "Acme")

	exec := newTestExecutor(mock, DefaultOptions())
	result, err := exec.RestoreRows("Contact", []csvio.Row{row}, ModeInsert)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SuccessCount != 1 {
		t.Fatalf("expected success, got %+v", result)
	}
	stored := mock.Records["Contact"][0]
	for _, field := range []string{"CreatedDate", "SystemModstamp", "_ref_AccountId_Name"} {
		if _, ok := stored[field]; ok {
			t.Errorf("field %s should have been stripped", field)
		}
	}
	if stored["Id"] == "003OLD" {
		t.Error("original Id should not survive an insert")
	}
}

func TestRetryExhaustion(t *testing.T) {
	mock := client.NewMockClient()
	mock.CompositeError = errors.New("connection reset by peer")

	var delays []time.Duration
	opts := DefaultOptions()
	opts.MaxRetries = 3
	exec := NewExecutor(mock, metadata.NewCache(mock), opts)
	exec.sleep = func(d time.Duration) { delays = append(delays, d) }

	result, err := exec.RestoreRows("Contact", []csvio.Row{contactRow("Adams")}, ModeInsert)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := mock.CallCount("CompositeCreate"); got != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", got)
	}
	if len(delays) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %d", len(delays))
	}
	if delays[0] != opts.RetryDelay || delays[1] != 2*opts.RetryDelay {
		t.Errorf("expected linear backoff, got %v", delays)
	}
	if result.FailureCount != 1 {
		t.Errorf("expected the batch counted as failed, got %d", result.FailureCount)
	}
	found := false
	for _, message := range result.Errors {
		if strings.Contains(message, "after 3 attempts") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an exhaustion error, got %v", result.Errors)
	}
}

func TestNonRetryableFailureAbortsObject(t *testing.T) {
	mock := client.NewMockClient()
	mock.CompositeError = errors.New("INVALID_SESSION_ID: session expired")

	rows := make([]csvio.Row, 0, 250)
	for i := 0; i < 250; i++ {
		rows = append(rows, contactRow(fmt.Sprintf("Contact%03d", i)))
	}

	exec := newTestExecutor(mock, DefaultOptions())
	_, err := exec.RestoreRows("Contact", rows, ModeInsert)
	if err == nil || !strings.Contains(err.Error(), "INVALID_SESSION_ID") {
		t.Fatalf("expected the batch error surfaced, got %v", err)
	}
	if !strings.Contains(err.Error(), "batch 1/2") {
		t.Errorf("expected the failing batch named, got %v", err)
	}
	if got := mock.CallCount("CompositeCreate"); got != 1 {
		t.Errorf("expected a single attempt with no further batches, got %d", got)
	}
}

func TestEndToEndFiveHundredContacts(t *testing.T) {
	mock := client.NewMockClient()
	mock.RequiredFields["Contact"] = []string{"LastName"}

	rows := make([]csvio.Row, 0, 500)
	for i := 0; i < 500; i++ {
		if i%50 == 0 {
			// 10 rows with the required field missing.
			rows = append(rows, contactRow(""))
			continue
		}
		rows = append(rows, contactRow(fmt.Sprintf("Contact%03d", i)))
	}

	exec := newTestExecutor(mock, DefaultOptions())
	var progress []Progress
	exec.SetProgressSink(func(p Progress) { progress = append(progress, p) })

	result, err := exec.RestoreRows("Contact", rows, ModeInsert)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SuccessCount != 490 || result.FailureCount != 10 {
		t.Errorf("expected 490/10, got %d/%d", result.SuccessCount, result.FailureCount)
	}
	if got := mock.CallCount("CompositeCreate"); got != 3 {
		t.Errorf("expected 3 batches at size 200, got %d", got)
	}
	if len(progress) != 3 {
		t.Fatalf("expected 3 progress updates, got %d", len(progress))
	}
	last := progress[len(progress)-1]
	if last.ProcessedRecords != 500 || last.PercentComplete != 100 {
		t.Errorf("unexpected final progress: %+v", last)
	}

	snap := exec.Stats().Snapshot()
	if snap.RecordsRestored != 490 || snap.RecordsFailed != 10 || snap.BatchesWritten != 3 {
		t.Errorf("unexpected stats: %+v", snap)
	}
}

func TestBulkIngestPath(t *testing.T) {
	mock := client.NewMockClient()
	mock.RequiredFields["Contact"] = []string{"LastName"}

	rows := make([]csvio.Row, 0, 250)
	for i := 0; i < 250; i++ {
		if i < 5 {
			rows = append(rows, contactRow(""))
			continue
		}
		rows = append(rows, contactRow(fmt.Sprintf("Bulk%03d", i)))
	}

	opts := DefaultOptions()
	opts.BatchSize = 300
	exec := newTestExecutor(mock, opts)

	result, err := exec.RestoreRows("Contact", rows, ModeInsert)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := mock.CallCount("CreateIngestJob"); got != 1 {
		t.Errorf("expected one ingest job, got %d", got)
	}
	if result.SuccessCount != 245 || result.FailureCount != 5 {
		t.Errorf("expected 245/5, got %d/%d", result.SuccessCount, result.FailureCount)
	}
	if len(result.Errors) != 5 {
		t.Fatalf("expected 5 per-record errors, got %d: %v", len(result.Errors), result.Errors)
	}
	grouped := false
	for _, message := range GroupedErrors(result.Errors) {
		if strings.Contains(message, "Required field missing (5 records)") {
			grouped = true
		}
	}
	if !grouped {
		t.Errorf("expected grouped error summary, got %v", GroupedErrors(result.Errors))
	}
}

func TestParseFailedResultsRecordID(t *testing.T) {
	report := "\"sf__Error\",\"sf__Id\",\"LastName\"\n" +
		"\"DUPLICATE_VALUE:duplicate value found on record\",\"003000000000000042\",\"Adams\"\n" +
		"\"REQUIRED_FIELD_MISSING:Required fields are missing: [LastName]\",\"\",\"\"\n"

	batch := &BatchResult{}
	parseFailedResults(report, batch)
	if len(batch.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %v", batch.Errors)
	}
	if !strings.Contains(batch.Errors[0], "[Id: 003000000000000042]") {
		t.Errorf("expected record ID attached, got %q", batch.Errors[0])
	}
	if strings.Contains(batch.Errors[1], "[Id:") {
		t.Errorf("expected no ID suffix for empty sf__Id, got %q", batch.Errors[1])
	}
}

func TestPreserveIDsSwitchesToUpsert(t *testing.T) {
	mock := client.NewMockClient()

	row := contactRow("Adams")
	row.Set("Id", "003SOURCE0000001")

	opts := DefaultOptions()
	opts.PreserveIDs = true
	exec := newTestExecutor(mock, opts)

	result, err := exec.RestoreRows("Contact", []csvio.Row{row}, ModeInsert)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SuccessCount != 1 {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(mock.Jobs) != 1 {
		t.Fatalf("expected one ingest job, got %d", len(mock.Jobs))
	}
	for _, job := range mock.Jobs {
		if job.Operation != "upsert" || job.ExternalIDFieldName != "Id" {
			t.Errorf("expected upsert on Id, got %s on %q", job.Operation, job.ExternalIDFieldName)
		}
	}
}

func TestUpsertKeyFromMetadata(t *testing.T) {
	mock := client.NewMockClient()
	mock.AddDescribe(contactDescribe())

	row := contactRow("Adams")
	row.Set("Legacy_Key__c", "LK-1")

	exec := newTestExecutor(mock, DefaultOptions())
	result, err := exec.RestoreRows("Contact", []csvio.Row{row}, ModeUpsert)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SuccessCount != 1 {
		t.Fatalf("expected success, got %+v", result)
	}
	for _, job := range mock.Jobs {
		if job.ExternalIDFieldName != "Legacy_Key__c" {
			t.Errorf("expected external ID from metadata, got %q", job.ExternalIDFieldName)
		}
	}
}

func TestUpsertMissingKeyField(t *testing.T) {
	mock := client.NewMockClient()

	opts := DefaultOptions()
	opts.ExternalIDField = "Legacy_Key__c"
	exec := newTestExecutor(mock, opts)

	result, err := exec.RestoreRows("Contact", []csvio.Row{contactRow("Adams")}, ModeUpsert)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FailureCount != 1 || result.SuccessCount != 0 {
		t.Errorf("expected upsert rejected, got %+v", result)
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0], "Legacy_Key__c") {
		t.Errorf("expected missing-key error, got %v", result.Errors)
	}
}

func TestUpdateRequiresID(t *testing.T) {
	mock := client.NewMockClient()
	exec := newTestExecutor(mock, DefaultOptions())

	result, err := exec.RestoreRows("Contact", []csvio.Row{contactRow("Adams")}, ModeUpdate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FailureCount != 1 {
		t.Errorf("expected update rejected without Id, got %+v", result)
	}
}

func TestCancelStopsRestore(t *testing.T) {
	mock := client.NewMockClient()
	exec := newTestExecutor(mock, DefaultOptions())
	exec.Cancel()

	result, err := exec.RestoreRows("Contact", []csvio.Row{contactRow("Adams")}, ModeInsert)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Completed {
		t.Error("cancelled restore should not report completed")
	}
	if got := mock.CallCount("CompositeCreate"); got != 0 {
		t.Errorf("expected no writes after cancel, got %d", got)
	}
}

func TestRestoreLevels(t *testing.T) {
	mock := client.NewMockClient()

	accountRows := []csvio.Row{rowWith("Name", "Acme"), rowWith("Name", "Globex")}
	contactRows := []csvio.Row{contactRow("Adams")}

	exec := newTestExecutor(mock, DefaultOptions())
	results := exec.RestoreLevels([][]SetItem{
		{{ObjectName: "Account", Rows: accountRows, Mode: ModeInsert}},
		{{ObjectName: "Contact", Rows: contactRows, Mode: ModeInsert}},
	})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if len(mock.Records["Account"]) != 2 || len(mock.Records["Contact"]) != 1 {
		t.Errorf("expected all levels restored, got %d accounts, %d contacts",
			len(mock.Records["Account"]), len(mock.Records["Contact"]))
	}
}

func TestRestoreLevelsStopOnError(t *testing.T) {
	mock := client.NewMockClient()
	mock.RequiredFields["Account"] = []string{"Name"}

	opts := DefaultOptions()
	opts.StopOnError = true
	exec := newTestExecutor(mock, opts)

	results := exec.RestoreLevels([][]SetItem{
		{{ObjectName: "Account", Rows: []csvio.Row{rowWith("Name", "")}, Mode: ModeInsert}},
		{{ObjectName: "Contact", Rows: []csvio.Row{contactRow("Adams")}, Mode: ModeInsert}},
	})

	if len(results) != 1 {
		t.Fatalf("expected plan halted after first level, got %d results", len(results))
	}
	if len(mock.Records["Contact"]) != 0 {
		t.Error("second level should not have run")
	}
}

func rowWith(pairs ...string) csvio.Row {
	row := csvio.NewRow()
	for i := 0; i+1 < len(pairs); i += 2 {
		row.Set(pairs[i], pairs[i+1])
	}
	return row
}
