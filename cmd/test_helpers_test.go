package cmd

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/orgctl/orgctl/internal/client"
	"github.com/orgctl/orgctl/internal/csvio"
)

// captureOutput captures stdout produced by fn.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fn()

	w.Close()
	data, _ := io.ReadAll(r)
	return string(data)
}

// writeCSV writes a backup CSV into the folder for one object.
func writeCSV(t *testing.T, folder, objectName string, rows []csvio.Row) string {
	t.Helper()
	path := filepath.Join(folder, objectName+".csv")
	if err := csvio.WriteFile(path, rows); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func rowWith(pairs ...string) csvio.Row {
	row := csvio.NewRow()
	for i := 0; i+1 < len(pairs); i += 2 {
		row.Set(pairs[i], pairs[i+1])
	}
	return row
}

// accountDescribe is a minimal Account: Name is the name field and
// required, plus an external ID for upserts.
func accountDescribe() *client.ObjectDescribe {
	return &client.ObjectDescribe{
		Name: "Account",
		Fields: []client.FieldDescribe{
			{Name: "Id", Type: "id", IDLookup: true},
			{Name: "Name", Type: "string", Createable: true, Updateable: true, NameField: true},
			{Name: "AccountNumber", Type: "string", Createable: true, Updateable: true, Nillable: true},
		},
	}
}

// contactDescribe is a minimal Contact with a required lookup to Account
// so the orderer places Account first.
func contactDescribe() *client.ObjectDescribe {
	return &client.ObjectDescribe{
		Name: "Contact",
		Fields: []client.FieldDescribe{
			{Name: "Id", Type: "id", IDLookup: true},
			{Name: "LastName", Type: "string", Createable: true, Updateable: true},
			{Name: "Email", Type: "email", Createable: true, Updateable: true, Nillable: true},
			{Name: "AccountId", Type: "reference", Createable: true, Updateable: true,
				ReferenceTo: []string{"Account"}, RelationshipName: "Account"},
		},
	}
}

// newTargetOrg builds a mock org that knows Account and Contact.
func newTargetOrg() *client.MockClient {
	mock := client.NewMockClient()
	mock.AddDescribe(accountDescribe())
	mock.AddDescribe(contactDescribe())
	return mock
}

// newBackupFolder creates a temp folder with Account and Contact CSVs.
func newBackupFolder(t *testing.T) string {
	t.Helper()
	folder := t.TempDir()
	writeCSV(t, folder, "Account", []csvio.Row{
		rowWith("Id", "001000000000000001", "Name", "Acme"),
		rowWith("Id", "001000000000000002", "Name", "Globex"),
	})
	writeCSV(t, folder, "Contact", []csvio.Row{
		rowWith("Id", "003000000000000001", "LastName", "Ward", "AccountId", "001000000000000001"),
		rowWith("Id", "003000000000000002", "LastName", "Vance", "AccountId", "001000000000000002"),
		rowWith("Id", "003000000000000003", "LastName", "Okafor", "AccountId", "001000000000000001"),
	})
	return folder
}
