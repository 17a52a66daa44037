package relationship

import (
	"fmt"
	"testing"

	"github.com/orgctl/orgctl/internal/client"
	"github.com/orgctl/orgctl/internal/csvio"
	"github.com/orgctl/orgctl/internal/metadata"
)

func contactDescribe() *client.ObjectDescribe {
	return &client.ObjectDescribe{
		Name: "Contact",
		Fields: []client.FieldDescribe{
			{Name: "Id", Type: "id"},
			{Name: "LastName", Type: "string", NameField: true, Createable: true},
			{Name: "AccountId", Type: "reference", Nillable: true, Createable: true, ReferenceTo: []string{"Account"}, RelationshipName: "Account"},
			{Name: "OwnerId", Type: "reference", Nillable: false, Createable: true, ReferenceTo: []string{"User"}, RelationshipName: "Owner"},
		},
	}
}

func accountDescribe() *client.ObjectDescribe {
	return &client.ObjectDescribe{
		Name: "Account",
		Fields: []client.FieldDescribe{
			{Name: "Id", Type: "id"},
			{Name: "Name", Type: "string", NameField: true, Createable: true},
		},
	}
}

func userDescribe() *client.ObjectDescribe {
	return &client.ObjectDescribe{
		Name: "User",
		Fields: []client.FieldDescribe{
			{Name: "Id", Type: "id"},
			{Name: "Name", Type: "string", NameField: true},
			{Name: "Username", Type: "string", Unique: true},
		},
	}
}

func rowWith(pairs ...string) csvio.Row {
	row := csvio.NewRow()
	for i := 0; i+1 < len(pairs); i += 2 {
		row.Set(pairs[i], pairs[i+1])
	}
	return row
}

func TestEnrichAddsKeyColumn(t *testing.T) {
	mock := client.NewMockClient()
	mock.AddDescribe(contactDescribe())
	mock.AddDescribe(accountDescribe())
	mock.AddDescribe(userDescribe())
	accountID := mock.AddRecord("Account", map[string]string{"Name": "Acme"})

	rows := []csvio.Row{rowWith("LastName", "Jones", "AccountId", accountID)}
	enricher := NewEnricher(mock, metadata.NewCache(mock), nil)
	if err := enricher.Enrich("Contact", rows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := rows[0].Value("_ref_AccountId_Name"); got != "Acme" {
		t.Errorf("expected enrichment column with Acme, got %q", got)
	}
	// Original lookup value is untouched at capture time.
	if got := rows[0].Value("AccountId"); got != accountID {
		t.Errorf("expected AccountId unchanged, got %q", got)
	}
}

func TestEnrichCachesAcrossCalls(t *testing.T) {
	mock := client.NewMockClient()
	mock.AddDescribe(contactDescribe())
	mock.AddDescribe(accountDescribe())
	mock.AddDescribe(userDescribe())
	accountID := mock.AddRecord("Account", map[string]string{"Name": "Acme"})

	enricher := NewEnricher(mock, metadata.NewCache(mock), nil)
	for i := 0; i < 3; i++ {
		rows := []csvio.Row{rowWith("AccountId", accountID)}
		if err := enricher.Enrich("Contact", rows); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := mock.CallCount("Query"); got != 1 {
		t.Errorf("expected 1 lookup query, got %d", got)
	}
}

func TestResolveRoundTrip(t *testing.T) {
	mock := client.NewMockClient()
	mock.AddDescribe(contactDescribe())
	targetID := mock.AddRecord("Account", map[string]string{"Name": "Acme"})

	rows := []csvio.Row{
		rowWith("LastName", "Jones", "AccountId", "001SOURCE000000001", "_ref_AccountId_Name", "Acme"),
		rowWith("LastName", "Smith", "AccountId", "001SOURCE000000002", "_ref_AccountId_Name", "Ghost Corp"),
	}
	resolver := NewResolver(mock, metadata.NewCache(mock), nil)
	if err := resolver.Resolve("Contact", rows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := rows[0].Value("AccountId"); got != targetID {
		t.Errorf("expected AccountId rewritten to %s, got %q", targetID, got)
	}
	// No target match: the stale source ID must be dropped, not kept.
	if rows[1].Has("AccountId") {
		t.Errorf("expected AccountId dropped on miss, got %q", rows[1].Value("AccountId"))
	}
	for i, row := range rows {
		if row.Has("_ref_AccountId_Name") {
			t.Errorf("row %d: enrichment column should be stripped", i)
		}
	}
}

func TestResolveAuditFieldsToUserByConvention(t *testing.T) {
	mock := client.NewMockClient()
	// Describe with no relationship metadata at all for CreatedById.
	mock.AddDescribe(&client.ObjectDescribe{
		Name: "Note__c",
		Fields: []client.FieldDescribe{
			{Name: "Name", Type: "string", NameField: true},
		},
	})
	userID := mock.AddRecord("User", map[string]string{"Username": "admin@target.example"})

	rows := []csvio.Row{rowWith("Name", "n1", "_ref_CreatedById_Username", "admin@target.example")}
	resolver := NewResolver(mock, metadata.NewCache(mock), nil)
	if err := resolver.Resolve("Note__c", rows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rows[0].Value("CreatedById"); got != userID {
		t.Errorf("expected CreatedById resolved to %s, got %q", userID, got)
	}
}

func TestResolvePolymorphicFirstMatchWins(t *testing.T) {
	mock := client.NewMockClient()
	mock.AddDescribe(&client.ObjectDescribe{
		Name: "Task",
		Fields: []client.FieldDescribe{
			{Name: "Subject", Type: "string"},
			{Name: "WhoId", Type: "reference", Nillable: true, ReferenceTo: []string{"Contact", "Lead"}, RelationshipName: "Who"},
		},
	})
	// Same name exists as both a Contact and a Lead; Contact is declared
	// first so it must win.
	contactID := mock.AddRecord("Contact", map[string]string{"Name": "Pat Jones"})
	mock.AddRecord("Lead", map[string]string{"Name": "Pat Jones"})
	leadID := mock.AddRecord("Lead", map[string]string{"Name": "Lee Only"})

	rows := []csvio.Row{
		rowWith("Subject", "call", "_ref_WhoId_Name", "Pat Jones"),
		rowWith("Subject", "mail", "_ref_WhoId_Name", "Lee Only"),
	}
	resolver := NewResolver(mock, metadata.NewCache(mock), nil)
	if err := resolver.Resolve("Task", rows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rows[0].Value("WhoId"); got != contactID {
		t.Errorf("expected Contact match to win, got %q", got)
	}
	if got := rows[1].Value("WhoId"); got != leadID {
		t.Errorf("expected Lead fallback match, got %q", got)
	}
}

func TestResolveFieldNameWithUnderscores(t *testing.T) {
	mock := client.NewMockClient()
	mock.AddDescribe(&client.ObjectDescribe{
		Name: "Invoice__c",
		Fields: []client.FieldDescribe{
			{Name: "Name", Type: "string", NameField: true},
			{Name: "Parent_Account__c", Type: "reference", Nillable: true, ReferenceTo: []string{"Account"}},
		},
	})
	targetID := mock.AddRecord("Account", map[string]string{"Name": "Acme"})

	rows := []csvio.Row{rowWith("Name", "INV-1", "_ref_Parent_Account__c_Name", "Acme")}
	resolver := NewResolver(mock, metadata.NewCache(mock), nil)
	if err := resolver.Resolve("Invoice__c", rows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rows[0].Value("Parent_Account__c"); got != targetID {
		t.Errorf("expected Parent_Account__c resolved to %s, got %q", targetID, got)
	}
}

func TestResolveBatchesLookups(t *testing.T) {
	mock := client.NewMockClient()
	mock.AddDescribe(contactDescribe())

	rows := make([]csvio.Row, 0, 150)
	for i := 0; i < 150; i++ {
		name := fmt.Sprintf("Account %03d", i)
		mock.AddRecord("Account", map[string]string{"Name": name})
		rows = append(rows, rowWith("LastName", "x", "_ref_AccountId_Name", name))
	}

	resolver := NewResolver(mock, metadata.NewCache(mock), nil)
	if err := resolver.Resolve("Contact", rows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 150 distinct values at 100 per query means exactly 2 queries.
	if got := mock.CallCount("Query"); got != 2 {
		t.Errorf("expected 2 batched queries, got %d", got)
	}
	for i, row := range rows {
		if !row.Has("AccountId") {
			t.Fatalf("row %d: AccountId not resolved", i)
		}
	}
}

func TestResolveCachesValues(t *testing.T) {
	mock := client.NewMockClient()
	mock.AddDescribe(contactDescribe())
	mock.AddRecord("Account", map[string]string{"Name": "Acme"})

	resolver := NewResolver(mock, metadata.NewCache(mock), nil)
	for i := 0; i < 3; i++ {
		rows := []csvio.Row{rowWith("_ref_AccountId_Name", "Acme")}
		if err := resolver.Resolve("Contact", rows); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := mock.CallCount("Query"); got != 1 {
		t.Errorf("expected 1 query across repeated resolves, got %d", got)
	}
}
