package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/orgctl/orgctl/internal/metadata"
)

func TestManifestRoundTrip(t *testing.T) {
	folder := NewFolder(t.TempDir())
	if folder.HasManifest() {
		t.Fatal("empty folder should have no manifest")
	}

	manifest := &Manifest{
		Metadata: ManifestMetadata{
			Version:    "1.0",
			APIVersion: "59.0",
			BackupType: "relationship-aware",
		},
		ParentObjects: []string{"Account"},
		RelatedObjects: []RelatedObject{
			{ObjectName: "Contact", ParentObject: "Account", ParentField: "AccountId", Depth: 1},
		},
		RestoreOrder: []string{"Account", "Contact"},
		Objects: map[string]*ObjectInfo{
			"Account": {
				RecordCount:            120,
				FileName:               "Account.csv",
				RecommendedUpsertField: "Legacy_Key__c",
				NameField:              "Name",
				ExternalIDFields:       []NamedField{{Name: "Legacy_Key__c"}},
			},
			"Contact": {
				RecordCount: 500,
				FileName:    "Contact.csv",
				RelationshipFields: []RelationshipFieldInfo{
					{FieldName: "AccountId", RelationshipName: "Account", ReferenceTo: []string{"Account"}},
				},
			},
		},
	}
	if err := folder.SaveManifest(manifest); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !folder.HasManifest() {
		t.Fatal("manifest file missing after save")
	}

	loaded, err := folder.LoadManifest()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !loaded.RelationshipAware() {
		t.Error("expected relationship-aware backup type")
	}
	if got := loaded.RecommendedUpsertField("Account"); got != "Legacy_Key__c" {
		t.Errorf("unexpected upsert field: %q", got)
	}
	if got := loaded.RecommendedUpsertField("Nope"); got != "" {
		t.Errorf("expected empty for unknown object, got %q", got)
	}
	if len(loaded.RestoreOrder) != 2 || loaded.RestoreOrder[0] != "Account" {
		t.Errorf("unexpected restore order: %v", loaded.RestoreOrder)
	}
	if loaded.Metadata.GeneratedAt == "" {
		t.Error("expected generatedAt stamped on save")
	}
}

func TestLoadManifestAbsent(t *testing.T) {
	folder := NewFolder(t.TempDir())
	manifest, err := folder.LoadManifest()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if manifest != nil {
		t.Error("expected nil manifest for empty folder")
	}
}

func TestIDMappingRoundTrip(t *testing.T) {
	folder := NewFolder(t.TempDir())
	mapping := &IDMapping{
		Mappings: map[string]*ObjectIDMapping{
			"Account": {
				ObjectName:      "Account",
				IdentifierField: "Name",
				RecordCount:     2,
				IDToIdentifier: map[string]string{
					"001S1": "Acme",
					"001S2": "Globex",
				},
			},
		},
	}
	if err := folder.SaveIDMapping(mapping); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := folder.LoadIDMapping()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := loaded.IdentifierForID("Account", "001S1"); got != "Acme" {
		t.Errorf("expected Acme, got %q", got)
	}
	if got := loaded.IdentifierForID("Account", "001MISSING"); got != "" {
		t.Errorf("expected empty for unmapped ID, got %q", got)
	}
	if got := loaded.IdentifierField("Account"); got != "Name" {
		t.Errorf("unexpected identifier field: %q", got)
	}
	if got := loaded.IdentifierField("Nope"); got != "" {
		t.Errorf("expected empty for unknown object, got %q", got)
	}
}

func TestRelationshipMetadataRoundTrip(t *testing.T) {
	folder := NewFolder(t.TempDir())
	rel := &RelationshipMetadata{
		Objects: map[string]*RelationshipObjectInfo{
			"Account": {
				ExternalKeyStrategy: NewKeyStrategyInfo(metadata.KeyStrategy{
					Object:         "Account",
					KeyField:       "Legacy_Key__c",
					Type:           metadata.KeyExternalID,
					SupportsUpsert: true,
				}),
			},
		},
	}
	if err := folder.SaveRelationshipMetadata(rel); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := folder.LoadRelationshipMetadata()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	strategy, ok := loaded.StrategyFor("Account")
	if !ok {
		t.Fatal("expected strategy for Account")
	}
	if strategy.KeyField != "Legacy_Key__c" || strategy.Type != metadata.KeyExternalID || !strategy.SupportsUpsert {
		t.Errorf("strategy not preserved: %+v", strategy)
	}
	if _, ok := loaded.StrategyFor("Nope"); ok {
		t.Error("expected no strategy for unknown object")
	}
}

func TestDataFiles(t *testing.T) {
	dir := t.TempDir()
	folder := NewFolder(dir)

	for _, name := range []string{"Account.csv", "Contact.csv", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("Id\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	manifest := &Manifest{
		Objects: map[string]*ObjectInfo{
			"Account": {FileName: "Account.csv"},
		},
	}
	if err := folder.SaveManifest(manifest); err != nil {
		t.Fatal(err)
	}

	files, err := folder.DataFiles()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 data files, got %v", files)
	}
	if files["Account"] != filepath.Join(dir, "Account.csv") {
		t.Errorf("unexpected Account path: %s", files["Account"])
	}
	if files["Contact"] != filepath.Join(dir, "Contact.csv") {
		t.Errorf("unexpected Contact path: %s", files["Contact"])
	}
}

func TestLoadManifestMalformed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ManifestFileName), []byte("{bad"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFolder(dir).LoadManifest(); err == nil {
		t.Fatal("expected parse error")
	}
}
