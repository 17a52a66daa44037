// Package manifest reads and writes the JSON files stored alongside a
// backup: the backup manifest, the relationship metadata, and the
// source-ID-to-identifier mapping used when no richer enrichment exists.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/orgctl/orgctl/internal/metadata"
)

const (
	// ManifestFileName is the backup manifest inside a backup folder.
	ManifestFileName = "_backup_manifest.json"
	// IDMappingFileName is the source ID -> identifier mapping file.
	IDMappingFileName = "_id_mapping.json"
	// RelationshipFileName is the per-object key strategy file.
	RelationshipFileName = "_relationship_metadata.json"
)

// ManifestMetadata identifies the backup run that produced a folder.
type ManifestMetadata struct {
	Version           string `json:"version,omitempty"`
	GeneratedAt       string `json:"generatedAt,omitempty"`
	SourceInstanceURL string `json:"sourceInstanceUrl,omitempty"`
	APIVersion        string `json:"apiVersion,omitempty"`
	BackupType        string `json:"backupType,omitempty"`
}

// RelatedObject describes one child object captured alongside a parent.
type RelatedObject struct {
	ObjectName   string `json:"objectName"`
	ParentObject string `json:"parentObject,omitempty"`
	ParentField  string `json:"parentField,omitempty"`
	Depth        int    `json:"depth,omitempty"`
	Priority     bool   `json:"priority,omitempty"`
}

// RelationshipFieldInfo is the captured shape of one lookup field.
type RelationshipFieldInfo struct {
	FieldName        string   `json:"fieldName"`
	RelationshipName string   `json:"relationshipName,omitempty"`
	ReferenceTo      []string `json:"referenceTo,omitempty"`
	Polymorphic      bool     `json:"polymorphic,omitempty"`
}

// NamedField wraps a field name in the manifest's object form.
type NamedField struct {
	Name string `json:"name"`
}

// ObjectInfo is the manifest's per-object metadata snapshot.
type ObjectInfo struct {
	RecordCount            int64                   `json:"recordCount,omitempty"`
	FileName               string                  `json:"fileName,omitempty"`
	RecommendedUpsertField string                  `json:"recommendedUpsertField,omitempty"`
	NameField              string                  `json:"nameField,omitempty"`
	ExternalIDFields       []NamedField            `json:"externalIdFields,omitempty"`
	UniqueFields           []string                `json:"uniqueFields,omitempty"`
	RelationshipFields     []RelationshipFieldInfo `json:"relationshipFields,omitempty"`
}

// Manifest is the backup manifest: what was captured, in what order it
// should be restored, and per-object metadata snapshots.
type Manifest struct {
	Metadata       ManifestMetadata       `json:"metadata"`
	ParentObjects  []string               `json:"parentObjects,omitempty"`
	RelatedObjects []RelatedObject        `json:"relatedObjects,omitempty"`
	RestoreOrder   []string               `json:"restoreOrder,omitempty"`
	Objects        map[string]*ObjectInfo `json:"objects,omitempty"`
}

// RelationshipAware reports whether the backup captured enrichment
// columns and relationship metadata.
func (m *Manifest) RelationshipAware() bool {
	return m.Metadata.BackupType == "relationship-aware"
}

// RecommendedUpsertField returns the manifest's upsert key for an object,
// or "" when none was recorded.
func (m *Manifest) RecommendedUpsertField(objectName string) string {
	if info, ok := m.Objects[objectName]; ok {
		return info.RecommendedUpsertField
	}
	return ""
}

// ObjectIDMapping maps source platform IDs to portable identifiers for
// one object type.
type ObjectIDMapping struct {
	ObjectName      string            `json:"objectName,omitempty"`
	IdentifierField string            `json:"identifierField,omitempty"`
	RecordCount     int               `json:"recordCount,omitempty"`
	IDToIdentifier  map[string]string `json:"idToIdentifier,omitempty"`
}

// IDMapping is the whole identifier-mapping file.
type IDMapping struct {
	GeneratedAt string                      `json:"generatedAt,omitempty"`
	Mappings    map[string]*ObjectIDMapping `json:"mappings,omitempty"`
}

// IdentifierForID resolves a source ID to its portable identifier, or ""
// when unmapped.
func (m *IDMapping) IdentifierForID(objectName, sourceID string) string {
	if obj, ok := m.Mappings[objectName]; ok {
		return obj.IDToIdentifier[sourceID]
	}
	return ""
}

// IdentifierField returns the mapping key field for an object.
func (m *IDMapping) IdentifierField(objectName string) string {
	if obj, ok := m.Mappings[objectName]; ok {
		return obj.IdentifierField
	}
	return ""
}

// KeyStrategyInfo is the serialized form of a chosen matching key.
type KeyStrategyInfo struct {
	PrimaryKeyField string `json:"primaryKeyField,omitempty"`
	KeyType         string `json:"keyType,omitempty"`
	SupportsUpsert  bool   `json:"supportsUpsert,omitempty"`
}

// Strategy converts the serialized form back to the engine type.
func (k KeyStrategyInfo) Strategy(objectName string) metadata.KeyStrategy {
	return metadata.KeyStrategy{
		Object:         objectName,
		KeyField:       k.PrimaryKeyField,
		Type:           metadata.ParseKeyType(k.KeyType),
		SupportsUpsert: k.SupportsUpsert,
	}
}

// NewKeyStrategyInfo serializes an engine key strategy.
func NewKeyStrategyInfo(s metadata.KeyStrategy) KeyStrategyInfo {
	return KeyStrategyInfo{
		PrimaryKeyField: s.KeyField,
		KeyType:         s.Type.String(),
		SupportsUpsert:  s.SupportsUpsert,
	}
}

// RelationshipObjectInfo is one object's entry in the relationship
// metadata file.
type RelationshipObjectInfo struct {
	ExternalKeyStrategy KeyStrategyInfo         `json:"externalKeyStrategy"`
	RelationshipFields  []RelationshipFieldInfo `json:"relationshipFields,omitempty"`
}

// RelationshipMetadata is the relationship metadata file: per-object key
// strategies and lookup shapes, written at capture time and consumed at
// restore time.
type RelationshipMetadata struct {
	GeneratedAt string                             `json:"generatedAt,omitempty"`
	Objects     map[string]*RelationshipObjectInfo `json:"objects,omitempty"`
}

// StrategyFor returns the recorded key strategy for an object, or false
// when the file has none.
func (r *RelationshipMetadata) StrategyFor(objectName string) (metadata.KeyStrategy, bool) {
	info, ok := r.Objects[objectName]
	if !ok {
		return metadata.KeyStrategy{}, false
	}
	return info.ExternalKeyStrategy.Strategy(objectName), true
}

// Folder wraps one backup folder's manifest files.
type Folder struct {
	Path string
}

// NewFolder creates a view over a backup folder.
func NewFolder(path string) *Folder {
	return &Folder{Path: path}
}

// HasManifest reports whether the folder carries a backup manifest.
func (f *Folder) HasManifest() bool {
	return fileExists(filepath.Join(f.Path, ManifestFileName))
}

// HasIDMapping reports whether the folder carries an ID mapping file.
func (f *Folder) HasIDMapping() bool {
	return fileExists(filepath.Join(f.Path, IDMappingFileName))
}

// HasRelationshipMetadata reports whether the folder carries relationship
// metadata.
func (f *Folder) HasRelationshipMetadata() bool {
	return fileExists(filepath.Join(f.Path, RelationshipFileName))
}

// LoadManifest reads the manifest, returning nil when the folder has
// none.
func (f *Folder) LoadManifest() (*Manifest, error) {
	var manifest Manifest
	ok, err := loadJSON(filepath.Join(f.Path, ManifestFileName), &manifest)
	if err != nil || !ok {
		return nil, err
	}
	return &manifest, nil
}

// LoadIDMapping reads the ID mapping file, returning nil when absent.
func (f *Folder) LoadIDMapping() (*IDMapping, error) {
	var mapping IDMapping
	ok, err := loadJSON(filepath.Join(f.Path, IDMappingFileName), &mapping)
	if err != nil || !ok {
		return nil, err
	}
	return &mapping, nil
}

// LoadRelationshipMetadata reads the relationship metadata file,
// returning nil when absent.
func (f *Folder) LoadRelationshipMetadata() (*RelationshipMetadata, error) {
	var rel RelationshipMetadata
	ok, err := loadJSON(filepath.Join(f.Path, RelationshipFileName), &rel)
	if err != nil || !ok {
		return nil, err
	}
	return &rel, nil
}

// SaveManifest writes the manifest into the folder.
func (f *Folder) SaveManifest(manifest *Manifest) error {
	if manifest.Metadata.GeneratedAt == "" {
		manifest.Metadata.GeneratedAt = time.Now().Format(time.RFC3339)
	}
	return saveJSON(filepath.Join(f.Path, ManifestFileName), manifest)
}

// SaveIDMapping writes the ID mapping file into the folder.
func (f *Folder) SaveIDMapping(mapping *IDMapping) error {
	if mapping.GeneratedAt == "" {
		mapping.GeneratedAt = time.Now().Format(time.RFC3339)
	}
	return saveJSON(filepath.Join(f.Path, IDMappingFileName), mapping)
}

// SaveRelationshipMetadata writes the relationship metadata file.
func (f *Folder) SaveRelationshipMetadata(rel *RelationshipMetadata) error {
	if rel.GeneratedAt == "" {
		rel.GeneratedAt = time.Now().Format(time.RFC3339)
	}
	return saveJSON(filepath.Join(f.Path, RelationshipFileName), rel)
}

// DataFiles lists the CSV files in the folder keyed by object name, using
// manifest file names when recorded and the <Object>.csv convention
// otherwise.
func (f *Folder) DataFiles() (map[string]string, error) {
	files := make(map[string]string)

	if f.HasManifest() {
		manifest, err := f.LoadManifest()
		if err != nil {
			return nil, err
		}
		for objectName, info := range manifest.Objects {
			if info.FileName != "" {
				files[objectName] = filepath.Join(f.Path, info.FileName)
			}
		}
	}

	entries, err := os.ReadDir(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup folder %s: %w", f.Path, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".csv" {
			continue
		}
		objectName := name[:len(name)-len(".csv")]
		if _, ok := files[objectName]; !ok {
			files[objectName] = filepath.Join(f.Path, name)
		}
	}
	return files, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func loadJSON(path string, out interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return true, nil
}

func saveJSON(path string, in interface{}) error {
	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
