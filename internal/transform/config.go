// Package transform applies cross-org value remapping to restore rows:
// record types, owner/user references, picklist values, field renames, and
// custom per-field value rules.
package transform

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ConfigFileName is the transformation config file inside a backup folder.
const ConfigFileName = "_transformation_config.json"

// Behavior selects what happens when a source value has no mapping.
type Behavior string

const (
	// KeepOriginal keeps the source value; may fail at write time if the
	// value does not exist in the target org.
	KeepOriginal Behavior = "KEEP_ORIGINAL"
	// UseDefault substitutes the configured default value.
	UseDefault Behavior = "USE_DEFAULT"
	// SetNull clears the field.
	SetNull Behavior = "SET_NULL"
	// UseRunningUser substitutes the identity the restore runs as. Only
	// meaningful for user fields.
	UseRunningUser Behavior = "USE_RUNNING_USER"
	// SkipRecord excludes the whole row from the batch.
	SkipRecord Behavior = "SKIP_RECORD"
	// Fail aborts the restore of the current object type.
	Fail Behavior = "FAIL"
)

// TransformType identifies a custom value rule.
type TransformType string

const (
	RegexReplace TransformType = "REGEX_REPLACE"
	Prefix       TransformType = "PREFIX"
	Suffix       TransformType = "SUFFIX"
	Trim         TransformType = "TRIM"
	Uppercase    TransformType = "UPPERCASE"
	Lowercase    TransformType = "LOWERCASE"
	Constant     TransformType = "CONSTANT"
	Lookup       TransformType = "LOOKUP"
)

// ValueTransform is one custom per-field value rule. Condition, when set,
// is a regex the original value must match for the rule to apply.
type ValueTransform struct {
	Type        TransformType     `json:"type"`
	Pattern     string            `json:"pattern,omitempty"`
	Replacement string            `json:"replacement,omitempty"`
	Condition   string            `json:"condition,omitempty"`
	LookupTable map[string]string `json:"lookupTable,omitempty"`
}

// ObjectConfig holds the transformation rules for one object type.
type ObjectConfig struct {
	ObjectName string `json:"objectName"`

	RecordTypeMappings         map[string]string `json:"recordTypeMappings,omitempty"`
	DefaultRecordTypeID        string            `json:"defaultRecordTypeId,omitempty"`
	UnmappedRecordTypeBehavior Behavior          `json:"unmappedRecordTypeBehavior,omitempty"`

	PicklistMappings         map[string]map[string]string `json:"picklistMappings,omitempty"`
	DefaultPicklistValues    map[string]string            `json:"defaultPicklistValues,omitempty"`
	UnmappedPicklistBehavior Behavior                     `json:"unmappedPicklistBehavior,omitempty"`

	FieldNameMappings map[string]string `json:"fieldNameMappings,omitempty"`
	ExcludedFields    []string          `json:"excludedFields,omitempty"`

	ValueTransforms map[string]ValueTransform `json:"valueTransformations,omitempty"`

	UserMappings         map[string]string `json:"userMappings,omitempty"`
	UnmappedUserBehavior Behavior          `json:"unmappedUserBehavior,omitempty"`
}

// NewObjectConfig creates an empty per-object config with the standard
// fallback behaviors.
func NewObjectConfig(objectName string) *ObjectConfig {
	return &ObjectConfig{
		ObjectName:                 objectName,
		RecordTypeMappings:         make(map[string]string),
		PicklistMappings:           make(map[string]map[string]string),
		DefaultPicklistValues:      make(map[string]string),
		FieldNameMappings:          make(map[string]string),
		ValueTransforms:            make(map[string]ValueTransform),
		UserMappings:               make(map[string]string),
		UnmappedRecordTypeBehavior: UseDefault,
		UnmappedPicklistBehavior:   KeepOriginal,
		UnmappedUserBehavior:       UseRunningUser,
	}
}

// AddPicklistMapping records one source -> target value pair for a field.
func (o *ObjectConfig) AddPicklistMapping(fieldName, sourceValue, targetValue string) {
	if o.PicklistMappings == nil {
		o.PicklistMappings = make(map[string]map[string]string)
	}
	if o.PicklistMappings[fieldName] == nil {
		o.PicklistMappings[fieldName] = make(map[string]string)
	}
	o.PicklistMappings[fieldName][sourceValue] = targetValue
}

// IsFieldExcluded reports whether a field is excluded from restore.
func (o *ObjectConfig) IsFieldExcluded(fieldName string) bool {
	for _, f := range o.ExcludedFields {
		if f == fieldName {
			return true
		}
	}
	return false
}

// MappedFieldName applies the field rename table, returning the input
// unchanged when no rename is configured.
func (o *ObjectConfig) MappedFieldName(sourceField string) string {
	if target, ok := o.FieldNameMappings[sourceField]; ok {
		return target
	}
	return sourceField
}

// Config is the full transformation configuration: global user and
// record-type maps plus per-object rules. It is user-editable JSON,
// loadable and saveable independent of a specific backup run.
type Config struct {
	Name             string `json:"name,omitempty"`
	Description      string `json:"description,omitempty"`
	SourceOrg        string `json:"sourceOrg,omitempty"`
	TargetOrg        string `json:"targetOrg,omitempty"`
	CreatedDate      string `json:"createdDate,omitempty"`
	LastModifiedDate string `json:"lastModifiedDate,omitempty"`

	Objects map[string]*ObjectConfig `json:"objectConfigs,omitempty"`

	UserMappings       map[string]string `json:"userMappings,omitempty"`
	RecordTypeMappings map[string]string `json:"recordTypeMappings,omitempty"`
}

// NewConfig creates an empty named config.
func NewConfig(name string) *Config {
	now := time.Now().Format(time.RFC3339)
	return &Config{
		Name:               name,
		CreatedDate:        now,
		LastModifiedDate:   now,
		Objects:            make(map[string]*ObjectConfig),
		UserMappings:       make(map[string]string),
		RecordTypeMappings: make(map[string]string),
	}
}

// ObjectConfig returns the per-object rules, or nil when none exist.
func (c *Config) ObjectConfig(objectName string) *ObjectConfig {
	if c == nil {
		return nil
	}
	return c.Objects[objectName]
}

// GetOrCreateObjectConfig returns the per-object rules, creating them on
// first use.
func (c *Config) GetOrCreateObjectConfig(objectName string) *ObjectConfig {
	if c.Objects == nil {
		c.Objects = make(map[string]*ObjectConfig)
	}
	if oc, ok := c.Objects[objectName]; ok {
		return oc
	}
	oc := NewObjectConfig(objectName)
	c.Objects[objectName] = oc
	return oc
}

// Save writes the config as indented JSON.
func (c *Config) Save(path string) error {
	c.LastModifiedDate = time.Now().Format(time.RFC3339)
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode transformation config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Load reads a config from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &config, nil
}

// LoadFromBackupFolder loads the config stored alongside a backup, or
// returns nil when the folder has none.
func LoadFromBackupFolder(backupFolder string) (*Config, error) {
	path := filepath.Join(backupFolder, ConfigFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return Load(path)
}
