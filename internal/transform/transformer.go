package transform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/orgctl/orgctl/internal/csvio"
)

// Stats counts what a transformation run did, for the summary output.
type Stats struct {
	TransformedRecords int
	SkippedRecords     int
	FieldTransforms    int
	UserMappings       int
	RecordTypeMappings int
	PicklistMappings   int
}

func (s Stats) String() string {
	return fmt.Sprintf("Transformed: %d, Skipped: %d, Field transforms: %d, User mappings: %d, RecordType mappings: %d, Picklist mappings: %d",
		s.TransformedRecords, s.SkippedRecords, s.FieldTransforms,
		s.UserMappings, s.RecordTypeMappings, s.PicklistMappings)
}

// Transformer applies a Config to restore rows. Not safe for concurrent
// use; create one per object type when restoring levels in parallel.
type Transformer struct {
	config *Config
	log    func(string)
	stats  Stats
}

// NewTransformer creates a transformer. A nil config means no rules and
// rows pass through unchanged.
func NewTransformer(config *Config, log func(string)) *Transformer {
	if config == nil {
		config = NewConfig("")
	}
	if log == nil {
		log = func(string) {}
	}
	return &Transformer{config: config, log: log}
}

// Stats returns counters accumulated since construction.
func (t *Transformer) Stats() Stats {
	return t.stats
}

// fieldAction tells the caller what to do with one transformed value.
type fieldAction int

const (
	actionKeep fieldAction = iota
	actionNull
	actionSkipRecord
	actionFailRestore
)

// TransformRows transforms all rows for one object type. Skipped rows are
// excluded from the returned slice and their reasons returned alongside. A
// FAIL policy aborts with an error.
func (t *Transformer) TransformRows(objectName string, rows []csvio.Row, runningUserID string) ([]csvio.Row, []string, error) {
	objectConfig := t.config.ObjectConfig(objectName)

	transformed := make([]csvio.Row, 0, len(rows))
	var skipReasons []string
	for i, row := range rows {
		out, reason, err := t.transformRow(objectName, row, objectConfig, runningUserID)
		if err != nil {
			return nil, nil, fmt.Errorf("transformation failed for %s row %d: %w", objectName, i+1, err)
		}
		if reason != "" {
			t.stats.SkippedRecords++
			skipReasons = append(skipReasons, reason)
			t.log("Skipped record: " + reason)
			continue
		}
		transformed = append(transformed, out)
		t.stats.TransformedRecords++
	}
	return transformed, skipReasons, nil
}

// transformRow transforms one row. A non-empty reason means the row is
// skipped; a non-nil error means the whole object restore must abort.
func (t *Transformer) transformRow(objectName string, row csvio.Row, objectConfig *ObjectConfig, runningUserID string) (csvio.Row, string, error) {
	out := csvio.NewRow()

	for _, field := range row.Columns() {
		// Enrichment columns are carried verbatim; the resolver consumes
		// them later in the pipeline.
		if strings.HasPrefix(field, "_ref_") || strings.HasPrefix(field, "_rel_") {
			out.Set(field, row.Value(field))
			continue
		}
		if objectConfig != nil && objectConfig.IsFieldExcluded(field) {
			continue
		}

		targetField := field
		if objectConfig != nil {
			targetField = objectConfig.MappedFieldName(field)
			if targetField != field {
				t.stats.FieldTransforms++
			}
		}

		value := row.Value(field)
		if csvio.IsAbsent(value) {
			out.Set(targetField, "")
			continue
		}

		newValue, action, reason := t.transformValue(objectName, field, value, objectConfig, runningUserID)
		switch action {
		case actionSkipRecord:
			return csvio.Row{}, reason, nil
		case actionFailRestore:
			return csvio.Row{}, "", fmt.Errorf("%s", reason)
		case actionNull:
			out.Set(targetField, "")
		default:
			out.Set(targetField, newValue)
		}
	}

	return out, "", nil
}

func (t *Transformer) transformValue(objectName, fieldName, value string, objectConfig *ObjectConfig, runningUserID string) (string, fieldAction, string) {
	if fieldName == "RecordTypeId" {
		return t.mapRecordType(value, objectConfig)
	}
	if isUserField(fieldName) {
		return t.mapUser(fieldName, value, objectConfig, runningUserID)
	}
	if mapped, action, reason, ok := t.mapPicklist(fieldName, value, objectConfig); ok {
		return mapped, action, reason
	}
	if objectConfig != nil {
		if rule, ok := objectConfig.ValueTransforms[fieldName]; ok {
			return t.applyValueTransform(value, rule), actionKeep, ""
		}
	}
	return value, actionKeep, ""
}

// isUserField reports whether a field holds a user reference: the standard
// owner/audit fields plus custom fields whose name mentions User.
func isUserField(fieldName string) bool {
	switch fieldName {
	case "OwnerId", "CreatedById", "LastModifiedById":
		return true
	}
	return strings.HasSuffix(fieldName, "__c") && strings.Contains(fieldName, "User")
}

func (t *Transformer) mapRecordType(value string, objectConfig *ObjectConfig) (string, fieldAction, string) {
	if objectConfig != nil {
		if target, ok := objectConfig.RecordTypeMappings[value]; ok {
			t.stats.RecordTypeMappings++
			return target, actionKeep, ""
		}
	}
	if target, ok := t.config.RecordTypeMappings[value]; ok {
		t.stats.RecordTypeMappings++
		return target, actionKeep, ""
	}

	behavior := KeepOriginal
	if objectConfig != nil && objectConfig.UnmappedRecordTypeBehavior != "" {
		behavior = objectConfig.UnmappedRecordTypeBehavior
	}
	switch behavior {
	case SetNull:
		return "", actionNull, ""
	case SkipRecord:
		return "", actionSkipRecord, "RecordTypeId " + value + " not mapped"
	case Fail:
		return "", actionFailRestore, "RecordTypeId " + value + " not mapped"
	case UseDefault:
		if objectConfig != nil && objectConfig.DefaultRecordTypeID != "" {
			return objectConfig.DefaultRecordTypeID, actionKeep, ""
		}
		return value, actionKeep, ""
	default:
		return value, actionKeep, ""
	}
}

func (t *Transformer) mapUser(fieldName, value string, objectConfig *ObjectConfig, runningUserID string) (string, fieldAction, string) {
	if objectConfig != nil {
		if target, ok := objectConfig.UserMappings[value]; ok {
			t.stats.UserMappings++
			return target, actionKeep, ""
		}
	}
	if target, ok := t.config.UserMappings[value]; ok {
		t.stats.UserMappings++
		return target, actionKeep, ""
	}

	behavior := UseRunningUser
	if objectConfig != nil && objectConfig.UnmappedUserBehavior != "" {
		behavior = objectConfig.UnmappedUserBehavior
	}
	switch behavior {
	case UseRunningUser:
		if runningUserID != "" {
			t.stats.UserMappings++
			return runningUserID, actionKeep, ""
		}
		return value, actionKeep, ""
	case SetNull:
		// OwnerId is required on most types; clearing it would only
		// trade one write error for another.
		if fieldName == "OwnerId" {
			return value, actionKeep, ""
		}
		return "", actionNull, ""
	case SkipRecord:
		return "", actionSkipRecord, "User " + value + " not mapped"
	case Fail:
		return "", actionFailRestore, "User " + value + " not mapped"
	default:
		return value, actionKeep, ""
	}
}

// mapPicklist returns ok=false when the field has no picklist map
// configured at all.
func (t *Transformer) mapPicklist(fieldName, value string, objectConfig *ObjectConfig) (string, fieldAction, string, bool) {
	if objectConfig == nil {
		return "", actionKeep, "", false
	}
	fieldMap, ok := objectConfig.PicklistMappings[fieldName]
	if !ok {
		return "", actionKeep, "", false
	}
	if target, found := fieldMap[value]; found {
		t.stats.PicklistMappings++
		return target, actionKeep, "", true
	}

	behavior := objectConfig.UnmappedPicklistBehavior
	if behavior == "" {
		behavior = KeepOriginal
	}
	switch behavior {
	case SetNull:
		return "", actionNull, "", true
	case UseDefault:
		if def, found := objectConfig.DefaultPicklistValues[fieldName]; found {
			return def, actionKeep, "", true
		}
		return "", actionNull, "", true
	case SkipRecord:
		return "", actionSkipRecord, "Picklist value '" + value + "' for field " + fieldName + " not mapped", true
	case Fail:
		return "", actionFailRestore, "Picklist value '" + value + "' for field " + fieldName + " not mapped", true
	default:
		return value, actionKeep, "", true
	}
}

func (t *Transformer) applyValueTransform(value string, rule ValueTransform) string {
	if rule.Condition != "" {
		condition, err := regexp.Compile(rule.Condition)
		if err != nil {
			t.log("Warning: invalid transform condition " + rule.Condition + ", rule skipped")
			return value
		}
		if !condition.MatchString(value) {
			return value
		}
	}

	t.stats.FieldTransforms++
	switch rule.Type {
	case RegexReplace:
		if rule.Pattern == "" {
			return value
		}
		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			t.log("Warning: invalid transform pattern " + rule.Pattern + ", rule skipped")
			return value
		}
		return pattern.ReplaceAllString(value, rule.Replacement)
	case Prefix:
		return rule.Replacement + value
	case Suffix:
		return value + rule.Replacement
	case Trim:
		return strings.TrimSpace(value)
	case Uppercase:
		return strings.ToUpper(value)
	case Lowercase:
		return strings.ToLower(value)
	case Constant:
		return rule.Replacement
	case Lookup:
		if target, ok := rule.LookupTable[value]; ok {
			return target
		}
		return value
	default:
		return value
	}
}
