// Package validate runs pre-flight schema checks: captured field names,
// types, and values are compared against target-org metadata before any
// record is written.
package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/orgctl/orgctl/internal/csvio"
	"github.com/orgctl/orgctl/internal/metadata"
)

// detailLimit caps per-record value validation for large row sets.
const detailLimit = 100

const (
	maxTextLength     = 255
	maxPicklistLength = 255
)

var (
	emailPattern = regexp.MustCompile(`^[A-Za-z0-9+_.-]+@[A-Za-z0-9.-]+$`)
	phonePattern = regexp.MustCompile(`(?i)^[+\d\s\-().ext]+$`)
	urlPattern   = regexp.MustCompile(`(?i)^https?://.*`)
	idPattern    = regexp.MustCompile(`^[a-zA-Z0-9]{15}([a-zA-Z0-9]{3})?$`)
)

// Result collects validation findings. Errors block a restore when
// stop-on-error is set; warnings are advisory.
type Result struct {
	Errors       []string
	Warnings     []string
	TotalRecords int
}

func (r *Result) addError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) addWarning(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Valid reports whether no blocking errors were found.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

// Summary is the one-line pass/fail description.
func (r *Result) Summary() string {
	status := "PASSED"
	if !r.Valid() {
		status = "FAILED"
	}
	return fmt.Sprintf("Validation: %s (%d records, %d errors, %d warnings)",
		status, r.TotalRecords, len(r.Errors), len(r.Warnings))
}

// Validator checks restore rows against target-org metadata.
type Validator struct {
	meta *metadata.Cache
}

// NewValidator creates a validator over the target-org metadata cache.
func NewValidator(meta *metadata.Cache) *Validator {
	return &Validator{meta: meta}
}

// ValidateRows checks one object type's row set: unknown fields, missing
// required fields, and per-record value formats. Value checks cover the
// first 100 records of large sets.
func (v *Validator) ValidateRows(objectName string, rows []csvio.Row) (*Result, error) {
	result := &Result{TotalRecords: len(rows)}
	if len(rows) == 0 {
		result.addWarning("No records to validate")
		return result, nil
	}

	md, err := v.meta.Describe(objectName)
	if err != nil {
		result.addError("Object '%s' not found in target org: %v", objectName, err)
		return result, nil
	}

	columns := rows[0].Columns()
	v.checkFieldExistence(columns, md, result)
	v.checkRequiredFields(columns, md, result)

	for i, row := range rows {
		if i >= detailLimit {
			result.addWarning("Only validated first %d of %d records in detail", detailLimit, len(rows))
			break
		}
		v.checkRowValues(i+1, row, md, result)
	}

	return result, nil
}

// checkFieldExistence warns about captured columns the target type lacks.
func (v *Validator) checkFieldExistence(columns []string, md *metadata.ObjectMetadata, result *Result) {
	for _, column := range columns {
		if strings.HasPrefix(column, "_ref_") || strings.EqualFold(column, "Id") {
			continue
		}
		if _, ok := md.Field(column); !ok {
			result.addWarning("Field '%s' not found in target org - will be skipped", column)
		}
	}
}

// checkRequiredFields warns about required target fields the backup does
// not carry. An enrichment column covering the lookup counts as present.
func (v *Validator) checkRequiredFields(columns []string, md *metadata.ObjectMetadata, result *Result) {
	present := make(map[string]bool, len(columns))
	for _, column := range columns {
		present[strings.ToLower(column)] = true
	}

	for _, field := range md.Fields {
		if field.Nillable || !field.Createable || field.DefaultedOnCreate {
			continue
		}
		lower := strings.ToLower(field.Name)
		if lower == "id" || present[lower] {
			continue
		}
		refPrefix := "_ref_" + strings.TrimSuffix(lower, "id")
		covered := false
		for _, column := range columns {
			if strings.HasPrefix(strings.ToLower(column), refPrefix) {
				covered = true
				break
			}
		}
		if !covered {
			result.addWarning("Required field '%s' not present in backup data", field.Name)
		}
	}
}

func (v *Validator) checkRowValues(recordNum int, row csvio.Row, md *metadata.ObjectMetadata, result *Result) {
	for _, column := range row.Columns() {
		value := row.Value(column)
		if csvio.IsAbsent(value) || strings.HasPrefix(column, "_ref_") {
			continue
		}
		field, ok := md.Field(column)
		if !ok {
			continue
		}
		v.checkValue(recordNum, column, value, field, result)
	}
}

func (v *Validator) checkValue(recordNum int, fieldName, value string, field metadata.FieldInfo, result *Result) {
	switch strings.ToLower(field.Type) {
	case "string", "textarea":
		max := field.Length
		if max <= 0 {
			max = maxTextLength
		}
		if len(value) > max {
			result.addError("Record %d: Text too long in '%s': %d chars (max %d)", recordNum, fieldName, len(value), max)
		}
	case "email":
		if !emailPattern.MatchString(value) {
			result.addError("Record %d: Invalid email format in '%s': %s", recordNum, fieldName, truncate(value, 50))
		}
	case "phone":
		if !phonePattern.MatchString(value) {
			result.addWarning("Record %d: Unusual phone format in '%s': %s", recordNum, fieldName, truncate(value, 30))
		}
	case "url":
		if !urlPattern.MatchString(value) {
			result.addWarning("Record %d: URL may not be valid in '%s': %s", recordNum, fieldName, truncate(value, 50))
		}
	case "reference", "id":
		if !idPattern.MatchString(value) {
			result.addError("Record %d: Invalid ID format in '%s': %s", recordNum, fieldName, truncate(value, 20))
		}
	case "boolean":
		switch strings.ToLower(value) {
		case "true", "false", "1", "0":
		default:
			result.addError("Record %d: Invalid boolean value in '%s': %s", recordNum, fieldName, value)
		}
	case "int", "integer":
		if _, err := strconv.Atoi(value); err != nil {
			result.addError("Record %d: Invalid integer in '%s': %s", recordNum, fieldName, truncate(value, 20))
		}
	case "double", "currency", "percent":
		if _, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", ""), 64); err != nil {
			result.addError("Record %d: Invalid number in '%s': %s", recordNum, fieldName, truncate(value, 20))
		}
	case "date":
		if _, err := time.Parse("2006-01-02", value); err != nil {
			result.addError("Record %d: Invalid date format in '%s': %s (expected YYYY-MM-DD)", recordNum, fieldName, value)
		}
	case "datetime":
		if !validDateTime(value) {
			result.addError("Record %d: Invalid datetime format in '%s': %s", recordNum, fieldName, truncate(value, 30))
		}
	case "picklist", "multipicklist":
		if len(value) > maxPicklistLength {
			result.addError("Record %d: Picklist value too long in '%s': %d chars (max %d)", recordNum, fieldName, len(value), maxPicklistLength)
		}
	}
}

func validDateTime(value string) bool {
	candidate := value
	if !strings.Contains(candidate, "T") {
		candidate = strings.Replace(candidate, " ", "T", 1)
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000-0700",
		"2006-01-02T15:04:05",
	} {
		if _, err := time.Parse(layout, candidate); err == nil {
			return true
		}
	}
	return false
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max] + "..."
}
