// Package compare inspects the values a backup actually uses (record
// types, picklist values, user IDs) against the target org and proposes
// remappings for the ones that do not exist there.
package compare

import (
	"fmt"
	"sort"
	"strings"

	"github.com/orgctl/orgctl/internal/client"
	"github.com/orgctl/orgctl/internal/csvio"
	"github.com/orgctl/orgctl/internal/metadata"
	"github.com/orgctl/orgctl/internal/transform"
)

// userQueryBatchSize caps user IDs per lookup query.
const userQueryBatchSize = 100

// activeUserLimit bounds the candidate list fetched for suggestions.
const activeUserLimit = 500

// auditUserFields are the columns scanned for user IDs.
var auditUserFields = []string{"OwnerId", "CreatedById", "LastModifiedById"}

// RecordTypeInfo describes one record type in either org.
type RecordTypeInfo struct {
	ID            string
	Name          string
	DeveloperName string
	Default       bool
}

// UserInfo describes one user in either org.
type UserInfo struct {
	ID       string
	Username string
	Name     string
	Email    string
	Active   bool
}

// Analysis is what a backup row set actually uses for one object type.
type Analysis struct {
	ObjectName     string
	Columns        []string
	RecordTypeIDs  []string
	PicklistValues map[string][]string
	UserIDs        []string
}

// AnalyzeRows extracts distinct record-type IDs, per-field picklist
// values, and user IDs from backup rows. Picklist fields are identified
// from target metadata.
func AnalyzeRows(md *metadata.ObjectMetadata, objectName string, rows []csvio.Row) *Analysis {
	analysis := &Analysis{
		ObjectName:     objectName,
		PicklistValues: make(map[string][]string),
	}
	if len(rows) == 0 {
		return analysis
	}
	analysis.Columns = rows[0].Columns()

	picklistFields := make(map[string]bool)
	if md != nil {
		for _, field := range md.Fields {
			if field.Type == "picklist" || field.Type == "multipicklist" {
				picklistFields[field.Name] = true
			}
		}
	}

	recordTypes := make(map[string]bool)
	users := make(map[string]bool)
	picklists := make(map[string]map[string]bool)
	for _, row := range rows {
		if v := row.Value("RecordTypeId"); !csvio.IsAbsent(v) {
			recordTypes[v] = true
		}
		for _, field := range auditUserFields {
			if v := row.Value(field); !csvio.IsAbsent(v) && strings.HasPrefix(v, "005") {
				users[v] = true
			}
		}
		for field := range picklistFields {
			if v := row.Value(field); !csvio.IsAbsent(v) {
				if picklists[field] == nil {
					picklists[field] = make(map[string]bool)
				}
				picklists[field][v] = true
			}
		}
	}

	analysis.RecordTypeIDs = sortedKeys(recordTypes)
	analysis.UserIDs = sortedKeys(users)
	for field, values := range picklists {
		analysis.PicklistValues[field] = sortedKeys(values)
	}
	return analysis
}

// PicklistMismatch is a backup picklist value the target field lacks.
type PicklistMismatch struct {
	FieldName     string
	SourceValue   string
	TargetOptions []string
}

// Result is the outcome of comparing one object type against the target.
type Result struct {
	ObjectName          string
	MissingFields       []string
	NonCreateableFields []string
	PicklistMismatches  []PicklistMismatch
	UnknownRecordTypes  []string
	UnknownUsers        []string
	TargetRecordTypes   []RecordTypeInfo
	TargetUsers         []UserInfo
}

// HasMismatches reports whether anything needs a mapping before restore.
func (r *Result) HasMismatches() bool {
	return len(r.MissingFields) > 0 || len(r.PicklistMismatches) > 0 ||
		len(r.UnknownRecordTypes) > 0 || len(r.UnknownUsers) > 0
}

// Summary describes the mismatch counts in one line.
func (r *Result) Summary() string {
	var parts []string
	if n := len(r.MissingFields); n > 0 {
		parts = append(parts, fmt.Sprintf("%d missing fields", n))
	}
	if n := len(r.NonCreateableFields); n > 0 {
		parts = append(parts, fmt.Sprintf("%d non-createable fields", n))
	}
	if n := len(r.PicklistMismatches); n > 0 {
		parts = append(parts, fmt.Sprintf("%d picklist mismatches", n))
	}
	if n := len(r.UnknownRecordTypes); n > 0 {
		parts = append(parts, fmt.Sprintf("%d RecordType mismatches", n))
	}
	if n := len(r.UnknownUsers); n > 0 {
		parts = append(parts, fmt.Sprintf("%d User mismatches", n))
	}
	if len(parts) == 0 {
		return "No mismatches found"
	}
	return strings.Join(parts, ", ")
}

// Comparer runs schema comparisons against the target org.
type Comparer struct {
	client client.PlatformClient
	meta   *metadata.Cache
	log    func(string)
}

// NewComparer creates a comparer over the target-org client.
func NewComparer(c client.PlatformClient, meta *metadata.Cache, log func(string)) *Comparer {
	if log == nil {
		log = func(string) {}
	}
	return &Comparer{client: c, meta: meta, log: log}
}

// CompareObject checks one object's analysis against the target org.
func (c *Comparer) CompareObject(analysis *Analysis) (*Result, error) {
	c.log("Comparing schema for " + analysis.ObjectName + "...")
	result := &Result{ObjectName: analysis.ObjectName}

	md, err := c.meta.Describe(analysis.ObjectName)
	if err != nil {
		return nil, err
	}

	c.compareFields(analysis.Columns, md, result)
	c.comparePicklists(analysis.PicklistValues, md, result)

	if len(analysis.RecordTypeIDs) > 0 {
		if err := c.compareRecordTypes(analysis.ObjectName, analysis.RecordTypeIDs, result); err != nil {
			return nil, err
		}
	}
	if len(analysis.UserIDs) > 0 {
		if err := c.compareUsers(analysis.UserIDs, result); err != nil {
			return nil, err
		}
	}

	c.log(analysis.ObjectName + " comparison complete: " + result.Summary())
	return result, nil
}

func (c *Comparer) compareFields(columns []string, md *metadata.ObjectMetadata, result *Result) {
	for _, column := range columns {
		if strings.HasPrefix(column, "_ref_") || strings.HasPrefix(column, "_rel_") {
			continue
		}
		field, ok := md.Field(column)
		if !ok {
			result.MissingFields = append(result.MissingFields, column)
			continue
		}
		if !field.Createable && !strings.EqualFold(column, "Id") {
			result.NonCreateableFields = append(result.NonCreateableFields, column)
		}
	}
}

func (c *Comparer) comparePicklists(backupValues map[string][]string, md *metadata.ObjectMetadata, result *Result) {
	fields := make([]string, 0, len(backupValues))
	for field := range backupValues {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, fieldName := range fields {
		field, ok := md.Field(fieldName)
		if !ok {
			continue
		}
		targetValues := make(map[string]bool, len(field.PicklistValues))
		var targetList []string
		for _, entry := range field.PicklistValues {
			if entry.Active {
				targetValues[entry.Value] = true
				targetList = append(targetList, entry.Value)
			}
		}
		for _, sourceValue := range backupValues[fieldName] {
			if !targetValues[sourceValue] {
				result.PicklistMismatches = append(result.PicklistMismatches, PicklistMismatch{
					FieldName:     fieldName,
					SourceValue:   sourceValue,
					TargetOptions: targetList,
				})
			}
		}
	}
}

func (c *Comparer) compareRecordTypes(objectName string, sourceIDs []string, result *Result) error {
	soql := fmt.Sprintf("SELECT Id, Name, DeveloperName FROM RecordType WHERE SobjectType = '%s' AND IsActive = true", objectName)
	records, err := c.client.Query(soql)
	if err != nil {
		return fmt.Errorf("query record types for %s: %w", objectName, err)
	}

	known := make(map[string]bool, len(records))
	for _, record := range records {
		info := RecordTypeInfo{
			ID:            stringField(record, "Id"),
			Name:          stringField(record, "Name"),
			DeveloperName: stringField(record, "DeveloperName"),
		}
		known[info.ID] = true
		result.TargetRecordTypes = append(result.TargetRecordTypes, info)
	}

	for _, id := range sourceIDs {
		if !known[id] {
			result.UnknownRecordTypes = append(result.UnknownRecordTypes, id)
		}
	}
	return nil
}

func (c *Comparer) compareUsers(sourceIDs []string, result *Result) error {
	known := make(map[string]bool)
	for start := 0; start < len(sourceIDs); start += userQueryBatchSize {
		end := start + userQueryBatchSize
		if end > len(sourceIDs) {
			end = len(sourceIDs)
		}
		soql := fmt.Sprintf("SELECT Id, Username, Name, Email FROM User WHERE Id IN (%s)", quoteList(sourceIDs[start:end]))
		records, err := c.client.Query(soql)
		if err != nil {
			return fmt.Errorf("query users: %w", err)
		}
		for _, record := range records {
			known[stringField(record, "Id")] = true
		}
	}

	soql := fmt.Sprintf("SELECT Id, Username, Name, Email FROM User WHERE IsActive = true ORDER BY Name LIMIT %d", activeUserLimit)
	records, err := c.client.Query(soql)
	if err != nil {
		return fmt.Errorf("query active users: %w", err)
	}
	for _, record := range records {
		result.TargetUsers = append(result.TargetUsers, UserInfo{
			ID:       stringField(record, "Id"),
			Username: stringField(record, "Username"),
			Name:     stringField(record, "Name"),
			Email:    stringField(record, "Email"),
			Active:   true,
		})
	}

	for _, id := range sourceIDs {
		if !known[id] {
			result.UnknownUsers = append(result.UnknownUsers, id)
		}
	}
	return nil
}

// BuildTransformationConfig turns comparison results into a starter
// transformation config: picklist suggestions become per-object picklist
// maps; unknown record types and users stay unmapped for the operator to
// fill in, with candidates listed in the comparison output.
func BuildTransformationConfig(name string, results []*Result) *transform.Config {
	config := transform.NewConfig(name)
	for _, result := range results {
		if !result.HasMismatches() {
			continue
		}
		oc := config.GetOrCreateObjectConfig(result.ObjectName)

		byField := make(map[string][]PicklistMismatch)
		for _, mismatch := range result.PicklistMismatches {
			byField[mismatch.FieldName] = append(byField[mismatch.FieldName], mismatch)
		}
		for fieldName, mismatches := range byField {
			var sourceValues []string
			for _, m := range mismatches {
				sourceValues = append(sourceValues, m.SourceValue)
			}
			suggested := SuggestPicklistMappings(sourceValues, mismatches[0].TargetOptions)
			for source, target := range suggested {
				oc.AddPicklistMapping(fieldName, source, target)
			}
		}

		for _, field := range result.MissingFields {
			oc.ExcludedFields = append(oc.ExcludedFields, field)
		}
		sort.Strings(oc.ExcludedFields)
	}
	return config
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "\\'") + "'"
	}
	return strings.Join(quoted, ", ")
}

func stringField(record client.QueryRecord, field string) string {
	if v, ok := record[field].(string); ok {
		return v
	}
	return ""
}
