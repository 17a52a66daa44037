package client

import (
	"encoding/csv"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// MockClient is an in-memory platform implementation for testing. It keeps
// records per object type, assigns sequential IDs, and understands the
// query shapes the engine issues (IN-list lookups and simple equality).
type MockClient struct {
	mu sync.RWMutex

	// Storage
	Describes map[string]*ObjectDescribe
	Records   map[string][]map[string]string
	Jobs      map[string]*IngestJob

	// RequiredFields lists fields that must be present and non-empty for a
	// create to succeed; missing ones produce REQUIRED_FIELD_MISSING.
	RequiredFields map[string][]string

	// Error simulation
	DescribeError  error
	QueryError     error
	CompositeError error
	JobError       error

	// UserID returned by RunningUserID.
	UserID string

	// Call tracking
	Calls []MockCall

	nextID     int
	jobUploads map[string][]byte
	jobFailed  map[string]string
}

// MockCall tracks method calls for verification.
type MockCall struct {
	Method string
	Args   []interface{}
}

// NewMockClient creates an empty mock org.
func NewMockClient() *MockClient {
	return &MockClient{
		Describes:      make(map[string]*ObjectDescribe),
		Records:        make(map[string][]map[string]string),
		Jobs:           make(map[string]*IngestJob),
		RequiredFields: make(map[string][]string),
		UserID:         "005000000000000001",
		jobUploads:     make(map[string][]byte),
		jobFailed:      make(map[string]string),
	}
}

// AddDescribe registers object metadata.
func (m *MockClient) AddDescribe(describe *ObjectDescribe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Describes[describe.Name] = describe
}

// AddRecord stores an existing record and returns its assigned ID.
func (m *MockClient) AddRecord(objectName string, fields map[string]string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	record := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		record[k] = v
	}
	if record["Id"] == "" {
		record["Id"] = m.generateID()
	}
	m.Records[objectName] = append(m.Records[objectName], record)
	return record["Id"]
}

func (m *MockClient) generateID() string {
	m.nextID++
	return fmt.Sprintf("%018d", m.nextID)
}

// RecordCall records a method call.
func (m *MockClient) RecordCall(method string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
}

// CallCount returns the number of calls to a specific method.
func (m *MockClient) CallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, call := range m.Calls {
		if call.Method == method {
			count++
		}
	}
	return count
}

// DescribeObject returns registered metadata for an object type.
func (m *MockClient) DescribeObject(objectName string) (*ObjectDescribe, error) {
	m.RecordCall("DescribeObject", objectName)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.DescribeError != nil {
		return nil, m.DescribeError
	}
	describe, ok := m.Describes[objectName]
	if !ok {
		return nil, fmt.Errorf("describe %s failed: NOT_FOUND (status 404)", objectName)
	}
	return describe, nil
}

var (
	selectPattern = regexp.MustCompile(`(?is)^\s*SELECT\s+(.+?)\s+FROM\s+(\w+)(?:\s+WHERE\s+(.+?))?(?:\s+ORDER\s+BY\s+[\w\s,]+?)?(?:\s+LIMIT\s+\d+)?\s*$`)
	inPattern     = regexp.MustCompile(`(?i)^(\w+)\s+IN\s+\((.+)\)$`)
	eqPattern     = regexp.MustCompile(`(?i)^(\w+)\s*=\s*(?:'([^']*)'|(true|false))$`)
	andSplit      = regexp.MustCompile(`(?i)\s+AND\s+`)
)

// Query evaluates the SOQL shapes the engine issues: a field list, one
// object, and optionally IN-list and equality predicates joined by AND.
// Trailing ORDER BY / LIMIT clauses are accepted and ignored.
func (m *MockClient) Query(soql string) ([]QueryRecord, error) {
	m.RecordCall("Query", soql)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.QueryError != nil {
		return nil, m.QueryError
	}

	match := selectPattern.FindStringSubmatch(soql)
	if match == nil {
		return nil, fmt.Errorf("mock cannot parse query: %s", soql)
	}

	fields := splitFieldList(match[1])
	objectName := match[2]
	where := strings.TrimSpace(match[3])

	var results []QueryRecord
	for _, record := range m.Records[objectName] {
		if where != "" && !m.matchesWhere(record, where) {
			continue
		}
		row := make(QueryRecord, len(fields))
		for _, field := range fields {
			if value, ok := record[field]; ok && value != "" {
				row[field] = value
			}
		}
		results = append(results, row)
	}

	return results, nil
}

func splitFieldList(list string) []string {
	parts := strings.Split(list, ",")
	fields := make([]string, 0, len(parts))
	for _, part := range parts {
		if field := strings.TrimSpace(part); field != "" {
			fields = append(fields, field)
		}
	}
	return fields
}

func (m *MockClient) matchesWhere(record map[string]string, where string) bool {
	for _, clause := range andSplit.Split(where, -1) {
		if !m.matchesClause(record, strings.TrimSpace(clause)) {
			return false
		}
	}
	return true
}

func (m *MockClient) matchesClause(record map[string]string, where string) bool {
	if match := inPattern.FindStringSubmatch(where); match != nil {
		field := match[1]
		value := record[field]
		for _, candidate := range splitQuotedList(match[2]) {
			if candidate == value {
				return true
			}
		}
		return false
	}
	if match := eqPattern.FindStringSubmatch(where); match != nil {
		field := match[1]
		want := match[2]
		if match[3] != "" {
			want = match[3]
		}
		return strings.EqualFold(record[field], want)
	}
	return false
}

func splitQuotedList(list string) []string {
	var values []string
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		part = strings.TrimPrefix(part, "'")
		part = strings.TrimSuffix(part, "'")
		values = append(values, part)
	}
	return values
}

// CompositeCreate inserts records, honoring RequiredFields for per-record
// failures, and returns a parallel result array.
func (m *MockClient) CompositeCreate(objectName string, records []map[string]string) ([]SaveResult, error) {
	m.RecordCall("CompositeCreate", objectName, len(records))
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CompositeError != nil {
		return nil, m.CompositeError
	}

	results := make([]SaveResult, 0, len(records))
	for _, record := range records {
		if err := m.missingRequired(objectName, record); err != nil {
			results = append(results, SaveResult{Success: false, Errors: []SaveError{*err}})
			continue
		}
		stored := make(map[string]string, len(record)+1)
		for k, v := range record {
			stored[k] = v
		}
		stored["Id"] = m.generateID()
		m.Records[objectName] = append(m.Records[objectName], stored)
		results = append(results, SaveResult{ID: stored["Id"], Success: true})
	}
	return results, nil
}

// CompositeUpdate updates records in place by Id.
func (m *MockClient) CompositeUpdate(objectName string, records []map[string]string) ([]SaveResult, error) {
	m.RecordCall("CompositeUpdate", objectName, len(records))
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CompositeError != nil {
		return nil, m.CompositeError
	}

	results := make([]SaveResult, 0, len(records))
	for _, record := range records {
		id := record["Id"]
		updated := false
		for _, stored := range m.Records[objectName] {
			if stored["Id"] == id {
				for k, v := range record {
					stored[k] = v
				}
				updated = true
				break
			}
		}
		if updated {
			results = append(results, SaveResult{ID: id, Success: true})
		} else {
			results = append(results, SaveResult{Success: false, Errors: []SaveError{{
				StatusCode: "ENTITY_IS_DELETED",
				Message:    "entity is deleted or does not exist",
			}}})
		}
	}
	return results, nil
}

func (m *MockClient) missingRequired(objectName string, record map[string]string) *SaveError {
	for _, field := range m.RequiredFields[objectName] {
		if record[field] == "" {
			return &SaveError{
				StatusCode: "REQUIRED_FIELD_MISSING",
				Message:    fmt.Sprintf("Required fields are missing: [%s]", field),
				Fields:     []string{field},
			}
		}
	}
	return nil
}

// CreateIngestJob opens a mock ingest job.
func (m *MockClient) CreateIngestJob(objectName, operation, externalIDField string) (*IngestJob, error) {
	m.RecordCall("CreateIngestJob", objectName, operation)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.JobError != nil {
		return nil, m.JobError
	}

	m.nextID++
	job := &IngestJob{
		ID:                  fmt.Sprintf("750%015d", m.nextID),
		Object:              objectName,
		Operation:           operation,
		State:               JobStateOpen,
		ExternalIDFieldName: externalIDField,
	}
	m.Jobs[job.ID] = job
	return job, nil
}

// UploadIngestData stages CSV data for a job.
func (m *MockClient) UploadIngestData(jobID string, csvData []byte) error {
	m.RecordCall("UploadIngestData", jobID, len(csvData))
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.JobError != nil {
		return m.JobError
	}
	if _, ok := m.Jobs[jobID]; !ok {
		return fmt.Errorf("job %s not found (status 404)", jobID)
	}
	m.jobUploads[jobID] = csvData
	return nil
}

// SetIngestJobState transitions a job. UploadComplete processes the staged
// CSV immediately so polling sees a terminal state on the first check.
func (m *MockClient) SetIngestJobState(jobID, state string) error {
	m.RecordCall("SetIngestJobState", jobID, state)
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.Jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s not found (status 404)", jobID)
	}
	if state == JobStateUploadComplete {
		m.processJob(job)
		return nil
	}
	job.State = state
	return nil
}

func (m *MockClient) processJob(job *IngestJob) {
	reader := csv.NewReader(strings.NewReader(string(m.jobUploads[job.ID])))
	rows, err := reader.ReadAll()
	if err != nil || len(rows) < 2 {
		job.State = JobStateFailed
		job.ErrorMessage = "InvalidBatch : empty or malformed CSV"
		return
	}

	header := rows[0]
	var failed [][]string
	for _, row := range rows[1:] {
		record := make(map[string]string, len(header))
		for i, field := range header {
			if i < len(row) && row[i] != "" {
				record[field] = row[i]
			}
		}
		job.NumberRecordsProcessed++
		if saveErr := m.missingRequired(job.Object, record); saveErr != nil {
			job.NumberRecordsFailed++
			failed = append(failed, append([]string{saveErr.StatusCode + ":" + saveErr.Message, ""}, row...))
			continue
		}
		record["Id"] = m.generateID()
		m.Records[job.Object] = append(m.Records[job.Object], record)
	}

	if len(failed) > 0 {
		var sb strings.Builder
		w := csv.NewWriter(&sb)
		w.Write(append([]string{"sf__Error", "sf__Id"}, header...))
		for _, row := range failed {
			w.Write(row)
		}
		w.Flush()
		m.jobFailed[job.ID] = sb.String()
	}

	job.State = JobStateComplete
}

// GetIngestJob returns current job state.
func (m *MockClient) GetIngestJob(jobID string) (*IngestJob, error) {
	m.RecordCall("GetIngestJob", jobID)
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.Jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s not found (status 404)", jobID)
	}
	copied := *job
	return &copied, nil
}

// GetFailedResults returns the failure report CSV for a completed job.
func (m *MockClient) GetFailedResults(jobID string) (string, error) {
	m.RecordCall("GetFailedResults", jobID)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobFailed[jobID], nil
}

// RunningUserID returns the configured mock identity.
func (m *MockClient) RunningUserID() (string, error) {
	m.RecordCall("RunningUserID")
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.UserID, nil
}
