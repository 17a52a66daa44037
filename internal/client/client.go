package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RESTClient is the main client for the platform REST and Bulk APIs.
type RESTClient struct {
	InstanceURL string
	AccessToken string
	APIVersion  string
	HTTPClient  *http.Client
}

// PicklistEntry is one allowed value of a picklist field.
type PicklistEntry struct {
	Value  string `json:"value"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

// FieldDescribe is the raw per-field metadata returned by the describe call.
type FieldDescribe struct {
	Name              string          `json:"name"`
	Type              string          `json:"type"`
	Label             string          `json:"label"`
	Length            int             `json:"length"`
	Nillable          bool            `json:"nillable"`
	Createable        bool            `json:"createable"`
	Updateable        bool            `json:"updateable"`
	ExternalID        bool            `json:"externalId"`
	IDLookup          bool            `json:"idLookup"`
	Unique            bool            `json:"unique"`
	NameField         bool            `json:"nameField"`
	DefaultedOnCreate bool            `json:"defaultedOnCreate"`
	ReferenceTo       []string        `json:"referenceTo"`
	RelationshipName  string          `json:"relationshipName"`
	PicklistValues    []PicklistEntry `json:"picklistValues"`
}

// ObjectDescribe is the raw describe response for one object type.
type ObjectDescribe struct {
	Name   string          `json:"name"`
	Label  string          `json:"label"`
	Fields []FieldDescribe `json:"fields"`
}

// QueryRecord is one row of a query result. Field values are returned as
// the platform sends them; callers should expect strings for most fields.
type QueryRecord map[string]any

// queryResponse is the paginated query envelope.
type queryResponse struct {
	TotalSize      int           `json:"totalSize"`
	Done           bool          `json:"done"`
	NextRecordsURL string        `json:"nextRecordsUrl"`
	Records        []QueryRecord `json:"records"`
}

// SaveError is one error attached to a failed record in a composite write.
type SaveError struct {
	StatusCode string   `json:"statusCode"`
	Message    string   `json:"message"`
	Fields     []string `json:"fields,omitempty"`
}

// SaveResult is the per-record outcome of a composite write.
type SaveResult struct {
	ID      string      `json:"id,omitempty"`
	Success bool        `json:"success"`
	Errors  []SaveError `json:"errors,omitempty"`
}

// IngestJob is the state of a bulk ingest job.
type IngestJob struct {
	ID                     string `json:"id"`
	Object                 string `json:"object"`
	Operation              string `json:"operation"`
	State                  string `json:"state"`
	ExternalIDFieldName    string `json:"externalIdFieldName,omitempty"`
	NumberRecordsProcessed int    `json:"numberRecordsProcessed"`
	NumberRecordsFailed    int    `json:"numberRecordsFailed"`
	ErrorMessage           string `json:"errorMessage,omitempty"`
}

// Ingest job lifecycle states.
const (
	JobStateOpen           = "Open"
	JobStateUploadComplete = "UploadComplete"
	JobStateInProgress     = "InProgress"
	JobStateComplete       = "JobComplete"
	JobStateFailed         = "Failed"
	JobStateAborted        = "Aborted"
)

// NewClient creates a new platform client for the given org.
func NewClient(instanceURL, accessToken, apiVersion string) *RESTClient {
	return &RESTClient{
		InstanceURL: strings.TrimRight(instanceURL, "/"),
		AccessToken: accessToken,
		APIVersion:  apiVersion,
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// restURL builds a URL under /services/data/v{version}.
func (c *RESTClient) restURL(path string) string {
	return fmt.Sprintf("%s/services/data/v%s%s", c.InstanceURL, c.APIVersion, path)
}

// doRequest performs an HTTP request with bearer authentication.
func (c *RESTClient) doRequest(method, urlPath, contentType string, body []byte) ([]byte, int, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, urlPath, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	return respBody, resp.StatusCode, nil
}

func (c *RESTClient) doJSON(method, urlPath string, body interface{}) ([]byte, int, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}
	return c.doRequest(method, urlPath, "application/json", payload)
}

// DescribeObject fetches field and relationship metadata for an object type.
func (c *RESTClient) DescribeObject(objectName string) (*ObjectDescribe, error) {
	urlPath := c.restURL("/sobjects/" + url.PathEscape(objectName) + "/describe")

	respBody, statusCode, err := c.doRequest("GET", urlPath, "", nil)
	if err != nil {
		return nil, err
	}

	if statusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to describe %s: %s (status %d)", objectName, string(respBody), statusCode)
	}

	var describe ObjectDescribe
	if err := json.Unmarshal(respBody, &describe); err != nil {
		return nil, fmt.Errorf("failed to parse describe response: %w", err)
	}

	return &describe, nil
}

// Query runs a SOQL query and follows nextRecordsUrl pagination until done.
func (c *RESTClient) Query(soql string) ([]QueryRecord, error) {
	urlPath := c.restURL("/query") + "?q=" + url.QueryEscape(soql)

	var all []QueryRecord
	for {
		respBody, statusCode, err := c.doRequest("GET", urlPath, "", nil)
		if err != nil {
			return nil, err
		}

		if statusCode != http.StatusOK {
			return nil, fmt.Errorf("query failed: %s (status %d)", string(respBody), statusCode)
		}

		var page queryResponse
		if err := json.Unmarshal(respBody, &page); err != nil {
			return nil, fmt.Errorf("failed to parse query response: %w", err)
		}

		all = append(all, page.Records...)

		if page.Done || page.NextRecordsURL == "" {
			return all, nil
		}
		urlPath = c.InstanceURL + page.NextRecordsURL
	}
}

// compositeRequest is the body of a composite multi-record write.
type compositeRequest struct {
	AllOrNone bool             `json:"allOrNone"`
	Records   []map[string]any `json:"records"`
}

func (c *RESTClient) compositeWrite(method, objectName string, records []map[string]string) ([]SaveResult, error) {
	body := compositeRequest{AllOrNone: false}
	for _, record := range records {
		obj := make(map[string]any, len(record)+1)
		obj["attributes"] = map[string]string{"type": objectName}
		for field, value := range record {
			obj[field] = value
		}
		body.Records = append(body.Records, obj)
	}

	respBody, statusCode, err := c.doJSON(method, c.restURL("/composite/sobjects"), body)
	if err != nil {
		return nil, err
	}

	if statusCode != http.StatusOK {
		return nil, fmt.Errorf("composite write failed: %s (status %d)", string(respBody), statusCode)
	}

	var results []SaveResult
	if err := json.Unmarshal(respBody, &results); err != nil {
		return nil, fmt.Errorf("failed to parse composite response: %w", err)
	}

	return results, nil
}

// CompositeCreate inserts up to 200 records in one synchronous call.
// Each record reports its own outcome (allOrNone is false).
func (c *RESTClient) CompositeCreate(objectName string, records []map[string]string) ([]SaveResult, error) {
	return c.compositeWrite("POST", objectName, records)
}

// CompositeUpdate updates up to 200 records in one synchronous call.
// Records must carry an Id field.
func (c *RESTClient) CompositeUpdate(objectName string, records []map[string]string) ([]SaveResult, error) {
	return c.compositeWrite("PATCH", objectName, records)
}

// CreateIngestJob opens a bulk ingest job. externalIDField is required for
// the upsert operation and ignored otherwise.
func (c *RESTClient) CreateIngestJob(objectName, operation, externalIDField string) (*IngestJob, error) {
	body := map[string]string{
		"object":      objectName,
		"operation":   operation,
		"contentType": "CSV",
		"lineEnding":  "LF",
	}
	if operation == "upsert" && externalIDField != "" {
		body["externalIdFieldName"] = externalIDField
	}

	respBody, statusCode, err := c.doJSON("POST", c.restURL("/jobs/ingest"), body)
	if err != nil {
		return nil, err
	}

	if statusCode != http.StatusOK && statusCode != http.StatusCreated {
		return nil, fmt.Errorf("failed to create ingest job: %s (status %d)", string(respBody), statusCode)
	}

	var job IngestJob
	if err := json.Unmarshal(respBody, &job); err != nil {
		return nil, fmt.Errorf("failed to parse ingest job response: %w", err)
	}

	return &job, nil
}

// UploadIngestData uploads the CSV payload for an open ingest job.
func (c *RESTClient) UploadIngestData(jobID string, csvData []byte) error {
	urlPath := c.restURL("/jobs/ingest/" + url.PathEscape(jobID) + "/batches")

	respBody, statusCode, err := c.doRequest("PATCH", urlPath, "text/csv", csvData)
	if err != nil {
		return err
	}

	if statusCode != http.StatusCreated && statusCode != http.StatusOK {
		return fmt.Errorf("failed to upload ingest data: %s (status %d)", string(respBody), statusCode)
	}

	return nil
}

// SetIngestJobState transitions a job, e.g. to UploadComplete or Aborted.
func (c *RESTClient) SetIngestJobState(jobID, state string) error {
	urlPath := c.restURL("/jobs/ingest/" + url.PathEscape(jobID))

	respBody, statusCode, err := c.doJSON("PATCH", urlPath, map[string]string{"state": state})
	if err != nil {
		return err
	}

	if statusCode != http.StatusOK {
		return fmt.Errorf("failed to set job state to %s: %s (status %d)", state, string(respBody), statusCode)
	}

	return nil
}

// GetIngestJob polls current job state and record counts.
func (c *RESTClient) GetIngestJob(jobID string) (*IngestJob, error) {
	urlPath := c.restURL("/jobs/ingest/" + url.PathEscape(jobID))

	respBody, statusCode, err := c.doRequest("GET", urlPath, "", nil)
	if err != nil {
		return nil, err
	}

	if statusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get ingest job: %s (status %d)", string(respBody), statusCode)
	}

	var job IngestJob
	if err := json.Unmarshal(respBody, &job); err != nil {
		return nil, fmt.Errorf("failed to parse ingest job response: %w", err)
	}

	return &job, nil
}

// GetFailedResults downloads the per-record failure report of a completed
// job as CSV (sf__Error and sf__Id columns plus the submitted fields).
func (c *RESTClient) GetFailedResults(jobID string) (string, error) {
	urlPath := c.restURL("/jobs/ingest/" + url.PathEscape(jobID) + "/failedResults")

	req, err := http.NewRequest("GET", urlPath, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Accept", "text/csv")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read failed results: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get failed results: %s (status %d)", string(respBody), resp.StatusCode)
	}

	return string(respBody), nil
}

// RunningUserID returns the identity the access token belongs to, used by
// the USE_RUNNING_USER transformation fallback.
func (c *RESTClient) RunningUserID() (string, error) {
	respBody, statusCode, err := c.doRequest("GET", c.InstanceURL+"/services/oauth2/userinfo", "", nil)
	if err != nil {
		return "", err
	}

	if statusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get user info: %s (status %d)", string(respBody), statusCode)
	}

	var info struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(respBody, &info); err != nil {
		return "", fmt.Errorf("failed to parse user info: %w", err)
	}

	return info.UserID, nil
}
