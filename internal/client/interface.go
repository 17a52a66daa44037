package client

// PlatformClient defines the platform API operations the restore engine
// depends on. This allows for easy mocking in tests.
type PlatformClient interface {
	// Metadata
	DescribeObject(objectName string) (*ObjectDescribe, error)

	// Queries (identifier resolution, record type / user lookups)
	Query(soql string) ([]QueryRecord, error)

	// Synchronous multi-record writes
	CompositeCreate(objectName string, records []map[string]string) ([]SaveResult, error)
	CompositeUpdate(objectName string, records []map[string]string) ([]SaveResult, error)

	// Bulk ingest job protocol
	CreateIngestJob(objectName, operation, externalIDField string) (*IngestJob, error)
	UploadIngestData(jobID string, csvData []byte) error
	SetIngestJobState(jobID, state string) error
	GetIngestJob(jobID string) (*IngestJob, error)
	GetFailedResults(jobID string) (string, error)

	// Identity
	RunningUserID() (string, error)
}

// Ensure both implementations satisfy the interface.
var _ PlatformClient = (*RESTClient)(nil)
var _ PlatformClient = (*MockClient)(nil)
