// Package restore writes backup rows into the target org, choosing the
// synchronous composite API for small batches and the bulk ingest job
// protocol for large ones, with retry on transient failures.
package restore

import (
	"encoding/csv"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orgctl/orgctl/internal/client"
	"github.com/orgctl/orgctl/internal/csvio"
	"github.com/orgctl/orgctl/internal/metadata"
)

// Mode selects the write operation.
type Mode string

const (
	ModeInsert Mode = "INSERT"
	ModeUpdate Mode = "UPDATE"
	ModeUpsert Mode = "UPSERT"
)

const (
	// compositeLimit is the largest batch written synchronously. Anything
	// bigger goes through a bulk ingest job.
	compositeLimit = 200

	// pollInterval and jobWaitCeiling bound ingest job polling.
	pollInterval   = 2 * time.Second
	jobWaitCeiling = 300 * time.Second
)

// systemFields are stripped from rows before any write.
var systemFields = map[string]bool{
	"CreatedDate":        true,
	"CreatedById":        true,
	"LastModifiedDate":   true,
	"LastModifiedById":   true,
	"SystemModstamp":     true,
	"IsDeleted":          true,
	"LastActivityDate":   true,
	"LastViewedDate":     true,
	"LastReferencedDate": true,
	"attributes":         true,
}

// Options controls restore execution.
type Options struct {
	BatchSize       int
	MaxRetries      int
	RetryDelay      time.Duration
	StopOnError     bool
	PreserveIDs     bool
	ExternalIDField string
	Workers         int
}

// DefaultOptions returns the standard restore settings.
func DefaultOptions() Options {
	return Options{
		BatchSize:  200,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
		Workers:    4,
	}
}

// Executor restores rows for one target org.
type Executor struct {
	client client.PlatformClient
	meta   *metadata.Cache
	opts   Options
	stats  *Stats

	log      func(string)
	progress func(Progress)

	cancelled atomic.Bool
	sleep     func(time.Duration)
}

// NewExecutor creates an executor over the target-org client.
func NewExecutor(c client.PlatformClient, meta *metadata.Cache, opts Options) *Executor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Executor{
		client: c,
		meta:   meta,
		opts:   opts,
		stats:  NewStats(),
		log:    func(string) {},
		sleep:  time.Sleep,
	}
}

// SetLogSink routes progress messages to fn.
func (e *Executor) SetLogSink(fn func(string)) {
	if fn != nil {
		e.log = fn
	}
}

// SetProgressSink routes per-batch progress updates to fn.
func (e *Executor) SetProgressSink(fn func(Progress)) {
	e.progress = fn
}

// Stats exposes the executor's counters.
func (e *Executor) Stats() *Stats {
	return e.stats
}

// Cancel stops the restore at the next batch or poll boundary.
func (e *Executor) Cancel() {
	e.cancelled.Store(true)
}

// RestoreFile restores one object's CSV file.
func (e *Executor) RestoreFile(objectName, path string, mode Mode) (*Result, error) {
	rows, err := csvio.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return e.RestoreRows(objectName, rows, mode)
}

// RestoreRows restores rows for one object type in batches. A batch that
// fails with a non-retryable error aborts the object's restore and is
// surfaced as the returned error.
func (e *Executor) RestoreRows(objectName string, rows []csvio.Row, mode Mode) (*Result, error) {
	effectiveMode := mode
	externalIDField := e.opts.ExternalIDField
	if e.opts.PreserveIDs && mode == ModeInsert {
		e.log("Preserve IDs enabled, switching to UPSERT on Id")
		effectiveMode = ModeUpsert
		externalIDField = "Id"
	}

	e.log(fmt.Sprintf("Starting restore for %s in %s mode", objectName, effectiveMode))
	result := &Result{ObjectName: objectName}
	if len(rows) == 0 {
		e.log(objectName + ": no records to restore")
		result.Completed = true
		return result, nil
	}
	result.TotalRecords = len(rows)

	if effectiveMode == ModeUpsert && externalIDField == "" {
		field, err := e.upsertKeyField(objectName)
		if err != nil {
			return nil, err
		}
		externalIDField = field
		e.log(fmt.Sprintf("%s: using external ID field %q for upsert", objectName, externalIDField))
	}

	batchSize := e.opts.BatchSize
	totalBatches := (len(rows) + batchSize - 1) / batchSize

	for batchNum := 0; batchNum < totalBatches && !e.cancelled.Load(); batchNum++ {
		start := batchNum * batchSize
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]
		e.log(fmt.Sprintf("%s: processing batch %d/%d (%d records)",
			objectName, batchNum+1, totalBatches, len(batch)))

		batchResult, err := e.runBatchWithRetry(objectName, batch, effectiveMode, externalIDField)
		if batchResult != nil {
			result.addBatch(batchResult)
			e.stats.IncrBatches()
			e.stats.AddRestored(batchResult.SuccessCount)
			e.stats.AddFailed(batchResult.FailureCount)
			e.reportProgress(objectName, end, len(rows), result)
			if !batchResult.Success() && e.opts.StopOnError {
				e.log(objectName + ": stopping due to errors")
				break
			}
		} else if err != nil {
			e.stats.AddFailed(len(batch))
			if !IsRetryableFailure(err) {
				// Permanent failures abort the object; later batches would
				// hit the same wall.
				e.log(fmt.Sprintf("%s: non-retryable batch error: %v", objectName, err))
				return nil, fmt.Errorf("%s batch %d/%d: %w", objectName, batchNum+1, totalBatches, err)
			}
			e.log(fmt.Sprintf("%s: batch failed after %d attempts: %v", objectName, e.opts.MaxRetries, err))
			result.AddError(fmt.Sprintf("Batch %d (after %d attempts): %v", batchNum+1, e.opts.MaxRetries, err))
			result.FailureCount += len(batch)
			if e.opts.StopOnError {
				break
			}
		}
	}

	result.Completed = !e.cancelled.Load()
	e.stats.IncrObjects()
	e.log(fmt.Sprintf("%s: restore completed. Success: %d, Failed: %d",
		objectName, result.SuccessCount, result.FailureCount))
	return result, nil
}

// runBatchWithRetry retries transient failures with a linearly growing
// delay. The batch is attempted at most MaxRetries times.
func (e *Executor) runBatchWithRetry(objectName string, batch []csvio.Row, mode Mode, externalIDField string) (*BatchResult, error) {
	var lastErr error
	for attempt := 1; attempt <= e.opts.MaxRetries && !e.cancelled.Load(); attempt++ {
		batchResult, err := e.processBatch(objectName, batch, mode, externalIDField)
		if err != nil {
			lastErr = err
			if IsRetryableFailure(err) && attempt < e.opts.MaxRetries {
				e.log(fmt.Sprintf("%s: retryable error on attempt %d/%d: %v",
					objectName, attempt, e.opts.MaxRetries, err))
				e.stats.IncrRetries()
				e.sleep(e.opts.RetryDelay * time.Duration(attempt))
				continue
			}
			return nil, err
		}
		if batchResult.HasRetryableErrors() && attempt < e.opts.MaxRetries {
			e.log(fmt.Sprintf("%s: batch has retryable errors, attempt %d/%d",
				objectName, attempt, e.opts.MaxRetries))
			e.stats.IncrRetries()
			e.sleep(e.opts.RetryDelay * time.Duration(attempt))
			continue
		}
		return batchResult, nil
	}
	return nil, lastErr
}

func (e *Executor) processBatch(objectName string, batch []csvio.Row, mode Mode, externalIDField string) (*BatchResult, error) {
	cleaned := cleanRows(batch, mode)

	switch mode {
	case ModeInsert:
		if len(cleaned) <= compositeLimit {
			return e.compositeWrite(objectName, cleaned, false)
		}
		return e.runIngestJob(objectName, "insert", "", cleaned)
	case ModeUpdate:
		for _, row := range cleaned {
			if csvio.IsAbsent(row.Value("Id")) {
				result := &BatchResult{}
				result.AddError("Update requires Id field for all records")
				result.FailureCount = len(cleaned)
				return result, nil
			}
		}
		if len(cleaned) <= compositeLimit {
			return e.compositeWrite(objectName, cleaned, true)
		}
		return e.runIngestJob(objectName, "update", "", cleaned)
	case ModeUpsert:
		for _, row := range cleaned {
			if csvio.IsAbsent(row.Value(externalIDField)) {
				result := &BatchResult{}
				result.AddError(fmt.Sprintf("Upsert requires external ID field %q for all records", externalIDField))
				result.FailureCount = len(cleaned)
				return result, nil
			}
		}
		return e.runIngestJob(objectName, "upsert", externalIDField, cleaned)
	default:
		return nil, fmt.Errorf("unknown restore mode: %s", mode)
	}
}

// compositeWrite sends one synchronous multi-record write and maps the
// per-record outcomes.
func (e *Executor) compositeWrite(objectName string, rows []csvio.Row, update bool) (*BatchResult, error) {
	records := make([]map[string]string, len(rows))
	for i, row := range rows {
		record := make(map[string]string, row.Len())
		for _, column := range row.Columns() {
			if value := row.Value(column); !csvio.IsAbsent(value) {
				record[column] = value
			}
		}
		records[i] = record
	}

	var results []client.SaveResult
	var err error
	if update {
		results, err = e.client.CompositeUpdate(objectName, records)
	} else {
		results, err = e.client.CompositeCreate(objectName, records)
	}
	if err != nil {
		return nil, err
	}

	batch := &BatchResult{}
	for i, saveResult := range results {
		if saveResult.Success {
			batch.SuccessCount++
			batch.CreatedIDs = append(batch.CreatedIDs, saveResult.ID)
			continue
		}
		batch.FailureCount++
		for _, saveErr := range saveResult.Errors {
			batch.AddError(fmt.Sprintf("Record %d: %s: %s", i+1, saveErr.StatusCode, saveErr.Message))
		}
	}
	return batch, nil
}

// runIngestJob drives the bulk protocol: create, upload, close, poll,
// collect results. The job is aborted if it never reached a terminal
// state.
func (e *Executor) runIngestJob(objectName, operation, externalIDField string, rows []csvio.Row) (*BatchResult, error) {
	job, err := e.client.CreateIngestJob(objectName, operation, externalIDField)
	if err != nil {
		return nil, fmt.Errorf("create ingest job: %w", err)
	}
	e.stats.IncrJobs()
	e.log("Created ingest job " + job.ID)
	defer e.abortJobIfNeeded(job.ID)

	csvData, err := csvio.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	if err := e.client.UploadIngestData(job.ID, csvData); err != nil {
		return nil, fmt.Errorf("upload ingest data: %w", err)
	}
	e.log(fmt.Sprintf("Uploaded %d records to job %s", len(rows), job.ID))

	if err := e.client.SetIngestJobState(job.ID, client.JobStateUploadComplete); err != nil {
		return nil, fmt.Errorf("close ingest job: %w", err)
	}

	final, err := e.waitForJob(job.ID)
	if err != nil {
		return nil, err
	}

	batch := &BatchResult{
		SuccessCount: final.NumberRecordsProcessed - final.NumberRecordsFailed,
		FailureCount: final.NumberRecordsFailed,
	}
	if final.NumberRecordsFailed > 0 {
		report, err := e.client.GetFailedResults(job.ID)
		if err != nil {
			batch.AddError(fmt.Sprintf("failed to fetch failure report: %v", err))
		} else {
			parseFailedResults(report, batch)
		}
	}
	return batch, nil
}

func (e *Executor) waitForJob(jobID string) (*client.IngestJob, error) {
	waited := time.Duration(0)
	for waited < jobWaitCeiling {
		if e.cancelled.Load() {
			return nil, fmt.Errorf("job %s cancelled", jobID)
		}
		job, err := e.client.GetIngestJob(jobID)
		if err != nil {
			return nil, fmt.Errorf("poll job %s: %w", jobID, err)
		}
		switch job.State {
		case client.JobStateComplete:
			return job, nil
		case client.JobStateFailed, client.JobStateAborted:
			return nil, fmt.Errorf("job %s ended in state %s: %s", jobID, job.State, job.ErrorMessage)
		}
		e.sleep(pollInterval)
		waited += pollInterval
	}
	return nil, fmt.Errorf("job %s timed out after %s", jobID, jobWaitCeiling)
}

// abortJobIfNeeded is best-effort cleanup for jobs that never finished.
func (e *Executor) abortJobIfNeeded(jobID string) {
	job, err := e.client.GetIngestJob(jobID)
	if err != nil {
		return
	}
	if job.State == client.JobStateOpen || job.State == client.JobStateUploadComplete {
		if err := e.client.SetIngestJobState(jobID, client.JobStateAborted); err != nil {
			e.log(fmt.Sprintf("failed to abort job %s: %v", jobID, err))
		}
	}
}

// parseFailedResults extracts per-record error messages from a bulk
// failure report CSV. Messages stay ungrouped; display code buckets them.
func parseFailedResults(report string, batch *BatchResult) {
	reader := csv.NewReader(strings.NewReader(report))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil || len(rows) < 2 {
		return
	}

	errorIndex, recordIDIndex := -1, -1
	for i, header := range rows[0] {
		switch {
		case strings.EqualFold(header, "sf__Error"):
			errorIndex = i
		case strings.EqualFold(header, "sf__Id"):
			recordIDIndex = i
		case strings.EqualFold(header, "Id") && recordIDIndex < 0:
			recordIDIndex = i
		}
	}
	if errorIndex < 0 {
		return
	}

	var messages []string
	for _, row := range rows[1:] {
		if errorIndex >= len(row) || row[errorIndex] == "" {
			continue
		}
		message := row[errorIndex]
		if recordIDIndex >= 0 && recordIDIndex < len(row) && row[recordIDIndex] != "" {
			message += " [Id: " + row[recordIDIndex] + "]"
		}
		messages = append(messages, message)
	}

	for _, message := range messages {
		batch.AddError(message)
	}
}

func (e *Executor) reportProgress(objectName string, processed, total int, result *Result) {
	if e.progress == nil {
		return
	}
	e.progress(Progress{
		CurrentObject:    objectName,
		ProcessedRecords: processed,
		TotalRecords:     total,
		SuccessCount:     result.SuccessCount,
		FailureCount:     result.FailureCount,
		PercentComplete:  float64(processed) / float64(total) * 100,
	})
}

// upsertKeyField picks the upsert key from target metadata when none was
// configured.
func (e *Executor) upsertKeyField(objectName string) (string, error) {
	md, err := e.meta.Describe(objectName)
	if err != nil {
		return "", err
	}
	strategy := metadata.SelectStrategy(md)
	if strategy.SupportsUpsert {
		return strategy.KeyField, nil
	}
	return "", fmt.Errorf("no external ID field available for upsert on %s", objectName)
}

// cleanRows strips system fields, enrichment columns, and (for inserts)
// the Id column.
func cleanRows(rows []csvio.Row, mode Mode) []csvio.Row {
	cleaned := make([]csvio.Row, 0, len(rows))
	for _, row := range rows {
		clean := csvio.NewRow()
		for _, column := range row.Columns() {
			if systemFields[column] {
				continue
			}
			if strings.HasPrefix(column, "_ref_") || strings.HasPrefix(column, "_rel_") {
				continue
			}
			if mode == ModeInsert && strings.EqualFold(column, "Id") {
				continue
			}
			clean.Set(column, row.Value(column))
		}
		cleaned = append(cleaned, clean)
	}
	return cleaned
}

// SetItem is one object's rows within a parallel restore plan.
type SetItem struct {
	ObjectName string
	Rows       []csvio.Row
	Mode       Mode
}

// RestoreLevels restores a dependency-ordered plan level by level.
// Objects within a level have no dependencies on each other and run on a
// bounded worker pool; levels run sequentially.
func (e *Executor) RestoreLevels(levels [][]SetItem) []*Result {
	var all []*Result
	for levelNum, level := range levels {
		if e.cancelled.Load() {
			break
		}
		e.log(fmt.Sprintf("Restoring level %d/%d (%d objects)", levelNum+1, len(levels), len(level)))

		results := make([]*Result, len(level))
		sem := make(chan struct{}, e.opts.Workers)
		var wg sync.WaitGroup
		for i, item := range level {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, item SetItem) {
				defer wg.Done()
				defer func() { <-sem }()
				result, err := e.RestoreRows(item.ObjectName, item.Rows, item.Mode)
				if err != nil {
					result = &Result{ObjectName: item.ObjectName, TotalRecords: len(item.Rows)}
					result.AddError(err.Error())
					result.FailureCount = len(item.Rows)
				}
				results[i] = result
			}(i, item)
		}
		wg.Wait()

		failed := false
		for _, result := range results {
			all = append(all, result)
			if result.FailureCount > 0 || len(result.Errors) > 0 {
				failed = true
			}
		}
		if failed && e.opts.StopOnError {
			e.log("Stopping restore plan due to errors")
			break
		}
	}
	return all
}
