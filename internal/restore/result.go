package restore

import "fmt"

// errorSampleLimit caps the detailed failure samples kept per batch.
const errorSampleLimit = 10

// BatchResult is the outcome of one write batch.
type BatchResult struct {
	SuccessCount int
	FailureCount int
	Errors       []string
	CreatedIDs   []string

	retryable bool
}

// AddError records a failure message and tracks whether it is transient.
func (b *BatchResult) AddError(message string) {
	b.Errors = append(b.Errors, message)
	if IsRetryableError(message) {
		b.retryable = true
	}
}

// HasRetryableErrors reports whether any recorded error was transient.
func (b *BatchResult) HasRetryableErrors() bool {
	return b.retryable
}

// Success reports whether the batch had no failures.
func (b *BatchResult) Success() bool {
	return b.FailureCount == 0
}

// Result is the outcome of restoring one object type.
type Result struct {
	ObjectName   string
	TotalRecords int
	SuccessCount int
	FailureCount int
	Completed    bool
	Errors       []string
	CreatedIDs   []string
}

func (r *Result) addBatch(batch *BatchResult) {
	r.SuccessCount += batch.SuccessCount
	r.FailureCount += batch.FailureCount
	r.Errors = append(r.Errors, batch.Errors...)
	r.CreatedIDs = append(r.CreatedIDs, batch.CreatedIDs...)
}

// AddError records an object-level failure message.
func (r *Result) AddError(message string) {
	r.Errors = append(r.Errors, message)
}

// Summary describes the outcome in one line.
func (r *Result) Summary() string {
	return fmt.Sprintf("%s: %d total, %d succeeded, %d failed",
		r.ObjectName, r.TotalRecords, r.SuccessCount, r.FailureCount)
}

// GroupedErrors buckets failure messages by kind: repeated kinds become a
// single line with a count, followed by up to ten detailed samples.
func GroupedErrors(errors []string) []string {
	counts := make(map[string]int)
	var order []string
	var samples []string
	for _, message := range errors {
		kind := ClassifyError(message)
		if counts[kind] == 0 {
			order = append(order, kind)
		}
		counts[kind]++
		if len(samples) < errorSampleLimit {
			samples = append(samples, message)
		}
	}

	var grouped []string
	for _, kind := range order {
		if counts[kind] > 1 {
			grouped = append(grouped, fmt.Sprintf("%s (%d records)", kind, counts[kind]))
		}
	}
	for _, sample := range samples {
		grouped = append(grouped, "  - "+sample)
	}
	if extra := len(errors) - errorSampleLimit; extra > 0 {
		grouped = append(grouped, fmt.Sprintf("... and %d more failed records", extra))
	}
	return grouped
}

// Progress is a point-in-time view of one object's restore, delivered to
// the progress sink after every batch.
type Progress struct {
	CurrentObject    string
	ProcessedRecords int
	TotalRecords     int
	SuccessCount     int
	FailureCount     int
	PercentComplete  float64
}
