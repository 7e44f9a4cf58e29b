package matching

import (
	"errors"
	"fmt"
	"strings"
)

// Diagnostic and error codes shared with the worker error mapping.
const (
	CodeDataFetchFailed    = "DATA_FETCH_FAILED"
	CodeMalformedRecord    = "MALFORMED_RECORD"
	CodePartialPersistence = "PARTIAL_PERSISTENCE"
	CodeScoringFailed      = "SCORING_FAILED"
)

// DataFetchError reports that an external source (catalog, applicant, weights) did not respond.
type DataFetchError struct {
	Source string
	Err    error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *DataFetchError) Unwrap() error { return e.Err }

func (e *DataFetchError) ErrorCode() string { return CodeDataFetchFailed }

func (e *DataFetchError) IsRetryable() bool { return true }

// MalformedRecordError reports a record that could not be normalized.
type MalformedRecordError struct {
	Kind     string
	RecordID string
	Reason   string
}

func (e *MalformedRecordError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("malformed %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("malformed %s %s: %s", e.Kind, e.RecordID, e.Reason)
}

func (e *MalformedRecordError) ErrorCode() string { return CodeMalformedRecord }

func (e *MalformedRecordError) IsRetryable() bool { return false }

// PartialPersistenceError is returned by SaveWeights when a write fails after zero or more succeeded.
type PartialPersistenceError struct {
	Written []string
	Failed  string
	Err     error
}

func (e *PartialPersistenceError) Error() string {
	written := "none"
	if len(e.Written) > 0 {
		written = strings.Join(e.Written, ",")
	}
	return fmt.Sprintf("weights partially saved (written: %s, failed: %s): %v", written, e.Failed, e.Err)
}

func (e *PartialPersistenceError) Unwrap() error { return e.Err }

func (e *PartialPersistenceError) ErrorCode() string { return CodePartialPersistence }

func (e *PartialPersistenceError) IsRetryable() bool { return false }

// DiagnosticFromError converts a per-record failure into a diagnostic entry.
func DiagnosticFromError(opportunityID string, err error) Diagnostic {
	code := CodeScoringFailed
	var malformed *MalformedRecordError
	var fetch *DataFetchError
	switch {
	case errors.As(err, &malformed):
		code = CodeMalformedRecord
		if opportunityID == "" {
			opportunityID = malformed.RecordID
		}
	case errors.As(err, &fetch):
		code = CodeDataFetchFailed
	}
	return Diagnostic{Code: code, OpportunityID: opportunityID, Message: err.Error()}
}
