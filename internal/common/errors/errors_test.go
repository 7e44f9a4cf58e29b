package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type codedError struct {
	code      string
	retryable bool
}

func (e *codedError) Error() string     { return "coded: " + e.code }
func (e *codedError) ErrorCode() string { return e.code }
func (e *codedError) IsRetryable() bool { return e.retryable }

type wrappingCodedError struct {
	codedError
	cause error
}

func (e *wrappingCodedError) Unwrap() error { return e.cause }

func TestNormalize(t *testing.T) {
	tests := []struct {
		name              string
		err               error
		expectedCode      ErrorCode
		expectedRetryable bool
	}{
		{
			name:              "standard error passes through",
			err:               NewOpportunityNotFoundError("opp-1"),
			expectedCode:      ErrCodeOpportunityNotFound,
			expectedRetryable: false,
		},
		{
			name:              "wrapped standard error",
			err:               fmt.Errorf("loading: %w", NewQueryTimeoutError("weights")),
			expectedCode:      ErrCodeQueryTimeout,
			expectedRetryable: true,
		},
		{
			name:              "domain error keeps its code",
			err:               &codedError{code: "DATA_FETCH_FAILED", retryable: true},
			expectedCode:      ErrCodeDataFetchFailed,
			expectedRetryable: true,
		},
		{
			name:              "wrapped non-retryable domain error",
			err:               fmt.Errorf("save: %w", &codedError{code: "PARTIAL_PERSISTENCE"}),
			expectedCode:      ErrCodePartialPersistence,
			expectedRetryable: false,
		},
		{
			name: "domain error wins over the query error it wraps",
			err: &wrappingCodedError{
				codedError: codedError{code: "PARTIAL_PERSISTENCE"},
				cause:      NewQueryExecutionFailedError("save_weight:industry", stderrors.New("deadlock")),
			},
			expectedCode:      ErrCodePartialPersistence,
			expectedRetryable: false,
		},
		{
			name:              "deadline becomes fetch failure",
			err:               context.DeadlineExceeded,
			expectedCode:      ErrCodeDataFetchFailed,
			expectedRetryable: true,
		},
		{
			name:              "plain error is internal",
			err:               stderrors.New("boom"),
			expectedCode:      ErrCodeInternal,
			expectedRetryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdErr := Normalize(tt.err)
			require.NotNil(t, stdErr)
			assert.Equal(t, tt.expectedCode, stdErr.Code)
			assert.Equal(t, tt.expectedRetryable, stdErr.Retryable)
			assert.False(t, stdErr.Timestamp.IsZero())
		})
	}

	assert.Nil(t, Normalize(nil))
}

func TestConvertToBPMNError(t *testing.T) {
	bpmn := ConvertToBPMNError(NewSearchQueryFailedError("opportunities", stderrors.New("503")))

	assert.Equal(t, string(ErrCodeSearchQueryFailed), bpmn.Code)
	assert.True(t, bpmn.Retryable)
	assert.Equal(t, 3, bpmn.Retries)

	vars := bpmn.ToErrorVariables()
	assert.Equal(t, string(ErrCodeSearchQueryFailed), vars["errorCode"])
	assert.Equal(t, string(ErrCodeSearchQueryFailed), vars["originalErrorCode"])
	assert.Contains(t, vars, "timestamp")
}

func TestConvertToBPMNError_NonRetryableHasNoRetries(t *testing.T) {
	stdErr := NewQueryExecutionFailedError("weights", stderrors.New("syntax"))
	stdErr.Retryable = false

	assert.Equal(t, 0, ConvertToBPMNError(stdErr).Retries)
}

func TestGetRetryCount(t *testing.T) {
	assert.Equal(t, 3, GetRetryCount(ErrCodeDataFetchFailed))
	assert.Equal(t, 2, GetRetryCount(ErrCodeSearchTimeout))
	assert.Equal(t, 0, GetRetryCount(ErrCodeMalformedRecord))
	assert.Equal(t, 0, GetRetryCount(ErrCodePartialPersistence))
	assert.True(t, IsRetryableErrorCode(ErrCodeNotificationSendFailed))
	assert.False(t, IsRetryableErrorCode(ErrCodeInvalidWeights))
}

func TestGetErrorCategory(t *testing.T) {
	tests := map[ErrorCode]string{
		ErrCodeInvalidWeights:                "WEIGHTS",
		ErrCodePartialPersistence:            "WEIGHTS",
		ErrCodeQueryTimeout:                  "DATABASE",
		ErrCodeElasticsearchConnectionFailed: "SEARCH",
		ErrCodeIndexNotFound:                 "SEARCH",
		ErrCodeNotificationSendFailed:        "NOTIFICATION",
		ErrCodeDataFetchFailed:               "UPSTREAM",
		ErrCodeMalformedRecord:               "VALIDATION",
		ErrCodeOpportunityNotFound:           "VALIDATION",
		ErrCodeInternal:                      "OTHER",
	}
	for code, expected := range tests {
		assert.Equal(t, expected, GetErrorCategory(code), string(code))
	}
}

func TestOutcome(t *testing.T) {
	jobWithRetries := func(n int32) entities.Job {
		return entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 1, Retries: n}}
	}
	retryable := ConvertToBPMNError(NewSearchTimeoutError("opportunity-lookup"))
	business := ConvertToBPMNError(NewInvalidWeightsError("negative"))

	assert.Equal(t, JobStatusFailed, Outcome(jobWithRetries(3), retryable))
	assert.Equal(t, JobStatusThrown, Outcome(jobWithRetries(0), retryable), "no retries left")
	assert.Equal(t, JobStatusThrown, Outcome(jobWithRetries(3), business))
}

func TestNormalize_RecordsWrappedCause(t *testing.T) {
	err := &wrappingCodedError{
		codedError: codedError{code: "DATA_FETCH_FAILED", retryable: true},
		cause:      NewQueryTimeoutError("funding_requests"),
	}

	stdErr := Normalize(err)
	assert.Equal(t, ErrCodeDataFetchFailed, stdErr.Code)
	assert.Equal(t, "QUERY_TIMEOUT: queryType: funding_requests", stdErr.Details)
}
