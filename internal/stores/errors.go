// internal/stores/errors.go
package stores

import (
	"context"
	"errors"

	apperrors "funding-match-workers/internal/common/errors"
)

// queryError maps a failed database call onto the shared error codes. A call cut short by
// the context deadline is a timeout; anything else is an execution failure.
func queryError(ctx context.Context, queryType string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.NewQueryTimeoutError(queryType)
	}
	return apperrors.NewQueryExecutionFailedError(queryType, err)
}
