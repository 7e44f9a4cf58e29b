// internal/stores/weights_test.go
package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "funding-match-workers/internal/common/errors"
	"funding-match-workers/internal/common/logger"
	"funding-match-workers/internal/matching"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresWeightStore_LoadWeights(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectQuery(`SELECT name, value FROM "matching_weights"`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "value"}).
			AddRow("industry", 40.0).
			AddRow("legacyKey", 3.0))

	store := NewPostgresWeightStore(db, "")
	got, err := store.LoadWeights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"industry": 40, "legacyKey": 3}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWeightStore_LoadWeightsError(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectQuery(`SELECT name, value FROM "weights"`).WillReturnError(errors.New("relation does not exist"))

	_, err := NewPostgresWeightStore(db, "weights").LoadWeights(context.Background())

	var stdErr *apperrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, apperrors.ErrCodeQueryExecutionFailed, stdErr.Code)
	assert.Contains(t, stdErr.Details, "relation does not exist")
	assert.True(t, stdErr.Retryable)
}

func TestPostgresWeightStore_LoadWeightsDeadline(t *testing.T) {
	db, _ := setupMockDB(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := NewPostgresWeightStore(db, "").LoadWeights(ctx)

	var stdErr *apperrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, apperrors.ErrCodeQueryTimeout, stdErr.Code)
	assert.Contains(t, stdErr.Details, "load_weights")
}

func TestPostgresWeightStore_SaveWeightError(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec(`INSERT INTO "matching_weights"`).
		WithArgs("industry", 30.0).
		WillReturnError(errors.New("permission denied for table matching_weights"))

	err := NewPostgresWeightStore(db, "").SaveWeight(context.Background(), "industry", 30)

	var stdErr *apperrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, apperrors.ErrCodeQueryExecutionFailed, stdErr.Code)
	assert.Contains(t, stdErr.Details, "save_weight:industry")
	assert.Contains(t, stdErr.Details, "permission denied")
}

func TestPostgresWeightStore_SaveWeight(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectExec(`INSERT INTO "matching_weights"`).
		WithArgs("geography", 12.5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPostgresWeightStore(db, "matching_weights")
	require.NoError(t, store.SaveWeight(context.Background(), "geography", 12.5))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWeightStore_EnsureSchema(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "matching_weights"`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewPostgresWeightStore(db, "").EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWeightStore_WithProvider(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresWeightStore(db, "")
	provider := matching.NewWeightsProvider(store, logger.NewTestLogger(t))

	mock.ExpectQuery(`SELECT name, value FROM`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "value"}).AddRow("industry", 40.0))

	w := provider.GetWeights(context.Background())
	assert.Equal(t, 40.0, w.Industry)
	assert.Equal(t, matching.DefaultWeights().FundingType, w.FundingType)

	// third write fails: fundingType and fundingAmount are already stored
	next := matching.DefaultWeights()
	mock.ExpectExec(`INSERT INTO`).WithArgs("fundingType", next.FundingType).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO`).WithArgs("fundingAmount", next.FundingAmount).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO`).WithArgs("businessStage", next.BusinessStage).WillReturnError(errors.New("deadlock detected"))

	err := provider.SaveWeights(context.Background(), next)
	var partial *matching.PartialPersistenceError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, []string{"fundingType", "fundingAmount"}, partial.Written)
	assert.Equal(t, "businessStage", partial.Failed)

	cached, ok := provider.Cached()
	require.True(t, ok)
	assert.Equal(t, 40.0, cached.Industry)
	assert.NoError(t, mock.ExpectationsWereMet())
}
