// internal/stores/applicant_test.go
package stores

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	apperrors "funding-match-workers/internal/common/errors"
	"funding-match-workers/internal/common/logger"
	"funding-match-workers/internal/matching"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	return redis.NewClient(&redis.Options{Addr: mr.Addr()}), mr
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

const (
	intentQuery  = `SELECT requested_amount, funding_types, industries, business_stages, location FROM funding_requests`
	profileQuery = `SELECT industry FROM business_profiles WHERE user_id = \$1`
)

func intentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"requested_amount", "funding_types", "industries", "business_stages", "location"}).
		AddRow("250000.00", "{debt,grant}", "{technology}", "{growth}", "Cape Town")
}

func TestResolveContext_IntentFromDatabase(t *testing.T) {
	db, mock := setupMockDB(t)
	rdb, mr := setupRedis(t)

	mock.ExpectQuery(intentQuery).WithArgs("user-1").WillReturnRows(intentRows())

	source := NewPostgresContextSource(db, rdb, 5*time.Minute, logger.NewTestLogger(t))
	actx, err := source.ResolveContext(context.Background(), "user-1")
	require.NoError(t, err)

	ic, ok := actx.(matching.IntentContext)
	require.True(t, ok, "expected IntentContext, got %T", actx)
	assert.True(t, ic.Intent.RequestedAmount.Equal(decimal.NewFromInt(250000)))
	assert.Equal(t, []matching.FundingType{"debt", "grant"}, ic.Intent.FundingTypes)
	assert.Equal(t, []string{"technology"}, ic.Intent.Industries)
	assert.Equal(t, "Cape Town", ic.Intent.Location)

	assert.True(t, mr.Exists(applicantCacheKey("user-1")))
	ttl := mr.TTL(applicantCacheKey("user-1"))
	assert.Equal(t, 5*time.Minute, ttl)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveContext_ProfileFallback(t *testing.T) {
	db, mock := setupMockDB(t)
	rdb, _ := setupRedis(t)

	mock.ExpectQuery(intentQuery).WithArgs("user-2").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(profileQuery).WithArgs("user-2").
		WillReturnRows(sqlmock.NewRows([]string{"industry"}).AddRow("agriculture"))

	source := NewPostgresContextSource(db, rdb, time.Minute, logger.NewTestLogger(t))
	actx, err := source.ResolveContext(context.Background(), "user-2")
	require.NoError(t, err)

	pc, ok := actx.(matching.ProfileContext)
	require.True(t, ok)
	assert.Equal(t, "agriculture", pc.Profile.BusinessInfo.Industry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveContext_UnknownUserGetsEmptyProfile(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectQuery(intentQuery).WithArgs("ghost").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(profileQuery).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	source := NewPostgresContextSource(db, nil, time.Minute, logger.NewNoOpLogger())
	actx, err := source.ResolveContext(context.Background(), "ghost")
	require.NoError(t, err)

	pc, ok := actx.(matching.ProfileContext)
	require.True(t, ok)
	assert.Equal(t, "ghost", pc.Profile.UserID)
	assert.Empty(t, pc.Profile.BusinessInfo.Industry)
}

func TestResolveContext_CacheHitSkipsDatabase(t *testing.T) {
	db, mock := setupMockDB(t)
	rdb, mr := setupRedis(t)

	cached, _ := json.Marshal(cachedApplicant{
		Profile: &matching.CoarseProfile{UserID: "user-3", BusinessInfo: matching.BusinessInfo{Industry: "retail"}},
	})
	require.NoError(t, mr.Set(applicantCacheKey("user-3"), string(cached)))

	source := NewPostgresContextSource(db, rdb, time.Minute, logger.NewTestLogger(t))
	actx, err := source.ResolveContext(context.Background(), "user-3")
	require.NoError(t, err)

	pc, ok := actx.(matching.ProfileContext)
	require.True(t, ok)
	assert.Equal(t, "retail", pc.Profile.BusinessInfo.Industry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveContext_CorruptCacheEntryIsIgnored(t *testing.T) {
	db, mock := setupMockDB(t)
	rdb, mr := setupRedis(t)
	require.NoError(t, mr.Set(applicantCacheKey("user-1"), "{not json"))

	mock.ExpectQuery(intentQuery).WithArgs("user-1").WillReturnRows(intentRows())

	source := NewPostgresContextSource(db, rdb, time.Minute, logger.NewTestLogger(t))
	actx, err := source.ResolveContext(context.Background(), "user-1")
	require.NoError(t, err)
	assert.IsType(t, matching.IntentContext{}, actx)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveContext_DatabaseError(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectQuery(intentQuery).WithArgs("user-1").WillReturnError(errors.New("connection reset by peer"))

	source := NewPostgresContextSource(db, nil, time.Minute, logger.NewNoOpLogger())
	_, err := source.ResolveContext(context.Background(), "user-1")

	var fetch *matching.DataFetchError
	require.True(t, errors.As(err, &fetch))
	assert.Equal(t, "funding_requests", fetch.Source)

	var stdErr *apperrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, apperrors.ErrCodeQueryExecutionFailed, stdErr.Code)
	assert.Contains(t, stdErr.Details, "connection reset by peer")
	assert.Equal(t, apperrors.ErrCodeDataFetchFailed, apperrors.Normalize(err).Code)
}

func TestResolveContext_DeadlineIsQueryTimeout(t *testing.T) {
	db, _ := setupMockDB(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	source := NewPostgresContextSource(db, nil, time.Minute, logger.NewNoOpLogger())
	_, err := source.ResolveContext(ctx, "user-1")

	var fetch *matching.DataFetchError
	require.True(t, errors.As(err, &fetch))
	var stdErr *apperrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, apperrors.ErrCodeQueryTimeout, stdErr.Code)
	assert.Contains(t, stdErr.Details, "funding_requests")
}

func TestResolveContext_RedisDownStillResolves(t *testing.T) {
	db, mock := setupMockDB(t)
	rdb, mr := setupRedis(t)
	mr.Close()

	mock.ExpectQuery(intentQuery).WithArgs("user-1").WillReturnRows(intentRows())

	source := NewPostgresContextSource(db, rdb, time.Minute, logger.NewTestLogger(t))
	actx, err := source.ResolveContext(context.Background(), "user-1")
	require.NoError(t, err)
	assert.IsType(t, matching.IntentContext{}, actx)
}

func TestResolveContext_AnonymousAndInvalidate(t *testing.T) {
	rdb, mr := setupRedis(t)
	source := NewPostgresContextSource(nil, rdb, time.Minute, logger.NewNoOpLogger())

	actx, err := source.ResolveContext(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, matching.NoIdentity{}, actx)

	require.NoError(t, mr.Set(applicantCacheKey("user-9"), "{}"))
	require.NoError(t, source.Invalidate(context.Background(), "user-9"))
	assert.False(t, mr.Exists(applicantCacheKey("user-9")))
}
