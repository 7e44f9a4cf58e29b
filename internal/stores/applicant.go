// internal/stores/applicant.go
package stores

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"funding-match-workers/internal/common/logger"
	"funding-match-workers/internal/matching"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

const applicantCachePrefix = "matching:applicant:"

// PostgresContextSource resolves an applicant from their open funding request, falling back to
// the business profile. Resolved contexts are cached in Redis.
type PostgresContextSource struct {
	db     *sql.DB
	redis  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewPostgresContextSource(db *sql.DB, rdb *redis.Client, ttl time.Duration, log logger.Logger) *PostgresContextSource {
	return &PostgresContextSource{
		db:     db,
		redis:  rdb,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "applicant-context"}),
	}
}

// cachedApplicant is the Redis representation of a resolved context.
type cachedApplicant struct {
	Intent  *matching.ApplicantIntent `json:"intent,omitempty"`
	Profile *matching.CoarseProfile   `json:"profile,omitempty"`
}

func applicantCacheKey(userID string) string {
	return applicantCachePrefix + userID
}

// ResolveContext returns an IntentContext when the user has an open funding request and a
// ProfileContext otherwise.
func (s *PostgresContextSource) ResolveContext(ctx context.Context, userID string) (matching.ApplicantContext, error) {
	if userID == "" {
		return matching.NoIdentity{}, nil
	}

	if cached, ok := s.fromCache(ctx, userID); ok {
		return matching.ContextFor(userID, cached.Intent, cached.Profile), nil
	}

	var entry cachedApplicant
	intent, err := s.loadIntent(ctx, userID)
	if err != nil {
		return nil, err
	}
	entry.Intent = intent

	if intent == nil {
		profile, err := s.loadProfile(ctx, userID)
		if err != nil {
			return nil, err
		}
		if profile == nil {
			profile = &matching.CoarseProfile{UserID: userID}
		}
		entry.Profile = profile
	}

	s.toCache(ctx, userID, entry)
	return matching.ContextFor(userID, entry.Intent, entry.Profile), nil
}

// Invalidate drops the cached context, e.g. after the user edits their funding request.
func (s *PostgresContextSource) Invalidate(ctx context.Context, userID string) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Del(ctx, applicantCacheKey(userID)).Err()
}

func (s *PostgresContextSource) loadIntent(ctx context.Context, userID string) (*matching.ApplicantIntent, error) {
	intent := matching.ApplicantIntent{UserID: userID}
	var (
		fundingTypes pq.StringArray
		location     sql.NullString
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT requested_amount, funding_types, industries, business_stages, location
		 FROM funding_requests
		 WHERE user_id = $1 AND status = 'open'
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		userID,
	).Scan(
		&intent.RequestedAmount,
		&fundingTypes,
		pq.Array(&intent.Industries),
		pq.Array(&intent.BusinessStages),
		&location,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &matching.DataFetchError{Source: "funding_requests", Err: queryError(ctx, "funding_requests", err)}
	}

	intent.FundingTypes = make([]matching.FundingType, 0, len(fundingTypes))
	for _, ft := range fundingTypes {
		intent.FundingTypes = append(intent.FundingTypes, matching.FundingType(ft))
	}
	intent.Location = location.String
	return &intent, nil
}

func (s *PostgresContextSource) loadProfile(ctx context.Context, userID string) (*matching.CoarseProfile, error) {
	var industry sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT industry FROM business_profiles WHERE user_id = $1`,
		userID,
	).Scan(&industry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &matching.DataFetchError{Source: "business_profiles", Err: queryError(ctx, "business_profiles", err)}
	}

	return &matching.CoarseProfile{
		UserID:       userID,
		BusinessInfo: matching.BusinessInfo{Industry: industry.String},
	}, nil
}

func (s *PostgresContextSource) fromCache(ctx context.Context, userID string) (cachedApplicant, bool) {
	var entry cachedApplicant
	if s.redis == nil {
		return entry, false
	}

	data, err := s.redis.Get(ctx, applicantCacheKey(userID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("applicant cache read failed", map[string]interface{}{"userId": userID, "error": err})
		}
		return entry, false
	}
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		s.logger.Warn("discarding unreadable applicant cache entry", map[string]interface{}{"userId": userID, "error": err})
		return entry, false
	}
	return entry, true
}

func (s *PostgresContextSource) toCache(ctx context.Context, userID string, entry cachedApplicant) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, applicantCacheKey(userID), data, s.ttl).Err(); err != nil {
		s.logger.Warn("applicant cache write failed", map[string]interface{}{
			"userId": userID,
			"error":  fmt.Sprintf("%v", err),
		})
	}
}
