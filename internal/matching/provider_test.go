// internal/matching/provider_test.go
package matching

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"funding-match-workers/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWeightStore struct {
	mu              sync.Mutex
	LoadWeightsFunc func(ctx context.Context) (map[string]float64, error)
	SaveWeightFunc  func(ctx context.Context, name string, value float64) error
	loads           int
	saved           []string
}

func (m *mockWeightStore) LoadWeights(ctx context.Context) (map[string]float64, error) {
	m.mu.Lock()
	m.loads++
	m.mu.Unlock()
	if m.LoadWeightsFunc == nil {
		return map[string]float64{}, nil
	}
	return m.LoadWeightsFunc(ctx)
}

func (m *mockWeightStore) SaveWeight(ctx context.Context, name string, value float64) error {
	if m.SaveWeightFunc != nil {
		if err := m.SaveWeightFunc(ctx, name, value); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.saved = append(m.saved, name)
	m.mu.Unlock()
	return nil
}

func TestGetWeights_NoStoreServesDefaults(t *testing.T) {
	p := NewWeightsProvider(nil, logger.NewNoOpLogger())
	assert.Equal(t, DefaultWeights(), p.GetWeights(context.Background()))
}

func TestGetWeights_StoreErrorServesDefaults(t *testing.T) {
	store := &mockWeightStore{
		LoadWeightsFunc: func(ctx context.Context) (map[string]float64, error) {
			return nil, errors.New("relation matching_weights does not exist")
		},
	}
	p := NewWeightsProvider(store, logger.NewTestLogger(t))

	w := p.GetWeights(context.Background())

	assert.Equal(t, DefaultWeights(), w)
	assert.Equal(t, 100.0, w.Sum())
}

func TestGetWeights_AppliesStoredOverrides(t *testing.T) {
	store := &mockWeightStore{
		LoadWeightsFunc: func(ctx context.Context) (map[string]float64, error) {
			return map[string]float64{
				"industry":     40,
				"geography":    0,
				"popularity":   12,
				"recencyBonus": math.NaN(),
				"fundingType":  -3,
			}, nil
		},
	}
	p := NewWeightsProvider(store, logger.NewTestLogger(t))

	w := p.GetWeights(context.Background())

	expected := DefaultWeights()
	expected.Industry = 40
	expected.Geography = 0
	assert.Equal(t, expected, w)
}

func TestGetWeights_IsMemoized(t *testing.T) {
	store := &mockWeightStore{}
	p := NewWeightsProvider(store, logger.NewNoOpLogger())

	p.GetWeights(context.Background())
	p.GetWeights(context.Background())
	p.GetWeights(context.Background())

	assert.Equal(t, 1, store.loads)
}

func TestGetWeights_FailedLoadIsCached(t *testing.T) {
	store := &mockWeightStore{
		LoadWeightsFunc: func(ctx context.Context) (map[string]float64, error) {
			return nil, errors.New("down")
		},
	}
	p := NewWeightsProvider(store, logger.NewNoOpLogger())

	p.GetWeights(context.Background())
	p.GetWeights(context.Background())

	assert.Equal(t, 1, store.loads)
}

func TestClearCache_ForcesReload(t *testing.T) {
	industry := 25.0
	store := &mockWeightStore{
		LoadWeightsFunc: func(ctx context.Context) (map[string]float64, error) {
			return map[string]float64{"industry": industry}, nil
		},
	}
	p := NewWeightsProvider(store, logger.NewNoOpLogger())

	assert.Equal(t, 25.0, p.GetWeights(context.Background()).Industry)

	industry = 35
	assert.Equal(t, 25.0, p.GetWeights(context.Background()).Industry)

	p.ClearCache()
	_, ok := p.Cached()
	assert.False(t, ok)
	assert.Equal(t, 35.0, p.GetWeights(context.Background()).Industry)
	assert.Equal(t, 2, store.loads)
}

func TestReload_KeepsCachedWeightsOnStoreError(t *testing.T) {
	fail := false
	store := &mockWeightStore{
		LoadWeightsFunc: func(ctx context.Context) (map[string]float64, error) {
			if fail {
				return nil, errors.New("too many connections")
			}
			return map[string]float64{"industry": 60}, nil
		},
	}
	p := NewWeightsProvider(store, logger.NewTestLogger(t))
	require.Equal(t, 60.0, p.GetWeights(context.Background()).Industry)

	fail = true
	w, err := p.Reload(context.Background())
	assert.ErrorContains(t, err, "too many connections")
	assert.Equal(t, 60.0, w.Industry)

	cached, ok := p.Cached()
	require.True(t, ok)
	assert.Equal(t, 60.0, cached.Industry)
	assert.Equal(t, 2, store.loads)
}

func TestReload_ErrorWithEmptyCacheServesDefaults(t *testing.T) {
	store := &mockWeightStore{
		LoadWeightsFunc: func(ctx context.Context) (map[string]float64, error) {
			return nil, errors.New("timeout")
		},
	}
	p := NewWeightsProvider(store, logger.NewTestLogger(t))

	w, err := p.Reload(context.Background())
	assert.Error(t, err)
	assert.Equal(t, DefaultWeights(), w)
	assert.Equal(t, DefaultWeights(), p.GetWeights(context.Background()))
	assert.Equal(t, 1, store.loads)
}

func TestGetWeights_ConcurrentCallers(t *testing.T) {
	p := NewWeightsProvider(&mockWeightStore{}, logger.NewNoOpLogger())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, DefaultWeights(), p.GetWeights(context.Background()))
		}()
	}
	wg.Wait()
}

func TestSaveWeights_Success(t *testing.T) {
	store := &mockWeightStore{}
	p := NewWeightsProvider(store, logger.NewTestLogger(t))
	w := DefaultWeights()
	w.Industry = 30
	w.CompetitionBonus = 0

	require.NoError(t, p.SaveWeights(context.Background(), w))

	expectedOrder := make([]string, 0, len(Criteria))
	for _, c := range Criteria {
		expectedOrder = append(expectedOrder, string(c))
	}
	assert.Equal(t, expectedOrder, store.saved)

	cached, ok := p.Cached()
	require.True(t, ok)
	assert.Equal(t, w, cached)
	assert.Equal(t, 0, store.loads)
}

func TestSaveWeights_PartialFailureLeavesCacheUntouched(t *testing.T) {
	store := &mockWeightStore{}
	calls := 0
	store.SaveWeightFunc = func(ctx context.Context, name string, value float64) error {
		calls++
		if calls == 3 {
			return errors.New("deadlock detected")
		}
		return nil
	}
	p := NewWeightsProvider(store, logger.NewTestLogger(t))
	before := p.GetWeights(context.Background())

	update := WeightSet{FundingType: 10, FundingAmount: 10, BusinessStage: 10, Industry: 10, Geography: 10}
	err := p.SaveWeights(context.Background(), update)

	require.Error(t, err)
	var partial *PartialPersistenceError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, []string{string(Criteria[0]), string(Criteria[1])}, partial.Written)
	assert.Equal(t, string(Criteria[2]), partial.Failed)
	assert.Equal(t, CodePartialPersistence, partial.ErrorCode())
	assert.False(t, partial.IsRetryable())
	assert.Equal(t, 3, calls)

	cached, ok := p.Cached()
	require.True(t, ok)
	assert.Equal(t, before, cached)
}

func TestSaveWeights_RejectsInvalidValues(t *testing.T) {
	store := &mockWeightStore{}
	p := NewWeightsProvider(store, logger.NewNoOpLogger())

	for _, bad := range []float64{-1, math.NaN(), math.Inf(1)} {
		w := DefaultWeights()
		w.Geography = bad
		assert.Error(t, p.SaveWeights(context.Background(), w))
	}
	assert.Empty(t, store.saved)
}

func TestSaveWeights_NoStore(t *testing.T) {
	p := NewWeightsProvider(nil, logger.NewNoOpLogger())

	err := p.SaveWeights(context.Background(), DefaultWeights())

	assert.ErrorIs(t, err, ErrNoWeightStore)
	_, ok := p.Cached()
	assert.False(t, ok)
}
