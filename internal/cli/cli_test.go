package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"funding-match-workers/internal/admin"
	"funding-match-workers/internal/common/config"
	"funding-match-workers/internal/common/logger"
	"funding-match-workers/internal/matching"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes matchctl with args after resetting flag state left by earlier runs.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func writeFile(t *testing.T, name string, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func testCatalog(t *testing.T) string {
	now := time.Now().UTC()
	return writeFile(t, "catalog.json", []map[string]interface{}{
		{
			"id": "agri-loan", "title": "Agri Growth Loan", "fundingTypes": []string{"debt"},
			"minInvestment": 10000, "maxInvestment": 500000,
			"eligibility": map[string]interface{}{"industries": []string{"agriculture"}, "businessStages": []string{"growth"}},
			"currentApplications": 10, "createdAt": now.AddDate(0, 0, -30).Format(time.RFC3339),
		},
		{
			"id": "tech-grant", "title": "Tech Seed Grant", "fundingTypes": []string{"grant"},
			"minInvestment": 0, "maxInvestment": 50000,
			"eligibility": map[string]interface{}{"industries": []string{"technology"}},
			"currentApplications": 1, "createdAt": now.AddDate(0, 0, -1).Format(time.RFC3339),
		},
		{"title": "no id", "fundingTypes": []string{"grant"}, "minInvestment": 0, "createdAt": now.Format(time.RFC3339)},
	})
}

func TestSuggest_Anonymous(t *testing.T) {
	out, err := runCLI(t, "suggest", "--catalog", testCatalog(t))
	require.NoError(t, err)

	assert.Contains(t, out, "Strategy: recency")
	assert.Contains(t, out, "tech-grant")
	assert.Contains(t, out, "MALFORMED_RECORD")
}

func TestSuggest_IntentJSON(t *testing.T) {
	intent := writeFile(t, "intent.json", map[string]interface{}{
		"requestedAmount": 100000,
		"fundingTypes":    []string{"debt"},
		"industries":      []string{"agriculture"},
		"businessStages":  []string{"growth"},
	})

	out, err := runCLI(t, "suggest", "--catalog", testCatalog(t), "--intent", intent, "--user", "user-1", "--max", "1", "-o", "json")
	require.NoError(t, err)

	var got matching.Suggestions
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, matching.StrategyIntent, got.Strategy)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "agri-loan", got.Results[0].Opportunity.ID)
	assert.Len(t, got.Diagnostics, 1)
}

func TestSuggest_ProfileWithWeightsFile(t *testing.T) {
	profile := writeFile(t, "profile.json", map[string]interface{}{
		"businessInfo": map[string]string{"industry": "Technology"},
	})
	weights := writeFile(t, "weights.json", map[string]float64{"industry": 1})

	out, err := runCLI(t, "suggest", "--catalog", testCatalog(t), "--profile", profile, "--weights", weights, "--user", "user-2")
	require.NoError(t, err)
	assert.Contains(t, out, "Strategy: profile")
}

func TestSuggest_IntentWithoutUserIsAnonymous(t *testing.T) {
	intent := writeFile(t, "intent.json", map[string]interface{}{
		"fundingTypes": []string{"debt"},
		"industries":   []string{"agriculture"},
	})

	out, err := runCLI(t, "suggest", "--catalog", testCatalog(t), "--intent", intent)
	require.NoError(t, err)
	assert.Contains(t, out, "Strategy: recency")
}

func TestSuggest_Errors(t *testing.T) {
	_, err := runCLI(t, "suggest")
	assert.ErrorContains(t, err, "catalog")

	_, err = runCLI(t, "suggest", "--catalog", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = runCLI(t, "suggest", "--catalog", testCatalog(t), "-o", "yaml")
	assert.ErrorContains(t, err, "unknown output format")
}

// ==========================
// weights commands
// ==========================

const cliConfig = `
camunda:
  broker_address: localhost:26500
database:
  postgres:
    host: localhost
    database: funding
    user: matcher
    password: x
  elasticsearch:
    url: http://localhost:9200
  redis:
    address: localhost:6379
`

type memStore struct {
	values map[string]float64
	err    error
}

func (m *memStore) LoadWeights(ctx context.Context) (map[string]float64, error) {
	return m.values, nil
}

func (m *memStore) SaveWeight(ctx context.Context, name string, value float64) error {
	if m.err != nil {
		return m.err
	}
	m.values[name] = value
	return nil
}

func withFakeBackend(t *testing.T, store *memStore) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cliConfig), 0o600))

	orig := openWeightsService
	openWeightsService = func(ctx context.Context, cfg *config.Config, log logger.Logger) (*admin.WeightsService, func(), error) {
		provider := matching.NewWeightsProvider(store, logger.NewTestLogger(t))
		return admin.NewWeightsService(provider, nil, nil, logger.NewTestLogger(t)), func() {}, nil
	}
	t.Cleanup(func() { openWeightsService = orig })
	return path
}

func TestWeightsShow(t *testing.T) {
	store := &memStore{values: map[string]float64{"industry": 40}}
	cfg := withFakeBackend(t, store)

	out, err := runCLI(t, "weights", "show", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "industry")
	assert.Contains(t, out, "40 *")
	assert.Contains(t, out, "total")
}

func TestWeightsSet(t *testing.T) {
	store := &memStore{values: map[string]float64{}}
	cfg := withFakeBackend(t, store)

	_, err := runCLI(t, "weights", "set", "industry=30", "geography=5", "--by", "ops", "-c", cfg)
	require.NoError(t, err)
	assert.Equal(t, 30.0, store.values["industry"])
	assert.Equal(t, 5.0, store.values["geography"])
	assert.Equal(t, 20.0, store.values["fundingType"])
}

func TestWeightsSet_Rejected(t *testing.T) {
	store := &memStore{values: map[string]float64{}}
	cfg := withFakeBackend(t, store)

	_, err := runCLI(t, "weights", "set", "industry", "-c", cfg)
	assert.ErrorContains(t, err, "name=value")

	_, err = runCLI(t, "weights", "set", "luck=3", "-c", cfg)
	assert.ErrorContains(t, err, "Weight update rejected")

	for _, arg := range []string{"industry=30abc", "industry=1,5", "industry=3O", "industry=12.5%"} {
		_, err = runCLI(t, "weights", "set", arg, "-c", cfg)
		assert.ErrorContains(t, err, "invalid value for industry", arg)
	}
	assert.Empty(t, store.values)

	store.err = errors.New("permission denied")
	_, err = runCLI(t, "weights", "set", "industry=3", "-c", cfg)
	var partial *matching.PartialPersistenceError
	assert.True(t, errors.As(err, &partial))
}

func TestWeightsClearCache(t *testing.T) {
	cfg := withFakeBackend(t, &memStore{values: map[string]float64{}})

	out, err := runCLI(t, "weights", "clear-cache", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "cleared")
}

func TestVersion(t *testing.T) {
	SetVersionInfo("1.2.3", "abc", "today")
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "matchctl 1.2.3")
}
