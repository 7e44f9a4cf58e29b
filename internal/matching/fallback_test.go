package matching

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreProfile(t *testing.T) {
	tests := []struct {
		name            string
		industry        string
		eligible        []string
		applications    int
		counts          map[string]int
		expectedScore   float64
		expectedReasons []string
	}{
		{
			name:            "industry and low competition",
			industry:        "agriculture",
			eligible:        []string{"Agriculture", "retail"},
			applications:    1,
			expectedScore:   50,
			expectedReasons: []string{ReasonIndustry, ReasonCompetition},
		},
		{
			name:            "industry only",
			industry:        "agriculture",
			eligible:        []string{"agriculture"},
			applications:    12,
			expectedScore:   40,
			expectedReasons: []string{ReasonIndustry},
		},
		{
			name:            "competition only",
			industry:        "mining",
			eligible:        []string{"agriculture"},
			applications:    0,
			expectedScore:   10,
			expectedReasons: []string{ReasonCompetition},
		},
		{
			name:            "nothing matched gets default reason",
			industry:        "mining",
			eligible:        []string{"agriculture"},
			applications:    7,
			expectedScore:   0,
			expectedReasons: []string{ReasonRecommended},
		},
		{
			name:            "blank industry never matches",
			industry:        "",
			eligible:        []string{""},
			applications:    9,
			expectedScore:   0,
			expectedReasons: []string{ReasonRecommended},
		},
		{
			name:            "profile application count overrides opportunity count",
			industry:        "mining",
			eligible:        []string{"agriculture"},
			applications:    1,
			counts:          map[string]int{"opp-debt-1": 8},
			expectedScore:   0,
			expectedReasons: []string{ReasonRecommended},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opp := createTestOpportunity()
			opp.Eligibility.Industries = tt.eligible
			opp.CurrentApplications = tt.applications
			profile := CoarseProfile{
				UserID:       "user-1",
				BusinessInfo: BusinessInfo{Industry: tt.industry},
				Meta:         ProfileMeta{ApplicationCounts: tt.counts},
			}

			result := ScoreProfile(opp, profile)

			assert.Equal(t, tt.expectedScore, result.Score)
			assert.Equal(t, tt.expectedReasons, result.Reasons)
			assert.NotEmpty(t, result.Reasons)
			require.Len(t, result.Breakdown, 2)
			assert.Equal(t, ProfileIndustryWeight, result.Breakdown[0].Weight)
			assert.Equal(t, ProfileCompetitionWeight, result.Breakdown[1].Weight)
		})
	}
}

func TestScoreProfile_IgnoresWeightSet(t *testing.T) {
	opp := createTestOpportunity()
	profile := CoarseProfile{BusinessInfo: BusinessInfo{Industry: "agriculture"}}

	// Same answer regardless of whatever primary weights are configured.
	assert.Equal(t, 50.0, ScoreProfile(opp, profile).Score)
}

func catalogWithPublishDates(n int) []Opportunity {
	catalog := make([]Opportunity, 0, n)
	for i := 0; i < n; i++ {
		published := daysAgo(20 - i*3)
		opp := createTestOpportunity()
		opp.ID = fmt.Sprintf("opp-%d", i)
		opp.PublishedAt = &published
		catalog = append(catalog, opp)
	}
	return catalog
}

func TestRankByRecency_TopThreeOfFive(t *testing.T) {
	catalog := catalogWithPublishDates(5) // opp-4 newest, opp-0 oldest

	results := RankByRecency(catalog, 3)

	require.Len(t, results, 3)
	assert.Equal(t, "opp-4", results[0].Opportunity.ID)
	assert.Equal(t, "opp-3", results[1].Opportunity.ID)
	assert.Equal(t, "opp-2", results[2].Opportunity.ID)
	for _, r := range results {
		assert.Equal(t, RecencyFlatScore, r.Score)
		assert.Equal(t, []string{ReasonRecent}, r.Reasons)
	}
}

func TestRankByRecency_FallsBackToCreatedAt(t *testing.T) {
	published := daysAgo(5)
	a := Opportunity{ID: "created-recently", CreatedAt: daysAgo(1)}
	b := Opportunity{ID: "published", CreatedAt: daysAgo(30), PublishedAt: &published}
	c := Opportunity{ID: "created-long-ago", CreatedAt: daysAgo(60)}

	results := RankByRecency([]Opportunity{c, b, a}, 0)

	require.Len(t, results, 3)
	assert.Equal(t, "created-recently", results[0].Opportunity.ID)
	assert.Equal(t, "published", results[1].Opportunity.ID)
	assert.Equal(t, "created-long-ago", results[2].Opportunity.ID)
}

func TestRankByRecency_EqualDatesKeepCatalogOrder(t *testing.T) {
	same := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	catalog := []Opportunity{
		{ID: "first", CreatedAt: same},
		{ID: "second", CreatedAt: same},
		{ID: "third", CreatedAt: same},
	}

	results := RankByRecency(catalog, 2)

	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].Opportunity.ID)
	assert.Equal(t, "second", results[1].Opportunity.ID)
}

func TestRankByRecency_DoesNotReorderInput(t *testing.T) {
	catalog := catalogWithPublishDates(4)
	RankByRecency(catalog, 2)
	assert.Equal(t, "opp-0", catalog[0].ID)
}
