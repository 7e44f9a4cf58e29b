// internal/matching/fallback.go
package matching

import (
	"sort"
)

// Fixed weights of the coarse-profile scorer. They do not come from the WeightSet.
const (
	ProfileIndustryWeight    = 40.0
	ProfileCompetitionWeight = 10.0
	RecencyFlatScore         = 50.0

	ReasonRecommended = "Recommended for you"
)

// ScoreProfile scores an opportunity against a coarse profile using industry and competition only.
// The result always carries at least one reason.
func ScoreProfile(opp Opportunity, profile CoarseProfile) MatchResult {
	industry := profile.BusinessInfo.Industry != "" &&
		intersects([]string{profile.BusinessInfo.Industry}, opp.Eligibility.Industries)

	applications := opp.CurrentApplications
	if n, ok := profile.Meta.ApplicationCounts[opp.ID]; ok {
		applications = n
	}
	lowCompetition := applications < LowCompetitionThreshold

	result := MatchResult{
		Opportunity: opp,
		Reasons:     []string{},
		Breakdown: []CriterionResult{
			{Criterion: CriterionIndustry, Matched: industry, Weight: ProfileIndustryWeight},
			{Criterion: CriterionCompetitionBonus, Matched: lowCompetition, Weight: ProfileCompetitionWeight},
		},
	}

	total := 0.0
	for i := range result.Breakdown {
		row := &result.Breakdown[i]
		if !row.Matched {
			continue
		}
		row.Contribution = row.Weight
		total += row.Weight
		result.Reasons = append(result.Reasons, reasons[row.Criterion])
	}
	if len(result.Reasons) == 0 {
		result.Reasons = append(result.Reasons, ReasonRecommended)
	}

	result.Score = clampScore(total)
	return result
}

// RankByRecency orders the catalog newest first by publishedAt (createdAt when unset) and keeps
// the first limit entries, each with the flat recency score. A non-positive limit keeps all.
func RankByRecency(catalog []Opportunity, limit int) []MatchResult {
	ordered := make([]Opportunity, len(catalog))
	copy(ordered, catalog)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].PublishedOrCreated().After(ordered[j].PublishedOrCreated())
	})

	if limit > 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}

	results := make([]MatchResult, 0, len(ordered))
	for _, opp := range ordered {
		results = append(results, recencyResult(opp))
	}
	return results
}

func recencyResult(opp Opportunity) MatchResult {
	return MatchResult{
		Opportunity: opp,
		Score:       RecencyFlatScore,
		Reasons:     []string{ReasonRecent},
		Breakdown: []CriterionResult{
			{Criterion: CriterionRecencyBonus, Matched: true, Weight: RecencyFlatScore, Contribution: RecencyFlatScore},
		},
	}
}
