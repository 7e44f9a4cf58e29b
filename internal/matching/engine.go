// internal/matching/engine.go
package matching

import (
	"strings"
	"time"
)

const (
	// RecencyWindow is how old an opportunity may be and still earn the recency bonus.
	RecencyWindow = 7 * 24 * time.Hour
	// LowCompetitionThreshold is the exclusive application count below which competition is low.
	LowCompetitionThreshold = 5
	// MaxScore bounds every score.
	MaxScore = 100.0
)

// Reason texts, one per criterion.
const (
	ReasonFundingType   = "Matches your funding type"
	ReasonFundingAmount = "Funding amount fits your request"
	ReasonBusinessStage = "Suitable for your business stage"
	ReasonIndustry      = "Relevant to your industry"
	ReasonGeography     = "Available in your location"
	ReasonRecent        = "Recently published"
	ReasonCompetition   = "Low competition"
)

var reasons = map[Criterion]string{
	CriterionFundingType:      ReasonFundingType,
	CriterionFundingAmount:    ReasonFundingAmount,
	CriterionBusinessStage:    ReasonBusinessStage,
	CriterionIndustry:         ReasonIndustry,
	CriterionGeography:        ReasonGeography,
	CriterionRecencyBonus:     ReasonRecent,
	CriterionCompetitionBonus: ReasonCompetition,
}

// Engine scores one opportunity against one intent.
type Engine struct {
	now func() time.Time
}

func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// NewEngineWithClock is used where the evaluation instant must be controlled.
func NewEngineWithClock(now func() time.Time) *Engine {
	return &Engine{now: now}
}

// Now reads the engine clock once.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Score evaluates opportunity against intent at the current engine time.
func (e *Engine) Score(opp Opportunity, intent ApplicantIntent, weights WeightSet) MatchResult {
	return ScoreAt(opp, intent, weights, e.now())
}

// ScoreAt evaluates every criterion against a single evaluation instant.
func ScoreAt(opp Opportunity, intent ApplicantIntent, weights WeightSet, at time.Time) MatchResult {
	matched := map[Criterion]bool{
		CriterionFundingType:      intersects(intent.FundingTypes, opp.FundingTypes),
		CriterionFundingAmount:    amountFits(opp, intent),
		CriterionBusinessStage:    intersects(intent.BusinessStages, opp.Eligibility.BusinessStages),
		CriterionIndustry:         intersects(intent.Industries, opp.Eligibility.Industries),
		CriterionGeography:        locationAllowed(opp.Eligibility.GeographicRestrictions, intent.Location),
		CriterionRecencyBonus:     isRecent(opp.CreatedAt, at),
		CriterionCompetitionBonus: opp.CurrentApplications < LowCompetitionThreshold,
	}

	result := MatchResult{
		Opportunity: opp,
		Reasons:     []string{},
		Breakdown:   make([]CriterionResult, 0, len(Criteria)),
	}

	total := 0.0
	for _, c := range Criteria {
		w := effectiveWeight(weights.Get(c))
		row := CriterionResult{Criterion: c, Matched: matched[c], Weight: w}
		if row.Matched {
			row.Contribution = w
			total += w
			result.Reasons = append(result.Reasons, reasons[c])
		}
		result.Breakdown = append(result.Breakdown, row)
	}

	result.Score = clampScore(total)
	return result
}

// effectiveWeight maps negative and NaN weights to 0.
func effectiveWeight(w float64) float64 {
	if !(w > 0) {
		return 0
	}
	return w
}

func clampScore(total float64) float64 {
	if total > MaxScore {
		return MaxScore
	}
	if total < 0 {
		return 0
	}
	return total
}

func amountFits(opp Opportunity, intent ApplicantIntent) bool {
	if intent.RequestedAmount.LessThan(opp.MinInvestment) {
		return false
	}
	if opp.MaxInvestment.Valid && intent.RequestedAmount.GreaterThan(opp.MaxInvestment.Decimal) {
		return false
	}
	return true
}

// locationAllowed matches when there is no restriction or a restriction is contained in the
// applicant's location, case-insensitively. "Gauteng" matches "Johannesburg, Gauteng";
// "Western Cape" does not match "Cape Town".
func locationAllowed(restrictions []string, location string) bool {
	if len(restrictions) == 0 {
		return true
	}
	loc := strings.ToLower(location)
	for _, r := range restrictions {
		if r == "" {
			continue
		}
		if strings.Contains(loc, strings.ToLower(r)) {
			return true
		}
	}
	return false
}

// isRecent treats a zero createdAt as unknown. Future timestamps count as recent.
func isRecent(createdAt, at time.Time) bool {
	if createdAt.IsZero() {
		return false
	}
	return at.Sub(createdAt) <= RecencyWindow
}

func intersects[T ~string](a, b []T) bool {
	for _, x := range a {
		for _, y := range b {
			if strings.EqualFold(string(x), string(y)) {
				return true
			}
		}
	}
	return false
}
