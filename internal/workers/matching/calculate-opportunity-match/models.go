// internal/workers/matching/calculate-opportunity-match/models.go
package calculateopportunitymatch

import (
	"encoding/json"

	"funding-match-workers/internal/matching"
)

// Input scores one opportunity. Either the document itself or its id must be given.
type Input struct {
	OpportunityID string                   `json:"opportunityId,omitempty"`
	Opportunity   json.RawMessage          `json:"opportunity,omitempty"`
	Intent        matching.ApplicantIntent `json:"intent"`
	Weights       map[string]float64       `json:"weights,omitempty"`
}

type Output struct {
	matching.MatchResult
}
