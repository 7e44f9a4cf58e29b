// internal/workers/matching/get-opportunity-suggestions/models.go
package getopportunitysuggestions

import (
	"encoding/json"

	"funding-match-workers/internal/matching"
)

// Input carries the job variables. A missing catalog is read from the search index, and a
// missing intent and profile are resolved from the applicant stores.
type Input struct {
	UserID     string                    `json:"userId"`
	MaxResults int                       `json:"maxResults"`
	Catalog    []json.RawMessage         `json:"catalog,omitempty"`
	Intent     *matching.ApplicantIntent `json:"intent,omitempty"`
	Profile    *matching.CoarseProfile   `json:"profile,omitempty"`
}

type Output struct {
	matching.Suggestions
}
