// internal/workers/matching/save-matching-weights/models.go
package savematchingweights

import "time"

type Input struct {
	Weights   map[string]float64 `json:"weights"`
	UpdatedBy string             `json:"updatedBy,omitempty"`
}

type Output struct {
	Weights map[string]float64 `json:"weights"`
	SavedAt time.Time          `json:"savedAt"`
}
