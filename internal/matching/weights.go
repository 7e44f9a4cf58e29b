// internal/matching/weights.go
package matching

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Criterion names a primary scoring criterion. The string value is also the weight key in storage.
type Criterion string

const (
	CriterionFundingType      Criterion = "fundingType"
	CriterionFundingAmount    Criterion = "fundingAmount"
	CriterionBusinessStage    Criterion = "businessStage"
	CriterionIndustry         Criterion = "industry"
	CriterionGeography        Criterion = "geography"
	CriterionRecencyBonus     Criterion = "recencyBonus"
	CriterionCompetitionBonus Criterion = "competitionBonus"
)

// Criteria lists the primary criteria in canonical order. Breakdowns, reasons and weight writes follow it.
var Criteria = []Criterion{
	CriterionFundingType,
	CriterionFundingAmount,
	CriterionBusinessStage,
	CriterionIndustry,
	CriterionGeography,
	CriterionRecencyBonus,
	CriterionCompetitionBonus,
}

// ParseCriterion resolves a stored weight key.
func ParseCriterion(name string) (Criterion, bool) {
	for _, c := range Criteria {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}

// WeightSet holds one weight per primary criterion. Omitted keys read as 0.
type WeightSet struct {
	FundingType      float64 `json:"fundingType"`
	FundingAmount    float64 `json:"fundingAmount"`
	BusinessStage    float64 `json:"businessStage"`
	Industry         float64 `json:"industry"`
	Geography        float64 `json:"geography"`
	RecencyBonus     float64 `json:"recencyBonus"`
	CompetitionBonus float64 `json:"competitionBonus"`
}

// DefaultWeights returns the compiled-in weights. They total 100.
func DefaultWeights() WeightSet {
	return WeightSet{
		FundingType:      20,
		FundingAmount:    20,
		BusinessStage:    15,
		Industry:         25,
		Geography:        10,
		RecencyBonus:     8,
		CompetitionBonus: 2,
	}
}

// Get returns the weight for c.
func (w WeightSet) Get(c Criterion) float64 {
	switch c {
	case CriterionFundingType:
		return w.FundingType
	case CriterionFundingAmount:
		return w.FundingAmount
	case CriterionBusinessStage:
		return w.BusinessStage
	case CriterionIndustry:
		return w.Industry
	case CriterionGeography:
		return w.Geography
	case CriterionRecencyBonus:
		return w.RecencyBonus
	case CriterionCompetitionBonus:
		return w.CompetitionBonus
	}
	return 0
}

// Set assigns the weight for c and reports whether c is known.
func (w *WeightSet) Set(c Criterion, v float64) bool {
	switch c {
	case CriterionFundingType:
		w.FundingType = v
	case CriterionFundingAmount:
		w.FundingAmount = v
	case CriterionBusinessStage:
		w.BusinessStage = v
	case CriterionIndustry:
		w.Industry = v
	case CriterionGeography:
		w.Geography = v
	case CriterionRecencyBonus:
		w.RecencyBonus = v
	case CriterionCompetitionBonus:
		w.CompetitionBonus = v
	default:
		return false
	}
	return true
}

// Sum returns the total of all weights.
func (w WeightSet) Sum() float64 {
	total := 0.0
	for _, c := range Criteria {
		total += w.Get(c)
	}
	return total
}

// Validate rejects negative or non-finite weights. Totals above 100 are allowed; the engine clamps.
func (w WeightSet) Validate() error {
	for _, c := range Criteria {
		if err := validateWeight(c, w.Get(c)); err != nil {
			return err
		}
	}
	return nil
}

func validateWeight(c Criterion, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("weight %s is not a finite number", c)
	}
	if v < 0 {
		return fmt.Errorf("negative weight for %s: %g", c, v)
	}
	return nil
}

// ToMap returns the weights keyed by criterion name.
func (w WeightSet) ToMap() map[string]float64 {
	out := make(map[string]float64, len(Criteria))
	for _, c := range Criteria {
		out[string(c)] = w.Get(c)
	}
	return out
}

// ApplyOverrides returns base with every known key of values applied.
// Unknown keys are returned so callers can decide whether they are an error.
func ApplyOverrides(base WeightSet, values map[string]float64) (WeightSet, []string) {
	out := base
	var unknown []string
	for name, v := range values {
		c, ok := ParseCriterion(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		out.Set(c, v)
	}
	sort.Strings(unknown)
	return out, unknown
}

// ParseWeightAssignments parses "name=value" pairs as used by the CLI.
func ParseWeightAssignments(pairs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected name=value, got %q", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", strings.TrimSpace(name), err)
		}
		out[strings.TrimSpace(name)] = v
	}
	return out, nil
}
