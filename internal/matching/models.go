// internal/matching/models.go
package matching

import (
	"time"

	"github.com/shopspring/decimal"
)

// FundingType is the financing instrument an opportunity offers.
type FundingType string

const (
	FundingTypeEquity           FundingType = "equity"
	FundingTypeDebt             FundingType = "debt"
	FundingTypeGrant            FundingType = "grant"
	FundingTypeMezzanine        FundingType = "mezzanine"
	FundingTypeConvertible      FundingType = "convertible"
	FundingTypePurchaseOrder    FundingType = "purchase-order"
	FundingTypeInvoiceFinancing FundingType = "invoice-financing"
)

// OpportunityStatus is the funder-side lifecycle state.
type OpportunityStatus string

const (
	StatusDraft           OpportunityStatus = "draft"
	StatusActive          OpportunityStatus = "active"
	StatusPaused          OpportunityStatus = "paused"
	StatusClosed          OpportunityStatus = "closed"
	StatusFullySubscribed OpportunityStatus = "fully-subscribed"
)

// EligibilityCriteria restricts who an opportunity is open to. Empty lists mean no restriction
// for geography; for industries and stages an empty list never intersects.
type EligibilityCriteria struct {
	Industries             []string `json:"industries"`
	BusinessStages         []string `json:"businessStages"`
	GeographicRestrictions []string `json:"geographicRestrictions"`
	CollateralRequired     bool     `json:"collateralRequired"`
}

// Opportunity is a funder's published financing offer. Read-only to scoring.
type Opportunity struct {
	ID                  string              `json:"id"`
	Title               string              `json:"title,omitempty"`
	FunderID            string              `json:"funderId,omitempty"`
	FundingTypes        []FundingType       `json:"fundingTypes"`
	MinInvestment       decimal.Decimal     `json:"minInvestment"`
	MaxInvestment       decimal.NullDecimal `json:"maxInvestment"`
	Eligibility         EligibilityCriteria `json:"eligibility"`
	CurrentApplications int                 `json:"currentApplications"`
	CreatedAt           time.Time           `json:"createdAt"`
	PublishedAt         *time.Time          `json:"publishedAt,omitempty"`
	Status              OpportunityStatus   `json:"status,omitempty"`
}

// PublishedOrCreated returns publishedAt when set, createdAt otherwise.
func (o Opportunity) PublishedOrCreated() time.Time {
	if o.PublishedAt != nil && !o.PublishedAt.IsZero() {
		return *o.PublishedAt
	}
	return o.CreatedAt
}

// ApplicantIntent is the applicant's current funding request (cover information).
type ApplicantIntent struct {
	UserID          string          `json:"userId,omitempty"`
	RequestedAmount decimal.Decimal `json:"requestedAmount"`
	FundingTypes    []FundingType   `json:"fundingTypes"`
	Industries      []string        `json:"industries"`
	BusinessStages  []string        `json:"businessStages"`
	Location        string          `json:"location"`
}

// BusinessInfo is the part of a coarse profile the fallback scorer reads.
type BusinessInfo struct {
	Industry string `json:"industry"`
}

// ProfileMeta carries per-opportunity application counts known for the applicant's view.
type ProfileMeta struct {
	ApplicationCounts map[string]int `json:"applicationCounts,omitempty"`
}

// CoarseProfile is used when no intent record exists.
type CoarseProfile struct {
	UserID       string       `json:"userId,omitempty"`
	BusinessInfo BusinessInfo `json:"businessInfo"`
	Meta         ProfileMeta  `json:"meta"`
}

// CriterionResult is one breakdown row.
type CriterionResult struct {
	Criterion    Criterion `json:"criterion"`
	Matched      bool      `json:"matched"`
	Weight       float64   `json:"weight"`
	Contribution float64   `json:"contribution"`
}

// MatchResult is the scored opportunity returned to callers.
type MatchResult struct {
	Opportunity Opportunity       `json:"opportunity"`
	Score       float64           `json:"score"`
	Reasons     []string          `json:"reasons"`
	Breakdown   []CriterionResult `json:"breakdown"`
}

// Strategy names the evaluation path the orchestrator took.
type Strategy string

const (
	StrategyNone    Strategy = "none"
	StrategyRecency Strategy = "recency"
	StrategyIntent  Strategy = "intent"
	StrategyProfile Strategy = "profile"
)

// Diagnostic reports a skipped record or a failed fetch without failing the batch.
type Diagnostic struct {
	Code          string `json:"code"`
	OpportunityID string `json:"opportunityId,omitempty"`
	Message       string `json:"message"`
}

// Suggestions is the orchestrator output.
type Suggestions struct {
	RequestID   string        `json:"requestId,omitempty"`
	Strategy    Strategy      `json:"strategy"`
	Results     []MatchResult `json:"suggestions"`
	Diagnostics []Diagnostic  `json:"diagnostics,omitempty"`
}
