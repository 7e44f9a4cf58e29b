// internal/matching/normalize.go
package matching

import (
	"strings"
)

// NormalizeOpportunity fills missing lists with empty ones and trims text. Records that cannot
// be scored at all are rejected with a MalformedRecordError.
func NormalizeOpportunity(o Opportunity) (Opportunity, error) {
	o.ID = strings.TrimSpace(o.ID)
	if o.ID == "" {
		return o, &MalformedRecordError{Kind: "opportunity", Reason: "missing id"}
	}

	o.FundingTypes = cleanFundingTypes(o.FundingTypes)
	o.Eligibility.Industries = cleanStrings(o.Eligibility.Industries)
	o.Eligibility.BusinessStages = cleanStrings(o.Eligibility.BusinessStages)
	o.Eligibility.GeographicRestrictions = cleanStrings(o.Eligibility.GeographicRestrictions)

	if o.MinInvestment.IsNegative() {
		return o, &MalformedRecordError{Kind: "opportunity", RecordID: o.ID, Reason: "negative minInvestment"}
	}
	if o.MaxInvestment.Valid {
		if o.MaxInvestment.Decimal.IsNegative() {
			return o, &MalformedRecordError{Kind: "opportunity", RecordID: o.ID, Reason: "negative maxInvestment"}
		}
		if o.MaxInvestment.Decimal.LessThan(o.MinInvestment) {
			return o, &MalformedRecordError{Kind: "opportunity", RecordID: o.ID, Reason: "maxInvestment below minInvestment"}
		}
	}
	if o.CurrentApplications < 0 {
		return o, &MalformedRecordError{Kind: "opportunity", RecordID: o.ID, Reason: "negative currentApplications"}
	}

	return o, nil
}

// NormalizeIntent fills missing lists and rejects a negative requested amount.
func NormalizeIntent(in ApplicantIntent) (ApplicantIntent, error) {
	in.FundingTypes = cleanFundingTypes(in.FundingTypes)
	in.Industries = cleanStrings(in.Industries)
	in.BusinessStages = cleanStrings(in.BusinessStages)
	in.Location = strings.TrimSpace(in.Location)

	if in.RequestedAmount.IsNegative() {
		return in, &MalformedRecordError{Kind: "intent", RecordID: in.UserID, Reason: "negative requestedAmount"}
	}
	return in, nil
}

func cleanStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func cleanFundingTypes(values []FundingType) []FundingType {
	out := make([]FundingType, 0, len(values))
	for _, v := range values {
		if t := strings.ToLower(strings.TrimSpace(string(v))); t != "" {
			out = append(out, FundingType(t))
		}
	}
	return out
}
