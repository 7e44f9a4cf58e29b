package validation

// OpportunityDocument checks catalog documents before they are decoded. Amounts may arrive
// as numbers or decimal strings.
var OpportunityDocument = MustCompile("opportunity", `{
  "type": "object",
  "required": ["id", "fundingTypes", "minInvestment", "createdAt"],
  "properties": {
    "id":            {"type": "string", "minLength": 1},
    "title":         {"type": "string"},
    "funderId":      {"type": "string"},
    "fundingTypes":  {"type": "array", "items": {"type": "string"}},
    "minInvestment": {"type": ["number", "string"]},
    "maxInvestment": {"type": ["number", "string", "null"]},
    "eligibility": {
      "type": "object",
      "properties": {
        "industries":             {"type": ["array", "null"], "items": {"type": "string"}},
        "businessStages":         {"type": ["array", "null"], "items": {"type": "string"}},
        "geographicRestrictions": {"type": ["array", "null"], "items": {"type": "string"}},
        "collateralRequired":     {"type": "boolean"}
      }
    },
    "currentApplications": {"type": "integer"},
    "createdAt":           {"type": "string", "format": "date-time"},
    "publishedAt":         {"type": ["string", "null"]},
    "status":              {"type": "string"}
  }
}`)

// MatchInput is the variable contract of the calculate-opportunity-match job. Whether the
// opportunity is given inline or by id is checked by the handler.
var MatchInput = MustCompile("match-input", `{
  "type": "object",
  "properties": {
    "opportunityId": {"type": "string"},
    "opportunity":   {"type": ["object", "null"]},
    "intent":        {"type": ["object", "null"]},
    "weights": {
      "type": ["object", "null"],
      "additionalProperties": {"type": "number"}
    }
  }
}`)

// SuggestionsInput is the variable contract of the get-opportunity-suggestions job.
var SuggestionsInput = MustCompile("suggestions-input", `{
  "type": "object",
  "properties": {
    "userId":     {"type": "string"},
    "maxResults": {"type": "integer", "minimum": 0, "maximum": 100},
    "intent":     {"type": ["object", "null"]},
    "profile":    {"type": ["object", "null"]}
  }
}`)

// WeightsInput is the variable contract of the save-matching-weights job.
var WeightsInput = MustCompile("weights-input", `{
  "type": "object",
  "required": ["weights"],
  "properties": {
    "weights": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {"type": "number", "minimum": 0}
    },
    "updatedBy":   {"type": "string"}
  }
}`)
