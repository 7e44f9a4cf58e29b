// internal/stores/catalog.go
package stores

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "funding-match-workers/internal/common/errors"
	"funding-match-workers/internal/common/logger"
	"funding-match-workers/internal/common/validation"
	"funding-match-workers/internal/matching"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ErrOpportunityNotFound is returned by GetOpportunity for an unknown id.
var ErrOpportunityNotFound = fmt.Errorf("opportunity not found")

// IndexMissingError reports that the catalog index itself does not exist.
type IndexMissingError struct {
	Index string
}

func (e *IndexMissingError) Error() string {
	return fmt.Sprintf("catalog index %q does not exist", e.Index)
}

// ElasticsearchCatalog reads active opportunities from a search index.
type ElasticsearchCatalog struct {
	client *elasticsearch.Client
	index  string
	size   int
	logger logger.Logger
}

func NewElasticsearchCatalog(client *elasticsearch.Client, index string, size int, log logger.Logger) *ElasticsearchCatalog {
	return &ElasticsearchCatalog{
		client: client,
		index:  index,
		size:   size,
		logger: log.WithFields(map[string]interface{}{"component": "catalog", "index": index}),
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string          `json:"_id"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type getResponse struct {
	ID     string          `json:"_id"`
	Found  bool            `json:"found"`
	Source json.RawMessage `json:"_source"`
}

// ListOpportunities returns every active opportunity, newest first. Documents that fail
// validation are dropped and reported as MALFORMED_RECORD diagnostics.
func (c *ElasticsearchCatalog) ListOpportunities(ctx context.Context) ([]matching.Opportunity, []matching.Diagnostic, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"status": string(matching.StatusActive)}},
				},
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"createdAt": map[string]interface{}{"order": "desc"}},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, nil, fmt.Errorf("encode catalog query: %w", err)
	}

	size := c.size
	req := esapi.SearchRequest{
		Index: []string{c.index},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, nil, &matching.DataFetchError{Source: "catalog", Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, nil, &matching.DataFetchError{
			Source: "catalog",
			Err:    apperrors.NewSearchQueryFailedError("list_opportunities", responseError(res)),
		}
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, nil, &matching.DataFetchError{Source: "catalog", Err: fmt.Errorf("decode search response: %w", err)}
	}

	opps := make([]matching.Opportunity, 0, len(parsed.Hits.Hits))
	var diags []matching.Diagnostic
	for _, hit := range parsed.Hits.Hits {
		opp, err := DecodeOpportunity(hit.ID, hit.Source)
		if err != nil {
			diags = append(diags, matching.DiagnosticFromError(hit.ID, err))
			continue
		}
		opps = append(opps, opp)
	}

	if len(diags) > 0 {
		c.logger.Warn("catalog documents skipped", map[string]interface{}{
			"skipped": len(diags),
			"loaded":  len(opps),
		})
	}
	return opps, diags, nil
}

// GetOpportunity fetches one opportunity by document id.
func (c *ElasticsearchCatalog) GetOpportunity(ctx context.Context, id string) (matching.Opportunity, error) {
	req := esapi.GetRequest{
		Index:      c.index,
		DocumentID: id,
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return matching.Opportunity{}, &matching.DataFetchError{Source: "catalog", Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		if bytes.Contains(body, []byte("index_not_found_exception")) {
			return matching.Opportunity{}, &IndexMissingError{Index: c.index}
		}
		return matching.Opportunity{}, fmt.Errorf("%w: %s", ErrOpportunityNotFound, id)
	}
	if res.IsError() {
		return matching.Opportunity{}, &matching.DataFetchError{
			Source: "catalog",
			Err:    apperrors.NewSearchQueryFailedError("get_opportunity", responseError(res)),
		}
	}

	var parsed getResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return matching.Opportunity{}, &matching.DataFetchError{Source: "catalog", Err: fmt.Errorf("decode get response: %w", err)}
	}
	if !parsed.Found {
		return matching.Opportunity{}, fmt.Errorf("%w: %s", ErrOpportunityNotFound, id)
	}
	return DecodeOpportunity(parsed.ID, parsed.Source)
}

// DecodeOpportunity validates a raw document and decodes it. A document without its own id
// takes the index id.
func DecodeOpportunity(docID string, source json.RawMessage) (matching.Opportunity, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(source, &raw); err != nil {
		return matching.Opportunity{}, &matching.MalformedRecordError{Kind: "opportunity", RecordID: docID, Reason: err.Error()}
	}
	if id, _ := raw["id"].(string); id == "" && docID != "" {
		raw["id"] = docID
	}

	result, err := validation.OpportunityDocument.ValidateValue(raw)
	if err != nil {
		return matching.Opportunity{}, &matching.MalformedRecordError{Kind: "opportunity", RecordID: docID, Reason: err.Error()}
	}
	if !result.Valid {
		return matching.Opportunity{}, &matching.MalformedRecordError{Kind: "opportunity", RecordID: docID, Reason: result.Error()}
	}

	normalized, err := json.Marshal(raw)
	if err != nil {
		return matching.Opportunity{}, &matching.MalformedRecordError{Kind: "opportunity", RecordID: docID, Reason: err.Error()}
	}
	var opp matching.Opportunity
	if err := json.Unmarshal(normalized, &opp); err != nil {
		return matching.Opportunity{}, &matching.MalformedRecordError{Kind: "opportunity", RecordID: docID, Reason: err.Error()}
	}
	return opp, nil
}

func responseError(res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	return fmt.Errorf("elasticsearch %s: %s", res.Status(), strings.TrimSpace(string(body)))
}

// DecodeCatalog decodes a JSON array of opportunity documents, such as a catalog passed in
// job variables or an exported file. Bad entries become diagnostics.
func DecodeCatalog(docs []json.RawMessage) ([]matching.Opportunity, []matching.Diagnostic) {
	opps := make([]matching.Opportunity, 0, len(docs))
	var diags []matching.Diagnostic
	for i, doc := range docs {
		var head struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(doc, &head)

		opp, err := DecodeOpportunity(head.ID, doc)
		if err != nil {
			label := head.ID
			if label == "" {
				label = fmt.Sprintf("#%d", i)
			}
			diags = append(diags, matching.DiagnosticFromError(label, err))
			continue
		}
		opps = append(opps, opp)
	}
	return opps, diags
}
