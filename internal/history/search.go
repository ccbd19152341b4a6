package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"loan-eligibility/internal/common/database"
	apperrors "loan-eligibility/internal/common/errors"
	"loan-eligibility/internal/models"
)

// Query narrows a Search. Zero values match everything.
type Query struct {
	Interpretation string
	ModelVariant   string
	MinProbability *float64
	MaxProbability *float64
	From           int
	Size           int
}

type SearchResult struct {
	Records   []models.PredictionRecord `json:"records"`
	TotalHits int64                     `json:"totalHits"`
	TookMs    int64                     `json:"tookMs"`
}

// Searcher queries the prediction index the record worker writes to.
type Searcher struct {
	client *elasticsearch.Client
	index  string
}

func NewSearcher(es *database.ElasticsearchClient) *Searcher {
	return &Searcher{client: es.Client, index: es.Index}
}

// buildQuery turns q into a bool filter query, newest first. String fields
// are matched on their keyword sub-field from dynamic mapping.
func buildQuery(q Query) map[string]interface{} {
	filters := []interface{}{}
	if q.Interpretation != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"interpretation.keyword": q.Interpretation},
		})
	}
	if q.ModelVariant != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"modelVariant.keyword": q.ModelVariant},
		})
	}
	if q.MinProbability != nil || q.MaxProbability != nil {
		bounds := map[string]interface{}{}
		if q.MinProbability != nil {
			bounds["gte"] = *q.MinProbability
		}
		if q.MaxProbability != nil {
			bounds["lte"] = *q.MaxProbability
		}
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{"probability": bounds},
		})
	}

	query := map[string]interface{}{"match_all": map[string]interface{}{}}
	if len(filters) > 0 {
		query = map[string]interface{}{
			"bool": map[string]interface{}{"filter": filters},
		}
	}
	return map[string]interface{}{
		"query": query,
		"sort": []interface{}{
			map[string]interface{}{"createdAt": map[string]interface{}{"order": "desc", "unmapped_type": "date"}},
		},
	}
}

type searchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source models.PredictionRecord `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs q. A missing index means nothing was recorded yet and yields an
// empty result.
func (s *Searcher) Search(ctx context.Context, q Query) (*SearchResult, error) {
	from := q.From
	if from < 0 {
		from = 0
	}
	size := Filter{Limit: q.Size}.normalized().Limit

	body, err := json.Marshal(buildQuery(q))
	if err != nil {
		return nil, apperrors.NewSearchQueryFailedError(s.index, err)
	}
	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(body),
		From:  &from,
		Size:  &size,
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, apperrors.NewSearchQueryFailedError(s.index, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return &SearchResult{Records: []models.PredictionRecord{}}, nil
	}
	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return nil, apperrors.NewSearchQueryFailedError(s.index,
			fmt.Errorf("%s: %s", res.Status(), bytes.TrimSpace(msg)))
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, apperrors.NewSearchQueryFailedError(s.index, fmt.Errorf("decode response: %w", err))
	}

	result := &SearchResult{
		Records:   make([]models.PredictionRecord, 0, len(r.Hits.Hits)),
		TotalHits: r.Hits.Total.Value,
		TookMs:    r.Took,
	}
	for _, hit := range r.Hits.Hits {
		result.Records = append(result.Records, hit.Source)
	}
	return result, nil
}
