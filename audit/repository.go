// audit/repository.go
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

type Repository interface {
	Append(ctx context.Context, entry Entry) error
	QueryByPatient(ctx context.Context, patientID string, from, to time.Time, limit int) ([]Entry, error)
	QueryByActor(ctx context.Context, actorID string, from, to time.Time, limit int) ([]Entry, error)
	RecentEntries(ctx context.Context, from, to time.Time, limit int) ([]Entry, error)
}

type ElasticsearchRepository struct {
	esClient *elasticsearch.Client
	index    string
}

// NewElasticsearchRepository creates a new repository writing to the given
// index on the given Elasticsearch URL.
func NewElasticsearchRepository(esURL, index string) (*ElasticsearchRepository, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{esURL},
	}
	esClient, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &ElasticsearchRepository{esClient: esClient, index: index}, nil
}

// Append indexes one audit entry. The document ID is the entry ID, so a
// retried append of the same entry overwrites instead of duplicating.
func (r *ElasticsearchRepository) Append(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      r.index,
		DocumentID: entry.ID,
		Body:       strings.NewReader(string(data)),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, r.esClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing document: %s", res.String())
	}

	return nil
}

func (r *ElasticsearchRepository) QueryByPatient(ctx context.Context, patientID string, from, to time.Time, limit int) ([]Entry, error) {
	return r.query(ctx, "patient_id", patientID, from, to, limit)
}

func (r *ElasticsearchRepository) QueryByActor(ctx context.Context, actorID string, from, to time.Time, limit int) ([]Entry, error) {
	return r.query(ctx, "actor_id", actorID, from, to, limit)
}

// RecentEntries returns entries in the time range regardless of subject.
func (r *ElasticsearchRepository) RecentEntries(ctx context.Context, from, to time.Time, limit int) ([]Entry, error) {
	return r.query(ctx, "", "", from, to, limit)
}

func (r *ElasticsearchRepository) query(ctx context.Context, field, value string, from, to time.Time, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	must := []interface{}{
		map[string]interface{}{
			"range": map[string]interface{}{
				"timestamp": map[string]interface{}{
					"gte": from.Format(time.RFC3339),
					"lte": to.Format(time.RFC3339),
				},
			},
		},
	}
	if value != "" {
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{
				field: value,
			},
		})
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": must,
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"timestamp": map[string]interface{}{"order": "desc"}},
		},
		"size": limit,
	}

	var buf strings.Builder
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, err
	}

	res, err := r.esClient.Search(
		r.esClient.Search.WithContext(ctx),
		r.esClient.Search.WithIndex(r.index),
		r.esClient.Search.WithBody(strings.NewReader(buf.String())),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("error searching documents: %s", res.String())
	}

	var rmap map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&rmap); err != nil {
		return nil, err
	}

	hits := rmap["hits"].(map[string]interface{})["hits"].([]interface{})
	entries := make([]Entry, len(hits))
	for i, hit := range hits {
		source := hit.(map[string]interface{})["_source"]
		data, _ := json.Marshal(source)
		json.Unmarshal(data, &entries[i])
	}

	return entries, nil
}
