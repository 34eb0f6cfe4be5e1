// Package indexer mirrors stored vacancies into Elasticsearch for the
// search frontend. The relational store stays the source of truth;
// the index is rebuilt or topped up after each pipeline run.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/dachjobs/go-crawler/internal/domain"
)

// ElasticsearchIndexer indexes vacancies keyed by fingerprint.
type ElasticsearchIndexer struct {
	client    *elasticsearch.Client
	indexName string
}

// NewElasticsearchIndexer creates an indexer and verifies the cluster
// is reachable.
func NewElasticsearchIndexer(addresses []string, indexName string) (*ElasticsearchIndexer, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("create es client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("es info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("es error: %s", res.Status())
	}

	return &ElasticsearchIndexer{client: client, indexName: indexName}, nil
}

// BulkIndex indexes a batch of vacancies with one bulk request.
// Individual document failures are logged, not returned.
func (i *ElasticsearchIndexer) BulkIndex(ctx context.Context, recs []*domain.VacancyRecord) error {
	if len(recs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, rec := range recs {
		meta := map[string]any{
			"index": map[string]any{
				"_index": i.indexName,
				"_id":    rec.Fingerprint,
			},
		}
		metaBytes, _ := json.Marshal(meta)
		buf.Write(metaBytes)
		buf.WriteByte('\n')

		docBytes, err := json.Marshal(rec)
		if err != nil {
			log.Printf("[Indexer] Marshal vacancy %s: %v", rec.Fingerprint, err)
			continue
		}
		buf.Write(docBytes)
		buf.WriteByte('\n')
	}

	res, err := i.client.Bulk(bytes.NewReader(buf.Bytes()), i.client.Bulk.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("bulk request: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk error: %s", res.Status())
	}

	var bulkRes struct {
		Errors bool `json:"errors"`
		Items  []struct {
			Index struct {
				ID     string `json:"_id"`
				Status int    `json:"status"`
				Error  struct {
					Type   string `json:"type"`
					Reason string `json:"reason"`
				} `json:"error"`
			} `json:"index"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkRes); err != nil {
		return fmt.Errorf("parse bulk response: %w", err)
	}
	if bulkRes.Errors {
		for _, item := range bulkRes.Items {
			if item.Index.Status >= 400 {
				log.Printf("[Indexer] Bulk error for %s: %s - %s",
					item.Index.ID, item.Index.Error.Type, item.Index.Error.Reason)
			}
		}
	}
	return nil
}

// EnsureIndex creates the vacancy index if it does not exist. German
// umlauts are folded so "München" and "Muenchen" search alike.
func (i *ElasticsearchIndexer) EnsureIndex(ctx context.Context) error {
	res, err := i.client.Indices.Exists([]string{i.indexName})
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	mapping := `{
		"settings": {
			"analysis": {
				"analyzer": {
					"german_folding": {
						"type": "custom",
						"tokenizer": "standard",
						"filter": ["lowercase", "german_normalization", "asciifolding"]
					}
				}
			}
		},
		"mappings": {
			"properties": {
				"fingerprint": {"type": "keyword"},
				"external_id": {"type": "keyword"},
				"title": {
					"type": "text",
					"analyzer": "german_folding",
					"fields": {"keyword": {"type": "keyword"}}
				},
				"translated_title": {"type": "text", "analyzer": "german_folding"},
				"company": {"type": "text", "analyzer": "german_folding"},
				"location": {"type": "keyword"},
				"country": {"type": "keyword"},
				"salary_min": {"type": "float"},
				"salary_max": {"type": "float"},
				"salary_is_predicted": {"type": "boolean"},
				"description": {"type": "text", "analyzer": "german_folding"},
				"created": {"type": "keyword"},
				"url": {"type": "keyword"},
				"search_query": {"type": "keyword"},
				"search_level": {"type": "keyword"},
				"first_seen": {"type": "date", "format": "yyyy-MM-dd"},
				"last_seen": {"type": "date", "format": "yyyy-MM-dd"},
				"source": {"type": "keyword"},
				"extracted_skills": {"type": "text"},
				"is_active": {"type": "boolean"}
			}
		}
	}`

	res, err = i.client.Indices.Create(
		i.indexName,
		i.client.Indices.Create.WithBody(bytes.NewReader([]byte(mapping))),
		i.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index error: %s", res.Status())
	}
	return nil
}
