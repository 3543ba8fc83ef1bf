package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/project-tktt/job-scout/internal/domain"
)

// Elasticsearch mirrors stored postings into a search index. Documents are
// keyed by URL, so re-indexing the same posting is an idempotent upsert.
type Elasticsearch struct {
	client    *elasticsearch.Client
	indexName string
}

// NewElasticsearch creates the search indexer and verifies connectivity.
func NewElasticsearch(addresses []string, indexName string) (*Elasticsearch, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
	})
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

	return &Elasticsearch{client: client, indexName: indexName}, nil
}

// BulkIndex indexes multiple records at once.
func (e *Elasticsearch) BulkIndex(ctx context.Context, recs []domain.Record) error {
	if len(recs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, rec := range recs {
		meta := map[string]any{
			"index": map[string]any{
				"_index": e.indexName,
				"_id":    rec.URL,
			},
		}
		metaBytes, _ := json.Marshal(meta)
		buf.Write(metaBytes)
		buf.WriteByte('\n')

		docBytes, err := json.Marshal(rec)
		if err != nil {
			log.Printf("marshal record %s: %v", rec.URL, err)
			continue
		}
		buf.Write(docBytes)
		buf.WriteByte('\n')
	}

	res, err := e.client.Bulk(bytes.NewReader(buf.Bytes()), e.client.Bulk.WithContext(ctx))
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
				log.Printf("bulk index error for %s: %s - %s",
					item.Index.ID, item.Index.Error.Type, item.Index.Error.Reason)
			}
		}
	}

	return nil
}

// EnsureIndex creates the index with field mappings if it doesn't exist.
func (e *Elasticsearch) EnsureIndex(ctx context.Context) error {
	res, err := e.client.Indices.Exists([]string{e.indexName})
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()

	if res.StatusCode == 200 {
		return nil
	}

	mapping := `{
		"mappings": {
			"properties": {
				"title": {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
				"company": {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
				"description": {"type": "text"},
				"url": {"type": "keyword"},
				"source": {"type": "keyword"},
				"status": {"type": "keyword"},
				"is_relevant": {"type": "boolean"},
				"relevance_reasoning": {"type": "text"},
				"region": {"type": "keyword"},
				"job_type": {"type": "keyword"},
				"experience": {"type": "text"},
				"salary": {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
				"posted_date": {"type": "date"},
				"notes": {"type": "text"}
			}
		}
	}`

	createRes, err := e.client.Indices.Create(
		e.indexName,
		e.client.Indices.Create.WithBody(bytes.NewReader([]byte(mapping))),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("create index error: %s", createRes.Status())
	}

	log.Printf("Created search index %s", e.indexName)
	return nil
}

var _ SearchIndexer = (*Elasticsearch)(nil)
