// internal/common/database/elasticsearch.go
package database

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"loan-eligibility/internal/common/config"

	"github.com/elastic/go-elasticsearch/v8"
)

// PredictionIndexMapping types the fields the history search filters and
// sorts on. Text fields keep a keyword sub-field, as dynamic mapping would.
const PredictionIndexMapping = `{
  "mappings": {
    "properties": {
      "id":             {"type": "keyword"},
      "probability":    {"type": "float"},
      "interpretation": {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "modelVariant":   {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "schemaVersion":  {"type": "keyword"},
      "createdAt":      {"type": "date"},
      "applicant":      {"type": "object"},
      "advice":         {"type": "text"}
    }
  }
}`

// ElasticsearchClient is the prediction search index connection.
type ElasticsearchClient struct {
	Client *elasticsearch.Client
	Index  string
}

func NewElasticsearch(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	addresses := cfg.Addresses
	if len(addresses) == 0 && cfg.URL != "" {
		addresses = []string{cfg.URL}
	}
	esCfg := elasticsearch.Config{
		Addresses: addresses,
	}

	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &ElasticsearchClient{Client: es, Index: cfg.Index}, nil
}

func (c *ElasticsearchClient) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := c.Client.Ping(
		c.Client.Ping.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping error: %s", res.Status())
	}

	return nil
}

// EnsureIndex creates the prediction index with PredictionIndexMapping unless
// it already exists.
func (c *ElasticsearchClient) EnsureIndex(ctx context.Context) error {
	res, err := c.Client.Indices.Exists([]string{c.Index}, c.Client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("index exists request failed: %w", err)
	}
	res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("index exists error: %s", res.Status())
	}

	res, err = c.Client.Indices.Create(c.Index,
		c.Client.Indices.Create.WithContext(ctx),
		c.Client.Indices.Create.WithBody(strings.NewReader(PredictionIndexMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		// another replica created it first
		if bytes.Contains(msg, []byte("resource_already_exists_exception")) {
			return nil
		}
		return fmt.Errorf("create index error: %s: %s", res.Status(), bytes.TrimSpace(msg))
	}
	return nil
}

// IndexDocument stores doc under id in index, replacing any previous version.
func IndexDocument(ctx context.Context, es *elasticsearch.Client, index, id string, doc interface{}) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	res, err := es.Index(
		index,
		bytes.NewReader(body),
		es.Index.WithContext(ctx),
		es.Index.WithDocumentID(id),
	)
	if err != nil {
		return fmt.Errorf("index request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index error: %s: %s", res.Status(), bytes.TrimSpace(msg))
	}
	return nil
}
