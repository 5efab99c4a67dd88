// Package es implements the search engine client over Elasticsearch.
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"oc-search-go/internal/config"
	"oc-search-go/internal/engine"
	"oc-search-go/internal/metrics"
	"oc-search-go/internal/query"
	"oc-search-go/internal/schema"
	"oc-search-go/pkg/log"
)

// Client talks to one Elasticsearch cluster. Index names from the schema are
// prefixed with the configured IndexPrefix.
type Client struct {
	es      *elasticsearch.Client
	prefix  string
	timeout time.Duration
}

var _ engine.Client = (*Client)(nil)

// NewClient builds a client from the engine configuration.
func NewClient(cfg config.ElasticsearchConfig) (*Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: strings.Split(cfg.Addresses, ","),
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{es: client, prefix: cfg.IndexPrefix, timeout: timeout}, nil
}

// IndexName returns the physical index for a schema index name.
func (c *Client) IndexName(name string) string {
	return c.prefix + name
}

// EnsureIndex creates the index for s with its field mapping when it does
// not exist yet.
func (c *Client) EnsureIndex(ctx context.Context, s *schema.Schema) error {
	index := c.IndexName(s.IndexName())
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := esapi.IndicesExistsRequest{Index: []string{index}}.Do(ctx, c.es)
	if err != nil {
		return engine.TransportError("index exists", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("[ES] index '%s' already exists", index)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("check index %s: unexpected status %d", index, res.StatusCode)
	}

	body, err := json.Marshal(Mapping(s))
	if err != nil {
		return err
	}
	res, err = esapi.IndicesCreateRequest{Index: index, Body: bytes.NewReader(body)}.Do(ctx, c.es)
	if err != nil {
		return engine.TransportError("create index", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index %s: %s", index, res.String())
	}
	log.Infof("[ES] index '%s' created", index)
	return nil
}

// Search runs d and decodes hits, facets and highlighting.
func (c *Client) Search(ctx context.Context, d *query.Descriptor) (*engine.Response, error) {
	op := "search"
	if d.MLT != nil {
		op = "mlt"
	}
	body, err := json.Marshal(BuildSearchBody(d, c.IndexName(d.Index)))
	if err != nil {
		return nil, fmt.Errorf("encode search body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	defer metrics.ObserveEngine(op, time.Now())

	res, err := esapi.SearchRequest{
		Index: []string{c.IndexName(d.Index)},
		Body:  bytes.NewReader(body),
	}.Do(ctx, c.es)
	if err != nil {
		return nil, engine.TransportError(op, err)
	}
	defer res.Body.Close()
	if err := checkResponse(op, res); err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, engine.TransportError(op, err)
	}
	resp, err := DecodeSearchResponse(raw)
	if err != nil {
		return nil, err
	}
	resp.Start = d.Start
	return resp, nil
}

// BulkIndex inserts or replaces docs, keyed by their id field.
func (c *Client) BulkIndex(ctx context.Context, index string, docs []engine.Document) error {
	if len(docs) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		meta := map[string]map[string]string{"index": {"_index": c.IndexName(index), "_id": doc.ID()}}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode document %s: %w", doc.ID(), err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	defer metrics.ObserveEngine("bulk", time.Now())

	res, err := esapi.BulkRequest{Body: &buf}.Do(ctx, c.es)
	if err != nil {
		return engine.TransportError("bulk", err)
	}
	defer res.Body.Close()
	if err := checkResponse("bulk", res); err != nil {
		return err
	}

	var out bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if !out.Errors {
		return nil
	}
	var failed []string
	for _, item := range out.Items {
		for _, r := range item {
			if r.Error != nil {
				failed = append(failed, fmt.Sprintf("%s: %s", r.ID, r.Error.Reason))
			}
		}
	}
	return fmt.Errorf("bulk index rejected %d documents: %s", len(failed), strings.Join(failed, "; "))
}

// DeleteByQuery removes documents matching every filter, or all documents
// when filters is empty.
func (c *Client) DeleteByQuery(ctx context.Context, index string, filters []query.Filter) error {
	q := map[string]interface{}{"match_all": map[string]interface{}{}}
	if len(filters) > 0 {
		q = map[string]interface{}{"bool": map[string]interface{}{"filter": filterClauses(filters, "")}}
	}
	body, err := json.Marshal(map[string]interface{}{"query": q})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	defer metrics.ObserveEngine("delete", time.Now())

	res, err := esapi.DeleteByQueryRequest{
		Index: []string{c.IndexName(index)},
		Body:  bytes.NewReader(body),
	}.Do(ctx, c.es)
	if err != nil {
		return engine.TransportError("delete by query", err)
	}
	defer res.Body.Close()
	return checkResponse("delete by query", res)
}

// Commit makes everything indexed so far visible to searches.
func (c *Client) Commit(ctx context.Context, index string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	defer metrics.ObserveEngine("refresh", time.Now())

	res, err := esapi.IndicesRefreshRequest{Index: []string{c.IndexName(index)}}.Do(ctx, c.es)
	if err != nil {
		return engine.TransportError("refresh", err)
	}
	defer res.Body.Close()
	return checkResponse("refresh", res)
}

// checkResponse treats gateway and availability statuses as transport errors
// so batch imports retry them.
func checkResponse(op string, res *esapi.Response) error {
	if !res.IsError() {
		return nil
	}
	switch res.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests:
		return engine.TransportError(op, errors.New(res.Status()))
	}
	return fmt.Errorf("%s: %s", op, res.String())
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}
