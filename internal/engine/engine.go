// Package engine defines the engine-agnostic response shape and the client
// contract implemented by the search engine adapter.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"oc-search-go/internal/query"
)

// ErrTransport marks connection failures and timeouts. Batch imports retry
// on it; interactive requests surface it as a degraded-service response.
var ErrTransport = errors.New("search engine unavailable")

// TransportError wraps err so errors.Is(err, ErrTransport) holds.
func TransportError(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrTransport, err)
}

// Document is a flat field to value(s) map.
type Document map[string]interface{}

// ID returns the document identifier, or "" if it has none.
func (d Document) ID() string {
	if id, ok := d[query.IDField].(string); ok {
		return id
	}
	return ""
}

// FacetValue is one bucket of a facet distribution.
type FacetValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Response is what every engine search returns.
type Response struct {
	NumFound int                     `json:"num_found"`
	Start    int                     `json:"start"`
	Docs     []Document              `json:"docs"`
	Facets   map[string][]FacetValue `json:"facets"`
	// Highlighting maps document id to field to marked snippets.
	Highlighting map[string]map[string][]string `json:"highlighting,omitempty"`
	// Raw is the engine's wire response, kept for the raw output format.
	Raw json.RawMessage `json:"-"`
}

// Client is the full engine contract.
type Client interface {
	Search(ctx context.Context, d *query.Descriptor) (*Response, error)
	BulkIndex(ctx context.Context, index string, docs []Document) error
	// DeleteByQuery removes documents matching every filter; no filters
	// removes everything in the index.
	DeleteByQuery(ctx context.Context, index string, filters []query.Filter) error
	Commit(ctx context.Context, index string) error
}
