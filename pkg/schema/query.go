package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Well-known query parameters understood by the data services.
const (
	ByGUID               = "byGuid"
	ByOwnerID            = "byOwnerId"
	OwnerID              = "ownerId"
	ByQualifiedFieldName = "byQualifiedFieldName"
)

// ErrQueryMissingService is returned by Validate for queries without a service.
var ErrQueryMissingService = errors.New("query does not have service set")

// Query selects entries from one endpoint of one service.
type Query struct {
	Service  string            `json:"service" yaml:"service"`
	Endpoint string            `json:"endpoint" yaml:"endpoint"`
	IDs      []string          `json:"ids,omitempty" yaml:"ids,omitempty"`
	Fields   []string          `json:"fields,omitempty" yaml:"fields,omitempty"`
	Params   map[string]string `json:"query,omitempty" yaml:"query,omitempty"`
}

// Validate checks that the query addresses an endpoint.
func (q Query) Validate() error {
	if q.Service == "" {
		return ErrQueryMissingService
	}
	if q.Endpoint == "" {
		return fmt.Errorf("query on %s does not have endpoint set", q.Service)
	}
	return nil
}

// With returns a copy of q with the parameter key set to value.
func (q Query) With(key, value string) Query {
	params := make(map[string]string, len(q.Params)+1)
	for k, v := range q.Params {
		params[k] = v
	}
	params[key] = value
	q.Params = params
	return q
}

// Param returns a query parameter, or "" when unset.
func (q Query) Param(key string) string {
	return q.Params[key]
}

func (q Query) String() string {
	var b strings.Builder
	b.WriteString(q.Service)
	b.WriteString("/")
	b.WriteString(q.Endpoint)

	keys := make([]string, 0, len(q.Params))
	for k := range q.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i == 0 {
			b.WriteString("?")
		} else {
			b.WriteString("&")
		}
		b.WriteString(k + "=" + q.Params[k])
	}
	return b.String()
}

// Page is the result of a query.
type Page struct {
	Namespace string           `json:"namespace,omitempty"`
	Entries   []map[string]any `json:"entries"`
}

// Len returns the number of entries on the page.
func (p *Page) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Entries)
}
