// Package stencil loads named, reusable lists of collect queries.
package stencil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/celerix-dev/celerix-aci/internal/collect"
	"github.com/celerix-dev/celerix-aci/pkg/schema"
)

var (
	// ErrNotParsable is returned when stencil content is neither JSON nor YAML.
	ErrNotParsable = errors.New("could not be parsed")
	// ErrQueriesNotArray is returned when the queries attribute is not a list.
	ErrQueriesNotArray = errors.New("queries is not a kind of Array")
	// ErrNoQueries is returned when a stencil without queries is turned into a collector.
	ErrNoQueries = errors.New("queries must contain entries")
)

// Stencil is a named list of queries to run against an account.
type Stencil struct {
	Name        string         `json:"name" yaml:"name"`
	OriginalURL string         `json:"original_url,omitempty" yaml:"original_url,omitempty"`
	Schema      int            `json:"schema,omitempty" yaml:"schema,omitempty"`
	Queries     []schema.Query `json:"queries" yaml:"queries"`
}

// ToCollector returns a collector running the stencil's queries.
func (s *Stencil) ToCollector(accountID string, user *schema.User) (*collect.Collector, error) {
	if len(s.Queries) == 0 {
		return nil, ErrNoQueries
	}
	queries := make([]schema.Query, len(s.Queries))
	copy(queries, s.Queries)
	return &collect.Collector{AccountID: accountID, User: user, Queries: queries}, nil
}

// Registry holds every stencil loaded so far, keyed by name.
type Registry struct {
	HTTPClient *http.Client

	mu       sync.RWMutex
	stencils map[string]*Stencil
}

// NewRegistry returns an empty registry fetching remote stencils with client.
// A nil client means http.DefaultClient.
func NewRegistry(client *http.Client) *Registry {
	if client == nil {
		client = http.DefaultClient
	}
	return &Registry{HTTPClient: client, stencils: map[string]*Stencil{}}
}

// Get returns the stencil registered under name.
func (r *Registry) Get(name string) (*Stencil, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stencils[name]
	return s, ok
}

// Names lists the registered stencil names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stencils))
	for n := range r.stencils {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) register(s *Stencil) *Stencil {
	r.mu.Lock()
	r.stencils[s.Name] = s
	r.mu.Unlock()
	return s
}

// Load accepts inline JSON, an http(s) URL or a file path, tried in that order.
func (r *Registry) Load(ctx context.Context, s string) (*Stencil, error) {
	if json.Valid([]byte(s)) {
		return r.LoadString(s)
	}
	if strings.HasPrefix(s, "http") {
		return r.LoadURL(ctx, s)
	}
	return r.LoadFile(s)
}

// LoadString parses and registers a JSON stencil.
func (r *Registry) LoadString(s string) (*Stencil, error) {
	st, err := parseJSON([]byte(s))
	if err != nil {
		return nil, err
	}
	return r.register(st), nil
}

// LoadFile reads and registers a stencil file. Files ending in .yaml or .yml
// are parsed as YAML, anything else as JSON.
func (r *Registry) LoadFile(file string) (*Stencil, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("could not find file %s", file)
		}
		return nil, err
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, fmt.Errorf("file %s is empty", file)
	}

	var st *Stencil
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		st, err = parseYAML(content)
	default:
		st, err = parseJSON(content)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	st.OriginalURL = file
	return r.register(st), nil
}

// LoadURL fetches and registers a JSON stencil.
func (r *Registry) LoadURL(ctx context.Context, raw string) (*Stencil, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%s is not a url", raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", raw, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %s", raw, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", raw, err)
	}
	st, err := parseJSON(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", raw, err)
	}
	st.OriginalURL = raw
	return r.register(st), nil
}

func parseJSON(data []byte) (*Stencil, error) {
	var doc struct {
		Name    string          `json:"name"`
		Schema  int             `json:"schema"`
		Queries json.RawMessage `json:"queries"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotParsable, err)
	}
	raw := bytes.TrimSpace(doc.Queries)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, ErrQueriesNotArray
	}

	st := &Stencil{Name: doc.Name, Schema: doc.Schema}
	if err := json.Unmarshal(raw, &st.Queries); err != nil {
		return nil, fmt.Errorf("%w: queries: %v", ErrNotParsable, err)
	}
	if st.Schema == 0 {
		st.Schema = 1
	}
	return st, nil
}

func parseYAML(data []byte) (*Stencil, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotParsable, err)
	}
	if _, ok := doc["queries"].([]any); !ok {
		return nil, ErrQueriesNotArray
	}

	var st Stencil
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotParsable, err)
	}
	if st.Schema == 0 {
		st.Schema = 1
	}
	return &st, nil
}
