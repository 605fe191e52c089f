// Package deploy replays image records into a target account in dependency order.
package deploy

import (
	"errors"
	"fmt"

	"github.com/celerix-dev/celerix-aci/pkg/schema"
)

// DefaultMaxRounds bounds the number of resolution rounds.
const DefaultMaxRounds = 100

// ErrNoOrder is returned when records cannot be ordered: a dependency is
// missing from the set, the graph has a cycle, or it is deeper than the
// round bound.
var ErrNoOrder = errors.New("no deploy order")

// DependencyFunc lists the ids a record references.
type DependencyFunc func(*schema.Record) []string

// Resolver orders records so that dependencies come before dependents.
type Resolver struct {
	// MaxRounds bounds the resolution. Zero means DefaultMaxRounds.
	MaxRounds int
}

// Graph maps every record id with at least one dependency to its dependencies.
func Graph(records []*schema.Record, deps DependencyFunc) map[string][]string {
	graph := make(map[string][]string)
	for _, r := range records {
		if d := deps(r); len(d) > 0 {
			graph[r.ID()] = d
		}
	}
	return graph
}

// Order returns the record ids in deploy order.
//
// Each round resolves every record whose dependencies have all been
// resolved, in the order the records were given. The result is therefore
// deterministic for a given input order, and a dependency always precedes
// its dependents whatever the input order.
func (r Resolver) Order(records []*schema.Record, deps DependencyFunc) ([]string, error) {
	rounds := r.MaxRounds
	if rounds <= 0 {
		rounds = DefaultMaxRounds
	}

	graph := Graph(records, deps)

	var ids []string
	known := make(map[string]bool, len(records))
	for _, rec := range records {
		if id := rec.ID(); !known[id] {
			known[id] = true
			ids = append(ids, id)
		}
	}

	resolved := make(map[string]bool, len(ids))
	order := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := graph[id]; !ok {
			resolved[id] = true
			order = append(order, id)
		}
	}

	for round := 0; round < rounds && len(graph) > 0; round++ {
		for id := range graph {
			if resolved[id] {
				delete(graph, id)
			}
		}

		var ready []string
		for _, id := range ids {
			d, ok := graph[id]
			if ok && allResolved(d, resolved) {
				ready = append(ready, id)
			}
		}
		for _, id := range ready {
			resolved[id] = true
			order = append(order, id)
		}
	}

	if len(order) != len(ids) {
		return nil, fmt.Errorf("%w: resolved %d of %d records", ErrNoOrder, len(order), len(ids))
	}
	return order, nil
}

func allResolved(deps []string, resolved map[string]bool) bool {
	for _, d := range deps {
		if !resolved[d] {
			return false
		}
	}
	return true
}
