// Package engine is an embedded, in-memory data platform. It stores records
// per account, answers the queries aci issues and persists each account to
// disk in the background.
package engine

import (
	"errors"
	"path"
	"strings"
)

var (
	// ErrUnknownEndpoint is returned when a service does not expose an endpoint.
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	// ErrDuplicateGUID is returned when a create would reuse a guid already
	// held by another record of the same endpoint and account.
	ErrDuplicateGUID = errors.New("guid already in use")
)

// Read-only fields maintained by the engine.
const (
	FieldAdded           = "added"
	FieldUpdated         = "updated"
	FieldAddedByUserID   = "addedByUserId"
	FieldUpdatedByUserID = "updatedByUserId"
	FieldVersion         = "version"
)

// collectionKey names the records of one endpoint: "<service>/<endpoint>".
func collectionKey(service, endpoint string) string {
	return path.Join(service, endpoint)
}

func splitCollectionKey(key string) (service, endpoint string) {
	i := strings.LastIndex(key, "/")
	if i < 0 {
		return key, ""
	}
	return key[:i], key[i+1:]
}

// accountData is [collection][id]fields for one account.
type accountData map[string]map[string]map[string]any
