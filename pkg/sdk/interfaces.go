package sdk

import (
	"context"
	"errors"
	"io"

	"github.com/celerix-dev/celerix-aci/pkg/schema"
)

var (
	// ErrNotSignedIn is returned when an operation needs a user with a token.
	ErrNotSignedIn = errors.New("user must be signed in")
	// ErrRecordNotFound is returned when an update names an id the store does not hold.
	ErrRecordNotFound = errors.New("record not found")
	// ErrMissingOwner is returned when a record is saved without an ownerId.
	ErrMissingOwner = errors.New("record must include an ownerId field")
)

// --- Functional Interfaces (Interface Segregation) ---

// DataReader queries entries from a data service endpoint.
type DataReader interface {
	Get(ctx context.Context, user *schema.User, q schema.Query) (*schema.Page, error)
}

// DataWriter persists records. A record without an id is created and gets
// an id assigned, a record with an id replaces the stored entry.
type DataWriter interface {
	Save(ctx context.Context, user *schema.User, rec *schema.Record) (*schema.Record, error)
}

// --- Composite Interfaces ---

// DataClient reads and writes platform records.
type DataClient interface {
	DataReader
	DataWriter
}

// Store is a DataClient that owns resources which must be released.
type Store interface {
	DataClient
	io.Closer
}

// ExistsBy reports whether q matches at least one entry. The user must be
// signed in.
func ExistsBy(ctx context.Context, r DataReader, user *schema.User, q schema.Query) (bool, error) {
	if !user.SignedIn() {
		return false, ErrNotSignedIn
	}
	page, err := r.Get(ctx, user, q)
	if err != nil {
		return false, err
	}
	return page.Len() > 0, nil
}
