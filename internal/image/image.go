// Package image holds snapshots of records captured from one account.
//
// An image is either untransformed (its records reference other records by
// account-bound URL) or transformed (every reference is portable). All
// records of an image share its state.
package image

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/celerix-dev/celerix-aci/internal/transform"
	"github.com/celerix-dev/celerix-aci/pkg/schema"
)

// State is the lifecycle state of an image.
type State string

const (
	Untransformed State = "untransformed"
	Transformed   State = "transformed"
)

// SchemaVersion is written to every saved image.
const SchemaVersion = 1

var (
	ErrAlreadyTransformed = errors.New("image is already transformed")
	ErrNotTransformed     = errors.New("image is not transformed")
	ErrUserMismatch       = errors.New("images must belong to the same user")
	ErrAccountMismatch    = errors.New("images must be taken from the same account")
	ErrStateMismatch      = errors.New("images must share the same state")
	ErrNotDeployable      = errors.New("image is not deployable")
)

// Image is a named, timestamped collection of records.
type Image struct {
	Name      string
	AccountID string
	DateTaken time.Time
	User      *schema.User
	Schema    int
	State     State
	Records   []*schema.Record
}

// New creates an untransformed image of records captured from accountID.
func New(accountID string, user *schema.User, records ...*schema.Record) *Image {
	return &Image{
		Name:      uuid.NewString(),
		AccountID: accountID,
		DateTaken: time.Now().UTC(),
		User:      user,
		Schema:    SchemaVersion,
		State:     Untransformed,
		Records:   records,
	}
}

// Find returns the record with the given id.
func (i *Image) Find(id string) (*schema.Record, bool) {
	for _, r := range i.Records {
		if r.ID() == id {
			return r, true
		}
	}
	return nil, false
}

// IDs lists the record ids in image order.
func (i *Image) IDs() []string {
	ids := make([]string, 0, len(i.Records))
	for _, r := range i.Records {
		ids = append(ids, r.ID())
	}
	return ids
}

// Files lists the image-relative record paths, sorted.
func (i *Image) Files() ([]string, error) {
	files := make([]string, 0, len(i.Records))
	for _, r := range i.Records {
		p, err := r.Filepath()
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", r.ID(), err)
		}
		files = append(files, p)
	}
	sort.Strings(files)
	return files, nil
}

// Merge returns a new image holding the records of both images. The images
// must belong to the same user and account and share a state.
func (i *Image) Merge(other *Image) (*Image, error) {
	if i.User.Name() != other.User.Name() {
		return nil, ErrUserMismatch
	}
	if i.AccountID != other.AccountID {
		return nil, ErrAccountMismatch
	}
	if i.State != other.State {
		return nil, ErrStateMismatch
	}
	merged := *i
	merged.Records = make([]*schema.Record, 0, len(i.Records)+len(other.Records))
	merged.Records = append(merged.Records, i.Records...)
	merged.Records = append(merged.Records, other.Records...)
	return &merged, nil
}

// Transform makes every record portable. The image is left unchanged when
// any record fails.
func (i *Image) Transform(ctx context.Context, codec *transform.Codec) error {
	if i.State == Transformed {
		return ErrAlreadyTransformed
	}
	out := make([]*schema.Record, len(i.Records))
	for n, r := range i.Records {
		c := r.Clone()
		if err := codec.Transform(ctx, c, i.User); err != nil {
			return fmt.Errorf("transform %s: %w", r.ID(), err)
		}
		out[n] = c
	}
	i.Records = out
	i.State = Transformed
	i.AccountID = ""
	return nil
}

// Untransform binds every record to target, resolving portable references
// against records that already exist there. The image is left unchanged
// when any record fails.
func (i *Image) Untransform(ctx context.Context, codec *transform.Codec, target string) error {
	if i.State != Transformed {
		return ErrNotTransformed
	}
	out := make([]*schema.Record, len(i.Records))
	for n, r := range i.Records {
		c := r.Clone()
		c.SetOwnerID(target)
		if err := codec.Untransform(ctx, c, i.User, target); err != nil {
			return fmt.Errorf("untransform %s: %w", r.ID(), err)
		}
		out[n] = c
	}
	i.Records = out
	i.State = Untransformed
	i.AccountID = target
	return nil
}

// Deployable returns nil when the image can be deployed: it is
// untransformed, not empty, and holds no unresolved reference sentinels.
func (i *Image) Deployable(codec *transform.Codec) error {
	if i.State != Untransformed {
		return fmt.Errorf("%w: state is %s", ErrNotDeployable, i.State)
	}
	if len(i.Records) == 0 {
		return fmt.Errorf("%w: no records", ErrNotDeployable)
	}
	for _, r := range i.Records {
		if bad := codec.UnresolvedReferences(r); len(bad) > 0 {
			return fmt.Errorf("%w: %s holds %s", ErrNotDeployable, r.ID(), bad[0])
		}
	}
	return nil
}
