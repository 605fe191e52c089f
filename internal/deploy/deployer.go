package deploy

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/celerix-dev/celerix-aci/internal/image"
	"github.com/celerix-dev/celerix-aci/internal/transform"
	"github.com/celerix-dev/celerix-aci/pkg/schema"
	"github.com/celerix-dev/celerix-aci/pkg/sdk"
	"github.com/celerix-dev/celerix-aci/pkg/services"
)

var (
	// ErrMissingTarget is returned when no target account is given.
	ErrMissingTarget = errors.New("must supply a target account")
	// ErrUnknownRecord is returned when an order names an id the image does not hold.
	ErrUnknownRecord = errors.New("record is not part of the image")
	// ErrHookResult is returned when a hook returns neither a record nor an error.
	ErrHookResult = errors.New("hook returned no record")
)

// Hook runs before or after a record is persisted. It receives a copy of the
// working record and returns the record to continue with.
type Hook func(ctx context.Context, rec *schema.Record, args ...any) (*schema.Record, error)

// Deployer persists the records of an image into a target account.
//
// Records are deployed one at a time. The first failure stops the run and
// records persisted before it are left in place; running again is safe
// because every record is matched against the target before it is written.
type Deployer struct {
	Client   sdk.DataClient
	Codec    *transform.Codec
	User     *schema.User
	Image    *image.Image
	Resolver Resolver
	PreHook  Hook
	PostHook Hook
	Logger   zerolog.Logger
}

// Dependencies returns the dependency graph of the image.
func (d *Deployer) Dependencies() map[string][]string {
	return Graph(d.Image.Records, d.Codec.Dependencies)
}

// Order returns the deploy order of the image. A transformed image has none.
func (d *Deployer) Order() ([]string, error) {
	if d.Image.State != image.Untransformed {
		return nil, fmt.Errorf("%w: image is %s", ErrNoOrder, d.Image.State)
	}
	return d.Resolver.Order(d.Image.Records, d.Codec.Dependencies)
}

// Deploy checks the image is deployable, orders it and deploys every record.
func (d *Deployer) Deploy(ctx context.Context, target string, args ...any) error {
	if err := d.Image.Deployable(d.Codec); err != nil {
		return err
	}
	order, err := d.Order()
	if err != nil {
		return err
	}
	return d.DeployInOrder(ctx, target, order, args...)
}

// DeployInOrder deploys the records named by order. The image state is not
// checked, so callers may deploy a transformed image whose records are
// untransformed by PreHook. Every deployed record replaces its image entry.
func (d *Deployer) DeployInOrder(ctx context.Context, target string, order []string, args ...any) error {
	if target == "" {
		return ErrMissingTarget
	}
	if d.User == nil {
		return transform.ErrMissingUser
	}

	index := make(map[string]int, len(d.Image.Records))
	for n, r := range d.Image.Records {
		index[r.ID()] = n
	}

	for _, id := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, ok := index[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownRecord, id)
		}
		deployed, err := d.deployRecord(ctx, d.Image.Records[n], target, args)
		if err != nil {
			return fmt.Errorf("deploy %s: %w", id, err)
		}
		d.Image.Records[n] = deployed
	}
	return nil
}

func (d *Deployer) deployRecord(ctx context.Context, rec *schema.Record, target string, args []any) (*schema.Record, error) {
	working, err := runHook(ctx, d.PreHook, rec.Clone(), args)
	if err != nil {
		return nil, err
	}

	q := schema.Query{
		Service:  working.Service,
		Endpoint: working.Endpoint,
		Fields:   []string{schema.FieldID},
		Params:   map[string]string{schema.ByOwnerID: services.AbsoluteAccountID(target)},
	}
	if working.IsFieldRecord() {
		q.Params[schema.ByQualifiedFieldName] = working.QualifiedFieldName()
	} else {
		q.Params[schema.ByGUID] = working.GUID()
	}

	page, err := d.Client.Get(ctx, d.User, q)
	if err != nil {
		return nil, err
	}

	method := http.MethodPost
	if page.Len() > 0 {
		method = http.MethodPut
		existing, _ := page.Entries[0][schema.FieldID].(string)
		working.SetID(existing)
	} else {
		working.SetID("")
	}
	working.SetOwnerID(target)

	saved, err := d.Client.Save(ctx, d.User, working)
	if err != nil {
		return nil, err
	}
	if saved.Service == "" {
		saved.Service, saved.Endpoint = working.Service, working.Endpoint
	}

	saved, err = runHook(ctx, d.PostHook, saved.Clone(), args)
	if err != nil {
		return nil, err
	}

	d.Logger.Info().
		Str("guid", saved.GUID()).
		Str("account", target).
		Str("id", saved.ID()).
		Str("method", method).
		Str("user", d.User.Name()).
		Msg("deployed record")
	return saved, nil
}

func runHook(ctx context.Context, hook Hook, rec *schema.Record, args []any) (*schema.Record, error) {
	if hook == nil {
		return rec, nil
	}
	out, err := hook(ctx, rec, args...)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrHookResult
	}
	return out, nil
}
