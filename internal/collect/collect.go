// Package collect captures records from an account into an image.
package collect

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/celerix-dev/celerix-aci/internal/engine"
	"github.com/celerix-dev/celerix-aci/internal/image"
	"github.com/celerix-dev/celerix-aci/pkg/schema"
	"github.com/celerix-dev/celerix-aci/pkg/sdk"
	"github.com/celerix-dev/celerix-aci/pkg/services"
)

var (
	ErrMissingUser    = errors.New("must set the user attribute")
	ErrMissingAccount = errors.New("must set the account_id attribute")
	ErrMissingQueries = errors.New("must set the queries attribute")
	ErrMissingClient  = errors.New("must set the client attribute")
)

// ReadOnlyFields are maintained by the platform and dropped on capture.
var ReadOnlyFields = []string{
	engine.FieldUpdated,
	engine.FieldAdded,
	engine.FieldAddedByUserID,
	engine.FieldUpdatedByUserID,
	engine.FieldVersion,
}

// Collector runs a list of queries against one account.
type Collector struct {
	AccountID string
	User      *schema.User
	Queries   []schema.Query
	Client    sdk.DataReader
	Registry  *services.Registry
	Logger    zerolog.Logger
}

// Validate checks the collector has everything it needs to run.
func (c *Collector) Validate() error {
	if c.User == nil {
		return ErrMissingUser
	}
	if c.AccountID == "" {
		return ErrMissingAccount
	}
	if len(c.Queries) == 0 {
		return ErrMissingQueries
	}
	if c.Client == nil {
		return ErrMissingClient
	}
	for n, q := range c.Queries {
		if q.Service == "" {
			return fmt.Errorf("query %d does not have service set", n)
		}
		if q.Endpoint == "" {
			return fmt.Errorf("query %d does not have endpoint set", n)
		}
		if c.Registry != nil {
			svc, err := c.Registry.Lookup(q.Service)
			if err != nil {
				return fmt.Errorf("query %d: %w", n, err)
			}
			if !svc.HasEndpoint(q.Endpoint) {
				return fmt.Errorf("query %d: %s does not expose %s", n, q.Service, q.Endpoint)
			}
		}
	}
	return nil
}

// Collect runs every query and returns an untransformed image of the
// results. Queries without an owner filter are scoped to AccountID.
func (c *Collector) Collect(ctx context.Context) (*image.Image, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	account := services.AbsoluteAccountID(c.AccountID)
	img := image.New(account, c.User)

	for _, q := range c.Queries {
		if q.Param(schema.ByOwnerID) == "" && q.Param(schema.OwnerID) == "" {
			q = q.With(schema.ByOwnerID, account)
		}
		page, err := c.Client.Get(ctx, c.User, q)
		if err != nil {
			return nil, fmt.Errorf("collect %s: %w", q, err)
		}
		for _, entry := range page.Entries {
			rec := schema.NewRecord(q.Service, q.Endpoint, schema.CopyValue(entry).(map[string]any))
			for _, f := range ReadOnlyFields {
				delete(rec.Fields, f)
			}
			img.Records = append(img.Records, rec)
			c.Logger.Debug().Str("id", rec.ID()).Str("guid", rec.GUID()).Msg("collected")
		}
		if page.Len() == 0 {
			c.Logger.Warn().Str("query", q.String()).Msgf("collected zero results for %s/%s", q.Service, q.Endpoint)
			continue
		}
		c.Logger.Info().
			Str("query", q.String()).
			Int("entries", page.Len()).
			Msg("collected")
	}
	return img, nil
}
