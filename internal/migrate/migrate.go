// Package migrate copies a selection of records from one account to another,
// possibly on a different platform instance.
package migrate

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/celerix-dev/celerix-aci/internal/collect"
	"github.com/celerix-dev/celerix-aci/internal/deploy"
	"github.com/celerix-dev/celerix-aci/internal/image"
	"github.com/celerix-dev/celerix-aci/internal/transform"
	"github.com/celerix-dev/celerix-aci/pkg/schema"
	"github.com/celerix-dev/celerix-aci/pkg/sdk"
	"github.com/celerix-dev/celerix-aci/pkg/services"
)

// Endpoint is one side of a migration.
type Endpoint struct {
	Client  sdk.DataClient
	User    *schema.User
	Account string
}

// Options configures a migration.
type Options struct {
	Source    Endpoint
	Target    Endpoint
	Queries   []schema.Query
	Registry  *services.Registry
	MaxRounds int
	Logger    zerolog.Logger
}

// Migrate captures the records selected by the queries from the source,
// makes them portable and deploys them into the target.
//
// Records are untransformed one at a time just before they are written, so
// references between migrated records resolve against copies deployed
// earlier in the same run. The returned image holds the deployed records.
func Migrate(ctx context.Context, opts Options) (*image.Image, error) {
	collector := &collect.Collector{
		AccountID: opts.Source.Account,
		User:      opts.Source.User,
		Queries:   opts.Queries,
		Client:    opts.Source.Client,
		Registry:  opts.Registry,
		Logger:    opts.Logger,
	}
	img, err := collector.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect from %s: %w", opts.Source.Account, err)
	}

	srcCodec := transform.NewCodec(opts.Source.Client, opts.Registry)
	order, err := deploy.Resolver{MaxRounds: opts.MaxRounds}.Order(img.Records, srcCodec.Dependencies)
	if err != nil {
		return nil, fmt.Errorf("failed to order records: %w", err)
	}

	if err := img.Transform(ctx, srcCodec); err != nil {
		return nil, fmt.Errorf("failed to transform image: %w", err)
	}

	target := services.AbsoluteAccountID(opts.Target.Account)
	dstCodec := transform.NewCodec(opts.Target.Client, opts.Registry)
	d := &deploy.Deployer{
		Client: opts.Target.Client,
		Codec:  dstCodec,
		User:   opts.Target.User,
		Image:  img,
		Logger: opts.Logger,
		PreHook: func(ctx context.Context, rec *schema.Record, _ ...any) (*schema.Record, error) {
			rec.SetOwnerID(target)
			if err := dstCodec.Untransform(ctx, rec, opts.Target.User, target); err != nil {
				return nil, err
			}
			return rec, nil
		},
	}
	if err := d.DeployInOrder(ctx, target, order); err != nil {
		return nil, fmt.Errorf("failed to deploy into %s: %w", target, err)
	}

	img.State = image.Untransformed
	img.AccountID = target
	return img, nil
}
