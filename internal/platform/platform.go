// Package platform picks the data platform the aci tools talk to: a remote
// data service over HTTP or the embedded engine.
package platform

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/celerix-dev/celerix-aci/internal/engine"
	"github.com/celerix-dev/celerix-aci/pkg/sdk"
	"github.com/celerix-dev/celerix-aci/pkg/services"
)

var _ sdk.Store = (*engine.MemStore)(nil)

// Options selects and configures a data platform.
type Options struct {
	// Addr is the base URL of a remote data service. Empty selects the
	// embedded engine rooted at DataDir.
	Addr     string
	DataDir  string
	Timeout  time.Duration
	Registry *services.Registry
	Logger   zerolog.Logger
}

// New returns the platform described by opts.
// It returns the interface, so the app doesn't care if it's local or remote.
func New(opts Options) (sdk.Store, error) {
	if opts.Addr != "" {
		client, err := sdk.Connect(opts.Addr, opts.Timeout)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	// Same engine the server uses, but inside the app process.
	p, err := engine.NewPersistence(opts.DataDir, opts.Logger)
	if err != nil {
		return nil, err
	}
	store, err := engine.Open(opts.DataDir, opts.Registry, p)
	if err != nil {
		return nil, err
	}
	return store, nil
}
