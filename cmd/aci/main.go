package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/celerix-dev/celerix-aci/internal/config"
	"github.com/celerix-dev/celerix-aci/internal/logging"
	"github.com/celerix-dev/celerix-aci/internal/platform"
	"github.com/celerix-dev/celerix-aci/pkg/schema"
	"github.com/celerix-dev/celerix-aci/pkg/sdk"
	"github.com/celerix-dev/celerix-aci/pkg/services"
)

// app carries what every command needs once the environment is parsed.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// session is a signed in connection to one data platform.
type session struct {
	store    sdk.Store
	user     *schema.User
	registry *services.Registry
}

func (s *session) Close() error {
	return s.store.Close()
}

// connect opens the platform at addr, or the configured one when addr is
// empty, and signs in. Remote platforms provide their own service registry.
func (a *app) connect(ctx context.Context, addr string) (*session, error) {
	if addr == "" {
		addr = a.cfg.DataAddr
	}
	reg := services.Default()
	store, err := platform.New(platform.Options{
		Addr:     addr,
		DataDir:  a.cfg.DataDir,
		Timeout:  a.cfg.HTTPTimeout,
		Registry: reg,
		Logger:   a.logger,
	})
	if err != nil {
		return nil, err
	}

	if c, ok := store.(*sdk.Client); ok {
		if reg, err = c.Registry(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to read registry from %s: %w", addr, err)
		}
	}

	user, err := sdk.Authenticate(ctx, store, a.cfg.User())
	if err != nil {
		store.Close()
		return nil, err
	}
	a.logger.Debug().Str("user", user.Name()).Str("addr", addr).Msg("signed in")
	return &session{store: store, user: user, registry: reg}, nil
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "aci",
		Short:         "Capture, port and deploy data platform account images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			return nil
		},
	}

	root.AddCommand(
		newCollectCmd(a),
		newTransformCmd(a),
		newUntransformCmd(a),
		newOrderCmd(a),
		newDeployCmd(a),
		newMigrateCmd(a),
		newInfoCmd(),
		newDiffCmd(),
		newStencilsCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
