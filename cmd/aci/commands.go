package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/celerix-dev/celerix-aci/internal/collect"
	"github.com/celerix-dev/celerix-aci/internal/deploy"
	"github.com/celerix-dev/celerix-aci/internal/image"
	"github.com/celerix-dev/celerix-aci/internal/migrate"
	"github.com/celerix-dev/celerix-aci/internal/stencil"
	"github.com/celerix-dev/celerix-aci/internal/transform"
	"github.com/celerix-dev/celerix-aci/pkg/schema"
	"github.com/celerix-dev/celerix-aci/pkg/services"
)

// parseQuery reads "<service>/<endpoint>?key=value&..." where ids and
// fields take comma separated lists.
func parseQuery(s string) (schema.Query, error) {
	loc, rawParams, _ := strings.Cut(s, "?")
	slash := strings.LastIndex(loc, "/")
	if slash <= 0 || slash == len(loc)-1 {
		return schema.Query{}, fmt.Errorf("query %q must look like <service>/<endpoint>?params", s)
	}
	q := schema.Query{Service: loc[:slash], Endpoint: loc[slash+1:]}

	values, err := url.ParseQuery(rawParams)
	if err != nil {
		return schema.Query{}, fmt.Errorf("query %q: %w", s, err)
	}
	for key := range values {
		v := values.Get(key)
		switch key {
		case "ids":
			q.IDs = strings.Split(v, ",")
		case "fields":
			q.Fields = strings.Split(v, ",")
		default:
			q = q.With(key, v)
		}
	}
	return q, nil
}

// gatherQueries loads every stencil and parses every inline query.
func gatherQueries(ctx context.Context, stencils, queries []string) ([]schema.Query, error) {
	var out []schema.Query
	reg := stencil.NewRegistry(http.DefaultClient)
	for _, s := range stencils {
		st, err := reg.Load(ctx, s)
		if err != nil {
			return nil, err
		}
		if len(st.Queries) == 0 {
			return nil, fmt.Errorf("stencil %s: %w", st.Name, stencil.ErrNoQueries)
		}
		out = append(out, st.Queries...)
	}
	for _, s := range queries {
		q, err := parseQuery(s)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, collect.ErrMissingQueries
	}
	return out, nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func newCollectCmd(a *app) *cobra.Command {
	var account, out string
	var stencils, queries []string

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Capture the records selected by stencils or queries into an image",
		Long: `Capture records from an account into an image directory.

Queries come from stencils (inline JSON, a URL or a .json/.yaml file) and
from --query flags of the form "<service>/<endpoint>?byGuid=x&fields=id,title".

Examples:
  aci collect --account 1 --stencil media.yaml
  aci collect --account 1 --query "Media Data Service/Media?byGuid=intro"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			qs, err := gatherQueries(ctx, stencils, queries)
			if err != nil {
				return err
			}
			s, err := a.connect(ctx, "")
			if err != nil {
				return err
			}
			defer s.Close()

			c := &collect.Collector{
				AccountID: account,
				User:      s.user,
				Queries:   qs,
				Client:    s.store,
				Registry:  s.registry,
				Logger:    a.logger,
			}
			img, err := c.Collect(ctx)
			if err != nil {
				return err
			}
			if out == "" {
				out = filepath.Join("images", img.Name)
			}
			if err := img.Save(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "collected %d records into %s\n", len(img.Records), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account to collect from")
	cmd.Flags().StringSliceVar(&stencils, "stencil", nil, "stencil to run (JSON, URL or file), repeatable")
	cmd.Flags().StringArrayVar(&queries, "query", nil, "query to run, repeatable")
	cmd.Flags().StringVarP(&out, "out", "o", "", "image directory (default images/<name>)")
	cmd.MarkFlagRequired("account")
	return cmd
}

func newTransformCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "transform DIR",
		Short: "Replace account bound references in an image with portable tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.connect(ctx, "")
			if err != nil {
				return err
			}
			defer s.Close()

			img, err := image.Load(args[0], s.user)
			if err != nil {
				return err
			}
			if err := img.Transform(ctx, transform.NewCodec(s.store, s.registry)); err != nil {
				return err
			}
			return img.Save(args[0])
		},
	}
}

func newUntransformCmd(a *app) *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "untransform DIR",
		Short: "Resolve the portable tokens of an image against a target account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.connect(ctx, "")
			if err != nil {
				return err
			}
			defer s.Close()

			img, err := image.Load(args[0], s.user)
			if err != nil {
				return err
			}
			if err := img.Untransform(ctx, transform.NewCodec(s.store, s.registry), account); err != nil {
				return err
			}
			return img.Save(args[0])
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "target account")
	cmd.MarkFlagRequired("account")
	return cmd
}

func newOrderCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "order DIR",
		Short: "Print the deploy order of an untransformed image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := image.Load(args[0], nil)
			if err != nil {
				return err
			}
			d := &deploy.Deployer{
				Codec:    transform.NewCodec(nil, services.Default()),
				Image:    img,
				Resolver: deploy.Resolver{MaxRounds: a.cfg.ResolverMaxRounds},
			}
			order, err := d.Order()
			if err != nil {
				return err
			}
			for _, id := range order {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func newDeployCmd(a *app) *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "deploy DIR",
		Short: "Write the records of an untransformed image into an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.connect(ctx, "")
			if err != nil {
				return err
			}
			defer s.Close()

			img, err := image.Load(args[0], s.user)
			if err != nil {
				return err
			}
			d := &deploy.Deployer{
				Client:   s.store,
				Codec:    transform.NewCodec(s.store, s.registry),
				User:     s.user,
				Image:    img,
				Resolver: deploy.Resolver{MaxRounds: a.cfg.ResolverMaxRounds},
				Logger:   a.logger,
			}
			if err := d.Deploy(ctx, account); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deployed %d records into %s\n", len(img.Records), account)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "target account")
	cmd.MarkFlagRequired("account")
	return cmd
}

func newMigrateCmd(a *app) *cobra.Command {
	var from, to, targetAddr, out string
	var stencils, queries []string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Collect, transform and deploy records from one account into another",
		Long: `Copy the records selected by stencils or queries from one account into
another. The target may live on a different platform (--target-addr).

Example:
  aci migrate --from 1 --to 2 --stencil media.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			qs, err := gatherQueries(ctx, stencils, queries)
			if err != nil {
				return err
			}

			src, err := a.connect(ctx, "")
			if err != nil {
				return err
			}
			defer src.Close()
			dst := src
			if targetAddr != "" {
				if dst, err = a.connect(ctx, targetAddr); err != nil {
					return err
				}
				defer dst.Close()
			}

			img, err := migrate.Migrate(ctx, migrate.Options{
				Source:    migrate.Endpoint{Client: src.store, User: src.user, Account: from},
				Target:    migrate.Endpoint{Client: dst.store, User: dst.user, Account: to},
				Queries:   qs,
				Registry:  src.registry,
				MaxRounds: a.cfg.ResolverMaxRounds,
				Logger:    a.logger,
			})
			if err != nil {
				return err
			}
			if out != "" {
				if err := img.Save(out); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %d records from %s to %s\n", len(img.Records), from, to)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "source account")
	cmd.Flags().StringVar(&to, "to", "", "target account")
	cmd.Flags().StringVar(&targetAddr, "target-addr", "", "data service URL of the target (default: same platform)")
	cmd.Flags().StringSliceVar(&stencils, "stencil", nil, "stencil to run (JSON, URL or file), repeatable")
	cmd.Flags().StringArrayVar(&queries, "query", nil, "query to run, repeatable")
	cmd.Flags().StringVarP(&out, "out", "o", "", "also save the deployed image here")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info DIR",
		Short: "Print the metadata of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := image.ReadInfo(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}
}

func readRecord(file string) (*schema.Record, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	rec := schema.NewRecord("", "", nil)
	if err := json.Unmarshal(content, rec); err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	return rec, nil
}

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff FILE1 FILE2",
		Short: "Show the differences between two record files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := readRecord(args[0])
			if err != nil {
				return err
			}
			b, err := readRecord(args[1])
			if err != nil {
				return err
			}
			if a.Hash() == b.Hash() {
				fmt.Fprintln(cmd.OutOrStdout(), "records are identical")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), a.Diff(b))
			return nil
		},
	}
}

func newStencilsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stencils FILE...",
		Short: "Validate stencils and list their names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := stencil.NewRegistry(http.DefaultClient)
			for _, s := range args {
				if _, err := reg.Load(cmd.Context(), s); err != nil {
					return err
				}
			}
			for _, name := range reg.Names() {
				st, _ := reg.Get(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d queries\n", name, len(st.Queries))
			}
			return nil
		},
	}
}
