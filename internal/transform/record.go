package transform

import (
	"context"
	"strings"

	"github.com/celerix-dev/celerix-aci/internal/reference"
	"github.com/celerix-dev/celerix-aci/internal/traverse"
	"github.com/celerix-dev/celerix-aci/pkg/schema"
	"github.com/celerix-dev/celerix-aci/pkg/services"
)

func checkRecord(rec *schema.Record, user *schema.User) error {
	if rec.GUID() == "" {
		return ErrMissingGUID
	}
	if rec.OwnerID() == "" {
		return ErrMissingOwnerID
	}
	if user == nil {
		return ErrMissingUser
	}
	return nil
}

// Transform replaces every reference in rec with its portable form.
// rec is only modified when every reference could be encoded.
func (c *Codec) Transform(ctx context.Context, rec *schema.Record, user *schema.User) error {
	if err := checkRecord(rec, user); err != nil {
		return err
	}
	owner := rec.OwnerID()
	fields, err := traverse.Tree(rec.Fields, traverse.Transform, c.Matches, func(_, value string) (string, error) {
		if reference.IsFieldReference(value) {
			return c.TransformFieldReference(ctx, value, user)
		}
		return c.TransformReference(ctx, value, user, owner)
	})
	if err != nil {
		return err
	}
	rec.Fields = fields
	return nil
}

// Untransform resolves every portable reference in rec against targetAccount.
// rec is only modified when every reference resolved.
func (c *Codec) Untransform(ctx context.Context, rec *schema.Record, user *schema.User, targetAccount string) error {
	if err := checkRecord(rec, user); err != nil {
		return err
	}
	if targetAccount == "" {
		return ErrMissingTarget
	}
	fields, err := traverse.Tree(rec.Fields, traverse.Untransform, c.Matches, func(_, value string) (string, error) {
		if c.classifier.IsPortableFieldReference(value) {
			return c.UntransformFieldReference(ctx, value, user, targetAccount)
		}
		return c.UntransformReference(ctx, value, user, targetAccount)
	})
	if err != nil {
		return err
	}
	rec.Fields = fields
	return nil
}

// Dependencies lists the distinct references in rec, in traversal order,
// leaving out account ids and the target account sentinel.
func (c *Codec) Dependencies(rec *schema.Record) []string {
	seen := map[string]bool{}
	var deps []string
	traverse.Visit(rec.Fields, traverse.Transform, c.Matches, func(_, value string) {
		if strings.HasPrefix(value, services.AccountPrefix) || value == reference.TargetAccount {
			return
		}
		if !seen[value] {
			seen[value] = true
			deps = append(deps, value)
		}
	})
	return deps
}

// IncludesReference reports whether rec holds any reference.
func (c *Codec) IncludesReference(rec *schema.Record) bool {
	found := false
	traverse.Visit(rec.Fields, traverse.Transform, c.Matches, func(string, string) { found = true })
	return found
}

// IncludesPortableReference reports whether rec holds any portable reference,
// sentinels included.
func (c *Codec) IncludesPortableReference(rec *schema.Record) bool {
	found := false
	traverse.Visit(rec.Fields, traverse.Untransform, c.Matches, func(string, string) { found = true })
	return found
}

// UnresolvedReferences lists the sentinels in rec recording failed forward lookups.
func (c *Codec) UnresolvedReferences(rec *schema.Record) []string {
	var out []string
	traverse.Visit(rec.Fields, traverse.Untransform, c.Matches, func(_, value string) {
		if reference.IsUnresolved(value) {
			out = append(out, value)
		}
	})
	return out
}
