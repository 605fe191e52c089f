// Package transform converts references between their account-bound URL
// form and their portable URN form.
//
// Forward lookups that find nothing degrade to sentinel tokens so an image
// can still be saved and inspected. Reverse lookups that find nothing, or
// too much, are errors: deploying a dangling reference would corrupt the
// target account.
package transform

import (
	"context"
	"fmt"
	"strings"

	"github.com/celerix-dev/celerix-aci/internal/reference"
	"github.com/celerix-dev/celerix-aci/internal/traverse"
	"github.com/celerix-dev/celerix-aci/pkg/schema"
	"github.com/celerix-dev/celerix-aci/pkg/sdk"
	"github.com/celerix-dev/celerix-aci/pkg/services"
)

// Codec encodes and decodes references with the help of a data service.
type Codec struct {
	client     sdk.DataReader
	registry   *services.Registry
	classifier *reference.Classifier
}

// NewCodec returns a codec resolving lookups through client.
func NewCodec(client sdk.DataReader, reg *services.Registry) *Codec {
	return &Codec{
		client:     client,
		registry:   reg,
		classifier: reference.NewClassifier(reg),
	}
}

// Classifier returns the classifier the codec matches leaves with.
func (c *Codec) Classifier() *reference.Classifier {
	return c.classifier
}

// Matches is the traversal matcher: references and field references are
// rewritten on transform, portable references on untransform.
func (c *Codec) Matches(d traverse.Direction, s string) bool {
	if d == traverse.Untransform {
		return c.classifier.IsPortableReference(s)
	}
	return reference.IsReference(s) || reference.IsFieldReference(s)
}

// TransformReference encodes ref as a portable reference.
func (c *Codec) TransformReference(ctx context.Context, ref string, user *schema.User, ownerAccount string) (string, error) {
	if ref == ownerAccount {
		return reference.TargetAccount, nil
	}
	if !reference.IsReference(ref) {
		return ref, nil
	}

	loc, err := c.registry.FromURL(ref)
	if err != nil {
		return "", fmt.Errorf("transform %s: %w", ref, err)
	}
	if strings.HasPrefix(loc.Service, services.UserDirectoryService) {
		return ref, nil
	}

	page, err := c.client.Get(ctx, user, schema.Query{
		Service:  loc.Service,
		Endpoint: loc.Endpoint,
		IDs:      []string{loc.ID},
		Fields:   []string{schema.FieldID, schema.FieldGUID, schema.FieldOwnerID},
	})
	if err != nil {
		return "", fmt.Errorf("transform %s: %w", ref, err)
	}
	if page.Len() == 0 {
		return reference.NoIDFound, nil
	}

	entry := page.Entries[0]
	guid, _ := entry[schema.FieldGUID].(string)
	if guid == "" {
		return reference.NoGUIDFound, nil
	}
	owner, _ := entry[schema.FieldOwnerID].(string)
	return reference.EncodeReference(loc.Service, loc.Endpoint, services.Tail(owner), guid), nil
}

// TransformFieldReference encodes a custom field URL as a portable field reference.
func (c *Codec) TransformFieldReference(ctx context.Context, ref string, user *schema.User) (string, error) {
	if !reference.IsFieldReference(ref) {
		return ref, nil
	}
	loc, err := c.registry.FromURL(ref)
	if err != nil {
		return "", fmt.Errorf("transform %s: %w", ref, err)
	}

	page, err := c.client.Get(ctx, user, schema.Query{
		Service:  loc.Service,
		Endpoint: loc.Endpoint,
		IDs:      []string{loc.ID},
		Fields:   []string{schema.FieldOwnerID, schema.FieldName, schema.FieldNamespace},
	})
	if err != nil {
		return "", fmt.Errorf("transform %s: %w", ref, err)
	}
	if page.Len() == 0 {
		return reference.NoIDFound, nil
	}

	entry := page.Entries[0]
	fieldName, _ := entry[schema.FieldName].(string)
	if fieldName == "" {
		return reference.NoQualifiedFieldNameFound, nil
	}
	namespace, _ := entry[schema.FieldNamespace].(string)
	if namespace == "" {
		namespace = page.Namespace
	}
	owner, _ := entry[schema.FieldOwnerID].(string)
	return reference.EncodeFieldReference(loc.Service, loc.Endpoint, services.Tail(owner), namespace, fieldName), nil
}

// UntransformReference resolves a portable reference to the id of the
// matching record under targetAccount.
func (c *Codec) UntransformReference(ctx context.Context, token string, user *schema.User, targetAccount string) (string, error) {
	if token == reference.TargetAccount {
		return targetAccount, nil
	}
	if !c.classifier.IsPortableReference(token) {
		return token, nil
	}
	if reference.IsUnresolved(token) {
		return "", fmt.Errorf("%w: %s", ErrUnresolved, token)
	}
	tok, err := reference.Parse(token)
	if err != nil {
		return "", err
	}
	return c.lookup(ctx, user, tok, schema.ByGUID, "guid", targetAccount)
}

// UntransformFieldReference resolves a portable field reference to the id of
// the matching custom field under targetAccount.
func (c *Codec) UntransformFieldReference(ctx context.Context, token string, user *schema.User, targetAccount string) (string, error) {
	if token == reference.TargetAccount {
		return targetAccount, nil
	}
	if !c.classifier.IsPortableFieldReference(token) {
		return token, nil
	}
	if reference.IsUnresolved(token) {
		return "", fmt.Errorf("%w: %s", ErrUnresolved, token)
	}
	tok, err := reference.Parse(token)
	if err != nil {
		return "", err
	}
	return c.lookup(ctx, user, tok, schema.ByQualifiedFieldName, "qualified field name", targetAccount)
}

func (c *Codec) lookup(ctx context.Context, user *schema.User, tok reference.Token, param, by, targetAccount string) (string, error) {
	q := schema.Query{
		Service:  tok.Service,
		Endpoint: tok.Endpoint,
		Fields:   []string{schema.FieldID},
		Params: map[string]string{
			param:          tok.Key,
			schema.OwnerID: services.AbsoluteAccountID(targetAccount),
		},
	}
	page, err := c.client.Get(ctx, user, q)
	if err != nil {
		return "", &LookupError{By: by, Key: tok.Key, Err: err}
	}
	switch page.Len() {
	case 0:
		return "", &LookupError{By: by, Key: tok.Key, Err: ErrNoMatch}
	case 1:
		id, _ := page.Entries[0][schema.FieldID].(string)
		return id, nil
	default:
		return "", &LookupError{By: by, Key: tok.Key, Err: ErrAmbiguousMatch}
	}
}
