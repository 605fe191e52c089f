package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-aci/internal/reference"
	"github.com/celerix-dev/celerix-aci/pkg/schema"
	"github.com/celerix-dev/celerix-aci/pkg/services"
)

func recordA() *schema.Record {
	return schema.NewRecord("Media Data Service", "Media", map[string]any{
		"id":      "http://data.media.theplatform.com/media/data/Media/1",
		"guid":    "g1",
		"ownerId": account1,
		"ref":     mediaB,
		"owner":   account1,
		"categories": []any{
			map[string]any{"categoryId": category},
		},
		"title": "A",
	})
}

func lookupB(q schema.Query) (*schema.Page, error) {
	switch q.Endpoint {
	case "Media":
		return entries(map[string]any{"guid": "gB", "ownerId": account1}), nil
	case "Category":
		return entries(map[string]any{"guid": "gC", "ownerId": account1}), nil
	}
	return entries(), nil
}

func TestRecordTransform(t *testing.T) {
	c := NewCodec(&fakeReader{answer: lookupB}, services.Default())
	rec := recordA()

	require.NoError(t, c.Transform(context.Background(), rec, user))

	assert.Equal(t, "http://data.media.theplatform.com/media/data/Media/1", rec.ID())
	assert.Equal(t, "urn:cts:aci:Media+Data+Service:Media:1:gB", rec.Fields["ref"])
	assert.Equal(t, reference.TargetAccount, rec.Fields["owner"])
	assert.Equal(t, reference.TargetAccount, rec.Fields["ownerId"])
	assert.Equal(t, "urn:cts:aci:Media+Data+Service:Category:1:gC",
		rec.Fields["categories"].([]any)[0].(map[string]any)["categoryId"])
	assert.Equal(t, "A", rec.Fields["title"])
	assert.True(t, c.IncludesPortableReference(rec))
	assert.False(t, c.IncludesReference(rec))
}

func TestRecordUntransform(t *testing.T) {
	target := "http://access.auth.theplatform.com/data/Account/2"
	c := NewCodec(&fakeReader{answer: func(q schema.Query) (*schema.Page, error) {
		return entries(map[string]any{"id": "http://data.media.theplatform.com/media/data/" + q.Endpoint + "/900"}), nil
	}}, services.Default())

	rec := schema.NewRecord("Media Data Service", "Media", map[string]any{
		"guid":    "g1",
		"ownerId": reference.TargetAccount,
		"ref":     "urn:cts:aci:Media+Data+Service:Media:1:gB",
	})
	require.NoError(t, c.Untransform(context.Background(), rec, user, target))
	assert.Equal(t, target, rec.OwnerID())
	assert.Equal(t, "http://data.media.theplatform.com/media/data/Media/900", rec.Fields["ref"])
}

func TestRecordPreconditions(t *testing.T) {
	c := NewCodec(&fakeReader{}, services.Default())
	ctx := context.Background()

	noGUID := schema.NewRecord("Media Data Service", "Media", map[string]any{"ownerId": account1})
	assert.ErrorIs(t, c.Transform(ctx, noGUID, user), ErrMissingGUID)

	noOwner := schema.NewRecord("Media Data Service", "Media", map[string]any{"guid": "g"})
	assert.ErrorIs(t, c.Transform(ctx, noOwner, user), ErrMissingOwnerID)

	assert.ErrorIs(t, c.Transform(ctx, recordA(), nil), ErrMissingUser)
	assert.ErrorIs(t, c.Untransform(ctx, recordA(), user, ""), ErrMissingTarget)
}

func TestRecordUntransformFailureLeavesRecord(t *testing.T) {
	c := NewCodec(&fakeReader{}, services.Default())
	rec := schema.NewRecord("Media Data Service", "Media", map[string]any{
		"guid":    "g1",
		"ownerId": reference.TargetAccount,
		"ref":     "urn:cts:aci:Media+Data+Service:Media:1:gB",
	})
	err := c.Untransform(context.Background(), rec, user, "2")
	assert.ErrorIs(t, err, ErrNoMatch)
	assert.Equal(t, reference.TargetAccount, rec.OwnerID())
}

func TestDependencies(t *testing.T) {
	c := NewCodec(&fakeReader{}, services.Default())
	rec := recordA()
	rec.Fields["again"] = mediaB
	rec.Fields["fieldRef"] = field

	deps := c.Dependencies(rec)
	assert.ElementsMatch(t, []string{mediaB, category, field}, deps)
	assert.NotContains(t, deps, account1)
	assert.True(t, c.IncludesReference(rec))
}

func TestUnresolvedReferences(t *testing.T) {
	c := NewCodec(&fakeReader{}, services.Default())
	rec := schema.NewRecord("Media Data Service", "Media", map[string]any{
		"a": reference.NoIDFound,
		"b": reference.TargetAccount,
	})
	assert.Equal(t, []string{reference.NoIDFound}, c.UnresolvedReferences(rec))
}
