package deploy

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-aci/internal/engine"
	"github.com/celerix-dev/celerix-aci/internal/image"
	"github.com/celerix-dev/celerix-aci/internal/reference"
	"github.com/celerix-dev/celerix-aci/internal/transform"
	"github.com/celerix-dev/celerix-aci/pkg/schema"
	"github.com/celerix-dev/celerix-aci/pkg/services"
)

const (
	source   = "http://access.auth.theplatform.com/data/Account/1"
	target   = "http://access.auth.theplatform.com/data/Account/2"
	mediaURL = "http://data.media.theplatform.com/media/data/Media/"
)

var user = &schema.User{Username: "admin", Token: "t"}

func rec(id, guid string, deps ...string) *schema.Record {
	fields := map[string]any{"id": mediaURL + id, "guid": guid, "ownerId": source}
	if len(deps) > 0 {
		refs := make([]any, len(deps))
		for i, d := range deps {
			refs[i] = mediaURL + d
		}
		fields["related"] = refs
	}
	return schema.NewRecord("Media Data Service", "Media", fields)
}

func codec() *transform.Codec {
	return transform.NewCodec(engine.NewMemStore(nil, services.Default(), nil), services.Default())
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}

func TestOrderDependenciesFirst(t *testing.T) {
	c := codec()
	records := []*schema.Record{rec("1", "a", "2"), rec("2", "b"), rec("3", "c", "1", "2"), rec("4", "d")}

	order, err := Resolver{}.Order(records, c.Dependencies)
	require.NoError(t, err)
	assert.Equal(t, []string{mediaURL + "2", mediaURL + "4", mediaURL + "1", mediaURL + "3"}, order)

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]*schema.Record(nil), records...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		order, err := Resolver{}.Order(shuffled, c.Dependencies)
		require.NoError(t, err)
		assert.Less(t, indexOf(order, mediaURL+"2"), indexOf(order, mediaURL+"1"))
		assert.Less(t, indexOf(order, mediaURL+"1"), indexOf(order, mediaURL+"3"))
	}
}

func TestOrderFailures(t *testing.T) {
	c := codec()

	_, err := Resolver{}.Order([]*schema.Record{rec("1", "a", "2"), rec("2", "b", "1")}, c.Dependencies)
	assert.ErrorIs(t, err, ErrNoOrder, "cycle")

	_, err = Resolver{}.Order([]*schema.Record{rec("1", "a", "9")}, c.Dependencies)
	assert.ErrorIs(t, err, ErrNoOrder, "missing dependency")

	chain := []*schema.Record{rec("1", "a", "2"), rec("2", "b", "3"), rec("3", "c")}
	_, err = Resolver{MaxRounds: 1}.Order(chain, c.Dependencies)
	assert.ErrorIs(t, err, ErrNoOrder, "deeper than the round bound")

	order, err := Resolver{MaxRounds: 2}.Order(chain, c.Dependencies)
	require.NoError(t, err)
	assert.Len(t, order, 3)
}

func TestOrderIgnoresAccountReferences(t *testing.T) {
	r := rec("1", "a")
	r.Fields["owner"] = source
	r.Fields["self"] = reference.TargetAccount

	order, err := Resolver{}.Order([]*schema.Record{r}, codec().Dependencies)
	require.NoError(t, err)
	assert.Equal(t, []string{mediaURL + "1"}, order)
}

// recordingClient wraps the engine and logs the order records are saved in.
type recordingClient struct {
	*engine.MemStore
	saved   []string
	failOn  string
	failErr error
}

func (r *recordingClient) Save(ctx context.Context, u *schema.User, rec *schema.Record) (*schema.Record, error) {
	if rec.GUID() == r.failOn {
		return nil, r.failErr
	}
	r.saved = append(r.saved, rec.GUID())
	return r.MemStore.Save(ctx, u, rec)
}

func newDeployer(client *recordingClient, img *image.Image, logs *bytes.Buffer) *Deployer {
	return &Deployer{
		Client: client,
		Codec:  transform.NewCodec(client, services.Default()),
		User:   user,
		Image:  img,
		Logger: zerolog.New(logs),
	}
}

func TestDeployCreatesThenUpdates(t *testing.T) {
	store := engine.NewMemStore(nil, services.Default(), nil)
	client := &recordingClient{MemStore: store}

	img := image.New(source, user, rec("1", "a", "2"), rec("2", "b"))
	var logs bytes.Buffer
	d := newDeployer(client, img, &logs)

	require.NoError(t, d.Deploy(context.Background(), target))
	assert.Equal(t, []string{"b", "a"}, client.saved, "dependency is persisted first")
	assert.Contains(t, logs.String(), `"method":"POST"`)
	assert.Contains(t, logs.String(), `"guid":"b"`)
	assert.Len(t, store.Records(target), 2)
	for _, r := range img.Records {
		assert.Equal(t, target, r.OwnerID())
	}

	// Deploying the original image again updates the same records.
	logs.Reset()
	again := newDeployer(client, image.New(source, user, rec("1", "a", "2"), rec("2", "b")), &logs)
	require.NoError(t, again.Deploy(context.Background(), target))
	assert.Contains(t, logs.String(), `"method":"PUT"`)
	assert.NotContains(t, logs.String(), `"method":"POST"`)
	assert.Len(t, store.Records(target), 2)
}

func fieldRec(id, guid, name string) *schema.Record {
	return schema.NewRecord("Media Data Service", "MediaField", map[string]any{
		"id":        mediaURL + "Field/" + id,
		"guid":      guid,
		"ownerId":   source,
		"namespace": "http://example.com/ns",
		"fieldName": name,
	})
}

func TestDeployMatchesFieldsByQualifiedName(t *testing.T) {
	store := engine.NewMemStore(nil, services.Default(), nil)
	client := &recordingClient{MemStore: store}

	var logs bytes.Buffer
	require.NoError(t, newDeployer(client, image.New(source, user, fieldRec("7", "f1", "rating")), &logs).
		Deploy(context.Background(), target))
	assert.Contains(t, logs.String(), `"method":"POST"`)
	require.Len(t, store.Records(target), 1)
	first := store.Records(target)[0].ID()
	assert.Contains(t, first, "/Media/Field/")

	// A different guid with the same namespace$fieldName is the same field.
	logs.Reset()
	require.NoError(t, newDeployer(client, image.New(source, user, fieldRec("7", "other-guid", "rating")), &logs).
		Deploy(context.Background(), target))
	assert.Contains(t, logs.String(), `"method":"PUT"`)
	assert.NotContains(t, logs.String(), `"method":"POST"`)
	require.Len(t, store.Records(target), 1)
	assert.Equal(t, first, store.Records(target)[0].ID())

	// Another field name is a new field.
	logs.Reset()
	require.NoError(t, newDeployer(client, image.New(source, user, fieldRec("8", "f2", "score")), &logs).
		Deploy(context.Background(), target))
	assert.Contains(t, logs.String(), `"method":"POST"`)
	assert.Len(t, store.Records(target), 2)
}

func TestDeployHooksWorkOnCopies(t *testing.T) {
	client := &recordingClient{MemStore: engine.NewMemStore(nil, services.Default(), nil)}
	original := rec("2", "b")
	img := image.New(source, user, original)

	var logs bytes.Buffer
	d := newDeployer(client, img, &logs)
	var extra []any
	d.PreHook = func(_ context.Context, r *schema.Record, args ...any) (*schema.Record, error) {
		extra = args
		r.Fields["title"] = "from hook"
		return r, nil
	}
	d.PostHook = func(_ context.Context, r *schema.Record, _ ...any) (*schema.Record, error) {
		r.Fields["post"] = true
		return r, nil
	}

	require.NoError(t, d.Deploy(context.Background(), target, "ctx-value"))
	assert.Equal(t, []any{"ctx-value"}, extra)
	assert.NotContains(t, original.Fields, "title", "hooks never see the original")
	assert.Equal(t, "from hook", img.Records[0].Fields["title"])
	assert.Equal(t, true, img.Records[0].Fields["post"])
}

func TestDeployStopsOnFirstError(t *testing.T) {
	boom := errors.New("boom")
	client := &recordingClient{MemStore: engine.NewMemStore(nil, services.Default(), nil), failOn: "a", failErr: boom}
	img := image.New(source, user, rec("1", "a", "2"), rec("2", "b"), rec("3", "c", "1"))

	var logs bytes.Buffer
	err := newDeployer(client, img, &logs).Deploy(context.Background(), target)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"b"}, client.saved)
}

func TestDeployRejects(t *testing.T) {
	client := &recordingClient{MemStore: engine.NewMemStore(nil, services.Default(), nil)}
	var logs bytes.Buffer

	transformed := image.New(source, user, rec("1", "a"))
	transformed.State = image.Transformed
	err := newDeployer(client, transformed, &logs).Deploy(context.Background(), target)
	assert.ErrorIs(t, err, image.ErrNotDeployable)

	_, err = newDeployer(client, transformed, &logs).Order()
	assert.ErrorIs(t, err, ErrNoOrder)

	cyclic := image.New(source, user, rec("1", "a", "2"), rec("2", "b", "1"))
	err = newDeployer(client, cyclic, &logs).Deploy(context.Background(), target)
	assert.ErrorIs(t, err, ErrNoOrder)

	err = newDeployer(client, image.New(source, user, rec("1", "a")), &logs).Deploy(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingTarget)
	assert.Empty(t, client.saved)
}

func TestDependenciesGraph(t *testing.T) {
	client := &recordingClient{MemStore: engine.NewMemStore(nil, services.Default(), nil)}
	d := newDeployer(client, image.New(source, user, rec("1", "a", "2"), rec("2", "b")), &bytes.Buffer{})

	assert.Equal(t, map[string][]string{mediaURL + "1": {mediaURL + "2"}}, d.Dependencies())
}
