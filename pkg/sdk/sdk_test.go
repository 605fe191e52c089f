package sdk_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/celerix-dev/celerix-aci/internal/api"
	"github.com/celerix-dev/celerix-aci/internal/engine"
	"github.com/celerix-dev/celerix-aci/internal/server"
	"github.com/celerix-dev/celerix-aci/pkg/schema"
	"github.com/celerix-dev/celerix-aci/pkg/sdk"
	"github.com/celerix-dev/celerix-aci/pkg/services"
)

const owner = "http://access.auth.theplatform.com/data/Account/1"

func startServer(t *testing.T) *sdk.Client {
	t.Helper()
	reg := services.Default()
	h := &api.Handler{
		Store:    engine.NewMemStore(nil, reg, nil),
		Registry: reg,
		Sessions: api.NewSessions("admin", "secret"),
	}
	ts := httptest.NewServer(server.NewRouter(h, zerolog.Nop()))
	t.Cleanup(ts.Close)

	client, err := sdk.Connect(ts.URL, 5*time.Second)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := startServer(t)

	user, err := client.SignIn(ctx, "admin", "secret")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if !user.SignedIn() {
		t.Fatal("Expected a token after sign in")
	}

	rec := schema.NewRecord("Media Data Service", "Media", map[string]any{
		"guid":    "g1",
		"ownerId": owner,
		"title":   "first",
	})
	created, err := client.Save(ctx, user, rec)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID() == "" {
		t.Fatal("Expected the service to assign an id")
	}
	if created.Service != "Media Data Service" || created.Endpoint != "Media" {
		t.Errorf("Saved record lost its location: %s/%s", created.Service, created.Endpoint)
	}

	created.Fields["title"] = "second"
	if _, err := client.Save(ctx, user, created); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	q := schema.Query{Service: "Media Data Service", Endpoint: "Media"}.With(schema.ByGUID, "g1")
	page, err := client.Get(ctx, user, q)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if page.Len() != 1 || page.Entries[0]["title"] != "second" {
		t.Errorf("Unexpected page: %v", page.Entries)
	}

	exists, err := sdk.ExistsBy(ctx, client, user, q.With(schema.ByOwnerID, "2"))
	if err != nil || exists {
		t.Errorf("Expected no entry for another owner, got %v, %v", exists, err)
	}
	exists, err = sdk.ExistsBy(ctx, client, user, q)
	if err != nil || !exists {
		t.Errorf("Expected the entry to exist, got %v, %v", exists, err)
	}
	if _, err := sdk.ExistsBy(ctx, client, &schema.User{Username: "admin"}, q); !errors.Is(err, sdk.ErrNotSignedIn) {
		t.Errorf("Expected ErrNotSignedIn for a user without a token, got %v", err)
	}

	list, err := client.Services(ctx)
	if err != nil {
		t.Fatalf("Services failed: %v", err)
	}
	if len(list) != len(services.Default().Services()) {
		t.Errorf("Expected %d services, got %d", len(services.Default().Services()), len(list))
	}
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	client := startServer(t)

	q := schema.Query{Service: "Media Data Service", Endpoint: "Media"}
	if _, err := client.Get(ctx, &schema.User{Username: "admin"}, q); !errors.Is(err, sdk.ErrNotSignedIn) {
		t.Errorf("Expected ErrNotSignedIn without a token, got %v", err)
	}

	if _, err := client.SignIn(ctx, "admin", "wrong"); !errors.Is(err, sdk.ErrNotSignedIn) {
		t.Errorf("Expected a 401 on bad credentials, got %v", err)
	}

	user, err := client.SignIn(ctx, "admin", "secret")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	missing := schema.NewRecord("Media Data Service", "Media", map[string]any{
		"id":      "http://data.media.theplatform.com/media/data/Media/42",
		"guid":    "g",
		"ownerId": owner,
	})
	_, err = client.Save(ctx, user, missing)
	if !errors.Is(err, sdk.ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
	var re *sdk.ResponseError
	if !errors.As(err, &re) || re.Status != 404 {
		t.Errorf("Expected a 404 ResponseError, got %v", err)
	}

	noOwner := schema.NewRecord("Media Data Service", "Media", map[string]any{"guid": "g"})
	if _, err := client.Save(ctx, user, noOwner); !errors.Is(err, sdk.ErrMissingOwner) {
		t.Errorf("Expected ErrMissingOwner, got %v", err)
	}
}

func TestConnectRejectsBadAddress(t *testing.T) {
	for _, addr := range []string{"localhost:7002", "ftp://host", "http://"} {
		if _, err := sdk.Connect(addr, time.Second); err == nil {
			t.Errorf("Expected an error for %q", addr)
		}
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	store := engine.NewMemStore(nil, services.Default(), nil)

	user, err := sdk.Authenticate(ctx, store, &schema.User{})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if user.Username != sdk.LocalUser || !user.SignedIn() {
		t.Errorf("Expected a local session, got %+v", user)
	}

	signed := &schema.User{Username: "u", Token: "t"}
	if got, _ := sdk.Authenticate(ctx, store, signed); got != signed {
		t.Error("Expected a signed in user to be returned unchanged")
	}

	client := startServer(t)
	if _, err := sdk.Authenticate(ctx, client, &schema.User{}); !errors.Is(err, sdk.ErrNotSignedIn) {
		t.Errorf("Expected ErrNotSignedIn without a username, got %v", err)
	}
	user, err = sdk.Authenticate(ctx, client, &schema.User{Username: "admin", Password: "secret"})
	if err != nil || !user.SignedIn() {
		t.Errorf("Expected a remote session, got %+v, %v", user, err)
	}
}
