package sdk

import (
	"context"
	"fmt"

	"github.com/celerix-dev/celerix-aci/pkg/schema"
)

var _ Store = (*Client)(nil)

// LocalUser is the principal used against an embedded store when no
// username is configured.
const LocalUser = "local"

// Authenticate returns a signed in user for store. A user that already
// holds a token is returned as is. A remote client exchanges the
// credentials for a token, any other store gets a local session.
func Authenticate(ctx context.Context, store DataClient, user *schema.User) (*schema.User, error) {
	if user.SignedIn() {
		return user, nil
	}
	if c, ok := store.(*Client); ok {
		if user.Name() == "" {
			return nil, fmt.Errorf("%w: no username configured", ErrNotSignedIn)
		}
		return c.SignIn(ctx, user.Username, user.Password)
	}

	name := user.Name()
	if name == "" {
		name = LocalUser
	}
	return &schema.User{Username: name, Token: LocalUser}, nil
}
