// Package schema defines the data structures shared by every layer of aci:
// records, queries, result pages and user credentials.
package schema

// User is an authenticated principal of the data platform.
// A User with a token is considered signed in.
type User struct {
	Username string `json:"username"`
	Password string `json:"-"`
	Token    string `json:"token,omitempty"`
}

// SignedIn reports whether the user carries a session token.
func (u *User) SignedIn() bool {
	return u != nil && u.Token != ""
}

// Name returns the username, or an empty string for a nil user.
func (u *User) Name() string {
	if u == nil {
		return ""
	}
	return u.Username
}
