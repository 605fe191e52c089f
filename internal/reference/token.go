package reference

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrMalformedToken is returned when a portable reference cannot be parsed.
var ErrMalformedToken = errors.New("malformed portable reference")

// Token is a decoded portable reference.
type Token struct {
	Service  string
	Endpoint string
	Owner    string
	// Key is the guid, or namespace$fieldName for custom fields.
	Key string
}

// IsField reports whether the token addresses a custom field.
func (t Token) IsField() bool {
	return strings.HasSuffix(t.Endpoint, "Field")
}

// Namespace and FieldName split the key of a field token.
func (t Token) Namespace() string {
	if i := strings.LastIndex(t.Key, "$"); i >= 0 {
		return t.Key[:i]
	}
	return ""
}

func (t Token) FieldName() string {
	if i := strings.LastIndex(t.Key, "$"); i >= 0 {
		return t.Key[i+1:]
	}
	return t.Key
}

// escape query-escapes s and also escapes "~", which the URN grammar does
// not allow unescaped.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "~", "%7E")
}

// String encodes the token. Every segment that may carry arbitrary text is
// escaped, so the result always matches the portable grammar.
func (t Token) String() string {
	key := escape(t.Key)
	if t.IsField() {
		key = escape(t.Namespace()) + "$" + escape(t.FieldName())
	}
	return Prefix + escape(t.Service) + ":" + t.Endpoint + ":" + t.Owner + ":" + key
}

// EncodeReference builds the portable reference of a record.
func EncodeReference(service, endpoint, ownerTail, guid string) string {
	return Token{Service: service, Endpoint: endpoint, Owner: ownerTail, Key: guid}.String()
}

// EncodeFieldReference builds the portable reference of a custom field.
// endpoint is the field endpoint, e.g. MediaField.
func EncodeFieldReference(service, endpoint, ownerTail, namespace, fieldName string) string {
	return Token{Service: service, Endpoint: endpoint, Owner: ownerTail, Key: namespace + "$" + fieldName}.String()
}

// Parse decodes a portable reference. Sentinels are not tokens and fail.
func Parse(s string) (Token, error) {
	if IsSentinel(s) || len(s) < len(Prefix) || !strings.EqualFold(s[:len(Prefix)], Prefix) {
		return Token{}, fmt.Errorf("%w: %q", ErrMalformedToken, s)
	}
	parts := strings.Split(s[len(Prefix):], ":")
	if len(parts) < 4 {
		return Token{}, fmt.Errorf("%w: %q", ErrMalformedToken, s)
	}

	service, err := url.QueryUnescape(parts[0])
	if err != nil {
		return Token{}, fmt.Errorf("%w: service: %v", ErrMalformedToken, err)
	}
	tok := Token{Service: service, Endpoint: parts[1], Owner: parts[2]}

	// An encoded field key holds exactly one literal "$": the escaped
	// namespace and field name around it are unescaped separately.
	rawKey := strings.Join(parts[3:], ":")
	if tok.IsField() {
		if ns, name, ok := strings.Cut(rawKey, "$"); ok {
			if ns, err = url.QueryUnescape(ns); err != nil {
				return Token{}, fmt.Errorf("%w: namespace: %v", ErrMalformedToken, err)
			}
			if name, err = url.QueryUnescape(name); err != nil {
				return Token{}, fmt.Errorf("%w: field name: %v", ErrMalformedToken, err)
			}
			tok.Key = ns + "$" + name
			return tok, nil
		}
	}
	if tok.Key, err = url.QueryUnescape(rawKey); err != nil {
		return Token{}, fmt.Errorf("%w: key: %v", ErrMalformedToken, err)
	}
	return tok, nil
}
