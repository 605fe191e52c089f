// Package reference classifies string values found in records.
//
// A reference is an absolute URL pointing at another record on the platform.
// A portable reference is the account-independent URN that replaces it once
// a record is detached from its source account:
//
//	urn:cts:aci:<service>:<endpoint>:<owner-tail>:<guid>
//	urn:cts:aci:<service>:<endpoint>Field:<owner-tail>:<namespace>$<fieldName>
//
// Every predicate is total: malformed input classifies false.
package reference

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/celerix-dev/celerix-aci/pkg/services"
)

// Prefix starts every portable reference.
const Prefix = "urn:cts:aci:"

// Sentinel tokens written in place of a reference that could not be encoded.
const (
	TargetAccount             = Prefix + "target-account"
	NoIDFound                 = Prefix + "no-id-found"
	NoGUIDFound               = Prefix + "no-guid-found"
	NoQualifiedFieldNameFound = Prefix + "no-qualified-field-name-found"
)

var sentinels = map[string]bool{
	TargetAccount:             true,
	NoIDFound:                 true,
	NoGUIDFound:               true,
	NoQualifiedFieldNameFound: true,
}

const uiHost = "web.theplatform.com"

var (
	urnPattern   = regexp.MustCompile(`(?i)^urn:cts:((?:[a-z0-9()/+,\-.:=@;$_!*']|%[0-9a-f]{2})+)$`)
	recordPath   = regexp.MustCompile(`/\d+$`)
	fieldPath    = regexp.MustCompile(`Field/\d+`)
	nonDigitTail = regexp.MustCompile(`/\D+$`)
	fieldToken   = regexp.MustCompile(`Field:\d*:.*$`)
	allDigits    = regexp.MustCompile(`^\d+$`)
)

// IsSentinel reports whether s is one of the four sentinel tokens.
func IsSentinel(s string) bool {
	return sentinels[s]
}

// IsUnresolved reports whether s is a sentinel recording a failed lookup.
func IsUnresolved(s string) bool {
	return s != TargetAccount && sentinels[s]
}

func platformURL(s string) (*url.URL, bool) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	return u, true
}

// IsReference reports whether s is an absolute record URL on a data host.
// Custom field URLs are not references, see IsFieldReference.
func IsReference(s string) bool {
	u, ok := platformURL(s)
	if !ok {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if !strings.HasSuffix(host, services.DataHostSuffix) {
		return false
	}
	if host == uiHost || strings.HasPrefix(host, "feed.") {
		return false
	}
	return recordPath.MatchString(u.Path) && !fieldPath.MatchString(u.Path)
}

// IsFieldReference reports whether s is an absolute custom field URL.
func IsFieldReference(s string) bool {
	u, ok := platformURL(s)
	if !ok {
		return false
	}
	if strings.EqualFold(u.Hostname(), uiHost) {
		return false
	}
	return fieldPath.MatchString(u.Path) && !nonDigitTail.MatchString(u.Path)
}

// Classifier answers the portable reference predicates, which need to know
// the registered services.
type Classifier struct {
	registry *services.Registry
}

// NewClassifier returns a classifier backed by reg.
func NewClassifier(reg *services.Registry) *Classifier {
	return &Classifier{registry: reg}
}

// IsReference is the package level IsReference.
func (c *Classifier) IsReference(s string) bool { return IsReference(s) }

// IsFieldReference is the package level IsFieldReference.
func (c *Classifier) IsFieldReference(s string) bool { return IsFieldReference(s) }

// IsPortableReference reports whether s is a sentinel or a well formed URN
// naming a registered service and endpoint with a numeric owner tail.
func (c *Classifier) IsPortableReference(s string) bool {
	if IsSentinel(s) {
		return true
	}
	m := urnPattern.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	segments := strings.Split(m[1], ":")
	if len(segments) < 4 || !strings.EqualFold(segments[0], "aci") {
		return false
	}

	name, err := url.QueryUnescape(segments[1])
	if err != nil {
		return false
	}
	svc, err := c.registry.Lookup(name)
	if err != nil {
		return false
	}
	if !svc.HasEndpoint(segments[2]) {
		return false
	}
	return allDigits.MatchString(segments[3])
}

// IsPortableFieldReference reports whether s is a portable reference to a
// custom field. The Field check runs against the raw string, so any portable
// reference containing "Field:<digits>:" qualifies.
func (c *Classifier) IsPortableFieldReference(s string) bool {
	return c.IsPortableReference(s) && fieldToken.MatchString(s)
}
