// Package services describes the data services of the platform: which hosts
// they live on, where their records are rooted and which endpoints they expose.
//
// A Registry is an ordinary value. Callers build one (usually with Default)
// and pass it to whatever needs to resolve service names or record URLs.
package services

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// DataHostSuffix is the domain every addressable data host ends with.
const DataHostSuffix = ".theplatform.com"

// AccountPrefix is the absolute form of an account id without its numeric tail.
const AccountPrefix = "http://access.auth.theplatform.com/data/Account"

// UserDirectoryService is the identity service. Its ids are portable across
// environments and are never rewritten.
const UserDirectoryService = "User Data Service"

// FieldSuffix marks a custom field endpoint, e.g. MediaField.
const FieldSuffix = "Field"

var (
	// ErrUnknownService is returned when a service name is not registered.
	ErrUnknownService = errors.New("unknown service")
	// ErrUnknownHost is returned when a URL host does not belong to any service.
	ErrUnknownHost = errors.New("no service registered for host")
	// ErrNotARecordURL is returned when a URL path does not end in a record id.
	ErrNotARecordURL = errors.New("not a record url")
)

var digits = regexp.MustCompile(`^\d+$`)

// Service is a single data service.
type Service struct {
	Name      string   `json:"name"`
	BaseURL   string   `json:"base_url"`
	Endpoints []string `json:"endpoints"`
}

// Host returns the host part of the service base URL.
func (s Service) Host() string {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// HasEndpoint reports whether the service exposes endpoint. A custom field
// endpoint (MediaField) is accepted when its base endpoint (Media) is known.
func (s Service) HasEndpoint(endpoint string) bool {
	base := strings.TrimSuffix(endpoint, FieldSuffix)
	for _, e := range s.Endpoints {
		if e == base {
			return true
		}
	}
	return false
}

// EndpointPath converts an endpoint name into its URL path form.
// MediaField becomes Media/Field, plain endpoints are unchanged.
func (s Service) EndpointPath(endpoint string) string {
	base := strings.TrimSuffix(endpoint, FieldSuffix)
	if base != endpoint && s.HasEndpoint(endpoint) {
		return base + "/" + FieldSuffix
	}
	return endpoint
}

// RecordURL builds the absolute id of record n on endpoint.
func (s Service) RecordURL(endpoint string, n int64) string {
	return fmt.Sprintf("%s/%s/%d", strings.TrimRight(s.BaseURL, "/"), s.EndpointPath(endpoint), n)
}

// Location is the decoded address of a record URL.
type Location struct {
	Service  string
	Endpoint string
	ID       string
}

// Registry resolves service names and record URLs.
type Registry struct {
	byName map[string]Service
	byHost map[string]Service
}

// NewRegistry builds a registry from the given services. Later services
// replace earlier ones with the same name or host.
func NewRegistry(services ...Service) *Registry {
	r := &Registry{
		byName: make(map[string]Service, len(services)),
		byHost: make(map[string]Service, len(services)),
	}
	for _, s := range services {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a service.
func (r *Registry) Register(s Service) {
	r.byName[s.Name] = s
	if h := s.Host(); h != "" {
		r.byHost[h] = s
	}
}

// Lookup returns the service registered under name.
func (r *Registry) Lookup(name string) (Service, error) {
	s, ok := r.byName[name]
	if !ok {
		return Service{}, fmt.Errorf("%w: %q", ErrUnknownService, name)
	}
	return s, nil
}

// Services returns every registered service sorted by name.
func (r *Registry) Services() []Service {
	list := make([]Service, 0, len(r.byName))
	for _, s := range r.byName {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// FromURL decodes the service, endpoint and numeric id of a record URL.
// Both .../Media/Field/12 and .../MediaField/12 yield the MediaField endpoint.
func (r *Registry) FromURL(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, err
	}
	s, ok := r.byHost[strings.ToLower(u.Hostname())]
	if !ok {
		return Location{}, fmt.Errorf("%w: %s", ErrUnknownHost, u.Hostname())
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 || !digits.MatchString(segments[len(segments)-1]) {
		return Location{}, fmt.Errorf("%w: %s", ErrNotARecordURL, raw)
	}
	id := segments[len(segments)-1]
	endpoint := segments[len(segments)-2]
	if endpoint == FieldSuffix && len(segments) >= 3 {
		endpoint = segments[len(segments)-3] + FieldSuffix
	}
	return Location{Service: s.Name, Endpoint: endpoint, ID: id}, nil
}

// Tail returns the last path segment of an absolute id.
func Tail(id string) string {
	id = strings.TrimRight(id, "/")
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}

// AbsoluteAccountID expands a bare or relative account id ("2", "Account/2")
// into its absolute URL form. Absolute ids are returned unchanged.
func AbsoluteAccountID(account string) string {
	if account == "" || strings.HasPrefix(account, "http://") || strings.HasPrefix(account, "https://") {
		return account
	}
	return AccountPrefix + "/" + Tail(account)
}

// Default returns a fresh registry describing the platform's data services.
func Default() *Registry {
	return NewRegistry(
		Service{
			Name:      "Access Data Service",
			BaseURL:   "http://access.auth.theplatform.com/data",
			Endpoints: []string{"Account", "Permission", "Role"},
		},
		Service{
			Name:      UserDirectoryService,
			BaseURL:   "http://identity.auth.theplatform.com/idm/data",
			Endpoints: []string{"Directory", "User"},
		},
		Service{
			Name:      "Media Data Service",
			BaseURL:   "http://data.media.theplatform.com/media/data",
			Endpoints: []string{"AssetType", "Category", "Media", "MediaFile", "Provider", "Release", "Server"},
		},
		Service{
			Name:      "Task Data Service",
			BaseURL:   "http://data.task.theplatform.com/task/data",
			Endpoints: []string{"Agent", "Batch", "Task", "TaskTemplate", "TaskType"},
		},
		Service{
			Name:      "Workflow Data Service",
			BaseURL:   "http://data.workflow.theplatform.com/workflow/data",
			Endpoints: []string{"ProfileResult", "WorkflowQueue"},
		},
		Service{
			Name:      "Player Data Service",
			BaseURL:   "http://data.player.theplatform.com/player/data",
			Endpoints: []string{"ColorScheme", "Layout", "Player", "PlugIn", "Skin"},
		},
		Service{
			Name:      "Publish Data Service",
			BaseURL:   "http://data.publish.theplatform.com/publish/data",
			Endpoints: []string{"Adapter", "AdapterConfiguration", "PublishProfile"},
		},
		Service{
			Name:      "Entitlement Data Service",
			BaseURL:   "http://data.entitlement.theplatform.com/eds/data",
			Endpoints: []string{"Device", "DeviceFilter", "Entitlement", "PhysicalDevice", "Rights", "SubscriptionContext", "UserDevice"},
		},
	)
}
