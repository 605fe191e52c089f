// Package sdk provides the client-side library for talking to a data
// platform. It supports remote services over HTTP and the embedded engine.
package sdk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/celerix-dev/celerix-aci/pkg/schema"
	"github.com/celerix-dev/celerix-aci/pkg/services"
)

// ResponseError is a non-2xx answer from the data service.
type ResponseError struct {
	Status  int
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("data service returned %d: %s", e.Status, e.Message)
}

// Is lets callers match well-known failures with errors.Is.
func (e *ResponseError) Is(target error) bool {
	switch target {
	case ErrNotSignedIn:
		return e.Status == http.StatusUnauthorized
	case ErrRecordNotFound:
		return e.Status == http.StatusNotFound && strings.Contains(e.Message, ErrRecordNotFound.Error())
	case ErrMissingOwner:
		return e.Status == http.StatusBadRequest && strings.Contains(e.Message, ErrMissingOwner.Error())
	}
	return false
}

// Client is a remote client for an HTTP data service.
// It implements the DataClient interface.
type Client struct {
	baseURL string
	http    *http.Client
}

// Connect returns a client for the data service at addr, e.g.
// http://localhost:7002. No request is made.
func Connect(addr string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("connect %s: address must be an http(s) URL", addr)
	}
	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// do sends one request and decodes a JSON answer into out.
func (c *Client) do(ctx context.Context, method, path string, user *schema.User, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user.SignedIn() {
		req.Header.Set("Authorization", "Bearer "+user.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var problem struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &problem) != nil || problem.Error == "" {
			problem.Error = strings.TrimSpace(string(data))
		}
		return &ResponseError{Status: resp.StatusCode, Message: problem.Error}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func dataPath(service, endpoint string) string {
	return "/data/" + url.PathEscape(service) + "/" + url.PathEscape(endpoint)
}

// SignIn exchanges credentials for a signed in user.
func (c *Client) SignIn(ctx context.Context, username, password string) (*schema.User, error) {
	body := map[string]string{"username": username, "password": password}
	var user schema.User
	if err := c.do(ctx, http.MethodPost, "/signin", nil, body, &user); err != nil {
		return nil, fmt.Errorf("sign in %s: %w", username, err)
	}
	user.Password = password
	return &user, nil
}

func (c *Client) Get(ctx context.Context, user *schema.User, q schema.Query) (*schema.Page, error) {
	if !user.SignedIn() {
		return nil, ErrNotSignedIn
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	values := url.Values{}
	if len(q.IDs) > 0 {
		values.Set("ids", strings.Join(q.IDs, ","))
	}
	if len(q.Fields) > 0 {
		values.Set("fields", strings.Join(q.Fields, ","))
	}
	for k, v := range q.Params {
		values.Set(k, v)
	}
	path := dataPath(q.Service, q.Endpoint)
	if len(values) > 0 {
		path += "?" + values.Encode()
	}

	var page schema.Page
	if err := c.do(ctx, http.MethodGet, path, user, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Save creates rec with POST when it has no id and updates it with PUT otherwise.
func (c *Client) Save(ctx context.Context, user *schema.User, rec *schema.Record) (*schema.Record, error) {
	if !user.SignedIn() {
		return nil, ErrNotSignedIn
	}
	if rec.Service == "" || rec.Endpoint == "" {
		return nil, errors.New("record must name its service and endpoint")
	}
	method := http.MethodPost
	if rec.ID() != "" {
		method = http.MethodPut
	}

	saved := schema.NewRecord(rec.Service, rec.Endpoint, nil)
	if err := c.do(ctx, method, dataPath(rec.Service, rec.Endpoint), user, rec, saved); err != nil {
		return nil, err
	}
	return saved, nil
}

// Services lists the services the remote platform knows.
func (c *Client) Services(ctx context.Context) ([]services.Service, error) {
	var list []services.Service
	if err := c.do(ctx, http.MethodGet, "/registry", nil, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Registry builds a registry from the remote service list.
func (c *Client) Registry(ctx context.Context) (*services.Registry, error) {
	list, err := c.Services(ctx)
	if err != nil {
		return nil, err
	}
	return services.NewRegistry(list...), nil
}
