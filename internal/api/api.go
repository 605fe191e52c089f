// Package api exposes a data platform over HTTP with gin.
package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"github.com/celerix-dev/celerix-aci/internal/engine"
	"github.com/celerix-dev/celerix-aci/pkg/schema"
	"github.com/celerix-dev/celerix-aci/pkg/sdk"
	"github.com/celerix-dev/celerix-aci/pkg/services"
)

const userKey = "aci.user"

type Handler struct {
	Store    sdk.DataClient
	Registry *services.Registry
	Sessions *Sessions
}

// statusFor maps store errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrUnknownService),
		errors.Is(err, engine.ErrUnknownEndpoint),
		errors.Is(err, sdk.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, sdk.ErrMissingOwner),
		errors.Is(err, schema.ErrQueryMissingService):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrDuplicateGUID):
		return http.StatusConflict
	case errors.Is(err, sdk.ErrNotSignedIn), errors.Is(err, ErrBadCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

// SignIn exchanges credentials for a token.
func (h *Handler) SignIn(c *gin.Context) {
	var input struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.Sessions.SignIn(input.Username, input.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// RequireToken rejects requests without a valid bearer token.
func (h *Handler) RequireToken(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	user, ok := h.Sessions.User(token)
	if token == "" || !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": sdk.ErrNotSignedIn.Error()})
		return
	}
	c.Set(userKey, user)
	c.Next()
}

func currentUser(c *gin.Context) *schema.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*schema.User); ok {
			return u
		}
	}
	return nil
}

// GetRegistry lists the known services.
func (h *Handler) GetRegistry(c *gin.Context) {
	c.JSON(http.StatusOK, h.Registry.Services())
}

// Query builds a query from the request path and URL parameters.
// ids and fields are comma separated lists, every other parameter is
// passed through.
func Query(c *gin.Context) schema.Query {
	q := schema.Query{Service: c.Param("service"), Endpoint: c.Param("endpoint")}
	for key, values := range c.Request.URL.Query() {
		if len(values) == 0 {
			continue
		}
		switch key {
		case "ids":
			q.IDs = splitList(values[0])
		case "fields":
			q.Fields = splitList(values[0])
		default:
			q = q.With(key, values[0])
		}
	}
	return q
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GetEntries answers a query.
func (h *Handler) GetEntries(c *gin.Context) {
	page, err := h.Store.Get(c.Request.Context(), currentUser(c), Query(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) bindRecord(c *gin.Context) (*schema.Record, bool) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	rec := schema.NewRecord(c.Param("service"), c.Param("endpoint"), nil)
	if err := json.Unmarshal(body, rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return rec, true
}

// Create persists a new record. The record must not carry an id.
func (h *Handler) Create(c *gin.Context) {
	rec, ok := h.bindRecord(c)
	if !ok {
		return
	}
	if rec.ID() != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "record has an id, use PUT to update"})
		return
	}
	h.save(c, rec, http.StatusCreated)
}

// Update replaces an existing record.
func (h *Handler) Update(c *gin.Context) {
	rec, ok := h.bindRecord(c)
	if !ok {
		return
	}
	if rec.ID() == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "record has no id, use POST to create"})
		return
	}
	h.save(c, rec, http.StatusOK)
}

func (h *Handler) save(c *gin.Context, rec *schema.Record, status int) {
	saved, err := h.Store.Save(c.Request.Context(), currentUser(c), rec)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(status, saved)
}
