// Package request builds the per-call context every OCPI handler consumes:
// who is calling, for which identity, in which protocol version, with which
// paging filter.
package request

import (
	"context"
	"time"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/auth/resolver"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/auth/router"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
)

type contextKey struct{}

// Params is what the authentication middleware collected for one call.
type Params struct {
	RequestID     string
	CorrelationID string
	Version       domain.Version
	Time          time.Time
	Resolution    resolver.Resolution
	Routing       router.Routing
	Filter        Filter
}

// Context is immutable once built; handlers only read it.
type Context struct {
	requestID     string
	correlationID string
	version       domain.Version
	time          time.Time
	resolution    resolver.Resolution
	routing       router.Routing
	filter        Filter
}

// NewContext freezes p into a Context.
func NewContext(p Params) *Context {
	return &Context{
		requestID:     p.RequestID,
		correlationID: p.CorrelationID,
		version:       p.Version,
		time:          p.Time,
		resolution:    p.Resolution,
		routing:       p.Routing,
		filter:        p.Filter,
	}
}

func (c *Context) RequestID() string       { return c.requestID }
func (c *Context) CorrelationID() string   { return c.correlationID }
func (c *Context) Version() domain.Version { return c.version }

// Time is the request time every timestamp of this call derives from.
func (c *Context) Time() time.Time { return c.time }

func (c *Context) Routing() router.Routing { return c.routing }

// Filter is the paging filter parsed from the query string.
func (c *Context) Filter() Filter { return c.filter }

// Party returns the authenticated caller, if any.
func (c *Context) Party() (*models.RemoteParty, bool) {
	if c == nil || c.resolution.Party == nil {
		return nil, false
	}
	return c.resolution.Party, true
}

// Anonymous reports whether the call was admitted as open data.
func (c *Context) Anonymous() bool {
	return c != nil && c.resolution.Anonymous
}

// Access returns the token entry the caller authenticated with.
func (c *Context) Access() models.LocalAccessInfo {
	return c.resolution.Access
}

// Sender returns the identity the caller speaks for in family f.
func (c *Context) Sender(f domain.RoleFamily) (domain.PartyIdentity, error) {
	if _, ok := c.Party(); !ok {
		return domain.PartyIdentity{}, dErrors.New(dErrors.CodeUnauthorized, "request is not authenticated")
	}
	return c.routing.Active(f)
}

// With returns ctx carrying rc.
func With(ctx context.Context, rc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// From returns the request context stored by the authentication middleware.
func From(ctx context.Context) (*Context, bool) {
	rc, ok := ctx.Value(contextKey{}).(*Context)
	return rc, ok && rc != nil
}
