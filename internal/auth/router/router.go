// Package router works out which of a caller's identities a request speaks
// for and which of ours it is addressed to.
package router

import (
	"net/http"
	"slices"
	"strings"

	authmetrics "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/auth/metrics"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
)

// Routing headers.
const (
	HeaderFromCountryCode = "OCPI-from-country-code"
	HeaderFromPartyID     = "OCPI-from-party-id"
	HeaderToCountryCode   = "OCPI-to-country-code"
	HeaderToPartyID       = "OCPI-to-party-id"
)

var families = []domain.RoleFamily{domain.FamilyCPO, domain.FamilyEMSP, domain.FamilyHUB, domain.FamilyOther}

// Headers are the raw sender and recipient header values.
type Headers struct {
	FromCountryCode string
	FromPartyID     string
	ToCountryCode   string
	ToPartyID       string
}

// HeadersFrom reads the routing headers of a request.
func HeadersFrom(h http.Header) Headers {
	return Headers{
		FromCountryCode: strings.TrimSpace(h.Get(HeaderFromCountryCode)),
		FromPartyID:     strings.TrimSpace(h.Get(HeaderFromPartyID)),
		ToCountryCode:   strings.TrimSpace(h.Get(HeaderToCountryCode)),
		ToPartyID:       strings.TrimSpace(h.Get(HeaderToPartyID)),
	}
}

// FamilyRoute is the set of identities a caller holds within one family.
type FamilyRoute struct {
	Family     domain.RoleFamily
	Identities []domain.PartyIdentity
	// Active is the identity the request speaks for; zero when Ambiguous.
	Active    domain.PartyIdentity
	Ambiguous bool
}

// Routing is the result for one request. The zero value is a public route
// with no caller.
type Routing struct {
	Sender         domain.PartyIdentity
	SenderExplicit bool
	Recipient      domain.PartyIdentity
	familyRoutes   map[domain.RoleFamily]FamilyRoute
}

// Public reports whether no party was resolved.
func (r Routing) Public() bool {
	return len(r.familyRoutes) == 0
}

// Family returns the route for f.
func (r Routing) Family(f domain.RoleFamily) (FamilyRoute, bool) {
	fr, ok := r.familyRoutes[f]
	return fr, ok
}

// Active returns the identity the caller speaks for in family f. It fails
// when the caller holds no identity there or holds several and did not say
// which one.
func (r Routing) Active(f domain.RoleFamily) (domain.PartyIdentity, error) {
	fr, ok := r.familyRoutes[f]
	if !ok {
		return domain.PartyIdentity{}, dErrors.New(dErrors.CodeForbidden, "caller has no "+f.String()+" role")
	}
	if fr.Ambiguous {
		return domain.PartyIdentity{}, dErrors.New(dErrors.CodeForbidden,
			"caller holds several "+f.String()+" identities; set "+HeaderFromCountryCode+" and "+HeaderFromPartyID)
	}
	return fr.Active, nil
}

// Owns reports whether the caller holds id within family f.
func (r Routing) Owns(f domain.RoleFamily, id domain.PartyIdentity) bool {
	fr, ok := r.familyRoutes[f]
	return ok && slices.Contains(fr.Identities, id)
}

// Router is immutable after construction and safe for concurrent use.
type Router struct {
	ours    []domain.PartyIdentity
	metrics *authmetrics.Metrics
}

type Option func(*Router)

func WithMetrics(m *authmetrics.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// New builds a router for our own platform roles.
func New(ours []models.CredentialsRole, opts ...Option) *Router {
	r := &Router{}
	for _, role := range ours {
		if !slices.Contains(r.ours, role.Identity()) {
			r.ours = append(r.ours, role.Identity())
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route resolves sender and recipient for a request made by party, which
// is nil for anonymous calls.
func (r *Router) Route(party *models.RemoteParty, h Headers) (Routing, error) {
	routing, err := r.route(party, h)
	if err != nil {
		r.metrics.IncrementRoutingFailure()
	}
	return routing, err
}

func (r *Router) route(party *models.RemoteParty, h Headers) (Routing, error) {
	var routing Routing

	recipient, set, err := parseIdentity(h.ToCountryCode, h.ToPartyID, "recipient")
	if err != nil {
		return Routing{}, err
	}
	switch {
	case set:
		if !slices.Contains(r.ours, recipient) {
			return Routing{}, dErrors.New(dErrors.CodeForbidden, "recipient "+recipient.String()+" is not served by this platform")
		}
		routing.Recipient = recipient
	case len(r.ours) == 1:
		routing.Recipient = r.ours[0]
	}

	if party == nil {
		return routing, nil
	}

	routing.familyRoutes = Enumerate(party.Roles)

	sender, set, err := parseIdentity(h.FromCountryCode, h.FromPartyID, "sender")
	if err != nil {
		return Routing{}, err
	}
	if !set {
		return routing, nil
	}
	matched := false
	for f, fr := range routing.familyRoutes {
		if slices.Contains(fr.Identities, sender) {
			fr.Active = sender
			fr.Ambiguous = false
			routing.familyRoutes[f] = fr
			matched = true
		}
	}
	if !matched {
		return Routing{}, dErrors.New(dErrors.CodeForbidden, "sender "+sender.String()+" is not an identity of the authenticated party")
	}
	routing.Sender = sender
	routing.SenderExplicit = true
	return routing, nil
}

// Enumerate projects roles to identities per family. A family with one
// identity gets it as its active identity; one with several is ambiguous.
func Enumerate(roles []models.CredentialsRole) map[domain.RoleFamily]FamilyRoute {
	out := make(map[domain.RoleFamily]FamilyRoute)
	for _, f := range families {
		var ids []domain.PartyIdentity
		for _, role := range roles {
			if role.Role.Family() == f && !slices.Contains(ids, role.Identity()) {
				ids = append(ids, role.Identity())
			}
		}
		if len(ids) == 0 {
			continue
		}
		fr := FamilyRoute{Family: f, Identities: ids}
		if len(ids) == 1 {
			fr.Active = ids[0]
		} else {
			fr.Ambiguous = true
		}
		out[f] = fr
	}
	return out
}

// parseIdentity requires both halves of a header pair or neither.
func parseIdentity(countryCode, partyID, what string) (domain.PartyIdentity, bool, error) {
	if countryCode == "" && partyID == "" {
		return domain.PartyIdentity{}, false, nil
	}
	if countryCode == "" || partyID == "" {
		return domain.PartyIdentity{}, false, dErrors.New(dErrors.CodeValidation, what+" headers require both country code and party id")
	}
	id, err := domain.NewPartyIdentity(strings.ToUpper(countryCode), strings.ToUpper(partyID))
	if err != nil {
		return domain.PartyIdentity{}, false, dErrors.Wrap(err, dErrors.CodeValidation, "invalid "+what+" identity")
	}
	return id, true, nil
}
