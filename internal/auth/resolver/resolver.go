// Package resolver decides which remote party issued an inbound call.
//
// A presented token yields up to two candidates (literal and Base64
// decoded). Each candidate only matches registry entries recorded with the
// same encoding, so a literal string equal to a Base64-bound token is
// unknown. Resolution never mutates the registry.
package resolver

import (
	"context"
	"log/slog"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	authmetrics "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/auth/metrics"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/models"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/requestcontext"
)

const (
	defaultCodePeriod = 30
	defaultCodeDigits = 6
)

// Encoding records how the accepted token was obtained from the header.
type Encoding string

const (
	EncodingNone   Encoding = ""
	EncodingRaw    Encoding = "raw"
	EncodingBase64 Encoding = "base64"
)

// Registry is the read side of the party registry.
type Registry interface {
	LookupToken(ctx context.Context, tk models.TokenKey) (*models.RemoteParty, models.LocalAccessInfo, bool, error)
}

// Resolution is the outcome of resolving one request. Exactly one of
// Party != nil, Anonymous or len(Reasons) > 0 describes the result.
type Resolution struct {
	Party     *models.RemoteParty
	Access    models.LocalAccessInfo
	Token     models.AccessToken
	Encoding  Encoding
	Anonymous bool
	Reasons   []Reason
}

// Authenticated reports whether a party was identified.
func (r Resolution) Authenticated() bool {
	return r.Party != nil
}

// Rejected reports whether the request must be answered with 401.
func (r Resolution) Rejected() bool {
	return r.Party == nil && !r.Anonymous
}

// Messages returns the deduplicated client facing reasons.
func (r Resolution) Messages() []string {
	return Messages(r.Reasons)
}

// Resolver is safe for concurrent use.
type Resolver struct {
	registry Registry
	openData bool
	logger   *slog.Logger
	metrics  *authmetrics.Metrics
}

type Option func(*Resolver)

// WithOpenData turns missing and unknown tokens into anonymous access.
func WithOpenData(enabled bool) Option {
	return func(r *Resolver) {
		r.openData = enabled
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func WithMetrics(m *authmetrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

func New(registry Registry, opts ...Option) *Resolver {
	r := &Resolver{registry: registry}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve evaluates the Authorization header value and an optional
// one-time code from a separate header. The error is reserved for registry
// failures; rejections are reported in the Resolution.
func (r *Resolver) Resolve(ctx context.Context, authorization, code string) (Resolution, error) {
	if r.metrics != nil {
		defer r.metrics.ObserveResolve(time.Now())
	}
	presented, ok, why := ParseAuthorization(authorization)
	if !ok {
		if r.logger != nil && authorization != "" {
			r.logger.DebugContext(ctx, "unusable authorization header", "reason", why)
		}
		return r.finish(ctx, Resolution{Reasons: []Reason{newReason(ReasonMissingToken)}}), nil
	}
	if presented.Code != "" {
		code = presented.Code
	}

	now := requestcontext.Now(ctx)
	var res Resolution
	for _, cand := range Candidates(presented.Token) {
		party, info, found, err := r.registry.LookupToken(ctx, cand.Key)
		if err != nil {
			return Resolution{}, dErrors.Wrap(err, dErrors.CodeInternal, "token lookup failed")
		}
		if !found || info.Base64 != cand.Key.Base64 {
			res.Reasons = append(res.Reasons, newReason(ReasonUnknownToken))
			continue
		}
		if reason, ok := check(party, info, code, now); !ok {
			res.Reasons = append(res.Reasons, newReason(reason))
			continue
		}
		// Candidates are ordered raw first, so the first acceptance wins.
		res.Party = party
		res.Access = info
		res.Token = cand.Key.Token
		res.Encoding = cand.Encoding
		res.Reasons = nil
		return r.finish(ctx, res), nil
	}
	if len(res.Reasons) == 0 {
		res.Reasons = []Reason{newReason(ReasonUnknownToken)}
	}
	return r.finish(ctx, res), nil
}

// check validates an entry that matched a candidate.
func check(party *models.RemoteParty, info models.LocalAccessInfo, code string, now time.Time) (ReasonCode, bool) {
	if party.IsBlocked() {
		return ReasonBlocked, false
	}
	switch info.ValidityAt(now) {
	case models.Blocked:
		return ReasonBlocked, false
	case models.NotYetActive:
		return ReasonNotYetActive, false
	case models.Expired:
		return ReasonExpired, false
	}
	if info.TOTP == nil {
		if code != "" {
			return ReasonInvalidCode, false
		}
		return "", true
	}
	if code == "" {
		return ReasonCodeRequired, false
	}
	if !validCode(*info.TOTP, code, now) {
		return ReasonInvalidCode, false
	}
	return "", true
}

func validCode(cfg models.TOTPConfig, code string, now time.Time) bool {
	period := cfg.PeriodSeconds
	if period == 0 {
		period = defaultCodePeriod
	}
	digits := cfg.Digits
	if digits == 0 {
		digits = defaultCodeDigits
	}
	ok, err := totp.ValidateCustom(code, cfg.Secret, now.UTC(), totp.ValidateOpts{
		Period:    period,
		Skew:      1,
		Digits:    otp.Digits(digits),
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// finish applies the open-data downgrade and records the outcome.
func (r *Resolver) finish(ctx context.Context, res Resolution) Resolution {
	if res.Party == nil && r.openData && onlyGeneric(res.Reasons) {
		res.Anonymous = true
		res.Reasons = nil
	}
	switch {
	case res.Party != nil:
		r.metrics.IncrementResolution("authenticated", string(res.Encoding))
		if r.logger != nil {
			r.logger.DebugContext(ctx, "token resolved",
				"party", res.Party.Key.String(),
				"token", res.Token.Fingerprint(),
				"encoding", string(res.Encoding))
		}
	case res.Anonymous:
		r.metrics.IncrementResolution("anonymous", "")
	default:
		r.metrics.IncrementResolution("rejected", "")
		for _, reason := range res.Reasons {
			r.metrics.IncrementRejection(string(reason.Code))
		}
	}
	return res
}

// onlyGeneric reports whether every reason is missing or unknown token;
// specific rejections such as an expired token are never downgraded.
func onlyGeneric(reasons []Reason) bool {
	for _, reason := range reasons {
		if reason.Code != ReasonUnknownToken && reason.Code != ReasonMissingToken {
			return false
		}
	}
	return true
}
