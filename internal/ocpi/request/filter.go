package request

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/platform/config"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
)

// Paging headers.
const (
	HeaderTotalCount = "X-Total-Count"
	HeaderLimit      = "X-Limit"
	HeaderLink       = "Link"
)

// Filter selects a page of a list. DateFrom is inclusive, DateTo exclusive.
type Filter struct {
	DateFrom *time.Time
	DateTo   *time.Time
	Offset   int
	Limit    int
}

// Matches reports whether an entity last updated at t is inside the window.
func (f Filter) Matches(t time.Time) bool {
	if f.DateFrom != nil && t.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && !t.Before(*f.DateTo) {
		return false
	}
	return true
}

// ParseFilter reads date_from, date_to, offset and limit. A limit above the
// configured maximum is clamped rather than rejected; malformed values are
// a validation error.
func ParseFilter(q url.Values, p config.Pagination) (Filter, error) {
	f := Filter{Limit: p.DefaultLimit}
	var err error
	if f.DateFrom, err = parseTime(q.Get("date_from"), "date_from"); err != nil {
		return Filter{}, err
	}
	if f.DateTo, err = parseTime(q.Get("date_to"), "date_to"); err != nil {
		return Filter{}, err
	}
	if f.DateFrom != nil && f.DateTo != nil && !f.DateTo.After(*f.DateFrom) {
		return Filter{}, dErrors.New(dErrors.CodeValidation, "date_to must be after date_from")
	}
	if v := q.Get("offset"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 0 {
			return Filter{}, dErrors.New(dErrors.CodeValidation, "offset must be a non-negative integer")
		}
		f.Offset = n
	}
	if v := q.Get("limit"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 1 {
			return Filter{}, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer")
		}
		f.Limit = n
	}
	if p.MaxLimit > 0 && f.Limit > p.MaxLimit {
		f.Limit = p.MaxLimit
	}
	return f, nil
}

func parseTime(v, name string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	ts, err := domain.ParseTimestamp(v)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, name+" must be an RFC 3339 timestamp")
	}
	t := ts.Time
	return &t, nil
}

// Page applies offset and limit to an already filtered slice.
func Page[T any](items []T, f Filter) []T {
	if f.Offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return items[f.Offset:end]
}

// WritePaging sets X-Total-Count, X-Limit and, when more items follow, a
// Link header pointing at the next page. baseURL is the public origin the
// counterpart reached us on.
func WritePaging(w http.ResponseWriter, r *http.Request, baseURL string, total int, f Filter) {
	w.Header().Set(HeaderTotalCount, strconv.Itoa(total))
	w.Header().Set(HeaderLimit, strconv.Itoa(f.Limit))
	if f.Limit <= 0 || f.Offset >= total || f.Limit >= total-f.Offset {
		return
	}
	next := f.Offset + f.Limit
	q := r.URL.Query()
	q.Set("offset", strconv.Itoa(next))
	q.Set("limit", strconv.Itoa(f.Limit))
	w.Header().Set(HeaderLink, "<"+baseURL+r.URL.Path+"?"+q.Encode()+`>; rel="next"`)
}
