package domain

import (
	"encoding/json"
	"time"

	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
)

// TimestampLayout renders UTC instants with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp is an instant truncated to milliseconds in UTC, which is the
// precision that survives a round trip over the wire.
type Timestamp struct {
	time.Time
}

// NewTimestamp normalizes t to UTC milliseconds.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Millisecond)}
}

// zonelessLayout is the 2.1.1 form without an offset, read as UTC.
const zonelessLayout = "2006-01-02T15:04:05.999999999"

// ParseTimestamp accepts any RFC 3339 instant, and the zoneless form older
// peers send, which is taken as UTC.
func ParseTimestamp(s string) (Timestamp, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		var zerr error
		if t, zerr = time.ParseInLocation(zonelessLayout, s, time.UTC); zerr != nil {
			return Timestamp{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid timestamp "+s)
		}
	}
	return NewTimestamp(t), nil
}

func (t Timestamp) String() string {
	return t.UTC().Format(TimestampLayout)
}

// After reports whether t is strictly later than other.
func (t Timestamp) After(other Timestamp) bool {
	return t.Time.After(other.Time)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
