package resolver

// ReasonCode classifies why a presented token was not accepted.
type ReasonCode string

const (
	ReasonMissingToken ReasonCode = "missing_token"
	ReasonUnknownToken ReasonCode = "unknown_token"
	ReasonInvalidCode  ReasonCode = "invalid_code"
	ReasonCodeRequired ReasonCode = "code_required"
	ReasonNotYetActive ReasonCode = "not_yet_active"
	ReasonExpired      ReasonCode = "expired"
	ReasonBlocked      ReasonCode = "blocked"
)

var reasonMessages = map[ReasonCode]string{
	ReasonMissingToken: "Missing or malformed authorization token",
	ReasonUnknownToken: "Unknown token",
	ReasonInvalidCode:  "Invalid or expired one-time code",
	ReasonCodeRequired: "One-time code required for this token",
	ReasonNotYetActive: "Token is not yet active",
	ReasonExpired:      "Token has expired",
	ReasonBlocked:      "Token is blocked",
}

// Reason is one rejection recorded while resolving.
type Reason struct {
	Code    ReasonCode `json:"code"`
	Message string     `json:"message"`
}

func newReason(code ReasonCode) Reason {
	return Reason{Code: code, Message: reasonMessages[code]}
}

// Messages returns the client facing list: each reason once, and the
// generic unknown-token reason only when nothing more specific was found.
func Messages(reasons []Reason) []string {
	specific := false
	for _, r := range reasons {
		if r.Code != ReasonUnknownToken && r.Code != ReasonMissingToken {
			specific = true
			break
		}
	}
	seen := make(map[ReasonCode]struct{}, len(reasons))
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		if specific && r.Code == ReasonUnknownToken {
			continue
		}
		if _, dup := seen[r.Code]; dup {
			continue
		}
		seen[r.Code] = struct{}{}
		out = append(out, r.Message)
	}
	return out
}
