package protocol

import "bytes"

// Verdict is the outcome of classifying one authentication response.
type Verdict int

const (
	// VerdictRejected means the device refused the credential, or the
	// response was too ambiguous to trust.
	VerdictRejected Verdict = iota
	// VerdictAccepted means the device acknowledged the credential.
	VerdictAccepted
	// VerdictAssumeSuccess means no usable confirmation arrived but
	// policy treats the attempt as successful.
	VerdictAssumeSuccess
	// VerdictTimeout means no response arrived within the wait window.
	VerdictTimeout
)

func (v Verdict) String() string {
	switch v {
	case VerdictAccepted:
		return "accepted"
	case VerdictAssumeSuccess:
		return "assume-success"
	case VerdictTimeout:
		return "timeout"
	default:
		return "rejected"
	}
}

// Authenticated reports whether the verdict counts as a successful
// authentication.
func (v Verdict) Authenticated() bool {
	return v == VerdictAccepted || v == VerdictAssumeSuccess
}

// ResponseRule is one declarative classification pattern. A rule matches
// when the response length falls within [MinLen, MaxLen] (MaxLen < 0
// means unbounded) and, if set, the response equals one of Exact or
// starts with Prefix.
type ResponseRule struct {
	Name    string
	MinLen  int
	MaxLen  int // -1 = no upper bound
	Exact   [][]byte
	Prefix  []byte
	Verdict Verdict
}

func (r ResponseRule) matches(resp []byte) bool {
	if len(resp) < r.MinLen {
		return false
	}
	if r.MaxLen >= 0 && len(resp) > r.MaxLen {
		return false
	}
	if r.Prefix != nil && !bytes.HasPrefix(resp, r.Prefix) {
		return false
	}
	if r.Exact != nil {
		for _, want := range r.Exact {
			if bytes.Equal(resp, want) {
				return true
			}
		}
		return false
	}
	return true
}

// DefaultAuthRules returns the classification rules observed on the known
// adapter hardware. Order matters: "OK" and single-status bytes are
// checked before the long-response echo rule, and the explicit rejection
// patterns before the low-confidence short-response default.
func DefaultAuthRules() []ResponseRule {
	return []ResponseRule{
		{Name: "ok-ascii", MinLen: 2, MaxLen: 2, Exact: [][]byte{{0x4F, 0x4B}}, Verdict: VerdictAccepted},
		{Name: "status-byte", MinLen: 1, MaxLen: 1, Exact: [][]byte{{0x00}, {0x01}}, Verdict: VerdictAccepted},
		{Name: "credential-echo", MinLen: 5, MaxLen: -1, Verdict: VerdictAccepted},
		{Name: "double-zero", MinLen: 2, MaxLen: 2, Exact: [][]byte{{0x00, 0x00}}, Verdict: VerdictRejected},
		{Name: "error-marker", MinLen: 1, MaxLen: -1, Prefix: []byte{0xFF}, Verdict: VerdictRejected},
		{Name: "short-default", MinLen: 1, MaxLen: 4, Verdict: VerdictRejected},
	}
}

// Classify maps a raw response to a verdict using the first matching
// rule. It is a pure function of the rule list and the response bytes;
// an empty response matches no default rule and yields VerdictRejected.
func Classify(rules []ResponseRule, resp []byte) Verdict {
	for _, r := range rules {
		if r.matches(resp) {
			return r.Verdict
		}
	}
	return VerdictRejected
}

// MatchingRule returns the name of the first rule matching resp, or ""
// when none does. Used for log output only.
func MatchingRule(rules []ResponseRule, resp []byte) string {
	for _, r := range rules {
		if r.matches(resp) {
			return r.Name
		}
	}
	return ""
}
