package collab

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// KeywordValidator is a lightweight local classifier: a denylist rejects a
// target outright, a cautionlist lets it through with a warning. It stands in
// for a hosted safety classifier and shares its contract.
type KeywordValidator struct {
	deny    []string
	caution []string
}

// NewKeywordValidator constructs the validator. Terms are matched
// case-insensitively against the whole target address.
func NewKeywordValidator(deny, caution []string) *KeywordValidator {
	return &KeywordValidator{deny: lowerAll(deny), caution: lowerAll(caution)}
}

// Validate classifies the target.
func (v *KeywordValidator) Validate(ctx context.Context, target string) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}
	trimmed := strings.TrimSpace(target)
	if trimmed == "" {
		return Verdict{Accepted: false, RiskTier: RiskRejected, Reason: "empty target"}, nil
	}
	if u, err := url.Parse(trimmed); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return Verdict{Accepted: false, RiskTier: RiskRejected, Reason: "target is not a valid http(s) address"}, nil
	}
	lowered := strings.ToLower(trimmed)
	for _, term := range v.deny {
		if strings.Contains(lowered, term) {
			return Verdict{
				Accepted: false,
				RiskTier: RiskRejected,
				Reason:   fmt.Sprintf("target matches blocked term %q", term),
			}, nil
		}
	}
	for _, term := range v.caution {
		if strings.Contains(lowered, term) {
			return Verdict{
				Accepted: true,
				RiskTier: RiskCaution,
				Reason:   fmt.Sprintf("target matches flagged term %q", term),
			}, nil
		}
	}
	return Verdict{Accepted: true, RiskTier: RiskSafe}, nil
}

func lowerAll(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

var _ Validator = (*KeywordValidator)(nil)
