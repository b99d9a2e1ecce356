// Package collab holds the contracts the pipeline delegates to for target
// validation, content fetching, and content description, together with
// default implementations.
package collab

import "context"

// RiskTier classifies a target after validation.
type RiskTier string

const (
	RiskSafe     RiskTier = "safe"
	RiskCaution  RiskTier = "caution"
	RiskRejected RiskTier = "rejected"
)

// Verdict is the outcome of validating a target.
type Verdict struct {
	Accepted bool
	RiskTier RiskTier
	Reason   string
}

// Validator decides whether a target may be visualized. A caution tier lets
// the pipeline proceed with an annotated warning; rejected terminates it.
type Validator interface {
	Validate(ctx context.Context, target string) (Verdict, error)
}

// Fetcher retrieves the raw content behind a target address.
type Fetcher interface {
	Fetch(ctx context.Context, target string) ([]byte, error)
}

// Describer summarizes fetched content into the prompt handed to the
// generation backends. The pipeline treats an empty description as a failure
// even when the describer reports success.
type Describer interface {
	Describe(ctx context.Context, target string, content []byte) (string, error)
}
