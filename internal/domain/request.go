package domain

// GenerationRequest describes a single visualization request. It is created
// once per incoming call and never mutated afterwards; the pipeline invocation
// that received it is its sole owner.
type GenerationRequest struct {
	// Target is the external resource address to visualize.
	Target string
	// ProviderPreference, when set, moves the named provider to the front of
	// the fallback chain. It never restricts the chain to that provider.
	ProviderPreference string
	// CallerID identifies the requester for logging and analytics.
	CallerID string
	// Size and Quality are optional rendering hints. Providers clamp
	// unsupported values to their own defaults.
	Size    string
	Quality string
	// Locale selects the language used for progress messages.
	Locale string
}
