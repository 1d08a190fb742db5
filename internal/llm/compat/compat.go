// Package compat enforces the mutual-exclusivity rule between a provider's
// native grounding tools and structured-output mode. The Google Gemini API
// cannot set both GenerateContentConfig.Tools
// (GoogleSearch retrieval) and a ResponseSchema/ResponseMIMEType on the same
// request; every task that wants native search grounding must therefore run
// ungrounded when it also needs schema-constrained output, or vice versa.
package compat

import "fmt"

// ErrIncompatibleRequest is returned when a task requests a combination of
// features its resolved provider cannot satisfy in one call.
type ErrIncompatibleRequest struct {
	Provider string
	Reason   string
}

func (e *ErrIncompatibleRequest) Error() string {
	return fmt.Sprintf("provider %s cannot satisfy request: %s", e.Provider, e.Reason)
}

// GroundingRestrictedProviders lists providers whose adapters support native
// retrieval grounding. Today only the Google adapter does.
//
//nolint:gochecknoglobals // static capability table
var GroundingRestrictedProviders = map[string]bool{
	"google": true,
}

// Check validates that a task can be routed to provider given whether it
// wants native grounding tools and/or schema-constrained structured output.
// It returns nil when the combination is satisfiable, or an
// *ErrIncompatibleRequest describing why not.
func Check(provider string, wantsGrounding, wantsStructuredOutput bool) error {
	if !wantsGrounding || !wantsStructuredOutput {
		return nil
	}

	if GroundingRestrictedProviders[provider] {
		return &ErrIncompatibleRequest{
			Provider: provider,
			Reason:   "native grounding tools and structured/schema output cannot be requested in the same call",
		}
	}

	// Providers without native grounding silently ignore WantsGrounding, so
	// there is nothing to reject here; the orchestrator should not have set
	// WantsGrounding for a non-grounding-capable provider in the first place.
	return nil
}

// ResolveMode decides whether a request to provider should carry native
// grounding tools, schema-constrained
// structured output, or both: when the prompt declares grounding tools AND
// provider is in the grounding-restricted family, structured output MUST be
// disabled (grounding wins, the response is parsed defensively from text);
// otherwise structured output is requested whenever hasOutputSchema is set,
// and grounding passes through unchanged.
func ResolveMode(provider string, wantsGrounding, hasOutputSchema bool) (grounding, structured bool) {
	if wantsGrounding && GroundingRestrictedProviders[provider] {
		return true, false
	}
	return wantsGrounding, hasOutputSchema
}
