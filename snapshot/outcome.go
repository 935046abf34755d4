package snapshot

import "strings"

// DefaultOutcomeMapper maps the host's native build outcomes.
type DefaultOutcomeMapper struct{}

func (DefaultOutcomeMapper) MapOutcome(native string) Result {
	switch strings.ToUpper(strings.TrimSpace(native)) {
	case "SUCCESS", "SUCCEEDED":
		return ResultSuccess
	case "FAILURE", "FAILED", "ERROR":
		return ResultFailure
	case "UNSTABLE":
		return ResultUnstable
	case "CANCELED", "ABORTED", "INTERRUPTED":
		return ResultAborted
	default:
		return ResultUnavailable
	}
}
