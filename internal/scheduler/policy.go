package scheduler

import (
	"fmt"
	"strings"
)

// Policy decides what callers see while a regeneration is in flight.
type Policy int

const (
	// PolicyWait blocks callers until the in-flight regeneration settles and
	// hands them its outcome.
	PolicyWait Policy = iota
	// PolicyServeStale answers immediately with the previous still. Callers
	// wait anyway when there is no previous still.
	PolicyServeStale
)

func (p Policy) String() string {
	switch p {
	case PolicyServeStale:
		return "stale"
	default:
		return "wait"
	}
}

// ParsePolicy accepts "wait" and "stale". Empty input selects PolicyWait.
func ParsePolicy(raw string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "wait":
		return PolicyWait, nil
	case "stale", "serve-stale", "serve_stale":
		return PolicyServeStale, nil
	default:
		return PolicyWait, fmt.Errorf("unknown concurrency policy %q", raw)
	}
}
