package history

import (
	"fmt"
	"strings"
	"time"
)

// ActivityRule decides whether a policy term is active at an instant.
type ActivityRule int

const (
	// ActiveOngoing treats a policy as active from its start date (inclusive)
	// until its end date (exclusive).
	ActiveOngoing ActivityRule = iota

	// ActiveLiteral reproduces the legacy comparison: active only when both
	// start and end dates are strictly before the instant.
	ActiveLiteral
)

func (r ActivityRule) String() string {
	switch r {
	case ActiveOngoing:
		return "ongoing"
	case ActiveLiteral:
		return "literal"
	}
	return fmt.Sprintf("ActivityRule(%d)", int(r))
}

// ParseActivityRule parses "ongoing" or "literal". Empty means ongoing.
func ParseActivityRule(s string) (ActivityRule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ongoing":
		return ActiveOngoing, nil
	case "literal":
		return ActiveLiteral, nil
	}
	return ActiveOngoing, fmt.Errorf("unknown activity rule %q", s)
}

// IsActive applies the rule to a term [start, end] at instant on.
func (r ActivityRule) IsActive(start, end, on time.Time) bool {
	if r == ActiveLiteral {
		return start.Before(on) && end.Before(on)
	}
	return !start.After(on) && on.Before(end)
}
