package hazard

import (
	"fmt"
	"strings"
	"time"
)

// MalformedHistoryError reports an ordering or duplication violation in an
// entity's raw state history. The input is never auto-repaired.
type MalformedHistoryError struct {
	EntityID string
	Index    int
	Date     time.Time
	Reason   string
}

// Error implements the error interface
func (e *MalformedHistoryError) Error() string {
	return fmt.Sprintf("malformed history for entity %s at record %d (%s): %s",
		e.EntityID, e.Index, e.Date.Format("2006-01-02"), e.Reason)
}

// InsufficientEventsError reports that a transition type had too few
// non-censored episodes to fit. It is a named partial failure: sibling
// transition types in the same bank fit independently.
type InsufficientEventsError struct {
	Transition TransitionType
	Events     int
	Minimum    int
}

// Error implements the error interface
func (e *InsufficientEventsError) Error() string {
	return fmt.Sprintf("insufficient events for %s transition: %d < minimum %d",
		e.Transition, e.Events, e.Minimum)
}

// InvalidHorizonError reports a non-positive scoring horizon
type InvalidHorizonError struct {
	HorizonDays int
}

// Error implements the error interface
func (e *InvalidHorizonError) Error() string {
	return fmt.Sprintf("invalid horizon: %d days (must be > 0)", e.HorizonDays)
}

// CovariateMismatchError reports that a scoring-time covariate vector does
// not carry the names the bank was fit on. Never silently coerced.
type CovariateMismatchError struct {
	Missing    []string
	Unexpected []string
}

// Error implements the error interface
func (e *CovariateMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected: "+strings.Join(e.Unexpected, ", "))
	}
	return "covariate mismatch (" + strings.Join(parts, "; ") + ")"
}
