// Package eligibility decides whether an actor may complete a mission on a
// reference date and derives the key that scopes duplicate detection.
package eligibility

import (
	"fmt"
	"regexp"
	"time"

	"routinepet/internal/domain"
	"routinepet/internal/failure"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ParseDate parses a calendar date in YYYY-MM-DD form, rejecting out-of-range days.
func ParseDate(s string) (time.Time, error) {
	if !datePattern.MatchString(s) {
		return time.Time{}, fmt.Errorf("date %q must be YYYY-MM-DD", s)
	}
	d, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", s, err)
	}
	return d, nil
}

// CompletionKey returns the completion-reference-key for the next completion.
// Daily missions are keyed by date; bounded missions by completion ordinal,
// e.g. "once#1", so each allowed completion owns one unique slot.
func CompletionKey(m domain.Mission, date string, completed int) string {
	if m.Period.Bounded() {
		return fmt.Sprintf("%s#%d", m.Period, completed+1)
	}
	return date
}

// Remaining is how many completions are left under max_completions, floored at 0.
func Remaining(m domain.Mission, completed int) int {
	if left := m.MaxCompletions - completed; left > 0 {
		return left
	}
	return 0
}

// Check runs the eligibility checks in order and returns the completion key
// to record when the mission may be completed. history holds the actor's
// existing completions of this mission.
func Check(m domain.Mission, date string, history []domain.Completion) (string, error) {
	ref, err := ParseDate(date)
	if err != nil {
		return "", failure.Wrap(failure.ReasonValidation, err)
	}
	if !m.IsActive {
		return "", failure.New(failure.ReasonInactive, "mission %s is inactive", m.ID)
	}
	from, err := ParseDate(m.ActiveFrom)
	if err != nil {
		return "", failure.Wrap(failure.ReasonStorage, fmt.Errorf("mission %s active_from: %w", m.ID, err))
	}
	to, err := ParseDate(m.ActiveTo)
	if err != nil {
		return "", failure.Wrap(failure.ReasonStorage, fmt.Errorf("mission %s active_to: %w", m.ID, err))
	}
	if ref.Before(from) || ref.After(to) {
		return "", failure.New(failure.ReasonOutOfWindow, "mission %s runs %s..%s, not %s", m.ID, m.ActiveFrom, m.ActiveTo, date)
	}
	key := CompletionKey(m, date, len(history))
	for _, c := range history {
		if c.CompletionRef == key {
			return "", failure.New(failure.ReasonAlreadyDone, "mission %s already completed for %s", m.ID, key)
		}
	}
	if m.Period.Bounded() && len(history) >= m.MaxCompletions {
		return "", failure.New(failure.ReasonLimitReached, "mission %s allows %d completions", m.ID, m.MaxCompletions)
	}
	return key, nil
}
