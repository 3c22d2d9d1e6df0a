// Package failure defines the structured failure reasons returned by the
// mission completion and reset operations.
package failure

import (
	"errors"
	"fmt"
)

// Reason is a machine-readable failure code.
type Reason string

const (
	ReasonValidation      Reason = "validation_error"
	ReasonMissionNotFound Reason = "mission_not_found"
	ReasonPetNotFound     Reason = "pet_not_found"
	ReasonNoStageCatalog  Reason = "no_stage_catalog"
	ReasonInactive        Reason = "inactive"
	ReasonOutOfWindow     Reason = "out_of_window"
	ReasonAlreadyDone     Reason = "already_completed"
	ReasonLimitReached    Reason = "completion_limit_reached"
	ReasonStorage         Reason = "storage_error"
)

var messages = map[Reason]string{
	ReasonValidation:      "The completion date is not a valid calendar date.",
	ReasonMissionNotFound: "This mission does not exist.",
	ReasonPetNotFound:     "No pet exists for this player. Seed the demo data first.",
	ReasonNoStageCatalog:  "Pet stage data is missing. Seed the stage catalog first.",
	ReasonInactive:        "This mission is not active right now.",
	ReasonOutOfWindow:     "This mission is not available on that date.",
	ReasonAlreadyDone:     "You already completed this mission.",
	ReasonLimitReached:    "This mission has no completions left.",
	ReasonStorage:         "Something went wrong while saving. Please try again later.",
}

// Message returns the user-facing text for a reason.
func Message(r Reason) string {
	if m, ok := messages[r]; ok {
		return m
	}
	return messages[ReasonStorage]
}

// Error carries a Reason plus the underlying cause, if any.
type Error struct {
	Reason Reason
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return string(e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Message returns the user-facing text for the error's reason.
func (e *Error) Message() string { return Message(e.Reason) }

// New builds a failure with a formatted detail.
func New(r Reason, format string, args ...any) *Error {
	return &Error{Reason: r, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a reason to an underlying error.
func Wrap(r Reason, err error) *Error {
	return &Error{Reason: r, Err: err}
}

// From normalizes err to *Error; anything unclassified is a storage error.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return Wrap(ReasonStorage, err)
}

// ReasonOf reports the reason carried by err, or "" for nil.
func ReasonOf(err error) Reason {
	if err == nil {
		return ""
	}
	return From(err).Reason
}

// Is reports whether err carries reason r.
func Is(err error, r Reason) bool {
	return err != nil && ReasonOf(err) == r
}
