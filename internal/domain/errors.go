package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds shared across components; match them with errors.Is.
var (
	ErrConfig          = errors.New("configuration error")
	ErrStore           = errors.New("store error")
	ErrClassifier      = errors.New("classifier error")
	ErrDelivery        = errors.New("delivery error")
	ErrValidation      = errors.New("validation error")
	ErrUnknownCategory = fmt.Errorf("%w: unknown category", ErrValidation)
)

// FailureCause is a coarse reason a classification call gave up.
type FailureCause string

const (
	CauseTimeout     FailureCause = "timeout"
	CauseConnection  FailureCause = "connection"
	CauseRateLimited FailureCause = "rate_limited"
	CauseQuota       FailureCause = "quota"
	CauseAuth        FailureCause = "auth"
	CauseMalformed   FailureCause = "malformed"
	CauseNetwork     FailureCause = "network"
)

// Transient reports whether another attempt can plausibly succeed.
func (c FailureCause) Transient() bool {
	switch c {
	case CauseAuth, CauseQuota:
		return false
	}
	return true
}

// ClassificationError is raised once the classifier has spent its attempt budget
// or hit a failure that retrying cannot fix.
type ClassificationError struct {
	Attempts  int
	Cause     FailureCause
	Retryable bool
	Err       error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification failed after %d attempt(s) (%s, retryable=%t): %v",
		e.Attempts, e.Cause, e.Retryable, e.Err)
}

func (e *ClassificationError) Unwrap() []error { return []error{ErrClassifier, e.Err} }

// DeliveryFailure enumerates chat delivery failure classes.
type DeliveryFailure string

const (
	DeliveryNetwork             DeliveryFailure = "network"
	DeliveryDestinationNotFound DeliveryFailure = "destination_not_found"
	DeliverySenderBlocked       DeliveryFailure = "sender_blocked"
	DeliveryMessageTooLong      DeliveryFailure = "message_too_long"
	DeliveryRateLimited         DeliveryFailure = "rate_limited"
	DeliveryAPI                 DeliveryFailure = "api"
)

// DeliveryError describes one failed send.
type DeliveryError struct {
	Kind        DeliveryFailure
	Description string
	RetryAfter  time.Duration
	Err         error
}

func (e *DeliveryError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("delivery %s: %s", e.Kind, e.Description)
	}
	if e.Err != nil {
		return fmt.Sprintf("delivery %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("delivery %s", e.Kind)
}

func (e *DeliveryError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDelivery}
	}
	return []error{ErrDelivery, e.Err}
}

// Fatal is true for failures that make every further send pointless.
func (e *DeliveryError) Fatal() bool {
	return e.Kind == DeliveryDestinationNotFound || e.Kind == DeliverySenderBlocked
}
