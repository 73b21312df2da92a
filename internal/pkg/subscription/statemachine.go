package subscription

import (
	"errors"
	"fmt"

	"github.com/hirewireapp/hirewire/app/models"
)

// StatusNone is the state of a subscription we have never seen before.
const StatusNone = ""

// InvalidTransitionError rejects a status change the lifecycle does not
// allow, typically caused by out-of-order webhook delivery.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid subscription transition from %q to %q", e.From, e.To)
}

type transition struct {
	from string
	to   string
}

// allowedTransitions is the complete lifecycle table. Canceled is terminal:
// no event moves a subscription out of it, so a late update delivered after
// the deletion event cannot resurrect the record.
var allowedTransitions = map[transition]bool{
	{StatusNone, models.SubscriptionStatusTrialing}: true,
	{StatusNone, models.SubscriptionStatusActive}:   true,

	{models.SubscriptionStatusTrialing, models.SubscriptionStatusActive}:   true,
	{models.SubscriptionStatusTrialing, models.SubscriptionStatusPastDue}:  true,
	{models.SubscriptionStatusTrialing, models.SubscriptionStatusCanceled}: true,

	{models.SubscriptionStatusActive, models.SubscriptionStatusPastDue}:  true,
	{models.SubscriptionStatusActive, models.SubscriptionStatusCanceled}: true,

	{models.SubscriptionStatusPastDue, models.SubscriptionStatusActive}:   true,
	{models.SubscriptionStatusPastDue, models.SubscriptionStatusCanceled}: true,
}

// CanTransition reports whether the lifecycle allows from -> to. Staying in
// the current status is always allowed: authoritative snapshots may repeat
// the state we already hold.
func CanTransition(from, to string) bool {
	if from == to && from != StatusNone {
		return true
	}
	return allowedTransitions[transition{from: from, to: to}]
}

// Transition validates from -> to and returns the resulting status.
func Transition(from, to string) (string, error) {
	if !CanTransition(from, to) {
		return from, &InvalidTransitionError{From: from, To: to}
	}
	return to, nil
}

// IsInvalidTransition reports whether err is a lifecycle rejection.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}
