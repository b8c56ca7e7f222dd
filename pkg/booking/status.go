package booking

import "fmt"

// Kind distinguishes the two booking flavours driven by the engine.
type Kind string

const (
	KindParking Kind = "parking"
	KindService Kind = "service"
)

// String returns the kind value.
func (kind Kind) String() string {
	return string(kind)
}

// Status is a lifecycle state of a parking booking or a service order.
type Status string

const (
	StatusPending           Status = "pending"
	StatusConfirmed         Status = "confirmed"
	StatusActive            Status = "active"
	StatusCheckoutRequested Status = "checkout_requested"
	StatusCheckoutPaid      Status = "checkout_paid"
	StatusInProgress        Status = "in_progress"
	StatusCompleted         Status = "completed"
	StatusCancelled         Status = "cancelled"
	StatusRejected          Status = "rejected"
)

// String returns the status value.
func (status Status) String() string {
	return string(status)
}

// ParseStatus validates a stored status for kind.
func ParseStatus(kind Kind, raw string) (Status, error) {
	status := Status(raw)
	var table map[Event]transition
	switch kind {
	case KindParking:
		table = parkingTransitions
	case KindService:
		table = serviceTransitions
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, kind)
	}
	if status == StatusPending {
		return status, nil
	}
	for _, rule := range table {
		if rule.to == status {
			return status, nil
		}
		for _, from := range rule.from {
			if from == status {
				return status, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %q is not a %s status", ErrInvalidRequest, raw, kind)
}

// Event names a lifecycle transition.
type Event string

const (
	EventConfirm         Event = "confirm"
	EventActivate        Event = "activate"
	EventRequestCheckout Event = "request_checkout"
	EventPayCheckout     Event = "pay_checkout"
	EventComplete        Event = "complete"
	EventReject          Event = "reject"
	EventCancel          Event = "cancel"
	EventExpire          Event = "expire"
	EventStart           Event = "start"
)

// String returns the event value.
func (event Event) String() string {
	return string(event)
}

type transition struct {
	from []Status
	to   Status
}

func (rule transition) allows(status Status) bool {
	for _, from := range rule.from {
		if from == status {
			return true
		}
	}
	return false
}

var parkingTransitions = map[Event]transition{
	EventConfirm:         {from: []Status{StatusPending}, to: StatusConfirmed},
	EventActivate:        {from: []Status{StatusConfirmed}, to: StatusActive},
	EventRequestCheckout: {from: []Status{StatusActive}, to: StatusCheckoutRequested},
	EventPayCheckout:     {from: []Status{StatusCheckoutRequested}, to: StatusCheckoutPaid},
	EventComplete:        {from: []Status{StatusCheckoutRequested, StatusCheckoutPaid}, to: StatusCompleted},
	EventReject:          {from: []Status{StatusCheckoutRequested, StatusCheckoutPaid}, to: StatusRejected},
	EventCancel:          {from: []Status{StatusPending}, to: StatusCancelled},
	EventExpire:          {from: []Status{StatusConfirmed}, to: StatusCompleted},
}

var serviceTransitions = map[Event]transition{
	EventConfirm:  {from: []Status{StatusPending}, to: StatusConfirmed},
	EventStart:    {from: []Status{StatusConfirmed}, to: StatusInProgress},
	EventComplete: {from: []Status{StatusInProgress}, to: StatusCompleted},
	EventCancel:   {from: []Status{StatusPending, StatusConfirmed, StatusInProgress}, to: StatusCancelled},
}

// CanTransition reports whether event is allowed from status for kind.
func CanTransition(kind Kind, status Status, event Event) bool {
	var table map[Event]transition
	switch kind {
	case KindParking:
		table = parkingTransitions
	case KindService:
		table = serviceTransitions
	default:
		return false
	}
	rule, ok := table[event]
	return ok && rule.allows(status)
}
