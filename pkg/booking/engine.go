package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/notice"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/wallet"
)

// step carries one transition through its hooks.
type step[T any, C any] struct {
	records Records
	event   Event
	from    Status
	current T
	change  *C
	actor   wallet.UserID
	now     time.Time
	notices []notice.Notice
}

func (transitionStep *step[T, C]) emit(message notice.Notice) {
	message.OccurredAt = transitionStep.now
	transitionStep.notices = append(transitionStep.notices, message)
}

// hook runs kind-specific behaviour for one event. guard runs before the
// conditional write and may move money; effect runs after it inside the same
// transaction.
type hook[T any, C any] struct {
	guard  func(ctx context.Context, current *step[T, C]) error
	effect func(ctx context.Context, current *step[T, C]) error
}

// machine executes a transition table for one booking kind.
type machine[T any, C any] struct {
	kind        Kind
	transitions map[Event]transition
	hooks       map[Event]hook[T, C]
	load        func(ctx context.Context, records Records, id uint64) (T, error)
	status      func(T) Status
	owner       func(T) wallet.UserID
	begin       func(to Status, now time.Time, handler wallet.UserID) C
	persist     func(ctx context.Context, records Records, id uint64, from Status, change C) (T, error)
}

// firing is the outcome of a transition.
type firing[T any] struct {
	before  T
	after   T
	from    Status
	to      Status
	notices []notice.Notice
}

// request names the booking, the event and who asked for it. A non-zero owner
// restricts the transition to the booking's customer; a non-zero handler is the
// staff member recorded on the row.
type request struct {
	id      uint64
	event   Event
	actor   wallet.UserID
	owner   wallet.UserID
	handler wallet.UserID
	now     time.Time
}

func (engine machine[T, C]) fire(ctx context.Context, records Records, input request) (firing[T], error) {
	rule, ok := engine.transitions[input.event]
	if !ok {
		return firing[T]{}, fmt.Errorf("%w: %s has no %s event", ErrInvalidTransition, engine.kind, input.event)
	}
	current, err := engine.load(ctx, records, input.id)
	if err != nil {
		return firing[T]{}, err
	}
	if !input.owner.IsZero() && engine.owner(current) != input.owner {
		return firing[T]{}, ErrNotFound
	}
	from := engine.status(current)
	outcome := firing[T]{before: current, after: current, from: from, to: rule.to}
	if !rule.allows(from) {
		if from == rule.to {
			return outcome, fmt.Errorf("%w: %s %d is already %s", ErrAlreadyProcessed, engine.kind, input.id, from)
		}
		return outcome, fmt.Errorf("%w: %s %d cannot %s from %s", ErrInvalidTransition, engine.kind, input.id, input.event, from)
	}
	change := engine.begin(rule.to, input.now, input.handler)
	transitionStep := &step[T, C]{
		records: records,
		event:   input.event,
		from:    from,
		current: current,
		change:  &change,
		actor:   input.actor,
		now:     input.now,
	}
	hooks := engine.hooks[input.event]
	if hooks.guard != nil {
		if err := hooks.guard(ctx, transitionStep); err != nil {
			return outcome, err
		}
	}
	updated, err := engine.persist(ctx, records, input.id, from, change)
	if errors.Is(err, ErrStatusConflict) {
		return outcome, engine.conflict(ctx, records, input, rule)
	}
	if err != nil {
		return outcome, err
	}
	transitionStep.current = updated
	if hooks.effect != nil {
		if err := hooks.effect(ctx, transitionStep); err != nil {
			return outcome, err
		}
	}
	outcome.after = updated
	outcome.notices = transitionStep.notices
	return outcome, nil
}

// conflict classifies a lost conditional write by re-reading the row.
func (engine machine[T, C]) conflict(ctx context.Context, records Records, input request, rule transition) error {
	latest, err := engine.load(ctx, records, input.id)
	if err != nil {
		return err
	}
	if engine.status(latest) == rule.to {
		return fmt.Errorf("%w: %s %d is already %s", ErrAlreadyProcessed, engine.kind, input.id, rule.to)
	}
	return fmt.Errorf("%w: %s %d changed to %s", ErrInvalidTransition, engine.kind, input.id, engine.status(latest))
}
