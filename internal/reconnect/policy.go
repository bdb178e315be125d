// Package reconnect decides when a dropped chat connection is re-established.
//
// The policy is a small state machine:
//
//	idle --UnexpectedClose--> armed --Schedule--> waiting --DelayElapsed--> retrying
//	retrying --RetrySucceeded--> idle
//	retrying --RetryFailed--> armed
//	any --Cancel--> idle
//
// Entering waiting starts exactly one timer of a fixed delay; leaving waiting
// stops it. The timer only posts a callback; the owner decides on its own
// goroutine whether to dial, through Elapsed.
package reconnect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/qmuntal/stateless"

	"github.com/comigor/jobchat-go/internal/logger"
)

// DefaultDelay is the fixed wait before every retry.
const DefaultDelay = 3 * time.Second

// State of the policy.
type State string

const (
	StateIdle     State = "idle"
	StateArmed    State = "armed"
	StateWaiting  State = "waiting"
	StateRetrying State = "retrying"
)

// Trigger moves the policy between states.
type Trigger string

const (
	TriggerUnexpectedClose Trigger = "UnexpectedClose"
	TriggerSchedule        Trigger = "Schedule"
	TriggerDelayElapsed    Trigger = "DelayElapsed"
	TriggerRetrySucceeded  Trigger = "RetrySucceeded"
	TriggerRetryFailed     Trigger = "RetryFailed"
	TriggerCancel          Trigger = "Cancel"
)

// ErrExhausted is returned by Arm once MaxAttempts consecutive retries failed.
var ErrExhausted = errors.New("reconnect attempts exhausted")

// Options configure a Policy.
type Options struct {
	// Delay before each retry. Defaults to DefaultDelay.
	Delay time.Duration
	// MaxAttempts caps consecutive retries. Zero means retry for as long as
	// the owner keeps arming the policy.
	MaxAttempts int
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

// Policy is not safe for concurrent use; its owner serializes calls. The
// timer callback runs on the clock's goroutine and must only hand the
// generation back to the owner.
type Policy struct {
	fsm *stateless.StateMachine

	delay       time.Duration
	maxAttempts int
	clock       clockwork.Clock
	log         *slog.Logger

	onDue    func(gen uint64)
	timer    clockwork.Timer
	gen      uint64
	attempts int
}

// New builds an idle policy. onDue is invoked from the timer goroutine with
// the generation of the wait that elapsed.
func New(opts Options, onDue func(gen uint64)) *Policy {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	p := &Policy{
		delay:       opts.Delay,
		maxAttempts: opts.MaxAttempts,
		clock:       opts.Clock,
		log:         logger.Or(opts.Logger),
		onDue:       onDue,
	}
	p.fsm = p.newMachine()
	return p
}

func (p *Policy) newMachine() *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StateIdle)

	fsm.Configure(StateIdle).
		Permit(TriggerUnexpectedClose, StateArmed).
		Ignore(TriggerCancel).
		Ignore(TriggerDelayElapsed).
		Ignore(TriggerRetrySucceeded).
		Ignore(TriggerRetryFailed)

	fsm.Configure(StateArmed).
		Permit(TriggerSchedule, StateWaiting).
		Permit(TriggerCancel, StateIdle)

	// State: Waiting
	// Action: start the retry timer on entry, stop it on exit.
	fsm.Configure(StateWaiting).
		OnEntry(func(_ context.Context, _ ...any) error {
			p.startTimer()
			return nil
		}).
		OnExit(func(_ context.Context, _ ...any) error {
			p.stopTimer()
			return nil
		}).
		Permit(TriggerDelayElapsed, StateRetrying).
		Permit(TriggerCancel, StateIdle).
		Ignore(TriggerUnexpectedClose)

	fsm.Configure(StateRetrying).
		OnEntry(func(_ context.Context, _ ...any) error {
			p.attempts++
			return nil
		}).
		Permit(TriggerRetrySucceeded, StateIdle).
		Permit(TriggerRetryFailed, StateArmed).
		Permit(TriggerUnexpectedClose, StateArmed).
		Permit(TriggerCancel, StateIdle)

	fsm.OnTransitioned(func(_ context.Context, tr stateless.Transition) {
		p.log.Debug("reconnect policy transition", "from", tr.Source, "to", tr.Destination, "trigger", tr.Trigger)
	})
	return fsm
}

// State returns the current state.
func (p *Policy) State() State {
	return p.fsm.MustState().(State)
}

// Attempts returns the number of consecutive retries since the last success.
func (p *Policy) Attempts() int {
	return p.attempts
}

// Arm reacts to an unexpected close or a failed retry by scheduling the
// next attempt. It is a no-op while a retry is already pending.
func (p *Policy) Arm() error {
	switch p.State() {
	case StateWaiting, StateArmed:
		return nil
	case StateRetrying:
		if err := p.fsm.Fire(TriggerRetryFailed); err != nil {
			return fmt.Errorf("reconnect: %w", err)
		}
	default:
		if err := p.fsm.Fire(TriggerUnexpectedClose); err != nil {
			return fmt.Errorf("reconnect: %w", err)
		}
	}

	if p.maxAttempts > 0 && p.attempts >= p.maxAttempts {
		p.log.Warn("reconnect attempts exhausted; giving up", "attempts", p.attempts, "max", p.maxAttempts)
		if err := p.fsm.Fire(TriggerCancel); err != nil {
			return fmt.Errorf("reconnect: %w", err)
		}
		p.attempts = 0
		return ErrExhausted
	}

	if err := p.fsm.Fire(TriggerSchedule); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	return nil
}

// Elapsed is called by the owner when the timer for gen fired. It reports
// whether the owner should dial now. Stale generations are ignored.
func (p *Policy) Elapsed(gen uint64) bool {
	if gen != p.gen || p.State() != StateWaiting {
		return false
	}
	if err := p.fsm.Fire(TriggerDelayElapsed); err != nil {
		p.log.Warn("reconnect policy rejected elapsed delay", "error", err)
		return false
	}
	return true
}

// Succeeded records a successful retry and resets the attempt counter.
func (p *Policy) Succeeded() {
	if p.State() == StateRetrying {
		if err := p.fsm.Fire(TriggerRetrySucceeded); err != nil {
			p.log.Warn("reconnect policy rejected success", "error", err)
		}
	}
	p.attempts = 0
}

// Cancel returns to idle and stops a pending timer before returning. A timer
// that already fired is neutralized because its generation is retired.
func (p *Policy) Cancel() {
	if err := p.fsm.Fire(TriggerCancel); err != nil {
		p.log.Warn("reconnect policy rejected cancel", "error", err)
	}
	p.stopTimer()
	p.gen++
	p.attempts = 0
}

func (p *Policy) startTimer() {
	p.stopTimer()
	p.gen++
	gen := p.gen
	p.log.Info("reconnect scheduled", "delay", p.delay, "attempt", p.attempts+1)
	p.timer = p.clock.AfterFunc(p.delay, func() {
		if p.onDue != nil {
			p.onDue(gen)
		}
	})
}

func (p *Policy) stopTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
