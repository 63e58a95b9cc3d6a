package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/statekit"
)

// ErrInvalidTransition is returned when an event is not accepted in the current state.
var ErrInvalidTransition = errors.New("invalid state transition")

// Connection lifecycle events.
const (
	EventConnect         statekit.EventType = "CONNECT"
	EventEstablished     statekit.EventType = "ESTABLISHED"
	EventConnectFailed   statekit.EventType = "CONNECT_FAILED"
	EventMigrationFailed statekit.EventType = "MIGRATION_FAILED"
	EventSchemaMismatch  statekit.EventType = "SCHEMA_MISMATCH"
	EventConnectionLost  statekit.EventType = "CONNECTION_LOST"
	EventReset           statekit.EventType = "RESET"
)

const maxTransitionHistory = 20

// transitions is the full transition table; anything absent is illegal.
var transitions = map[State]map[statekit.EventType]State{
	StateUnknown: {
		EventConnect: StateConnecting,
	},
	StateConnecting: {
		EventEstablished:     StateConnected,
		EventConnectFailed:   StateDisconnected,
		EventMigrationFailed: StateMigrationFailed,
		EventSchemaMismatch:  StateSchemaIncompatible,
	},
	StateConnected: {
		EventConnectionLost: StateDisconnected,
	},
	StateDisconnected: {
		EventConnect: StateConnecting,
		EventReset:   StateUnknown,
	},
	StateMigrationFailed: {
		EventReset: StateUnknown,
	},
	StateSchemaIncompatible: {
		EventReset: StateUnknown,
	},
}

// Transition is one recorded state change.
type Transition struct {
	From  State     `json:"from"`
	To    State     `json:"to"`
	Event string    `json:"event"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}

type machineContext struct {
	now     func() time.Time
	since   time.Time
	entries int
}

func markEntered(ctx **machineContext, _ statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	c := *ctx
	c.since = c.now()
	c.entries++
}

// lifecycle drives the connection statechart. It is not safe for concurrent
// use; the Manager serializes access.
type lifecycle struct {
	interp  *statekit.Interpreter[*machineContext]
	ctx     *machineContext
	history []Transition
}

func newConnectionMachine() (*statekit.MachineConfig[*machineContext], error) {
	return statekit.NewMachine[*machineContext]("db-connection").
		WithInitial(statekit.StateID(StateUnknown)).
		WithContext(&machineContext{}).
		WithAction("markEntered", markEntered).
		State(statekit.StateID(StateUnknown)).
			OnEntry("markEntered").
			On(EventConnect).Target(statekit.StateID(StateConnecting)).
			Done().
		State(statekit.StateID(StateConnecting)).
			OnEntry("markEntered").
			On(EventEstablished).Target(statekit.StateID(StateConnected)).
			On(EventConnectFailed).Target(statekit.StateID(StateDisconnected)).
			On(EventMigrationFailed).Target(statekit.StateID(StateMigrationFailed)).
			On(EventSchemaMismatch).Target(statekit.StateID(StateSchemaIncompatible)).
			Done().
		State(statekit.StateID(StateConnected)).
			OnEntry("markEntered").
			On(EventConnectionLost).Target(statekit.StateID(StateDisconnected)).
			Done().
		State(statekit.StateID(StateDisconnected)).
			OnEntry("markEntered").
			On(EventConnect).Target(statekit.StateID(StateConnecting)).
			On(EventReset).Target(statekit.StateID(StateUnknown)).
			Done().
		State(statekit.StateID(StateMigrationFailed)).
			OnEntry("markEntered").
			On(EventReset).Target(statekit.StateID(StateUnknown)).
			Done().
		State(statekit.StateID(StateSchemaIncompatible)).
			OnEntry("markEntered").
			On(EventReset).Target(statekit.StateID(StateUnknown)).
			Done().
		Build()
}

func newLifecycle(now func() time.Time) (*lifecycle, error) {
	machine, err := newConnectionMachine()
	if err != nil {
		return nil, fmt.Errorf("failed to build connection state machine: %w", err)
	}

	mctx := &machineContext{now: now, since: now()}
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **machineContext) {
		*c = mctx
	})
	interp.Start()

	return &lifecycle{interp: interp, ctx: mctx}, nil
}

// State returns the current state.
func (l *lifecycle) State() State {
	return State(l.interp.State().Value)
}

// Since returns when the current state was entered.
func (l *lifecycle) Since() time.Time {
	return l.ctx.since
}

// Can reports whether event is accepted in the current state.
func (l *lifecycle) Can(event statekit.EventType) bool {
	_, ok := transitions[l.State()][event]
	return ok
}

// Fire applies event and records the transition. cause is attached to the
// history entry when non-nil.
func (l *lifecycle) Fire(event statekit.EventType, cause error) (Transition, error) {
	from := l.State()
	to, ok := transitions[from][event]
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, from)
	}

	entries := l.ctx.entries
	l.interp.Send(statekit.Event{Type: event})
	if got := l.State(); got != to {
		return Transition{}, fmt.Errorf("%w: %s on %s reached %s, expected %s", ErrInvalidTransition, event, from, got, to)
	}
	if l.ctx.entries == entries {
		l.ctx.since = l.ctx.now()
	}

	tr := Transition{From: from, To: to, Event: string(event), At: l.ctx.since}
	if cause != nil {
		tr.Error = cause.Error()
	}
	l.history = append(l.history, tr)
	if len(l.history) > maxTransitionHistory {
		l.history = l.history[len(l.history)-maxTransitionHistory:]
	}
	return tr, nil
}

// History returns a copy of the most recent transitions, oldest first.
func (l *lifecycle) History() []Transition {
	out := make([]Transition, len(l.history))
	copy(out, l.history)
	return out
}
