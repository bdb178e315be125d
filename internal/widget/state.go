package widget

import (
	"context"

	"github.com/qmuntal/stateless"
)

// ConnectionState is the controller's view of the transport.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

type connTrigger string

const (
	triggerDial          connTrigger = "Dial"
	triggerDialSucceeded connTrigger = "DialSucceeded"
	triggerDialFailed    connTrigger = "DialFailed"
	triggerLost          connTrigger = "Lost"
	triggerClose         connTrigger = "Close"
)

// newConnectionMachine builds the disconnected/connecting/connected machine.
// onEnter runs after every transition with the destination state.
func newConnectionMachine(onEnter func(ConnectionState)) *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StateDisconnected)

	fsm.Configure(StateDisconnected).
		Permit(triggerDial, StateConnecting).
		Ignore(triggerLost).
		Ignore(triggerClose).
		Ignore(triggerDialFailed)

	fsm.Configure(StateConnecting).
		Permit(triggerDialSucceeded, StateConnected).
		Permit(triggerDialFailed, StateDisconnected).
		Permit(triggerClose, StateDisconnected).
		Ignore(triggerDial)

	fsm.Configure(StateConnected).
		Permit(triggerLost, StateDisconnected).
		Permit(triggerClose, StateDisconnected).
		Ignore(triggerDial)

	fsm.OnTransitioned(func(_ context.Context, tr stateless.Transition) {
		if onEnter != nil {
			onEnter(tr.Destination.(ConnectionState))
		}
	})
	return fsm
}
