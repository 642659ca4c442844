// Package fsm defines the worker lifecycle states and their legal transitions.
package fsm

import "fmt"

type State string

type Event string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
)

const (
	EventStart   Event = "start"
	EventSpawned Event = "spawned"
	EventFail    Event = "fail"
	EventStop    Event = "stop"
)

// Transition returns the next state. Crashes are not a state: a dead worker
// stays running until a command or health check notices it.
func Transition(current State, event Event) (State, error) {
	if event == EventStop {
		switch current {
		case StateStopped, StateStarting, StateRunning:
			return StateStopped, nil
		default:
			return current, fmt.Errorf("unknown state %q", current)
		}
	}

	switch current {
	case StateStopped:
		switch event {
		case EventStart:
			return StateStarting, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStarting:
		switch event {
		case EventSpawned:
			return StateRunning, nil
		case EventFail:
			return StateStopped, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRunning:
		switch event {
		case EventStart:
			// Restart: the previous worker is force-stopped first.
			return StateStarting, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
