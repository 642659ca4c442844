package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionHappyPath(t *testing.T) {
	s := StateStopped

	next, err := Transition(s, EventStart)
	require.NoError(t, err)
	require.Equal(t, StateStarting, next)

	next, err = Transition(next, EventSpawned)
	require.NoError(t, err)
	require.Equal(t, StateRunning, next)

	next, err = Transition(next, EventStop)
	require.NoError(t, err)
	require.Equal(t, StateStopped, next)
}

func TestTransitionStopFromAnyStateGoesStopped(t *testing.T) {
	states := []State{StateStopped, StateStarting, StateRunning}
	for _, state := range states {
		next, err := Transition(state, EventStop)
		require.NoError(t, err)
		require.Equal(t, StateStopped, next)
	}
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		event   Event
		want    State
		wantErr bool
	}{
		{name: "stopped spawned invalid", state: StateStopped, event: EventSpawned, want: StateStopped, wantErr: true},
		{name: "stopped fail invalid", state: StateStopped, event: EventFail, want: StateStopped, wantErr: true},
		{name: "starting start invalid", state: StateStarting, event: EventStart, want: StateStarting, wantErr: true},
		{name: "starting fail valid", state: StateStarting, event: EventFail, want: StateStopped, wantErr: false},
		{name: "running spawned invalid", state: StateRunning, event: EventSpawned, want: StateRunning, wantErr: true},
		{name: "running fail invalid", state: StateRunning, event: EventFail, want: StateRunning, wantErr: true},
		{name: "running restart valid", state: StateRunning, event: EventStart, want: StateStarting, wantErr: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.Equal(t, tc.want, next)
			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "invalid transition")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	next, err := Transition(State("mystery"), EventStart)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
	require.Equal(t, State("mystery"), next)

	_, err = Transition(State("mystery"), EventStop)
	require.Error(t, err)
}
