package crossing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecisionMachine_FreshMemory(t *testing.T) {
	t.Parallel()
	m := DecisionMachine{Window: 2 * time.Second}

	var mem Memory
	assert.Equal(t, DecisionTransition, m.Decide(Signals{}, at(0), &mem))
	assert.True(t, mem.LastDanger.IsZero())
	assert.True(t, mem.LastGreen.IsZero())

	// "Never" behaves as infinitely long ago even for the zero-ish clock.
	assert.Equal(t, DecisionTransition, m.Decide(Signals{}, time.Unix(0, 0), &mem))
}

func TestDecisionMachine_Priority(t *testing.T) {
	t.Parallel()
	m := DecisionMachine{Window: 2 * time.Second}

	tests := []struct {
		name string
		sig  Signals
		want Decision
	}{
		{"moving vehicle", Signals{MovingVehicle: true}, DecisionDanger},
		{"red light", Signals{HasRedLight: true}, DecisionDanger},
		{"danger outranks green", Signals{HasRedLight: true, HasGreenLight: true}, DecisionDanger},
		{"danger outranks stationary", Signals{MovingVehicle: true, StationaryVehicle: true}, DecisionDanger},
		{"stationary outranks green", Signals{StationaryVehicle: true, HasGreenLight: true}, DecisionPreparing},
		{"green", Signals{HasGreenLight: true}, DecisionSafe},
		{"unclear only", Signals{UnclearSignal: true}, DecisionTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mem Memory
			assert.Equal(t, tt.want, m.Decide(tt.sig, at(0), &mem))
		})
	}
}

func TestDecisionMachine_DangerWindow(t *testing.T) {
	t.Parallel()
	m := DecisionMachine{Window: 2 * time.Second}

	var mem Memory
	assert.Equal(t, DecisionDanger, m.Decide(Signals{MovingVehicle: true}, at(0), &mem))
	assert.Equal(t, at(0), mem.LastDanger)

	for _, ms := range []int64{1, 500, 1000, 1999} {
		probe := mem
		assert.Equal(t, DecisionDanger, m.Decide(Signals{}, at(ms), &probe), "at %dms", ms)
	}
	for _, ms := range []int64{2000, 2001, 60000} {
		probe := mem
		assert.Equal(t, DecisionTransition, m.Decide(Signals{}, at(ms), &probe), "at %dms", ms)
	}

	// Stale danger with a stationary vehicle present falls to PREPARING.
	probe := mem
	assert.Equal(t, DecisionPreparing, m.Decide(Signals{StationaryVehicle: true}, at(2000), &probe))
}

func TestDecisionMachine_GreenIsSticky(t *testing.T) {
	t.Parallel()
	m := DecisionMachine{Window: 2 * time.Second}

	var mem Memory
	assert.Equal(t, DecisionSafe, m.Decide(Signals{HasGreenLight: true}, at(0), &mem))
	assert.Equal(t, DecisionSafe, m.Decide(Signals{}, at(1500), &mem))
	assert.Equal(t, DecisionSafe, m.Decide(Signals{UnclearSignal: true}, at(1999), &mem))
	assert.Equal(t, DecisionTransition, m.Decide(Signals{}, at(2000), &mem))
}

func TestDecisionMachine_DangerRevokesRecentGreen(t *testing.T) {
	t.Parallel()
	m := DecisionMachine{Window: 2 * time.Second}

	var mem Memory
	m.Decide(Signals{HasGreenLight: true}, at(0), &mem)
	assert.Equal(t, DecisionDanger, m.Decide(Signals{MovingVehicle: true}, at(100), &mem))
	// Green still recent, danger still recent: danger wins.
	assert.Equal(t, DecisionDanger, m.Decide(Signals{HasGreenLight: true}, at(1000), &mem))
	// Danger expires first; the refreshed green remains.
	assert.Equal(t, DecisionSafe, m.Decide(Signals{}, at(2100), &mem))
}

func TestMemoryReset(t *testing.T) {
	t.Parallel()
	mem := Memory{LastDanger: at(5), LastGreen: at(6)}
	mem.Reset()
	assert.Equal(t, Memory{}, mem)
}

func TestDecisionText(t *testing.T) {
	t.Parallel()
	for _, d := range []Decision{DecisionDanger, DecisionPreparing, DecisionSafe, DecisionTransition} {
		b, err := d.MarshalText()
		assert.NoError(t, err)
		var got Decision
		assert.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, d, got)
	}
	got, err := ParseDecision(" safe ")
	assert.NoError(t, err)
	assert.Equal(t, DecisionSafe, got)
	_, err = ParseDecision("maybe")
	assert.Error(t, err)
}
