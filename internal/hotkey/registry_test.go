package hotkey

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analogpad/internal/keys"
	"analogpad/internal/profile"
)

func TestRegistryCanonicalKeys(t *testing.T) {
	r := newRegistry()
	target := Target{Action: ActionCycle, ProfileID: uuid.New()}
	require.True(t, r.register(keys.Hotkey{Key: keys.VKLShift}, target))
	assert.False(t, r.register(keys.Hotkey{Key: keys.VKRShift}, target), "sided keys fold together")

	assert.Len(t, r.lookup(keys.Hotkey{Key: keys.VKShift}), 1)
	assert.Equal(t, 1, r.unregister(keys.Hotkey{Key: keys.VKRShift}))
	assert.Empty(t, r.list())
}

func TestRegistryRemoveForProfile(t *testing.T) {
	m := New(nil, nil, DefaultConfig(), nil)
	keep, drop := uuid.New(), uuid.New()
	f1 := keys.Hotkey{Key: keys.VKF1}
	f2 := keys.Hotkey{Key: keys.VKF2, Modifiers: keys.ModAlt}

	m.Register(f1, Target{Action: ActionCycle, ProfileID: keep})
	m.Register(f1, Target{Action: ActionCycle, ProfileID: drop})
	m.Register(f2, Target{Action: ActionSwitch, ProfileID: drop, SubProfileID: uuid.New()})

	assert.Equal(t, 2, m.RemoveForProfile(drop))
	bindings := m.Bindings()
	require.Len(t, bindings, 1)
	assert.Equal(t, f1, bindings[0].Hotkey)
	assert.Equal(t, keep, bindings[0].Targets[0].ProfileID)

	assert.Zero(t, m.Unregister(f2))
	m.Clear()
	assert.Empty(t, m.Bindings())
}

func TestBindingsOrdered(t *testing.T) {
	r := newRegistry()
	r.register(keys.Hotkey{Key: keys.VKF2}, Target{})
	r.register(keys.Hotkey{Key: keys.VKF1, Modifiers: keys.ModCtrl}, Target{})
	r.register(keys.Hotkey{Key: keys.VKF1}, Target{})

	list := r.list()
	require.Len(t, list, 3)
	assert.Equal(t, "F1", list[0].Hotkey.String())
	assert.Equal(t, "Ctrl + F1", list[1].Hotkey.String())
	assert.Equal(t, "F2", list[2].Hotkey.String())
}

func TestProfileBindings(t *testing.T) {
	p := profile.Default(time.Now())

	bindings := ProfileBindings([]profile.Profile{p})
	require.Len(t, bindings, 2)

	assert.Equal(t, keys.Hotkey{Key: keys.VKF2}, bindings[0].Hotkey)
	assert.Equal(t, []Target{{Action: ActionCycle, ProfileID: p.ID}}, bindings[0].Targets)

	assert.Equal(t, keys.Hotkey{Key: keys.VKF1}, bindings[1].Hotkey)
	assert.Equal(t, []Target{{
		Action:       ActionSwitch,
		ProfileID:    p.ID,
		SubProfileID: p.SubProfiles[0].ID,
	}}, bindings[1].Targets)

	m := New(nil, nil, DefaultConfig(), nil)
	assert.Equal(t, 2, m.RegisterAll(bindings))
	assert.Zero(t, m.RegisterAll(bindings), "registration is deduplicated")
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "switch", ActionSwitch.String())
	assert.Equal(t, "cycle", ActionCycle.String())
	assert.Equal(t, "Action(7)", Action(7).String())
}
