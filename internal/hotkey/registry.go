package hotkey

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"analogpad/internal/keys"
	"analogpad/internal/profile"
)

// Action is what a hotkey does when pressed.
type Action int

const (
	// ActionSwitch activates a specific sub-profile.
	ActionSwitch Action = iota
	// ActionCycle advances to the next sub-profile of a profile.
	ActionCycle
)

func (a Action) String() string {
	switch a {
	case ActionSwitch:
		return "switch"
	case ActionCycle:
		return "cycle"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Target is one binding of a hotkey.
type Target struct {
	Action       Action    `json:"action"`
	ProfileID    uuid.UUID `json:"profile_id"`
	SubProfileID uuid.UUID `json:"sub_profile_id,omitempty"`
}

// Binding pairs a hotkey with its targets.
type Binding struct {
	Hotkey  keys.Hotkey `json:"hotkey"`
	Targets []Target    `json:"targets"`
}

// registry maps (key, modifiers) to targets. Keys are canonical.
type registry struct {
	mu       sync.RWMutex
	bindings map[keys.Hotkey][]Target
}

func newRegistry() *registry {
	return &registry{bindings: make(map[keys.Hotkey][]Target)}
}

func canonical(hk keys.Hotkey) keys.Hotkey {
	hk.Key = keys.Canonical(hk.Key)
	return hk
}

func (r *registry) register(hk keys.Hotkey, t Target) bool {
	if hk.IsZero() {
		return false
	}
	hk = canonical(hk)

	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.bindings[hk], t) {
		return false
	}
	r.bindings[hk] = append(r.bindings[hk], t)
	return true
}

func (r *registry) unregister(hk keys.Hotkey) int {
	hk = canonical(hk)

	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.bindings[hk])
	delete(r.bindings, hk)
	return n
}

func (r *registry) removeForProfile(id uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for hk, targets := range r.bindings {
		kept := slices.DeleteFunc(targets, func(t Target) bool { return t.ProfileID == id })
		removed += len(targets) - len(kept)
		if len(kept) == 0 {
			delete(r.bindings, hk)
		} else {
			r.bindings[hk] = kept
		}
	}
	return removed
}

func (r *registry) clear() {
	r.mu.Lock()
	clear(r.bindings)
	r.mu.Unlock()
}

// lookup returns a copy of the targets bound to hk.
func (r *registry) lookup(hk keys.Hotkey) []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.bindings[hk])
}

func (r *registry) list() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Binding, 0, len(r.bindings))
	for hk, targets := range r.bindings {
		out = append(out, Binding{Hotkey: hk, Targets: slices.Clone(targets)})
	}
	slices.SortFunc(out, func(a, b Binding) int {
		if a.Hotkey.Key != b.Hotkey.Key {
			return int(a.Hotkey.Key) - int(b.Hotkey.Key)
		}
		return int(a.Hotkey.Modifiers) - int(b.Hotkey.Modifiers)
	})
	return out
}

// ProfileBindings derives the hotkeys of a profile set: a profile hotkey
// cycles its sub-profiles, a sub-profile hotkey switches to it.
func ProfileBindings(profiles []profile.Profile) []Binding {
	var out []Binding
	for _, p := range profiles {
		if !p.Hotkey.IsZero() {
			out = append(out, Binding{
				Hotkey:  p.Hotkey,
				Targets: []Target{{Action: ActionCycle, ProfileID: p.ID}},
			})
		}
		for _, sp := range p.SubProfiles {
			if sp.Hotkey.IsZero() {
				continue
			}
			out = append(out, Binding{
				Hotkey:  sp.Hotkey,
				Targets: []Target{{Action: ActionSwitch, ProfileID: p.ID, SubProfileID: sp.ID}},
			})
		}
	}
	return out
}
