package profile

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager owns the profile set, the loaded profile with a compiled table per
// sub-profile, and the active sub-profile. It is the single source of truth
// the engine's snapshot is taken from.
type Manager struct {
	mu       sync.RWMutex
	profiles []Profile
	loaded   *Profile
	compiled map[uuid.UUID]*Compiled
	active   uuid.UUID

	logger *slog.Logger
	now    func() time.Time
}

// NewManager validates and normalizes defs. An empty set installs the
// built-in default profile. Nothing is loaded until the first switch.
func NewManager(defs []Profile, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		logger:   logger,
		now:      time.Now,
		compiled: make(map[uuid.UUID]*Compiled),
	}
	profiles, err := m.prepare(defs)
	if err != nil {
		return nil, err
	}
	m.profiles = profiles
	return m, nil
}

func (m *Manager) prepare(defs []Profile) ([]Profile, error) {
	base := m.now().UTC().Truncate(time.Second)
	if len(defs) == 0 {
		return []Profile{Default(base)}, nil
	}

	out := make([]Profile, len(defs))
	ids := make(map[uuid.UUID]string, len(defs))
	for i := range defs {
		p := defs[i].Clone()
		if err := p.Validate(); err != nil {
			return nil, err
		}
		p.Normalize(base.Add(time.Duration(i) * time.Minute))
		if other, dup := ids[p.ID]; dup {
			return nil, fmt.Errorf("profiles %q and %q share id %s", other, p.Name, p.ID)
		}
		ids[p.ID] = p.Name
		out[i] = p
	}
	return out, nil
}

// Profiles returns a copy of every known profile.
func (m *Manager) Profiles() []Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Profile, len(m.profiles))
	for i := range m.profiles {
		if m.loaded != nil && m.loaded.ID == m.profiles[i].ID {
			out[i] = m.loaded.Clone()
			continue
		}
		out[i] = m.profiles[i].Clone()
	}
	return out
}

// Resolve maps profile and sub-profile references (id or name) to ids. An
// empty profile reference selects the first profile; an empty sub-profile
// reference selects the earliest-created sub-profile.
func (m *Manager) Resolve(profileRef, subRef string) (uuid.UUID, uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.profiles) == 0 {
		return uuid.Nil, uuid.Nil, ErrProfileNotFound
	}

	p := &m.profiles[0]
	if strings.TrimSpace(profileRef) != "" {
		found := false
		for i := range m.profiles {
			if matches(m.profiles[i].ID, m.profiles[i].Name, profileRef) {
				p, found = &m.profiles[i], true
				break
			}
		}
		if !found {
			return uuid.Nil, uuid.Nil, fmt.Errorf("%w: %s", ErrProfileNotFound, profileRef)
		}
	}

	if strings.TrimSpace(subRef) == "" {
		ordered := cycleOrder(p.SubProfiles)
		if len(ordered) == 0 {
			return uuid.Nil, uuid.Nil, fmt.Errorf("%s: %w", p.Name, ErrEmptyProfile)
		}
		return p.ID, ordered[0].ID, nil
	}
	sp, ok := p.SubProfile(subRef)
	if !ok {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: %s/%s", ErrSubProfileNotFound, p.Name, subRef)
	}
	return p.ID, sp.ID, nil
}

// SwitchProfile activates a sub-profile. Switching to a different profile
// compiles all of its sub-profiles first.
func (m *Manager) SwitchProfile(profileID, subID uuid.UUID) (*Compiled, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.switchLocked(profileID, subID)
}

func (m *Manager) switchLocked(profileID, subID uuid.UUID) (*Compiled, error) {
	if m.loaded == nil || m.loaded.ID != profileID {
		p, ok := m.findLocked(profileID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, profileID)
		}
		if len(p.SubProfiles) == 0 {
			return nil, fmt.Errorf("%s: %w", p.Name, ErrEmptyProfile)
		}

		loaded := p.Clone()
		compiled := make(map[uuid.UUID]*Compiled, len(loaded.SubProfiles))
		for i := range loaded.SubProfiles {
			sp := &loaded.SubProfiles[i]
			compiled[sp.ID] = compileSubProfile(&loaded, sp)
		}
		c, ok := compiled[subID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrSubProfileNotFound, subID)
		}

		m.storeLoadedLocked()
		m.loaded = &loaded
		m.compiled = compiled
		m.logger.Info("profile loaded", "profile", loaded.Name, "sub_profiles", len(compiled))
		return m.activateLocked(c), nil
	}

	c, ok := m.compiled[subID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSubProfileNotFound, subID)
	}
	return m.activateLocked(c), nil
}

func (m *Manager) activateLocked(c *Compiled) *Compiled {
	m.active = c.SubProfileID
	if len(c.Unmapped) > 0 {
		m.logger.Warn("sub-profile has unknown keys", "sub_profile", c.SubProfileName, "keys", c.Unmapped)
	}
	return c
}

func (m *Manager) findLocked(id uuid.UUID) (*Profile, bool) {
	for i := range m.profiles {
		if m.profiles[i].ID == id {
			return &m.profiles[i], true
		}
	}
	return nil, false
}

// storeLoadedLocked writes in-memory edits of the loaded profile back into
// the profile set before it is unloaded.
func (m *Manager) storeLoadedLocked() {
	if m.loaded == nil {
		return
	}
	if p, ok := m.findLocked(m.loaded.ID); ok {
		*p = m.loaded.Clone()
	}
}

// CycleSubProfile activates the sub-profile after the active one, ordered by
// creation time then id and wrapping around. When the profile is not the
// loaded one, its first sub-profile is activated.
func (m *Manager) CycleSubProfile(profileID uuid.UUID) (*Compiled, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.findLocked(profileID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, profileID)
	}
	if m.loaded != nil && m.loaded.ID == profileID {
		p = m.loaded
	}
	ordered := cycleOrder(p.SubProfiles)
	if len(ordered) == 0 {
		return nil, fmt.Errorf("%s: %w", p.Name, ErrEmptyProfile)
	}

	next := ordered[0]
	if m.loaded != nil && m.loaded.ID == profileID {
		for i, sp := range ordered {
			if sp.ID == m.active {
				next = ordered[(i+1)%len(ordered)]
				break
			}
		}
	}

	c, err := m.switchLocked(profileID, next.ID)
	if err != nil {
		return nil, err
	}
	m.logger.Info("cycled sub-profile", "profile", p.Name, "sub_profile", next.Name)
	return c, nil
}

func cycleOrder(subs []SubProfile) []SubProfile {
	ordered := make([]SubProfile, len(subs))
	copy(ordered, subs)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return strings.Compare(a.ID.String(), b.ID.String()) < 0
	})
	return ordered
}

// Current returns the active compiled table, or nil.
func (m *Manager) Current() *Compiled {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.loaded == nil || m.active == uuid.Nil {
		return nil
	}
	return m.compiled[m.active]
}

// ActiveIDs returns the loaded profile and active sub-profile.
func (m *Manager) ActiveIDs() (profileID, subID uuid.UUID, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.loaded == nil || m.active == uuid.Nil {
		return uuid.Nil, uuid.Nil, false
	}
	return m.loaded.ID, m.active, true
}

// activeSubLocked returns the editable active sub-profile.
func (m *Manager) activeSubLocked() (*SubProfile, error) {
	if m.loaded == nil {
		return nil, ErrNoProfileLoaded
	}
	if m.active == uuid.Nil {
		return nil, ErrNoSubProfileActive
	}
	sp, ok := m.loaded.subProfileByID(m.active)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSubProfileNotFound, m.active)
	}
	return sp, nil
}

// SetCurrentMapping inserts or replaces the mapping for a key in the active
// sub-profile. A replaced mapping keeps its creation time.
func (m *Manager) SetCurrentMapping(mapping KeyMapping) error {
	if err := mapping.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sp, err := m.activeSubLocked()
	if err != nil {
		return err
	}

	now := m.now()
	mapping.ModifiedAt = now
	mapping = cloneMappings([]KeyMapping{mapping})[0]

	replaced := false
	for i := range sp.Mappings {
		if strings.EqualFold(sp.Mappings[i].KeyName, mapping.KeyName) {
			mapping.CreatedAt = sp.Mappings[i].CreatedAt
			sp.Mappings[i] = mapping
			replaced = true
			break
		}
	}
	if !replaced {
		if mapping.CreatedAt.IsZero() {
			mapping.CreatedAt = now
		}
		sp.Mappings = append(sp.Mappings, mapping)
		sort.SliceStable(sp.Mappings, func(i, j int) bool {
			return sp.Mappings[i].CreatedAt.Before(sp.Mappings[j].CreatedAt)
		})
	}

	sp.ModifiedAt = now
	m.loaded.ModifiedAt = now
	m.compiled[sp.ID] = compileSubProfile(m.loaded, sp)
	return nil
}

// RemoveCurrentMapping deletes the mapping for keyName from the active
// sub-profile and reports whether one existed.
func (m *Manager) RemoveCurrentMapping(keyName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sp, err := m.activeSubLocked()
	if err != nil {
		return false, err
	}

	kept := sp.Mappings[:0]
	for _, km := range sp.Mappings {
		if !strings.EqualFold(km.KeyName, keyName) {
			kept = append(kept, km)
		}
	}
	removed := len(kept) != len(sp.Mappings)
	sp.Mappings = kept
	if !removed {
		return false, nil
	}

	now := m.now()
	sp.ModifiedAt = now
	m.loaded.ModifiedAt = now
	m.compiled[sp.ID] = compileSubProfile(m.loaded, sp)
	return true, nil
}

// Replace installs a new profile set, as on configuration reload. The active
// selection survives when its profile and sub-profile still exist; otherwise
// the first profile's first sub-profile is activated. The returned table is
// the new active one.
func (m *Manager) Replace(defs []Profile) (*Compiled, error) {
	profiles, err := m.prepare(defs)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var profileID, subID uuid.UUID
	if m.loaded != nil {
		profileID, subID = m.loaded.ID, m.active
	}

	m.profiles = profiles
	m.loaded = nil
	m.compiled = make(map[uuid.UUID]*Compiled)
	m.active = uuid.Nil

	if p, ok := m.findLocked(profileID); ok {
		if _, ok := p.subProfileByID(subID); ok {
			return m.switchLocked(profileID, subID)
		}
	}

	first := &m.profiles[0]
	ordered := cycleOrder(first.SubProfiles)
	if profileID != uuid.Nil {
		m.logger.Info("active sub-profile no longer exists, falling back",
			"profile", first.Name, "sub_profile", ordered[0].Name)
	}
	return m.switchLocked(first.ID, ordered[0].ID)
}
