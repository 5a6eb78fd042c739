// Package profile holds the user-authored mapping model, compiles
// sub-profiles into immutable lookup tables, and tracks which sub-profile is
// active.
package profile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"analogpad/internal/curve"
	"analogpad/internal/gamepad"
	"analogpad/internal/keys"
)

var (
	ErrProfileNotFound    = errors.New("profile not found")
	ErrSubProfileNotFound = errors.New("sub-profile not found")
	ErrNoProfileLoaded    = errors.New("no profile loaded")
	ErrNoSubProfileActive = errors.New("no sub-profile active")
	ErrEmptyProfile       = errors.New("profile has no sub-profiles")
	ErrInvalidMapping     = errors.New("invalid key mapping")
)

// idNamespace seeds name-derived ids so profiles declared without an id keep
// the same id across reloads.
var idNamespace = uuid.MustParse("6f1c2a52-9b7e-4d0a-8e0b-3c55f1a9d2e4")

// KeyMapping binds one physical key to one gamepad control.
type KeyMapping struct {
	KeyName       string          `toml:"key" json:"key" yaml:"key"`
	Control       gamepad.Control `toml:"control" json:"control" yaml:"control"`
	Curve         curve.Curve     `toml:"curve" json:"curve" yaml:"curve"`
	DeadZoneInner float64         `toml:"dead_zone_inner" json:"dead_zone_inner" yaml:"dead_zone_inner"`
	DeadZoneOuter float64         `toml:"dead_zone_outer" json:"dead_zone_outer" yaml:"dead_zone_outer"`
	CreatedAt     time.Time       `toml:"created_at,omitempty" json:"created_at,omitempty" yaml:"created_at,omitempty"`
	ModifiedAt    time.Time       `toml:"modified_at,omitempty" json:"modified_at,omitempty" yaml:"modified_at,omitempty"`
}

// Validate rejects mappings the compiler must never see.
func (m KeyMapping) Validate() error {
	if strings.TrimSpace(m.KeyName) == "" {
		return fmt.Errorf("%w: key name is empty", ErrInvalidMapping)
	}
	if !m.Control.Valid() {
		return fmt.Errorf("%w: %s: unknown control %d", ErrInvalidMapping, m.KeyName, uint8(m.Control))
	}
	if !unit(m.DeadZoneInner) || !unit(m.DeadZoneOuter) {
		return fmt.Errorf("%w: %s: dead zones must be within [0,1]", ErrInvalidMapping, m.KeyName)
	}
	if m.DeadZoneInner > m.DeadZoneOuter {
		return fmt.Errorf("%w: %s: inner dead zone %.3f exceeds outer %.3f",
			ErrInvalidMapping, m.KeyName, m.DeadZoneInner, m.DeadZoneOuter)
	}
	if err := m.Curve.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidMapping, m.KeyName, err)
	}
	return nil
}

func unit(v float64) bool {
	return v >= 0 && v <= 1
}

// SubProfile is a named set of mappings with an optional switch hotkey.
type SubProfile struct {
	ID          uuid.UUID    `toml:"id,omitempty" json:"id,omitempty" yaml:"id,omitempty"`
	Name        string       `toml:"name" json:"name" yaml:"name"`
	Description string       `toml:"description,omitempty" json:"description,omitempty" yaml:"description,omitempty"`
	Hotkey      keys.Hotkey  `toml:"hotkey,omitempty" json:"hotkey,omitempty" yaml:"hotkey,omitempty"`
	Mappings    []KeyMapping `toml:"mappings" json:"mappings" yaml:"mappings"`
	CreatedAt   time.Time    `toml:"created_at,omitempty" json:"created_at,omitempty" yaml:"created_at,omitempty"`
	ModifiedAt  time.Time    `toml:"modified_at,omitempty" json:"modified_at,omitempty" yaml:"modified_at,omitempty"`
}

// Profile is a named group of sub-profiles with an optional cycle hotkey.
type Profile struct {
	ID          uuid.UUID    `toml:"id,omitempty" json:"id,omitempty" yaml:"id,omitempty"`
	Name        string       `toml:"name" json:"name" yaml:"name"`
	Description string       `toml:"description,omitempty" json:"description,omitempty" yaml:"description,omitempty"`
	Hotkey      keys.Hotkey  `toml:"hotkey,omitempty" json:"hotkey,omitempty" yaml:"hotkey,omitempty"`
	SubProfiles []SubProfile `toml:"sub_profiles" json:"sub_profiles" yaml:"sub_profiles"`
	CreatedAt   time.Time    `toml:"created_at,omitempty" json:"created_at,omitempty" yaml:"created_at,omitempty"`
	ModifiedAt  time.Time    `toml:"modified_at,omitempty" json:"modified_at,omitempty" yaml:"modified_at,omitempty"`
}

// Validate checks names, sub-profile uniqueness and every mapping.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("profile name is empty")
	}
	if len(p.SubProfiles) == 0 {
		return fmt.Errorf("%s: %w", p.Name, ErrEmptyProfile)
	}

	seen := make(map[string]bool, len(p.SubProfiles))
	for i := range p.SubProfiles {
		sp := &p.SubProfiles[i]
		name := strings.ToLower(strings.TrimSpace(sp.Name))
		if name == "" {
			return fmt.Errorf("%s: sub-profile %d has no name", p.Name, i)
		}
		if seen[name] {
			return fmt.Errorf("%s: duplicate sub-profile %q", p.Name, sp.Name)
		}
		seen[name] = true

		for _, m := range sp.Mappings {
			if err := m.Validate(); err != nil {
				return fmt.Errorf("%s/%s: %w", p.Name, sp.Name, err)
			}
		}
	}
	return nil
}

// Normalize fills ids and timestamps the author left out. Missing ids are
// derived from names; missing creation times follow declaration order
// starting at base, so cycling order matches the order profiles are written.
func (p *Profile) Normalize(base time.Time) {
	if p.ID == uuid.Nil {
		p.ID = uuid.NewSHA1(idNamespace, []byte("profile/"+p.Name))
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = base
	}
	if p.ModifiedAt.IsZero() {
		p.ModifiedAt = p.CreatedAt
	}

	for i := range p.SubProfiles {
		sp := &p.SubProfiles[i]
		if sp.ID == uuid.Nil {
			sp.ID = uuid.NewSHA1(p.ID, []byte("sub/"+sp.Name))
		}
		if sp.CreatedAt.IsZero() {
			sp.CreatedAt = base.Add(time.Duration(i) * time.Second)
		}
		if sp.ModifiedAt.IsZero() {
			sp.ModifiedAt = sp.CreatedAt
		}
		for j := range sp.Mappings {
			m := &sp.Mappings[j]
			if m.CreatedAt.IsZero() {
				m.CreatedAt = base.Add(time.Duration(j) * time.Second)
			}
			if m.ModifiedAt.IsZero() {
				m.ModifiedAt = m.CreatedAt
			}
		}
	}
}

// SubProfile finds a sub-profile by id string or case-insensitive name.
func (p *Profile) SubProfile(ref string) (*SubProfile, bool) {
	for i := range p.SubProfiles {
		if matches(p.SubProfiles[i].ID, p.SubProfiles[i].Name, ref) {
			return &p.SubProfiles[i], true
		}
	}
	return nil, false
}

func (p *Profile) subProfileByID(id uuid.UUID) (*SubProfile, bool) {
	for i := range p.SubProfiles {
		if p.SubProfiles[i].ID == id {
			return &p.SubProfiles[i], true
		}
	}
	return nil, false
}

func matches(id uuid.UUID, name, ref string) bool {
	ref = strings.TrimSpace(ref)
	if parsed, err := uuid.Parse(ref); err == nil {
		return parsed == id
	}
	return strings.EqualFold(name, ref)
}

// Clone returns a deep copy.
func (p *Profile) Clone() Profile {
	out := *p
	out.SubProfiles = make([]SubProfile, len(p.SubProfiles))
	for i, sp := range p.SubProfiles {
		sp.Mappings = cloneMappings(sp.Mappings)
		out.SubProfiles[i] = sp
	}
	return out
}

func cloneMappings(in []KeyMapping) []KeyMapping {
	out := make([]KeyMapping, len(in))
	for i, m := range in {
		m.Curve.Points = append([]curve.Point(nil), m.Curve.Points...)
		out[i] = m
	}
	return out
}

// Default returns the built-in profile used when no profile is configured:
// WASD on the left stick, F1 switches to it and F2 cycles the profile.
func Default(base time.Time) Profile {
	linear := func(key string, c gamepad.Control, offset int) KeyMapping {
		at := base.Add(time.Duration(offset) * time.Second)
		return KeyMapping{
			KeyName:       key,
			Control:       c,
			Curve:         curve.Curve{Kind: curve.Linear},
			DeadZoneInner: 0.05,
			DeadZoneOuter: 0.95,
			CreatedAt:     at,
			ModifiedAt:    at,
		}
	}

	p := Profile{
		Name:        "Default Game",
		Description: "Default gaming profile with WASD movement",
		Hotkey:      keys.Hotkey{Key: keys.VKF2},
		SubProfiles: []SubProfile{{
			Name:        "Movement",
			Description: "Basic WASD movement controls",
			Hotkey:      keys.Hotkey{Key: keys.VKF1},
			Mappings: []KeyMapping{
				linear("W", gamepad.LeftStickUp, 0),
				linear("A", gamepad.LeftStickLeft, 1),
				linear("S", gamepad.LeftStickDown, 2),
				linear("D", gamepad.LeftStickRight, 3),
			},
		}},
	}
	p.Normalize(base)
	return p
}
