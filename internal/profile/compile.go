package profile

import (
	"github.com/google/uuid"

	"analogpad/internal/curve"
	"analogpad/internal/gamepad"
	"analogpad/internal/keys"
)

// tableSize covers the whole virtual-key code space.
const tableSize = 256

// CompiledMapping is a ready-to-evaluate binding.
type CompiledMapping struct {
	Code    uint16
	KeyName string
	Control gamepad.Control
	Curve   *curve.Evaluator
}

// Compiled is the immutable lookup table for one sub-profile. It is never
// modified after Compile returns; edits produce a new value.
type Compiled struct {
	ProfileID      uuid.UUID
	ProfileName    string
	SubProfileID   uuid.UUID
	SubProfileName string

	// Unmapped lists key names that did not resolve to a key code.
	Unmapped []string

	slots   [tableSize]*CompiledMapping
	count   int
	buttons []CompiledMapping
}

// Compile builds the table for the sub-profile named (or identified) by ref.
// It returns nil when the sub-profile does not exist.
func Compile(p *Profile, ref string) *Compiled {
	sp, ok := p.SubProfile(ref)
	if !ok {
		return nil
	}
	return compileSubProfile(p, sp)
}

func compileSubProfile(p *Profile, sp *SubProfile) *Compiled {
	c := &Compiled{
		ProfileID:      p.ID,
		ProfileName:    p.Name,
		SubProfileID:   sp.ID,
		SubProfileName: sp.Name,
	}

	for _, m := range sp.Mappings {
		code := keys.Canonical(keys.Code(m.KeyName))
		if code == 0 || code >= tableSize {
			c.Unmapped = append(c.Unmapped, m.KeyName)
			continue
		}
		if c.slots[code] == nil {
			c.count++
		}
		c.slots[code] = &CompiledMapping{
			Code:    code,
			KeyName: keys.Name(code),
			Control: m.Control,
			Curve:   curve.New(m.Curve, m.DeadZoneInner, m.DeadZoneOuter),
		}
	}

	for _, cm := range c.slots {
		if cm != nil && cm.Control.IsButton() {
			c.buttons = append(c.buttons, *cm)
		}
	}
	return c
}

// Lookup returns the mapping for a key code.
func (c *Compiled) Lookup(code uint16) (*CompiledMapping, bool) {
	if c == nil || code >= tableSize {
		return nil, false
	}
	m := c.slots[code]
	return m, m != nil
}

// Len returns the number of mapped keys.
func (c *Compiled) Len() int {
	if c == nil {
		return 0
	}
	return c.count
}

// Buttons returns the mappings bound to digital buttons, ordered by key code.
func (c *Compiled) Buttons() []CompiledMapping {
	if c == nil {
		return nil
	}
	return c.buttons
}

// Mappings returns every mapping ordered by key code.
func (c *Compiled) Mappings() []CompiledMapping {
	if c == nil {
		return nil
	}
	out := make([]CompiledMapping, 0, c.count)
	for _, cm := range c.slots {
		if cm != nil {
			out = append(out, *cm)
		}
	}
	return out
}
