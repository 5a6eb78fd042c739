// Package curve implements the response curves applied to analog key depth.
//
// A curve is evaluated in two steps: the raw reading is first normalized
// through the inner and outer dead zones, then shaped by the curve itself.
// Custom curves are sampled once into a 256-entry lookup table so the
// per-frame evaluation is a constant-time table read.
package curve

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// LUTSize is the number of samples taken from a custom curve.
const LUTSize = 256

// MaxPoints is the maximum number of control points of a custom curve.
const MaxPoints = 16

// degenerateDX is the segment width below which two control points are
// treated as coincident.
const degenerateDX = 1e-10

// Kind selects the shape applied after dead-zone normalization.
type Kind int

const (
	// Linear passes the normalized value through unchanged.
	Linear Kind = iota
	// Custom interpolates through user-supplied control points.
	Custom
)

// String returns the configuration name of the kind.
func (k Kind) String() string {
	switch k {
	case Linear:
		return "linear"
	case Custom:
		return "custom"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses a curve kind name.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "linear":
		return Linear, nil
	case "custom":
		return Custom, nil
	default:
		return Linear, fmt.Errorf("unknown curve kind: %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Point is a control point of a custom curve, both coordinates in [0,1].
type Point struct {
	X float64 `toml:"x" json:"x" yaml:"x"`
	Y float64 `toml:"y" json:"y" yaml:"y"`
}

// Curve describes a response curve.
type Curve struct {
	Kind   Kind    `toml:"kind" json:"kind" yaml:"kind"`
	Points []Point `toml:"points,omitempty" json:"points,omitempty" yaml:"points,omitempty"`
	// Smooth selects Hermite interpolation between points instead of
	// straight segments.
	Smooth bool `toml:"smooth,omitempty" json:"smooth,omitempty" yaml:"smooth,omitempty"`
}

// Validate checks the control points of a custom curve.
func (c Curve) Validate() error {
	if c.Kind != Custom {
		return nil
	}
	if len(c.Points) > MaxPoints {
		return fmt.Errorf("custom curve has %d points, maximum is %d", len(c.Points), MaxPoints)
	}
	for i, p := range c.Points {
		if !inUnit(p.X) || !inUnit(p.Y) {
			return fmt.Errorf("point %d (%g, %g) outside [0,1]", i, p.X, p.Y)
		}
	}
	return nil
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1 && !math.IsNaN(v)
}

// Evaluator is a ready-to-use curve with its dead zones. It is immutable
// after construction and safe for concurrent use.
type Evaluator struct {
	inner float64
	outer float64
	lut   *[LUTSize]float64
}

// New builds an evaluator. Custom curves are sorted by x and sampled into
// the lookup table here; a custom curve without points behaves as Linear.
func New(c Curve, inner, outer float64) *Evaluator {
	e := &Evaluator{inner: inner, outer: outer}
	if c.Kind != Custom || len(c.Points) == 0 {
		return e
	}

	points := SortedPoints(c.Points)
	var lut [LUTSize]float64
	for i := range lut {
		x := float64(i) / float64(LUTSize-1)
		lut[i] = Interpolate(points, c.Smooth, x)
	}
	e.lut = &lut
	return e
}

// Apply maps a raw reading in [0,1] to an output in [0,1]. NaN reads as 0.
func (e *Evaluator) Apply(raw float64) float64 {
	if math.IsNaN(raw) || raw < e.inner {
		return 0
	}
	normalized := Normalize(raw, e.inner, e.outer)
	if e.lut == nil {
		return normalized
	}
	return lookup(e.lut, normalized)
}

// DeadZones returns the inner and outer dead zone of the evaluator.
func (e *Evaluator) DeadZones() (inner, outer float64) {
	return e.inner, e.outer
}

// Evaluate applies a curve to a single raw value. It builds the lookup
// table on every call and is meant for tooling, not the frame loop.
func Evaluate(c Curve, inner, outer, raw float64) float64 {
	return New(c, inner, outer).Apply(raw)
}

// Normalize applies the dead zones to a raw value. Values below inner map
// to 0, values at or above outer map to 1. When outer does not exceed inner
// the clamped value is passed through unchanged.
func Normalize(raw, inner, outer float64) float64 {
	if math.IsNaN(raw) || raw < inner {
		return 0
	}
	clamped := math.Min(raw, outer)
	if outer > inner {
		return (clamped - inner) / (outer - inner)
	}
	return clamped
}

func lookup(lut *[LUTSize]float64, x float64) float64 {
	x = clamp01(x)
	pos := x * float64(LUTSize-1)
	idx := int(pos)
	if idx >= LUTSize-1 {
		return lut[LUTSize-1]
	}
	frac := pos - float64(idx)
	v0 := lut[idx]
	return v0 + frac*(lut[idx+1]-v0)
}

// SortedPoints returns a copy of points ordered by x.
func SortedPoints(points []Point) []Point {
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].X < sorted[j].X
	})
	return sorted
}

// Interpolate evaluates the control-point curve at x. points must be sorted
// by x. Zero points is the identity and a single point is constant; outside
// the point range the nearest endpoint's y is returned.
func Interpolate(points []Point, smooth bool, x float64) float64 {
	switch len(points) {
	case 0:
		return x
	case 1:
		return points[0].Y
	}

	for i := 0; i < len(points)-1; i++ {
		p1, p2 := points[i], points[i+1]
		if x < p1.X || x > p2.X {
			continue
		}

		dx := p2.X - p1.X
		if math.Abs(dx) < degenerateDX {
			return (p1.Y + p2.Y) * 0.5
		}
		t := (x - p1.X) / dx
		if !smooth {
			return p1.Y + t*(p2.Y-p1.Y)
		}

		slope := (p2.Y - p1.Y) / dx
		m1 := slope
		if i > 0 {
			p0 := points[i-1]
			dx0 := math.Max(p1.X-p0.X, degenerateDX)
			m1 = (slope + (p1.Y-p0.Y)/dx0) * 0.5
		}
		m2 := slope
		if i < len(points)-2 {
			p3 := points[i+2]
			dx2 := math.Max(p3.X-p2.X, degenerateDX)
			m2 = ((p3.Y-p2.Y)/dx2 + slope) * 0.5
		}
		return clamp01(hermite(t, p1.Y, p2.Y, m1, m2, dx))
	}

	if x <= points[0].X {
		return points[0].Y
	}
	return points[len(points)-1].Y
}

// hermite evaluates a cubic Hermite segment with tangents scaled by the
// segment width.
func hermite(t, p0, p1, m0, m1, dx float64) float64 {
	t2 := t * t
	t3 := t2 * t

	h00 := 2*t3 - 3*t2 + 1
	h10 := t3 - 2*t2 + t
	h01 := -2*t3 + 3*t2
	h11 := t3 - t2

	return h00*p0 + h10*dx*m0 + h01*p1 + h11*dx*m1
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
