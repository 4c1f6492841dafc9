package sonde

import (
	"fmt"
	"math"
	"sort"
)

// SpeedSample is a vertical speed at a given altitude (m, m/s).
// For descent profiles Speed is positive downward, for ascent profiles positive upward.
type SpeedSample struct {
	Alt   float64
	Speed float64
}

// DescentSample and AscentSample name the two flavors of speed samples.
type (
	DescentSample = SpeedSample
	AscentSample  = SpeedSample
)

// WindSample is the wind at a given altitude. U is positive toward the east, V toward the north.
type WindSample struct {
	Alt float64
	U   float64
	V   float64
}

// SpeedProfile maps an altitude to a vertical speed by linear interpolation.
type SpeedProfile struct {
	samples []SpeedSample // sorted by altitude
}

// NewSpeedProfile returns a profile owning a sorted copy of the provided samples.
func NewSpeedProfile(samples []SpeedSample) (*SpeedProfile, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: empty speed profile", ErrConfiguration)
	}
	for i, smpl := range samples {
		if !finite(smpl.Alt, smpl.Speed) {
			return nil, fmt.Errorf("%w: speed sample #%d is not finite (alt=%f, speed=%f)", ErrConfiguration, i, smpl.Alt, smpl.Speed)
		}
	}
	s := make([]SpeedSample, len(samples))
	copy(s, samples)
	sort.SliceStable(s, func(i, j int) bool { return s[i].Alt < s[j].Alt })
	return &SpeedProfile{s}, nil
}

// Value returns the speed at the given altitude. Outside the sampled range the boundary value is returned.
func (p *SpeedProfile) Value(alt float64) float64 {
	i, ratio, exact := bracket(len(p.samples), func(k int) float64 { return p.samples[k].Alt }, alt)
	if exact {
		return p.samples[i].Speed
	}
	s1, s2 := p.samples[i], p.samples[i+1]
	return s1.Speed + ratio*(s2.Speed-s1.Speed)
}

// Samples returns a copy of the sorted samples.
func (p *SpeedProfile) Samples() []SpeedSample {
	s := make([]SpeedSample, len(p.samples))
	copy(s, p.samples)
	return s
}

// Len returns the number of samples.
func (p *SpeedProfile) Len() int {
	return len(p.samples)
}

// Map builds a new profile from the transformed samples. The receiver is left untouched.
func (p *SpeedProfile) Map(f func(SpeedSample) SpeedSample) (*SpeedProfile, error) {
	s := make([]SpeedSample, len(p.samples))
	for i, smpl := range p.samples {
		s[i] = f(smpl)
	}
	return NewSpeedProfile(s)
}

// WindProfile maps an altitude to a wind vector by linear interpolation of each component.
type WindProfile struct {
	samples []WindSample // sorted by altitude
}

// NewWindProfile returns a profile owning a sorted copy of the provided samples.
func NewWindProfile(samples []WindSample) (*WindProfile, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: empty wind profile", ErrConfiguration)
	}
	for i, smpl := range samples {
		if !finite(smpl.Alt, smpl.U, smpl.V) {
			return nil, fmt.Errorf("%w: wind sample #%d is not finite (alt=%f, u=%f, v=%f)", ErrConfiguration, i, smpl.Alt, smpl.U, smpl.V)
		}
	}
	s := make([]WindSample, len(samples))
	copy(s, samples)
	sort.SliceStable(s, func(i, j int) bool { return s[i].Alt < s[j].Alt })
	return &WindProfile{s}, nil
}

// Value returns the (u, v) wind at the given altitude.
func (p *WindProfile) Value(alt float64) (u, v float64) {
	i, ratio, exact := bracket(len(p.samples), func(k int) float64 { return p.samples[k].Alt }, alt)
	if exact {
		return p.samples[i].U, p.samples[i].V
	}
	s1, s2 := p.samples[i], p.samples[i+1]
	return s1.U + ratio*(s2.U-s1.U), s1.V + ratio*(s2.V-s1.V)
}

// Samples returns a copy of the sorted samples.
func (p *WindProfile) Samples() []WindSample {
	s := make([]WindSample, len(p.samples))
	copy(s, p.samples)
	return s
}

// Len returns the number of samples.
func (p *WindProfile) Len() int {
	return len(p.samples)
}

// Map builds a new profile from the transformed samples. The receiver is left untouched.
func (p *WindProfile) Map(f func(WindSample) WindSample) (*WindProfile, error) {
	s := make([]WindSample, len(p.samples))
	for i, smpl := range p.samples {
		s[i] = f(smpl)
	}
	return NewWindProfile(s)
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// bracket locates alt among n sorted altitudes. If exact is set, index i holds the value to
// return as is (saturation or node hit). Otherwise alt lies strictly between i and i+1 and
// ratio is the interpolation weight of i+1. A NaN altitude saturates to the lowest sample.
func bracket(n int, altAt func(int) float64, alt float64) (i int, ratio float64, exact bool) {
	if math.IsNaN(alt) || alt <= altAt(0) {
		return 0, 0, true
	}
	if alt >= altAt(n-1) {
		return n - 1, 0, true
	}
	// First sample strictly above alt; 1 <= j <= n-1 here.
	j := sort.Search(n, func(k int) bool { return altAt(k) > alt })
	i = j - 1
	if altAt(i) == alt {
		return i, 0, true
	}
	return i, (alt - altAt(i)) / (altAt(j) - altAt(i)), false
}

const (
	massReference  = 1.0 // kg, implicit mass of a base descent profile
	massSpeedFloor = 0.1
	freeFallFloor  = 0.5
)

// ScaleForMass scales a descent profile for the payload mass: v * sqrt(m / 1 kg).
// A non-positive mass returns the profile unchanged.
func ScaleForMass(p *SpeedProfile, massKg float64) (*SpeedProfile, error) {
	if massKg <= 0 {
		return p, nil
	}
	factor := math.Sqrt(massKg / massReference)
	return p.Map(func(s SpeedSample) SpeedSample {
		return SpeedSample{s.Alt, math.Max(massSpeedFloor, s.Speed*factor)}
	})
}

// WithFreeFall accelerates the descent below ffAlt by factor. With ffAlt <= 0 the whole
// profile is accelerated. Speeds are floored at 0.5 m/s.
func WithFreeFall(p *SpeedProfile, ffAlt, factor float64) (*SpeedProfile, error) {
	return p.Map(func(s SpeedSample) SpeedSample {
		v := s.Speed
		if ffAlt <= 0 || s.Alt <= ffAlt {
			v *= factor
		}
		return SpeedSample{s.Alt, math.Max(v, freeFallFloor)}
	})
}
