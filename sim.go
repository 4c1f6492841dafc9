package sonde

import (
	"fmt"
	"math"
)

const (
	// EarthRadius is the mean Earth radius in meters.
	EarthRadius = 6371000.0
	// DefaultMaxSteps caps the number of integration steps of a simulation.
	DefaultMaxSteps = 40000

	speedEpsilon       = 1e-6
	highAltitude       = 18000.0 // m
	highAltitudeFactor = 1.3
)

// Phase is the flight phase of a state.
type Phase uint8

const (
	// Ascent is the balloon-lifted phase.
	Ascent Phase = iota + 1
	// Descent is the parachute (or free fall) phase, from burst or rupture to the ground.
	Descent
)

func (p Phase) String() string {
	switch p {
	case Ascent:
		return "ASCENT"
	case Descent:
		return "DESCENT"
	default:
		panic(fmt.Errorf("unknown phase %d", uint8(p)))
	}
}

// State is the state of the balloon at the end of an integration step.
type State struct {
	T      float64 // elapsed time at the start of the step (s)
	Dt     float64 // duration of the step (s)
	Alt    float64 // altitude (m), never negative
	Lat    float64 // degrees
	Lon    float64 // degrees
	VSpeed float64 // vertical speed (m/s), negative while ascending
	WindU  float64 // m/s, east
	WindV  float64 // m/s, north
	Phase  Phase
}

func (s State) String() string {
	return fmt.Sprintf("t=%.1fs alt=%.1fm (%.6f,%.6f) vz=%.2fm/s wind=(%.2f,%.2f) %s", s.T, s.Alt, s.Lat, s.Lon, s.VSpeed, s.WindU, s.WindV, s.Phase)
}

// DescentConfig defines a descent-only simulation.
type DescentConfig struct {
	Alt0       float64 // release altitude (m), must be positive
	Lat0, Lon0 float64 // degrees
	Step       float64 // nominal time step (s)
	MaxSteps   int     // DefaultMaxSteps if not positive
}

// FlightConfig defines a full flight: ascent to burst, then descent.
type FlightConfig struct {
	AltStart, AltBurst float64 // m
	Lat0, Lon0         float64 // degrees
	Step               float64 // nominal time step (s)
	// FreeFallAlt, if set, forces a rupture when reached during the ascent.
	FreeFallAlt *float64
	// FreeFallFactor multiplies the descent speed after a rupture. 1 if not positive.
	FreeFallFactor float64
	MaxSteps       int // DefaultMaxSteps if not positive
}

func maxSteps(n int) int {
	if n <= 0 {
		return DefaultMaxSteps
	}
	return n
}

// advect moves a position (radians) with the wind during dt. The longitude
// update uses the updated latitude.
func advect(lat, lon, u, v, dt float64) (float64, float64) {
	lat += v * dt / EarthRadius
	lon += u * dt / (EarthRadius * math.Cos(lat))
	return lat, lon
}

// SimulateDescent integrates a descent from the release altitude down to the ground.
// The returned slice is empty if the release altitude is not positive, and does not end
// on the ground if the step cap was reached first.
func SimulateDescent(conf DescentConfig, descent *SpeedProfile, wind *WindProfile) []State {
	var states []State
	t, alt := 0.0, conf.Alt0
	lat, lon := conf.Lat0*d2r, conf.Lon0*d2r
	steps := maxSteps(conf.MaxSteps)
	for i := 0; i < steps && alt > 0; i++ {
		v := descent.Value(alt)
		dt := conf.Step
		grounded := alt-v*conf.Step < 0
		if grounded {
			dt = alt / math.Max(v, speedEpsilon)
		}
		// Wind at the middle of the layer crossed during this step.
		u, w := wind.Value(alt - 0.5*v*dt)
		if grounded {
			alt = 0
		} else {
			alt -= v * dt
		}
		lat, lon = advect(lat, lon, u, w, dt)
		states = append(states, State{
			T: t, Dt: dt, Alt: math.Max(alt, 0), Lat: lat * r2d, Lon: lon * r2d,
			VSpeed: v, WindU: u, WindV: w, Phase: Descent,
		})
		t += dt
	}
	if alt > 0 && conf.Alt0 > 0 {
		logger.Log("level", "warning", "subsys", "sim", "mode", "descent", "status", "step cap reached", "steps", steps, "alt(m)", alt)
	}
	return states
}

// SimulateFlight integrates a full flight: ascent until the burst altitude (or the
// free fall altitude, if set), then descent down to the ground.
func SimulateFlight(conf FlightConfig, ascent, descent *SpeedProfile, wind *WindProfile) []State {
	var states []State
	t, alt := 0.0, conf.AltStart
	lat, lon := conf.Lat0*d2r, conf.Lon0*d2r
	ffFactor := conf.FreeFallFactor
	if ffFactor <= 0 {
		ffFactor = 1
	}
	phase := Ascent
	ruptured := false
	steps := maxSteps(conf.MaxSteps)
	for i := 0; i < steps; i++ {
		// Rupture has priority over the burst.
		if conf.FreeFallAlt != nil && !ruptured && phase == Ascent && alt >= *conf.FreeFallAlt {
			ruptured = true
			phase = Descent
		}
		if phase == Ascent && alt >= conf.AltBurst {
			phase = Descent
		}

		var v, dt, next, mid float64
		ascending := phase == Ascent
		switch phase {
		case Ascent:
			v = ascent.Value(alt)
			if alt+v*conf.Step >= conf.AltBurst {
				dt = (conf.AltBurst - alt) / math.Max(v, speedEpsilon)
				next = conf.AltBurst
				phase = Descent
			} else {
				dt = conf.Step
				next = alt + v*dt
			}
			mid = alt + 0.5*v*dt
		case Descent:
			v = descent.Value(alt)
			if alt > highAltitude {
				v *= highAltitudeFactor
			}
			if ruptured {
				v *= ffFactor
			}
			if alt-v*conf.Step <= 0 {
				dt = alt / math.Max(v, speedEpsilon)
				next = 0
			} else {
				dt = conf.Step
				next = alt - v*dt
			}
			mid = alt - 0.5*v*dt
		}

		u, w := wind.Value(mid)
		lat, lon = advect(lat, lon, u, w, dt)
		vz := v
		if ascending {
			vz = -v
		}
		alt = next
		states = append(states, State{
			T: t, Dt: dt, Alt: math.Max(alt, 0), Lat: lat * r2d, Lon: lon * r2d,
			VSpeed: vz, WindU: u, WindV: w, Phase: phase,
		})
		t += dt
		if phase == Descent && alt <= 0 {
			return states
		}
	}
	logger.Log("level", "warning", "subsys", "sim", "mode", "flight", "status", "step cap reached", "steps", steps, "alt(m)", alt, "phase", phase)
	return states
}

// Landed returns whether the trajectory ends on the ground.
func Landed(states []State) bool {
	return len(states) > 0 && states[len(states)-1].Alt <= 0
}

// Apex returns the highest state of a trajectory. It panics on an empty trajectory.
func Apex(states []State) State {
	apex := states[0]
	for _, s := range states[1:] {
		if s.Alt > apex.Alt {
			apex = s
		}
	}
	return apex
}

// Duration returns the flight time of a trajectory, in seconds.
func Duration(states []State) float64 {
	if len(states) == 0 {
		return 0
	}
	last := states[len(states)-1]
	return last.T + last.Dt
}
