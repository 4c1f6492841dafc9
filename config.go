package sonde

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Mode is the kind of prediction a scenario requests.
type Mode uint8

const (
	// ModeDescent simulates a descent from the launch altitude.
	ModeDescent Mode = iota + 1
	// ModeFlight simulates an ascent to the burst altitude followed by the descent.
	ModeFlight
	// ModeMonteCarlo runs perturbed flights to estimate the landing ellipse.
	ModeMonteCarlo
)

func (m Mode) String() string {
	switch m {
	case ModeDescent:
		return "descent"
	case ModeFlight:
		return "flight"
	case ModeMonteCarlo:
		return "montecarlo"
	default:
		panic(fmt.Errorf("unknown mode %d", uint8(m)))
	}
}

// ModeFromString returns the mode of the given name.
func ModeFromString(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "descent":
		return ModeDescent, nil
	case "flight":
		return ModeFlight, nil
	case "montecarlo", "monte-carlo", "mc":
		return ModeMonteCarlo, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode `%s`", ErrConfiguration, name)
	}
}

// Scenario is a prediction scenario read from a TOML file.
type Scenario struct {
	Mode    Mode
	Output  string // prefix of the output files
	Verbose bool

	LaunchLat, LaunchLon, LaunchAlt float64
	LaunchTime                      time.Time // zero if unset

	Burst, Step    float64
	MaxSteps       int
	FreeFallAlt    *float64
	FreeFallFactor float64
	Mass           float64 // kg, 0 leaves the descent profile unscaled

	// Profile files (CSV), used when the matching inline points are empty.
	DescentFile, AscentFile, WindFile string
	DescentPoints, AscentPoints       []SpeedSample
	WindPoints                        []WindSample

	// WindGridFile is a decoded isobaric grid (JSON), the last wind source tried.
	WindGridFile string

	Runs                            int
	SigmaDescRel, SigmaWind, KSigma float64
	Seed                            *uint64
	Workers                         int
}

func setScenarioDefaults(v *viper.Viper) {
	v.SetDefault("general.mode", "descent")
	v.SetDefault("general.output", "sonde")
	v.SetDefault("general.verbose", false)
	v.SetDefault("launch.alt", 0.0)
	v.SetDefault("flight.step", 1.0)
	v.SetDefault("flight.max_steps", DefaultMaxSteps)
	v.SetDefault("flight.free_fall_factor", 1.0)
	v.SetDefault("flight.mass", 0.0)
	v.SetDefault("montecarlo.runs", 200)
	v.SetDefault("montecarlo.sigma_desc_rel", 0.10)
	v.SetDefault("montecarlo.sigma_wind", 2.0)
	v.SetDefault("montecarlo.k_sigma", DefaultKSigma)
	v.SetDefault("montecarlo.workers", 0)
}

// LoadScenario reads and validates the scenario at the given path.
func LoadScenario(path string) (*Scenario, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("toml")
	}
	setScenarioDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrConfiguration, path, err)
	}
	return scenarioFromViper(v)
}

func scenarioFromViper(v *viper.Viper) (*Scenario, error) {
	mode, err := ModeFromString(v.GetString("general.mode"))
	if err != nil {
		return nil, err
	}
	s := &Scenario{
		Mode:           mode,
		Output:         v.GetString("general.output"),
		Verbose:        v.GetBool("general.verbose"),
		LaunchLat:      v.GetFloat64("launch.lat"),
		LaunchLon:      v.GetFloat64("launch.lon"),
		LaunchAlt:      v.GetFloat64("launch.alt"),
		Burst:          v.GetFloat64("flight.burst"),
		Step:           v.GetFloat64("flight.step"),
		MaxSteps:       v.GetInt("flight.max_steps"),
		FreeFallFactor: v.GetFloat64("flight.free_fall_factor"),
		Mass:           v.GetFloat64("flight.mass"),
		DescentFile:    v.GetString("profiles.descent"),
		AscentFile:     v.GetString("profiles.ascent"),
		WindFile:       v.GetString("profiles.wind"),
		WindGridFile:   v.GetString("profiles.wind_grid"),
		Runs:           v.GetInt("montecarlo.runs"),
		SigmaDescRel:   v.GetFloat64("montecarlo.sigma_desc_rel"),
		SigmaWind:      v.GetFloat64("montecarlo.sigma_wind"),
		KSigma:         v.GetFloat64("montecarlo.k_sigma"),
		Workers:        v.GetInt("montecarlo.workers"),
	}
	if s.LaunchTime, err = readJDEorTime(v, "launch.time"); err != nil {
		return nil, err
	}
	if v.IsSet("flight.free_fall_alt") {
		ffAlt := v.GetFloat64("flight.free_fall_alt")
		s.FreeFallAlt = &ffAlt
	}
	if v.IsSet("montecarlo.seed") {
		seed := v.GetUint64("montecarlo.seed")
		s.Seed = &seed
	}

	rows, err := readPoints(v, "profiles.descent_points", 2)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		s.DescentPoints = append(s.DescentPoints, SpeedSample{r[0], r[1]})
	}
	if rows, err = readPoints(v, "profiles.ascent_points", 2); err != nil {
		return nil, err
	}
	for _, r := range rows {
		s.AscentPoints = append(s.AscentPoints, SpeedSample{r[0], r[1]})
	}
	if rows, err = readPoints(v, "profiles.wind_points", 3); err != nil {
		return nil, err
	}
	for _, r := range rows {
		s.WindPoints = append(s.WindPoints, WindSample{r[0], r[1], r[2]})
	}
	return s, s.Validate()
}

// readJDEorTime reads a date either as a Julian day or as an RFC3339 time.
func readJDEorTime(v *viper.Viper, key string) (time.Time, error) {
	if !v.IsSet(key) {
		return time.Time{}, nil
	}
	raw := v.Get(key)
	if jde, err := cast.ToFloat64E(raw); err == nil && jde != 0 {
		return julian.JDToTime(jde).UTC(), nil
	}
	if dt, ok := raw.(time.Time); ok {
		return dt.UTC(), nil
	}
	dt, err := time.Parse(time.RFC3339, cast.ToString(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %s", ErrConfiguration, key, err)
	}
	return dt.UTC(), nil
}

// readPoints reads an array of numeric rows of the given width, e.g. [[0, 5.0], [1000, 5.2]].
func readPoints(v *viper.Viper, key string, width int) ([][]float64, error) {
	if !v.IsSet(key) {
		return nil, nil
	}
	rows, err := cast.ToSliceE(v.Get(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrConfiguration, key, err)
	}
	points := make([][]float64, 0, len(rows))
	for i, row := range rows {
		cells, err := cast.ToSliceE(row)
		if err != nil || len(cells) != width {
			return nil, fmt.Errorf("%w: %s[%d]: expected %d numbers", ErrConfiguration, key, i, width)
		}
		point := make([]float64, width)
		for j, c := range cells {
			if point[j], err = cast.ToFloat64E(c); err != nil {
				return nil, fmt.Errorf("%w: %s[%d][%d]: %s", ErrConfiguration, key, i, j, err)
			}
		}
		points = append(points, point)
	}
	return points, nil
}

// Validate checks the consistency of the scenario for its mode.
func (s *Scenario) Validate() error {
	if s.Step <= 0 {
		return fmt.Errorf("%w: flight.step must be positive", ErrConfiguration)
	}
	if len(s.DescentPoints) == 0 && s.DescentFile == "" {
		return fmt.Errorf("%w: no descent profile", ErrConfiguration)
	}
	if len(s.WindPoints) == 0 && s.WindFile == "" && s.WindGridFile == "" {
		return fmt.Errorf("%w: no wind profile", ErrConfiguration)
	}
	switch s.Mode {
	case ModeDescent:
		if s.LaunchAlt <= 0 {
			return fmt.Errorf("%w: launch.alt must be positive for a descent", ErrConfiguration)
		}
	case ModeFlight, ModeMonteCarlo:
		// Monte Carlo flights start from the ground, launch.alt is ignored there.
		floor := s.LaunchAlt
		if s.Mode == ModeMonteCarlo {
			floor = 0
		}
		if s.Burst <= floor {
			return fmt.Errorf("%w: flight.burst (%.1f) must be above %.1f m", ErrConfiguration, s.Burst, floor)
		}
		if len(s.AscentPoints) == 0 && s.AscentFile == "" {
			return fmt.Errorf("%w: no ascent profile", ErrConfiguration)
		}
		if s.Mode == ModeMonteCarlo && s.Runs <= 0 {
			return fmt.Errorf("%w: montecarlo.runs must be positive", ErrConfiguration)
		}
	}
	return nil
}

// DescentConfig returns the descent simulation defined by the scenario.
func (s *Scenario) DescentConfig() DescentConfig {
	return DescentConfig{Alt0: s.LaunchAlt, Lat0: s.LaunchLat, Lon0: s.LaunchLon, Step: s.Step, MaxSteps: s.MaxSteps}
}

// FlightConfig returns the full flight simulation defined by the scenario.
func (s *Scenario) FlightConfig() FlightConfig {
	return FlightConfig{
		AltStart:       s.LaunchAlt,
		AltBurst:       s.Burst,
		Lat0:           s.LaunchLat,
		Lon0:           s.LaunchLon,
		Step:           s.Step,
		FreeFallAlt:    s.FreeFallAlt,
		FreeFallFactor: s.FreeFallFactor,
		MaxSteps:       s.MaxSteps,
	}
}

// MonteCarlo returns the Monte Carlo batch defined by the scenario, with the provided profiles.
func (s *Scenario) MonteCarlo(ascent, descent *SpeedProfile, wind *WindProfile) MonteCarlo {
	return MonteCarlo{
		Runs:         s.Runs,
		Alt0:         s.Burst,
		Lat0:         s.LaunchLat,
		Lon0:         s.LaunchLon,
		Step:         s.Step,
		Ascent:       ascent,
		Descent:      descent,
		Wind:         wind,
		SigmaDescRel: s.SigmaDescRel,
		SigmaWind:    s.SigmaWind,
		KSigma:       s.KSigma,
		Seed:         s.Seed,
		Workers:      s.Workers,
		MaxSteps:     s.MaxSteps,
	}
}
