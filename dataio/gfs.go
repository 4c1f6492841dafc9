package dataio

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	sonde "github.com/JeremyRos08/Sonde-Predict"
)

// NOMADSFilterURL is the GFS 0.25° filter service of NOMADS.
const NOMADSFilterURL = "https://nomads.ncep.noaa.gov/cgi-bin/filter_gfs_0p25.pl"

const (
	gfsCycle           = 6   // hours between two GFS runs
	gfsHourlyHorizon   = 120 // forecast hours with an hourly output
	gfsForecastHorizon = 384
)

// PressureToAltitude returns the standard atmosphere altitude (m) of a pressure (hPa).
func PressureToAltitude(hPa float64) float64 {
	return 44307.693 * (1 - math.Pow(math.Max(hPa, 1)/1013.25, 0.190284))
}

// WindComponent is a horizontal wind component.
type WindComponent uint8

const (
	// WindU is the eastward component.
	WindU WindComponent = iota + 1
	// WindV is the northward component.
	WindV
)

func (c WindComponent) String() string {
	switch c {
	case WindU:
		return "u"
	case WindV:
		return "v"
	default:
		panic(fmt.Errorf("unknown wind component %d", uint8(c)))
	}
}

// Names returns the variable names of the component in decoded GFS data, by preference.
func (c WindComponent) Names() []string {
	switch c {
	case WindU:
		return []string{"u", "u_component_of_wind"}
	case WindV:
		return []string{"v", "v_component_of_wind"}
	default:
		panic(fmt.Errorf("unknown wind component %d", uint8(c)))
	}
}

// GRIBName returns the GRIB2 short name of the component, as requested to NOMADS.
func (c WindComponent) GRIBName() string {
	switch c {
	case WindU:
		return "UGRD"
	case WindV:
		return "VGRD"
	default:
		panic(fmt.Errorf("unknown wind component %d", uint8(c)))
	}
}

// ResolveWindVariable returns the name under which the component is available.
func ResolveWindVariable(available []string, c WindComponent) (string, error) {
	for _, name := range c.Names() {
		for _, a := range available {
			if a == name {
				return name, nil
			}
		}
	}
	return "", fmt.Errorf("%w: wind %s not found in %v", sonde.ErrComputation, c, available)
}

// IsobaricLevel is the wind at a pressure level.
type IsobaricLevel struct {
	Pressure float64 // hPa
	U, V     float64 // m/s, NaN if missing
}

// WindFromIsobaric converts pressure levels to wind samples sorted by altitude.
// Levels with a missing component are skipped.
func WindFromIsobaric(levels []IsobaricLevel) []sonde.WindSample {
	samples := make([]sonde.WindSample, 0, len(levels))
	for _, l := range levels {
		if math.IsNaN(l.U) || math.IsNaN(l.V) || math.IsNaN(l.Pressure) {
			continue
		}
		samples = append(samples, sonde.WindSample{Alt: PressureToAltitude(l.Pressure), U: l.U, V: l.V})
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Alt < samples[j].Alt })
	return samples
}

// IsobaricGrid is decoded GFS wind data on a regular grid. Variables are indexed
// by level, latitude and longitude.
type IsobaricGrid struct {
	Lats, Lons []float64 // degrees; longitudes may be in [0, 360)
	Levels     []float64 // hPa
	Variables  map[string][][][]float64
}

// gridFile is the JSON layout of a decoded grid. Missing values are null.
type gridFile struct {
	Lats      []float64                 `json:"lats"`
	Lons      []float64                 `json:"lons"`
	Levels    []float64                 `json:"levels"`
	Variables map[string][][][]*float64 `json:"variables"`
}

// ReadIsobaricGrid reads a decoded grid from JSON, e.g. a GRIB2 file dumped by an
// external decoder: {"lats": [...], "lons": [...], "levels": [...], "variables":
// {"u": [[[...]]], "v": [[[...]]]}}. Null cells become NaN.
func ReadIsobaricGrid(r io.Reader) (*IsobaricGrid, error) {
	var f gridFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: isobaric grid: %s", sonde.ErrConfiguration, err)
	}
	g := &IsobaricGrid{Lats: f.Lats, Lons: f.Lons, Levels: f.Levels, Variables: make(map[string][][][]float64, len(f.Variables))}
	for name, levels := range f.Variables {
		vals := make([][][]float64, len(levels))
		for k, rows := range levels {
			vals[k] = make([][]float64, len(rows))
			for i, row := range rows {
				vals[k][i] = make([]float64, len(row))
				for j, cell := range row {
					vals[k][i][j] = math.NaN()
					if cell != nil {
						vals[k][i][j] = *cell
					}
				}
			}
		}
		g.Variables[name] = vals
	}
	return g, nil
}

// LoadGridWindProfile reads a decoded grid file and returns the wind profile at the
// grid point nearest to (lat, lon).
func LoadGridWindProfile(path string, lat, lon float64) (*sonde.WindProfile, error) {
	var samples []sonde.WindSample
	err := withFile(path, func(r io.Reader) error {
		g, err := ReadIsobaricGrid(r)
		if err != nil {
			return err
		}
		samples, err = g.WindProfileAt(lat, lon)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sonde.NewWindProfile(samples)
}

func nearest(axis []float64, val float64, dist func(a, b float64) float64) int {
	best := 0
	for i := range axis {
		if dist(axis[i], val) < dist(axis[best], val) {
			best = i
		}
	}
	return best
}

func lonDist(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	return math.Min(d, 360-d)
}

// WindProfileAt extracts the wind samples at the grid point nearest to (lat, lon).
func (g IsobaricGrid) WindProfileAt(lat, lon float64) ([]sonde.WindSample, error) {
	if len(g.Lats) == 0 || len(g.Lons) == 0 || len(g.Levels) == 0 {
		return nil, fmt.Errorf("%w: empty isobaric grid", sonde.ErrComputation)
	}
	names := make([]string, 0, len(g.Variables))
	for name := range g.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	uName, err := ResolveWindVariable(names, WindU)
	if err != nil {
		return nil, err
	}
	vName, err := ResolveWindVariable(names, WindV)
	if err != nil {
		return nil, err
	}
	i := nearest(g.Lats, lat, func(a, b float64) float64 { return math.Abs(a - b) })
	j := nearest(g.Lons, lon, lonDist)
	u, v := g.Variables[uName], g.Variables[vName]
	levels := make([]IsobaricLevel, 0, len(g.Levels))
	for k, p := range g.Levels {
		if k >= len(u) || k >= len(v) || i >= len(u[k]) || i >= len(v[k]) || j >= len(u[k][i]) || j >= len(v[k][i]) {
			return nil, fmt.Errorf("%w: variables do not match the grid dimensions", sonde.ErrComputation)
		}
		levels = append(levels, IsobaricLevel{Pressure: p, U: u[k][i][j], V: v[k][i][j]})
	}
	samples := WindFromIsobaric(levels)
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no valid wind level at (%.3f, %.3f)", sonde.ErrComputation, lat, lon)
	}
	return samples, nil
}

// GFSRequest is a NOMADS filter request for one GFS forecast file.
type GFSRequest struct {
	Cycle        time.Time // run date and hour (UTC)
	ForecastHour int
	LatMin       float64
	LatMax       float64
	LonMin       float64
	LonMax       float64
	Levels       []int // hPa, all levels if empty
	Variables    []string
}

// FileName returns the name of the forecast file on the server.
func (r GFSRequest) FileName() string {
	return fmt.Sprintf("gfs.t%02dz.pgrb2.0p25.f%03d", r.Cycle.UTC().Hour(), r.ForecastHour)
}

// URL returns the download URL. The query keeps the order expected by the filter.
func (r GFSRequest) URL() string {
	c := r.Cycle.UTC()
	params := [][2]string{
		{"file", r.FileName()},
		{"dir", fmt.Sprintf("/gfs.%s/%02d/atmos", c.Format("20060102"), c.Hour())},
		{"leftlon", strconv.FormatFloat(r.LonMin, 'f', -1, 64)},
		{"rightlon", strconv.FormatFloat(r.LonMax, 'f', -1, 64)},
		{"toplat", strconv.FormatFloat(r.LatMax, 'f', -1, 64)},
		{"bottomlat", strconv.FormatFloat(r.LatMin, 'f', -1, 64)},
	}
	if len(r.Levels) == 0 {
		params = append(params, [2]string{"all_lev", "on"})
	}
	for _, lev := range r.Levels {
		params = append(params, [2]string{fmt.Sprintf("lev_%d_mb", lev), "on"})
	}
	for _, v := range r.Variables {
		params = append(params, [2]string{"var_" + v, "on"})
	}
	query := make([]string, len(params))
	for i, p := range params {
		query[i] = url.QueryEscape(p[0]) + "=" + url.QueryEscape(p[1])
	}
	return NOMADSFilterURL + "?" + strings.Join(query, "&")
}

// NewGFSRequest returns the request of the wind forecast for a launch, from the
// latest run available at the issue time. The box spans `span` degrees around the
// launch point.
func NewGFSRequest(issued, launch time.Time, lat, lon, span float64, levels []int) (GFSRequest, error) {
	issued, launch = issued.UTC(), launch.UTC()
	if launch.Before(issued) {
		return GFSRequest{}, fmt.Errorf("%w: launch %s before issue time %s", sonde.ErrConfiguration, launch.Format(time.RFC3339), issued.Format(time.RFC3339))
	}
	if span <= 0 {
		return GFSRequest{}, fmt.Errorf("%w: span must be positive (got %f)", sonde.ErrConfiguration, span)
	}
	cycle := issued.Truncate(gfsCycle * time.Hour)
	lead := launch.Sub(cycle).Hours()
	fhour := int(math.Round(lead))
	if fhour > gfsHourlyHorizon {
		fhour = 3 * int(math.Round(lead/3))
	}
	if fhour > gfsForecastHorizon {
		return GFSRequest{}, fmt.Errorf("%w: launch is %dh after the %s run, beyond the %dh forecast", sonde.ErrConfiguration, fhour, cycle.Format("2006-01-02 15Z"), gfsForecastHorizon)
	}
	return GFSRequest{
		Cycle:        cycle,
		ForecastHour: fhour,
		LatMin:       lat - span,
		LatMax:       lat + span,
		LonMin:       lon - span,
		LonMax:       lon + span,
		Levels:       levels,
		Variables:    []string{WindU.GRIBName(), WindV.GRIBName()},
	}, nil
}
