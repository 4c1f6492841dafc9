package dataio

import (
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sonde "github.com/JeremyRos08/Sonde-Predict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPressureToAltitude(t *testing.T) {
	assert.InDelta(t, 0, PressureToAltitude(1013.25), 1e-9)
	assert.InDelta(t, 5572, PressureToAltitude(500), 1)
	assert.InDelta(t, 11770, PressureToAltitude(200), 1)
	// Clamped at 1 hPa.
	assert.Equal(t, PressureToAltitude(1), PressureToAltitude(0))
	assert.Equal(t, PressureToAltitude(1), PressureToAltitude(-20))
	assert.Less(t, PressureToAltitude(1000), PressureToAltitude(850))
}

func TestResolveWindVariable(t *testing.T) {
	tests := []struct {
		name      string
		available []string
		comp      WindComponent
		expected  string
	}{
		{"short u", []string{"t", "u", "v"}, WindU, "u"},
		{"long v", []string{"u_component_of_wind", "v_component_of_wind"}, WindV, "v_component_of_wind"},
		{"short wins", []string{"u_component_of_wind", "u"}, WindU, "u"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, err := ResolveWindVariable(tt.available, tt.comp)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, name)
		})
	}
	_, err := ResolveWindVariable([]string{"u", "t"}, WindV)
	assert.ErrorIs(t, err, sonde.ErrComputation)
	assert.Equal(t, "UGRD", WindU.GRIBName())
	assert.Equal(t, "v", WindV.String())
	assert.Panics(t, func() { _ = WindComponent(0).String() })
}

func TestWindFromIsobaric(t *testing.T) {
	samples := WindFromIsobaric([]IsobaricLevel{
		{Pressure: 500, U: 20, V: 5},
		{Pressure: 1000, U: 2, V: 1},
		{Pressure: 850, U: math.NaN(), V: 3},
		{Pressure: 700, U: 10, V: -2},
	})
	require.Len(t, samples, 3)
	assert.Equal(t, 2.0, samples[0].U)
	assert.Equal(t, 10.0, samples[1].U)
	assert.Equal(t, 20.0, samples[2].U)
	assert.InDelta(t, PressureToAltitude(500), samples[2].Alt, 1e-9)
	assert.Empty(t, WindFromIsobaric(nil))
}

func TestIsobaricGridWindProfileAt(t *testing.T) {
	levels := []float64{1000, 500}
	// u = 10*level + lat index, v = lon index
	grid := func(f func(k, i, j int) float64) [][][]float64 {
		g := make([][][]float64, 2)
		for k := range g {
			g[k] = make([][]float64, 2)
			for i := range g[k] {
				g[k][i] = make([]float64, 3)
				for j := range g[k][i] {
					g[k][i][j] = f(k, i, j)
				}
			}
		}
		return g
	}
	g := IsobaricGrid{
		Lats:   []float64{48, 48.25},
		Lons:   []float64{359.75, 0, 0.25},
		Levels: levels,
		Variables: map[string][][][]float64{
			"u_component_of_wind": grid(func(k, i, j int) float64 { return float64(10*k + i) }),
			"v":                   grid(func(k, i, j int) float64 { return float64(j) }),
		},
	}
	samples, err := g.WindProfileAt(48.2, -0.2)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	// Nearest point: lat 48.25 (i=1), lon 359.75 (j=0).
	assert.Equal(t, sonde.WindSample{Alt: PressureToAltitude(1000), U: 1, V: 0}, samples[0])
	assert.Equal(t, sonde.WindSample{Alt: PressureToAltitude(500), U: 11, V: 0}, samples[1])

	samples, err = g.WindProfileAt(48, 0.2)
	require.NoError(t, err)
	assert.Equal(t, 2.0, samples[0].V)

	delete(g.Variables, "v")
	_, err = g.WindProfileAt(48, 0)
	assert.ErrorIs(t, err, sonde.ErrComputation)
	_, err = IsobaricGrid{}.WindProfileAt(48, 0)
	assert.ErrorIs(t, err, sonde.ErrComputation)
}

func TestGFSRequestURL(t *testing.T) {
	req := GFSRequest{
		Cycle:        time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		ForecastHour: 6,
		LatMin:       47,
		LatMax:       49,
		LonMin:       1,
		LonMax:       3.5,
		Levels:       []int{1000, 500},
		Variables:    []string{"UGRD", "VGRD"},
	}
	assert.Equal(t, "gfs.t12z.pgrb2.0p25.f006", req.FileName())
	raw := req.URL()
	assert.True(t, strings.HasPrefix(raw, NOMADSFilterURL+"?file=gfs.t12z.pgrb2.0p25.f006&dir=%2Fgfs.20240601%2F12%2Fatmos&"))
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "/gfs.20240601/12/atmos", q.Get("dir"))
	assert.Equal(t, "1", q.Get("leftlon"))
	assert.Equal(t, "3.5", q.Get("rightlon"))
	assert.Equal(t, "49", q.Get("toplat"))
	assert.Equal(t, "47", q.Get("bottomlat"))
	assert.Equal(t, "on", q.Get("lev_1000_mb"))
	assert.Equal(t, "on", q.Get("lev_500_mb"))
	assert.Equal(t, "on", q.Get("var_VGRD"))
	assert.False(t, q.Has("all_lev"))

	req.Levels = nil
	q = mustQuery(t, req.URL())
	assert.Equal(t, "on", q.Get("all_lev"))
}

func mustQuery(t *testing.T, raw string) url.Values {
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query()
}

func TestNewGFSRequest(t *testing.T) {
	issued := time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC)
	req, err := NewGFSRequest(issued, issued.Add(20*time.Hour), 48, 2, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), req.Cycle)
	assert.Equal(t, 23, req.ForecastHour)
	assert.Equal(t, 47.0, req.LatMin)
	assert.Equal(t, 3.0, req.LonMax)
	assert.Equal(t, []string{"UGRD", "VGRD"}, req.Variables)

	// Beyond five days, outputs are 3-hourly.
	req, err = NewGFSRequest(issued, issued.Add(130*time.Hour), 48, 2, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 132, req.ForecastHour)

	_, err = NewGFSRequest(issued, issued.Add(400*time.Hour), 48, 2, 1, nil)
	assert.ErrorIs(t, err, sonde.ErrConfiguration)
	_, err = NewGFSRequest(issued, issued.Add(-time.Hour), 48, 2, 1, nil)
	assert.ErrorIs(t, err, sonde.ErrConfiguration)
	_, err = NewGFSRequest(issued, issued, 48, 2, 0, nil)
	assert.ErrorIs(t, err, sonde.ErrConfiguration)
}

const gridJSON = `{
	"lats": [48, 48.25],
	"lons": [0, 0.25],
	"levels": [1000, 850, 500],
	"variables": {
		"u": [[[1, 2], [3, 4]], [[null, 6], [7, 8]], [[9, 10], [11, 12]]],
		"v": [[[0, 0], [0, 0]], [[1, 1], [1, 1]], [[2, 2], [2, 2]]]
	}
}`

func TestReadIsobaricGrid(t *testing.T) {
	g, err := ReadIsobaricGrid(strings.NewReader(gridJSON))
	require.NoError(t, err)
	assert.Equal(t, []float64{1000, 850, 500}, g.Levels)
	assert.True(t, math.IsNaN(g.Variables["u"][1][0][0]))
	assert.Equal(t, 12.0, g.Variables["u"][2][1][1])

	// The null level is skipped at (48, 0).
	samples, err := g.WindProfileAt(48, 0)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, 1.0, samples[0].U)
	assert.Equal(t, 9.0, samples[1].U)

	samples, err = g.WindProfileAt(48.2, 0.2)
	require.NoError(t, err)
	assert.Len(t, samples, 3)

	_, err = ReadIsobaricGrid(strings.NewReader(`{"lats": "north"}`))
	assert.ErrorIs(t, err, sonde.ErrConfiguration)
}

func TestLoadGridWindProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gfs.json")
	require.NoError(t, os.WriteFile(path, []byte(gridJSON), 0644))
	wind, err := LoadGridWindProfile(path, 48.1, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 2, wind.Len())

	_, err = LoadGridWindProfile(filepath.Join(t.TempDir(), "missing.json"), 48, 0)
	assert.ErrorIs(t, err, sonde.ErrConfiguration)

	require.NoError(t, os.WriteFile(path, []byte(`{"lats": [48], "lons": [0], "levels": [500], "variables": {"u": [[[1]]]}}`), 0644))
	_, err = LoadGridWindProfile(path, 48, 0)
	assert.ErrorIs(t, err, sonde.ErrComputation)
}
