package dataio

import (
	"context"
	"encoding/json"
	"testing"

	sonde "github.com/JeremyRos08/Sonde-Predict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type featureCollection struct {
	Type     string `json:"type"`
	Features []struct {
		ID       interface{} `json:"id"`
		Geometry struct {
			Type        string          `json:"type"`
			Coordinates json.RawMessage `json:"coordinates"`
		} `json:"geometry"`
		Properties map[string]interface{} `json:"properties"`
	} `json:"features"`
}

func decodeCollection(t *testing.T, data []byte) featureCollection {
	var fc featureCollection
	require.NoError(t, json.Unmarshal(data, &fc))
	require.Equal(t, "FeatureCollection", fc.Type)
	return fc
}

func TestTrajectoryGeoJSON(t *testing.T) {
	states := testTrajectory(t)
	data, err := TrajectoryGeoJSON(states, WGS84)
	require.NoError(t, err)
	fc := decodeCollection(t, data)
	require.Len(t, fc.Features, 2)

	traj := fc.Features[0]
	assert.Equal(t, "LineString", traj.Geometry.Type)
	assert.Equal(t, "trajectory", traj.Properties["kind"])
	assert.Equal(t, true, traj.Properties["landed"])
	assert.InDelta(t, 100, traj.Properties["apex_m"], 1e-9)
	var line [][]float64
	require.NoError(t, json.Unmarshal(traj.Geometry.Coordinates, &line))
	require.Len(t, line, len(states))
	assert.InDelta(t, states[0].Lon, line[0][0], 1e-9)
	assert.InDelta(t, states[0].Lat, line[0][1], 1e-9)
	assert.InDelta(t, 25, line[0][2], 1e-9)

	landing := fc.Features[1]
	assert.Equal(t, "Point", landing.Geometry.Type)
	var pt []float64
	require.NoError(t, json.Unmarshal(landing.Geometry.Coordinates, &pt))
	last := states[len(states)-1]
	assert.InDelta(t, last.Lon, pt[0], 1e-9)
	assert.InDelta(t, last.Lat, pt[1], 1e-9)

	_, err = TrajectoryGeoJSON(nil, WGS84)
	assert.ErrorIs(t, err, ErrNoGeometry)
}

func TestTrajectoryFeatureSingleState(t *testing.T) {
	f, err := TrajectoryFeature([]sonde.State{{Alt: 10, Lat: 1, Lon: 2, Dt: 1, Phase: sonde.Descent}}, WGS84)
	require.NoError(t, err)
	assert.True(t, f.Geometry.IsPoint())
}

func TestMonteCarloGeoJSON(t *testing.T) {
	ellipse := sonde.EllipseResult{CX: 1000, CY: -500, A: 3000, B: 1000, Angle: 0.3}
	rslt := &sonde.MonteCarloResult{
		Impacts: []sonde.ImpactSample{{Lat: 48.01, Lon: 2.01}, {Lat: 48.02, Lon: 2.0}, {Lat: 47.99, Lon: 2.02}},
		Ellipse: &ellipse,
	}
	data, err := MonteCarloGeoJSON(48, 2, rslt, WGS84)
	require.NoError(t, err)
	fc := decodeCollection(t, data)
	require.Len(t, fc.Features, 5)
	assert.Equal(t, "launch", fc.Features[0].Properties["kind"])
	for i, f := range fc.Features[1:4] {
		assert.Equal(t, "impact", f.Properties["kind"])
		assert.EqualValues(t, i, f.ID)
	}

	poly := fc.Features[4]
	assert.Equal(t, "Polygon", poly.Geometry.Type)
	assert.InDelta(t, 3000, poly.Properties["a_m"], 1e-9)
	var rings [][][]float64
	require.NoError(t, json.Unmarshal(poly.Geometry.Coordinates, &rings))
	require.Len(t, rings, 1)
	require.Len(t, rings[0], EllipseVertices+1)
	assert.Equal(t, rings[0][0], rings[0][EllipseVertices])
	// Every vertex lies on the ellipse.
	outline := ellipse.Outline(EllipseVertices)
	for i, p := range rings[0][:EllipseVertices] {
		lat, lon := sonde.FromLocalXY(48, 2, outline[i][0], outline[i][1])
		assert.InDelta(t, lon, p[0], 1e-9)
		assert.InDelta(t, lat, p[1], 1e-9)
	}

	data, err = MonteCarloGeoJSON(48, 2, &sonde.MonteCarloResult{Impacts: rslt.Impacts[:2]}, WGS84)
	require.NoError(t, err)
	assert.Len(t, decodeCollection(t, data).Features, 3)

	_, err = MonteCarloGeoJSON(48, 2, &sonde.MonteCarloResult{}, WGS84)
	assert.ErrorIs(t, err, ErrNoGeometry)
}

func TestWebMercator(t *testing.T) {
	x, y := WebMercator.projector()(2, 48)
	// Spherical Mercator on the WGS84 semi-major axis.
	assert.InDelta(t, 222638.98, x, 0.5)
	assert.InDelta(t, 6106854.83, y, 0.5)
	x, y = WGS84.projector()(2, 48)
	assert.Equal(t, 2.0, x)
	assert.Equal(t, 48.0, y)

	data, err := TrajectoryGeoJSON(testTrajectory(t), WebMercator)
	require.NoError(t, err)
	var line [][]float64
	require.NoError(t, json.Unmarshal(decodeCollection(t, data).Features[0].Geometry.Coordinates, &line))
	assert.Greater(t, line[0][0], 200000.0)
}

func TestTrajectoryGeoJSONVertical(t *testing.T) {
	speed, err := sonde.NewSpeedProfile([]sonde.SpeedSample{{Alt: 0, Speed: 5}, {Alt: 10000, Speed: 5}})
	require.NoError(t, err)
	calm, err := sonde.NewWindProfile([]sonde.WindSample{{Alt: 0}})
	require.NoError(t, err)
	states := sonde.SimulateDescent(sonde.DescentConfig{Alt0: 1000, Lat0: 48, Lon0: 2, Step: 5}, speed, calm)
	require.Len(t, states, 40)

	for _, crs := range []CRS{WGS84, WebMercator} {
		data, err := TrajectoryGeoJSON(states, crs)
		require.NoError(t, err)
		fc := decodeCollection(t, data)
		require.Len(t, fc.Features, 2)
		traj := fc.Features[0]
		assert.Equal(t, "Point", traj.Geometry.Type)
		assert.Equal(t, "trajectory", traj.Properties["kind"])
		var pt []float64
		require.NoError(t, json.Unmarshal(traj.Geometry.Coordinates, &pt))
		require.Len(t, pt, 3)
		// The apex is the first state, one step below the release altitude.
		assert.InDelta(t, 975, pt[2], 1e-9)
	}
}

func TestMonteCarloGeoJSONNullEllipse(t *testing.T) {
	impact := sonde.ImpactSample{Lat: 48.01, Lon: 2.01, X: 744.5, Y: 1111.9}
	rslt := &sonde.MonteCarloResult{
		Impacts: []sonde.ImpactSample{impact, impact, impact},
		Ellipse: &sonde.EllipseResult{CX: impact.X, CY: impact.Y},
	}
	data, err := MonteCarloGeoJSON(48, 2, rslt, WGS84)
	require.NoError(t, err)
	fc := decodeCollection(t, data)
	require.Len(t, fc.Features, 5)
	ellipse := fc.Features[4]
	assert.Equal(t, "ellipse", ellipse.Properties["kind"])
	assert.Equal(t, "Point", ellipse.Geometry.Type)
	var pt []float64
	require.NoError(t, json.Unmarshal(ellipse.Geometry.Coordinates, &pt))
	lat, lon := sonde.FromLocalXY(48, 2, impact.X, impact.Y)
	assert.InDelta(t, lon, pt[0], 1e-9)
	assert.InDelta(t, lat, pt[1], 1e-9)

	// A flat ellipse has no area either.
	f, err := EllipseFeature(48, 2, sonde.EllipseResult{A: 500}, WebMercator)
	require.NoError(t, err)
	assert.True(t, f.Geometry.IsPoint())
}

func TestMonteCarloGeoJSONWithoutNoise(t *testing.T) {
	speed, err := sonde.NewSpeedProfile([]sonde.SpeedSample{{Alt: 0, Speed: 5}})
	require.NoError(t, err)
	wind, err := sonde.NewWindProfile([]sonde.WindSample{{Alt: 0, U: 4, V: -1}, {Alt: 1000, U: 8, V: 2}})
	require.NoError(t, err)
	seed := uint64(42)
	rslt, err := sonde.MonteCarlo{
		Runs:    50,
		Alt0:    1000,
		Lat0:    48,
		Lon0:    2,
		Step:    5,
		Ascent:  speed,
		Descent: speed,
		Wind:    wind,
		Seed:    &seed,
	}.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rslt.Ellipse)

	data, err := MonteCarloGeoJSON(48, 2, rslt, WGS84)
	require.NoError(t, err)
	fc := decodeCollection(t, data)
	require.Len(t, fc.Features, 52)
	assert.Equal(t, "Point", fc.Features[51].Geometry.Type)
}
