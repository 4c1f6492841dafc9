package dataio

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	sonde "github.com/JeremyRos08/Sonde-Predict"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// CRS is the coordinate reference system of the exported geometries.
type CRS uint8

const (
	// WGS84 exports longitude/latitude in degrees (EPSG:4326).
	WGS84 CRS = iota
	// WebMercator exports meters in EPSG:3857, as used by web map tiles.
	WebMercator
)

// EllipseVertices is the number of vertices of an exported ellipse polygon.
const EllipseVertices = 72

// minEllipseAxis is the smallest minor axis (m) exported as a polygon. Thinner
// ellipses are exported as their center.
const minEllipseAxis = 0.01

// ErrNoGeometry is returned when there is nothing to export.
var ErrNoGeometry = errors.New("no geometry to export")

// projector maps a longitude and a latitude (degrees) to the exported coordinates.
type projector func(lon, lat float64) (x, y float64)

func (c CRS) projector() projector {
	if c == WebMercator {
		f := wgs84.EPSG().Transform(4326, 3857)
		return func(lon, lat float64) (x, y float64) {
			x, y, _ = f(lon, lat, 0)
			return
		}
	}
	return func(lon, lat float64) (float64, float64) { return lon, lat }
}

func (p projector) point(lon, lat float64) (geom.Geometry, error) {
	x, y := p(lon, lat)
	pt, err := geom.NewPoint(geom.Coordinates{XY: geom.XY{X: x, Y: y}})
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("point (%f, %f): %w", lon, lat, err)
	}
	return pt.AsGeometry(), nil
}

// TrajectoryFeature returns the trajectory as a 3D line. A trajectory without any
// horizontal motion is a point at its apex.
func TrajectoryFeature(states []sonde.State, crs CRS) (geom.GeoJSONFeature, error) {
	if len(states) == 0 {
		return geom.GeoJSONFeature{}, ErrNoGeometry
	}
	project := crs.projector()
	apex := sonde.Apex(states)
	props := map[string]interface{}{
		"kind":       "trajectory",
		"states":     len(states),
		"duration_s": sonde.Duration(states),
		"apex_m":     apex.Alt,
		"landed":     sonde.Landed(states),
	}
	coords := make([]float64, 0, 3*len(states))
	moved := false
	for i, s := range states {
		x, y := project(s.Lon, s.Lat)
		if i > 0 && (x != coords[0] || y != coords[1]) {
			moved = true
		}
		coords = append(coords, x, y, s.Alt)
	}
	if !moved {
		pt, err := geom.NewPoint(geom.Coordinates{XY: geom.XY{X: coords[0], Y: coords[1]}, Z: apex.Alt, Type: geom.DimXYZ})
		if err != nil {
			return geom.GeoJSONFeature{}, fmt.Errorf("trajectory point: %w", err)
		}
		return geom.GeoJSONFeature{Geometry: pt.AsGeometry(), Properties: props}, nil
	}
	ls, err := geom.NewLineString(geom.NewSequence(coords, geom.DimXYZ))
	if err != nil {
		return geom.GeoJSONFeature{}, fmt.Errorf("trajectory line: %w", err)
	}
	return geom.GeoJSONFeature{Geometry: ls.AsGeometry(), Properties: props}, nil
}

// TrajectoryGeoJSON returns a feature collection holding the trajectory and its
// landing point.
func TrajectoryGeoJSON(states []sonde.State, crs CRS) ([]byte, error) {
	traj, err := TrajectoryFeature(states, crs)
	if err != nil {
		return nil, err
	}
	last := states[len(states)-1]
	landing, err := crs.projector().point(last.Lon, last.Lat)
	if err != nil {
		return nil, err
	}
	fc := geom.GeoJSONFeatureCollection{traj, {
		Geometry:   landing,
		Properties: map[string]interface{}{"kind": "landing", "t_s": sonde.Duration(states)},
	}}
	return json.Marshal(&fc)
}

// EllipseFeature returns the ellipse as a polygon. The ellipse is in the local frame
// centered on (lat0, lon0). An ellipse with a null minor axis is exported as its center.
func EllipseFeature(lat0, lon0 float64, e sonde.EllipseResult, crs CRS) (geom.GeoJSONFeature, error) {
	project := crs.projector()
	props := map[string]interface{}{
		"kind":      "ellipse",
		"a_m":       e.A,
		"b_m":       e.B,
		"angle_deg": e.Angle * 180 / math.Pi,
	}
	if !(e.B >= minEllipseAxis) {
		lat, lon := sonde.FromLocalXY(lat0, lon0, e.CX, e.CY)
		center, err := project.point(lon, lat)
		if err != nil {
			return geom.GeoJSONFeature{}, fmt.Errorf("ellipse center: %w", err)
		}
		return geom.GeoJSONFeature{Geometry: center, Properties: props}, nil
	}
	outline := e.Outline(EllipseVertices)
	coords := make([]float64, 0, 2*(len(outline)+1))
	for _, p := range append(outline, outline[0]) {
		lat, lon := sonde.FromLocalXY(lat0, lon0, p[0], p[1])
		x, y := project(lon, lat)
		coords = append(coords, x, y)
	}
	ring, err := geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
	if err != nil {
		return geom.GeoJSONFeature{}, fmt.Errorf("ellipse ring: %w", err)
	}
	poly, err := geom.NewPolygon([]geom.LineString{ring})
	if err != nil {
		return geom.GeoJSONFeature{}, fmt.Errorf("ellipse polygon: %w", err)
	}
	return geom.GeoJSONFeature{Geometry: poly.AsGeometry(), Properties: props}, nil
}

// MonteCarloGeoJSON returns a feature collection with the launch point, every impact
// and, if any, the covariance ellipse.
func MonteCarloGeoJSON(lat0, lon0 float64, rslt *sonde.MonteCarloResult, crs CRS) ([]byte, error) {
	if rslt == nil || len(rslt.Impacts) == 0 {
		return nil, ErrNoGeometry
	}
	project := crs.projector()
	launch, err := project.point(lon0, lat0)
	if err != nil {
		return nil, err
	}
	fc := geom.GeoJSONFeatureCollection{{
		Geometry:   launch,
		Properties: map[string]interface{}{"kind": "launch"},
	}}
	for i, s := range rslt.Impacts {
		impact, err := project.point(s.Lon, s.Lat)
		if err != nil {
			return nil, fmt.Errorf("impact #%d: %w", i, err)
		}
		fc = append(fc, geom.GeoJSONFeature{
			Geometry:   impact,
			ID:         i,
			Properties: map[string]interface{}{"kind": "impact", "x_m": s.X, "y_m": s.Y},
		})
	}
	if rslt.Ellipse != nil {
		ellipse, err := EllipseFeature(lat0, lon0, *rslt.Ellipse, crs)
		if err != nil {
			return nil, err
		}
		fc = append(fc, ellipse)
	}
	return json.Marshal(&fc)
}
