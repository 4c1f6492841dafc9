package sonde

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultKSigma scales the 1σ ellipse to ~95% for a 2D Gaussian (χ² with 2 DOF).
const DefaultKSigma = 2.4477

// ImpactSample is the landing point of one Monte Carlo run.
type ImpactSample struct {
	Lat, Lon float64 // degrees
	X, Y     float64 // local frame around the launch point: +X east, +Y north (m)
}

// EllipseResult is a confidence ellipse in the local frame.
type EllipseResult struct {
	CX, CY float64 // center (m)
	A, B   float64 // semi-major and semi-minor axes (m)
	Angle  float64 // angle of the major axis from +X (radians)
}

func (e EllipseResult) String() string {
	return fmt.Sprintf("center=(%.1f,%.1f)m a=%.1fm b=%.1fm θ=%.1fdeg", e.CX, e.CY, e.A, e.B, e.Angle*r2d)
}

// Outline returns n points on the boundary of the ellipse, in the local frame.
func (e EllipseResult) Outline(n int) [][2]float64 {
	pts := make([][2]float64, n)
	sinθ, cosθ := math.Sincos(e.Angle)
	for i := range pts {
		t := 2 * math.Pi * float64(i) / float64(n)
		ex, ey := e.A*math.Cos(t), e.B*math.Sin(t)
		pts[i] = [2]float64{e.CX + ex*cosθ - ey*sinθ, e.CY + ex*sinθ + ey*cosθ}
	}
	return pts
}

func impactCoordinates(samples []ImpactSample) (xs, ys []float64) {
	xs = make([]float64, len(samples))
	ys = make([]float64, len(samples))
	for i, s := range samples {
		xs[i] = s.X
		ys[i] = s.Y
	}
	return
}

// Covariance returns the mean and the population covariance (divisor N) of the
// impact coordinates.
func Covariance(samples []ImpactSample) (mx, my float64, cov *mat.SymDense) {
	xs, ys := impactCoordinates(samples)
	n := float64(len(samples))
	mx = stat.Mean(xs, nil)
	my = stat.Mean(ys, nil)
	floats.AddConst(-mx, xs)
	floats.AddConst(-my, ys)
	sxx := floats.Dot(xs, xs) / n
	syy := floats.Dot(ys, ys) / n
	sxy := floats.Dot(xs, ys) / n
	cov = mat.NewSymDense(2, []float64{sxx, sxy, sxy, syy})
	return
}

// CovarianceEllipse returns the kσ covariance ellipse of the samples, or nil if there
// are fewer than three samples.
func CovarianceEllipse(samples []ImpactSample, kσ float64) *EllipseResult {
	if len(samples) < 3 {
		return nil
	}
	mx, my, cov := Covariance(samples)
	sxx, syy, sxy := cov.At(0, 0), cov.At(1, 1), cov.At(0, 1)

	// Closed form eigenvalues of the symmetric 2x2 matrix.
	trace := sxx + syy
	det := sxx*syy - sxy*sxy
	root := math.Sqrt(math.Max(0, trace*trace/4-det))
	λ1 := math.Max(0, trace/2+root)
	λ2 := math.Max(0, trace/2-root)

	angle := 0.0
	if sxx != syy || sxy != 0 {
		angle = 0.5 * math.Atan2(2*sxy, sxx-syy)
	}
	return &EllipseResult{CX: mx, CY: my, A: math.Sqrt(λ1) * kσ, B: math.Sqrt(λ2) * kσ, Angle: angle}
}
