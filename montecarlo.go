package sonde

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"time"

	kitlog "github.com/go-kit/kit/log"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"
)

const mcSpeedFloor = 0.3 // m/s, minimum perturbed descent speed

// MonteCarlo defines a batch of perturbed full-flight simulations.
type MonteCarlo struct {
	Runs       int
	Alt0       float64 // burst altitude (m); every run starts from the ground
	Lat0, Lon0 float64 // launch point and origin of the local frame (degrees)
	Step       float64 // nominal time step (s)
	Ascent     *SpeedProfile
	Descent    *SpeedProfile
	Wind       *WindProfile
	// SigmaDescRel is the relative standard deviation of the per-run descent speed factor.
	SigmaDescRel float64
	// SigmaWind is the standard deviation (m/s) of the noise added to each wind component of each sample.
	SigmaWind float64
	// KSigma scales the ellipse axes. DefaultKSigma if zero.
	KSigma float64
	// Seed makes the batch reproducible. A random seed is used if nil.
	Seed *uint64
	// Workers is the number of concurrent runs. GOMAXPROCS if not positive.
	Workers int
	// MaxSteps caps the integration steps of each run. DefaultMaxSteps if not positive.
	MaxSteps int
	Logger   kitlog.Logger
}

// MonteCarloResult holds the impacts of a batch and their covariance ellipse.
type MonteCarloResult struct {
	Impacts []ImpactSample // in run order
	Ellipse *EllipseResult // nil if fewer than three impacts
	Skipped int            // runs which produced no state
}

func (mc MonteCarlo) validate() error {
	switch {
	case mc.Runs <= 0:
		return fmt.Errorf("%w: number of runs must be positive (got %d)", ErrConfiguration, mc.Runs)
	case mc.Alt0 <= 0:
		return fmt.Errorf("%w: burst altitude must be positive (got %f)", ErrConfiguration, mc.Alt0)
	case mc.Step <= 0:
		return fmt.Errorf("%w: time step must be positive (got %f)", ErrConfiguration, mc.Step)
	case mc.Ascent == nil || mc.Descent == nil || mc.Wind == nil:
		return fmt.Errorf("%w: ascent, descent and wind profiles are required", ErrConfiguration)
	case mc.SigmaDescRel < 0 || mc.SigmaWind < 0:
		return fmt.Errorf("%w: noise standard deviations cannot be negative", ErrConfiguration)
	case mc.KSigma < 0:
		return fmt.Errorf("%w: k-sigma cannot be negative (got %f)", ErrConfiguration, mc.KSigma)
	}
	return nil
}

// streamSeeds draws the seed of every run from a single master source, so that a
// seeded batch does not depend on how the runs are scheduled.
func (mc MonteCarlo) streamSeeds() [][2]uint64 {
	var seed uint64
	if mc.Seed != nil {
		seed = *mc.Seed
	} else {
		seed = rand.Uint64()
	}
	master := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	seeds := make([][2]uint64, mc.Runs)
	for i := range seeds {
		seeds[i] = [2]uint64{master.Uint64(), master.Uint64()}
	}
	return seeds
}

// perturb returns noisy copies of the base descent and wind profiles. The base
// profiles are never modified.
func (mc MonteCarlo) perturb(src rand.Source) (*SpeedProfile, *WindProfile, error) {
	// One scale factor per run: a bias on the whole descent profile.
	fDesc := 1 + distuv.Normal{Mu: 0, Sigma: mc.SigmaDescRel, Src: src}.Rand()
	descent, err := mc.Descent.Map(func(s SpeedSample) SpeedSample {
		return SpeedSample{s.Alt, math.Max(mcSpeedFloor, s.Speed*fDesc)}
	})
	if err != nil {
		return nil, nil, err
	}
	// Independent noise on each wind sample.
	noise := distuv.Normal{Mu: 0, Sigma: mc.SigmaWind, Src: src}
	wind, err := mc.Wind.Map(func(s WindSample) WindSample {
		return WindSample{s.Alt, s.U + noise.Rand(), s.V + noise.Rand()}
	})
	if err != nil {
		return nil, nil, err
	}
	return descent, wind, nil
}

// runOnce performs one perturbed flight and returns its impact, or nil if the
// flight produced no state.
func (mc MonteCarlo) runOnce(seed [2]uint64) (*ImpactSample, error) {
	descent, wind, err := mc.perturb(rand.NewPCG(seed[0], seed[1]))
	if err != nil {
		return nil, err
	}
	states := SimulateFlight(FlightConfig{
		AltStart:       0,
		AltBurst:       mc.Alt0,
		Lat0:           mc.Lat0,
		Lon0:           mc.Lon0,
		Step:           mc.Step,
		FreeFallFactor: 1,
		MaxSteps:       mc.MaxSteps,
	}, mc.Ascent, descent, wind)
	if len(states) == 0 {
		return nil, nil
	}
	impact := states[len(states)-1]
	x, y := LocalXY(mc.Lat0, mc.Lon0, impact.Lat, impact.Lon)
	return &ImpactSample{Lat: impact.Lat, Lon: impact.Lon, X: x, Y: y}, nil
}

// Run executes the batch. Runs are independent and spread over the workers; the
// context allows cancelling a long batch, in which case its error is returned.
func (mc MonteCarlo) Run(ctx context.Context) (*MonteCarloResult, error) {
	if err := mc.validate(); err != nil {
		return nil, err
	}
	klog := mc.Logger
	if klog == nil {
		klog = logger
	}
	klog = kitlog.With(klog, "subsys", "mc")
	kσ := mc.KSigma
	if kσ == 0 {
		kσ = DefaultKSigma
	}
	workers := mc.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	start := time.Now()
	seeds := mc.streamSeeds()
	impacts := make([]*ImpactSample, mc.Runs)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range seeds {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			impact, err := mc.runOnce(seeds[i])
			if err != nil {
				return err
			}
			impacts[i] = impact
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		klog.Log("level", "error", "status", "aborted", "err", err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rslt := &MonteCarloResult{}
	for _, impact := range impacts {
		if impact == nil {
			rslt.Skipped++
			continue
		}
		rslt.Impacts = append(rslt.Impacts, *impact)
	}
	rslt.Ellipse = CovarianceEllipse(rslt.Impacts, kσ)
	if rslt.Ellipse != nil {
		klog.Log("level", "info", "runs", mc.Runs, "impacts", len(rslt.Impacts), "skipped", rslt.Skipped, "ellipse", rslt.Ellipse, "duration", time.Since(start))
	} else {
		klog.Log("level", "warning", "runs", mc.Runs, "impacts", len(rslt.Impacts), "skipped", rslt.Skipped, "message", "not enough impacts for an ellipse")
	}
	return rslt, nil
}

// RunMonteCarlo runs the batch and returns the impacts and their ellipse (nil if
// fewer than three impacts were collected).
func RunMonteCarlo(ctx context.Context, mc MonteCarlo) ([]ImpactSample, *EllipseResult, error) {
	rslt, err := mc.Run(ctx)
	if err != nil {
		return nil, nil, err
	}
	return rslt.Impacts, rslt.Ellipse, nil
}
