package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	sonde "github.com/JeremyRos08/Sonde-Predict"
	"github.com/JeremyRos08/Sonde-Predict/dataio"
	kitlog "github.com/go-kit/kit/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Reads a scenario, runs the requested prediction and exports its results.

const defaultScenario = "~~unset~~"

var (
	scenario  string
	logFile   string
	verbose   bool
	mercator  bool
	gfsSpan   float64
	gfsIssued string
)

func init() {
	flag.StringVar(&scenario, "scenario", defaultScenario, "prediction scenario TOML file")
	flag.StringVar(&logFile, "log", "", "rotating log file (stdout if unset)")
	flag.BoolVar(&verbose, "verbose", false, "log the scenario")
	flag.BoolVar(&mercator, "mercator", false, "export GeoJSON in Web Mercator (EPSG:3857)")
	flag.Float64Var(&gfsSpan, "gfs", 0, "if positive, log the NOMADS GFS request covering this many degrees around the launch point")
	flag.StringVar(&gfsIssued, "gfs-issued", "", "issue time (RFC3339) of the GFS request, now if unset")
}

func newLogger() kitlog.Logger {
	var w io.Writer = os.Stdout
	if logFile != "" {
		w = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    16, // MB
			MaxBackups: 3,
		}
	}
	klog := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(w))
	return kitlog.With(klog, "ts", kitlog.DefaultTimestampUTC)
}

func speedProfile(points []sonde.SpeedSample, path string) (*sonde.SpeedProfile, error) {
	if len(points) > 0 {
		return sonde.NewSpeedProfile(points)
	}
	return dataio.LoadSpeedProfile(path)
}

func windProfile(s *sonde.Scenario) (*sonde.WindProfile, error) {
	switch {
	case len(s.WindPoints) > 0:
		return sonde.NewWindProfile(s.WindPoints)
	case s.WindFile != "":
		return dataio.LoadWindProfile(s.WindFile)
	default:
		return dataio.LoadGridWindProfile(s.WindGridFile, s.LaunchLat, s.LaunchLon)
	}
}

func main() {
	flag.Parse()
	if scenario == defaultScenario {
		log.Fatal("no scenario provided")
	}
	s, err := sonde.LoadScenario(scenario)
	if err != nil {
		log.Fatal(err)
	}
	klog := newLogger()
	sonde.SetLogger(klog)
	klog = kitlog.With(klog, "subsys", "main")
	if verbose || s.Verbose {
		klog.Log("level", "info", "scenario", scenario, "mode", s.Mode, "launch", fmt.Sprintf("(%.5f,%.5f) %.1fm", s.LaunchLat, s.LaunchLon, s.LaunchAlt), "burst(m)", s.Burst, "step(s)", s.Step, "output", s.Output)
	}
	crs := dataio.WGS84
	if mercator {
		crs = dataio.WebMercator
	}
	if gfsSpan > 0 {
		logGFSRequest(klog, s)
	}

	descent, err := speedProfile(s.DescentPoints, s.DescentFile)
	if err != nil {
		log.Fatalf("descent profile: %s", err)
	}
	if descent, err = sonde.ScaleForMass(descent, s.Mass); err != nil {
		log.Fatalf("descent profile: %s", err)
	}
	wind, err := windProfile(s)
	if err != nil {
		log.Fatalf("wind profile: %s", err)
	}
	if dir := filepath.Dir(s.Output); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal(err)
		}
	}

	switch s.Mode {
	case sonde.ModeDescent:
		if s.FreeFallAlt != nil {
			if descent, err = sonde.WithFreeFall(descent, *s.FreeFallAlt, s.FreeFallFactor); err != nil {
				log.Fatalf("free fall profile: %s", err)
			}
		}
		exportTrajectory(klog, s, sonde.SimulateDescent(s.DescentConfig(), descent, wind), crs)

	case sonde.ModeFlight:
		ascent, err := speedProfile(s.AscentPoints, s.AscentFile)
		if err != nil {
			log.Fatalf("ascent profile: %s", err)
		}
		exportTrajectory(klog, s, sonde.SimulateFlight(s.FlightConfig(), ascent, descent, wind), crs)

	case sonde.ModeMonteCarlo:
		ascent, err := speedProfile(s.AscentPoints, s.AscentFile)
		if err != nil {
			log.Fatalf("ascent profile: %s", err)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		mc := s.MonteCarlo(ascent, descent, wind)
		mc.Logger = klog
		rslt, err := mc.Run(ctx)
		if err != nil {
			log.Fatalf("monte carlo: %s", err)
		}
		exportMonteCarlo(klog, s, rslt, crs)
	}
}

func logGFSRequest(klog kitlog.Logger, s *sonde.Scenario) {
	issued := time.Now().UTC()
	if gfsIssued != "" {
		var err error
		if issued, err = time.Parse(time.RFC3339, gfsIssued); err != nil {
			log.Fatalf("-gfs-issued: %s", err)
		}
	}
	launch := s.LaunchTime
	if launch.IsZero() {
		launch = issued
	}
	req, err := dataio.NewGFSRequest(issued, launch, s.LaunchLat, s.LaunchLon, gfsSpan, nil)
	if err != nil {
		log.Fatalf("gfs: %s", err)
	}
	klog.Log("level", "info", "gfs", req.FileName(), "cycle", req.Cycle.Format(time.RFC3339), "url", req.URL())
}

func exportTrajectory(klog kitlog.Logger, s *sonde.Scenario, states []sonde.State, crs dataio.CRS) {
	if len(states) == 0 {
		klog.Log("level", "warning", "status", "empty trajectory")
		return
	}
	csvPath := s.Output + "_traj.csv"
	err := dataio.WriteFile(csvPath, func(w io.Writer) error {
		return dataio.WriteTrajectoryCSV(w, states, s.LaunchTime)
	})
	if err != nil {
		log.Fatal(err)
	}
	data, err := dataio.TrajectoryGeoJSON(states, crs)
	if err != nil {
		log.Fatal(err)
	}
	jsonPath := s.Output + "_traj.geojson"
	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		log.Fatal(err)
	}
	last := states[len(states)-1]
	x, y := sonde.LocalXY(s.LaunchLat, s.LaunchLon, last.Lat, last.Lon)
	klog.Log("level", "info", "mode", s.Mode, "states", len(states), "landed", sonde.Landed(states), "apex(m)", sonde.Apex(states).Alt,
		"duration", time.Duration(sonde.Duration(states)*float64(time.Second)).Round(time.Second), "impact", last, "drift(m)", fmt.Sprintf("(%.1f,%.1f)", x, y), "csv", csvPath, "geojson", jsonPath)
}

func exportMonteCarlo(klog kitlog.Logger, s *sonde.Scenario, rslt *sonde.MonteCarloResult, crs dataio.CRS) {
	csvPath := s.Output + "_impacts.csv"
	err := dataio.WriteFile(csvPath, func(w io.Writer) error {
		return dataio.WriteImpactsCSV(w, rslt.Impacts)
	})
	if err != nil {
		log.Fatal(err)
	}
	data, err := dataio.MonteCarloGeoJSON(s.LaunchLat, s.LaunchLon, rslt, crs)
	if errors.Is(err, dataio.ErrNoGeometry) {
		klog.Log("level", "warning", "status", "no impact", "err", err)
		return
	} else if err != nil {
		log.Fatal(err)
	}
	jsonPath := s.Output + "_mc.geojson"
	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		log.Fatal(err)
	}
	klog.Log("level", "info", "mode", s.Mode, "impacts", len(rslt.Impacts), "skipped", rslt.Skipped, "ellipse", rslt.Ellipse, "csv", csvPath, "geojson", jsonPath)
}
