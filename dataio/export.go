package dataio

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	sonde "github.com/JeremyRos08/Sonde-Predict"
)

func ftoa(f float64, prec int) string {
	return strconv.FormatFloat(f, 'f', prec, 64)
}

// WriteTrajectoryCSV writes one line per state. If launch is not the zero time, an
// extra column holds the UTC date of the end of each step.
func WriteTrajectoryCSV(w io.Writer, states []sonde.State, launch time.Time) error {
	cw := csv.NewWriter(w)
	header := []string{"t_s", "alt_m", "lat_deg", "lon_deg", "vz_ms", "wind_u_ms", "wind_v_ms", "phase"}
	if !launch.IsZero() {
		header = append(header, "utc")
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, s := range states {
		rec := []string{
			ftoa(s.T, 3), ftoa(s.Alt, 3), ftoa(s.Lat, 6), ftoa(s.Lon, 6),
			ftoa(s.VSpeed, 6), ftoa(s.WindU, 6), ftoa(s.WindV, 6), s.Phase.String(),
		}
		if !launch.IsZero() {
			end := launch.Add(time.Duration(math.Round((s.T + s.Dt) * float64(time.Second))))
			rec = append(rec, end.UTC().Format(time.RFC3339))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteImpactsCSV writes the impacts of a Monte Carlo batch.
func WriteImpactsCSV(w io.Writer, impacts []sonde.ImpactSample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"run", "lat_deg", "lon_deg", "x_m", "y_m"}); err != nil {
		return err
	}
	for i, s := range impacts {
		if err := cw.Write([]string{strconv.Itoa(i), ftoa(s.Lat, 6), ftoa(s.Lon, 6), ftoa(s.X, 2), ftoa(s.Y, 2)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile creates the file at path and writes to it with the provided function.
func WriteFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}
