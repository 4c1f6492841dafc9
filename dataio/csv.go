// Package dataio reads profile data and writes prediction results.
package dataio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	sonde "github.com/JeremyRos08/Sonde-Predict"
)

// Column keys, matched case-insensitively against the header names.
var (
	altKeys     = []string{"alt"}
	descentKeys = []string{"descent", "vit", "vitesse", "speed"}
	windUKeys   = []string{"u"}
	windVKeys   = []string{"v"}
)

// table is a semicolon separated file with a header line.
type table struct {
	header []string
	rows   [][]string
	used   map[int]bool
}

func readTable(r io.Reader) (*table, error) {
	rd := csv.NewReader(r)
	rd.Comma = ';'
	rd.Comment = '#'
	rd.FieldsPerRecord = -1
	rd.TrimLeadingSpace = true
	records, err := rd.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", sonde.ErrConfiguration, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty file", sonde.ErrConfiguration)
	}
	header := make([]string, len(records[0]))
	for i, name := range records[0] {
		header[i] = strings.ToLower(strings.TrimSpace(name))
	}
	return &table{header, records[1:], make(map[int]bool)}, nil
}

// column returns the index of the first column matching one of the keys. An exact
// name wins over a substring match, and a column is never matched twice, so that
// "u" does not pick the "altitude" column.
func (t *table) column(keys []string) (int, error) {
	for _, k := range keys {
		for i, name := range t.header {
			if !t.used[i] && name == k {
				t.used[i] = true
				return i, nil
			}
		}
	}
	for _, k := range keys {
		for i, name := range t.header {
			if !t.used[i] && strings.Contains(name, k) {
				t.used[i] = true
				return i, nil
			}
		}
	}
	return -1, fmt.Errorf("%w: missing column %v in header %v", sonde.ErrConfiguration, keys, t.header)
}

// float parses a cell, accepting a decimal comma.
func (t *table) float(row, col int) (float64, error) {
	rec := t.rows[row]
	if col >= len(rec) {
		return 0, fmt.Errorf("%w: line %d: missing column `%s`", sonde.ErrConfiguration, row+2, t.header[col])
	}
	cell := strings.Replace(strings.TrimSpace(rec[col]), ",", ".", 1)
	val, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: line %d, column `%s`: %s", sonde.ErrConfiguration, row+2, t.header[col], err)
	}
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, fmt.Errorf("%w: line %d, column `%s`: %q is not finite", sonde.ErrConfiguration, row+2, t.header[col], cell)
	}
	return val, nil
}

func (t *table) blank(row int) bool {
	for _, cell := range t.rows[row] {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// ReadSpeedCSV reads altitude/speed samples. Columns are found by name: the altitude
// column contains "alt" and the speed column "descent", "vit", "vitesse" or "speed".
func ReadSpeedCSV(r io.Reader) ([]sonde.SpeedSample, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	altCol, err := t.column(altKeys)
	if err != nil {
		return nil, err
	}
	speedCol, err := t.column(descentKeys)
	if err != nil {
		return nil, err
	}
	var samples []sonde.SpeedSample
	for i := range t.rows {
		if t.blank(i) {
			continue
		}
		alt, err := t.float(i, altCol)
		if err != nil {
			return nil, err
		}
		speed, err := t.float(i, speedCol)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sonde.SpeedSample{Alt: alt, Speed: speed})
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no speed sample", sonde.ErrConfiguration)
	}
	return samples, nil
}

// ReadWindCSV reads altitude/u/v samples.
func ReadWindCSV(r io.Reader) ([]sonde.WindSample, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	altCol, err := t.column(altKeys)
	if err != nil {
		return nil, err
	}
	uCol, err := t.column(windUKeys)
	if err != nil {
		return nil, err
	}
	vCol, err := t.column(windVKeys)
	if err != nil {
		return nil, err
	}
	var samples []sonde.WindSample
	for i := range t.rows {
		if t.blank(i) {
			continue
		}
		var vals [3]float64
		for j, col := range []int{altCol, uCol, vCol} {
			if vals[j], err = t.float(i, col); err != nil {
				return nil, err
			}
		}
		samples = append(samples, sonde.WindSample{Alt: vals[0], U: vals[1], V: vals[2]})
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no wind sample", sonde.ErrConfiguration)
	}
	return samples, nil
}

func withFile(path string, read func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", sonde.ErrConfiguration, err)
		}
		return err
	}
	defer f.Close()
	if err := read(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// LoadSpeedProfile reads a speed profile (ascent or descent) from a CSV file.
func LoadSpeedProfile(path string) (*sonde.SpeedProfile, error) {
	var samples []sonde.SpeedSample
	err := withFile(path, func(r io.Reader) (err error) {
		samples, err = ReadSpeedCSV(r)
		return
	})
	if err != nil {
		return nil, err
	}
	return sonde.NewSpeedProfile(samples)
}

// LoadWindProfile reads a wind profile from a CSV file.
func LoadWindProfile(path string) (*sonde.WindProfile, error) {
	var samples []sonde.WindSample
	err := withFile(path, func(r io.Reader) (err error) {
		samples, err = ReadWindCSV(r)
		return
	})
	if err != nil {
		return nil, err
	}
	return sonde.NewWindProfile(samples)
}
