package observation

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

// columns are the header names ParseCSV requires, in Sample field order.
var columns = []string{"time", "dist", "depth", "u", "v", "w", "b"}

// ParseCSV reads comma-separated samples with a header row naming at least
// the columns time, dist, depth, u, v, w and b (any order, case-insensitive,
// extra columns ignored). Rows that are malformed or contain non-finite
// values are skipped with a warning log; cleaning is expected to have happened
// upstream, so a skipped row is unusual.
func ParseCSV(r io.Reader, N, F float64, logger *slog.Logger) (*Set, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty input", ErrInvalid)
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	pos := make([]int, len(columns))
	for i, name := range columns {
		j, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrInvalid, name)
		}
		pos[i] = j
	}

	set := &Set{N: N, F: F}
	var skipped int
	for rec := 1; ; rec++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return nil, fmt.Errorf("reading observations: %w", err)
			}
			logger.Warn("skipping unreadable observation row", "record", rec, "error", err)
			skipped++
			continue
		}

		var vals [7]float64
		ok := true
		for i, j := range pos {
			if j >= len(record) {
				logger.Warn("skipping short observation row", "record", rec, "fields", len(record))
				ok = false
				break
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(record[j]), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				logger.Warn("skipping observation row with invalid value", "record", rec, "column", columns[i], "value", record[j])
				ok = false
				break
			}
			vals[i] = v
		}
		if !ok {
			skipped++
			continue
		}

		set.Append(Sample{
			Time:  vals[0],
			Dist:  vals[1],
			Depth: vals[2],
			U:     vals[3],
			V:     vals[4],
			W:     vals[5],
			B:     vals[6],
		})
	}

	if skipped > 0 {
		logger.Info("observation rows skipped", "skipped", skipped, "kept", set.Len())
	}
	return set, nil
}

// WriteCSV writes s in the format ParseCSV reads. N and F are recorded in a
// leading comment line only.
func WriteCSV(w io.Writer, s *Set) error {
	if _, err := fmt.Fprintf(w, "# n=%g f=%g\n", s.N, s.F); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	row := make([]string, len(columns))
	for i := 0; i < s.Len(); i++ {
		smp := s.Sample(i)
		for j, v := range [...]float64{smp.Time, smp.Dist, smp.Depth, smp.U, smp.V, smp.W, smp.B} {
			row[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
