package dwd

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	timeColumn = "MESS_DATUM"
	timeLayout = "20060102"

	// sentinel is the value DWD writes for a missing observation.
	sentinel = -999
)

// whitelist holds the daily climate columns that are ingested, in file
// order of the KL product.
var whitelist = []string{"FX", "FM", "RSK", "SDK", "SHK_TAG", "NM", "PM", "TMK", "UPM", "TXK", "TNK"}

// table is a parsed daily climate file restricted to whitelisted columns.
// Unparsable cells are NaN; sentinel cells keep the sentinel value.
type table struct {
	times   []time.Time
	columns map[string][]float64
	order   []string // whitelisted columns present, in header order
}

// parseTable reads a ';'-separated DWD product file. Header names are
// trimmed and upper-cased. Rows with an unparsable MESS_DATUM are skipped.
func parseTable(r io.Reader) (*table, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty climate file")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	allowed := make(map[string]bool, len(whitelist))
	for _, c := range whitelist {
		allowed[c] = true
	}

	timeIdx := -1
	index := make(map[string]int)
	t := &table{columns: make(map[string][]float64)}
	for i, name := range header {
		name = strings.ToUpper(strings.TrimSpace(name))
		switch {
		case name == timeColumn:
			timeIdx = i
		case allowed[name]:
			if _, dup := index[name]; dup {
				continue
			}
			index[name] = i
			t.order = append(t.order, name)
			t.columns[name] = nil
		}
	}
	if timeIdx < 0 {
		return nil, fmt.Errorf("missing %s column", timeColumn)
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if timeIdx >= len(rec) {
			continue
		}
		ts, err := time.ParseInLocation(timeLayout, strings.TrimSpace(rec[timeIdx]), time.UTC)
		if err != nil {
			continue
		}
		t.times = append(t.times, ts)
		for name, i := range index {
			v := math.NaN()
			if i < len(rec) {
				if f, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64); err == nil {
					v = f
				}
			}
			t.columns[name] = append(t.columns[name], v)
		}
	}
	return t, nil
}
