// Package export renders spread and z-score series as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
)

// Places is the number of decimals written for every value.
const Places = 8

// Header is the fixed CSV header row.
var Header = []string{"timestamp", "spread", "zscore"}

// Rows zips a spread and its z-score series. Lengths must agree.
func Rows(sp models.SpreadSeries, z models.ZScoreSeries) ([]models.ExportRow, error) {
	if len(sp.Values) != len(sp.Timestamps) || len(sp.Values) != len(z.Values) {
		return nil, errs.InvalidRequest("export.rows",
			fmt.Sprintf("length mismatch: spread=%d timestamps=%d zscore=%d", len(sp.Values), len(sp.Timestamps), len(z.Values)))
	}
	rows := make([]models.ExportRow, len(sp.Values))
	for i := range sp.Values {
		rows[i] = models.ExportRow{Timestamp: sp.Timestamps[i], Spread: sp.Values[i], ZScore: z.Values[i]}
	}
	return rows, nil
}

// WriteCSV writes the header and one line per row.
func WriteCSV(w io.Writer, rows []models.ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		z := ""
		if r.ZScore.Valid {
			z = format(r.ZScore.Value)
		}
		rec := []string{r.Timestamp.UTC().Format(time.RFC3339Nano), format(r.Spread), z}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses output produced by WriteCSV.
func ReadCSV(r io.Reader) ([]models.ExportRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read csv: missing header")
	}
	for i, h := range Header {
		if records[0][i] != h {
			return nil, fmt.Errorf("read csv: unexpected header %v", records[0])
		}
	}

	rows := make([]models.ExportRow, 0, len(records)-1)
	for line, rec := range records[1:] {
		ts, err := time.Parse(time.RFC3339Nano, rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: timestamp: %w", line+2, err)
		}
		sp, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: spread: %w", line+2, err)
		}
		row := models.ExportRow{Timestamp: ts, Spread: sp}
		if rec[2] != "" {
			z, err := strconv.ParseFloat(rec[2], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: zscore: %w", line+2, err)
			}
			row.ZScore = models.Some(z)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func format(v float64) string {
	return decimal.NewFromFloat(v).Round(Places).String()
}
