// Package export writes historical rows as CSV downloads.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"quotedesk/internal/historical"
)

// ErrNoData is returned when there is nothing to export.
var ErrNoData = errors.New("no data available to download")

// UnfilteredLimit caps a download taken without a filter.
const UnfilteredLimit = 30

var header = []string{"Date", "Symbol", "Open", "High", "Low", "Close", "Change", "Volume"}

// FileName is historical-data-YYYY-MM-DD.csv for the UTC date of now.
func FileName(now time.Time) string {
	return fmt.Sprintf("historical-data-%s.csv", now.UTC().Format("2006-01-02"))
}

// Select picks the rows to download: the filtered set when filtered is true,
// otherwise the tail of the full dataset.
func Select(ds *historical.Dataset, q historical.Query, filtered bool) []historical.Row {
	if filtered {
		return ds.Filter(q)
	}
	rows := ds.Rows()
	if len(rows) > UnfilteredLimit {
		rows = rows[len(rows)-UnfilteredLimit:]
	}
	return rows
}

// WriteCSV writes a header and one line per row. Missing figures are empty cells.
func WriteCSV(w io.Writer, rows []historical.Row) error {
	if len(rows) == 0 {
		return ErrNoData
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		symbol := r.Symbol
		if symbol == "" {
			symbol = r.Category
		}
		rec := []string{
			historical.DisplayDate(r.Date),
			symbol,
			r.Open.Text,
			r.High.Text,
			r.Low.Text,
			r.Close.Text,
			r.Change.Text,
			r.Volume.Text,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
