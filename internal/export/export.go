// Package export writes per-zone result tables as CSV, XLSX, or JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/suitability-cli/internal/model"
	"github.com/sells-group/suitability-cli/internal/zonal"
)

// Format is an output encoding.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX, FormatJSON:
		return f, nil
	}
	return "", eris.Errorf("export: unknown format %q (want csv, xlsx, or json)", s)
}

// FormatFromPath infers the format from a file extension, falling back to
// def when the extension is not recognised.
func FormatFromPath(path string, def Format) Format {
	f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return def
	}
	return f
}

// Header is the column order shared by every format.
var Header = []string{"species_label", "zone_id", "suitable_area_km2", "total_area_km2", "pct_suitable", "flag"}

// Row is one line of a result table. PctSuitable is nil when undefined and
// TotalAreaKM2 is nil for skipped zones; both are written as empty cells
// (null in JSON).
type Row struct {
	SpeciesLabel    string   `json:"species_label"`
	ZoneID          string   `json:"zone_id"`
	SuitableAreaKM2 float64  `json:"suitable_area_km2"`
	TotalAreaKM2    *float64 `json:"total_area_km2"`
	PctSuitable     *float64 `json:"pct_suitable"`
	Flag            string   `json:"flag,omitempty"`
}

// FromResults converts an in-memory result table.
func FromResults(species string, results []zonal.Result) []Row {
	rows := make([]Row, len(results))
	for i, r := range results {
		rows[i] = Row{
			SpeciesLabel:    species,
			ZoneID:          r.ZoneID,
			SuitableAreaKM2: r.SuitableAreaKM2,
			TotalAreaKM2:    &r.TotalAreaKM2,
			PctSuitable:     r.PctSuitable,
			Flag:            string(r.Flag),
		}
	}
	return rows
}

// FromReport converts a report's result table followed by one row per
// skipped zone, flagged with why it was skipped.
func FromReport(species string, rep *zonal.Report) []Row {
	rows := FromResults(species, rep.Results)
	for _, z := range rep.Skipped {
		rows = append(rows, Row{
			SpeciesLabel:    species,
			ZoneID:          z.ZoneID,
			SuitableAreaKM2: z.SuitableAreaKM2,
			Flag:            string(z.Flag),
		})
	}
	return rows
}

// FromStored converts a persisted result table.
func FromStored(species string, results []model.ZoneResult) []Row {
	rows := make([]Row, len(results))
	for i, r := range results {
		rows[i] = Row{
			SpeciesLabel:    species,
			ZoneID:          r.ZoneID,
			SuitableAreaKM2: r.SuitableAreaKM2,
			TotalAreaKM2:    &r.TotalAreaKM2,
			PctSuitable:     r.PctSuitable,
			Flag:            r.Flag,
		}
	}
	return rows
}

// FromRun converts a stored run's result table followed by the zones its
// summary lists as skipped.
func FromRun(run *model.Run, results []model.ZoneResult) []Row {
	rows := FromStored(run.SpeciesLabel, results)
	if run.Summary == nil {
		return rows
	}
	for _, z := range run.Summary.SkippedZones {
		rows = append(rows, Row{
			SpeciesLabel:    run.SpeciesLabel,
			ZoneID:          z.ZoneID,
			SuitableAreaKM2: z.SuitableAreaKM2,
			Flag:            z.Flag,
		})
	}
	return rows
}

func (r Row) cells() []string {
	return []string{r.SpeciesLabel, r.ZoneID, formatFloat(r.SuitableAreaKM2), formatOptional(r.TotalAreaKM2), formatOptional(r.PctSuitable), r.Flag}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

// Write encodes rows to w.
func Write(w io.Writer, format Format, rows []Row) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, rows)
	case FormatXLSX:
		return writeXLSX(w, rows)
	case FormatJSON:
		return writeJSON(w, rows)
	}
	return eris.Errorf("export: unknown format %q", format)
}

// WriteFile writes rows to path, replacing any existing file.
func WriteFile(path string, format Format, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := Write(f, format, rows); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "export: write %s", path)
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}

func writeCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return eris.Wrap(err, "export: csv header")
	}
	for _, r := range rows {
		if err := cw.Write(r.cells()); err != nil {
			return eris.Wrapf(err, "export: csv row %s", r.ZoneID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: csv flush")
}

func writeXLSX(w io.Writer, rows []Row) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("results")
	if err != nil {
		return eris.Wrap(err, "export: xlsx add sheet")
	}

	hdr := sheet.AddRow()
	for _, h := range Header {
		hdr.AddCell().SetString(h)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.SpeciesLabel)
		row.AddCell().SetString(r.ZoneID)
		row.AddCell().SetFloat(r.SuitableAreaKM2)
		for _, v := range []*float64{r.TotalAreaKM2, r.PctSuitable} {
			cell := row.AddCell()
			if v != nil {
				cell.SetFloat(*v)
			}
		}
		row.AddCell().SetString(r.Flag)
	}
	return eris.Wrap(f.Write(w), "export: xlsx write")
}

func writeJSON(w io.Writer, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(rows), "export: json encode")
}
