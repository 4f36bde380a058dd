package export

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/suitability-cli/internal/model"
	"github.com/sells-group/suitability-cli/internal/zonal"
)

func ptr(v float64) *float64 { return &v }

var sampleRows = []Row{
	{SpeciesLabel: "oyster", ZoneID: "bay-1", SuitableAreaKM2: 200, TotalAreaKM2: ptr(400), PctSuitable: ptr(50)},
	{SpeciesLabel: "oyster", ZoneID: "bay-2", SuitableAreaKM2: 0, TotalAreaKM2: ptr(0), Flag: "zero_total"},
	{SpeciesLabel: "oyster", ZoneID: "bay-3", SuitableAreaKM2: 100, Flag: "missing_total"},
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"csv", "XLSX", " json "} {
		_, err := ParseFormat(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseFormat("parquet")
	assert.Error(t, err)
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatXLSX, FormatFromPath("out/results.xlsx", FormatCSV))
	assert.Equal(t, FormatJSON, FormatFromPath("results.JSON", FormatCSV))
	assert.Equal(t, FormatCSV, FormatFromPath("results.txt", FormatCSV))
	assert.Equal(t, FormatJSON, FormatFromPath("results", FormatJSON))
}

func TestFromResults(t *testing.T) {
	rows := FromResults("kelp", []zonal.Result{
		{ZoneID: "z", SuitableAreaKM2: 1, TotalAreaKM2: 2, PctSuitable: ptr(50)},
		{ZoneID: "y", Flag: zonal.FlagExceedsTotal},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, "kelp", rows[0].SpeciesLabel)
	assert.Equal(t, 50.0, *rows[0].PctSuitable)
	assert.Equal(t, string(zonal.FlagExceedsTotal), rows[1].Flag)
}

func TestFromStored(t *testing.T) {
	rows := FromStored("kelp", []model.ZoneResult{{RunID: "r", ZoneID: "z", SuitableAreaKM2: 3, TotalAreaKM2: 6, PctSuitable: ptr(50)}})
	require.Len(t, rows, 1)
	assert.Equal(t, Row{SpeciesLabel: "kelp", ZoneID: "z", SuitableAreaKM2: 3, TotalAreaKM2: ptr(6), PctSuitable: ptr(50)}, rows[0])
}

func TestFromReport_AppendsSkippedZones(t *testing.T) {
	rep := &zonal.Report{
		Results: []zonal.Result{{ZoneID: "z", SuitableAreaKM2: 1, TotalAreaKM2: 2, PctSuitable: ptr(50), Flag: zonal.FlagOK}},
		Skipped: []zonal.Skipped{{ZoneID: "no-area", SuitableAreaKM2: 4, Flag: zonal.FlagMissingTotal, Reason: "total_area_km2 is missing"}},
	}

	rows := FromReport("kelp", rep)
	require.Len(t, rows, 2)
	assert.Equal(t, "z", rows[0].ZoneID)
	assert.Equal(t, Row{SpeciesLabel: "kelp", ZoneID: "no-area", SuitableAreaKM2: 4, Flag: "missing_total"}, rows[1])
}

func TestFromRun_AppendsSkippedZones(t *testing.T) {
	run := &model.Run{
		SpeciesLabel: "kelp",
		Summary: &model.RunSummary{SkippedZones: []model.SkippedZone{
			{ZoneID: "neg", SuitableAreaKM2: 2, Flag: "invalid_total", Reason: "total_area_km2 is not a finite non-negative number"},
		}},
	}
	results := []model.ZoneResult{{ZoneID: "z", SuitableAreaKM2: 3, TotalAreaKM2: 6, PctSuitable: ptr(50)}}

	rows := FromRun(run, results)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{SpeciesLabel: "kelp", ZoneID: "neg", SuitableAreaKM2: 2, Flag: "invalid_total"}, rows[1])

	assert.Len(t, FromRun(&model.Run{SpeciesLabel: "kelp"}, results), 1)
}

func TestWrite_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, sampleRows))

	want := "species_label,zone_id,suitable_area_km2,total_area_km2,pct_suitable,flag\n" +
		"oyster,bay-1,200,400,50,\n" +
		"oyster,bay-2,0,0,,zero_total\n" +
		"oyster,bay-3,100,,,missing_total\n"
	assert.Equal(t, want, buf.String())
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sampleRows))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 3)
	assert.Equal(t, 50.0, got[0]["pct_suitable"])
	assert.Nil(t, got[2]["total_area_km2"])
	assert.Equal(t, "missing_total", got[2]["flag"])
	assert.Nil(t, got[1]["pct_suitable"])
	assert.Contains(t, got[1], "pct_suitable")
	assert.NotContains(t, got[0], "flag")
}

func TestWrite_JSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestWrite_XLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, sampleRows))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	sheet := f.Sheets[0]
	assert.Equal(t, "results", sheet.Name)
	require.Len(t, sheet.Rows, 4)

	assert.Equal(t, "zone_id", sheet.Rows[0].Cells[1].String())
	assert.Equal(t, "bay-1", sheet.Rows[1].Cells[1].String())
	area, err := sheet.Rows[1].Cells[2].Float()
	require.NoError(t, err)
	assert.Equal(t, 200.0, area)
	pct, err := sheet.Rows[1].Cells[4].Float()
	require.NoError(t, err)
	assert.Equal(t, 50.0, pct)
	assert.Equal(t, "", sheet.Rows[2].Cells[4].Value)
	assert.Equal(t, "zero_total", sheet.Rows[2].Cells[5].String())
	assert.Equal(t, "", sheet.Rows[3].Cells[3].Value)
	assert.Equal(t, "missing_total", sheet.Rows[3].Cells[5].String())
}

func TestWrite_UnknownFormat(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, Format("parquet"), sampleRows))
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	require.NoError(t, WriteFile(path, FormatCSV, sampleRows))

	assert.Error(t, WriteFile(filepath.Join(t.TempDir(), "missing", "results.csv"), FormatCSV, sampleRows))
}
