package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/suitability-cli/internal/model"
	"github.com/sells-group/suitability-cli/internal/zonal"
)

// SummaryOf extracts the totals of an aggregation report.
func SummaryOf(rep *zonal.Report, elapsed time.Duration) *model.RunSummary {
	var skipped []model.SkippedZone
	for _, z := range rep.Skipped {
		skipped = append(skipped, model.SkippedZone{
			ZoneID:          z.ZoneID,
			SuitableAreaKM2: z.SuitableAreaKM2,
			Flag:            string(z.Flag),
			Reason:          z.Reason,
		})
	}
	return &model.RunSummary{
		SuitableCells:      rep.SuitableCells,
		MaskSuitableKM2:    rep.MaskSuitableKM2,
		ZonedSuitableKM2:   rep.ZonedSuitableKM2,
		UnzonedSuitableKM2: rep.UnzonedSuitableKM2,
		ZonesScored:        len(rep.Results),
		ZonesFailed:        len(rep.Failures),
		DurationMS:         elapsed.Milliseconds(),
		SkippedZones:       skipped,
	}
}

// ResultsOf converts a report's result table, keeping zone order.
func ResultsOf(runID string, rep *zonal.Report) []model.ZoneResult {
	rows := make([]model.ZoneResult, len(rep.Results))
	for i, r := range rep.Results {
		rows[i] = model.ZoneResult{
			RunID:           runID,
			Seq:             i,
			ZoneID:          r.ZoneID,
			SuitableAreaKM2: r.SuitableAreaKM2,
			TotalAreaKM2:    r.TotalAreaKM2,
			PctSuitable:     r.PctSuitable,
			Flag:            string(r.Flag),
		}
	}
	return rows
}

// Finish moves a created run to its terminal state. A failed invocation
// stores runErr's message; a successful one stores its result table and
// summary.
func Finish(ctx context.Context, st Store, runID string, rep *zonal.Report, elapsed time.Duration, runErr error) error {
	if runErr != nil {
		return st.FailRun(ctx, runID, runErr.Error())
	}
	if rep == nil {
		return eris.Errorf("store: run %s finished without a report", runID)
	}
	if err := st.SaveResults(ctx, runID, ResultsOf(runID, rep)); err != nil {
		return err
	}
	return st.CompleteRun(ctx, runID, SummaryOf(rep, elapsed))
}
