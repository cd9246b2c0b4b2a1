package report

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/huntred/circle/internal/model"
)

const (
	cyclesSheet   = "Cycles"
	failuresSheet = "Failures"
)

var cycleHeader = []string{
	"Cycle ID", "Business Unit", "Started", "Ended", "Duration (s)",
	"Domains", "Profiles", "Jobs", "Companies", "Scrape Quality",
	"ML Accuracy Before", "ML Accuracy After", "Patterns", "Model Confidence",
	"Opportunities", "High Value", "Proposals", "Sent", "Accepted",
	"Conversion Rate", "New Clients", "Revenue",
	"Feedback", "Model Updates", "API Cost (USD)",
	"Efficiency", "ROI Improvement", "Data Quality",
}

var failureHeader = []string{"Failure ID", "Cycle ID", "Business Unit", "Phase", "Error", "Started", "Failed"}

// WriteXLSX writes cycles, and failures when there are any, to a workbook at
// path.
func WriteXLSX(path string, cycles []model.CycleMetrics, failures []model.CycleFailure) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet(cyclesSheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: add cycles sheet")
	}
	addStrings(sheet.AddRow(), cycleHeader)
	for _, m := range cycles {
		writeCycle(sheet.AddRow(), m)
	}

	if len(failures) > 0 {
		fs, err := f.AddSheet(failuresSheet)
		if err != nil {
			return eris.Wrap(err, "xlsx: add failures sheet")
		}
		addStrings(fs.AddRow(), failureHeader)
		for _, fl := range failures {
			row := fs.AddRow()
			addStrings(row, []string{fl.ID, fl.CycleID, fl.BusinessUnitID, fl.Phase.String(), fl.Error})
			addTime(row, fl.StartedAt)
			addTime(row, fl.FailedAt)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func writeCycle(row *xlsx.Row, m model.CycleMetrics) {
	addStrings(row, []string{m.CycleID, m.BusinessUnitID})
	addTime(row, m.StartTime)
	if m.EndTime != nil {
		addTime(row, *m.EndTime)
	} else {
		row.AddCell()
	}
	addFloat(row, m.Duration().Seconds())

	for _, n := range []int{m.DomainsScraped, m.ProfilesExtracted, m.JobsDiscovered, m.CompaniesIdentified} {
		row.AddCell().SetInt(n)
	}
	addFloat(row, m.ScrapeQualityScore)
	addFloat(row, m.MLAccuracyBefore)
	addFloat(row, m.MLAccuracyAfter)
	row.AddCell().SetInt(m.PatternsDiscovered)
	addFloat(row, m.ModelConfidenceScore)
	for _, n := range []int{m.OpportunitiesDetected, m.HighValueOpportunities, m.ProposalsGenerated, m.ProposalsSent, m.ProposalsAccepted} {
		row.AddCell().SetInt(n)
	}
	addFloat(row, m.ConversionRate)
	row.AddCell().SetInt(m.NewClients)
	addFloat(row, m.RevenueGenerated)
	row.AddCell().SetInt(m.FeedbackCollected)
	row.AddCell().SetInt(m.ModelUpdatesApplied)
	for _, v := range []float64{m.APICostUSD, m.CircleEfficiency, m.ROIImprovement, m.DataQualityScore} {
		addFloat(row, v)
	}
}

func addStrings(row *xlsx.Row, values []string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addFloat(row *xlsx.Row, v float64) {
	row.AddCell().SetFloat(v)
}

// addTime writes t as RFC 3339 text; spreadsheet date serials lose the zone.
func addTime(row *xlsx.Row, t time.Time) {
	row.AddCell().SetString(t.UTC().Format(time.RFC3339))
}
