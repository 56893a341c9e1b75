package reporting

import (
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-uat/types"
	"github.com/ethereum-optimism/infra/op-uat/ui"
)

// TableRenderer prints one row per feature and scenario to a terminal.
type TableRenderer struct {
	out   io.Writer
	title string
}

func NewTableRenderer(out io.Writer, title string) *TableRenderer {
	return &TableRenderer{out: out, title: title}
}

func (t *TableRenderer) Render(r *Report) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(t.out)
	tw.SetTitle(t.title)
	tw.AppendHeader(table.Row{"Type", "ID", "Duration", "Total", "Passed", "Failed", "Skipped", "Status", "Error"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Total", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Error", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, f := range r.Features {
		tw.AppendRow(table.Row{
			"Feature", f.Name, "", f.Stats.Total, f.Stats.Passed, f.Stats.Failed, f.Stats.Skipped,
			statusWord(f.Stats.Status()), "",
		})
		for i, sc := range f.Scenarios {
			tw.AppendRow(table.Row{
				"Scenario",
				ui.Prefix(i == len(f.Scenarios)-1) + sc.Name,
				formatDuration(sc.Duration),
				sc.StepStats.Total,
				sc.StepStats.Passed,
				sc.StepStats.Failed,
				sc.StepStats.Skipped,
				statusWord(sc.Status),
				failedStepText(sc),
			})
		}
		tw.AppendSeparator()
	}

	switch r.Stats.Status() {
	case types.ScenarioFailed:
		tw.SetStyle(table.StyleColoredBlackOnRedWhite)
	case types.ScenarioSkipped:
		tw.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		tw.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}

	tw.AppendFooter(table.Row{
		"TOTAL", "", formatDuration(r.Duration), r.Stats.Total, r.Stats.Passed, r.Stats.Failed, r.Stats.Skipped,
		statusWord(r.Stats.Status()), "",
	})
	tw.Render()
	return nil
}

func failedStepText(sc *ScenarioReport) string {
	for _, st := range sc.Steps {
		if st.Failure != nil {
			return strings.TrimSpace(string(st.Keyword) + " " + st.Failure.StepText)
		}
	}
	return ""
}
