package reporting

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum-optimism/infra/op-uat/types"
	"github.com/ethereum-optimism/infra/op-uat/ui"
)

// SummaryFilename is the plain-text summary written into the run directory.
const SummaryFilename = "summary.log"

// TextRenderer writes a plain-text tree of features, scenarios and steps.
type TextRenderer struct {
	dir            string
	includeDetails bool
}

func NewTextRenderer(dir string, includeDetails bool) *TextRenderer {
	return &TextRenderer{dir: dir, includeDetails: includeDetails}
}

func (t *TextRenderer) Render(r *Report) error {
	var buf bytes.Buffer
	t.Write(&buf, r)
	if err := os.MkdirAll(t.dir, 0755); err != nil {
		return fmt.Errorf("failed to create summary directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(t.dir, SummaryFilename), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// Write formats the report onto w.
func (t *TextRenderer) Write(w io.Writer, r *Report) {
	fmt.Fprintf(w, "UAT Results Summary\n%s\n\n", strings.Repeat("=", 50))
	fmt.Fprintf(w, "Run ID: %s\n", r.RunID)
	fmt.Fprintf(w, "Duration: %s\n", formatDuration(r.Duration))
	fmt.Fprintf(w, "Scenarios: %d\n", r.Stats.Total)
	fmt.Fprintf(w, "Passed: %d\n", r.Stats.Passed)
	fmt.Fprintf(w, "Failed: %d\n", r.Stats.Failed)
	fmt.Fprintf(w, "Skipped: %d\n", r.Stats.Skipped)
	fmt.Fprintf(w, "Status: %s\n\n", statusWord(r.Stats.Status()))

	var failed []string
	for _, f := range r.Features {
		fmt.Fprintf(w, "%s %s\n", ui.StatusMark(string(f.Stats.Status())), f.Name)
		for i, sc := range f.Scenarios {
			lastScenario := i == len(f.Scenarios)-1
			fmt.Fprintf(w, "%s%s %s (%s)\n", ui.Prefix(lastScenario), ui.StatusMark(string(sc.Status)), sc.Name, formatDuration(sc.Duration))
			for j, st := range sc.Steps {
				prefix := ui.Prefix(j == len(sc.Steps)-1, lastScenario)
				fmt.Fprintf(w, "%s%s %s %s\n", prefix, ui.StatusMark(string(st.Status)), st.Keyword, st.Text)
				if t.includeDetails && st.Failure != nil && st.Failure.StackTrace != "" {
					pad := strings.Repeat(" ", len([]rune(prefix))+2)
					for _, line := range strings.Split(strings.TrimRight(st.Failure.StackTrace, "\n"), "\n") {
						fmt.Fprintf(w, "%s%s\n", pad, line)
					}
				}
			}
			if sc.Status == types.ScenarioFailed {
				failed = append(failed, f.Name+" / "+sc.Name)
			}
		}
	}

	if len(failed) > 0 {
		fmt.Fprintf(w, "\nFailed Scenarios:\n%s\n", strings.Repeat("-", 20))
		for _, name := range failed {
			fmt.Fprintf(w, "- %s\n", name)
		}
	}
}
