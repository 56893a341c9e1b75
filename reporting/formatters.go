package reporting

import (
	"encoding/base64"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-uat/types"
)

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}

func statusWord(status types.ScenarioStatus) string {
	return strings.ToUpper(string(status))
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": formatDuration,
		"getStatusClass": func(status types.ScenarioStatus) string {
			switch status {
			case types.ScenarioPassed:
				return "pass"
			case types.ScenarioFailed:
				return "fail"
			case types.ScenarioSkipped:
				return "skip"
			default:
				return "unknown"
			}
		},
		"statusWord": statusWord,
		"screenshotURI": func(png []byte) template.URL {
			// #nosec G203 -- the payload is our own base64 encoding
			return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png))
		},
	}
}
