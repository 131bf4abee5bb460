package journal

import (
	"bytes"
	"os"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
)

// Run summarizes one replay. It mirrors the runs table; Accounts is only
// used by the Org report.
type Run struct {
	RunID    string
	Created  time.Time
	Dataset  string
	Strategy string
	Symbols  []string

	// Replayed time span, taken from the feed.
	Start time.Time
	End   time.Time

	Events int
	Fills  int

	// BLAKE3 digest of the history rows, see Digest.
	Digest string

	Accounts []AccountSummary
}

type AccountSummary struct {
	Name         string
	StartBalance decimal.Decimal
	EndBalance   decimal.Decimal
}

func (a AccountSummary) NetPL() decimal.Decimal {
	return a.EndBalance.Sub(a.StartBalance)
}

var runOrgFuncs = template.FuncMap{
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
	"ms": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04:05.000") },
}

var runOrg = template.Must(template.New("run").Funcs(runOrgFuncs).Parse(RunOrgTemplate))

// Org renders the run as an Org-mode entry.
func (r *Run) Org() (string, error) {
	buf := new(bytes.Buffer)
	if err := runOrg.Execute(buf, r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteOrg writes the Org-mode entry to path.
func (r *Run) WriteOrg(path string) error {
	s, err := r.Org()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(s), 0644)
}

const RunOrgTemplate = `
* REPLAY: {{if .Strategy}}{{.Strategy}}{{else}}(no strategy){{end}} {{range $i, $s := .Symbols}}{{if $i}},{{end}}{{$s}}{{end}}
:PROPERTIES:
:RUN_ID:      {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:STRATEGY:    {{if .Strategy}}{{.Strategy}}{{else}}none{{end}}
:DATASET:     {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:START:       {{ms .Start}}
:END:         {{ms .End}}
:EVENTS:      {{.Events}}
:FILLS:       {{.Fills}}
:DIGEST:      {{if .Digest}}{{.Digest}}{{else}}(digest?){{end}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:
{{- if .Accounts }}

** Accounts
| Account | Start balance | End balance | Net |
|---------+---------------+-------------+-----|
{{- range .Accounts }}
| {{.Name}} | {{.StartBalance.String}} | {{.EndBalance.String}} | {{.NetPL.String}} |
{{- end }}
{{- end }}
`
