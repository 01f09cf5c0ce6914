package sync

import "fmt"

// Result aggregates one reconciliation run. It is returned to the caller
// and logged, never persisted.
type Result struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`

	// Lines holds one entry per affected record, in the order processed.
	Lines []string `json:"lines"`
}

func (r *Result) add(format string, args ...interface{}) {
	r.Lines = append(r.Lines, fmt.Sprintf(format, args...))
}

// Summary is the first-line human summary of the run.
func (r *Result) Summary() string {
	return fmt.Sprintf("Sync Summary: Added: %d | Updated: %d | Skipped: %d | Deleted: %d | Failed: %d",
		r.Added, r.Updated, r.Skipped, r.Deleted, r.Failed)
}

// Report returns the summary followed by the per-record lines.
func (r *Result) Report() []string {
	return append([]string{r.Summary()}, r.Lines...)
}
