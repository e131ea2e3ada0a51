package domain

import "time"

// DiagnosticStatus indicates whether a single pre-flight check passed.
type DiagnosticStatus string

const (
	DiagnosticStatusPass DiagnosticStatus = "pass"
	DiagnosticStatusFail DiagnosticStatus = "fail"
)

// Check identifiers that map to dedicated exit codes.
const (
	CheckInputDir    = "input_dir"
	CheckResourceDir = "resource_dir"
	CheckOutputDir   = "output_dir"
	CheckScratchDir  = "scratch_dir"
	CheckTraineddata = "traineddata"
)

// DiagnosticItem is one pre-flight check result with optional hint.
type DiagnosticItem struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Status  DiagnosticStatus `json:"status"`
	Message string           `json:"message"`
	Hint    string           `json:"hint,omitempty"`
}

// DiagnosticReport aggregates pre-flight checks for a batch run.
type DiagnosticReport struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	HasFailures bool             `json:"hasFailures"`
	Items       []DiagnosticItem `json:"items"`
}

// Failed reports whether the check with the given ID failed.
func (r DiagnosticReport) Failed(id string) bool {
	for _, item := range r.Items {
		if item.ID == id && item.Status == DiagnosticStatusFail {
			return true
		}
	}
	return false
}

// Failures returns every failed item in report order.
func (r DiagnosticReport) Failures() []DiagnosticItem {
	var out []DiagnosticItem
	for _, item := range r.Items {
		if item.Status == DiagnosticStatusFail {
			out = append(out, item)
		}
	}
	return out
}

// Process exit codes.
const (
	ExitOK              = 0
	ExitDocumentsFailed = 1
	ExitInputMissing    = 2
	ExitResourceMissing = 3
	ExitSetupFailed     = 4
)
