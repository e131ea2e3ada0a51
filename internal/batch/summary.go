package batch

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"pdf-ocr-batch/internal/domain"
)

// Counts aggregates terminal states of a run.
type Counts struct {
	Succeeded int
	Failed    int
	Cancelled int
}

// Count tallies outcomes by terminal state.
func Count(outcomes []domain.JobOutcome) Counts {
	var c Counts
	for _, o := range outcomes {
		switch o.State {
		case domain.JobStateSucceeded:
			c.Succeeded++
		case domain.JobStateCancelled:
			c.Cancelled++
		default:
			c.Failed++
		}
	}
	return c
}

// WriteOutcome reports one finished document on a single line.
func WriteOutcome(w io.Writer, o domain.JobOutcome) {
	switch o.State {
	case domain.JobStateSucceeded:
		fmt.Fprintf(w, "%-9s %s (%d pages, %d artifacts)\n", "ok", o.Document.Name, o.PageCount, len(o.Written()))
	case domain.JobStateCancelled:
		fmt.Fprintf(w, "%-9s %s%s\n", "cancelled", o.Document.Name, partial(o, filepath.Base))
	default:
		fmt.Fprintf(w, "%-9s %s [%s]%s\n", "FAILED", o.Document.Name, o.ErrorKind, partial(o, filepath.Base))
	}
}

// partial names the artifacts an unsuccessful job left in the output
// directory.
func partial(o domain.JobOutcome, name func(string) string) string {
	written := o.Written()
	if len(written) == 0 {
		return ""
	}
	names := make([]string, len(written))
	for i, p := range written {
		names[i] = name(p)
	}
	return " (written: " + strings.Join(names, ", ") + ")"
}

// WriteSummary prints the totals followed by every failure in input order
// with its classification and any artifacts it still wrote.
func WriteSummary(w io.Writer, outcomes []domain.JobOutcome) {
	c := Count(outcomes)
	fmt.Fprintf(w, "%d documents: %d succeeded, %d failed, %d cancelled\n",
		len(outcomes), c.Succeeded, c.Failed, c.Cancelled)

	if c.Failed+c.Cancelled == 0 {
		return
	}
	fmt.Fprintln(w, "failures:")
	for _, o := range outcomes {
		if o.Succeeded() {
			continue
		}
		fmt.Fprintf(w, "  %s [%s] %s%s\n", o.Document.Path, o.ErrorKind, o.Message, partial(o, identity))
	}
}

func identity(s string) string { return s }
