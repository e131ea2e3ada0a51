package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// JobState tracks each pipeline stage for a single document job.
type JobState string

const (
	JobStateCreated           JobState = "created"
	JobStatePreprocessing     JobState = "preprocessing"
	JobStateRecognizingPDF    JobState = "recognizing-pdf"
	JobStateRecognizingText   JobState = "recognizing-text"
	JobStateRecognizingLayout JobState = "recognizing-layout"
	JobStateCleanup           JobState = "cleanup"
	JobStateSucceeded         JobState = "succeeded"
	JobStateFailed            JobState = "failed"
	JobStateCancelled         JobState = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateSucceeded, JobStateFailed, JobStateCancelled:
		return true
	default:
		return false
	}
}

// Default configuration values and DPI bounds.
const (
	DefaultDPI      = 300
	MinDPI          = 150
	MaxDPI          = 600
	DefaultLanguage = "en-US"
)

// PipelineConfig contains the process-wide configuration resolved once at
// startup. It is read-only while a batch is running.
type PipelineConfig struct {
	InputDir      string `yaml:"input_dir" json:"inputDir"`
	OutputDir     string `yaml:"output_dir" json:"outputDir"`
	ScratchDir    string `yaml:"scratch_dir" json:"scratchDir"`
	ResourceDir   string `yaml:"resource_dir" json:"resourceDir"`
	Language      string `yaml:"language" json:"language"`
	DPI           int    `yaml:"dpi" json:"dpi"`
	EmitLayout    bool   `yaml:"emit_layout" json:"emitLayout"`
	Concurrency   int    `yaml:"concurrency" json:"concurrency"`
	Preprocess    bool   `yaml:"preprocess" json:"preprocess"`
	TesseractPath string `yaml:"tesseract_path" json:"tesseractPath"`
	PdftoppmPath  string `yaml:"pdftoppm_path" json:"pdftoppmPath"`
}

// Document is one input PDF discovered by the batch runner.
type Document struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// NewDocument derives the base name used for every output artifact.
func NewDocument(path string) Document {
	base := filepath.Base(path)
	name := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "document"
	}
	return Document{Path: path, Name: name}
}

// ArtifactKind identifies one recognition output format.
type ArtifactKind string

const (
	ArtifactSearchablePDF ArtifactKind = "searchable-pdf"
	ArtifactPlainText     ArtifactKind = "plain-text"
	ArtifactLayoutJSON    ArtifactKind = "layout-json"
)

// Suffix returns the file name suffix appended to the document base name.
func (k ArtifactKind) Suffix() string {
	switch k {
	case ArtifactSearchablePDF:
		return ".searchable.pdf"
	case ArtifactPlainText:
		return ".txt"
	case ArtifactLayoutJSON:
		return ".layout.json"
	default:
		return "." + string(k)
	}
}

// MIMEType returns the content type of the artifact.
func (k ArtifactKind) MIMEType() string {
	switch k {
	case ArtifactSearchablePDF:
		return "application/pdf"
	case ArtifactPlainText:
		return "text/plain"
	case ArtifactLayoutJSON:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// Required reports whether failure of this artifact fails the document.
func (k ArtifactKind) Required() bool {
	return k != ArtifactLayoutJSON
}

// ArtifactPath builds the deterministic output path for one artifact.
func ArtifactPath(outputDir string, doc Document, kind ArtifactKind) string {
	return filepath.Join(outputDir, doc.Name+kind.Suffix())
}

// ArtifactStatus describes what happened to one artifact of a job.
type ArtifactStatus string

const (
	ArtifactWritten ArtifactStatus = "written"
	ArtifactSkipped ArtifactStatus = "skipped"
	ArtifactFailed  ArtifactStatus = "failed"
)

// ArtifactResult is the per-artifact part of a job outcome.
type ArtifactResult struct {
	Kind    ArtifactKind   `json:"kind"`
	Path    string         `json:"path"`
	Status  ArtifactStatus `json:"status"`
	Message string         `json:"message,omitempty"`
}

// JobOutcome is the result of one document job.
type JobOutcome struct {
	JobID     string           `json:"jobId"`
	Document  Document         `json:"document"`
	State     JobState         `json:"state"`
	ErrorKind ErrorKind        `json:"errorKind,omitempty"`
	Message   string           `json:"message,omitempty"`
	PageCount int              `json:"pageCount"`
	Artifacts []ArtifactResult `json:"artifacts,omitempty"`
	History   []Transition     `json:"history,omitempty"`
	Duration  time.Duration    `json:"duration"`
}

// Transition is one recorded state change of a job.
type Transition struct {
	From JobState  `json:"from"`
	To   JobState  `json:"to"`
	At   time.Time `json:"at"`
}

// Succeeded reports whether the job finished without a required failure.
func (o JobOutcome) Succeeded() bool {
	return o.State == JobStateSucceeded
}

// Written returns paths of artifacts that were produced.
func (o JobOutcome) Written() []string {
	var paths []string
	for _, a := range o.Artifacts {
		if a.Status == ArtifactWritten {
			paths = append(paths, a.Path)
		}
	}
	return paths
}

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stderr   string   `json:"stderr"`
}
