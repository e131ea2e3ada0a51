package bootstrap

import (
	"flag"
	"io"

	"pdf-ocr-batch/internal/config"
)

// Options are the parsed command-line settings of one invocation.
type Options struct {
	ConfigPath      string
	EnvFile         string
	Overrides       config.Overrides
	LogFormat       string
	LogLevel        string
	Diagnose        bool
	InstallTessdata bool
	TessdataVariant string
	WriteConfig     string
	EventsPath      string
	Stdout          io.Writer
}

// ParseArgs parses args (without the program name). Only flags present on
// the command line become configuration overrides.
func ParseArgs(args []string, stderr io.Writer) (Options, error) {
	var opts Options
	fs := flag.NewFlagSet("ocrbatch", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.ConfigPath, "config", "", "YAML configuration file")
	fs.StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file consulted after the process environment")
	fs.StringVar(&opts.LogFormat, "log-format", "json", "log format: json or console")
	fs.StringVar(&opts.LogLevel, "log-level", "", "minimum log level (debug, info, warn, error)")
	fs.BoolVar(&opts.Diagnose, "diagnose", false, "run pre-flight checks, print the report and exit")
	fs.BoolVar(&opts.InstallTessdata, "install-tessdata", false, "download missing traineddata for the configured language and exit")
	fs.StringVar(&opts.TessdataVariant, "tessdata-variant", "fast", "traineddata repository: fast or best")
	fs.StringVar(&opts.WriteConfig, "write-config", "", "write the resolved configuration as YAML to this path and exit")
	fs.StringVar(&opts.EventsPath, "events", "", "write job events as JSON lines to this path after the run (- for stdout)")

	input := fs.String("input", "", "input directory with PDF documents")
	output := fs.String("output", "", "output directory for artifacts")
	scratch := fs.String("scratch", "", "root for per-document scratch workspaces")
	resources := fs.String("tessdata", "", "engine resource directory with traineddata files")
	language := fs.String("lang", "", "recognition culture, e.g. en-US or en-US+de-DE")
	dpi := fs.Int("dpi", 0, "rasterization DPI (150-600)")
	layout := fs.Bool("layout", true, "emit the layout JSON artifact when available")
	concurrency := fs.Int("concurrency", 0, "documents processed in parallel")
	preprocess := fs.Bool("preprocess", true, "clean pages before recognition")
	tesseract := fs.String("tesseract", "", "tesseract binary")
	pdftoppm := fs.String("pdftoppm", "", "pdftoppm binary")

	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}

	fs.Visit(func(f *flag.Flag) {
		o := &opts.Overrides
		switch f.Name {
		case "input":
			o.InputDir = input
		case "output":
			o.OutputDir = output
		case "scratch":
			o.ScratchDir = scratch
		case "tessdata":
			o.ResourceDir = resources
		case "lang":
			o.Language = language
		case "dpi":
			o.DPI = dpi
		case "layout":
			o.EmitLayout = layout
		case "concurrency":
			o.Concurrency = concurrency
		case "preprocess":
			o.Preprocess = preprocess
		case "tesseract":
			o.TesseractPath = tesseract
		case "pdftoppm":
			o.PdftoppmPath = pdftoppm
		}
	})
	if opts.Overrides.InputDir == nil && fs.NArg() > 0 {
		arg := fs.Arg(0)
		opts.Overrides.InputDir = &arg
	}
	return opts, nil
}
