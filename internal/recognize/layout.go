package recognize

// LayoutDocument is the structured layout artifact.
type LayoutDocument struct {
	Language string       `json:"language"`
	DPI      int          `json:"dpi"`
	Pages    []LayoutPage `json:"pages"`
}

// LayoutPage holds the recognized words of one page in pixel coordinates.
type LayoutPage struct {
	Index  int          `json:"index"`
	Width  int          `json:"width"`
	Height int          `json:"height"`
	Words  []LayoutWord `json:"words"`
}

// LayoutWord is one recognized word. Box is [x0, y0, x1, y1].
type LayoutWord struct {
	Text       string  `json:"text"`
	Box        [4]int  `json:"box"`
	Confidence float64 `json:"confidence"`
	Block      int     `json:"block"`
	Line       int     `json:"line"`
}
