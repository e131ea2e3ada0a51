// Package tessdata manages the traineddata files in the engine resource
// directory.
package tessdata

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pdf-ocr-batch/internal/recognize"
)

// Variant selects one upstream traineddata repository.
type Variant string

const (
	VariantFast Variant = "fast"
	VariantBest Variant = "best"
)

const baseURLPattern = "https://github.com/tesseract-ocr/tessdata_%s/raw/main"

// BaseURL returns the download root of variant.
func BaseURL(v Variant) string {
	if v != VariantBest {
		v = VariantFast
	}
	return fmt.Sprintf(baseURLPattern, v)
}

// Model is one traineddata file for a tesseract language code.
type Model struct {
	Code       string `json:"code"`
	FileName   string `json:"fileName"`
	URL        string `json:"url"`
	Downloaded bool   `json:"downloaded"`
	LocalPath  string `json:"localPath,omitempty"`
}

// ModelsFor resolves culture into the traineddata models it needs and marks
// the ones already present in resourceDir.
func ModelsFor(culture, resourceDir, baseURL string) ([]Model, error) {
	lang, err := recognize.TesseractLanguage(culture)
	if err != nil {
		return nil, err
	}
	baseURL = strings.TrimRight(baseURL, "/")

	var models []Model
	for _, code := range recognize.LanguageCodes(lang) {
		name := code + ".traineddata"
		m := Model{Code: code, FileName: name, URL: baseURL + "/" + name}
		candidate := filepath.Join(resourceDir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			m.Downloaded = true
			m.LocalPath = candidate
		}
		models = append(models, m)
	}
	return models, nil
}
