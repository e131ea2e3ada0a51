package recognize

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// scriptCodes covers languages whose traineddata is split by script.
var scriptCodes = map[string]string{
	"zh-Hans": "chi_sim",
	"zh-Hant": "chi_tra",
	"sr-Latn": "srp_latn",
	"uz-Cyrl": "uzb_cyrl",
	"az-Cyrl": "aze_cyrl",
}

// TesseractLanguage maps a culture tag such as "en-US" or "de+fr" to the
// traineddata code list tesseract expects ("eng", "deu+fra"). Codes that are
// already in tesseract form pass through unchanged.
func TesseractLanguage(tag string) (string, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "", fmt.Errorf("empty language tag")
	}

	parts := strings.Split(tag, "+")
	codes := make([]string, 0, len(parts))
	for _, part := range parts {
		code, err := tesseractCode(strings.TrimSpace(part))
		if err != nil {
			return "", err
		}
		codes = append(codes, code)
	}
	return strings.Join(codes, "+"), nil
}

func tesseractCode(tag string) (string, error) {
	if tag == "" {
		return "", fmt.Errorf("empty language tag")
	}
	if strings.Contains(tag, "_") || tag == "osd" || tag == "equ" {
		return tag, nil
	}

	t, err := language.Parse(tag)
	if err != nil {
		return "", fmt.Errorf("parse language %q: %w", tag, err)
	}
	base, _ := t.Base()
	script, conf := t.Script()
	if conf != language.No {
		if code, ok := scriptCodes[base.String()+"-"+script.String()]; ok {
			return code, nil
		}
	}
	if base.String() == "zh" {
		return "chi_sim", nil
	}

	iso3 := base.ISO3()
	if iso3 == "" || iso3 == "und" {
		return "", fmt.Errorf("language %q has no three-letter code", tag)
	}
	return iso3, nil
}

// LanguageCodes splits a "+"-joined tesseract language list.
func LanguageCodes(code string) []string {
	var out []string
	for _, c := range strings.Split(code, "+") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
