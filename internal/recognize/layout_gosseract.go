//go:build gosseract

package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"strconv"

	"github.com/otiai10/gosseract/v2"

	"pdf-ocr-batch/internal/domain"
	"pdf-ocr-batch/internal/pages"
)

func init() {
	Register(domain.ArtifactLayoutJSON, "gosseract-layout", newLayoutTranslator)
}

// layoutTranslator emits word boxes per page through the tesseract API. The
// client is created once per engine and closed with it.
type layoutTranslator struct {
	client *gosseract.Client
	cfg    TranslatorConfig
}

func newLayoutTranslator(cfg TranslatorConfig) (Translator, error) {
	client := gosseract.NewClient()
	if err := client.SetTessdataPrefix(cfg.ResourceDir); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("set tessdata prefix: %w", err)
	}
	if err := client.SetLanguage(LanguageCodes(cfg.Language)...); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("set languages: %w", err)
	}
	if cfg.DPI > 0 {
		if err := client.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(cfg.DPI)); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("set dpi: %w", err)
		}
	}
	return &layoutTranslator{client: client, cfg: cfg}, nil
}

// Translate implements Translator.
func (t *layoutTranslator) Translate(ctx context.Context, src pages.Source, w io.Writer) error {
	doc := LayoutDocument{
		Language: t.cfg.Language,
		DPI:      t.cfg.DPI,
		Pages:    make([]LayoutPage, 0, src.PageCount()),
	}
	for i := 0; i < src.PageCount(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := src.Page(ctx, i)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return fmt.Errorf("encode page %d: %w", i+1, err)
		}
		if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
			return fmt.Errorf("set image for page %d: %w", i+1, err)
		}
		boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_WORD)
		if err != nil {
			return fmt.Errorf("layout of page %d: %w", i+1, err)
		}

		page := LayoutPage{
			Index:  i,
			Width:  img.Bounds().Dx(),
			Height: img.Bounds().Dy(),
			Words:  make([]LayoutWord, 0, len(boxes)),
		}
		for _, b := range boxes {
			page.Words = append(page.Words, LayoutWord{
				Text:       b.Word,
				Box:        [4]int{b.Box.Min.X, b.Box.Min.Y, b.Box.Max.X, b.Box.Max.Y},
				Confidence: b.Confidence / 100.0,
				Block:      b.BlockNum,
				Line:       b.LineNum,
			})
		}
		doc.Pages = append(doc.Pages, page)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Close releases the tesseract API handle.
func (t *layoutTranslator) Close() error {
	return t.client.Close()
}
