package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pdf-ocr-batch/internal/domain"
)

// entry is one discovered input. Rejected entries are reported without
// being dispatched.
type entry struct {
	doc      domain.Document
	rejected string
}

// discover lists the PDF documents directly inside dir, sorted by path.
// Every document whose base name repeats an earlier one is rejected.
func discover(dir string) ([]entry, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, item := range items {
		if item.IsDir() || !strings.EqualFold(filepath.Ext(item.Name()), ".pdf") {
			continue
		}
		info, err := item.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		paths = append(paths, filepath.Join(dir, item.Name()))
	}
	sort.Strings(paths)

	firstByName := make(map[string]string, len(paths))
	entries := make([]entry, 0, len(paths))
	for _, path := range paths {
		doc := domain.NewDocument(path)
		key := strings.ToLower(doc.Name)
		e := entry{doc: doc}
		if first, ok := firstByName[key]; ok {
			e.rejected = fmt.Sprintf("duplicate base name %q, already used by %s", doc.Name, filepath.Base(first))
		} else {
			firstByName[key] = path
		}
		entries = append(entries, e)
	}
	return entries, nil
}
