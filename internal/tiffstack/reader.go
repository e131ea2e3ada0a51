package tiffstack

import (
	"fmt"
	"image"
	"io"
	"os"

	"golang.org/x/image/tiff"
)

// Reader decodes individual pages of a multi-page TIFF.
type Reader struct {
	f       *os.File
	offsets []uint32
}

// Open reads the page directory of path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	offsets, err := ifdOffsets(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Reader{f: f, offsets: offsets}, nil
}

// PageCount returns the number of pages in the file.
func PageCount(path string) (int, error) {
	r, err := Open(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return r.PageCount(), nil
}

// PageCount returns the number of pages.
func (r *Reader) PageCount() int {
	return len(r.offsets)
}

// Page decodes the zero-based page index.
func (r *Reader) Page(index int) (image.Image, error) {
	if index < 0 || index >= len(r.offsets) {
		return nil, fmt.Errorf("page %d out of range [0, %d)", index, len(r.offsets))
	}
	img, err := tiff.Decode(&pageView{r: r.f, ifd: r.offsets[index]})
	if err != nil {
		return nil, fmt.Errorf("decode page %d: %w", index, err)
	}
	return img, nil
}

// Close releases the file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}

// pageView presents the file as if its header pointed at one IFD.
type pageView struct {
	r   io.ReaderAt
	ifd uint32
	pos int64
}

func (v *pageView) ReadAt(p []byte, off int64) (int, error) {
	n, err := v.r.ReadAt(p, off)
	var ptr [4]byte
	order.PutUint32(ptr[:], v.ifd)
	for i := 4; i < headerSize; i++ {
		j := int64(i) - off
		if j >= 0 && j < int64(n) {
			p[j] = ptr[i-4]
		}
	}
	return n, err
}

func (v *pageView) Read(p []byte) (int, error) {
	n, err := v.ReadAt(p, v.pos)
	v.pos += int64(n)
	return n, err
}
