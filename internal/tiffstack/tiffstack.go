// Package tiffstack writes and reads multi-page TIFF files one page at a
// time, so a document never has to be held in memory as a whole.
//
// Pages are encoded individually with golang.org/x/image/tiff. Appending
// relocates the encoded page's image file directory (IFD) to the end of the
// existing file and links it from the previous last IFD.
package tiffstack

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	"golang.org/x/image/tiff"
)

const (
	headerSize = 8
	entrySize  = 12
	maxPages   = 1 << 16

	tagStripOffsets = 273
	tagTileOffsets  = 324

	typeShort = 3
	typeLong  = 4
)

var littleEndianHeader = []byte{'I', 'I', 42, 0}

// ErrCorrupt reports a structurally invalid file.
var ErrCorrupt = errors.New("tiffstack: corrupt tiff")

var order = binary.LittleEndian

// typeSizes maps TIFF field types to their byte sizes.
var typeSizes = map[uint16]uint32{
	1: 1, 2: 1, 3: 2, 4: 4, 5: 8, 6: 1, 7: 1, 8: 2, 9: 4, 10: 8, 11: 4, 12: 8,
}

// Writer implements the create/append page writer over TIFF files.
type Writer struct {
	Options *tiff.Options
}

// NewWriter returns a writer using Deflate compression.
func NewWriter() *Writer {
	return &Writer{Options: &tiff.Options{Compression: tiff.Deflate}}
}

// Create writes page as the only page of path, truncating any existing file.
func (w *Writer) Create(path string, page image.Image) error {
	data, err := w.encode(page)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// Append adds page after the last page of the existing file at path.
func (w *Writer) Append(path string, page image.Image) error {
	data, err := w.encode(page)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s for append: %w", path, err)
	}
	if err := appendPage(f, data); err != nil {
		_ = f.Close()
		return fmt.Errorf("append to %s: %w", path, err)
	}
	return f.Close()
}

func (w *Writer) encode(page image.Image) ([]byte, error) {
	if page == nil || page.Bounds().Empty() {
		return nil, errors.New("tiffstack: empty page")
	}
	opts := w.Options
	if opts == nil {
		opts = &tiff.Options{Compression: tiff.Deflate}
	}
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, page, opts); err != nil {
		return nil, fmt.Errorf("encode page: %w", err)
	}
	return buf.Bytes(), nil
}

func appendPage(f *os.File, page []byte) error {
	offsets, err := ifdOffsets(f)
	if err != nil {
		return err
	}
	last := offsets[len(offsets)-1]

	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if end%2 == 1 {
		if _, err := f.Write([]byte{0}); err != nil {
			return err
		}
		end++
	}
	if end+int64(len(page)) > 1<<32-1 {
		return errors.New("tiffstack: file would exceed 4 GiB")
	}

	delta := uint32(end - headerSize)
	pageIFD, err := relocate(page, delta)
	if err != nil {
		return err
	}
	if _, err := f.Write(page[headerSize:]); err != nil {
		return err
	}

	// link the new IFD from the previous last one.
	var countBuf [2]byte
	if _, err := f.ReadAt(countBuf[:], int64(last)); err != nil {
		return err
	}
	nextPos := int64(last) + 2 + int64(order.Uint16(countBuf[:]))*entrySize
	var next [4]byte
	order.PutUint32(next[:], pageIFD+delta)
	_, err = f.WriteAt(next[:], nextPos)
	return err
}

// relocate shifts every absolute offset inside a single-page encoding by
// delta, in place. It returns the page's original IFD offset.
func relocate(page []byte, delta uint32) (uint32, error) {
	if len(page) < headerSize || !bytes.Equal(page[:4], littleEndianHeader) {
		return 0, fmt.Errorf("%w: unexpected page header", ErrCorrupt)
	}
	ifd := order.Uint32(page[4:8])
	if int(ifd)+2 > len(page) {
		return 0, fmt.Errorf("%w: ifd offset out of range", ErrCorrupt)
	}
	n := int(order.Uint16(page[ifd:]))
	if int(ifd)+2+n*entrySize+4 > len(page) {
		return 0, fmt.Errorf("%w: ifd truncated", ErrCorrupt)
	}

	for i := 0; i < n; i++ {
		e := page[int(ifd)+2+i*entrySize:][:entrySize]
		tag := order.Uint16(e[0:2])
		typ := order.Uint16(e[2:4])
		count := order.Uint32(e[4:8])
		size, ok := typeSizes[typ]
		if !ok {
			return 0, fmt.Errorf("%w: unknown field type %d", ErrCorrupt, typ)
		}
		total := size * count

		values := e[8:12]
		if total > 4 {
			off := order.Uint32(e[8:12])
			if uint64(off)+uint64(total) > uint64(len(page)) {
				return 0, fmt.Errorf("%w: value of tag %d out of range", ErrCorrupt, tag)
			}
			values = page[off : off+total]
			order.PutUint32(e[8:12], off+delta)
		}

		if tag == tagStripOffsets || tag == tagTileOffsets {
			if err := shiftOffsets(values, typ, count, delta); err != nil {
				return 0, err
			}
		}
	}
	return ifd, nil
}

func shiftOffsets(values []byte, typ uint16, count, delta uint32) error {
	for j := uint32(0); j < count; j++ {
		switch typ {
		case typeLong:
			p := values[j*4:]
			order.PutUint32(p, order.Uint32(p)+delta)
		case typeShort:
			p := values[j*2:]
			v := uint32(order.Uint16(p)) + delta
			if v > 0xffff {
				return errors.New("tiffstack: short strip offset overflow")
			}
			order.PutUint16(p, uint16(v))
		default:
			return fmt.Errorf("%w: offsets with field type %d", ErrCorrupt, typ)
		}
	}
	return nil
}

// ifdOffsets walks the IFD chain of a little-endian TIFF.
func ifdOffsets(r io.ReaderAt) ([]uint32, error) {
	var header [headerSize]byte
	if _, err := r.ReadAt(header[:], 0); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrCorrupt, err)
	}
	if !bytes.Equal(header[:4], littleEndianHeader) {
		return nil, fmt.Errorf("%w: only little-endian files are supported", ErrCorrupt)
	}

	var offsets []uint32
	seen := make(map[uint32]struct{})
	next := order.Uint32(header[4:8])
	for next != 0 {
		if _, dup := seen[next]; dup {
			return nil, fmt.Errorf("%w: ifd loop at %d", ErrCorrupt, next)
		}
		if len(offsets) >= maxPages {
			return nil, fmt.Errorf("%w: too many pages", ErrCorrupt)
		}
		seen[next] = struct{}{}
		offsets = append(offsets, next)

		var countBuf [2]byte
		if _, err := r.ReadAt(countBuf[:], int64(next)); err != nil {
			return nil, fmt.Errorf("%w: read ifd at %d: %v", ErrCorrupt, next, err)
		}
		var nextBuf [4]byte
		pos := int64(next) + 2 + int64(order.Uint16(countBuf[:]))*entrySize
		if _, err := r.ReadAt(nextBuf[:], pos); err != nil {
			return nil, fmt.Errorf("%w: read next ifd pointer: %v", ErrCorrupt, err)
		}
		next = order.Uint32(nextBuf[:])
	}
	if len(offsets) == 0 {
		return nil, fmt.Errorf("%w: no pages", ErrCorrupt)
	}
	return offsets, nil
}
