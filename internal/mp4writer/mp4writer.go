// Package mp4writer contains a helper to write nested ISO BMFF boxes.
package mp4writer

import (
	"io"

	"github.com/abema/go-mp4"
)

// Writer writes ISO BMFF boxes.
// Sizes of container boxes are patched when they are closed.
type Writer struct {
	w *mp4.Writer
}

// New allocates a Writer.
func New(w io.WriteSeeker) *Writer {
	return &Writer{
		w: mp4.NewWriter(w),
	}
}

// WriteBoxStart writes the header and the fields of a box,
// leaving it open for children. It returns the box offset.
func (w *Writer) WriteBoxStart(box mp4.IImmutableBox) (int, error) {
	bi := &mp4.BoxInfo{
		Type: box.GetType(),
	}
	var err error
	bi, err = w.w.StartBox(bi)
	if err != nil {
		return 0, err
	}

	_, err = mp4.Marshal(w.w, box, mp4.Context{})
	if err != nil {
		return 0, err
	}

	return int(bi.Offset), nil
}

// WriteRawBoxStart writes the header of a box and a raw payload,
// leaving it open for children.
func (w *Writer) WriteRawBoxStart(typ mp4.BoxType, payload []byte) (int, error) {
	bi, err := w.w.StartBox(&mp4.BoxInfo{
		Type: typ,
	})
	if err != nil {
		return 0, err
	}

	_, err = w.w.Write(payload)
	if err != nil {
		return 0, err
	}

	return int(bi.Offset), nil
}

// WriteBoxEnd closes the last open box.
func (w *Writer) WriteBoxEnd() error {
	_, err := w.w.EndBox()
	return err
}

// WriteBox writes a box without children.
func (w *Writer) WriteBox(box mp4.IImmutableBox) (int, error) {
	off, err := w.WriteBoxStart(box)
	if err != nil {
		return 0, err
	}

	err = w.WriteBoxEnd()
	if err != nil {
		return 0, err
	}

	return off, nil
}

// Write writes raw bytes, like the content of a sample entry built elsewhere.
func (w *Writer) Write(p []byte) (int, error) {
	return w.w.Write(p)
}

// Offset returns the current position.
func (w *Writer) Offset() (int64, error) {
	return w.w.Seek(0, io.SeekCurrent)
}

// WriteBoxHeader writes a box header with a 64-bit size field, whose payload
// is written directly afterwards. It returns the box offset.
// size includes the header.
func (w *Writer) WriteBoxHeader(typ mp4.BoxType, size uint64) (int, error) {
	bi, err := mp4.WriteBoxInfo(w.w, &mp4.BoxInfo{
		Type:       typ,
		Size:       size,
		HeaderSize: mp4.LargeHeaderSize,
	})
	if err != nil {
		return 0, err
	}
	return int(bi.Offset), nil
}

// PatchBoxHeader writes again a box header written with WriteBoxHeader,
// then restores the position.
func (w *Writer) PatchBoxHeader(off int, typ mp4.BoxType, size uint64) error {
	prevOff, err := w.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	_, err = w.w.Seek(int64(off), io.SeekStart)
	if err != nil {
		return err
	}

	_, err = w.WriteBoxHeader(typ, size)
	if err != nil {
		return err
	}

	_, err = w.w.Seek(prevOff, io.SeekStart)
	return err
}

// RewriteBox writes again a box at the given offset, then restores the position.
// The new box must have the same size as the previous one.
func (w *Writer) RewriteBox(off int, box mp4.IImmutableBox) error {
	prevOff, err := w.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	_, err = w.w.Seek(int64(off), io.SeekStart)
	if err != nil {
		return err
	}

	_, err = w.WriteBox(box)
	if err != nil {
		return err
	}

	_, err = w.w.Seek(prevOff, io.SeekStart)
	if err != nil {
		return err
	}

	return nil
}
