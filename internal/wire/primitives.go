package wire

import (
	"encoding/binary"
	"fmt"
)

// Writer is a cursor over a packet's payload used to pack fixed-width
// fields and length-prefixed blobs. The core relies on these primitives
// directly rather than on a variadic format-string packer.
type Writer struct {
	buf []byte
	pos int
}

// NewWriter wraps the packet's payload region for writing, starting
// immediately after the header.
func NewWriter(p *Packet) *Writer {
	return &Writer{buf: p.Buf[HeaderSize:]}
}

func (w *Writer) need(n int) error {
	if w.pos+n > len(w.buf) {
		return fmt.Errorf("wire: writer overflow at %d+%d (cap %d)", w.pos, n, len(w.buf))
	}
	return nil
}

func (w *Writer) PutUint8(v uint8) error {
	if err := w.need(1); err != nil {
		return err
	}
	w.buf[w.pos] = v
	w.pos++
	return nil
}

func (w *Writer) PutUint16(v uint16) error {
	if err := w.need(2); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(w.buf[w.pos:], v)
	w.pos += 2
	return nil
}

func (w *Writer) PutUint32(v uint32) error {
	if err := w.need(4); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(w.buf[w.pos:], v)
	w.pos += 4
	return nil
}

func (w *Writer) PutUint64(v uint64) error {
	if err := w.need(8); err != nil {
		return err
	}
	binary.BigEndian.PutUint64(w.buf[w.pos:], v)
	w.pos += 8
	return nil
}

// PutBlob writes a uint16 length prefix followed by data.
func (w *Writer) PutBlob(data []byte) error {
	if err := w.PutUint16(uint16(len(data))); err != nil {
		return err
	}
	if err := w.need(len(data)); err != nil {
		return err
	}
	copy(w.buf[w.pos:], data)
	w.pos += len(data)
	return nil
}

// Len returns the number of payload bytes written so far; callers use
// this plus HeaderSize to set Packet.Length before PackHeader.
func (w *Writer) Len() int { return w.pos }

// Reader is the read-side counterpart of Writer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps a packet's payload (post-signature-stripped) for
// sequential decoding.
func NewReader(p *Packet) *Reader {
	return &Reader{buf: p.Payload()}
}

func (r *Reader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return fmt.Errorf("wire: reader underflow at %d+%d (cap %d)", r.pos, n, len(r.buf))
	}
	return nil
}

func (r *Reader) GetUint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) GetUint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) GetUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) GetUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

// GetBlob reads a uint16 length prefix followed by that many bytes. The
// returned slice aliases the packet buffer and must be copied by the
// caller if retained past the packet's lifetime.
func (r *Reader) GetBlob() ([]byte, error) {
	n, err := r.GetUint16()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }
