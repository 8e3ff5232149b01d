// Package wire implements the overlay hub's fixed-format wire packet:
// a 32-byte big-endian header followed by a payload of up to 992 bytes.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Command classes.
const (
	CommandNull      uint8 = 0
	CommandBasic     uint8 = 1
	CommandMulticast uint8 = 2
	CommandNode      uint8 = 3
	CommandOverlay   uint8 = 4
)

// Status codes.
const (
	StatusRejected uint8 = 0
	StatusAccepted uint8 = 1
	StatusRequest  uint8 = 127
)

const (
	// HeaderSize is the fixed header length in bytes.
	HeaderSize = 32
	// MaxFrameSize is the largest a signed or unsigned frame may be.
	MaxFrameSize = 1024
	// MinFrameSize is the smallest legal frame: header only.
	MinFrameSize = HeaderSize
	// SignatureSize is the fixed RSA-2048 signature length appended by Sign.
	SignatureSize = 256
)

// Header is the packet's 32-byte fixed preamble. All integers are
// big-endian on the wire.
type Header struct {
	Label       uint64
	Source      uint64
	Destination uint64
	Length      uint16
	Sequence    uint16
	Session     uint8
	Command     uint8
	Qualifier   uint8
	Status      uint8
}

// Packet is a single fixed-format frame. Buf always has capacity
// MaxFrameSize; Header.Length bounds the valid prefix.
type Packet struct {
	Header
	Buf []byte

	// Index and Limit track the read/write cursor used by validate and
	// by the pool's ownership bookkeeping. A freshly unpacked packet has
	// Index 0 and Limit == Length.
	Index int
	Limit int

	signed bool

	// refs and Hop are owned by the pool and the hub respectively; kept
	// here because every packet in flight carries them.
	refs int
	Hop  int
}

// New allocates a packet with a zeroed MaxFrameSize buffer.
func New() *Packet {
	return &Packet{Buf: make([]byte, MaxFrameSize)}
}

// PackHeader serializes Header into Buf[0:32]. Fails if Length is out of
// [MinFrameSize, MaxFrameSize].
func (p *Packet) PackHeader() error {
	if p.Length < MinFrameSize || p.Length > MaxFrameSize {
		return fmt.Errorf("wire: length %d out of range [%d,%d]", p.Length, MinFrameSize, MaxFrameSize)
	}
	b := p.Buf
	binary.BigEndian.PutUint64(b[0:8], p.Label)
	binary.BigEndian.PutUint64(b[8:16], p.Source)
	binary.BigEndian.PutUint64(b[16:24], p.Destination)
	binary.BigEndian.PutUint16(b[24:26], p.Length)
	binary.BigEndian.PutUint16(b[26:28], p.Sequence)
	b[28] = p.Session
	b[29] = p.Command
	b[30] = p.Qualifier
	b[31] = p.Status
	p.Limit = int(p.Length)
	p.Index = 0
	return nil
}

// UnpackHeader parses Buf[0:32] into Header. Fails if the declared length
// is out of range.
func (p *Packet) UnpackHeader() error {
	if len(p.Buf) < HeaderSize {
		return fmt.Errorf("wire: buffer shorter than header (%d bytes)", len(p.Buf))
	}
	b := p.Buf
	length := binary.BigEndian.Uint16(b[24:26])
	if length < MinFrameSize || length > MaxFrameSize {
		return fmt.Errorf("wire: declared length %d out of range [%d,%d]", length, MinFrameSize, MaxFrameSize)
	}
	p.Label = binary.BigEndian.Uint64(b[0:8])
	p.Source = binary.BigEndian.Uint64(b[8:16])
	p.Destination = binary.BigEndian.Uint64(b[16:24])
	p.Length = length
	p.Sequence = binary.BigEndian.Uint16(b[26:28])
	p.Session = b[28]
	p.Command = b[29]
	p.Qualifier = b[30]
	p.Status = b[31]
	p.Limit = int(length)
	p.Index = 0
	return nil
}

// Bind asserts the buffer's valid length matches the header's length
// field, the way the original serializer bound a raw socket read to the
// declared frame size before any field access.
func (p *Packet) Bind(length int) error {
	if length < MinFrameSize || length > MaxFrameSize {
		return fmt.Errorf("wire: bind length %d out of range [%d,%d]", length, MinFrameSize, MaxFrameSize)
	}
	if length != int(p.Length) {
		return fmt.Errorf("wire: bind length %d does not match header length %d", length, p.Length)
	}
	p.Limit = length
	return nil
}

// Validate asserts the packet is positioned at the start of an
// unconsumed, well-formed frame.
func (p *Packet) Validate() error {
	if p.Index != 0 {
		return fmt.Errorf("wire: index %d != 0", p.Index)
	}
	if p.Limit != int(p.Length) {
		return fmt.Errorf("wire: limit %d != length %d", p.Limit, p.Length)
	}
	if p.Length < MinFrameSize {
		return fmt.Errorf("wire: length %d below minimum %d", p.Length, MinFrameSize)
	}
	return nil
}

// CheckContext is a quick header predicate used by dispatch tables.
// status is variadic: when omitted, status is not checked.
func (p *Packet) CheckContext(cmd, qualifier uint8, status ...uint8) bool {
	if p.Command != cmd || p.Qualifier != qualifier {
		return false
	}
	if len(status) == 0 {
		return true
	}
	for _, s := range status {
		if p.Status == s {
			return true
		}
	}
	return false
}

// Payload returns the application payload, excluding any appended
// signature.
func (p *Packet) Payload() []byte {
	end := int(p.Length)
	if p.signed {
		end -= SignatureSize
	}
	if end < HeaderSize {
		return nil
	}
	return p.Buf[HeaderSize:end]
}

// Signature returns the trailing signature bytes, or nil if unsigned.
func (p *Packet) Signature() []byte {
	if !p.signed {
		return nil
	}
	return p.Buf[int(p.Length)-SignatureSize : p.Length]
}

// Signed reports whether Sign has appended a signature to this frame.
func (p *Packet) Signed() bool { return p.signed }

// signer and verifier abstract the RSA primitive the hub consumes from
// internal/wcrypto, kept minimal to avoid an import cycle.
type signer interface {
	Sign(data []byte) ([]byte, error)
}

type verifier interface {
	Verify(data, signature []byte) error
}

// Sign appends an RSA signature over the current Length-byte prefix and
// extends Length accordingly. A nil key is a no-op, so callers can sign
// unconditionally regardless of whether a long-term identity is configured.
func (p *Packet) Sign(key signer) error {
	if key == nil {
		return nil
	}
	if int(p.Length)+SignatureSize > MaxFrameSize {
		return fmt.Errorf("wire: signature would exceed MTU (%d+%d > %d)", p.Length, SignatureSize, MaxFrameSize)
	}
	// The header's Length field is itself part of the signed prefix, so
	// it must already carry its final (post-signature) value before
	// signing — otherwise Verify, which reads the prefix off the
	// on-wire header, would hash a different Length than Sign did.
	finalLength := p.Length + SignatureSize
	p.Length = finalLength
	if err := p.PackHeader(); err != nil {
		return err
	}
	prefix := p.Buf[:int(finalLength)-SignatureSize]
	sig, err := key.Sign(prefix)
	if err != nil {
		return fmt.Errorf("wire: sign: %w", err)
	}
	if len(sig) != SignatureSize {
		return fmt.Errorf("wire: unexpected signature length %d", len(sig))
	}
	copy(p.Buf[int(finalLength)-SignatureSize:finalLength], sig)
	p.signed = true
	return nil
}

// Verify checks the trailing signature against the preceding prefix. A
// nil key is a no-op.
func (p *Packet) Verify(key verifier) error {
	if key == nil {
		return nil
	}
	if int(p.Length) < HeaderSize+SignatureSize {
		return fmt.Errorf("wire: frame too short to carry a signature")
	}
	prefix := p.Buf[:int(p.Length)-SignatureSize]
	sig := p.Buf[int(p.Length)-SignatureSize : p.Length]
	if err := key.Verify(prefix, sig); err != nil {
		return fmt.Errorf("wire: signature verification failed: %w", err)
	}
	p.signed = true
	return nil
}

// Reset clears the packet for reuse by the pool.
func (p *Packet) Reset() {
	p.Header = Header{}
	p.Index = 0
	p.Limit = 0
	p.signed = false
	p.refs = 0
	p.Hop = 0
}
