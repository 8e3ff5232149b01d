package wire

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestPackUnpackHeaderRoundTrip(t *testing.T) {
	p := New()
	p.Header = Header{
		Label: 0xAABBCCDD11223344, Source: 1, Destination: 2,
		Length: 64, Sequence: 7, Session: 42, Command: CommandBasic,
		Qualifier: 1, Status: StatusRequest,
	}
	if err := p.PackHeader(); err != nil {
		t.Fatalf("PackHeader: %v", err)
	}

	q := New()
	copy(q.Buf, p.Buf)
	if err := q.UnpackHeader(); err != nil {
		t.Fatalf("UnpackHeader: %v", err)
	}
	if q.Header != p.Header {
		t.Fatalf("round trip mismatch: got %+v want %+v", q.Header, p.Header)
	}
}

func TestPackUnpackHeaderRandom(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		var buf [HeaderSize]byte
		rnd.Read(buf[:])
		// force a legal length so unpack succeeds
		buf[24] = 0
		buf[25] = HeaderSize

		p := New()
		copy(p.Buf, buf[:])
		if err := p.UnpackHeader(); err != nil {
			t.Fatalf("unpack: %v", err)
		}
		if err := p.PackHeader(); err != nil {
			t.Fatalf("pack: %v", err)
		}
		if !bytes.Equal(p.Buf[:HeaderSize], buf[:]) {
			t.Fatalf("bit-for-bit mismatch on iteration %d:\n got  %x\n want %x", i, p.Buf[:HeaderSize], buf[:])
		}
	}
}

func TestLengthBounds(t *testing.T) {
	cases := []struct {
		length  uint16
		wantErr bool
	}{
		{31, true},
		{32, false},
		{1024, false},
		{1025, true},
	}
	for _, c := range cases {
		p := New()
		p.Length = c.length
		err := p.PackHeader()
		if (err != nil) != c.wantErr {
			t.Errorf("length=%d: err=%v, wantErr=%v", c.length, err, c.wantErr)
		}
	}
}

func TestBindMismatch(t *testing.T) {
	p := New()
	p.Length = 64
	if err := p.PackHeader(); err != nil {
		t.Fatalf("PackHeader: %v", err)
	}
	if err := p.Bind(64); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := p.Bind(65); err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestValidate(t *testing.T) {
	p := New()
	p.Length = 40
	if err := p.PackHeader(); err != nil {
		t.Fatalf("PackHeader: %v", err)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	p.Index = 1
	if err := p.Validate(); err == nil {
		t.Fatal("expected validate error with nonzero index")
	}
}

func TestCheckContext(t *testing.T) {
	p := New()
	p.Command = CommandOverlay
	p.Qualifier = 3
	p.Status = StatusAccepted
	if !p.CheckContext(CommandOverlay, 3, StatusAccepted, StatusRequest) {
		t.Fatal("expected context match")
	}
	if p.CheckContext(CommandOverlay, 3, StatusRejected) {
		t.Fatal("expected context mismatch on status")
	}
}

type fakeKey struct{ fail bool }

func (k fakeKey) Sign(data []byte) ([]byte, error) {
	sig := make([]byte, SignatureSize)
	copy(sig, data)
	return sig, nil
}

func (k fakeKey) Verify(data, signature []byte) error {
	if k.fail {
		return errSentinel
	}
	want := make([]byte, SignatureSize)
	copy(want, data)
	if !bytes.Equal(want, signature) {
		return errSentinel
	}
	return nil
}

var errSentinel = &signError{}

type signError struct{}

func (*signError) Error() string { return "forced verify failure" }

func TestSignVerify(t *testing.T) {
	p := New()
	p.Length = HeaderSize + 10
	if err := p.PackHeader(); err != nil {
		t.Fatalf("PackHeader: %v", err)
	}
	if err := p.Sign(fakeKey{}); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if int(p.Length) != HeaderSize+10+SignatureSize {
		t.Fatalf("length after sign = %d, want %d", p.Length, HeaderSize+10+SignatureSize)
	}
	if err := p.Verify(fakeKey{}); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := p.Verify(fakeKey{fail: true}); err == nil {
		t.Fatal("expected verify failure")
	}
}

func TestWriterReaderRoundTrip(t *testing.T) {
	p := New()
	w := NewWriter(p)
	if err := w.PutUint64(42); err != nil {
		t.Fatal(err)
	}
	if err := w.PutUint16(7); err != nil {
		t.Fatal(err)
	}
	if err := w.PutBlob([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	p.Length = uint16(HeaderSize + w.Len())
	if err := p.PackHeader(); err != nil {
		t.Fatal(err)
	}

	r := NewReader(p)
	v64, err := r.GetUint64()
	if err != nil || v64 != 42 {
		t.Fatalf("GetUint64 = %d, %v", v64, err)
	}
	v16, err := r.GetUint16()
	if err != nil || v16 != 7 {
		t.Fatalf("GetUint16 = %d, %v", v16, err)
	}
	blob, err := r.GetBlob()
	if err != nil || string(blob) != "hello" {
		t.Fatalf("GetBlob = %q, %v", blob, err)
	}
}
