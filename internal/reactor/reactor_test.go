package reactor

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wanhive/overlay-hub/internal/conn"
	"github.com/wanhive/overlay-hub/internal/wire"
)

type chunkedSocket struct {
	r io.Reader
}

func (s *chunkedSocket) Read(p []byte) (int, error) {
	// Force partial reads to exercise io.ReadFull in readPacket.
	if len(p) > 3 {
		p = p[:3]
	}
	return s.r.Read(p)
}
func (s *chunkedSocket) Write(p []byte) (int, error) { return len(p), nil }
func (s *chunkedSocket) Close() error                { return nil }

func buildFrame(t *testing.T, payload []byte) []byte {
	t.Helper()
	p := wire.New()
	p.Source = 1
	p.Destination = 2
	p.Command = wire.CommandNull
	p.Qualifier = wire.QualifierIdentify
	p.Status = wire.StatusRequest
	w := wire.NewWriter(p)
	if err := w.PutBlob(payload); err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	p.Length = wire.HeaderSize + uint16(w.Len())
	if err := p.PackHeader(); err != nil {
		t.Fatalf("PackHeader: %v", err)
	}
	return append([]byte(nil), p.Buf[:p.Length]...)
}

func TestServeConnectionDeliversPacketThenClosed(t *testing.T) {
	frame := buildFrame(t, []byte("hello"))
	socket := &chunkedSocket{r: bytes.NewReader(frame)}
	c := conn.New(42, socket, 0)

	r, err := New(time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go r.ServeConnection(ctx, c)

	ev := <-r.Inbox()
	if ev.Kind != EventPacket {
		t.Fatalf("kind=%v, want EventPacket", ev.Kind)
	}
	if ev.Packet.Command != wire.CommandNull || ev.Packet.Qualifier != wire.QualifierIdentify {
		t.Fatalf("unexpected packet: %+v", ev.Packet.Header)
	}

	closed := <-r.Inbox()
	if closed.Kind != EventClosed {
		t.Fatalf("kind=%v, want EventClosed", closed.Kind)
	}
}

func TestRunDeliversTick(t *testing.T) {
	r, err := New(20*time.Millisecond, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go r.Run(ctx)

	select {
	case ev := <-r.Inbox():
		if ev.Kind != EventTick {
			t.Fatalf("kind=%v, want EventTick", ev.Kind)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for tick event")
	}
}
