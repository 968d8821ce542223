package udpio

import (
	"bytes"
	"testing"
	"time"

	"github.com/sdrfec/gateway/internal/wire"
)

func TestWriteReadRoundTrip(t *testing.T) {
	rx, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer rx.Close()

	tx, err := Dial(rx.LocalAddr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer tx.Close()

	buf := make([]byte, 3*wire.DatagramSize)
	for i := range buf {
		buf[i] = byte(i)
	}
	sent, err := tx.WriteDatagrams(buf)
	if err != nil {
		t.Fatalf("WriteDatagrams: %v", err)
	}
	if sent != 3 {
		t.Fatalf("sent = %d, want 3", sent)
	}

	rx.uc.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 3; i++ {
		got := make([]byte, wire.DatagramSize)
		n, _, err := rx.ReadDatagram(got)
		if err != nil {
			t.Fatalf("ReadDatagram %d: %v", i, err)
		}
		if n != wire.DatagramSize {
			t.Fatalf("read %d bytes, want %d", n, wire.DatagramSize)
		}
		want := buf[i*wire.DatagramSize : (i+1)*wire.DatagramSize]
		if !bytes.Equal(got, want) {
			t.Fatalf("datagram %d mismatch", i)
		}
	}
}

func TestWriteDatagramsRejectsMisalignedBuffer(t *testing.T) {
	tx, err := Dial("127.0.0.1:1")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer tx.Close()
	if _, err := tx.WriteDatagrams(make([]byte, wire.DatagramSize+1)); err == nil {
		t.Fatalf("expected error for misaligned buffer")
	}
}
