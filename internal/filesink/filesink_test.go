package filesink

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sdrfec/gateway/internal/wire"
)

func TestFileSinkWritesHeaderAndSamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.iq")
	meta := wire.MetaData{CenterFrequencyHz: 145000000, SampleRateHz: 2000000}

	sink, err := New(path, meta, 8, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	samples := []wire.Sample{{I: 1, Q: 2}, {I: 3, Q: 4}}
	if err := sink.Accept(meta, samples); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) != headerSize+len(samples)*wire.SampleSize {
		t.Fatalf("file size = %d, want %d", len(data), headerSize+len(samples)*wire.SampleSize)
	}
	if sr := binary.LittleEndian.Uint32(data[0:4]); sr != meta.SampleRateHz {
		t.Fatalf("sample rate = %d, want %d", sr, meta.SampleRateHz)
	}
	if fr := binary.LittleEndian.Uint64(data[4:12]); fr != uint64(meta.CenterFrequencyHz) {
		t.Fatalf("center freq = %d, want %d", fr, meta.CenterFrequencyHz)
	}

	want := make([]byte, len(samples)*wire.SampleSize)
	for i, s := range samples {
		wire.PutSample(want[i*wire.SampleSize:], s)
	}
	got := data[headerSize:]
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample bytes mismatch at %d: got %d want %d", i, got[i], want[i])
		}
	}
}

func TestFileSinkClosePropagatesAsyncWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture2.iq")
	meta := wire.MetaData{CenterFrequencyHz: 1, SampleRateHz: 1}
	sink, err := New(path, meta, 1, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 5; i++ {
		_ = sink.Accept(meta, []wire.Sample{{I: int16(i), Q: int16(i)}})
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// A second close must be a harmless no-op.
	if err := sink.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.Size() < headerSize {
		t.Fatalf("file too small: %d", fi.Size())
	}
	_ = time.Millisecond
}
