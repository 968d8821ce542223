package device

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/sdrfec/gateway/internal/wire"
)

// blockSamples is the number of samples TestSource generates per push,
// independent of the wire framing — the framer slices this stream into
// 508-byte blocks on its own schedule.
const blockSamples = 4096

// TestSource is a synthetic sine-wave generator standing in for a real
// tuner. It reproduces original_source/sdmnbase/TestSource.cpp: a
// rotating phasor sampled at deltaPhase radians/sample, scaled by an
// amplitude derived from a "power" (dBFS peak) parameter.
type TestSource struct {
	mu         sync.Mutex
	centerFreq uint32
	sampleRate uint32
	deltaPhase float64
	amplitude  float64
	phase      float64
}

// NewTestSource returns a TestSource tuned to the given defaults,
// 435 MHz center frequency at 1 Msps with a +100 kHz carrier offset.
func NewTestSource() *TestSource {
	s := &TestSource{
		centerFreq: 435000000,
		sampleRate: 1000000,
		amplitude:  1.0,
	}
	s.deltaPhase = deltaPhaseFor(100000, s.sampleRate)
	return s
}

func deltaPhaseFor(offsetHz int32, sampleRate uint32) float64 {
	return 2.0 * math.Pi * (float64(offsetHz) / float64(sampleRate))
}

// Tuning implements SampleSource.
func (s *TestSource) Tuning() Tuning {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Tuning{CenterFrequencyHz: s.centerFreq, SampleRateHz: s.sampleRate, SampleBits: 16}
}

// Configure implements SampleSource. Recognized keys: freq, srate, dfp
// (positive carrier offset in Hz), dfn (negative carrier offset),
// power (peak power in negative dB, e.g. "power=6" means -6 dBFS).
func (s *TestSource) Configure(params map[string]string) (tuning Tuning, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A rejected key leaves every setting as it was before the call.
	prevRate, prevFreq, prevDelta, prevAmp := s.sampleRate, s.centerFreq, s.deltaPhase, s.amplitude
	defer func() {
		if err != nil {
			s.sampleRate, s.centerFreq, s.deltaPhase, s.amplitude = prevRate, prevFreq, prevDelta, prevAmp
			tuning = s.snapshotLocked()
		}
	}()

	changed := false

	if v, ok := params["srate"]; ok {
		rate, err := strconv.Atoi(v)
		if err != nil || rate < 225001 || (rate > 300000 && rate < 900001) || rate > 3200000 {
			return s.snapshotLocked(), fmt.Errorf("device: invalid sample rate %q", v)
		}
		s.sampleRate = uint32(rate)
		s.deltaPhase = deltaPhaseFor(100000, s.sampleRate)
		changed = true
	}

	if v, ok := params["freq"]; ok {
		freq, err := strconv.Atoi(v)
		if err != nil || freq < 10000000 || freq > 2200000000 {
			return s.snapshotLocked(), fmt.Errorf("device: invalid frequency %q", v)
		}
		s.centerFreq = uint32(freq)
		changed = true
	}

	if v, ok := params["dfp"]; ok {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 || offset > int(s.sampleRate/2) {
			return s.snapshotLocked(), fmt.Errorf("device: invalid carrier offset %q", v)
		}
		s.deltaPhase = deltaPhaseFor(int32(offset), s.sampleRate)
		changed = true
	} else if v, ok := params["dfn"]; ok {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 || offset > int(s.sampleRate/2) {
			return s.snapshotLocked(), fmt.Errorf("device: invalid carrier offset %q", v)
		}
		s.deltaPhase = deltaPhaseFor(-int32(offset), s.sampleRate)
		changed = true
	}

	if v, ok := params["power"]; ok {
		dbn, err := strconv.Atoi(v)
		if err != nil || dbn < 0 {
			return s.snapshotLocked(), fmt.Errorf("device: invalid power %q", v)
		}
		s.amplitude = dbToAmplitude(-float64(dbn))
		changed = true
	}

	_ = changed
	return s.snapshotLocked(), nil
}

func (s *TestSource) snapshotLocked() Tuning {
	return Tuning{CenterFrequencyHz: s.centerFreq, SampleRateHz: s.sampleRate, SampleBits: 16}
}

func dbToAmplitude(db float64) float64 {
	return math.Pow(10.0, db/20.0)
}

// Run implements SampleSource: it generates blockSamples samples at a
// time, pacing itself to the configured sample rate, until ctx is
// cancelled.
func (s *TestSource) Run(ctx context.Context, out chan<- []wire.Sample) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s.mu.Lock()
		rate := s.sampleRate
		deltaPhase := s.deltaPhase
		amplitude := s.amplitude
		phase := s.phase
		s.mu.Unlock()

		block := make([]wire.Sample, blockSamples)
		for i := range block {
			re := int16(math.Round(amplitude * math.Cos(phase) * 32767))
			im := int16(math.Round(amplitude * math.Sin(phase) * 32767))
			block[i] = wire.Sample{I: re, Q: im}
			phase += deltaPhase
			if phase > 2*math.Pi {
				phase -= 2 * math.Pi
			} else if phase < -2*math.Pi {
				phase += 2 * math.Pi
			}
		}

		s.mu.Lock()
		s.phase = phase
		s.mu.Unlock()

		select {
		case out <- block:
		case <-ctx.Done():
			return ctx.Err()
		}

		wait := time.Duration(float64(blockSamples) / float64(rate) * float64(time.Second))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
