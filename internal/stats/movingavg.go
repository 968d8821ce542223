// Package stats implements the receiver's §4.8 statistics: two 10-sample
// moving averages (blocks received, recovery blocks used per frame) plus
// the instantaneous values captured at the most recent drain.
package stats

import "sync"

// windowSize is the moving-average sample window (§4.8, §8 "Statistics
// bounds").
const windowSize = 10

// MovingAverage is a fixed-size circular-buffer mean over the last
// up-to-windowSize observations. Safe for concurrent use.
type MovingAverage struct {
	mu      sync.Mutex
	samples [windowSize]float64
	count   int // number of valid samples (<= windowSize)
	next    int // next slot to overwrite
	sum     float64
}

// Push records a new observation, evicting the oldest once the window is
// full.
func (m *MovingAverage) Push(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == windowSize {
		m.sum -= m.samples[m.next]
	} else {
		m.count++
	}
	m.samples[m.next] = v
	m.sum += v
	m.next = (m.next + 1) % windowSize
}

// Mean returns the arithmetic mean of the samples currently in the
// window, or 0 if none have been pushed yet.
func (m *MovingAverage) Mean() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// Count reports how many samples are currently in the window (0..10).
func (m *MovingAverage) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// FrameStats holds the two moving averages and the instantaneous values
// from the most recent drain, matching §4.8 exactly.
type FrameStats struct {
	AvgBlocks   MovingAverage
	AvgRecovery MovingAverage

	mu               sync.Mutex
	curNbBlocks      int
	curNbRecovery    int
}

// Record is called once per drained frame with the counts observed at
// drain time.
func (s *FrameStats) Record(blockCount, recoveryCount int) {
	s.AvgBlocks.Push(float64(blockCount))
	s.AvgRecovery.Push(float64(recoveryCount))
	s.mu.Lock()
	s.curNbBlocks = blockCount
	s.curNbRecovery = recoveryCount
	s.mu.Unlock()
}

// Current returns the instantaneous block/recovery counts from the most
// recent drain.
func (s *FrameStats) Current() (blocks, recovery int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.curNbBlocks, s.curNbRecovery
}
