package control

import (
	"fmt"

	"github.com/sdrfec/gateway/internal/metrics"
	"github.com/sdrfec/gateway/internal/wire"
)

// StatsNotice formats a periodic snapshot of the metrics counters
// (frames, datagrams, drains, decode failures, residual overruns) as a
// broadcast line, ready for Hub.Broadcast.
func StatsNotice(snap metrics.Snapshot) string {
	return fmt.Sprintf("STATS frames=%d datagrams_sent=%d datagrams_recv=%d drained=%d decode_failures=%d residual_overruns=%d\n",
		snap.FramesSent, snap.DatagramsSent, snap.DatagramsRecv, snap.FramesDrained,
		snap.DecodeFailures, snap.ResidualOverruns)
}

// MetaChangeNotice formats a §4.7 metadata-change notice as a
// broadcast line.
func MetaChangeNotice(meta wire.MetaData) string {
	return fmt.Sprintf("META freq=%d srate=%d bits=%d fecblk=%d\n",
		meta.CenterFrequencyHz, meta.SampleRateHz, meta.SampleBits, meta.FECBlocks)
}
