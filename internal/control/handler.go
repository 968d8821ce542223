package control

import (
	"fmt"
	"strconv"

	"github.com/sdrfec/gateway/internal/device"
	"github.com/sdrfec/gateway/internal/metrics"
	"github.com/sdrfec/gateway/internal/sender"
)

// Handler processes one decoded Request and produces a Reply.
type Handler func(Request) Reply

// recognizedKeys are the command-channel keys this gateway interprets
// itself; everything else (gain, lgain, vgain, bw, bwfilter, extamp,
// antbias, agc, ppmp, ppmn, ...) is forwarded to the device
// collaborator's Configure as device-specific passthrough, per §6.
var recognizedKeys = map[string]struct{}{
	"freq": {}, "srate": {}, "fecblk": {}, "txdelay": {},
	"decim": {}, "interp": {}, "fcpos": {},
}

// TuningSetter receives a tuning update so the next frame's MetaData
// reflects it; *sender.Framer implements this.
type TuningSetter interface {
	SetTuning(device.Tuning)
}

// BuildHandler wires freq/srate/fecblk/txdelay against cfg and framer
// directly; decim/interp/fcpos and any unrecognized key are forwarded
// to src.Configure, since only the device collaborator knows their
// exact semantics.
func BuildHandler(cfg *sender.Config, framer TuningSetter, src device.SampleSource) Handler {
	return func(req Request) Reply {
		tuning := src.Tuning()
		tuningChanged := false
		passthrough := make(map[string]string)

		for k, v := range req.Params {
			if _, ok := recognizedKeys[k]; !ok {
				passthrough[k] = v
				continue
			}
			switch k {
			case "freq":
				hz, err := strconv.ParseUint(v, 10, 32)
				if err != nil {
					metrics.IncConfigurationReject()
					return Reply{OK: false, Message: fmt.Sprintf("bad freq: %v", err)}
				}
				tuning.CenterFrequencyHz = uint32(hz)
				tuningChanged = true
			case "srate":
				hz, err := strconv.ParseUint(v, 10, 32)
				if err != nil {
					metrics.IncConfigurationReject()
					return Reply{OK: false, Message: fmt.Sprintf("bad srate: %v", err)}
				}
				tuning.SampleRateHz = uint32(hz)
				tuningChanged = true
			case "fecblk":
				r, err := strconv.Atoi(v)
				if err != nil || r < 0 || r > 127 {
					metrics.IncConfigurationReject()
					return Reply{OK: false, Message: "fecblk must be 0..127"}
				}
				cfg.R.Store(int32(r))
			case "txdelay":
				ns, err := strconv.ParseInt(v, 10, 64)
				if err != nil || ns < 0 {
					metrics.IncConfigurationReject()
					return Reply{OK: false, Message: "txdelay must be a non-negative nanosecond count"}
				}
				cfg.TxDelay.Store(ns)
			case "decim", "interp", "fcpos":
				passthrough[k] = v
			}
		}

		if len(passthrough) > 0 {
			newTuning, err := src.Configure(passthrough)
			if err != nil {
				metrics.IncConfigurationReject()
				return Reply{OK: false, Message: err.Error()}
			}
			tuning = newTuning
			tuningChanged = true
		}

		if tuningChanged {
			framer.SetTuning(tuning)
		}

		return Reply{OK: true, Params: map[string]string{
			"freq":   strconv.FormatUint(uint64(tuning.CenterFrequencyHz), 10),
			"srate":  strconv.FormatUint(uint64(tuning.SampleRateHz), 10),
			"fecblk": strconv.Itoa(int(cfg.R.Load())),
		}}
	}
}
